package users

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testColumns = []string{
	"id", "name", "email", "password_hash", "role",
	"password_changed_at", "reset_token_hash", "reset_token_expires_at",
	"created_at", "updated_at",
}

func TestPostgresBackendInsert(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(mock pgxmock.PgxPoolIface)
		wantErr   error
	}{
		{
			name: "inserted",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO users`).
					WithArgs(pgxmock.AnyArg(), "A", "a@x.com", "hash", "user",
						pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
					WillReturnResult(pgxmock.NewResult("INSERT", 1))
			},
		},
		{
			name: "duplicate email",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO users`).
					WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
						pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
					WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "users_email_key"})
			},
			wantErr: ErrDuplicateEmail,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err, "failed to create mock")
			defer mock.Close()
			tt.setupMock(mock)

			backend := NewPostgresBackend(mock)
			u := &User{ID: uuid.New(), Name: "A", Email: "a@x.com", PasswordHash: "hash", Role: RoleUser}
			err = backend.Insert(context.Background(), u)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostgresBackendUpdateMissingRow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`UPDATE users`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = NewPostgresBackend(mock).Update(context.Background(), &User{ID: uuid.New()})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresBackendFindByEmail(t *testing.T) {
	id := uuid.New()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	changed := now.Add(-time.Hour)
	digest := "abc"
	expires := now.Add(10 * time.Minute)

	tests := []struct {
		name      string
		setupMock func(mock pgxmock.PgxPoolIface)
		wantErr   error
		errMsg    string
	}{
		{
			name: "found",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				rows := pgxmock.NewRows(testColumns).
					AddRow(id, "A", "a@x.com", "hash", "admin", &changed, &digest, &expires, now, now)
				mock.ExpectQuery(`SELECT (.+) FROM users WHERE email = \$1`).
					WithArgs("a@x.com").
					WillReturnRows(rows)
			},
		},
		{
			name: "not found",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT (.+) FROM users WHERE email = \$1`).
					WithArgs("a@x.com").
					WillReturnError(pgx.ErrNoRows)
			},
			wantErr: ErrNotFound,
		},
		{
			name: "database error",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT (.+) FROM users WHERE email = \$1`).
					WithArgs("a@x.com").
					WillReturnError(errors.New("connection refused"))
			},
			errMsg: "connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()
			tt.setupMock(mock)

			u, err := NewPostgresBackend(mock).FindByEmail(context.Background(), "a@x.com")
			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.errMsg != "":
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			default:
				require.NoError(t, err)
				assert.Equal(t, id, u.ID)
				assert.Equal(t, RoleAdmin, u.Role)
				require.NotNil(t, u.PasswordChangedAt)
				assert.Equal(t, changed, *u.PasswordChangedAt)
				require.NotNil(t, u.ResetTokenHash)
				assert.Equal(t, digest, *u.ResetTokenHash)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostgresBackendResetTokenWritesAreFieldScoped(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	expires := now.Add(10 * time.Minute)

	mock.ExpectExec(`UPDATE users\s+SET reset_token_hash = \$2, reset_token_expires_at = \$3, updated_at = \$4\s+WHERE id = \$1`).
		WithArgs(id, "digest", expires, now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE users\s+SET reset_token_hash = \$2`).
		WithArgs(pgxmock.AnyArg(), "digest", expires, now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectExec(`UPDATE users\s+SET reset_token_hash = NULL, reset_token_expires_at = NULL, updated_at = \$3\s+WHERE id = \$1 AND reset_token_hash = \$2`).
		WithArgs(id, "digest", now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	backend := NewPostgresBackend(mock)
	ctx := context.Background()
	require.NoError(t, backend.SetResetToken(ctx, id, "digest", expires, now))
	assert.ErrorIs(t, backend.SetResetToken(ctx, uuid.New(), "digest", expires, now), ErrNotFound)
	assert.NoError(t, backend.ClearResetToken(ctx, id, "digest", now), "a superseded token is not an error")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresBackendConsumeResetToken(t *testing.T) {
	id := uuid.New()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	cred := Credential{Hash: "fresh", ChangedAt: now}
	const consume = `UPDATE users\s+SET password_hash = \$3, password_changed_at = \$4,\s+reset_token_hash = NULL, reset_token_expires_at = NULL, updated_at = \$4\s+WHERE reset_token_hash = \$1 AND reset_token_expires_at > \$2\s+RETURNING`

	tests := []struct {
		name      string
		setupMock func(mock pgxmock.PgxPoolIface)
		wantErr   error
	}{
		{
			name: "claimed",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				var (
					noDigest  *string
					noExpires *time.Time
				)
				rows := pgxmock.NewRows(testColumns).
					AddRow(id, "A", "a@x.com", "fresh", "user", &now, noDigest, noExpires, now, now)
				mock.ExpectQuery(consume).WithArgs("digest", now, "fresh", now).WillReturnRows(rows)
			},
		},
		{
			name: "missing expired or already used",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(consume).WithArgs("digest", now, "fresh", now).WillReturnError(pgx.ErrNoRows)
			},
			wantErr: ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()
			tt.setupMock(mock)

			u, err := NewPostgresBackend(mock).ConsumeResetToken(context.Background(), "digest", now, cred)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, id, u.ID)
				assert.Equal(t, "fresh", u.PasswordHash)
				assert.Nil(t, u.ResetTokenHash)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
