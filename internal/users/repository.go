package users

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const emailConstraint = "users_email_key"

// DBTX is the subset of pgxpool.Pool used by PostgresBackend.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresBackend provides PostgreSQL backed persistence.
type PostgresBackend struct {
	db DBTX
}

// NewPostgresBackend constructs a PostgresBackend.
func NewPostgresBackend(db DBTX) *PostgresBackend {
	return &PostgresBackend{db: db}
}

func (r *PostgresBackend) Insert(ctx context.Context, u *User) error {
	_, err := r.db.Exec(ctx, insertUser,
		u.ID, u.Name, u.Email, u.PasswordHash, string(u.Role),
		u.PasswordChangedAt, u.ResetTokenHash, u.ResetTokenExpiresAt,
		u.CreatedAt, u.UpdatedAt,
	)
	return translatePGError(err)
}

func (r *PostgresBackend) Update(ctx context.Context, u *User) error {
	tag, err := r.db.Exec(ctx, updateUser,
		u.ID, u.Name, u.Email, u.PasswordHash, string(u.Role),
		u.PasswordChangedAt, u.ResetTokenHash, u.ResetTokenExpiresAt,
		u.UpdatedAt,
	)
	if err != nil {
		return translatePGError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresBackend) FindByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return scanUser(r.db.QueryRow(ctx, getUserByID, id))
}

func (r *PostgresBackend) FindByEmail(ctx context.Context, email string) (*User, error) {
	return scanUser(r.db.QueryRow(ctx, getUserByEmail, email))
}

func (r *PostgresBackend) FindByResetToken(ctx context.Context, tokenHash string) (*User, error) {
	return scanUser(r.db.QueryRow(ctx, getUserByResetToken, tokenHash))
}

func (r *PostgresBackend) SetResetToken(ctx context.Context, id uuid.UUID, tokenHash string, expiresAt, updatedAt time.Time) error {
	tag, err := r.db.Exec(ctx, setResetToken, id, tokenHash, expiresAt, updatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresBackend) ClearResetToken(ctx context.Context, id uuid.UUID, tokenHash string, updatedAt time.Time) error {
	_, err := r.db.Exec(ctx, clearResetToken, id, tokenHash, updatedAt)
	return err
}

func (r *PostgresBackend) ConsumeResetToken(ctx context.Context, tokenHash string, now time.Time, cred Credential) (*User, error) {
	return scanUser(r.db.QueryRow(ctx, consumeResetToken, tokenHash, now, cred.Hash, cred.ChangedAt))
}

func (r *PostgresBackend) List(ctx context.Context) ([]User, error) {
	rows, err := r.db.Query(ctx, listUsers)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func scanUser(row pgx.Row) (*User, error) {
	var (
		u    User
		role string
	)
	err := row.Scan(
		&u.ID, &u.Name, &u.Email, &u.PasswordHash, &role,
		&u.PasswordChangedAt, &u.ResetTokenHash, &u.ResetTokenExpiresAt,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	u.Role = Role(role)
	return &u, nil
}

func translatePGError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation && pgErr.ConstraintName == emailConstraint {
		return ErrDuplicateEmail
	}
	return err
}

var _ Backend = (*PostgresBackend)(nil)
