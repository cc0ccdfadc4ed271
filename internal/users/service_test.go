package users

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/tourbook/tourbook/internal/shared"
)

func newTestStore(now time.Time) (*Store, *MemoryBackend) {
	backend := NewMemoryBackend()
	store := NewStore(backend, WithBcryptCost(bcrypt.MinCost), WithClock(func() time.Time { return now }))
	return store, backend
}

func TestStoreCreate(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	store, _ := newTestStore(now)
	ctx := context.Background()

	u, err := store.Create(ctx, NewUser{
		Name:            "  A ",
		Email:           "a@x.com",
		Password:        "secret1",
		PasswordConfirm: "secret1",
	})
	require.NoError(t, err)
	assert.Equal(t, "A", u.Name)
	assert.Equal(t, "a@x.com", u.Email)
	assert.Equal(t, RoleUser, u.Role)
	assert.Equal(t, now, u.CreatedAt)
	assert.NotEqual(t, "secret1", u.PasswordHash)
	assert.True(t, u.CorrectPassword("secret1"))
	assert.False(t, u.CorrectPassword("secret2"))
	assert.Nil(t, u.PasswordChangedAt)

	found, err := store.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, found.ID)

	_, err = store.FindByEmail(ctx, "A@X.COM")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreCreateValidation(t *testing.T) {
	store, _ := newTestStore(time.Now())
	ctx := context.Background()

	tests := []struct {
		name    string
		in      NewUser
		message string
	}{
		{
			name:    "missing name",
			in:      NewUser{Email: "a@x.com", Password: "secret1", PasswordConfirm: "secret1"},
			message: "name is required.",
		},
		{
			name:    "bad email",
			in:      NewUser{Name: "A", Email: "not-an-email", Password: "secret1", PasswordConfirm: "secret1"},
			message: "email must be a valid email address.",
		},
		{
			name:    "short password",
			in:      NewUser{Name: "A", Email: "a@x.com", Password: "abc", PasswordConfirm: "abc"},
			message: "password must be at least 6 characters.",
		},
		{
			name:    "confirm mismatch",
			in:      NewUser{Name: "A", Email: "a@x.com", Password: "secret1", PasswordConfirm: "secret2"},
			message: "Passwords are not the same.",
		},
		{
			name:    "unknown role",
			in:      NewUser{Name: "A", Email: "a@x.com", Role: "root", Password: "secret1", PasswordConfirm: "secret1"},
			message: "role must be one of",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.Create(ctx, tt.in)
			require.Error(t, err)
			assert.ErrorIs(t, err, shared.ErrValidation)
			assert.Contains(t, shared.UserSafeMessage(err), tt.message)
		})
	}
}

func TestStoreCreateDuplicateEmail(t *testing.T) {
	store, _ := newTestStore(time.Now())
	ctx := context.Background()
	in := NewUser{Name: "A", Email: "a@x.com", Password: "secret1", PasswordConfirm: "secret1"}

	_, err := store.Create(ctx, in)
	require.NoError(t, err)
	_, err = store.Create(ctx, in)
	assert.ErrorIs(t, err, shared.ErrValidation)
	assert.ErrorIs(t, err, ErrDuplicateEmail)
}

func TestStoreSaveSkipValidation(t *testing.T) {
	store, backend := newTestStore(time.Now())
	ctx := context.Background()
	u, err := store.Create(ctx, NewUser{Name: "A", Email: "a@x.com", Password: "secret1", PasswordConfirm: "secret1"})
	require.NoError(t, err)

	u.Name = ""
	err = store.Save(ctx, u, SaveOptions{})
	assert.ErrorIs(t, err, shared.ErrValidation)

	raw, err := u.CreateResetToken(time.Now(), 10*time.Minute)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, u, SaveOptions{SkipValidation: true}))

	stored, err := backend.FindByResetToken(ctx, HashResetToken(raw))
	require.NoError(t, err)
	assert.Equal(t, u.ID, stored.ID)
	assert.NotEqual(t, raw, *stored.ResetTokenHash)
}

func TestStoreSetPassword(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	store, _ := newTestStore(now)
	u, err := store.Create(context.Background(), NewUser{Name: "A", Email: "a@x.com", Password: "secret1", PasswordConfirm: "secret1"})
	require.NoError(t, err)

	err = store.SetPassword(u, "newpass1", "other")
	assert.ErrorIs(t, err, shared.ErrValidation)
	assert.True(t, u.CorrectPassword("secret1"))

	require.NoError(t, store.SetPassword(u, "newpass1", "newpass1"))
	assert.True(t, u.CorrectPassword("newpass1"))
	require.NotNil(t, u.PasswordChangedAt)
	assert.Equal(t, now, *u.PasswordChangedAt)
}

func TestChangedPasswordSince(t *testing.T) {
	changed := time.Date(2026, 3, 1, 10, 0, 0, 500_000_000, time.UTC)
	u := &User{}
	assert.False(t, u.ChangedPasswordSince(changed.Add(-time.Hour)))

	u.PasswordChangedAt = &changed
	assert.True(t, u.ChangedPasswordSince(changed.Add(-2*time.Second)))
	assert.False(t, u.ChangedPasswordSince(changed.Truncate(time.Second)))
	assert.False(t, u.ChangedPasswordSince(changed.Add(time.Second)))
}

func TestResetTokenLifecycle(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	u := &User{}

	raw, err := u.CreateResetToken(now, 10*time.Minute)
	require.NoError(t, err)
	assert.Len(t, raw, 64)
	require.NotNil(t, u.ResetTokenHash)
	assert.Equal(t, HashResetToken(raw), *u.ResetTokenHash)
	assert.Equal(t, now.Add(10*time.Minute), *u.ResetTokenExpiresAt)

	assert.True(t, u.ResetTokenValid(now.Add(9*time.Minute)))
	assert.False(t, u.ResetTokenValid(now.Add(10*time.Minute)))

	other, err := (&User{}).CreateResetToken(now, time.Minute)
	require.NoError(t, err)
	assert.NotEqual(t, raw, other)

	u.ClearResetToken()
	assert.Nil(t, u.ResetTokenHash)
	assert.Nil(t, u.ResetTokenExpiresAt)
	assert.False(t, u.ResetTokenValid(now))
}

func TestMemoryBackendReturnsCopies(t *testing.T) {
	backend := NewMemoryBackend()
	ctx := context.Background()
	store := NewStore(backend, WithBcryptCost(bcrypt.MinCost))
	u, err := store.Create(ctx, NewUser{Name: "A", Email: "a@x.com", Password: "secret1", PasswordConfirm: "secret1"})
	require.NoError(t, err)

	u.Name = "mutated"
	found, err := backend.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "A", found.Name)
}

func TestStoreSetResetTokenKeepsConcurrentPasswordChange(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	store, backend := newTestStore(now)
	ctx := context.Background()
	u, err := store.Create(ctx, NewUser{Name: "A", Email: "a@x.com", Password: "secret1", PasswordConfirm: "secret1"})
	require.NoError(t, err)

	changed := u.Clone()
	require.NoError(t, store.SetPassword(changed, "newpass1", "newpass1"))
	require.NoError(t, store.Save(ctx, changed, SaveOptions{}))

	raw, err := u.CreateResetToken(now, 10*time.Minute)
	require.NoError(t, err)
	require.NoError(t, store.SetResetToken(ctx, u))

	stored, err := backend.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, stored.CorrectPassword("newpass1"))
	assert.False(t, stored.CorrectPassword("secret1"))
	require.NotNil(t, stored.PasswordChangedAt)
	require.NotNil(t, stored.ResetTokenHash)
	assert.Equal(t, HashResetToken(raw), *stored.ResetTokenHash)

	require.NoError(t, store.ClearResetToken(ctx, u, "other-digest"))
	stored, err = backend.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.ResetTokenHash, "only the named token is withdrawn")

	require.NoError(t, store.ClearResetToken(ctx, u, HashResetToken(raw)))
	assert.Nil(t, u.ResetTokenHash)
	stored, err = backend.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.ResetTokenHash)
	assert.True(t, stored.CorrectPassword("newpass1"))

	ghost := &User{ID: u.ID}
	ghost.ID[0] ^= 0xff
	_, err = ghost.CreateResetToken(now, time.Minute)
	require.NoError(t, err)
	assert.ErrorIs(t, store.SetResetToken(ctx, ghost), ErrNotFound)
	assert.Error(t, store.SetResetToken(ctx, &User{ID: u.ID}))
}

func TestStoreResetPasswordClaimsTokenOnce(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	store, _ := newTestStore(now)
	ctx := context.Background()
	u, err := store.Create(ctx, NewUser{Name: "A", Email: "a@x.com", Password: "secret1", PasswordConfirm: "secret1"})
	require.NoError(t, err)
	raw, err := u.CreateResetToken(now, 10*time.Minute)
	require.NoError(t, err)
	require.NoError(t, store.SetResetToken(ctx, u))

	cred, err := store.NewCredential("newpass1", "newpass1")
	require.NoError(t, err)
	_, err = store.ResetPassword(ctx, HashResetToken(raw), now.Add(10*time.Minute), cred)
	assert.ErrorIs(t, err, ErrNotFound, "expired at the boundary")

	var (
		wg      sync.WaitGroup
		claimed atomic.Int32
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.ResetPassword(ctx, HashResetToken(raw), now, cred); err == nil {
				claimed.Add(1)
			} else {
				assert.ErrorIs(t, err, ErrNotFound)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), claimed.Load())

	stored, err := store.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, stored.CorrectPassword("newpass1"))
	assert.Nil(t, stored.ResetTokenHash)
	require.NotNil(t, stored.PasswordChangedAt)
	assert.Equal(t, now, *stored.PasswordChangedAt)
}

func TestStoreNewCredentialUsesConfiguredCost(t *testing.T) {
	store, _ := newTestStore(time.Now())
	assert.Equal(t, bcrypt.MinCost, store.BcryptCost())

	_, err := store.NewCredential("newpass1", "other")
	assert.ErrorIs(t, err, shared.ErrValidation)

	cred, err := store.NewCredential("newpass1", "newpass1")
	require.NoError(t, err)
	cost, err := bcrypt.Cost([]byte(cred.Hash))
	require.NoError(t, err)
	assert.Equal(t, bcrypt.MinCost, cost)
}
