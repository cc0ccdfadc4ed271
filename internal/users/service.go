package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/unicode/norm"

	"github.com/tourbook/tourbook/internal/shared"
)

var (
	// ErrNotFound is returned by backends and the Store when no user matches.
	ErrNotFound = shared.ErrUserNotFound
	// ErrDuplicateEmail is returned by backends when the email is taken.
	ErrDuplicateEmail = errors.New("users: duplicate email")
)

// Backend persists user records. Implementations must return ErrNotFound
// and ErrDuplicateEmail for the corresponding conditions.
type Backend interface {
	Insert(ctx context.Context, u *User) error
	Update(ctx context.Context, u *User) error
	FindByID(ctx context.Context, id uuid.UUID) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByResetToken(ctx context.Context, tokenHash string) (*User, error)
	List(ctx context.Context) ([]User, error)

	// SetResetToken writes only the reset-token fields of user id.
	SetResetToken(ctx context.Context, id uuid.UUID, tokenHash string, expiresAt, updatedAt time.Time) error
	// ClearResetToken drops the reset token of user id if it is still tokenHash.
	ClearResetToken(ctx context.Context, id uuid.UUID, tokenHash string, updatedAt time.Time) error
	// ConsumeResetToken atomically claims the token with digest tokenHash
	// when it is unexpired at now, clears it and installs cred. At most one
	// caller claims a given token; the rest get ErrNotFound.
	ConsumeResetToken(ctx context.Context, tokenHash string, now time.Time, cred Credential) (*User, error)
}

// Store applies validation and hashing rules on top of a Backend.
type Store struct {
	backend  Backend
	validate *validator.Validate
	cost     int
	now      func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithBcryptCost overrides the bcrypt cost used for new password hashes.
func WithBcryptCost(cost int) Option {
	return func(s *Store) {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			s.cost = cost
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore builds a Store instance.
func NewStore(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend:  backend,
		validate: newValidator(),
		cost:     bcrypt.DefaultCost,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BcryptCost reports the cost used for new password hashes.
func (s *Store) BcryptCost() int {
	return s.cost
}

// Create validates signup input and persists a new user.
func (s *Store) Create(ctx context.Context, in NewUser) (*User, error) {
	in.Name = strings.TrimSpace(norm.NFC.String(in.Name))
	in.Email = strings.TrimSpace(in.Email)
	if in.Role == "" {
		in.Role = string(RoleUser)
	}
	if err := s.validate.Struct(in); err != nil {
		return nil, validationError(err)
	}
	hash, err := hashPassword(in.Password, s.cost)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	u := &User{
		ID:           uuid.New(),
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: hash,
		Role:         Role(in.Role),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.backend.Insert(ctx, u); err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			return nil, shared.WrapError(shared.ErrValidation, "Invalid input data. email is already in use.", err)
		}
		return nil, fmt.Errorf("users: insert: %w", err)
	}
	return u, nil
}

// FindByEmail looks a user up by exact email.
func (s *Store) FindByEmail(ctx context.Context, email string) (*User, error) {
	return s.backend.FindByEmail(ctx, email)
}

// FindByID looks a user up by id.
func (s *Store) FindByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.backend.FindByID(ctx, id)
}

// FindByResetToken looks a user up by reset token digest.
func (s *Store) FindByResetToken(ctx context.Context, tokenHash string) (*User, error) {
	return s.backend.FindByResetToken(ctx, tokenHash)
}

// List returns all users ordered by creation time.
func (s *Store) List(ctx context.Context) ([]User, error) {
	return s.backend.List(ctx)
}

// Save persists changes to u.
func (s *Store) Save(ctx context.Context, u *User, opts SaveOptions) error {
	if !opts.SkipValidation {
		rec := record{Name: u.Name, Email: u.Email, Role: string(u.Role), PasswordHash: u.PasswordHash}
		if err := s.validate.Struct(rec); err != nil {
			return validationError(err)
		}
	}
	u.UpdatedAt = s.now().UTC()
	if err := s.backend.Update(ctx, u); err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		if errors.Is(err, ErrDuplicateEmail) {
			return shared.WrapError(shared.ErrValidation, "Invalid input data. email is already in use.", err)
		}
		return fmt.Errorf("users: update: %w", err)
	}
	return nil
}

// NewCredential validates and hashes a new password.
func (s *Store) NewCredential(password, passwordConfirm string) (Credential, error) {
	if err := s.validate.Struct(passwordChange{Password: password, PasswordConfirm: passwordConfirm}); err != nil {
		return Credential{}, validationError(err)
	}
	hash, err := hashPassword(password, s.cost)
	if err != nil {
		return Credential{}, err
	}
	return Credential{Hash: hash, ChangedAt: s.now().UTC()}, nil
}

// SetPassword validates and hashes a new password and marks the change time,
// which invalidates every session token issued before it. The caller persists u.
func (s *Store) SetPassword(u *User, password, passwordConfirm string) error {
	cred, err := s.NewCredential(password, passwordConfirm)
	if err != nil {
		return err
	}
	changedAt := cred.ChangedAt
	u.PasswordHash = cred.Hash
	u.PasswordChangedAt = &changedAt
	return nil
}

// SetResetToken persists the pending reset token carried by u. The rest of
// the stored record is left untouched.
func (s *Store) SetResetToken(ctx context.Context, u *User) error {
	if u.ResetTokenHash == nil || u.ResetTokenExpiresAt == nil {
		return errors.New("users: no reset token to store")
	}
	now := s.now().UTC()
	if err := s.backend.SetResetToken(ctx, u.ID, *u.ResetTokenHash, *u.ResetTokenExpiresAt, now); err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("users: set reset token: %w", err)
	}
	u.UpdatedAt = now
	return nil
}

// ClearResetToken withdraws the reset token with digest tokenHash from u.
// A newer token stored in the meantime is kept.
func (s *Store) ClearResetToken(ctx context.Context, u *User, tokenHash string) error {
	now := s.now().UTC()
	if err := s.backend.ClearResetToken(ctx, u.ID, tokenHash, now); err != nil {
		return fmt.Errorf("users: clear reset token: %w", err)
	}
	u.ClearResetToken()
	u.UpdatedAt = now
	return nil
}

// ResetPassword consumes the reset token with digest tokenHash and installs
// cred in one step. It returns ErrNotFound when the token is unknown, expired
// at now or already consumed.
func (s *Store) ResetPassword(ctx context.Context, tokenHash string, now time.Time, cred Credential) (*User, error) {
	u, err := s.backend.ConsumeResetToken(ctx, tokenHash, now, cred)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("users: consume reset token: %w", err)
	}
	return u, nil
}
