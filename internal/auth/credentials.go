package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/tourbook/tourbook/internal/shared"
	"github.com/tourbook/tourbook/internal/users"
)

const incorrectCredentials = "Incorrect email or password"

// EmailFinder looks users up by exact email.
type EmailFinder interface {
	FindByEmail(ctx context.Context, email string) (*users.User, error)
}

// CredentialVerifier checks email/password pairs against the user store.
type CredentialVerifier struct {
	users EmailFinder
	cost  int

	decoyOnce sync.Once
	decoy     *users.User
}

// NewCredentialVerifier builds a CredentialVerifier. cost must match the
// bcrypt cost of stored hashes so unknown emails take as long as known ones.
func NewCredentialVerifier(finder EmailFinder, cost int) *CredentialVerifier {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &CredentialVerifier{users: finder, cost: cost}
}

// decoyUser returns a user whose hash never matches, so that unknown emails
// cost the same bcrypt comparison as known ones.
func (v *CredentialVerifier) decoyUser() *users.User {
	v.decoyOnce.Do(func() {
		hash, err := bcrypt.GenerateFromPassword([]byte("decoy-password-never-matches"), v.cost)
		if err != nil {
			panic(fmt.Sprintf("auth: build decoy hash: %v", err))
		}
		v.decoy = &users.User{PasswordHash: string(hash)}
	})
	return v.decoy
}

// Verify returns the user owning email when password matches. Unknown
// emails and wrong passwords fail with the same error.
func (v *CredentialVerifier) Verify(ctx context.Context, email, password string) (*users.User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, shared.NewError(shared.ErrValidation, "Please provide email and password!")
	}
	u, err := v.users.FindByEmail(ctx, email)
	switch {
	case errors.Is(err, users.ErrNotFound):
		v.decoyUser().CorrectPassword(password)
		return nil, shared.NewError(shared.ErrInvalidCredentials, incorrectCredentials)
	case err != nil:
		return nil, fmt.Errorf("auth: find user by email: %w", err)
	}
	if !u.CorrectPassword(password) {
		return nil, shared.NewError(shared.ErrInvalidCredentials, incorrectCredentials)
	}
	return u, nil
}
