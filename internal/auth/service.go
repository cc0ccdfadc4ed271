package auth

import (
	"context"
	"fmt"

	"github.com/tourbook/tourbook/internal/users"
)

// UserStore is the subset of the user store used by signup and login.
type UserStore interface {
	EmailFinder
	Create(ctx context.Context, in users.NewUser) (*users.User, error)
	BcryptCost() int
}

// Service wraps signup and login.
type Service struct {
	users       UserStore
	credentials *CredentialVerifier
	tokens      *TokenService
	events      EventRecorder
}

// NewService constructs a new Service.
func NewService(store UserStore, tokens *TokenService, events EventRecorder) *Service {
	return &Service{
		users:       store,
		credentials: NewCredentialVerifier(store, store.BcryptCost()),
		tokens:      tokens,
		events:      recorderOrNop(events),
	}
}

// Signup creates an account and issues its first session token.
func (s *Service) Signup(ctx context.Context, in users.NewUser) (*users.User, string, error) {
	u, err := s.users.Create(ctx, in)
	if err != nil {
		s.events.AuthEvent(EventSignup, OutcomeFailure)
		return nil, "", err
	}
	token, err := s.tokens.Issue(u.ID)
	if err != nil {
		s.events.AuthEvent(EventSignup, OutcomeFailure)
		return nil, "", fmt.Errorf("auth: signup: %w", err)
	}
	s.events.AuthEvent(EventSignup, OutcomeSuccess)
	return u, token, nil
}

// Login verifies credentials and issues a session token.
func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	u, err := s.credentials.Verify(ctx, email, password)
	if err != nil {
		s.events.AuthEvent(EventLogin, OutcomeFailure)
		return "", err
	}
	token, err := s.tokens.Issue(u.ID)
	if err != nil {
		s.events.AuthEvent(EventLogin, OutcomeFailure)
		return "", fmt.Errorf("auth: login: %w", err)
	}
	s.events.AuthEvent(EventLogin, OutcomeSuccess)
	return token, nil
}
