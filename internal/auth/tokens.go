// Package auth issues session tokens, verifies credentials and guards
// protected routes.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/tourbook/tourbook/internal/shared"
)

// TokenConfig configures a TokenService.
type TokenConfig struct {
	Secret []byte
	TTL    time.Duration
	// Now overrides the clock. Defaults to time.Now.
	Now func() time.Time
}

// Claims is the decoded content of a verified session token.
type Claims struct {
	UserID    uuid.UUID
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenService issues and verifies HS256-signed session tokens. A token is
// valid while now < exp; at the exact expiry instant it is already expired.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
	parser *jwt.Parser
}

// NewTokenService builds a TokenService from cfg.
func NewTokenService(cfg TokenConfig) (*TokenService, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("auth: token secret is required")
	}
	if cfg.TTL <= 0 {
		return nil, errors.New("auth: token ttl must be positive")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &TokenService{
		secret: cfg.Secret,
		ttl:    cfg.TTL,
		now:    now,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithTimeFunc(now),
			jwt.WithIssuedAt(),
			jwt.WithExpirationRequired(),
		),
	}, nil
}

// TTL returns the configured token lifetime.
func (s *TokenService) TTL() time.Duration { return s.ttl }

// Issue signs a token for userID.
func (s *TokenService) Issue(userID uuid.UUID) (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   userID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature and expiry of raw and returns its claims.
// Every failure is reported as shared.ErrInvalidToken.
func (s *TokenService) Verify(raw string) (Claims, error) {
	var rc jwt.RegisteredClaims
	_, err := s.parser.ParseWithClaims(raw, &rc, func(*jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, shared.WrapError(shared.ErrInvalidToken, "Your token has expired! Please log in again.", err)
		}
		return Claims{}, shared.WrapError(shared.ErrInvalidToken, "Invalid token. Please log in again!", err)
	}
	id, err := uuid.Parse(rc.Subject)
	if err != nil {
		return Claims{}, shared.WrapError(shared.ErrInvalidToken, "Invalid token. Please log in again!", err)
	}
	if rc.IssuedAt == nil {
		return Claims{}, shared.NewError(shared.ErrInvalidToken, "Invalid token. Please log in again!")
	}
	return Claims{UserID: id, IssuedAt: rc.IssuedAt.Time, ExpiresAt: rc.ExpiresAt.Time}, nil
}
