// Package recovery implements the forgot-password and reset-password flow.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tourbook/tourbook/internal/mail"
	"github.com/tourbook/tourbook/internal/shared"
	"github.com/tourbook/tourbook/internal/users"
)

const (
	// ResetPath is the route prefix embedded in reset links.
	ResetPath = "/api/v1/users/resetPassword/"

	resetSubject       = "Your password reset token (valid for 10 mins)"
	defaultTokenTTL    = 10 * time.Minute
	defaultSendTimeout = 10 * time.Second
	rollbackTimeout    = 5 * time.Second
)

// Store is the subset of the user store used by the flow.
type Store interface {
	FindByEmail(ctx context.Context, email string) (*users.User, error)
	FindByResetToken(ctx context.Context, tokenHash string) (*users.User, error)
	SetResetToken(ctx context.Context, u *users.User) error
	ClearResetToken(ctx context.Context, u *users.User, tokenHash string) error
	NewCredential(password, passwordConfirm string) (users.Credential, error)
	ResetPassword(ctx context.Context, tokenHash string, now time.Time, cred users.Credential) (*users.User, error)
}

// Origin is the scheme and host reset links point back to.
type Origin struct {
	Scheme string
	Host   string
}

// OriginFromRequest derives the origin of r, honouring X-Forwarded-Proto.
func OriginFromRequest(r *http.Request) Origin {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme, _, _ = strings.Cut(proto, ",")
		scheme = strings.ToLower(strings.TrimSpace(scheme))
	}
	return Origin{Scheme: scheme, Host: r.Host}
}

// ResetURL returns the link that completes a reset with raw.
func (o Origin) ResetURL(raw string) string {
	u := url.URL{Scheme: o.Scheme, Host: o.Host, Path: ResetPath + raw}
	return u.String()
}

// Config tunes a Flow.
type Config struct {
	TokenTTL    time.Duration
	SendTimeout time.Duration
	Now         func() time.Time
}

// Flow issues and consumes password reset tokens.
type Flow struct {
	store       Store
	sender      mail.Sender
	logger      *slog.Logger
	tokenTTL    time.Duration
	sendTimeout time.Duration
	now         func() time.Time
}

// NewFlow builds a Flow instance.
func NewFlow(store Store, sender mail.Sender, logger *slog.Logger, cfg Config) *Flow {
	if logger == nil {
		logger = slog.Default()
	}
	f := &Flow{
		store:       store,
		sender:      sender,
		logger:      logger,
		tokenTTL:    cfg.TokenTTL,
		sendTimeout: cfg.SendTimeout,
		now:         cfg.Now,
	}
	if f.tokenTTL <= 0 {
		f.tokenTTL = defaultTokenTTL
	}
	if f.sendTimeout <= 0 {
		f.sendTimeout = defaultSendTimeout
	}
	if f.now == nil {
		f.now = time.Now
	}
	return f
}

// RequestReset stores a fresh reset token for email and mails the link to
// the user. If delivery fails the token is withdrawn before returning.
func (f *Flow) RequestReset(ctx context.Context, email string, origin Origin) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return shared.NewError(shared.ErrValidation, "Please provide your email address.")
	}
	u, err := f.store.FindByEmail(ctx, email)
	if errors.Is(err, users.ErrNotFound) {
		return shared.WrapError(shared.ErrUserNotFound, "There is no user with that email address.", err)
	}
	if err != nil {
		return fmt.Errorf("recovery: find user: %w", err)
	}

	raw, err := u.CreateResetToken(f.now(), f.tokenTTL)
	if err != nil {
		return err
	}
	if err := f.store.SetResetToken(ctx, u); err != nil {
		return fmt.Errorf("recovery: store reset token: %w", err)
	}

	msg := mail.Message{
		To:      u.Email,
		Subject: resetSubject,
		Body: fmt.Sprintf("Forgot your password? Submit a PATCH request with your new password and passwordConfirm to: %s.\n"+
			"If you didn't forget your password, please ignore this email!", origin.ResetURL(raw)),
	}
	sendCtx, cancel := context.WithTimeout(ctx, f.sendTimeout)
	sendErr := f.sender.Send(sendCtx, msg)
	cancel()
	if sendErr == nil {
		return nil
	}

	f.logger.Error("reset email failed", slog.String("user_id", u.ID.String()), slog.Any("error", sendErr))
	if err := f.withdraw(ctx, u, users.HashResetToken(raw)); err != nil {
		f.logger.Error("reset token rollback failed", slog.String("user_id", u.ID.String()), slog.Any("error", err))
		sendErr = errors.Join(sendErr, err)
	}
	return shared.WrapError(shared.ErrEmailDelivery, "There was an error sending the email. Try again later!", sendErr)
}

// withdraw clears the token whose link failed to go out. It runs even when
// the request context is already done, since a live token must not outlast a
// failed send.
func (f *Flow) withdraw(ctx context.Context, u *users.User, tokenHash string) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()
	return f.store.ClearResetToken(ctx, u, tokenHash)
}

var errInvalidResetToken = shared.NewError(shared.ErrInvalidToken, "Token is invalid or has expired")

// CompleteReset consumes raw, sets the new password and returns the user.
// The password change invalidates every session token issued before it.
// Concurrent calls with the same token succeed at most once.
func (f *Flow) CompleteReset(ctx context.Context, raw, password, passwordConfirm string) (*users.User, error) {
	if raw == "" {
		return nil, errInvalidResetToken
	}
	digest := users.HashResetToken(raw)
	u, err := f.store.FindByResetToken(ctx, digest)
	if errors.Is(err, users.ErrNotFound) {
		return nil, errInvalidResetToken
	}
	if err != nil {
		return nil, fmt.Errorf("recovery: find user by reset token: %w", err)
	}
	if !u.ResetTokenValid(f.now()) {
		return nil, errInvalidResetToken
	}
	cred, err := f.store.NewCredential(password, passwordConfirm)
	if err != nil {
		return nil, err
	}
	u, err = f.store.ResetPassword(ctx, digest, f.now(), cred)
	if errors.Is(err, users.ErrNotFound) {
		return nil, errInvalidResetToken
	}
	if err != nil {
		return nil, fmt.Errorf("recovery: consume reset token: %w", err)
	}
	return u, nil
}
