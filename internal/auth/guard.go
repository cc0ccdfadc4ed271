package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/tourbook/tourbook/internal/platform/httpx"
	"github.com/tourbook/tourbook/internal/shared"
	"github.com/tourbook/tourbook/internal/users"
)

const bearerPrefix = "Bearer "

// TokenVerifier decodes session tokens.
type TokenVerifier interface {
	Verify(raw string) (Claims, error)
}

// UserResolver loads the user a token refers to.
type UserResolver interface {
	FindByID(ctx context.Context, id uuid.UUID) (*users.User, error)
}

// GuardState accumulates what the guard learns about a request.
type GuardState struct {
	Header string
	Token  string
	Claims Claims
	User   *users.User
}

// Stage either enriches the state and continues, or stops the pipeline
// with an error.
type Stage func(ctx context.Context, st GuardState) (GuardState, error)

// Pipeline runs stages in order and stops at the first failure.
type Pipeline []Stage

// Run executes p against st.
func (p Pipeline) Run(ctx context.Context, st GuardState) (GuardState, error) {
	for _, stage := range p {
		var err error
		st, err = stage(ctx, st)
		if err != nil {
			return st, err
		}
	}
	return st, nil
}

// ExtractBearer requires an "Authorization: Bearer <token>" header.
func ExtractBearer(_ context.Context, st GuardState) (GuardState, error) {
	token, ok := strings.CutPrefix(st.Header, bearerPrefix)
	token = strings.TrimSpace(token)
	if !ok || token == "" {
		return st, shared.NewError(shared.ErrUnauthenticated, "You are not logged in! Please log in to get access.")
	}
	st.Token = token
	return st, nil
}

// VerifyToken checks the token signature and expiry.
func VerifyToken(tokens TokenVerifier) Stage {
	return func(_ context.Context, st GuardState) (GuardState, error) {
		claims, err := tokens.Verify(st.Token)
		if err != nil {
			return st, shared.WrapError(shared.ErrUnauthenticated, shared.UserSafeMessage(err), err)
		}
		st.Claims = claims
		return st, nil
	}
}

// ResolveUser loads the token subject. A deleted user is unauthenticated.
func ResolveUser(finder UserResolver) Stage {
	return func(ctx context.Context, st GuardState) (GuardState, error) {
		u, err := finder.FindByID(ctx, st.Claims.UserID)
		if errors.Is(err, users.ErrNotFound) {
			return st, shared.WrapError(shared.ErrUnauthenticated, "The user belonging to this token no longer exists.", err)
		}
		if err != nil {
			return st, fmt.Errorf("auth: resolve token subject: %w", err)
		}
		st.User = u
		return st, nil
	}
}

// RejectStale fails tokens issued before the user's last password change.
func RejectStale(_ context.Context, st GuardState) (GuardState, error) {
	if st.User.ChangedPasswordSince(st.Claims.IssuedAt) {
		return st, shared.NewError(shared.ErrStaleSession, "User recently changed password! Please log in again.")
	}
	return st, nil
}

// Guard authenticates requests carrying a bearer session token.
type Guard struct {
	pipeline Pipeline
	logger   *slog.Logger
	events   EventRecorder
}

// NewGuard builds a Guard running ExtractBearer, VerifyToken, ResolveUser
// and RejectStale in that order.
func NewGuard(logger *slog.Logger, tokens TokenVerifier, finder UserResolver, events EventRecorder) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{
		pipeline: Pipeline{ExtractBearer, VerifyToken(tokens), ResolveUser(finder), RejectStale},
		logger:   logger,
		events:   recorderOrNop(events),
	}
}

// Authenticate resolves the user identified by an Authorization header value.
func (g *Guard) Authenticate(ctx context.Context, header string) (*users.User, error) {
	st, err := g.pipeline.Run(ctx, GuardState{Header: header})
	if err != nil {
		return nil, err
	}
	return st.User, nil
}

// Protect is chi middleware that rejects unauthenticated requests and
// attaches the current user to the request context.
func (g *Guard) Protect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, err := g.Authenticate(r.Context(), r.Header.Get("Authorization"))
		if err != nil {
			g.events.AuthEvent(EventGuard, guardOutcome(err))
			if httpx.StatusFor(err) >= http.StatusInternalServerError {
				g.logger.Error("guard failed", slog.Any("error", err))
			}
			httpx.RespondError(w, err)
			return
		}
		g.events.AuthEvent(EventGuard, OutcomeSuccess)
		next.ServeHTTP(w, r.WithContext(users.ContextWithUser(r.Context(), u)))
	})
}

func guardOutcome(err error) string {
	switch {
	case errors.Is(err, shared.ErrStaleSession):
		return OutcomeStale
	case errors.Is(err, shared.ErrUnauthenticated):
		return OutcomeUnauthenticated
	default:
		return OutcomeFailure
	}
}
