package app

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/tourbook/tourbook/internal/auth"
	"github.com/tourbook/tourbook/internal/mail"
	"github.com/tourbook/tourbook/internal/observability"
	"github.com/tourbook/tourbook/internal/rbac"
	"github.com/tourbook/tourbook/internal/recovery"
	"github.com/tourbook/tourbook/internal/users"
)

// Deps are the collaborators the API is assembled from.
type Deps struct {
	Logger  *slog.Logger
	Config  *Config
	Backend users.Backend
	Sender  mail.Sender
	Metrics *observability.Metrics
	// Now overrides the clock. Defaults to time.Now.
	Now func() time.Time
}

// NewAPI wires the user store, token service, guard, role gate and
// password reset flow into the HTTP router.
func NewAPI(d Deps) (http.Handler, error) {
	if d.Config == nil || d.Backend == nil || d.Sender == nil {
		return nil, errors.New("app: config, user backend and mail sender are required")
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}

	store := users.NewStore(d.Backend, users.WithBcryptCost(d.Config.BcryptCost), users.WithClock(d.Now))
	tokens, err := auth.NewTokenService(auth.TokenConfig{
		Secret: []byte(d.Config.JWTSecret),
		TTL:    d.Config.JWTTTL,
		Now:    d.Now,
	})
	if err != nil {
		return nil, err
	}

	guard := auth.NewGuard(d.Logger, tokens, store, d.Metrics)
	gate := rbac.Middleware{Logger: d.Logger}
	flow := recovery.NewFlow(store, d.Sender, d.Logger, recovery.Config{
		TokenTTL:    d.Config.ResetTokenTTL,
		SendTimeout: d.Config.MailSendTimeout,
		Now:         d.Now,
	})

	return NewRouter(RouterParams{
		Logger:          d.Logger,
		Config:          d.Config,
		AuthHandler:     auth.NewHandler(d.Logger, auth.NewService(store, tokens, d.Metrics)),
		RecoveryHandler: recovery.NewHandler(d.Logger, flow, tokens, d.Metrics),
		UsersHandler:    users.NewHandler(d.Logger, store, guard.Protect, gate.RestrictTo(rbac.Roles(users.RoleAdmin))),
		Metrics:         d.Metrics,
	}), nil
}
