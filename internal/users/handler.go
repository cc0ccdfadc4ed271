package users

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tourbook/tourbook/internal/platform/httpx"
)

// Lister is the read side used by the admin listing endpoint.
type Lister interface {
	List(ctx context.Context) ([]User, error)
}

// Handler serves account endpoints for authenticated users.
type Handler struct {
	logger    *slog.Logger
	users     Lister
	protect   func(http.Handler) http.Handler
	adminOnly func(http.Handler) http.Handler
}

// NewHandler builds Handler instance. protect must attach the current user
// to the request context; adminOnly runs after it.
func NewHandler(logger *slog.Logger, users Lister, protect, adminOnly func(http.Handler) http.Handler) *Handler {
	return &Handler{logger: logger, users: users, protect: protect, adminOnly: adminOnly}
}

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.protect)
		r.Get("/me", h.me)
		r.Group(func(r chi.Router) {
			r.Use(h.adminOnly)
			r.Get("/", h.listUsers)
		})
	})
}

type meResponse struct {
	Status string `json:"status"`
	User   *User  `json:"user"`
}

type listResponse struct {
	Status  string `json:"status"`
	Results int    `json:"results"`
	Users   []User `json:"users"`
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, meResponse{Status: "success", User: FromContext(r.Context())})
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	list, err := h.users.List(r.Context())
	if err != nil {
		h.logger.Error("list users failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if list == nil {
		list = []User{}
	}
	httpx.JSON(w, http.StatusOK, listResponse{Status: "success", Results: len(list), Users: list})
}
