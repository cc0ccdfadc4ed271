package auth

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tourbook/tourbook/internal/platform/httpx"
	"github.com/tourbook/tourbook/internal/shared"
	"github.com/tourbook/tourbook/internal/users"
)

// Handler wires HTTP endpoints for signup and login.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/signup", h.handleSignup)
	r.Post("/login", h.handleLogin)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signupResponse struct {
	Status string      `json:"status"`
	Token  string      `json:"token"`
	User   *users.User `json:"user"`
}

type loginResponse struct {
	Status string `json:"status"`
	Token  string `json:"token"`
}

var errBadBody = shared.NewError(shared.ErrValidation, "Invalid request body")

func (h *Handler) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req users.NewUser
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, errBadBody)
		return
	}
	u, token, err := h.service.Signup(r.Context(), req)
	if err != nil {
		h.fail(w, "signup", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, signupResponse{Status: "signedUp", Token: token, User: u})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, errBadBody)
		return
	}
	token, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(w, "login", err)
		return
	}
	httpx.JSON(w, http.StatusOK, loginResponse{Status: "loggedIn", Token: token})
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if httpx.StatusFor(err) >= http.StatusInternalServerError {
		h.logger.Error(op+" failed", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
