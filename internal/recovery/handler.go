package recovery

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tourbook/tourbook/internal/platform/httpx"
	"github.com/tourbook/tourbook/internal/shared"
)

// TokenIssuer signs session tokens after a successful reset.
type TokenIssuer interface {
	Issue(userID uuid.UUID) (string, error)
}

// EventRecorder counts reset outcomes.
type EventRecorder interface {
	AuthEvent(event, outcome string)
}

// Handler serves the forgot/reset password endpoints.
type Handler struct {
	logger *slog.Logger
	flow   *Flow
	tokens TokenIssuer
	events EventRecorder
}

// NewHandler builds Handler instance. events may be nil.
func NewHandler(logger *slog.Logger, flow *Flow, tokens TokenIssuer, events EventRecorder) *Handler {
	return &Handler{logger: logger, flow: flow, tokens: tokens, events: events}
}

// MountRoutes registers recovery routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/forgotPassword", h.forgotPassword)
	r.Patch("/resetPassword/{token}", h.resetPassword)
}

type forgotRequest struct {
	Email string `json:"email"`
}

type resetRequest struct {
	Password        string `json:"password"`
	PasswordConfirm string `json:"passwordConfirm"`
}

type messageResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type tokenResponse struct {
	Status string `json:"status"`
	Token  string `json:"token"`
}

var errBadBody = shared.NewError(shared.ErrValidation, "Invalid request body")

func (h *Handler) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, errBadBody)
		return
	}
	if err := h.flow.RequestReset(r.Context(), req.Email, OriginFromRequest(r)); err != nil {
		h.record("reset_request", "failure")
		httpx.RespondError(w, err)
		return
	}
	h.record("reset_request", "success")
	httpx.JSON(w, http.StatusOK, messageResponse{Status: "success", Message: "Token sent to email!"})
}

func (h *Handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, errBadBody)
		return
	}
	u, err := h.flow.CompleteReset(r.Context(), chi.URLParam(r, "token"), req.Password, req.PasswordConfirm)
	if err != nil {
		h.record("reset_complete", "failure")
		if httpx.StatusFor(err) >= http.StatusInternalServerError {
			h.logger.Error("reset password failed", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	token, err := h.tokens.Issue(u.ID)
	if err != nil {
		h.logger.Error("issue token after reset", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.record("reset_complete", "success")
	httpx.JSON(w, http.StatusOK, tokenResponse{Status: "passwordReset", Token: token})
}

func (h *Handler) record(event, outcome string) {
	if h.events != nil {
		h.events.AuthEvent(event, outcome)
	}
}
