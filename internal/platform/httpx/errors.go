package httpx

import (
	"errors"
	"net/http"

	"github.com/tourbook/tourbook/internal/shared"
)

var kindStatus = []struct {
	kind   error
	status int
}{
	{shared.ErrInvalidCredentials, http.StatusUnauthorized},
	{shared.ErrUnauthenticated, http.StatusUnauthorized},
	{shared.ErrStaleSession, http.StatusUnauthorized},
	{shared.ErrForbidden, http.StatusForbidden},
	{shared.ErrUserNotFound, http.StatusNotFound},
	{shared.ErrEmailDelivery, http.StatusInternalServerError},
	{shared.ErrValidation, http.StatusBadRequest},
	{shared.ErrInvalidToken, http.StatusBadRequest},
}

// StatusFor maps err to an HTTP status code. The declared kind of a
// shared.Error wins over any kind found in its cause chain.
func StatusFor(err error) int {
	var appErr *shared.Error
	if errors.As(err, &appErr) && appErr.Kind != nil {
		if status, ok := statusOfKind(appErr.Kind); ok {
			return status
		}
	}
	for _, ks := range kindStatus {
		if errors.Is(err, ks.kind) {
			return ks.status
		}
	}
	return http.StatusInternalServerError
}

func statusOfKind(kind error) (int, bool) {
	for _, ks := range kindStatus {
		if kind == ks.kind {
			return ks.status, true
		}
	}
	return 0, false
}

// RespondError writes err as an ErrorBody. Errors without a client-safe
// message are reported generically.
func RespondError(w http.ResponseWriter, err error) {
	Fail(w, StatusFor(err), shared.UserSafeMessage(err))
}
