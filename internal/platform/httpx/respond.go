// Package httpx provides JSON response helpers shared by the HTTP handlers.
package httpx

import (
	"encoding/json"
	"net/http"
)

// Envelope status values. Client errors report "fail", server errors "error".
const (
	StatusFail  = "fail"
	StatusError = "error"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Fail sends an ErrorBody with the envelope status derived from code.
func Fail(w http.ResponseWriter, code int, message string) {
	status := StatusFail
	if code >= http.StatusInternalServerError {
		status = StatusError
	}
	JSON(w, code, ErrorBody{Status: status, Message: message})
}

// DecodeJSON decodes JSON request body into the target struct.
func DecodeJSON(r *http.Request, target any) error {
	return json.NewDecoder(r.Body).Decode(target)
}
