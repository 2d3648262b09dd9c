package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	ctxAuth "github.com/MrEthical07/ctxAuth"
)

const (
	msgCodeInvalid  = "Verification code invalid or expired"
	msgInternal     = "Internal server error"
	msgUnauthorized = "Unauthorized"
)

type messageResponse struct {
	Message string `json:"message"`
}

// FieldError is one entry of a 422 response.
type FieldError struct {
	Location string `json:"location"`
	Param    string `json:"param"`
	Msg      string `json:"msg"`
}

type validationResponse struct {
	Errors []FieldError `json:"errors"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, messageResponse{Message: message})
}

func writeValidation(w http.ResponseWriter, errs []FieldError) {
	writeJSON(w, http.StatusUnprocessableEntity, validationResponse{Errors: errs})
}

// StatusFor maps an engine error to an HTTP status and client message.
func StatusFor(err error) (int, string) {
	switch {
	case err == nil:
		return http.StatusOK, ""
	case errors.Is(err, ctxAuth.ErrUnauthenticated), errors.Is(err, ctxAuth.ErrTokenInvalid):
		return http.StatusUnauthorized, msgUnauthorized
	case errors.Is(err, ctxAuth.ErrContextBlocked):
		return http.StatusForbidden, "This login context has been blocked"
	case errors.Is(err, ctxAuth.ErrEmailUnverified):
		return http.StatusForbidden, "Email not verified"
	case errors.Is(err, ctxAuth.ErrInvalidTransition):
		return http.StatusConflict, "Context cannot change to the requested state"
	case errors.Is(err, ctxAuth.ErrEmailAlreadyVerified):
		return http.StatusBadRequest, "Email already verified"
	case ctxAuth.IsChallengeFailure(err):
		return http.StatusBadRequest, msgCodeInvalid
	case errors.Is(err, ctxAuth.ErrInvalidContextKind):
		return http.StatusBadRequest, "Invalid context type"
	case errors.Is(err, ctxAuth.ErrContextNotFound):
		return http.StatusNotFound, "Context not found"
	case errors.Is(err, ctxAuth.ErrUserNotFound):
		return http.StatusNotFound, "User not found"
	default:
		return http.StatusInternalServerError, msgInternal
	}
}

// writeError answers with the status from StatusFor and logs server-side failures.
func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.WithError(err).WithField("path", r.URL.Path).Error("auth request failed")
	}
	writeMessage(w, status, msg)
}
