package web

// errors.go maps service failures to HTTP responses.
//
// The technical error is logged with the request id; the client receives the
// catalogue message from core.MapError so codes stay stable across releases.

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/JonMunkholm/catalogimport/internal/core"
	"github.com/JonMunkholm/catalogimport/internal/logging"
)

var (
	errRateLimited   = errors.New("rate limit exceeded")
	errNoFile        = errors.New("no file provided")
	errMissingActor  = errors.New("missing actor")
	errInvalidBody   = errors.New("invalid request body")
	errInvalidFilter = errors.New("invalid list filter")
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error             string `json:"error"`
	Message           string `json:"message"`
	Action            string `json:"action,omitempty"`
	Code              string `json:"code"`
	ExistingSessionID string `json:"existing_session_id,omitempty"`
}

// statusFor picks the HTTP status of a service error.
func statusFor(err error) int {
	var (
		de *core.DecodeError
		se *core.StateError
		ce *core.ConcurrencyError
	)
	switch {
	case errors.Is(err, core.ErrFileTooLarge), errors.Is(err, core.ErrBatchTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &de):
		if de.Code == core.DecodeFileTooLarge || de.Code == core.DecodeBatchTooLarge {
			return http.StatusRequestEntityTooLarge
		}
		return http.StatusBadRequest
	case errors.As(err, &se), errors.As(err, &ce):
		return http.StatusConflict
	case errors.Is(err, core.ErrSessionNotFound), errors.Is(err, core.ErrSourceUnavailable):
		return http.StatusNotFound
	case errors.Is(err, core.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, errMissingActor):
		return http.StatusUnauthorized
	case errors.Is(err, core.ErrUnknownEntityType),
		errors.Is(err, core.ErrMissingScope),
		errors.Is(err, core.ErrRowNotFound),
		errors.Is(err, core.ErrUnknownField),
		errors.Is(err, errNoFile),
		errors.Is(err, errInvalidBody),
		errors.Is(err, errInvalidFilter):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrTooManyImports):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError logs err and writes its user-facing form.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	userMsg := core.MapError(err)

	logger := logging.FromContext(r.Context())
	attrs := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", userMsg.Code,
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request error", attrs...)
	} else {
		logger.Warn("request rejected", attrs...)
	}

	var ce *core.ConcurrencyError
	if errors.As(err, &ce) && ce.ExistingSessionID != "" {
		respondErrorJSON(w, userMsg, status, ce.ExistingSessionID)
		return
	}
	respondErrorJSON(w, userMsg, status)
}

// respondErrorJSON writes a JSON error response.
func respondErrorJSON(w http.ResponseWriter, msg core.UserMessage, statusCode int, existing ...string) {
	resp := ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	}
	if len(existing) > 0 {
		resp.ExistingSessionID = existing[0]
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(resp)
}
