// internal/httpx/respond.go
package httpx

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"bookrec/internal/apperr"
	"bookrec/internal/logging"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Kind    string `json:"kind"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message"`
}

type errorEnvelope struct {
	Error ErrorBody `json:"error"`
}

// WriteJSON encodes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn().Err(err).Msg("encode response")
	}
}

// WriteError answers with the status and tagged body derived from err.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	body := ErrorBody{
		Kind:    apperr.KindOf(err).String(),
		Reason:  string(apperr.ReasonOf(err)),
		Message: err.Error(),
	}

	event := logging.Ctx(r.Context()).Warn()
	if status >= http.StatusInternalServerError {
		event = logging.Ctx(r.Context()).Error()
	}
	event.Err(err).Int("status", status).Str("path", r.URL.Path).Msg("request failed")

	WriteJSON(w, status, errorEnvelope{Error: body})
}

// DecodeJSON reads the request body into v.
func DecodeJSON(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return apperr.Validation(apperr.ReasonInvalidRequest, "request body is required")
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.Validation(apperr.ReasonInvalidRequest, "invalid request body: %v", err)
	}
	return nil
}

// IDParam parses a positive integer URL parameter.
func IDParam(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation(apperr.ReasonInvalidID, "invalid %s %q", name, raw)
	}
	return id, nil
}

// RequestID tags the request context with the incoming or a fresh uuid.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(logging.ContextWithRequestID(r.Context(), id)))
	})
}

// ErrorFromBody rebuilds a tagged error from an error response, for clients.
func ErrorFromBody(status int, body ErrorBody) error {
	kind := apperr.KindUnknown
	for _, k := range []apperr.Kind{
		apperr.KindValidation, apperr.KindNotFound, apperr.KindConflict,
		apperr.KindTransaction, apperr.KindUnavailable,
	} {
		if k.String() == body.Kind {
			kind = k
		}
	}
	if kind == apperr.KindUnknown {
		return fmt.Errorf("unexpected status code %d: %s", status, body.Message)
	}
	return &apperr.Error{Kind: kind, Reason: apperr.Reason(body.Reason), Message: body.Message}
}
