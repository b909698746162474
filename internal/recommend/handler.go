// internal/recommend/handler.go
package recommend

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"bookrec/internal/apperr"
	"bookrec/internal/history"
	"bookrec/internal/httpx"
)

// EventSource lists a user's raw history.
type EventSource interface {
	ForUser(ctx context.Context, userID int64) ([]history.Event, error)
}

type Handler struct {
	engine *Engine
	events EventSource
}

func NewHandler(engine *Engine, events EventSource) *Handler {
	return &Handler{engine: engine, events: events}
}

// Routes mounts the recommendation endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/users/{id}/recommendations", h.handleRecommendations)
	r.Get("/users/{id}/history", h.handleHistory)
}

func (h *Handler) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	entries, err := h.engine.Recommendations(r.Context(), id)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, entries)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	events, err := h.events.ForUser(r.Context(), id)
	if err != nil {
		httpx.WriteError(w, r, apperr.Store(err, "read history"))
		return
	}
	if events == nil {
		events = []history.Event{}
	}
	httpx.WriteJSON(w, http.StatusOK, events)
}
