// internal/circulation/handler.go
package circulation

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"bookrec/internal/httpx"
	"bookrec/internal/membership"
)

// LoanRequest names the student and book of an issue or return.
type LoanRequest struct {
	Username string `json:"username"`
	BookID   int64  `json:"book_id"`
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// Routes mounts the circulation endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/issues", h.handleIssue)
	r.Get("/issues", h.handleAllLoans)
	r.Post("/returns", h.handleReturn)
	r.Get("/users/{id}/loans", h.handleUserLoans)
	r.Post("/students/{username}/fines", h.handleSettleFines)
}

func actor(r *http.Request) membership.Actor {
	a, _ := membership.ActorFrom(r.Context())
	return a
}

func (h *Handler) handleIssue(w http.ResponseWriter, r *http.Request) {
	var req LoanRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	result, err := h.service.IssueBook(r.Context(), actor(r), req.Username, req.BookID)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, result)
}

func (h *Handler) handleReturn(w http.ResponseWriter, r *http.Request) {
	var req LoanRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	result, err := h.service.ReturnBook(r.Context(), actor(r), req.Username, req.BookID)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) handleAllLoans(w http.ResponseWriter, r *http.Request) {
	loans, err := h.service.AllActiveLoans(r.Context(), actor(r))
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, loans)
}

func (h *Handler) handleUserLoans(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	loans, err := h.service.ActiveLoans(r.Context(), id)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, loans)
}

func (h *Handler) handleSettleFines(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.SettleFines(r.Context(), actor(r), chi.URLParam(r, "username"))
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, report)
}
