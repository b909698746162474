// internal/catalog/handler.go
package catalog

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"bookrec/internal/apperr"
	"bookrec/internal/httpx"
)

// AdminCheck reports whether the request was made by an admin. The server
// wires it to the membership actor so this package stays free of it.
type AdminCheck func(r *http.Request) bool

type Handler struct {
	service Service
	isAdmin AdminCheck
}

func NewHandler(service Service, isAdmin AdminCheck) *Handler {
	return &Handler{service: service, isAdmin: isAdmin}
}

// Routes mounts the catalog endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/books", h.handleListBooks)
	r.Post("/books", h.handleAddBook)
	r.Get("/books/{id}", h.handleGetBook)
	r.Post("/catalog/reload", h.handleReload)
}

func (h *Handler) requireAdmin(w http.ResponseWriter, r *http.Request, what string) bool {
	if h.isAdmin != nil && h.isAdmin(r) {
		return true
	}
	httpx.WriteError(w, r, apperr.Validation(apperr.ReasonNotAdmin, "%s requires an admin", what))
	return false
}

func (h *Handler) handleListBooks(w http.ResponseWriter, r *http.Request) {
	books, err := h.service.ListBooks(r.Context())
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, books)
}

func (h *Handler) handleAddBook(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r, "adding books") {
		return
	}

	var req AddBookRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	result, err := h.service.AddBook(r.Context(), req)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	status := http.StatusCreated
	if result.Warning() {
		status = http.StatusOK
	}
	httpx.WriteJSON(w, status, result)
}

func (h *Handler) handleGetBook(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	book, err := h.service.GetBook(r.Context(), id)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, book)
}

func (h *Handler) handleReload(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r, "reloading the catalog") {
		return
	}

	if err := h.service.Reload(r.Context()); err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	snap := h.service.Cache().Snapshot()
	httpx.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"books":     snap.Len(),
		"loaded_at": snap.LoadedAt(),
	})
}
