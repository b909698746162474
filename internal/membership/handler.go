// internal/membership/handler.go
package membership

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"bookrec/internal/apperr"
	"bookrec/internal/httpx"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// Routes mounts the account endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/login", h.handleLogin)
	r.Post("/students", h.handleRegister)
	r.Get("/students", h.handleListStudents)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
		Role     Role   `json:"role"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	if req.Role == "" {
		req.Role = RoleStudent
	}
	if !req.Role.Valid() {
		httpx.WriteError(w, r, apperr.Validation(apperr.ReasonInvalidRole, "unknown role %q", req.Role))
		return
	}

	actor, err := h.service.Authenticate(r.Context(), req.Username, req.Password, req.Role)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, actor)
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	user, err := h.service.Register(r.Context(), req)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, user)
}

func (h *Handler) handleListStudents(w http.ResponseWriter, r *http.Request) {
	if actor, ok := ActorFrom(r.Context()); !ok || !actor.IsAdmin() {
		httpx.WriteError(w, r, apperr.Validation(apperr.ReasonNotAdmin, "listing students requires an admin"))
		return
	}

	users, err := h.service.ListStudents(r.Context())
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, users)
}
