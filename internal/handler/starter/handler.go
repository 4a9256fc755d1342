package starter

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/narravox/narravox/backend/internal/model/starter"
	"github.com/narravox/narravox/backend/pkg/utils"
)

// Handler serves the starter catalogue.
type Handler struct {
	starters starter.Store
}

// New creates the starter handler.
func New(starters starter.Store) *Handler {
	return &Handler{starters: starters}
}

// RegisterRoutes registers the starter routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/starters", h.handleListStarters)
	r.Get("/starters/{id}", h.handleGetStarter)
}

func (h *Handler) handleListStarters(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.starters.List())
}

func (h *Handler) handleGetStarter(w http.ResponseWriter, r *http.Request) {
	item, ok := h.starters.FindByID(chi.URLParam(r, "id"))
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "starter not found")
		return
	}
	utils.RespondJSON(w, http.StatusOK, item)
}
