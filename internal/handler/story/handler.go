package story

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/narravox/narravox/backend/internal/handler/apierror"
	"github.com/narravox/narravox/backend/internal/middleware"
	storymodel "github.com/narravox/narravox/backend/internal/model/story"
	storyservice "github.com/narravox/narravox/backend/internal/service/story"
	"github.com/narravox/narravox/backend/pkg/utils"
)

// Handler serves the session and storytelling endpoints.
type Handler struct {
	svc *storyservice.Service
	log zerolog.Logger

	startLimit    func(http.Handler) http.Handler
	continueLimit func(http.Handler) http.Handler
	profileLimit  func(http.Handler) http.Handler
}

// New creates the story handler. With rateLimit set, generation routes are throttled per session.
func New(svc *storyservice.Service, log zerolog.Logger, rateLimit bool) *Handler {
	h := &Handler{svc: svc, log: log}
	if rateLimit {
		h.startLimit = middleware.RateLimit(middleware.NewLimiter(middleware.StartRule))
		h.continueLimit = middleware.RateLimit(middleware.NewLimiter(middleware.ContinueRule))
		h.profileLimit = middleware.RateLimit(middleware.NewLimiter(middleware.ProfileRule))
	} else {
		pass := func(next http.Handler) http.Handler { return next }
		h.startLimit, h.continueLimit, h.profileLimit = pass, pass, pass
	}
	return h
}

// RegisterRoutes registers the session and story routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/sessions", h.handleCreateSession)
	r.Get("/sessions/{id}", h.handleGetSession)
	r.Delete("/sessions/{id}", h.handleDeleteSession)
	r.Post("/sessions/{id}/reset", h.handleReset)

	r.With(h.startLimit).Post("/sessions/{id}/start", h.handleStart)
	r.With(h.startLimit).Post("/sessions/{id}/surprise", h.handleSurprise)
	r.With(h.continueLimit).Post("/sessions/{id}/turns", h.handleContinue)
	r.With(h.continueLimit).Post("/sessions/{id}/branches", h.handleBranches)
	r.With(h.continueLimit).Post("/sessions/{id}/branches/{index}", h.handleChooseBranch)
	r.With(h.continueLimit).Post("/sessions/{id}/enrich", h.handleEnrich)
	r.With(h.profileLimit).Post("/sessions/{id}/profile", h.handleProfile)
}

// SessionView is the GET /sessions/{id} payload.
type SessionView struct {
	Session *storymodel.Session `json:"session"`
	Stats   storymodel.Stats    `json:"stats"`
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.svc.Sessions().CreateSession(r.Context())
	if err != nil {
		apierror.Write(w, h.log, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, SessionView{Session: sess, Stats: sess.Stats()})
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.svc.Sessions().GetSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		apierror.Write(w, h.log, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, SessionView{Session: sess, Stats: sess.Stats()})
}

func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Sessions().DeleteSession(r.Context(), chi.URLParam(r, "id")); err != nil {
		apierror.Write(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	sess, err := h.svc.Sessions().Reset(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		apierror.Write(w, h.log, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, SessionView{Session: sess, Stats: sess.Stats()})
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Prompt string `json:"prompt"`
	}
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondErrorCode(w, http.StatusBadRequest, "invalid_body", "invalid request body")
		return
	}
	out, err := h.svc.Start(r.Context(), chi.URLParam(r, "id"), payload.Prompt)
	h.respondOutcome(w, out, err)
}

func (h *Handler) handleSurprise(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.Surprise(r.Context(), chi.URLParam(r, "id"))
	h.respondOutcome(w, out, err)
}

func (h *Handler) handleContinue(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Input string `json:"input"`
	}
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondErrorCode(w, http.StatusBadRequest, "invalid_body", "invalid request body")
		return
	}
	out, err := h.svc.Continue(r.Context(), chi.URLParam(r, "id"), payload.Input)
	h.respondOutcome(w, out, err)
}

func (h *Handler) handleBranches(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.Branches(r.Context(), chi.URLParam(r, "id"))
	h.respondOutcome(w, out, err)
}

func (h *Handler) handleChooseBranch(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		utils.RespondErrorCode(w, http.StatusBadRequest, "invalid_input", "branch index must be a number")
		return
	}
	out, err := h.svc.ChooseBranch(r.Context(), chi.URLParam(r, "id"), index)
	h.respondOutcome(w, out, err)
}

func (h *Handler) handleEnrich(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.Enrich(r.Context(), chi.URLParam(r, "id"))
	h.respondOutcome(w, out, err)
}

func (h *Handler) handleProfile(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Preferences map[string][]string `json:"preferences"`
	}
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondErrorCode(w, http.StatusBadRequest, "invalid_body", "invalid request body")
		return
	}
	out, err := h.svc.BuildProfile(r.Context(), chi.URLParam(r, "id"), payload.Preferences)
	h.respondOutcome(w, out, err)
}

func (h *Handler) respondOutcome(w http.ResponseWriter, out storyservice.Outcome, err error) {
	if err != nil {
		apierror.Write(w, h.log, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, out)
}
