package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	exporthandler "github.com/narravox/narravox/backend/internal/handler/export"
	"github.com/narravox/narravox/backend/internal/handler/live"
	starterhandler "github.com/narravox/narravox/backend/internal/handler/starter"
	storyhandler "github.com/narravox/narravox/backend/internal/handler/story"
	"github.com/narravox/narravox/backend/internal/handler/stream"
	"github.com/narravox/narravox/backend/internal/metrics"
	"github.com/narravox/narravox/backend/internal/middleware"
	"github.com/narravox/narravox/backend/internal/model/starter"
	storyservice "github.com/narravox/narravox/backend/internal/service/story"
	"github.com/narravox/narravox/backend/pkg/utils"
)

// Deps are the services the router exposes.
type Deps struct {
	Story          *storyservice.Service
	Starters       starter.Store
	Archive        exporthandler.Archive
	Metrics        *metrics.Metrics
	Log            zerolog.Logger
	ShareBaseURL   string
	AllowedOrigins []string
	RateLimit      bool
}

// NewRouter wires HTTP routes to core services.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(d.Log.With().Str("component", "http").Logger(), d.Metrics))
	r.Use(chimw.Recoverer)
	r.Use(middleware.CORS(d.AllowedOrigins))

	r.Route("/api", func(api chi.Router) {
		api.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})
		if d.Metrics != nil {
			api.Method(http.MethodGet, "/metrics", d.Metrics.Handler())
		}

		starterhandler.New(d.Starters).RegisterRoutes(api)
		storyhandler.New(d.Story, d.Log.With().Str("component", "story").Logger(), d.RateLimit).RegisterRoutes(api)
		exporthandler.New(d.Story.Sessions(), d.Archive, d.ShareBaseURL, d.Log.With().Str("component", "export").Logger()).RegisterRoutes(api)
		stream.New(d.Story, d.Log.With().Str("component", "stream").Logger()).RegisterRoutes(api)
		live.New(d.Story, d.Log.With().Str("component", "live").Logger(), d.RateLimit).RegisterRoutes(api)
	})

	return r
}
