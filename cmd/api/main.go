package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/narravox/narravox/backend/internal/config"
	"github.com/narravox/narravox/backend/internal/handler"
	exporthandler "github.com/narravox/narravox/backend/internal/handler/export"
	"github.com/narravox/narravox/backend/internal/logger"
	"github.com/narravox/narravox/backend/internal/metrics"
	"github.com/narravox/narravox/backend/internal/model/starter"
	"github.com/narravox/narravox/backend/internal/service/archive"
	"github.com/narravox/narravox/backend/internal/service/culture"
	"github.com/narravox/narravox/backend/internal/service/narrative"
	"github.com/narravox/narravox/backend/internal/service/session"
	"github.com/narravox/narravox/backend/internal/service/story"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLog, err := logger.Init(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to configure logger")
	}

	m := metrics.New()

	if !cfg.LLM.Enabled() {
		appLog.Fatal().Err(config.ErrMissingLLMKey).Str("provider", cfg.LLM.Provider).Msg("cannot start without a story model")
	}
	chatModel, err := cfg.LLM.NewChatModel(ctx)
	if err != nil {
		appLog.Fatal().Err(err).Msg("failed to create chat model")
	}
	narrator, err := narrative.NewService(ctx, chatModel, narrative.Options{
		ModelName:         cfg.LLM.ModelName(),
		Policy:            cfg.Retry.Policy(),
		BranchTemperature: cfg.LLM.BranchTemperature,
		BranchMaxTokens:   cfg.LLM.BranchMaxTokens,
	}, logger.For("narrative"))
	if err != nil {
		appLog.Fatal().Err(err).Msg("failed to initialise narrative service")
	}
	narrator.WithObserver(m)
	appLog.Info().Str("provider", cfg.LLM.Provider).Str("model", narrator.ModelName()).Msg("narrative service ready")

	// A client without a key answers ErrDisabled, which the story service treats as silent.
	cultureClient := culture.NewClient(culture.Config{
		APIKey:  cfg.Culture.APIKey,
		BaseURL: cfg.Culture.BaseURL,
		Policy:  cfg.Retry.Policy(),
	}, logger.For("culture")).WithObserver(m)
	if !cfg.Culture.Enabled() {
		appLog.Warn().Msg("QLOO_API_KEY not set, stories will be generated without cultural enrichment")
	}

	store, closeStore, err := openSessionStore(ctx, cfg.Session)
	if err != nil {
		appLog.Fatal().Err(err).Str("store", cfg.Session.Store).Msg("failed to open session store")
	}
	defer closeStore()
	sessions := session.NewService(store, cfg.Session.MaxTurns, logger.For("session")).WithGauge(m)

	janitor, err := session.NewJanitor(sessions, cfg.Session.Sweep, logger.For("janitor"))
	if err != nil {
		appLog.Fatal().Err(err).Msg("failed to schedule session sweep")
	}
	janitor.Start()

	starters, err := loadStarters(cfg.Share.StartersFile, appLog)
	if err != nil {
		appLog.Fatal().Err(err).Msg("failed to load story starters")
	}

	// Sharing degrades to session-scoped links when the archive cannot be opened.
	var shares exporthandler.Archive
	if shareStore, err := archive.Open(cfg.Share.ArchivePath); err != nil {
		appLog.Warn().Err(err).Str("path", cfg.Share.ArchivePath).Msg("share archive unavailable")
	} else {
		defer shareStore.Close()
		shares = shareStore
	}

	storySvc := story.NewService(sessions, narrator, cultureClient, starters, logger.For("story")).WithRecorder(m)

	router := handler.NewRouter(handler.Deps{
		Story:          storySvc,
		Starters:       starters,
		Archive:        shares,
		Metrics:        m,
		Log:            appLog,
		ShareBaseURL:   cfg.Share.BaseURL,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RateLimit:      cfg.Server.RateLimitEnabled,
	})

	startServer(ctx, cfg.Server, router, appLog)

	stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	janitor.Stop(stopCtx)
}

func openSessionStore(ctx context.Context, cfg config.SessionConfig) (session.Store, func(), error) {
	if cfg.Store != "redis" {
		return session.NewMemoryStore(cfg.TTL), func() {}, nil
	}
	client, err := session.DialRedis(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	return session.NewRedisStore(client, cfg.TTL), func() { _ = client.Close() }, nil
}

func loadStarters(path string, appLog zerolog.Logger) (*starter.MemoryStore, error) {
	if path == "" {
		return starter.NewMemoryStore(starter.Seed(), starter.SurprisePrompts()), nil
	}
	store, err := starter.LoadFile(path)
	if err != nil {
		return nil, err
	}
	appLog.Info().Str("path", path).Int("starters", len(store.List())).Msg("story starters loaded")
	return store, nil
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, appLog zerolog.Logger) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	appLog.Info().Str("addr", serverCfg.Addr).Msg("Narravox backend listening")
	if err := runServer(ctx, srv, serverCfg.ShutdownTimeout); err != nil {
		appLog.Fatal().Err(err).Msg("server error")
	}
	appLog.Info().Msg("server stopped")
}

func runServer(ctx context.Context, srv *http.Server, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
