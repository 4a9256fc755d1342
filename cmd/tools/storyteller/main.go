// Command storyteller plays a Narravox story in the terminal against the configured upstreams.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/narravox/narravox/backend/internal/config"
	"github.com/narravox/narravox/backend/internal/logger"
	"github.com/narravox/narravox/backend/internal/model/starter"
	"github.com/narravox/narravox/backend/internal/service/culture"
	"github.com/narravox/narravox/backend/internal/service/narrative"
	"github.com/narravox/narravox/backend/internal/service/session"
	"github.com/narravox/narravox/backend/internal/service/story"
)

var (
	verbose  bool
	maxTurns int
	timeout  time.Duration
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "storyteller",
		Short: "Play a culturally enriched interactive story in the terminal",
		Long: `storyteller drives the same orchestrator as the HTTP API, using the
language model and cultural API configured in the environment (.env is read
when present). Sessions live in memory and end with the process.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().BoolVar(&verbose, "verbose", false, "Log upstream calls to stderr")
	root.PersistentFlags().IntVar(&maxTurns, "max-turns", 0, "Override STORY_MAX_TURNS")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "Upper bound for each interaction")

	root.AddCommand(newPlayCmd())
	root.AddCommand(newProfileCmd())
	root.AddCommand(newStartersCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error:"), err)
		os.Exit(1)
	}
}

type app struct {
	svc      *story.Service
	starters *starter.MemoryStore
}

// bootstrap builds an in-process story service from the environment.
func bootstrap(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	level := "warn"
	if verbose {
		level = "debug"
	}
	if _, err := logger.Init(logger.Options{Level: level, Format: "console", Output: os.Stderr}); err != nil {
		return nil, err
	}

	if !cfg.LLM.Enabled() {
		return nil, config.ErrMissingLLMKey
	}
	chatModel, err := cfg.LLM.NewChatModel(ctx)
	if err != nil {
		return nil, err
	}
	narrator, err := narrative.NewService(ctx, chatModel, narrative.Options{
		ModelName:         cfg.LLM.ModelName(),
		Policy:            cfg.Retry.Policy(),
		BranchTemperature: cfg.LLM.BranchTemperature,
		BranchMaxTokens:   cfg.LLM.BranchMaxTokens,
	}, logger.For("narrative"))
	if err != nil {
		return nil, err
	}

	cultureClient := culture.NewClient(culture.Config{
		APIKey:  cfg.Culture.APIKey,
		BaseURL: cfg.Culture.BaseURL,
		Policy:  cfg.Retry.Policy(),
	}, logger.For("culture"))

	turns := cfg.Session.MaxTurns
	if maxTurns > 0 {
		turns = maxTurns
	}
	sessions := session.NewService(session.NewMemoryStore(cfg.Session.TTL), turns, zerolog.Nop())

	starters, err := loadCatalogue(cfg.Share.StartersFile)
	if err != nil {
		return nil, err
	}

	return &app{
		svc:      story.NewService(sessions, narrator, cultureClient, starters, logger.For("story")),
		starters: starters,
	}, nil
}

func loadCatalogue(path string) (*starter.MemoryStore, error) {
	if path == "" {
		return starter.NewMemoryStore(starter.Seed(), starter.SurprisePrompts()), nil
	}
	return starter.LoadFile(path)
}
