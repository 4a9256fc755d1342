// Package config loads service configuration from the environment.
package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/joho/godotenv"

	"github.com/narravox/narravox/backend/internal/retry"
)

// ErrMissingLLMKey means no language model credentials were configured.
var ErrMissingLLMKey = errors.New("language model credentials are not configured")

// Config aggregates every setting of the service.
type Config struct {
	Server  ServerConfig
	LLM     LLMConfig
	Culture CultureConfig
	Retry   RetryConfig
	Session SessionConfig
	Share   ShareConfig
	Log     LogConfig
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Port             string        `env:"PORT" envDefault:"8080"`
	Addr             string        `env:"-"`
	RateLimitEnabled bool          `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	AllowedOrigins   []string      `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
	ShutdownTimeout  time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// LLMConfig describes the story-writing model.
type LLMConfig struct {
	Provider          string        `env:"LLM_PROVIDER" envDefault:"openai"`
	APIKey            string        `env:"PERPLEXITY_API_KEY"`
	BaseURL           string        `env:"LLM_BASE_URL" envDefault:"https://api.perplexity.ai"`
	Model             string        `env:"LLM_MODEL" envDefault:"sonar-pro"`
	Temperature       float32       `env:"LLM_TEMPERATURE" envDefault:"0.7"`
	MaxTokens         int           `env:"LLM_MAX_TOKENS" envDefault:"300"`
	BranchTemperature float32       `env:"LLM_BRANCH_TEMPERATURE" envDefault:"0.8"`
	BranchMaxTokens   int           `env:"LLM_BRANCH_MAX_TOKENS" envDefault:"200"`
	Timeout           time.Duration `env:"HTTP_TIMEOUT" envDefault:"30s"`
	Ark               ArkConfig     `envPrefix:"ARK_"`
}

// ArkConfig holds Volcengine Ark credentials, used when LLM_PROVIDER=ark.
type ArkConfig struct {
	APIKey    string `env:"API_KEY"`
	AccessKey string `env:"ACCESS_KEY"`
	SecretKey string `env:"SECRET_KEY"`
	Model     string `env:"MODEL"`
	BaseURL   string `env:"BASE_URL" envDefault:"https://ark.cn-beijing.volces.com/api/v3"`
	Region    string `env:"REGION" envDefault:"cn-beijing"`
}

// CultureConfig describes the cultural-affinity API.
type CultureConfig struct {
	APIKey  string `env:"QLOO_API_KEY"`
	BaseURL string `env:"QLOO_BASE_URL" envDefault:"https://hackathon.api.qloo.com"`
}

// RetryConfig bounds retries against both upstream services.
type RetryConfig struct {
	Attempts       int           `env:"RETRY_ATTEMPTS" envDefault:"3"`
	Backoff        time.Duration `env:"RETRY_BACKOFF" envDefault:"1s"`
	AttemptTimeout time.Duration `env:"HTTP_TIMEOUT" envDefault:"30s"`
}

// SessionConfig selects and tunes the session store.
type SessionConfig struct {
	MaxTurns int           `env:"STORY_MAX_TURNS" envDefault:"15"`
	Store    string        `env:"SESSION_STORE" envDefault:"memory"`
	TTL      time.Duration `env:"SESSION_TTL" envDefault:"2h"`
	Sweep    string        `env:"SESSION_SWEEP" envDefault:"@every 5m"`
	RedisURL string        `env:"REDIS_URL"`
}

// ShareConfig configures published stories and the starter catalogue.
type ShareConfig struct {
	ArchivePath  string `env:"ARCHIVE_PATH" envDefault:"narravox_shares.db"`
	BaseURL      string `env:"SHARE_BASE_URL" envDefault:"https://narravox.onrender.com"`
	StartersFile string `env:"STARTERS_FILE"`
}

// LogConfig configures the global logger.
type LogConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

// Load reads .env if present, then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return parse(env.Options{})
}

// LoadFrom parses configuration from vars instead of the process environment.
func LoadFrom(vars map[string]string) (*Config, error) {
	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	addr, err := listenAddr(cfg.Server.Port)
	if err != nil {
		return nil, err
	}
	cfg.Server.Addr = addr

	cfg.LLM.Provider = strings.ToLower(strings.TrimSpace(cfg.LLM.Provider))
	if cfg.LLM.Provider != "openai" && cfg.LLM.Provider != "ark" {
		return nil, fmt.Errorf("invalid LLM_PROVIDER value %q", cfg.LLM.Provider)
	}
	cfg.Session.Store = strings.ToLower(strings.TrimSpace(cfg.Session.Store))
	switch cfg.Session.Store {
	case "memory":
	case "redis":
		if strings.TrimSpace(cfg.Session.RedisURL) == "" {
			return nil, fmt.Errorf("SESSION_STORE=redis requires REDIS_URL")
		}
	default:
		return nil, fmt.Errorf("invalid SESSION_STORE value %q", cfg.Session.Store)
	}
	if cfg.Retry.Attempts < 1 {
		return nil, fmt.Errorf("invalid RETRY_ATTEMPTS value %d", cfg.Retry.Attempts)
	}
	if cfg.Session.MaxTurns < 1 {
		return nil, fmt.Errorf("invalid STORY_MAX_TURNS value %d", cfg.Session.MaxTurns)
	}
	return &cfg, nil
}

// listenAddr accepts "8080", ":8080" or "127.0.0.1:8080".
func listenAddr(port string) (string, error) {
	port = strings.TrimSpace(port)
	if port == "" {
		port = "8080"
	}
	if strings.Contains(port, ":") {
		return port, nil
	}
	if strings.Contains(port, " ") {
		return "", fmt.Errorf("invalid PORT value: %q", port)
	}
	return ":" + port, nil
}

// Policy converts the retry settings.
func (c RetryConfig) Policy() retry.Policy {
	return retry.Policy{
		Attempts:       c.Attempts,
		Backoff:        c.Backoff,
		AttemptTimeout: c.AttemptTimeout,
	}
}

// Enabled reports whether the cultural-affinity API key is set.
func (c CultureConfig) Enabled() bool {
	return strings.TrimSpace(c.APIKey) != ""
}

// Enabled reports whether the selected provider has credentials.
func (c LLMConfig) Enabled() bool {
	if c.Provider == "ark" {
		return c.Ark.Model != "" && (c.Ark.APIKey != "" || (c.Ark.AccessKey != "" && c.Ark.SecretKey != ""))
	}
	return strings.TrimSpace(c.APIKey) != "" && c.Model != ""
}

// ModelName returns the model identifier of the selected provider.
func (c LLMConfig) ModelName() string {
	if c.Provider == "ark" {
		return c.Ark.Model
	}
	return c.Model
}

// NewChatModel creates the chat model of the selected provider.
func (c LLMConfig) NewChatModel(ctx context.Context) (model.BaseChatModel, error) {
	if !c.Enabled() {
		return nil, ErrMissingLLMKey
	}

	temperature := c.Temperature
	maxTokens := c.MaxTokens

	if c.Provider == "ark" {
		return ark.NewChatModel(ctx, &ark.ChatModelConfig{
			BaseURL:     c.Ark.BaseURL,
			Region:      c.Ark.Region,
			APIKey:      c.Ark.APIKey,
			AccessKey:   c.Ark.AccessKey,
			SecretKey:   c.Ark.SecretKey,
			Model:       c.Ark.Model,
			MaxTokens:   &maxTokens,
			Temperature: &temperature,
		})
	}

	return openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:      c.APIKey,
		BaseURL:     c.BaseURL,
		Model:       c.Model,
		MaxTokens:   &maxTokens,
		Temperature: &temperature,
		Timeout:     c.Timeout,
	})
}
