// Package narrative generates story text through an eino prompt chain.
package narrative

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"

	"github.com/narravox/narravox/backend/internal/model/story"
	"github.com/narravox/narravox/backend/internal/retry"
)

const serviceName = "narrative"

var (
	// ErrUnauthorized means the provider rejected the configured key.
	ErrUnauthorized = errors.New("narrative provider rejected credentials")
	// ErrUnavailable means generation failed after every retry.
	ErrUnavailable = errors.New("narrative provider unavailable")
	// ErrEmptyCompletion is a retryable error for responses without text.
	ErrEmptyCompletion = errors.New("narrative provider returned no text")
)

var statusPattern = regexp.MustCompile(`(?i)status(?:\s*code)?\s*[:=]?\s*(\d{3})`)

// Observer receives one record per logical generation call.
type Observer interface {
	ObserveUpstream(service, outcome string, attempts int, elapsed time.Duration)
}

// Usage reports token consumption for one generation.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// Generation is the text produced by one successful call.
type Generation struct {
	Text     string `json:"text"`
	Model    string `json:"model"`
	Attempts int    `json:"attempts"`
	Usage    Usage  `json:"usage"`
}

// Options tunes the service beyond the chat model itself.
type Options struct {
	ModelName         string
	Policy            retry.Policy
	BranchTemperature float32
	BranchMaxTokens   int
}

// Service runs the storytelling chain.
type Service struct {
	chain    compose.Runnable[map[string]any, *schema.Message]
	opts     Options
	log      zerolog.Logger
	observer Observer
}

// NewService compiles the prompt chain around chatModel.
func NewService(ctx context.Context, chatModel model.BaseChatModel, opts Options, log zerolog.Logger) (*Service, error) {
	if chatModel == nil {
		return nil, errors.New("chat model is required")
	}

	template := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(template)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile narrative chain: %w", err)
	}

	return &Service{chain: runnable, opts: opts, log: log}, nil
}

// WithObserver attaches a metrics observer.
func (s *Service) WithObserver(o Observer) *Service {
	s.observer = o
	return s
}

// ModelName returns the configured model identifier.
func (s *Service) ModelName() string {
	return s.opts.ModelName
}

// Opener writes the first part of a story.
func (s *Service) Opener(ctx context.Context, storyPrompt, culturalContext string) (Generation, error) {
	return s.generate(ctx, "opener", chainInput(openerSystemPrompt, nil, openerQuery(storyPrompt, culturalContext)))
}

// Continue extends the story with the user's input, using the tail of history as context.
func (s *Service) Continue(ctx context.Context, history []story.Turn, input, culturalContext string) (Generation, error) {
	return s.generate(ctx, "continue", chainInput(continueSystemPrompt, historyFromTurns(history), continueQuery(input, culturalContext)))
}

// Branches asks for three alternative continuations. Unparseable output yields FallbackBranches.
func (s *Service) Branches(ctx context.Context, storyText, culturalContext string) ([]string, error) {
	var callOpts []compose.Option
	modelOpts := make([]model.Option, 0, 2)
	if s.opts.BranchTemperature > 0 {
		modelOpts = append(modelOpts, model.WithTemperature(s.opts.BranchTemperature))
	}
	if s.opts.BranchMaxTokens > 0 {
		modelOpts = append(modelOpts, model.WithMaxTokens(s.opts.BranchMaxTokens))
	}
	if len(modelOpts) > 0 {
		callOpts = append(callOpts, compose.WithChatModelOption(modelOpts...))
	}

	gen, err := s.generate(ctx, "branches", chainInput(branchSystemPrompt, nil, branchQuery(storyText, culturalContext)), callOpts...)
	if err != nil {
		return nil, err
	}
	return parseBranches(gen.Text), nil
}

// StreamOpener streams an opener. Only opening the stream is retried.
func (s *Service) StreamOpener(ctx context.Context, storyPrompt, culturalContext string) (*schema.StreamReader[*schema.Message], error) {
	return s.stream(ctx, "opener", chainInput(openerSystemPrompt, nil, openerQuery(storyPrompt, culturalContext)))
}

// StreamContinue streams a continuation. Only opening the stream is retried.
func (s *Service) StreamContinue(ctx context.Context, history []story.Turn, input, culturalContext string) (*schema.StreamReader[*schema.Message], error) {
	return s.stream(ctx, "continue", chainInput(continueSystemPrompt, historyFromTurns(history), continueQuery(input, culturalContext)))
}

func (s *Service) generate(ctx context.Context, op string, input map[string]any, callOpts ...compose.Option) (Generation, error) {
	started := time.Now()
	var response *schema.Message

	attempts, err := retry.Do(ctx, s.opts.Policy, func(ctx context.Context) error {
		msg, err := s.chain.Invoke(ctx, input, callOpts...)
		if err != nil {
			return classify(err)
		}
		if msg == nil || strings.TrimSpace(msg.Content) == "" {
			return ErrEmptyCompletion
		}
		response = msg
		return nil
	}, s.notify(op))

	err = s.finish(ctx, op, attempts, started, err)
	if err != nil {
		return Generation{}, err
	}

	gen := Generation{
		Text:     strings.TrimSpace(response.Content),
		Model:    s.opts.ModelName,
		Attempts: attempts,
	}
	if response.ResponseMeta != nil && response.ResponseMeta.Usage != nil {
		gen.Usage = Usage{
			PromptTokens:     response.ResponseMeta.Usage.PromptTokens,
			CompletionTokens: response.ResponseMeta.Usage.CompletionTokens,
			TotalTokens:      response.ResponseMeta.Usage.TotalTokens,
		}
	}

	s.log.Debug().Str("op", op).Int("attempts", attempts).Int("length", len(gen.Text)).Msg("narrative generated")
	return gen, nil
}

func (s *Service) stream(ctx context.Context, op string, input map[string]any) (*schema.StreamReader[*schema.Message], error) {
	started := time.Now()
	var reader *schema.StreamReader[*schema.Message]

	// The reader outlives the attempt, so it runs under the caller's context only.
	policy := s.opts.Policy
	policy.AttemptTimeout = 0

	attempts, err := retry.Do(ctx, policy, func(ctx context.Context) error {
		sr, err := s.chain.Stream(ctx, input)
		if err != nil {
			return classify(err)
		}
		reader = sr
		return nil
	}, s.notify(op))

	if err = s.finish(ctx, op, attempts, started, err); err != nil {
		return nil, err
	}
	return reader, nil
}

func (s *Service) notify(op string) retry.Notify {
	return func(attempt int, err error, wait time.Duration) {
		s.log.Warn().Err(err).Str("op", op).Int("attempt", attempt).Dur("wait", wait).Msg("narrative call failed, retrying")
	}
}

// finish maps the retry result onto the package's sentinel errors and records the call.
func (s *Service) finish(ctx context.Context, op string, attempts int, started time.Time, err error) error {
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrUnauthorized):
		outcome = "unauthorized"
	case ctx.Err() != nil && retry.IsContextError(err):
		outcome = "cancelled"
	default:
		outcome = "unavailable"
		err = fmt.Errorf("%w: %s: %w", ErrUnavailable, op, &retry.ExhaustedError{Attempts: attempts, Err: err})
	}
	if s.observer != nil {
		s.observer.ObserveUpstream(serviceName, outcome, attempts, time.Since(started))
	}
	if err != nil && outcome != "cancelled" {
		s.log.Error().Err(err).Str("op", op).Int("attempts", attempts).Msg("narrative call failed")
	}
	return err
}

// classify marks errors that retrying cannot fix as permanent.
func classify(err error) error {
	if errors.Is(err, context.Canceled) {
		return retry.Permanent(err)
	}
	switch code := StatusCode(err); {
	case code == 401 || code == 403:
		return retry.Permanent(fmt.Errorf("%w: %v", ErrUnauthorized, err))
	case code == 400 || code == 404 || code == 422:
		return retry.Permanent(err)
	default:
		return err
	}
}

// StatusCode pulls an HTTP status out of a provider error message, or returns 0.
func StatusCode(err error) int {
	if err == nil {
		return 0
	}
	match := statusPattern.FindStringSubmatch(err.Error())
	if match == nil {
		return 0
	}
	code, convErr := strconv.Atoi(match[1])
	if convErr != nil {
		return 0
	}
	return code
}

func chainInput(system string, history []*schema.Message, query string) map[string]any {
	return map[string]any{
		"system":  system,
		"history": history,
		"query":   query,
	}
}
