// Package story orchestrates one storytelling interaction: validation, cultural enrichment,
// narrative generation and recording the turn.
package story

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"

	culturemodel "github.com/narravox/narravox/backend/internal/model/culture"
	storymodel "github.com/narravox/narravox/backend/internal/model/story"
	"github.com/narravox/narravox/backend/internal/retry"
	"github.com/narravox/narravox/backend/internal/service/culture"
	"github.com/narravox/narravox/backend/internal/service/narrative"
	"github.com/narravox/narravox/backend/internal/service/session"
)

var (
	ErrNotStarted     = errors.New("story has not been started")
	ErrAlreadyStarted = errors.New("story has already been started")
	ErrNoBranch       = errors.New("no such branch option")
)

// Narrator generates story text.
type Narrator interface {
	Opener(ctx context.Context, prompt, culturalContext string) (narrative.Generation, error)
	Continue(ctx context.Context, history []storymodel.Turn, input, culturalContext string) (narrative.Generation, error)
	Branches(ctx context.Context, storyText, culturalContext string) ([]string, error)
	StreamOpener(ctx context.Context, prompt, culturalContext string) (*schema.StreamReader[*schema.Message], error)
	StreamContinue(ctx context.Context, history []storymodel.Turn, input, culturalContext string) (*schema.StreamReader[*schema.Message], error)
}

// Culture looks up cultural affinities.
type Culture interface {
	Enrich(ctx context.Context, text string) (culture.Enrichment, error)
	TasteProfile(ctx context.Context, prefs map[string][]string) (culture.Profile, error)
}

// Surprises supplies random story prompts.
type Surprises interface {
	Surprises() []string
}

// Recorder counts turns and notices.
type Recorder interface {
	RecordTurn(kind string)
	RecordNotice(kind string)
}

// Outcome is what one interaction produced.
type Outcome struct {
	SessionID     string                  `json:"sessionId"`
	Turn          *storymodel.Turn        `json:"turn,omitempty"`
	Affinities    []culturemodel.Affinity `json:"affinities"`
	Notices       []storymodel.Notice     `json:"notices"`
	BranchOptions []string                `json:"branchOptions,omitempty"`
	Profile       *culture.Profile        `json:"profile,omitempty"`
	Complete      bool                    `json:"complete"`
	Stats         storymodel.Stats        `json:"stats"`
}

// Service is the storytelling orchestrator.
type Service struct {
	sessions  *session.Service
	narrator  Narrator
	culture   Culture
	surprises Surprises
	recorder  Recorder
	log       zerolog.Logger
	pick      func(n int) int
}

// NewService wires the orchestrator. culture may be nil when enrichment is disabled.
func NewService(sessions *session.Service, narrator Narrator, cultureClient Culture, surprises Surprises, log zerolog.Logger) *Service {
	return &Service{
		sessions:  sessions,
		narrator:  narrator,
		culture:   cultureClient,
		surprises: surprises,
		log:       log,
		pick:      rand.IntN,
	}
}

// WithRecorder attaches a metrics recorder.
func (s *Service) WithRecorder(r Recorder) *Service {
	s.recorder = r
	return s
}

// Sessions exposes the underlying session service.
func (s *Service) Sessions() *session.Service {
	return s.sessions
}

// Start validates the prompt, enriches it and generates the opening turn.
func (s *Service) Start(ctx context.Context, sessionID, prompt string) (Outcome, error) {
	if err := ValidateInput(prompt); err != nil {
		return Outcome{}, err
	}
	sess, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return Outcome{}, err
	}
	if sess.Started() {
		return Outcome{}, ErrAlreadyStarted
	}
	if sess.Complete() {
		return Outcome{}, session.ErrStoryComplete
	}

	prompt = Sanitize(prompt)
	step := s.enrichOpener(ctx, sess, prompt)
	gen, err := s.narrator.Opener(ctx, prompt, step.context)
	return s.record(ctx, sess, step, storymodel.TurnOpener, prompt, gen, err)
}

// Continue appends a turn driven by free user input.
func (s *Service) Continue(ctx context.Context, sessionID, input string) (Outcome, error) {
	if err := ValidateInput(input); err != nil {
		return Outcome{}, err
	}
	return s.continueWith(ctx, sessionID, storymodel.TurnContinuation, Sanitize(input))
}

// ChooseBranch continues the story with one of the stored branch options. index is 1-based.
func (s *Service) ChooseBranch(ctx context.Context, sessionID string, index int) (Outcome, error) {
	sess, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return Outcome{}, err
	}
	if index < 1 || index > len(sess.BranchOptions) {
		return Outcome{}, fmt.Errorf("%w: %d", ErrNoBranch, index)
	}
	return s.continueWith(ctx, sessionID, storymodel.TurnBranch, sess.BranchOptions[index-1])
}

func (s *Service) continueWith(ctx context.Context, sessionID string, kind storymodel.TurnKind, input string) (Outcome, error) {
	sess, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return Outcome{}, err
	}
	if !sess.Started() {
		return Outcome{}, ErrNotStarted
	}
	if sess.Complete() {
		return Outcome{}, session.ErrStoryComplete
	}

	step := s.enrichInput(ctx, sess, input)
	gen, err := s.narrator.Continue(ctx, sess.Turns, input, step.context)
	return s.record(ctx, sess, step, kind, input, gen, err)
}

// Branches generates and stores three alternative continuations.
func (s *Service) Branches(ctx context.Context, sessionID string) (Outcome, error) {
	sess, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return Outcome{}, err
	}
	if !sess.Started() {
		return Outcome{}, ErrNotStarted
	}
	if sess.Complete() {
		return Outcome{}, session.ErrStoryComplete
	}

	options, err := s.narrator.Branches(ctx, sess.StoryText(), sess.CulturalContext)
	if err != nil {
		notice, ok := s.narrativeNotice(err)
		if !ok {
			return Outcome{}, err
		}
		return s.noticeOnly(ctx, sess, notice)
	}

	updated, err := s.sessions.Update(ctx, sessionID, func(sess *storymodel.Session) error {
		s.sessions.SetBranchOptionsLocked(sess, options)
		s.sessions.SetNoticeLocked(sess, nil)
		return nil
	})
	if err != nil {
		return Outcome{}, err
	}
	out := outcomeFor(updated)
	out.BranchOptions = append([]string(nil), options...)
	return out, nil
}

// Enrich looks up culture for the latest turn and merges anything new into the running context.
func (s *Service) Enrich(ctx context.Context, sessionID string) (Outcome, error) {
	sess, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return Outcome{}, err
	}
	last, ok := sess.LastTurn()
	if !ok {
		return Outcome{}, ErrNotStarted
	}

	step := enrichment{context: sess.CulturalContext}
	s.lookup(ctx, &step, strings.TrimSpace(last.UserInput+" "+last.Continuation))

	updated, err := s.sessions.Update(ctx, sessionID, func(sess *storymodel.Session) error {
		s.sessions.AnnotateLocked(sess, last.Number, step.affinities)
		if s.sessions.MergeContextLocked(sess, step.found) {
			s.sessions.AddInsightLocked(sess, fmt.Sprintf("Cultural Discovery (Turn %d)", sess.TurnCount()), "New cultural connections found: "+step.found)
		}
		s.sessions.SetNoticeLocked(sess, lastNotice(step.notices))
		return nil
	})
	if err != nil {
		return Outcome{}, err
	}
	out := outcomeFor(updated)
	out.Affinities = nonNil(step.affinities)
	out.Notices = step.notices
	return out, nil
}

// Surprise starts the story from a random surprise prompt.
func (s *Service) Surprise(ctx context.Context, sessionID string) (Outcome, error) {
	var prompts []string
	if s.surprises != nil {
		prompts = s.surprises.Surprises()
	}
	if len(prompts) == 0 {
		return Outcome{}, fmt.Errorf("%w: no surprise prompts configured", ErrInvalidInput)
	}
	return s.Start(ctx, sessionID, prompts[s.pick(len(prompts))])
}

// BuildProfile stores taste preferences and returns the derived profile.
// An API failure still stores the preferences and returns the preference-only profile with a notice.
func (s *Service) BuildProfile(ctx context.Context, sessionID string, prefs map[string][]string) (Outcome, error) {
	cleaned := sanitizePreferences(prefs)
	if len(cleaned) == 0 {
		return Outcome{}, fmt.Errorf("%w: no valid preferences provided", ErrInvalidInput)
	}
	if _, err := s.sessions.GetSession(ctx, sessionID); err != nil {
		return Outcome{}, err
	}

	var (
		profile culture.Profile
		notices []storymodel.Notice
	)
	if s.culture != nil {
		var err error
		profile, err = s.culture.TasteProfile(ctx, cleaned)
		if err != nil {
			if errors.Is(err, culture.ErrNoEntities) {
				return Outcome{}, fmt.Errorf("%w: no valid preferences provided", ErrInvalidInput)
			}
			if notice, ok := s.cultureNotice(err); ok {
				notices = append(notices, notice)
			}
		}
	}
	if profile.Preferences == nil {
		profile.Preferences = cleaned
		profile.Source = culturemodel.SourceFallback
	}

	updated, err := s.sessions.Update(ctx, sessionID, func(sess *storymodel.Session) error {
		s.sessions.SetPreferencesLocked(sess, cleaned)
		s.sessions.SetNoticeLocked(sess, lastNotice(notices))
		return nil
	})
	if err != nil {
		return Outcome{}, err
	}
	out := outcomeFor(updated)
	out.Profile = &profile
	out.Notices = nonNilNotices(notices)
	return out, nil
}

// StreamTurn starts or continues the story, passing generated text to emit as it arrives.
// Only opening the stream is retried; a failure after that yields a narrative notice and no turn.
func (s *Service) StreamTurn(ctx context.Context, sessionID, input string, emit func(chunk string) error) (Outcome, error) {
	if err := ValidateInput(input); err != nil {
		return Outcome{}, err
	}
	sess, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return Outcome{}, err
	}
	if sess.Complete() {
		return Outcome{}, session.ErrStoryComplete
	}

	input = Sanitize(input)
	var (
		step   enrichment
		kind   storymodel.TurnKind
		stream *schema.StreamReader[*schema.Message]
	)
	if sess.Started() {
		kind = storymodel.TurnContinuation
		step = s.enrichInput(ctx, sess, input)
		stream, err = s.narrator.StreamContinue(ctx, sess.Turns, input, step.context)
	} else {
		kind = storymodel.TurnOpener
		step = s.enrichOpener(ctx, sess, input)
		stream, err = s.narrator.StreamOpener(ctx, input, step.context)
	}
	if err != nil {
		return s.record(ctx, sess, step, kind, input, narrative.Generation{}, err)
	}
	defer stream.Close()

	var text strings.Builder
	for {
		chunk, recvErr := stream.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			s.log.Warn().Err(recvErr).Str("session_id", sessionID).Msg("narrative stream interrupted")
			return s.record(ctx, sess, step, kind, input, narrative.Generation{},
				fmt.Errorf("%w: stream interrupted: %w", narrative.ErrUnavailable, &retry.ExhaustedError{Attempts: 1, Err: recvErr}))
		}
		if chunk == nil || chunk.Content == "" {
			continue
		}
		text.WriteString(chunk.Content)
		if emit != nil {
			if err := emit(chunk.Content); err != nil {
				return Outcome{}, err
			}
		}
	}

	gen := narrative.Generation{Text: strings.TrimSpace(text.String()), Attempts: 1}
	if gen.Text == "" {
		return s.record(ctx, sess, step, kind, input, gen,
			fmt.Errorf("%w: %w", narrative.ErrUnavailable, &retry.ExhaustedError{Attempts: 1, Err: narrative.ErrEmptyCompletion}))
	}
	return s.record(ctx, sess, step, kind, input, gen, nil)
}

// record turns a generation result into a stored turn, or into a single narrative notice.
func (s *Service) record(ctx context.Context, sess *storymodel.Session, step enrichment, kind storymodel.TurnKind, input string, gen narrative.Generation, genErr error) (Outcome, error) {
	if genErr != nil {
		notice, ok := s.narrativeNotice(genErr)
		if !ok {
			return Outcome{}, genErr
		}
		step.notices = append(step.notices, notice)
		return s.noticeOnly(ctx, sess, step.notices...)
	}

	var appended storymodel.Turn
	updated, err := s.sessions.Update(ctx, sess.ID, func(current *storymodel.Session) error {
		if kind == storymodel.TurnOpener && current.Started() {
			return ErrAlreadyStarted
		}
		turn, err := s.sessions.AppendTurnLocked(current, storymodel.Turn{
			Kind:         kind,
			UserInput:    input,
			Continuation: Sanitize(gen.Text),
		})
		if err != nil {
			return err
		}
		appended = turn

		s.sessions.AnnotateLocked(current, turn.Number, step.affinities)
		for _, insight := range step.insights {
			s.sessions.AddInsightLocked(current, insight.Title, insight.Explanation)
		}
		s.sessions.MergeContextLocked(current, step.context)
		s.sessions.SetBranchOptionsLocked(current, nil)
		s.sessions.SetNoticeLocked(current, lastNotice(step.notices))
		return nil
	})
	if err != nil {
		return Outcome{}, err
	}

	if s.recorder != nil {
		s.recorder.RecordTurn(string(kind))
	}
	s.log.Info().
		Str("session_id", sess.ID).
		Int("turn", appended.Number).
		Str("kind", string(kind)).
		Int("attempts", gen.Attempts).
		Int("notices", len(step.notices)).
		Msg("turn recorded")

	out := outcomeFor(updated)
	out.Turn = &appended
	out.Affinities = nonNil(step.affinities)
	out.Notices = nonNilNotices(step.notices)
	return out, nil
}

// noticeOnly stores the last notice without touching the story.
func (s *Service) noticeOnly(ctx context.Context, sess *storymodel.Session, notices ...storymodel.Notice) (Outcome, error) {
	updated, err := s.sessions.Update(ctx, sess.ID, func(current *storymodel.Session) error {
		s.sessions.SetNoticeLocked(current, lastNotice(notices))
		return nil
	})
	if err != nil {
		return Outcome{}, err
	}
	out := outcomeFor(updated)
	out.Notices = nonNilNotices(notices)
	return out, nil
}

// narrativeNotice converts exhausted retries into a notice. Anything else stays an error.
func (s *Service) narrativeNotice(err error) (storymodel.Notice, bool) {
	if !errors.Is(err, narrative.ErrUnavailable) {
		return storymodel.Notice{}, false
	}
	notice := storymodel.Notice{
		Kind:     storymodel.NoticeNarrativeUnavailable,
		Service:  "narrative",
		Message:  "The storyteller is unavailable right now. Your story is saved, please try again in a moment.",
		Attempts: retry.Attempts(err),
		At:       time.Now().UTC(),
	}
	s.countNotice(notice)
	return notice, true
}

// cultureNotice converts a culture failure into a notice. A disabled client is silent.
func (s *Service) cultureNotice(err error) (storymodel.Notice, bool) {
	var notice storymodel.Notice
	switch {
	case errors.Is(err, culture.ErrDisabled), errors.Is(err, culture.ErrNoEntities), errors.Is(err, context.Canceled):
		return notice, false
	case errors.Is(err, culture.ErrUnauthorized):
		notice = storymodel.Notice{
			Kind:    storymodel.NoticeCultureMisconfigured,
			Service: "culture",
			Message: "Cultural insights are switched off because the API key was rejected. The story continues without them.",
		}
	default:
		notice = storymodel.Notice{
			Kind:     storymodel.NoticeCultureUnavailable,
			Service:  "culture",
			Message:  "Cultural insights are unavailable right now. The story continues without them.",
			Attempts: retry.Attempts(err),
		}
	}
	notice.At = time.Now().UTC()
	s.log.Warn().Err(err).Str("notice", string(notice.Kind)).Msg("cultural enrichment degraded")
	s.countNotice(notice)
	return notice, true
}

func (s *Service) countNotice(n storymodel.Notice) {
	if s.recorder != nil {
		s.recorder.RecordNotice(string(n.Kind))
	}
}

func outcomeFor(sess *storymodel.Session) Outcome {
	return Outcome{
		SessionID:     sess.ID,
		Affinities:    []culturemodel.Affinity{},
		Notices:       []storymodel.Notice{},
		BranchOptions: sess.BranchOptions,
		Complete:      sess.Complete(),
		Stats:         sess.Stats(),
	}
}

func lastNotice(notices []storymodel.Notice) *storymodel.Notice {
	if len(notices) == 0 {
		return nil
	}
	n := notices[len(notices)-1]
	return &n
}

func nonNil(items []culturemodel.Affinity) []culturemodel.Affinity {
	if items == nil {
		return []culturemodel.Affinity{}
	}
	return items
}

func nonNilNotices(items []storymodel.Notice) []storymodel.Notice {
	if items == nil {
		return []storymodel.Notice{}
	}
	return items
}
