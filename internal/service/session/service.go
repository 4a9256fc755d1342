// Package session owns story sessions: creation, turn accumulation under the turn cap, and expiry.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/narravox/narravox/backend/internal/analysis/entities"
	"github.com/narravox/narravox/backend/internal/model/culture"
	"github.com/narravox/narravox/backend/internal/model/story"
)

// Gauge receives the live session count after each change.
type Gauge interface {
	SetSessions(n int)
}

// Service serialises updates per session on top of a Store.
type Service struct {
	store    Store
	maxTurns int
	log      zerolog.Logger
	gauge    Gauge
	now      func() time.Time

	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// NewService creates a session service. maxTurns <= 0 selects story.DefaultMaxTurns.
func NewService(store Store, maxTurns int, log zerolog.Logger) *Service {
	if maxTurns <= 0 {
		maxTurns = story.DefaultMaxTurns
	}
	return &Service{
		store:    store,
		maxTurns: maxTurns,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
		locks:    make(map[string]*sessionLock),
	}
}

// WithGauge attaches a session-count gauge.
func (s *Service) WithGauge(g Gauge) *Service {
	s.gauge = g
	return s
}

// MaxTurns returns the configured turn cap.
func (s *Service) MaxTurns() int {
	return s.maxTurns
}

// CreateSession provisions an empty session with a fresh id.
func (s *Service) CreateSession(ctx context.Context) (*story.Session, error) {
	now := s.now()
	sess := &story.Session{
		ID:        uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
		MaxTurns:  s.maxTurns,
		Turns:     make([]story.Turn, 0, s.maxTurns),
	}
	if err := s.store.Create(ctx, sess); err != nil {
		return nil, err
	}
	s.reportCount()
	s.log.Info().Str("session_id", sess.ID).Msg("session created")
	return sess, nil
}

// GetSession returns a snapshot of the session.
func (s *Service) GetSession(ctx context.Context, id string) (*story.Session, error) {
	if id == "" {
		return nil, ErrSessionNotFound
	}
	return s.store.Get(ctx, id)
}

// Update loads the session, applies fn and saves the result while holding the session's lock.
// If fn returns an error nothing is saved.
func (s *Service) Update(ctx context.Context, id string, fn func(*story.Session) error) (*story.Session, error) {
	if id == "" {
		return nil, ErrSessionNotFound
	}
	release := s.acquire(id)
	defer release()

	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(sess); err != nil {
		return nil, err
	}
	sess.UpdatedAt = s.now()
	if err := s.store.Save(ctx, sess); err != nil {
		return nil, err
	}
	return sess.Clone(), nil
}

// The *Locked mutators below change a session already held by Update.

// AppendTurnLocked numbers and appends turn. It fails with ErrStoryComplete once the cap is reached.
func (s *Service) AppendTurnLocked(sess *story.Session, turn story.Turn) (story.Turn, error) {
	if sess.Complete() {
		return story.Turn{}, ErrStoryComplete
	}
	turn.Number = sess.TurnCount() + 1
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = s.now()
	}
	sess.Turns = append(sess.Turns, turn)
	return turn, nil
}

// AnnotateLocked merges affinities discovered for a turn, skipping entities already recorded.
func (s *Service) AnnotateLocked(sess *story.Session, turnNumber int, items []culture.Affinity) {
	if len(items) == 0 {
		return
	}
	if sess.Annotations == nil {
		sess.Annotations = make(map[int][]culture.Affinity)
	}
	merged := append([]culture.Affinity(nil), sess.Annotations[turnNumber]...)
	for _, add := range items {
		if !containsAffinity(merged, add) {
			merged = append(merged, add)
		}
	}
	sess.Annotations[turnNumber] = merged
}

func containsAffinity(items []culture.Affinity, a culture.Affinity) bool {
	for _, item := range items {
		if item.Entity == a.Entity && item.Domain == a.Domain {
			return true
		}
	}
	return false
}

// MergeContextLocked appends addition to the running context unless it is already present.
// It reports whether the context changed.
func (s *Service) MergeContextLocked(sess *story.Session, addition string) bool {
	merged := entities.MergeContext(sess.CulturalContext, addition)
	changed := merged != sess.CulturalContext
	sess.CulturalContext = merged
	return changed
}

// AddInsightLocked records a titled cultural explanation against the current turn.
func (s *Service) AddInsightLocked(sess *story.Session, title, explanation string) {
	sess.Insights = append(sess.Insights, story.Insight{
		Title:       title,
		Explanation: explanation,
		Turn:        sess.TurnCount(),
		CreatedAt:   s.now(),
	})
}

// SetBranchOptionsLocked replaces the pending branch options. nil clears them.
func (s *Service) SetBranchOptionsLocked(sess *story.Session, options []string) {
	if len(options) == 0 {
		sess.BranchOptions = nil
		return
	}
	sess.BranchOptions = append([]string(nil), options...)
}

// SetPreferencesLocked stores the taste-profile preferences used for later enrichment.
func (s *Service) SetPreferencesLocked(sess *story.Session, prefs map[string][]string) {
	sess.Preferences = make(map[string][]string, len(prefs))
	for category, items := range prefs {
		sess.Preferences[category] = append([]string(nil), items...)
	}
}

// SetNoticeLocked records the latest degradation notice, stamping it if needed. nil clears it.
func (s *Service) SetNoticeLocked(sess *story.Session, notice *story.Notice) {
	if notice == nil {
		sess.LastNotice = nil
		return
	}
	n := *notice
	if n.At.IsZero() {
		n.At = s.now()
	}
	sess.LastNotice = &n
}

// Reset wipes the story but keeps the session id and turn cap.
func (s *Service) Reset(ctx context.Context, id string) (*story.Session, error) {
	return s.Update(ctx, id, func(sess *story.Session) error {
		now := s.now()
		*sess = story.Session{
			ID:        sess.ID,
			CreatedAt: now,
			MaxTurns:  sess.MaxTurns,
			Turns:     make([]story.Turn, 0, sess.MaxTurns),
		}
		return nil
	})
}

// DeleteSession removes the session.
func (s *Service) DeleteSession(ctx context.Context, id string) error {
	if id == "" {
		return ErrSessionNotFound
	}
	release := s.acquire(id)
	err := s.store.Delete(ctx, id)
	release()
	if err != nil {
		return err
	}
	s.reportCount()
	s.log.Info().Str("session_id", id).Msg("session deleted")
	return nil
}

// Sweep expires idle sessions and returns how many were removed.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	expired, err := s.store.Sweep(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if len(expired) > 0 {
		s.reportCount()
		s.log.Info().Int("expired", len(expired)).Msg("expired idle sessions")
	}
	return len(expired), nil
}

// acquire locks the session id and returns the matching release. A lock entry lives only while
// some call holds or waits for it.
func (s *Service) acquire(id string) func() {
	s.mu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &sessionLock{}
		s.locks[id] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		s.mu.Lock()
		defer s.mu.Unlock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, id)
		}
	}
}

func (s *Service) lockCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.locks)
}

func (s *Service) reportCount() {
	if s.gauge == nil {
		return
	}
	if counter, ok := s.store.(Counter); ok {
		s.gauge.SetSessions(counter.Len())
	}
}
