package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/narravox/narravox/backend/internal/model/culture"
	"github.com/narravox/narravox/backend/internal/model/story"
)

type countingGauge struct {
	last int
}

func (g *countingGauge) SetSessions(n int) { g.last = n }

func newService(t *testing.T, maxTurns int) (*Service, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore(time.Hour)
	return NewService(store, maxTurns, zerolog.Nop()), store
}

func appendVia(ctx context.Context, svc *Service, id string, turn story.Turn) (story.Turn, error) {
	var appended story.Turn
	_, err := svc.Update(ctx, id, func(sess *story.Session) error {
		var err error
		appended, err = svc.AppendTurnLocked(sess, turn)
		return err
	})
	return appended, err
}

func mergeVia(ctx context.Context, svc *Service, id, addition string) (bool, error) {
	var changed bool
	_, err := svc.Update(ctx, id, func(sess *story.Session) error {
		changed = svc.MergeContextLocked(sess, addition)
		return nil
	})
	return changed, err
}

func TestCreateAndGetSession(t *testing.T) {
	svc, _ := newService(t, 0)
	ctx := context.Background()

	sess, err := svc.CreateSession(ctx)
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}
	if sess.MaxTurns != story.DefaultMaxTurns {
		t.Fatalf("expected default max turns %d, got %d", story.DefaultMaxTurns, sess.MaxTurns)
	}

	got, err := svc.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("GetSession err: %v", err)
	}
	if got.ID != sess.ID {
		t.Fatalf("unexpected session ID: got %s want %s", got.ID, sess.ID)
	}
}

func TestGetSessionNotFound(t *testing.T) {
	svc, _ := newService(t, 0)
	if _, err := svc.GetSession(context.Background(), "missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestAppendTurnStopsAtCap(t *testing.T) {
	svc, _ := newService(t, 15)
	ctx := context.Background()
	sess, _ := svc.CreateSession(ctx)

	for i := 1; i <= 15; i++ {
		turn, err := appendVia(ctx, svc, sess.ID, story.Turn{Kind: story.TurnContinuation, UserInput: "in", Continuation: "out"})
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		if turn.Number != i {
			t.Fatalf("expected turn number %d, got %d", i, turn.Number)
		}
	}

	if _, err := appendVia(ctx, svc, sess.ID, story.Turn{UserInput: "one more"}); !errors.Is(err, ErrStoryComplete) {
		t.Fatalf("expected ErrStoryComplete, got %v", err)
	}

	got, err := svc.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("GetSession err: %v", err)
	}
	if stats := got.Stats(); stats.TurnsCompleted != 15 || !stats.Complete {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestAppendedTurnsAreImmutableThroughSnapshots(t *testing.T) {
	svc, _ := newService(t, 0)
	ctx := context.Background()
	sess, _ := svc.CreateSession(ctx)
	if _, err := appendVia(ctx, svc, sess.ID, story.Turn{UserInput: "first", Continuation: "reply"}); err != nil {
		t.Fatalf("append err: %v", err)
	}

	snapshot, _ := svc.GetSession(ctx, sess.ID)
	snapshot.Turns[0].Continuation = "tampered"

	again, _ := svc.GetSession(ctx, sess.ID)
	if again.Turns[0].Continuation != "reply" {
		t.Fatalf("stored turn was mutated through a snapshot")
	}
}

func TestConcurrentAppendsRespectCap(t *testing.T) {
	svc, _ := newService(t, 5)
	ctx := context.Background()
	sess, _ := svc.CreateSession(ctx)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := appendVia(ctx, svc, sess.ID, story.Turn{UserInput: fmt.Sprintf("input %d", i)}); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	got, _ := svc.GetSession(ctx, sess.ID)
	if succeeded != 5 || got.TurnCount() != 5 {
		t.Fatalf("expected exactly 5 turns, succeeded=%d stored=%d", succeeded, got.TurnCount())
	}
	for i, turn := range got.Turns {
		if turn.Number != i+1 {
			t.Fatalf("turn %d has number %d", i, turn.Number)
		}
	}
}

func TestMergeCulturalContext(t *testing.T) {
	svc, _ := newService(t, 0)
	ctx := context.Background()
	sess, _ := svc.CreateSession(ctx)

	changed, err := mergeVia(ctx, svc, sess.ID, "music: Bebop")
	if err != nil || !changed {
		t.Fatalf("expected first merge to change context, changed=%v err=%v", changed, err)
	}
	changed, _ = mergeVia(ctx, svc, sess.ID, "music: Bebop")
	if changed {
		t.Fatalf("expected duplicate merge to be a no-op")
	}
	_, _ = mergeVia(ctx, svc, sess.ID, "film: Neo-noir")

	got, _ := svc.GetSession(ctx, sess.ID)
	if got.CulturalContext != "music: Bebop; film: Neo-noir" {
		t.Fatalf("unexpected context %q", got.CulturalContext)
	}
}

func TestAnnotateInsightsAndBranches(t *testing.T) {
	svc, _ := newService(t, 0)
	ctx := context.Background()
	sess, _ := svc.CreateSession(ctx)
	_, _ = appendVia(ctx, svc, sess.ID, story.Turn{UserInput: "a", Continuation: "b"})

	items := []culture.Affinity{{Entity: "Bebop", Domain: culture.Music}}
	_, err := svc.Update(ctx, sess.ID, func(sess *story.Session) error {
		svc.AnnotateLocked(sess, 1, items)
		svc.AnnotateLocked(sess, 1, items)
		svc.AddInsightLocked(sess, "Story Cultural Elements", "music: Bebop")
		svc.SetBranchOptionsLocked(sess, []string{"x", "y", "z"})
		svc.SetNoticeLocked(sess, &story.Notice{Kind: story.NoticeCultureUnavailable})
		return nil
	})
	if err != nil {
		t.Fatalf("Update err: %v", err)
	}

	got, _ := svc.GetSession(ctx, sess.ID)
	if len(got.Annotations[1]) != 1 || got.Annotations[1][0].Entity != "Bebop" {
		t.Fatalf("unexpected annotations %+v", got.Annotations)
	}
	if len(got.Insights) != 1 || got.Insights[0].Turn != 1 {
		t.Fatalf("unexpected insights %+v", got.Insights)
	}
	if len(got.BranchOptions) != 3 {
		t.Fatalf("unexpected branch options %v", got.BranchOptions)
	}
	if got.LastNotice == nil || got.LastNotice.At.IsZero() {
		t.Fatalf("expected timestamped notice, got %+v", got.LastNotice)
	}

	got, err = svc.Update(ctx, sess.ID, func(sess *story.Session) error {
		svc.SetNoticeLocked(sess, nil)
		svc.SetBranchOptionsLocked(sess, nil)
		return nil
	})
	if err != nil {
		t.Fatalf("Update err: %v", err)
	}
	if got.LastNotice != nil || got.BranchOptions != nil {
		t.Fatalf("expected notice and branches to be cleared, got %+v", got)
	}
}

func TestResetKeepsID(t *testing.T) {
	svc, _ := newService(t, 7)
	ctx := context.Background()
	sess, _ := svc.CreateSession(ctx)
	_, _ = appendVia(ctx, svc, sess.ID, story.Turn{UserInput: "a", Continuation: "b"})
	_, _ = mergeVia(ctx, svc, sess.ID, "music: Bebop")
	_, _ = svc.Update(ctx, sess.ID, func(sess *story.Session) error {
		svc.SetPreferencesLocked(sess, map[string][]string{"music": {"Jazz"}})
		return nil
	})

	reset, err := svc.Reset(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Reset err: %v", err)
	}
	if reset.ID != sess.ID || reset.MaxTurns != 7 {
		t.Fatalf("reset changed identity: %+v", reset)
	}
	if reset.TurnCount() != 0 || reset.CulturalContext != "" || reset.Preferences != nil {
		t.Fatalf("reset left state behind: %+v", reset)
	}
}

func TestDeleteSession(t *testing.T) {
	svc, store := newService(t, 0)
	gauge := &countingGauge{}
	svc.WithGauge(gauge)
	ctx := context.Background()

	sess, _ := svc.CreateSession(ctx)
	if gauge.last != 1 {
		t.Fatalf("expected gauge 1, got %d", gauge.last)
	}
	if err := svc.DeleteSession(ctx, sess.ID); err != nil {
		t.Fatalf("DeleteSession err: %v", err)
	}
	if store.Len() != 0 || gauge.last != 0 {
		t.Fatalf("expected empty store, len=%d gauge=%d", store.Len(), gauge.last)
	}
	if err := svc.DeleteSession(ctx, sess.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound on second delete, got %v", err)
	}
}

func TestMissingSessionsLeaveNoLocks(t *testing.T) {
	svc, _ := newService(t, 0)
	ctx := context.Background()

	for i := 0; i < 1000; i++ {
		id := fmt.Sprintf("missing-%d", i)
		if _, err := svc.Update(ctx, id, func(*story.Session) error { return nil }); !errors.Is(err, ErrSessionNotFound) {
			t.Fatalf("expected ErrSessionNotFound, got %v", err)
		}
		if err := svc.DeleteSession(ctx, id); !errors.Is(err, ErrSessionNotFound) {
			t.Fatalf("expected ErrSessionNotFound, got %v", err)
		}
	}
	if n := svc.lockCount(); n != 0 {
		t.Fatalf("expected no retained locks, got %d", n)
	}
}

func TestLocksReleasedAfterConcurrentUpdates(t *testing.T) {
	svc, _ := newService(t, 0)
	ctx := context.Background()
	sess, _ := svc.CreateSession(ctx)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.Update(ctx, sess.ID, func(s *story.Session) error {
				s.CulturalContext += "x"
				return nil
			})
		}()
	}
	wg.Wait()

	got, _ := svc.GetSession(ctx, sess.ID)
	if len(got.CulturalContext) != 50 {
		t.Fatalf("expected 50 serialised updates, got %d", len(got.CulturalContext))
	}
	if n := svc.lockCount(); n != 0 {
		t.Fatalf("expected no retained locks, got %d", n)
	}
}

func TestSweepExpiresIdleSessions(t *testing.T) {
	store := NewMemoryStore(30 * time.Minute)
	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return clock }
	svc := NewService(store, 0, zerolog.Nop())
	svc.now = func() time.Time { return clock }
	ctx := context.Background()

	idle, _ := svc.CreateSession(ctx)
	clock = clock.Add(20 * time.Minute)
	active, _ := svc.CreateSession(ctx)
	clock = clock.Add(15 * time.Minute)

	removed, err := svc.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep err: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 expired session, got %d", removed)
	}
	if _, err := svc.GetSession(ctx, idle.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected idle session to be gone, got %v", err)
	}
	if _, err := svc.GetSession(ctx, active.ID); err != nil {
		t.Fatalf("expected active session to survive, got %v", err)
	}
}

func TestJanitorRejectsBadSchedule(t *testing.T) {
	svc, _ := newService(t, 0)
	if _, err := NewJanitor(svc, "every now and then", zerolog.Nop()); err == nil {
		t.Fatal("expected schedule parse error")
	}
}

func TestJanitorStartStop(t *testing.T) {
	svc, _ := newService(t, 0)
	j, err := NewJanitor(svc, "@every 1h", zerolog.Nop())
	if err != nil {
		t.Fatalf("NewJanitor err: %v", err)
	}
	j.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	j.Stop(ctx)
}
