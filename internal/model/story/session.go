package story

import (
	"strings"
	"time"

	"github.com/narravox/narravox/backend/internal/model/culture"
)

// DefaultMaxTurns is the turn cap applied when none is configured.
const DefaultMaxTurns = 15

// Session is the full record of one interactive storytelling run.
type Session struct {
	ID              string                     `json:"id"`
	CreatedAt       time.Time                  `json:"createdAt"`
	UpdatedAt       time.Time                  `json:"updatedAt"`
	MaxTurns        int                        `json:"maxTurns"`
	Turns           []Turn                     `json:"turns"`
	Annotations     map[int][]culture.Affinity `json:"annotations,omitempty"`
	CulturalContext string                     `json:"culturalContext,omitempty"`
	Insights        []Insight                  `json:"insights,omitempty"`
	Preferences     map[string][]string        `json:"preferences,omitempty"`
	BranchOptions   []string                   `json:"branchOptions,omitempty"`
	LastNotice      *Notice                    `json:"lastNotice,omitempty"`
}

// Insight is a titled cultural explanation surfaced alongside the story.
type Insight struct {
	Title       string    `json:"title"`
	Explanation string    `json:"explanation"`
	Turn        int       `json:"turn"`
	CreatedAt   time.Time `json:"createdAt"`
}

// NoticeKind classifies user-visible degradation messages.
type NoticeKind string

const (
	NoticeNarrativeUnavailable NoticeKind = "narrative_unavailable"
	NoticeCultureUnavailable   NoticeKind = "culture_unavailable"
	NoticeCultureMisconfigured NoticeKind = "culture_misconfigured"
)

// Notice tells the user that part of the pipeline degraded.
type Notice struct {
	Kind     NoticeKind `json:"kind"`
	Service  string     `json:"service"`
	Message  string     `json:"message"`
	Attempts int        `json:"attempts,omitempty"`
	At       time.Time  `json:"at"`
}

// Stats summarises a session for progress displays.
type Stats struct {
	SessionID          string `json:"sessionId"`
	TurnsCompleted     int    `json:"turnsCompleted"`
	MaxTurns           int    `json:"maxTurns"`
	StoryLength        int    `json:"storyLength"`
	EntriesCount       int    `json:"entriesCount"`
	HasCulturalContext bool   `json:"hasCulturalContext"`
	InsightsCount      int    `json:"insightsCount"`
	Complete           bool   `json:"complete"`
}

// TurnCount returns the number of appended turns.
func (s *Session) TurnCount() int {
	return len(s.Turns)
}

// Complete reports whether the turn cap has been reached.
func (s *Session) Complete() bool {
	return s.TurnCount() >= s.MaxTurns
}

// Started reports whether an opener has been generated.
func (s *Session) Started() bool {
	return len(s.Turns) > 0
}

// LastTurn returns the most recent turn, if any.
func (s *Session) LastTurn() (Turn, bool) {
	if len(s.Turns) == 0 {
		return Turn{}, false
	}
	return s.Turns[len(s.Turns)-1], true
}

// StoryText joins every user input and continuation in order.
func (s *Session) StoryText() string {
	parts := make([]string, 0, len(s.Turns)*2)
	for _, turn := range s.Turns {
		if turn.UserInput != "" {
			parts = append(parts, turn.UserInput)
		}
		if turn.Continuation != "" {
			parts = append(parts, turn.Continuation)
		}
	}
	return strings.Join(parts, "\n\n")
}

// Stats computes the current session statistics.
func (s *Session) Stats() Stats {
	entries := 0
	for _, turn := range s.Turns {
		if turn.UserInput != "" {
			entries++
		}
		if turn.Continuation != "" {
			entries++
		}
	}
	return Stats{
		SessionID:          s.ID,
		TurnsCompleted:     s.TurnCount(),
		MaxTurns:           s.MaxTurns,
		StoryLength:        len(s.StoryText()),
		EntriesCount:       entries,
		HasCulturalContext: s.CulturalContext != "",
		InsightsCount:      len(s.Insights),
		Complete:           s.Complete(),
	}
}

// Clone returns a deep copy so that stored turns cannot be mutated through the result.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Turns = append([]Turn(nil), s.Turns...)
	cp.Insights = append([]Insight(nil), s.Insights...)
	cp.BranchOptions = append([]string(nil), s.BranchOptions...)

	if s.Annotations != nil {
		cp.Annotations = make(map[int][]culture.Affinity, len(s.Annotations))
		for turn, items := range s.Annotations {
			cp.Annotations[turn] = append([]culture.Affinity(nil), items...)
		}
	}
	if s.Preferences != nil {
		cp.Preferences = make(map[string][]string, len(s.Preferences))
		for category, items := range s.Preferences {
			cp.Preferences[category] = append([]string(nil), items...)
		}
	}
	if s.LastNotice != nil {
		notice := *s.LastNotice
		cp.LastNotice = &notice
	}
	return &cp
}
