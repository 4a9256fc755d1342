package session

import (
	"context"
	"errors"
	"time"

	"github.com/narravox/narravox/backend/internal/model/story"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExists   = errors.New("session already exists")
	ErrStoryComplete   = errors.New("story has reached its turn limit")
)

// Store persists sessions. Implementations must return copies that callers may mutate freely.
type Store interface {
	Create(ctx context.Context, s *story.Session) error
	Get(ctx context.Context, id string) (*story.Session, error)
	Save(ctx context.Context, s *story.Session) error
	Delete(ctx context.Context, id string) error
	// Sweep drops sessions idle since before now minus the store's TTL and returns their ids.
	Sweep(ctx context.Context, now time.Time) ([]string, error)
}

// Counter is implemented by stores that can report their size cheaply.
type Counter interface {
	Len() int
}
