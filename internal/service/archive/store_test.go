package archive

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/narravox/narravox/backend/internal/model/story"
	"github.com/narravox/narravox/backend/internal/service/export"
)

func sampleDocument() export.Document {
	sess := &story.Session{
		ID:       "session-1",
		MaxTurns: 15,
		Turns: []story.Turn{
			{Number: 1, Kind: story.TurnOpener, UserInput: "jazz noir", Continuation: "Smoke curled over the stage."},
			{Number: 2, Kind: story.TurnContinuation, UserInput: "the band stops", Continuation: "Silence fell."},
		},
	}
	return export.NewDocument(sess, time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC))
}

func openTemp(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestPublishAndGet(t *testing.T) {
	store := openTemp(t)
	ctx := context.Background()

	shareID, err := store.Publish(ctx, sampleDocument())
	require.NoError(t, err)
	require.NotEmpty(t, shareID)

	doc, err := store.Get(ctx, shareID)
	require.NoError(t, err)
	assert.Equal(t, "session-1", doc.SessionID)
	require.Len(t, doc.Turns, 2)
	assert.Equal(t, "Silence fell.", doc.Turns[1].Continuation)

	n, err := store.Count(ctx, "session-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestGetUnknown(t *testing.T) {
	store := openTemp(t)
	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPublishRequiresSession(t *testing.T) {
	store := openTemp(t)
	_, err := store.Publish(context.Background(), export.Document{})
	assert.Error(t, err)
}

func TestInMemoryArchive(t *testing.T) {
	store, err := Open(":memory:")
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	first, err := store.Publish(ctx, sampleDocument())
	require.NoError(t, err)
	second, err := store.Publish(ctx, sampleDocument())
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open("  ")
	assert.Error(t, err)
}
