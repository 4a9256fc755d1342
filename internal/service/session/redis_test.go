package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/narravox/narravox/backend/internal/model/culture"
	"github.com/narravox/narravox/backend/internal/model/story"
)

type fakeRedis struct {
	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration
	err  error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func toString(value interface{}) string {
	switch v := value.(type) {
	case []byte:
		return string(v)
	case string:
		return v
	default:
		panic("unexpected value type")
	}
}

func (f *fakeRedis) SetNX(_ context.Context, key string, value interface{}, ttl time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewBoolResult(false, f.err)
	}
	if _, ok := f.data[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.data[key] = toString(value)
	f.ttls[key] = ttl
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) SetXX(_ context.Context, key string, value interface{}, ttl time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.data[key]; !ok {
		return redis.NewBoolResult(false, nil)
	}
	f.data[key] = toString(value)
	f.ttls[key] = ttl
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) GetEx(_ context.Context, key string, ttl time.Duration) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	value, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	f.ttls[key] = ttl
	return redis.NewStringResult(value, nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, key := range keys {
		if _, ok := f.data[key]; ok {
			delete(f.data, key)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func TestRedisStoreRoundTrip(t *testing.T) {
	client := newFakeRedis()
	store := NewRedisStore(client, 40*time.Minute)
	svc := NewService(store, 15, zerolog.Nop())
	ctx := context.Background()

	sess, err := svc.CreateSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, 40*time.Minute, client.ttls[keyPrefix+sess.ID])

	_, err = svc.Update(ctx, sess.ID, func(sess *story.Session) error {
		turn, err := svc.AppendTurnLocked(sess, story.Turn{Kind: story.TurnOpener, UserInput: "jazz noir", Continuation: "Smoke curled."})
		if err != nil {
			return err
		}
		svc.AnnotateLocked(sess, turn.Number, []culture.Affinity{{Entity: "Bebop", Domain: culture.Music, Source: culture.SourceAPI}})
		return nil
	})
	require.NoError(t, err)
	assert.Zero(t, svc.lockCount())

	got, err := svc.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, got.Turns, 1)
	assert.Equal(t, "Smoke curled.", got.Turns[0].Continuation)
	assert.Equal(t, "Bebop", got.Annotations[1][0].Entity)
}

func TestRedisStoreMissingSession(t *testing.T) {
	store := NewRedisStore(newFakeRedis(), time.Minute)
	ctx := context.Background()

	_, err := store.Get(ctx, "nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, store.Save(ctx, &story.Session{ID: "nope"}), ErrSessionNotFound)
	assert.ErrorIs(t, store.Delete(ctx, "nope"), ErrSessionNotFound)
}

func TestRedisStoreCreateTwice(t *testing.T) {
	store := NewRedisStore(newFakeRedis(), time.Minute)
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, &story.Session{ID: "a"}))
	assert.ErrorIs(t, store.Create(ctx, &story.Session{ID: "a"}), ErrSessionExists)
}

func TestRedisStoreSurfacesClientErrors(t *testing.T) {
	client := newFakeRedis()
	client.err = errors.New("connection refused")
	store := NewRedisStore(client, time.Minute)

	_, err := store.Get(context.Background(), "a")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSessionNotFound)
}

func TestDialRedisRequiresURL(t *testing.T) {
	_, err := DialRedis(context.Background(), "")
	assert.Error(t, err)
}
