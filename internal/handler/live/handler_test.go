package live

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/eino/schema"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	storymodel "github.com/narravox/narravox/backend/internal/model/story"
	"github.com/narravox/narravox/backend/internal/service/narrative"
	"github.com/narravox/narravox/backend/internal/service/session"
	storyservice "github.com/narravox/narravox/backend/internal/service/story"
)

type slowNarrator struct {
	delay time.Duration
}

func (n slowNarrator) generate(ctx context.Context) (narrative.Generation, error) {
	select {
	case <-time.After(n.delay):
		return narrative.Generation{Text: "The tide turned.", Attempts: 1}, nil
	case <-ctx.Done():
		return narrative.Generation{}, ctx.Err()
	}
}

func (n slowNarrator) Opener(ctx context.Context, _, _ string) (narrative.Generation, error) {
	return n.generate(ctx)
}

func (n slowNarrator) Continue(ctx context.Context, _ []storymodel.Turn, _, _ string) (narrative.Generation, error) {
	return n.generate(ctx)
}

func (n slowNarrator) Branches(context.Context, string, string) ([]string, error) {
	return []string{"Left", "Right", "Stay"}, nil
}

func (n slowNarrator) StreamOpener(context.Context, string, string) (*schema.StreamReader[*schema.Message], error) {
	return schema.StreamReaderFromArray([]*schema.Message{schema.AssistantMessage("The tide turned.", nil)}), nil
}

func (n slowNarrator) StreamContinue(ctx context.Context, _ []storymodel.Turn, input, cc string) (*schema.StreamReader[*schema.Message], error) {
	return n.StreamOpener(ctx, input, cc)
}

type frame struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Data      struct {
		Code       string `json:"code"`
		RetryAfter int    `json:"retryAfter"`
	} `json:"data"`
}

func dial(t *testing.T, h *Handler) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(h.handleWebSocket))
	t.Cleanup(srv.Close)

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	require.Equal(t, "connected", readFrame(t, ws).Type)
	return ws
}

func readFrame(t *testing.T, ws *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, raw, err := ws.ReadMessage()
	require.NoError(t, err)
	var f frame
	require.NoError(t, sonic.Unmarshal(raw, &f))
	return f
}

func newHandler(delay time.Duration, rateLimit bool) *Handler {
	sessions := session.NewService(session.NewMemoryStore(time.Hour), 15, zerolog.Nop())
	svc := storyservice.NewService(sessions, slowNarrator{delay: delay}, nil, nil, zerolog.Nop())
	return New(svc, zerolog.Nop(), rateLimit)
}

func TestSlowGenerationKeepsConnectionOpen(t *testing.T) {
	h := newHandler(300*time.Millisecond, false)
	h.readTimeout = 100 * time.Millisecond
	ws := dial(t, h)

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"start","text":"a harbour at dusk"}`)))
	assert.Equal(t, "result", readFrame(t, ws).Type)

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"reset"}`)))
	assert.Equal(t, "reset", readFrame(t, ws).Type)
}

func TestGenerationMessagesAreRateLimitedPerSession(t *testing.T) {
	h := newHandler(0, true)
	ws := dial(t, h)

	for i := 0; i < 5; i++ {
		require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"continue","text":"onwards"}`)))
		f := readFrame(t, ws)
		require.Equal(t, "error", f.Type)
		require.Equal(t, "not_started", f.Data.Code)
	}
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"stream","text":"onwards"}`)))
	limited := readFrame(t, ws)
	assert.Equal(t, "error", limited.Type)
	assert.Equal(t, "rate_limited", limited.Data.Code)
	assert.Positive(t, limited.Data.RetryAfter)

	// Reset is not a generation message.
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"reset"}`)))
	assert.Equal(t, "reset", readFrame(t, ws).Type)

	// Another connection has its own session and budget.
	other := dial(t, h)
	require.NoError(t, other.WriteMessage(websocket.TextMessage, []byte(`{"type":"start","text":"a harbour at dusk"}`)))
	assert.Equal(t, "result", readFrame(t, other).Type)
}
