// Package live serves the websocket storytelling channel. Each connection owns one session
// that is created on connect and deleted on disconnect.
package live

import (
	"context"
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/narravox/narravox/backend/internal/handler/apierror"
	"github.com/narravox/narravox/backend/internal/middleware"
	storyservice "github.com/narravox/narravox/backend/internal/service/story"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 54 * time.Second
	writeTimeout = 10 * time.Second
)

// Handler upgrades connections and runs the message loop.
type Handler struct {
	svc         *storyservice.Service
	log         zerolog.Logger
	upgrader    websocket.Upgrader
	readTimeout time.Duration

	// Per-session limiters, nil when rate limiting is off.
	startLimit    *middleware.Limiter
	continueLimit *middleware.Limiter
	profileLimit  *middleware.Limiter
}

// New creates the websocket handler. With rateLimit set, generation messages are throttled
// per session with the same rules as the HTTP routes.
func New(svc *storyservice.Service, log zerolog.Logger, rateLimit bool) *Handler {
	h := &Handler{
		svc: svc,
		log: log,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(*http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		readTimeout: readTimeout,
	}
	if rateLimit {
		h.startLimit = middleware.NewLimiter(middleware.StartRule)
		h.continueLimit = middleware.NewLimiter(middleware.ContinueRule)
		h.profileLimit = middleware.NewLimiter(middleware.ProfileRule)
	}
	return h
}

// RegisterRoutes registers the websocket route.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/live", h.handleWebSocket)
}

type inboundMessage struct {
	Type  string              `json:"type"`
	Text  string              `json:"text,omitempty"`
	Index int                 `json:"index,omitempty"`
	Prefs map[string][]string `json:"preferences,omitempty"`
}

type outgoingMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

type errorData struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retryAfter,omitempty"`
}

type conn struct {
	ws        *websocket.Conn
	sessionID string
	log       zerolog.Logger
}

func (c *conn) send(kind string, data any) error {
	payload, err := sonic.Marshal(outgoingMessage{
		Type:      kind,
		SessionID: c.sessionID,
		Data:      data,
		Timestamp: time.Now().Unix(),
	})
	if err != nil {
		return err
	}
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteMessage(websocket.TextMessage, payload)
}

func (c *conn) sendError(err error) {
	_, code, message := apierror.Status(err)
	if sendErr := c.send("error", errorData{Code: code, Message: message}); sendErr != nil {
		c.log.Debug().Err(sendErr).Msg("write error failed")
	}
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer ws.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sessions := h.svc.Sessions()
	sess, err := sessions.CreateSession(ctx)
	if err != nil {
		h.log.Error().Err(err).Msg("create live session failed")
		return
	}
	c := &conn{ws: ws, sessionID: sess.ID, log: h.log.With().Str("session_id", sess.ID).Logger()}
	defer func() {
		if err := sessions.DeleteSession(context.Background(), sess.ID); err != nil {
			c.log.Warn().Err(err).Msg("delete live session failed")
		}
		c.log.Info().Msg("live connection closed")
	}()

	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(h.readTimeout))
	})
	go pingLoop(ctx, ws)

	c.log.Info().Msg("live connection opened")
	if err := c.send("connected", sess.Stats()); err != nil {
		return
	}

	for {
		// The read deadline covers waiting for the client, not generating the reply.
		_ = ws.SetReadDeadline(time.Now().Add(h.readTimeout))
		_, raw, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn().Err(err).Msg("websocket read error")
			}
			return
		}
		_ = ws.SetReadDeadline(time.Time{})

		var msg inboundMessage
		if err := sonic.Unmarshal(raw, &msg); err != nil {
			c.sendError(errors.Join(storyservice.ErrInvalidInput, err))
			continue
		}
		h.handleMessage(ctx, c, msg)
	}
}

func (h *Handler) handleMessage(ctx context.Context, c *conn, msg inboundMessage) {
	if limiter := h.limiterFor(msg.Type); limiter != nil {
		if ok, wait := limiter.Allow(c.sessionID); !ok {
			if err := c.send("error", errorData{
				Code:       "rate_limited",
				Message:    "Too many requests. Please wait a moment before trying again.",
				RetryAfter: int(math.Ceil(wait.Seconds())),
			}); err != nil {
				c.log.Debug().Err(err).Msg("write error failed")
			}
			return
		}
	}

	var (
		out storyservice.Outcome
		err error
	)
	switch msg.Type {
	case "start":
		out, err = h.svc.Start(ctx, c.sessionID, msg.Text)
	case "surprise":
		out, err = h.svc.Surprise(ctx, c.sessionID)
	case "continue":
		out, err = h.svc.Continue(ctx, c.sessionID, msg.Text)
	case "stream":
		out, err = h.svc.StreamTurn(ctx, c.sessionID, msg.Text, func(chunk string) error {
			return c.send("delta", chunk)
		})
	case "branches":
		out, err = h.svc.Branches(ctx, c.sessionID)
	case "choose":
		out, err = h.svc.ChooseBranch(ctx, c.sessionID, msg.Index)
	case "enrich":
		out, err = h.svc.Enrich(ctx, c.sessionID)
	case "profile":
		out, err = h.svc.BuildProfile(ctx, c.sessionID, msg.Prefs)
	case "reset":
		sess, resetErr := h.svc.Sessions().Reset(ctx, c.sessionID)
		if resetErr != nil {
			c.sendError(resetErr)
			return
		}
		_ = c.send("reset", sess.Stats())
		return
	default:
		c.sendError(errors.Join(storyservice.ErrInvalidInput, errors.New("unsupported message type: "+msg.Type)))
		return
	}
	if err != nil {
		c.sendError(err)
		return
	}
	if sendErr := c.send("result", out); sendErr != nil {
		c.log.Debug().Err(sendErr).Msg("write result failed")
	}
}

func (h *Handler) limiterFor(kind string) *middleware.Limiter {
	switch kind {
	case "start", "surprise":
		return h.startLimit
	case "continue", "stream", "branches", "choose", "enrich":
		return h.continueLimit
	case "profile":
		return h.profileLimit
	}
	return nil
}

// pingLoop keeps the connection alive. WriteControl is safe alongside the writer in the read loop.
func pingLoop(ctx context.Context, ws *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}
