package stream

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/narravox/narravox/backend/internal/handler/apierror"
	storyservice "github.com/narravox/narravox/backend/internal/service/story"
	"github.com/narravox/narravox/backend/pkg/utils"
)

// Streamer produces one turn while reporting text as it is generated.
type Streamer interface {
	StreamTurn(ctx context.Context, sessionID, input string, emit func(chunk string) error) (storyservice.Outcome, error)
}

// Handler streams story turns via Server-Sent Events.
type Handler struct {
	svc Streamer
	log zerolog.Logger
}

// New creates a stream handler.
func New(svc Streamer, log zerolog.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

// RegisterRoutes registers the SSE route.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/stream/{id}", h.handleStream)
}

// StreamResponse is one SSE frame.
type StreamResponse struct {
	Event     string                `json:"event"`
	Content   string                `json:"content,omitempty"`
	SessionID string                `json:"sessionId,omitempty"`
	Outcome   *storyservice.Outcome `json:"outcome,omitempty"`
	Finished  bool                  `json:"finished,omitempty"`
	Error     string                `json:"error,omitempty"`
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	message := r.URL.Query().Get("message")
	if message == "" {
		utils.RespondErrorCode(w, http.StatusBadRequest, "invalid_input", "message query parameter is required")
		return
	}
	if err := h.HandleStreamRequest(r.Context(), w, sessionID, message); err != nil {
		h.log.Warn().Err(err).Str("session_id", sessionID).Msg("stream ended with error")
	}
}

// HandleStreamRequest runs one streamed turn. Errors found before the first frame become a
// regular JSON error response; later ones are sent as an error frame.
func (h *Handler) HandleStreamRequest(ctx context.Context, w http.ResponseWriter, sessionID, message string) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return fmt.Errorf("streaming unsupported")
	}

	started := false
	begin := func() {
		if started {
			return
		}
		started = true
		utils.SetupSSEHeaders(w)
		w.WriteHeader(http.StatusOK)
		utils.SendSSEChunk(w, flusher, StreamResponse{Event: "start", SessionID: sessionID})
	}

	out, err := h.svc.StreamTurn(ctx, sessionID, message, func(chunk string) error {
		begin()
		utils.SendSSEChunk(w, flusher, StreamResponse{Event: "delta", SessionID: sessionID, Content: chunk})
		return ctx.Err()
	})
	if err != nil {
		if !started {
			apierror.Write(w, h.log, err)
			return err
		}
		_, _, msg := apierror.Status(err)
		utils.SendSSEChunk(w, flusher, StreamResponse{Event: "error", SessionID: sessionID, Error: msg})
		return err
	}

	begin()
	for _, notice := range out.Notices {
		utils.SendSSEChunk(w, flusher, StreamResponse{Event: "notice", SessionID: sessionID, Content: notice.Message})
	}
	if out.Turn != nil {
		utils.SendSSEChunk(w, flusher, StreamResponse{Event: "message", SessionID: sessionID, Content: out.Turn.Continuation})
	}
	utils.SendSSEChunk(w, flusher, StreamResponse{Event: "end", SessionID: sessionID, Outcome: &out, Finished: true})

	h.log.Info().Str("session_id", sessionID).Bool("turn", out.Turn != nil).Int("notices", len(out.Notices)).Msg("stream completed")
	return nil
}
