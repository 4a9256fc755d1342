package export

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/narravox/narravox/backend/internal/handler/apierror"
	"github.com/narravox/narravox/backend/internal/service/archive"
	"github.com/narravox/narravox/backend/internal/service/export"
	"github.com/narravox/narravox/backend/internal/service/session"
	"github.com/narravox/narravox/backend/pkg/utils"
)

// Archive stores published documents.
type Archive interface {
	Publish(ctx context.Context, doc export.Document) (string, error)
	Get(ctx context.Context, shareID string) (export.Document, error)
}

// Handler serves downloads and share links.
type Handler struct {
	sessions *session.Service
	archive  Archive
	baseURL  string
	log      zerolog.Logger
	now      func() time.Time
}

// New creates the export handler. archive may be nil, in which case share links point at the live session.
func New(sessions *session.Service, archive Archive, baseURL string, log zerolog.Logger) *Handler {
	return &Handler{sessions: sessions, archive: archive, baseURL: baseURL, log: log, now: time.Now}
}

// RegisterRoutes registers the export routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/sessions/{id}/export", h.handleExport)
	r.Post("/sessions/{id}/share", h.handleShare)
	r.Get("/shared/{shareID}", h.handleShared)
}

// ShareResponse is returned when a story is published.
type ShareResponse struct {
	ShareID string `json:"shareId"`
	Link    string `json:"link"`
	Excerpt string `json:"excerpt"`
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		utils.RespondErrorCode(w, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}
	sess, err := h.sessions.GetSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		apierror.Write(w, h.log, err)
		return
	}
	h.writeDocument(w, export.NewDocument(sess, h.now()), format)
}

func (h *Handler) handleShare(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.GetSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		apierror.Write(w, h.log, err)
		return
	}
	doc := export.NewDocument(sess, h.now())

	shareID := sess.ID
	if h.archive != nil {
		shareID, err = h.archive.Publish(r.Context(), doc)
		if err != nil {
			apierror.Write(w, h.log, err)
			return
		}
	}
	h.log.Info().Str("session_id", sess.ID).Str("share_id", shareID).Int("turns", doc.TurnCount).Msg("story shared")
	utils.RespondJSON(w, http.StatusCreated, ShareResponse{
		ShareID: shareID,
		Link:    export.ShareLink(h.baseURL, shareID),
		Excerpt: export.SocialExcerpt(doc),
	})
}

func (h *Handler) handleShared(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		utils.RespondErrorCode(w, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}
	if r.URL.Query().Get("format") == "" {
		format = export.FormatJSON
	}
	if h.archive == nil {
		apierror.Write(w, h.log, archive.ErrNotFound)
		return
	}
	doc, err := h.archive.Get(r.Context(), chi.URLParam(r, "shareID"))
	if err != nil {
		apierror.Write(w, h.log, err)
		return
	}
	h.writeDocument(w, doc, format)
}

func (h *Handler) writeDocument(w http.ResponseWriter, doc export.Document, format export.Format) {
	var body []byte
	switch format {
	case export.FormatPDF:
		var buf bytes.Buffer
		if err := export.PDF(doc, &buf); err != nil {
			apierror.Write(w, h.log, err)
			return
		}
		body = buf.Bytes()
	case export.FormatJSON:
		data, err := export.JSON(doc)
		if err != nil {
			apierror.Write(w, h.log, err)
			return
		}
		body = data
	default:
		body = []byte(export.Text(doc))
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename(doc.SessionID, format)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		h.log.Debug().Err(err).Msg("failed to write export")
	}
}
