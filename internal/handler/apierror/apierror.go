// Package apierror maps service errors onto HTTP responses.
package apierror

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/narravox/narravox/backend/internal/service/archive"
	"github.com/narravox/narravox/backend/internal/service/culture"
	"github.com/narravox/narravox/backend/internal/service/narrative"
	"github.com/narravox/narravox/backend/internal/service/session"
	"github.com/narravox/narravox/backend/internal/service/story"
	"github.com/narravox/narravox/backend/pkg/utils"
)

// Status returns the HTTP status, a stable error code and a user-facing message for err.
func Status(err error) (int, string, string) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return http.StatusNotFound, "session_not_found", "Session not found."
	case errors.Is(err, archive.ErrNotFound):
		return http.StatusNotFound, "share_not_found", "Shared story not found."
	case errors.Is(err, session.ErrStoryComplete):
		return http.StatusConflict, "story_complete", "This story has reached its final turn."
	case errors.Is(err, story.ErrAlreadyStarted):
		return http.StatusConflict, "already_started", "This story has already been started."
	case errors.Is(err, story.ErrNotStarted):
		return http.StatusConflict, "not_started", "Start the story first."
	case errors.Is(err, story.ErrInvalidInput), errors.Is(err, story.ErrNoBranch):
		return http.StatusBadRequest, "invalid_input", err.Error()
	case errors.Is(err, narrative.ErrUnauthorized), errors.Is(err, culture.ErrUnauthorized):
		return http.StatusBadGateway, "upstream_misconfigured", "An upstream service rejected our credentials."
	case errors.Is(err, narrative.ErrUnavailable), errors.Is(err, culture.ErrUnavailable):
		return http.StatusServiceUnavailable, "upstream_unavailable", "An upstream service is unavailable. Please try again."
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout", "The request timed out."
	default:
		return http.StatusInternalServerError, "internal", "Something went wrong."
	}
}

// Write responds with the mapped error. Server-side failures are logged.
func Write(w http.ResponseWriter, log zerolog.Logger, err error) {
	status, code, message := Status(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Int("status", status).Msg("request failed")
	}
	utils.RespondErrorCode(w, status, code, message)
}
