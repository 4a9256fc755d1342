// Package export renders session snapshots as text, PDF and JSON documents.
package export

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bytedance/sonic"

	"github.com/narravox/narravox/backend/internal/model/culture"
	"github.com/narravox/narravox/backend/internal/model/story"
)

// Format names an export file type.
type Format string

const (
	FormatText Format = "txt"
	FormatPDF  Format = "pdf"
	FormatJSON Format = "json"
)

// ParseFormat accepts txt, text, pdf or json. Empty selects txt.
func ParseFormat(raw string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "txt", "text":
		return FormatText, nil
	case "pdf":
		return FormatPDF, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", raw)
	}
}

// ContentType returns the MIME type served for the format.
func (f Format) ContentType() string {
	switch f {
	case FormatPDF:
		return "application/pdf"
	case FormatJSON:
		return "application/json"
	default:
		return "text/plain; charset=utf-8"
	}
}

// Document is a read-only projection of a session at export time.
type Document struct {
	SessionID       string                     `json:"sessionId"`
	ExportedAt      time.Time                  `json:"exportedAt"`
	TurnCount       int                        `json:"turnCount"`
	MaxTurns        int                        `json:"maxTurns"`
	CulturalContext string                     `json:"culturalContext,omitempty"`
	Turns           []story.Turn               `json:"turns"`
	Annotations     map[int][]culture.Affinity `json:"annotations,omitempty"`
	Insights        []story.Insight            `json:"insights,omitempty"`
	Preferences     map[string][]string        `json:"preferences,omitempty"`
}

// NewDocument snapshots sess. The session itself is not retained.
func NewDocument(sess *story.Session, now time.Time) Document {
	cp := sess.Clone()
	return Document{
		SessionID:       cp.ID,
		ExportedAt:      now.UTC(),
		TurnCount:       cp.TurnCount(),
		MaxTurns:        cp.MaxTurns,
		CulturalContext: cp.CulturalContext,
		Turns:           cp.Turns,
		Annotations:     cp.Annotations,
		Insights:        cp.Insights,
		Preferences:     cp.Preferences,
	}
}

// JSON encodes the full document.
func JSON(doc Document) ([]byte, error) {
	return sonic.ConfigStd.MarshalIndent(doc, "", "  ")
}

// ParseJSON decodes a document written by JSON.
func ParseJSON(data []byte) (Document, error) {
	var doc Document
	if err := sonic.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("decode export document: %w", err)
	}
	return doc, nil
}

// Filename returns narravox_story_<first 8 characters of id>.<format>.
func Filename(sessionID string, format Format) string {
	short := sessionID
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("narravox_story_%s.%s", short, format)
}

// ShareLink builds the public URL of a shared story.
func ShareLink(baseURL, shareID string) string {
	return strings.TrimRight(baseURL, "/") + "/story/" + shareID
}

const excerptLimit = 200

// SocialExcerpt quotes the first continuation, shortened to fit a social post.
func SocialExcerpt(doc Document) string {
	text := ""
	for _, turn := range doc.Turns {
		if turn.Continuation != "" {
			text = turn.Continuation
			break
		}
	}
	if utf8.RuneCountInString(text) > excerptLimit {
		runes := []rune(text)
		text = string(runes[:excerptLimit-3]) + "..."
	}
	return fmt.Sprintf(`I created a story with Narravox: "%s" Check it out!`, text)
}
