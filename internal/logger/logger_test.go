package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestInitWritesJSONWithComponent(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	var buf bytes.Buffer
	if _, err := Init(Options{Level: "debug", Format: "json", Output: &buf}); err != nil {
		t.Fatalf("Init returned error: %v", err)
	}

	log := For("session")
	log.Debug().Str("session_id", "abc").Msg("created")

	out := buf.String()
	if !strings.Contains(out, `"component":"session"`) {
		t.Fatalf("expected component field, got %s", out)
	}
	if !strings.Contains(out, `"session_id":"abc"`) {
		t.Fatalf("expected session_id field, got %s", out)
	}
}

func TestInitRejectsUnknownLevel(t *testing.T) {
	if _, err := Init(Options{Level: "chatty"}); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestInitRejectsUnknownFormat(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })
	if _, err := Init(Options{Format: "xml"}); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}
