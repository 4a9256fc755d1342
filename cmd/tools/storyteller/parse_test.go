package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePreferences(t *testing.T) {
	got := parsePreferences(map[string]string{
		"Music":  "jazz, bossa nova,,",
		"travel": "japan",
		"film":   " ",
	})

	assert.Equal(t, map[string][]string{
		"music":  {"jazz", "bossa nova"},
		"travel": {"japan"},
	}, got)
}
