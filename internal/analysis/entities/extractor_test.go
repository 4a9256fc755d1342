package entities

import (
	"reflect"
	"strings"
	"testing"
)

func TestExtractFindsGenreKeywords(t *testing.T) {
	got := Extract("a cyberpunk thriller with jazz influences")
	want := []string{"jazz", "thriller", "cyberpunk"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Extract() = %v, want %v", got, want)
	}
}

func TestExtractQuotedAndCapitalised(t *testing.T) {
	got := Extract(`She hummed "Blue in Green" while walking through Neo Tokyo`)
	if len(got) < 3 {
		t.Fatalf("expected at least 3 entities, got %v", got)
	}
	if got[0] != "Blue in Green" {
		t.Fatalf("expected quoted phrase first, got %q", got[0])
	}
	found := false
	for _, item := range got {
		if item == "Neo Tokyo" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected capitalised phrase Neo Tokyo in %v", got)
	}
}

func TestExtractDropsShortAndStopWords(t *testing.T) {
	got := Extract(`"The" "an" And`)
	if len(got) != 0 {
		t.Fatalf("expected no entities, got %v", got)
	}
}

func TestExtractLimitsResults(t *testing.T) {
	text := strings.Join([]string{
		"Alpha", "Bravo", "Charlie", "Delta", "Echo", "Foxtrot",
		"jazz", "rock", "folk", "drama", "comedy", "urban",
	}, ", ")
	if got := Extract(text); len(got) != MaxEntities {
		t.Fatalf("expected %d entities, got %d (%v)", MaxEntities, len(got), got)
	}
}

func TestExtractEmpty(t *testing.T) {
	if got := Extract("   "); got != nil {
		t.Fatalf("expected nil for blank text, got %v", got)
	}
}

func TestContextFromPreferences(t *testing.T) {
	got := ContextFromPreferences([]string{"Jazz", "Japan"})
	if !strings.HasPrefix(got, "music: Jazz improvisation") {
		t.Fatalf("unexpected context %q", got)
	}
	if !strings.Contains(got, "travel: Japanese culture") {
		t.Fatalf("expected travel theme in %q", got)
	}
}

func TestContextFromPreferencesGeneric(t *testing.T) {
	got := ContextFromPreferences([]string{"pottery", "sailing", "chess", "origami"})
	if got != "cultural: pottery, sailing, chess influences" {
		t.Fatalf("unexpected generic context %q", got)
	}
}

func TestMergeContext(t *testing.T) {
	if got := MergeContext("", "music: jazz"); got != "music: jazz" {
		t.Fatalf("unexpected merge %q", got)
	}
	if got := MergeContext("music: jazz", "music: jazz"); got != "music: jazz" {
		t.Fatalf("expected duplicate to be ignored, got %q", got)
	}
	if got := MergeContext("music: jazz", "film: noir"); got != "music: jazz; film: noir" {
		t.Fatalf("unexpected merge %q", got)
	}
}
