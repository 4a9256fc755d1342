package entities

import (
	"regexp"
	"strings"
)

// MaxEntities caps how many candidates Extract returns.
const MaxEntities = 10

var (
	quotedPattern      = regexp.MustCompile(`"([^"]*)"`)
	capitalisedPattern = regexp.MustCompile(`\b[A-Z][a-z]+(?:\s+[A-Z][a-z]+)*\b`)
)

var culturalKeywords = []string{
	"jazz", "rock", "classical", "hip-hop", "electronic", "folk",
	"sci-fi", "fantasy", "thriller", "romance", "comedy", "drama",
	"travel", "adventure", "mystery", "historical", "contemporary",
	"urban", "rural", "futuristic", "vintage", "modern", "cyberpunk",
}

var stopWords = map[string]struct{}{
	"the":  {},
	"and":  {},
	"with": {},
	"for":  {},
}

// Extract pulls candidate cultural entities out of free text: quoted phrases,
// capitalised phrases and known genre keywords. Order follows discovery and
// duplicates are dropped case-insensitively.
func Extract(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	candidates := make([]string, 0, 16)
	for _, match := range quotedPattern.FindAllStringSubmatch(text, -1) {
		candidates = append(candidates, match[1])
	}
	candidates = append(candidates, capitalisedPattern.FindAllString(text, -1)...)

	lower := strings.ToLower(text)
	for _, keyword := range culturalKeywords {
		if strings.Contains(lower, keyword) {
			candidates = append(candidates, keyword)
		}
	}

	seen := make(map[string]struct{}, len(candidates))
	result := make([]string, 0, len(candidates))
	for _, candidate := range candidates {
		candidate = strings.TrimSpace(candidate)
		key := strings.ToLower(candidate)
		if len(candidate) <= 2 {
			continue
		}
		if _, stop := stopWords[key]; stop {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		result = append(result, candidate)
		if len(result) == MaxEntities {
			break
		}
	}
	return result
}
