package culture

import (
	"context"
	"fmt"
	"sort"

	culturemodel "github.com/narravox/narravox/backend/internal/model/culture"
)

const (
	maxProfileEntities = 10
	maxSuggestions     = 5
)

// categoryOrder fixes the iteration order over preference categories.
var categoryOrder = []string{"music", "film", "books", "travel", "brands", "other"}

var basicTemplates = map[string]string{
	"music":  "Stories with %s music themes",
	"film":   "Stories inspired by %s cinematic style",
	"books":  "Stories with %s literary elements",
	"travel": "Stories set in %s locations",
	"brands": "Stories featuring %s lifestyle elements",
	"other":  "Stories incorporating %s interests",
}

// Profile is a taste profile derived from user preferences.
type Profile struct {
	Affinities  []culturemodel.Affinity `json:"affinities,omitempty"`
	Preferences map[string][]string     `json:"preferences"`
	Suggestions []string                `json:"suggestions"`
	Source      culturemodel.Source     `json:"source"`
}

// TasteProfile builds cross-domain affinities and story suggestions from categorised preferences.
// When the API call fails the preference-only profile is returned together with the error,
// so callers can use the profile and still report the degradation.
func (c *Client) TasteProfile(ctx context.Context, preferences map[string][]string) (Profile, error) {
	categories := orderedCategories(preferences)

	var all []string
	for _, category := range categories {
		all = append(all, compact(preferences[category])...)
	}
	if len(all) == 0 {
		return Profile{}, ErrNoEntities
	}
	if len(all) > maxProfileEntities {
		all = all[:maxProfileEntities]
	}

	items, err := c.Affinities(ctx, all, nil)
	if err != nil {
		c.log.Warn().Err(err).Msg("taste profile falling back to preferences only")
		return basicProfile(preferences, categories), err
	}

	return Profile{
		Affinities:  items,
		Preferences: preferences,
		Suggestions: storySuggestions(items),
		Source:      culturemodel.SourceAPI,
	}, nil
}

func storySuggestions(items []culturemodel.Affinity) []string {
	grouped := culturemodel.GroupByDomain(items)
	present := make([]culturemodel.Domain, 0, len(grouped))
	for _, domain := range culturemodel.Domains() {
		if len(grouped[domain]) > 0 {
			present = append(present, domain)
		}
	}

	suggestions := make([]string, 0, maxSuggestions)
	for i := 0; i < len(present)-1 && i < 3; i++ {
		first, second := present[i], present[i+1]
		suggestions = append(suggestions, fmt.Sprintf("A story combining %s from %s with %s from %s",
			grouped[first][0].Entity, first, grouped[second][0].Entity, second))
	}
	return suggestions
}

func basicProfile(preferences map[string][]string, categories []string) Profile {
	suggestions := make([]string, 0, maxSuggestions)
	for _, category := range categories {
		template, ok := basicTemplates[category]
		if !ok {
			continue
		}
		items := compact(preferences[category])
		if len(items) > 2 {
			items = items[:2]
		}
		for _, item := range items {
			suggestions = append(suggestions, fmt.Sprintf(template, item))
		}
	}

	for i := 0; i < len(categories)-1 && i < 3; i++ {
		first := compact(preferences[categories[i]])
		second := compact(preferences[categories[i+1]])
		if len(first) == 0 || len(second) == 0 {
			continue
		}
		suggestions = append(suggestions, fmt.Sprintf("Stories combining %s from %s with %s from %s",
			first[0], categories[i], second[0], categories[i+1]))
	}
	if len(suggestions) > maxSuggestions {
		suggestions = suggestions[:maxSuggestions]
	}

	return Profile{
		Preferences: preferences,
		Suggestions: suggestions,
		Source:      culturemodel.SourceFallback,
	}
}

// orderedCategories lists known categories first, then any others alphabetically.
func orderedCategories(preferences map[string][]string) []string {
	ordered := make([]string, 0, len(preferences))
	known := make(map[string]struct{}, len(categoryOrder))
	for _, category := range categoryOrder {
		known[category] = struct{}{}
		if len(compact(preferences[category])) > 0 {
			ordered = append(ordered, category)
		}
	}

	var extra []string
	for category, items := range preferences {
		if _, ok := known[category]; ok || len(compact(items)) == 0 {
			continue
		}
		extra = append(extra, category)
	}
	sort.Strings(extra)
	return append(ordered, extra...)
}
