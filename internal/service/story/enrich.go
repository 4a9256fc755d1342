package story

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/narravox/narravox/backend/internal/analysis/entities"
	culturemodel "github.com/narravox/narravox/backend/internal/model/culture"
	storymodel "github.com/narravox/narravox/backend/internal/model/story"
)

// maxPromptPreferences caps how many preferences are folded into the opener lookup.
const maxPromptPreferences = 8

// enrichment collects everything the cultural step produced for one turn.
type enrichment struct {
	// context is what the narrator sees: the session context merged with found.
	context    string
	found      string
	affinities []culturemodel.Affinity
	insights   []storymodel.Insight
	notices    []storymodel.Notice
}

func (s *Service) enrichOpener(ctx context.Context, sess *storymodel.Session, prompt string) enrichment {
	step := enrichment{context: sess.CulturalContext}
	prefs := flattenPreferences(sess.Preferences)

	lookupText := prompt
	if len(prefs) > 0 {
		lookupText = fmt.Sprintf("%s (Cultural preferences: %s)", prompt, strings.Join(prefs, ", "))
	}
	s.lookup(ctx, &step, lookupText)

	if len(prefs) > 0 {
		step.found = entities.MergeContext(step.found, entities.ContextFromPreferences(prefs))
		step.insights = append(step.insights, storymodel.Insight{
			Title:       "Taste Profile Integration",
			Explanation: "Enhanced story with your cultural preferences: " + strings.Join(prefs, ", "),
		})
	}
	if step.found != "" {
		step.insights = append(step.insights, storymodel.Insight{
			Title:       "Story Cultural Elements",
			Explanation: "Cultural affinities identified for your story: " + step.found,
		})
	}
	step.context = entities.MergeContext(sess.CulturalContext, step.found)
	return step
}

func (s *Service) enrichInput(ctx context.Context, sess *storymodel.Session, input string) enrichment {
	step := enrichment{context: sess.CulturalContext}
	s.lookup(ctx, &step, input)

	if step.found != "" && !strings.Contains(sess.CulturalContext, step.found) {
		step.insights = append(step.insights, storymodel.Insight{
			Title:       fmt.Sprintf("Auto-Discovery (Turn %d)", sess.TurnCount()+1),
			Explanation: "Cultural elements from your input: " + step.found,
		})
	}
	step.context = entities.MergeContext(sess.CulturalContext, step.found)
	return step
}

// lookup runs the cultural enrichment. Failures become notices and never stop the turn.
func (s *Service) lookup(ctx context.Context, step *enrichment, text string) {
	if s.culture == nil || strings.TrimSpace(text) == "" {
		return
	}
	result, err := s.culture.Enrich(ctx, text)
	if err != nil {
		if notice, ok := s.cultureNotice(err); ok {
			step.notices = append(step.notices, notice)
		}
		return
	}
	step.found = result.Context
	step.affinities = result.Affinities
}

// flattenPreferences lists preference items category by category, in category name order.
func flattenPreferences(prefs map[string][]string) []string {
	categories := make([]string, 0, len(prefs))
	for category := range prefs {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	var all []string
	for _, category := range categories {
		for _, item := range prefs[category] {
			if len(all) == maxPromptPreferences {
				return all
			}
			all = append(all, item)
		}
	}
	return all
}
