package entities

import (
	"fmt"
	"strings"
)

type themeRule struct {
	keyword string
	context string
}

// themeRules is ordered: the first keyword contained in a preference wins.
var themeRules = []themeRule{
	{"japan", "travel: Japanese culture, Zen aesthetics, Traditional craftsmanship"},
	{"jazz", "music: Jazz improvisation, Blues influences, Swing rhythms"},
	{"sci-fi", "film: Science fiction, Futuristic themes, Technological innovation"},
	{"cyberpunk", "film: Neon-lit megacities, Hacker culture, Corporate dystopia"},
	{"mystery", "books: Detective fiction, Suspense narrative, Crime investigation"},
	{"minimalist", "lifestyle: Minimalist design, Clean aesthetics, Functional beauty"},
	{"meditation", "lifestyle: Mindfulness practices, Spiritual wellness, Inner peace"},
	{"rock", "music: Rock energy, Electric guitars, Powerful rhythms"},
	{"classical", "music: Orchestral arrangements, Classical composition, Timeless elegance"},
	{"hip-hop", "music: Urban beats, Rap culture, Street art influence"},
	{"electronic", "music: Digital soundscapes, Synthesizer textures, Modern production"},
	{"fantasy", "books: Magical worlds, Epic quests, Mythical creatures"},
	{"thriller", "film: Suspenseful tension, Psychological drama, Intense pacing"},
	{"romance", "books: Emotional depth, Love stories, Heartfelt connections"},
	{"comedy", "film: Humorous situations, Light-hearted storytelling, Witty dialogue"},
	{"drama", "film: Character development, Emotional intensity, Realistic storytelling"},
	{"travel", "lifestyle: Cultural exploration, Geographic diversity, Adventure themes"},
	{"adventure", "lifestyle: Exploration spirit, Risk-taking, Discovery narratives"},
	{"historical", "books: Period settings, Historical accuracy, Time-travel themes"},
	{"contemporary", "lifestyle: Modern settings, Current social issues, Present-day relevance"},
	{"urban", "lifestyle: City life, Metropolitan culture, Street-level stories"},
	{"rural", "lifestyle: Countryside settings, Natural environments, Community focus"},
	{"futuristic", "film: Advanced technology, Sci-fi aesthetics, Tomorrow's world"},
	{"vintage", "lifestyle: Retro aesthetics, Nostalgic themes, Classic style"},
	{"modern", "lifestyle: Contemporary design, Current trends, Present-day relevance"},
}

// ContextFromPreferences turns taste-profile entries into a cultural context string
// without calling the affinity API. Only the first five preferences are considered.
func ContextFromPreferences(preferences []string) string {
	if len(preferences) == 0 {
		return ""
	}

	limited := preferences
	if len(limited) > 5 {
		limited = limited[:5]
	}

	contexts := make([]string, 0, len(limited))
	for _, pref := range limited {
		lower := strings.ToLower(pref)
		for _, rule := range themeRules {
			if strings.Contains(lower, rule.keyword) {
				contexts = append(contexts, rule.context)
				break
			}
		}
	}
	if len(contexts) > 0 {
		return strings.Join(contexts, "; ")
	}

	generic := preferences
	if len(generic) > 3 {
		generic = generic[:3]
	}
	return fmt.Sprintf("cultural: %s influences", strings.Join(generic, ", "))
}

// MergeContext appends addition to current unless it is already present.
func MergeContext(current, addition string) string {
	addition = strings.TrimSpace(addition)
	current = strings.TrimSpace(current)
	switch {
	case addition == "":
		return current
	case current == "":
		return addition
	case strings.Contains(current, addition):
		return current
	default:
		return current + "; " + addition
	}
}
