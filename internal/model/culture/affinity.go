package culture

import "strings"

// Domain names a cultural category returned by the affinity API.
type Domain string

const (
	Music      Domain = "music"
	Film       Domain = "film"
	Television Domain = "television"
	Books      Domain = "books"
	Travel     Domain = "travel"
	Brands     Domain = "brands"
	Lifestyle  Domain = "lifestyle"
)

// Source tells whether an affinity came from the remote API or from local fallback themes.
type Source string

const (
	SourceAPI      Source = "api"
	SourceFallback Source = "fallback"
)

// Affinity is one cultural association discovered for a piece of user text.
type Affinity struct {
	Entity      string  `json:"entity"`
	Domain      Domain  `json:"domain"`
	Score       float64 `json:"score"`
	Explanation string  `json:"explanation,omitempty"`
	Source      Source  `json:"source"`
}

// Domains lists the domains in the order they are rendered.
func Domains() []Domain {
	return []Domain{Film, Music, Books, Travel, Brands, Television, Lifestyle}
}

// ParseDomain normalises a free-form domain name.
func ParseDomain(raw string) (Domain, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "music":
		return Music, true
	case "film", "movie", "movies":
		return Film, true
	case "television", "tv", "tv_show":
		return Television, true
	case "books", "book":
		return Books, true
	case "travel", "place", "places":
		return Travel, true
	case "brands", "brand":
		return Brands, true
	case "lifestyle":
		return Lifestyle, true
	default:
		return "", false
	}
}

// EntityType maps a domain onto the Qloo entity URN used for filtering.
func (d Domain) EntityType() string {
	switch d {
	case Music:
		return "urn:entity:music"
	case Film:
		return "urn:entity:movie"
	case Television:
		return "urn:entity:tv_show"
	case Books:
		return "urn:entity:book"
	case Travel:
		return "urn:entity:place"
	case Brands:
		return "urn:entity:brand"
	default:
		return ""
	}
}

// GroupByDomain buckets affinities per domain, keeping input order inside each bucket.
func GroupByDomain(items []Affinity) map[Domain][]Affinity {
	grouped := make(map[Domain][]Affinity)
	for _, item := range items {
		grouped[item.Domain] = append(grouped[item.Domain], item)
	}
	return grouped
}

// RenderContext produces the "domain: a, b, c; domain: d" string fed to the narrative prompt.
// At most perDomain entities are listed for each domain.
func RenderContext(items []Affinity, perDomain int) string {
	if len(items) == 0 {
		return ""
	}
	if perDomain <= 0 {
		perDomain = 3
	}

	grouped := GroupByDomain(items)
	parts := make([]string, 0, len(grouped))
	for _, domain := range Domains() {
		bucket := grouped[domain]
		if len(bucket) == 0 {
			continue
		}
		if len(bucket) > perDomain {
			bucket = bucket[:perDomain]
		}
		names := make([]string, 0, len(bucket))
		for _, item := range bucket {
			names = append(names, item.Entity)
		}
		parts = append(parts, string(domain)+": "+strings.Join(names, ", "))
	}
	return strings.Join(parts, "; ")
}
