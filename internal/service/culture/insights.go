package culture

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/narravox/narravox/backend/internal/analysis/entities"
	culturemodel "github.com/narravox/narravox/backend/internal/model/culture"
)

const (
	maxSignalTags     = 5
	maxSignalEntities = 3
	maxTagsScanned    = 15
	maxPerDomain      = 3
	defaultRecLimit   = 5
)

var genericTags = map[string]struct{}{
	"coin toss":       {},
	"hair pulling":    {},
	"experiment":      {},
	"timeline":        {},
	"truth or dare":   {},
	"twerking":        {},
	"announcement":    {},
	"thrown out":      {},
	"self absorption": {},
	"coral reef":      {},
	"unwed pregnancy": {},
}

var fallbackThemes = []struct {
	domain culturemodel.Domain
	themes []string
}{
	{culturemodel.Film, []string{"Cinematic storytelling", "Visual narrative", "Dramatic tension"}},
	{culturemodel.Music, []string{"Rhythmic elements", "Melodic themes", "Cultural soundscape"}},
	{culturemodel.Books, []string{"Literary depth", "Character development", "Narrative structure"}},
	{culturemodel.Travel, []string{"Cultural exploration", "Geographic diversity", "Urban landscapes"}},
	{culturemodel.Brands, []string{"Lifestyle integration", "Cultural identity", "Modern aesthetics"}},
}

// Enrichment is the cultural lookup result for one piece of text.
type Enrichment struct {
	Entities   []string                `json:"entities"`
	Affinities []culturemodel.Affinity `json:"affinities"`
	Context    string                  `json:"context"`
}

// Empty reports whether the lookup produced nothing usable.
func (e Enrichment) Empty() bool {
	return e.Context == ""
}

// Affinities returns cross-domain affinities for the given entities, at most three per domain.
func (c *Client) Affinities(ctx context.Context, names []string, domains []culturemodel.Domain) ([]culturemodel.Affinity, error) {
	names = compact(names)
	if len(names) == 0 {
		return nil, ErrNoEntities
	}
	if len(names) > maxSignalTags {
		names = names[:maxSignalTags]
	}

	params := url.Values{}
	params.Set("filter.type", "urn:tag")
	if types := entityTypes(domains); types != "" {
		params.Set("filter.parents.types", types)
	}
	params.Set("signal.interests.tags", strings.Join(names, ","))

	body, err := c.get(ctx, "/v2/insights", params)
	if err != nil {
		return nil, err
	}
	return parseAffinities(body, names), nil
}

// Recommendations returns tag names in the target domain that relate to the seed entities.
func (c *Client) Recommendations(ctx context.Context, seeds []string, domain culturemodel.Domain, limit int) ([]string, error) {
	seeds = compact(seeds)
	if len(seeds) == 0 {
		return nil, ErrNoEntities
	}
	if len(seeds) > maxSignalEntities {
		seeds = seeds[:maxSignalEntities]
	}
	if limit <= 0 {
		limit = defaultRecLimit
	}

	params := url.Values{}
	params.Set("filter.type", "urn:tag")
	if t := domain.EntityType(); t != "" {
		params.Set("filter.parents.types", t)
	}
	params.Set("signal.interests.entities", strings.Join(seeds, ","))

	body, err := c.get(ctx, "/v2/insights", params)
	if err != nil {
		return nil, err
	}

	targets := recommendationTypes(domain)
	result := make([]string, 0, limit)
	tags := gjson.GetBytes(body, "results.tags").Array()
	for i, tag := range tags {
		if i == 10 || len(result) == limit {
			break
		}
		name := strings.TrimSpace(tag.Get("name").String())
		if name == "" || slices.Contains(result, name) {
			continue
		}
		for _, t := range tag.Get("types").Array() {
			if matchesAny(t.String(), targets) {
				result = append(result, name)
				break
			}
		}
	}
	return result, nil
}

// SearchEntities looks up entity identifiers matching query.
func (c *Client) SearchEntities(ctx context.Context, query, entityType string) ([]string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrNoEntities
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("limit", strconv.Itoa(defaultRecLimit))
	if entityType != "" {
		params.Set("type", entityType)
	}

	body, err := c.get(ctx, "/entity_search", params)
	if err != nil {
		return nil, err
	}

	var ids []string
	gjson.GetBytes(body, "results.entities").ForEach(func(_, entity gjson.Result) bool {
		if id := entity.Get("entity_id").String(); id != "" {
			ids = append(ids, id)
		}
		return true
	})
	return ids, nil
}

// Enrich extracts entities from text and renders their affinities as a prompt context.
// Text without recognisable entities yields an empty Enrichment and no error.
func (c *Client) Enrich(ctx context.Context, text string) (Enrichment, error) {
	found := entities.Extract(text)
	if len(found) == 0 {
		return Enrichment{}, nil
	}

	items, err := c.Affinities(ctx, found, nil)
	if err != nil {
		return Enrichment{Entities: found}, err
	}
	return Enrichment{
		Entities:   found,
		Affinities: items,
		Context:    culturemodel.RenderContext(items, maxPerDomain),
	}, nil
}

func parseAffinities(body []byte, signals []string) []culturemodel.Affinity {
	tags := gjson.GetBytes(body, "results.tags")
	if !tags.Exists() {
		return nil
	}

	explanation := fmt.Sprintf("Shared taste signal with %s", strings.Join(signals, ", "))
	perDomain := make(map[culturemodel.Domain][]culturemodel.Affinity)
	for i, tag := range tags.Array() {
		if i == maxTagsScanned {
			break
		}
		name := strings.TrimSpace(tag.Get("name").String())
		if name == "" {
			continue
		}
		if _, generic := genericTags[strings.ToLower(name)]; generic {
			continue
		}
		score := tag.Get("query.affinity").Float()

		for _, t := range tag.Get("types").Array() {
			domain, ok := domainForType(t.String())
			if !ok || hasEntity(perDomain[domain], name) {
				continue
			}
			perDomain[domain] = append(perDomain[domain], culturemodel.Affinity{
				Entity:      name,
				Domain:      domain,
				Score:       score,
				Explanation: explanation,
				Source:      culturemodel.SourceAPI,
			})
		}
	}

	if len(perDomain) == 0 {
		return fallbackAffinities()
	}

	result := make([]culturemodel.Affinity, 0, len(perDomain)*maxPerDomain)
	for _, domain := range culturemodel.Domains() {
		bucket := perDomain[domain]
		if len(bucket) > maxPerDomain {
			bucket = bucket[:maxPerDomain]
		}
		result = append(result, bucket...)
	}
	return result
}

func fallbackAffinities() []culturemodel.Affinity {
	result := make([]culturemodel.Affinity, 0, len(fallbackThemes)*maxPerDomain)
	for _, group := range fallbackThemes {
		for _, theme := range group.themes {
			result = append(result, culturemodel.Affinity{
				Entity:      theme,
				Domain:      group.domain,
				Explanation: "General cultural theme",
				Source:      culturemodel.SourceFallback,
			})
		}
	}
	return result
}

func domainForType(tagType string) (culturemodel.Domain, bool) {
	switch {
	case strings.Contains(tagType, "movie"), strings.Contains(tagType, "tv_show"):
		return culturemodel.Film, true
	case strings.Contains(tagType, "music"):
		return culturemodel.Music, true
	case strings.Contains(tagType, "book"):
		return culturemodel.Books, true
	case strings.Contains(tagType, "place"):
		return culturemodel.Travel, true
	case strings.Contains(tagType, "brand"):
		return culturemodel.Brands, true
	default:
		return "", false
	}
}

func recommendationTypes(domain culturemodel.Domain) []string {
	if domain == culturemodel.Film {
		return []string{culturemodel.Film.EntityType(), culturemodel.Television.EntityType()}
	}
	if t := domain.EntityType(); t != "" {
		return []string{t}
	}
	return nil
}

func entityTypes(domains []culturemodel.Domain) string {
	types := make([]string, 0, len(domains))
	for _, d := range domains {
		if t := d.EntityType(); t != "" {
			types = append(types, t)
		}
	}
	return strings.Join(types, ",")
}

func matchesAny(value string, targets []string) bool {
	for _, target := range targets {
		if strings.Contains(value, target) {
			return true
		}
	}
	return false
}

func hasEntity(items []culturemodel.Affinity, name string) bool {
	for _, item := range items {
		if item.Entity == name {
			return true
		}
	}
	return false
}

func compact(items []string) []string {
	result := make([]string, 0, len(items))
	for _, item := range items {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
