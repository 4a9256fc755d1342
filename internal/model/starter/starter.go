package starter

// Starter is a ready-made story concept offered to users who do not want to type one.
type Starter struct {
	ID     string   `json:"id" yaml:"id"`
	Title  string   `json:"title" yaml:"title"`
	Prompt string   `json:"prompt" yaml:"prompt"`
	Tags   []string `json:"tags,omitempty" yaml:"tags"`
}

// Seed provides the quick-start examples shown on an empty session.
func Seed() []Starter {
	return []Starter{
		{
			ID:     "cyberpunk-jazz",
			Title:  "CYBERPUNK + JAZZ",
			Prompt: "A cyberpunk thriller with jazz influences in Neo-Tokyo",
			Tags:   []string{"cyberpunk", "jazz", "thriller"},
		},
		{
			ID:     "romance-vinyl",
			Title:  "ROMANCE + VINYL",
			Prompt: "A romantic comedy involving vintage vinyl records and food trucks",
			Tags:   []string{"romance", "vintage", "comedy"},
		},
		{
			ID:     "fantasy-hiphop",
			Title:  "FANTASY + HIP-HOP",
			Prompt: "A fantasy adventure combining Norse mythology with modern hip-hop culture",
			Tags:   []string{"fantasy", "hip-hop", "adventure"},
		},
		{
			ID:     "scifi-classical",
			Title:  "SCI-FI + CLASSICAL",
			Prompt: "A space opera where classical music holds the key to interstellar communication",
			Tags:   []string{"sci-fi", "classical"},
		},
	}
}

// SurprisePrompts is the pool used by the surprise-me action.
func SurprisePrompts() []string {
	return []string{
		"A cyberpunk detective in Neo-Tokyo discovers jazz music holds the key to solving crimes",
		"A vintage vinyl collector in Paris finds love through shared passion for indie music",
		"A classical musician in Vienna discovers hip-hop culture changes their perspective on tradition",
		"A street artist in Berlin combines graffiti with ancient calligraphy techniques",
		"A tea ceremony master in Kyoto incorporates modern electronic music into traditional rituals",
		"A fashion designer in Milan finds inspiration in ancient tribal patterns and modern streetwear",
		"A chef in New Orleans blends Creole traditions with molecular gastronomy",
		"A photographer in Morocco captures the intersection of traditional markets and digital commerce",
	}
}
