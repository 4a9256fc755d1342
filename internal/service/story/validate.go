package story

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxInputLength is the longest prompt or turn input accepted, in characters.
const MaxInputLength = 500

// ErrInvalidInput wraps every validation failure.
var ErrInvalidInput = errors.New("invalid input")

var (
	unsafePattern = regexp.MustCompile(`(?i)<script[^>]*>|javascript:|on\w+\s*=|data:text/html|vbscript:|<iframe[^>]*>`)
	tagPattern    = regexp.MustCompile(`<[^>]+>`)
)

// ValidateInput rejects empty, overlong or script-like input.
func ValidateInput(text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("%w: please enter some text", ErrInvalidInput)
	}
	if n := utf8.RuneCountInString(text); n > MaxInputLength {
		return fmt.Errorf("%w: input too long (%d characters, maximum %d)", ErrInvalidInput, n, MaxInputLength)
	}
	if unsafePattern.MatchString(text) {
		return fmt.Errorf("%w: input contains potentially unsafe content", ErrInvalidInput)
	}
	return nil
}

// Sanitize strips HTML tags and surrounding whitespace. Escaping is left to whoever renders the text.
func Sanitize(text string) string {
	return strings.TrimSpace(tagPattern.ReplaceAllString(text, ""))
}

// sanitizePreferences cleans taste-profile input and drops empty categories.
func sanitizePreferences(prefs map[string][]string) map[string][]string {
	const maxItems = 10
	cleaned := make(map[string][]string, len(prefs))
	for category, items := range prefs {
		category = strings.ToLower(Sanitize(category))
		if category == "" {
			continue
		}
		for _, item := range items {
			item = Sanitize(item)
			if item == "" || utf8.RuneCountInString(item) > 100 || unsafePattern.MatchString(item) {
				continue
			}
			if len(cleaned[category]) == maxItems {
				break
			}
			cleaned[category] = append(cleaned[category], item)
		}
	}
	return cleaned
}
