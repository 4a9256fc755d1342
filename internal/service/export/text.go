package export

import (
	"fmt"
	"strings"
)

const timeLayout = "2006-01-02 15:04:05 UTC"

// Text renders the plain-text export.
func Text(doc Document) string {
	var b strings.Builder
	line := func(format string, args ...any) {
		fmt.Fprintf(&b, format, args...)
		b.WriteByte('\n')
	}

	line("NARRAVOX STORY")
	line("%s", strings.Repeat("=", 50))
	line("Session ID: %s", doc.SessionID)
	line("Created: %s", doc.ExportedAt.Format(timeLayout))
	line("Turns: %d", doc.TurnCount)
	line("")

	if doc.CulturalContext != "" {
		line("CULTURAL CONTEXT:")
		line("%s", strings.Repeat("-", 20))
		line("%s", doc.CulturalContext)
		line("")
	}

	line("STORY:")
	line("%s", strings.Repeat("-", 20))
	line("")
	for _, turn := range doc.Turns {
		line("TURN %d", turn.Number)
		if turn.UserInput != "" {
			line("[YOU]")
			line("%s", turn.UserInput)
		}
		line("[STORY]")
		line("%s", turn.Continuation)
		line("")
	}

	if len(doc.Insights) > 0 {
		line("CULTURAL INSIGHTS:")
		line("%s", strings.Repeat("-", 20))
		for _, insight := range doc.Insights {
			line("%s: %s", insight.Title, insight.Explanation)
		}
		line("")
	}
	return b.String()
}
