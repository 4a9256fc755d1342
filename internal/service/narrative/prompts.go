package narrative

import (
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/narravox/narravox/backend/internal/model/story"
)

// historyMessages is how many prior entries (user inputs and continuations) are sent as context.
const historyMessages = 6

const (
	openerSystemPrompt = "You are a creative storyteller who crafts engaging narratives. " +
		"Create vivid, immersive story openings that incorporate cultural elements naturally. " +
		"Keep responses to 2-3 paragraphs."
	continueSystemPrompt = "You are continuing a collaborative story. " +
		"Maintain narrative consistency and incorporate cultural elements naturally. " +
		"Respond with 2-3 paragraphs that advance the plot."
	branchSystemPrompt = "You are a creative storyteller generating branching narrative options. " +
		"Provide exactly 3 distinct, engaging choices."
)

// FallbackBranches is returned when the model output cannot be parsed into three options.
var FallbackBranches = []string{
	"Continue with the current storyline",
	"Introduce a plot twist",
	"Shift perspective to another character",
}

func openerQuery(prompt, culturalContext string) string {
	query := "Create an engaging story opening based on: " + prompt
	if culturalContext != "" {
		query += "\n\nIncorporate these cultural elements naturally: " + culturalContext
	}
	return query
}

func continueQuery(input, culturalContext string) string {
	if culturalContext == "" {
		return input
	}
	return input + "\n\nConsider incorporating: " + culturalContext
}

func branchQuery(storyText, culturalContext string) string {
	return fmt.Sprintf(`Based on this story:

%s

Generate 3 distinct continuation options that:
1. Advance the plot in different directions
2. Incorporate these cultural elements: %s
3. Each option should be 1-2 sentences

Format as:
Option 1: [continuation]
Option 2: [continuation]
Option 3: [continuation]`, storyText, culturalContext)
}

// historyFromTurns flattens turns into alternating user/assistant messages and keeps the tail.
func historyFromTurns(turns []story.Turn) []*schema.Message {
	messages := make([]*schema.Message, 0, len(turns)*2)
	for _, turn := range turns {
		if turn.UserInput != "" {
			messages = append(messages, schema.UserMessage(turn.UserInput))
		}
		if turn.Continuation != "" {
			messages = append(messages, schema.AssistantMessage(turn.Continuation, nil))
		}
	}
	if len(messages) > historyMessages {
		messages = messages[len(messages)-historyMessages:]
	}
	return messages
}

// parseBranches extracts "Option N:" lines. Anything other than exactly three options yields the fallback set.
func parseBranches(content string) []string {
	options := make([]string, 0, 3)
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "*-# "))
		line = strings.ReplaceAll(line, "**", "")
		for _, prefix := range []string{"Option 1:", "Option 2:", "Option 3:"} {
			if strings.HasPrefix(line, prefix) {
				if text := strings.TrimSpace(strings.TrimPrefix(line, prefix)); text != "" {
					options = append(options, text)
				}
				break
			}
		}
	}
	if len(options) != 3 {
		return append([]string(nil), FallbackBranches...)
	}
	return options
}
