package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	storymodel "github.com/narravox/narravox/backend/internal/model/story"
	storyservice "github.com/narravox/narravox/backend/internal/service/story"
)

var (
	headerColor  = lipgloss.Color("#F780FF")
	youColor     = lipgloss.Color("#8BE9FD")
	storyColor   = lipgloss.Color("#E9E9F4")
	mutedColor   = lipgloss.Color("#6272A4")
	warningColor = lipgloss.Color("#FFB86C")
	errorColor   = lipgloss.Color("#FF5555")
	successColor = lipgloss.Color("#50FA7B")

	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(headerColor)
	youStyle     = lipgloss.NewStyle().Foreground(youColor)
	storyStyle   = lipgloss.NewStyle().Foreground(storyColor).Width(80)
	mutedStyle   = lipgloss.NewStyle().Foreground(mutedColor).Italic(true)
	warningStyle = lipgloss.NewStyle().Foreground(warningColor)
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(errorColor)
	successStyle = lipgloss.NewStyle().Foreground(successColor)
)

func printOutcome(out storyservice.Outcome) {
	for _, n := range out.Notices {
		fmt.Println(warningStyle.Render("! " + n.Message))
	}
	if out.Turn != nil {
		printTurn(*out.Turn)
	}
	if len(out.Affinities) > 0 {
		names := make([]string, 0, len(out.Affinities))
		for _, a := range out.Affinities {
			names = append(names, fmt.Sprintf("%s (%s)", a.Entity, a.Domain))
		}
		fmt.Println(mutedStyle.Render("cultural threads: " + strings.Join(names, ", ")))
	}
	for i, option := range out.BranchOptions {
		fmt.Println(youStyle.Render(fmt.Sprintf("  %d. %s", i+1, option)))
	}
	fmt.Println(mutedStyle.Render(fmt.Sprintf("turn %d/%d", out.Stats.TurnsCompleted, out.Stats.MaxTurns)))
}

func printTurn(turn storymodel.Turn) {
	fmt.Println(headerStyle.Render(fmt.Sprintf("TURN %d", turn.Number)))
	fmt.Println(youStyle.Render("[YOU] " + turn.UserInput))
	fmt.Println(storyStyle.Render(turn.Continuation))
	fmt.Println()
}
