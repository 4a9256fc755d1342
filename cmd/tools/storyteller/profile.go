package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/narravox/narravox/backend/internal/config"
)

func newProfileCmd() *cobra.Command {
	var prefs map[string]string

	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Build a taste profile and open a story from it",
		Example: `  storyteller profile --pref music=jazz,bossa nova --pref travel=japan`,
		RunE: func(cmd *cobra.Command, args []string) error {
			preferences := parsePreferences(prefs)
			if len(preferences) == 0 {
				return fmt.Errorf("at least one --pref category=item[,item] is required")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			a, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			sess, err := a.svc.Sessions().CreateSession(ctx)
			if err != nil {
				return err
			}

			fmt.Println(mutedStyle.Render("→ building taste profile..."))
			out, err := a.svc.BuildProfile(ctx, sess.ID, preferences)
			if err != nil {
				return err
			}
			if out.Profile != nil {
				fmt.Println(headerStyle.Render(fmt.Sprintf("Taste profile (%s)", out.Profile.Source)))
				for _, s := range out.Profile.Suggestions {
					fmt.Println(youStyle.Render("  • " + s))
				}
				fmt.Println()
			}
			printOutcome(out)
			return nil
		},
	}

	cmd.Flags().StringToStringVar(&prefs, "pref", nil, "Preference category and comma-separated items, e.g. music=jazz,soul")
	return cmd
}

// parsePreferences splits each category's comma list into items.
func parsePreferences(raw map[string]string) map[string][]string {
	out := make(map[string][]string, len(raw))
	for category, items := range raw {
		category = strings.ToLower(strings.TrimSpace(category))
		for _, item := range strings.Split(items, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out[category] = append(out[category], item)
			}
		}
	}
	return out
}

func newStartersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "starters",
		Short: "List the built-in story starters",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			starters, err := loadCatalogue(cfg.Share.StartersFile)
			if err != nil {
				return err
			}
			for _, s := range starters.List() {
				fmt.Printf("%s  %s\n", headerStyle.Render(fmt.Sprintf("%-18s", s.ID)), youStyle.Render(s.Title))
				fmt.Println(mutedStyle.Render("    " + s.Prompt))
			}
			return nil
		},
	}
}
