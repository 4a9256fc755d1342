package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/narravox/narravox/backend/internal/service/export"
	"github.com/narravox/narravox/backend/internal/service/session"
	storyservice "github.com/narravox/narravox/backend/internal/service/story"
)

const playHelp = `commands: /branches  /choose N  /enrich  /export txt|pdf|json  /quit
anything else continues the story`

func newPlayCmd() *cobra.Command {
	var (
		surprise bool
		stream   bool
		starter  string
	)

	cmd := &cobra.Command{
		Use:   "play [prompt]",
		Short: "Start a story and continue it interactively",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			svc := a.svc
			sess, err := svc.Sessions().CreateSession(ctx)
			if err != nil {
				return err
			}

			p := &player{svc: svc, sessionID: sess.ID, stream: stream}
			fmt.Println(headerStyle.Render("NARRAVOX"))
			fmt.Println(mutedStyle.Render(playHelp))
			fmt.Println()

			switch {
			case surprise:
				err = p.run(ctx, func(ctx context.Context) (storyservice.Outcome, error) {
					return svc.Surprise(ctx, sess.ID)
				})
			case starter != "":
				item, ok := a.starters.FindByID(starter)
				if !ok {
					return fmt.Errorf("unknown starter %q", starter)
				}
				err = p.begin(ctx, item.Prompt)
			case len(args) == 1:
				err = p.begin(ctx, args[0])
			default:
				return errors.New("give a prompt, --starter or --surprise")
			}
			if err != nil {
				return err
			}
			return p.loop(ctx, bufio.NewScanner(os.Stdin))
		},
	}

	cmd.Flags().BoolVar(&surprise, "surprise", false, "Start from a random prompt")
	cmd.Flags().StringVar(&starter, "starter", "", "Start from a catalogue starter id")
	cmd.Flags().BoolVar(&stream, "stream", false, "Print text as it is generated")
	return cmd
}

type player struct {
	svc       *storyservice.Service
	sessionID string
	stream    bool
}

func (p *player) begin(ctx context.Context, prompt string) error {
	return p.advance(ctx, prompt, func(ctx context.Context) (storyservice.Outcome, error) {
		return p.svc.Start(ctx, p.sessionID, prompt)
	})
}

// advance continues with free text, streaming when asked.
func (p *player) advance(ctx context.Context, input string, fallback func(context.Context) (storyservice.Outcome, error)) error {
	if !p.stream {
		return p.run(ctx, fallback)
	}
	return p.run(ctx, func(ctx context.Context) (storyservice.Outcome, error) {
		out, err := p.svc.StreamTurn(ctx, p.sessionID, input, func(chunk string) error {
			fmt.Print(storyStyle.Inline(true).Render(chunk))
			return nil
		})
		fmt.Println()
		return out, err
	})
}

func (p *player) run(ctx context.Context, step func(context.Context) (storyservice.Outcome, error)) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	fmt.Println(mutedStyle.Render("→ writing..."))
	out, err := step(ctx)
	if err != nil {
		return err
	}
	printOutcome(out)
	if out.Complete {
		fmt.Println(successStyle.Render("✓ The story is complete."))
	}
	return nil
}

func (p *player) loop(ctx context.Context, in *bufio.Scanner) error {
	for {
		fmt.Print(youStyle.Render("> "))
		if !in.Scan() {
			return in.Err()
		}
		line := strings.TrimSpace(in.Text())
		if line == "" {
			continue
		}

		err := p.command(ctx, line)
		switch {
		case errors.Is(err, errQuit):
			return nil
		case recoverable(err):
			fmt.Println(warningStyle.Render(err.Error()))
		case err != nil:
			return err
		}
	}
}

// recoverable reports whether the player can carry on after err, for example to export a finished story.
func recoverable(err error) bool {
	return errors.Is(err, storyservice.ErrInvalidInput) ||
		errors.Is(err, storyservice.ErrNoBranch) ||
		errors.Is(err, storyservice.ErrNotStarted) ||
		errors.Is(err, session.ErrStoryComplete)
}

var errQuit = errors.New("quit")

func (p *player) command(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return errQuit
	case "/help":
		fmt.Println(mutedStyle.Render(playHelp))
		return nil
	case "/branches":
		return p.run(ctx, func(ctx context.Context) (storyservice.Outcome, error) {
			return p.svc.Branches(ctx, p.sessionID)
		})
	case "/choose":
		if len(fields) != 2 {
			return fmt.Errorf("%w: usage /choose N", storyservice.ErrInvalidInput)
		}
		index, err := strconv.Atoi(fields[1])
		if err != nil {
			return fmt.Errorf("%w: %q is not a number", storyservice.ErrInvalidInput, fields[1])
		}
		return p.run(ctx, func(ctx context.Context) (storyservice.Outcome, error) {
			return p.svc.ChooseBranch(ctx, p.sessionID, index)
		})
	case "/enrich":
		return p.run(ctx, func(ctx context.Context) (storyservice.Outcome, error) {
			return p.svc.Enrich(ctx, p.sessionID)
		})
	case "/export":
		format := ""
		if len(fields) > 1 {
			format = fields[1]
		}
		return p.export(ctx, format)
	}

	return p.advance(ctx, line, func(ctx context.Context) (storyservice.Outcome, error) {
		return p.svc.Continue(ctx, p.sessionID, line)
	})
}

func (p *player) export(ctx context.Context, raw string) error {
	format, err := export.ParseFormat(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", storyservice.ErrInvalidInput, err)
	}
	sess, err := p.svc.Sessions().GetSession(ctx, p.sessionID)
	if err != nil {
		return err
	}
	doc := export.NewDocument(sess, sess.UpdatedAt)
	name := export.Filename(sess.ID, format)

	f, err := os.Create(name)
	if err != nil {
		return err
	}
	defer f.Close()

	switch format {
	case export.FormatPDF:
		err = export.PDF(doc, f)
	case export.FormatJSON:
		var data []byte
		if data, err = export.JSON(doc); err == nil {
			_, err = f.Write(data)
		}
	default:
		_, err = f.WriteString(export.Text(doc))
	}
	if err != nil {
		return err
	}
	fmt.Println(successStyle.Render("✓ Saved " + name))
	return nil
}
