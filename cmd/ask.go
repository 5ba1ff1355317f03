package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/livereview/prchat/internal/chat"
)

// AskCommand returns the ask command
func AskCommand() *cli.Command {
	return &cli.Command{
		Name:      "ask",
		Usage:     "Ask a question about a pull request or repository",
		ArgsUsage: "QUESTION",
		Flags: []cli.Flag{
			userFlag,
			&cli.StringFlag{Name: "session", Aliases: []string{"s"}, Usage: "Continue session `ID`"},
			&cli.StringFlag{Name: "pr-url", Usage: "Start a session about this GitHub pull request `URL`"},
			&cli.StringFlag{Name: "repository-id", Usage: "Start a repository-wide session"},
		},
		Action: runAsk,
	}
}

func runAsk(c *cli.Context) error {
	question := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if question == "" {
		return errors.New("a QUESTION is required")
	}
	userID := c.Int64("user")

	return withApp(c, func(ctx context.Context, app *App) error {
		sessionID := c.String("session")
		if sessionID == "" {
			sess, err := app.Chat.CreateSession(ctx, userID, chat.CreateSessionRequest{
				PRURL:        c.String("pr-url"),
				RepositoryID: c.String("repository-id"),
			})
			if err != nil {
				return fmt.Errorf("failed to create session: %w", err)
			}
			sessionID = sess.ID
			fmt.Fprintf(c.App.ErrWriter, "Started session %s (%s)\n", cyan(sess.ID), sess.Name)
		}

		res, err := app.Chat.AskQuestion(ctx, userID, sessionID, question)
		if err != nil {
			return err
		}

		status := string(res.Classification)
		if res.Fallback {
			status += ", " + yellow("fallback")
		}
		fmt.Fprintf(c.App.Writer, "[%s] confidence %s\n\n%s\n", status, confidenceColor(res.Confidence), res.Answer)
		if len(res.FollowupQuestions) > 0 {
			fmt.Fprintf(c.App.Writer, "\n%s\n%s", cyan("You could also ask:"), joinLines("  - ", res.FollowupQuestions))
		}
		return nil
	})
}
