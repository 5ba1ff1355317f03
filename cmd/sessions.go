package cmd

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/livereview/prchat/internal/chat"
	"github.com/livereview/prchat/internal/chatmodel"
)

var userFlag = &cli.Int64Flag{
	Name:     "user",
	Aliases:  []string{"u"},
	Usage:    "Act as user `ID`",
	Required: true,
}

// SessionsCommand returns the sessions command
func SessionsCommand() *cli.Command {
	return &cli.Command{
		Name:  "sessions",
		Usage: "Inspect chat sessions",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List a user's chat sessions, most recently active first",
				Flags: []cli.Flag{
					userFlag,
					&cli.StringFlag{Name: "repository-id", Usage: "Only sessions about this repository"},
					&cli.StringFlag{Name: "pr-metadata-id", Usage: "Only sessions about this pull request"},
				},
				Action: runSessionsList,
			},
			{
				Name:      "show",
				Usage:     "Print a session's messages",
				ArgsUsage: "SESSION_ID",
				Flags:     []cli.Flag{userFlag},
				Action:    runSessionsShow,
			},
			{
				Name:      "analytics",
				Usage:     "Summarize question types and context usage of a session",
				ArgsUsage: "SESSION_ID",
				Flags:     []cli.Flag{userFlag},
				Action:    runSessionsAnalytics,
			},
		},
	}
}

// withApp loads the configuration, wires the app without background jobs
// and runs fn.
func withApp(c *cli.Context, fn func(ctx context.Context, app *App) error) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	ctx := c.Context
	app, err := NewApp(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer app.Close(context.Background())
	return fn(ctx, app)
}

func sessionArg(c *cli.Context) (string, error) {
	if c.NArg() != 1 {
		return "", fmt.Errorf("expected exactly one SESSION_ID argument")
	}
	return c.Args().First(), nil
}

func runSessionsList(c *cli.Context) error {
	return withApp(c, func(ctx context.Context, app *App) error {
		sessions, err := app.Chat.ListSessions(ctx, c.Int64("user"), chat.SessionFilter{
			RepositoryID: c.String("repository-id"),
			PRMetadataID: c.String("pr-metadata-id"),
		})
		if err != nil {
			return err
		}
		if len(sessions) == 0 {
			fmt.Fprintln(c.App.Writer, "No chat sessions")
			return nil
		}
		table := newTable(c.App.Writer, "ID", "NAME", "TYPE", "LAST ACTIVITY")
		for _, s := range sessions {
			_ = table.Append([]string{cyan(s.ID), s.Name, string(s.Kind), s.LastActivity.Format(time.RFC3339)})
		}
		return table.Render()
	})
}

func runSessionsShow(c *cli.Context) error {
	sessionID, err := sessionArg(c)
	if err != nil {
		return err
	}
	return withApp(c, func(ctx context.Context, app *App) error {
		res, err := app.Chat.GetSession(ctx, c.Int64("user"), sessionID)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "%s (%s)\n\n", cyan(res.Session.Name), res.Session.Kind)
		for _, m := range res.Messages {
			printMessage(c, m)
		}
		return nil
	})
}

func printMessage(c *cli.Context, m chatmodel.Message) {
	if m.Sender == chatmodel.SenderUser {
		fmt.Fprintf(c.App.Writer, "%s %s\n", green("you:"), m.Content)
		return
	}
	header := yellow("bot:")
	if m.Classification != nil {
		header += " [" + string(*m.Classification) + "]"
	}
	if m.Metadata != nil {
		header += " confidence " + confidenceColor(m.Metadata.ConfidenceScore)
	}
	fmt.Fprintf(c.App.Writer, "%s\n%s\n\n", header, m.Content)
}

func runSessionsAnalytics(c *cli.Context) error {
	sessionID, err := sessionArg(c)
	if err != nil {
		return err
	}
	return withApp(c, func(ctx context.Context, app *App) error {
		a, err := app.Chat.SessionAnalytics(ctx, c.Int64("user"), sessionID)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "Session %s: %d answers, average confidence %s\n\n",
			cyan(a.SessionID), a.MessageCount, confidenceColor(a.AvgConfidence))

		table := newTable(c.App.Writer, "KIND", "NAME", "COUNT")
		for _, row := range countRows("query type", a.QueryTypes) {
			_ = table.Append(row)
		}
		for _, row := range countRows("context", a.ContextUsage) {
			_ = table.Append(row)
		}
		return table.Render()
	})
}

// countRows renders a count map as table rows, largest first.
func countRows(kind string, counts map[string]int) [][]string {
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if counts[names[i]] != counts[names[j]] {
			return counts[names[i]] > counts[names[j]]
		}
		return names[i] < names[j]
	})
	rows := make([][]string, 0, len(names))
	for _, name := range names {
		rows = append(rows, []string{kind, name, fmt.Sprint(counts[name])})
	}
	return rows
}

func joinLines(prefix string, items []string) string {
	var b strings.Builder
	for _, it := range items {
		b.WriteString(prefix)
		b.WriteString(it)
		b.WriteString("\n")
	}
	return b.String()
}
