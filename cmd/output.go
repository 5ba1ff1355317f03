package cmd

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
)

var (
	cyan   = color.New(color.FgHiCyan).SprintFunc()
	green  = color.New(color.FgHiGreen).SprintFunc()
	yellow = color.New(color.FgHiYellow).SprintFunc()
	red    = color.New(color.FgHiRed).SprintFunc()
)

// confidenceColor colors a confidence score by how far it can be trusted.
func confidenceColor(score float64) string {
	s := formatScore(score)
	switch {
	case score >= 0.8:
		return green(s)
	case score >= 0.5:
		return yellow(s)
	default:
		return red(s)
	}
}

// newTable creates a borderless left-aligned table.
func newTable(w io.Writer, headers ...string) *tablewriter.Table {
	table := tablewriter.NewTable(w,
		tablewriter.WithHeaderAlignment(tw.AlignLeft),
		tablewriter.WithRowAlignment(tw.AlignLeft),
		tablewriter.WithRendition(tw.Rendition{
			Borders: tw.BorderNone,
			Settings: tw.Settings{
				Lines:      tw.LinesNone,
				Separators: tw.SeparatorsNone,
			},
		}),
		tablewriter.WithPadding(tw.Padding{Left: "", Right: "  "}),
	)
	table.Header(headers)
	return table
}

func formatScore(score float64) string { return fmt.Sprintf("%.2f", score) }
