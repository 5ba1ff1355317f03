package cmd

import "github.com/urfave/cli/v2"

// NewCLI builds the prchat command line application.
func NewCLI(version string) *cli.App {
	return &cli.App{
		Name:    "prchat",
		Usage:   "Conversational assistant for GitHub pull requests",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE` (default: ./prchat.toml or ~/.prchat.toml)",
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Load environment overrides from `FILE` before reading the config",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable debug logging",
			},
		},
		Commands: []*cli.Command{
			APICommand(),
			AskCommand(),
			SessionsCommand(),
			ConfigCommand(),
		},
	}
}
