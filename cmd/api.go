package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/livereview/prchat/internal/api"
	"github.com/livereview/prchat/internal/api/auth"
	"github.com/livereview/prchat/internal/config"
)

// APICommand returns the CLI command for starting the API server
func APICommand() *cli.Command {
	return &cli.Command{
		Name:  "api",
		Usage: "Start the PR chat API server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port for the API server (overrides server.port)",
			},
		},
		Action: runAPI,
	}
}

func runAPI(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if port := c.Int("port"); port > 0 {
		cfg.Server.Port = port
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := NewApp(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		app.Close(closeCtx)
	}()

	if err := pingModel(ctx, cfg); err != nil {
		log.Warn().Err(err).Str("model", cfg.LLM.PrimaryModel).Msg("Model health check failed, questions will get fallback answers until it recovers")
	}

	server := api.NewServer(api.Options{
		Port:        cfg.Server.Port,
		CORSOrigins: cfg.Server.CORSOrigins,
	}, app.Chat, app.Hub, auth.NewTokenService(cfg.Auth.JWTSecret))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Start(gctx) })
	g.Go(func() error { return app.StartBackground(gctx) })

	log.Info().Int("port", cfg.Server.Port).Bool("jobs", app.Queue != nil).Msg("PR chat service started")
	return g.Wait()
}
