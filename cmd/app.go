package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/livereview/prchat/internal/aiconnectors"
	"github.com/livereview/prchat/internal/broadcast"
	"github.com/livereview/prchat/internal/chat"
	"github.com/livereview/prchat/internal/classifier"
	"github.com/livereview/prchat/internal/config"
	"github.com/livereview/prchat/internal/contextagg"
	"github.com/livereview/prchat/internal/conversation"
	"github.com/livereview/prchat/internal/database"
	"github.com/livereview/prchat/internal/jobqueue"
	"github.com/livereview/prchat/internal/llm"
	"github.com/livereview/prchat/internal/logging"
	"github.com/livereview/prchat/internal/orchestrator"
	"github.com/livereview/prchat/internal/validator"
)

// prStorage is what both PR data backends provide.
type prStorage interface {
	contextagg.Storage
	chat.PRLookup
}

// App holds the wired components shared by the commands.
type App struct {
	Config  *config.Config
	DB      *sql.DB
	Hub     *broadcast.Hub
	Tracker *conversation.Tracker
	Chat    *chat.Service
	Queue   *jobqueue.JobQueue
}

// loadConfig applies --env-file, loads the configuration and sets up
// logging.
func loadConfig(c *cli.Context) (*config.Config, error) {
	if envFile := c.String("env-file"); envFile != "" {
		if err := LoadEnvFile(envFile); err != nil {
			return nil, fmt.Errorf("failed to load env file: %w", err)
		}
	}
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	level := cfg.Logging.Level
	if c.Bool("verbose") {
		level = "debug"
	}
	logging.Setup(level, cfg.Logging.Pretty)
	return cfg, nil
}

// NewApp wires the chat pipeline. PR data comes from the fixtures file when
// one is configured, otherwise from Postgres. withJobs starts the River
// queue when jobs are enabled and a database is available.
func NewApp(ctx context.Context, cfg *config.Config, withJobs bool) (*App, error) {
	app := &App{Config: cfg}

	var storage prStorage
	var sessions chat.SessionStore
	db, err := database.NewDB(ctx, cfg.Database.URL)
	switch {
	case err == nil:
		app.DB = db
		if err := database.EnsureSchema(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
		sessions = chat.NewPostgresStore(db)
		storage = contextagg.NewPostgresStorage(db)
	case errors.Is(err, database.ErrNoDatabaseURL) && cfg.Context.FixturesPath != "":
		log.Warn().Msg("No database configured, chat sessions are kept in memory")
		sessions = chat.NewInMemoryStore()
	default:
		return nil, err
	}
	if cfg.Context.FixturesPath != "" {
		fixtures, err := contextagg.LoadFixtures(cfg.Context.FixturesPath)
		if err != nil {
			app.Close(ctx)
			return nil, err
		}
		storage = fixtures
		log.Info().Str("path", cfg.Context.FixturesPath).Msg("Loaded PR fixtures")
	}

	completer, err := newCompleter(ctx, cfg)
	if err != nil {
		app.Close(ctx)
		return nil, err
	}

	callOpts := llm.DefaultCallOptions()
	callOpts.Temperature = cfg.LLM.Temperature
	callOpts.MaxTokens = cfg.LLM.MaxTokens
	client := llm.NewTieredClient(completer, llm.TieredOptions{
		PrimaryModel:   cfg.LLM.PrimaryModel,
		SecondaryModel: cfg.LLM.SecondaryModel,
		MaxAttempts:    cfg.LLM.MaxAttempts,
		BaseDelay:      cfg.LLM.BaseDelay,
		RequestTimeout: cfg.LLM.RequestTimeout,
		CallOptions:    callOpts,
	})

	aggOpts := contextagg.Options{
		FetchTimeout: cfg.Context.FetchTimeout,
		MaxFiles:     cfg.Context.MaxFiles,
		MaxComments:  cfg.Context.MaxComments,
		PreviewChars: cfg.Context.PatchPreviewChars,
	}
	if cfg.Context.ScanSecrets {
		aggOpts.Redactor = contextagg.NewSecretScanner()
	}

	app.Tracker = conversation.NewTracker(nil, conversation.Options{RingSize: cfg.Conversation.RingSize})
	app.Hub = broadcast.NewHub(broadcast.AccessCheckerFunc(func(ctx context.Context, sessionID string, userID int64) error {
		return app.Chat.CheckAccess(ctx, sessionID, userID)
	}))
	app.Chat = chat.NewService(chat.Deps{
		Store:      sessions,
		PRs:        storage,
		Classifier: classifier.New(),
		Context:    contextagg.New(storage, aggOpts),
		Tracker:    app.Tracker,
		Model:      orchestrator.New(client, app.Tracker, app.Tracker, orchestrator.Options{HistoryTurns: cfg.Chat.HistoryTurns}),
		Validator:  validator.New(validator.Options{}),
		Broadcast:  app.Hub,
	}, chat.Options{
		HistoryTurns:       cfg.Chat.HistoryTurns,
		MaxQuestionLength:  cfg.Chat.MaxQuestionLength,
		RateLimitPerMinute: cfg.Chat.RateLimitPerMinute,
		RateLimitBurst:     cfg.Chat.RateLimitBurst,
		TranscriptDir:      cfg.Logging.TranscriptDir,
	})

	if withJobs && cfg.Jobs.Enabled && app.DB != nil {
		dbURL, err := database.ResolveURL(cfg.Database.URL)
		if err != nil {
			app.Close(ctx)
			return nil, err
		}
		app.Queue, err = jobqueue.NewJobQueue(ctx, dbURL, jobqueue.Deps{
			Cleaner: jobqueue.SessionCleanerFunc(app.Chat.CleanupSession),
			Evictor: app.Chat,
		}, app.queueConfig())
		if err != nil {
			app.Close(ctx)
			return nil, fmt.Errorf("failed to create job queue: %w", err)
		}
		app.Chat.SetCleanupScheduler(app.Queue)
	}
	return app, nil
}

func newCompleter(ctx context.Context, cfg *config.Config) (llm.Completer, error) {
	provider, err := aiconnectors.ParseProvider(cfg.LLM.Provider)
	if err != nil {
		return nil, err
	}
	completer, err := aiconnectors.NewCompleter(ctx, aiconnectors.ConnectorOptions{
		Provider:     provider,
		APIKey:       cfg.LLM.APIKey,
		BaseURL:      cfg.LLM.BaseURL,
		DefaultModel: cfg.LLM.PrimaryModel,
		NativeSDK:    cfg.LLM.NativeSDK,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create model client: %w", err)
	}
	return completer, nil
}

// pingModel checks that the primary model answers with the configured
// credentials.
func pingModel(ctx context.Context, cfg *config.Config) error {
	completer, err := newCompleter(ctx, cfg)
	if err != nil {
		return err
	}
	timeout := cfg.LLM.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return aiconnectors.Ping(ctx, completer, cfg.LLM.PrimaryModel)
}

func (a *App) queueConfig() *jobqueue.QueueConfig {
	return &jobqueue.QueueConfig{
		MaxWorkers:    a.Config.Jobs.MaxWorkers,
		IdleTTL:       a.Config.Conversation.IdleTTL,
		SweepInterval: a.Config.Conversation.SweepInterval,
	}
}

// StartBackground runs the job queue, or the in-process idle sweep when
// there is no queue. It returns once ctx is done and background work has
// stopped.
func (a *App) StartBackground(ctx context.Context) error {
	if a.Queue == nil {
		jobqueue.RunLocalSweep(ctx, a.Chat, a.queueConfig())
		return nil
	}
	if err := a.Queue.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}

// Close releases the queue and the database.
func (a *App) Close(ctx context.Context) {
	if a.Queue != nil {
		if err := a.Queue.Stop(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to stop job queue")
		}
	}
	if a.DB != nil {
		a.DB.Close()
	}
}
