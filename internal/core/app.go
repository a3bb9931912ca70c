package core

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog/log"
	"github.com/vrsandeep/transdoc-go/internal/assets"
	"github.com/vrsandeep/transdoc-go/internal/cache"
	"github.com/vrsandeep/transdoc-go/internal/config"
	"github.com/vrsandeep/transdoc-go/internal/db"
	"github.com/vrsandeep/transdoc-go/internal/document"
	"github.com/vrsandeep/transdoc-go/internal/events"
	"github.com/vrsandeep/transdoc-go/internal/inbox"
	"github.com/vrsandeep/transdoc-go/internal/jobs"
	"github.com/vrsandeep/transdoc-go/internal/llm"
	"github.com/vrsandeep/transdoc-go/internal/pipeline"
	"github.com/vrsandeep/transdoc-go/internal/pool"
	"github.com/vrsandeep/transdoc-go/internal/store"
	"github.com/vrsandeep/transdoc-go/internal/websocket"
)

// App holds the core components of the application that are shared
// between the server and the CLI.
type App struct {
	config     *config.Config
	db         *sql.DB
	store      *store.Store
	wsHub      *websocket.Hub
	pool       *pool.Pool
	scheduler  *pipeline.Scheduler
	jobManager *jobs.JobManager

	cache  cache.Cache
	nats   *events.NATSPublisher
	cron   *gocron.Scheduler
	inbox  *inbox.Watcher
	closed bool
}

type options struct {
	factory pool.ClientFactory
	stages  pipeline.Stages
}

type Option func(*options)

// WithClientFactory replaces the factory that turns stored keys into
// remote clients.
func WithClientFactory(f pool.ClientFactory) Option {
	return func(o *options) { o.factory = f }
}

// WithStages replaces the document stages run by the scheduler.
func WithStages(s pipeline.Stages) Option {
	return func(o *options) { o.stages = s }
}

// New sets up and returns a new App instance. It handles loading the
// configuration, initializing the database connection, and running migrations.
func New(opts ...Option) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	database, err := db.InitDB(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := db.RunMigrations(database, assets.MigrationsFS); err != nil {
		// We can't proceed without a valid database schema.
		database.Close()
		return nil, fmt.Errorf("failed to run database migrations: %w", err)
	}

	app, err := Build(cfg, database, opts...)
	if err != nil {
		database.Close()
		return nil, err
	}
	log.Info().Msg("Core application setup complete.")
	return app, nil
}

// Build wires every component on top of an open, migrated database.
func Build(cfg *config.Config, database *sql.DB, opts ...Option) (*App, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	app := &App{
		config: cfg,
		db:     database,
		store:  store.New(database),
		wsHub:  websocket.NewHub(),
	}
	go app.wsHub.Run()

	if o.factory == nil {
		o.factory = app.clientFactory
	}
	keys, err := app.store.ListApiKeys()
	if err != nil {
		return nil, fmt.Errorf("failed to load api keys: %w", err)
	}
	creds := make([]llm.Credential, 0, len(keys))
	for _, k := range keys {
		creds = append(creds, llm.CredentialFromApiKey(k))
	}
	app.pool = pool.New(creds, o.factory,
		pool.WithCap(cfg.Pool.Cap),
		pool.WithMaxRetries(cfg.Pool.MaxRetries),
		pool.WithRetryDelay(cfg.Pool.RetryDelay),
	)
	log.Info().Int("clients", app.pool.Size()).Msg("client pool ready")

	if cfg.Redis.Addr != "" {
		c, err := cache.NewRedis(cfg.Redis.Addr, cfg.Redis.TTL)
		if err != nil {
			log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unavailable, response cache disabled")
		} else {
			app.cache = c
		}
	}

	notifiers := events.Multi{app.wsHub}
	if cfg.NATS.URL != "" {
		pub, err := events.ConnectNATS(cfg.NATS.URL, cfg.NATS.Subject)
		if err != nil {
			log.Warn().Err(err).Msg("nats unavailable, progress events stay local")
		} else {
			app.nats = pub
			notifiers = append(notifiers, pub)
		}
	}

	if o.stages == nil {
		o.stages = pipeline.NewDocumentStages(pipeline.StageConfig{
			StorageRoot:    cfg.Storage.Root,
			WorkRoot:       cfg.Storage.Work,
			TargetLanguage: cfg.Pipeline.TargetLanguage,
			SourceCode:     cfg.Pipeline.SourceCode,
			TargetCode:     cfg.Pipeline.TargetCode,
			FanoutFactor:   cfg.Pipeline.FanoutFactor,
			FanoutCeiling:  cfg.Pipeline.FanoutCeiling,
		},
			document.NewSofficeConverter(cfg.Converter.Binary, cfg.Converter.Timeout),
			document.NewFitzRasterizer(cfg.Render.DPI),
			app.pool, app.cache, app.store)
	}
	app.scheduler = pipeline.NewScheduler(app.store, o.stages, notifiers,
		pipeline.WithWorkers(cfg.Pipeline.Workers),
		pipeline.WithPullTimeout(cfg.Pipeline.PullTimeout),
		pipeline.WithShutdownTimeout(cfg.Pipeline.ShutdownTimeout),
	)

	app.jobManager = jobs.NewManager(app)
	jobs.RegisterAll(app.jobManager)
	return app, nil
}

// clientFactory builds a credential-bound client whose usage is written
// back to the api_keys table.
func (a *App) clientFactory(cred llm.Credential) (llm.RemoteClient, error) {
	client, err := llm.New(cred, llm.Options{
		Model:       a.config.LLM.Model,
		GeminiModel: a.config.LLM.GeminiModel,
		Timeout:     a.config.LLM.Timeout,
	})
	if err != nil {
		return nil, err
	}
	return llm.NewTracked(client, cred.ID, a.store), nil
}

// Start recovers jobs from the previous run and starts the background
// workers, schedules and the drop-folder watcher.
func (a *App) Start() error {
	if _, _, err := a.scheduler.Recover(); err != nil {
		return err
	}
	a.scheduler.Start()
	a.cron = jobs.StartJobs(a)

	if a.config.Inbox.Path != "" {
		w := inbox.NewWatcher(a.config.Inbox.Path, a.config.Storage.Uploads, a.config.Inbox.CollectionID, a.scheduler)
		if err := w.Start(); err != nil {
			return fmt.Errorf("failed to start inbox watcher: %w", err)
		}
		a.inbox = w
	}
	return nil
}

// Shutdown stops the background work started by Start. Jobs still queued
// stay Pending.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	if a.inbox != nil {
		errs = append(errs, a.inbox.Stop())
	}
	if a.cron != nil {
		a.cron.Stop()
	}
	errs = append(errs, a.scheduler.Shutdown(ctx))
	return errors.Join(errs...)
}

// Close gracefully closes the application's resources, like the DB connection.
func (a *App) Close() {
	if a.closed {
		return
	}
	a.closed = true
	if a.cache != nil {
		a.cache.Close()
	}
	if a.nats != nil {
		a.nats.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}

func (a *App) Config() *config.Config         { return a.config }
func (a *App) DB() *sql.DB                    { return a.db }
func (a *App) Store() *store.Store            { return a.store }
func (a *App) WsHub() *websocket.Hub          { return a.wsHub }
func (a *App) Pool() *pool.Pool               { return a.pool }
func (a *App) Scheduler() *pipeline.Scheduler { return a.scheduler }
func (a *App) JobManager() *jobs.JobManager   { return a.jobManager }
