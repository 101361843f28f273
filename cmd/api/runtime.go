package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"localeforge/api/internal/aicache"
	"localeforge/api/internal/aieval"
	"localeforge/api/internal/app"
	"localeforge/api/internal/config"
	"localeforge/api/internal/evaluation"
	"localeforge/api/internal/events"
	"localeforge/api/internal/gitrepo"
	"localeforge/api/internal/jobs"
	"localeforge/api/internal/search"
	"localeforge/api/internal/store"
)

func newLogger(level string, pretty bool) zerolog.Logger {
	parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || parsed == zerolog.NoLevel {
		parsed = zerolog.InfoLevel
	}
	var logger zerolog.Logger
	if pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stdout)
	}
	return logger.Level(parsed).With().Timestamp().Str("service", "localeforge-api").Logger()
}

// runtime is the composition root shared by serve and worker.
type runtime struct {
	cfg     config.Config
	logger  zerolog.Logger
	db      *sql.DB
	redis   *redis.Client
	queue   *jobs.Queue
	bus     *events.Bus
	meili   *search.Meili
	service *app.Service
}

func buildRuntime(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*runtime, error) {
	db, err := store.Open(ctx, cfg.DatabaseURL, store.PoolOptions{MaxOpenConns: cfg.DatabaseMaxOpenConn})
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	if err := store.ApplyMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations failed: %w", err)
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		_ = db.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	rt := &runtime{
		cfg:    cfg,
		logger: logger,
		db:     db,
		redis:  client,
		queue:  jobs.NewQueue(client),
		bus:    events.NewBus(logger, 256),
	}
	rt.bus.Subscribe(events.NewRedisForwarder(client, events.DefaultChannel, logger).Handle)

	dataStore := store.NewPostgresStore(db)
	deps := app.Dependencies{
		Store:  dataStore,
		Jobs:   rt.queue,
		Events: rt.bus,
	}

	if cfg.MeiliEnabled() {
		rt.meili = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger)
	}
	deps.Search = search.NewService(rt.meili, search.NewPgSearch(db), logger)

	if strings.TrimSpace(cfg.SnapshotsDir) != "" {
		if err := os.MkdirAll(cfg.SnapshotsDir, 0o755); err != nil {
			rt.Close()
			return nil, fmt.Errorf("create snapshots dir: %w", err)
		}
		deps.Snapshots = gitrepo.New(cfg.SnapshotsDir)
	}

	if cfg.AIEnabled() {
		deps.AIScorer = aieval.New(aieval.Config{
			BaseURL: cfg.AIProviderURL,
			APIKey:  cfg.AIAPIKey,
			Model:   cfg.AIModel,
			Timeout: cfg.AITimeout(),
		})
		deps.AICache = aicache.NewRedisStoreWithClient(client, cfg.AICacheTTL(), logger)
		logger.Info().Str("model", cfg.AIModel).Msg("ai evaluation enabled")
	} else {
		logger.Info().Msg("ai evaluation disabled, heuristic scoring only")
	}

	rt.service = app.New(cfg, deps, logger)
	return rt, nil
}

func (rt *runtime) newWorker() *jobs.Worker {
	worker := jobs.NewWorker(rt.queue, rt.cfg.WorkerPoll(), rt.logger)
	handler := rt.service.JobHandler()
	worker.Register(evaluation.JobTypeBatchEvaluate, func(ctx context.Context, job jobs.Job) (any, error) {
		return handler.Handle(ctx, job.Payload)
	})
	return worker
}

func (rt *runtime) Close() {
	if rt.bus != nil {
		rt.bus.Close()
	}
	if rt.meili != nil {
		rt.meili.Close()
	}
	if rt.redis != nil {
		_ = rt.redis.Close()
	}
	if rt.db != nil {
		_ = rt.db.Close()
	}
}
