package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"mediafactory/internal/composition"
	"mediafactory/internal/config"
	"mediafactory/internal/events"
	"mediafactory/internal/ffmpeg"
	"mediafactory/internal/httpapi"
	"mediafactory/internal/httpapi/handlers"
	"mediafactory/internal/jobs"
	"mediafactory/internal/pkg/logger"
	"mediafactory/internal/pkg/shutdown"
	"mediafactory/internal/publish"
	"mediafactory/internal/publish/youtube"
	"mediafactory/internal/repositories"
	"mediafactory/internal/storage"
	"mediafactory/internal/worker"
	"mediafactory/internal/worker/processor"
	"mediafactory/internal/worker/queue"
	"mediafactory/internal/worker/renderer"
)

var version = "0.1.0"

func main() {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.New(logger.Config{}).LogFatal("failed to load configuration", err)
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		ServiceName: cfg.Log.Service,
		AddSource:   cfg.Log.Source,
	}).WithComponent("api")

	log.Info("starting media factory API",
		"version", version,
		"jobs_store", cfg.Jobs.Store,
		"publish_target", cfg.Publish.Target,
	)

	ctx := context.Background()

	// Initialize shutdown manager
	shutdownMgr := shutdown.NewManager(log, cfg.ShutdownTimeout)

	// Job store
	store, err := newJobStore(ctx, cfg, log, shutdownMgr)
	if err != nil {
		log.LogFatal("failed to initialize job store", err, "store", cfg.Jobs.Store)
	}

	// Job events
	var notifier jobs.Notifier = jobs.NopNotifier{}
	if cfg.Kafka.Enabled() {
		kn := events.NewKafkaNotifier(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		shutdownMgr.Register("kafka", func(ctx context.Context) error {
			return kn.Close()
		})
		notifier = kn
		log.Info("job events enabled", "topic", cfg.Kafka.Topic, "brokers", strings.Join(cfg.Kafka.Brokers, ","))
	}
	tracker := jobs.NewTracker(store, notifier, log)

	// Renderer
	var invoker ffmpeg.Invoker
	if cfg.Render.RemoteURL != "" {
		invoker = renderer.NewHTTPInvoker(cfg.Render.RemoteURL)
		log.Info("using remote renderer", "url", cfg.Render.RemoteURL)
	} else {
		invoker = ffmpeg.NewExecInvoker(cfg.Render.FFmpegPath, log)
	}

	// Publisher
	publisher, destination, err := newPublisher(ctx, cfg, log)
	if err != nil {
		log.LogFatal("failed to initialize publisher", err, "target", cfg.Publish.Target)
	}

	// Preflight
	if err := preflight(ctx, invoker, publisher); err != nil {
		log.LogFatal("preflight check failed", err)
	}
	log.Info("preflight checks passed")

	// Dispatcher
	pool := queue.NewPool(cfg.Worker.Concurrency, cfg.Worker.QueueSize, log)
	pool.Start(ctx)
	shutdownMgr.Register("dispatcher", pool.Stop)

	svc := worker.NewService(worker.Deps{
		Tracker:    tracker,
		Normalizer: composition.NewNormalizer(ffmpeg.NewProber(invoker, cfg.Render.TempDir, log)),
		Inputs:     processor.NewInputHandler(cfg.Worker.StagingDir, log),
		Processor: processor.New(processor.Deps{
			Tracker:        tracker,
			Composition:    ffmpeg.NewCompositionRenderer(invoker, cfg.Render.TempDir, log),
			Simple:         ffmpeg.NewSimpleRenderer(invoker, log),
			Publisher:      publisher,
			Destination:    destination,
			PublishTimeout: cfg.Publish.Timeout,
			Log:            log,
		}),
		Pool: pool,
		Log:  log,
	})

	rendererCheck := handlers.CheckFunc(func(ctx context.Context) error {
		return ffmpeg.CheckBinary(ctx, invoker)
	})

	// Create HTTP router
	router := httpapi.NewRouter(httpapi.Deps{
		Handlers: handlers.Deps{
			Jobs: svc,
			Checks: map[string]handlers.Checker{
				"jobs":      svc,
				"renderer":  rendererCheck,
				"publisher": publisher,
			},
			MaxUploadBytes: cfg.HTTP.MaxUploadMB << 20,
			Version:        version,
		},
		CORSOrigins:    cfg.HTTP.CORSOrigins,
		RequestTimeout: cfg.HTTP.RequestTimeout,
		SubmitTimeout:  cfg.HTTP.SubmitTimeout,
		Log:            log,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         "0.0.0.0:" + cfg.HTTP.Port,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Register server shutdown
	shutdownMgr.Register("http-server", func(ctx context.Context) error {
		log.Info("shutting down HTTP server")
		return server.Shutdown(ctx)
	})

	// Start server in goroutine
	go func() {
		log.Info("HTTP server listening",
			"addr", server.Addr,
			"port", cfg.HTTP.Port,
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.LogFatal("HTTP server failed", err)
		}
	}()

	// Wait for shutdown signal
	shutdownMgr.Wait(ctx)
}

func newJobStore(ctx context.Context, cfg *config.Config, log *logger.Logger, shutdownMgr *shutdown.Manager) (jobs.Store, error) {
	switch cfg.Jobs.Store {
	case config.StoreRedis:
		log.Info("connecting to Redis", "addr", cfg.Redis.Addr)
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		shutdownMgr.Register("redis", func(ctx context.Context) error {
			return rdb.Close()
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, err
		}
		log.Info("Redis connected")
		return jobs.NewRedisStore(rdb, cfg.Jobs.TTL), nil

	case config.StorePostgres:
		log.Info("connecting to PostgreSQL")
		pool, err := pgxpool.New(ctx, cfg.Database.URL)
		if err != nil {
			return nil, err
		}
		shutdownMgr.Register("postgres", func(ctx context.Context) error {
			pool.Close()
			return nil
		})
		if err := pool.Ping(ctx); err != nil {
			return nil, err
		}
		repo := repositories.NewJobRepository(pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		log.Info("PostgreSQL connected")
		return repo, nil
	}

	log.Warn("using in-memory job store; job status is lost on restart")
	return jobs.NewMemoryStore(), nil
}

// newPublisher returns the configured publisher and the destination name
// used in job messages.
func newPublisher(ctx context.Context, cfg *config.Config, log *logger.Logger) (publish.Publisher, string, error) {
	if cfg.Publish.Target == config.PublishStorage {
		provider, err := storage.NewProvider(ctx, cfg.Storage)
		if err != nil {
			return nil, "", err
		}
		log.Info("storage provider initialized", "provider", provider.Provider())
		return publish.NewStoragePublisher(provider, cfg.Publish.StoragePrefix, cfg.Publish.URLExpiry, log), "storage", nil
	}

	p, err := youtube.New(ctx, youtube.Credentials{
		ClientID:     cfg.YouTube.ClientID,
		ClientSecret: cfg.YouTube.ClientSecret,
		RefreshToken: cfg.YouTube.RefreshToken,
	}, log)
	if err != nil {
		return nil, "", err
	}
	return p, "YouTube", nil
}

func preflight(ctx context.Context, invoker ffmpeg.Invoker, publisher publish.Publisher) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := ffmpeg.CheckBinary(ctx, invoker); err != nil {
		return err
	}
	return publisher.Check(ctx)
}
