package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	config "github.com/maheshrc27/clipcast/configs"
	"github.com/maheshrc27/clipcast/internal/api/handlers"
	"github.com/maheshrc27/clipcast/internal/api/middleware"
	job "github.com/maheshrc27/clipcast/internal/jobs"
	"github.com/maheshrc27/clipcast/internal/metrics"
	"github.com/maheshrc27/clipcast/internal/models"
	"github.com/maheshrc27/clipcast/internal/queue"
	"github.com/maheshrc27/clipcast/internal/repository"
	"github.com/maheshrc27/clipcast/internal/service"
	"github.com/robfig/cron"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Failed to load environment variables", err)
	}

	cfg := config.LoadConfig()
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel(cfg.LogLevel)})))

	db, err := sql.Open("postgres", cfg.PostgresURI)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if err := db.Ping(); err != nil {
		log.Fatalf("Database is unreachable: %v", err)
	}

	r2Client, err := service.NewR2Client(context.Background(), cfg.R2)
	if err != nil {
		log.Fatalf("Failed to configure clip storage: %v", err)
	}
	storage := service.NewR2Storage(r2Client, cfg.R2.BucketName, cfg.MediaBaseURL)

	redisConn := asynq.RedisClientOpt{Addr: cfg.RedisURI}
	client := asynq.NewClient(redisConn)
	defer client.Close()

	m := metrics.New()

	contentRepo := repository.NewContentItemRepository(db)
	jobRepo := repository.NewDispatchJobRepository(db)
	recordRepo := repository.NewPublishRecordRepository(db)
	ledger := repository.NewPublishLedger(db, jobRepo, recordRepo)
	socialAccountRepo := repository.NewSocialAccountRepository(db)
	subscriptionRepo := repository.NewSubscriptionRepository(db)
	settingsRepo := repository.NewSettingsRepository(db)
	tierRepo := repository.NewTierRepository(db)

	platforms, err := enabledPlatforms(cfg.Dispatch.Platforms)
	if err != nil {
		log.Fatalf("Invalid DISPATCH_PLATFORMS: %v", err)
	}

	adapters := map[models.Platform]service.PlatformAdapter{
		models.PlatformYoutube:   service.NewYoutubePublisher(contentRepo, socialAccountRepo, storage, cfg.SecretKey).Adapter(),
		models.PlatformTiktok:    service.NewTiktokPublisher(contentRepo, socialAccountRepo, storage, cfg.SecretKey).Adapter(),
		models.PlatformInstagram: service.NewInstagramPublisher(contentRepo, socialAccountRepo, storage, cfg.SecretKey).Adapter(),
	}
	breaker := service.DefaultBreakerConfig()
	breaker.Timeout = cfg.Dispatch.PublishTimeout

	var enabled []service.PlatformAdapter
	for _, p := range platforms {
		adapter := adapters[p]
		adapter.Publisher = service.NewResilientPublisher(p, adapter.Publisher, breaker)
		enabled = append(enabled, adapter)
	}
	registry := service.NewRegistry(enabled...)

	tierService := service.NewTierService(subscriptionRepo, settingsRepo, tierRepo, registry.DefaultCaps(), cfg.Dispatch.DefaultScoreThreshold)
	retryManager := service.NewRetryManager(jobRepo, service.RetryPolicy{MaxAttempts: cfg.Dispatch.MaxAttempts}, m)
	dispatchService := service.NewDispatchService(jobRepo, recordRepo, ledger, tierService, retryManager, registry, m, service.DispatchOptions{
		BatchSize: cfg.Dispatch.BatchSize,
		Location:  cfg.Dispatch.Location(),
	})
	reconcileService := service.NewReconcileService(jobRepo, m, cfg.Dispatch.ProcessingTimeout)
	jobService := service.NewJobService(jobRepo, contentRepo, registry)
	settingsService := service.NewSettingsService(settingsRepo, recordRepo, tierService, registry, cfg.Dispatch.Location())

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Minute,
		WriteTimeout: 15 * time.Minute,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			slog.Error("request failed", "path", c.Path(), "error", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(logger.New())

	health := handlers.NewHealthHandler(db)
	app.Get("/healthz", health.Health)
	app.Get("/metrics", handlers.MetricsHandler(m.Registry))

	authMiddleware := middleware.NewAuthMiddleware(*cfg)

	api := app.Group("/api")
	api.Use(authMiddleware.AuthMiddleware())

	dispatch := handlers.NewDispatchHandler(dispatchService, reconcileService, client, cfg.Dispatch.UniqueTTL)
	api.Post("/dispatch/:platform", dispatch.Run)
	api.Post("/dispatch/:platform/owners/:owner_id", dispatch.RunOwner)
	api.Post("/dispatch/:platform/enqueue", dispatch.Enqueue)
	api.Post("/reconcile", dispatch.Reconcile)

	jobs := handlers.NewJobHandler(jobService)
	api.Post("/jobs", jobs.CreateJobs)
	api.Get("/jobs", jobs.ListJobs)
	api.Get("/backlog", jobs.Backlog)

	settings := handlers.NewSettingsHandler(settingsService)
	api.Get("/owners/:owner_id/limits", settings.GetOwnerLimits)
	api.Put("/owners/:owner_id/settings", settings.UpdateSettings)

	// cron jobs
	trigger := job.NewDispatchTriggerJob(client, platforms, cfg.Dispatch.UniqueTTL)

	c := cron.New()
	if err := trigger.Register(c, cfg.Dispatch.Schedule, cfg.Dispatch.ReconcileInterval); err != nil {
		log.Fatalf("Failed to schedule dispatch: %v", err)
	}
	c.Start()

	//queue
	queueW := queue.NewQueue(dispatchService, reconcileService)
	server := asynq.NewServer(redisConn, asynq.Config{
		Concurrency: cfg.AsynqConcurrency,
		Logger:      asynqLogger{},
	})

	log.Println("Starting the Asynq server...")
	if err := server.Start(queueW.Mux()); err != nil {
		log.Fatalf("Could not start Asynq server: %v", err)
	}

	go func() {
		if err := app.Listen(cfg.HTTPAddr); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()
	log.Printf("Server is running on %s", cfg.HTTPAddr)

	gracefulShutdown(app, server, c, db)
}

func enabledPlatforms(names []string) ([]models.Platform, error) {
	var platforms []models.Platform
	seen := map[models.Platform]bool{}
	for _, name := range names {
		p, err := models.ParsePlatform(strings.ToLower(name))
		if err != nil {
			return nil, err
		}
		if !seen[p] {
			seen[p] = true
			platforms = append(platforms, p)
		}
	}
	if len(platforms) == 0 {
		return nil, fmt.Errorf("no platforms enabled")
	}
	return platforms, nil
}

func logLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func closeDB(db *sql.DB) {
	fmt.Fprint(os.Stdout, "Closing database connection... ")
	if err := db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close database: %v", err)
		return
	}
	fmt.Fprintln(os.Stdout, "Done")
}

func gracefulShutdown(app *fiber.App, server *asynq.Server, c *cron.Cron, db *sql.DB) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	log.Println("Shutting down server...")

	c.Stop()
	server.Shutdown()

	if err := app.Shutdown(); err != nil {
		log.Fatalf("Failed to shut down server: %v", err)
	}

	closeDB(db)
	log.Println("Server shutdown complete.")
}
