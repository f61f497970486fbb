package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/robfig/cron"

	config "github.com/postdeck/postdeck/configs"
	"github.com/postdeck/postdeck/internal/api/handlers"
	job "github.com/postdeck/postdeck/internal/jobs"
	"github.com/postdeck/postdeck/internal/notify"
	"github.com/postdeck/postdeck/internal/platform"
	"github.com/postdeck/postdeck/internal/repository"
	"github.com/postdeck/postdeck/internal/service"
	"github.com/postdeck/postdeck/internal/worker"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Failed to load environment variables", err)
	}

	cfg := config.LoadConfig()

	db, err := sql.Open("postgres", cfg.PostgresURI)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer closeDB(db)

	if err := db.Ping(); err != nil {
		log.Fatalf("Database is unreachable: %v", err)
	}

	redisConn := asynq.RedisClientOpt{Addr: cfg.RedisURI}
	client := asynq.NewClient(redisConn)
	defer client.Close()

	scheduleRepo := repository.NewScheduleRepository(db)
	postRepo := repository.NewPostRepository(db)
	mediaSetRepo := repository.NewMediaSetRepository(db)
	credentialRepo := repository.NewCredentialRepository(db)

	r2Service := service.NewR2Service(*cfg)

	registry := platform.NewRegistry()
	registry.Register("instagram", platform.NewInstagramPublisher())
	registry.Register("facebook", platform.NewFacebookPublisher())
	registry.Register("linkedin", platform.NewLinkedinPublisher())

	tokenCache := worker.NewTokenCache(credentialRepo, []byte(cfg.SecretKey), cfg.Worker.TokenCacheTTL)
	notifier := notify.NewQueueDispatcher(client)

	processor := worker.NewProcessor(scheduleRepo, postRepo, mediaSetRepo, tokenCache, registry,
		r2Service, notifier, cfg.Worker.MaxAttempts)

	workerID := worker.ResolveWorkerID(cfg.Worker.WorkerID)
	controller := worker.NewController(workerID, scheduleRepo, processor, cfg.Worker)

	if err := controller.Initialize(context.Background()); err != nil {
		log.Fatalf("Worker initialization failed: %v", err)
	}
	log.Printf("Worker %s initialized", workerID)

	refreshTokenJob := job.NewTokenRefreshJob(*cfg, credentialRepo)

	c := cron.New()
	c.AddFunc(cfg.Worker.CycleEvery, func() {
		if err := controller.RunCycle(context.Background()); err != nil {
			log.Printf("Worker cycle failed: %v", err)
		}
	})
	c.AddFunc(cfg.Worker.TokenRefreshEvery, refreshTokenJob.RefreshTokens)
	c.Start()
	defer c.Stop()

	go func() {
		server := asynq.NewServer(redisConn, asynq.Config{
			Concurrency: 10,
		})

		mux := asynq.NewServeMux()
		mux.HandleFunc(notify.TaskTypeNotify, notify.NewHandler(cfg.NotifyWebhookURL).HandleNotifyTask)

		log.Println("Starting the Asynq server...")
		if err := server.Run(mux); err != nil {
			log.Fatalf("Could not start Asynq server: %v", err)
		}
	}()

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Minute,
		WriteTimeout: time.Minute,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			log.Printf("Error: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		},
	})
	app.Use(logger.New())

	workerHandler := handlers.NewWorkerHandler(controller, scheduleRepo, postRepo)
	app.Get("/health", workerHandler.Health)
	app.Get("/worker/stats", workerHandler.Stats)
	app.Get("/worker/jobs/:id", workerHandler.Job)

	go func() {
		if err := app.Listen(cfg.ListenAddr); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()
	log.Printf("Worker ops server is running on %s", cfg.ListenAddr)

	gracefulShutdown(app, controller, cfg.Worker.ShutdownGrace)
}

func closeDB(db *sql.DB) {
	fmt.Fprint(os.Stdout, "Closing database connection... ")
	if err := db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close database: %v", err)
		return
	}
	fmt.Fprintln(os.Stdout, "Done")
}

func gracefulShutdown(app *fiber.App, controller *worker.Controller, grace time.Duration) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	log.Println("Shutting down worker...")

	ctx, cancel := context.WithTimeout(context.Background(), grace+10*time.Second)
	defer cancel()
	controller.Shutdown(ctx)

	if err := app.Shutdown(); err != nil {
		log.Fatalf("Failed to shut down server: %v", err)
	}

	log.Println("Worker shutdown complete.")
}
