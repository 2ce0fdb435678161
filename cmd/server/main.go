package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	config "github.com/maheshrc27/postflow-engine/configs"
	"github.com/maheshrc27/postflow-engine/internal/api"
	"github.com/maheshrc27/postflow-engine/internal/api/handlers"
	"github.com/maheshrc27/postflow-engine/internal/api/middleware"
	job "github.com/maheshrc27/postflow-engine/internal/jobs"
	"github.com/maheshrc27/postflow-engine/internal/media"
	"github.com/maheshrc27/postflow-engine/internal/notify"
	"github.com/maheshrc27/postflow-engine/internal/platform"
	"github.com/maheshrc27/postflow-engine/internal/queue"
	"github.com/maheshrc27/postflow-engine/internal/repository"
	"github.com/maheshrc27/postflow-engine/internal/scheduler"
	"github.com/robfig/cron"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file loaded", slog.String("error", err.Error()))
	}

	cfg := config.LoadConfig()
	slog.SetDefault(newLogger(cfg.LogLevel))

	if err := cfg.Validate(); err != nil {
		fatal("invalid configuration", err)
	}

	db, err := sql.Open("postgres", cfg.PostgresURI)
	if err != nil {
		fatal("failed to connect to database", err)
	}
	defer closeDB(db)

	if err := db.Ping(); err != nil {
		fatal("database is unreachable", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	httpClient := &http.Client{Timeout: 60 * time.Second}

	var r2 *media.R2Store
	if cfg.R2Enabled() {
		r2, err = media.NewR2Store(ctx, cfg.R2)
		if err != nil {
			fatal("failed to configure R2", err)
		}
	}
	registry := platform.NewDefaultRegistry(cfg, httpClient, media.NewFetcher(httpClient, r2))

	postRepo := repository.NewPostRepository(db)
	socialAccountRepo := repository.NewSocialAccountRepository(db, cfg.SecretKey)
	historyRepo := repository.NewPostingHistoryRepository(db)

	// Direct delivery channel; behind the queue when Redis is configured.
	var delivery notify.Notifier = notify.NewLogNotifier(slog.Default())
	if cfg.NotifyWebhookURL != "" {
		delivery = notify.NewWebhookNotifier(cfg.NotifyWebhookURL, nil)
	}
	notifier := delivery

	var queueServer *asynq.Server
	if cfg.RedisURI != "" {
		redisConn := asynq.RedisClientOpt{Addr: cfg.RedisURI}
		client := asynq.NewClient(redisConn)
		defer client.Close()
		notifier = queue.NewAsynqNotifier(client, cfg.Scheduler.MaxRetries)

		queueServer = asynq.NewServer(redisConn, asynq.Config{
			Concurrency: 10,
		})
		mux := asynq.NewServeMux()
		mux.HandleFunc(queue.TaskTypeNotifyOwner, queue.NewQueue(delivery, slog.Default()).HandleNotifyOwnerTask)

		go func() {
			slog.Info("starting the asynq server")
			if err := queueServer.Run(mux); err != nil {
				fatal("could not start asynq server", err)
			}
		}()
	}

	sched := scheduler.New(cfg.Scheduler, scheduler.Deps{
		Posts:    postRepo,
		Accounts: socialAccountRepo,
		History:  historyRepo,
		Registry: registry,
		Notifier: notifier,
		Logger:   slog.Default(),
	})
	if cfg.Scheduler.Autostart {
		sched.Start(ctx)
	}

	// cron jobs
	refreshTokenJob := job.NewTokenRefreshJob(socialAccountRepo, sched.Tokens())

	c := cron.New()
	if err := c.AddFunc("@every 00h10m00s", refreshTokenJob.RefreshTokens); err != nil {
		fatal("failed to schedule token refresh", err)
	}
	c.Start()
	defer c.Stop()

	app := fiber.New(fiber.Config{
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			slog.Error("request failed", slog.String("path", c.Path()), slog.String("error", err.Error()))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.FrontendURL,
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           3600,
	}))

	api.SetupRoutes(app,
		middleware.NewAuthMiddleware(*cfg),
		handlers.NewPlatformHandler(registry, socialAccountRepo, *cfg),
		handlers.NewPostHandler(postRepo, historyRepo),
		handlers.NewSchedulerHandler(ctx, sched),
	)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			fatal("failed to start server", err)
		}
	}()
	slog.Info("server is running", slog.String("port", cfg.Port))

	gracefulShutdown(app, sched, queueServer)
	cancel()
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func fatal(msg string, err error) {
	slog.Error(msg, slog.String("error", err.Error()))
	os.Exit(1)
}

func closeDB(db *sql.DB) {
	fmt.Fprint(os.Stdout, "Closing database connection... ")
	if err := db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close database: %v", err)
		return
	}
	fmt.Fprintln(os.Stdout, "Done")
}

func gracefulShutdown(app *fiber.App, sched *scheduler.Scheduler, queueServer *asynq.Server) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	slog.Info("shutting down server")

	if err := app.Shutdown(); err != nil {
		slog.Error("failed to shut down http server", slog.String("error", err.Error()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := sched.Shutdown(ctx); err != nil {
		slog.Warn("batch still running at shutdown", slog.String("error", err.Error()))
	}

	if queueServer != nil {
		queueServer.Shutdown()
	}
	slog.Info("server shutdown complete")
}
