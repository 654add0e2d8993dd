// Package main is the entry point for the application.
// It loads configuration, opens the database and cache, mounts the routes,
// runs the compensation worker and serves HTTP until interrupted.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"airswitch/internal/config"
	apperrors "airswitch/internal/errors"
	"airswitch/internal/logger"
	"airswitch/internal/metrics"
	"airswitch/internal/repositories"
	"airswitch/internal/repositories/cache"
	"airswitch/internal/routes"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.IsProduction(), cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := repositories.Open(ctx, cfg.DB, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := repositories.Close(db); err != nil {
			log.Warn("failed to close database connection", zap.Error(err))
		}
	}()
	if err := repositories.Migrate(db); err != nil {
		return err
	}

	// The cache is optional: a Redis outage degrades reads to the database.
	var redisClient *redis.Client
	if client := cache.NewRedisClient(cfg.Redis); client.Ping(ctx).Err() != nil {
		log.Warn("redis unavailable, wallet cache disabled",
			zap.String("host", cfg.Redis.Host))
		_ = client.Close()
	} else {
		redisClient = client
		defer func() {
			if err := redisClient.Close(); err != nil {
				log.Warn("failed to close redis connection", zap.Error(err))
			}
		}()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	app := fiber.New(fiber.Config{
		AppName:      "airswitch",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		ErrorHandler: errorHandler(log),
	})

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Idempotency-Key",
		AllowMethods:     "GET,POST,HEAD,PUT,DELETE,PATCH",
		AllowCredentials: !strings.Contains(cfg.CORSOrigins, "*"),
	}))
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	rt, err := routes.SetupRoutes(app, routes.Dependencies{
		Config:  cfg,
		DB:      db,
		Redis:   redisClient,
		Metrics: metrics.NewPrometheus(reg),
		Logger:  log,
	})
	if err != nil {
		return err
	}

	go rt.Compensation.Start(ctx)
	defer rt.Compensation.Stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("port", cfg.Port), zap.String("env", cfg.Env))
		errCh <- app.Listen(":" + cfg.Port)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	return app.ShutdownWithTimeout(shutdownTimeout)
}

// errorHandler renders errors that escape a handler, such as fiber's own 404s.
func errorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
		}
		log.Error("unhandled error", zap.String("path", c.Path()), zap.Error(err))
		return c.Status(apperrors.HTTPStatus(err)).JSON(fiber.Map{"error": apperrors.PublicMessage(err)})
	}
}
