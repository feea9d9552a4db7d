package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"

	"github.com/lyricmotion/api/internal/config"
	"github.com/lyricmotion/api/internal/engine"
	"github.com/lyricmotion/api/internal/handler"
	"github.com/lyricmotion/api/internal/middleware"
	"github.com/lyricmotion/api/internal/scheduler"
	"github.com/lyricmotion/api/internal/service"
	"github.com/lyricmotion/api/internal/store"
	ws "github.com/lyricmotion/api/internal/websocket"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize Redis client (rate limiting only; the service degrades
	// gracefully when it is unavailable)
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Printf("Warning: Redis not available: %v", err)
	}

	// Initialize validator
	validate := validator.New()

	// Initialize WebSocket hub
	hub := ws.NewHub()
	go hub.Run()

	// Core components
	jobStore := store.New()
	uploadService := service.NewUploadService(cfg.Storage.UploadDir, cfg.Storage.PublicBaseURL)
	resolver := service.NewResolver(validate)
	renderService := service.NewRenderService(jobStore, uploadService, resolver)

	// Rendering engine: external over HTTP when configured, local ffmpeg
	// otherwise
	var eng engine.Engine
	if cfg.Engine.URL != "" {
		eng = engine.NewHTTPEngine(cfg.Engine.URL)
	} else {
		eng = engine.NewFFmpegEngine(cfg.Engine.FFmpeg, cfg.Storage.UploadDir, cfg.Storage.OutputDir, cfg.Storage.PublicBaseURL)
	}
	invoker := engine.NewInvoker(jobStore, eng, hub)

	// Queue scheduler
	sched := scheduler.New(jobStore, invoker, cfg.Queue.PollInterval, cfg.Queue.CleanupInterval, cfg.Queue.Retention)
	schedCtx, stopScheduler := context.WithCancel(context.Background())
	go sched.Run(schedCtx)

	// Handlers
	renderHandler := handler.NewRenderHandler(renderService, cfg.Storage.OutputDir)

	// Middleware
	authMiddleware := middleware.NewAuthMiddleware(cfg.Auth.Secret)
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    cfg.Server.BodyLimitMB * 1024 * 1024,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	startedAt := time.Now()
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"service": "lyricmotion-api",
			"uptime":  time.Since(startedAt).String(),
		})
	})
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "message": "service is running"})
	})

	// Uploaded assets are served statically so asset-map URLs resolve
	app.Static("/uploads", cfg.Storage.UploadDir)

	// Render routes
	render := app.Group("/render", authMiddleware.Authenticate())
	render.Post("/", rateLimiter.RenderLimit(cfg.RateLimit.RenderPerHour), renderHandler.Submit)
	render.Get("/:id/status", renderHandler.Status)
	render.Get("/:id/download", renderHandler.Download)

	// WebSocket progress stream
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/render/:id", websocket.New(func(c *websocket.Conn) {
		hub.HandleConnection(c, c.Params("id"))
	}))

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		stopScheduler()
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	} else {
		log.Printf("Unhandled error: %v", err)
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "SERVICE_ERROR",
			"message": message,
		},
	})
}
