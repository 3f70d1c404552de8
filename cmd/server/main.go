package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"nexispulse/internal/analytics"
	"nexispulse/internal/collector"
	"nexispulse/internal/config"
	"nexispulse/internal/database"
	"nexispulse/internal/detectors"
	"nexispulse/internal/handlers"
	"nexispulse/internal/jobs"
	"nexispulse/internal/logging"
	"nexispulse/internal/middleware"
	"nexispulse/internal/pipeline"
	"nexispulse/internal/services"
	"nexispulse/internal/validation"
	"nexispulse/internal/window"
	"nexispulse/pkg/auth"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/fsnotify/fsnotify"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Initialize structured logging (JSON in production, text in dev)
	logging.Init()

	log.Println("🚀 Starting NexisPulse Server...")

	// Load .env file (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  No .env file found or error loading it: %v", err)
	} else {
		log.Println("✅ .env file loaded successfully")
	}

	// Load configuration
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("❌ Invalid configuration: %v", err)
	}
	log.Printf("📋 Configuration loaded (Port: %s, window: %s, batch: %d)", cfg.Port, cfg.WindowSize, cfg.BatchSize)

	// Detection thresholds (YAML overrides, hot-reloaded)
	thresholds, err := config.LoadThresholds(cfg.ThresholdsPath)
	if err != nil {
		log.Fatalf("❌ Failed to load thresholds: %v", err)
	}
	thresholdStore := config.NewThresholdStore(thresholds)
	go watchThresholds(cfg.ThresholdsPath, thresholdStore)

	// Initialize MongoDB (durable sample/episode/alert store)
	if cfg.MongoURI == "" {
		log.Fatal("❌ MONGODB_URI environment variable is required")
	}
	log.Println("🔗 Connecting to MongoDB...")
	mongoDB, err := database.NewMongoDB(cfg.MongoURI)
	if err != nil {
		log.Fatalf("❌ Failed to connect to MongoDB: %v", err)
	}
	defer mongoDB.Close(context.Background())

	initCtx, cancelInit := context.WithTimeout(context.Background(), 30*time.Second)
	if err := mongoDB.Initialize(initCtx); err != nil {
		cancelInit()
		log.Fatalf("❌ Failed to initialize MongoDB indexes: %v", err)
	}
	cancelInit()
	store := database.NewTelemetryStore(mongoDB)

	// Initialize Redis (overflow queue, pub/sub)
	redisService, err := services.NewRedisService(cfg.RedisURL)
	if err != nil {
		log.Fatalf("❌ Failed to connect to Redis: %v", err)
	}
	defer redisService.Close()

	// Core pipeline components
	validator := validation.NewValidator(cfg.StrictValidation)
	windows := window.NewStore(cfg.WindowSize)
	calculator := analytics.NewCalculator(thresholdStore, cfg.SnapshotTTL)
	col := collector.NewCollector(cfg.MaxConcurrent)
	alerter := collector.NewAlerter(collector.DefaultRules())
	overflow := services.NewOverflowService(redisService, cfg.OverflowTTL)

	contextSwitches := detectors.NewContextSwitchAnalyzer()
	executiveFn := detectors.NewExecutiveFunctionAnalyzer(contextSwitches)
	runner := detectors.NewRunner(
		detectors.NewHyperfocusDetector(thresholdStore),
		detectors.NewSensoryOverloadDetector(thresholdStore),
	)

	// WebSocket connections + broadcast fan-out
	connManager := services.NewConnectionManager()
	metrics := services.InitMetrics(col, connManager)
	instanceID := uuid.New().String()
	broadcast := services.NewBroadcastService(redisService, connManager, instanceID)
	if err := broadcast.Start(); err != nil {
		log.Fatalf("❌ Failed to start broadcast service: %v", err)
	}
	defer broadcast.Stop()

	// Orchestrator ties the stages together
	orchestrator := pipeline.NewOrchestrator(pipeline.Options{
		Validator:         validator,
		Windows:           windows,
		Calculator:        calculator,
		Detectors:         runner,
		Collector:         col,
		Alerter:           alerter,
		Sink:              store,
		Overflow:          overflow,
		Broadcast:         broadcast,
		Metrics:           metrics,
		ContextSwitches:   contextSwitches,
		ExecutiveFunction: executiveFn,
		BatchSize:         cfg.BatchSize,
		FlushInterval:     cfg.FlushInterval,
	})
	orchestrator.Start()

	// Background jobs: window eviction, retention sweeps, health reports
	jobService, err := jobs.NewService(windows, store, orchestrator, cfg.SampleRetention, cfg.EpisodeRetention)
	if err != nil {
		log.Fatalf("❌ Failed to create jobs service: %v", err)
	}
	if err := jobService.Start(); err != nil {
		log.Fatalf("❌ Failed to start background jobs: %v", err)
	}

	// JWT auth for the read and WebSocket APIs
	var jwtAuth *auth.JWTAuth
	if cfg.JWTSecret != "" {
		jwtAuth, err = auth.NewJWTAuth(cfg.JWTSecret, 15*time.Minute)
		if err != nil {
			log.Fatalf("❌ Failed to initialize JWT auth: %v", err)
		}
		log.Println("🔐 JWT auth enabled")
	} else if os.Getenv("ENVIRONMENT") == "production" {
		log.Fatal("❌ JWT_SECRET is required in production")
	} else {
		log.Println("⚠️  JWT_SECRET not set, read API auth disabled (development mode)")
	}

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "NexisPulse v1.0",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  90 * time.Second,
		BodyLimit:    5 * 1024 * 1024, // device batches stay small
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New())

	// Prometheus metrics middleware
	prometheus := fiberprometheus.New("nexispulse")
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)
	log.Println("📊 Prometheus metrics endpoint enabled at /metrics")

	// CORS configuration with environment-based origins
	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		allowedOrigins = "http://localhost:5173,http://localhost:3000"
		log.Println("⚠️  ALLOWED_ORIGINS not set, using development defaults")
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization,X-API-Key,X-Device-ID",
		AllowCredentials: allowedOrigins != "*",
	}))

	// Handlers
	ingestHandler := handlers.NewIngestHandler(orchestrator)
	analyticsHandler := handlers.NewAnalyticsHandler(orchestrator)
	healthHandler := handlers.NewHealthHandler(orchestrator, connManager, redisService, mongoDB)
	wsHandler := handlers.NewWebSocketHandler(connManager, metrics)

	// Health checks (unauthenticated)
	app.Get("/health", healthHandler.Handle)
	app.Get("/api/health", healthHandler.HandleDetailed)

	// Ingest API: device keys + per-device rate limiting
	ingestLimiter := middleware.NewIngestRateLimiter(cfg.IngestRateLimit, cfg.IngestBurst)
	ingest := app.Group("/api/samples",
		middleware.DeviceKeyMiddleware(cfg.DeviceAPIKeys),
		ingestLimiter.Handler(),
	)
	ingest.Post("/", ingestHandler.HandleSample)
	ingest.Post("/batch", ingestHandler.HandleBatch)

	// Read API: JWT
	read := app.Group("/api", middleware.AuthMiddleware(jwtAuth))
	read.Get("/analytics/:userId", analyticsHandler.HandleCurrent)
	read.Get("/analytics/:userId/embedding", analyticsHandler.HandleEmbedding)
	read.Get("/patterns/:userId", analyticsHandler.HandlePatterns)

	// WebSocket route (requires auth)
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			c.Locals("client_ip", c.IP())
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Use("/ws/telemetry", middleware.AuthMiddleware(jwtAuth))
	app.Get("/ws/telemetry", websocket.New(wsHandler.Handle, websocket.Config{
		Origins: strings.Split(allowedOrigins, ","),
	}))

	log.Printf("📡 Ingest endpoint: http://localhost:%s/api/samples", cfg.Port)
	log.Printf("📈 Analytics endpoint: http://localhost:%s/api/analytics/:userId", cfg.Port)
	log.Printf("🔌 Live telemetry: ws://localhost:%s/ws/telemetry", cfg.Port)
	log.Printf("📡 Health check: http://localhost:%s/health", cfg.Port)

	// Handle graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("\n🛑 Shutting down server...")

		// Stop background jobs
		if err := jobService.Stop(); err != nil {
			log.Printf("⚠️ Error stopping background jobs: %v", err)
		}

		// Stop the pipeline: close open episodes, flush the final batch
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := orchestrator.Stop(shutdownCtx); err != nil {
			log.Printf("⚠️ Error stopping pipeline: %v", err)
		}

		// Stop broadcast fan-out
		if err := broadcast.Stop(); err != nil {
			log.Printf("⚠️ Error stopping broadcast: %v", err)
		}

		// Shutdown Fiber
		if err := app.Shutdown(); err != nil {
			log.Printf("⚠️ Error shutting down server: %v", err)
		}
	}()

	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("❌ Failed to start server: %v", err)
	}
}

// watchThresholds watches the thresholds file and hot-reloads it on change.
func watchThresholds(path string, store *config.ThresholdStore) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("⚠️  Failed to create file watcher: %v", err)
		return
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		log.Printf("⚠️  Failed to get absolute path for %s: %v", path, err)
		watcher.Close()
		return
	}

	// Watch the directory containing the file (more reliable than watching the file directly)
	dir := filepath.Dir(absPath)
	filename := filepath.Base(absPath)

	if err := watcher.Add(dir); err != nil {
		log.Printf("⚠️  Failed to watch directory %s: %v", dir, err)
		watcher.Close()
		return
	}

	log.Printf("👁️  Watching %s for changes (hot-reload enabled)", path)

	// Debounce timer to avoid multiple reloads for rapid file changes
	var debounceTimer *time.Timer
	debounceDuration := 500 * time.Millisecond

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filename {
				continue
			}
			if event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create {
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(debounceDuration, func() {
					if err := store.Reload(path); err != nil {
						log.Printf("❌ Failed to reload thresholds: %v", err)
					}
				})
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Printf("⚠️  File watcher error: %v", err)
		}
	}
}
