package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"regexp"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/multiviral/api/internal/client"
	"github.com/multiviral/api/internal/config"
	"github.com/multiviral/api/internal/handler"
	"github.com/multiviral/api/internal/media"
	"github.com/multiviral/api/internal/middleware"
	"github.com/multiviral/api/internal/service"
	"github.com/multiviral/api/internal/store"
	ws "github.com/multiviral/api/internal/websocket"
	"github.com/multiviral/api/internal/worker"
)

var vercelOrigin = regexp.MustCompile(`^https://.*\.vercel\.app$`)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := os.MkdirAll(cfg.Scratch.Dir, 0o755); err != nil {
		log.Fatalf("Failed to create upload directory: %v", err)
	}

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	ctx := context.Background()
	redisUp := redisClient.Ping(ctx).Err() == nil
	if !redisUp {
		log.Printf("Warning: Redis not available at %s", cfg.Redis.Addr)
	}

	// Job store
	var jobStore store.Store
	scheduler := cron.New()
	switch cfg.Store.Driver {
	case "redis":
		if !redisUp {
			log.Fatalf("STORE_DRIVER=redis but Redis is not reachable")
		}
		jobStore = store.NewRedisStore(redisClient, time.Duration(cfg.Store.TTL)*time.Hour)
		log.Println("Info: Using Redis job store")
	default:
		memStore := store.NewMemoryStore()
		jobStore = memStore
		ttl := time.Duration(cfg.Store.TTL) * time.Hour
		if ttl > 0 {
			if _, err := scheduler.AddFunc("@hourly", func() {
				if n := memStore.Prune(ttl); n > 0 {
					log.Printf("Pruned %d finished jobs", n)
				}
			}); err != nil {
				log.Printf("Warning: job pruning not scheduled: %v", err)
			}
		}
		log.Println("Info: Using in-memory job store")
	}
	scheduler.Start()
	defer scheduler.Stop()

	// Media tools
	ffmpeg := media.NewFFmpeg(cfg.Media.FFmpegPath, cfg.Media.FFprobePath)
	ytdlp := media.NewYtDlp(cfg.Media.YtdlpPath)

	// Initialize external clients
	whisperClient := client.NewWhisperClient(&cfg.WhisperAPI)
	anthropicClient := client.NewAnthropicClient(&cfg.Anthropic)
	geminiClient := client.NewGeminiClient(&cfg.Gemini)
	geminiRESTClient := client.NewGeminiRESTClient(&cfg.Gemini)
	ollamaClient := client.NewOllamaClient(&cfg.Ollama)

	// Initialize R2 client (optional - continues if not configured)
	var storage client.StorageClient
	if cfg.R2.AccessKeyID != "" && cfg.R2.SecretAccessKey != "" {
		r2Client, err := client.NewR2Client(&cfg.R2)
		if err != nil {
			log.Printf("Warning: R2 client not initialized: %v", err)
		} else {
			storage = r2Client
		}
	} else {
		log.Println("Info: R2 storage not configured, exports use mock URLs")
	}

	// Transcription cascade
	transcriptionTiers := []service.TranscriptionTier{
		service.NewWhisperAPITier(whisperClient, ffmpeg, cfg.WhisperAPI.MaxFileBytes, cfg.WhisperAPI.ChunkSeconds),
	}
	if cfg.Whisper.Enabled {
		localWhisper := media.NewWhisperCPP(media.WhisperConfig{
			BinaryPath:    cfg.Whisper.BinaryPath,
			ModelPath:     cfg.Whisper.ModelPath,
			VADModelPath:  cfg.Whisper.VADModelPath,
			InitialPrompt: cfg.Whisper.InitialPrompt,
			Threads:       cfg.Whisper.Threads,
		}, ffmpeg)
		transcriptionTiers = append(transcriptionTiers, service.NewLocalWhisperTier(localWhisper))
	}
	transcriptionTiers = append(transcriptionTiers, service.PlaceholderTranscriptionTier{})

	// Generation cascade
	prompts := service.NewPromptBuilder(cfg.Content.PrimaryLanguage)
	contentService := service.NewContentService(prompts,
		service.NewAnthropicTier(anthropicClient),
		service.NewGeminiSDKTier(geminiClient),
		service.NewGeminiRESTTier(geminiRESTClient),
		service.NewLocalChatTier(ollamaClient),
		service.PlaceholderContentTier{},
	)

	// Initialize services
	transcriptionService := service.NewTranscriptionService(transcriptionTiers...)
	mediaService := service.NewMediaService(ytdlp, ffmpeg, cfg.Scratch.Dir)
	jobService := service.NewJobService(jobStore, mediaService, transcriptionService, contentService)
	uploadService := service.NewUploadService(jobService, cfg.Scratch.Dir)
	exportService := service.NewExportService(storage, jobService)

	// Initialize WebSocket hub
	hub := ws.NewHub()
	go hub.Run()
	jobService.AddObserver(hub)
	jobService.AddObserver(exportService)

	// Dispatcher
	var localPool *worker.LocalPool
	var asynqServer *asynq.Server
	switch cfg.Worker.Mode {
	case "asynq":
		if !redisUp {
			log.Fatalf("WORKER_MODE=asynq but Redis is not reachable")
		}
		redisOpt := asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}
		asynqClient := asynq.NewClient(redisOpt)
		defer asynqClient.Close()
		jobService.SetDispatcher(worker.NewAsynqDispatcher(asynqClient))
		asynqServer = startWorkerServer(cfg, redisOpt, jobService)
		log.Println("Info: Pipelines dispatched through asynq")
	default:
		localPool = worker.NewLocalPool(jobService, cfg.Worker.Concurrency)
		jobService.SetDispatcher(localPool)
		log.Printf("Info: Pipelines run in-process (concurrency %d)", cfg.Worker.Concurrency)
	}

	logProviders(transcriptionService, contentService)

	// Initialize handlers
	validate := validator.New()
	uploadHandler := handler.NewUploadHandler(uploadService, validate)
	jobHandler := handler.NewJobHandler(jobService, exportService)
	healthHandler := handler.NewHealthHandler(transcriptionService, contentService, map[string]bool{
		"redis": redisUp,
		"r2":    storage != nil,
	})

	var limiterRedis *redis.Client
	if redisUp {
		limiterRedis = redisClient
	}
	rateLimiter := middleware.NewRateLimiter(limiterRedis)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    int(service.MaxUploadSize) + 1024*1024,
	})

	// Global middleware
	app.Use(recover.New())
	isDebug := strings.EqualFold(cfg.Server.LogLevel, "debug")
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if isDebug {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${reqHeaders}\n"
		log.Println("Debug logging enabled")
	}
	app.Use(logger.New(logger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "http://localhost:3000,http://localhost:3001,http://localhost:3002," +
			"http://127.0.0.1:3000,http://127.0.0.1:3001,http://127.0.0.1:3002",
		AllowOriginsFunc: func(origin string) bool {
			return vercelOrigin.MatchString(origin)
		},
		AllowCredentials: true,
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept",
	}))

	app.Get("/", healthHandler.Root)
	app.Get("/health", healthHandler.Health)

	// API routes
	api := app.Group("/api")

	uploadLimit := rateLimiter.UploadLimit(cfg.RateLimit.UploadPerHour)
	api.Post("/upload", uploadLimit, uploadHandler.File)
	api.Post("/upload/youtube", uploadLimit, uploadHandler.YouTube)

	api.Post("/generate/:jobId", rateLimiter.GenerateLimit(cfg.RateLimit.GeneratePerHour), jobHandler.Generate)

	api.Get("/jobs", jobHandler.List)
	api.Get("/jobs/:jobId", jobHandler.Status)
	api.Post("/jobs/:jobId/export", jobHandler.Export)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/jobs/:jobId", websocket.New(func(c *websocket.Conn) {
		jobID := c.Params("jobId")
		hub.HandleConnection(c, jobID)
	}))

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
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

	if asynqServer != nil {
		asynqServer.Shutdown()
	}
	if localPool != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := localPool.Shutdown(shutdownCtx); err != nil {
			log.Printf("Pipelines still running at shutdown: %v", err)
		}
	}
}

func startWorkerServer(cfg *config.Config, redisOpt asynq.RedisClientOpt, runner worker.Runner) *asynq.Server {
	asynqLogLevel := asynq.InfoLevel
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		asynqLogLevel = asynq.DebugLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "warn") {
		asynqLogLevel = asynq.WarnLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "error") {
		asynqLogLevel = asynq.ErrorLevel
	}

	concurrency := cfg.Worker.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			worker.QueuePipeline: 1,
		},
		LogLevel: asynqLogLevel,
	})

	mux := asynq.NewServeMux()
	worker.NewPipelineWorker(runner).Register(mux)

	if err := srv.Start(mux); err != nil {
		log.Fatalf("Asynq worker error: %v", err)
	}
	return srv
}

// logProviders prints which tiers are usable at boot.
func logProviders(transcription, generation handler.TierReporter) {
	for name, ok := range transcription.Tiers() {
		log.Printf("  [transcription] %-14s available=%t", name, ok)
	}
	for name, ok := range generation.Tiers() {
		log.Printf("  [generation]    %-14s available=%t", name, ok)
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "SERVICE_ERROR",
			"message": message,
		},
	})
}
