package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/windfall/storyspeak/internal/client"
	"github.com/windfall/storyspeak/internal/config"
	"github.com/windfall/storyspeak/internal/gateway"
	grpchandler "github.com/windfall/storyspeak/internal/handler/grpc"
	"github.com/windfall/storyspeak/internal/handler/http"
	"github.com/windfall/storyspeak/internal/handler/ws"
	"github.com/windfall/storyspeak/internal/logger"
	"github.com/windfall/storyspeak/internal/repository"
	"github.com/windfall/storyspeak/internal/server"
	"github.com/windfall/storyspeak/internal/service"
)

const documentRoute = "/api/v1/pdfs"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize logger
	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	log.Info().Str("env", cfg.Environment).Msg("Starting storyspeak")

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("Server failed")
	}
	log.Info().Msg("Server stopped")
}

func run(cfg *config.Config, log zerolog.Logger) error {
	// Cancelled on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// AI gateway
	gw, err := gateway.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("init gateway: %w", err)
	}

	// Roleplay reply queue: Redis when configured, in-process otherwise
	var replies service.ReplyQueue
	if cfg.RedisURL != "" {
		redisClient, err := client.NewRedisClient(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("init redis: %w", err)
		}
		defer redisClient.Close()
		replies = service.NewRedisReplyQueue(redisClient, cfg.RoleplayReplyTTL, cfg.RoleplayReplyTimeout)
		log.Info().Msg("Redis reply queue initialized")
	} else {
		replies = service.NewMemoryReplyQueue(cfg.RoleplayReplyTTL, cfg.RoleplayReplyTimeout)
		log.Warn().Msg("REDIS_URL not set, using in-process reply queue")
	}

	// Document store
	store, closeStore, err := newDocumentStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init document store: %w", err)
	}
	defer closeStore()
	log.Info().Str("backend", cfg.DocumentStore).Msg("Document store initialized")

	// Initialize services
	aiService := service.NewAIService(gw, cfg.AIRequestTimeout, logger.Component(log, "ai"))
	documentService := service.NewDocumentService(store, logger.Component(log, "documents"))
	sessionService := service.NewSessionService(gw, gw, replies, service.SessionOptions{
		AITimeout:              cfg.AIRequestTimeout,
		IdleTTL:                cfg.SessionIdleTTL,
		MaxBlanks:              cfg.SentenceGameMaxBlanks,
		AllowDuplicateMeanings: cfg.WordGameAllowDuplicateMeaning,
		WordAdvanceDelay:       cfg.WordGameAdvanceDelay,
		ConnectDelay:           cfg.RoleplayConnectDelay,
		Greeting:               cfg.RoleplayGreeting,
	}, logger.Component(log, "sessions"))
	defer sessionService.Close()

	hub := server.NewWebSocketHub(logger.Component(log, "websocket"))
	sessionService.SetPublisher(hub)

	// Initialize handlers
	healthHandler := http.NewHealthHandler(sessionService.Count)
	grpcHandler := grpchandler.NewHandler(log)
	handlers := server.Handlers{
		Health:    healthHandler,
		API:       http.NewAPIHandler(log, aiService),
		Sessions:  http.NewSessionHandler(log, sessionService),
		Documents: http.NewDocumentHandler(log, documentService),
		Events:    ws.NewHandler(log, sessionService),
	}

	httpServer := server.NewHTTPServer(cfg, log, handlers, sessionService, hub)
	grpcServer := server.NewGRPCServer(cfg, log, grpcHandler)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(httpServer.Start)
	g.Go(grpcServer.Start)
	g.Go(func() error { return hub.Run(gctx) })
	g.Go(func() error { return sessionService.RunSweeper(gctx, cfg.SessionSweepInterval) })

	log.Info().
		Str("http_addr", cfg.HTTPAddress()).
		Str("grpc_addr", cfg.GRPCAddress()).
		Msg("Servers started")

	// Graceful shutdown once a signal arrives or any server fails
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down servers...")
		healthHandler.SetReady(false)
		grpcHandler.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		grpcServer.GracefulStop()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("HTTP server shutdown error")
		}
		return nil
	})

	return g.Wait()
}

// newDocumentStore builds the configured document store and a function
// releasing its client.
func newDocumentStore(ctx context.Context, cfg *config.Config) (repository.DocumentStore, func(), error) {
	switch cfg.DocumentStore {
	case config.DocumentStoreR2:
		if cfg.CloudflareAccessKeyID == "" || cfg.CloudflareSecretKey == "" || cfg.CloudflareR2Endpoint == "" || cfg.CloudflareBucketName == "" {
			return nil, nil, fmt.Errorf("r2 store requires CLOUDFLARE_* settings")
		}
		cf, err := client.NewCloudflareClient(ctx,
			cfg.CloudflareAccessKeyID,
			cfg.CloudflareSecretKey,
			cfg.CloudflareR2Endpoint,
			cfg.CloudflareBucketName,
			cfg.CloudflarePublicURL,
		)
		if err != nil {
			return nil, nil, err
		}
		return repository.NewR2DocumentStore(cf, cfg.DocumentPrefix), func() {}, nil

	case config.DocumentStoreGCS:
		if cfg.GCSBucketName == "" {
			return nil, nil, fmt.Errorf("gcs store requires GCS_BUCKET_NAME")
		}
		sc, err := client.NewStorageClient(ctx, cfg.GCSBucketName)
		if err != nil {
			return nil, nil, err
		}
		return repository.NewGCSDocumentStore(sc, cfg.DocumentPrefix, documentRoute), sc.Close, nil

	default:
		store, err := repository.NewLocalDocumentStore(cfg.DocumentDir, documentRoute)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	}
}
