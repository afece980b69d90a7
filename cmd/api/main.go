// Package main is the entry point for the API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/chatwire/chat-platform/internal/auth"
	"github.com/chatwire/chat-platform/internal/cache"
	"github.com/chatwire/chat-platform/internal/chat"
	"github.com/chatwire/chat-platform/internal/config"
	"github.com/chatwire/chat-platform/internal/gateway"
	"github.com/chatwire/chat-platform/internal/handler"
	"github.com/chatwire/chat-platform/internal/middleware"
	natsclient "github.com/chatwire/chat-platform/internal/nats"
	"github.com/chatwire/chat-platform/internal/notify"
	"github.com/chatwire/chat-platform/internal/search"
	"github.com/chatwire/chat-platform/internal/service"
	"github.com/chatwire/chat-platform/internal/store"
	"github.com/chatwire/chat-platform/pkg/logger"
	"github.com/chatwire/chat-platform/pkg/tracing"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting API server")

	// Initialize tracing if enabled
	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "chat-platform", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Connect to Postgres
	db, err := store.NewPostgres(ctx, cfg.DatabaseURL, log)
	if err != nil {
		log.Error("failed to connect to database", zap.Error(err))
		os.Exit(1)
	}
	defer db.Close()

	// Connect to Redis
	redisCache := cache.NewRedis(cache.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		PoolSize: cfg.RedisPoolSize,
	}, log)
	defer redisCache.Close()
	if err := redisCache.Ping(ctx); err != nil {
		// The cache is best-effort everywhere; start degraded rather than die.
		log.Warn("redis unreachable at startup", zap.Error(err))
	}

	// Connect to NATS
	natsClient, err := natsclient.Connect(ctx, natsclient.Config{
		URL:      cfg.NATSURL,
		CAFile:   cfg.NATSCAFile,
		CertFile: cfg.NATSCertFile,
		KeyFile:  cfg.NATSKeyFile,
		Token:    cfg.NATSToken,
	}, log)
	if err != nil {
		log.Error("failed to connect to NATS", zap.Error(err))
		os.Exit(1)
	}
	defer natsClient.Close()

	// Ensure the notification stream exists
	dispatcher := notify.NewJetStreamDispatcher(natsClient)
	if err := dispatcher.EnsureStream(ctx); err != nil {
		log.Error("failed to ensure notification stream", zap.Error(err))
		os.Exit(1)
	}

	indexer := search.NewNATSIndexer(natsClient)
	verifier := auth.NewJWTVerifier(cfg.JWTSecret)

	// Real-time core
	gw := gateway.New(log)
	presence := chat.NewPresence(db, redisCache, indexer, gw, log, cfg.OnlineSetTTL, cfg.PresenceBlobTTL)
	chatHandler := chat.NewHandler(db, redisCache, indexer, dispatcher, gw, presence, log)

	// Services
	conversationSvc := service.NewConversationService(db, redisCache, indexer, log, cfg.ConversationCacheTTL)

	// Handlers
	healthHandler := handler.NewHealthHandler(natsClient, db, redisCache)
	conversationHandler := handler.NewConversationHandler(conversationSvc, log)
	socketHandler := handler.NewSocketHandler(verifier, gw, chatHandler, presence, handler.SocketConfig{
		SendBuffer:  cfg.SocketSendBuffer,
		WriteWait:   cfg.SocketWriteWait,
		PongWait:    cfg.SocketPongWait,
		MaxMsgBytes: cfg.SocketMaxMsgBytes,
	}, log)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"Link", "X-Correlation-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// Websocket endpoint (authenticates on handshake)
	r.Get("/ws", socketHandler.Serve)

	// API routes with authentication
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(verifier))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Route("/conversations", func(r chi.Router) {
			r.Post("/", conversationHandler.Create)
			r.Get("/", conversationHandler.List)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", conversationHandler.Get)
				r.Delete("/", conversationHandler.Delete)
				r.Get("/messages", conversationHandler.Messages)
			})
		})
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}
