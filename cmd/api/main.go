// Package main is the entry point for the support assistant API server.
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

	"github.com/splitstack/support-assistant/internal/config"
	"github.com/splitstack/support-assistant/internal/handler"
	"github.com/splitstack/support-assistant/internal/identity"
	"github.com/splitstack/support-assistant/internal/knowledge"
	"github.com/splitstack/support-assistant/internal/llm"
	"github.com/splitstack/support-assistant/internal/middleware"
	natsclient "github.com/splitstack/support-assistant/internal/nats"
	"github.com/splitstack/support-assistant/internal/service"
	"github.com/splitstack/support-assistant/internal/store"
	"github.com/splitstack/support-assistant/internal/synthesizer"
	"github.com/splitstack/support-assistant/pkg/logger"
	"github.com/splitstack/support-assistant/pkg/tracing"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting support assistant API")

	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "support-assistant", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Persistence: Postgres in production, in-memory for local development.
	var (
		conversations store.ConversationStore
		messages      store.MessageStore
		feedbackStore store.FeedbackStore
		knowledgeBase store.KnowledgeStore
		dbPinger      handler.Pinger
	)
	if cfg.PostgresDSN != "" {
		pg, err := store.OpenPostgres(cfg.PostgresDSN)
		if err != nil {
			log.Error("failed to open Postgres", zap.Error(err))
			os.Exit(1)
		}
		conversations, messages, feedbackStore, knowledgeBase = pg, pg, pg, pg
		dbPinger = pg
	} else {
		log.Warn("POSTGRES_DSN not set, using in-memory store")
		mem := store.NewMemoryStore()
		conversations, messages, feedbackStore, knowledgeBase = mem, mem, mem, mem
	}

	// Anonymous session store.
	var sessions identity.SessionStore
	if cfg.RedisURL != "" {
		redisStore, err := identity.NewRedisSessionStore(cfg.RedisURL)
		if err != nil {
			log.Error("failed to connect to Redis", zap.Error(err))
			os.Exit(1)
		}
		defer redisStore.Close()
		sessions = redisStore
	} else {
		log.Warn("REDIS_URL not set, anonymous sessions will not survive restarts")
		sessions = identity.NewMemorySessionStore()
	}

	// Support event publication is optional; the engine degrades to
	// state-change-only escalations without a broker.
	var events service.EventPublisher
	if cfg.NATSURL != "" {
		nc, err := natsclient.Connect(natsclient.Config{
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
		defer nc.Close()

		publisher := natsclient.NewEventPublisher(nc)
		if err := publisher.EnsureStream(ctx); err != nil {
			log.Error("failed to ensure stream", zap.Error(err))
			os.Exit(1)
		}
		events = publisher
	}

	// Model client; the synthesizer falls back to deterministic replies
	// when none is configured.
	var llmClient llm.Client
	if cfg.AnthropicAPIKey != "" {
		c, err := llm.NewAnthropicClient(cfg.AnthropicAPIKey)
		if err != nil {
			log.Warn("failed to create Anthropic client, model generation disabled", zap.Error(err))
		} else {
			llmClient = c
		}
	} else if cfg.OpenAIAPIKey != "" {
		c, err := llm.NewOpenAIClient(cfg.OpenAIAPIKey)
		if err != nil {
			log.Warn("failed to create OpenAI client, model generation disabled", zap.Error(err))
		} else {
			llmClient = c
		}
	}

	resolver := identity.NewResolver(sessions, log)
	retriever := knowledge.NewRetriever(knowledgeBase, log)
	synth := synthesizer.New(llmClient, log,
		synthesizer.WithModel(cfg.ModelName),
		synthesizer.WithThreshold(cfg.DirectAnswerThreshold),
	)

	conversationSvc := service.NewConversationService(conversations, messages, retriever, synth, events, log)
	feedbackSvc := service.NewFeedbackService(feedbackStore, messages, conversationSvc, log)

	healthHandler := handler.NewHealthHandler(dbPinger)
	sessionHandler := handler.NewSessionHandler(resolver, conversationSvc, log)
	conversationHandler := handler.NewConversationHandler(conversationSvc, feedbackSvc, log)
	feedbackHandler := handler.NewFeedbackHandler(feedbackSvc, log)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"X-Correlation-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.OptionalAuth(cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Post("/session", sessionHandler.Start)

		r.Route("/conversations/{id}", func(r chi.Router) {
			r.Get("/messages", conversationHandler.History)
			r.Post("/messages", conversationHandler.PostMessage)
			r.Post("/close", conversationHandler.Close)
			r.Post("/escalate", conversationHandler.Escalate)
		})

		r.Route("/messages/{id}", func(r chi.Router) {
			r.Post("/feedback", feedbackHandler.Submit)
			r.Get("/feedback", feedbackHandler.Get)
		})
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}
