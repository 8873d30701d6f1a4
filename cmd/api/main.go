package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Nick077mp/whatsapp-crm-completo/internal/api/router"
	"github.com/Nick077mp/whatsapp-crm-completo/internal/app/bootstrap"
	"github.com/Nick077mp/whatsapp-crm-completo/internal/channels/facebook"
	"github.com/Nick077mp/whatsapp-crm-completo/internal/classify"
	appconfig "github.com/Nick077mp/whatsapp-crm-completo/internal/config"
	"github.com/Nick077mp/whatsapp-crm-completo/internal/contacts"
	"github.com/Nick077mp/whatsapp-crm-completo/internal/conversations"
	"github.com/Nick077mp/whatsapp-crm-completo/internal/http/handlers"
	"github.com/Nick077mp/whatsapp-crm-completo/internal/identity"
	"github.com/Nick077mp/whatsapp-crm-completo/internal/ingest"
	"github.com/Nick077mp/whatsapp-crm-completo/internal/leads"
	"github.com/Nick077mp/whatsapp-crm-completo/internal/observability/metrics"
	"github.com/Nick077mp/whatsapp-crm-completo/internal/phone"
	"github.com/Nick077mp/whatsapp-crm-completo/pkg/logging"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting whatsapp-crm API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Storage: postgres when DATABASE_URL is set, in-memory otherwise.
	var (
		contactRepo contacts.Repository
		store       conversations.Store
		leadRepo    leads.Repository
		review      ingest.ReviewQueue
		merger      identity.Merger
	)
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect postgres", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		contactRepo = contacts.NewPostgresRepository(pool)
		store = conversations.NewPostgresStore(pool)
		leadRepo = leads.NewPostgresRepository(pool)
		review = ingest.NewPostgresReviewQueue(pool)
		merger = identity.NewPostgresMerger(pool, logger)
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory storage")
		memContacts := contacts.NewInMemoryRepository()
		memStore := conversations.NewInMemoryStore()
		memLeads := leads.NewInMemoryRepository()
		contactRepo = memContacts
		store = memStore
		leadRepo = memLeads
		review = ingest.NewInMemoryReviewQueue()
		merger = identity.NewInMemoryMerger(memContacts, memStore, memLeads, logger)
	}

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}
	mappingCache := bootstrap.BuildMappingCache(redisClient)

	registry := prometheus.NewRegistry()
	ingestMetrics := metrics.NewIngestionMetrics(registry)

	// Identity and ingestion
	normalizer := phone.NewNormalizer(phone.Config{DefaultCountryCode: cfg.DefaultCountryCode})
	resolver := identity.NewResolver(contactRepo, normalizer, mappingCache, merger, logger)
	outbound := identity.NewOutboundResolver(contactRepo, normalizer, logger)
	classifier := classify.New(classify.Config{
		Numbers: map[classify.Department]string{
			classify.DepartmentSupport: cfg.SupportNumber,
			classify.DepartmentSales:   cfg.SalesNumber,
		},
		Default:  classify.DepartmentSupport,
		AutoLead: classify.DepartmentSales,
	})
	autoLeads := leads.NewAutoCreator(leadRepo, logger)
	pipeline := ingest.NewPipeline(resolver, outbound, classifier, store, autoLeads, review, ingestMetrics, logger)

	// Channel clients
	channels, err := bootstrap.BuildChannels(cfg, logger)
	if err != nil {
		logger.Error("failed to build channel clients", "error", err)
		os.Exit(1)
	}
	sender := ingest.NewSender(channels.Senders, contactRepo, store, normalizer, cfg.SendTimeout, ingestMetrics, logger)

	// Initialize handlers
	webhookHandler := handlers.NewWebhookHandler(handlers.WebhookConfig{
		Pipeline:        pipeline,
		FacebookWebhook: facebook.NewWebhook(cfg.FacebookVerifyToken, cfg.FacebookAppSecret),
		TelegramSecret:  cfg.TelegramWebhookSecret,
		Metrics:         ingestMetrics,
		Logger:          logger,
	})
	sendHandler := handlers.NewSendHandler(sender, logger)
	conversationHandler := handlers.NewConversationHandler(store, cfg.OverdueThreshold, logger)
	adminHandler := handlers.NewAdminHandler(handlers.AdminConfig{
		Contacts:   contactRepo,
		Review:     review,
		Merger:     merger,
		Reconciler: identity.NewReconciler(contactRepo, merger, logger),
		Bridge:     channels.Bridge,
		Logger:     logger,
	})
	leadsHandler := leads.NewHandler(leadRepo, logger)

	// Setup router
	routerCfg := &router.Config{
		Logger:             logger,
		Webhooks:           webhookHandler,
		Send:               sendHandler,
		Conversations:      conversationHandler,
		Admin:              adminHandler,
		LeadsHandler:       leadsHandler,
		MetricsHandler:     promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		WebhookRateLimit:   cfg.WebhookRateLimit,
		WebhookRateBurst:   cfg.WebhookRateBurst,
	}
	r := router.New(routerCfg)

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
