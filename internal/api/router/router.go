package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Nick077mp/whatsapp-crm-completo/internal/http/handlers"
	httpmiddleware "github.com/Nick077mp/whatsapp-crm-completo/internal/http/middleware"
	"github.com/Nick077mp/whatsapp-crm-completo/internal/leads"
	"github.com/Nick077mp/whatsapp-crm-completo/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	Webhooks           *handlers.WebhookHandler
	Send               *handlers.SendHandler
	Conversations      *handlers.ConversationHandler
	Admin              *handlers.AdminHandler
	LeadsHandler       *leads.Handler
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
	WebhookRateLimit   float64
	WebhookRateBurst   int
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints (webhooks, health checks, metrics)
	r.Group(func(public chi.Router) {
		public.Get("/health", handleHealth)
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.Webhooks != nil {
			public.Group(func(hooks chi.Router) {
				if cfg.WebhookRateLimit > 0 {
					hooks.Use(httpmiddleware.RateLimit(cfg.WebhookRateLimit, cfg.WebhookRateBurst))
				}
				hooks.Post("/webhooks/whatsapp", cfg.Webhooks.HandleWhatsAppInbound)
				hooks.Post("/webhooks/whatsapp-outgoing", cfg.Webhooks.HandleWhatsAppOutbound)
				hooks.Get("/webhooks/facebook", cfg.Webhooks.HandleFacebookVerify)
				hooks.Post("/webhooks/facebook", cfg.Webhooks.HandleFacebook)
				hooks.Post("/webhooks/telegram", cfg.Webhooks.HandleTelegram)
			})
		}
	})

	// Agent API
	r.Route("/api", func(api chi.Router) {
		if cfg.Send != nil {
			api.Post("/send", cfg.Send.HandleSend)
		}
		if cfg.Conversations != nil {
			api.Route("/conversations", func(conv chi.Router) {
				conv.Get("/", cfg.Conversations.ListConversations)
				conv.Route("/{conversationID}", func(one chi.Router) {
					one.Get("/", cfg.Conversations.GetConversation)
					one.Get("/messages", cfg.Conversations.ListMessages)
					one.Post("/assign", cfg.Conversations.AssignAgent)
					one.Post("/funnel", cfg.Conversations.SetFunnel)
					one.Post("/stage", cfg.Conversations.AdvanceStage)
					one.Post("/close", cfg.Conversations.CloseConversation)
					one.Post("/read", cfg.Conversations.MarkRead)
				})
			})
		}
		if cfg.LeadsHandler != nil {
			api.Route("/leads", func(l chi.Router) {
				l.Post("/", cfg.LeadsHandler.CreateLead)
				l.Get("/", cfg.LeadsHandler.ListLeads)
				l.Get("/{leadID}", cfg.LeadsHandler.GetLead)
				l.Patch("/{leadID}", cfg.LeadsHandler.UpdateLead)
			})
		}
		if cfg.Admin != nil {
			api.Route("/contacts", func(c chi.Router) {
				c.Get("/", cfg.Admin.ListContacts)
				c.Post("/merge", cfg.Admin.MergeContacts)
				c.Get("/{contactID}", cfg.Admin.GetContact)
			})
			api.Route("/review", func(rev chi.Router) {
				rev.Get("/", cfg.Admin.ListReviewQueue)
				rev.Post("/{eventID}/resolve", cfg.Admin.ResolveReviewEvent)
			})
			api.Post("/admin/repair/{channel}", cfg.Admin.RepairChannel)
			api.Route("/bridge", func(b chi.Router) {
				b.Get("/status", cfg.Admin.BridgeStatus)
				b.Get("/qr", cfg.Admin.BridgeQR)
				b.Post("/restart", cfg.Admin.BridgeRestart)
			})
		}
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
