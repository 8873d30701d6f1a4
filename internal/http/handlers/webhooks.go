package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/Nick077mp/whatsapp-crm-completo/internal/channels/facebook"
	"github.com/Nick077mp/whatsapp-crm-completo/internal/channels/telegram"
	"github.com/Nick077mp/whatsapp-crm-completo/internal/channels/whatsapp"
	"github.com/Nick077mp/whatsapp-crm-completo/internal/contacts"
	"github.com/Nick077mp/whatsapp-crm-completo/internal/ingest"
	"github.com/Nick077mp/whatsapp-crm-completo/internal/observability/metrics"
	"github.com/Nick077mp/whatsapp-crm-completo/pkg/logging"
)

// webhookResponse is the envelope every webhook endpoint answers with.
// Bridges key their retry behavior off the success field, not the HTTP
// status.
type webhookResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// WebhookHandler terminates channel webhooks and feeds the ingestion
// pipeline.
type WebhookHandler struct {
	pipeline        *ingest.Pipeline
	facebookWebhook *facebook.Webhook
	telegramSecret  string
	metrics         *metrics.IngestionMetrics
	logger          *logging.Logger
}

// WebhookConfig wires the webhook handler.
type WebhookConfig struct {
	Pipeline        *ingest.Pipeline
	FacebookWebhook *facebook.Webhook
	TelegramSecret  string
	Metrics         *metrics.IngestionMetrics
	Logger          *logging.Logger
}

// NewWebhookHandler creates the handler.
func NewWebhookHandler(cfg WebhookConfig) *WebhookHandler {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &WebhookHandler{
		pipeline:        cfg.Pipeline,
		facebookWebhook: cfg.FacebookWebhook,
		telegramSecret:  cfg.TelegramSecret,
		metrics:         cfg.Metrics,
		logger:          cfg.Logger,
	}
}

// HandleWhatsAppInbound processes POST /webhooks/whatsapp.
func (h *WebhookHandler) HandleWhatsAppInbound(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeWebhookError(w, http.StatusBadRequest, "invalid body")
		return
	}

	event, err := whatsapp.ParseInbound(body)
	if err != nil {
		h.logger.Warn("malformed whatsapp inbound webhook", "error", err)
		writeWebhookError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := h.pipeline.ProcessInbound(r.Context(), event); err != nil {
		h.logger.Error("whatsapp inbound ingestion failed", "error", err, "message_id", event.ExternalMessageID)
		writeWebhookError(w, http.StatusInternalServerError, "ingestion failed")
		return
	}

	h.metrics.ObserveWebhookLatency(string(contacts.ChannelWhatsApp), "inbound", time.Since(start).Seconds())
	writeWebhookOK(w)
}

// HandleWhatsAppOutbound processes POST /webhooks/whatsapp-outgoing, the
// bridge's from_me events for replies sent outside the platform.
func (h *WebhookHandler) HandleWhatsAppOutbound(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeWebhookError(w, http.StatusBadRequest, "invalid body")
		return
	}

	event, err := whatsapp.ParseOutbound(body)
	if err != nil {
		h.logger.Warn("malformed whatsapp outgoing webhook", "error", err)
		writeWebhookError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := h.pipeline.ProcessOutbound(r.Context(), event); err != nil {
		h.logger.Error("whatsapp outbound ingestion failed", "error", err, "message_id", event.ExternalMessageID)
		writeWebhookError(w, http.StatusInternalServerError, "ingestion failed")
		return
	}

	h.metrics.ObserveWebhookLatency(string(contacts.ChannelWhatsApp), "outbound", time.Since(start).Seconds())
	writeWebhookOK(w)
}

// HandleFacebookVerify answers Meta's GET subscription challenge.
func (h *WebhookHandler) HandleFacebookVerify(w http.ResponseWriter, r *http.Request) {
	h.facebookWebhook.HandleVerification(w, r)
}

// HandleFacebook processes POST /webhooks/facebook. One delivery can
// carry several messages, echoes and read receipts; each is applied
// independently and a single failure fails the whole delivery so Meta
// redelivers (the pipeline is idempotent per message).
func (h *WebhookHandler) HandleFacebook(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeWebhookError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if !h.facebookWebhook.Authenticate(r, body) {
		h.logger.Warn("invalid facebook webhook signature")
		writeWebhookError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	parsed, err := facebook.ParseEvents(body)
	if err != nil {
		h.logger.Warn("malformed facebook webhook", "error", err)
		writeWebhookError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.applyFacebookEvents(r.Context(), parsed); err != nil {
		h.logger.Error("facebook ingestion failed", "error", err)
		writeWebhookError(w, http.StatusInternalServerError, "ingestion failed")
		return
	}

	h.metrics.ObserveWebhookLatency(string(contacts.ChannelFacebook), "inbound", time.Since(start).Seconds())
	writeWebhookOK(w)
}

func (h *WebhookHandler) applyFacebookEvents(ctx context.Context, parsed *facebook.ParsedEvents) error {
	for i := range parsed.Inbound {
		if _, err := h.pipeline.ProcessInbound(ctx, &parsed.Inbound[i]); err != nil {
			return err
		}
	}
	for i := range parsed.Outbound {
		if _, err := h.pipeline.ProcessOutbound(ctx, &parsed.Outbound[i]); err != nil {
			return err
		}
	}
	for _, read := range parsed.Reads {
		if err := h.pipeline.ProcessRead(ctx, contacts.ChannelFacebook, read.SenderExternalID, read.Watermark); err != nil {
			return err
		}
	}
	return nil
}

// HandleTelegram processes POST /webhooks/telegram. When a secret token
// is configured the Bot API echoes it back in a header on every delivery.
func (h *WebhookHandler) HandleTelegram(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if h.telegramSecret != "" && r.Header.Get("X-Telegram-Bot-Api-Secret-Token") != h.telegramSecret {
		h.logger.Warn("invalid telegram webhook secret")
		writeWebhookError(w, http.StatusUnauthorized, "invalid secret token")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeWebhookError(w, http.StatusBadRequest, "invalid body")
		return
	}

	event, err := telegram.ParseUpdate(body)
	if err != nil {
		h.logger.Warn("malformed telegram update", "error", err)
		writeWebhookError(w, http.StatusBadRequest, err.Error())
		return
	}
	if event == nil {
		// Non-message update; acknowledge and drop.
		writeWebhookOK(w)
		return
	}

	if _, err := h.pipeline.ProcessInbound(r.Context(), event); err != nil {
		h.logger.Error("telegram ingestion failed", "error", err, "message_id", event.ExternalMessageID)
		writeWebhookError(w, http.StatusInternalServerError, "ingestion failed")
		return
	}

	h.metrics.ObserveWebhookLatency(string(contacts.ChannelTelegram), "inbound", time.Since(start).Seconds())
	writeWebhookOK(w)
}

func writeWebhookOK(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, webhookResponse{Success: true})
}

func writeWebhookError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, webhookResponse{Success: false, Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
