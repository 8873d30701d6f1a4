package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Nick077mp/whatsapp-crm-completo/internal/channels/whatsapp"
	"github.com/Nick077mp/whatsapp-crm-completo/internal/contacts"
	"github.com/Nick077mp/whatsapp-crm-completo/internal/identity"
	"github.com/Nick077mp/whatsapp-crm-completo/internal/ingest"
	"github.com/Nick077mp/whatsapp-crm-completo/pkg/logging"
)

// AdminHandler groups the operational endpoints: review queue, contact
// merge and repair, and the WhatsApp bridge controls.
type AdminHandler struct {
	contacts   contacts.Repository
	review     ingest.ReviewQueue
	merger     identity.Merger
	reconciler *identity.Reconciler
	bridge     *whatsapp.Client
	logger     *logging.Logger
}

// AdminConfig wires the admin handler. Bridge may be nil when the
// WhatsApp channel is disabled.
type AdminConfig struct {
	Contacts   contacts.Repository
	Review     ingest.ReviewQueue
	Merger     identity.Merger
	Reconciler *identity.Reconciler
	Bridge     *whatsapp.Client
	Logger     *logging.Logger
}

// NewAdminHandler creates the handler.
func NewAdminHandler(cfg AdminConfig) *AdminHandler {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &AdminHandler{
		contacts:   cfg.Contacts,
		review:     cfg.Review,
		merger:     cfg.Merger,
		reconciler: cfg.Reconciler,
		bridge:     cfg.Bridge,
		logger:     cfg.Logger,
	}
}

// ListContacts handles GET /api/contacts?channel=.
func (h *AdminHandler) ListContacts(w http.ResponseWriter, r *http.Request) {
	channel := contacts.Channel(r.URL.Query().Get("channel"))
	if channel == "" {
		channel = contacts.ChannelWhatsApp
	}
	list, err := h.contacts.ListByChannel(r.Context(), channel)
	if err != nil {
		h.logger.Error("failed to list contacts", "error", err, "channel", channel)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(list)
}

// GetContact handles GET /api/contacts/{contactID}.
func (h *AdminHandler) GetContact(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "contactID"))
	if err != nil {
		http.Error(w, "invalid contact id", http.StatusBadRequest)
		return
	}
	contact, err := h.contacts.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, contacts.ErrContactNotFound) {
			http.Error(w, "contact not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to load contact", "error", err, "contact_id", id)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(contact)
}

type mergeRequest struct {
	SurvivorID  string `json:"survivor_id"`
	DuplicateID string `json:"duplicate_id"`
}

// MergeContacts handles POST /api/contacts/merge. The duplicate's
// history folds into the survivor and the duplicate is removed.
func (h *AdminHandler) MergeContacts(w http.ResponseWriter, r *http.Request) {
	var req mergeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	survivorID, err := uuid.Parse(req.SurvivorID)
	if err != nil {
		http.Error(w, "invalid survivor_id", http.StatusBadRequest)
		return
	}
	duplicateID, err := uuid.Parse(req.DuplicateID)
	if err != nil {
		http.Error(w, "invalid duplicate_id", http.StatusBadRequest)
		return
	}

	if err := h.merger.Merge(r.Context(), survivorID, duplicateID); err != nil {
		h.logger.Error("merge failed", "error", err, "survivor_id", survivorID, "duplicate_id", duplicateID)
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	h.logger.Info("contacts merged", "survivor_id", survivorID, "duplicate_id", duplicateID)
	w.WriteHeader(http.StatusNoContent)
}

// RepairChannel handles POST /api/admin/repair/{channel}: a full sweep
// that merges every contact group sharing a canonical phone.
func (h *AdminHandler) RepairChannel(w http.ResponseWriter, r *http.Request) {
	channel := contacts.Channel(chi.URLParam(r, "channel"))
	switch channel {
	case contacts.ChannelWhatsApp, contacts.ChannelFacebook, contacts.ChannelTelegram:
	default:
		http.Error(w, "unknown channel", http.StatusBadRequest)
		return
	}

	report, err := h.reconciler.RepairChannel(r.Context(), channel)
	if err != nil {
		h.logger.Error("repair sweep failed", "error", err, "channel", channel)
		http.Error(w, "repair failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(report)
}

// ListReviewQueue handles GET /api/review.
func (h *AdminHandler) ListReviewQueue(w http.ResponseWriter, r *http.Request) {
	pending, err := h.review.ListPending(r.Context())
	if err != nil {
		h.logger.Error("failed to list review queue", "error", err)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(pending)
}

// ResolveReviewEvent handles POST /api/review/{eventID}/resolve.
func (h *AdminHandler) ResolveReviewEvent(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "eventID"))
	if err != nil {
		http.Error(w, "invalid event id", http.StatusBadRequest)
		return
	}
	if err := h.review.MarkReviewed(r.Context(), id); err != nil {
		if errors.Is(err, ingest.ErrEventNotFound) {
			http.Error(w, "event not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to resolve review event", "error", err, "event_id", id)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// BridgeStatus handles GET /api/bridge/status.
func (h *AdminHandler) BridgeStatus(w http.ResponseWriter, r *http.Request) {
	if h.bridge == nil {
		http.Error(w, "bridge not configured", http.StatusServiceUnavailable)
		return
	}
	status, err := h.bridge.Status(r.Context())
	if err != nil {
		h.logger.Error("bridge status check failed", "error", err)
		http.Error(w, "bridge unreachable", http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

// BridgeQR handles GET /api/bridge/qr.
func (h *AdminHandler) BridgeQR(w http.ResponseWriter, r *http.Request) {
	if h.bridge == nil {
		http.Error(w, "bridge not configured", http.StatusServiceUnavailable)
		return
	}
	qr, err := h.bridge.QR(r.Context())
	if err != nil {
		h.logger.Error("bridge qr fetch failed", "error", err)
		http.Error(w, "bridge unreachable", http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"qr": qr})
}

// BridgeRestart handles POST /api/bridge/restart.
func (h *AdminHandler) BridgeRestart(w http.ResponseWriter, r *http.Request) {
	if h.bridge == nil {
		http.Error(w, "bridge not configured", http.StatusServiceUnavailable)
		return
	}
	if err := h.bridge.Restart(r.Context()); err != nil {
		h.logger.Error("bridge restart failed", "error", err)
		http.Error(w, "bridge unreachable", http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
