package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Nick077mp/whatsapp-crm-completo/internal/conversations"
	"github.com/Nick077mp/whatsapp-crm-completo/pkg/logging"
)

// ConversationHandler exposes the agent-facing conversation operations.
type ConversationHandler struct {
	store            conversations.Store
	overdueThreshold time.Duration
	logger           *logging.Logger
}

// NewConversationHandler creates the handler. threshold <= 0 falls back
// to the default overdue threshold.
func NewConversationHandler(store conversations.Store, threshold time.Duration, logger *logging.Logger) *ConversationHandler {
	if threshold <= 0 {
		threshold = conversations.DefaultOverdueThreshold
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ConversationHandler{store: store, overdueThreshold: threshold, logger: logger}
}

// conversationView decorates a conversation with its derived overdue flag.
type conversationView struct {
	*conversations.Conversation
	Overdue bool `json:"overdue"`
}

// ListConversations handles GET /api/conversations. Optional query
// filters: funnel, needs_response.
func (h *ConversationHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := h.store.ListActive(r.Context())
	if err != nil {
		h.logger.Error("failed to list conversations", "error", err)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	funnel := r.URL.Query().Get("funnel")
	needsResponse := r.URL.Query().Get("needs_response")

	filtered := make([]*conversations.Conversation, 0, len(convs))
	for _, conv := range convs {
		if funnel != "" && string(conv.FunnelType) != funnel {
			continue
		}
		if needsResponse == "true" && !conv.NeedsResponse {
			continue
		}
		if needsResponse == "false" && conv.NeedsResponse {
			continue
		}
		filtered = append(filtered, conv)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(filtered)
}

// GetConversation handles GET /api/conversations/{conversationID}.
func (h *ConversationHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.load(w, r)
	if !ok {
		return
	}

	var lastContactAt time.Time
	if msg, err := h.store.LatestContactMessage(r.Context(), conv.ID); err == nil {
		lastContactAt = msg.CreatedAt
	}

	view := conversationView{
		Conversation: conv,
		Overdue:      conv.Overdue(lastContactAt, h.overdueThreshold, time.Now()),
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(view)
}

// ListMessages handles GET /api/conversations/{conversationID}/messages.
func (h *ConversationHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.load(w, r)
	if !ok {
		return
	}
	msgs, err := h.store.ListMessages(r.Context(), conv.ID)
	if err != nil {
		h.logger.Error("failed to list messages", "error", err, "conversation_id", conv.ID)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(msgs)
}

type assignRequest struct {
	Agent string `json:"agent"`
	Role  string `json:"role,omitempty"`
}

// AssignAgent handles POST /api/conversations/{conversationID}/assign.
func (h *ConversationHandler) AssignAgent(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.load(w, r)
	if !ok {
		return
	}
	var req assignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Agent == "" {
		http.Error(w, "agent is required", http.StatusBadRequest)
		return
	}

	if err := conv.Assign(req.Agent, conversations.FunnelType(req.Role)); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	h.save(w, r, conv)
}

type funnelRequest struct {
	Funnel string `json:"funnel"`
}

// SetFunnel handles POST /api/conversations/{conversationID}/funnel,
// manual reclassification into another department.
func (h *ConversationHandler) SetFunnel(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.load(w, r)
	if !ok {
		return
	}
	var req funnelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	funnel := conversations.FunnelType(req.Funnel)
	switch funnel {
	case conversations.FunnelSales, conversations.FunnelSupport, conversations.FunnelRecovery:
	default:
		http.Error(w, "invalid funnel", http.StatusBadRequest)
		return
	}

	conv.SetFunnel(funnel)
	h.save(w, r, conv)
}

type stageRequest struct {
	Stage string `json:"stage"`
}

// AdvanceStage handles POST /api/conversations/{conversationID}/stage.
func (h *ConversationHandler) AdvanceStage(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.load(w, r)
	if !ok {
		return
	}
	var req stageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := conv.AdvanceStage(conversations.FunnelStage(req.Stage)); err != nil {
		if errors.Is(err, conversations.ErrInvalidStage) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	h.save(w, r, conv)
}

// CloseConversation handles POST /api/conversations/{conversationID}/close.
func (h *ConversationHandler) CloseConversation(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.load(w, r)
	if !ok {
		return
	}
	conv.Close()
	h.save(w, r, conv)
}

// MarkRead handles POST /api/conversations/{conversationID}/read, flagging
// contact messages up to now as read by an agent.
func (h *ConversationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.load(w, r)
	if !ok {
		return
	}
	if err := h.store.MarkRead(r.Context(), conv.ID, time.Now()); err != nil {
		h.logger.Error("failed to mark read", "error", err, "conversation_id", conv.ID)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ConversationHandler) load(w http.ResponseWriter, r *http.Request) (*conversations.Conversation, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "conversationID"))
	if err != nil {
		http.Error(w, "invalid conversation id", http.StatusBadRequest)
		return nil, false
	}
	conv, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, conversations.ErrConversationNotFound) {
			http.Error(w, "conversation not found", http.StatusNotFound)
			return nil, false
		}
		h.logger.Error("failed to load conversation", "error", err, "conversation_id", id)
		http.Error(w, "server error", http.StatusInternalServerError)
		return nil, false
	}
	return conv, true
}

func (h *ConversationHandler) save(w http.ResponseWriter, r *http.Request, conv *conversations.Conversation) {
	if err := h.store.Update(r.Context(), conv); err != nil {
		h.logger.Error("failed to update conversation", "error", err, "conversation_id", conv.ID)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(conv)
}
