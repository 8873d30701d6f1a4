package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/Nick077mp/whatsapp-crm-completo/internal/contacts"
	"github.com/Nick077mp/whatsapp-crm-completo/internal/conversations"
	"github.com/Nick077mp/whatsapp-crm-completo/internal/ingest"
	"github.com/Nick077mp/whatsapp-crm-completo/pkg/logging"
)

// SendHandler exposes the agent send API.
type SendHandler struct {
	sender *ingest.Sender
	logger *logging.Logger
}

// NewSendHandler creates the handler.
func NewSendHandler(sender *ingest.Sender, logger *logging.Logger) *SendHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &SendHandler{sender: sender, logger: logger}
}

type sendAPIRequest struct {
	ContactID string `json:"contact_id"`
	Type      string `json:"type"`
	Content   string `json:"content"`
	MediaURL  string `json:"media_url,omitempty"`
	Agent     string `json:"agent,omitempty"`
}

type sendAPIResponse struct {
	Success           bool   `json:"success"`
	ExternalMessageID string `json:"external_message_id,omitempty"`
	Error             string `json:"error,omitempty"`
}

// HandleSend processes POST /api/send. The message is persisted before
// delivery is attempted; a channel failure reports success=false but the
// message and conversation state remain.
func (h *SendHandler) HandleSend(w http.ResponseWriter, r *http.Request) {
	var req sendAPIRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, sendAPIResponse{Error: "invalid request body"})
		return
	}

	contactID, err := uuid.Parse(req.ContactID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, sendAPIResponse{Error: "invalid contact_id"})
		return
	}
	if req.Content == "" && req.MediaURL == "" {
		writeJSON(w, http.StatusBadRequest, sendAPIResponse{Error: "content or media_url is required"})
		return
	}

	msgType := conversations.MessageType(req.Type)
	if req.Type == "" {
		msgType = conversations.TypeText
	}

	result, err := h.sender.Send(r.Context(), &ingest.SendRequest{
		ContactID: contactID,
		Type:      msgType,
		Content:   req.Content,
		MediaURL:  req.MediaURL,
		Agent:     req.Agent,
	})
	if err != nil {
		switch {
		case errors.Is(err, contacts.ErrContactNotFound):
			writeJSON(w, http.StatusNotFound, sendAPIResponse{Error: "contact not found"})
		case errors.Is(err, ingest.ErrUnknownChannel):
			writeJSON(w, http.StatusBadRequest, sendAPIResponse{Error: err.Error()})
		case errors.Is(err, ingest.ErrSendFailed):
			// Message is persisted; only delivery failed.
			writeJSON(w, http.StatusBadGateway, sendAPIResponse{Error: err.Error()})
		default:
			h.logger.Error("send failed", "error", err, "contact_id", contactID)
			writeJSON(w, http.StatusInternalServerError, sendAPIResponse{Error: "send failed"})
		}
		return
	}

	writeJSON(w, http.StatusOK, sendAPIResponse{
		Success:           true,
		ExternalMessageID: result.ExternalMessageID,
	})
}
