package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Nick077mp/whatsapp-crm-completo/internal/contacts"
	"github.com/Nick077mp/whatsapp-crm-completo/internal/conversations"
	"github.com/Nick077mp/whatsapp-crm-completo/internal/observability/metrics"
	"github.com/Nick077mp/whatsapp-crm-completo/internal/phone"
	"github.com/Nick077mp/whatsapp-crm-completo/pkg/logging"
)

// ChannelSender is the channel-native delivery capability each adapter
// provides.
type ChannelSender interface {
	SendText(ctx context.Context, to, text string) error
	SendMedia(ctx context.Context, to, mediaURL, caption string, mediaType conversations.MessageType) error
}

// SendRequest is a platform-originated message to a contact.
type SendRequest struct {
	ContactID uuid.UUID                 `json:"contact_id"`
	Type      conversations.MessageType `json:"type"`
	Content   string                    `json:"content"`
	MediaURL  string                    `json:"media_url,omitempty"`
	Agent     string                    `json:"agent,omitempty"`
}

// SendResult is the send API response contract.
type SendResult struct {
	Success           bool   `json:"success"`
	ExternalMessageID string `json:"external_message_id,omitempty"`
	Error             string `json:"error,omitempty"`
}

// Sender is the platform's own send path. State is persisted before
// delivery is attempted, so a slow or failed channel call never loses the
// record or blocks inbound ingestion.
type Sender struct {
	senders    map[contacts.Channel]ChannelSender
	repo       contacts.Repository
	store      conversations.Store
	normalizer *phone.Normalizer
	timeout    time.Duration
	metrics    *metrics.IngestionMetrics
	logger     *logging.Logger
}

// NewSender wires the send path. timeout bounds each channel call.
func NewSender(
	senders map[contacts.Channel]ChannelSender,
	repo contacts.Repository,
	store conversations.Store,
	normalizer *phone.Normalizer,
	timeout time.Duration,
	m *metrics.IngestionMetrics,
	logger *logging.Logger,
) *Sender {
	if normalizer == nil {
		normalizer = phone.Default()
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Sender{
		senders:    senders,
		repo:       repo,
		store:      store,
		normalizer: normalizer,
		timeout:    timeout,
		metrics:    m,
		logger:     logger,
	}
}

// agentMessageID mints the external id for platform-sent messages.
func agentMessageID() string {
	return fmt.Sprintf("agent_%d_%s", time.Now().UnixNano(), strings.Split(uuid.New().String(), "-")[0])
}

// Send persists the agent message, updates conversation state, then
// attempts channel delivery. A delivery failure is reported without
// rolling back the persisted state.
func (s *Sender) Send(ctx context.Context, req *SendRequest) (*SendResult, error) {
	contact, err := s.repo.GetByID(ctx, req.ContactID)
	if err != nil {
		return &SendResult{Error: "contact not found"}, err
	}

	channelSender, ok := s.senders[contact.Channel]
	if !ok {
		return &SendResult{Error: "unsupported channel"},
			fmt.Errorf("%w: %s", ErrUnknownChannel, contact.Channel)
	}

	// Malformed destinations fail before anything is persisted or dialed.
	to, err := s.dialAddress(contact)
	if err != nil {
		return &SendResult{Error: err.Error()}, err
	}

	if req.Type == "" {
		req.Type = conversations.TypeText
	}
	content := req.Content
	if content == "" && req.Type != conversations.TypeText {
		content = conversations.MediaFallback(req.Type)
	}

	conv, _, err := s.store.GetOrCreateActive(ctx, contact.ID, conversations.FunnelNone)
	if err != nil {
		return &SendResult{Error: "storage failure"}, err
	}
	if conv.AssignedAgent == "" && req.Agent != "" {
		conv.AssignedAgent = req.Agent
	}

	now := time.Now().UTC()
	msg := &conversations.Message{
		ConversationID:    conv.ID,
		ExternalMessageID: agentMessageID(),
		SenderType:        conversations.SenderAgent,
		MessageType:       req.Type,
		Content:           content,
		MediaURL:          req.MediaURL,
		IsRead:            true,
		CreatedAt:         now,
	}
	if _, err := s.store.UpsertMessage(ctx, msg); err != nil {
		return &SendResult{Error: "storage failure"}, err
	}
	conv.ApplyOutbound(now)
	if err := s.store.Update(ctx, conv); err != nil {
		return &SendResult{Error: "storage failure"}, err
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if req.Type == conversations.TypeText {
		err = channelSender.SendText(sendCtx, to, content)
	} else {
		err = channelSender.SendMedia(sendCtx, to, req.MediaURL, req.Content, req.Type)
	}
	if err != nil {
		s.metrics.ObserveSend(string(contact.Channel), "failed")
		s.logger.Error("channel delivery failed", "error", err,
			"channel", contact.Channel, "contact_id", contact.ID, "message_id", msg.ID)
		return &SendResult{Error: err.Error(), ExternalMessageID: msg.ExternalMessageID},
			fmt.Errorf("%w: %v", ErrSendFailed, err)
	}

	s.metrics.ObserveSend(string(contact.Channel), "ok")
	s.logger.Info("message sent",
		"channel", contact.Channel, "contact_id", contact.ID, "conversation_id", conv.ID)
	return &SendResult{Success: true, ExternalMessageID: msg.ExternalMessageID}, nil
}

// dialAddress picks the channel-native destination. Phone-addressed
// channels dial the canonical number's digits; id-addressed channels use
// the stored external id untouched.
func (s *Sender) dialAddress(c *contacts.Contact) (string, error) {
	if c.Channel == contacts.ChannelWhatsApp {
		source := c.Phone
		if source == "" {
			source = c.ExternalID
		}
		num, err := s.normalizer.Extract(source)
		if err != nil {
			return "", fmt.Errorf("ingest: destination not dialable: %w", err)
		}
		return num.Digits, nil
	}
	if c.ExternalID == "" {
		return "", fmt.Errorf("ingest: contact %s has no %s address", c.ID, c.Channel)
	}
	return c.ExternalID, nil
}
