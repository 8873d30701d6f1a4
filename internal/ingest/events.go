package ingest

import (
	"time"

	"github.com/Nick077mp/whatsapp-crm-completo/internal/contacts"
	"github.com/Nick077mp/whatsapp-crm-completo/internal/conversations"
)

// InboundEvent is the channel-neutral shape of a customer-to-business
// webhook after adapter translation.
type InboundEvent struct {
	Channel            contacts.Channel          `json:"channel"`
	ExternalMessageID  string                    `json:"external_message_id"`
	SenderExternalID   string                    `json:"sender_external_id"`
	RawPhoneHint       string                    `json:"raw_phone_hint,omitempty"`
	DestinationAddress string                    `json:"destination_address,omitempty"`
	SenderName         string                    `json:"sender_name,omitempty"`
	Type               conversations.MessageType `json:"type"`
	Content            string                    `json:"content"`
	MediaURL           string                    `json:"media_url,omitempty"`
	Timestamp          time.Time                 `json:"timestamp"`
}

// OutboundEvent is a business-to-customer reply observed from outside the
// platform, e.g. an agent answering from the phone app.
type OutboundEvent struct {
	Channel           contacts.Channel          `json:"channel"`
	ExternalMessageID string                    `json:"external_message_id"`
	TargetExternalID  string                    `json:"target_external_id"`
	OriginAddress     string                    `json:"origin_address"`
	Type              conversations.MessageType `json:"type"`
	Content           string                    `json:"content"`
	MediaURL          string                    `json:"media_url,omitempty"`
	Timestamp         time.Time                 `json:"timestamp"`
}

// InboundResult reports what one inbound delivery did.
type InboundResult struct {
	Contact         *contacts.Contact           `json:"contact,omitempty"`
	Conversation    *conversations.Conversation `json:"conversation,omitempty"`
	Message         *conversations.Message      `json:"message,omitempty"`
	Duplicate       bool                        `json:"duplicate"`
	Unresolved      bool                        `json:"unresolved"`
	LeadCreated     bool                        `json:"lead_created"`
	ContactNew      bool                        `json:"contact_new"`
	ConversationNew bool                        `json:"conversation_new"`
}

// OutboundResult reports what one outbound-observed delivery did.
type OutboundResult struct {
	Contact      *contacts.Contact           `json:"contact,omitempty"`
	Conversation *conversations.Conversation `json:"conversation,omitempty"`
	Message      *conversations.Message      `json:"message,omitempty"`
	Duplicate    bool                        `json:"duplicate"`
	ContactNew   bool                        `json:"contact_new"`
}
