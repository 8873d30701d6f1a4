package whatsapp

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Nick077mp/whatsapp-crm-completo/internal/contacts"
	"github.com/Nick077mp/whatsapp-crm-completo/internal/conversations"
	"github.com/Nick077mp/whatsapp-crm-completo/internal/ingest"
)

// ErrMalformedPayload is returned when a bridge webhook body is missing
// the fields needed to process it.
var ErrMalformedPayload = errors.New("whatsapp: malformed bridge payload")

// InboundPayload is the bridge's customer-message webhook body. From is
// the sender JID exactly as the bridge reports it (phone-bearing
// "<digits>@s.whatsapp.net" or an opaque "@lid" id).
type InboundPayload struct {
	From        string `json:"from"`
	To          string `json:"to,omitempty"`
	MessageID   string `json:"message_id"`
	Timestamp   int64  `json:"timestamp"`
	Type        string `json:"type"`
	Content     string `json:"content"`
	MediaURL    string `json:"media_url,omitempty"`
	SenderName  string `json:"sender_name,omitempty"`
	SenderPhone string `json:"sender_phone,omitempty"`
}

// OutboundPayload is the bridge's from_me webhook body, emitted when an
// agent replies from the phone app instead of the platform.
type OutboundPayload struct {
	To        string `json:"to"`
	From      string `json:"from,omitempty"`
	MessageID string `json:"message_id"`
	Timestamp int64  `json:"timestamp"`
	Type      string `json:"type"`
	Content   string `json:"content"`
	FromMe    bool   `json:"from_me"`
	MediaURL  string `json:"media_url,omitempty"`
}

// ParseInbound translates a bridge message webhook into the
// channel-neutral inbound event.
func ParseInbound(body []byte) (*ingest.InboundEvent, error) {
	var payload InboundPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("whatsapp: decode inbound webhook: %w", err)
	}
	if payload.From == "" || payload.MessageID == "" {
		return nil, fmt.Errorf("%w: from and message_id are required", ErrMalformedPayload)
	}

	return &ingest.InboundEvent{
		Channel:            contacts.ChannelWhatsApp,
		ExternalMessageID:  payload.MessageID,
		SenderExternalID:   payload.From,
		RawPhoneHint:       phoneHint(payload),
		DestinationAddress: payload.To,
		SenderName:         payload.SenderName,
		Type:               messageType(payload.Type),
		Content:            payload.Content,
		MediaURL:           payload.MediaURL,
		Timestamp:          eventTime(payload.Timestamp),
	}, nil
}

// ParseOutbound translates a from_me bridge webhook into the
// channel-neutral outbound event.
func ParseOutbound(body []byte) (*ingest.OutboundEvent, error) {
	var payload OutboundPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("whatsapp: decode outbound webhook: %w", err)
	}
	if payload.To == "" || payload.MessageID == "" {
		return nil, fmt.Errorf("%w: to and message_id are required", ErrMalformedPayload)
	}

	return &ingest.OutboundEvent{
		Channel:           contacts.ChannelWhatsApp,
		ExternalMessageID: payload.MessageID,
		TargetExternalID:  payload.To,
		OriginAddress:     payload.From,
		Type:              messageType(payload.Type),
		Content:           payload.Content,
		MediaURL:          payload.MediaURL,
		Timestamp:         eventTime(payload.Timestamp),
	}, nil
}

// jidSuffixes are the address domains WhatsApp appends to user ids.
// Only the phone-bearing ones yield a usable phone hint; "@lid" ids are
// opaque and resolution must rely on an explicit sender_phone.
var phoneBearingSuffixes = []string{"@s.whatsapp.net", "@c.us"}

func phoneHint(payload InboundPayload) string {
	if payload.SenderPhone != "" {
		return payload.SenderPhone
	}
	for _, suffix := range phoneBearingSuffixes {
		if strings.HasSuffix(payload.From, suffix) {
			return strings.TrimSuffix(payload.From, suffix)
		}
	}
	return ""
}

func messageType(raw string) conversations.MessageType {
	switch raw {
	case "image":
		return conversations.TypeImage
	case "video":
		return conversations.TypeVideo
	case "audio", "ptt":
		return conversations.TypeAudio
	case "document":
		return conversations.TypeDocument
	case "location":
		return conversations.TypeLocation
	default:
		return conversations.TypeText
	}
}

// eventTime converts a bridge timestamp to time.Time. The bridge sends
// unix seconds; some builds send milliseconds.
func eventTime(ts int64) time.Time {
	if ts <= 0 {
		return time.Now().UTC()
	}
	if ts > 1_000_000_000_000 {
		return time.UnixMilli(ts).UTC()
	}
	return time.Unix(ts, 0).UTC()
}
