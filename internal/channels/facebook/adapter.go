package facebook

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Nick077mp/whatsapp-crm-completo/internal/contacts"
	"github.com/Nick077mp/whatsapp-crm-completo/internal/conversations"
	"github.com/Nick077mp/whatsapp-crm-completo/internal/ingest"
)

// ReadReceipt records that a user has read the thread up to Watermark.
type ReadReceipt struct {
	SenderExternalID string
	Watermark        time.Time
}

// ParsedEvents is the channel-neutral result of one webhook delivery.
// A single delivery can batch customer messages, page echoes (replies
// sent from the Meta inbox) and read receipts.
type ParsedEvents struct {
	Inbound  []ingest.InboundEvent
	Outbound []ingest.OutboundEvent
	Reads    []ReadReceipt
}

// ParseEvents translates a raw Messenger webhook body.
func ParseEvents(body []byte) (*ParsedEvents, error) {
	var event WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("facebook: decode webhook: %w", err)
	}

	parsed := &ParsedEvents{}
	for _, entry := range event.Entry {
		for _, m := range entry.Messaging {
			switch {
			case m.Message != nil && m.Message.IsEcho:
				parsed.Outbound = append(parsed.Outbound, ingest.OutboundEvent{
					Channel:           contacts.ChannelFacebook,
					ExternalMessageID: m.Message.MID,
					TargetExternalID:  m.Recipient.ID,
					OriginAddress:     m.Sender.ID,
					Type:              inboundType(m.Message),
					Content:           m.Message.Text,
					MediaURL:          firstAttachmentURL(m.Message),
					Timestamp:         time.UnixMilli(m.Timestamp).UTC(),
				})
			case m.Message != nil:
				parsed.Inbound = append(parsed.Inbound, ingest.InboundEvent{
					Channel:            contacts.ChannelFacebook,
					ExternalMessageID:  m.Message.MID,
					SenderExternalID:   m.Sender.ID,
					DestinationAddress: m.Recipient.ID,
					Type:               inboundType(m.Message),
					Content:            m.Message.Text,
					MediaURL:           firstAttachmentURL(m.Message),
					Timestamp:          time.UnixMilli(m.Timestamp).UTC(),
				})
			case m.Read != nil:
				parsed.Reads = append(parsed.Reads, ReadReceipt{
					SenderExternalID: m.Sender.ID,
					Watermark:        time.UnixMilli(m.Read.Watermark).UTC(),
				})
			}
		}
	}
	return parsed, nil
}

func inboundType(m *Message) conversations.MessageType {
	if len(m.Attachments) == 0 {
		return conversations.TypeText
	}
	switch m.Attachments[0].Type {
	case "image":
		return conversations.TypeImage
	case "video":
		return conversations.TypeVideo
	case "audio":
		return conversations.TypeAudio
	case "file":
		return conversations.TypeDocument
	case "location":
		return conversations.TypeLocation
	default:
		return conversations.TypeText
	}
}

func firstAttachmentURL(m *Message) string {
	if len(m.Attachments) == 0 {
		return ""
	}
	return m.Attachments[0].Payload.URL
}
