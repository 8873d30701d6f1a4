package telegram

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Nick077mp/whatsapp-crm-completo/internal/contacts"
	"github.com/Nick077mp/whatsapp-crm-completo/internal/conversations"
	"github.com/Nick077mp/whatsapp-crm-completo/internal/ingest"
)

// Update is a Bot API webhook update. Only message updates are relevant;
// everything else is skipped.
type Update struct {
	UpdateID int64          `json:"update_id"`
	Message  *UpdateMessage `json:"message,omitempty"`
}

// UpdateMessage is an inbound Telegram message.
type UpdateMessage struct {
	MessageID int64     `json:"message_id"`
	From      *User     `json:"from,omitempty"`
	Chat      Chat      `json:"chat"`
	Date      int64     `json:"date"`
	Text      string    `json:"text,omitempty"`
	Caption   string    `json:"caption,omitempty"`
	Photo     []File    `json:"photo,omitempty"`
	Video     *File     `json:"video,omitempty"`
	Voice     *File     `json:"voice,omitempty"`
	Audio     *File     `json:"audio,omitempty"`
	Document  *File     `json:"document,omitempty"`
	Contact   *TContact `json:"contact,omitempty"`
	Location  *Location `json:"location,omitempty"`
}

// User identifies the Telegram account that sent a message.
type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
}

// Chat is the thread the message belongs to.
type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

// File is a media reference; Telegram hands out file ids, not URLs.
type File struct {
	FileID string `json:"file_id"`
}

// TContact is a shared contact card. When users share their own card it
// carries the only phone number Telegram ever exposes.
type TContact struct {
	PhoneNumber string `json:"phone_number"`
	FirstName   string `json:"first_name"`
	UserID      int64  `json:"user_id,omitempty"`
}

// Location is a shared map point.
type Location struct {
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
}

// ParseUpdate translates a Bot API update into the channel-neutral
// inbound event. Non-message updates return (nil, nil).
func ParseUpdate(body []byte) (*ingest.InboundEvent, error) {
	var update Update
	if err := json.Unmarshal(body, &update); err != nil {
		return nil, fmt.Errorf("telegram: decode update: %w", err)
	}
	if update.Message == nil || update.Message.From == nil || update.Message.From.IsBot {
		return nil, nil
	}

	m := update.Message
	msgType, content, mediaRef := classifyMessage(m)

	ev := &ingest.InboundEvent{
		Channel:           contacts.ChannelTelegram,
		ExternalMessageID: fmt.Sprintf("%d_%d", m.Chat.ID, m.MessageID),
		SenderExternalID:  strconv.FormatInt(m.From.ID, 10),
		SenderName:        senderName(m.From),
		Type:              msgType,
		Content:           content,
		MediaURL:          mediaRef,
		Timestamp:         time.Unix(m.Date, 0).UTC(),
	}

	// A user sharing their own contact card is the one place Telegram
	// reveals a phone number.
	if m.Contact != nil && m.Contact.UserID == m.From.ID {
		ev.RawPhoneHint = m.Contact.PhoneNumber
	}
	return ev, nil
}

func classifyMessage(m *UpdateMessage) (conversations.MessageType, string, string) {
	content := m.Text
	if content == "" {
		content = m.Caption
	}
	switch {
	case len(m.Photo) > 0:
		// Telegram lists photo sizes smallest first.
		return conversations.TypeImage, content, m.Photo[len(m.Photo)-1].FileID
	case m.Video != nil:
		return conversations.TypeVideo, content, m.Video.FileID
	case m.Voice != nil:
		return conversations.TypeAudio, content, m.Voice.FileID
	case m.Audio != nil:
		return conversations.TypeAudio, content, m.Audio.FileID
	case m.Document != nil:
		return conversations.TypeDocument, content, m.Document.FileID
	case m.Location != nil:
		loc := fmt.Sprintf("%f,%f", m.Location.Latitude, m.Location.Longitude)
		return conversations.TypeLocation, loc, ""
	default:
		return conversations.TypeText, content, ""
	}
}

func senderName(u *User) string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		name = u.Username
	}
	return name
}
