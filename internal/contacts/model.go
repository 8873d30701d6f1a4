package contacts

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Channel is a messaging surface a contact writes from.
type Channel string

const (
	ChannelWhatsApp Channel = "whatsapp"
	ChannelFacebook Channel = "facebook"
	ChannelTelegram Channel = "telegram"
)

// LegacyPlaceholderPrefix marks external ids minted before canonical-phone
// resolution existed. They carry no usable phone and are promoted in place
// once the real number is learned.
const LegacyPlaceholderPrefix = "WA-"

// Contact is one person on one channel. Phone, when set, is the canonical
// international format and is the identity key; ExternalID is whatever the
// channel currently calls them and may rotate.
type Contact struct {
	ID          uuid.UUID `json:"id"`
	Channel     Channel   `json:"channel"`
	ExternalID  string    `json:"external_id"`
	DisplayName string    `json:"display_name"`
	Phone       string    `json:"phone,omitempty"`
	Country     string    `json:"country,omitempty"`
	NeedsReview bool      `json:"needs_review"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// IsLegacyPlaceholder reports whether the contact still carries a
// pre-unification placeholder id.
func (c *Contact) IsLegacyPlaceholder() bool {
	return strings.HasPrefix(c.ExternalID, LegacyPlaceholderPrefix)
}
