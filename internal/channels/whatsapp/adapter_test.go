package whatsapp

import (
	"errors"
	"testing"
	"time"

	"github.com/Nick077mp/whatsapp-crm-completo/internal/contacts"
	"github.com/Nick077mp/whatsapp-crm-completo/internal/conversations"
)

func TestParseInboundPhoneBearingJID(t *testing.T) {
	body := []byte(`{
		"from": "573001234567@s.whatsapp.net",
		"to": "573022620031",
		"message_id": "3EB0C431C26A1916E63A",
		"timestamp": 1698624136,
		"type": "text",
		"content": "Hola, necesito ayuda",
		"sender_name": "Maria"
	}`)

	event, err := ParseInbound(body)
	if err != nil {
		t.Fatal(err)
	}
	if event.Channel != contacts.ChannelWhatsApp {
		t.Errorf("channel = %s", event.Channel)
	}
	if event.SenderExternalID != "573001234567@s.whatsapp.net" {
		t.Errorf("sender = %s, want full JID preserved", event.SenderExternalID)
	}
	if event.RawPhoneHint != "573001234567" {
		t.Errorf("phone hint = %s, want 573001234567", event.RawPhoneHint)
	}
	if event.DestinationAddress != "573022620031" {
		t.Errorf("destination = %s", event.DestinationAddress)
	}
	if event.SenderName != "Maria" {
		t.Errorf("sender name = %s", event.SenderName)
	}
	if !event.Timestamp.Equal(time.Unix(1698624136, 0).UTC()) {
		t.Errorf("timestamp = %v", event.Timestamp)
	}
}

func TestParseInboundOpaqueLidUsesSenderPhoneHint(t *testing.T) {
	body := []byte(`{
		"from": "98117236471826@lid",
		"message_id": "msg_lid_1",
		"timestamp": 1698624136,
		"type": "text",
		"content": "hola",
		"sender_phone": "+57 300 123 4567"
	}`)

	event, err := ParseInbound(body)
	if err != nil {
		t.Fatal(err)
	}
	if event.SenderExternalID != "98117236471826@lid" {
		t.Errorf("sender = %s", event.SenderExternalID)
	}
	if event.RawPhoneHint != "+57 300 123 4567" {
		t.Errorf("phone hint = %s, want explicit sender_phone", event.RawPhoneHint)
	}
}

func TestParseInboundOpaqueLidWithoutHint(t *testing.T) {
	body := []byte(`{"from": "98117236471826@lid", "message_id": "m1", "type": "text", "content": "x"}`)

	event, err := ParseInbound(body)
	if err != nil {
		t.Fatal(err)
	}
	if event.RawPhoneHint != "" {
		t.Errorf("phone hint = %q, want empty for opaque id", event.RawPhoneHint)
	}
}

func TestParseInboundMediaTypes(t *testing.T) {
	tests := []struct {
		raw  string
		want conversations.MessageType
	}{
		{"text", conversations.TypeText},
		{"image", conversations.TypeImage},
		{"video", conversations.TypeVideo},
		{"audio", conversations.TypeAudio},
		{"ptt", conversations.TypeAudio},
		{"document", conversations.TypeDocument},
		{"location", conversations.TypeLocation},
		{"sticker", conversations.TypeText},
		{"", conversations.TypeText},
	}

	for _, tt := range tests {
		if got := messageType(tt.raw); got != tt.want {
			t.Errorf("messageType(%q) = %s, want %s", tt.raw, got, tt.want)
		}
	}
}

func TestParseInboundMissingFields(t *testing.T) {
	_, err := ParseInbound([]byte(`{"content": "hola"}`))
	if !errors.Is(err, ErrMalformedPayload) {
		t.Fatalf("err = %v, want ErrMalformedPayload", err)
	}
}

func TestParseOutbound(t *testing.T) {
	body := []byte(`{
		"to": "WA-2699-1357-9118-670",
		"from": "573243230276",
		"message_id": "msg_test_wa_format_123",
		"timestamp": 1698624136,
		"type": "text",
		"content": "Respuesta desde celular",
		"from_me": true
	}`)

	event, err := ParseOutbound(body)
	if err != nil {
		t.Fatal(err)
	}
	if event.TargetExternalID != "WA-2699-1357-9118-670" {
		t.Errorf("target = %s", event.TargetExternalID)
	}
	if event.OriginAddress != "573243230276" {
		t.Errorf("origin = %s", event.OriginAddress)
	}
	if event.Content != "Respuesta desde celular" {
		t.Errorf("content = %s", event.Content)
	}
}

func TestParseOutboundMissingTarget(t *testing.T) {
	_, err := ParseOutbound([]byte(`{"message_id": "m1", "from_me": true}`))
	if !errors.Is(err, ErrMalformedPayload) {
		t.Fatalf("err = %v, want ErrMalformedPayload", err)
	}
}

func TestEventTimeMilliseconds(t *testing.T) {
	got := eventTime(1698624136000)
	want := time.UnixMilli(1698624136000).UTC()
	if !got.Equal(want) {
		t.Errorf("eventTime = %v, want %v", got, want)
	}
}

func TestEventTimeZeroDefaultsToNow(t *testing.T) {
	before := time.Now().UTC().Add(-time.Second)
	got := eventTime(0)
	if got.Before(before) {
		t.Errorf("eventTime(0) = %v, want recent", got)
	}
}
