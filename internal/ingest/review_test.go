package ingest

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/Nick077mp/whatsapp-crm-completo/internal/contacts"
)

func TestReviewQueueEnqueueDedupsByExternalID(t *testing.T) {
	q := NewInMemoryReviewQueue()
	ctx := context.Background()

	first := &UnresolvedEvent{Channel: contacts.ChannelTelegram, ExternalMessageID: "m1", SenderExternalID: "bot", Reason: "no phone"}
	if err := q.Enqueue(ctx, first); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	redelivery := &UnresolvedEvent{Channel: contacts.ChannelTelegram, ExternalMessageID: "m1", SenderExternalID: "bot", Reason: "no phone"}
	if err := q.Enqueue(ctx, redelivery); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if redelivery.ID != first.ID {
		t.Errorf("expected redelivery to reuse the parked event")
	}

	pending, err := q.ListPending(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("expected 1 pending event, got %d", len(pending))
	}
}

func TestReviewQueueMarkReviewed(t *testing.T) {
	q := NewInMemoryReviewQueue()
	ctx := context.Background()

	ev := &UnresolvedEvent{Channel: contacts.ChannelWhatsApp, ExternalMessageID: "m1", Reason: "unsupported number"}
	if err := q.Enqueue(ctx, ev); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := q.MarkReviewed(ctx, ev.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pending, _ := q.ListPending(ctx)
	if len(pending) != 0 {
		t.Errorf("expected empty queue after review, got %d", len(pending))
	}

	if err := q.MarkReviewed(ctx, uuid.New()); err != ErrEventNotFound {
		t.Errorf("expected ErrEventNotFound, got %v", err)
	}
}
