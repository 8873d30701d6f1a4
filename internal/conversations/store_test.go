package conversations

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestGetOrCreateActiveReusesConversation(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()
	contactID := uuid.New()

	first, created, err := store.GetOrCreateActive(ctx, contactID, FunnelSales)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created {
		t.Fatal("expected first call to create")
	}
	if first.Status != StatusActive {
		t.Errorf("expected status active, got %s", first.Status)
	}
	if first.FunnelType != FunnelSales || first.FunnelStage != StageSalesInitial {
		t.Errorf("expected seeded sales funnel, got %s/%s", first.FunnelType, first.FunnelStage)
	}

	second, created, err := store.GetOrCreateActive(ctx, contactID, FunnelSupport)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created {
		t.Error("expected second call to reuse the active conversation")
	}
	if second.ID != first.ID {
		t.Errorf("expected same conversation %s, got %s", first.ID, second.ID)
	}
	if second.FunnelType != FunnelSales {
		t.Error("reuse must not re-seed the funnel")
	}
}

func TestGetOrCreateActiveAfterClose(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()
	contactID := uuid.New()

	first, _, err := store.GetOrCreateActive(ctx, contactID, FunnelNone)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	first.Close()
	if err := store.Update(ctx, first); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	second, created, err := store.GetOrCreateActive(ctx, contactID, FunnelNone)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created {
		t.Error("expected a fresh conversation after close")
	}
	if second.ID == first.ID {
		t.Error("closed conversation must not be reused")
	}
}

func TestUpsertMessageIdempotent(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()
	conv, _, _ := store.GetOrCreateActive(ctx, uuid.New(), FunnelNone)

	msg := &Message{
		ConversationID:    conv.ID,
		ExternalMessageID: "wamid.ABC123",
		SenderType:        SenderContact,
		MessageType:       TypeText,
		Content:           "hola",
	}
	created, err := store.UpsertMessage(ctx, msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created {
		t.Fatal("expected first delivery to insert")
	}

	dup := &Message{
		ConversationID:    conv.ID,
		ExternalMessageID: "wamid.ABC123",
		SenderType:        SenderContact,
		MessageType:       TypeText,
		Content:           "hola (retry)",
	}
	created, err = store.UpsertMessage(ctx, dup)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created {
		t.Error("expected redelivery to be a no-op")
	}
	if dup.ID != msg.ID {
		t.Errorf("expected existing message id %s, got %s", msg.ID, dup.ID)
	}
	if dup.Content != "hola" {
		t.Errorf("expected original content preserved, got %q", dup.Content)
	}

	msgs, err := store.ListMessages(ctx, conv.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 1 {
		t.Errorf("expected 1 stored message, got %d", len(msgs))
	}
}

func TestLatestContactMessageSkipsAgentReplies(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()
	conv, _, _ := store.GetOrCreateActive(ctx, uuid.New(), FunnelNone)
	base := time.Now().UTC()

	seed := []*Message{
		{ConversationID: conv.ID, ExternalMessageID: "m1", SenderType: SenderContact, MessageType: TypeText, Content: "first", CreatedAt: base},
		{ConversationID: conv.ID, ExternalMessageID: "m2", SenderType: SenderAgent, MessageType: TypeText, Content: "reply", CreatedAt: base.Add(time.Minute)},
		{ConversationID: conv.ID, ExternalMessageID: "m3", SenderType: SenderContact, MessageType: TypeText, Content: "second", CreatedAt: base.Add(2 * time.Minute)},
		{ConversationID: conv.ID, ExternalMessageID: "m4", SenderType: SenderAgent, MessageType: TypeText, Content: "reply again", CreatedAt: base.Add(3 * time.Minute)},
	}
	for _, m := range seed {
		if _, err := store.UpsertMessage(ctx, m); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	latest, err := store.LatestMessage(ctx, conv.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if latest.ExternalMessageID != "m4" {
		t.Errorf("expected latest message m4, got %s", latest.ExternalMessageID)
	}

	contact, err := store.LatestContactMessage(ctx, conv.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if contact.ExternalMessageID != "m3" {
		t.Errorf("expected latest contact message m3, got %s", contact.ExternalMessageID)
	}
}

func TestMigrateMessages(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()
	from, _, _ := store.GetOrCreateActive(ctx, uuid.New(), FunnelNone)
	to, _, _ := store.GetOrCreateActive(ctx, uuid.New(), FunnelNone)

	for _, id := range []string{"a", "b", "c"} {
		msg := &Message{ConversationID: from.ID, ExternalMessageID: id, SenderType: SenderContact, MessageType: TypeText, Content: id}
		if _, err := store.UpsertMessage(ctx, msg); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	moved, err := store.MigrateMessages(ctx, from.ID, to.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if moved != 3 {
		t.Errorf("expected 3 messages moved, got %d", moved)
	}

	remaining, _ := store.ListMessages(ctx, from.ID)
	if len(remaining) != 0 {
		t.Errorf("expected source conversation drained, found %d messages", len(remaining))
	}
	migrated, _ := store.ListMessages(ctx, to.ID)
	if len(migrated) != 3 {
		t.Errorf("expected 3 messages in target, got %d", len(migrated))
	}
}

func TestMarkReadRespectsWatermark(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()
	conv, _, _ := store.GetOrCreateActive(ctx, uuid.New(), FunnelNone)
	base := time.Now().UTC()

	early := &Message{ConversationID: conv.ID, ExternalMessageID: "early", SenderType: SenderContact, MessageType: TypeText, Content: "hi", CreatedAt: base}
	late := &Message{ConversationID: conv.ID, ExternalMessageID: "late", SenderType: SenderContact, MessageType: TypeText, Content: "there?", CreatedAt: base.Add(time.Hour)}
	store.UpsertMessage(ctx, early)
	store.UpsertMessage(ctx, late)

	if err := store.MarkRead(ctx, conv.ID, base.Add(time.Minute)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msgs, _ := store.ListMessages(ctx, conv.ID)
	for _, m := range msgs {
		switch m.ExternalMessageID {
		case "early":
			if !m.IsRead {
				t.Error("expected message before watermark marked read")
			}
		case "late":
			if m.IsRead {
				t.Error("expected message after watermark to stay unread")
			}
		}
	}
}

func TestReassignContact(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()
	conv, _, _ := store.GetOrCreateActive(ctx, uuid.New(), FunnelNone)
	survivor := uuid.New()

	if err := store.ReassignContact(ctx, conv.ID, survivor); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := store.GetByID(ctx, conv.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ContactID != survivor {
		t.Errorf("expected contact %s, got %s", survivor, got.ContactID)
	}

	if err := store.ReassignContact(ctx, uuid.New(), survivor); err != ErrConversationNotFound {
		t.Errorf("expected ErrConversationNotFound, got %v", err)
	}
}

func TestDeleteCascadesMessages(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()
	conv, _, _ := store.GetOrCreateActive(ctx, uuid.New(), FunnelNone)
	msg := &Message{ConversationID: conv.ID, ExternalMessageID: "gone", SenderType: SenderContact, MessageType: TypeText, Content: "bye"}
	store.UpsertMessage(ctx, msg)

	if err := store.Delete(ctx, conv.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := store.GetByID(ctx, conv.ID); err != ErrConversationNotFound {
		t.Errorf("expected ErrConversationNotFound, got %v", err)
	}

	// The external id is free again after the cascade.
	fresh := &Message{ConversationID: uuid.New(), ExternalMessageID: "gone", SenderType: SenderContact, MessageType: TypeText, Content: "new"}
	created, err := store.UpsertMessage(ctx, fresh)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created {
		t.Error("expected insert after cascade removed the old external id")
	}
}
