package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Nick077mp/whatsapp-crm-completo/internal/contacts"
	"github.com/Nick077mp/whatsapp-crm-completo/internal/conversations"
	"github.com/Nick077mp/whatsapp-crm-completo/internal/leads"
	"github.com/Nick077mp/whatsapp-crm-completo/pkg/logging"
)

// Merger folds a duplicate contact into the survivor: messages migrate,
// conversations and leads move over, the duplicate disappears. Merging an
// already-merged pair is a no-op, so retries are safe.
type Merger interface {
	Merge(ctx context.Context, survivorID, duplicateID uuid.UUID) error
}

// InMemoryMerger implements Merge over the in-memory repositories. Used
// by tests and local development; the Postgres variant runs the same
// steps inside one transaction.
type InMemoryMerger struct {
	contacts contacts.Repository
	store    conversations.Store
	leads    leads.Repository
	logger   *logging.Logger
}

// NewInMemoryMerger wires the merge routine.
func NewInMemoryMerger(contactRepo contacts.Repository, store conversations.Store, leadRepo leads.Repository, logger *logging.Logger) *InMemoryMerger {
	if logger == nil {
		logger = logging.Default()
	}
	return &InMemoryMerger{contacts: contactRepo, store: store, leads: leadRepo, logger: logger}
}

func (m *InMemoryMerger) Merge(ctx context.Context, survivorID, duplicateID uuid.UUID) error {
	if survivorID == duplicateID {
		return nil
	}
	if _, err := m.contacts.GetByID(ctx, survivorID); err != nil {
		return fmt.Errorf("identity: merge survivor lookup: %w", err)
	}
	if _, err := m.contacts.GetByID(ctx, duplicateID); err != nil {
		if errors.Is(err, contacts.ErrContactNotFound) {
			// Already merged.
			return nil
		}
		return fmt.Errorf("identity: merge duplicate lookup: %w", err)
	}

	dupConvs, err := m.store.ListByContact(ctx, duplicateID)
	if err != nil {
		return fmt.Errorf("identity: merge list conversations: %w", err)
	}
	for _, conv := range dupConvs {
		if err := m.foldConversation(ctx, survivorID, conv); err != nil {
			return err
		}
	}

	if m.leads != nil {
		if err := m.leads.ReassignContact(ctx, duplicateID, survivorID); err != nil {
			return fmt.Errorf("identity: merge reassign leads: %w", err)
		}
	}
	if err := m.contacts.Delete(ctx, duplicateID); err != nil {
		return fmt.Errorf("identity: merge delete duplicate: %w", err)
	}
	m.logger.Info("contacts merged", "survivor", survivorID, "duplicate", duplicateID)
	return nil
}

// foldConversation moves one of the duplicate's conversations over. An
// active conversation colliding with the survivor's own active one is
// drained into it and deleted; everything else is reassigned wholesale.
func (m *InMemoryMerger) foldConversation(ctx context.Context, survivorID uuid.UUID, conv *conversations.Conversation) error {
	if conv.Status != conversations.StatusActive {
		if err := m.store.ReassignContact(ctx, conv.ID, survivorID); err != nil {
			return fmt.Errorf("identity: merge reassign conversation: %w", err)
		}
		return nil
	}

	target, err := m.store.GetActive(ctx, survivorID)
	if errors.Is(err, conversations.ErrConversationNotFound) {
		if err := m.store.ReassignContact(ctx, conv.ID, survivorID); err != nil {
			return fmt.Errorf("identity: merge reassign active conversation: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("identity: merge survivor active lookup: %w", err)
	}

	moved, err := m.store.MigrateMessages(ctx, conv.ID, target.ID)
	if err != nil {
		return fmt.Errorf("identity: merge migrate messages: %w", err)
	}
	target.LastMessageAt = laterOf(conv.LastMessageAt, target.LastMessageAt)
	if err := m.store.Update(ctx, target); err != nil {
		return fmt.Errorf("identity: merge update survivor conversation: %w", err)
	}
	if err := m.store.Delete(ctx, conv.ID); err != nil {
		return fmt.Errorf("identity: merge delete duplicate conversation: %w", err)
	}
	m.logger.Info("conversations folded", "from", conv.ID, "into", target.ID, "messages_moved", moved)
	return nil
}

// laterOf picks the later of two optional timestamps.
func laterOf(a, b *time.Time) *time.Time {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case a.After(*b):
		return a
	default:
		return b
	}
}
