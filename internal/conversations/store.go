package conversations

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrConversationNotFound is returned when no conversation matches.
	ErrConversationNotFound = errors.New("conversations: conversation not found")

	// ErrMessageNotFound is returned when no message matches.
	ErrMessageNotFound = errors.New("conversations: message not found")
)

// Store defines conversation and message persistence. Message upsert and
// active-conversation get-or-create are atomic with respect to concurrent
// webhook deliveries.
type Store interface {
	// GetOrCreateActive returns the contact's active conversation,
	// creating one seeded with the funnel when none exists. The create is
	// a single atomic operation; the returned bool is true on creation.
	GetOrCreateActive(ctx context.Context, contactID uuid.UUID, seed FunnelType) (*Conversation, bool, error)
	GetActive(ctx context.Context, contactID uuid.UUID) (*Conversation, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Conversation, error)
	ListByContact(ctx context.Context, contactID uuid.UUID) ([]*Conversation, error)
	// ListActive returns open conversations, most recent activity first.
	ListActive(ctx context.Context) ([]*Conversation, error)
	Update(ctx context.Context, conv *Conversation) error
	Delete(ctx context.Context, id uuid.UUID) error
	// ReassignContact moves a conversation to another contact (merge path).
	ReassignContact(ctx context.Context, conversationID, contactID uuid.UUID) error

	// UpsertMessage inserts the message unless its external id is already
	// known; re-delivery returns the existing row with created=false.
	UpsertMessage(ctx context.Context, msg *Message) (bool, error)
	ListMessages(ctx context.Context, conversationID uuid.UUID) ([]*Message, error)
	LatestMessage(ctx context.Context, conversationID uuid.UUID) (*Message, error)
	LatestContactMessage(ctx context.Context, conversationID uuid.UUID) (*Message, error)
	// MigrateMessages moves every message from one conversation to another
	// (merge path).
	MigrateMessages(ctx context.Context, fromConversationID, toConversationID uuid.UUID) (int64, error)
	// MarkRead flags contact messages created at or before watermark.
	MarkRead(ctx context.Context, conversationID uuid.UUID, watermark time.Time) error
}

// InMemoryStore is the Store used by tests and local development.
type InMemoryStore struct {
	mu            sync.Mutex
	conversations map[uuid.UUID]*Conversation
	messages      map[uuid.UUID]*Message
	byExternalID  map[string]uuid.UUID
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		conversations: make(map[uuid.UUID]*Conversation),
		messages:      make(map[uuid.UUID]*Message),
		byExternalID:  make(map[string]uuid.UUID),
	}
}

func (s *InMemoryStore) GetOrCreateActive(ctx context.Context, contactID uuid.UUID, seed FunnelType) (*Conversation, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conv := s.findActiveLocked(contactID); conv != nil {
		cp := *conv
		return &cp, false, nil
	}
	now := time.Now().UTC()
	conv := &Conversation{
		ID:            uuid.New(),
		ContactID:     contactID,
		Status:        StatusActive,
		FunnelType:    seed,
		FunnelStage:   InitialStage(seed),
		LastMessageAt: &now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if conv.FunnelType == "" {
		conv.FunnelType = FunnelNone
	}
	s.conversations[conv.ID] = conv
	cp := *conv
	return &cp, true, nil
}

func (s *InMemoryStore) findActiveLocked(contactID uuid.UUID) *Conversation {
	var oldest *Conversation
	for _, conv := range s.conversations {
		if conv.ContactID == contactID && conv.Status == StatusActive {
			if oldest == nil || conv.CreatedAt.Before(oldest.CreatedAt) {
				oldest = conv
			}
		}
	}
	return oldest
}

func (s *InMemoryStore) GetActive(ctx context.Context, contactID uuid.UUID) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv := s.findActiveLocked(contactID)
	if conv == nil {
		return nil, ErrConversationNotFound
	}
	cp := *conv
	return &cp, nil
}

func (s *InMemoryStore) GetByID(ctx context.Context, id uuid.UUID) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[id]
	if !ok {
		return nil, ErrConversationNotFound
	}
	cp := *conv
	return &cp, nil
}

func (s *InMemoryStore) ListActive(ctx context.Context) ([]*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []*Conversation
	for _, conv := range s.conversations {
		if conv.Status == StatusActive {
			cp := *conv
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		a, b := result[i].LastMessageAt, result[j].LastMessageAt
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.After(*b)
		}
	})
	return result, nil
}

func (s *InMemoryStore) ListByContact(ctx context.Context, contactID uuid.UUID) ([]*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []*Conversation
	for _, conv := range s.conversations {
		if conv.ContactID == contactID {
			cp := *conv
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (s *InMemoryStore) Update(ctx context.Context, conv *Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.conversations[conv.ID]
	if !ok {
		return ErrConversationNotFound
	}
	conv.CreatedAt = existing.CreatedAt
	conv.UpdatedAt = time.Now().UTC()
	cp := *conv
	s.conversations[conv.ID] = &cp
	return nil
}

func (s *InMemoryStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[id]; !ok {
		return ErrConversationNotFound
	}
	delete(s.conversations, id)
	for msgID, msg := range s.messages {
		if msg.ConversationID == id {
			delete(s.byExternalID, msg.ExternalMessageID)
			delete(s.messages, msgID)
		}
	}
	return nil
}

func (s *InMemoryStore) ReassignContact(ctx context.Context, conversationID, contactID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[conversationID]
	if !ok {
		return ErrConversationNotFound
	}
	conv.ContactID = contactID
	conv.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *InMemoryStore) UpsertMessage(ctx context.Context, msg *Message) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existingID, ok := s.byExternalID[msg.ExternalMessageID]; ok {
		*msg = *s.messages[existingID]
		return false, nil
	}
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	cp := *msg
	s.messages[msg.ID] = &cp
	s.byExternalID[msg.ExternalMessageID] = msg.ID
	return true, nil
}

func (s *InMemoryStore) ListMessages(ctx context.Context, conversationID uuid.UUID) ([]*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []*Message
	for _, msg := range s.messages {
		if msg.ConversationID == conversationID {
			cp := *msg
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (s *InMemoryStore) LatestMessage(ctx context.Context, conversationID uuid.UUID) (*Message, error) {
	msgs, _ := s.ListMessages(ctx, conversationID)
	if len(msgs) == 0 {
		return nil, ErrMessageNotFound
	}
	return msgs[len(msgs)-1], nil
}

func (s *InMemoryStore) LatestContactMessage(ctx context.Context, conversationID uuid.UUID) (*Message, error) {
	msgs, _ := s.ListMessages(ctx, conversationID)
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].SenderType == SenderContact {
			return msgs[i], nil
		}
	}
	return nil, ErrMessageNotFound
}

func (s *InMemoryStore) MigrateMessages(ctx context.Context, fromConversationID, toConversationID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var moved int64
	for _, msg := range s.messages {
		if msg.ConversationID == fromConversationID {
			msg.ConversationID = toConversationID
			moved++
		}
	}
	return moved, nil
}

func (s *InMemoryStore) MarkRead(ctx context.Context, conversationID uuid.UUID, watermark time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, msg := range s.messages {
		if msg.ConversationID == conversationID && msg.SenderType == SenderContact && !msg.CreatedAt.After(watermark) {
			msg.IsRead = true
		}
	}
	return nil
}
