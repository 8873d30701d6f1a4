package contacts

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for contact storage.
type Repository interface {
	Create(ctx context.Context, contact *Contact) error
	GetByID(ctx context.Context, id uuid.UUID) (*Contact, error)
	GetByExternalID(ctx context.Context, channel Channel, externalID string) (*Contact, error)
	GetByPhone(ctx context.Context, channel Channel, canonicalPhone string) (*Contact, error)
	// ListByPhone returns every contact sharing the phone on the channel,
	// oldest first. More than one entry means a pending merge.
	ListByPhone(ctx context.Context, channel Channel, canonicalPhone string) ([]*Contact, error)
	// ListLegacyPlaceholders returns contacts whose external id still uses
	// the placeholder form, oldest first.
	ListLegacyPlaceholders(ctx context.Context, channel Channel) ([]*Contact, error)
	ListByChannel(ctx context.Context, channel Channel) ([]*Contact, error)
	Update(ctx context.Context, contact *Contact) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// InMemoryRepository is an in-memory Repository used by tests and local
// development.
type InMemoryRepository struct {
	mu       sync.RWMutex
	contacts map[uuid.UUID]*Contact
}

// NewInMemoryRepository creates an empty in-memory repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{contacts: make(map[uuid.UUID]*Contact)}
}

func (r *InMemoryRepository) Create(ctx context.Context, contact *Contact) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if contact.Phone != "" {
		for _, existing := range r.contacts {
			if existing.Channel == contact.Channel && existing.Phone == contact.Phone {
				return ErrDuplicatePhone
			}
		}
	}
	if contact.ID == uuid.Nil {
		contact.ID = uuid.New()
	}
	now := time.Now().UTC()
	contact.CreatedAt = now
	contact.UpdatedAt = now
	cp := *contact
	r.contacts[contact.ID] = &cp
	return nil
}

func (r *InMemoryRepository) GetByID(ctx context.Context, id uuid.UUID) (*Contact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	contact, ok := r.contacts[id]
	if !ok {
		return nil, ErrContactNotFound
	}
	cp := *contact
	return &cp, nil
}

func (r *InMemoryRepository) GetByExternalID(ctx context.Context, channel Channel, externalID string) (*Contact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, contact := range r.contacts {
		if contact.Channel == channel && contact.ExternalID == externalID {
			cp := *contact
			return &cp, nil
		}
	}
	return nil, ErrContactNotFound
}

func (r *InMemoryRepository) GetByPhone(ctx context.Context, channel Channel, canonicalPhone string) (*Contact, error) {
	matches, err := r.ListByPhone(ctx, channel, canonicalPhone)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, ErrContactNotFound
	}
	return matches[0], nil
}

func (r *InMemoryRepository) ListByPhone(ctx context.Context, channel Channel, canonicalPhone string) ([]*Contact, error) {
	if canonicalPhone == "" {
		return nil, nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var matches []*Contact
	for _, contact := range r.contacts {
		if contact.Channel == channel && contact.Phone == canonicalPhone {
			cp := *contact
			matches = append(matches, &cp)
		}
	}
	sortOldestFirst(matches)
	return matches, nil
}

func (r *InMemoryRepository) ListLegacyPlaceholders(ctx context.Context, channel Channel) ([]*Contact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var matches []*Contact
	for _, contact := range r.contacts {
		if contact.Channel == channel && strings.HasPrefix(contact.ExternalID, LegacyPlaceholderPrefix) {
			cp := *contact
			matches = append(matches, &cp)
		}
	}
	sortOldestFirst(matches)
	return matches, nil
}

func (r *InMemoryRepository) ListByChannel(ctx context.Context, channel Channel) ([]*Contact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var matches []*Contact
	for _, contact := range r.contacts {
		if contact.Channel == channel {
			cp := *contact
			matches = append(matches, &cp)
		}
	}
	sortOldestFirst(matches)
	return matches, nil
}

func (r *InMemoryRepository) Update(ctx context.Context, contact *Contact) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.contacts[contact.ID]
	if !ok {
		return ErrContactNotFound
	}
	if contact.Phone != "" {
		for id, other := range r.contacts {
			if id != contact.ID && other.Channel == contact.Channel && other.Phone == contact.Phone {
				return ErrDuplicatePhone
			}
		}
	}
	contact.CreatedAt = existing.CreatedAt
	contact.UpdatedAt = time.Now().UTC()
	cp := *contact
	r.contacts[contact.ID] = &cp
	return nil
}

func (r *InMemoryRepository) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.contacts[id]; !ok {
		return ErrContactNotFound
	}
	delete(r.contacts, id)
	return nil
}

// sortOldestFirst orders by creation time, then id, so ambiguous matches
// resolve the same way every run.
func sortOldestFirst(list []*Contact) {
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.Before(list[j].CreatedAt)
		}
		return list[i].ID.String() < list[j].ID.String()
	})
}
