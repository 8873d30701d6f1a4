package leads

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for lead storage.
type Repository interface {
	Create(ctx context.Context, req *CreateLeadRequest) (*Lead, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Lead, error)
	GetByContactAndCase(ctx context.Context, contactID uuid.UUID, caseType CaseType) (*Lead, error)
	ListByContact(ctx context.Context, contactID uuid.UUID) ([]*Lead, error)
	ListByStatus(ctx context.Context, status Status) ([]*Lead, error)
	Update(ctx context.Context, lead *Lead) error
	Delete(ctx context.Context, id uuid.UUID) error
	// ReassignContact moves every lead of one contact to another,
	// dropping the lead when the survivor already holds that case type
	// (merge path).
	ReassignContact(ctx context.Context, fromContactID, toContactID uuid.UUID) error
}

// InMemoryRepository is the Repository used by tests and local development.
type InMemoryRepository struct {
	mu    sync.RWMutex
	leads map[uuid.UUID]*Lead
}

// NewInMemoryRepository creates a new in-memory repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		leads: make(map[uuid.UUID]*Lead),
	}
}

// Create creates a new lead in memory.
func (r *InMemoryRepository) Create(ctx context.Context, req *CreateLeadRequest) (*Lead, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.leads {
		if existing.ContactID == req.ContactID && existing.CaseType == req.CaseType {
			return nil, ErrDuplicateLead
		}
	}

	now := time.Now().UTC()
	lead := &Lead{
		ID:            uuid.New(),
		ContactID:     req.ContactID,
		CaseType:      req.CaseType,
		Status:        StatusNew,
		AssignedAgent: req.AssignedAgent,
		Notes:         req.Notes,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	r.leads[lead.ID] = lead
	cp := *lead
	return &cp, nil
}

// GetByID retrieves a lead by ID.
func (r *InMemoryRepository) GetByID(ctx context.Context, id uuid.UUID) (*Lead, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lead, ok := r.leads[id]
	if !ok {
		return nil, ErrLeadNotFound
	}
	cp := *lead
	return &cp, nil
}

func (r *InMemoryRepository) GetByContactAndCase(ctx context.Context, contactID uuid.UUID, caseType CaseType) (*Lead, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, lead := range r.leads {
		if lead.ContactID == contactID && lead.CaseType == caseType {
			cp := *lead
			return &cp, nil
		}
	}
	return nil, ErrLeadNotFound
}

func (r *InMemoryRepository) ListByContact(ctx context.Context, contactID uuid.UUID) ([]*Lead, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*Lead
	for _, lead := range r.leads {
		if lead.ContactID == contactID {
			cp := *lead
			result = append(result, &cp)
		}
	}
	sortOldestFirst(result)
	return result, nil
}

func (r *InMemoryRepository) ListByStatus(ctx context.Context, status Status) ([]*Lead, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*Lead
	for _, lead := range r.leads {
		if lead.Status == status {
			cp := *lead
			result = append(result, &cp)
		}
	}
	sortOldestFirst(result)
	return result, nil
}

func (r *InMemoryRepository) Update(ctx context.Context, lead *Lead) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.leads[lead.ID]
	if !ok {
		return ErrLeadNotFound
	}
	lead.CreatedAt = existing.CreatedAt
	lead.UpdatedAt = time.Now().UTC()
	cp := *lead
	r.leads[lead.ID] = &cp
	return nil
}

func (r *InMemoryRepository) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.leads[id]; !ok {
		return ErrLeadNotFound
	}
	delete(r.leads, id)
	return nil
}

func (r *InMemoryRepository) ReassignContact(ctx context.Context, fromContactID, toContactID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	taken := make(map[CaseType]bool)
	for _, lead := range r.leads {
		if lead.ContactID == toContactID {
			taken[lead.CaseType] = true
		}
	}
	for id, lead := range r.leads {
		if lead.ContactID != fromContactID {
			continue
		}
		if taken[lead.CaseType] {
			delete(r.leads, id)
			continue
		}
		lead.ContactID = toContactID
		lead.UpdatedAt = time.Now().UTC()
		taken[lead.CaseType] = true
	}
	return nil
}

func sortOldestFirst(leads []*Lead) {
	sort.Slice(leads, func(i, j int) bool {
		if leads[i].CreatedAt.Equal(leads[j].CreatedAt) {
			return leads[i].ID.String() < leads[j].ID.String()
		}
		return leads[i].CreatedAt.Before(leads[j].CreatedAt)
	})
}
