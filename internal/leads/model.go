package leads

import (
	"time"

	"github.com/google/uuid"
)

// CaseType mirrors the department that originated the lead. A contact
// holds at most one lead per case type.
type CaseType string

const (
	CaseSales    CaseType = "sales"
	CaseSupport  CaseType = "support"
	CaseRecovery CaseType = "recovery"
)

// Status is the lead pipeline state.
type Status string

const (
	StatusNew         Status = "new"
	StatusInProgress  Status = "in_progress"
	StatusNegotiation Status = "negotiation"
	StatusClosedWon   Status = "closed_won"
	StatusClosedLost  Status = "closed_lost"
)

// Closed reports whether the status is terminal.
func (s Status) Closed() bool {
	return s == StatusClosedWon || s == StatusClosedLost
}

// Lead tracks a commercial opportunity derived from a conversation.
type Lead struct {
	ID            uuid.UUID `json:"id"`
	ContactID     uuid.UUID `json:"contact_id"`
	CaseType      CaseType  `json:"case_type"`
	Status        Status    `json:"status"`
	AssignedAgent string    `json:"assigned_agent,omitempty"`
	Notes         string    `json:"notes,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// CreateLeadRequest is the input for creating a lead.
type CreateLeadRequest struct {
	ContactID     uuid.UUID `json:"contact_id"`
	CaseType      CaseType  `json:"case_type"`
	AssignedAgent string    `json:"assigned_agent"`
	Notes         string    `json:"notes"`
}

// Validate validates the create lead request.
func (r *CreateLeadRequest) Validate() error {
	if r.ContactID == uuid.Nil {
		return ErrMissingContact
	}
	switch r.CaseType {
	case CaseSales, CaseSupport, CaseRecovery:
		return nil
	default:
		return ErrInvalidCaseType
	}
}
