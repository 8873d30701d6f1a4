package leads

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/Nick077mp/whatsapp-crm-completo/pkg/logging"
)

// AutoCreator derives leads from conversation activity. Sales-routed
// conversations get a lead automatically; agents never have to create
// one by hand.
type AutoCreator struct {
	repo   Repository
	logger *logging.Logger
}

// NewAutoCreator wires the derivation service.
func NewAutoCreator(repo Repository, logger *logging.Logger) *AutoCreator {
	if logger == nil {
		logger = logging.Default()
	}
	return &AutoCreator{repo: repo, logger: logger}
}

// EnsureLead guarantees the contact holds exactly one lead for the case
// type. An existing lead is reused: a new agent takes it over and a closed
// lead reopens as in_progress. The bool is true when a lead was created.
func (a *AutoCreator) EnsureLead(ctx context.Context, contactID uuid.UUID, caseType CaseType, agent string) (*Lead, bool, error) {
	existing, err := a.repo.GetByContactAndCase(ctx, contactID, caseType)
	if err == nil {
		return existing, false, a.takeOver(ctx, existing, agent)
	}
	if !errors.Is(err, ErrLeadNotFound) {
		return nil, false, fmt.Errorf("leads: lookup existing: %w", err)
	}

	lead, err := a.repo.Create(ctx, &CreateLeadRequest{
		ContactID:     contactID,
		CaseType:      caseType,
		AssignedAgent: agent,
	})
	if errors.Is(err, ErrDuplicateLead) {
		// Lost a race with a concurrent webhook; use the winner's row.
		existing, err = a.repo.GetByContactAndCase(ctx, contactID, caseType)
		if err != nil {
			return nil, false, fmt.Errorf("leads: refetch after duplicate: %w", err)
		}
		return existing, false, a.takeOver(ctx, existing, agent)
	}
	if err != nil {
		return nil, false, err
	}

	a.logger.Info("lead auto-created", "lead_id", lead.ID, "contact_id", contactID, "case_type", caseType)
	return lead, true, nil
}

func (a *AutoCreator) takeOver(ctx context.Context, lead *Lead, agent string) error {
	changed := false
	if agent != "" && lead.AssignedAgent != agent {
		lead.AssignedAgent = agent
		changed = true
	}
	if lead.Status.Closed() {
		lead.Status = StatusInProgress
		changed = true
	}
	if !changed {
		return nil
	}
	if err := a.repo.Update(ctx, lead); err != nil {
		return fmt.Errorf("leads: take over lead: %w", err)
	}
	a.logger.Info("lead reassigned", "lead_id", lead.ID, "agent", lead.AssignedAgent, "status", lead.Status)
	return nil
}
