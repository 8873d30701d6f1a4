package identity

import (
	"context"
	"fmt"

	"github.com/Nick077mp/whatsapp-crm-completo/internal/contacts"
	"github.com/Nick077mp/whatsapp-crm-completo/pkg/logging"
)

// Reconciler is the batch counterpart to the resolver's inline repair:
// it sweeps a whole channel and merges every set of contacts sharing a
// canonical phone into the oldest one. Safe to run repeatedly.
type Reconciler struct {
	repo   contacts.Repository
	merger Merger
	logger *logging.Logger
}

// NewReconciler wires the batch repair job.
func NewReconciler(repo contacts.Repository, merger Merger, logger *logging.Logger) *Reconciler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Reconciler{repo: repo, merger: merger, logger: logger}
}

// RepairReport summarizes one sweep.
type RepairReport struct {
	Scanned int `json:"scanned"`
	Merged  int `json:"merged"`
	Failed  int `json:"failed"`
}

// RepairChannel merges historical duplicates on one channel. After a
// clean sweep no two contacts on the channel share a canonical phone.
func (r *Reconciler) RepairChannel(ctx context.Context, channel contacts.Channel) (RepairReport, error) {
	all, err := r.repo.ListByChannel(ctx, channel)
	if err != nil {
		return RepairReport{}, fmt.Errorf("identity: repair scan: %w", err)
	}

	report := RepairReport{Scanned: len(all)}
	byPhone := make(map[string][]*contacts.Contact)
	for _, c := range all {
		if c.Phone == "" {
			continue
		}
		byPhone[c.Phone] = append(byPhone[c.Phone], c)
	}

	for phone, group := range byPhone {
		if len(group) < 2 {
			continue
		}
		// ListByChannel returns oldest first, so group[0] survives.
		survivor := group[0]
		for _, dup := range group[1:] {
			if err := r.merger.Merge(ctx, survivor.ID, dup.ID); err != nil {
				report.Failed++
				r.logger.Error("batch merge failed", "error", err, "phone", phone,
					"survivor", survivor.ID, "duplicate", dup.ID)
				continue
			}
			report.Merged++
		}
	}

	r.logger.Info("channel repair finished", "channel", channel,
		"scanned", report.Scanned, "merged", report.Merged, "failed", report.Failed)
	return report, nil
}
