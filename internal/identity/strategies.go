package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Nick077mp/whatsapp-crm-completo/internal/contacts"
	"github.com/Nick077mp/whatsapp-crm-completo/internal/phone"
	"github.com/Nick077mp/whatsapp-crm-completo/pkg/logging"
)

// LookupStrategy attempts to resolve an outbound target address to an
// existing contact. A miss is (nil, nil); only infrastructure failures
// return an error.
type LookupStrategy interface {
	Name() string
	Lookup(ctx context.Context, channel contacts.Channel, target string) (*contacts.Contact, error)
}

// OutboundResolver finds the Contact behind the destination address of a
// reply sent from outside the platform. Bridges report the address in
// whatever shape they like, so resolution walks a priority-ordered chain
// of strategies and falls back to creating a review-flagged contact.
type OutboundResolver struct {
	repo       contacts.Repository
	normalizer *phone.Normalizer
	strategies []LookupStrategy
	logger     *logging.Logger
}

// NewOutboundResolver builds the default chain: exact external id, legacy
// placeholder suffix, full-table digit scan, exact canonical phone.
func NewOutboundResolver(repo contacts.Repository, normalizer *phone.Normalizer, logger *logging.Logger) *OutboundResolver {
	if normalizer == nil {
		normalizer = phone.Default()
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &OutboundResolver{
		repo:       repo,
		normalizer: normalizer,
		strategies: []LookupStrategy{
			externalIDStrategy{repo: repo},
			placeholderSuffixStrategy{repo: repo, normalizer: normalizer},
			digitScanStrategy{repo: repo, normalizer: normalizer},
			canonicalPhoneStrategy{repo: repo, normalizer: normalizer},
		},
		logger: logger,
	}
}

// ResolveTarget returns the contact the outbound message was sent to,
// creating one flagged for manual review when every strategy misses. An
// externally observed message is never dropped.
func (r *OutboundResolver) ResolveTarget(ctx context.Context, channel contacts.Channel, target string) (*contacts.Contact, bool, error) {
	for _, s := range r.strategies {
		contact, err := s.Lookup(ctx, channel, target)
		if err != nil {
			return nil, false, fmt.Errorf("identity: %s lookup: %w", s.Name(), err)
		}
		if contact != nil {
			return contact, false, nil
		}
	}

	contact := &contacts.Contact{
		Channel:     channel,
		ExternalID:  target,
		DisplayName: target,
		NeedsReview: true,
	}
	if num, err := r.normalizer.Extract(target); err == nil {
		contact.Phone = num.Formatted
		contact.Country = num.CountryName
		contact.DisplayName = num.Formatted
	}
	err := r.repo.Create(ctx, contact)
	if errors.Is(err, contacts.ErrDuplicatePhone) {
		existing, getErr := r.repo.GetByPhone(ctx, channel, contact.Phone)
		if getErr != nil {
			return nil, false, fmt.Errorf("identity: refetch after duplicate: %w", getErr)
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("identity: create fallback contact: %w", err)
	}
	r.logger.Warn("outbound target unmatched, contact created for review",
		"channel", channel, "target", target, "contact_id", contact.ID)
	return contact, true, nil
}

// externalIDStrategy matches the target verbatim against stored external
// ids.
type externalIDStrategy struct {
	repo contacts.Repository
}

func (externalIDStrategy) Name() string { return "external-id" }

func (s externalIDStrategy) Lookup(ctx context.Context, channel contacts.Channel, target string) (*contacts.Contact, error) {
	contact, err := s.repo.GetByExternalID(ctx, channel, target)
	if errors.Is(err, contacts.ErrContactNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return contact, nil
}

// placeholderSuffixStrategy matches the target's trailing digits against
// the phone run embedded in legacy placeholder ids.
type placeholderSuffixStrategy struct {
	repo       contacts.Repository
	normalizer *phone.Normalizer
}

func (placeholderSuffixStrategy) Name() string { return "placeholder-suffix" }

func (s placeholderSuffixStrategy) Lookup(ctx context.Context, channel contacts.Channel, target string) (*contacts.Contact, error) {
	suffix := trailingDigits(phone.Digits(target), 10)
	if suffix == "" {
		return nil, nil
	}
	placeholders, err := s.repo.ListLegacyPlaceholders(ctx, channel)
	if err != nil {
		return nil, err
	}
	for _, c := range placeholders {
		// Placeholder ids end in a counter, so the embedded phone run is
		// compared, not the concatenation of every digit in the id.
		embedded, err := s.normalizer.Extract(c.ExternalID)
		if err != nil {
			continue
		}
		if strings.HasSuffix(embedded.Digits, suffix) {
			return c, nil
		}
	}
	return nil, nil
}

// digitScanStrategy walks every contact on the channel comparing trailing
// digit runs of both the stored phone and the stored external id. The
// expensive last-resort before giving up on an existing record.
type digitScanStrategy struct {
	repo       contacts.Repository
	normalizer *phone.Normalizer
}

func (digitScanStrategy) Name() string { return "digit-scan" }

func (s digitScanStrategy) Lookup(ctx context.Context, channel contacts.Channel, target string) (*contacts.Contact, error) {
	suffix := trailingDigits(phone.Digits(target), 10)
	if suffix == "" {
		return nil, nil
	}
	all, err := s.repo.ListByChannel(ctx, channel)
	if err != nil {
		return nil, err
	}
	for _, c := range all {
		if c.Phone != "" && strings.HasSuffix(phone.Digits(c.Phone), suffix) {
			return c, nil
		}
		embedded, err := s.normalizer.Extract(c.ExternalID)
		if err != nil {
			continue
		}
		if strings.HasSuffix(embedded.Digits, suffix) {
			return c, nil
		}
	}
	return nil, nil
}

// canonicalPhoneStrategy normalizes the target and matches the canonical
// form exactly.
type canonicalPhoneStrategy struct {
	repo       contacts.Repository
	normalizer *phone.Normalizer
}

func (canonicalPhoneStrategy) Name() string { return "canonical-phone" }

func (s canonicalPhoneStrategy) Lookup(ctx context.Context, channel contacts.Channel, target string) (*contacts.Contact, error) {
	num, err := s.normalizer.Extract(target)
	if err != nil {
		return nil, nil
	}
	contact, err := s.repo.GetByPhone(ctx, channel, num.Formatted)
	if errors.Is(err, contacts.ErrContactNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return contact, nil
}
