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

var (
	// ErrUnresolvableIdentity is returned when a sender on a phone-bearing
	// channel cannot be mapped to a canonical phone. The resolver never
	// fabricates one.
	ErrUnresolvableIdentity = errors.New("identity: sender cannot be resolved to a canonical phone")
)

// Resolver unifies wire identifiers into Contacts. Every inbound and
// outbound event goes through Resolve before anything else touches
// storage.
type Resolver struct {
	repo       contacts.Repository
	normalizer *phone.Normalizer
	cache      *contacts.MappingCache
	merger     Merger
	logger     *logging.Logger
}

// NewResolver wires the resolution chain. cache and merger may be nil;
// resolution then skips the fast path and inline duplicate repair.
func NewResolver(repo contacts.Repository, normalizer *phone.Normalizer, cache *contacts.MappingCache, merger Merger, logger *logging.Logger) *Resolver {
	if normalizer == nil {
		normalizer = phone.Default()
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Resolver{
		repo:       repo,
		normalizer: normalizer,
		cache:      cache,
		merger:     merger,
		logger:     logger,
	}
}

// Resolve maps a channel-assigned sender id (plus an optional phone hint
// from the payload) to exactly one Contact. Steps short-circuit on a hit:
// cache, stored external id, canonical-phone match, legacy-placeholder
// promotion, create.
func (r *Resolver) Resolve(ctx context.Context, channel contacts.Channel, externalID, rawPhoneHint string) (*contacts.Contact, error) {
	if cached, ok, err := r.cache.Get(ctx, channel, externalID); err == nil && ok {
		contact, err := r.repo.GetByID(ctx, cached.ContactID)
		if err == nil {
			return contact, nil
		}
		// Contact vanished (merged away); drop the stale entry and resolve
		// from scratch.
		_ = r.cache.Delete(ctx, channel, externalID)
	} else if err != nil {
		r.logger.Warn("identity cache lookup failed", "error", err, "channel", channel, "external_id", externalID)
	}

	contact, err := r.repo.GetByExternalID(ctx, channel, externalID)
	if err != nil && !errors.Is(err, contacts.ErrContactNotFound) {
		return nil, fmt.Errorf("identity: external id lookup: %w", err)
	}

	if contact == nil {
		num, ok := r.senderNumber(channel, externalID, rawPhoneHint)
		if !ok && channel == contacts.ChannelWhatsApp {
			return nil, fmt.Errorf("%w: %q carries no usable phone", ErrUnresolvableIdentity, externalID)
		}
		if ok {
			contact, err = r.matchByPhone(ctx, channel, externalID, num)
			if err != nil {
				return nil, err
			}
			if contact == nil {
				contact, err = r.promoteLegacyPlaceholder(ctx, channel, externalID, num)
				if err != nil {
					return nil, err
				}
			}
		}
		if contact == nil {
			contact, err = r.createContact(ctx, channel, externalID, num)
			if err != nil {
				return nil, err
			}
		}
	}

	if err := r.cache.Put(ctx, channel, externalID, contacts.Mapping{Phone: contact.Phone, ContactID: contact.ID}); err != nil {
		r.logger.Warn("identity cache write failed", "error", err, "contact_id", contact.ID)
	}
	return contact, nil
}

// senderNumber derives the canonical phone for a sender. An explicit
// payload hint always wins. Channel ids are only mined for digits on
// WhatsApp, where the JID embeds the phone; Facebook PSIDs and Telegram
// user ids are opaque numbers that must never become phones.
func (r *Resolver) senderNumber(channel contacts.Channel, externalID, rawPhoneHint string) (phone.Number, bool) {
	if rawPhoneHint != "" {
		if num, err := r.normalizer.Extract(rawPhoneHint); err == nil {
			return num, true
		}
	}
	if channel == contacts.ChannelWhatsApp {
		if num, err := r.normalizer.Extract(externalID); err == nil {
			return num, true
		}
	}
	return phone.Number{}, false
}

// matchByPhone finds the contact holding the canonical phone. When a
// historical duplicate also holds it, the oldest contact survives and the
// rest are merged in best-effort.
func (r *Resolver) matchByPhone(ctx context.Context, channel contacts.Channel, externalID string, num phone.Number) (*contacts.Contact, error) {
	matches, err := r.repo.ListByPhone(ctx, channel, num.Formatted)
	if err != nil {
		return nil, fmt.Errorf("identity: phone lookup: %w", err)
	}
	if len(matches) == 0 {
		return nil, nil
	}

	survivor := matches[0]
	if r.merger != nil {
		for _, dup := range matches[1:] {
			if err := r.merger.Merge(ctx, survivor.ID, dup.ID); err != nil {
				r.logger.Error("inline duplicate merge failed", "error", err, "survivor", survivor.ID, "duplicate", dup.ID)
			}
		}
	}

	if survivor.ExternalID != externalID {
		// Channel-assigned ids rotate; the canonical phone stays.
		old := survivor.ExternalID
		survivor.ExternalID = externalID
		if err := r.repo.Update(ctx, survivor); err != nil {
			return nil, fmt.Errorf("identity: reconcile external id: %w", err)
		}
		_ = r.cache.Delete(ctx, channel, old)
		r.logger.Info("external id reconciled", "contact_id", survivor.ID, "old", old, "new", externalID)
	}
	return survivor, nil
}

// promoteLegacyPlaceholder upgrades a pre-unification placeholder contact
// in place once the real phone is learned, instead of minting a second
// record. Ambiguous candidates resolve deterministically to the oldest
// contact (lowest id on ties) and the ambiguity is logged for review.
func (r *Resolver) promoteLegacyPlaceholder(ctx context.Context, channel contacts.Channel, externalID string, num phone.Number) (*contacts.Contact, error) {
	placeholders, err := r.repo.ListLegacyPlaceholders(ctx, channel)
	if err != nil {
		return nil, fmt.Errorf("identity: placeholder scan: %w", err)
	}
	suffix := trailingDigits(num.Digits, 10)
	if suffix == "" {
		return nil, nil
	}

	var candidates []*contacts.Contact
	for _, c := range placeholders {
		// Placeholder ids carry the phone as one digit run with an
		// unrelated counter after it, so only the embedded run is
		// compared, never the concatenation of every digit in the id.
		embedded, err := r.normalizer.Extract(c.ExternalID)
		if err != nil {
			continue
		}
		if strings.HasSuffix(embedded.Digits, suffix) {
			candidates = append(candidates, c)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	if len(candidates) > 1 {
		ids := make([]string, len(candidates))
		for i, c := range candidates {
			ids[i] = c.ID.String()
		}
		r.logger.Warn("ambiguous legacy placeholder match, oldest wins",
			"channel", channel, "suffix", suffix, "candidates", strings.Join(ids, ","))
	}

	winner := candidates[0]
	winner.ExternalID = externalID
	winner.Phone = num.Formatted
	winner.Country = num.CountryName
	if winner.DisplayName == "" || strings.HasPrefix(winner.DisplayName, contacts.LegacyPlaceholderPrefix) {
		winner.DisplayName = num.Formatted
	}
	if err := r.repo.Update(ctx, winner); err != nil {
		return nil, fmt.Errorf("identity: promote placeholder: %w", err)
	}
	r.logger.Info("legacy placeholder promoted", "contact_id", winner.ID, "phone", winner.Phone)
	return winner, nil
}

func (r *Resolver) createContact(ctx context.Context, channel contacts.Channel, externalID string, num phone.Number) (*contacts.Contact, error) {
	contact := &contacts.Contact{
		Channel:     channel,
		ExternalID:  externalID,
		DisplayName: num.Formatted,
		Phone:       num.Formatted,
		Country:     num.CountryName,
	}
	if contact.DisplayName == "" {
		contact.DisplayName = externalID
	}
	err := r.repo.Create(ctx, contact)
	if errors.Is(err, contacts.ErrDuplicatePhone) {
		// Lost a race with a concurrent event; the winner's row is ours.
		existing, getErr := r.repo.GetByPhone(ctx, channel, num.Formatted)
		if getErr != nil {
			return nil, fmt.Errorf("identity: refetch after duplicate: %w", getErr)
		}
		return existing, nil
	}
	if err != nil {
		return nil, fmt.Errorf("identity: create contact: %w", err)
	}
	r.logger.Info("contact created", "contact_id", contact.ID, "channel", channel, "phone", contact.Phone)
	return contact, nil
}

// Lookup finds an existing contact for a channel id without creating one.
func (r *Resolver) Lookup(ctx context.Context, channel contacts.Channel, externalID string) (*contacts.Contact, error) {
	return r.repo.GetByExternalID(ctx, channel, externalID)
}

// UpdateContact persists profile fields learned from event payloads,
// such as a display name carried in a webhook.
func (r *Resolver) UpdateContact(ctx context.Context, c *contacts.Contact) error {
	return r.repo.Update(ctx, c)
}

// trailingDigits returns the last n digits of s, or "" when s is shorter.
func trailingDigits(s string, n int) string {
	if len(s) < n {
		return ""
	}
	return s[len(s)-n:]
}
