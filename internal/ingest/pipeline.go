package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Nick077mp/whatsapp-crm-completo/internal/classify"
	"github.com/Nick077mp/whatsapp-crm-completo/internal/contacts"
	"github.com/Nick077mp/whatsapp-crm-completo/internal/conversations"
	"github.com/Nick077mp/whatsapp-crm-completo/internal/identity"
	"github.com/Nick077mp/whatsapp-crm-completo/internal/leads"
	"github.com/Nick077mp/whatsapp-crm-completo/internal/observability/metrics"
	"github.com/Nick077mp/whatsapp-crm-completo/pkg/logging"
)

// Pipeline is the single path every webhook event takes into storage:
// identity resolution, department classification, conversation state, lead
// derivation. Both entry points are idempotent per external message id.
type Pipeline struct {
	resolver   *identity.Resolver
	outbound   *identity.OutboundResolver
	classifier *classify.Classifier
	store      conversations.Store
	autoLeads  *leads.AutoCreator
	review     ReviewQueue
	metrics    *metrics.IngestionMetrics
	logger     *logging.Logger
}

// NewPipeline wires the ingestion path. metrics may be nil.
func NewPipeline(
	resolver *identity.Resolver,
	outbound *identity.OutboundResolver,
	classifier *classify.Classifier,
	store conversations.Store,
	autoLeads *leads.AutoCreator,
	review ReviewQueue,
	m *metrics.IngestionMetrics,
	logger *logging.Logger,
) *Pipeline {
	if logger == nil {
		logger = logging.Default()
	}
	return &Pipeline{
		resolver:   resolver,
		outbound:   outbound,
		classifier: classifier,
		store:      store,
		autoLeads:  autoLeads,
		review:     review,
		metrics:    m,
		logger:     logger,
	}
}

// funnelFor maps a department to its conversation funnel.
func funnelFor(dept classify.Department) conversations.FunnelType {
	switch dept {
	case classify.DepartmentSales:
		return conversations.FunnelSales
	case classify.DepartmentRecovery:
		return conversations.FunnelRecovery
	case classify.DepartmentSupport:
		return conversations.FunnelSupport
	default:
		return conversations.FunnelNone
	}
}

// caseFor maps a department to its lead case type.
func caseFor(dept classify.Department) leads.CaseType {
	switch dept {
	case classify.DepartmentSales:
		return leads.CaseSales
	case classify.DepartmentRecovery:
		return leads.CaseRecovery
	default:
		return leads.CaseSupport
	}
}

// ProcessInbound ingests one customer-to-business event. An identity that
// cannot be resolved is acknowledged, parked for review, and reported via
// Unresolved rather than an error, so bridges stop redelivering it.
func (p *Pipeline) ProcessInbound(ctx context.Context, ev *InboundEvent) (*InboundResult, error) {
	start := time.Now()
	defer func() {
		p.metrics.ObserveWebhookLatency(string(ev.Channel), "inbound", time.Since(start).Seconds())
	}()

	if ev.ExternalMessageID == "" || ev.SenderExternalID == "" {
		p.metrics.ObserveInbound(string(ev.Channel), "invalid")
		return nil, fmt.Errorf("%w: external message id and sender required", ErrInvalidEvent)
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	contact, err := p.resolver.Resolve(ctx, ev.Channel, ev.SenderExternalID, ev.RawPhoneHint)
	if err != nil {
		if errors.Is(err, identity.ErrUnresolvableIdentity) {
			return p.parkUnresolved(ctx, ev, err)
		}
		p.metrics.ObserveInbound(string(ev.Channel), "error")
		return nil, err
	}
	if ev.SenderName != "" && (contact.DisplayName == "" || contact.DisplayName == contact.Phone) {
		contact.DisplayName = ev.SenderName
		if err := p.resolver.UpdateContact(ctx, contact); err != nil {
			p.logger.Warn("display name update failed", "error", err, "contact_id", contact.ID)
		}
	}

	// Classification always runs against the business-side address.
	dest := ev.DestinationAddress
	if dest == "" {
		dest = contact.Phone
	}
	dept := p.classifier.Classify(dest)
	seed := funnelFor(dept)

	conv, convCreated, err := p.store.GetOrCreateActive(ctx, contact.ID, seed)
	if err != nil {
		p.metrics.ObserveInbound(string(ev.Channel), "error")
		return nil, err
	}
	if !convCreated {
		conv.BackfillFunnel(seed)
	}

	content := ev.Content
	if content == "" && ev.Type != conversations.TypeText {
		content = conversations.MediaFallback(ev.Type)
	}
	msg := &conversations.Message{
		ConversationID:    conv.ID,
		ExternalMessageID: ev.ExternalMessageID,
		SenderType:        conversations.SenderContact,
		MessageType:       ev.Type,
		Content:           content,
		MediaURL:          ev.MediaURL,
		CreatedAt:         ev.Timestamp,
	}
	msgCreated, err := p.store.UpsertMessage(ctx, msg)
	if err != nil {
		p.metrics.ObserveInbound(string(ev.Channel), "error")
		return nil, err
	}
	result := &InboundResult{
		Contact:         contact,
		Conversation:    conv,
		Message:         msg,
		ContactNew:      false,
		ConversationNew: convCreated,
	}
	if !msgCreated {
		// Redelivery: exactly one message row and one state transition.
		result.Duplicate = true
		p.metrics.ObserveInbound(string(ev.Channel), "duplicate")
		return result, nil
	}

	conv.ApplyInbound(ev.Timestamp)

	if p.autoLeads != nil && p.classifier.GeneratesLead(dept) {
		lead, leadCreated, err := p.autoLeads.EnsureLead(ctx, contact.ID, caseFor(dept), conv.AssignedAgent)
		if err != nil {
			p.logger.Error("lead derivation failed", "error", err, "contact_id", contact.ID)
		} else {
			conv.LeadID.UUID = lead.ID
			conv.LeadID.Valid = true
			result.LeadCreated = leadCreated
		}
	}

	if err := p.store.Update(ctx, conv); err != nil {
		p.metrics.ObserveInbound(string(ev.Channel), "error")
		return nil, err
	}

	p.metrics.ObserveInbound(string(ev.Channel), "ok")
	p.logger.Info("inbound message ingested",
		"channel", ev.Channel, "contact_id", contact.ID, "conversation_id", conv.ID,
		"department", dept, "message_id", msg.ID)
	return result, nil
}

// ProcessOutbound ingests one business-to-customer reply observed from an
// external client. The origin address decides the department queue.
func (p *Pipeline) ProcessOutbound(ctx context.Context, ev *OutboundEvent) (*OutboundResult, error) {
	start := time.Now()
	defer func() {
		p.metrics.ObserveWebhookLatency(string(ev.Channel), "outbound", time.Since(start).Seconds())
	}()

	if ev.ExternalMessageID == "" || ev.TargetExternalID == "" {
		p.metrics.ObserveOutbound(string(ev.Channel), "invalid")
		return nil, fmt.Errorf("%w: external message id and target required", ErrInvalidEvent)
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	dept := p.classifier.Classify(ev.OriginAddress)
	seed := funnelFor(dept)

	contact, contactNew, err := p.outbound.ResolveTarget(ctx, ev.Channel, ev.TargetExternalID)
	if err != nil {
		p.metrics.ObserveOutbound(string(ev.Channel), "error")
		return nil, err
	}

	conv, _, err := p.store.GetOrCreateActive(ctx, contact.ID, seed)
	if err != nil {
		p.metrics.ObserveOutbound(string(ev.Channel), "error")
		return nil, err
	}
	// The business number that replied owns the queue; a stale or missing
	// funnel follows it.
	if seed != conversations.FunnelNone && conv.FunnelType != seed {
		conv.SetFunnel(seed)
	}

	content := ev.Content
	if content == "" && ev.Type != conversations.TypeText {
		content = conversations.MediaFallback(ev.Type)
	}
	msg := &conversations.Message{
		ConversationID:    conv.ID,
		ExternalMessageID: ev.ExternalMessageID,
		SenderType:        conversations.SenderAgent,
		MessageType:       ev.Type,
		Content:           content,
		MediaURL:          ev.MediaURL,
		CreatedAt:         ev.Timestamp,
	}
	msgCreated, err := p.store.UpsertMessage(ctx, msg)
	if err != nil {
		p.metrics.ObserveOutbound(string(ev.Channel), "error")
		return nil, err
	}
	result := &OutboundResult{
		Contact:      contact,
		Conversation: conv,
		Message:      msg,
		ContactNew:   contactNew,
	}
	if !msgCreated {
		result.Duplicate = true
		p.metrics.ObserveOutbound(string(ev.Channel), "duplicate")
		return result, nil
	}

	conv.ApplyOutbound(ev.Timestamp)

	if p.autoLeads != nil && p.classifier.GeneratesLead(dept) {
		lead, _, err := p.autoLeads.EnsureLead(ctx, contact.ID, caseFor(dept), conv.AssignedAgent)
		if err != nil {
			p.logger.Error("lead derivation failed", "error", err, "contact_id", contact.ID)
		} else {
			conv.LeadID.UUID = lead.ID
			conv.LeadID.Valid = true
		}
	}

	if err := p.store.Update(ctx, conv); err != nil {
		p.metrics.ObserveOutbound(string(ev.Channel), "error")
		return nil, err
	}

	p.metrics.ObserveOutbound(string(ev.Channel), "ok")
	p.logger.Info("outbound message ingested",
		"channel", ev.Channel, "contact_id", contact.ID, "conversation_id", conv.ID,
		"department", dept, "external_agent", true)
	return result, nil
}

// ProcessRead applies a channel read receipt: contact messages in the
// sender's active conversation up to the watermark become read. Receipts
// for unknown senders or closed threads are dropped.
func (p *Pipeline) ProcessRead(ctx context.Context, channel contacts.Channel, senderExternalID string, watermark time.Time) error {
	contact, err := p.resolver.Lookup(ctx, channel, senderExternalID)
	if err != nil {
		if errors.Is(err, contacts.ErrContactNotFound) {
			return nil
		}
		return err
	}
	conv, err := p.store.GetActive(ctx, contact.ID)
	if err != nil {
		if errors.Is(err, conversations.ErrConversationNotFound) {
			return nil
		}
		return err
	}
	return p.store.MarkRead(ctx, conv.ID, watermark)
}

func (p *Pipeline) parkUnresolved(ctx context.Context, ev *InboundEvent, cause error) (*InboundResult, error) {
	p.metrics.ObserveUnresolved(string(ev.Channel))
	p.metrics.ObserveInbound(string(ev.Channel), "unresolved")
	p.logger.Warn("inbound sender unresolved, parked for review",
		"channel", ev.Channel, "sender", ev.SenderExternalID, "error", cause)
	if p.review == nil {
		return &InboundResult{Unresolved: true}, nil
	}
	err := p.review.Enqueue(ctx, &UnresolvedEvent{
		Channel:           ev.Channel,
		ExternalMessageID: ev.ExternalMessageID,
		SenderExternalID:  ev.SenderExternalID,
		Content:           ev.Content,
		Reason:            cause.Error(),
	})
	if err != nil {
		return nil, err
	}
	return &InboundResult{Unresolved: true}, nil
}
