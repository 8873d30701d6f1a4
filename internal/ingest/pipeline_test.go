package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/Nick077mp/whatsapp-crm-completo/internal/classify"
	"github.com/Nick077mp/whatsapp-crm-completo/internal/contacts"
	"github.com/Nick077mp/whatsapp-crm-completo/internal/conversations"
	"github.com/Nick077mp/whatsapp-crm-completo/internal/identity"
	"github.com/Nick077mp/whatsapp-crm-completo/internal/leads"
	"github.com/Nick077mp/whatsapp-crm-completo/internal/phone"
	"github.com/Nick077mp/whatsapp-crm-completo/pkg/logging"
)

const (
	testSupportNumber = "573022620031"
	testSalesNumber   = "573243230276"
)

type pipelineFixture struct {
	contacts *contacts.InMemoryRepository
	store    *conversations.InMemoryStore
	leads    *leads.InMemoryRepository
	review   *InMemoryReviewQueue
	pipeline *Pipeline
}

func newPipelineFixture() *pipelineFixture {
	logger := logging.Default()
	contactRepo := contacts.NewInMemoryRepository()
	store := conversations.NewInMemoryStore()
	leadRepo := leads.NewInMemoryRepository()
	review := NewInMemoryReviewQueue()

	merger := identity.NewInMemoryMerger(contactRepo, store, leadRepo, logger)
	resolver := identity.NewResolver(contactRepo, phone.Default(), nil, merger, logger)
	outbound := identity.NewOutboundResolver(contactRepo, phone.Default(), logger)
	classifier := classify.New(classify.Config{
		Numbers: map[classify.Department]string{
			classify.DepartmentSupport: testSupportNumber,
			classify.DepartmentSales:   testSalesNumber,
		},
		Default:  classify.DepartmentSupport,
		AutoLead: classify.DepartmentSales,
	})
	auto := leads.NewAutoCreator(leadRepo, logger)

	return &pipelineFixture{
		contacts: contactRepo,
		store:    store,
		leads:    leadRepo,
		review:   review,
		pipeline: NewPipeline(resolver, outbound, classifier, store, auto, review, nil, logger),
	}
}

func inboundText(externalMessageID, sender, destination, content string) *InboundEvent {
	return &InboundEvent{
		Channel:            contacts.ChannelWhatsApp,
		ExternalMessageID:  externalMessageID,
		SenderExternalID:   sender,
		DestinationAddress: destination,
		Type:               conversations.TypeText,
		Content:            content,
		Timestamp:          time.Now().UTC(),
	}
}

func TestInboundCreatesContactAndConversation(t *testing.T) {
	f := newPipelineFixture()
	ctx := context.Background()

	result, err := f.pipeline.ProcessInbound(ctx, inboundText("m1", "573001234567@s.whatsapp.net", "", "hola"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Contact.Phone != "+57 300 123 4567" {
		t.Errorf("expected canonical phone, got %q", result.Contact.Phone)
	}
	if result.Conversation.FunnelType != conversations.FunnelSupport {
		t.Errorf("expected default support funnel, got %s", result.Conversation.FunnelType)
	}
	if !result.Conversation.NeedsResponse {
		t.Error("expected needs_response true after inbound")
	}
	if result.Conversation.IsAnswered {
		t.Error("expected is_answered false before any reply")
	}
	if !result.ConversationNew {
		t.Error("expected a fresh conversation")
	}
}

func TestInboundIdempotentPerExternalMessageID(t *testing.T) {
	f := newPipelineFixture()
	ctx := context.Background()
	ev := inboundText("m1", "573001234567@s.whatsapp.net", "", "hola")

	first, err := f.pipeline.ProcessInbound(ctx, ev)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	redelivery := inboundText("m1", "573001234567@s.whatsapp.net", "", "hola")
	second, err := f.pipeline.ProcessInbound(ctx, redelivery)
	if err != nil {
		t.Fatalf("expected redelivery to succeed, got %v", err)
	}
	if !second.Duplicate {
		t.Error("expected redelivery flagged as duplicate")
	}

	msgs, _ := f.store.ListMessages(ctx, first.Conversation.ID)
	if len(msgs) != 1 {
		t.Errorf("expected exactly 1 message, got %d", len(msgs))
	}
}

func TestInboundToSalesNumberCreatesLead(t *testing.T) {
	f := newPipelineFixture()
	ctx := context.Background()

	result, err := f.pipeline.ProcessInbound(ctx, inboundText("m1", "573001234567@s.whatsapp.net", testSalesNumber, "quiero comprar"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Conversation.FunnelType != conversations.FunnelSales {
		t.Errorf("expected sales funnel, got %s", result.Conversation.FunnelType)
	}
	if !result.LeadCreated {
		t.Error("expected a lead to be derived")
	}
	if !result.Conversation.LeadID.Valid {
		t.Error("expected conversation linked to the lead")
	}

	lead, err := f.leads.GetByContactAndCase(ctx, result.Contact.ID, leads.CaseSales)
	if err != nil {
		t.Fatalf("expected a sales lead: %v", err)
	}
	if lead.Status != leads.StatusNew {
		t.Errorf("expected lead status new, got %s", lead.Status)
	}
}

func TestInboundSupportNumberDoesNotCreateLead(t *testing.T) {
	f := newPipelineFixture()
	ctx := context.Background()

	result, err := f.pipeline.ProcessInbound(ctx, inboundText("m1", "573001234567@s.whatsapp.net", testSupportNumber, "ayuda"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.LeadCreated {
		t.Error("support contact must not derive a lead")
	}
	all, _ := f.leads.ListByContact(ctx, result.Contact.ID)
	if len(all) != 0 {
		t.Errorf("expected no leads, got %d", len(all))
	}
}

func TestInboundMediaFallbackContent(t *testing.T) {
	f := newPipelineFixture()
	ctx := context.Background()

	ev := inboundText("m1", "573001234567@s.whatsapp.net", "", "")
	ev.Type = conversations.TypeImage
	ev.MediaURL = "https://cdn.example.com/a.jpg"

	result, err := f.pipeline.ProcessInbound(ctx, ev)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Message.Content != "Image received" {
		t.Errorf("expected media fallback content, got %q", result.Message.Content)
	}
}

func TestInboundUnresolvableParksEvent(t *testing.T) {
	f := newPipelineFixture()
	ctx := context.Background()

	result, err := f.pipeline.ProcessInbound(ctx, inboundText("m1", "opaque-bot-id", "", "hola"))
	if err != nil {
		t.Fatalf("expected unresolvable event acknowledged, got %v", err)
	}
	if !result.Unresolved {
		t.Fatal("expected result flagged unresolved")
	}

	pending, _ := f.review.ListPending(ctx)
	if len(pending) != 1 {
		t.Fatalf("expected 1 parked event, got %d", len(pending))
	}
	if pending[0].SenderExternalID != "opaque-bot-id" {
		t.Errorf("unexpected parked sender %q", pending[0].SenderExternalID)
	}

	all, _ := f.contacts.ListByChannel(ctx, contacts.ChannelWhatsApp)
	if len(all) != 0 {
		t.Errorf("expected no contact fabricated, got %d", len(all))
	}
}

func TestInboundBackfillsNoneFunnel(t *testing.T) {
	f := newPipelineFixture()
	ctx := context.Background()

	// Conversation created by the send path carries no funnel yet.
	contact := &contacts.Contact{Channel: contacts.ChannelWhatsApp, ExternalID: "573001234567@s.whatsapp.net", Phone: "+57 300 123 4567"}
	if err := f.contacts.Create(ctx, contact); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, _, err := f.store.GetOrCreateActive(ctx, contact.ID, conversations.FunnelNone); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result, err := f.pipeline.ProcessInbound(ctx, inboundText("m1", "573001234567@s.whatsapp.net", testSalesNumber, "hola"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ConversationNew {
		t.Error("expected the existing conversation reused")
	}
	if result.Conversation.FunnelType != conversations.FunnelSales {
		t.Errorf("expected none funnel backfilled to sales, got %s", result.Conversation.FunnelType)
	}
}

func TestOutboundObservedAnswersConversation(t *testing.T) {
	f := newPipelineFixture()
	ctx := context.Background()

	inbound, err := f.pipeline.ProcessInbound(ctx, inboundText("m1", "573001234567@s.whatsapp.net", "", "hola"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result, err := f.pipeline.ProcessOutbound(ctx, &OutboundEvent{
		Channel:           contacts.ChannelWhatsApp,
		ExternalMessageID: "m2",
		TargetExternalID:  "573001234567@s.whatsapp.net",
		OriginAddress:     testSalesNumber,
		Type:              conversations.TypeText,
		Content:           "claro, le cuento",
		Timestamp:         time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Contact.ID != inbound.Contact.ID {
		t.Fatalf("expected outbound to hit the same contact")
	}
	if result.Conversation.FunnelType != conversations.FunnelSales {
		t.Errorf("expected sales origin to own the queue, got %s", result.Conversation.FunnelType)
	}
	if result.Conversation.NeedsResponse {
		t.Error("expected needs_response false after agent reply")
	}
	if !result.Conversation.IsAnswered {
		t.Error("expected is_answered true after agent reply")
	}
	if result.Conversation.FirstResponseAt == nil {
		t.Error("expected first_response_at set")
	}
}

func TestOutboundUnknownTargetCreatesReviewContact(t *testing.T) {
	f := newPipelineFixture()
	ctx := context.Background()

	result, err := f.pipeline.ProcessOutbound(ctx, &OutboundEvent{
		Channel:           contacts.ChannelWhatsApp,
		ExternalMessageID: "m1",
		TargetExternalID:  "573009998877@s.whatsapp.net",
		OriginAddress:     testSupportNumber,
		Type:              conversations.TypeText,
		Content:           "seguimiento",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.ContactNew {
		t.Fatal("expected a contact to be created")
	}
	if !result.Contact.NeedsReview {
		t.Error("expected the fallback contact flagged for review")
	}
	if result.Conversation.FunnelType != conversations.FunnelSupport {
		t.Errorf("expected support funnel, got %s", result.Conversation.FunnelType)
	}
}

func TestOutboundIdempotentPerExternalMessageID(t *testing.T) {
	f := newPipelineFixture()
	ctx := context.Background()
	ev := func() *OutboundEvent {
		return &OutboundEvent{
			Channel:           contacts.ChannelWhatsApp,
			ExternalMessageID: "m9",
			TargetExternalID:  "573001234567@s.whatsapp.net",
			OriginAddress:     testSupportNumber,
			Type:              conversations.TypeText,
			Content:           "hola",
		}
	}

	first, err := f.pipeline.ProcessOutbound(ctx, ev())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := f.pipeline.ProcessOutbound(ctx, ev())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !second.Duplicate {
		t.Error("expected redelivery flagged as duplicate")
	}

	msgs, _ := f.store.ListMessages(ctx, first.Conversation.ID)
	if len(msgs) != 1 {
		t.Errorf("expected exactly 1 message, got %d", len(msgs))
	}
}

func TestNeedsResponseTracksLatestSender(t *testing.T) {
	f := newPipelineFixture()
	ctx := context.Background()

	in, err := f.pipeline.ProcessInbound(ctx, inboundText("m1", "573001234567@s.whatsapp.net", "", "hola"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	conv, _ := f.store.GetByID(ctx, in.Conversation.ID)
	latest, _ := f.store.LatestMessage(ctx, conv.ID)
	if !conv.NeedsResponse || latest.SenderType != conversations.SenderContact {
		t.Error("needs_response true must coincide with a contact-authored latest message")
	}

	if _, err := f.pipeline.ProcessOutbound(ctx, &OutboundEvent{
		Channel:           contacts.ChannelWhatsApp,
		ExternalMessageID: "m2",
		TargetExternalID:  "573001234567@s.whatsapp.net",
		OriginAddress:     testSupportNumber,
		Type:              conversations.TypeText,
		Content:           "respuesta",
		Timestamp:         time.Now().UTC().Add(time.Second),
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	conv, _ = f.store.GetByID(ctx, conv.ID)
	latest, _ = f.store.LatestMessage(ctx, conv.ID)
	if conv.NeedsResponse || latest.SenderType != conversations.SenderAgent {
		t.Error("needs_response false must coincide with an agent-authored latest message")
	}
}
