package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Nick077mp/whatsapp-crm-completo/internal/conversations"
	"github.com/Nick077mp/whatsapp-crm-completo/pkg/logging"
)

func newConversationFixture(t *testing.T) (*ConversationHandler, *conversations.InMemoryStore, *conversations.Conversation) {
	t.Helper()
	store := conversations.NewInMemoryStore()
	conv, _, err := store.GetOrCreateActive(context.Background(), uuid.New(), conversations.FunnelSales)
	if err != nil {
		t.Fatal(err)
	}
	handler := NewConversationHandler(store, 0, logging.Default())
	return handler, store, conv
}

func requestWithConversationID(method, target string, body []byte, id uuid.UUID) *http.Request {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("conversationID", id.String())
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestListConversationsFiltersNeedsResponse(t *testing.T) {
	handler, store, conv := newConversationFixture(t)

	conv.ApplyInbound(time.Now())
	if err := store.Update(context.Background(), conv); err != nil {
		t.Fatal(err)
	}
	// Second conversation already answered.
	other, _, _ := store.GetOrCreateActive(context.Background(), uuid.New(), conversations.FunnelSupport)
	other.ApplyOutbound(time.Now())
	store.Update(context.Background(), other)

	req := httptest.NewRequest(http.MethodGet, "/api/conversations?needs_response=true", nil)
	rec := httptest.NewRecorder()
	handler.ListConversations(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got []conversations.Conversation
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("conversations = %d, want 1", len(got))
	}
	if got[0].ID != conv.ID {
		t.Errorf("got %s, want %s", got[0].ID, conv.ID)
	}
}

func TestGetConversationReportsOverdue(t *testing.T) {
	handler, store, conv := newConversationFixture(t)

	old := time.Now().Add(-10 * time.Minute)
	conv.ApplyInbound(old)
	store.Update(context.Background(), conv)
	store.UpsertMessage(context.Background(), &conversations.Message{
		ConversationID:    conv.ID,
		ExternalMessageID: "m-old",
		SenderType:        conversations.SenderContact,
		MessageType:       conversations.TypeText,
		Content:           "sigo esperando",
		CreatedAt:         old,
	})

	req := requestWithConversationID(http.MethodGet, "/api/conversations/"+conv.ID.String(), nil, conv.ID)
	rec := httptest.NewRecorder()
	handler.GetConversation(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var view struct {
		Overdue bool `json:"overdue"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatal(err)
	}
	if !view.Overdue {
		t.Error("expected overdue conversation")
	}
}

func TestAssignAgentBackfillsFunnel(t *testing.T) {
	store := conversations.NewInMemoryStore()
	conv, _, _ := store.GetOrCreateActive(context.Background(), uuid.New(), conversations.FunnelNone)
	handler := NewConversationHandler(store, 0, logging.Default())

	body := []byte(`{"agent": "laura", "role": "recovery"}`)
	req := requestWithConversationID(http.MethodPost, "/api/conversations/x/assign", body, conv.ID)
	rec := httptest.NewRecorder()
	handler.AssignAgent(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	updated, _ := store.GetByID(context.Background(), conv.ID)
	if updated.AssignedAgent != "laura" {
		t.Errorf("agent = %s", updated.AssignedAgent)
	}
	if updated.FunnelType != conversations.FunnelRecovery {
		t.Errorf("funnel = %s, want recovery", updated.FunnelType)
	}
}

func TestAdvanceStageRejectsForeignStage(t *testing.T) {
	handler, _, conv := newConversationFixture(t)

	body := []byte(`{"stage": "support_process"}`)
	req := requestWithConversationID(http.MethodPost, "/api/conversations/x/stage", body, conv.ID)
	rec := httptest.NewRecorder()
	handler.AdvanceStage(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for stage outside funnel", rec.Code)
	}
}

func TestAdvanceStage(t *testing.T) {
	handler, store, conv := newConversationFixture(t)

	body := []byte(`{"stage": "sales_negotiation"}`)
	req := requestWithConversationID(http.MethodPost, "/api/conversations/x/stage", body, conv.ID)
	rec := httptest.NewRecorder()
	handler.AdvanceStage(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	updated, _ := store.GetByID(context.Background(), conv.ID)
	if updated.FunnelStage != conversations.StageSalesNegotiation {
		t.Errorf("stage = %s", updated.FunnelStage)
	}
}

func TestSetFunnelResetsStage(t *testing.T) {
	handler, store, conv := newConversationFixture(t)

	body := []byte(`{"funnel": "support"}`)
	req := requestWithConversationID(http.MethodPost, "/api/conversations/x/funnel", body, conv.ID)
	rec := httptest.NewRecorder()
	handler.SetFunnel(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	updated, _ := store.GetByID(context.Background(), conv.ID)
	if updated.FunnelType != conversations.FunnelSupport {
		t.Errorf("funnel = %s", updated.FunnelType)
	}
	if updated.FunnelStage != conversations.StageSupportInitial {
		t.Errorf("stage = %s, want funnel entry stage", updated.FunnelStage)
	}
}

func TestCloseConversation(t *testing.T) {
	handler, store, conv := newConversationFixture(t)

	req := requestWithConversationID(http.MethodPost, "/api/conversations/x/close", nil, conv.ID)
	rec := httptest.NewRecorder()
	handler.CloseConversation(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	updated, _ := store.GetByID(context.Background(), conv.ID)
	if updated.Status != conversations.StatusClosed {
		t.Errorf("status = %s, want closed", updated.Status)
	}
	if updated.NeedsResponse {
		t.Error("closed conversation should not need a response")
	}
}

func TestGetConversationNotFound(t *testing.T) {
	handler, _, _ := newConversationFixture(t)

	req := requestWithConversationID(http.MethodGet, "/api/conversations/x", nil, uuid.New())
	rec := httptest.NewRecorder()
	handler.GetConversation(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
