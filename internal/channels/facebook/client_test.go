package facebook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Nick077mp/whatsapp-crm-completo/internal/conversations"
)

func TestSendText(t *testing.T) {
	var received SendRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Query().Get("access_token") != "test_token" {
			t.Errorf("unexpected access token: %s", r.URL.Query().Get("access_token"))
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatal(err)
		}
		resp := SendResponse{RecipientID: "psid_1", MessageID: "mid_001"}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewClient("test_token")
	client.SetGraphAPIBase(server.URL)

	if err := client.SendText(context.Background(), "psid_1", "Hola"); err != nil {
		t.Fatal(err)
	}
	if received.Recipient.ID != "psid_1" {
		t.Errorf("sent to = %s, want psid_1", received.Recipient.ID)
	}
	if received.Message.Text != "Hola" {
		t.Errorf("sent text = %s, want Hola", received.Message.Text)
	}
}

func TestSendTextAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := SendResponse{
			Error: &SendError{Message: "Invalid OAuth access token", Type: "OAuthException", Code: 190},
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewClient("bad_token")
	client.SetGraphAPIBase(server.URL)

	if err := client.SendText(context.Background(), "psid_1", "Hola"); err == nil {
		t.Fatal("expected API error")
	}
}

func TestSendMediaImage(t *testing.T) {
	var requests []SendRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req SendRequest
		json.NewDecoder(r.Body).Decode(&req)
		requests = append(requests, req)
		json.NewEncoder(w).Encode(SendResponse{RecipientID: "psid_1", MessageID: "mid"})
	}))
	defer server.Close()

	client := NewClient("token")
	client.SetGraphAPIBase(server.URL)

	err := client.SendMedia(context.Background(), "psid_1", "https://cdn.example.com/p.jpg", "Mira esto", conversations.TypeImage)
	if err != nil {
		t.Fatal(err)
	}
	// Attachment first, caption as follow-up text.
	if len(requests) != 2 {
		t.Fatalf("requests = %d, want 2", len(requests))
	}
	if requests[0].Message.Attachment == nil || requests[0].Message.Attachment.Type != "image" {
		t.Errorf("first request attachment = %+v", requests[0].Message.Attachment)
	}
	if requests[0].Message.Attachment.Payload.URL != "https://cdn.example.com/p.jpg" {
		t.Errorf("attachment url = %s", requests[0].Message.Attachment.Payload.URL)
	}
	if requests[1].Message.Text != "Mira esto" {
		t.Errorf("follow-up text = %s", requests[1].Message.Text)
	}
}

func TestSendMediaWithoutCaption(t *testing.T) {
	var count int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count++
		json.NewEncoder(w).Encode(SendResponse{MessageID: "mid"})
	}))
	defer server.Close()

	client := NewClient("token")
	client.SetGraphAPIBase(server.URL)

	err := client.SendMedia(context.Background(), "psid_1", "https://cdn.example.com/doc.pdf", "", conversations.TypeDocument)
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("requests = %d, want 1", count)
	}
}
