package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Nick077mp/whatsapp-crm-completo/internal/conversations"
)

func TestSendText(t *testing.T) {
	var path string
	var received map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatal(err)
		}
		json.NewEncoder(w).Encode(apiResponse{OK: true})
	}))
	defer server.Close()

	client := NewClient("123:ABC")
	client.SetAPIBase(server.URL)

	if err := client.SendText(context.Background(), "777000111", "Hola"); err != nil {
		t.Fatal(err)
	}
	if path != "/bot123:ABC/sendMessage" {
		t.Errorf("path = %s", path)
	}
	if received["chat_id"] != "777000111" {
		t.Errorf("chat_id = %s", received["chat_id"])
	}
	if received["text"] != "Hola" {
		t.Errorf("text = %s", received["text"])
	}
}

func TestSendTextAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(apiResponse{OK: false, ErrorCode: 403, Description: "bot was blocked by the user"})
	}))
	defer server.Close()

	client := NewClient("123:ABC")
	client.SetAPIBase(server.URL)

	if err := client.SendText(context.Background(), "777000111", "Hola"); err == nil {
		t.Fatal("expected API error")
	}
}

func TestSendMediaMethodPerType(t *testing.T) {
	tests := []struct {
		mediaType conversations.MessageType
		method    string
		field     string
	}{
		{conversations.TypeImage, "sendPhoto", "photo"},
		{conversations.TypeVideo, "sendVideo", "video"},
		{conversations.TypeAudio, "sendAudio", "audio"},
		{conversations.TypeDocument, "sendDocument", "document"},
	}

	for _, tt := range tests {
		t.Run(string(tt.mediaType), func(t *testing.T) {
			var path string
			var received map[string]string
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				path = r.URL.Path
				json.NewDecoder(r.Body).Decode(&received)
				json.NewEncoder(w).Encode(apiResponse{OK: true})
			}))
			defer server.Close()

			client := NewClient("123:ABC")
			client.SetAPIBase(server.URL)

			err := client.SendMedia(context.Background(), "777000111", "https://cdn.example.com/f", "pie de foto", tt.mediaType)
			if err != nil {
				t.Fatal(err)
			}
			if path != "/bot123:ABC/"+tt.method {
				t.Errorf("path = %s, want method %s", path, tt.method)
			}
			if received[tt.field] != "https://cdn.example.com/f" {
				t.Errorf("%s = %s", tt.field, received[tt.field])
			}
			if received["caption"] != "pie de foto" {
				t.Errorf("caption = %s", received["caption"])
			}
		})
	}
}
