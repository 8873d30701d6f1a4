package facebook

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestVerifySignature(t *testing.T) {
	secret := "test_app_secret"
	body := []byte(`{"object":"page","entry":[]}`)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	validSig := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	tests := []struct {
		name      string
		secret    string
		body      []byte
		signature string
		want      bool
	}{
		{"valid signature", secret, body, validSig, true},
		{"wrong signature", secret, body, "sha256=0000000000000000000000000000000000000000000000000000000000000000", false},
		{"empty signature", secret, body, "", false},
		{"empty secret", "", body, validSig, false},
		{"missing prefix", secret, body, "abcdef", false},
		{"tampered body", secret, []byte(`tampered`), validSig, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := VerifySignature(tt.secret, tt.body, tt.signature)
			if got != tt.want {
				t.Errorf("VerifySignature() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHandleVerification(t *testing.T) {
	wh := NewWebhook("my_verify_token", "secret")

	t.Run("valid challenge", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet,
			"/webhooks/facebook?hub.mode=subscribe&hub.verify_token=my_verify_token&hub.challenge=CHALLENGE_123",
			nil)
		w := httptest.NewRecorder()
		wh.HandleVerification(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
		if w.Body.String() != "CHALLENGE_123" {
			t.Errorf("body = %q, want CHALLENGE_123", w.Body.String())
		}
	})

	t.Run("wrong token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet,
			"/webhooks/facebook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=CHALLENGE_123",
			nil)
		w := httptest.NewRecorder()
		wh.HandleVerification(w, req)

		if w.Code != http.StatusForbidden {
			t.Errorf("expected 403, got %d", w.Code)
		}
	})

	t.Run("wrong mode", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet,
			"/webhooks/facebook?hub.mode=unsubscribe&hub.verify_token=my_verify_token&hub.challenge=C",
			nil)
		w := httptest.NewRecorder()
		wh.HandleVerification(w, req)

		if w.Code != http.StatusForbidden {
			t.Errorf("expected 403, got %d", w.Code)
		}
	})
}

func TestAuthenticate(t *testing.T) {
	secret := "app_secret"
	body := []byte(`{"object":"page"}`)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	sig := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	wh := NewWebhook("token", secret)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/facebook", bytes.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", sig)
	if !wh.Authenticate(req, body) {
		t.Error("expected valid signature to authenticate")
	}

	req.Header.Set("X-Hub-Signature-256", "sha256=deadbeef")
	if wh.Authenticate(req, body) {
		t.Error("expected invalid signature to fail")
	}
}
