package facebook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
)

// Webhook holds the secrets Meta uses to authenticate webhook traffic.
type Webhook struct {
	verifyToken string
	appSecret   string
}

// NewWebhook creates the webhook authenticator.
func NewWebhook(verifyToken, appSecret string) *Webhook {
	return &Webhook{verifyToken: verifyToken, appSecret: appSecret}
}

// HandleVerification handles the GET webhook verification challenge from Meta.
func (wh *Webhook) HandleVerification(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("hub.mode")
	token := r.URL.Query().Get("hub.verify_token")
	challenge := r.URL.Query().Get("hub.challenge")

	if mode == "subscribe" && token == wh.verifyToken {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, challenge)
		return
	}

	http.Error(w, "Forbidden", http.StatusForbidden)
}

// Authenticate checks the X-Hub-Signature-256 header against the raw body.
func (wh *Webhook) Authenticate(r *http.Request, body []byte) bool {
	return VerifySignature(wh.appSecret, body, r.Header.Get("X-Hub-Signature-256"))
}

// VerifySignature verifies an X-Hub-Signature-256 value.
func VerifySignature(appSecret string, body []byte, signature string) bool {
	if appSecret == "" || signature == "" {
		return false
	}

	// Signature format: "sha256=<hex>"
	const prefix = "sha256="
	if len(signature) <= len(prefix) {
		return false
	}
	sigHex := signature[len(prefix):]

	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(sigHex))
}
