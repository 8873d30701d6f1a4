package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Nick077mp/whatsapp-crm-completo/internal/conversations"
)

const (
	defaultAPIBase     = "https://api.telegram.org"
	defaultHTTPTimeout = 10 * time.Second
)

// Client sends messages via the Telegram Bot API.
type Client struct {
	botToken   string
	apiBase    string
	httpClient *http.Client
}

// NewClient creates a new Bot API client.
func NewClient(botToken string) *Client {
	return &Client{
		botToken:   botToken,
		apiBase:    defaultAPIBase,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
}

// SetAPIBase overrides the Bot API base URL (useful for testing).
func (c *Client) SetAPIBase(base string) {
	c.apiBase = base
}

// apiResponse is the Bot API envelope.
type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result,omitempty"`
	ErrorCode   int             `json:"error_code,omitempty"`
	Description string          `json:"description,omitempty"`
}

// SendText sends a plain text message to the given chat id.
func (c *Client) SendText(ctx context.Context, chatID, text string) error {
	return c.call(ctx, "sendMessage", map[string]string{
		"chat_id": chatID,
		"text":    text,
	})
}

// SendMedia sends a hosted media file by URL; Telegram fetches it
// server-side. Unknown kinds go out as documents.
func (c *Client) SendMedia(ctx context.Context, chatID, mediaURL, caption string, mediaType conversations.MessageType) error {
	method, field := "sendDocument", "document"
	switch mediaType {
	case conversations.TypeImage:
		method, field = "sendPhoto", "photo"
	case conversations.TypeVideo:
		method, field = "sendVideo", "video"
	case conversations.TypeAudio:
		method, field = "sendAudio", "audio"
	}

	payload := map[string]string{
		"chat_id": chatID,
		field:     mediaURL,
	}
	if caption != "" {
		payload["caption"] = caption
	}
	return c.call(ctx, method, payload)
}

func (c *Client) call(ctx context.Context, method string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telegram: marshal %s payload: %w", method, err)
	}

	url := fmt.Sprintf("%s/bot%s/%s", c.apiBase, c.botToken, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: %s: %w", method, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("telegram: read response: %w", err)
	}

	var apiResp apiResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return fmt.Errorf("telegram: unmarshal response: %w", err)
	}
	if !apiResp.OK {
		return fmt.Errorf("telegram: API error %d: %s", apiResp.ErrorCode, apiResp.Description)
	}
	return nil
}
