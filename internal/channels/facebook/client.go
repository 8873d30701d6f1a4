package facebook

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
	defaultGraphAPIBase = "https://graph.facebook.com/v18.0"
	defaultHTTPTimeout  = 10 * time.Second
)

// Client sends Messenger messages via the Meta Graph API.
type Client struct {
	pageAccessToken string
	graphAPIBase    string
	httpClient      *http.Client
}

// NewClient creates a new Graph API client.
func NewClient(pageAccessToken string) *Client {
	return &Client{
		pageAccessToken: pageAccessToken,
		graphAPIBase:    defaultGraphAPIBase,
		httpClient:      &http.Client{Timeout: defaultHTTPTimeout},
	}
}

// SetGraphAPIBase overrides the Graph API base URL (useful for testing).
func (c *Client) SetGraphAPIBase(base string) {
	c.graphAPIBase = base
}

// SendText sends a plain text message to the given page-scoped user id.
func (c *Client) SendText(ctx context.Context, recipientID, text string) error {
	req := SendRequest{
		Recipient: SendRecipient{ID: recipientID},
		Message:   SendMessage{Text: text},
	}
	_, err := c.send(ctx, req)
	return err
}

// SendMedia sends a hosted media attachment. Messenger attachments carry
// no caption, so a non-empty caption goes out as a follow-up text.
func (c *Client) SendMedia(ctx context.Context, recipientID, mediaURL, caption string, mediaType conversations.MessageType) error {
	req := SendRequest{
		Recipient: SendRecipient{ID: recipientID},
		Message: SendMessage{
			Attachment: &SendAttachment{
				Type:    attachmentType(mediaType),
				Payload: SendPayload{URL: mediaURL, IsReusable: true},
			},
		},
	}
	if _, err := c.send(ctx, req); err != nil {
		return err
	}
	if caption != "" {
		return c.SendText(ctx, recipientID, caption)
	}
	return nil
}

func attachmentType(t conversations.MessageType) string {
	switch t {
	case conversations.TypeImage:
		return "image"
	case conversations.TypeVideo:
		return "video"
	case conversations.TypeAudio:
		return "audio"
	default:
		return "file"
	}
}

func (c *Client) send(ctx context.Context, req SendRequest) (*SendResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("facebook: marshal send request: %w", err)
	}

	url := fmt.Sprintf("%s/me/messages?access_token=%s", c.graphAPIBase, c.pageAccessToken)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("facebook: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("facebook: send message: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("facebook: read response: %w", err)
	}

	var sendResp SendResponse
	if err := json.Unmarshal(respBody, &sendResp); err != nil {
		return nil, fmt.Errorf("facebook: unmarshal response: %w", err)
	}

	if sendResp.Error != nil {
		return &sendResp, fmt.Errorf("facebook: API error %d: %s", sendResp.Error.Code, sendResp.Error.Message)
	}

	if resp.StatusCode != http.StatusOK {
		return &sendResp, fmt.Errorf("facebook: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	return &sendResp, nil
}
