package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Nick077mp/whatsapp-crm-completo/internal/conversations"
	"github.com/Nick077mp/whatsapp-crm-completo/pkg/logging"
)

const defaultHTTPTimeout = 15 * time.Second

// Config controls how the bridge client behaves.
type Config struct {
	// BaseURL is the root of the local bridge process, e.g. http://localhost:3000.
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *logging.Logger
}

// Client talks to the WhatsApp bridge over its local HTTP surface.
// The bridge owns the actual socket to WhatsApp; this client only
// issues commands and reads connection state.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewClient creates a configured bridge client with sane defaults.
func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		return nil, errors.New("whatsapp: bridge base URL is required")
	}
	baseURL = strings.TrimRight(baseURL, "/")

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultHTTPTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// BridgeStatus is the bridge's connection report.
type BridgeStatus struct {
	Connected bool   `json:"connected"`
	State     string `json:"state,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

// bridgeResponse is the common envelope the bridge returns on commands.
type bridgeResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	MessageID string `json:"message_id,omitempty"`
}

// Status reports whether the bridge holds a live WhatsApp session.
func (c *Client) Status(ctx context.Context) (*BridgeStatus, error) {
	var status BridgeStatus
	if err := c.get(ctx, "/status", &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// QR returns the current pairing QR payload, empty when already linked.
func (c *Client) QR(ctx context.Context) (string, error) {
	var resp struct {
		QR string `json:"qr"`
	}
	if err := c.get(ctx, "/qr", &resp); err != nil {
		return "", err
	}
	return resp.QR, nil
}

// Restart asks the bridge to drop and re-establish its session.
func (c *Client) Restart(ctx context.Context) error {
	_, err := c.post(ctx, "/restart", nil)
	return err
}

// SendText sends a plain text message through the bridge. to is the bare
// digit string of the destination number.
func (c *Client) SendText(ctx context.Context, to, text string) error {
	payload := map[string]string{
		"to":      to,
		"message": text,
	}
	_, err := c.post(ctx, "/send-message", payload)
	return err
}

// SendMedia sends a media message. The bridge only has a native image
// endpoint; every other media kind goes out as a text message carrying
// the URL.
func (c *Client) SendMedia(ctx context.Context, to, mediaURL, caption string, mediaType conversations.MessageType) error {
	if mediaType == conversations.TypeImage {
		payload := map[string]string{
			"to":      to,
			"image":   mediaURL,
			"caption": caption,
		}
		_, err := c.post(ctx, "/send-image", payload)
		return err
	}

	text := caption
	if text == "" {
		text = mediaURL
	} else {
		text = text + "\n" + mediaURL
	}
	return c.SendText(ctx, to, text)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("whatsapp: create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp: bridge request %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("whatsapp: read bridge response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("whatsapp: bridge %s returned status %d: %s", path, resp.StatusCode, string(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("whatsapp: decode bridge response: %w", err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, payload any) (*bridgeResponse, error) {
	var reader io.Reader
	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("whatsapp: marshal bridge payload: %w", err)
		}
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("whatsapp: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("whatsapp: bridge request %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("whatsapp: read bridge response: %w", err)
	}

	var bridgeResp bridgeResponse
	if len(body) > 0 {
		if err := json.Unmarshal(body, &bridgeResp); err != nil {
			return nil, fmt.Errorf("whatsapp: decode bridge response: %w", err)
		}
	}

	if bridgeResp.Error != "" {
		return &bridgeResp, fmt.Errorf("whatsapp: bridge error: %s", bridgeResp.Error)
	}
	if resp.StatusCode != http.StatusOK {
		return &bridgeResp, fmt.Errorf("whatsapp: bridge %s returned status %d: %s", path, resp.StatusCode, string(body))
	}
	return &bridgeResp, nil
}
