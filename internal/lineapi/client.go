// Package lineapi is a minimal client for the LINE Messaging API: webhook
// signature verification, profile lookup, and reply/push messaging.
package lineapi

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const defaultBaseURL = "https://api.line.me"

// Profile is the LINE user profile returned by the Messaging API.
type Profile struct {
	UserID        string `json:"userId"`
	DisplayName   string `json:"displayName"`
	PictureURL    string `json:"pictureUrl,omitempty"`
	StatusMessage string `json:"statusMessage,omitempty"`
}

// Message is a text message payload for reply/push.
type Message struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// NewTextMessage builds a plain text message.
func NewTextMessage(text string) Message {
	return Message{Type: "text", Text: text}
}

// Client calls the LINE Messaging API for one channel (one official
// account). Each tracked service gets its own Client.
type Client struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client
	log         *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API endpoint, used by tests.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func NewClient(accessToken string, log *zap.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:     defaultBaseURL,
		accessToken: accessToken,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		log:         log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// VerifySignature checks the X-Line-Signature header against the raw
// request body: base64(HMAC-SHA256(channel secret, body)).
func VerifySignature(channelSecret string, body []byte, signature string) bool {
	if channelSecret == "" || signature == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(channelSecret))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}

// GetProfile fetches the user profile for a LINE user id.
func (c *Client) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	url := fmt.Sprintf("%s/v2/bot/profile/%s", c.baseURL, userID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build profile request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch LINE profile: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("LINE profile API returned %d: %s", resp.StatusCode, string(body))
	}

	var profile Profile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("decode LINE profile: %w", err)
	}

	c.log.Debug("fetched LINE profile",
		zap.String("line_user_id", profile.UserID),
		zap.String("display_name", profile.DisplayName))
	return &profile, nil
}

// Reply sends messages in response to a webhook event's reply token.
func (c *Client) Reply(ctx context.Context, replyToken string, messages ...Message) error {
	payload := map[string]interface{}{
		"replyToken": replyToken,
		"messages":   messages,
	}
	return c.post(ctx, "/v2/bot/message/reply", payload)
}

// Push sends messages to a user outside a reply context.
func (c *Client) Push(ctx context.Context, userID string, messages ...Message) error {
	payload := map[string]interface{}{
		"to":       userID,
		"messages": messages,
	}
	return c.post(ctx, "/v2/bot/message/push", payload)
}

func (c *Client) post(ctx context.Context, path string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal LINE API payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build LINE API request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call LINE API %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("LINE API %s returned %d: %s", path, resp.StatusCode, string(respBody))
	}
	return nil
}
