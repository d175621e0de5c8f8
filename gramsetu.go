// Package gramsetu provides the Go SDK for the GramSetu village
// administration platform's chat and notification service.
//
// The package covers the REST surface of the chat service (conversation
// history, read receipts, user directory, persisted notifications) and the
// realtime broker connection used for live delivery.
//
// Example:
//
//	client := gramsetu.NewClient(token)
//
//	history, _ := client.Chat().Messages.History(ctx, peerID, myID)
//
//	sock := client.Chat().Realtime.Connect(&gramsetu.RealtimeConfig{Token: token})
//	sock.OnChatMessage(func(m gramsetu.ChatMessage) { ... })
//	sock.Connect(ctx, myID)
package gramsetu

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultBaseURL = "https://api.gramsetu.cloud"
	DefaultTimeout = 30 * time.Second
)

// ============================================================================
// Client
// ============================================================================

// Client is the GramSetu API client. Construct with NewClient.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
	log        *zap.Logger
	chat       *ChatClient
}

type ClientOption func(*Client)

func WithBaseURL(u string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = timeout }
}

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = client }
}

// WithLogger injects a logger. The default is a no-op logger; failures the
// SDK absorbs (dropped frames, persistence errors) are only visible here.
func WithLogger(log *zap.Logger) ClientOption {
	return func(c *Client) { c.log = log }
}

// NewClient creates a new GramSetu client authenticated with a bearer token.
func NewClient(token string, opts ...ClientOption) *Client {
	c := &Client{
		token:   token,
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		log: zap.NewNop(),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.chat = newChatClient(c)
	return c
}

// SetToken updates the bearer token, e.g. after a refresh.
func (c *Client) SetToken(token string) {
	c.token = token
}

// Chat returns the chat-service sub-client.
func (c *Client) Chat() *ChatClient {
	return c.chat
}

// ============================================================================
// Internal request helper
// ============================================================================

func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}, query map[string]string) ([]byte, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		params := url.Values{}
		for k, v := range query {
			params.Set(k, v)
		}
		u += "?" + params.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr APIError
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Message != "" {
			return nil, &apiErr
		}
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	return data, nil
}

func decodeJSON[T any](data []byte) (*T, error) {
	var result T
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &result, nil
}

// ============================================================================
// Chat Client (orchestrates sub-modules)
// ============================================================================

// ChatClient provides access to the chat service via sub-modules.
type ChatClient struct {
	client *Client

	Messages      *MessagesClient
	Notifications *NotificationsClient
	Users         *UsersClient
	Realtime      *RealtimeFactory
}

func newChatClient(c *Client) *ChatClient {
	cc := &ChatClient{client: c}
	cc.Messages = &MessagesClient{chat: cc}
	cc.Notifications = &NotificationsClient{chat: cc}
	cc.Users = &UsersClient{chat: cc}
	cc.Realtime = &RealtimeFactory{chat: cc}
	return cc
}

// ============================================================================
// Chat Sub-Clients
// ============================================================================

// MessagesClient handles conversation history and read receipts.
type MessagesClient struct{ chat *ChatClient }

// History fetches the full ordered transcript between receiver and sender.
// The result replaces any locally held transcript wholesale.
func (m *MessagesClient) History(ctx context.Context, receiverID, senderID string) ([]ChatMessage, error) {
	data, err := m.chat.client.doRequest(ctx, "GET",
		"/api/messages/conversations/"+receiverID+"/"+senderID, nil, nil)
	if err != nil {
		return nil, err
	}
	msgs, err := decodeJSON[[]ChatMessage](data)
	if err != nil {
		return nil, err
	}
	return *msgs, nil
}

// MarkRead marks every message from the given sender as read.
func (m *MessagesClient) MarkRead(ctx context.Context, senderID string) error {
	_, err := m.chat.client.doRequest(ctx, "PATCH", "/api/messages/read/"+senderID, nil, nil)
	return err
}

// NotificationsClient handles the persisted notification store.
type NotificationsClient struct{ chat *ChatClient }

// List returns the caller's persisted notifications, newest first.
func (n *NotificationsClient) List(ctx context.Context, activeOnly bool) ([]Notification, error) {
	var query map[string]string
	if activeOnly {
		query = map[string]string{"active": "true"}
	}
	data, err := n.chat.client.doRequest(ctx, "GET", "/api/notifications", nil, query)
	if err != nil {
		return nil, err
	}
	items, err := decodeJSON[[]Notification](data)
	if err != nil {
		return nil, err
	}
	return *items, nil
}

// Acknowledge marks a persisted notification as read on the server.
func (n *NotificationsClient) Acknowledge(ctx context.Context, notificationID string) error {
	_, err := n.chat.client.doRequest(ctx, "PATCH", "/api/notifications/read/"+notificationID, nil, nil)
	return err
}

// UsersClient exposes the chat peer directory.
type UsersClient struct{ chat *ChatClient }

// List returns the users visible to the caller as chat peers.
func (u *UsersClient) List(ctx context.Context) ([]User, error) {
	data, err := u.chat.client.doRequest(ctx, "GET", "/api/users/chat", nil, nil)
	if err != nil {
		return nil, err
	}
	users, err := decodeJSON[[]User](data)
	if err != nil {
		return nil, err
	}
	return *users, nil
}

// RealtimeFactory creates realtime connections bound to this client.
type RealtimeFactory struct{ chat *ChatClient }

// WSUrl returns the broker WebSocket URL.
func (r *RealtimeFactory) WSUrl() string {
	base := strings.Replace(r.chat.client.baseURL, "https://", "wss://", 1)
	base = strings.Replace(base, "http://", "ws://", 1)
	return base + "/ws"
}

// Connect creates a realtime socket. Call Connect on the result to dial.
func (r *RealtimeFactory) Connect(config *RealtimeConfig) *ChatSocket {
	cfg := *config
	cfg.defaults()
	if cfg.Token == "" {
		cfg.Token = r.chat.client.token
	}
	return newChatSocket(r.WSUrl(), &cfg, r.chat.client.log)
}
