// Package eldercare provides a Go client for the Eldercare chat API,
// including the real-time subscription and the optimistic-send
// conversation view used by interactive frontends.
package eldercare

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

	"github.com/gorilla/websocket"
)

// Client is an Eldercare API client. Login stores the session token; all
// subsequent calls send it as a bearer credential.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	token  string
	userID string
}

// NewClient creates a new client for the given server base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Token returns the current session token, empty before login.
func (c *Client) Token() string { return c.token }

// UserID returns the authenticated user ID, empty before login.
func (c *Client) UserID() string { return c.userID }

// LoginResponse is the payload returned by a successful login.
type LoginResponse struct {
	Token             string `json:"token"`
	ID                string `json:"id"`
	Name              string `json:"name"`
	Email             string `json:"email"`
	Language          string `json:"language"`
	ProfilePictureURL string `json:"profile_picture_url"`
}

// ChatSummary is one conversation in the chat list.
type ChatSummary struct {
	ID              string     `json:"id"`
	Initiator       string     `json:"chat_initiator"`
	Recipient       string     `json:"chat_recipient"`
	LastMessage     string     `json:"last_message"`
	LastMessageTime *time.Time `json:"last_message_time"`
	PeerOnline      bool       `json:"peer_online"`
}

// Message is one chat message as returned by the API.
type Message struct {
	ID     string `json:"id"`
	Msg    string `json:"msg"`
	Sender string `json:"sender"`
}

// SendResponse is the payload returned by message mutations.
type SendResponse struct {
	ID     string `json:"id"`
	ChatID string `json:"chatId"`
	Msg    string `json:"msg"`
	Sender string `json:"sender"`
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// Login authenticates with email and password and stores the session
// token on the client.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	var resp LoginResponse
	err := c.doJSON(ctx, http.MethodPost, "/api/users/login",
		map[string]string{"email": email, "password": password}, &resp)
	if err != nil {
		return nil, err
	}
	c.token = resp.Token
	c.userID = resp.ID
	return &resp, nil
}

// ListChats returns the authenticated user's conversations.
func (c *Client) ListChats(ctx context.Context) ([]ChatSummary, error) {
	var chats []ChatSummary
	if err := c.doJSON(ctx, http.MethodGet, "/api/chats", nil, &chats); err != nil {
		return nil, err
	}
	return chats, nil
}

// ListMessages returns a conversation's messages in creation order.
func (c *Client) ListMessages(ctx context.Context, chatID string) ([]Message, error) {
	var messages []Message
	if err := c.doJSON(ctx, http.MethodGet, "/api/chats/"+chatID, nil, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// SendMessage posts a message to an existing conversation.
func (c *Client) SendMessage(ctx context.Context, chatID, body string) (*SendResponse, error) {
	var resp SendResponse
	err := c.doJSON(ctx, http.MethodPost, "/api/chats/"+chatID,
		map[string]string{"message": body}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// StartChat opens (or reuses) a conversation with a recipient by sending
// a first message.
func (c *Client) StartChat(ctx context.Context, recipientID, body string) (*SendResponse, error) {
	var resp SendResponse
	err := c.doJSON(ctx, http.MethodPost, "/api/chats",
		map[string]string{"recipient_id": recipientID, "message": body}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// UpdateMessage replaces the body of a message the user sent.
func (c *Client) UpdateMessage(ctx context.Context, chatID, messageID, body string) (*SendResponse, error) {
	var resp SendResponse
	err := c.doJSON(ctx, http.MethodPut, "/api/chats/"+chatID+"/"+messageID,
		map[string]string{"message": body}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// DeleteMessage removes a message the user sent.
func (c *Client) DeleteMessage(ctx context.Context, chatID, messageID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/chats/"+chatID+"/"+messageID, nil, nil)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, result interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(data, &apiErr)
		return &APIError{StatusCode: resp.StatusCode, Message: apiErr.Error}
	}

	if result != nil {
		if err := json.Unmarshal(data, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

// ChatEvent is a real-time message lifecycle notification.
type ChatEvent struct {
	ChatID    string `json:"chatId"`
	Type      string `json:"type"`
	MessageID string `json:"messageId"`
	Message   string `json:"message,omitempty"`
	Sender    string `json:"sender,omitempty"`
}

// Event type values carried by chat_update frames.
const (
	EventMessageCreated = "message_created"
	EventMessageUpdated = "message_updated"
	EventMessageDeleted = "message_deleted"
)

type frame struct {
	Event   string    `json:"event"`
	Payload ChatEvent `json:"payload"`
}

type controlMessage struct {
	Action string `json:"action"`
	ChatID string `json:"chatId"`
}

// Subscription is an open real-time connection. Join and Leave manage
// conversation channels; events arrive on the handler passed to Subscribe.
type Subscription struct {
	conn *websocket.Conn
	done chan struct{}
}

// Subscribe opens the WebSocket connection and delivers chat_update events
// to handler until ctx is cancelled or the connection drops. The handler
// runs on the read-loop goroutine.
//
// Cancelling ctx closes the connection and stops the loop, so a consumer
// being torn down never observes a late event.
func (c *Client) Subscribe(ctx context.Context, handler func(ChatEvent)) (*Subscription, error) {
	wsURL, err := c.websocketURL()
	if err != nil {
		return nil, err
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("websocket dial: %w", err)
	}

	sub := &Subscription{conn: conn, done: make(chan struct{})}

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	go func() {
		defer close(sub.done)
		defer conn.Close()
		for {
			var f frame
			if err := conn.ReadJSON(&f); err != nil {
				return
			}
			if f.Event != "chat_update" {
				continue
			}
			handler(f.Payload)
		}
	}()

	return sub, nil
}

// Join subscribes to a conversation's channel.
func (s *Subscription) Join(chatID string) error {
	return s.conn.WriteJSON(controlMessage{Action: "join", ChatID: chatID})
}

// Leave unsubscribes from a conversation's channel.
func (s *Subscription) Leave(chatID string) error {
	return s.conn.WriteJSON(controlMessage{Action: "leave", ChatID: chatID})
}

// Close terminates the connection and waits for the read loop to stop.
func (s *Subscription) Close() error {
	err := s.conn.Close()
	<-s.done
	return err
}

// Done is closed when the read loop has stopped.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

func (c *Client) websocketURL() (string, error) {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse base URL: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/api/ws"
	u.RawQuery = url.Values{"token": {c.token}}.Encode()
	return u.String(), nil
}
