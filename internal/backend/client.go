// ABOUTME: REST client for the conversation/message store backend.
// ABOUTME: Handles index and history fetches, message persistence, read marks and get-or-create.

package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/homeline/messenger/internal/chat"
)

// RequestError is returned when the backend answers with a non-2xx
// status or the request fails outright.
type RequestError struct {
	Op     string
	Status int
	Err    error
}

func (e *RequestError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// ConversationPage is the conversation index plus the session's unread
// total, as served by GET /conversations.
type ConversationPage struct {
	Conversations []chat.Conversation `json:"conversations"`
	UnreadCount   int                 `json:"unread_count"`
}

// Client talks to the conversation/message store over HTTP.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates a Client for the backend at baseURL, authenticating
// every request with the given bearer token. Pass nil logger for the
// default.
func NewClient(baseURL, token string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: timeout},
		logger:  logger.With("component", "backend"),
	}
}

// Conversations fetches the conversation index and the unread total.
func (c *Client) Conversations(ctx context.Context) (*ConversationPage, error) {
	var page ConversationPage
	if err := c.do(ctx, http.MethodGet, "/conversations", nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Messages fetches one page of a conversation's history, oldest first.
func (c *Client) Messages(ctx context.Context, conversationID string, page, limit int) ([]chat.Message, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))
	path := fmt.Sprintf("/conversations/%s/messages?%s", url.PathEscape(conversationID), q.Encode())

	var out struct {
		Messages []chat.Message `json:"messages"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// CreateMessage persists a message and returns the stored record with its
// server-assigned id and timestamp. Each call carries a client-generated
// idempotency key so a retried request cannot create the message twice.
func (c *Client) CreateMessage(ctx context.Context, conversationID, content string, attachments []chat.Attachment) (*chat.Message, error) {
	body := struct {
		ClientID    string            `json:"client_id"`
		Content     string            `json:"content"`
		Attachments []chat.Attachment `json:"attachments,omitempty"`
	}{ClientID: uuid.New().String(), Content: content, Attachments: attachments}

	path := fmt.Sprintf("/conversations/%s/messages", url.PathEscape(conversationID))
	var msg chat.Message
	if err := c.do(ctx, http.MethodPost, path, body, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// MarkRead tells the backend the session has read the conversation.
func (c *Client) MarkRead(ctx context.Context, conversationID string) error {
	path := fmt.Sprintf("/conversations/%s/read", url.PathEscape(conversationID))
	return c.do(ctx, http.MethodPut, path, nil, nil)
}

// StartConversation gets or creates the conversation with the given
// participant, optionally anchored to a property listing.
func (c *Client) StartConversation(ctx context.Context, participantID chat.UserID, propertyID string) (*chat.Conversation, error) {
	body := struct {
		ParticipantID chat.UserID `json:"participant_id"`
		PropertyID    string      `json:"property_id,omitempty"`
	}{ParticipantID: participantID, PropertyID: propertyID}

	var out struct {
		Conversation chat.Conversation `json:"conversation"`
	}
	if err := c.do(ctx, http.MethodPost, "/conversations", body, &out); err != nil {
		return nil, err
	}
	return &out.Conversation, nil
}

// do runs one request against the backend and decodes the response into
// out when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	op := method + " " + path

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return &RequestError{Op: op, Err: fmt.Errorf("encoding body: %w", err)}
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &RequestError{Op: op, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &RequestError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return &RequestError{Op: op, Status: resp.StatusCode}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &RequestError{Op: op, Err: fmt.Errorf("decoding response: %w", err)}
	}
	return nil
}
