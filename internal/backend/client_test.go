// ABOUTME: Tests for the REST backend client against an httptest server.
// ABOUTME: Covers auth headers, paths, payload shapes and error mapping.

package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homeline/messenger/internal/chat"
)

func TestClient_Conversations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/conversations", r.URL.Path)
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"conversations": []map[string]any{
				{"id": "c1", "participant_ids": []string{"u1", "u2"}},
				{"id": "c2", "participant_ids": []string{"u1", "u3"}},
			},
			"unread_count": 5,
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok-1", time.Second, nil)
	page, err := c.Conversations(context.Background())
	require.NoError(t, err)

	require.Len(t, page.Conversations, 2)
	assert.Equal(t, "c1", page.Conversations[0].ID)
	assert.Equal(t, []chat.UserID{"u1", "u2"}, page.Conversations[0].ParticipantIDs)
	assert.Equal(t, 5, page.UnreadCount)
}

func TestClient_Messages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/conversations/c1/messages", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "25", r.URL.Query().Get("limit"))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"messages": []map[string]any{
				{"id": "m1", "conversation_id": "c1", "sender_id": "u2", "content": "hi"},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok-1", time.Second, nil)
	msgs, err := c.Messages(context.Background(), "c1", 2, 25)
	require.NoError(t, err)

	require.Len(t, msgs, 1)
	assert.Equal(t, "m1", msgs[0].ID)
	assert.Equal(t, chat.UserID("u2"), msgs[0].Sender)
}

func TestClient_CreateMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/conversations/c1/messages", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body struct {
			ClientID    string            `json:"client_id"`
			Content     string            `json:"content"`
			Attachments []chat.Attachment `json:"attachments"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.NotEmpty(t, body.ClientID)
		assert.Equal(t, "see you at the viewing", body.Content)
		require.Len(t, body.Attachments, 1)
		assert.Equal(t, "https://cdn.test/floorplan.pdf", body.Attachments[0].URL)

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(chat.Message{
			ID:             "m-42",
			ConversationID: "c1",
			Content:        body.Content,
			CreatedAt:      time.Now().UTC(),
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok-1", time.Second, nil)
	msg, err := c.CreateMessage(context.Background(), "c1", "see you at the viewing",
		[]chat.Attachment{{URL: "https://cdn.test/floorplan.pdf"}})
	require.NoError(t, err)

	assert.Equal(t, "m-42", msg.ID)
	assert.Equal(t, "c1", msg.ConversationID)
}

func TestClient_MarkRead(t *testing.T) {
	var called bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/conversations/c1/read", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok-1", time.Second, nil)
	require.NoError(t, c.MarkRead(context.Background(), "c1"))
	assert.True(t, called)
}

func TestClient_StartConversation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/conversations", r.URL.Path)

		var body struct {
			ParticipantID string `json:"participant_id"`
			PropertyID    string `json:"property_id"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "u-landlord", body.ParticipantID)
		assert.Equal(t, "prop-7", body.PropertyID)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"conversation": map[string]any{
				"id":              "c-77",
				"participant_ids": []string{"u-me", "u-landlord"},
				"property_id":     "prop-7",
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok-1", time.Second, nil)
	conv, err := c.StartConversation(context.Background(), "u-landlord", "prop-7")
	require.NoError(t, err)

	assert.Equal(t, "c-77", conv.ID)
	assert.Equal(t, "prop-7", conv.PropertyID)
}

func TestClient_ErrorStatusMapsToRequestError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok-1", time.Second, nil)
	_, err := c.Conversations(context.Background())
	require.Error(t, err)

	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, http.StatusForbidden, reqErr.Status)
}

func TestClient_UnreachableBackend(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", "tok-1", 200*time.Millisecond, nil)

	err := c.MarkRead(context.Background(), "c1")
	require.Error(t, err)

	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Zero(t, reqErr.Status)
}
