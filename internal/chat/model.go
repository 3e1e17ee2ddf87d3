// ABOUTME: Shared data model for conversations, messages and attachments.
// ABOUTME: JSON tags match the homeline backend wire contract.

package chat

import "time"

// UserID identifies a platform user across the REST and socket contracts.
type UserID string

// Conversation is a chat between two or more participants, optionally
// anchored to a property listing. The core never deletes conversations;
// deletion, if any, is a backend concern.
type Conversation struct {
	ID             string    `json:"id"`
	ParticipantIDs []UserID  `json:"participant_ids"`
	PropertyID     string    `json:"property_id,omitempty"`
	LastMessage    *Message  `json:"last_message,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Message is a single chat message. Within a loaded message list,
// messages keep their insertion order and are never resequenced.
type Message struct {
	ID             string       `json:"id"`
	ConversationID string       `json:"conversation_id"`
	Sender         UserID       `json:"sender_id"`
	Content        string       `json:"content"`
	Attachments    []Attachment `json:"attachments,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
}

// Attachment is a reference to an uploaded file. The core passes these
// through untouched; upload and storage are backend concerns.
type Attachment struct {
	URL      string `json:"url"`
	Name     string `json:"name,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
}
