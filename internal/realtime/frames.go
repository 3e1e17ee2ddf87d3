// ABOUTME: Wire envelope and typed event variants for the live socket protocol.
// ABOUTME: Every frame is {"event": name, "data": payload}; payloads have fixed shapes per event.

package realtime

import (
	"encoding/json"
	"fmt"

	"github.com/homeline/messenger/internal/chat"
)

// Outbound event names.
const (
	eventJoinRoom    = "join_room"
	eventLeaveRoom   = "leave_room"
	eventSendMessage = "send_message"
	eventTyping      = "typing"
)

// Inbound event names.
const (
	eventReceiveMessage = "receive_message"
	eventUserTyping     = "user_typing"
	eventUserOnline     = "user_online"
	eventUserOffline    = "user_offline"
)

// Frame is the envelope every socket message travels in.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// roomPayload carries join_room and leave_room commands.
type roomPayload struct {
	RoomID string `json:"room_id"`
}

// typingPayload carries the typing command and the user_typing event.
type typingPayload struct {
	RoomID   string      `json:"room_id"`
	UserID   chat.UserID `json:"user_id,omitempty"`
	IsTyping bool        `json:"is_typing"`
}

// presencePayload carries user_online and user_offline events.
type presencePayload struct {
	UserID chat.UserID `json:"user_id"`
}

// newFrame marshals a payload into a Frame for the given event name.
func newFrame(event string, payload any) (Frame, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, fmt.Errorf("encoding %s payload: %w", event, err)
	}
	return Frame{Event: event, Data: data}, nil
}

// EventKind tags the decoded variant of an inbound event.
type EventKind int

const (
	// KindMessage is an inbound chat message (receive_message).
	KindMessage EventKind = iota
	// KindTyping is a typing indicator change (user_typing).
	KindTyping
	// KindPresence is an online/offline transition (user_online, user_offline).
	KindPresence
)

// TypingEvent reports the most recent typing signal for a room.
type TypingEvent struct {
	RoomID   string
	UserID   chat.UserID
	IsTyping bool
}

// PresenceEvent reports a user coming online or going offline.
type PresenceEvent struct {
	UserID chat.UserID
	Online bool
}

// Event is the tagged union of inbound socket events. Exactly one of the
// pointer fields matching Kind is set.
type Event struct {
	Kind     EventKind
	Message  *chat.Message
	Typing   *TypingEvent
	Presence *PresenceEvent
}

// decodeFrame converts an inbound Frame into a typed Event.
// Unknown event names return (nil, nil) and are skipped by the caller.
func decodeFrame(f Frame) (*Event, error) {
	switch f.Event {
	case eventReceiveMessage:
		var msg chat.Message
		if err := json.Unmarshal(f.Data, &msg); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", f.Event, err)
		}
		return &Event{Kind: KindMessage, Message: &msg}, nil

	case eventUserTyping:
		var p typingPayload
		if err := json.Unmarshal(f.Data, &p); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", f.Event, err)
		}
		return &Event{Kind: KindTyping, Typing: &TypingEvent{
			RoomID:   p.RoomID,
			UserID:   p.UserID,
			IsTyping: p.IsTyping,
		}}, nil

	case eventUserOnline, eventUserOffline:
		var p presencePayload
		if err := json.Unmarshal(f.Data, &p); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", f.Event, err)
		}
		return &Event{Kind: KindPresence, Presence: &PresenceEvent{
			UserID: p.UserID,
			Online: f.Event == eventUserOnline,
		}}, nil
	}

	return nil, nil
}
