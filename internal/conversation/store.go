// ABOUTME: In-memory conversation state for the authenticated session.
// ABOUTME: Sole writer of conversations, messages, unread count, presence and typing state.

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/homeline/messenger/internal/backend"
	"github.com/homeline/messenger/internal/chat"
	"github.com/homeline/messenger/internal/dedupe"
	"github.com/homeline/messenger/internal/realtime"
)

// ErrNoActiveConversation indicates SendMessage was called before any
// conversation was opened.
var ErrNoActiveConversation = errors.New("no active conversation")

// ErrConversationCreation indicates the backend get-or-create failed.
var ErrConversationCreation = errors.New("conversation creation failed")

const (
	historyPageSize = 50

	// Echoes of our own sends arrive over the socket shortly after the
	// REST persist; ids older than this cannot be echoes anymore.
	sentEchoTTL      = 2 * time.Minute
	sentEchoCapacity = 256
)

// Realtime is what the store needs from the connection layer.
type Realtime interface {
	JoinRoom(roomID string) error
	LeaveRoom(roomID string) error
	SendMessage(msg chat.Message) error
	EmitTyping(roomID string, isTyping bool) error
	OnMessage(fn func(chat.Message)) *realtime.Subscription
	OnTyping(fn func(realtime.TypingEvent)) *realtime.Subscription
	OnUserOnline(fn func(chat.UserID)) *realtime.Subscription
	OnUserOffline(fn func(chat.UserID)) *realtime.Subscription
	OnLifecycle(fn func(realtime.LifecycleEvent)) *realtime.Subscription
}

// Backend is what the store needs from the REST collaborator.
type Backend interface {
	Conversations(ctx context.Context) (*backend.ConversationPage, error)
	Messages(ctx context.Context, conversationID string, page, limit int) ([]chat.Message, error)
	CreateMessage(ctx context.Context, conversationID, content string, attachments []chat.Attachment) (*chat.Message, error)
	MarkRead(ctx context.Context, conversationID string) error
	StartConversation(ctx context.Context, participantID chat.UserID, propertyID string) (*chat.Conversation, error)
}

// Store is the authoritative in-memory view of conversations, messages
// and presence for one authenticated session. It is the single
// subscriber to the realtime event stream for the session's lifetime;
// reconciliation runs regardless of which UI is mounted. Session
// teardown discards the Store; a fresh session needs a fresh one.
type Store struct {
	rt      Realtime
	backend Backend
	logger  *slog.Logger
	sent    *dedupe.Cache

	mu            sync.Mutex
	conversations []chat.Conversation
	messages      []chat.Message
	activeID      string
	unread        int
	online        map[chat.UserID]struct{}
	// typing maps room id to the most recent typing signal. A nil value
	// is a positive assertion that nobody is typing in the room, set by
	// an explicit stopped-typing event; absence means no signal yet.
	typing map[string]*chat.UserID

	// Request generations: a fetch result is applied only when its
	// generation is still the latest issued for the resource, so a
	// superseded in-flight fetch cannot overwrite newer state.
	convGen uint64
	msgGen  uint64

	subs []*realtime.Subscription
}

// NewStore creates the store and subscribes it to the realtime stream.
// Pass nil logger for the default.
func NewStore(rt Realtime, be Backend, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		rt:      rt,
		backend: be,
		logger:  logger.With("component", "conversation"),
		sent:    dedupe.New(sentEchoTTL, sentEchoCapacity),
		online:  make(map[chat.UserID]struct{}),
		typing:  make(map[string]*chat.UserID),
	}
	s.subs = []*realtime.Subscription{
		rt.OnMessage(s.handleMessage),
		rt.OnTyping(s.handleTyping),
		rt.OnUserOnline(s.handleOnline),
		rt.OnUserOffline(s.handleOffline),
		rt.OnLifecycle(s.handleLifecycle),
	}
	return s
}

// Close removes the store's realtime subscriptions. It does not touch
// the connection itself; that belongs to the session layer.
func (s *Store) Close() {
	for _, sub := range s.subs {
		if sub != nil {
			sub.Cancel()
		}
	}
}

// FetchConversations replaces the conversation index and unread total
// wholesale with the backend's view. On failure prior state is left
// untouched and the error is returned for the caller to surface.
func (s *Store) FetchConversations(ctx context.Context) error {
	s.mu.Lock()
	s.convGen++
	gen := s.convGen
	s.mu.Unlock()

	page, err := s.backend.Conversations(ctx)
	if err != nil {
		s.logger.Warn("conversation refresh failed, keeping prior state", "error", err)
		return fmt.Errorf("fetching conversations: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.convGen {
		s.logger.Debug("discarding stale conversation index", "generation", gen)
		return nil
	}
	s.conversations = page.Conversations
	s.unread = page.UnreadCount
	return nil
}

// Open makes the conversation active, joins its room, loads its history
// and marks it read, in that order. When the history fetch fails the
// conversation stays active and joined with an empty message list, a
// deliberate weak-consistency trade-off, and the error is returned so
// the caller can surface it.
func (s *Store) Open(ctx context.Context, conv chat.Conversation) error {
	s.mu.Lock()
	s.activeID = conv.ID
	s.messages = nil
	s.msgGen++
	gen := s.msgGen
	s.mu.Unlock()

	if err := s.rt.JoinRoom(conv.ID); err != nil {
		s.logger.Debug("join room failed", "conversation_id", conv.ID, "error", err)
	}

	msgs, err := s.backend.Messages(ctx, conv.ID, 1, historyPageSize)
	if err != nil {
		s.logger.Warn("history fetch failed, conversation stays active",
			"conversation_id", conv.ID,
			"error", err)
		return fmt.Errorf("fetching history for %s: %w", conv.ID, err)
	}

	s.mu.Lock()
	if gen == s.msgGen && s.activeID == conv.ID {
		s.messages = msgs
	}
	s.mu.Unlock()

	if err := s.backend.MarkRead(ctx, conv.ID); err != nil {
		s.logger.Warn("mark read failed", "conversation_id", conv.ID, "error", err)
	}
	return nil
}

// CloseActive leaves the active conversation's room and clears the
// active reference and message list. Presence and typing state are
// untouched. No-op when nothing is active.
func (s *Store) CloseActive() {
	s.mu.Lock()
	id := s.activeID
	if id == "" {
		s.mu.Unlock()
		return
	}
	s.activeID = ""
	s.messages = nil
	s.msgGen++
	s.mu.Unlock()

	if err := s.rt.LeaveRoom(id); err != nil {
		s.logger.Debug("leave room failed", "conversation_id", id, "error", err)
	}
}

// StartConversation gets or creates a conversation with the participant,
// opens it and refreshes the index. Failures of the get-or-create are
// returned as ErrConversationCreation; the caller must handle them.
func (s *Store) StartConversation(ctx context.Context, participantID chat.UserID, propertyID string) (*chat.Conversation, error) {
	conv, err := s.backend.StartConversation(ctx, participantID, propertyID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConversationCreation, err)
	}

	if err := s.Open(ctx, *conv); err != nil {
		s.logger.Warn("opening new conversation incomplete", "conversation_id", conv.ID, "error", err)
	}
	if err := s.FetchConversations(ctx); err != nil {
		s.logger.Warn("index refresh after create failed", "error", err)
	}
	return conv, nil
}

// SendMessage persists a message to the active conversation, broadcasts
// it live and appends it to the local list, in that order. When the
// persist fails nothing is broadcast or appended and the error is
// returned. Requires an active conversation.
func (s *Store) SendMessage(ctx context.Context, content string, attachments []chat.Attachment) (*chat.Message, error) {
	s.mu.Lock()
	active := s.activeID
	s.mu.Unlock()
	if active == "" {
		return nil, ErrNoActiveConversation
	}

	msg, err := s.backend.CreateMessage(ctx, active, content, attachments)
	if err != nil {
		return nil, fmt.Errorf("persisting message: %w", err)
	}

	// Remember the id so the socket echo of our own send is suppressed.
	s.sent.Mark(msg.ID)

	if err := s.rt.SendMessage(*msg); err != nil {
		s.logger.Warn("live broadcast failed, message persisted", "message_id", msg.ID, "error", err)
	}

	s.mu.Lock()
	// The active conversation may have changed while the persist was in
	// flight; the message must not land in the new list.
	if s.activeID == active {
		s.applyMessageLocked(*msg)
	}
	s.mu.Unlock()

	return msg, nil
}

// SendTyping forwards a typing signal for the active conversation.
// No-op when nothing is active.
func (s *Store) SendTyping(isTyping bool) {
	s.mu.Lock()
	active := s.activeID
	s.mu.Unlock()
	if active == "" {
		return
	}
	if err := s.rt.EmitTyping(active, isTyping); err != nil {
		s.logger.Debug("typing emit failed", "conversation_id", active, "error", err)
	}
}

// IsUserOnline reports whether the user is in the online set.
func (s *Store) IsUserOnline(id chat.UserID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.online[id]
	return ok
}

// TypingUser returns who is typing in the room, if anyone.
func (s *Store) TypingUser(roomID string) (chat.UserID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	uid := s.typing[roomID]
	if uid == nil {
		return "", false
	}
	return *uid, true
}

// ActiveID returns the active conversation's id, or "" when none.
func (s *Store) ActiveID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

// UnreadCount returns the session-wide unread total.
func (s *Store) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread
}

// Conversations returns a snapshot of the conversation index.
func (s *Store) Conversations() []chat.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]chat.Conversation, len(s.conversations))
	copy(out, s.conversations)
	return out
}

// Messages returns a snapshot of the loaded message list.
func (s *Store) Messages() []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]chat.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// handleMessage reconciles an inbound live message with local state:
// append to the message list, update the owning conversation's last
// message, and bump the unread total when the message is not for the
// active conversation.
func (s *Store) handleMessage(msg chat.Message) {
	if s.sent.Seen(msg.ID) {
		s.logger.Debug("suppressed echo of local send", "message_id", msg.ID)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.applyMessageLocked(msg)
	if s.activeID == "" || msg.ConversationID != s.activeID {
		s.unread++
	}
}

// applyMessageLocked appends a message and refreshes the owning
// conversation's last-message metadata. Must be called with mu held.
func (s *Store) applyMessageLocked(msg chat.Message) {
	s.messages = append(s.messages, msg)

	_, idx, ok := lo.FindIndexOf(s.conversations, func(c chat.Conversation) bool {
		return c.ID == msg.ConversationID
	})
	if !ok {
		return
	}
	m := msg
	s.conversations[idx].LastMessage = &m
	s.conversations[idx].UpdatedAt = msg.CreatedAt
}

func (s *Store) handleTyping(ev realtime.TypingEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ev.IsTyping {
		uid := ev.UserID
		s.typing[ev.RoomID] = &uid
		return
	}
	// Explicit stopped-typing: assert that nobody is typing.
	s.typing[ev.RoomID] = nil
}

func (s *Store) handleOnline(id chat.UserID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.online[id] = struct{}{}
}

func (s *Store) handleOffline(id chat.UserID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.online, id)
}

// handleLifecycle re-joins the active conversation's room after a
// reconnect; the realtime layer deliberately leaves that to us.
func (s *Store) handleLifecycle(ev realtime.LifecycleEvent) {
	if ev.Kind != realtime.LifecycleReconnected {
		return
	}
	s.mu.Lock()
	active := s.activeID
	s.mu.Unlock()
	if active == "" {
		return
	}
	if err := s.rt.JoinRoom(active); err != nil {
		s.logger.Warn("re-join after reconnect failed", "conversation_id", active, "error", err)
	}
}
