// ABOUTME: Manages the single duplex connection to the live messaging backend.
// ABOUTME: Handles connect/reconnect lifecycle and fans inbound events out to subscribers.

package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/homeline/messenger/internal/chat"
)

// ErrNotConnected indicates an outbound command was attempted with no
// open connection. Commands are best-effort; callers typically log this.
var ErrNotConnected = errors.New("not connected")

// ErrReconnectExhausted indicates the bounded reconnect loop gave up.
var ErrReconnectExhausted = errors.New("reconnect attempts exhausted")

// State is the connection lifecycle state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// LifecycleKind tags a connection lifecycle transition.
type LifecycleKind int

const (
	// LifecycleConnected fires after the initial connect succeeds.
	LifecycleConnected LifecycleKind = iota
	// LifecycleReconnected fires when a lost connection is re-established.
	// Subscribers that joined rooms must re-issue their joins on this event.
	LifecycleReconnected
	// LifecycleDisconnected fires on transport loss or explicit Disconnect.
	LifecycleDisconnected
	// LifecycleError fires when a connect or reconnect fails terminally.
	LifecycleError
)

// LifecycleEvent describes a connection lifecycle transition.
type LifecycleEvent struct {
	Kind LifecycleKind
	Err  error
}

// Options configures a Manager.
type Options struct {
	// URL of the live socket endpoint.
	URL string
	// Transport defaults to a WebsocketTransport when nil.
	Transport Transport
	// MaxReconnectAttempts bounds the reconnect loop. Zero means 5.
	MaxReconnectAttempts int
	// ReconnectBaseDelay is the first backoff delay. Zero means 500ms.
	ReconnectBaseDelay time.Duration
	// ReconnectMaxDelay caps the backoff. Zero means 15s.
	ReconnectMaxDelay time.Duration
	Logger            *slog.Logger
}

// Manager owns the single authoritative connection to the messaging
// backend. It exposes typed subscriptions for inbound events and
// fire-and-forget outbound commands. All inbound handlers run on the
// read-loop goroutine in the order the transport delivered the events.
type Manager struct {
	opts   Options
	logger *slog.Logger

	mu    sync.Mutex
	state State
	conn  Conn
	token string
	// gen increments on every established or torn-down connection so the
	// read loop and reconnect loop of a stale connection can detect they
	// have been superseded.
	gen uint64

	writeMu sync.Mutex

	msgSubs       handlerTable[chat.Message]
	typingSubs    handlerTable[TypingEvent]
	onlineSubs    handlerTable[chat.UserID]
	offlineSubs   handlerTable[chat.UserID]
	lifecycleSubs handlerTable[LifecycleEvent]
}

// NewManager creates a Manager. Pass nil logger for the default.
func NewManager(opts Options) *Manager {
	if opts.Transport == nil {
		opts.Transport = &WebsocketTransport{HandshakeTimeout: 10 * time.Second}
	}
	if opts.MaxReconnectAttempts == 0 {
		opts.MaxReconnectAttempts = 5
	}
	if opts.ReconnectBaseDelay == 0 {
		opts.ReconnectBaseDelay = 500 * time.Millisecond
	}
	if opts.ReconnectMaxDelay == 0 {
		opts.ReconnectMaxDelay = 15 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		opts:   opts,
		logger: logger.With("component", "realtime"),
	}
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connect opens the connection authenticated with authToken. It is
// idempotent: when already connected or connecting it returns nil without
// opening a second connection. A rejected token returns ErrAuthRejected
// and leaves the Manager disconnected; credential failures are never
// retried.
func (m *Manager) Connect(ctx context.Context, authToken string) error {
	m.mu.Lock()
	if m.state == StateConnected || m.state == StateConnecting {
		m.mu.Unlock()
		return nil
	}
	m.state = StateConnecting
	m.token = authToken
	gen := m.gen
	m.mu.Unlock()

	conn, err := m.opts.Transport.Dial(ctx, m.opts.URL, authToken)
	if err != nil {
		m.mu.Lock()
		superseded := m.gen != gen || m.state != StateConnecting
		if !superseded {
			m.state = StateDisconnected
		}
		m.mu.Unlock()
		if superseded {
			return err
		}

		m.logger.Error("connect failed", "error", err)
		m.lifecycleSubs.invoke(LifecycleEvent{Kind: LifecycleError, Err: err})
		return err
	}

	newGen, ok := m.adopt(gen, conn)
	if !ok {
		// Disconnect won the race while the dial was in flight.
		_ = conn.Close()
		m.logger.Debug("discarding connection dialed before disconnect")
		return nil
	}
	m.logger.Info("connected", "url", m.opts.URL)
	m.lifecycleSubs.invoke(LifecycleEvent{Kind: LifecycleConnected})

	go m.readLoop(newGen, conn)
	return nil
}

// Disconnect closes the connection and returns the Manager to
// Disconnected. Safe to call when already disconnected.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	if m.state == StateDisconnected {
		m.mu.Unlock()
		return
	}
	conn := m.conn
	m.conn = nil
	m.state = StateDisconnected
	m.gen++
	m.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	m.logger.Info("disconnected")
	m.lifecycleSubs.invoke(LifecycleEvent{Kind: LifecycleDisconnected})
}

// adopt installs a freshly dialed connection and returns its generation.
// The install is refused when an explicit Disconnect superseded the dial;
// the caller must close the connection in that case.
func (m *Manager) adopt(gen uint64, conn Conn) (uint64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen || m.state != StateConnecting {
		return 0, false
	}
	m.conn = conn
	m.state = StateConnected
	m.gen++
	return m.gen, true
}

// JoinRoom asks the backend to route the room's events to this
// connection. Best-effort: no acknowledgment is awaited.
func (m *Manager) JoinRoom(roomID string) error {
	return m.send(eventJoinRoom, roomPayload{RoomID: roomID})
}

// LeaveRoom stops routing of the room's events. Best-effort.
func (m *Manager) LeaveRoom(roomID string) error {
	return m.send(eventLeaveRoom, roomPayload{RoomID: roomID})
}

// SendMessage emits an outbound message event for live fan-out to the
// room's other participants. Delivery confirmation, if any, arrives as an
// inbound event, never as a return value.
func (m *Manager) SendMessage(msg chat.Message) error {
	return m.send(eventSendMessage, msg)
}

// EmitTyping signals typing intent for a room. Fire-and-forget.
func (m *Manager) EmitTyping(roomID string, isTyping bool) error {
	return m.send(eventTyping, typingPayload{RoomID: roomID, IsTyping: isTyping})
}

// OnMessage registers a handler for inbound chat messages.
func (m *Manager) OnMessage(fn func(chat.Message)) *Subscription {
	return m.msgSubs.add(fn)
}

// OnTyping registers a handler for typing indicator changes.
func (m *Manager) OnTyping(fn func(TypingEvent)) *Subscription {
	return m.typingSubs.add(fn)
}

// OnUserOnline registers a handler for users coming online.
func (m *Manager) OnUserOnline(fn func(chat.UserID)) *Subscription {
	return m.onlineSubs.add(fn)
}

// OnUserOffline registers a handler for users going offline.
func (m *Manager) OnUserOffline(fn func(chat.UserID)) *Subscription {
	return m.offlineSubs.add(fn)
}

// OnLifecycle registers a handler for connection lifecycle transitions.
func (m *Manager) OnLifecycle(fn func(LifecycleEvent)) *Subscription {
	return m.lifecycleSubs.add(fn)
}

// send encodes and writes an outbound frame on the current connection.
func (m *Manager) send(event string, payload any) error {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()

	if conn == nil {
		m.logger.Debug("dropping outbound event, not connected", "event", event)
		return ErrNotConnected
	}

	f, err := newFrame(event, payload)
	if err != nil {
		return err
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if err := conn.WriteFrame(f); err != nil {
		return fmt.Errorf("writing %s: %w", event, err)
	}
	return nil
}

// readLoop pulls frames off the connection and dispatches them until the
// connection fails or is superseded.
func (m *Manager) readLoop(gen uint64, conn Conn) {
	for {
		f, err := conn.ReadFrame()
		if err != nil {
			m.handleReadError(gen, err)
			return
		}
		m.dispatch(f)
	}
}

// dispatch decodes a frame and invokes the matching handler table.
// Runs on the read-loop goroutine, preserving transport delivery order.
func (m *Manager) dispatch(f Frame) {
	ev, err := decodeFrame(f)
	if err != nil {
		m.logger.Warn("dropping malformed frame", "event", f.Event, "error", err)
		return
	}
	if ev == nil {
		m.logger.Debug("ignoring unknown event", "event", f.Event)
		return
	}

	switch ev.Kind {
	case KindMessage:
		m.msgSubs.invoke(*ev.Message)
	case KindTyping:
		m.typingSubs.invoke(*ev.Typing)
	case KindPresence:
		if ev.Presence.Online {
			m.onlineSubs.invoke(ev.Presence.UserID)
		} else {
			m.offlineSubs.invoke(ev.Presence.UserID)
		}
	}
}

// handleReadError transitions a failed connection into Reconnecting and
// starts the bounded backoff loop, unless the failure belongs to a
// superseded connection or an explicit Disconnect already ran.
func (m *Manager) handleReadError(gen uint64, err error) {
	m.mu.Lock()
	if m.gen != gen || m.state != StateConnected {
		m.mu.Unlock()
		return
	}
	m.state = StateReconnecting
	m.conn = nil
	token := m.token
	m.mu.Unlock()

	m.logger.Warn("connection lost", "error", err)
	m.lifecycleSubs.invoke(LifecycleEvent{Kind: LifecycleDisconnected, Err: err})

	go m.reconnect(gen, token)
}

// reconnect retries the dial with exponentially increasing delay, capped
// at ReconnectMaxDelay, for at most MaxReconnectAttempts attempts.
func (m *Manager) reconnect(gen uint64, token string) {
	delay := m.opts.ReconnectBaseDelay

	for attempt := 1; attempt <= m.opts.MaxReconnectAttempts; attempt++ {
		time.Sleep(delay)
		if delay *= 2; delay > m.opts.ReconnectMaxDelay {
			delay = m.opts.ReconnectMaxDelay
		}

		m.mu.Lock()
		superseded := m.gen != gen || m.state != StateReconnecting
		m.mu.Unlock()
		if superseded {
			return
		}

		conn, err := m.opts.Transport.Dial(context.Background(), m.opts.URL, token)
		if err != nil {
			if errors.Is(err, ErrAuthRejected) {
				m.giveUp(gen, err)
				return
			}
			m.logger.Warn("reconnect attempt failed",
				"attempt", attempt,
				"max_attempts", m.opts.MaxReconnectAttempts,
				"error", err)
			continue
		}

		m.mu.Lock()
		if m.gen != gen || m.state != StateReconnecting {
			m.mu.Unlock()
			_ = conn.Close()
			return
		}
		m.conn = conn
		m.state = StateConnected
		m.gen++
		newGen := m.gen
		m.mu.Unlock()

		m.logger.Info("reconnected", "attempts", attempt)
		m.lifecycleSubs.invoke(LifecycleEvent{Kind: LifecycleReconnected})

		go m.readLoop(newGen, conn)
		return
	}

	m.giveUp(gen, ErrReconnectExhausted)
}

// giveUp abandons reconnection and settles in Disconnected.
func (m *Manager) giveUp(gen uint64, err error) {
	m.mu.Lock()
	if m.gen != gen || m.state != StateReconnecting {
		m.mu.Unlock()
		return
	}
	m.state = StateDisconnected
	m.gen++
	m.mu.Unlock()

	m.logger.Error("reconnect abandoned", "error", err)
	m.lifecycleSubs.invoke(LifecycleEvent{Kind: LifecycleError, Err: err})
}
