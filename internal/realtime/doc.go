// Package realtime owns the single duplex connection to the live
// messaging backend.
//
// # Manager
//
// The Manager is the only component that touches the raw transport. It
// exposes:
//
//   - Connect(ctx, token) / Disconnect(): lifecycle control
//   - JoinRoom / LeaveRoom / SendMessage / EmitTyping: fire-and-forget
//     outbound commands
//   - OnMessage / OnTyping / OnUserOnline / OnUserOffline / OnLifecycle:
//     additive subscriptions with removable handles
//
// # Lifecycle
//
//	Disconnected -> Connecting -> Connected
//	Connected    -> Reconnecting -> Connected   (transient loss)
//	any          -> Disconnected                (explicit Disconnect)
//
// Transport loss triggers bounded exponential backoff reconnection. A
// rejected token never retries: credential failures are not transient.
// The Manager does not re-join rooms after a reconnect; subscribers
// listen for LifecycleReconnected and re-issue their own joins.
//
// # Ordering
//
// Inbound handlers run on the read-loop goroutine in transport delivery
// order. A slow handler therefore backpressures the whole event stream;
// handlers must not block.
//
// # Subscriptions
//
// The handler table is owned by the Manager, not the transport, so
// registrations survive disconnects and reconnects. Cancel a
// Subscription to stop receiving events; otherwise handlers live for the
// Manager's lifetime.
package realtime
