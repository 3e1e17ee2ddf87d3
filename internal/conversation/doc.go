// Package conversation holds the in-memory conversation state for one
// authenticated session.
//
// # Store
//
// The Store is the sole writer of all session chat state: the
// conversation index, the active conversation's message list, the
// session-wide unread total, the online-user set and per-room typing
// state. It bridges two worlds:
//
//   - the REST backend, queried for the initial index, history backfill,
//     message persistence and read marks
//   - the realtime layer, whose inbound events are reconciled into local
//     state for the lifetime of the session
//
// # Reconciliation
//
// Every inbound live message is appended to the message list, the owning
// conversation's last-message metadata is refreshed, and the unread
// total is incremented unless the message belongs to the active
// conversation. This runs regardless of which UI is mounted.
//
// The unread total is deliberately a single session-wide scalar, not a
// per-conversation count: it is reset wholesale from the backend on
// refresh and only ever incremented locally. Changing that shape changes
// the contract with the backend.
//
// # Failure semantics
//
// Mutating operations (SendMessage, StartConversation) never swallow
// failures; they return the error after resolving any partial state.
// Read refreshes (FetchConversations, the history load in Open) leave
// prior state intact on failure and return the error for the caller to
// surface. A stale list is a UX degradation; a dropped send would be a
// correctness bug, so the two must surface distinctly.
package conversation
