// Package audit implements asynchronous dispatch of login-history events.
//
// # Components
//
//   - [Sink]: interface for event consumers (channel, JSON writer, fan-out, no-op).
//   - [Dispatcher]: bounded buffer drained by a fixed worker pool, with drop-if-full semantics.
//   - [Event]: one login-history entry with account, outcome, reason and client metadata.
//
// # Delivery guarantees
//
// None. Events are best effort: a full buffer drops the event and bumps a
// counter, and sink failures are the sink's business. The authentication
// outcome never depends on audit delivery.
//
// # What this package must NOT do
//
//   - Decide which events to emit. That belongs to the Engine.
//   - Import authsvc or any sibling internal package.
package audit
