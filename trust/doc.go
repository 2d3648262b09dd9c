// Package trust defines the per-user context trust model: the [State] machine
// (pending, trusted, blocked), the [Record] persisted for every (user, fingerprint)
// pair, and the [Store] port implemented by the Redis and PostgreSQL backends.
//
// # Transitions
//
//	pending ──promote──▶ trusted
//	   ▲                    │
//	unblock               block
//	   │                    ▼
//	blocked ◀────block──── (any)
//
// A blocked record can only leave the blocked state through [Unblock], which
// resets it to pending. [Reject] is the narrow form of block that only
// accepts pending records. Stores enforce the source-state guard returned by
// [Guard] inside a single atomic operation.
//
// # Architecture boundaries
//
// This package owns the state vocabulary and guard table. It does NOT decide
// when a transition should happen; that belongs to the ctxAuth engine.
//
// # What this package must NOT do
//
//   - Import ctxAuth or any storage driver.
//   - Perform I/O.
package trust
