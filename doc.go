// Package ctxAuth is a context-based authentication core: it decides whether a
// login whose password the host already checked may receive credentials, based
// on the login context (browser family, OS family and masked network origin).
//
// An unseen context is recorded as pending and a one-time code is mailed to the
// account owner. Confirming the code promotes the context to trusted and issues
// credentials; the owner can instead block it from the same email. Trusted
// contexts log in directly, blocked ones are refused.
//
// Engine methods are safe to call from multiple goroutines after [Builder.Build].
//
// # Architecture boundaries
//
// ctxAuth is the public surface. It exposes [Engine], [Builder], [Config] and the
// value types it returns. Fingerprint derivation lives in fingerprint, the trust
// state machine in trust, challenge records in challenge, and the Redis stores
// under internal/stores. HTTP concerns live in middleware and httpapi.
//
// # What this package must NOT do
//
//   - Verify passwords or own user profiles. The host supplies a [UserDirectory].
//   - Hand out refresh tokens. They are stored server-side and only gate
//     access-token validity.
//   - Import httpapi or middleware (no import cycles).
package ctxAuth
