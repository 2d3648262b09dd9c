// Package middleware exposes net/http adapters over ctxAuth.Engine.
//
// # Handlers
//
//   - [Guard] authenticates the bearer token, stores the [ctxAuth.AuthResult] on the
//     request context and forwards a rotated access token in [RotatedTokenHeader].
//   - [RequestMetadata] attaches the User-Agent and client IP that the engine turns
//     into a login fingerprint.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. All decisions are
// delegated to Engine.Authenticate.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly.
//   - Access Redis or PostgreSQL.
//   - Let a query-string token override an Authorization header.
package middleware
