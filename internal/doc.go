// Package internal contains helper utilities that are intentionally private to ctxAuth,
// including secure verification code generation.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - stores: Redis-backed trust, challenge, refresh-token and preference stores
//   - memdir: in-memory user directory for dev servers, examples and load tests
//
// # What this package must NOT do
//
//   - Export types that appear in the public ctxAuth API.
//   - Be imported by any package outside the ctxAuth module.
package internal
