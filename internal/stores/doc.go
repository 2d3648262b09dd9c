// Package stores provides the Redis-backed persistence for ctxAuth: trust
// records, verification challenges, refresh tokens and context-auth preferences.
//
// # Design
//
// Every mutation is a single server-side atomic step: either a Lua script
// (create-or-touch, guarded transitions, check-and-consume) or a MULTI/EXEC
// pipeline (replace-on-save). Challenge codes are stored as SHA-256 digests and
// compared again in constant time after the script returns.
//
// # Key layout
//
//	{trust}:rec:{id}                 hash   trust record
//	{trust}:fp:{user}:{fingerprint}  string record id for (user, fingerprint)
//	{trust}:user:{user}              set    record ids owned by user
//	{challenge}:{purpose}:{subject}  hash   active challenge
//	{refresh}:{user}                 hash   refresh token + issued_at
//	{pref}:{user}                    string "1" or "0"
//
// # Architecture boundaries
//
// This package owns persistence and concurrency control. It does NOT generate
// codes or tokens, send mail, or make authentication decisions; those belong
// to the ctxAuth engine.
//
// # What this package must NOT do
//
//   - Import ctxAuth or any sibling internal package.
//   - Log or expose plaintext codes.
//   - Use non-constant-time comparisons for code matching.
package stores
