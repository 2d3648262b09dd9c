// Package httpapi serves the /auth HTTP surface of a [ctxAuth.Engine] on a
// gorilla/mux router.
//
// # Routes
//
// Public, reached from the links in verification emails:
//
//	GET    /auth/verify?code&email
//	GET    /auth/verify-login?code&email
//	GET    /auth/block-login?email&contextId
//
// Bearer authenticated through [middleware.Guard]:
//
//	GET    /auth/context-data?type=primary|trusted|blocked|pending
//	GET    /auth/context-data/{primary|trusted|blocked}
//	DELETE /auth/context-data/{contextId}        (or ?contextId=)
//	PATCH  /auth/context-data/block/{contextId}  (or ?contextId=)
//	PATCH  /auth/context-data/unblock/{contextId}
//	GET    /auth/user-preferences
//	PUT    /auth/user-preferences
//	POST   /auth/logout
//
// Malformed query parameters are rejected with 422 and an "errors" array.
// Every other failure is a JSON object with a "message" field whose status
// is chosen by [StatusFor].
//
// # What this package must NOT do
//
//   - Issue or parse tokens itself.
//   - Route password logins; hosts call Engine.Login after their own credential check.
package httpapi
