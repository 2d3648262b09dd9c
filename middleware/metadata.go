package middleware

import (
	"net/http"

	ctxAuth "github.com/MrEthical07/ctxAuth"
	"github.com/MrEthical07/ctxAuth/fingerprint"
)

// RequestMetadata copies the User-Agent and client IP onto the request
// context so Engine calls can derive the login fingerprint. With
// trustForwarded the first X-Forwarded-For hop is used as the client IP.
func RequestMetadata(trustForwarded bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := ctxAuth.WithUserAgent(r.Context(), r.UserAgent())
			ctx = ctxAuth.WithClientIP(ctx, fingerprint.ClientIP(r, trustForwarded))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
