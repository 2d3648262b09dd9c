package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	ctxAuth "github.com/MrEthical07/ctxAuth"
)

// RotatedTokenHeader carries a replacement access token when the presented
// one was inside the rotation window.
const RotatedTokenHeader = "X-Access-Token"

// Authenticator is the slice of [ctxAuth.Engine] the guard needs.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*ctxAuth.AuthResult, error)
}

type authResultContextKey struct{}

// AuthResultFromContext returns the result stored by [Guard].
func AuthResultFromContext(ctx context.Context) (*ctxAuth.AuthResult, bool) {
	res, ok := ctx.Value(authResultContextKey{}).(*ctxAuth.AuthResult)
	return res, ok
}

// UserFromContext returns the authenticated user stored by [Guard].
func UserFromContext(ctx context.Context) (ctxAuth.UserRecord, bool) {
	res, ok := AuthResultFromContext(ctx)
	if !ok || res == nil {
		return ctxAuth.UserRecord{}, false
	}
	return res.User, true
}

// WithAuthResult stores res on ctx the way [Guard] does.
func WithAuthResult(ctx context.Context, res *ctxAuth.AuthResult) context.Context {
	return context.WithValue(ctx, authResultContextKey{}, res)
}

// Guard authenticates every request with the bearer token from [Token].
// Rejected requests get a JSON 401, or 500 when the stores are unavailable.
func Guard(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if auth == nil {
				writeError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}

			token, ok := Token(r)
			if !ok {
				writeError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}

			res, err := auth.Authenticate(r.Context(), token)
			if err != nil {
				if errors.Is(err, ctxAuth.ErrStoreUnavailable) || errors.Is(err, ctxAuth.ErrEngineNotReady) {
					writeError(w, http.StatusInternalServerError, "Internal server error")
					return
				}
				writeError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}

			if res.RotatedAccessToken != "" {
				w.Header().Set(RotatedTokenHeader, res.RotatedAccessToken)
			}

			next.ServeHTTP(w, r.WithContext(WithAuthResult(r.Context(), res)))
		})
	}
}

// Token extracts the access token. The Authorization header wins; the
// access_token, accessToken and token query parameters are consulted only
// when no Authorization header is present.
func Token(r *http.Request) (string, bool) {
	if header := r.Header.Get("Authorization"); header != "" {
		return bearerToken(header)
	}

	q := r.URL.Query()
	for _, name := range []string{"access_token", "accessToken", "token"} {
		if v := strings.TrimSpace(q.Get(name)); v != "" {
			return v, true
		}
	}
	return "", false
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": message})
}
