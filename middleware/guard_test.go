package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	ctxAuth "github.com/MrEthical07/ctxAuth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAuthenticator struct {
	tokens  map[string]*ctxAuth.AuthResult
	err     error
	lastTok string
}

func (f *fakeAuthenticator) Authenticate(_ context.Context, token string) (*ctxAuth.AuthResult, error) {
	f.lastTok = token
	if f.err != nil {
		return nil, f.err
	}
	res, ok := f.tokens[token]
	if !ok {
		return nil, ctxAuth.ErrTokenInvalid
	}
	return res, nil
}

func newFakeAuthenticator() *fakeAuthenticator {
	return &fakeAuthenticator{tokens: map[string]*ctxAuth.AuthResult{
		"good":    {User: ctxAuth.UserRecord{ID: "u1", Email: "alice@example.com"}},
		"rotate":  {User: ctxAuth.UserRecord{ID: "u1", Email: "alice@example.com"}, RotatedAccessToken: "fresh"},
		"queried": {User: ctxAuth.UserRecord{ID: "u2", Email: "bob@example.com"}},
	}}
}

func echoUser(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := UserFromContext(r.Context())
		require.True(t, ok)
		_, _ = w.Write([]byte(user.ID))
	})
}

func TestGuardHeaderToken(t *testing.T) {
	auth := newFakeAuthenticator()
	h := Guard(auth)(echoUser(t))

	req := httptest.NewRequest(http.MethodGet, "/auth/context-data", nil)
	req.Header.Set("Authorization", "Bearer good")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u1", rec.Body.String())
	assert.Empty(t, rec.Header().Get(RotatedTokenHeader))
}

func TestGuardHeaderWinsOverQuery(t *testing.T) {
	auth := newFakeAuthenticator()
	h := Guard(auth)(echoUser(t))

	req := httptest.NewRequest(http.MethodGet, "/auth/context-data?access_token=queried", nil)
	req.Header.Set("Authorization", "Bearer good")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "good", auth.lastTok)
	assert.Equal(t, "u1", rec.Body.String())
}

func TestGuardMalformedHeaderDoesNotFallBack(t *testing.T) {
	auth := newFakeAuthenticator()
	h := Guard(auth)(echoUser(t))

	req := httptest.NewRequest(http.MethodGet, "/auth/context-data?token=queried", nil)
	req.Header.Set("Authorization", "Basic Zm9vOmJhcg==")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, auth.lastTok)
}

func TestGuardQueryFallback(t *testing.T) {
	for _, name := range []string{"access_token", "accessToken", "token"} {
		t.Run(name, func(t *testing.T) {
			auth := newFakeAuthenticator()
			h := Guard(auth)(echoUser(t))

			req := httptest.NewRequest(http.MethodGet, "/auth/user-preferences?"+name+"=queried", nil)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "u2", rec.Body.String())
		})
	}
}

func TestGuardRotatedHeader(t *testing.T) {
	h := Guard(newFakeAuthenticator())(echoUser(t))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer rotate")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "fresh", rec.Header().Get(RotatedTokenHeader))
}

func TestGuardRejects(t *testing.T) {
	tests := []struct {
		name   string
		header string
		err    error
		want   int
	}{
		{name: "missing", want: http.StatusUnauthorized},
		{name: "empty bearer", header: "Bearer ", want: http.StatusUnauthorized},
		{name: "unknown token", header: "Bearer nope", want: http.StatusUnauthorized},
		{name: "expired", header: "Bearer good", err: ctxAuth.ErrUnauthenticated, want: http.StatusUnauthorized},
		{name: "store down", header: "Bearer good", err: ctxAuth.ErrStoreUnavailable, want: http.StatusInternalServerError},
		{name: "wrapped store down", header: "Bearer good", err: errors.Join(errors.New("x"), ctxAuth.ErrStoreUnavailable), want: http.StatusInternalServerError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			auth := newFakeAuthenticator()
			auth.err = tc.err
			called := false
			h := Guard(auth)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tc.want, rec.Code)
			assert.False(t, called)
			assert.Contains(t, rec.Body.String(), "message")
		})
	}
}

func TestGuardNilAuthenticator(t *testing.T) {
	h := Guard(nil)(echoUser(t))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequestMetadata(t *testing.T) {
	var got ctxAuth.Fingerprint
	h := RequestMetadata(true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = ctxAuth.FingerprintFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0")
	req.Header.Set("X-Forwarded-For", "198.51.100.77, 10.0.0.1")
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "Firefox", got.BrowserFamily)
	assert.Equal(t, "Linux", got.OSFamily)
	assert.Equal(t, "198.51.100.0/24", got.NetworkOrigin)
}
