package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var mailCode = regexp.MustCompile(`<strong>(\d{5})</strong>`)

const chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

func newDevApp(t *testing.T) (*app, *test.Hook) {
	t.Helper()

	cfg, err := LoadConfig([]string{"-dev"}, envOf(nil))
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	hook := test.NewLocal(logger)

	a, err := newApp(context.Background(), cfg, logger)
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a, hook
}

func serve(t *testing.T, h http.Handler, method, target, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	req.Header.Set("User-Agent", chromeUA)
	req.RemoteAddr = "192.0.2.10:5555"
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func lastMailCode(t *testing.T, hook *test.Hook) string {
	t.Helper()
	entries := hook.AllEntries()
	for i := len(entries) - 1; i >= 0; i-- {
		if m := mailCode.FindStringSubmatch(entries[i].Message); len(m) == 2 {
			return m[1]
		}
	}
	t.Fatal("no verification code logged")
	return ""
}

func TestServerStatus(t *testing.T) {
	a, _ := newDevApp(t)

	rec := serve(t, a.handler, http.MethodGet, "/server-status", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Server is up and running!"}`, rec.Body.String())
}

func TestDevSignupLoginFlow(t *testing.T) {
	a, hook := newDevApp(t)

	rec := serve(t, a.handler, http.MethodPost, "/dev/login", "", `{"email":"dev@ctxauth.local"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code, "unverified email")

	rec = serve(t, a.handler, http.MethodPost, "/dev/signup", "", `{"email":"dev@ctxauth.local","name":"Dev"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	q := url.Values{"code": {lastMailCode(t, hook)}, "email": {"dev@ctxauth.local"}}
	rec = serve(t, a.handler, http.MethodGet, "/auth/verify?"+q.Encode(), "", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = serve(t, a.handler, http.MethodPost, "/dev/login", "", `{"email":"dev@ctxauth.local"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var login struct {
		AccessToken string `json:"accessToken"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &login))
	require.NotEmpty(t, login.AccessToken)

	rec = serve(t, a.handler, http.MethodGet, "/auth/context-data", login.AccessToken, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var contexts []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &contexts))
	require.Len(t, contexts, 1)
	assert.Equal(t, "Chrome", contexts[0]["browser"])

	rec = serve(t, a.handler, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ctxauth_audit_dropped_total")
	assert.Contains(t, rec.Body.String(), "ctxauth_")

	rec = serve(t, a.handler, http.MethodGet, "/debug/otel-metrics", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ctxauth_audit_dropped_total")
}

func TestDevRoutesRejectBadBody(t *testing.T) {
	a, _ := newDevApp(t)

	rec := serve(t, a.handler, http.MethodPost, "/dev/login", "", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(t, a.handler, http.MethodPost, "/dev/signup", "", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNewAppRequiresDatabaseOutsideDev(t *testing.T) {
	cfg := defaultConfig()
	cfg.RedisAddr = "127.0.0.1:0"

	a, err := newApp(context.Background(), cfg, logrus.New())
	require.ErrorIs(t, err, errNoUserStore)
	assert.Nil(t, a)
}
