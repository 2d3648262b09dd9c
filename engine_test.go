package ctxAuth

import (
	"context"
	"errors"
	"io"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	chromeMacUA    = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	firefoxLinuxUA = "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

// newTestClock starts near wall time so Redis-side expiries stay meaningful.
func newTestClock() *testClock {
	return &testClock{now: time.Now().UTC().Truncate(time.Second)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type mockUserDirectory struct {
	mu        sync.Mutex
	users     map[string]UserRecord
	markErr   error
	markCalls int
	getErr    error
}

func newMockUserDirectory(users ...UserRecord) *mockUserDirectory {
	d := &mockUserDirectory{users: make(map[string]UserRecord)}
	for _, u := range users {
		d.users[strings.ToLower(u.Email)] = u
	}
	return d
}

func (d *mockUserDirectory) GetUserByEmail(_ context.Context, email string) (UserRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.getErr != nil {
		return UserRecord{}, d.getErr
	}
	u, ok := d.users[strings.ToLower(email)]
	if !ok {
		return UserRecord{}, ErrUserNotFound
	}
	return u, nil
}

func (d *mockUserDirectory) MarkEmailVerified(_ context.Context, userID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.markCalls++
	if d.markErr != nil {
		return d.markErr
	}
	for k, u := range d.users {
		if u.ID == userID {
			u.EmailVerified = true
			d.users[k] = u
			return nil
		}
	}
	return ErrUserNotFound
}

func (d *mockUserDirectory) put(u UserRecord) {
	d.mu.Lock()
	d.users[strings.ToLower(u.Email)] = u
	d.mu.Unlock()
}

type sentMail struct {
	To      string
	Subject string
	Body    string
}

type mockMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *mockMailer) Send(ctx context.Context, to, subject, body string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if m.err != nil {
		return "", m.err
	}
	m.sent = append(m.sent, sentMail{To: to, Subject: subject, Body: body})
	return "msg-" + to, nil
}

func (m *mockMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func (m *mockMailer) fail(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

var mailCodePattern = regexp.MustCompile(`<strong>(\d{5})</strong>`)

func (m *mockMailer) lastCode(t *testing.T) string {
	t.Helper()

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		t.Fatal("no mail sent")
	}
	match := mailCodePattern.FindStringSubmatch(m.sent[len(m.sent)-1].Body)
	if match == nil {
		t.Fatalf("no code in mail body: %s", m.sent[len(m.sent)-1].Body)
	}
	return match[1]
}

func wrongCode(code string) string {
	if code == "12345" {
		return "54321"
	}
	return "12345"
}

type testHarness struct {
	engine *Engine
	mr     *miniredis.Miniredis
	rdb    *redis.Client
	users  *mockUserDirectory
	mailer *mockMailer
	clock  *testClock
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.AccessSecret = []byte("access-secret-for-tests-0123456789")
	cfg.JWT.RefreshSecret = []byte("refresh-secret-for-tests-987654321")
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true
	return cfg
}

func newTestHarness(t *testing.T, mutate func(*Config), users ...UserRecord) *testHarness {
	t.Helper()

	mr, rdb := newTestRedis(t)
	t.Cleanup(mr.Close)

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	h := &testHarness{
		mr:     mr,
		rdb:    rdb,
		users:  newMockUserDirectory(users...),
		mailer: &mockMailer{},
		clock:  newTestClock(),
	}

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserDirectory(h.users).
		WithMailer(h.mailer).
		WithClock(h.clock.Now).
		WithLogger(logger).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	h.engine = engine

	return h
}

func aliceUnverified() UserRecord {
	return UserRecord{ID: "u1", Email: "alice@example.com", Name: "Alice", Role: "general"}
}

func aliceVerified() UserRecord {
	u := aliceUnverified()
	u.EmailVerified = true
	return u
}

func requestContext(userAgent, ip string) context.Context {
	ctx := WithUserAgent(context.Background(), userAgent)
	return WithClientIP(ctx, ip)
}

func homeContext() context.Context {
	return requestContext(chromeMacUA, "203.0.113.7")
}

func travelContext() context.Context {
	return requestContext(firefoxLinuxUA, "198.51.100.20")
}

func TestBuilderRejectsMissingDependencies(t *testing.T) {
	_, rdb := newTestRedis(t)

	tests := []struct {
		name  string
		build func() (*Engine, error)
	}{
		{
			name: "no secrets",
			build: func() (*Engine, error) {
				return New().WithRedis(rdb).WithUserDirectory(newMockUserDirectory()).WithMailer(&mockMailer{}).Build()
			},
		},
		{
			name: "no user directory",
			build: func() (*Engine, error) {
				return New().WithConfig(testConfig()).WithRedis(rdb).WithMailer(&mockMailer{}).Build()
			},
		},
		{
			name: "no mailer",
			build: func() (*Engine, error) {
				return New().WithConfig(testConfig()).WithRedis(rdb).WithUserDirectory(newMockUserDirectory()).Build()
			},
		},
		{
			name: "no stores",
			build: func() (*Engine, error) {
				return New().WithConfig(testConfig()).WithUserDirectory(newMockUserDirectory()).WithMailer(&mockMailer{}).Build()
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := tc.build(); err == nil {
				t.Fatal("expected Build to fail")
			}
		})
	}
}

func TestBuilderSingleUse(t *testing.T) {
	_, rdb := newTestRedis(t)

	b := New().WithConfig(testConfig()).WithRedis(rdb).WithUserDirectory(newMockUserDirectory()).WithMailer(&mockMailer{})
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	if _, err := b.Build(); err == nil {
		t.Fatal("expected second Build to fail")
	}
}

func TestEngineConfigHidesSecrets(t *testing.T) {
	h := newTestHarness(t, nil)

	cfg := h.engine.Config()
	if cfg.JWT.AccessSecret != nil || cfg.JWT.RefreshSecret != nil {
		t.Fatal("expected secrets to be stripped")
	}
	if cfg.JWT.AccessTTL != 6*time.Hour {
		t.Fatalf("expected default access ttl, got %v", cfg.JWT.AccessTTL)
	}
}

func TestNilEngineNotReady(t *testing.T) {
	var e *Engine
	if _, err := e.Login(context.Background(), "a@example.com"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	if e.AuditDropped() != 0 || e.AuditDelivered() != 0 {
		t.Fatal("nil engine must report zero audit counts")
	}
	e.Close()
}

func TestAuditEventsEmitted(t *testing.T) {
	sink := NewChannelSink(64)
	_, rdb := newTestRedis(t)

	cfg := testConfig()
	cfg.Audit.Enabled = true

	users := newMockUserDirectory(aliceVerified())
	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserDirectory(users).
		WithMailer(&mockMailer{}).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if _, err := engine.Login(homeContext(), "alice@example.com"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	engine.Close()

	seen := map[string]AuditEvent{}
	for {
		select {
		case ev := <-sink.Events():
			seen[ev.EventType] = ev
			continue
		default:
		}
		break
	}

	challenged, ok := seen[auditEventLoginChallenged]
	if !ok {
		t.Fatalf("expected %q event, got %v", auditEventLoginChallenged, seen)
	}
	if challenged.UserID != "u1" || challenged.ContextID == "" || challenged.IP != "203.0.113.7" {
		t.Fatalf("unexpected event: %+v", challenged)
	}
	if _, ok := seen[auditEventChallengeIssued]; !ok {
		t.Fatalf("expected %q event", auditEventChallengeIssued)
	}
	if got := engine.AuditDelivered(); got < 2 {
		t.Fatalf("expected at least 2 delivered events, got %d", got)
	}
}

func TestAuditErrorCodeMapping(t *testing.T) {
	tests := []struct {
		err  error
		want AuditErrorCode
	}{
		{nil, ""},
		{ErrContextBlocked, auditErrContextBlocked},
		{ErrChallengeExpired, auditErrChallengeExpired},
		{ErrChallengeAttemptsExceeded, auditErrAttemptsExceeded},
		{storeErr(errors.New("dial tcp: refused")), auditErrUnavailable},
		{errors.New("boom"), auditErrInternal},
	}
	for _, tc := range tests {
		if got := auditErrorCode(tc.err); got != tc.want {
			t.Fatalf("auditErrorCode(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
