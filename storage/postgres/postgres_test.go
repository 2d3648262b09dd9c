package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	ctxAuth "github.com/MrEthical07/ctxAuth"
	"github.com/MrEthical07/ctxAuth/fingerprint"
	"github.com/MrEthical07/ctxAuth/trust"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	testFP  = fingerprint.Fingerprint{BrowserFamily: "Chrome", OSFamily: "Mac OS X", NetworkOrigin: "203.0.113.0/24"}
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return db, mock
}

func q(query string) string {
	return "^" + regexp.QuoteMeta(query) + "$"
}

func trustRows() *sqlmock.Rows {
	return sqlmock.NewRows(strings.Split(strings.ReplaceAll(trustColumns, " ", ""), ","))
}

func newTestTrustStore(db *sql.DB) *TrustStore {
	s := NewTrustStore(db)
	s.newID = func() string { return "ctx-1" }
	return s
}

func TestTrustRecordAttemptCreatesPending(t *testing.T) {
	db, mock := newMock(t)
	s := newTestTrustStore(db)

	mock.ExpectQuery(q(recordAttemptQuery)).
		WithArgs("ctx-1", "u1", testFP.Key(), "Chrome", "Mac OS X", "203.0.113.0/24", testNow).
		WillReturnRows(trustRows().AddRow("ctx-1", "u1", "Chrome", "Mac OS X", "203.0.113.0/24", "pending", false, testNow, testNow, testNow))

	rec, err := s.RecordAttempt(context.Background(), "u1", testFP, testNow)
	require.NoError(t, err)
	assert.Equal(t, trust.StatePending, rec.State)
	assert.False(t, rec.Primary)
	assert.Equal(t, testFP, rec.Fingerprint)
	assert.Equal(t, testNow, rec.LastSeenAt)
}

func TestTrustRegisterPrimary(t *testing.T) {
	db, mock := newMock(t)
	s := newTestTrustStore(db)

	mock.ExpectQuery(q(registerPrimaryQuery)).
		WithArgs("ctx-1", "u1", testFP.Key(), "Chrome", "Mac OS X", "203.0.113.0/24", testNow).
		WillReturnRows(trustRows().AddRow("ctx-1", "u1", "Chrome", "Mac OS X", "203.0.113.0/24", "trusted", true, testNow, testNow, testNow))

	rec, err := s.RegisterPrimary(context.Background(), "u1", testFP, testNow)
	require.NoError(t, err)
	assert.Equal(t, trust.StateTrusted, rec.State)
	assert.True(t, rec.Primary)
}

func TestTrustRecordAttemptNormalizesFingerprint(t *testing.T) {
	db, mock := newMock(t)
	s := newTestTrustStore(db)

	norm := fingerprint.Fingerprint{}.Normalized()
	mock.ExpectQuery(q(recordAttemptQuery)).
		WithArgs("ctx-1", "u1", norm.Key(), fingerprint.Unknown, fingerprint.Unknown, fingerprint.Unknown, testNow).
		WillReturnRows(trustRows().AddRow("ctx-1", "u1", "unknown", "unknown", "unknown", "pending", false, testNow, testNow, testNow))

	_, err := s.RecordAttempt(context.Background(), "u1", fingerprint.Fingerprint{}, testNow)
	require.NoError(t, err)
}

func TestTrustRecordAttemptErrors(t *testing.T) {
	db, mock := newMock(t)
	s := newTestTrustStore(db)

	_, err := s.RecordAttempt(context.Background(), "", testFP, testNow)
	require.Error(t, err)

	mock.ExpectQuery(q(recordAttemptQuery)).WillReturnError(errors.New("conn reset"))
	_, err = s.RecordAttempt(context.Background(), "u1", testFP, testNow)
	assert.ErrorIs(t, err, trust.ErrUnavailable)
}

func TestTrustGetAndLookup(t *testing.T) {
	db, mock := newMock(t)
	s := newTestTrustStore(db)

	mock.ExpectQuery(q(getTrustQuery)).WithArgs("u2", "ctx-1").WillReturnRows(trustRows())
	_, err := s.Get(context.Background(), "u2", "ctx-1")
	assert.ErrorIs(t, err, trust.ErrNotFound)

	mock.ExpectQuery(q(lookupTrustQuery)).WithArgs("u1", testFP.Key()).
		WillReturnRows(trustRows().AddRow("ctx-1", "u1", "Chrome", "Mac OS X", "203.0.113.0/24", "blocked", false, testNow, testNow, testNow))
	rec, err := s.Lookup(context.Background(), "u1", testFP)
	require.NoError(t, err)
	assert.Equal(t, trust.StateBlocked, rec.State)

	mock.ExpectQuery(q(getTrustQuery)).WithArgs("u1", "ctx-1").
		WillReturnRows(trustRows().AddRow("ctx-1", "u1", "Chrome", "Mac OS X", "203.0.113.0/24", "bogus", false, testNow, testNow, testNow))
	_, err = s.Get(context.Background(), "u1", "ctx-1")
	assert.ErrorIs(t, err, trust.ErrUnavailable)
}

func transitionPattern(n int) string {
	return `(?s)^UPDATE trust_contexts\s+SET .+ state = \$3\s+WHERE user_id = \$1 AND id = \$2 AND state IN \(` +
		strings.TrimSuffix(strings.Repeat(`\$\d+, `, n), ", ") + `\)\s+RETURNING `
}

func TestTrustTransitionPromote(t *testing.T) {
	db, mock := newMock(t)
	s := newTestTrustStore(db)
	later := testNow.Add(time.Minute)

	mock.ExpectQuery(transitionPattern(2)).
		WithArgs("u1", "ctx-1", "trusted", later, "pending", "trusted").
		WillReturnRows(trustRows().AddRow("ctx-1", "u1", "Chrome", "Mac OS X", "203.0.113.0/24", "trusted", false, testNow, testNow, later))

	rec, err := trust.Promote(context.Background(), s, "u1", "ctx-1", later)
	require.NoError(t, err)
	assert.Equal(t, trust.StateTrusted, rec.State)
	assert.Equal(t, later, rec.UpdatedAt)
}

func TestTrustTransitionRejected(t *testing.T) {
	db, mock := newMock(t)
	s := newTestTrustStore(db)

	mock.ExpectQuery(transitionPattern(2)).
		WithArgs("u1", "ctx-1", "trusted", testNow, "pending", "trusted").
		WillReturnRows(trustRows())
	mock.ExpectQuery(q(getTrustQuery)).WithArgs("u1", "ctx-1").
		WillReturnRows(trustRows().AddRow("ctx-1", "u1", "Chrome", "Mac OS X", "203.0.113.0/24", "blocked", false, testNow, testNow, testNow))

	_, err := trust.Promote(context.Background(), s, "u1", "ctx-1", testNow)
	assert.ErrorIs(t, err, trust.ErrInvalidTransition)
}

func TestTrustRejectGuardsPendingOnly(t *testing.T) {
	db, mock := newMock(t)
	s := newTestTrustStore(db)

	mock.ExpectQuery(transitionPattern(1)).
		WithArgs("u1", "ctx-1", "blocked", testNow, "pending").
		WillReturnRows(trustRows())
	mock.ExpectQuery(q(getTrustQuery)).WithArgs("u1", "ctx-1").
		WillReturnRows(trustRows().AddRow("ctx-1", "u1", "Chrome", "Mac OS X", "203.0.113.0/24", "trusted", true, testNow, testNow, testNow))

	_, err := trust.Reject(context.Background(), s, "u1", "ctx-1", testNow)
	assert.ErrorIs(t, err, trust.ErrInvalidTransition)
}

func TestTrustTransitionNotFound(t *testing.T) {
	db, mock := newMock(t)
	s := newTestTrustStore(db)

	mock.ExpectQuery(transitionPattern(3)).
		WithArgs("u1", "missing", "blocked", testNow, "pending", "trusted", "blocked").
		WillReturnRows(trustRows())
	mock.ExpectQuery(q(getTrustQuery)).WithArgs("u1", "missing").WillReturnRows(trustRows())

	_, err := trust.Block(context.Background(), s, "u1", "missing", testNow)
	assert.ErrorIs(t, err, trust.ErrNotFound)

	_, err = s.Transition(context.Background(), "u1", "missing", trust.State(0), testNow)
	assert.ErrorIs(t, err, trust.ErrInvalidState)
}

func TestTrustDelete(t *testing.T) {
	db, mock := newMock(t)
	s := newTestTrustStore(db)

	mock.ExpectExec(q(deleteTrustQuery)).WithArgs("u1", "ctx-1").WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.Delete(context.Background(), "u1", "ctx-1"))

	mock.ExpectExec(q(deleteTrustQuery)).WithArgs("u1", "ctx-1").WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, s.Delete(context.Background(), "u1", "ctx-1"), trust.ErrNotFound)
}

func TestTrustList(t *testing.T) {
	db, mock := newMock(t)
	s := newTestTrustStore(db)
	older := testNow.Add(-time.Hour)

	mock.ExpectQuery(q(listTrustQuery)).WithArgs("u1").
		WillReturnRows(trustRows().
			AddRow("ctx-2", "u1", "Firefox", "Linux", "198.51.100.0/24", "pending", false, testNow, testNow, testNow).
			AddRow("ctx-1", "u1", "Chrome", "Mac OS X", "203.0.113.0/24", "trusted", true, older, older, older))

	records, err := s.List(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "ctx-2", records[0].ID)

	primary, err := trust.ListPrimary(context.Background(), &listOnly{records: records}, "u1")
	require.NoError(t, err)
	require.Len(t, primary, 1)
	assert.Equal(t, "ctx-1", primary[0].ID)

	mock.ExpectQuery(q(listTrustQuery)).WithArgs("u3").WillReturnRows(trustRows())
	empty, err := s.List(context.Background(), "u3")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

type listOnly struct {
	trust.Store
	records []trust.Record
}

func (l *listOnly) List(context.Context, string) ([]trust.Record, error) {
	return l.records, nil
}

func TestRefreshTokenStore(t *testing.T) {
	db, mock := newMock(t)
	s := NewRefreshTokenStore(db)
	s.now = func() time.Time { return testNow }

	mock.ExpectExec(q(putRefreshQuery)).
		WithArgs("u1", "tok", testNow, testNow.Add(time.Hour)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.Put(context.Background(), "u1", "tok", testNow, time.Hour))

	mock.ExpectExec(q(putRefreshQuery)).
		WithArgs("u1", "tok2", testNow, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.Put(context.Background(), "u1", "tok2", testNow, 0))

	mock.ExpectQuery(q(getRefreshQuery)).WithArgs("u1", testNow).
		WillReturnRows(sqlmock.NewRows([]string{"token"}).AddRow("tok2"))
	got, err := s.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "tok2", got)

	mock.ExpectQuery(q(getRefreshQuery)).WithArgs("u2", testNow).WillReturnRows(sqlmock.NewRows([]string{"token"}))
	got, err = s.Get(context.Background(), "u2")
	require.NoError(t, err)
	assert.Empty(t, got)

	mock.ExpectExec(q(deleteRefreshQuery)).WithArgs("u1").WillReturnError(errors.New("down"))
	assert.ErrorIs(t, s.Delete(context.Background(), "u1"), ErrUnavailable)

	assert.Error(t, s.Put(context.Background(), "", "tok", testNow, time.Hour))
}

func TestPreferenceStore(t *testing.T) {
	db, mock := newMock(t)
	s := NewPreferenceStore(db)

	mock.ExpectQuery(q(getPreferenceQuery)).WithArgs("u1").WillReturnRows(sqlmock.NewRows([]string{"enable_context_based_auth"}))
	_, found, err := s.ContextAuthEnabled(context.Background(), "u1")
	require.NoError(t, err)
	assert.False(t, found)

	mock.ExpectExec(q(setPreferenceQuery)).WithArgs("u1", false).WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.SetContextAuthEnabled(context.Background(), "u1", false))

	mock.ExpectQuery(q(getPreferenceQuery)).WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"enable_context_based_auth"}).AddRow(false))
	enabled, found, err := s.ContextAuthEnabled(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.False(t, enabled)

	mock.ExpectQuery(q(getPreferenceQuery)).WithArgs("u1").WillReturnError(errors.New("down"))
	_, _, err = s.ContextAuthEnabled(context.Background(), "u1")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestUserDirectory(t *testing.T) {
	db, mock := newMock(t)
	d := NewUserDirectory(db)

	mock.ExpectQuery(q(getUserByEmailQuery)).WithArgs("Alice@Example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "name", "role", "email_verified"}).
			AddRow("u1", "alice@example.com", "Alice", "general", true))
	u, err := d.GetUserByEmail(context.Background(), "Alice@Example.com")
	require.NoError(t, err)
	assert.Equal(t, ctxAuth.UserRecord{ID: "u1", Email: "alice@example.com", Name: "Alice", Role: "general", EmailVerified: true}, u)

	mock.ExpectQuery(q(getUserByEmailQuery)).WithArgs("ghost@example.com").WillReturnError(sql.ErrNoRows)
	_, err = d.GetUserByEmail(context.Background(), "ghost@example.com")
	assert.ErrorIs(t, err, ctxAuth.ErrUserNotFound)

	mock.ExpectExec(q(markEmailVerifiedQuery)).WithArgs("u1").WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, d.MarkEmailVerified(context.Background(), "u1"))

	mock.ExpectExec(q(markEmailVerifiedQuery)).WithArgs("u9").WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, d.MarkEmailVerified(context.Background(), "u9"), ctxAuth.ErrUserNotFound)
}

func TestMigrationsEmbedded(t *testing.T) {
	raw, err := migrations.ReadFile("migrations/00001_init.sql")
	require.NoError(t, err)
	body := string(raw)
	assert.Contains(t, body, "-- +goose Up")
	assert.Contains(t, body, "-- +goose Down")
	assert.Contains(t, body, "UNIQUE (user_id, fp_key)")
}
