package ctxAuth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	internalaudit "github.com/MrEthical07/ctxAuth/internal/audit"
	"github.com/MrEthical07/ctxAuth/jwt"
	"github.com/sirupsen/logrus"
)

// Engine is the context-based authentication core. It is safe for concurrent
// use once returned by [Builder.Build]; all state lives in the configured stores.
type Engine struct {
	config      Config
	users       UserDirectory
	trustStore  TrustStore
	challenges  ChallengeStore
	refresh     RefreshTokenStore
	preferences PreferenceStore
	mailer      Mailer
	mail        *mailRenderer
	accessJWT   *jwt.Manager
	refreshJWT  *jwt.Manager
	audit       *internalaudit.Dispatcher
	metrics     *Metrics
	logger      logrus.FieldLogger
	now         func() time.Time
}

// Close drains the audit dispatcher. The engine must not be used afterwards.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns how many audit events were dropped under backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// AuditDelivered returns how many audit events reached the sink.
func (e *Engine) AuditDelivered() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Delivered()
}

// MetricsSnapshot returns a copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Config returns a copy of the engine configuration with secrets removed.
func (e *Engine) Config() Config {
	if e == nil {
		return Config{}
	}
	cfg := cloneConfig(e.config)
	cfg.JWT.AccessSecret = nil
	cfg.JWT.RefreshSecret = nil
	return cfg
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) metricObserve(id MetricID, d time.Duration) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Observe(id, d)
}

func (e *Engine) clock() time.Time {
	if e.now != nil {
		return e.now()
	}
	return time.Now()
}

func (e *Engine) log() logrus.FieldLogger {
	if e.logger == nil {
		return logrus.StandardLogger()
	}
	return e.logger
}

func (e *Engine) ready() error {
	if e == nil || e.users == nil || e.trustStore == nil || e.challenges == nil ||
		e.refresh == nil || e.preferences == nil || e.accessJWT == nil || e.refreshJWT == nil {
		return ErrEngineNotReady
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// storeErr passes domain sentinels through and marks everything else as a
// transient persistence failure.
func storeErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrContextNotFound),
		errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrUserNotFound),
		errors.Is(err, ErrStoreUnavailable),
		IsChallengeFailure(err):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}
