package ctxAuth

import (
	"context"
	"strings"

	"github.com/MrEthical07/ctxAuth/trust"
)

// ContextData lists the authenticated user's contexts of the given kind,
// most recently seen first.
func (e *Engine) ContextData(ctx context.Context, userID string, kind ContextKind) ([]TrustRecord, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if userID == "" {
		return nil, ErrUnauthenticated
	}

	var (
		records []TrustRecord
		err     error
	)
	switch kind {
	case ContextPrimary, "":
		records, err = trust.ListPrimary(ctx, e.trustStore, userID)
	case ContextTrusted:
		records, err = trust.ListByState(ctx, e.trustStore, userID, trust.StateTrusted)
	case ContextBlocked:
		records, err = trust.ListByState(ctx, e.trustStore, userID, trust.StateBlocked)
	case ContextPending:
		records, err = trust.ListByState(ctx, e.trustStore, userID, trust.StatePending)
	default:
		return nil, ErrInvalidContextKind
	}
	if err != nil {
		return nil, storeErr(err)
	}
	if records == nil {
		records = []TrustRecord{}
	}
	return records, nil
}

// DeleteContext removes one of the user's contexts. A later login from the
// same fingerprint starts over as pending.
func (e *Engine) DeleteContext(ctx context.Context, userID, contextID string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if userID == "" {
		return ErrUnauthenticated
	}
	contextID = strings.TrimSpace(contextID)
	if contextID == "" {
		return ErrContextNotFound
	}

	if err := e.trustStore.Delete(ctx, userID, contextID); err != nil {
		err = storeErr(err)
		e.emitAudit(ctx, auditEventContextDeleted, false, userID, contextID, err, nil)
		return err
	}

	e.metricInc(MetricContextDeleted)
	e.emitAudit(ctx, auditEventContextDeleted, true, userID, contextID, nil, nil)
	return nil
}

// BlockContext blocks one of the user's contexts, whatever its state.
func (e *Engine) BlockContext(ctx context.Context, userID, contextID string) (*TrustRecord, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if userID == "" {
		return nil, ErrUnauthenticated
	}

	record, err := trust.Block(ctx, e.trustStore, userID, strings.TrimSpace(contextID), e.clock())
	if err != nil {
		err = storeErr(err)
		e.emitAudit(ctx, auditEventContextBlocked, false, userID, contextID, err, nil)
		return nil, err
	}

	e.metricInc(MetricContextBlocked)
	e.emitAudit(ctx, auditEventContextBlocked, true, userID, record.ID, nil, nil)
	return record, nil
}

// UnblockContext returns a blocked context to pending. The next login from
// it is challenged again rather than trusted.
func (e *Engine) UnblockContext(ctx context.Context, userID, contextID string) (*TrustRecord, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if userID == "" {
		return nil, ErrUnauthenticated
	}

	record, err := trust.Unblock(ctx, e.trustStore, userID, strings.TrimSpace(contextID), e.clock())
	if err != nil {
		err = storeErr(err)
		e.emitAudit(ctx, auditEventContextUnblocked, false, userID, contextID, err, nil)
		return nil, err
	}

	e.metricInc(MetricContextUnblocked)
	e.emitAudit(ctx, auditEventContextUnblocked, true, userID, record.ID, nil, nil)
	return record, nil
}
