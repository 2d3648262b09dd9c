package ctxAuth

import (
	"context"
	"strconv"
)

// ContextAuthEnabled reports whether logins for userID go through context
// classification. Users with no stored preference get ContextConfig.DefaultEnabled.
func (e *Engine) ContextAuthEnabled(ctx context.Context, userID string) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}
	if userID == "" {
		return false, ErrUnauthenticated
	}
	return e.contextAuthEnabled(ctx, userID)
}

func (e *Engine) contextAuthEnabled(ctx context.Context, userID string) (bool, error) {
	enabled, found, err := e.preferences.ContextAuthEnabled(ctx, userID)
	if err != nil {
		return false, storeErr(err)
	}
	if !found {
		return e.config.Context.DefaultEnabled, nil
	}
	return enabled, nil
}

// SetContextAuthEnabled stores the user's preference. Disabling it makes
// Login issue credentials without consulting or recording contexts.
func (e *Engine) SetContextAuthEnabled(ctx context.Context, userID string, enabled bool) error {
	if err := e.ready(); err != nil {
		return err
	}
	if userID == "" {
		return ErrUnauthenticated
	}

	if err := e.preferences.SetContextAuthEnabled(ctx, userID, enabled); err != nil {
		err = storeErr(err)
		e.emitAudit(ctx, auditEventPreferenceChanged, false, userID, "", err, nil)
		return err
	}

	e.emitAudit(ctx, auditEventPreferenceChanged, true, userID, "", nil, func() map[string]string {
		return map[string]string{"enabled": strconv.FormatBool(enabled)}
	})
	return nil
}
