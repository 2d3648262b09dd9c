package ctxAuth

import (
	"context"

	"github.com/MrEthical07/ctxAuth/fingerprint"
)

type clientIPContextKey struct{}
type userAgentContextKey struct{}
type fingerprintContextKey struct{}

// WithClientIP attaches the caller's IP address to ctx. The Engine uses it
// to derive the network component of the login fingerprint and for audit
// logging.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithUserAgent attaches the HTTP User-Agent string to ctx. Used to derive
// the browser and OS components of the login fingerprint.
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	return context.WithValue(ctx, userAgentContextKey{}, userAgent)
}

// WithFingerprint attaches a precomputed fingerprint, overriding the one the
// engine would derive from the client IP and user agent.
func WithFingerprint(ctx context.Context, fp Fingerprint) context.Context {
	return context.WithValue(ctx, fingerprintContextKey{}, fp)
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

func userAgentFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	userAgent, _ := ctx.Value(userAgentContextKey{}).(string)
	return userAgent
}

// FingerprintFromContext returns the fingerprint set by [WithFingerprint],
// or derives one from the user agent and client IP on ctx.
func FingerprintFromContext(ctx context.Context) Fingerprint {
	if ctx != nil {
		if fp, ok := ctx.Value(fingerprintContextKey{}).(Fingerprint); ok {
			return fp.Normalized()
		}
	}
	return fingerprint.Build(userAgentFromContext(ctx), clientIPFromContext(ctx))
}
