package ctxAuth

import (
	"errors"
	"net/url"
	"strings"
	"time"
)

// Config holds every engine setting. Build a Config from [DefaultConfig],
// override what you need, and pass it to [Builder.WithConfig].
type Config struct {
	JWT       JWTConfig
	Challenge ChallengeConfig
	Context   ContextConfig
	Mail      MailConfig
	Redis     RedisConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures the two token managers. AccessSecret and RefreshSecret
// must differ so that neither token kind verifies as the other.
type JWTConfig struct {
	AccessTTL         time.Duration
	RefreshTTL        time.Duration
	RotationThreshold time.Duration
	AccessSecret      []byte
	RefreshSecret     []byte
	Issuer            string
	Leeway            time.Duration
}

/*
====================================
CHALLENGE CONFIG
====================================
*/

// ChallengeConfig bounds the verification code lifecycle.
type ChallengeConfig struct {
	TTL         time.Duration
	MaxAttempts int
}

/*
====================================
CONTEXT CONFIG
====================================
*/

// ContextConfig controls the login gateway.
type ContextConfig struct {
	// RequireVerifiedEmail rejects logins for users whose email is unverified.
	RequireVerifiedEmail bool
	// DefaultEnabled is the context-auth flag assumed for users with no stored preference.
	DefaultEnabled bool
}

/*
====================================
MAIL CONFIG
====================================
*/

// MailConfig controls challenge email rendering and delivery.
type MailConfig struct {
	AppName     string
	ClientURL   string
	SendTimeout time.Duration
}

/*
====================================
REDIS CONFIG
====================================
*/

// RedisConfig sets the key prefixes of the built-in Redis stores.
type RedisConfig struct {
	TrustPrefix      string
	ChallengePrefix  string
	RefreshPrefix    string
	PreferencePrefix string
}

/*
====================================
AUDIT & METRICS CONFIG
====================================
*/

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the production defaults. Secrets are left empty and
// must be supplied.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:         6 * time.Hour,
			RefreshTTL:        7 * 24 * time.Hour,
			RotationThreshold: 30 * time.Minute,
			Issuer:            "ctxauth",
		},
		Challenge: ChallengeConfig{
			TTL:         30 * time.Minute,
			MaxAttempts: 5,
		},
		Context: ContextConfig{
			RequireVerifiedEmail: true,
			DefaultEnabled:       true,
		},
		Mail: MailConfig{
			AppName:     "SocialEcho",
			ClientURL:   "http://localhost:3000",
			SendTimeout: 10 * time.Second,
		},
		Redis: RedisConfig{
			TrustPrefix:      "ctx",
			ChallengePrefix:  "acv",
			RefreshPrefix:    "rt",
			PreferencePrefix: "pref",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.AccessSecret = cloneBytes(cfg.JWT.AccessSecret)
	out.JWT.RefreshSecret = cloneBytes(cfg.JWT.RefreshSecret)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT RefreshTTL must be > 0")
	}
	if c.JWT.RotationThreshold < 0 {
		return errors.New("JWT RotationThreshold must be >= 0")
	}
	if c.JWT.RotationThreshold >= c.JWT.AccessTTL {
		return errors.New("JWT RotationThreshold must be shorter than AccessTTL")
	}
	if len(c.JWT.AccessSecret) == 0 {
		return errors.New("JWT AccessSecret is required")
	}
	if len(c.JWT.RefreshSecret) == 0 {
		return errors.New("JWT RefreshSecret is required")
	}
	if string(c.JWT.AccessSecret) == string(c.JWT.RefreshSecret) {
		return errors.New("JWT AccessSecret and RefreshSecret must differ")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}

	// Challenge
	if c.Challenge.TTL <= 0 {
		return errors.New("Challenge TTL must be > 0")
	}
	if c.Challenge.MaxAttempts < 0 {
		return errors.New("Challenge MaxAttempts must be >= 0")
	}

	// Mail
	if c.Mail.SendTimeout <= 0 {
		return errors.New("Mail SendTimeout must be > 0")
	}
	if strings.TrimSpace(c.Mail.ClientURL) == "" {
		return errors.New("Mail ClientURL is required")
	}
	if u, err := url.Parse(c.Mail.ClientURL); err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New("Mail ClientURL must be an absolute URL")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	return nil
}
