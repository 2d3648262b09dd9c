package main

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	ctxAuth "github.com/MrEthical07/ctxAuth"
	"github.com/MrEthical07/ctxAuth/mailer"
	"gopkg.in/yaml.v3"
)

// Config is the server configuration. Values are layered: defaults, the
// optional YAML file, environment variables, then command-line flags.
type Config struct {
	Addr           string `yaml:"addr"`
	Dev            bool   `yaml:"dev"`
	TrustForwarded bool   `yaml:"trust_forwarded"`
	LogLevel       string `yaml:"log_level"`
	LogFormat      string `yaml:"log_format"`

	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	DatabaseURL   string `yaml:"database_url"`

	AccessSecret      string        `yaml:"access_secret"`
	RefreshSecret     string        `yaml:"refresh_secret"`
	AccessTTL         time.Duration `yaml:"access_ttl"`
	RefreshTTL        time.Duration `yaml:"refresh_ttl"`
	RotationThreshold time.Duration `yaml:"rotation_threshold"`

	ChallengeTTL         time.Duration `yaml:"challenge_ttl"`
	MaxAttempts          int           `yaml:"max_attempts"`
	RequireVerifiedEmail bool          `yaml:"require_verified_email"`

	AppName   string `yaml:"app_name"`
	ClientURL string `yaml:"client_url"`

	SMTP SMTPConfig `yaml:"smtp"`

	Audit    bool      `yaml:"audit"`
	DevUsers []DevUser `yaml:"dev_users"`
}

// SMTPConfig is the YAML form of mailer.SMTPConfig.
type SMTPConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`
	From           string `yaml:"from"`
	FromName       string `yaml:"from_name"`
	AllowPlaintext bool   `yaml:"allow_plaintext"`
}

// DevUser seeds the in-memory directory in dev mode.
type DevUser struct {
	ID       string `yaml:"id"`
	Email    string `yaml:"email"`
	Name     string `yaml:"name"`
	Role     string `yaml:"role"`
	Verified bool   `yaml:"verified"`
}

const (
	devAccessSecret  = "ctxauth-dev-access-secret"
	devRefreshSecret = "ctxauth-dev-refresh-secret"
)

func defaultConfig() Config {
	engine := ctxAuth.DefaultConfig()
	return Config{
		Addr:                 ":4000",
		LogLevel:             "info",
		LogFormat:            "text",
		AccessTTL:            engine.JWT.AccessTTL,
		RefreshTTL:           engine.JWT.RefreshTTL,
		RotationThreshold:    engine.JWT.RotationThreshold,
		ChallengeTTL:         engine.Challenge.TTL,
		MaxAttempts:          engine.Challenge.MaxAttempts,
		RequireVerifiedEmail: engine.Context.RequireVerifiedEmail,
		AppName:              engine.Mail.AppName,
		ClientURL:            engine.Mail.ClientURL,
		SMTP:                 SMTPConfig{Port: 587},
	}
}

// LoadConfig builds a Config from args and the environment.
func LoadConfig(args []string, getenv func(string) string) (Config, error) {
	cfg := defaultConfig()

	path := configPath(args)
	if path == "" {
		path = getenv("CTXAUTH_CONFIG")
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.applyEnv(getenv); err != nil {
		return Config{}, err
	}
	if err := cfg.parseFlags(args); err != nil {
		return Config{}, err
	}

	if cfg.Dev {
		if cfg.AccessSecret == "" {
			cfg.AccessSecret = devAccessSecret
		}
		if cfg.RefreshSecret == "" {
			cfg.RefreshSecret = devRefreshSecret
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

/*
====================================
ENVIRONMENT
====================================
*/

func (c *Config) applyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	var errs []error
	num := func(key string, dst *int) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	boolean := func(key string, dst *bool) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	if port := strings.TrimSpace(getenv("PORT")); port != "" {
		c.Addr = ":" + port
	}
	boolean("CTXAUTH_DEV", &c.Dev)
	str("LOG_LEVEL", &c.LogLevel)
	str("REDIS_ADDR", &c.RedisAddr)
	str("REDIS_PASSWORD", &c.RedisPassword)
	num("REDIS_DB", &c.RedisDB)
	str("DATABASE_URL", &c.DatabaseURL)
	str("SECRET", &c.AccessSecret)
	str("REFRESH_SECRET", &c.RefreshSecret)
	str("APP_NAME", &c.AppName)
	str("CLIENT_URL", &c.ClientURL)
	str("SMTP_HOST", &c.SMTP.Host)
	num("SMTP_PORT", &c.SMTP.Port)
	str("SMTP_USERNAME", &c.SMTP.Username)
	str("SMTP_PASSWORD", &c.SMTP.Password)
	str("EMAIL_FROM", &c.SMTP.From)

	return errors.Join(errs...)
}

/*
====================================
FLAGS
====================================
*/

func (c *Config) parseFlags(args []string) error {
	fs := flag.NewFlagSet("ctxauth-server", flag.ContinueOnError)

	fs.String("config", "", "path to a YAML config file")
	fs.StringVar(&c.Addr, "addr", c.Addr, "listen address")
	fs.BoolVar(&c.Dev, "dev", c.Dev, "run with embedded Redis, in-memory users and logged mail")
	fs.BoolVar(&c.TrustForwarded, "trust-forwarded", c.TrustForwarded, "take the client IP from X-Forwarded-For")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "logrus level")
	fs.StringVar(&c.LogFormat, "log-format", c.LogFormat, "text or json")
	fs.StringVar(&c.RedisAddr, "redis-addr", c.RedisAddr, "Redis address")
	fs.StringVar(&c.DatabaseURL, "database-url", c.DatabaseURL, "PostgreSQL DSN")
	fs.StringVar(&c.ClientURL, "client-url", c.ClientURL, "base URL of the links in emails")
	fs.DurationVar(&c.AccessTTL, "access-ttl", c.AccessTTL, "access token lifetime")
	fs.DurationVar(&c.ChallengeTTL, "challenge-ttl", c.ChallengeTTL, "verification code lifetime")
	fs.BoolVar(&c.Audit, "audit", c.Audit, "write audit events to stdout as JSON")

	return fs.Parse(args)
}

// configPath finds -config before the full flag parse so that flags can
// override file values.
func configPath(args []string) string {
	for i, arg := range args {
		name, value, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if !strings.HasPrefix(arg, "-") || name != "config" {
			continue
		}
		if hasValue {
			return value
		}
		if i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

// Validate reports settings the engine cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return errors.New("addr is required")
	}
	if !c.Dev {
		if c.RedisAddr == "" {
			return errors.New("redis_addr is required outside dev mode")
		}
		if c.DatabaseURL == "" {
			return errors.New("database_url is required outside dev mode")
		}
	}
	if c.SMTP.Host != "" && c.SMTP.From == "" {
		return errors.New("smtp.from is required when smtp.host is set")
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("unknown log_format %q", c.LogFormat)
	}

	engine := c.EngineConfig()
	return engine.Validate()
}

// EngineConfig maps the server settings onto the engine configuration.
func (c *Config) EngineConfig() ctxAuth.Config {
	cfg := ctxAuth.DefaultConfig()
	cfg.JWT.AccessSecret = []byte(c.AccessSecret)
	cfg.JWT.RefreshSecret = []byte(c.RefreshSecret)
	cfg.JWT.AccessTTL = c.AccessTTL
	cfg.JWT.RefreshTTL = c.RefreshTTL
	cfg.JWT.RotationThreshold = c.RotationThreshold
	cfg.Challenge.TTL = c.ChallengeTTL
	cfg.Challenge.MaxAttempts = c.MaxAttempts
	cfg.Context.RequireVerifiedEmail = c.RequireVerifiedEmail
	cfg.Mail.AppName = c.AppName
	cfg.Mail.ClientURL = c.ClientURL
	cfg.Audit.Enabled = c.Audit
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true
	return cfg
}

// MailerConfig returns the SMTP settings, or ok=false when no host is set.
func (c *Config) MailerConfig() (mailer.SMTPConfig, bool) {
	if c.SMTP.Host == "" {
		return mailer.SMTPConfig{}, false
	}
	return mailer.SMTPConfig{
		Host:           c.SMTP.Host,
		Port:           c.SMTP.Port,
		Username:       c.SMTP.Username,
		Password:       c.SMTP.Password,
		From:           c.SMTP.From,
		FromName:       c.SMTP.FromName,
		AllowPlaintext: c.SMTP.AllowPlaintext,
	}, true
}

// Users returns the dev-mode directory seed.
func (c *Config) Users() []ctxAuth.UserRecord {
	out := make([]ctxAuth.UserRecord, 0, len(c.DevUsers))
	for _, u := range c.DevUsers {
		out = append(out, ctxAuth.UserRecord{
			ID:            u.ID,
			Email:         u.Email,
			Name:          u.Name,
			Role:          u.Role,
			EmailVerified: u.Verified,
		})
	}
	return out
}
