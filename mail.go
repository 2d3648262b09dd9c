package ctxAuth

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/url"
	"strings"
	"time"
)

// Mailer delivers challenge emails. Send must honor ctx cancellation and
// return a non-nil error whenever the message was not accepted for delivery.
// The returned id is the transport's message identifier, if any.
type Mailer interface {
	Send(ctx context.Context, to, subject, htmlBody string) (string, error)
}

// MailerFunc adapts a function to [Mailer].
type MailerFunc func(ctx context.Context, to, subject, htmlBody string) (string, error)

// Send calls f.
func (f MailerFunc) Send(ctx context.Context, to, subject, htmlBody string) (string, error) {
	return f(ctx, to, subject, htmlBody)
}

const signupMailTemplate = `<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
<h2>Welcome to {{.AppName}}, {{.Name}}!</h2>
<p>Please confirm your email address to finish setting up your account.</p>
<p><a href="{{.VerifyURL}}" style="background:#1e88e5;color:#fff;padding:10px 16px;text-decoration:none;border-radius:4px;">Verify email</a></p>
<p>Or enter this code: <strong>{{.Code}}</strong></p>
<p>The code expires in {{.ExpiresIn}}. If you did not create an account you can ignore this email.</p>
</body>
</html>`

const loginMailTemplate = `<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
<h2>New sign-in to your {{.AppName}} account</h2>
<p>Hi {{.Name}}, we noticed a sign-in from a context we do not recognize.</p>
<table style="border-collapse: collapse;">
<tr><td style="padding:4px 12px 4px 0;">Time</td><td>{{.When}}</td></tr>
<tr><td style="padding:4px 12px 4px 0;">Browser</td><td>{{.Browser}}</td></tr>
<tr><td style="padding:4px 12px 4px 0;">Operating system</td><td>{{.OS}}</td></tr>
<tr><td style="padding:4px 12px 4px 0;">Network</td><td>{{.Network}}</td></tr>
</table>
<p>If this was you, confirm the sign-in with code <strong>{{.Code}}</strong> or the link below.</p>
<p><a href="{{.VerifyURL}}" style="background:#43a047;color:#fff;padding:10px 16px;text-decoration:none;border-radius:4px;">Yes, it was me</a></p>
<p>If this was not you, block this context so it can never sign in.</p>
<p><a href="{{.BlockURL}}" style="background:#e53935;color:#fff;padding:10px 16px;text-decoration:none;border-radius:4px;">No, block it</a></p>
<p>The code expires in {{.ExpiresIn}}.</p>
</body>
</html>`

type signupMail struct {
	AppName   string
	Name      string
	Code      string
	VerifyURL string
	ExpiresIn string
}

type loginMail struct {
	AppName   string
	Name      string
	Code      string
	When      string
	Browser   string
	OS        string
	Network   string
	VerifyURL string
	BlockURL  string
	ExpiresIn string
}

type mailRenderer struct {
	appName   string
	clientURL string
	signup    *template.Template
	login     *template.Template
}

func newMailRenderer(cfg MailConfig) (*mailRenderer, error) {
	signup, err := template.New("signup").Parse(signupMailTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse signup mail template: %w", err)
	}
	login, err := template.New("login").Parse(loginMailTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse login mail template: %w", err)
	}

	appName := strings.TrimSpace(cfg.AppName)
	if appName == "" {
		appName = defaultConfig().Mail.AppName
	}

	return &mailRenderer{
		appName:   appName,
		clientURL: strings.TrimRight(cfg.ClientURL, "/"),
		signup:    signup,
		login:     login,
	}, nil
}

func (r *mailRenderer) link(path string, query url.Values) string {
	return r.clientURL + path + "?" + query.Encode()
}

func (r *mailRenderer) renderSignup(email, name, code string, ttl time.Duration) (string, string, error) {
	if name == "" {
		name = email
	}
	data := signupMail{
		AppName:   r.appName,
		Name:      name,
		Code:      code,
		VerifyURL: r.link("/auth/verify", url.Values{"code": {code}, "email": {email}}),
		ExpiresIn: humanDuration(ttl),
	}

	var buf bytes.Buffer
	if err := r.signup.Execute(&buf, data); err != nil {
		return "", "", err
	}
	return "Verify your email address", buf.String(), nil
}

func (r *mailRenderer) renderLogin(user UserRecord, record *TrustRecord, code string, ttl time.Duration) (string, string, error) {
	name := user.Name
	if name == "" {
		name = user.Email
	}
	data := loginMail{
		AppName:   r.appName,
		Name:      name,
		Code:      code,
		When:      record.LastSeenAt.UTC().Format(time.RFC1123),
		Browser:   record.Fingerprint.BrowserFamily,
		OS:        record.Fingerprint.OSFamily,
		Network:   record.Fingerprint.NetworkOrigin,
		VerifyURL: r.link("/auth/verify-login", url.Values{"code": {code}, "email": {user.Email}}),
		BlockURL:  r.link("/auth/block-login", url.Values{"contextId": {record.ID}, "email": {user.Email}}),
		ExpiresIn: humanDuration(ttl),
	}

	var buf bytes.Buffer
	if err := r.login.Execute(&buf, data); err != nil {
		return "", "", err
	}
	return "New sign-in detected on your account", buf.String(), nil
}

func humanDuration(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		if d == time.Hour {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", d/time.Hour)
	case d >= time.Minute && d%time.Minute == 0:
		if d == time.Minute {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", d/time.Minute)
	default:
		return d.String()
	}
}
