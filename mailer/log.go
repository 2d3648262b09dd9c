package mailer

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// LogMailer writes messages to a logger instead of sending them. Use it for
// local development only: the body contains live verification codes.
type LogMailer struct {
	logger logrus.FieldLogger
}

// NewLogMailer returns a LogMailer; a nil logger uses logrus.StandardLogger().
func NewLogMailer(logger logrus.FieldLogger) *LogMailer {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LogMailer{logger: logger}
}

// Send logs the message and returns a random message id.
func (m *LogMailer) Send(_ context.Context, to, subject, htmlBody string) (string, error) {
	id := "<" + uuid.NewString() + "@ctxauth.local>"
	m.logger.WithFields(logrus.Fields{
		"to":         to,
		"subject":    subject,
		"message_id": id,
	}).Info(htmlBody)
	return id, nil
}
