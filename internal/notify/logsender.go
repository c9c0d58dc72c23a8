package notify

import (
	"context"

	"go.uber.org/zap"

	"storefront/internal/util"
)

// LogSender stands in for SMS and email transports that are not configured.
// Messages are written to the log and reported as delivered.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender creates a log-only sender
func NewLogSender() *LogSender {
	return &LogSender{logger: util.GetLogger()}
}

// SendSMS logs the message
func (s *LogSender) SendSMS(ctx context.Context, phone, message string) error {
	s.logger.Info("SMS (not sent, transport disabled)",
		zap.String("phone", phone),
		zap.String("message", message))
	return nil
}

// SendAdminEmail logs the email
func (s *LogSender) SendAdminEmail(ctx context.Context, subject, body string) error {
	s.logger.Info("Admin email (not sent, transport disabled)",
		zap.String("subject", subject),
		zap.String("body", body))
	return nil
}
