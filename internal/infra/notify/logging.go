package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/meridian-commerce/customer-auth/internal/core/port"
	"github.com/meridian-commerce/customer-auth/internal/infra/logger"
)

// LogNotifier records outbound messages instead of delivering them.
// Useful for development environments without AWS credentials.
type LogNotifier struct {
	logger *zap.Logger
}

var _ port.Notifier = (*LogNotifier)(nil)

// NewLogNotifier constructs a logging-only notifier.
func NewLogNotifier(log *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: log}
}

func (n *LogNotifier) SendSMSCode(_ context.Context, phone string, code string) error {
	n.logger.Info("SMS code (log only)",
		zap.String("phone", logger.MaskPhone(phone)),
		zap.String("code", code),
	)
	return nil
}

func (n *LogNotifier) SendResetEmail(_ context.Context, email string, token string) error {
	n.logger.Info("reset email (log only)",
		zap.String("email", logger.MaskEmail(email)),
		zap.String("token", logger.MaskString(token)),
	)
	return nil
}
