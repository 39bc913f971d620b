package port

import "context"

// Notifier delivers customer-facing messages. Delivery is best effort;
// callers must not block authentication flows on the result.
type Notifier interface {
	SendSMSCode(ctx context.Context, phone string, code string) error
	SendResetEmail(ctx context.Context, email string, token string) error
}
