package notify

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
	"go.uber.org/zap"

	"github.com/meridian-commerce/customer-auth/internal/core/port"
	"github.com/meridian-commerce/customer-auth/internal/infra/logger"
)

// AWSNotifier delivers reset emails through SES and MFA codes through SNS.
type AWSNotifier struct {
	sesClient    *ses.Client
	snsClient    *sns.Client
	fromAddress  string
	resetBaseURL string
	logger       *zap.Logger
}

var _ port.Notifier = (*AWSNotifier)(nil)

// NewAWSNotifier creates a notifier backed by AWS messaging services.
func NewAWSNotifier(region, fromAddress, resetBaseURL string, log *zap.Logger) (*AWSNotifier, error) {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &AWSNotifier{
		sesClient:    ses.NewFromConfig(cfg),
		snsClient:    sns.NewFromConfig(cfg),
		fromAddress:  fromAddress,
		resetBaseURL: resetBaseURL,
		logger:       log,
	}, nil
}

// SendSMSCode delivers a one-time sign-in code as a transactional SMS.
func (n *AWSNotifier) SendSMSCode(ctx context.Context, phone string, code string) error {
	message := fmt.Sprintf("Your Meridian sign-in code is %s. It expires in 5 minutes.", code)

	_, err := n.snsClient.Publish(ctx, &sns.PublishInput{
		PhoneNumber: aws.String(phone),
		Message:     aws.String(message),
		MessageAttributes: map[string]snstypes.MessageAttributeValue{
			"AWS.SNS.SMS.SMSType": {
				DataType:    aws.String("String"),
				StringValue: aws.String("Transactional"),
			},
		},
	})
	if err != nil {
		n.logger.Error("failed to send SMS code",
			zap.String("phone", logger.MaskPhone(phone)),
			zap.Error(err))
		return fmt.Errorf("publish sms: %w", err)
	}

	n.logger.Info("SMS code sent", zap.String("phone", logger.MaskPhone(phone)))
	return nil
}

// SendResetEmail delivers a password reset link.
func (n *AWSNotifier) SendResetEmail(ctx context.Context, email string, token string) error {
	resetLink := fmt.Sprintf("%s/%s", n.resetBaseURL, token)

	htmlBody := fmt.Sprintf(`<p>We received a request to reset the password for your account.</p>
<p><a href="%s">Reset your password</a></p>
<p>This link expires in 1 hour and can be used once. If you did not request a reset, you can ignore this email.</p>`, resetLink)

	textBody := fmt.Sprintf(`We received a request to reset the password for your account.

%s

This link expires in 1 hour and can be used once. If you did not request a reset, you can ignore this email.
`, resetLink)

	input := &ses.SendEmailInput{
		Source: aws.String(n.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{email},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String("Reset your password"),
			},
			Body: &types.Body{
				Html: &types.Content{
					Data: aws.String(htmlBody),
				},
				Text: &types.Content{
					Data: aws.String(textBody),
				},
			},
		},
	}

	result, err := n.sesClient.SendEmail(ctx, input)
	if err != nil {
		n.logger.Error("failed to send reset email",
			zap.String("email", logger.MaskEmail(email)),
			zap.Error(err))
		return fmt.Errorf("send email: %w", err)
	}

	n.logger.Info("reset email sent",
		zap.String("email", logger.MaskEmail(email)),
		zap.String("message_id", aws.ToString(result.MessageId)))
	return nil
}
