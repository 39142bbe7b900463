package notify

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	appconfig "github.com/ignite/loyalty-rewards/internal/config"
	"github.com/ignite/loyalty-rewards/internal/pkg/logger"
)

// SESAPI is the subset of *sesv2.Client the notifier uses.
type SESAPI interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESNotifier sends plain-text offer emails through SES v2.
type SESNotifier struct {
	client  SESAPI
	from    string
	subject string
}

// NewSESNotifier builds an SES client from cfg. Static keys are used when set,
// otherwise the default credential chain.
func NewSESNotifier(ctx context.Context, cfg appconfig.SESConfig) (*SESNotifier, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	from := cfg.FromEmail
	if cfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", cfg.FromName, cfg.FromEmail)
	}
	return NewSESNotifierWithClient(sesv2.NewFromConfig(awsCfg), from, cfg.Subject), nil
}

// NewSESNotifierWithClient wraps an existing client.
func NewSESNotifierWithClient(client SESAPI, from, subject string) *SESNotifier {
	return &SESNotifier{client: client, from: from, subject: subject}
}

// Send emails msg.Text to msg.Email. An empty email returns ErrNoAddress.
func (n *SESNotifier) Send(ctx context.Context, msg Message) error {
	if msg.Email == "" {
		return ErrNoAddress
	}
	subject := msg.Subject
	if subject == "" {
		subject = n.subject
	}

	out, err := n.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(n.from),
		Destination:      &types.Destination{ToAddresses: []string{msg.Email}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(msg.Text), Charset: aws.String("UTF-8")},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("ses send failed: %w", err)
	}

	logger.Info("offer email sent", "email", msg.Email, "message_id", aws.ToString(out.MessageId))
	return nil
}
