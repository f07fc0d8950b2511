package mailer

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"go.uber.org/zap"

	"github.com/clubmatch/clubmatch/internal/template"
)

// SESClient sends mail through AWS SES. Deployments that cannot reach the
// HTTP provider select this transport via MAIL_PROVIDER=ses.
type SESClient struct {
	client  *ses.Client
	from    string
	replyTo string
	logger  *zap.Logger
}

type SESConfig struct {
	Region  string
	From    string
	ReplyTo string
}

func NewSESClient(ctx context.Context, cfg SESConfig, logger *zap.Logger) (*SESClient, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load default AWS config: %w", err)
	}

	return &SESClient{
		client:  ses.NewFromConfig(awsCfg),
		from:    cfg.From,
		replyTo: cfg.ReplyTo,
		logger:  logger,
	}, nil
}

// Send issues exactly one SES SendEmail call.
func (c *SESClient) Send(ctx context.Context, to string, msg *template.Message) (*Result, error) {
	if err := ValidateAddress(to); err != nil {
		return nil, err
	}

	input := &ses.SendEmailInput{
		Source: aws.String(c.from),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    aws.String(msg.Subject),
				Charset: aws.String("UTF-8"),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data:    aws.String(msg.Text),
					Charset: aws.String("UTF-8"),
				},
				Html: &types.Content{
					Data:    aws.String(msg.HTML),
					Charset: aws.String("UTF-8"),
				},
			},
		},
	}
	if c.replyTo != "" {
		input.ReplyToAddresses = []string{c.replyTo}
	}

	result, err := c.client.SendEmail(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("ses send failed: %w", err)
	}

	messageID := ""
	if result.MessageId != nil {
		messageID = *result.MessageId
	}

	c.logger.Info("email sent via SES",
		zap.String("to", to),
		zap.String("subject", msg.Subject),
		zap.String("message_id", messageID),
	)

	return &Result{MessageID: messageID}, nil
}
