package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// SESNotifier delivers challenge emails using AWS SES
type SESNotifier struct {
	sesClient   *ses.Client
	fromAddress string
	logger      *slog.Logger
}

// NewSESNotifier creates a new AWS SES notifier
func NewSESNotifier(region, fromAddress string, logger *slog.Logger) (*SESNotifier, error) {
	cfg, err := config.LoadDefaultConfig(context.Background(), config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &SESNotifier{
		sesClient:   ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		logger:      logger,
	}, nil
}

// Send delivers an email via SES
func (s *SESNotifier) Send(ctx context.Context, to, subject, htmlBody, textBody string) error {
	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String(subject),
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

	result, err := s.sesClient.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("email sent", slog.String("message_id", *result.MessageId))
	return nil
}

// FallbackNotifier tries a primary sender and falls back to a secondary
// one before reporting delivery failure.
type FallbackNotifier struct {
	primary   Notifier
	secondary Notifier
	logger    *slog.Logger
}

// NewFallbackNotifier creates a new FallbackNotifier
func NewFallbackNotifier(primary, secondary Notifier, logger *slog.Logger) *FallbackNotifier {
	return &FallbackNotifier{
		primary:   primary,
		secondary: secondary,
		logger:    logger,
	}
}

// Send tries the primary channel, then the secondary.
func (n *FallbackNotifier) Send(ctx context.Context, to, subject, htmlBody, textBody string) error {
	err := n.primary.Send(ctx, to, subject, htmlBody, textBody)
	if err == nil {
		return nil
	}

	n.logger.Warn("primary delivery channel failed, trying fallback", slog.Any("error", err))

	if fbErr := n.secondary.Send(ctx, to, subject, htmlBody, textBody); fbErr != nil {
		return fmt.Errorf("fallback delivery failed: %w (primary: %v)", fbErr, err)
	}
	return nil
}
