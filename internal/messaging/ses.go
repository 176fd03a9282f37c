// Package messaging provides pluggable notification gateways.
//
// This file implements the email channel on AWS SES.
package messaging

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"github.com/okothm/dawacall/internal/models"
)

// DefaultEmailSubject heads every supplier alert email.
const DefaultEmailSubject = "Drug shortage alert"

// SESOpts holds configuration options for the SES email gateway.
type SESOpts struct {
	Region    string
	FromEmail string
	Subject   string
}

// SESOption defines a configuration option for the SES email gateway.
type SESOption func(*SESOpts)

// WithRegion sets the AWS region.
func WithRegion(region string) SESOption {
	return func(o *SESOpts) { o.Region = region }
}

// WithFromEmail sets the verified sender address.
func WithFromEmail(from string) SESOption {
	return func(o *SESOpts) { o.FromEmail = from }
}

// WithSubject overrides the alert email subject line.
func WithSubject(subject string) SESOption {
	return func(o *SESOpts) { o.Subject = subject }
}

// emailAPI is the slice of the SES client the sender uses; swapped for a
// fake in tests.
type emailAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESSender delivers supplier alerts over email via AWS SES.
type SESSender struct {
	client  emailAPI
	from    string
	subject string
}

// NewSESSender creates an email gateway. AWS credentials come from the
// default SDK chain; region and sender are explicit configuration.
func NewSESSender(ctx context.Context, opts ...SESOption) (*SESSender, error) {
	cfg := SESOpts{Subject: DefaultEmailSubject}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.FromEmail == "" {
		return nil, fmt.Errorf("from email must be provided")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &SESSender{
		client:  ses.NewFromConfig(awsCfg),
		from:    cfg.FromEmail,
		subject: cfg.Subject,
	}, nil
}

// Channel reports the email channel.
func (s *SESSender) Channel() models.Channel { return models.ChannelEmail }

// Send delivers one alert email and returns the SES message ID.
func (s *SESSender) Send(ctx context.Context, to, body string) (Result, error) {
	if to == "" {
		return Result{}, ErrNoRecipient
	}

	input := &ses.SendEmailInput{
		Source: aws.String(s.from),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(s.subject), Charset: aws.String("UTF-8")},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body), Charset: aws.String("UTF-8")},
			},
		},
	}

	out, err := s.client.SendEmail(ctx, input)
	if err != nil {
		slog.Error("SESSender Send failed", "error", err, "to", to)
		return Result{}, fmt.Errorf("ses send to %s failed: %w", to, err)
	}

	var res Result
	if out.MessageId != nil {
		res.ProviderMessageID = *out.MessageId
	}
	slog.Debug("SESSender Send succeeded", "to", to, "messageID", res.ProviderMessageID)
	return res, nil
}
