// Package messaging provides pluggable notification gateways.
//
// This file wraps the Twilio REST API for the SMS channel.
package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/okothm/dawacall/internal/models"
)

// TwilioOpts holds configuration options for the Twilio SMS gateway.
type TwilioOpts struct {
	AccountSID string
	AuthToken  string
	FromNumber string
}

// TwilioOption defines a configuration option for the Twilio SMS gateway.
type TwilioOption func(*TwilioOpts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) TwilioOption {
	return func(o *TwilioOpts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token.
func WithAuthToken(token string) TwilioOption {
	return func(o *TwilioOpts) { o.AuthToken = token }
}

// WithFromNumber sets the sender phone number.
func WithFromNumber(from string) TwilioOption {
	return func(o *TwilioOpts) { o.FromNumber = from }
}

// smsCreator is the slice of the Twilio client the sender uses; swapped for
// a fake in tests.
type smsCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// TwilioSender delivers supplier alerts over SMS via Twilio.
type TwilioSender struct {
	api  smsCreator
	from string
}

// NewTwilioSender creates an SMS gateway from explicit configuration.
// Credentials are injected at construction, never read from ambient process
// state here.
func NewTwilioSender(opts ...TwilioOption) (*TwilioSender, error) {
	var cfg TwilioOpts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("TwilioSender config loaded",
		"AccountSID_set", cfg.AccountSID != "",
		"AuthToken_set", cfg.AuthToken != "",
		"FromNumber_set", cfg.FromNumber != "")

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if cfg.FromNumber == "" {
		return nil, fmt.Errorf("from number must be provided")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &TwilioSender{api: client.Api, from: cfg.FromNumber}, nil
}

// Channel reports the SMS channel.
func (s *TwilioSender) Channel() models.Channel { return models.ChannelSMS }

// Send delivers one SMS and returns the provider message SID and cost.
func (s *TwilioSender) Send(ctx context.Context, to, body string) (Result, error) {
	if to == "" {
		return Result{}, ErrNoRecipient
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(s.from)
	params.SetBody(body)

	msg, err := s.api.CreateMessage(params)
	if err != nil {
		slog.Error("TwilioSender Send failed", "error", err, "to", to)
		return Result{}, fmt.Errorf("twilio send to %s failed: %w", to, err)
	}

	var res Result
	if msg.Sid != nil {
		res.ProviderMessageID = *msg.Sid
	}
	if msg.Price != nil {
		// Twilio reports price as a negative decimal string.
		if price, perr := strconv.ParseFloat(*msg.Price, 64); perr == nil {
			res.Cost = math.Abs(price)
		}
	}
	slog.Debug("TwilioSender Send succeeded", "to", to, "sid", res.ProviderMessageID)
	return res, nil
}
