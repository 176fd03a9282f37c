// Package messaging provides pluggable notification gateways for supplier
// alert delivery.
package messaging

import (
	"context"
	"errors"

	"github.com/okothm/dawacall/internal/models"
)

// ErrNoRecipient is returned when a supplier has no address for the channel.
var ErrNoRecipient = errors.New("recipient address is empty")

// Result carries the provider's acknowledgement of one delivery attempt.
type Result struct {
	ProviderMessageID string
	Cost              float64
}

// Service is a notification gateway for one channel. Send either delivers
// the message or returns an error with a human-readable reason; both
// outcomes end up in the delivery log.
type Service interface {
	// Channel reports which notification channel this gateway serves.
	Channel() models.Channel

	// Send delivers one message to a recipient address (phone number or
	// email address, depending on the channel).
	Send(ctx context.Context, to, body string) (Result, error)
}
