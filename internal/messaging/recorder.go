package messaging

import (
	"context"
	"sync"

	"github.com/okothm/dawacall/internal/models"
)

// SentMessage is one delivery captured by a Recorder.
type SentMessage struct {
	To   string
	Body string
}

// Recorder is an in-memory Service used in tests and dry-run deployments.
// It records every send and can be told to fail specific recipients.
type Recorder struct {
	mu      sync.Mutex
	channel models.Channel
	sent    []SentMessage
	failFor map[string]error
}

// NewRecorder creates a recording gateway for the given channel.
func NewRecorder(channel models.Channel) *Recorder {
	return &Recorder{channel: channel, failFor: make(map[string]error)}
}

// FailFor makes Send return err for the given recipient.
func (r *Recorder) FailFor(to string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failFor[to] = err
}

func (r *Recorder) Channel() models.Channel { return r.channel }

func (r *Recorder) Send(ctx context.Context, to, body string) (Result, error) {
	if to == "" {
		return Result{}, ErrNoRecipient
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err, ok := r.failFor[to]; ok {
		return Result{}, err
	}
	r.sent = append(r.sent, SentMessage{To: to, Body: body})
	return Result{ProviderMessageID: "rec-" + to}, nil
}

// Sent returns a copy of everything delivered so far.
func (r *Recorder) Sent() []SentMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]SentMessage, len(r.sent))
	copy(out, r.sent)
	return out
}
