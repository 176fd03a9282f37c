// Package reward integrates the airtime reward gateway that credits
// reporters for confirmed shortage alerts.
package reward

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// DefaultRequestTimeout bounds one reward API call.
const DefaultRequestTimeout = 10 * time.Second

// DefaultCurrency is the currency code sent with reward requests.
const DefaultCurrency = "KES"

// Gateway credits airtime to a phone number. Reward failures are logged by
// callers, never surfaced to the USSD caller.
type Gateway interface {
	Reward(ctx context.Context, phone string, amount float64) error
}

// Opts holds configuration options for the HTTP reward gateway.
type Opts struct {
	BaseURL  string
	APIKey   string
	Currency string
	Client   *http.Client
}

// Option defines a configuration option for the HTTP reward gateway.
type Option func(*Opts)

// WithBaseURL sets the airtime provider endpoint.
func WithBaseURL(url string) Option {
	return func(o *Opts) { o.BaseURL = url }
}

// WithAPIKey sets the provider API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithCurrency overrides the reward currency code.
func WithCurrency(code string) Option {
	return func(o *Opts) { o.Currency = code }
}

// WithHTTPClient injects the HTTP client, for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) { o.Client = c }
}

// HTTPGateway talks to an airtime top-up provider over its JSON API.
// Credentials are explicit constructor configuration.
type HTTPGateway struct {
	baseURL  string
	apiKey   string
	currency string
	client   *http.Client
}

// NewHTTPGateway creates an airtime gateway from explicit configuration.
func NewHTTPGateway(opts ...Option) (*HTTPGateway, error) {
	cfg := Opts{Currency: DefaultCurrency}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("reward gateway base URL must be provided")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("reward gateway API key must be provided")
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: DefaultRequestTimeout}
	}
	return &HTTPGateway{baseURL: cfg.BaseURL, apiKey: cfg.APIKey, currency: cfg.Currency, client: client}, nil
}

type rewardRequest struct {
	PhoneNumber string  `json:"phoneNumber"`
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currencyCode"`
}

type rewardResponse struct {
	Status string `json:"status"`
	Error  string `json:"errorMessage,omitempty"`
}

// Reward credits airtime worth amount to phone.
func (g *HTTPGateway) Reward(ctx context.Context, phone string, amount float64) error {
	body, err := json.Marshal(rewardRequest{PhoneNumber: phone, Amount: amount, Currency: g.currency})
	if err != nil {
		return fmt.Errorf("failed to encode reward request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build reward request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apiKey", g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("reward request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("reward provider returned status %d", resp.StatusCode)
	}

	var out rewardResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("failed to decode reward response: %w", err)
	}
	if out.Error != "" {
		return fmt.Errorf("reward provider error: %s", out.Error)
	}
	slog.Debug("HTTPGateway Reward succeeded", "phone", phone, "amount", amount, "status", out.Status)
	return nil
}

// NoopGateway logs reward requests without calling any provider. Used when
// airtime credentials are not configured.
type NoopGateway struct{}

func (NoopGateway) Reward(ctx context.Context, phone string, amount float64) error {
	slog.Info("NoopGateway: reward skipped (no airtime provider configured)", "phone", phone, "amount", amount)
	return nil
}

// MemoryGateway records rewards for tests and can be told to fail.
type MemoryGateway struct {
	mu      sync.Mutex
	Err     error
	rewards []RecordedReward
}

// RecordedReward is one reward captured by a MemoryGateway.
type RecordedReward struct {
	Phone  string
	Amount float64
}

func (g *MemoryGateway) Reward(ctx context.Context, phone string, amount float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Err != nil {
		return g.Err
	}
	g.rewards = append(g.rewards, RecordedReward{Phone: phone, Amount: amount})
	return nil
}

// Rewards returns a copy of everything credited so far.
func (g *MemoryGateway) Rewards() []RecordedReward {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]RecordedReward, len(g.rewards))
	copy(out, g.rewards)
	return out
}
