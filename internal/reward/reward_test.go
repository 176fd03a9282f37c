package reward

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPGatewayReward(t *testing.T) {
	var got rewardRequest
	var gotAPIKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAPIKey = r.Header.Get("apiKey")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request failed: %v", err)
		}
		json.NewEncoder(w).Encode(rewardResponse{Status: "Sent"})
	}))
	defer srv.Close()

	gw, err := NewHTTPGateway(WithBaseURL(srv.URL), WithAPIKey("key-123"))
	if err != nil {
		t.Fatalf("NewHTTPGateway failed: %v", err)
	}

	if err := gw.Reward(context.Background(), "+254712345678", 10); err != nil {
		t.Fatalf("Reward failed: %v", err)
	}
	if gotAPIKey != "key-123" {
		t.Errorf("apiKey header = %q", gotAPIKey)
	}
	if got.PhoneNumber != "+254712345678" || got.Amount != 10 || got.Currency != "KES" {
		t.Errorf("request payload = %+v", got)
	}
}

func TestHTTPGatewayProviderErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "http error status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
		},
		{
			name: "provider error message",
			handler: func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(rewardResponse{Status: "Failed", Error: "insufficient float"})
			},
		},
		{
			name: "garbage body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("not json"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()
			gw, err := NewHTTPGateway(WithBaseURL(srv.URL), WithAPIKey("key"))
			if err != nil {
				t.Fatal(err)
			}
			if err := gw.Reward(context.Background(), "+254712345678", 10); err == nil {
				t.Error("expected provider error")
			}
		})
	}
}

func TestNewHTTPGatewayValidation(t *testing.T) {
	if _, err := NewHTTPGateway(WithAPIKey("key")); err == nil {
		t.Error("missing base URL accepted")
	}
	if _, err := NewHTTPGateway(WithBaseURL("https://airtime.example.com")); err == nil {
		t.Error("missing API key accepted")
	}
}

func TestHTTPGatewayCustomCurrency(t *testing.T) {
	var got rewardRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(rewardResponse{Status: "Sent"})
	}))
	defer srv.Close()

	gw, err := NewHTTPGateway(WithBaseURL(srv.URL), WithAPIKey("key"), WithCurrency("UGX"))
	if err != nil {
		t.Fatal(err)
	}
	if err := gw.Reward(context.Background(), "+256700000000", 500); err != nil {
		t.Fatal(err)
	}
	if got.Currency != "UGX" {
		t.Errorf("currency = %q", got.Currency)
	}
}

func TestMemoryGateway(t *testing.T) {
	gw := &MemoryGateway{}
	if err := gw.Reward(context.Background(), "+254712345678", 10); err != nil {
		t.Fatal(err)
	}
	rewards := gw.Rewards()
	if len(rewards) != 1 || rewards[0].Phone != "+254712345678" || rewards[0].Amount != 10 {
		t.Errorf("recorded rewards = %v", rewards)
	}
}
