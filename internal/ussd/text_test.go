package ussd

import (
	"strings"
	"testing"

	"github.com/okothm/dawacall/internal/models"
)

func TestTruncateScreen(t *testing.T) {
	tests := []struct {
		name string
		text string
		max  int
		want string
	}{
		{name: "under limit unchanged", text: "short menu", max: 160, want: "short menu"},
		{name: "exactly at limit unchanged", text: strings.Repeat("a", 20), max: 20, want: strings.Repeat("a", 20)},
		{name: "cuts at word boundary", text: "Select drug category from the list below", max: 25, want: "Select drug category..."},
		{name: "cuts at newline boundary", text: "Main menu:\n1. Report drug shortage\n2. My alerts", max: 20, want: "Main menu:\n1...."},
		{name: "no limit passes through", text: strings.Repeat("x", 500), max: 0, want: strings.Repeat("x", 500)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TruncateScreen(tt.text, tt.max)
			if got != tt.want {
				t.Errorf("TruncateScreen(%q, %d) = %q, want %q", tt.text, tt.max, got, tt.want)
			}
		})
	}
}

func TestTruncateScreenNeverExceedsLimit(t *testing.T) {
	texts := []string{
		"Welcome to DawaCall.\n1. Register your facility\n2. My recent alerts\n3. Help\n0. Exit",
		strings.Repeat("Paracetamol ", 40),
		strings.Repeat("a", 300), // single unbreakable word
	}
	for _, text := range texts {
		for _, max := range []int{10, 50, 160, 182} {
			got := TruncateScreen(text, max)
			if len(got) > max {
				t.Errorf("TruncateScreen(len %d, max %d) produced %d characters", len(text), max, len(got))
			}
			if len(text) > max && !strings.HasSuffix(got, Ellipsis) && len(got) >= len(Ellipsis) {
				t.Errorf("truncated text %q missing ellipsis suffix", got)
			}
		}
	}
}

func TestRenderRecentAlerts(t *testing.T) {
	t.Run("empty history", func(t *testing.T) {
		got := RenderRecentAlerts(nil)
		if !strings.Contains(got, "no alerts yet") {
			t.Errorf("empty history screen = %q, expected a no-alerts message", got)
		}
	})

	t.Run("lists alerts with status", func(t *testing.T) {
		alerts := []models.ShortageAlert{
			{DrugName: "Amoxicillin", Quantity: 40, Urgency: models.UrgencyHigh, Status: models.AlertStatusPending},
			{DrugName: "Insulin", Quantity: 10, Urgency: models.UrgencyCritical, Status: models.AlertStatusFulfilled},
		}
		got := RenderRecentAlerts(alerts)
		if !strings.Contains(got, "1. Amoxicillin x40 (high) - pending") {
			t.Errorf("missing first alert line in %q", got)
		}
		if !strings.Contains(got, "2. Insulin x10 (critical) - fulfilled") {
			t.Errorf("missing second alert line in %q", got)
		}
	})
}
