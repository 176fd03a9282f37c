package ussd

import (
	"fmt"
	"strings"

	"github.com/okothm/dawacall/internal/models"
)

// Ellipsis is appended when a screen has to be truncated.
const Ellipsis = "..."

// TruncateScreen caps text at max characters. Truncation happens at the
// nearest word boundary, never mid-word, and the result is suffixed with an
// ellipsis marker. Text at or under the cap is returned unchanged.
func TruncateScreen(text string, max int) string {
	if max <= 0 || len(text) <= max {
		return text
	}
	budget := max - len(Ellipsis)
	if budget <= 0 {
		return Ellipsis[:max]
	}

	cut := text[:budget]
	if idx := strings.LastIndexAny(cut, " \n"); idx > 0 {
		cut = cut[:idx]
	}
	return strings.TrimRight(cut, " \n") + Ellipsis
}

// RenderRecentAlerts formats a caller's last alerts as a terminal screen.
func RenderRecentAlerts(alerts []models.ShortageAlert) string {
	if len(alerts) == 0 {
		return "You have no alerts yet. Select 1 from the main menu to report a shortage."
	}
	var b strings.Builder
	b.WriteString("Your recent alerts:")
	for i, a := range alerts {
		fmt.Fprintf(&b, "\n%d. %s x%d (%s) - %s", i+1, a.DrugName, a.Quantity, a.Urgency, a.Status)
	}
	return b.String()
}

// renderNumberedMenu renders a 1-based option list under a prompt line, with
// a trailing "0" navigation row.
func renderNumberedMenu(prompt string, options []string, zeroLabel string) string {
	var b strings.Builder
	b.WriteString(prompt)
	for i, opt := range options {
		fmt.Fprintf(&b, "\n%d. %s", i+1, opt)
	}
	if zeroLabel != "" {
		fmt.Fprintf(&b, "\n0. %s", zeroLabel)
	}
	return b.String()
}
