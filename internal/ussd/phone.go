// Package ussd implements the USSD menu state machine and the session
// lifecycle manager around it.
package ussd

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/okothm/dawacall/internal/models"
)

// DefaultCountryCode is the dial code numbers are normalized to.
const DefaultCountryCode = "254"

// normalizedPattern is the single canonical phone shape: +254 followed by
// nine digits.
var normalizedPattern = regexp.MustCompile(`^\+254\d{9}$`)

// NormalizePhone converts a raw phone number into the canonical
// international form. Four input shapes are accepted:
//
//	+254712345678   already international
//	254712345678    country code without plus
//	0712345678      local with leading zero
//	712345678       bare subscriber number
//
// Normalization is idempotent: an already-normalized number is returned
// unchanged.
func NormalizePhone(raw string) (string, error) {
	p := strings.TrimSpace(raw)
	p = strings.ReplaceAll(p, " ", "")
	p = strings.ReplaceAll(p, "-", "")
	if p == "" {
		return "", models.ErrMissingPhoneNumber
	}

	switch {
	case strings.HasPrefix(p, "+"):
		// already international
	case strings.HasPrefix(p, DefaultCountryCode):
		p = "+" + p
	case strings.HasPrefix(p, "0"):
		p = "+" + DefaultCountryCode + p[1:]
	default:
		p = "+" + DefaultCountryCode + p
	}

	if !normalizedPattern.MatchString(p) {
		return "", fmt.Errorf("%w: %q", models.ErrInvalidPhoneNumber, raw)
	}
	return p, nil
}

// carrierByNetworkCode maps the gateway's MCC+MNC network codes to carriers.
var carrierByNetworkCode = map[string]models.Carrier{
	"63902": models.CarrierSafaricom,
	"63903": models.CarrierAirtel,
	"63907": models.CarrierTelkom,
	"63999": models.CarrierSandbox,
}

// DetectCarrier resolves a network code to a carrier, defaulting to unknown.
func DetectCarrier(networkCode string) models.Carrier {
	if c, ok := carrierByNetworkCode[strings.TrimSpace(networkCode)]; ok {
		return c
	}
	return models.CarrierUnknown
}

// ScreenLimit returns the maximum response length the carrier's USSD gateway
// accepts. This is the only carrier-specific formatting difference.
func ScreenLimit(c models.Carrier) int {
	switch c {
	case models.CarrierSafaricom, models.CarrierSandbox:
		return 182
	default:
		return 160
	}
}
