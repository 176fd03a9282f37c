// Package models defines the core data structures for DawaCall.
//
// It includes types for USSD sessions, shortage alerts, supplier preferences,
// and delivery records, which are shared across modules.
package models

import (
	"errors"
	"regexp"
	"strings"
	"time"
)

// SessionStatus describes the lifecycle state of a USSD session.
type SessionStatus string

const (
	// SessionStatusActive marks a session that is still accepting input.
	SessionStatusActive SessionStatus = "active"
	// SessionStatusCompleted marks a session that ended normally.
	SessionStatusCompleted SessionStatus = "completed"
	// SessionStatusExpired marks a session that timed out between requests.
	SessionStatusExpired SessionStatus = "expired"
	// SessionStatusCancelled marks a session the caller abandoned.
	SessionStatusCancelled SessionStatus = "cancelled"
)

// IsTerminal reports whether the status is one of the final states.
// Terminal sessions must never transition back to active.
func (s SessionStatus) IsTerminal() bool {
	switch s {
	case SessionStatusCompleted, SessionStatusExpired, SessionStatusCancelled:
		return true
	default:
		return false
	}
}

// MenuLevel identifies a position in the USSD menu graph. Levels are stable
// integers, not slice indices, so new branches can be added without renumbering.
type MenuLevel int

const (
	// LevelWelcome is the entry screen shown on the first request of a session.
	LevelWelcome MenuLevel = 1
	// LevelMainMenu is the main menu (report / recent alerts / help / exit).
	LevelMainMenu MenuLevel = 2
	// LevelCategory selects a drug category.
	LevelCategory MenuLevel = 3
	// LevelDrug selects a drug within the chosen category.
	LevelDrug MenuLevel = 4
	// LevelQuantity collects the requested quantity.
	LevelQuantity MenuLevel = 5
	// LevelUrgency selects urgency and submits the alert.
	LevelUrgency MenuLevel = 6

	// LevelRegisterName collects the contact name of an unregistered caller.
	LevelRegisterName MenuLevel = 10
	// LevelRegisterFacility collects the facility name.
	LevelRegisterFacility MenuLevel = 11
	// LevelRegisterLocation collects the facility location and submits.
	LevelRegisterLocation MenuLevel = 12
)

// FlowKind tags which sub-flow the session data belongs to.
type FlowKind string

const (
	// FlowReport is the shortage reporting flow (levels 3-6).
	FlowReport FlowKind = "report"
	// FlowRegister is the facility registration flow (levels 10-12).
	FlowRegister FlowKind = "register"
)

// ReportData carries the selections accumulated by the reporting flow.
type ReportData struct {
	Categories []string `json:"categories,omitempty"` // category list shown at level 3
	Drugs      []string `json:"drugs,omitempty"`      // drug list shown at level 4
	Category   string   `json:"category,omitempty"`
	Drug       string   `json:"drug,omitempty"`
	Quantity   int      `json:"quantity"`
	HasQty     bool     `json:"has_qty"` // distinguishes quantity 0 from unset
}

// RegisterData carries the fields accumulated by the registration flow.
type RegisterData struct {
	ContactName  string `json:"contact_name,omitempty"`
	FacilityName string `json:"facility_name,omitempty"`
	Location     string `json:"location,omitempty"`
}

// SessionData is the typed session-state bag. Exactly one of Report or
// Register is populated once the caller leaves the main menu; Flow says which.
type SessionData struct {
	Flow     FlowKind      `json:"flow,omitempty"`
	Report   *ReportData   `json:"report,omitempty"`
	Register *RegisterData `json:"register,omitempty"`
}

// Session represents one in-progress USSD conversation. Sessions are created
// on the first request for a new gateway identifier, mutated on every
// subsequent request, and retained after termination for audit.
type Session struct {
	ID             string        `json:"id"` // opaque token assigned by the gateway
	PhoneNumber    string        `json:"phone_number"`
	ServiceCode    string        `json:"service_code"`
	Level          MenuLevel     `json:"level"`
	Data           SessionData   `json:"data"`
	Status         SessionStatus `json:"status"`
	Carrier        Carrier       `json:"carrier,omitempty"`
	StartedAt      time.Time     `json:"started_at"`
	LastActivityAt time.Time     `json:"last_activity_at"`
	ExpiresAt      time.Time     `json:"expires_at"`
}

// Carrier is the telecom network operator, inferred from the gateway's
// network code. It is used only to adjust response formatting.
type Carrier string

const (
	CarrierSafaricom Carrier = "safaricom"
	CarrierAirtel    Carrier = "airtel"
	CarrierTelkom    Carrier = "telkom"
	CarrierSandbox   Carrier = "sandbox"
	CarrierUnknown   Carrier = "unknown"
)

// UrgencyLevel ranks how critical a shortage is.
type UrgencyLevel string

const (
	UrgencyLow      UrgencyLevel = "low"
	UrgencyMedium   UrgencyLevel = "medium"
	UrgencyHigh     UrgencyLevel = "high"
	UrgencyCritical UrgencyLevel = "critical"
)

// UrgencyLevels lists the urgency levels in menu display order.
var UrgencyLevels = []UrgencyLevel{UrgencyLow, UrgencyMedium, UrgencyHigh, UrgencyCritical}

// UrgencyFromIndex maps a 1-based menu selection to an urgency level.
func UrgencyFromIndex(i int) (UrgencyLevel, bool) {
	if i < 1 || i > len(UrgencyLevels) {
		return "", false
	}
	return UrgencyLevels[i-1], true
}

// Facility is the registered clinic or pharmacy behind a phone number.
// Lookup is by normalized phone number; absence means the caller is
// unregistered and is routed into the registration flow.
type Facility struct {
	ID           string    `json:"id"`
	PhoneNumber  string    `json:"phone_number"`
	ContactName  string    `json:"contact_name"`
	Name         string    `json:"name"`
	Location     string    `json:"location,omitempty"`
	Latitude     *float64  `json:"latitude,omitempty"`
	Longitude    *float64  `json:"longitude,omitempty"`
	RegisteredAt time.Time `json:"registered_at"`
}

// AlertStatus tracks a shortage alert through its lifecycle. Only suppliers
// move alerts past pending; this service only creates them.
type AlertStatus string

const (
	AlertStatusPending      AlertStatus = "pending"
	AlertStatusAcknowledged AlertStatus = "acknowledged"
	AlertStatusFulfilled    AlertStatus = "fulfilled"
	AlertStatusCancelled    AlertStatus = "cancelled"
)

// ShortageAlert is the artifact produced by a completed reporting session.
type ShortageAlert struct {
	ID           string       `json:"id"`
	FacilityID   string       `json:"facility_id"`
	FacilityName string       `json:"facility_name"`
	PhoneNumber  string       `json:"phone_number"`
	DrugName     string       `json:"drug_name"`
	Category     string       `json:"category"`
	Quantity     int          `json:"quantity"`
	Unit         string       `json:"unit"`
	Urgency      UrgencyLevel `json:"urgency"`
	Location     string       `json:"location,omitempty"`
	Latitude     *float64     `json:"latitude,omitempty"`
	Longitude    *float64     `json:"longitude,omitempty"`
	Status       AlertStatus  `json:"status"`
	CreatedAt    time.Time    `json:"created_at"`
}

// Supplier is a registered drug supplier that can receive shortage alerts.
type Supplier struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	PhoneNumber string `json:"phone_number,omitempty"`
	Email       string `json:"email,omitempty"`
	Location    string `json:"location,omitempty"`    // free text region/town
	Coordinates string `json:"coordinates,omitempty"` // "lat,lon" when known
	Active      bool   `json:"active"`
}

// Channel identifies a notification delivery channel.
type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
	// ChannelApp is reserved for in-app notification; acknowledged but not
	// yet dispatched.
	ChannelApp Channel = "app"
)

// BusinessHours is a supplier's notification window: time of day plus the
// weekdays on which the supplier accepts alerts.
type BusinessHours struct {
	Start    string         `json:"start"` // "HH:MM", 24h
	End      string         `json:"end"`
	Weekdays []time.Weekday `json:"weekdays,omitempty"` // empty = every day
}

// SupplierPreference is a supplier's alert filter configuration. Every field
// is optional; an empty or unset field means no restriction on that axis.
// A supplier with no preference record at all is eligible for everything.
type SupplierPreference struct {
	SupplierID     string         `json:"supplier_id"`
	DrugCategories []string       `json:"drug_categories,omitempty"`
	UrgencyLevels  []UrgencyLevel `json:"urgency_levels,omitempty"`
	Regions        []string       `json:"regions,omitempty"`
	MaxDistanceKm  float64        `json:"max_distance_km,omitempty"`
	MinOrderValue  float64        `json:"min_order_value,omitempty"`
	Channels       []Channel      `json:"channels,omitempty"`
	BusinessHours  *BusinessHours `json:"business_hours,omitempty"`
	Active         bool           `json:"active"`
}

// DeliveryStatus is the outcome of one notification attempt.
type DeliveryStatus string

const (
	DeliveryStatusSent   DeliveryStatus = "sent"
	DeliveryStatusFailed DeliveryStatus = "failed"
)

// DeliveryRecord is one row of the append-only notification audit log:
// one record per (alert, supplier, channel) attempt.
type DeliveryRecord struct {
	ID                string         `json:"id"`
	AlertID           string         `json:"alert_id"`
	SupplierID        string         `json:"supplier_id"`
	Channel           Channel        `json:"channel"`
	Status            DeliveryStatus `json:"status"`
	ProviderMessageID string         `json:"provider_message_id,omitempty"`
	Cost              float64        `json:"cost,omitempty"`
	Error             string         `json:"error,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
}

// DrugCategory groups drugs for the category/drug menu levels.
type DrugCategory struct {
	Name  string   `json:"name"`
	Drugs []string `json:"drugs"`
}

// Error variables for request validation.
var (
	ErrMissingSessionID   = errors.New("session identifier is required")
	ErrMissingServiceCode = errors.New("service code is required")
	ErrMissingPhoneNumber = errors.New("phone number is required")
	ErrInvalidSessionID   = errors.New("session identifier contains invalid characters")
	ErrInvalidPhoneNumber = errors.New("phone number is malformed")
)

// sessionIDPattern is the gateway contract for session tokens.
var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// UssdRequest is one inbound gateway request. Text is the cumulative
// *-delimited input history for the session; the last segment is the
// current input.
type UssdRequest struct {
	SessionID   string `json:"sessionId"`
	ServiceCode string `json:"serviceCode"`
	PhoneNumber string `json:"phoneNumber"`
	Text        string `json:"text"`
	NetworkCode string `json:"networkCode,omitempty"`
}

// Validate checks the required gateway fields and the session token shape.
func (r *UssdRequest) Validate() error {
	if r.SessionID == "" {
		return ErrMissingSessionID
	}
	if !sessionIDPattern.MatchString(r.SessionID) {
		return ErrInvalidSessionID
	}
	if r.ServiceCode == "" {
		return ErrMissingServiceCode
	}
	if r.PhoneNumber == "" {
		return ErrMissingPhoneNumber
	}
	return nil
}

// CurrentInput returns the last *-delimited segment of the accumulated text,
// which is the input the caller just entered. Empty text means the session's
// first request.
func (r *UssdRequest) CurrentInput() string {
	if r.Text == "" {
		return ""
	}
	parts := strings.Split(r.Text, "*")
	return strings.TrimSpace(parts[len(parts)-1])
}

// UssdResponse is the outbound reply for one request.
type UssdResponse struct {
	Text string `json:"text"`
	End  bool   `json:"end"`
}

// Render formats the response in the gateway's plain-text protocol: a line
// beginning with CON (session continues) or END (session terminates).
func (u UssdResponse) Render() string {
	if u.End {
		return "END " + u.Text
	}
	return "CON " + u.Text
}

// DiagnosticResponse is the structured JSON variant of a USSD reply, used
// for diagnostics. It carries the same fields plus timing detail.
type DiagnosticResponse struct {
	SessionID    string `json:"session_id"`
	Text         string `json:"text"`
	End          bool   `json:"end"`
	Carrier      string `json:"carrier,omitempty"`
	ProcessingMs int64  `json:"processing_ms"`
}
