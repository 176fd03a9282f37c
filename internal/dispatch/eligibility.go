package dispatch

import (
	"log/slog"
	"strings"
	"time"

	"github.com/okothm/dawacall/internal/models"
)

// DefaultUnitPrice is the per-unit price (KES) used by the order value
// heuristic: estimated order value = quantity * DefaultUnitPrice.
const DefaultUnitPrice = 50.0

// Evaluator computes which suppliers may receive a given alert.
//
// Policy: a supplier with no active preference record is eligible for
// everything (open default; load-bearing for suppliers who never configured
// preferences). Otherwise all configured filters must pass, and any filter
// whose prerequisite data is absent passes (fail-open).
type Evaluator struct {
	now       func() time.Time
	unitPrice float64
}

// EvaluatorOption configures an Evaluator.
type EvaluatorOption func(*Evaluator)

// WithEvaluatorClock injects the time source used for business-hours checks.
func WithEvaluatorClock(now func() time.Time) EvaluatorOption {
	return func(e *Evaluator) { e.now = now }
}

// WithUnitPrice overrides the order value heuristic's per-unit price.
func WithUnitPrice(price float64) EvaluatorOption {
	return func(e *Evaluator) { e.unitPrice = price }
}

// NewEvaluator creates an eligibility evaluator.
func NewEvaluator(opts ...EvaluatorOption) *Evaluator {
	e := &Evaluator{now: time.Now, unitPrice: DefaultUnitPrice}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// EligibleSuppliers returns the subset of suppliers whose preferences (or
// absence thereof) permit receiving the alert.
func (e *Evaluator) EligibleSuppliers(alert models.ShortageAlert, suppliers []models.Supplier, prefs map[string]*models.SupplierPreference) []models.Supplier {
	var eligible []models.Supplier
	for _, sup := range suppliers {
		pref := prefs[sup.ID]
		if e.matches(alert, sup, pref) {
			eligible = append(eligible, sup)
		}
	}
	slog.Debug("Evaluator.EligibleSuppliers computed", "alertID", alert.ID, "total", len(suppliers), "eligible", len(eligible))
	return eligible
}

func (e *Evaluator) matches(alert models.ShortageAlert, sup models.Supplier, pref *models.SupplierPreference) bool {
	if pref == nil || !pref.Active {
		// Open default: no preference record means no restriction.
		return true
	}
	if !e.withinBusinessHours(pref.BusinessHours) {
		return false
	}
	if !urgencyAccepted(alert.Urgency, pref.UrgencyLevels) {
		return false
	}
	if !categoryAccepted(alert.Category, pref.DrugCategories) {
		return false
	}
	if !regionAccepted(alert.Location, pref.Regions) {
		return false
	}
	if !e.withinDistance(alert, sup, pref.MaxDistanceKm) {
		return false
	}
	if !e.meetsMinOrderValue(alert.Quantity, pref.MinOrderValue) {
		return false
	}
	return true
}

// withinBusinessHours checks the configured window and weekday set.
// Unconfigured or unparseable windows pass.
func (e *Evaluator) withinBusinessHours(bh *models.BusinessHours) bool {
	if bh == nil || bh.Start == "" || bh.End == "" {
		return true
	}
	start, err1 := time.Parse("15:04", bh.Start)
	end, err2 := time.Parse("15:04", bh.End)
	if err1 != nil || err2 != nil {
		return true
	}

	now := e.now()
	if len(bh.Weekdays) > 0 {
		dayOK := false
		for _, d := range bh.Weekdays {
			if now.Weekday() == d {
				dayOK = true
				break
			}
		}
		if !dayOK {
			return false
		}
	}

	minutes := now.Hour()*60 + now.Minute()
	startMin := start.Hour()*60 + start.Minute()
	endMin := end.Hour()*60 + end.Minute()
	if startMin <= endMin {
		return minutes >= startMin && minutes <= endMin
	}
	// Overnight window, e.g. 20:00-06:00.
	return minutes >= startMin || minutes <= endMin
}

// urgencyAccepted checks the accepted urgency set; empty means all.
func urgencyAccepted(u models.UrgencyLevel, accepted []models.UrgencyLevel) bool {
	if len(accepted) == 0 {
		return true
	}
	for _, a := range accepted {
		if a == u {
			return true
		}
	}
	return false
}

// categoryAccepted checks the accepted category set; empty means all.
func categoryAccepted(category string, accepted []string) bool {
	if len(accepted) == 0 {
		return true
	}
	for _, a := range accepted {
		if strings.EqualFold(a, category) {
			return true
		}
	}
	return false
}

// regionAccepted checks whether the alert's location text contains any of
// the supplier's region names, case-insensitively. No configured regions or
// no alert location means no restriction.
func regionAccepted(location string, regions []string) bool {
	if len(regions) == 0 || location == "" {
		return true
	}
	loc := strings.ToLower(location)
	for _, r := range regions {
		if r != "" && strings.Contains(loc, strings.ToLower(r)) {
			return true
		}
	}
	return false
}

// withinDistance applies the max-distance filter when both the alert
// coordinates and a parseable supplier coordinate are available.
func (e *Evaluator) withinDistance(alert models.ShortageAlert, sup models.Supplier, maxKm float64) bool {
	if maxKm <= 0 || alert.Latitude == nil || alert.Longitude == nil || sup.Coordinates == "" {
		return true
	}
	lat, lon, err := ParseCoordinates(sup.Coordinates)
	if err != nil {
		slog.Debug("Evaluator.withinDistance: unparseable supplier coordinates, filter passes", "supplierID", sup.ID, "coordinates", sup.Coordinates)
		return true
	}
	return DistanceKm(*alert.Latitude, *alert.Longitude, lat, lon) <= maxKm
}

// meetsMinOrderValue applies the minimum order value filter using the
// quantity * fixed unit price heuristic.
func (e *Evaluator) meetsMinOrderValue(quantity int, minValue float64) bool {
	if minValue <= 0 {
		return true
	}
	return float64(quantity)*e.unitPrice >= minValue
}
