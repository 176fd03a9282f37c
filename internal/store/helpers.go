package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/okothm/dawacall/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// marshalSessionData serializes the typed session bag for a text/JSON column.
func marshalSessionData(d models.SessionData) (string, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("marshal session data failed: %w", err)
	}
	return string(b), nil
}

// unmarshalSessionData restores the typed session bag from a column value.
// A malformed blob logs and yields an empty bag rather than failing the read.
func unmarshalSessionData(raw string, sessionID string) models.SessionData {
	var d models.SessionData
	if raw == "" {
		return d
	}
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		slog.Error("store: session data unmarshal failed, continuing with empty data", "error", err, "sessionID", sessionID)
		return models.SessionData{}
	}
	return d
}

// scanSession scans one session row. Both backends share the column order:
// id, phone_number, service_code, level, data, status, carrier, started_at,
// last_activity_at, expires_at.
func scanSession(row *sql.Row) (*models.Session, error) {
	var s models.Session
	var data, carrier sql.NullString
	err := row.Scan(&s.ID, &s.PhoneNumber, &s.ServiceCode, &s.Level, &data, &s.Status,
		&carrier, &s.StartedAt, &s.LastActivityAt, &s.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session failed: %w", err)
	}
	s.Data = unmarshalSessionData(data.String, s.ID)
	s.Carrier = models.Carrier(carrier.String)
	return &s, nil
}

// scanFacility scans one facility row: id, phone_number, contact_name, name,
// location, latitude, longitude, registered_at.
func scanFacility(row *sql.Row) (*models.Facility, error) {
	var f models.Facility
	var location sql.NullString
	var lat, lon sql.NullFloat64
	err := row.Scan(&f.ID, &f.PhoneNumber, &f.ContactName, &f.Name, &location, &lat, &lon, &f.RegisteredAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan facility failed: %w", err)
	}
	f.Location = location.String
	if lat.Valid {
		f.Latitude = &lat.Float64
	}
	if lon.Valid {
		f.Longitude = &lon.Float64
	}
	return &f, nil
}

// scanAlert scans one alert row from a multi-row result.
func scanAlert(rows *sql.Rows) (models.ShortageAlert, error) {
	var a models.ShortageAlert
	var location sql.NullString
	var lat, lon sql.NullFloat64
	err := rows.Scan(&a.ID, &a.FacilityID, &a.FacilityName, &a.PhoneNumber, &a.DrugName,
		&a.Category, &a.Quantity, &a.Unit, &a.Urgency, &location, &lat, &lon, &a.Status, &a.CreatedAt)
	if err != nil {
		return a, fmt.Errorf("scan alert failed: %w", err)
	}
	a.Location = location.String
	if lat.Valid {
		a.Latitude = &lat.Float64
	}
	if lon.Valid {
		a.Longitude = &lon.Float64
	}
	return a, nil
}

// scanDeliveryRecord scans one delivery record row from a multi-row result.
func scanDeliveryRecord(rows *sql.Rows) (models.DeliveryRecord, error) {
	var d models.DeliveryRecord
	var providerID, errText sql.NullString
	var cost sql.NullFloat64
	err := rows.Scan(&d.ID, &d.AlertID, &d.SupplierID, &d.Channel, &d.Status,
		&providerID, &cost, &errText, &d.CreatedAt)
	if err != nil {
		return d, fmt.Errorf("scan delivery record failed: %w", err)
	}
	d.ProviderMessageID = providerID.String
	d.Cost = cost.Float64
	d.Error = errText.String
	return d, nil
}

// scanSupplier scans one supplier row from a multi-row result.
func scanSupplier(rows *sql.Rows) (models.Supplier, error) {
	var s models.Supplier
	var phone, email, location, coords sql.NullString
	err := rows.Scan(&s.ID, &s.Name, &phone, &email, &location, &coords, &s.Active)
	if err != nil {
		return s, fmt.Errorf("scan supplier failed: %w", err)
	}
	s.PhoneNumber = phone.String
	s.Email = email.String
	s.Location = location.String
	s.Coordinates = coords.String
	return s, nil
}
