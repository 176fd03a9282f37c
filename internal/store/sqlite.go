// Package store provides storage backends for DawaCall.
//
// This file implements the SQLite-backed store.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	_ "github.com/mattn/go-sqlite3"

	"github.com/okothm/dawacall/internal/models"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) GetSession(id string) (*models.Session, error) {
	row := s.db.QueryRow(`SELECT id, phone_number, service_code, level, data, status, carrier, started_at, last_activity_at, expires_at
		FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if err != nil {
		slog.Error("SQLiteStore GetSession failed", "error", err, "sessionID", id)
		return nil, err
	}
	return sess, nil
}

func (s *SQLiteStore) SaveSession(sess models.Session) error {
	data, err := marshalSessionData(sess.Data)
	if err != nil {
		slog.Error("SQLiteStore SaveSession marshal failed", "error", err, "sessionID", sess.ID)
		return err
	}
	_, err = s.db.Exec(`INSERT OR REPLACE INTO sessions
		(id, phone_number, service_code, level, data, status, carrier, started_at, last_activity_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.PhoneNumber, sess.ServiceCode, sess.Level, data, sess.Status,
		string(sess.Carrier), sess.StartedAt, sess.LastActivityAt, sess.ExpiresAt)
	if err != nil {
		slog.Error("SQLiteStore SaveSession failed", "error", err, "sessionID", sess.ID)
		return fmt.Errorf("failed to save session %s: %w", sess.ID, err)
	}
	slog.Debug("SQLiteStore SaveSession succeeded", "sessionID", sess.ID, "level", sess.Level, "status", sess.Status)
	return nil
}

func (s *SQLiteStore) ExpireStaleSessions(cutoff time.Time) (int, error) {
	res, err := s.db.Exec(`UPDATE sessions SET status = ? WHERE status = ? AND expires_at < ?`,
		models.SessionStatusExpired, models.SessionStatusActive, cutoff)
	if err != nil {
		slog.Error("SQLiteStore ExpireStaleSessions failed", "error", err)
		return 0, fmt.Errorf("failed to expire stale sessions: %w", err)
	}
	n, _ := res.RowsAffected()
	slog.Debug("SQLiteStore ExpireStaleSessions succeeded", "expired", n)
	return int(n), nil
}

func (s *SQLiteStore) GetFacilityByPhone(phone string) (*models.Facility, error) {
	row := s.db.QueryRow(`SELECT id, phone_number, contact_name, name, location, latitude, longitude, registered_at
		FROM facilities WHERE phone_number = ?`, phone)
	f, err := scanFacility(row)
	if err != nil {
		slog.Error("SQLiteStore GetFacilityByPhone failed", "error", err, "phone", phone)
		return nil, err
	}
	return f, nil
}

func (s *SQLiteStore) SaveFacility(f models.Facility) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO facilities
		(id, phone_number, contact_name, name, location, latitude, longitude, registered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.PhoneNumber, f.ContactName, f.Name, nilIfEmpty(f.Location), f.Latitude, f.Longitude, f.RegisteredAt)
	if err != nil {
		slog.Error("SQLiteStore SaveFacility failed", "error", err, "phone", f.PhoneNumber)
		return fmt.Errorf("failed to save facility for %s: %w", f.PhoneNumber, err)
	}
	slog.Debug("SQLiteStore SaveFacility succeeded", "phone", f.PhoneNumber, "facility", f.Name)
	return nil
}

func (s *SQLiteStore) CreateAlert(a models.ShortageAlert) error {
	_, err := s.db.Exec(`INSERT INTO alerts
		(id, facility_id, facility_name, phone_number, drug_name, category, quantity, unit, urgency, location, latitude, longitude, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.FacilityID, a.FacilityName, a.PhoneNumber, a.DrugName, a.Category,
		a.Quantity, a.Unit, a.Urgency, nilIfEmpty(a.Location), a.Latitude, a.Longitude, a.Status, a.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore CreateAlert failed", "error", err, "alertID", a.ID)
		return fmt.Errorf("failed to insert alert %s: %w", a.ID, err)
	}
	slog.Debug("SQLiteStore CreateAlert succeeded", "alertID", a.ID, "drug", a.DrugName)
	return nil
}

func (s *SQLiteStore) ListAlertsByPhone(phone string, limit int) ([]models.ShortageAlert, error) {
	rows, err := s.db.Query(`SELECT id, facility_id, facility_name, phone_number, drug_name, category, quantity, unit, urgency, location, latitude, longitude, status, created_at
		FROM alerts WHERE phone_number = ? ORDER BY created_at DESC LIMIT ?`, phone, limit)
	if err != nil {
		slog.Error("SQLiteStore ListAlertsByPhone query failed", "error", err, "phone", phone)
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []models.ShortageAlert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			slog.Error("SQLiteStore ListAlertsByPhone scan failed", "error", err)
			return nil, err
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate alert rows: %w", err)
	}
	return alerts, nil
}

func (s *SQLiteStore) ListSuppliers() ([]models.Supplier, error) {
	rows, err := s.db.Query(`SELECT id, name, phone_number, email, location, coordinates, active
		FROM suppliers WHERE active = 1 ORDER BY id`)
	if err != nil {
		slog.Error("SQLiteStore ListSuppliers query failed", "error", err)
		return nil, fmt.Errorf("failed to query suppliers: %w", err)
	}
	defer rows.Close()

	var suppliers []models.Supplier
	for rows.Next() {
		sup, err := scanSupplier(rows)
		if err != nil {
			slog.Error("SQLiteStore ListSuppliers scan failed", "error", err)
			return nil, err
		}
		suppliers = append(suppliers, sup)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate supplier rows: %w", err)
	}
	slog.Debug("SQLiteStore ListSuppliers succeeded", "count", len(suppliers))
	return suppliers, nil
}

func (s *SQLiteStore) SaveSupplier(sup models.Supplier) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO suppliers (id, name, phone_number, email, location, coordinates, active)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sup.ID, sup.Name, nilIfEmpty(sup.PhoneNumber), nilIfEmpty(sup.Email),
		nilIfEmpty(sup.Location), nilIfEmpty(sup.Coordinates), sup.Active)
	if err != nil {
		slog.Error("SQLiteStore SaveSupplier failed", "error", err, "supplierID", sup.ID)
		return fmt.Errorf("failed to save supplier %s: %w", sup.ID, err)
	}
	return nil
}

func (s *SQLiteStore) GetPreference(supplierID string) (*models.SupplierPreference, error) {
	var blob string
	err := s.db.QueryRow(`SELECT preference FROM supplier_preferences WHERE supplier_id = ?`, supplierID).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetPreference failed", "error", err, "supplierID", supplierID)
		return nil, fmt.Errorf("failed to query preference for %s: %w", supplierID, err)
	}
	var p models.SupplierPreference
	if err := json.Unmarshal([]byte(blob), &p); err != nil {
		slog.Error("SQLiteStore GetPreference unmarshal failed", "error", err, "supplierID", supplierID)
		return nil, fmt.Errorf("failed to decode preference for %s: %w", supplierID, err)
	}
	p.SupplierID = supplierID
	return &p, nil
}

func (s *SQLiteStore) SavePreference(p models.SupplierPreference) error {
	blob, err := json.Marshal(p)
	if err != nil {
		slog.Error("SQLiteStore SavePreference marshal failed", "error", err, "supplierID", p.SupplierID)
		return err
	}
	_, err = s.db.Exec(`INSERT OR REPLACE INTO supplier_preferences (supplier_id, preference) VALUES (?, ?)`,
		p.SupplierID, string(blob))
	if err != nil {
		slog.Error("SQLiteStore SavePreference failed", "error", err, "supplierID", p.SupplierID)
		return fmt.Errorf("failed to save preference for %s: %w", p.SupplierID, err)
	}
	return nil
}

func (s *SQLiteStore) AddDeliveryRecord(d models.DeliveryRecord) error {
	_, err := s.db.Exec(`INSERT INTO delivery_records
		(id, alert_id, supplier_id, channel, status, provider_message_id, cost, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.AlertID, d.SupplierID, string(d.Channel), string(d.Status),
		nilIfEmpty(d.ProviderMessageID), d.Cost, nilIfEmpty(d.Error), d.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore AddDeliveryRecord failed", "error", err, "alertID", d.AlertID, "supplierID", d.SupplierID)
		return fmt.Errorf("failed to insert delivery record: %w", err)
	}
	slog.Debug("SQLiteStore AddDeliveryRecord succeeded", "alertID", d.AlertID, "supplierID", d.SupplierID, "channel", d.Channel, "status", d.Status)
	return nil
}

func (s *SQLiteStore) ListDeliveryRecords(alertID string) ([]models.DeliveryRecord, error) {
	rows, err := s.db.Query(`SELECT id, alert_id, supplier_id, channel, status, provider_message_id, cost, error, created_at
		FROM delivery_records WHERE alert_id = ? ORDER BY created_at`, alertID)
	if err != nil {
		slog.Error("SQLiteStore ListDeliveryRecords query failed", "error", err, "alertID", alertID)
		return nil, fmt.Errorf("failed to query delivery records: %w", err)
	}
	defer rows.Close()

	var records []models.DeliveryRecord
	for rows.Next() {
		d, err := scanDeliveryRecord(rows)
		if err != nil {
			slog.Error("SQLiteStore ListDeliveryRecords scan failed", "error", err)
			return nil, err
		}
		records = append(records, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate delivery record rows: %w", err)
	}
	return records, nil
}

func (s *SQLiteStore) ListDrugCategories() ([]string, error) {
	rows, err := s.db.Query(`SELECT category FROM drug_catalog GROUP BY category ORDER BY MIN(display_order), category`)
	if err != nil {
		slog.Error("SQLiteStore ListDrugCategories query failed", "error", err)
		return nil, fmt.Errorf("failed to query drug categories: %w", err)
	}
	defer rows.Close()

	var categories []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("failed to scan category row: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate category rows: %w", err)
	}
	return categories, nil
}

func (s *SQLiteStore) ListDrugsByCategory(category string) ([]string, error) {
	rows, err := s.db.Query(`SELECT drug FROM drug_catalog WHERE category = ? ORDER BY drug`, category)
	if err != nil {
		slog.Error("SQLiteStore ListDrugsByCategory query failed", "error", err, "category", category)
		return nil, fmt.Errorf("failed to query drugs: %w", err)
	}
	defer rows.Close()

	var drugs []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("failed to scan drug row: %w", err)
		}
		drugs = append(drugs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate drug rows: %w", err)
	}
	return drugs, nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	return s.db.Close()
}
