// Package store provides storage backends for DawaCall.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	_ "github.com/lib/pq"

	"github.com/okothm/dawacall/internal/models"
)

// Database connection pool configuration constants.
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database.
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool.
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused.
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) GetSession(id string) (*models.Session, error) {
	row := s.db.QueryRow(`SELECT id, phone_number, service_code, level, data, status, carrier, started_at, last_activity_at, expires_at
		FROM sessions WHERE id = $1`, id)
	sess, err := scanSession(row)
	if err != nil {
		slog.Error("PostgresStore GetSession failed", "error", err, "sessionID", id)
		return nil, err
	}
	return sess, nil
}

func (s *PostgresStore) SaveSession(sess models.Session) error {
	data, err := marshalSessionData(sess.Data)
	if err != nil {
		slog.Error("PostgresStore SaveSession marshal failed", "error", err, "sessionID", sess.ID)
		return err
	}
	_, err = s.db.Exec(`INSERT INTO sessions
		(id, phone_number, service_code, level, data, status, carrier, started_at, last_activity_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			level = EXCLUDED.level, data = EXCLUDED.data, status = EXCLUDED.status,
			last_activity_at = EXCLUDED.last_activity_at, expires_at = EXCLUDED.expires_at`,
		sess.ID, sess.PhoneNumber, sess.ServiceCode, sess.Level, data, sess.Status,
		string(sess.Carrier), sess.StartedAt, sess.LastActivityAt, sess.ExpiresAt)
	if err != nil {
		slog.Error("PostgresStore SaveSession failed", "error", err, "sessionID", sess.ID)
		return fmt.Errorf("failed to save session %s: %w", sess.ID, err)
	}
	slog.Debug("PostgresStore SaveSession succeeded", "sessionID", sess.ID, "level", sess.Level, "status", sess.Status)
	return nil
}

func (s *PostgresStore) ExpireStaleSessions(cutoff time.Time) (int, error) {
	res, err := s.db.Exec(`UPDATE sessions SET status = $1 WHERE status = $2 AND expires_at < $3`,
		models.SessionStatusExpired, models.SessionStatusActive, cutoff)
	if err != nil {
		slog.Error("PostgresStore ExpireStaleSessions failed", "error", err)
		return 0, fmt.Errorf("failed to expire stale sessions: %w", err)
	}
	n, _ := res.RowsAffected()
	slog.Debug("PostgresStore ExpireStaleSessions succeeded", "expired", n)
	return int(n), nil
}

func (s *PostgresStore) GetFacilityByPhone(phone string) (*models.Facility, error) {
	row := s.db.QueryRow(`SELECT id, phone_number, contact_name, name, location, latitude, longitude, registered_at
		FROM facilities WHERE phone_number = $1`, phone)
	f, err := scanFacility(row)
	if err != nil {
		slog.Error("PostgresStore GetFacilityByPhone failed", "error", err, "phone", phone)
		return nil, err
	}
	return f, nil
}

func (s *PostgresStore) SaveFacility(f models.Facility) error {
	_, err := s.db.Exec(`INSERT INTO facilities
		(id, phone_number, contact_name, name, location, latitude, longitude, registered_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (phone_number) DO UPDATE SET
			contact_name = EXCLUDED.contact_name, name = EXCLUDED.name, location = EXCLUDED.location`,
		f.ID, f.PhoneNumber, f.ContactName, f.Name, nilIfEmpty(f.Location), f.Latitude, f.Longitude, f.RegisteredAt)
	if err != nil {
		slog.Error("PostgresStore SaveFacility failed", "error", err, "phone", f.PhoneNumber)
		return fmt.Errorf("failed to save facility for %s: %w", f.PhoneNumber, err)
	}
	slog.Debug("PostgresStore SaveFacility succeeded", "phone", f.PhoneNumber, "facility", f.Name)
	return nil
}

func (s *PostgresStore) CreateAlert(a models.ShortageAlert) error {
	_, err := s.db.Exec(`INSERT INTO alerts
		(id, facility_id, facility_name, phone_number, drug_name, category, quantity, unit, urgency, location, latitude, longitude, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		a.ID, a.FacilityID, a.FacilityName, a.PhoneNumber, a.DrugName, a.Category,
		a.Quantity, a.Unit, a.Urgency, nilIfEmpty(a.Location), a.Latitude, a.Longitude, a.Status, a.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore CreateAlert failed", "error", err, "alertID", a.ID)
		return fmt.Errorf("failed to insert alert %s: %w", a.ID, err)
	}
	slog.Debug("PostgresStore CreateAlert succeeded", "alertID", a.ID, "drug", a.DrugName)
	return nil
}

func (s *PostgresStore) ListAlertsByPhone(phone string, limit int) ([]models.ShortageAlert, error) {
	rows, err := s.db.Query(`SELECT id, facility_id, facility_name, phone_number, drug_name, category, quantity, unit, urgency, location, latitude, longitude, status, created_at
		FROM alerts WHERE phone_number = $1 ORDER BY created_at DESC LIMIT $2`, phone, limit)
	if err != nil {
		slog.Error("PostgresStore ListAlertsByPhone query failed", "error", err, "phone", phone)
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []models.ShortageAlert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			slog.Error("PostgresStore ListAlertsByPhone scan failed", "error", err)
			return nil, err
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate alert rows: %w", err)
	}
	return alerts, nil
}

func (s *PostgresStore) ListSuppliers() ([]models.Supplier, error) {
	rows, err := s.db.Query(`SELECT id, name, phone_number, email, location, coordinates, active
		FROM suppliers WHERE active = TRUE ORDER BY id`)
	if err != nil {
		slog.Error("PostgresStore ListSuppliers query failed", "error", err)
		return nil, fmt.Errorf("failed to query suppliers: %w", err)
	}
	defer rows.Close()

	var suppliers []models.Supplier
	for rows.Next() {
		sup, err := scanSupplier(rows)
		if err != nil {
			slog.Error("PostgresStore ListSuppliers scan failed", "error", err)
			return nil, err
		}
		suppliers = append(suppliers, sup)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate supplier rows: %w", err)
	}
	slog.Debug("PostgresStore ListSuppliers succeeded", "count", len(suppliers))
	return suppliers, nil
}

func (s *PostgresStore) SaveSupplier(sup models.Supplier) error {
	_, err := s.db.Exec(`INSERT INTO suppliers (id, name, phone_number, email, location, coordinates, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, phone_number = EXCLUDED.phone_number, email = EXCLUDED.email,
			location = EXCLUDED.location, coordinates = EXCLUDED.coordinates, active = EXCLUDED.active`,
		sup.ID, sup.Name, nilIfEmpty(sup.PhoneNumber), nilIfEmpty(sup.Email),
		nilIfEmpty(sup.Location), nilIfEmpty(sup.Coordinates), sup.Active)
	if err != nil {
		slog.Error("PostgresStore SaveSupplier failed", "error", err, "supplierID", sup.ID)
		return fmt.Errorf("failed to save supplier %s: %w", sup.ID, err)
	}
	return nil
}

func (s *PostgresStore) GetPreference(supplierID string) (*models.SupplierPreference, error) {
	var blob string
	err := s.db.QueryRow(`SELECT preference FROM supplier_preferences WHERE supplier_id = $1`, supplierID).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetPreference failed", "error", err, "supplierID", supplierID)
		return nil, fmt.Errorf("failed to query preference for %s: %w", supplierID, err)
	}
	var p models.SupplierPreference
	if err := json.Unmarshal([]byte(blob), &p); err != nil {
		slog.Error("PostgresStore GetPreference unmarshal failed", "error", err, "supplierID", supplierID)
		return nil, fmt.Errorf("failed to decode preference for %s: %w", supplierID, err)
	}
	p.SupplierID = supplierID
	return &p, nil
}

func (s *PostgresStore) SavePreference(p models.SupplierPreference) error {
	blob, err := json.Marshal(p)
	if err != nil {
		slog.Error("PostgresStore SavePreference marshal failed", "error", err, "supplierID", p.SupplierID)
		return err
	}
	_, err = s.db.Exec(`INSERT INTO supplier_preferences (supplier_id, preference) VALUES ($1, $2)
		ON CONFLICT (supplier_id) DO UPDATE SET preference = EXCLUDED.preference`,
		p.SupplierID, string(blob))
	if err != nil {
		slog.Error("PostgresStore SavePreference failed", "error", err, "supplierID", p.SupplierID)
		return fmt.Errorf("failed to save preference for %s: %w", p.SupplierID, err)
	}
	return nil
}

func (s *PostgresStore) AddDeliveryRecord(d models.DeliveryRecord) error {
	_, err := s.db.Exec(`INSERT INTO delivery_records
		(id, alert_id, supplier_id, channel, status, provider_message_id, cost, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		d.ID, d.AlertID, d.SupplierID, string(d.Channel), string(d.Status),
		nilIfEmpty(d.ProviderMessageID), d.Cost, nilIfEmpty(d.Error), d.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore AddDeliveryRecord failed", "error", err, "alertID", d.AlertID, "supplierID", d.SupplierID)
		return fmt.Errorf("failed to insert delivery record: %w", err)
	}
	slog.Debug("PostgresStore AddDeliveryRecord succeeded", "alertID", d.AlertID, "supplierID", d.SupplierID, "channel", d.Channel, "status", d.Status)
	return nil
}

func (s *PostgresStore) ListDeliveryRecords(alertID string) ([]models.DeliveryRecord, error) {
	rows, err := s.db.Query(`SELECT id, alert_id, supplier_id, channel, status, provider_message_id, cost, error, created_at
		FROM delivery_records WHERE alert_id = $1 ORDER BY created_at`, alertID)
	if err != nil {
		slog.Error("PostgresStore ListDeliveryRecords query failed", "error", err, "alertID", alertID)
		return nil, fmt.Errorf("failed to query delivery records: %w", err)
	}
	defer rows.Close()

	var records []models.DeliveryRecord
	for rows.Next() {
		d, err := scanDeliveryRecord(rows)
		if err != nil {
			slog.Error("PostgresStore ListDeliveryRecords scan failed", "error", err)
			return nil, err
		}
		records = append(records, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate delivery record rows: %w", err)
	}
	return records, nil
}

func (s *PostgresStore) ListDrugCategories() ([]string, error) {
	rows, err := s.db.Query(`SELECT category FROM drug_catalog GROUP BY category ORDER BY MIN(display_order), category`)
	if err != nil {
		slog.Error("PostgresStore ListDrugCategories query failed", "error", err)
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

func (s *PostgresStore) ListDrugsByCategory(category string) ([]string, error) {
	rows, err := s.db.Query(`SELECT drug FROM drug_catalog WHERE category = $1 ORDER BY drug`, category)
	if err != nil {
		slog.Error("PostgresStore ListDrugsByCategory query failed", "error", err, "category", category)
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

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	return s.db.Close()
}
