// Package store provides storage backends for DawaCall.
//
// It exposes a document-store style interface over the collections the core
// needs (sessions, facilities, alerts, suppliers, preferences, deliveries)
// with in-memory, SQLite and PostgreSQL implementations, plus an optional
// Redis cache for the hot session row.
package store

import (
	"strings"
	"time"

	"github.com/okothm/dawacall/internal/models"
)

// Store is the persistence contract consumed by the session manager and the
// distribution dispatcher. Sessions are never deleted, only marked terminal;
// delivery records are append-only.
type Store interface {
	// GetSession returns the session for a gateway identifier, or nil if none.
	GetSession(id string) (*models.Session, error)
	// SaveSession inserts or replaces a session row.
	SaveSession(s models.Session) error
	// ExpireStaleSessions marks active sessions whose expiry passed before
	// cutoff as expired and returns how many were updated. Best-effort
	// housekeeping; lazy expiry on access is the authoritative check.
	ExpireStaleSessions(cutoff time.Time) (int, error)

	// GetFacilityByPhone looks up a registered facility by normalized phone
	// number, or nil if the caller is unregistered.
	GetFacilityByPhone(phone string) (*models.Facility, error)
	// SaveFacility inserts or replaces a facility record.
	SaveFacility(f models.Facility) error

	// CreateAlert persists a new shortage alert.
	CreateAlert(a models.ShortageAlert) error
	// ListAlertsByPhone returns the most recent alerts reported from a phone
	// number, newest first, capped at limit.
	ListAlertsByPhone(phone string, limit int) ([]models.ShortageAlert, error)

	// ListSuppliers returns all active suppliers.
	ListSuppliers() ([]models.Supplier, error)
	// SaveSupplier inserts or replaces a supplier record.
	SaveSupplier(s models.Supplier) error
	// GetPreference returns the preference record for a supplier, or nil if
	// the supplier never configured one.
	GetPreference(supplierID string) (*models.SupplierPreference, error)
	// SavePreference inserts or replaces a supplier preference record.
	SavePreference(p models.SupplierPreference) error

	// AddDeliveryRecord appends one notification attempt to the audit log.
	AddDeliveryRecord(d models.DeliveryRecord) error
	// ListDeliveryRecords returns the delivery log for an alert.
	ListDeliveryRecords(alertID string) ([]models.DeliveryRecord, error)

	// ListDrugCategories returns the catalog category names in display order.
	ListDrugCategories() ([]string, error)
	// ListDrugsByCategory returns the drug names in one category.
	ListDrugsByCategory(category string) ([]string, error)

	// Close releases the underlying connections.
	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN       string
	RedisAddr string
}

// Option defines a configuration option for store construction.
type Option func(*Opts)

// WithSQLiteDSN sets a SQLite file path as the store DSN.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets a PostgreSQL connection string as the store DSN.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithRedisAddr enables the Redis session cache in front of the SQL store.
func WithRedisAddr(addr string) Option {
	return func(o *Opts) { o.RedisAddr = addr }
}

// DetectDSNType classifies a DSN as "postgres" or "sqlite". PostgreSQL DSNs
// use the URL scheme or key=value form; everything else is treated as a
// SQLite file path.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}
