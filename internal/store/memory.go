package store

import (
	"sort"
	"sync"
	"time"

	"github.com/okothm/dawacall/internal/models"
)

// DefaultCatalog is the drug catalog used when no backing database supplies
// one. Categories are in menu display order.
var DefaultCatalog = []models.DrugCategory{
	{Name: "Analgesics", Drugs: []string{"Paracetamol", "Ibuprofen", "Diclofenac", "Aspirin"}},
	{Name: "Antibiotics", Drugs: []string{"Amoxicillin", "Ciprofloxacin", "Azithromycin", "Ceftriaxone"}},
	{Name: "Antimalarials", Drugs: []string{"Artemether-Lumefantrine", "Quinine", "Sulfadoxine-Pyrimethamine"}},
	{Name: "Vaccines", Drugs: []string{"BCG", "Polio (OPV)", "Measles", "Tetanus Toxoid"}},
	{Name: "Chronic Care", Drugs: []string{"Metformin", "Insulin", "Amlodipine", "Salbutamol"}},
}

// InMemoryStore is a mutex-guarded in-memory Store used in tests and
// single-node development setups.
type InMemoryStore struct {
	mu          sync.RWMutex
	sessions    map[string]models.Session
	facilities  map[string]models.Facility // keyed by phone number
	alerts      []models.ShortageAlert
	suppliers   map[string]models.Supplier
	preferences map[string]models.SupplierPreference
	deliveries  []models.DeliveryRecord
	catalog     []models.DrugCategory
}

// NewInMemoryStore creates an empty in-memory store seeded with the default
// drug catalog.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions:    make(map[string]models.Session),
		facilities:  make(map[string]models.Facility),
		suppliers:   make(map[string]models.Supplier),
		preferences: make(map[string]models.SupplierPreference),
		catalog:     DefaultCatalog,
	}
}

func (s *InMemoryStore) GetSession(id string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	return &sess, nil
}

func (s *InMemoryStore) SaveSession(sess models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
	return nil
}

func (s *InMemoryStore) ExpireStaleSessions(cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, sess := range s.sessions {
		if sess.Status == models.SessionStatusActive && sess.ExpiresAt.Before(cutoff) {
			sess.Status = models.SessionStatusExpired
			s.sessions[id] = sess
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) GetFacilityByPhone(phone string) (*models.Facility, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.facilities[phone]
	if !ok {
		return nil, nil
	}
	return &f, nil
}

func (s *InMemoryStore) SaveFacility(f models.Facility) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.facilities[f.PhoneNumber] = f
	return nil
}

func (s *InMemoryStore) CreateAlert(a models.ShortageAlert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, a)
	return nil
}

func (s *InMemoryStore) ListAlertsByPhone(phone string, limit int) ([]models.ShortageAlert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.ShortageAlert
	for _, a := range s.alerts {
		if a.PhoneNumber == phone {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) ListSuppliers() ([]models.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Supplier
	for _, sup := range s.suppliers {
		if sup.Active {
			out = append(out, sup)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemoryStore) SaveSupplier(sup models.Supplier) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suppliers[sup.ID] = sup
	return nil
}

func (s *InMemoryStore) GetPreference(supplierID string) (*models.SupplierPreference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.preferences[supplierID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *InMemoryStore) SavePreference(p models.SupplierPreference) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.preferences[p.SupplierID] = p
	return nil
}

func (s *InMemoryStore) AddDeliveryRecord(d models.DeliveryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliveries = append(s.deliveries, d)
	return nil
}

func (s *InMemoryStore) ListDeliveryRecords(alertID string) ([]models.DeliveryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.DeliveryRecord
	for _, d := range s.deliveries {
		if d.AlertID == alertID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *InMemoryStore) ListDrugCategories() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.catalog))
	for _, c := range s.catalog {
		names = append(names, c.Name)
	}
	return names, nil
}

func (s *InMemoryStore) ListDrugsByCategory(category string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.catalog {
		if c.Name == category {
			drugs := make([]string, len(c.Drugs))
			copy(drugs, c.Drugs)
			return drugs, nil
		}
	}
	return nil, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error { return nil }
