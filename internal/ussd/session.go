package ussd

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/okothm/dawacall/internal/metrics"
	"github.com/okothm/dawacall/internal/models"
	"github.com/okothm/dawacall/internal/store"
)

// Session lifecycle constants.
const (
	// DefaultSessionTimeout is the fixed inactivity window after which a
	// session expires.
	DefaultSessionTimeout = 180 * time.Second
	// DefaultGraceWindow is how close to expiry a request may arrive and
	// still get a silent extension instead of processing against a session
	// about to die.
	DefaultGraceWindow = 30 * time.Second
	// DefaultRewardAmount is the airtime amount (KES) granted per created
	// alert.
	DefaultRewardAmount = 10
	// RecentAlertsLimit is how many past alerts the "my alerts" screen shows.
	RecentAlertsLimit = 3
	// DefaultAlertUnit is the unit recorded on alerts; quantities are always
	// entered as plain counts.
	DefaultAlertUnit = "units"
)

// Terminal response texts. Errors never cross the USSD boundary; callers
// always get one of these instead.
const (
	MsgServiceUnavailable = "Sorry, the service is unavailable right now. Please try again shortly."
	MsgSessionExpired     = "Your session expired. Please dial the service code again."
	MsgSessionEnded       = "This session has already ended. Please dial the service code again."
	MsgInvalidRequest     = "We could not process your request. Please dial the service code again."
	MsgTimeout            = "The service is taking too long to respond. Please try again."
)

// AlertDispatcher hands created alerts to the distribution engine. Dispatch
// is queued, never awaited, so the caller's response is not blocked on
// notification delivery.
type AlertDispatcher interface {
	Enqueue(alert models.ShortageAlert) error
}

// RewardGateway credits airtime to a reporter's phone.
type RewardGateway interface {
	Reward(ctx context.Context, phone string, amount float64) error
}

// Opts holds configuration options for the session manager.
type Opts struct {
	Dispatcher     AlertDispatcher
	Rewards        RewardGateway
	SessionTimeout time.Duration
	GraceWindow    time.Duration
	RewardAmount   float64
	Clock          func() time.Time
}

// Option defines a configuration option for the session manager.
type Option func(*Opts)

// WithDispatcher sets the alert distribution engine.
func WithDispatcher(d AlertDispatcher) Option {
	return func(o *Opts) { o.Dispatcher = d }
}

// WithRewardGateway sets the airtime reward gateway.
func WithRewardGateway(g RewardGateway) Option {
	return func(o *Opts) { o.Rewards = g }
}

// WithSessionTimeout overrides the session inactivity window.
func WithSessionTimeout(d time.Duration) Option {
	return func(o *Opts) { o.SessionTimeout = d }
}

// WithGraceWindow overrides the silent-extension window.
func WithGraceWindow(d time.Duration) Option {
	return func(o *Opts) { o.GraceWindow = d }
}

// WithRewardAmount overrides the per-alert airtime amount.
func WithRewardAmount(amount float64) Option {
	return func(o *Opts) { o.RewardAmount = amount }
}

// WithClock injects the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *Opts) { o.Clock = now }
}

// Manager is the externally callable entry point of the USSD core. It wraps
// the pure menu state machine with request validation, session loading,
// expiry handling, side-effect execution and persistence.
type Manager struct {
	store        store.Store
	dispatcher   AlertDispatcher
	rewards      RewardGateway
	timeout      time.Duration
	grace        time.Duration
	rewardAmount float64
	now          func() time.Time
}

// NewManager creates a session manager over the given store.
func NewManager(st store.Store, opts ...Option) *Manager {
	cfg := Opts{
		SessionTimeout: DefaultSessionTimeout,
		GraceWindow:    DefaultGraceWindow,
		RewardAmount:   DefaultRewardAmount,
		Clock:          time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Manager{
		store:        st,
		dispatcher:   cfg.Dispatcher,
		rewards:      cfg.Rewards,
		timeout:      cfg.SessionTimeout,
		grace:        cfg.GraceWindow,
		rewardAmount: cfg.RewardAmount,
		now:          cfg.Clock,
	}
}

// Handle processes one inbound gateway request end to end and always returns
// a renderable response; internal failures surface as a generic terminal
// message, never as an error.
func (m *Manager) Handle(ctx context.Context, req models.UssdRequest) (resp models.UssdResponse) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Manager.Handle: panic recovered", "panic", r, "sessionID", req.SessionID)
			metrics.RequestsTotal.WithLabelValues("panic").Inc()
			resp = models.UssdResponse{Text: MsgServiceUnavailable, End: true}
		}
	}()

	if err := req.Validate(); err != nil {
		slog.Warn("Manager.Handle: invalid request", "error", err, "sessionID", req.SessionID)
		metrics.RequestsTotal.WithLabelValues("invalid").Inc()
		return models.UssdResponse{Text: MsgInvalidRequest, End: true}
	}

	phone, err := NormalizePhone(req.PhoneNumber)
	if err != nil {
		slog.Warn("Manager.Handle: phone normalization failed", "error", err, "sessionID", req.SessionID)
		metrics.RequestsTotal.WithLabelValues("invalid").Inc()
		return models.UssdResponse{Text: MsgInvalidRequest, End: true}
	}

	carrier := DetectCarrier(req.NetworkCode)
	now := m.now()

	sess, err := m.store.GetSession(req.SessionID)
	if err != nil {
		slog.Error("Manager.Handle: session load failed", "error", err, "sessionID", req.SessionID)
		metrics.RequestsTotal.WithLabelValues("error").Inc()
		return models.UssdResponse{Text: MsgServiceUnavailable, End: true}
	}

	if sess == nil {
		sess = &models.Session{
			ID:             req.SessionID,
			PhoneNumber:    phone,
			ServiceCode:    req.ServiceCode,
			Level:          models.LevelWelcome,
			Status:         models.SessionStatusActive,
			Carrier:        carrier,
			StartedAt:      now,
			LastActivityAt: now,
			ExpiresAt:      now.Add(m.timeout),
		}
		slog.Debug("Manager.Handle: new session", "sessionID", sess.ID, "phone", phone, "carrier", carrier)
	} else {
		if sess.Status.IsTerminal() {
			slog.Debug("Manager.Handle: request for terminal session", "sessionID", sess.ID, "status", sess.Status)
			metrics.RequestsTotal.WithLabelValues("terminal").Inc()
			return m.render(models.UssdResponse{Text: MsgSessionEnded, End: true}, carrier)
		}
		if now.After(sess.ExpiresAt) {
			// Lazy expiry: short-circuit without advancing the state machine.
			sess.Status = models.SessionStatusExpired
			if err := m.store.SaveSession(*sess); err != nil {
				slog.Error("Manager.Handle: failed to persist expired session", "error", err, "sessionID", sess.ID)
			}
			metrics.RequestsTotal.WithLabelValues("expired").Inc()
			return m.render(models.UssdResponse{Text: MsgSessionExpired, End: true}, carrier)
		}
		if sess.ExpiresAt.Sub(now) <= m.grace {
			// Close to expiring: silently extend before processing.
			sess.ExpiresAt = now.Add(m.timeout)
			slog.Debug("Manager.Handle: session expiry extended", "sessionID", sess.ID, "expiresAt", sess.ExpiresAt)
		}
	}

	caller, err := m.store.GetFacilityByPhone(phone)
	if err != nil {
		slog.Error("Manager.Handle: facility lookup failed", "error", err, "phone", phone)
		metrics.RequestsTotal.WithLabelValues("error").Inc()
		return m.render(models.UssdResponse{Text: MsgServiceUnavailable, End: true}, carrier)
	}

	catalog, err := m.loadCatalog()
	if err != nil {
		slog.Error("Manager.Handle: catalog load failed", "error", err)
		metrics.RequestsTotal.WithLabelValues("error").Inc()
		return m.render(models.UssdResponse{Text: MsgServiceUnavailable, End: true}, carrier)
	}

	machine := NewMachine(catalog)
	result := machine.Transition(sess.Level, req.CurrentInput(), caller, sess.Data)
	metrics.MenuTransitionsTotal.WithLabelValues(levelLabel(sess.Level)).Inc()

	text := result.Text
	if result.Action != nil {
		text = m.execute(ctx, result.Action, sess, caller, now, text)
	}

	sess.Level = result.NextLevel
	sess.Data = result.Data
	sess.LastActivityAt = now
	sess.ExpiresAt = now.Add(m.timeout)
	if result.EndSession && !sess.Status.IsTerminal() {
		sess.Status = models.SessionStatusCompleted
	}
	if err := m.store.SaveSession(*sess); err != nil {
		// The caller still gets a definitive response; the lost state only
		// costs them a restart.
		slog.Error("Manager.Handle: session persist failed", "error", err, "sessionID", sess.ID)
	}

	metrics.RequestsTotal.WithLabelValues("ok").Inc()
	return m.render(models.UssdResponse{Text: text, End: result.EndSession}, carrier)
}

// execute performs the side effect described by the state machine and
// returns the text of the terminal response.
func (m *Manager) execute(ctx context.Context, action *Action, sess *models.Session, caller *models.Facility, now time.Time, fallback string) string {
	switch action.Kind {
	case ActionListAlerts:
		alerts, err := m.store.ListAlertsByPhone(sess.PhoneNumber, RecentAlertsLimit)
		if err != nil {
			slog.Error("Manager.execute: alert history load failed", "error", err, "phone", sess.PhoneNumber)
			return MsgServiceUnavailable
		}
		return RenderRecentAlerts(alerts)

	case ActionSubmitAlert:
		alert := models.ShortageAlert{
			ID:          uuid.NewString(),
			PhoneNumber: sess.PhoneNumber,
			DrugName:    action.Drug,
			Category:    action.Category,
			Quantity:    action.Quantity,
			Unit:        DefaultAlertUnit,
			Urgency:     action.Urgency,
			Status:      models.AlertStatusPending,
			CreatedAt:   now,
		}
		if caller != nil {
			alert.FacilityID = caller.ID
			alert.FacilityName = caller.Name
			alert.Location = caller.Location
			alert.Latitude = caller.Latitude
			alert.Longitude = caller.Longitude
		}
		if err := m.store.CreateAlert(alert); err != nil {
			slog.Error("Manager.execute: alert creation failed", "error", err, "sessionID", sess.ID, "drug", alert.DrugName)
			return action.FailureText
		}
		slog.Info("Manager.execute: shortage alert created", "alertID", alert.ID, "drug", alert.DrugName, "quantity", alert.Quantity, "urgency", alert.Urgency)
		metrics.AlertsCreatedTotal.Inc()

		if m.rewards != nil {
			if err := m.rewards.Reward(ctx, sess.PhoneNumber, m.rewardAmount); err != nil {
				slog.Error("Manager.execute: reward failed", "error", err, "phone", sess.PhoneNumber, "alertID", alert.ID)
			}
		}
		if m.dispatcher != nil {
			if err := m.dispatcher.Enqueue(alert); err != nil {
				slog.Error("Manager.execute: dispatch enqueue failed", "error", err, "alertID", alert.ID)
			}
		}
		return action.SuccessText

	case ActionRegisterFacility:
		facility := models.Facility{
			ID:           uuid.NewString(),
			PhoneNumber:  sess.PhoneNumber,
			ContactName:  action.ContactName,
			Name:         action.FacilityName,
			Location:     action.Location,
			RegisteredAt: now,
		}
		if err := m.store.SaveFacility(facility); err != nil {
			slog.Error("Manager.execute: facility registration failed", "error", err, "phone", sess.PhoneNumber)
			return action.FailureText
		}
		slog.Info("Manager.execute: facility registered", "facilityID", facility.ID, "name", facility.Name, "phone", facility.PhoneNumber)
		return action.SuccessText

	default:
		slog.Error("Manager.execute: unknown action kind", "kind", action.Kind, "sessionID", sess.ID)
		return fallback
	}
}

// render applies the carrier's screen limit before handing the response back.
func (m *Manager) render(resp models.UssdResponse, carrier models.Carrier) models.UssdResponse {
	resp.Text = TruncateScreen(resp.Text, ScreenLimit(carrier))
	return resp
}

// loadCatalog assembles the drug catalog from the store.
func (m *Manager) loadCatalog() ([]models.DrugCategory, error) {
	names, err := m.store.ListDrugCategories()
	if err != nil {
		return nil, err
	}
	catalog := make([]models.DrugCategory, 0, len(names))
	for _, name := range names {
		drugs, err := m.store.ListDrugsByCategory(name)
		if err != nil {
			return nil, err
		}
		catalog = append(catalog, models.DrugCategory{Name: name, Drugs: drugs})
	}
	return catalog, nil
}

// ExpireStale marks sessions whose expiry already passed. Wired to the
// periodic cleanup job; lazy expiry on access remains authoritative.
func (m *Manager) ExpireStale() {
	n, err := m.store.ExpireStaleSessions(m.now())
	if err != nil {
		slog.Error("Manager.ExpireStale: cleanup failed", "error", err)
		return
	}
	if n > 0 {
		slog.Info("Manager.ExpireStale: stale sessions expired", "count", n)
	}
}

func levelLabel(l models.MenuLevel) string {
	switch l {
	case models.LevelWelcome:
		return "welcome"
	case models.LevelMainMenu:
		return "main_menu"
	case models.LevelCategory:
		return "category"
	case models.LevelDrug:
		return "drug"
	case models.LevelQuantity:
		return "quantity"
	case models.LevelUrgency:
		return "urgency"
	case models.LevelRegisterName:
		return "register_name"
	case models.LevelRegisterFacility:
		return "register_facility"
	case models.LevelRegisterLocation:
		return "register_location"
	default:
		return "unknown"
	}
}
