package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okothm/dawacall/internal/messaging"
	"github.com/okothm/dawacall/internal/metrics"
	"github.com/okothm/dawacall/internal/models"
	"github.com/okothm/dawacall/internal/store"
)

// DefaultQueueSize bounds how many alerts can wait for dispatch before
// Enqueue starts rejecting.
const DefaultQueueSize = 64

// DefaultChannels is used for suppliers whose preference does not name any
// notification channel.
var DefaultChannels = []models.Channel{models.ChannelSMS}

// Opts holds configuration options for the dispatcher.
type Opts struct {
	Senders   []messaging.Service
	QueueSize int
	Clock     func() time.Time
}

// Option defines a configuration option for the dispatcher.
type Option func(*Opts)

// WithSenders registers the channel gateways available for delivery.
func WithSenders(senders ...messaging.Service) Option {
	return func(o *Opts) { o.Senders = append(o.Senders, senders...) }
}

// WithQueueSize overrides the pending-alert queue capacity.
func WithQueueSize(n int) Option {
	return func(o *Opts) { o.QueueSize = n }
}

// WithClock injects the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *Opts) { o.Clock = now }
}

// Dispatcher routes newly created shortage alerts to eligible suppliers.
// Alerts are queued so the reporter's USSD response never waits on
// notification delivery; within one alert the per-supplier notifications
// fan out concurrently with per-recipient failure isolation.
type Dispatcher struct {
	store    store.Store
	eval     *Evaluator
	senders  map[models.Channel]messaging.Service
	queue    chan models.ShortageAlert
	inflight sync.WaitGroup
	now      func() time.Time

	mu      sync.Mutex
	stopped bool
}

// NewDispatcher creates a dispatcher over the given store and evaluator.
func NewDispatcher(st store.Store, eval *Evaluator, opts ...Option) *Dispatcher {
	cfg := Opts{QueueSize: DefaultQueueSize, Clock: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	senders := make(map[models.Channel]messaging.Service, len(cfg.Senders))
	for _, s := range cfg.Senders {
		senders[s.Channel()] = s
	}
	return &Dispatcher{
		store:   st,
		eval:    eval,
		senders: senders,
		queue:   make(chan models.ShortageAlert, cfg.QueueSize),
		now:     cfg.Clock,
	}
}

// Start consumes the alert queue until ctx is cancelled. Alerts still queued
// at cancellation are drained without dispatch so Wait can return; they remain
// persisted and can be re-dispatched by an operator.
func (d *Dispatcher) Start(ctx context.Context) {
	go func() {
		slog.Debug("Dispatcher.Start: worker running")
		for {
			select {
			case <-ctx.Done():
				slog.Debug("Dispatcher.Start: worker stopping", "reason", ctx.Err())
				d.mu.Lock()
				d.stopped = true
				d.mu.Unlock()
				d.drain()
				return
			case alert := <-d.queue:
				d.DispatchAlert(ctx, alert)
				d.inflight.Done()
			}
		}
	}()
}

// drain discards queued alerts after shutdown, releasing their Wait slots.
func (d *Dispatcher) drain() {
	for {
		select {
		case alert := <-d.queue:
			slog.Warn("Dispatcher.drain: dropping queued alert on shutdown", "alertID", alert.ID)
			d.inflight.Done()
		default:
			return
		}
	}
}

// Enqueue schedules an alert for dispatch without blocking. A full queue or a
// stopped dispatcher is reported as an error; the alert itself is already
// persisted and can be re-dispatched by an operator.
func (d *Dispatcher) Enqueue(alert models.ShortageAlert) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return fmt.Errorf("dispatcher stopped, alert %s not queued", alert.ID)
	}
	d.inflight.Add(1)
	select {
	case d.queue <- alert:
		slog.Debug("Dispatcher.Enqueue: alert queued", "alertID", alert.ID)
		return nil
	default:
		d.inflight.Done()
		return fmt.Errorf("dispatch queue full, alert %s not queued", alert.ID)
	}
}

// Wait blocks until every queued alert has been dispatched. Used by tests
// and graceful shutdown to observe delivery completion.
func (d *Dispatcher) Wait() {
	d.inflight.Wait()
}

// DispatchAlert runs one alert through eligibility evaluation and notifies
// every eligible supplier, returning the delivery records written. Failures
// in one channel or one supplier never block delivery to the others.
func (d *Dispatcher) DispatchAlert(ctx context.Context, alert models.ShortageAlert) []models.DeliveryRecord {
	suppliers, err := d.store.ListSuppliers()
	if err != nil {
		slog.Error("Dispatcher.DispatchAlert: supplier list failed", "error", err, "alertID", alert.ID)
		return nil
	}

	prefs := make(map[string]*models.SupplierPreference, len(suppliers))
	for _, sup := range suppliers {
		pref, err := d.store.GetPreference(sup.ID)
		if err != nil {
			// Fail-open: an unreadable preference must not silence a
			// supplier that may want the alert.
			slog.Error("Dispatcher.DispatchAlert: preference load failed, treating as unset", "error", err, "supplierID", sup.ID)
			continue
		}
		prefs[sup.ID] = pref
	}

	eligible := d.eval.EligibleSuppliers(alert, suppliers, prefs)
	if len(eligible) == 0 {
		slog.Info("Dispatcher.DispatchAlert: no eligible suppliers", "alertID", alert.ID, "drug", alert.DrugName)
		return nil
	}

	message := ComposeAlertMessage(alert)

	var mu sync.Mutex
	var records []models.DeliveryRecord
	var wg sync.WaitGroup
	for _, sup := range eligible {
		wg.Add(1)
		go func(sup models.Supplier) {
			defer wg.Done()
			recs := d.notifySupplier(ctx, alert, sup, prefs[sup.ID], message)
			mu.Lock()
			records = append(records, recs...)
			mu.Unlock()
		}(sup)
	}
	wg.Wait()

	slog.Info("Dispatcher.DispatchAlert: dispatch complete", "alertID", alert.ID, "suppliers", len(eligible), "attempts", len(records))
	return records
}

// notifySupplier delivers the alert to one supplier over each of its
// preferred channels, writing one delivery record per attempt.
func (d *Dispatcher) notifySupplier(ctx context.Context, alert models.ShortageAlert, sup models.Supplier, pref *models.SupplierPreference, message string) []models.DeliveryRecord {
	channels := DefaultChannels
	if pref != nil && len(pref.Channels) > 0 {
		channels = pref.Channels
	}

	var records []models.DeliveryRecord
	for _, ch := range channels {
		if ch == models.ChannelApp {
			// In-app notification is a future channel; acknowledged, not
			// dispatched.
			slog.Debug("Dispatcher.notifySupplier: skipping in-app channel", "supplierID", sup.ID)
			continue
		}

		record := models.DeliveryRecord{
			ID:         uuid.NewString(),
			AlertID:    alert.ID,
			SupplierID: sup.ID,
			Channel:    ch,
			CreatedAt:  d.now(),
		}

		sender, ok := d.senders[ch]
		if !ok {
			record.Status = models.DeliveryStatusFailed
			record.Error = fmt.Sprintf("no gateway configured for channel %s", ch)
		} else if res, err := sender.Send(ctx, recipientFor(sup, ch), message); err != nil {
			record.Status = models.DeliveryStatusFailed
			record.Error = err.Error()
		} else {
			record.Status = models.DeliveryStatusSent
			record.ProviderMessageID = res.ProviderMessageID
			record.Cost = res.Cost
		}

		metrics.DispatchAttemptsTotal.WithLabelValues(string(ch), string(record.Status)).Inc()
		if record.Status == models.DeliveryStatusFailed {
			slog.Error("Dispatcher.notifySupplier: delivery failed", "alertID", alert.ID, "supplierID", sup.ID, "channel", ch, "reason", record.Error)
		} else {
			slog.Debug("Dispatcher.notifySupplier: delivered", "alertID", alert.ID, "supplierID", sup.ID, "channel", ch)
		}

		if err := d.store.AddDeliveryRecord(record); err != nil {
			slog.Error("Dispatcher.notifySupplier: delivery record write failed", "error", err, "alertID", alert.ID, "supplierID", sup.ID)
		}
		records = append(records, record)
	}
	return records
}

// recipientFor picks the supplier address for a channel.
func recipientFor(sup models.Supplier, ch models.Channel) string {
	switch ch {
	case models.ChannelSMS:
		return sup.PhoneNumber
	case models.ChannelEmail:
		return sup.Email
	default:
		return ""
	}
}

// ComposeAlertMessage renders the supplier notification text for an alert.
func ComposeAlertMessage(alert models.ShortageAlert) string {
	msg := fmt.Sprintf("SHORTAGE ALERT: %s needs %s x%d %s, %s urgency.",
		alert.FacilityName, alert.DrugName, alert.Quantity, alert.Unit, alert.Urgency)
	if alert.Location != "" {
		msg += fmt.Sprintf(" Location: %s.", alert.Location)
	}
	if len(alert.ID) >= 8 {
		msg += fmt.Sprintf(" Ref %s.", alert.ID[:8])
	}
	return msg
}
