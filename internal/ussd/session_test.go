package ussd

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/okothm/dawacall/internal/models"
	"github.com/okothm/dawacall/internal/store"
)

// enqueueRecorder captures enqueued alerts without running a dispatch worker.
type enqueueRecorder struct {
	alerts []models.ShortageAlert
	err    error
}

func (r *enqueueRecorder) Enqueue(alert models.ShortageAlert) error {
	if r.err != nil {
		return r.err
	}
	r.alerts = append(r.alerts, alert)
	return nil
}

// rewardRecorder captures reward calls.
type rewardRecorder struct {
	phones  []string
	amounts []float64
	err     error
}

func (r *rewardRecorder) Reward(ctx context.Context, phone string, amount float64) error {
	if r.err != nil {
		return r.err
	}
	r.phones = append(r.phones, phone)
	r.amounts = append(r.amounts, amount)
	return nil
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func baseRequest(sessionID, text string) models.UssdRequest {
	return models.UssdRequest{
		SessionID:   sessionID,
		ServiceCode: "*384*1234#",
		PhoneNumber: "0712345678",
		Text:        text,
		NetworkCode: "63902",
	}
}

func TestHandleRejectsInvalidRequests(t *testing.T) {
	mgr := NewManager(store.NewInMemoryStore())

	tests := []struct {
		name string
		req  models.UssdRequest
	}{
		{name: "missing session id", req: models.UssdRequest{ServiceCode: "*384#", PhoneNumber: "0712345678"}},
		{name: "bad session token", req: models.UssdRequest{SessionID: "abc def!", ServiceCode: "*384#", PhoneNumber: "0712345678"}},
		{name: "missing service code", req: models.UssdRequest{SessionID: "s1", PhoneNumber: "0712345678"}},
		{name: "missing phone", req: models.UssdRequest{SessionID: "s1", ServiceCode: "*384#"}},
		{name: "malformed phone", req: models.UssdRequest{SessionID: "s1", ServiceCode: "*384#", PhoneNumber: "not-a-phone"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := mgr.Handle(context.Background(), tt.req)
			if !resp.End {
				t.Error("invalid request must yield a terminal response")
			}
			if resp.Text != MsgInvalidRequest {
				t.Errorf("response text = %q, want %q", resp.Text, MsgInvalidRequest)
			}
		})
	}
}

func TestHandleCreatesSessionOnFirstRequest(t *testing.T) {
	st := store.NewInMemoryStore()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	mgr := NewManager(st, WithClock(fixedClock(now)))

	resp := mgr.Handle(context.Background(), baseRequest("sess-1", ""))
	if resp.End {
		t.Fatal("welcome screen must continue the session")
	}
	if !strings.Contains(resp.Text, "Welcome to DawaCall") {
		t.Errorf("first screen = %q", resp.Text)
	}

	sess, err := st.GetSession("sess-1")
	if err != nil || sess == nil {
		t.Fatalf("session not persisted: %v", err)
	}
	if sess.Level != models.LevelMainMenu {
		t.Errorf("persisted level = %d, want main menu", sess.Level)
	}
	if sess.Status != models.SessionStatusActive {
		t.Errorf("persisted status = %q, want active", sess.Status)
	}
	if sess.PhoneNumber != "+254712345678" {
		t.Errorf("persisted phone = %q, want normalized form", sess.PhoneNumber)
	}
	if sess.Carrier != models.CarrierSafaricom {
		t.Errorf("persisted carrier = %q", sess.Carrier)
	}
	if want := now.Add(DefaultSessionTimeout); !sess.ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt = %v, want %v", sess.ExpiresAt, want)
	}
	if sess.ExpiresAt.Before(sess.LastActivityAt) {
		t.Error("ExpiresAt must never precede LastActivityAt")
	}
}

func TestHandleExpiredSession(t *testing.T) {
	st := store.NewInMemoryStore()
	started := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	if err := st.SaveSession(models.Session{
		ID:             "sess-exp",
		PhoneNumber:    "+254712345678",
		ServiceCode:    "*384*1234#",
		Level:          models.LevelCategory,
		Status:         models.SessionStatusActive,
		StartedAt:      started,
		LastActivityAt: started,
		ExpiresAt:      started.Add(DefaultSessionTimeout),
	}); err != nil {
		t.Fatal(err)
	}

	// Next request lands well past expiry.
	mgr := NewManager(st, WithClock(fixedClock(started.Add(10*time.Minute))))
	resp := mgr.Handle(context.Background(), baseRequest("sess-exp", "1*2"))
	if !resp.End {
		t.Error("expired session must yield a terminal response")
	}
	if resp.Text != MsgSessionExpired {
		t.Errorf("response text = %q, want %q", resp.Text, MsgSessionExpired)
	}

	sess, _ := st.GetSession("sess-exp")
	if sess.Status != models.SessionStatusExpired {
		t.Errorf("persisted status = %q, want expired", sess.Status)
	}
	if sess.Level != models.LevelCategory {
		t.Errorf("expiry advanced the menu level to %d", sess.Level)
	}
}

func TestHandleGraceWindowExtension(t *testing.T) {
	st := store.NewInMemoryStore()
	started := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	expiresAt := started.Add(DefaultSessionTimeout)
	if err := st.SaveSession(models.Session{
		ID:             "sess-grace",
		PhoneNumber:    "+254712345678",
		ServiceCode:    "*384*1234#",
		Level:          models.LevelMainMenu,
		Status:         models.SessionStatusActive,
		StartedAt:      started,
		LastActivityAt: started,
		ExpiresAt:      expiresAt,
	}); err != nil {
		t.Fatal(err)
	}

	// Request arrives 10s before expiry, inside the 30s grace window.
	now := expiresAt.Add(-10 * time.Second)
	mgr := NewManager(st, WithClock(fixedClock(now)))
	resp := mgr.Handle(context.Background(), baseRequest("sess-grace", "9"))
	if resp.Text == MsgSessionExpired {
		t.Fatal("request inside the grace window was treated as expired")
	}
	if resp.End {
		t.Fatal("invalid-choice re-prompt must continue the session")
	}

	sess, _ := st.GetSession("sess-grace")
	if sess.Status != models.SessionStatusActive {
		t.Errorf("session status = %q, want active", sess.Status)
	}
	if want := now.Add(DefaultSessionTimeout); !sess.ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt = %v, want extended to %v", sess.ExpiresAt, want)
	}
}

func TestHandleTerminalSessionStaysTerminal(t *testing.T) {
	st := store.NewInMemoryStore()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	for _, status := range []models.SessionStatus{models.SessionStatusCompleted, models.SessionStatusExpired, models.SessionStatusCancelled} {
		id := "sess-" + string(status)
		if err := st.SaveSession(models.Session{
			ID:          id,
			PhoneNumber: "+254712345678",
			ServiceCode: "*384*1234#",
			Level:       models.LevelMainMenu,
			Status:      status,
			ExpiresAt:   now.Add(time.Hour),
		}); err != nil {
			t.Fatal(err)
		}

		mgr := NewManager(st, WithClock(fixedClock(now)))
		resp := mgr.Handle(context.Background(), baseRequest(id, "1"))
		if !resp.End || resp.Text != MsgSessionEnded {
			t.Errorf("status %q: response = %+v", status, resp)
		}

		sess, _ := st.GetSession(id)
		if sess.Status != status {
			t.Errorf("status %q reverted to %q", status, sess.Status)
		}
	}
}

func TestHandleFullReportingSession(t *testing.T) {
	st := store.NewInMemoryStore()
	if err := st.SaveFacility(models.Facility{
		ID:          "fac-1",
		PhoneNumber: "+254712345678",
		ContactName: "Jane Okoth",
		Name:        "Mwangaza Clinic",
		Location:    "Kisumu",
	}); err != nil {
		t.Fatal(err)
	}

	dispatcher := &enqueueRecorder{}
	rewards := &rewardRecorder{}
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	mgr := NewManager(st,
		WithDispatcher(dispatcher),
		WithRewardGateway(rewards),
		WithClock(fixedClock(now)),
	)
	ctx := context.Background()

	// The gateway accumulates input; each request carries the full history.
	steps := []struct {
		text     string
		contains string
		end      bool
	}{
		{text: "", contains: "Welcome back to DawaCall, Mwangaza Clinic"},
		{text: "1", contains: "Select drug category"},
		{text: "1*2", contains: "Antibiotics - select drug"},
		{text: "1*2*1", contains: "quantity of Amoxicillin"},
		{text: "1*2*1*40", contains: "How urgent"},
		{text: "1*2*1*40*4", contains: "Alert sent: Amoxicillin x40, critical", end: true},
	}

	for _, step := range steps {
		resp := mgr.Handle(ctx, baseRequest("sess-full", step.text))
		if resp.End != step.end {
			t.Fatalf("step %q: End = %v, want %v (text %q)", step.text, resp.End, step.end, resp.Text)
		}
		if !strings.Contains(resp.Text, step.contains) {
			t.Fatalf("step %q: response %q does not contain %q", step.text, resp.Text, step.contains)
		}
	}

	sess, _ := st.GetSession("sess-full")
	if sess.Status != models.SessionStatusCompleted {
		t.Errorf("final session status = %q, want completed", sess.Status)
	}

	alerts, err := st.ListAlertsByPhone("+254712345678", 10)
	if err != nil || len(alerts) != 1 {
		t.Fatalf("alerts = %v (%v), want exactly one", alerts, err)
	}
	alert := alerts[0]
	if alert.DrugName != "Amoxicillin" || alert.Category != "Antibiotics" || alert.Quantity != 40 {
		t.Errorf("created alert = %+v", alert)
	}
	if alert.Urgency != models.UrgencyCritical || alert.Status != models.AlertStatusPending {
		t.Errorf("alert urgency/status = %q/%q", alert.Urgency, alert.Status)
	}
	if alert.FacilityID != "fac-1" || alert.FacilityName != "Mwangaza Clinic" || alert.Location != "Kisumu" {
		t.Errorf("alert facility fields = %+v", alert)
	}

	if len(dispatcher.alerts) != 1 || dispatcher.alerts[0].ID != alert.ID {
		t.Errorf("dispatcher received %v", dispatcher.alerts)
	}
	if len(rewards.phones) != 1 || rewards.phones[0] != "+254712345678" || rewards.amounts[0] != DefaultRewardAmount {
		t.Errorf("reward calls = %v %v", rewards.phones, rewards.amounts)
	}
}

func TestHandleRecentAlertsScreen(t *testing.T) {
	st := store.NewInMemoryStore()
	if err := st.SaveFacility(models.Facility{ID: "fac-1", PhoneNumber: "+254712345678", Name: "Mwangaza Clinic"}); err != nil {
		t.Fatal(err)
	}
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	for i, drug := range []string{"Paracetamol", "Insulin", "Amoxicillin", "Quinine"} {
		if err := st.CreateAlert(models.ShortageAlert{
			ID:          "alert-" + drug,
			PhoneNumber: "+254712345678",
			DrugName:    drug,
			Quantity:    10 + i,
			Urgency:     models.UrgencyMedium,
			Status:      models.AlertStatusPending,
			CreatedAt:   base.Add(time.Duration(i) * time.Hour),
		}); err != nil {
			t.Fatal(err)
		}
	}

	mgr := NewManager(st, WithClock(fixedClock(base.Add(24*time.Hour))))
	ctx := context.Background()
	mgr.Handle(ctx, baseRequest("sess-hist", ""))
	resp := mgr.Handle(ctx, baseRequest("sess-hist", "2"))
	if !resp.End {
		t.Fatal("alert history must be a terminal screen")
	}
	// Most recent first, capped at the screen limit of three.
	if !strings.Contains(resp.Text, "Quinine") {
		t.Errorf("history %q missing the newest alert", resp.Text)
	}
	if strings.Contains(resp.Text, "Paracetamol") {
		t.Errorf("history %q includes the oldest alert beyond the cap", resp.Text)
	}
}

func TestHandleRegistrationSession(t *testing.T) {
	st := store.NewInMemoryStore()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	mgr := NewManager(st, WithClock(fixedClock(now)))
	ctx := context.Background()

	steps := []string{"", "1", "1*Jane Okoth", "1*Jane Okoth*Mwangaza Clinic"}
	for _, text := range steps {
		resp := mgr.Handle(ctx, baseRequest("sess-reg", text))
		if resp.End {
			t.Fatalf("step %q ended early: %q", text, resp.Text)
		}
	}

	resp := mgr.Handle(ctx, baseRequest("sess-reg", "1*Jane Okoth*Mwangaza Clinic*Kisumu"))
	if !resp.End || !strings.Contains(resp.Text, "Registration complete") {
		t.Fatalf("final response = %+v", resp)
	}

	fac, err := st.GetFacilityByPhone("+254712345678")
	if err != nil || fac == nil {
		t.Fatalf("facility not saved: %v", err)
	}
	if fac.ContactName != "Jane Okoth" || fac.Name != "Mwangaza Clinic" || fac.Location != "Kisumu" {
		t.Errorf("saved facility = %+v", fac)
	}
}

func TestHandleAppliesScreenLimit(t *testing.T) {
	st := store.NewInMemoryStore()
	mgr := NewManager(st)

	// Unknown carrier gets the conservative 160-character cap.
	req := baseRequest("sess-limit", "")
	req.NetworkCode = ""
	resp := mgr.Handle(context.Background(), req)
	if len(resp.Text) > 160 {
		t.Errorf("response length %d exceeds the unknown-carrier cap", len(resp.Text))
	}
}

func TestExpireStale(t *testing.T) {
	st := store.NewInMemoryStore()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	sessions := []models.Session{
		{ID: "stale-1", Status: models.SessionStatusActive, ExpiresAt: now.Add(-time.Minute)},
		{ID: "stale-2", Status: models.SessionStatusActive, ExpiresAt: now.Add(-time.Hour)},
		{ID: "live", Status: models.SessionStatusActive, ExpiresAt: now.Add(time.Minute)},
		{ID: "done", Status: models.SessionStatusCompleted, ExpiresAt: now.Add(-time.Hour)},
	}
	for _, s := range sessions {
		if err := st.SaveSession(s); err != nil {
			t.Fatal(err)
		}
	}

	mgr := NewManager(st, WithClock(fixedClock(now)))
	mgr.ExpireStale()

	for id, want := range map[string]models.SessionStatus{
		"stale-1": models.SessionStatusExpired,
		"stale-2": models.SessionStatusExpired,
		"live":    models.SessionStatusActive,
		"done":    models.SessionStatusCompleted,
	} {
		sess, _ := st.GetSession(id)
		if sess.Status != want {
			t.Errorf("session %s status = %q, want %q", id, sess.Status, want)
		}
	}
}
