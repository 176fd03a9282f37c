package models

import (
	"errors"
	"testing"
)

func TestUssdRequestValidate(t *testing.T) {
	valid := UssdRequest{SessionID: "ATUid_b1c2d3", ServiceCode: "*384*1234#", PhoneNumber: "+254712345678"}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid request rejected: %v", err)
	}

	tests := []struct {
		name    string
		mutate  func(r *UssdRequest)
		wantErr error
	}{
		{name: "missing session id", mutate: func(r *UssdRequest) { r.SessionID = "" }, wantErr: ErrMissingSessionID},
		{name: "session id with spaces", mutate: func(r *UssdRequest) { r.SessionID = "abc def" }, wantErr: ErrInvalidSessionID},
		{name: "session id with symbols", mutate: func(r *UssdRequest) { r.SessionID = "abc;drop" }, wantErr: ErrInvalidSessionID},
		{name: "missing service code", mutate: func(r *UssdRequest) { r.ServiceCode = "" }, wantErr: ErrMissingServiceCode},
		{name: "missing phone", mutate: func(r *UssdRequest) { r.PhoneNumber = "" }, wantErr: ErrMissingPhoneNumber},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)
			if err := req.Validate(); !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCurrentInput(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"", ""},
		{"1", "1"},
		{"1*2*40", "40"},
		{"1*2*", ""},
		{"1*Jane Okoth", "Jane Okoth"},
		{"1* 42 ", "42"},
	}
	for _, tt := range tests {
		req := UssdRequest{Text: tt.text}
		if got := req.CurrentInput(); got != tt.want {
			t.Errorf("CurrentInput(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}

func TestUssdResponseRender(t *testing.T) {
	cont := UssdResponse{Text: "Select drug category:"}
	if got := cont.Render(); got != "CON Select drug category:" {
		t.Errorf("Render() = %q", got)
	}
	end := UssdResponse{Text: "Goodbye.", End: true}
	if got := end.Render(); got != "END Goodbye." {
		t.Errorf("Render() = %q", got)
	}
}

func TestSessionStatusIsTerminal(t *testing.T) {
	if SessionStatusActive.IsTerminal() {
		t.Error("active must not be terminal")
	}
	for _, s := range []SessionStatus{SessionStatusCompleted, SessionStatusExpired, SessionStatusCancelled} {
		if !s.IsTerminal() {
			t.Errorf("%q must be terminal", s)
		}
	}
}

func TestUrgencyFromIndex(t *testing.T) {
	tests := []struct {
		idx  int
		want UrgencyLevel
		ok   bool
	}{
		{1, UrgencyLow, true},
		{2, UrgencyMedium, true},
		{3, UrgencyHigh, true},
		{4, UrgencyCritical, true},
		{0, "", false},
		{5, "", false},
		{-1, "", false},
	}
	for _, tt := range tests {
		got, ok := UrgencyFromIndex(tt.idx)
		if got != tt.want || ok != tt.ok {
			t.Errorf("UrgencyFromIndex(%d) = %q,%v", tt.idx, got, ok)
		}
	}
}
