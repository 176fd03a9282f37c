package ussd

import (
	"reflect"
	"strings"
	"testing"

	"github.com/okothm/dawacall/internal/models"
)

var testCatalog = []models.DrugCategory{
	{Name: "Analgesics", Drugs: []string{"Paracetamol", "Ibuprofen"}},
	{Name: "Antibiotics", Drugs: []string{"Amoxicillin", "Ciprofloxacin", "Azithromycin"}},
}

var testFacility = &models.Facility{
	ID:          "fac-1",
	Name:        "Mwangaza Clinic",
	ContactName: "Jane Okoth",
	PhoneNumber: "+254712345678",
	Location:    "Kisumu",
}

func TestWelcomeScreens(t *testing.T) {
	m := NewMachine(testCatalog)

	t.Run("unregistered caller offered registration", func(t *testing.T) {
		res := m.Transition(models.LevelWelcome, "", nil, models.SessionData{})
		if res.EndSession {
			t.Fatal("welcome screen must not end the session")
		}
		if res.NextLevel != models.LevelMainMenu {
			t.Errorf("next level = %d, want main menu", res.NextLevel)
		}
		if !strings.Contains(res.Text, "Register your facility") {
			t.Errorf("unregistered welcome = %q, expected a registration option", res.Text)
		}
	})

	t.Run("registered caller greeted by name", func(t *testing.T) {
		res := m.Transition(models.LevelWelcome, "", testFacility, models.SessionData{})
		if !strings.Contains(res.Text, "Mwangaza Clinic") {
			t.Errorf("registered welcome = %q, expected the facility name", res.Text)
		}
		if !strings.Contains(res.Text, "Report drug shortage") {
			t.Errorf("registered welcome = %q, expected the report option", res.Text)
		}
		if res.NextLevel != models.LevelMainMenu {
			t.Errorf("next level = %d, want main menu", res.NextLevel)
		}
	})
}

func TestMainMenu(t *testing.T) {
	m := NewMachine(testCatalog)

	t.Run("report enters category selection", func(t *testing.T) {
		res := m.Transition(models.LevelMainMenu, "1", testFacility, models.SessionData{})
		if res.NextLevel != models.LevelCategory {
			t.Fatalf("next level = %d, want category", res.NextLevel)
		}
		if res.Data.Flow != models.FlowReport || res.Data.Report == nil {
			t.Fatal("report flow data not initialized")
		}
		if got := res.Data.Report.Categories; len(got) != 2 || got[0] != "Analgesics" || got[1] != "Antibiotics" {
			t.Errorf("stored categories = %v, want catalog order", got)
		}
		if !strings.Contains(res.Text, "1. Analgesics") || !strings.Contains(res.Text, "2. Antibiotics") {
			t.Errorf("category menu = %q, expected numbered catalog", res.Text)
		}
	})

	t.Run("report redirects unregistered caller into registration", func(t *testing.T) {
		res := m.Transition(models.LevelMainMenu, "1", nil, models.SessionData{})
		if res.NextLevel != models.LevelRegisterName {
			t.Fatalf("next level = %d, want register name", res.NextLevel)
		}
		if res.Data.Flow != models.FlowRegister || res.Data.Register == nil {
			t.Error("register flow data not initialized")
		}
	})

	t.Run("recent alerts requires registration", func(t *testing.T) {
		res := m.Transition(models.LevelMainMenu, "2", nil, models.SessionData{})
		if !res.EndSession {
			t.Error("unregistered alerts request must end the session")
		}
		if !strings.Contains(res.Text, "not registered") {
			t.Errorf("response = %q, expected a not-registered message", res.Text)
		}
	})

	t.Run("recent alerts yields list action", func(t *testing.T) {
		res := m.Transition(models.LevelMainMenu, "2", testFacility, models.SessionData{})
		if !res.EndSession {
			t.Error("alert list must be a terminal screen")
		}
		if res.Action == nil || res.Action.Kind != ActionListAlerts {
			t.Fatalf("action = %+v, want list alerts", res.Action)
		}
	})

	t.Run("exit ends politely", func(t *testing.T) {
		res := m.Transition(models.LevelMainMenu, "0", testFacility, models.SessionData{})
		if !res.EndSession || !strings.Contains(res.Text, "Goodbye") {
			t.Errorf("exit response = %+v", res)
		}
	})

	t.Run("invalid choice re-prompts without ending", func(t *testing.T) {
		res := m.Transition(models.LevelMainMenu, "9", testFacility, models.SessionData{})
		if res.EndSession {
			t.Error("invalid choice must not end the session")
		}
		if res.NextLevel != models.LevelMainMenu {
			t.Errorf("next level = %d, want main menu", res.NextLevel)
		}
		if !strings.Contains(res.Text, "Invalid choice.") {
			t.Errorf("re-prompt = %q, expected a rejection line", res.Text)
		}
	})
}

func TestReportingFlow(t *testing.T) {
	m := NewMachine(testCatalog)

	// Walk the full flow, carrying the session data forward as the manager
	// would persist it between requests.
	res := m.Transition(models.LevelMainMenu, "1", testFacility, models.SessionData{})
	res = m.Transition(res.NextLevel, "2", testFacility, res.Data) // Antibiotics
	if res.NextLevel != models.LevelDrug {
		t.Fatalf("after category: level = %d, want drug", res.NextLevel)
	}
	if res.Data.Report.Category != "Antibiotics" {
		t.Fatalf("stored category = %q", res.Data.Report.Category)
	}
	if !strings.Contains(res.Text, "3. Azithromycin") {
		t.Fatalf("drug menu = %q", res.Text)
	}

	res = m.Transition(res.NextLevel, "1", testFacility, res.Data) // Amoxicillin
	if res.NextLevel != models.LevelQuantity {
		t.Fatalf("after drug: level = %d, want quantity", res.NextLevel)
	}
	if !strings.Contains(res.Text, "Amoxicillin") {
		t.Errorf("quantity prompt = %q, expected the chosen drug", res.Text)
	}

	res = m.Transition(res.NextLevel, "40", testFacility, res.Data)
	if res.NextLevel != models.LevelUrgency {
		t.Fatalf("after quantity: level = %d, want urgency", res.NextLevel)
	}
	if !res.Data.Report.HasQty || res.Data.Report.Quantity != 40 {
		t.Fatalf("stored quantity = %+v", res.Data.Report)
	}

	res = m.Transition(res.NextLevel, "4", testFacility, res.Data) // Critical
	if !res.EndSession {
		t.Fatal("urgency selection must end the session")
	}
	action := res.Action
	if action == nil || action.Kind != ActionSubmitAlert {
		t.Fatalf("action = %+v, want submit alert", action)
	}
	if action.Drug != "Amoxicillin" || action.Category != "Antibiotics" || action.Quantity != 40 || action.Urgency != models.UrgencyCritical {
		t.Errorf("submit action = %+v", action)
	}
	if !strings.Contains(action.SuccessText, "Amoxicillin x40") || !strings.Contains(action.SuccessText, "critical") {
		t.Errorf("success text = %q, expected drug, quantity and urgency", action.SuccessText)
	}
}

func TestInvalidInputReprompts(t *testing.T) {
	m := NewMachine(testCatalog)
	data := models.SessionData{
		Flow:   models.FlowReport,
		Report: &models.ReportData{Categories: []string{"Analgesics", "Antibiotics"}, Category: "Antibiotics", Drugs: []string{"Amoxicillin"}, Drug: "Amoxicillin"},
	}

	tests := []struct {
		name  string
		level models.MenuLevel
		input string
	}{
		{name: "category out of range", level: models.LevelCategory, input: "7"},
		{name: "category not a number", level: models.LevelCategory, input: "x"},
		{name: "drug out of range", level: models.LevelDrug, input: "5"},
		{name: "quantity not a number", level: models.LevelQuantity, input: "abc"},
		{name: "quantity negative", level: models.LevelQuantity, input: "-5"},
		{name: "urgency out of range", level: models.LevelUrgency, input: "9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := m.Transition(tt.level, tt.input, testFacility, data)
			if res.EndSession {
				t.Error("bad input must not end the session")
			}
			if res.NextLevel != tt.level {
				t.Errorf("next level = %d, want re-prompt at %d", res.NextLevel, tt.level)
			}
			if res.Action != nil {
				t.Errorf("bad input produced action %+v", res.Action)
			}
			if res.Data.Report == nil || !reflect.DeepEqual(*res.Data.Report, *data.Report) {
				t.Errorf("bad input mutated session data: %+v", res.Data.Report)
			}
		})
	}
}

func TestBackNavigation(t *testing.T) {
	m := NewMachine(testCatalog)
	data := models.SessionData{
		Flow:   models.FlowReport,
		Report: &models.ReportData{Categories: []string{"Analgesics", "Antibiotics"}, Category: "Antibiotics", Drugs: []string{"Amoxicillin", "Ciprofloxacin", "Azithromycin"}},
	}

	t.Run("category back to main menu", func(t *testing.T) {
		res := m.Transition(models.LevelCategory, "0", testFacility, data)
		if res.NextLevel != models.LevelMainMenu || res.EndSession {
			t.Errorf("back from category: %+v", res)
		}
	})

	t.Run("drug back to category list", func(t *testing.T) {
		res := m.Transition(models.LevelDrug, "0", testFacility, data)
		if res.NextLevel != models.LevelCategory || res.EndSession {
			t.Fatalf("back from drug: %+v", res)
		}
		if !strings.Contains(res.Text, "1. Analgesics") {
			t.Errorf("category re-render = %q", res.Text)
		}
	})
}

func TestRegistrationFlow(t *testing.T) {
	m := NewMachine(testCatalog)

	res := m.Transition(models.LevelMainMenu, "1", nil, models.SessionData{})
	res = m.Transition(res.NextLevel, "Jane Okoth", nil, res.Data)
	if res.NextLevel != models.LevelRegisterFacility {
		t.Fatalf("after name: level = %d", res.NextLevel)
	}

	res = m.Transition(res.NextLevel, "Mwangaza Clinic", nil, res.Data)
	if res.NextLevel != models.LevelRegisterLocation {
		t.Fatalf("after facility: level = %d", res.NextLevel)
	}

	res = m.Transition(res.NextLevel, "Kisumu", nil, res.Data)
	if !res.EndSession {
		t.Fatal("location entry must complete registration")
	}
	action := res.Action
	if action == nil || action.Kind != ActionRegisterFacility {
		t.Fatalf("action = %+v, want register facility", action)
	}
	if action.ContactName != "Jane Okoth" || action.FacilityName != "Mwangaza Clinic" || action.Location != "Kisumu" {
		t.Errorf("register action = %+v", action)
	}
}

func TestRegistrationRejectsShortInput(t *testing.T) {
	m := NewMachine(testCatalog)
	for _, level := range []models.MenuLevel{models.LevelRegisterName, models.LevelRegisterFacility, models.LevelRegisterLocation} {
		res := m.Transition(level, "x", nil, models.SessionData{Flow: models.FlowRegister, Register: &models.RegisterData{}})
		if res.NextLevel != level || res.EndSession || res.Action != nil {
			t.Errorf("level %d accepted one-character input: %+v", level, res)
		}
	}
}

func TestUnknownLevelTerminates(t *testing.T) {
	m := NewMachine(testCatalog)
	res := m.Transition(models.MenuLevel(99), "1", testFacility, models.SessionData{})
	if !res.EndSession {
		t.Error("unknown level must end the session")
	}
	if res.Text == "" {
		t.Error("unknown level must still produce a screen")
	}
}

func TestTransitionsDeterministic(t *testing.T) {
	m := NewMachine(testCatalog)
	data := models.SessionData{Flow: models.FlowReport, Report: &models.ReportData{Categories: []string{"Analgesics", "Antibiotics"}}}
	first := m.Transition(models.LevelCategory, "2", testFacility, data)
	second := m.Transition(models.LevelCategory, "2", testFacility, data)
	if first.Text != second.Text || first.NextLevel != second.NextLevel || first.EndSession != second.EndSession {
		t.Errorf("same inputs produced different results:\n%+v\n%+v", first, second)
	}
}

// TestTransitionsStayOnTable drives every level with a spread of inputs and
// checks the outcome against the declared menu graph.
func TestTransitionsStayOnTable(t *testing.T) {
	m := NewMachine(testCatalog)
	data := models.SessionData{
		Flow: models.FlowReport,
		Report: &models.ReportData{
			Categories: []string{"Analgesics", "Antibiotics"},
			Drugs:      []string{"Amoxicillin", "Ciprofloxacin"},
			Category:   "Antibiotics",
			Drug:       "Amoxicillin",
		},
		Register: &models.RegisterData{ContactName: "Jane Okoth", FacilityName: "Mwangaza Clinic"},
	}
	inputs := []string{"", "0", "1", "2", "3", "4", "5", "9", "abc", "-1", "Jane Okoth"}

	for level, allowed := range TransitionTable {
		for _, input := range inputs {
			res := m.Transition(level, input, testFacility, data)
			ok := false
			for _, next := range allowed {
				if res.NextLevel == next {
					ok = true
					break
				}
			}
			if !ok {
				t.Errorf("level %d input %q went to %d, outside %v", level, input, res.NextLevel, allowed)
			}
		}
	}
}
