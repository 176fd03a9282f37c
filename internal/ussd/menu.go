package ussd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/okothm/dawacall/internal/models"
)

// MinNameLength is the minimum accepted length for registration text fields.
const MinNameLength = 2

// ActionKind identifies a side effect the state machine asks its caller to
// perform. The machine itself does no I/O.
type ActionKind string

const (
	// ActionSubmitAlert creates a shortage alert from the accumulated
	// selections and ends the session.
	ActionSubmitAlert ActionKind = "submit_alert"
	// ActionRegisterFacility creates the caller's facility record and ends
	// the session.
	ActionRegisterFacility ActionKind = "register_facility"
	// ActionListAlerts renders the caller's last alerts as the terminal
	// response.
	ActionListAlerts ActionKind = "list_alerts"
)

// Action describes a side effect for the session manager to execute. For
// submit and register actions the machine supplies both outcome texts; the
// manager picks one based on whether the effect succeeded.
type Action struct {
	Kind ActionKind

	// submit fields
	Category string
	Drug     string
	Quantity int
	Urgency  models.UrgencyLevel

	// register fields
	ContactName  string
	FacilityName string
	Location     string

	SuccessText string
	FailureText string
}

// Result is the outcome of one menu transition.
type Result struct {
	Text       string
	NextLevel  models.MenuLevel
	EndSession bool
	Data       models.SessionData
	Action     *Action
}

// Machine is the pure USSD menu state machine. Given the current level, the
// caller's input, the caller's registration record and the session data, it
// computes the next screen. The drug catalog is fixed at construction so
// transitions stay deterministic.
type Machine struct {
	catalog []models.DrugCategory
}

// NewMachine creates a menu state machine over the given drug catalog.
func NewMachine(catalog []models.DrugCategory) *Machine {
	return &Machine{catalog: catalog}
}

// TransitionTable enumerates which levels each level may hand off to,
// including re-prompts at the same level. Terminal responses keep the
// current level. Used by property tests to pin the menu graph.
var TransitionTable = map[models.MenuLevel][]models.MenuLevel{
	models.LevelWelcome:          {models.LevelMainMenu},
	models.LevelMainMenu:         {models.LevelMainMenu, models.LevelCategory, models.LevelRegisterName},
	models.LevelCategory:         {models.LevelCategory, models.LevelMainMenu, models.LevelDrug},
	models.LevelDrug:             {models.LevelDrug, models.LevelCategory, models.LevelQuantity},
	models.LevelQuantity:         {models.LevelQuantity, models.LevelUrgency},
	models.LevelUrgency:          {models.LevelUrgency},
	models.LevelRegisterName:     {models.LevelRegisterName, models.LevelRegisterFacility},
	models.LevelRegisterFacility: {models.LevelRegisterFacility, models.LevelRegisterLocation},
	models.LevelRegisterLocation: {models.LevelRegisterLocation},
}

// Transition computes the response for one request. It is a pure function of
// its inputs; side effects are returned as a described Action, never
// performed here.
func (m *Machine) Transition(level models.MenuLevel, input string, caller *models.Facility, data models.SessionData) Result {
	input = strings.TrimSpace(input)

	switch level {
	case models.LevelWelcome:
		return m.welcome(caller, data)
	case models.LevelMainMenu:
		return m.mainMenu(input, caller, data)
	case models.LevelCategory:
		return m.selectCategory(input, caller, data)
	case models.LevelDrug:
		return m.selectDrug(input, data)
	case models.LevelQuantity:
		return m.enterQuantity(input, data)
	case models.LevelUrgency:
		return m.selectUrgency(input, data)
	case models.LevelRegisterName:
		return m.registerName(input, data)
	case models.LevelRegisterFacility:
		return m.registerFacility(input, data)
	case models.LevelRegisterLocation:
		return m.registerLocation(input, data)
	default:
		// Defensive terminal state for levels that no longer exist.
		return Result{
			Text:       "Your session is in an unknown state. Please dial again to restart.",
			NextLevel:  level,
			EndSession: true,
			Data:       data,
		}
	}
}

// welcome shows the entry screen. The variant depends on whether the caller
// is registered; either way the session advances to the main menu.
func (m *Machine) welcome(caller *models.Facility, data models.SessionData) Result {
	var text string
	if caller != nil {
		text = renderNumberedMenu(
			fmt.Sprintf("Welcome back to DawaCall, %s.", caller.Name),
			[]string{"Report drug shortage", "My recent alerts", "Help"},
			"Exit")
	} else {
		text = renderNumberedMenu(
			"Welcome to DawaCall.",
			[]string{"Register your facility", "My recent alerts", "Help"},
			"Exit")
	}
	return Result{Text: text, NextLevel: models.LevelMainMenu, Data: data}
}

// mainMenuText re-renders the main menu options without the welcome line,
// for re-prompts and back navigation.
func mainMenuText(caller *models.Facility, prefix string) string {
	first := "Report drug shortage"
	if caller == nil {
		first = "Register your facility"
	}
	prompt := "Main menu:"
	if prefix != "" {
		prompt = prefix + "\n" + prompt
	}
	return renderNumberedMenu(prompt, []string{first, "My recent alerts", "Help"}, "Exit")
}

func (m *Machine) mainMenu(input string, caller *models.Facility, data models.SessionData) Result {
	switch input {
	case "1":
		if caller == nil {
			// Unregistered callers are redirected into the registration flow.
			data.Flow = models.FlowRegister
			data.Register = &models.RegisterData{}
			data.Report = nil
			return Result{
				Text:      "Enter your full name:",
				NextLevel: models.LevelRegisterName,
				Data:      data,
			}
		}
		categories := make([]string, 0, len(m.catalog))
		for _, c := range m.catalog {
			categories = append(categories, c.Name)
		}
		data.Flow = models.FlowReport
		data.Report = &models.ReportData{Categories: categories}
		data.Register = nil
		return Result{
			Text:      renderNumberedMenu("Select drug category:", categories, "Back"),
			NextLevel: models.LevelCategory,
			Data:      data,
		}
	case "2":
		if caller == nil {
			return Result{
				Text:       "You are not registered. Dial again and select 1 to register your facility.",
				NextLevel:  models.LevelMainMenu,
				EndSession: true,
				Data:       data,
			}
		}
		return Result{
			NextLevel:  models.LevelMainMenu,
			EndSession: true,
			Data:       data,
			Action:     &Action{Kind: ActionListAlerts},
		}
	case "3":
		return Result{
			Text:       "DawaCall lets clinics report critical drug shortages by phone. Matching suppliers are alerted instantly and confirmed reports earn airtime. Support: 0800 221 100.",
			NextLevel:  models.LevelMainMenu,
			EndSession: true,
			Data:       data,
		}
	case "0":
		return Result{
			Text:       "Thank you for using DawaCall. Goodbye.",
			NextLevel:  models.LevelMainMenu,
			EndSession: true,
			Data:       data,
		}
	default:
		return Result{
			Text:      mainMenuText(caller, "Invalid choice."),
			NextLevel: models.LevelMainMenu,
			Data:      data,
		}
	}
}

func (m *Machine) selectCategory(input string, caller *models.Facility, data models.SessionData) Result {
	rd := reportData(data)
	if input == "0" {
		return Result{
			Text:      mainMenuText(caller, ""),
			NextLevel: models.LevelMainMenu,
			Data:      data,
		}
	}

	idx, err := strconv.Atoi(input)
	if err != nil || idx < 1 || idx > len(rd.Categories) {
		return Result{
			Text:      renderNumberedMenu("Invalid selection. Select drug category:", rd.Categories, "Back"),
			NextLevel: models.LevelCategory,
			Data:      data,
		}
	}

	category := rd.Categories[idx-1]
	drugs := m.drugsFor(category)
	rd.Category = category
	rd.Drugs = drugs
	data.Report = &rd
	return Result{
		Text:      renderNumberedMenu(fmt.Sprintf("%s - select drug:", category), drugs, "Back"),
		NextLevel: models.LevelDrug,
		Data:      data,
	}
}

func (m *Machine) selectDrug(input string, data models.SessionData) Result {
	rd := reportData(data)
	if input == "0" {
		// Back to category selection, recomputed from session data rather
		// than re-fetched.
		return Result{
			Text:      renderNumberedMenu("Select drug category:", rd.Categories, "Back"),
			NextLevel: models.LevelCategory,
			Data:      data,
		}
	}

	idx, err := strconv.Atoi(input)
	if err != nil || idx < 1 || idx > len(rd.Drugs) {
		return Result{
			Text:      renderNumberedMenu("Invalid selection. Select drug:", rd.Drugs, "Back"),
			NextLevel: models.LevelDrug,
			Data:      data,
		}
	}

	rd.Drug = rd.Drugs[idx-1]
	data.Report = &rd
	return Result{
		Text:      fmt.Sprintf("Enter quantity of %s needed (units):", rd.Drug),
		NextLevel: models.LevelQuantity,
		Data:      data,
	}
}

func (m *Machine) enterQuantity(input string, data models.SessionData) Result {
	qty, err := strconv.Atoi(input)
	if err != nil || qty < 0 {
		// Parsing failures never crash the machine; re-prompt at the same
		// level without touching stored data.
		return Result{
			Text:      "Please enter a valid quantity (a whole number):",
			NextLevel: models.LevelQuantity,
			Data:      data,
		}
	}

	rd := reportData(data)
	rd.Quantity = qty
	rd.HasQty = true
	data.Report = &rd
	return Result{
		Text: renderNumberedMenu("How urgent is this shortage?",
			[]string{"Low", "Medium", "High", "Critical"}, ""),
		NextLevel: models.LevelUrgency,
		Data:      data,
	}
}

func (m *Machine) selectUrgency(input string, data models.SessionData) Result {
	idx, err := strconv.Atoi(input)
	urgency, ok := models.UrgencyFromIndex(idx)
	if err != nil || !ok {
		return Result{
			Text: renderNumberedMenu("Invalid selection. How urgent is this shortage?",
				[]string{"Low", "Medium", "High", "Critical"}, ""),
			NextLevel: models.LevelUrgency,
			Data:      data,
		}
	}

	rd := reportData(data)
	return Result{
		NextLevel:  models.LevelUrgency,
		EndSession: true,
		Data:       data,
		Action: &Action{
			Kind:     ActionSubmitAlert,
			Category: rd.Category,
			Drug:     rd.Drug,
			Quantity: rd.Quantity,
			Urgency:  urgency,
			SuccessText: fmt.Sprintf("Alert sent: %s x%d, %s urgency. Matching suppliers have been notified. Thank you for reporting.",
				rd.Drug, rd.Quantity, urgency),
			FailureText: "Sorry, we could not record your alert right now. Please try again later.",
		},
	}
}

func (m *Machine) registerName(input string, data models.SessionData) Result {
	if len(input) < MinNameLength {
		return Result{
			Text:      "Please enter your full name (at least 2 characters):",
			NextLevel: models.LevelRegisterName,
			Data:      data,
		}
	}
	reg := registerData(data)
	reg.ContactName = input
	data.Register = &reg
	return Result{
		Text:      "Enter your facility name:",
		NextLevel: models.LevelRegisterFacility,
		Data:      data,
	}
}

func (m *Machine) registerFacility(input string, data models.SessionData) Result {
	if len(input) < MinNameLength {
		return Result{
			Text:      "Please enter your facility name (at least 2 characters):",
			NextLevel: models.LevelRegisterFacility,
			Data:      data,
		}
	}
	reg := registerData(data)
	reg.FacilityName = input
	data.Register = &reg
	return Result{
		Text:      "Enter your facility location (town or area):",
		NextLevel: models.LevelRegisterLocation,
		Data:      data,
	}
}

func (m *Machine) registerLocation(input string, data models.SessionData) Result {
	if len(input) < MinNameLength {
		return Result{
			Text:      "Please enter your location (at least 2 characters):",
			NextLevel: models.LevelRegisterLocation,
			Data:      data,
		}
	}
	reg := registerData(data)
	reg.Location = input
	data.Register = &reg
	return Result{
		NextLevel:  models.LevelRegisterLocation,
		EndSession: true,
		Data:       data,
		Action: &Action{
			Kind:         ActionRegisterFacility,
			ContactName:  reg.ContactName,
			FacilityName: reg.FacilityName,
			Location:     reg.Location,
			SuccessText:  "Registration complete! Dial the service code again to report your first shortage.",
			FailureText:  "Sorry, registration failed. Please try again later.",
		},
	}
}

// drugsFor returns the drug list for a catalog category.
func (m *Machine) drugsFor(category string) []string {
	for _, c := range m.catalog {
		if c.Name == category {
			return c.Drugs
		}
	}
	return nil
}

// reportData returns a copy of the reporting data bag, creating it when the
// session has none yet.
func reportData(data models.SessionData) models.ReportData {
	if data.Report != nil {
		return *data.Report
	}
	return models.ReportData{}
}

// registerData returns a copy of the registration data bag.
func registerData(data models.SessionData) models.RegisterData {
	if data.Register != nil {
		return *data.Register
	}
	return models.RegisterData{}
}
