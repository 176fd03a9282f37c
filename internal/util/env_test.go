package util

import (
	"testing"
	"time"
)

func TestParseBoolEnv(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		def      bool
		expected bool
	}{
		{name: "unset uses default", value: "", def: true, expected: true},
		{name: "true", value: "true", def: false, expected: true},
		{name: "one", value: "1", def: false, expected: true},
		{name: "yes uppercase", value: "YES", def: false, expected: true},
		{name: "on with spaces", value: " on ", def: false, expected: true},
		{name: "false", value: "false", def: true, expected: false},
		{name: "zero", value: "0", def: true, expected: false},
		{name: "off", value: "off", def: true, expected: false},
		{name: "garbage uses default", value: "maybe", def: true, expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.value != "" {
				t.Setenv("DAWACALL_TEST_BOOL", tt.value)
			}
			if got := ParseBoolEnv("DAWACALL_TEST_BOOL", tt.def); got != tt.expected {
				t.Errorf("ParseBoolEnv(%q, %v) = %v, want %v", tt.value, tt.def, got, tt.expected)
			}
		})
	}
}

func TestParseDurationEnv(t *testing.T) {
	def := 3 * time.Minute

	if got := ParseDurationEnv("DAWACALL_TEST_DURATION", def); got != def {
		t.Errorf("unset variable = %v, want default", got)
	}

	t.Setenv("DAWACALL_TEST_DURATION", "45s")
	if got := ParseDurationEnv("DAWACALL_TEST_DURATION", def); got != 45*time.Second {
		t.Errorf("parsed duration = %v", got)
	}

	t.Setenv("DAWACALL_TEST_DURATION", "soon")
	if got := ParseDurationEnv("DAWACALL_TEST_DURATION", def); got != def {
		t.Errorf("invalid duration = %v, want default", got)
	}
}
