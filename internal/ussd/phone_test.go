package ussd

import "testing"

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"0821234567", "+27821234567"},
		{"082 123 4567", "+27821234567"},
		{"821234567", "+27821234567"},
		{"+27821234567", "+27821234567"},
		{"27821234567", "+27821234567"},
		{"(082) 123-4567", "+27821234567"},
		{"+1 415 555 0100", "+14155550100"},
		{"1234", "+1234"},
	}

	for _, tt := range tests {
		if got := NormalizePhone(tt.input); got != tt.expected {
			t.Errorf("NormalizePhone(%q): expected %q, got %q", tt.input, tt.expected, got)
		}
	}
}

func TestNormalizePhoneIsIdempotent(t *testing.T) {
	for _, input := range []string{"0821234567", "821234567", "+27821234567", "555"} {
		once := NormalizePhone(input)
		if twice := NormalizePhone(once); twice != once {
			t.Errorf("Expected idempotence for %q: %q then %q", input, once, twice)
		}
	}
}
