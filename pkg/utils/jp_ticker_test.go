package utils

import "testing"

func TestNormalizeTicker(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"7203", "7203"},
		{"7203.T", "7203"},
		{"7203.t", "7203"},
		{" 7203 ", "7203"},
		{"$7203", "7203"},
		{"285a", "285A"},
		{"285A.T", "285A"},
		{"aapl", "AAPL"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := NormalizeTicker(tt.input)
			if result != tt.expected {
				t.Errorf("NormalizeTicker(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestIsJPTicker(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{"7203", true},
		{"7203.T", true},
		{"285A", true},
		{"285a", true},
		{"6758", true},
		{"AAPL", false},
		{"72030", false},
		{"720", false},
		{"A203", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := IsJPTicker(tt.input); got != tt.expected {
				t.Errorf("IsJPTicker(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestToYFinanceTicker(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"7203", "7203.T"},
		{"7203.T", "7203.T"},
		{"285A", "285A.T"},
		{"AAPL", "AAPL"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := ToYFinanceTicker(tt.input)
			if result != tt.expected {
				t.Errorf("ToYFinanceTicker(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestFromYFinanceTicker(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"7203.T", "7203"},
		{"285A.T", "285A"},
		{"AAPL", "AAPL"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := FromYFinanceTicker(tt.input)
			if result != tt.expected {
				t.Errorf("FromYFinanceTicker(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}
