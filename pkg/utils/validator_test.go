package utils

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestValidateOpaqueID(t *testing.T) {
	tests := []struct {
		name        string
		value       string
		expectError bool
	}{
		{"valid", "loan-abc-123", false},
		{"empty", "", true},
		{"whitespace only", "   ", true},
		{"max length", strings.Repeat("a", 128), false},
		{"too long", strings.Repeat("a", 129), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateOpaqueID("loanId", tt.value)
			if tt.expectError && err == nil {
				t.Errorf("expected error for %q, got nil", tt.value)
			}
			if !tt.expectError && err != nil {
				t.Errorf("unexpected error for %q: %v", tt.value, err)
			}
		})
	}
}

func TestValidatePositiveDecimal(t *testing.T) {
	tests := []struct {
		name        string
		value       string
		expected    decimal.Decimal
		expectError bool
	}{
		{"positive integer", "1000", decimal.NewFromInt(1000), false},
		{"positive fraction", "40.5", decimal.RequireFromString("40.5"), false},
		{"zero", "0", decimal.Zero, true},
		{"negative", "-5", decimal.Zero, true},
		{"not a number", "abc", decimal.Zero, true},
		{"empty", "", decimal.Zero, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidatePositiveDecimal("principal", tt.value)
			if tt.expectError {
				if err == nil {
					t.Errorf("expected error for %q, got nil", tt.value)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error for %q: %v", tt.value, err)
			}
			if !got.Equal(tt.expected) {
				t.Errorf("ValidatePositiveDecimal(%q) = %s, want %s", tt.value, got, tt.expected)
			}
		})
	}
}

func TestValidateNonNegativeDecimal(t *testing.T) {
	tests := []struct {
		name        string
		value       string
		expected    decimal.Decimal
		expectError bool
	}{
		{"positive", "40", decimal.NewFromInt(40), false},
		{"zero", "0", decimal.Zero, false},
		{"negative", "-1", decimal.Zero, true},
		{"not a number", "nope", decimal.Zero, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateNonNegativeDecimal("amount", tt.value)
			if tt.expectError {
				if err == nil {
					t.Errorf("expected error for %q, got nil", tt.value)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error for %q: %v", tt.value, err)
			}
			if !got.Equal(tt.expected) {
				t.Errorf("ValidateNonNegativeDecimal(%q) = %s, want %s", tt.value, got, tt.expected)
			}
		})
	}
}
