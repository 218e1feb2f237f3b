package utils

// validator.go - input validation for the loan liquidation domain.
//
// Validates the opaque string identifiers and decimal amounts that cross
// the HTTP boundary in loan-application and collateral-top-up requests.

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const maxOpaqueIDLength = 128

// ValidateOpaqueID checks that an externally-assigned identifier
// (loanId, borrowerId, requestId) is non-empty and within the length
// the spec allows.
func ValidateOpaqueID(fieldName, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s must not be empty", fieldName)
	}
	if len(value) > maxOpaqueIDLength {
		return fmt.Errorf("%s must not exceed %d characters, got %d", fieldName, maxOpaqueIDLength, len(value))
	}
	return nil
}

// ValidatePositiveDecimal parses a decimal string and checks it is strictly
// positive, as required for principal and top-up amounts.
func ValidatePositiveDecimal(fieldName, value string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s must be a decimal string, got %q: %w", fieldName, value, err)
	}
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("%s must be positive, got %s", fieldName, d.String())
	}
	return d, nil
}

// ValidateNonNegativeDecimal parses a decimal string and checks it is zero
// or positive.
func ValidateNonNegativeDecimal(fieldName, value string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s must be a decimal string, got %q: %w", fieldName, value, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%s must not be negative, got %s", fieldName, d.String())
	}
	return d, nil
}
