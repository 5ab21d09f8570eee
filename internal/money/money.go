// Package money validates user-entered amounts. Catalog forms submit cost
// and price as raw strings; everything downstream works with decimals.
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"tienda/pos/internal/store"
)

// ParseAmount parses a non-negative amount such as "3500" or "1250.50".
// Returns store.ErrValidation for anything unparseable or negative.
func ParseAmount(field string, raw string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return decimal.Zero, fmt.Errorf("%s is required: %w", field, store.ErrValidation)
	}
	val, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s must be numeric: %w", field, store.ErrValidation)
	}
	if val.IsNegative() {
		return decimal.Zero, fmt.Errorf("%s must not be negative: %w", field, store.ErrValidation)
	}
	return val, nil
}
