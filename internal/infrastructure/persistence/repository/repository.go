// Package repository contains the SQL implementations of the billing
// persistence ports. All statements run through the context-aware executor
// so they join an ambient transaction when one is present.
package repository

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/edusuite/school-billing/internal/domain/entity"
)

// parseAmount converts a stored decimal string back into an exact amount.
func parseAmount(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: corrupt stored amount %q", entity.ErrValidation, s)
	}
	return d, nil
}
