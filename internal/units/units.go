// Package units resolves sale-line quantities and prices between the "pack"
// domain the terminal records in and the "base unit" domain the server
// expects. Splittable products store quantity in packs (possibly fractional)
// and unit price per pack; the remote authority wants whole base units and a
// per-unit price.
package units

import (
	"errors"

	"github.com/shopspring/decimal"
)

// ErrInvalidPackaging marks corrupt packaging metadata (unitsPerPack < 1).
// Callers must treat it as a data-integrity defect, not a transient failure.
var ErrInvalidPackaging = errors.New("units: unitsPerPack must be a positive integer")

// Resolve converts a pack-domain (quantity, unitPrice) pair to base units.
//
// For canSplit products with unitsPerPack > 1:
//
//	baseQuantity = round(quantity * unitsPerPack)   (half away from zero)
//	basePrice    = unitPrice / unitsPerPack
//
// Otherwise the inputs pass through unchanged. Pure and idempotent: resolving
// an already-base-unit line (unitsPerPack = 1) is a no-op.
func Resolve(quantity, unitPrice decimal.Decimal, canSplit bool, unitsPerPack int) (decimal.Decimal, decimal.Decimal, error) {
	if unitsPerPack <= 0 {
		return decimal.Decimal{}, decimal.Decimal{}, ErrInvalidPackaging
	}
	if !canSplit || unitsPerPack == 1 {
		return quantity, unitPrice, nil
	}

	perPack := decimal.NewFromInt(int64(unitsPerPack))
	baseQuantity := quantity.Mul(perPack).Round(0)
	basePrice := unitPrice.Div(perPack)

	return baseQuantity, basePrice, nil
}
