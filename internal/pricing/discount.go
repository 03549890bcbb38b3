// Package pricing holds the reseller bulk-discount rule and the total
// arithmetic shared by transaction creation and receipt rendering.
// Everything here is pure: no I/O, no clock, no shared state.
package pricing

import "basreng/backend/internal/domain"

const (
	DefaultUnitWeightGrams = 500
	MinimumResellerGrams   = 3000
	WeightStepGrams        = 500
	FullKgRate             = 5000
	MixedKgRate            = 3000

	gramsPerKg = 1000
)

// ComputeDiscount applies the reseller bulk-discount tiers to a cart.
//
// Non-reseller carts short-circuit to a zero result without summing weight.
// Reseller carts qualify only when the total weight is at least 3 kg and lands
// on a 500 g step. Each product earns the full-kilogram rate on its own whole
// kilograms; the sub-kilogram remainders of all products are pooled and earn
// the mixed rate per whole pooled kilogram. Pooled grams below a kilogram are
// forfeited.
func ComputeDiscount(lines []domain.CartLine, isReseller bool) domain.DiscountResult {
	if !isReseller {
		return domain.DiscountResult{}
	}

	gramsByProduct := make(map[int64]int64, len(lines))
	var totalGrams int64
	for _, line := range lines {
		grams := int64(line.Quantity) * int64(UnitWeightGrams(line))
		gramsByProduct[line.ProductID] += grams
		totalGrams += grams
	}

	if totalGrams < MinimumResellerGrams || totalGrams%WeightStepGrams != 0 {
		return domain.DiscountResult{TotalGrams: totalGrams}
	}

	var discount, mixGrams int64
	for _, grams := range gramsByProduct {
		discount += (grams / gramsPerKg) * FullKgRate
		mixGrams += grams % gramsPerKg
	}
	discount += (mixGrams / gramsPerKg) * MixedKgRate

	return domain.DiscountResult{DiscountAmount: discount, TotalGrams: totalGrams}
}

// UnitWeightGrams returns the line's unit weight, defaulting when absent.
// An explicit zero is kept as zero.
func UnitWeightGrams(line domain.CartLine) int {
	if line.WeightGrams == nil {
		return DefaultUnitWeightGrams
	}
	return *line.WeightGrams
}

func Subtotal(lines []domain.CartLine) int64 {
	var total int64
	for _, line := range lines {
		total += line.Price * int64(line.Quantity)
	}
	return total
}

// TotalPrice never goes below zero.
func TotalPrice(subtotal int64, discount int64) int64 {
	return max(0, subtotal-discount)
}

// ClampDisplayedDiscount bounds a recomputed discount by what the stored total
// actually implies. The stored total is authoritative.
func ClampDisplayedDiscount(recomputed int64, subtotal int64, storedTotal int64) int64 {
	return min(recomputed, max(0, subtotal-storedTotal))
}

// LinesFromDetails turns persisted line items back into cart lines so the
// discount rule can be re-run over a stored sale.
func LinesFromDetails(details []domain.TransactionDetail) []domain.CartLine {
	lines := make([]domain.CartLine, 0, len(details))
	for _, detail := range details {
		lines = append(lines, domain.CartLine{
			ProductID:   detail.ProductID,
			Quantity:    detail.Quantity,
			Price:       detail.Price,
			WeightGrams: detail.WeightGrams,
		})
	}
	return lines
}
