package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"basreng/backend/internal/domain"
)

func grams(v int) *int { return &v }

func TestComputeDiscount(t *testing.T) {
	tests := []struct {
		name       string
		lines      []domain.CartLine
		reseller   bool
		discount   int64
		totalGrams int64
	}{
		{
			name:     "empty cart",
			lines:    nil,
			reseller: true,
		},
		{
			name:       "single product at threshold",
			lines:      []domain.CartLine{{ProductID: 1, Quantity: 6, Price: 15000}},
			reseller:   true,
			discount:   15000,
			totalGrams: 3000,
		},
		{
			name:       "one gram below threshold",
			lines:      []domain.CartLine{{ProductID: 1, Quantity: 1, Price: 90000, WeightGrams: grams(2999)}},
			reseller:   true,
			totalGrams: 2999,
		},
		{
			name: "two products with pooled remainders",
			lines: []domain.CartLine{
				{ProductID: 1, Quantity: 5, Price: 15000},
				{ProductID: 2, Quantity: 5, Price: 16000},
			},
			reseller:   true,
			discount:   23000,
			totalGrams: 5000,
		},
		{
			name: "not a multiple of 500",
			lines: []domain.CartLine{
				{ProductID: 1, Quantity: 6, Price: 15000},
				{ProductID: 2, Quantity: 1, Price: 2000, WeightGrams: grams(100)},
			},
			reseller:   true,
			totalGrams: 3100,
		},
		{
			name:     "non-reseller skips weight entirely",
			lines:    []domain.CartLine{{ProductID: 1, Quantity: 6, Price: 15000}},
			reseller: false,
		},
		{
			name: "remainders only earn a kilogram when combined",
			lines: []domain.CartLine{
				{ProductID: 1, Quantity: 3, Price: 15000},
				{ProductID: 2, Quantity: 3, Price: 15000},
			},
			reseller:   true,
			discount:   13000,
			totalGrams: 3000,
		},
		{
			name: "same product on several lines is aggregated",
			lines: []domain.CartLine{
				{ProductID: 1, Quantity: 3, Price: 15000},
				{ProductID: 1, Quantity: 3, Price: 15000},
			},
			reseller:   true,
			discount:   15000,
			totalGrams: 3000,
		},
		{
			name: "sub-kilogram pool leftover is forfeited",
			lines: []domain.CartLine{
				{ProductID: 1, Quantity: 3, Price: 15000},
				{ProductID: 2, Quantity: 3, Price: 15000},
				{ProductID: 3, Quantity: 1, Price: 15000},
			},
			reseller:   true,
			discount:   13000,
			totalGrams: 3500,
		},
		{
			name: "heavier packs",
			lines: []domain.CartLine{
				{ProductID: 1, Quantity: 2, Price: 45000, WeightGrams: grams(1500)},
				{ProductID: 2, Quantity: 1, Price: 15000},
			},
			reseller:   true,
			discount:   15000,
			totalGrams: 3500,
		},
		{
			name: "explicit zero weight is kept",
			lines: []domain.CartLine{
				{ProductID: 1, Quantity: 10, Price: 1000, WeightGrams: grams(0)},
				{ProductID: 2, Quantity: 6, Price: 15000},
			},
			reseller:   true,
			discount:   15000,
			totalGrams: 3000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeDiscount(tt.lines, tt.reseller)
			assert.Equal(t, tt.discount, got.DiscountAmount)
			assert.Equal(t, tt.totalGrams, got.TotalGrams)
		})
	}
}

func TestComputeDiscountNonResellerAlwaysZero(t *testing.T) {
	carts := [][]domain.CartLine{
		nil,
		{{ProductID: 1, Quantity: 100, Price: 15000}},
		{{ProductID: 1, Quantity: 3, Price: 15000}, {ProductID: 2, Quantity: 7, Price: 1, WeightGrams: grams(1000)}},
	}
	for _, cart := range carts {
		assert.Equal(t, domain.DiscountResult{}, ComputeDiscount(cart, false))
	}
}

func TestComputeDiscountIsIdempotent(t *testing.T) {
	lines := []domain.CartLine{
		{ProductID: 4, Quantity: 7, Price: 15000},
		{ProductID: 9, Quantity: 5, Price: 17000},
		{ProductID: 2, Quantity: 3, Price: 12000, WeightGrams: grams(250)},
	}
	first := ComputeDiscount(lines, true)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, ComputeDiscount(lines, true))
	}
}

func TestTotalPriceNeverNegative(t *testing.T) {
	assert.Equal(t, int64(0), TotalPrice(10000, 15000))
	assert.Equal(t, int64(0), TotalPrice(15000, 15000))
	assert.Equal(t, int64(75000), TotalPrice(90000, 15000))
}

func TestSubtotal(t *testing.T) {
	lines := []domain.CartLine{
		{ProductID: 1, Quantity: 2, Price: 15000},
		{ProductID: 2, Quantity: 3, Price: 1000},
	}
	assert.Equal(t, int64(33000), Subtotal(lines))
	assert.Equal(t, int64(0), Subtotal(nil))
}

func TestClampDisplayedDiscount(t *testing.T) {
	assert.Equal(t, int64(10000), ClampDisplayedDiscount(15000, 90000, 80000))
	assert.Equal(t, int64(15000), ClampDisplayedDiscount(15000, 90000, 75000))
	assert.Equal(t, int64(0), ClampDisplayedDiscount(15000, 90000, 90000))
	assert.Equal(t, int64(0), ClampDisplayedDiscount(15000, 90000, 95000))
}

func TestLinesFromDetailsKeepsWeightSnapshot(t *testing.T) {
	details := []domain.TransactionDetail{
		{ProductID: 1, Quantity: 2, Price: 15000, Subtotal: 30000},
		{ProductID: 2, Quantity: 1, Price: 40000, Subtotal: 40000, WeightGrams: grams(1000)},
	}
	lines := LinesFromDetails(details)
	assert.Len(t, lines, 2)
	assert.Equal(t, DefaultUnitWeightGrams, UnitWeightGrams(lines[0]))
	assert.Equal(t, 1000, UnitWeightGrams(lines[1]))
	assert.Equal(t, int64(70000), Subtotal(lines))
}
