package policy

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"drive-ledger/internal/model"
)

// Purchase validation failures. Callers wrap them into their own error kinds.
var (
	ErrPriceOutOfBounds    = errors.New("purchase price outside tier bounds")
	ErrQuantityOutOfBounds = errors.New("quantity outside tier bounds")
	ErrPriceNotMultiple    = errors.New("purchase price is not a whole multiple of the unit price")
	ErrInvalidUnitPrice    = errors.New("product unit price must be positive")
)

// minWeight keeps products at the edge of the bounds selectable.
const minWeight = 0.1

// Bounds is the purchase envelope of a drive configuration.
type Bounds struct {
	MinPrice    decimal.Decimal
	MaxPrice    decimal.Decimal
	MinQuantity int
	MaxQuantity int
}

// BoundsOf extracts the bounds of a drive configuration.
func BoundsOf(c *model.DriveConfiguration) Bounds {
	return Bounds{
		MinPrice:    c.MinPrice,
		MaxPrice:    c.MaxPrice,
		MinQuantity: c.MinQuantity,
		MaxQuantity: c.MaxQuantity,
	}
}

// Midpoint returns the middle of the price bounds.
func (b Bounds) Midpoint() decimal.Decimal {
	return b.MinPrice.Add(b.MaxPrice).Div(decimal.NewFromInt(2))
}

// QuantityRange returns the quantities whose purchase price stays in bounds.
// ok is false when no quantity fits.
func (b Bounds) QuantityRange(unitPrice decimal.Decimal) (lo, hi int, ok bool) {
	if !unitPrice.IsPositive() {
		return 0, 0, false
	}
	lo = b.MinQuantity
	if q := int(b.MinPrice.Div(unitPrice).Ceil().IntPart()); q > lo {
		lo = q
	}
	hi = b.MaxQuantity
	if q := int(b.MaxPrice.Div(unitPrice).Floor().IntPart()); q < hi {
		hi = q
	}
	if lo > hi || lo <= 0 {
		return 0, 0, false
	}
	return lo, hi, true
}

// PickQuantity chooses the largest valid quantity whose purchase price does
// not exceed the bounds midpoint, falling back to the smallest valid one.
func (b Bounds) PickQuantity(unitPrice decimal.Decimal) (int, bool) {
	lo, hi, ok := b.QuantityRange(unitPrice)
	if !ok {
		return 0, false
	}
	mid := b.Midpoint()
	for q := hi; q >= lo; q-- {
		if unitPrice.Mul(decimal.NewFromInt(int64(q))).LessThanOrEqual(mid) {
			return q, true
		}
	}
	return lo, true
}

// CheckPurchase validates a submitted purchase price for a product and
// returns the implied quantity.
func (b Bounds) CheckPurchase(unitPrice, purchasePrice decimal.Decimal) (int, error) {
	if !unitPrice.IsPositive() {
		return 0, ErrInvalidUnitPrice
	}
	if purchasePrice.LessThan(b.MinPrice) || purchasePrice.GreaterThan(b.MaxPrice) {
		return 0, fmt.Errorf("%w: %s not in [%s, %s]",
			ErrPriceOutOfBounds, purchasePrice.StringFixed(2), b.MinPrice.StringFixed(2), b.MaxPrice.StringFixed(2))
	}
	if !purchasePrice.Mod(unitPrice).IsZero() {
		return 0, fmt.Errorf("%w: %s / %s", ErrPriceNotMultiple, purchasePrice.StringFixed(2), unitPrice.StringFixed(2))
	}
	qty := int(purchasePrice.Div(unitPrice).IntPart())
	if qty < b.MinQuantity || qty > b.MaxQuantity {
		return 0, fmt.Errorf("%w: %d not in [%d, %d]", ErrQuantityOutOfBounds, qty, b.MinQuantity, b.MaxQuantity)
	}
	return qty, nil
}

// Weight scores a purchase price by its closeness to the bounds midpoint:
// 1 at the midpoint, falling linearly to minWeight at the edges.
func (b Bounds) Weight(purchasePrice decimal.Decimal) float64 {
	half := b.MaxPrice.Sub(b.MinPrice).Div(decimal.NewFromInt(2))
	if !half.IsPositive() {
		return 1
	}
	dist, _ := purchasePrice.Sub(b.Midpoint()).Abs().Div(half).Float64()
	w := 1 - dist
	if w < minWeight || math.IsNaN(w) {
		return minWeight
	}
	return w
}

// PickWeighted returns the index selected by r in [0, 1) over the
// cumulative weights, or -1 when there is nothing to pick.
func PickWeighted(weights []float64, r float64) int {
	var total float64
	for _, w := range weights {
		if w > 0 {
			total += w
		}
	}
	if total <= 0 {
		return -1
	}
	target := r * total
	var acc float64
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		acc += w
		if target < acc {
			return i
		}
	}
	// r rounding up against total lands on the last positive weight
	for i := len(weights) - 1; i >= 0; i-- {
		if weights[i] > 0 {
			return i
		}
	}
	return -1
}
