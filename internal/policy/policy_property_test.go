// Property-based tests for the drive policy calculations.
package policy

import (
	"testing"

	"github.com/shopspring/decimal"
	"pgregory.net/rapid"
)

func genBounds(t *rapid.T) Bounds {
	minCents := rapid.Int64Range(100, 50000).Draw(t, "minCents")
	spanCents := rapid.Int64Range(0, 500000).Draw(t, "spanCents")
	minQty := rapid.IntRange(1, 5).Draw(t, "minQty")
	maxQty := rapid.IntRange(minQty, 10).Draw(t, "maxQty")
	return Bounds{
		MinPrice:    decimal.New(minCents, -2),
		MaxPrice:    decimal.New(minCents+spanCents, -2),
		MinQuantity: minQty,
		MaxQuantity: maxQty,
	}
}

// TestQuantityRangeAcceptedProperty tests that every quantity in the computed
// range yields a purchase price CheckPurchase accepts, and PickQuantity stays
// inside the range.
func TestQuantityRangeAcceptedProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		b := genBounds(t)
		unit := decimal.New(rapid.Int64Range(1, 200000).Draw(t, "unitCents"), -2)

		lo, hi, ok := b.QuantityRange(unit)
		if !ok {
			return
		}
		for q := lo; q <= hi; q++ {
			price := unit.Mul(decimal.NewFromInt(int64(q)))
			got, err := b.CheckPurchase(unit, price)
			if err != nil {
				t.Fatalf("quantity %d price %s rejected: %v", q, price, err)
			}
			if got != q {
				t.Fatalf("implied quantity mismatch: expected %d, got %d", q, got)
			}
		}

		picked, ok := b.PickQuantity(unit)
		if !ok || picked < lo || picked > hi {
			t.Fatalf("picked quantity %d outside [%d, %d]", picked, lo, hi)
		}
	})
}

// TestWeightBoundedProperty tests that weights stay within [minWeight, 1].
func TestWeightBoundedProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		b := genBounds(t)
		price := decimal.New(rapid.Int64Range(0, 2000000).Draw(t, "priceCents"), -2)

		w := b.Weight(price)
		if w < minWeight || w > 1 {
			t.Fatalf("weight %f out of range for price %s", w, price)
		}
	})
}

// TestPickWeightedProperty tests that a pick always lands on a positive weight.
func TestPickWeightedProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		weights := rapid.SliceOfN(rapid.Float64Range(0, 1), 1, 20).Draw(t, "weights")
		r := rapid.Float64Range(0, 0.999999).Draw(t, "r")

		idx := PickWeighted(weights, r)

		var anyPositive bool
		for _, w := range weights {
			if w > 0 {
				anyPositive = true
			}
		}
		if !anyPositive {
			if idx != -1 {
				t.Fatalf("expected -1 for all-zero weights, got %d", idx)
			}
			return
		}
		if idx < 0 || idx >= len(weights) || weights[idx] <= 0 {
			t.Fatalf("picked invalid index %d for weights %v", idx, weights)
		}
	})
}

// TestFreezeStateMachineProperty drives the freeze state machine with random
// signed postings and checks only the allowed transitions happen.
func TestFreezeStateMachineProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		minBalance := decimal.New(rapid.Int64Range(0, 10000).Draw(t, "minCents"), -2)
		balance := decimal.New(rapid.Int64Range(0, 20000).Draw(t, "startCents"), -2)
		frozen := rapid.Bool().Draw(t, "startFrozen")

		steps := rapid.IntRange(1, 30).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			amount := decimal.New(rapid.Int64Range(-5000, 5000).Draw(t, "amountCents"), -2)
			balance = balance.Add(amount)
			dir := DirectionOf(amount)

			next, tr := EvaluateFreeze(frozen, balance, minBalance, dir)

			switch tr {
			case TransitionFrozen:
				if frozen || dir != DirectionDecrease || !balance.LessThan(minBalance) || !next {
					t.Fatalf("illegal freeze: frozen=%v dir=%v balance=%s min=%s", frozen, dir, balance, minBalance)
				}
			case TransitionUnfrozen:
				if !frozen || dir != DirectionIncrease || balance.LessThan(minBalance) || next {
					t.Fatalf("illegal unfreeze: frozen=%v dir=%v balance=%s min=%s", frozen, dir, balance, minBalance)
				}
			case TransitionNone:
				if next != frozen {
					t.Fatalf("state changed without a transition")
				}
			}

			// after a decrease the account is frozen whenever it is short
			if dir == DirectionDecrease && balance.LessThan(minBalance) && !next {
				t.Fatalf("short balance %s after decrease left account active", balance)
			}
			frozen = next
		}
	})
}

// TestReferralBonusesProperty tests that upline bonuses never exceed the
// commission times the summed rates plus rounding.
func TestReferralBonusesProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		commission := decimal.New(rapid.Int64Range(1, 1000000).Draw(t, "commissionCents"), -2)
		n := rapid.IntRange(0, 5).Draw(t, "levels")
		rates := make([]decimal.Decimal, n)
		total := decimal.Zero
		for i := range rates {
			rates[i] = decimal.New(rapid.Int64Range(0, 30).Draw(t, "ratePct"), -2)
			total = total.Add(rates[i])
		}

		bonuses := ReferralBonuses(commission, rates)
		if len(bonuses) != n {
			t.Fatalf("expected %d bonuses, got %d", n, len(bonuses))
		}
		paid := decimal.Zero
		for _, b := range bonuses {
			if b.IsNegative() {
				t.Fatalf("negative bonus %s", b)
			}
			paid = paid.Add(b)
		}
		limit := commission.Mul(total).Add(decimal.New(int64(n), -2))
		if paid.GreaterThan(limit) {
			t.Fatalf("bonuses %s exceed limit %s", paid, limit)
		}
	})
}
