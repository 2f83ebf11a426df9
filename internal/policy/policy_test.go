package policy

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drive-ledger/internal/config"
	"drive-ledger/internal/model"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCommission_RoundsToCents(t *testing.T) {
	assert.True(t, d("0.62").Equal(Commission(d("123.45"), d("0.005"))))
	assert.True(t, d("3.00").Equal(Commission(d("150"), d("0.02"))))
	assert.True(t, d("-5.00").Equal(Commission(d("100"), d("-0.05"))))
	assert.True(t, Commission(d("0"), d("0.01")).IsZero())
}

func TestReferralBonuses(t *testing.T) {
	rates := []decimal.Decimal{d("0.20"), d("0.10"), d("0.05")}

	bonuses := ReferralBonuses(d("10"), rates)
	require.Len(t, bonuses, 3)
	assert.True(t, d("2").Equal(bonuses[0]))
	assert.True(t, d("1").Equal(bonuses[1]))
	assert.True(t, d("0.5").Equal(bonuses[2]))

	assert.Nil(t, ReferralBonuses(d("-5"), rates))
	assert.Nil(t, ReferralBonuses(decimal.Zero, rates))
}

func TestTable_For(t *testing.T) {
	table := NewTable(map[model.Tier]TierPolicy{
		model.TierBronze: {CommissionRate: d("0.005"), MinBalance: d("10")},
	}, nil)

	p, err := table.For(model.TierBronze)
	require.NoError(t, err)
	assert.True(t, d("10").Equal(p.MinBalance))

	_, err = table.For(model.TierGold)
	assert.ErrorIs(t, err, ErrUnknownTier)
}

func TestFromConfig(t *testing.T) {
	cfg := &config.Config{
		Drive: config.DriveConfig{Tiers: map[string]config.TierConfig{
			"bronze": {
				TasksRequired:  3,
				MinBalance:     "10",
				CommissionRate: "0.005",
				MinPrice:       "10",
				MaxPrice:       "500",
				MinQuantity:    1,
				MaxQuantity:    5,
			},
		}},
		Referral: config.ReferralConfig{Rates: []string{"0.2", "0.1"}},
	}

	table, drives, err := FromConfig(cfg)
	require.NoError(t, err)
	require.Len(t, drives, 1)
	assert.Equal(t, model.TierBronze, drives[0].Tier)
	assert.Equal(t, 3, drives[0].TasksRequired)
	assert.True(t, d("500").Equal(drives[0].MaxPrice))
	assert.Len(t, table.ReferralRates(), 2)

	p, err := table.For(model.TierBronze)
	require.NoError(t, err)
	assert.True(t, d("0.005").Equal(p.CommissionRate))
}

func TestFromConfig_RejectsBadValues(t *testing.T) {
	base := config.TierConfig{
		TasksRequired: 3, MinBalance: "10", CommissionRate: "0.005",
		MinPrice: "10", MaxPrice: "500", MinQuantity: 1, MaxQuantity: 5,
	}

	cases := map[string]func(tc *config.TierConfig, cfg *config.Config){
		"rate too large":    func(tc *config.TierConfig, _ *config.Config) { tc.CommissionRate = "1.5" },
		"bad min balance":   func(tc *config.TierConfig, _ *config.Config) { tc.MinBalance = "ten" },
		"inverted prices":   func(tc *config.TierConfig, _ *config.Config) { tc.MinPrice = "600" },
		"negative referral": func(_ *config.TierConfig, cfg *config.Config) { cfg.Referral.Rates = []string{"-0.1"} },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			tc := base
			cfg := &config.Config{}
			mutate(&tc, cfg)
			cfg.Drive.Tiers = map[string]config.TierConfig{"bronze": tc}
			_, _, err := FromConfig(cfg)
			assert.Error(t, err)
		})
	}
}

func TestBounds_CheckPurchase(t *testing.T) {
	b := Bounds{MinPrice: d("10"), MaxPrice: d("500"), MinQuantity: 1, MaxQuantity: 5}

	qty, err := b.CheckPurchase(d("40"), d("120"))
	require.NoError(t, err)
	assert.Equal(t, 3, qty)

	_, err = b.CheckPurchase(d("40"), d("600"))
	assert.ErrorIs(t, err, ErrPriceOutOfBounds)

	_, err = b.CheckPurchase(d("40"), d("100"))
	assert.ErrorIs(t, err, ErrPriceNotMultiple)

	_, err = b.CheckPurchase(d("5"), d("30"))
	assert.ErrorIs(t, err, ErrQuantityOutOfBounds)

	_, err = b.CheckPurchase(decimal.Zero, d("30"))
	assert.ErrorIs(t, err, ErrInvalidUnitPrice)
}

func TestBounds_PickQuantity(t *testing.T) {
	b := Bounds{MinPrice: d("10"), MaxPrice: d("500"), MinQuantity: 1, MaxQuantity: 5}

	// midpoint 255: 4 x 60 = 240 fits, 5 x 60 = 300 does not
	qty, ok := b.PickQuantity(d("60"))
	require.True(t, ok)
	assert.Equal(t, 4, qty)

	// only quantity 1 fits and it already exceeds the midpoint
	qty, ok = b.PickQuantity(d("400"))
	require.True(t, ok)
	assert.Equal(t, 1, qty)

	_, ok = b.PickQuantity(d("600"))
	assert.False(t, ok)
}

func TestEvaluateFreeze_Scenarios(t *testing.T) {
	minBalance := d("10")

	// balance 12 minus 5 leaves 7, below the bronze minimum
	frozen, tr := EvaluateFreeze(false, d("7"), minBalance, DirectionDecrease)
	assert.True(t, frozen)
	assert.Equal(t, TransitionFrozen, tr)

	// deposit of 20 on a frozen 3 gives 23
	frozen, tr = EvaluateFreeze(true, d("23"), minBalance, DirectionIncrease)
	assert.False(t, frozen)
	assert.Equal(t, TransitionUnfrozen, tr)

	// increase that stays under the minimum keeps the account frozen
	frozen, tr = EvaluateFreeze(true, d("9.99"), minBalance, DirectionIncrease)
	assert.True(t, frozen)
	assert.Equal(t, TransitionNone, tr)

	// a decrease never unfreezes, even with a healthy balance
	frozen, tr = EvaluateFreeze(true, d("100"), minBalance, DirectionDecrease)
	assert.True(t, frozen)
	assert.Equal(t, TransitionNone, tr)
}

func TestDirectionOf(t *testing.T) {
	assert.Equal(t, DirectionDecrease, DirectionOf(d("-0.01")))
	assert.Equal(t, DirectionIncrease, DirectionOf(d("0.01")))
	assert.Equal(t, DirectionNone, DirectionOf(decimal.Zero))
}
