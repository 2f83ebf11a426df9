// Package policy holds the per-tier commission and balance rules and the
// pure calculations built on them.
package policy

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"drive-ledger/internal/config"
	"drive-ledger/internal/model"
)

// ErrUnknownTier is returned when no policy is configured for a tier.
var ErrUnknownTier = errors.New("no policy configured for tier")

// TierPolicy is the money side of a tier: what a drive order earns and the
// balance below which the account freezes.
type TierPolicy struct {
	CommissionRate decimal.Decimal
	MinBalance     decimal.Decimal
}

// Table maps tiers to their policy.
type Table struct {
	tiers         map[model.Tier]TierPolicy
	referralRates []decimal.Decimal
}

// NewTable creates a policy table.
func NewTable(tiers map[model.Tier]TierPolicy, referralRates []decimal.Decimal) *Table {
	copied := make(map[model.Tier]TierPolicy, len(tiers))
	for k, v := range tiers {
		copied[k] = v
	}
	return &Table{
		tiers:         copied,
		referralRates: append([]decimal.Decimal(nil), referralRates...),
	}
}

// For returns the policy of a tier.
func (t *Table) For(tier model.Tier) (TierPolicy, error) {
	p, ok := t.tiers[tier]
	if !ok {
		return TierPolicy{}, fmt.Errorf("%w: %s", ErrUnknownTier, tier)
	}
	return p, nil
}

// ReferralRates returns the upline bonus rates, level 1 first.
func (t *Table) ReferralRates() []decimal.Decimal {
	return t.referralRates
}

// FromConfig parses the drive section of the configuration into a policy
// table and the drive configurations to seed.
func FromConfig(cfg *config.Config) (*Table, []model.DriveConfiguration, error) {
	tiers := make(map[model.Tier]TierPolicy, len(cfg.Drive.Tiers))
	var drives []model.DriveConfiguration

	for name, tc := range cfg.Drive.Tiers {
		tier, err := model.ParseTier(name)
		if err != nil {
			return nil, nil, err
		}

		rate, err := parseDecimal(name, "commission_rate", tc.CommissionRate)
		if err != nil {
			return nil, nil, err
		}
		if rate.Abs().GreaterThan(decimal.NewFromInt(1)) {
			return nil, nil, fmt.Errorf("drive.tiers.%s.commission_rate must be within [-1, 1]", name)
		}
		minBalance, err := parseDecimal(name, "min_balance", tc.MinBalance)
		if err != nil {
			return nil, nil, err
		}
		minPrice, err := parseDecimal(name, "min_price", tc.MinPrice)
		if err != nil {
			return nil, nil, err
		}
		maxPrice, err := parseDecimal(name, "max_price", tc.MaxPrice)
		if err != nil {
			return nil, nil, err
		}
		if !minPrice.IsPositive() || maxPrice.LessThan(minPrice) {
			return nil, nil, fmt.Errorf("drive.tiers.%s price bounds are invalid", name)
		}

		tiers[tier] = TierPolicy{CommissionRate: rate, MinBalance: minBalance}
		drives = append(drives, model.DriveConfiguration{
			Tier:          tier,
			TasksRequired: tc.TasksRequired,
			MinPrice:      minPrice,
			MaxPrice:      maxPrice,
			MinQuantity:   tc.MinQuantity,
			MaxQuantity:   tc.MaxQuantity,
		})
	}

	rates := make([]decimal.Decimal, 0, len(cfg.Referral.Rates))
	for i, raw := range cfg.Referral.Rates {
		r, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, nil, fmt.Errorf("referral.rates[%d]: %w", i, err)
		}
		if r.IsNegative() || r.GreaterThan(decimal.NewFromInt(1)) {
			return nil, nil, fmt.Errorf("referral.rates[%d] must be within [0, 1]", i)
		}
		rates = append(rates, r)
	}

	return NewTable(tiers, rates), drives, nil
}

func parseDecimal(tier, field, raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("drive.tiers.%s.%s: %w", tier, field, err)
	}
	return d, nil
}

// Commission returns the commission for a purchase, rounded to cents.
func Commission(purchasePrice, rate decimal.Decimal) decimal.Decimal {
	return purchasePrice.Mul(rate).Round(2)
}

// ReferralBonuses splits an upline bonus for each level. Only positive
// commissions pay uplines.
func ReferralBonuses(commission decimal.Decimal, rates []decimal.Decimal) []decimal.Decimal {
	if !commission.IsPositive() {
		return nil
	}
	out := make([]decimal.Decimal, len(rates))
	for i, r := range rates {
		out[i] = commission.Mul(r).Round(2)
	}
	return out
}
