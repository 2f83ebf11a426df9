package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"drive-ledger/internal/policy"
	"drive-ledger/internal/repository"
)

// Assignment is the advisory product for the next slot of a session. Nothing
// is persisted until the order is saved.
type Assignment struct {
	SessionID          int64           `json:"session_id"`
	SlotIndex          int             `json:"slot_index"`
	ProductID          int64           `json:"product_id"`
	ProductName        string          `json:"product_name"`
	UnitPrice          decimal.Decimal `json:"unit_price"`
	Quantity           int             `json:"quantity"`
	PurchasePrice      decimal.Decimal `json:"purchase_price"`
	ExpectedCommission decimal.Decimal `json:"expected_commission"`
}

// NextAssignment returns an assignment for the current slot of the user's
// active session.
func (s *DriveService) NextAssignment(ctx context.Context, userID int64) (*Assignment, error) {
	session, err := s.store.Drives.GetActiveSession(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, ErrNoActiveSession
		}
		return nil, fmt.Errorf("%w: %w", ErrPersistenceFailure, err)
	}
	return s.AssignNextProduct(ctx, session.ID)
}

// AssignNextProduct picks a product not yet used in the session whose
// purchase price can fall inside the tier bounds. Products priced near the
// middle of the bounds are favoured.
func (s *DriveService) AssignNextProduct(ctx context.Context, sessionID int64) (*Assignment, error) {
	session, err := s.store.Drives.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, ErrNoActiveSession
		}
		return nil, fmt.Errorf("%w: %w", ErrPersistenceFailure, err)
	}
	if !session.AcceptsOrders() {
		return nil, ErrNoActiveSession
	}

	cfg, err := s.store.Drives.GetConfigurationByID(ctx, session.ConfigurationID)
	if err != nil {
		if errors.Is(err, repository.ErrConfigurationNotFound) {
			return nil, ErrNoConfiguration
		}
		return nil, fmt.Errorf("%w: %w", ErrPersistenceFailure, err)
	}
	user, err := s.store.Users.GetByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistenceFailure, err)
	}
	tp, err := s.policies.For(user.Tier)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoConfiguration, err)
	}

	bounds := policy.BoundsOf(cfg)
	products, err := s.store.Products.ListUnusedInSession(ctx, sessionID, bounds.MaxPrice)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistenceFailure, err)
	}

	candidates := make([]Assignment, 0, len(products))
	weights := make([]float64, 0, len(products))
	for _, p := range products {
		qty, ok := bounds.PickQuantity(p.UnitPrice)
		if !ok {
			continue
		}
		price := p.UnitPrice.Mul(decimal.NewFromInt(int64(qty)))
		candidates = append(candidates, Assignment{
			SessionID:          session.ID,
			SlotIndex:          session.TasksCompleted,
			ProductID:          p.ID,
			ProductName:        p.Name,
			UnitPrice:          p.UnitPrice,
			Quantity:           qty,
			PurchasePrice:      price,
			ExpectedCommission: policy.Commission(price, tp.CommissionRate),
		})
		weights = append(weights, bounds.Weight(price))
	}

	idx := policy.PickWeighted(weights, s.random())
	if idx < 0 {
		return nil, ErrNoEligibleProduct
	}
	return &candidates[idx], nil
}
