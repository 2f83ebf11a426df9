package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"drive-ledger/internal/model"
	"drive-ledger/internal/pkg/db"
)

// ProductRepository handles product reference data.
type ProductRepository struct {
	q db.Querier
}

// NewProductRepository creates a new ProductRepository instance.
func NewProductRepository(q db.Querier) *ProductRepository {
	return &ProductRepository{q: q}
}

// WithTx returns a repository bound to tx.
func (r *ProductRepository) WithTx(tx pgx.Tx) *ProductRepository {
	return &ProductRepository{q: tx}
}

// Create inserts an active product.
func (r *ProductRepository) Create(ctx context.Context, name string, unitPrice decimal.Decimal) (*model.Product, error) {
	const query = `
		INSERT INTO products (name, unit_price, is_active, created_at)
		VALUES ($1, $2, TRUE, NOW())
		RETURNING id, name, unit_price, is_active, created_at
	`

	var p model.Product
	err := r.q.QueryRow(ctx, query, name, unitPrice).Scan(&p.ID, &p.Name, &p.UnitPrice, &p.IsActive, &p.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}
	return &p, nil
}

// GetByID retrieves a product by id.
func (r *ProductRepository) GetByID(ctx context.Context, id int64) (*model.Product, error) {
	const query = `SELECT id, name, unit_price, is_active, created_at FROM products WHERE id = $1`

	var p model.Product
	err := r.q.QueryRow(ctx, query, id).Scan(&p.ID, &p.Name, &p.UnitPrice, &p.IsActive, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return &p, nil
}

// SetActive enables or retires a product. Retired products keep their past
// orders but are no longer assigned or accepted.
func (r *ProductRepository) SetActive(ctx context.Context, id int64, active bool) (*model.Product, error) {
	const query = `
		UPDATE products SET is_active = $2
		WHERE id = $1
		RETURNING id, name, unit_price, is_active, created_at
	`

	var p model.Product
	err := r.q.QueryRow(ctx, query, id, active).Scan(&p.ID, &p.Name, &p.UnitPrice, &p.IsActive, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to update product: %w", err)
	}
	return &p, nil
}

// ListUnusedInSession returns active products priced at most maxPrice that
// have no order yet in the session, cheapest first.
func (r *ProductRepository) ListUnusedInSession(ctx context.Context, sessionID int64, maxPrice decimal.Decimal) ([]*model.Product, error) {
	const query = `
		SELECT p.id, p.name, p.unit_price, p.is_active, p.created_at
		FROM products p
		WHERE p.is_active
		  AND p.unit_price <= $2
		  AND NOT EXISTS (
			SELECT 1 FROM drive_orders o WHERE o.session_id = $1 AND o.product_id = p.id
		  )
		ORDER BY p.unit_price, p.id
	`

	rows, err := r.q.Query(ctx, query, sessionID, maxPrice)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	var products []*model.Product
	for rows.Next() {
		var p model.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.UnitPrice, &p.IsActive, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating products: %w", err)
	}
	return products, nil
}

// UsedInSession reports whether the session already has an order for the
// product.
func (r *ProductRepository) UsedInSession(ctx context.Context, sessionID, productID int64) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM drive_orders WHERE session_id = $1 AND product_id = $2)`

	var used bool
	if err := r.q.QueryRow(ctx, query, sessionID, productID).Scan(&used); err != nil {
		return false, fmt.Errorf("failed to check product usage: %w", err)
	}
	return used, nil
}
