package persistence

import (
	"context"
	"fmt"

	sharedDomain "github.com/felixgeelhaar/fundsaga/internal/shared/domain"
	"github.com/felixgeelhaar/fundsaga/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/fundsaga/internal/trading/domain"
	"github.com/google/uuid"
)

// ShareRepository implements domain.ShareRepository.
type ShareRepository struct {
	conn database.Connection
}

// NewShareRepository creates a new share record repository.
func NewShareRepository(conn database.Connection) *ShareRepository {
	return &ShareRepository{conn: conn}
}

var _ domain.ShareRepository = (*ShareRepository)(nil)

// Save opens the holding unless one already exists for the customer and product.
func (r *ShareRepository) Save(ctx context.Context, record *domain.ShareRecord) error {
	query := `INSERT INTO share_records (
			id, customer_id, product_code, currency, total_shares, available_shares,
			frozen_shares, status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (customer_id, product_code) DO NOTHING`

	_, err := database.ExecutorFromContext(ctx, r.conn).Exec(ctx, query,
		record.ID.String(), record.CustomerID, record.ProductCode, record.TotalShares.Currency(),
		record.TotalShares.StringFixed(), record.AvailableShares.StringFixed(), record.FrozenShares.StringFixed(),
		record.Status, database.FormatTime(record.CreatedAt), database.FormatTime(record.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert share record: %w", err)
	}
	return nil
}

// Find returns the holding, or nil if the customer has none in the product.
func (r *ShareRepository) Find(ctx context.Context, customerID, productCode string) (*domain.ShareRecord, error) {
	query := `SELECT id, customer_id, product_code, currency, total_shares, available_shares,
			frozen_shares, status, created_at, updated_at
		FROM share_records WHERE customer_id = ? AND product_code = ?`

	var (
		id, currency, total, available, frozen, createdAt, updatedAt string
		rec                                                          domain.ShareRecord
	)
	err := database.ExecutorFromContext(ctx, r.conn).QueryRow(ctx, query, customerID, productCode).Scan(
		&id, &rec.CustomerID, &rec.ProductCode, &currency, &total, &available,
		&frozen, &rec.Status, &createdAt, &updatedAt,
	)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, nil
		}
		return nil, err
	}

	if rec.ID, err = uuid.Parse(id); err != nil {
		return nil, err
	}
	if rec.TotalShares, err = sharedDomain.ParseMoney(total, currency); err != nil {
		return nil, err
	}
	if rec.AvailableShares, err = sharedDomain.ParseMoney(available, currency); err != nil {
		return nil, err
	}
	if rec.FrozenShares, err = sharedDomain.ParseMoney(frozen, currency); err != nil {
		return nil, err
	}
	if rec.CreatedAt, err = database.ParseTime(createdAt); err != nil {
		return nil, err
	}
	if rec.UpdatedAt, err = database.ParseTime(updatedAt); err != nil {
		return nil, err
	}
	return &rec, nil
}
