// Package persistence stores local coupon usage records.
package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/felixgeelhaar/fundsaga/internal/marketing/domain"
	sharedDomain "github.com/felixgeelhaar/fundsaga/internal/shared/domain"
	"github.com/felixgeelhaar/fundsaga/internal/shared/infrastructure/database"
	"github.com/google/uuid"
)

// UsageRepository implements domain.UsageRepository.
type UsageRepository struct {
	conn database.Connection
}

// NewUsageRepository creates a new coupon usage repository.
func NewUsageRepository(conn database.Connection) *UsageRepository {
	return &UsageRepository{conn: conn}
}

var _ domain.UsageRepository = (*UsageRepository)(nil)

// Save inserts a usage record.
func (r *UsageRepository) Save(ctx context.Context, u *domain.CouponUsage) error {
	query := `INSERT INTO coupon_usages (
			id, serial_number, customer_id, coupon_id, usage_id, currency, original_fee,
			discount_amount, final_fee, status, used_at, returned_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := database.ExecutorFromContext(ctx, r.conn).Exec(ctx, query,
		u.ID.String(), u.SerialNumber, u.CustomerID, u.CouponID, u.UsageID, u.OriginalFee.Currency(),
		u.OriginalFee.StringFixed(), u.Discount.StringFixed(), u.FinalFee.StringFixed(), string(u.Status),
		database.FormatTime(u.UsedAt), database.NullTime(u.ReturnedAt), database.FormatTime(u.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert coupon usage: %w", err)
	}
	return nil
}

// Update writes the status and return time.
func (r *UsageRepository) Update(ctx context.Context, u *domain.CouponUsage) error {
	query := `UPDATE coupon_usages SET status = ?, returned_at = ? WHERE id = ?`
	result, err := database.ExecutorFromContext(ctx, r.conn).Exec(ctx, query,
		string(u.Status), database.NullTime(u.ReturnedAt), u.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("update coupon usage: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrUsageNotFound
	}
	return nil
}

// FindBySerialNumber returns the usages recorded for a subscription, oldest first.
func (r *UsageRepository) FindBySerialNumber(ctx context.Context, serial string) ([]*domain.CouponUsage, error) {
	query := `SELECT id, serial_number, customer_id, coupon_id, usage_id, currency, original_fee,
			discount_amount, final_fee, status, used_at, returned_at, created_at
		FROM coupon_usages WHERE serial_number = ? ORDER BY created_at ASC`

	rows, err := database.ExecutorFromContext(ctx, r.conn).Query(ctx, query, serial)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var usages []*domain.CouponUsage
	for rows.Next() {
		var (
			u                                       domain.CouponUsage
			id, currency, original, discount, final string
			status, usedAt, createdAt               string
			returnedAt                              sql.NullString
		)
		if err := rows.Scan(
			&id, &u.SerialNumber, &u.CustomerID, &u.CouponID, &u.UsageID, &currency, &original,
			&discount, &final, &status, &usedAt, &returnedAt, &createdAt,
		); err != nil {
			return nil, err
		}
		if u.ID, err = uuid.Parse(id); err != nil {
			return nil, err
		}
		if u.OriginalFee, err = sharedDomain.ParseMoney(original, currency); err != nil {
			return nil, err
		}
		if u.Discount, err = sharedDomain.ParseMoney(discount, currency); err != nil {
			return nil, err
		}
		if u.FinalFee, err = sharedDomain.ParseMoney(final, currency); err != nil {
			return nil, err
		}
		if u.UsedAt, err = database.ParseTime(usedAt); err != nil {
			return nil, err
		}
		if u.ReturnedAt, err = database.ParseNullTime(returnedAt); err != nil {
			return nil, err
		}
		if u.CreatedAt, err = database.ParseTime(createdAt); err != nil {
			return nil, err
		}
		u.Status = domain.UsageStatus(status)
		usages = append(usages, &u)
	}
	return usages, rows.Err()
}
