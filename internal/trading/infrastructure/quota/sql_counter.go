package quota

import (
	"context"
	"fmt"

	sharedDomain "github.com/felixgeelhaar/fundsaga/internal/shared/domain"
	"github.com/felixgeelhaar/fundsaga/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/fundsaga/internal/trading/domain"
)

// SQLCounter is a domain.QuotaCounter backed by the daily_quota_usage table.
// The conditional UPDATE makes Reserve atomic without a read-modify-write.
type SQLCounter struct {
	conn database.Connection
}

// NewSQLCounter creates a SQL-backed quota counter.
func NewSQLCounter(conn database.Connection) *SQLCounter {
	return &SQLCounter{conn: conn}
}

var _ domain.QuotaCounter = (*SQLCounter)(nil)

// Reserve adds amount to the day's total unless it would exceed limit.
func (c *SQLCounter) Reserve(ctx context.Context, productCode, day string, amount, limit sharedDomain.Money) (bool, error) {
	amt, lim, err := minorUnits(amount, limit)
	if err != nil {
		return false, err
	}
	exec := database.ExecutorFromContext(ctx, c.conn)

	if _, err := exec.Exec(ctx,
		`INSERT INTO daily_quota_usage (product_code, trade_date, used_minor) VALUES (?, ?, 0)
		ON CONFLICT (product_code, trade_date) DO NOTHING`,
		productCode, day,
	); err != nil {
		return false, fmt.Errorf("init quota row: %w", err)
	}

	var result database.Result
	if lim <= 0 {
		result, err = exec.Exec(ctx,
			`UPDATE daily_quota_usage SET used_minor = used_minor + ?
			WHERE product_code = ? AND trade_date = ?`,
			amt, productCode, day,
		)
	} else {
		result, err = exec.Exec(ctx,
			`UPDATE daily_quota_usage SET used_minor = used_minor + ?
			WHERE product_code = ? AND trade_date = ? AND used_minor + ? <= ?`,
			amt, productCode, day, amt, lim,
		)
	}
	if err != nil {
		return false, fmt.Errorf("reserve quota: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Release subtracts amount, never dropping below zero.
func (c *SQLCounter) Release(ctx context.Context, productCode, day string, amount sharedDomain.Money) error {
	amt := amount.MinorUnits()
	_, err := database.ExecutorFromContext(ctx, c.conn).Exec(ctx,
		`UPDATE daily_quota_usage
		SET used_minor = CASE WHEN used_minor > ? THEN used_minor - ? ELSE 0 END
		WHERE product_code = ? AND trade_date = ?`,
		amt, amt, productCode, day,
	)
	if err != nil {
		return fmt.Errorf("release quota: %w", err)
	}
	return nil
}

// Used returns the day's reserved total in minor units.
func (c *SQLCounter) Used(ctx context.Context, productCode, day string) (int64, error) {
	var used int64
	err := database.ExecutorFromContext(ctx, c.conn).QueryRow(ctx,
		`SELECT used_minor FROM daily_quota_usage WHERE product_code = ? AND trade_date = ?`,
		productCode, day,
	).Scan(&used)
	if database.IsNoRows(err) {
		return 0, nil
	}
	return used, err
}
