// Package persistence stores subscription transactions and share records
// over the shared database connection, for both PostgreSQL and SQLite.
package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sharedDomain "github.com/felixgeelhaar/fundsaga/internal/shared/domain"
	"github.com/felixgeelhaar/fundsaga/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/fundsaga/internal/trading/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const transactionColumns = `id, serial_number, customer_id, account_number, product_code, currency,
	amount, fee_rate, original_fee, discount_amount, final_fee, coupon_id, channel, first_time,
	status, saga_state, core_banking_txn_id, freeze_id, coupon_usage_id, accounting_type,
	error_code, error_message, request_time, complete_time, compensation_attempts,
	pre_compensation_state, version, created_at, updated_at`

// TransactionRepository implements domain.Repository.
type TransactionRepository struct {
	conn database.Connection
}

// NewTransactionRepository creates a new transaction repository.
func NewTransactionRepository(conn database.Connection) *TransactionRepository {
	return &TransactionRepository{conn: conn}
}

var _ domain.Repository = (*TransactionRepository)(nil)

func (r *TransactionRepository) executor(ctx context.Context) database.Executor {
	return database.ExecutorFromContext(ctx, r.conn)
}

// Save inserts a new transaction. A serial number collision yields
// domain.ErrDuplicateSerialNumber.
func (r *TransactionRepository) Save(ctx context.Context, txn *domain.Transaction) error {
	s := txn.Snapshot()
	query := `INSERT INTO subscription_transactions (` + transactionColumns + `)
		VALUES (` + database.Placeholders(29) + `)`

	_, err := r.executor(ctx).Exec(ctx, query,
		s.ID.String(), s.SerialNumber, s.CustomerID, s.AccountNumber, s.ProductCode, s.Amount.Currency(),
		s.Amount.StringFixed(), s.FeeRate.String(), s.OriginalFee.StringFixed(), s.Discount.StringFixed(),
		s.FinalFee.StringFixed(), s.CouponID, s.Channel, s.FirstTime,
		string(s.Status), string(s.SagaState), s.CoreBankingTxnID, s.FreezeID, s.CouponUsageID,
		string(s.AccountingType), s.ErrorCode, s.ErrorMessage,
		database.FormatTime(s.RequestTime), database.NullTime(s.CompleteTime), s.CompensationAttempts,
		string(s.PreCompensationState), s.Version,
		database.FormatTime(s.CreatedAt), database.FormatTime(s.UpdatedAt),
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return domain.ErrDuplicateSerialNumber
		}
		return fmt.Errorf("insert transaction %s: %w", s.SerialNumber, err)
	}
	return nil
}

// Update writes the mutable saga columns if the stored version matches the
// aggregate's, then advances the aggregate's version.
func (r *TransactionRepository) Update(ctx context.Context, txn *domain.Transaction) error {
	txn.Touch()
	s := txn.Snapshot()
	query := `UPDATE subscription_transactions SET
			status = ?, saga_state = ?, core_banking_txn_id = ?, freeze_id = ?, coupon_usage_id = ?,
			accounting_type = ?, error_code = ?, error_message = ?, complete_time = ?,
			compensation_attempts = ?, pre_compensation_state = ?, updated_at = ?,
			version = version + 1
		WHERE serial_number = ? AND version = ?`

	result, err := r.executor(ctx).Exec(ctx, query,
		string(s.Status), string(s.SagaState), s.CoreBankingTxnID, s.FreezeID, s.CouponUsageID,
		string(s.AccountingType), s.ErrorCode, s.ErrorMessage, database.NullTime(s.CompleteTime),
		s.CompensationAttempts, string(s.PreCompensationState), database.FormatTime(s.UpdatedAt),
		s.SerialNumber, s.Version,
	)
	if err != nil {
		return fmt.Errorf("update transaction %s: %w", s.SerialNumber, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrConcurrentModification
	}
	txn.IncrementVersion()
	return nil
}

// FindBySerialNumber loads a transaction.
func (r *TransactionRepository) FindBySerialNumber(ctx context.Context, serial string) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM subscription_transactions WHERE serial_number = ?`
	txn, err := scanTransaction(r.executor(ctx).QueryRow(ctx, query, serial))
	if err != nil {
		if database.IsNoRows(err) {
			return nil, domain.ErrTransactionNotFound
		}
		return nil, err
	}
	return txn, nil
}

// HasExistingSubscription reports whether the customer already holds a
// successful subscription to the product.
func (r *TransactionRepository) HasExistingSubscription(ctx context.Context, customerID, productCode string) (bool, error) {
	query := `SELECT COUNT(*) FROM subscription_transactions
		WHERE customer_id = ? AND product_code = ? AND status = ?`
	var n int
	if err := r.executor(ctx).QueryRow(ctx, query, customerID, productCode, string(domain.StatusSuccess)).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// FindNeedingCompensation returns FAILED transactions in a compensable saga
// state, oldest first. An exchange booking without a coupon owes nothing and
// is left out.
func (r *TransactionRepository) FindNeedingCompensation(ctx context.Context, limit int) ([]*domain.Transaction, error) {
	states := domain.CompensableSagaStates()
	args := []any{string(domain.StatusFailed)}
	for _, st := range states {
		args = append(args, string(st))
	}
	args = append(args, string(domain.SagaAccountingCompleted), string(domain.AccountingExchange), limit)

	query := `SELECT ` + transactionColumns + ` FROM subscription_transactions
		WHERE status = ? AND saga_state IN (` + database.Placeholders(len(states)) + `)
			AND NOT (saga_state = ? AND accounting_type = ? AND COALESCE(coupon_id, '') = '')
		ORDER BY updated_at ASC
		LIMIT ?`
	return r.queryTransactions(ctx, query, args...)
}

// FindStuck returns in-flight transactions untouched since cutoff. FAILED
// rows and terminal saga states are excluded; claimed rows are included so a
// crashed compensation can be released.
func (r *TransactionRepository) FindStuck(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Transaction, error) {
	terminal := domain.TerminalSagaStates()
	args := []any{string(domain.StatusFailed)}
	for _, st := range terminal {
		args = append(args, string(st))
	}
	args = append(args, database.FormatTime(cutoff), limit)

	query := `SELECT ` + transactionColumns + ` FROM subscription_transactions
		WHERE status <> ? AND saga_state NOT IN (` + database.Placeholders(len(terminal)) + `)
			AND updated_at < ?
		ORDER BY updated_at ASC
		LIMIT ?`
	return r.queryTransactions(ctx, query, args...)
}

func (r *TransactionRepository) queryTransactions(ctx context.Context, query string, args ...any) ([]*domain.Transaction, error) {
	rows, err := r.executor(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txns []*domain.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, txn)
	}
	return txns, rows.Err()
}

func scanTransaction(row database.Row) (*domain.Transaction, error) {
	var (
		id, currency, amount, feeRate, originalFee, discount, finalFee string
		status, sagaState, accountingType, preState                    string
		requestTime, createdAt, updatedAt                              string
		completeTime                                                   sql.NullString
		s                                                              domain.Snapshot
	)
	err := row.Scan(
		&id, &s.SerialNumber, &s.CustomerID, &s.AccountNumber, &s.ProductCode, &currency,
		&amount, &feeRate, &originalFee, &discount, &finalFee, &s.CouponID, &s.Channel, &s.FirstTime,
		&status, &sagaState, &s.CoreBankingTxnID, &s.FreezeID, &s.CouponUsageID, &accountingType,
		&s.ErrorCode, &s.ErrorMessage, &requestTime, &completeTime, &s.CompensationAttempts,
		&preState, &s.Version, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if s.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse transaction id: %w", err)
	}
	if s.Amount, err = sharedDomain.ParseMoney(amount, currency); err != nil {
		return nil, err
	}
	if s.FeeRate, err = decimal.NewFromString(feeRate); err != nil {
		return nil, fmt.Errorf("parse fee rate: %w", err)
	}
	if s.OriginalFee, err = sharedDomain.ParseMoney(originalFee, currency); err != nil {
		return nil, err
	}
	if s.Discount, err = sharedDomain.ParseMoney(discount, currency); err != nil {
		return nil, err
	}
	if s.FinalFee, err = sharedDomain.ParseMoney(finalFee, currency); err != nil {
		return nil, err
	}
	if s.RequestTime, err = database.ParseTime(requestTime); err != nil {
		return nil, err
	}
	if s.CompleteTime, err = database.ParseNullTime(completeTime); err != nil {
		return nil, err
	}
	if s.CreatedAt, err = database.ParseTime(createdAt); err != nil {
		return nil, err
	}
	if s.UpdatedAt, err = database.ParseTime(updatedAt); err != nil {
		return nil, err
	}
	s.Status = domain.Status(status)
	s.SagaState = domain.SagaState(sagaState)
	s.AccountingType = domain.AccountingType(accountingType)
	s.PreCompensationState = domain.SagaState(preState)

	return domain.RehydrateTransaction(s), nil
}
