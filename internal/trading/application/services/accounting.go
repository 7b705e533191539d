package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/fundsaga/internal/integration/ledger"
	sharedDomain "github.com/felixgeelhaar/fundsaga/internal/shared/domain"
	"github.com/felixgeelhaar/fundsaga/internal/shared/infrastructure/resilience"
	"github.com/felixgeelhaar/fundsaga/internal/trading/domain"
)

// AccountingService picks the ledger strategy for a subscription and books it.
type AccountingService struct {
	ledger   ledger.Gateway
	breakers *resilience.Registry
	window   TradingWindow
	now      func() time.Time
	logger   *slog.Logger
}

// NewAccountingService creates an accounting service.
func NewAccountingService(gateway ledger.Gateway, breakers *resilience.Registry, window TradingWindow, logger *slog.Logger) *AccountingService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AccountingService{
		ledger:   gateway,
		breakers: breakers,
		window:   window,
		now:      time.Now,
		logger:   logger,
	}
}

// WithClock replaces the clock used to place a booking in the trading window.
func (s *AccountingService) WithClock(now func() time.Time) *AccountingService {
	if now != nil {
		s.now = now
	}
	return s
}

// SelectStrategy chooses how to book a subscription. A currency mismatch
// between product and account always goes through exchange; otherwise the
// trading window decides between a direct debit and a freeze.
func (s *AccountingService) SelectStrategy(productCurrency, accountCurrency string, at time.Time) domain.AccountingType {
	if productCurrency != accountCurrency {
		return domain.AccountingExchange
	}
	if s.window.Contains(at) {
		return domain.AccountingDirect
	}
	return domain.AccountingFreeze
}

// Book runs the selected strategy against the core-banking system and
// records the outcome on the transaction.
func (s *AccountingService) Book(ctx context.Context, txn *domain.Transaction, productCurrency, accountCurrency string) (domain.AccountingType, error) {
	strategy := s.SelectStrategy(productCurrency, accountCurrency, s.now())
	req := ledger.Request{
		SerialNumber:  txn.SerialNumber(),
		CustomerID:    txn.CustomerID(),
		AccountNumber: txn.AccountNumber(),
		ProductCode:   txn.ProductCode(),
		Amount:        txn.Amount(),
		Fee:           txn.FinalFee(),
		Type:          strategy.String(),
		Description:   fmt.Sprintf("Fund subscription %s %s", txn.ProductCode(), txn.SerialNumber()),
	}

	var (
		call  func(context.Context, ledger.Request) (ledger.Result, error)
		code  sharedDomain.ErrorCode
		label string
		mark  func(string) error
	)
	switch strategy {
	case domain.AccountingExchange:
		req.SourceCurrency = accountCurrency
		req.TargetCurrency = productCurrency
		call, code, label, mark = s.ledger.ExchangeAndAccount, sharedDomain.CodeExchangeFailed, "Exchange and accounting", txn.MarkExchangeCompleted
	case domain.AccountingDirect:
		call, code, label, mark = s.ledger.Accounting, sharedDomain.CodeAccountingFailed, "Accounting", txn.MarkAccountingCompleted
	default:
		call, code, label, mark = s.ledger.Freeze, sharedDomain.CodeFreezeFailed, "Freeze", txn.MarkFreezeCompleted
	}

	s.logger.InfoContext(ctx, "booking subscription",
		"serial_number", txn.SerialNumber(),
		"strategy", strategy.String(),
		"amount", req.Amount.StringFixed(),
		"fee", req.Fee.StringFixed(),
		"currency", req.Amount.Currency(),
	)

	res, err := resilience.Execute(ctx, s.breakers, resilience.BreakerCoreBanking, func(ctx context.Context) (ledger.Result, error) {
		return call(ctx, req)
	})
	if err != nil {
		return strategy, ledgerError(code, label, err)
	}
	if err := mark(res.TransactionID); err != nil {
		return strategy, err
	}
	return strategy, nil
}

// ledgerError classifies a failed core-banking call.
func ledgerError(code sharedDomain.ErrorCode, label string, err error) error {
	switch {
	case errors.Is(err, resilience.ErrCircuitOpen):
		return sharedDomain.NewExternalError(sharedDomain.CodeExternalSystemTimeout, "Core banking system unavailable", err)
	case errors.Is(err, context.DeadlineExceeded):
		return sharedDomain.NewExternalError(sharedDomain.CodeExternalSystemTimeout, "Core banking system timed out", err)
	default:
		return sharedDomain.NewExternalError(code, label+" failed", err)
	}
}
