// Package persistence stores the fund product catalogue.
package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/felixgeelhaar/fundsaga/internal/product/domain"
	sharedDomain "github.com/felixgeelhaar/fundsaga/internal/shared/domain"
	"github.com/felixgeelhaar/fundsaga/internal/shared/infrastructure/database"
	"github.com/shopspring/decimal"
)

// ProductRepository implements domain.Repository.
type ProductRepository struct {
	conn database.Connection
}

// NewProductRepository creates a new product repository.
func NewProductRepository(conn database.Connection) *ProductRepository {
	return &ProductRepository{conn: conn}
}

var _ domain.Repository = (*ProductRepository)(nil)

// Save inserts or replaces a product.
func (r *ProductRepository) Save(ctx context.Context, p *domain.FundProduct) error {
	query := `INSERT INTO fund_products (
			code, name, status, trading_status, risk_level, currency, min_initial_amount,
			min_additional_amount, max_subscription, amount_unit, daily_quota, allowed_channels,
			subscription_fee_rate, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (code) DO UPDATE SET
			name = excluded.name,
			status = excluded.status,
			trading_status = excluded.trading_status,
			risk_level = excluded.risk_level,
			currency = excluded.currency,
			min_initial_amount = excluded.min_initial_amount,
			min_additional_amount = excluded.min_additional_amount,
			max_subscription = excluded.max_subscription,
			amount_unit = excluded.amount_unit,
			daily_quota = excluded.daily_quota,
			allowed_channels = excluded.allowed_channels,
			subscription_fee_rate = excluded.subscription_fee_rate,
			updated_at = excluded.updated_at`

	var maxSub sql.NullString
	if p.MaxSubscription != nil {
		maxSub = sql.NullString{String: p.MaxSubscription.StringFixed(), Valid: true}
	}

	_, err := database.ExecutorFromContext(ctx, r.conn).Exec(ctx, query,
		p.Code, p.Name, string(p.Status), string(p.TradingStatus), p.RiskLevel.Int(), p.CurrencyCode,
		p.MinInitialAmount.StringFixed(), p.MinAdditionalAmount.StringFixed(), maxSub,
		p.AmountUnit.String(), p.DailyQuota.StringFixed(), strings.Join(p.AllowedChannels, ","),
		p.SubscriptionFeeRate.String(), database.FormatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("save product %s: %w", p.Code, err)
	}
	return nil
}

// FindByCode loads a product.
func (r *ProductRepository) FindByCode(ctx context.Context, code string) (*domain.FundProduct, error) {
	query := `SELECT code, name, status, trading_status, risk_level, currency, min_initial_amount,
			min_additional_amount, max_subscription, amount_unit, daily_quota, allowed_channels,
			subscription_fee_rate
		FROM fund_products WHERE code = ?`

	var (
		p                                               domain.FundProduct
		status, tradingStatus                           string
		riskLevel                                       int
		minInitial, minAdditional, unit, quota, feeRate string
		channels                                        string
		maxSub                                          sql.NullString
	)
	err := database.ExecutorFromContext(ctx, r.conn).QueryRow(ctx, query, code).Scan(
		&p.Code, &p.Name, &status, &tradingStatus, &riskLevel, &p.CurrencyCode, &minInitial,
		&minAdditional, &maxSub, &unit, &quota, &channels, &feeRate,
	)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, domain.ErrProductNotFound
		}
		return nil, err
	}

	p.Status = domain.Status(status)
	p.TradingStatus = domain.TradingStatus(tradingStatus)
	if p.RiskLevel, err = domain.NewRiskLevel(riskLevel); err != nil {
		return nil, err
	}
	if p.MinInitialAmount, err = sharedDomain.ParseMoney(minInitial, p.CurrencyCode); err != nil {
		return nil, err
	}
	if p.MinAdditionalAmount, err = sharedDomain.ParseMoney(minAdditional, p.CurrencyCode); err != nil {
		return nil, err
	}
	if maxSub.Valid {
		m, err := sharedDomain.ParseMoney(maxSub.String, p.CurrencyCode)
		if err != nil {
			return nil, err
		}
		p.MaxSubscription = &m
	}
	if p.AmountUnit, err = decimal.NewFromString(unit); err != nil {
		return nil, fmt.Errorf("parse amount unit: %w", err)
	}
	if p.DailyQuota, err = sharedDomain.ParseMoney(quota, p.CurrencyCode); err != nil {
		return nil, err
	}
	if p.SubscriptionFeeRate, err = decimal.NewFromString(feeRate); err != nil {
		return nil, fmt.Errorf("parse fee rate: %w", err)
	}
	if channels != "" {
		p.AllowedChannels = strings.Split(channels, ",")
	}
	return &p, nil
}
