// Package mcp exposes the subscription saga as MCP tools, resources and prompts.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/felixgeelhaar/mcp-go"

	"github.com/felixgeelhaar/fundsaga/adapter/api"
	"github.com/felixgeelhaar/fundsaga/adapter/cli"
	sharedDomain "github.com/felixgeelhaar/fundsaga/internal/shared/domain"
	"github.com/felixgeelhaar/fundsaga/internal/trading/application/commands"
	"github.com/felixgeelhaar/fundsaga/internal/trading/application/queries"
	"github.com/felixgeelhaar/fundsaga/internal/trading/application/workers"
	"github.com/felixgeelhaar/fundsaga/pkg/observability"
)

// ToolDependencies provides handlers and context for MCP tools.
type ToolDependencies struct {
	App *cli.App
}

type subscribeInput struct {
	CustomerID    string `json:"customer_id" jsonschema:"required"`
	AccountNumber string `json:"account_number" jsonschema:"required"`
	ProductCode   string `json:"product_code" jsonschema:"required"`
	Amount        string `json:"amount" jsonschema:"required"`
	Currency      string `json:"currency,omitempty"`
	Channel       string `json:"channel,omitempty"`
	CouponID      string `json:"coupon_id,omitempty"`
}

type transactionInput struct {
	SerialNumber string `json:"serial_number" jsonschema:"required"`
}

// RegisterTools registers the saga tools.
func RegisterTools(srv *mcp.Server, deps ToolDependencies) error {
	if srv == nil {
		return errors.New("server is required")
	}
	if deps.App == nil {
		return errors.New("app is required")
	}
	app := deps.App

	srv.Tool("saga.subscribe").
		Description("Subscribe a customer to a fund product and report the saga outcome").
		Handler(func(ctx context.Context, input subscribeInput) (api.SubscriptionResponse, error) {
			return subscribe(ctx, app, input)
		})

	srv.Tool("saga.transaction").
		Description("Get a subscription transaction with its coupon usages").
		Handler(func(ctx context.Context, input transactionInput) (*queries.TransactionDTO, error) {
			return transaction(ctx, app, input)
		})

	srv.Tool("saga.recover").
		Description("Run one recovery cycle over stuck and failed subscriptions").
		Handler(func(ctx context.Context, input struct{}) (workers.CycleReport, error) {
			if app.Recovery == nil {
				return workers.CycleReport{}, errors.New("recovery requires database connection")
			}
			return app.Recovery.RunOnce(ctx)
		})

	srv.Tool("system.health").
		Description("Check database, cache, broker and circuit breaker health").
		Handler(func(ctx context.Context, input struct{}) (observability.OverallHealth, error) {
			if app.Health == nil {
				return observability.OverallHealth{}, errors.New("health registry not initialized")
			}
			return app.Health.GetOverallHealth(ctx), nil
		})

	srv.Tool("system.version").
		Description("Get build version information").
		Handler(func(ctx context.Context, input struct{}) (cli.BuildInfo, error) {
			return cli.Build(), nil
		})

	return nil
}

// subscribe runs the saga. Business rejections are reported in the
// response rather than as tool errors so the caller sees the serial number.
func subscribe(ctx context.Context, app *cli.App, input subscribeInput) (api.SubscriptionResponse, error) {
	if app.Subscriptions == nil {
		return api.SubscriptionResponse{}, errors.New("subscription requires database connection")
	}
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = "CNY"
	}
	channel := input.Channel
	if channel == "" {
		channel = "WEB"
	}

	amount, err := sharedDomain.ParseMoney(input.Amount, currency)
	if err != nil {
		return api.SubscriptionResponse{}, fmt.Errorf("invalid amount: %w", err)
	}

	result, err := app.Subscriptions.Handle(ctx, commands.ProcessSubscriptionCommand{
		CustomerID:    input.CustomerID,
		AccountNumber: input.AccountNumber,
		ProductCode:   input.ProductCode,
		Amount:        amount,
		Channel:       channel,
		CouponID:      input.CouponID,
	})
	resp := api.ResponseFromResult(result)
	if err != nil {
		if result == nil {
			return resp, err
		}
		appErr := sharedDomain.Classify(err)
		resp.ErrorCode = string(appErr.Code)
		resp.ErrorMessage = appErr.Message
	}
	return resp, nil
}

func transaction(ctx context.Context, app *cli.App, input transactionInput) (*queries.TransactionDTO, error) {
	if app.Transactions == nil {
		return nil, errors.New("transaction lookup requires database connection")
	}
	if strings.TrimSpace(input.SerialNumber) == "" {
		return nil, errors.New("serial_number is required")
	}
	return app.Transactions.Handle(ctx, queries.GetTransactionQuery{SerialNumber: input.SerialNumber})
}
