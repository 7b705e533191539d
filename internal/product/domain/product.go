package domain

import (
	"fmt"
	"strings"

	sharedDomain "github.com/felixgeelhaar/fundsaga/internal/shared/domain"
	"github.com/shopspring/decimal"
)

// Status is the lifecycle status of a fund product.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusSuspended Status = "SUSPENDED"
	StatusClosed    Status = "CLOSED"
	StatusPending   Status = "PENDING"
)

// TradingStatus restricts which order types a product accepts.
type TradingStatus string

const (
	TradingAll              TradingStatus = "ALL"
	TradingSubscriptionOnly TradingStatus = "SUBSCRIPTION_ONLY"
	TradingRedemptionOnly   TradingStatus = "REDEMPTION_ONLY"
	TradingNone             TradingStatus = "NONE"
)

// AllowsSubscription reports whether subscriptions are open.
func (s TradingStatus) AllowsSubscription() bool {
	return s == TradingAll || s == TradingSubscriptionOnly
}

// AllowsRedemption reports whether redemptions are open.
func (s TradingStatus) AllowsRedemption() bool {
	return s == TradingAll || s == TradingRedemptionOnly
}

// FundProduct is the catalogue entry a subscription is validated against.
// MaxSubscription and AmountUnit are optional; a zero AmountUnit disables the unit check.
type FundProduct struct {
	Code                string
	Name                string
	Status              Status
	TradingStatus       TradingStatus
	RiskLevel           RiskLevel
	CurrencyCode        string
	MinInitialAmount    sharedDomain.Money
	MinAdditionalAmount sharedDomain.Money
	MaxSubscription     *sharedDomain.Money
	AmountUnit          decimal.Decimal
	DailyQuota          sharedDomain.Money
	AllowedChannels     []string
	SubscriptionFeeRate decimal.Decimal
}

// CanSubscribe reports whether the product is open for subscription.
func (p *FundProduct) CanSubscribe() bool {
	return p.Status == StatusActive && p.TradingStatus.AllowsSubscription()
}

// ChannelAllowed reports whether orders from channel are accepted. An empty list allows all.
func (p *FundProduct) ChannelAllowed(channel string) bool {
	if len(p.AllowedChannels) == 0 {
		return true
	}
	for _, c := range p.AllowedChannels {
		if strings.EqualFold(c, channel) {
			return true
		}
	}
	return false
}

// CheckSubscribable validates product status and channel.
func (p *FundProduct) CheckSubscribable(channel string) error {
	if !p.CanSubscribe() {
		return sharedDomain.NewValidationError(sharedDomain.CodeProductStatusInvalid,
			fmt.Sprintf("Product %s cannot be subscribed. Status: %s, Trading status: %s", p.Code, p.Status, p.TradingStatus))
	}
	if !p.ChannelAllowed(channel) {
		return sharedDomain.NewValidationError(sharedDomain.CodeChannelNotAllowed,
			fmt.Sprintf("Channel %s is not allowed for product %s", channel, p.Code))
	}
	return nil
}

// CheckAmount validates a subscription amount. The first subscription to a
// product uses the initial minimum, later ones the additional minimum.
// Failures are reported in the order: too low, too high, invalid unit.
func (p *FundProduct) CheckAmount(amount sharedDomain.Money, firstTime bool) error {
	if amount.Currency() != p.CurrencyCode {
		return sharedDomain.NewValidationError(sharedDomain.CodeInvalidParameter,
			fmt.Sprintf("Subscription currency %s does not match product currency %s", amount.Currency(), p.CurrencyCode))
	}
	if !amount.IsPositive() {
		return sharedDomain.NewValidationError(sharedDomain.CodeInvalidParameter, "Subscription amount must be positive")
	}

	minimum := p.MinAdditionalAmount
	if firstTime {
		minimum = p.MinInitialAmount
	}
	if cmp, err := amount.Compare(minimum); err != nil {
		return err
	} else if cmp < 0 {
		return sharedDomain.NewValidationError(sharedDomain.CodeAmountTooLow,
			fmt.Sprintf("Subscription amount %s is below minimum %s for product %s", amount.StringFixed(), minimum.StringFixed(), p.Code))
	}

	if p.MaxSubscription != nil {
		if cmp, err := amount.Compare(*p.MaxSubscription); err != nil {
			return err
		} else if cmp > 0 {
			return sharedDomain.NewValidationError(sharedDomain.CodeAmountTooHigh,
				fmt.Sprintf("Subscription amount %s exceeds maximum %s for product %s", amount.StringFixed(), p.MaxSubscription.StringFixed(), p.Code))
		}
	}

	if p.AmountUnit.IsPositive() && !amount.Amount().Mod(p.AmountUnit).IsZero() {
		return sharedDomain.NewValidationError(sharedDomain.CodeAmountInvalidUnit,
			fmt.Sprintf("Subscription amount %s is not a multiple of %s for product %s", amount.StringFixed(), p.AmountUnit.String(), p.Code))
	}
	return nil
}
