package domain

import (
	"errors"
	"fmt"
)

// ErrInvalidRiskLevel is returned for a risk level outside 1..5.
var ErrInvalidRiskLevel = errors.New("risk level must be between 1 and 5")

// RiskLevel rates a product (or a customer's tolerance) from 1 (lowest) to 5.
type RiskLevel int

// NewRiskLevel validates and returns a RiskLevel.
func NewRiskLevel(level int) (RiskLevel, error) {
	if level < 1 || level > 5 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidRiskLevel, level)
	}
	return RiskLevel(level), nil
}

// CompatibleWith reports whether a holder with the given tolerance may buy at this level.
func (r RiskLevel) CompatibleWith(tolerance RiskLevel) bool {
	return r <= tolerance
}

func (r RiskLevel) Int() int { return int(r) }
