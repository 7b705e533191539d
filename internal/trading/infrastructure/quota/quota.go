// Package quota implements the per-product daily subscription counter.
//
// Totals are kept in minor currency units. A non-positive limit means the
// product has no daily ceiling; usage is still counted.
package quota

import (
	"fmt"

	sharedDomain "github.com/felixgeelhaar/fundsaga/internal/shared/domain"
)

func minorUnits(amount, limit sharedDomain.Money) (int64, int64, error) {
	if amount.Currency() != limit.Currency() {
		return 0, 0, fmt.Errorf("%w: quota %s, amount %s", sharedDomain.ErrCurrencyMismatch, limit.Currency(), amount.Currency())
	}
	return amount.MinorUnits(), limit.MinorUnits(), nil
}
