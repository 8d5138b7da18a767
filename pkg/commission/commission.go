// Package commission splits a booking total between the platform and the tenant.
package commission

import (
	"errors"

	"github.com/shopspring/decimal"
)

var ErrInvalidPercent = errors.New("commission_percent_out_of_range")

var hundred = decimal.NewFromInt(100)

// Split is the result of applying a commission rate to a total, in cents.
type Split struct {
	Percent           decimal.Decimal
	PlatformFeeCents  int64
	TenantPayoutCents int64
}

// Calculate returns the platform fee as ceil(total * percent / 100) and the
// remainder as the tenant payout. Percent must be within [0, 100].
func Calculate(totalCents int64, percent decimal.Decimal) (Split, error) {
	if percent.IsNegative() || percent.GreaterThan(hundred) {
		return Split{}, ErrInvalidPercent
	}
	if totalCents < 0 {
		return Split{}, errors.New("negative_total")
	}
	fee := decimal.NewFromInt(totalCents).Mul(percent).Div(hundred).Ceil().IntPart()
	return Split{
		Percent:           percent,
		PlatformFeeCents:  fee,
		TenantPayoutCents: totalCents - fee,
	}, nil
}
