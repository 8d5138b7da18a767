package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Routing keys published by the booking service.
const (
	RKBookingConfirmed = "booking.confirmed"
	RKBookingFailed    = "booking.failed"
	RKBookingCancelled = "booking.cancelled"
)

// BookingConfirmed carries enough for the couple's receipt and the tenant's
// payout notice.
type BookingConfirmed struct {
	BookingID         string    `json:"booking_id"`
	TenantID          string    `json:"tenant_id"`
	EventDate         string    `json:"event_date"`
	CustomerEmail     string    `json:"customer_email"`
	CustomerName      string    `json:"customer_name,omitempty"`
	PackageID         string    `json:"package_id"`
	AddOnIDs          []string  `json:"add_on_ids,omitempty"`
	TotalCents        int64     `json:"total_cents"`
	Currency          string    `json:"currency"`
	CommissionPercent string    `json:"commission_percent"`
	PlatformFeeCents  int64     `json:"platform_fee_cents"`
	TenantPayoutCents int64     `json:"tenant_payout_cents"`
	ConfirmedAt       time.Time `json:"confirmed_at"`
}

// BookingReleased is the payload of booking.failed and booking.cancelled.
type BookingReleased struct {
	BookingID     string    `json:"booking_id"`
	TenantID      string    `json:"tenant_id"`
	EventDate     string    `json:"event_date"`
	CustomerEmail string    `json:"customer_email"`
	Status        string    `json:"status"`
	Reason        string    `json:"reason,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// ErrMalformed marks payloads that will never decode; they are dead-lettered
// instead of requeued.
var ErrMalformed = errors.New("malformed payload")

func Decode[T any](b []byte) (T, error) {
	var t T
	if err := json.Unmarshal(b, &t); err != nil {
		var zero T
		return zero, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return t, nil
}

// Money renders cents as "1500.00 USD".
func Money(cents int64, currency string) string {
	return strings.TrimSpace(decimal.New(cents, -2).StringFixed(2) + " " + strings.ToUpper(currency))
}
