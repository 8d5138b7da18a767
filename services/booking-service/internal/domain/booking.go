package domain

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
)

// ActiveStatuses hold a (tenant, event date) slot.
var ActiveStatuses = []Status{StatusPending, StatusConfirmed}

func (s Status) Active() bool {
	return s == StatusPending || s == StatusConfirmed
}

// settled statuses only move forward through explicit edges; any other request
// against them is a replay and is ignored.
func (s Status) settled() bool {
	return s == StatusConfirmed || s == StatusFailed || s == StatusCancelled
}

var edges = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusFailed},
	StatusConfirmed: {StatusCancelled},
}

// CanTransition reports whether from→to is an edge of the booking lifecycle.
func CanTransition(from, to Status) bool {
	for _, s := range edges[from] {
		if s == to {
			return true
		}
	}
	return false
}

type Booking struct {
	ID                  string                      `gorm:"primaryKey;size:36"`
	TenantID            string                      `gorm:"size:64;not null;index:idx_bookings_tenant_date"`
	EventDate           string                      `gorm:"size:10;not null;index:idx_bookings_tenant_date"` // YYYY-MM-DD
	CustomerEmail       string                      `gorm:"size:320;not null"`
	CustomerName        string                      `gorm:"size:200"`
	PackageID           string                      `gorm:"size:64;not null"`
	AddOnIDs            datatypes.JSONSlice[string] `gorm:"column:add_on_ids"`
	TotalCents          int64                       `gorm:"not null"`
	Currency            string                      `gorm:"size:3;not null"`
	Status              Status                      `gorm:"size:16;not null;index"`
	Provider            string                      `gorm:"size:16"`
	CheckoutSessionID   string                      `gorm:"size:255;index"`
	// ApplicationFeeCents is the fee requested from the provider at checkout;
	// PlatformFeeCents is recomputed from the tenant's rate at confirmation.
	ApplicationFeeCents int64
	CommissionPercent   decimal.NullDecimal `gorm:"type:numeric(5,2)"`
	PlatformFeeCents    int64
	TenantPayoutCents   int64
	FailureReason       string `gorm:"size:255"`
	ConfirmedAt         *time.Time
	CreatedAt           time.Time `gorm:"index"`
	UpdatedAt           time.Time
}

// Transition moves the booking to `to`. It returns changed=false without error
// when the booking is already in `to` or sits in a settled state the request
// cannot move (replayed or stale events). Any other missing edge is
// ErrInvalidTransition.
func (b *Booking) Transition(to Status, now time.Time) (changed bool, err error) {
	if b.Status == to {
		return false, nil
	}
	if CanTransition(b.Status, to) {
		b.Status = to
		b.UpdatedAt = now
		if to == StatusConfirmed {
			t := now
			b.ConfirmedAt = &t
		}
		return true, nil
	}
	if b.Status.settled() {
		return false, nil
	}
	return false, ErrInvalidTransition
}
