package domain

import "time"

// Routing keys on the booking exchange.
const (
	RKBookingConfirmed = "booking.confirmed"
	RKBookingFailed    = "booking.failed"
	RKBookingCancelled = "booking.cancelled"
)

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

// BookingReleased is published for both booking.failed and booking.cancelled.
type BookingReleased struct {
	BookingID     string    `json:"booking_id"`
	TenantID      string    `json:"tenant_id"`
	EventDate     string    `json:"event_date"`
	CustomerEmail string    `json:"customer_email"`
	Status        Status    `json:"status"`
	Reason        string    `json:"reason,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

func NewBookingConfirmed(b *Booking) BookingConfirmed {
	ev := BookingConfirmed{
		BookingID:         b.ID,
		TenantID:          b.TenantID,
		EventDate:         b.EventDate,
		CustomerEmail:     b.CustomerEmail,
		CustomerName:      b.CustomerName,
		PackageID:         b.PackageID,
		AddOnIDs:          b.AddOnIDs,
		TotalCents:        b.TotalCents,
		Currency:          b.Currency,
		PlatformFeeCents:  b.PlatformFeeCents,
		TenantPayoutCents: b.TenantPayoutCents,
	}
	if b.CommissionPercent.Valid {
		ev.CommissionPercent = b.CommissionPercent.Decimal.String()
	}
	if b.ConfirmedAt != nil {
		ev.ConfirmedAt = *b.ConfirmedAt
	}
	return ev
}

func NewBookingReleased(b *Booking, now time.Time) BookingReleased {
	return BookingReleased{
		BookingID:     b.ID,
		TenantID:      b.TenantID,
		EventDate:     b.EventDate,
		CustomerEmail: b.CustomerEmail,
		Status:        b.Status,
		Reason:        b.FailureReason,
		OccurredAt:    now,
	}
}

// OutboxMessage is written in the same transaction as the state change it
// announces and relayed to the broker afterwards.
type OutboxMessage struct {
	ID          string     `gorm:"primaryKey;size:36"` // doubles as the AMQP MessageId
	RoutingKey  string     `gorm:"size:100;not null"`
	Payload     []byte     `gorm:"not null"`
	Attempts    int        `gorm:"not null;default:0"`
	LastError   string     `gorm:"type:text"`
	PublishedAt *time.Time `gorm:"index"`
	CreatedAt   time.Time  `gorm:"index"`
}
