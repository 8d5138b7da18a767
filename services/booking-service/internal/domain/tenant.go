package domain

import "github.com/shopspring/decimal"

// Tenant is owned by tenant management. The booking core only reads it;
// bookingctl can seed rows for local setups.
type Tenant struct {
	ID                 string          `gorm:"primaryKey;size:64"`
	Name               string          `gorm:"size:200"`
	CommissionPercent  decimal.Decimal `gorm:"type:numeric(5,2);not null"`
	ConnectedAccountID string          `gorm:"size:255"` // Stripe Connect destination; empty means direct charge
	MinLeadDays        int             `gorm:"not null;default:0"`
}

// CommissionProfile is the slice of Tenant consulted at confirmation time.
type CommissionProfile struct {
	TenantID string
	Percent  decimal.Decimal
}
