package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/you/wedding-booking/services/booking-service/internal/domain"
)

// activeSlotIndex backs the bookings lock discipline: even if a writer skips the
// slot lock, two active bookings for one (tenant, date) cannot both commit.
const activeSlotIndex = `CREATE UNIQUE INDEX IF NOT EXISTS ux_bookings_active_slot
	ON bookings (tenant_id, event_date)
	WHERE status IN ('PENDING', 'CONFIRMED')`

// Store groups the repositories over one connection or one open transaction.
type Store struct {
	db       *gorm.DB
	Bookings *BookingRepo
	Ledger   *LedgerRepo
	Tenants  *TenantRepo
	Outbox   *OutboxRepo
}

func NewStore(db *gorm.DB) *Store {
	return &Store{
		db:       db,
		Bookings: &BookingRepo{db: db},
		Ledger:   &LedgerRepo{db: db},
		Tenants:  &TenantRepo{db: db},
		Outbox:   &OutboxRepo{db: db},
	}
}

func (s *Store) Migrate() error {
	// tenants belongs to tenant management; migrated here so local runs and tests have it
	if err := s.db.AutoMigrate(
		&domain.Tenant{},
		&domain.DateSlot{},
		&domain.Booking{},
		&domain.WebhookEvent{},
		&domain.OutboxMessage{},
	); err != nil {
		return err
	}
	return s.db.Exec(activeSlotIndex).Error
}

// Transaction runs fn against a Store bound to a single database transaction.
// Returning an error from fn rolls everything back. Inside fn only tx may be
// used.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewStore(tx))
	})
}
