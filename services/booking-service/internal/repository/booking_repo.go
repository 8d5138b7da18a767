package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/you/wedding-booking/services/booking-service/internal/domain"
)

type BookingRepo struct{ db *gorm.DB }

// LockSlot creates the (tenant, date) availability row if needed and takes a
// row lock on it for the rest of the transaction. Callers for other dates never
// wait on it.
func (r *BookingRepo) LockSlot(ctx context.Context, tenantID, eventDate string) error {
	db := r.db.WithContext(ctx)
	slot := domain.DateSlot{TenantID: tenantID, EventDate: eventDate}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&slot).Error; err != nil {
		return err
	}
	return db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("tenant_id = ? AND event_date = ?", tenantID, eventDate).
		Take(&slot).Error
}

// ActiveFor returns the PENDING or CONFIRMED booking holding (tenant, date),
// locked for update, or ErrBookingNotFound.
func (r *BookingRepo) ActiveFor(ctx context.Context, tenantID, eventDate string) (*domain.Booking, error) {
	var b domain.Booking
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("tenant_id = ? AND event_date = ? AND status IN ?", tenantID, eventDate, domain.ActiveStatuses).
		Take(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrBookingNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// Create inserts b. A violation of the active-slot unique index is reported as
// ErrDateUnavailable.
func (r *BookingRepo) Create(ctx context.Context, b *domain.Booking) error {
	err := r.db.WithContext(ctx).Create(b).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return domain.ErrDateUnavailable
	}
	return err
}

func (r *BookingRepo) ByID(ctx context.Context, id string) (*domain.Booking, error) {
	return r.take(r.db.WithContext(ctx), id)
}

// LockByID is ByID with a row lock held until the transaction ends.
func (r *BookingRepo) LockByID(ctx context.Context, id string) (*domain.Booking, error) {
	return r.take(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (r *BookingRepo) take(db *gorm.DB, id string) (*domain.Booking, error) {
	var b domain.Booking
	err := db.Where("id = ?", id).Take(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrBookingNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *BookingRepo) Save(ctx context.Context, b *domain.Booking) error {
	err := r.db.WithContext(ctx).Save(b).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return domain.ErrDateUnavailable
	}
	return err
}

// AttachCheckoutSession records the provider session on a still-PENDING booking.
func (r *BookingRepo) AttachCheckoutSession(ctx context.Context, id, provider, sessionID string, applicationFeeCents int64) error {
	res := r.db.WithContext(ctx).Model(&domain.Booking{}).
		Where("id = ? AND status = ?", id, domain.StatusPending).
		Updates(map[string]any{
			"provider":              provider,
			"checkout_session_id":   sessionID,
			"application_fee_cents": applicationFeeCents,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrBookingNotFound
	}
	return nil
}

// BySession finds the booking a provider checkout session was attached to.
func (r *BookingRepo) BySession(ctx context.Context, provider, sessionID string) (*domain.Booking, error) {
	var b domain.Booking
	err := r.db.WithContext(ctx).
		Where("provider = ? AND checkout_session_id = ?", provider, sessionID).
		Order("created_at DESC").
		Take(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrBookingNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// StalePending lists PENDING bookings created before cutoff, oldest first.
func (r *BookingRepo) StalePending(ctx context.Context, cutoff time.Time, limit int) ([]domain.Booking, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []domain.Booking
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", domain.StatusPending, cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// CountActive is used by tests and the operator CLI to audit a slot.
func (r *BookingRepo) CountActive(ctx context.Context, tenantID, eventDate string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&domain.Booking{}).
		Where("tenant_id = ? AND event_date = ? AND status IN ?", tenantID, eventDate, domain.ActiveStatuses).
		Count(&n).Error
	return n, err
}
