package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/you/wedding-booking/services/booking-service/internal/domain"
	"github.com/you/wedding-booking/services/booking-service/internal/repository"
)

var tracer = otel.Tracer("booking-service/service")

// Release reasons recorded on FAILED bookings.
const (
	ReasonCheckoutSessionFailed = "checkout_session_failed"
	ReasonReservationExpired    = "reservation_expired"
)

type Reservation struct {
	TenantID      string
	EventDate     string // YYYY-MM-DD
	CustomerEmail string
	CustomerName  string
	PackageID     string
	AddOnIDs      []string
	TotalCents    int64
	Currency      string
}

// Coordinator owns every write that takes or frees a (tenant, date) slot. All
// of them run in one transaction holding the slot's row lock, so writers for
// the same slot are serialised and writers for other slots never wait.
type Coordinator struct {
	store *repository.Store
	now   func() time.Time
}

func NewCoordinator(store *repository.Store) *Coordinator {
	return &Coordinator{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// ReserveDate inserts a PENDING booking for r unless the slot is already held.
func (c *Coordinator) ReserveDate(ctx context.Context, r Reservation) (*domain.Booking, error) {
	ctx, span := tracer.Start(ctx, "coordinator.reserve_date", trace.WithAttributes(
		attribute.String("tenant.id", r.TenantID),
		attribute.String("booking.event_date", r.EventDate),
	))
	defer span.End()

	b := &domain.Booking{
		ID:            uuid.NewString(),
		TenantID:      r.TenantID,
		EventDate:     r.EventDate,
		CustomerEmail: r.CustomerEmail,
		CustomerName:  r.CustomerName,
		PackageID:     r.PackageID,
		AddOnIDs:      r.AddOnIDs,
		TotalCents:    r.TotalCents,
		Currency:      r.Currency,
		Status:        domain.StatusPending,
	}
	err := c.store.Transaction(ctx, func(tx *repository.Store) error {
		if err := tx.Bookings.LockSlot(ctx, r.TenantID, r.EventDate); err != nil {
			return err
		}
		held, err := tx.Bookings.ActiveFor(ctx, r.TenantID, r.EventDate)
		switch {
		case err == nil:
			return fmt.Errorf("%w: %s/%s held by %s", domain.ErrDateUnavailable, r.TenantID, r.EventDate, held.ID)
		case !errors.Is(err, domain.ErrBookingNotFound):
			return err
		}
		return tx.Bookings.Create(ctx, b)
	})
	if err != nil {
		err = storageErr(err)
		if errors.Is(err, domain.ErrDateUnavailable) {
			log.Printf("[coordinator] date unavailable tenant=%s date=%s", r.TenantID, r.EventDate)
		} else {
			log.Printf("[coordinator] reserve tenant=%s date=%s: %v", r.TenantID, r.EventDate, err)
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, "reserve failed")
		}
		return nil, err
	}
	span.SetAttributes(attribute.String("booking.id", b.ID))
	return b, nil
}

// Release moves a PENDING booking to FAILED and frees its date. It reports
// false when the booking had already left PENDING.
func (c *Coordinator) Release(ctx context.Context, bookingID, reason string) (bool, error) {
	return c.settle(ctx, bookingID, func(tx *repository.Store, b *domain.Booking) (bool, error) {
		if b.Status != domain.StatusPending {
			log.Printf("[coordinator] release skipped booking=%s status=%s", b.ID, b.Status)
			return false, nil
		}
		return true, releaseLocked(ctx, tx, b, reason, c.now())
	})
}

// Cancel moves a CONFIRMED booking to CANCELLED and frees its date. A PENDING
// booking cannot be cancelled; it is released instead.
func (c *Coordinator) Cancel(ctx context.Context, bookingID, reason string) (bool, error) {
	return c.settle(ctx, bookingID, func(tx *repository.Store, b *domain.Booking) (bool, error) {
		changed, err := b.Transition(domain.StatusCancelled, c.now())
		if err != nil || !changed {
			if err == nil {
				log.Printf("[coordinator] cancel skipped booking=%s status=%s", b.ID, b.Status)
			}
			return false, err
		}
		b.FailureReason = reason
		if err := tx.Bookings.Save(ctx, b); err != nil {
			return false, err
		}
		return true, tx.Outbox.Enqueue(ctx, domain.RKBookingCancelled, domain.NewBookingReleased(b, c.now()))
	})
}

// settle loads the booking, then takes the slot lock followed by the booking
// row lock, the same order every slot writer uses.
func (c *Coordinator) settle(ctx context.Context, bookingID string, fn func(tx *repository.Store, b *domain.Booking) (bool, error)) (bool, error) {
	cur, err := c.store.Bookings.ByID(ctx, bookingID)
	if err != nil {
		return false, storageErr(err)
	}
	var changed bool
	err = c.store.Transaction(ctx, func(tx *repository.Store) error {
		if err := tx.Bookings.LockSlot(ctx, cur.TenantID, cur.EventDate); err != nil {
			return err
		}
		b, err := tx.Bookings.LockByID(ctx, bookingID)
		if err != nil {
			return err
		}
		changed, err = fn(tx, b)
		return err
	})
	if err != nil {
		return false, storageErr(err)
	}
	return changed, nil
}

// ExpireStale releases PENDING bookings created before cutoff through the same
// path as a failed payment. It returns how many were released.
func (c *Coordinator) ExpireStale(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	stale, err := c.store.Bookings.StalePending(ctx, cutoff, limit)
	if err != nil {
		return 0, storageErr(err)
	}
	var (
		released int
		errs     []error
	)
	for _, b := range stale {
		changed, err := c.Release(ctx, b.ID, ReasonReservationExpired)
		if err != nil {
			errs = append(errs, fmt.Errorf("booking %s: %w", b.ID, err))
			continue
		}
		if changed {
			released++
			log.Printf("[sweeper] expired booking=%s tenant=%s date=%s", b.ID, b.TenantID, b.EventDate)
		}
	}
	return released, errors.Join(errs...)
}

// releaseLocked requires the slot lock held by tx and b in PENDING.
func releaseLocked(ctx context.Context, tx *repository.Store, b *domain.Booking, reason string, now time.Time) error {
	if _, err := b.Transition(domain.StatusFailed, now); err != nil {
		return err
	}
	b.FailureReason = reason
	if err := tx.Bookings.Save(ctx, b); err != nil {
		return err
	}
	return tx.Outbox.Enqueue(ctx, domain.RKBookingFailed, domain.NewBookingReleased(b, now))
}

// storageErr passes domain errors through and marks everything else as a
// transient storage failure.
func storageErr(err error) error {
	for _, known := range []error{
		domain.ErrDateUnavailable,
		domain.ErrBookingNotFound,
		domain.ErrTenantNotFound,
		domain.ErrInvalidTransition,
		domain.ErrCorrelationNotFound,
		domain.ErrMalformedCorrelation,
		domain.ErrTransientStorage,
	} {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("%w: %w", domain.ErrTransientStorage, err)
}
