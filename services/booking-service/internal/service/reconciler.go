package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/you/wedding-booking/pkg/commission"
	"github.com/you/wedding-booking/services/booking-service/internal/domain"
	"github.com/you/wedding-booking/services/booking-service/internal/payment"
	"github.com/you/wedding-booking/services/booking-service/internal/repository"
)

// Outcome reports what HandleEvent did with an event.
type Outcome string

const (
	OutcomeConfirmed    Outcome = "confirmed"
	OutcomeFailed       Outcome = "failed"
	OutcomeNoop         Outcome = "noop" // unknown type, replay or stale event
	OutcomeDuplicate    Outcome = "duplicate"
	OutcomeDeadLettered Outcome = "dead_lettered" // ledgered as failed; redelivery cannot fix it
)

var ErrProviderMismatch = errors.New("ledger_provider_mismatch")

// Reconciler turns verified provider webhooks into booking transitions,
// exactly once per provider event.
type Reconciler struct {
	store *repository.Store
	gw    payment.Gateway
	now   func() time.Time
}

func NewReconciler(store *repository.Store, gw payment.Gateway) *Reconciler {
	return &Reconciler{store: store, gw: gw, now: func() time.Time { return time.Now().UTC() }}
}

// HandleEvent verifies, ledgers and applies one webhook delivery.
//
// A nil error means the delivery can be acknowledged. OutcomeDeadLettered
// comes with the permanent error that caused it. Any other error is
// retryable and nothing it touched was committed.
func (r *Reconciler) HandleEvent(ctx context.Context, payload []byte, signature string) (Outcome, error) {
	ctx, span := tracer.Start(ctx, "reconciler.handle_event",
		trace.WithAttributes(attribute.String("payment.provider", r.gw.Provider())))
	defer span.End()

	env, err := r.gw.VerifyEvent(ctx, payload, signature)
	if err != nil {
		if errors.Is(err, domain.ErrSignatureInvalid) {
			log.Printf("[security] rejected %s webhook (%d bytes): %v", r.gw.Provider(), len(payload), err)
			return "", err
		}
		log.Printf("[reconcile] verify %s webhook: %v", r.gw.Provider(), err)
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, "verify failed")
		return "", err
	}
	span.SetAttributes(attribute.String("payment.event_id", env.ID), attribute.String("payment.event_type", env.Type))

	// the verified body is what gets stored, never the posted one
	rec, isNew, err := r.store.Ledger.Record(ctx, &domain.WebhookEvent{
		Provider:        r.gw.Provider(),
		ProviderEventID: env.ID,
		EventType:       env.Type,
		Payload:         env.Raw,
	})
	if err != nil {
		log.Printf("[reconcile] ledger event=%s: %v", env.ID, err)
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, "ledger failed")
		return "", fmt.Errorf("%w: record event %s: %w", domain.ErrTransientStorage, env.ID, err)
	}
	if !isNew && rec.Status == domain.LedgerProcessed {
		log.Printf("[reconcile] duplicate event=%s", env.ID)
		return OutcomeDuplicate, nil
	}

	out, err := r.decodeAndProcess(ctx, rec)
	if err != nil && out != OutcomeDeadLettered {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, "apply failed")
	}
	span.SetAttributes(attribute.String("reconcile.outcome", string(out)))
	return out, err
}

// Reprocess replays a ledgered event from its stored, already verified body.
func (r *Reconciler) Reprocess(ctx context.Context, ledgerID string) (Outcome, error) {
	rec, err := r.store.Ledger.ByID(ctx, ledgerID)
	if err != nil {
		return "", err
	}
	if rec.Status == domain.LedgerProcessed {
		return OutcomeDuplicate, nil
	}
	if rec.Provider != r.gw.Provider() {
		return "", fmt.Errorf("%w: event %s is from %s, gateway is %s", ErrProviderMismatch, rec.ID, rec.Provider, r.gw.Provider())
	}
	log.Printf("[reconcile] replaying event=%s ledger=%s attempts=%d", rec.ProviderEventID, rec.ID, rec.Attempts)
	return r.decodeAndProcess(ctx, rec)
}

func (r *Reconciler) decodeAndProcess(ctx context.Context, rec *domain.WebhookEvent) (Outcome, error) {
	ev, err := r.gw.DecodeEvent(ctx, rec.Payload)
	if err != nil {
		if !errors.Is(err, payment.ErrUndecodable) {
			err = fmt.Errorf("%w: %w", payment.ErrUndecodable, err)
		}
		r.markFailed(ctx, rec, err)
		log.Printf("[reconcile] dead-lettered event=%s type=%s ledger=%s: %v", rec.ProviderEventID, rec.EventType, rec.ID, err)
		return OutcomeDeadLettered, err
	}
	return r.process(ctx, rec, ev)
}

func (r *Reconciler) process(ctx context.Context, rec *domain.WebhookEvent, ev payment.Event) (Outcome, error) {
	out, err := r.apply(ctx, rec, ev)
	if err == nil {
		return out, nil
	}
	r.markFailed(ctx, rec, err)
	if permanent(err) {
		log.Printf("[reconcile] dead-lettered event=%s type=%s ledger=%s session=%s: %v",
			ev.ID, ev.Type, rec.ID, ev.SessionID, err)
		return OutcomeDeadLettered, err
	}
	log.Printf("[reconcile] event=%s type=%s ledger=%s failed, awaiting redelivery: %v", ev.ID, ev.Type, rec.ID, err)
	return "", storageErr(err)
}

// permanent errors cannot be fixed by redelivering the same event.
func permanent(err error) bool {
	return errors.Is(err, domain.ErrCorrelationNotFound) ||
		errors.Is(err, domain.ErrMalformedCorrelation) ||
		errors.Is(err, domain.ErrTenantNotFound) ||
		errors.Is(err, commission.ErrInvalidPercent) ||
		errors.Is(err, payment.ErrUndecodable)
}

func (r *Reconciler) markFailed(ctx context.Context, rec *domain.WebhookEvent, cause error) {
	// the request context may be the reason we failed
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := r.store.Ledger.MarkFailed(ctx, rec.ID, cause.Error()); err != nil {
		log.Printf("[reconcile] mark failed ledger=%s: %v", rec.ID, err)
	}
}

func (r *Reconciler) apply(ctx context.Context, rec *domain.WebhookEvent, ev payment.Event) (Outcome, error) {
	if ev.Kind != payment.KindSucceeded && ev.Kind != payment.KindFailed {
		log.Printf("[reconcile] ignoring event=%s type=%s", ev.ID, ev.Type)
		return OutcomeNoop, r.store.Ledger.MarkProcessed(ctx, rec.ID, r.now())
	}
	corr, err := r.correlate(ctx, ev)
	if err != nil {
		return "", fmt.Errorf("event %s: %w", ev.ID, err)
	}
	if ev.Kind == payment.KindSucceeded {
		return r.confirm(ctx, rec, ev, corr)
	}
	return r.fail(ctx, rec, ev, corr)
}

// correlate reads the correlation from the event metadata, or from the
// booking the checkout session was attached to when the provider carries none.
func (r *Reconciler) correlate(ctx context.Context, ev payment.Event) (domain.Correlation, error) {
	if len(ev.Metadata) > 0 || ev.SessionID == "" {
		return domain.ParseCorrelation(ev.Metadata)
	}
	b, err := r.store.Bookings.BySession(ctx, r.gw.Provider(), ev.SessionID)
	if errors.Is(err, domain.ErrBookingNotFound) {
		return domain.Correlation{}, fmt.Errorf("%w: no booking for %s session %s",
			domain.ErrCorrelationNotFound, r.gw.Provider(), ev.SessionID)
	}
	if err != nil {
		return domain.Correlation{}, err
	}
	return domain.CorrelationFor(b), nil
}

func (r *Reconciler) confirm(ctx context.Context, rec *domain.WebhookEvent, ev payment.Event, corr domain.Correlation) (Outcome, error) {
	out := OutcomeNoop
	err := r.store.Transaction(ctx, func(tx *repository.Store) error {
		if err := tx.Bookings.LockSlot(ctx, corr.TenantID, corr.EventDate); err != nil {
			return err
		}
		b, err := tx.Bookings.ActiveFor(ctx, corr.TenantID, corr.EventDate)
		if errors.Is(err, domain.ErrBookingNotFound) {
			return fmt.Errorf("%w: paid event %s has no active booking for %s/%s",
				domain.ErrCorrelationNotFound, ev.ID, corr.TenantID, corr.EventDate)
		}
		if err != nil {
			return err
		}
		if corr.BookingID != "" && b.ID != corr.BookingID {
			return fmt.Errorf("%w: paid event %s names booking %s but %s/%s is held by %s",
				domain.ErrCorrelationNotFound, ev.ID, corr.BookingID, corr.TenantID, corr.EventDate, b.ID)
		}

		now := r.now()
		if b.Status == domain.StatusConfirmed {
			log.Printf("[reconcile] booking=%s already confirmed, event=%s is a replay", b.ID, ev.ID)
			return tx.Ledger.MarkProcessed(ctx, rec.ID, now)
		}

		profile, err := tx.Tenants.CommissionProfile(ctx, b.TenantID)
		if err != nil {
			return err
		}
		split, err := commission.Calculate(b.TotalCents, profile.Percent)
		if err != nil {
			return fmt.Errorf("commission for tenant %s: %w", b.TenantID, err)
		}
		if b.ApplicationFeeCents != 0 && b.ApplicationFeeCents != split.PlatformFeeCents {
			log.Printf("[reconcile] commission drift booking=%s requested_fee=%d recorded_fee=%d rate=%s",
				b.ID, b.ApplicationFeeCents, split.PlatformFeeCents, split.Percent)
		}
		if ev.AmountCents != 0 && ev.AmountCents != b.TotalCents {
			log.Printf("[reconcile] amount mismatch booking=%s total=%d paid=%d", b.ID, b.TotalCents, ev.AmountCents)
		}

		if _, err := b.Transition(domain.StatusConfirmed, now); err != nil {
			return err
		}
		b.CommissionPercent = decimal.NewNullDecimal(split.Percent)
		b.PlatformFeeCents = split.PlatformFeeCents
		b.TenantPayoutCents = split.TenantPayoutCents
		if b.CheckoutSessionID == "" {
			b.CheckoutSessionID = ev.SessionID
		}
		if err := tx.Bookings.Save(ctx, b); err != nil {
			return err
		}
		if err := tx.Outbox.Enqueue(ctx, domain.RKBookingConfirmed, domain.NewBookingConfirmed(b)); err != nil {
			return err
		}
		out = OutcomeConfirmed
		log.Printf("[reconcile] confirmed booking=%s event=%s fee=%d payout=%d", b.ID, ev.ID, b.PlatformFeeCents, b.TenantPayoutCents)
		return tx.Ledger.MarkProcessed(ctx, rec.ID, now)
	})
	if err != nil {
		return "", err
	}
	return out, nil
}

func (r *Reconciler) fail(ctx context.Context, rec *domain.WebhookEvent, ev payment.Event, corr domain.Correlation) (Outcome, error) {
	out := OutcomeNoop
	err := r.store.Transaction(ctx, func(tx *repository.Store) error {
		if err := tx.Bookings.LockSlot(ctx, corr.TenantID, corr.EventDate); err != nil {
			return err
		}
		now := r.now()
		b, err := tx.Bookings.ActiveFor(ctx, corr.TenantID, corr.EventDate)
		switch {
		case errors.Is(err, domain.ErrBookingNotFound):
			log.Printf("[reconcile] failure event=%s: no active booking for %s/%s", ev.ID, corr.TenantID, corr.EventDate)
		case err != nil:
			return err
		case corr.BookingID != "" && b.ID != corr.BookingID:
			log.Printf("[reconcile] stale failure event=%s for booking=%s, slot now held by %s", ev.ID, corr.BookingID, b.ID)
		case b.Status != domain.StatusPending:
			log.Printf("[reconcile] stale failure event=%s, booking=%s is %s", ev.ID, b.ID, b.Status)
		default:
			reason := ev.FailureReason
			if reason == "" {
				reason = "payment_failed"
			}
			if err := releaseLocked(ctx, tx, b, reason, now); err != nil {
				return err
			}
			out = OutcomeFailed
			log.Printf("[reconcile] failed booking=%s event=%s reason=%s", b.ID, ev.ID, reason)
		}
		return tx.Ledger.MarkProcessed(ctx, rec.ID, now)
	})
	if err != nil {
		return "", err
	}
	return out, nil
}
