package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/you/wedding-booking/services/notification-service/internal/events"
	"github.com/you/wedding-booking/services/notification-service/internal/notifier"
)

// Source yields deliveries from a bound queue; *mq.Consumer satisfies it.
type Source interface {
	Deliveries(ctx context.Context) (<-chan amqp.Delivery, error)
}

type Worker struct {
	src      Source
	notifier notifier.Notifier
	journal  Journal
}

func New(src Source, n notifier.Notifier) *Worker {
	return &Worker{src: src, notifier: n, journal: NewMemoryJournal(0)}
}

// WithJournal replaces the default in-memory journal.
func (w *Worker) WithJournal(j Journal) *Worker {
	w.journal = j
	return w
}

// Run acks handled deliveries, dead-letters malformed ones and requeues the
// rest. It returns when ctx is done or the channel closes.
func (w *Worker) Run(ctx context.Context) error {
	msgs, err := w.src.Deliveries(ctx)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return nil
			}
			err := w.handle(ctx, d.MessageId, d.RoutingKey, d.Body)
			switch {
			case err == nil:
				_ = d.Ack(false)
			case errors.Is(err, events.ErrMalformed):
				log.Printf("[notify] dead-letter key=%s id=%s err=%v", d.RoutingKey, d.MessageId, err)
				_ = d.Nack(false, false)
			default:
				log.Printf("[notify] handle error key=%s id=%s err=%v -> requeue", d.RoutingKey, d.MessageId, err)
				_ = d.Nack(false, true)
			}
		}
	}
}

// send notifies to once per message ID. Messages without an ID are always sent.
func (w *Worker) send(ctx context.Context, msgID, to, subject, message string) error {
	if msgID != "" && w.journal.Sent(msgID, to) {
		log.Printf("[notify] skip id=%s to=%s: already sent", msgID, to)
		return nil
	}
	if err := w.notifier.Notify(ctx, to, subject, message); err != nil {
		return err
	}
	if msgID != "" {
		w.journal.MarkSent(msgID, to)
	}
	return nil
}

func (w *Worker) handle(ctx context.Context, msgID, key string, body []byte) error {
	switch key {
	case events.RKBookingConfirmed:
		ev, err := events.Decode[events.BookingConfirmed](body)
		if err != nil {
			return err
		}
		msg := fmt.Sprintf("Your wedding on %s is booked (booking %s, package %s", ev.EventDate, ev.BookingID, ev.PackageID)
		if len(ev.AddOnIDs) > 0 {
			msg += " + " + strings.Join(ev.AddOnIDs, ", ")
		}
		msg += "). Paid " + events.Money(ev.TotalCents, ev.Currency) + "."
		if err := w.send(ctx, msgID, ev.CustomerEmail, "Booking confirmed", msg); err != nil {
			return err
		}
		payout := fmt.Sprintf("Booking %s for %s confirmed. Payout %s after %s%% platform fee (%s).",
			ev.BookingID, ev.EventDate,
			events.Money(ev.TenantPayoutCents, ev.Currency),
			ev.CommissionPercent,
			events.Money(ev.PlatformFeeCents, ev.Currency))
		return w.send(ctx, msgID, "tenant:"+ev.TenantID, "New booking", payout)

	case events.RKBookingFailed:
		ev, err := events.Decode[events.BookingReleased](body)
		if err != nil {
			return err
		}
		return w.send(ctx, msgID, ev.CustomerEmail, "Payment not completed",
			fmt.Sprintf("We could not complete payment for %s (booking %s). The date has been released. Reason: %s", ev.EventDate, ev.BookingID, ev.Reason))

	case events.RKBookingCancelled:
		ev, err := events.Decode[events.BookingReleased](body)
		if err != nil {
			return err
		}
		msg := fmt.Sprintf("Booking %s for %s has been cancelled.", ev.BookingID, ev.EventDate)
		if ev.Reason != "" {
			msg += " Reason: " + ev.Reason
		}
		if err := w.send(ctx, msgID, ev.CustomerEmail, "Booking cancelled", msg); err != nil {
			return err
		}
		return w.send(ctx, msgID, "tenant:"+ev.TenantID, "Booking cancelled", msg)

	default:
		log.Printf("[notify] skip unknown key=%s", key)
	}
	return nil
}
