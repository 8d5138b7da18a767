// Package outbox relays booking events committed to the outbox table to the
// message broker.
package outbox

import (
	"context"
	"log"
	"time"

	"github.com/you/wedding-booking/services/booking-service/internal/repository"
)

// Publisher is satisfied by *mq.Publisher.
type Publisher interface {
	Publish(ctx context.Context, key, messageID string, body []byte) error
}

type Relay struct {
	store    *repository.Store
	pub      Publisher
	batch    int
	interval time.Duration
}

func NewRelay(store *repository.Store, pub Publisher, batch int, interval time.Duration) *Relay {
	if batch <= 0 {
		batch = 50
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Relay{store: store, pub: pub, batch: batch, interval: interval}
}

// Flush publishes one batch in creation order and returns how many messages
// went out. It stops at the first publish error so later messages are not
// delivered ahead of an earlier one; the failed message is retried next time.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	var sent int
	err := r.store.Transaction(ctx, func(tx *repository.Store) error {
		msgs, err := tx.Outbox.Claim(ctx, r.batch)
		if err != nil {
			return err
		}
		for _, m := range msgs {
			if err := r.pub.Publish(ctx, m.RoutingKey, m.ID, m.Payload); err != nil {
				log.Printf("[outbox] publish %s id=%s attempt=%d: %v", m.RoutingKey, m.ID, m.Attempts+1, err)
				return tx.Outbox.MarkAttemptFailed(ctx, m.ID, err.Error())
			}
			if err := tx.Outbox.MarkPublished(ctx, m.ID, time.Now().UTC()); err != nil {
				return err
			}
			sent++
		}
		return nil
	})
	return sent, err
}

// Run flushes on every tick until ctx is done.
func (r *Relay) Run(ctx context.Context) {
	log.Printf("[outbox] relay started interval=%s batch=%d", r.interval, r.batch)
	t := time.NewTicker(r.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Printf("[outbox] relay stopped")
			return
		case <-t.C:
			if n, err := r.Flush(ctx); err != nil {
				log.Printf("[outbox] flush: %v", err)
			} else if n > 0 {
				log.Printf("[outbox] published %d message(s)", n)
			}
		}
	}
}
