package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/you/wedding-booking/services/booking-service/internal/domain"
	"github.com/you/wedding-booking/services/booking-service/internal/repository"
	"github.com/you/wedding-booking/services/booking-service/internal/testutil"
)

func pending(tenant, date string) *domain.Booking {
	return &domain.Booking{
		ID:            uuid.NewString(),
		TenantID:      tenant,
		EventDate:     date,
		CustomerEmail: "ana@example.com",
		PackageID:     "pkg-gold",
		TotalCents:    150000,
		Currency:      "usd",
		Status:        domain.StatusPending,
	}
}

func TestActiveSlotIndexRejectsSecondActiveBooking(t *testing.T) {
	store, _ := testutil.OpenStore(t)
	ctx := context.Background()

	first := pending("t1", "2027-06-12")
	if err := store.Bookings.Create(ctx, first); err != nil {
		t.Fatalf("create first: %v", err)
	}
	err := store.Bookings.Create(ctx, pending("t1", "2027-06-12"))
	if !errors.Is(err, domain.ErrDateUnavailable) {
		t.Fatalf("expected ErrDateUnavailable, got %v", err)
	}

	// other date and other tenant are independent
	if err := store.Bookings.Create(ctx, pending("t1", "2027-06-13")); err != nil {
		t.Fatalf("other date: %v", err)
	}
	if err := store.Bookings.Create(ctx, pending("t2", "2027-06-12")); err != nil {
		t.Fatalf("other tenant: %v", err)
	}

	// a failed booking frees the slot
	first.Status = domain.StatusFailed
	if err := store.Bookings.Save(ctx, first); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := store.Bookings.Create(ctx, pending("t1", "2027-06-12")); err != nil {
		t.Fatalf("re-reserve after failure: %v", err)
	}
}

func TestLockSlotAndActiveFor(t *testing.T) {
	store, _ := testutil.OpenStore(t)
	ctx := context.Background()

	err := store.Transaction(ctx, func(tx *repository.Store) error {
		if err := tx.Bookings.LockSlot(ctx, "t1", "2027-06-12"); err != nil {
			return err
		}
		// locking twice in one transaction is fine
		if err := tx.Bookings.LockSlot(ctx, "t1", "2027-06-12"); err != nil {
			return err
		}
		if _, err := tx.Bookings.ActiveFor(ctx, "t1", "2027-06-12"); !errors.Is(err, domain.ErrBookingNotFound) {
			t.Errorf("expected ErrBookingNotFound, got %v", err)
		}
		return tx.Bookings.Create(ctx, pending("t1", "2027-06-12"))
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}

	b, err := store.Bookings.ActiveFor(ctx, "t1", "2027-06-12")
	if err != nil {
		t.Fatalf("active for: %v", err)
	}
	if b.Status != domain.StatusPending {
		t.Fatalf("expected PENDING, got %s", b.Status)
	}
}

func TestTransactionRollsBack(t *testing.T) {
	store, _ := testutil.OpenStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.Transaction(ctx, func(tx *repository.Store) error {
		if err := tx.Bookings.Create(ctx, pending("t1", "2027-06-12")); err != nil {
			return err
		}
		if err := tx.Outbox.Enqueue(ctx, domain.RKBookingConfirmed, map[string]string{"x": "y"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	n, err := store.Bookings.CountActive(ctx, "t1", "2027-06-12")
	if err != nil || n != 0 {
		t.Fatalf("expected no bookings after rollback, got %d (%v)", n, err)
	}
	msgs, err := store.Outbox.Pending(ctx)
	if err != nil || len(msgs) != 0 {
		t.Fatalf("expected empty outbox after rollback, got %d (%v)", len(msgs), err)
	}
}

func TestStalePending(t *testing.T) {
	store, _ := testutil.OpenStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	old := pending("t1", "2027-06-12")
	old.CreatedAt = now.Add(-2 * time.Hour)
	fresh := pending("t1", "2027-06-13")
	fresh.CreatedAt = now
	for _, b := range []*domain.Booking{old, fresh} {
		if err := store.Bookings.Create(ctx, b); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	got, err := store.Bookings.StalePending(ctx, now.Add(-time.Hour), 10)
	if err != nil {
		t.Fatalf("stale: %v", err)
	}
	if len(got) != 1 || got[0].ID != old.ID {
		t.Fatalf("expected only %s, got %+v", old.ID, got)
	}
}

func TestAttachCheckoutSessionOnlyWhilePending(t *testing.T) {
	store, _ := testutil.OpenStore(t)
	ctx := context.Background()

	b := pending("t1", "2027-06-12")
	if err := store.Bookings.Create(ctx, b); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Bookings.AttachCheckoutSession(ctx, b.ID, "stripe", "cs_1", 18000); err != nil {
		t.Fatalf("attach: %v", err)
	}
	got, _ := store.Bookings.ByID(ctx, b.ID)
	if got.CheckoutSessionID != "cs_1" || got.Provider != "stripe" || got.ApplicationFeeCents != 18000 {
		t.Fatalf("session not stored: %+v", got)
	}

	got.Status = domain.StatusFailed
	if err := store.Bookings.Save(ctx, got); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Bookings.AttachCheckoutSession(ctx, b.ID, "stripe", "cs_2", 0); !errors.Is(err, domain.ErrBookingNotFound) {
		t.Fatalf("expected ErrBookingNotFound, got %v", err)
	}
}

func TestBookingBySession(t *testing.T) {
	store, _ := testutil.OpenStore(t)
	ctx := context.Background()

	b := pending("t1", "2027-06-12")
	if err := store.Bookings.Create(ctx, b); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Bookings.AttachCheckoutSession(ctx, b.ID, "omise", "chrg_1", 0); err != nil {
		t.Fatalf("attach: %v", err)
	}
	got, err := store.Bookings.BySession(ctx, "omise", "chrg_1")
	if err != nil || got.ID != b.ID {
		t.Fatalf("lookup: %+v %v", got, err)
	}
	if _, err := store.Bookings.BySession(ctx, "stripe", "chrg_1"); !errors.Is(err, domain.ErrBookingNotFound) {
		t.Fatalf("session ids are per provider, got %v", err)
	}
}

func TestLedgerRecordIsIdempotent(t *testing.T) {
	store, _ := testutil.OpenStore(t)
	ctx := context.Background()

	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed"}`)
	first, isNew, err := store.Ledger.Record(ctx, &domain.WebhookEvent{
		Provider: "stripe", ProviderEventID: "evt_1", EventType: "checkout.session.completed", Payload: payload,
	})
	if err != nil || !isNew {
		t.Fatalf("first record: isNew=%v err=%v", isNew, err)
	}
	if first.Status != domain.LedgerReceived || first.Attempts != 0 {
		t.Fatalf("unexpected initial state: %+v", first)
	}

	again, isNew, err := store.Ledger.Record(ctx, &domain.WebhookEvent{
		Provider: "stripe", ProviderEventID: "evt_1", EventType: "changed", Payload: []byte("other"),
	})
	if err != nil {
		t.Fatalf("second record: %v", err)
	}
	if isNew {
		t.Fatal("duplicate reported as new")
	}
	if again.ID != first.ID || string(again.Payload) != string(payload) || again.EventType != "checkout.session.completed" {
		t.Fatalf("existing row was altered: %+v", again)
	}

	// same event id from another provider is a different key
	_, isNew, err = store.Ledger.Record(ctx, &domain.WebhookEvent{
		Provider: "omise", ProviderEventID: "evt_1", EventType: "charge.complete", Payload: payload,
	})
	if err != nil || !isNew {
		t.Fatalf("other provider: isNew=%v err=%v", isNew, err)
	}
}

func TestLedgerProcessedIsTerminal(t *testing.T) {
	store, _ := testutil.OpenStore(t)
	ctx := context.Background()

	rec, _, err := store.Ledger.Record(ctx, &domain.WebhookEvent{
		Provider: "stripe", ProviderEventID: "evt_2", EventType: "x", Payload: []byte("{}"),
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := store.Ledger.MarkFailed(ctx, rec.ID, "db down"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	got, _ := store.Ledger.ByID(ctx, rec.ID)
	if got.Status != domain.LedgerFailed || got.LastError != "db down" || got.Attempts != 1 {
		t.Fatalf("unexpected failed row: %+v", got)
	}

	if err := store.Ledger.MarkProcessed(ctx, rec.ID, time.Now()); err != nil {
		t.Fatalf("mark processed: %v", err)
	}
	if err := store.Ledger.MarkFailed(ctx, rec.ID, "late failure"); err != nil {
		t.Fatalf("mark failed after processed: %v", err)
	}
	if err := store.Ledger.MarkProcessed(ctx, rec.ID, time.Now()); err != nil {
		t.Fatalf("mark processed twice: %v", err)
	}
	got, _ = store.Ledger.ByID(ctx, rec.ID)
	// success is not an attempt; only the one failure is counted
	if got.Status != domain.LedgerProcessed || got.ProcessedAt == nil || got.Attempts != 1 {
		t.Fatalf("processed row changed: %+v", got)
	}

	failed, err := store.Ledger.List(ctx, domain.LedgerFailed, 10)
	if err != nil || len(failed) != 0 {
		t.Fatalf("expected no failed rows, got %d (%v)", len(failed), err)
	}
	all, err := store.Ledger.List(ctx, "", 10)
	if err != nil || len(all) != 1 {
		t.Fatalf("expected one row, got %d (%v)", len(all), err)
	}
}

func TestLedgerByIDMissing(t *testing.T) {
	store, _ := testutil.OpenStore(t)
	if _, err := store.Ledger.ByID(context.Background(), "nope"); !errors.Is(err, repository.ErrLedgerNotFound) {
		t.Fatalf("expected ErrLedgerNotFound, got %v", err)
	}
}

func TestTenantCommissionProfile(t *testing.T) {
	store, _ := testutil.OpenStore(t)
	ctx := context.Background()
	testutil.SeedTenant(t, store, "t1", "12.5", 3)

	p, err := store.Tenants.CommissionProfile(ctx, "t1")
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if p.Percent.String() != "12.5" {
		t.Fatalf("expected 12.5, got %s", p.Percent)
	}
	if _, err := store.Tenants.CommissionProfile(ctx, "missing"); !errors.Is(err, domain.ErrTenantNotFound) {
		t.Fatalf("expected ErrTenantNotFound, got %v", err)
	}
}

func TestOutboxClaimAndPublish(t *testing.T) {
	store, _ := testutil.OpenStore(t)
	ctx := context.Background()

	for _, key := range []string{domain.RKBookingConfirmed, domain.RKBookingFailed} {
		if err := store.Outbox.Enqueue(ctx, key, map[string]string{"booking_id": "b1"}); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	msgs, err := store.Outbox.Claim(ctx, 10)
	if err != nil || len(msgs) != 2 {
		t.Fatalf("claim: %d %v", len(msgs), err)
	}
	if err := store.Outbox.MarkPublished(ctx, msgs[0].ID, time.Now()); err != nil {
		t.Fatalf("mark published: %v", err)
	}
	if err := store.Outbox.MarkAttemptFailed(ctx, msgs[1].ID, "broker down"); err != nil {
		t.Fatalf("mark attempt failed: %v", err)
	}
	left, err := store.Outbox.Pending(ctx)
	if err != nil || len(left) != 1 {
		t.Fatalf("expected one pending, got %d (%v)", len(left), err)
	}
	if left[0].Attempts != 1 || left[0].LastError != "broker down" {
		t.Fatalf("attempt not recorded: %+v", left[0])
	}
}
