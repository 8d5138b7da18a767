package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"gorm.io/gorm"

	"github.com/you/wedding-booking/services/booking-service/internal/domain"
	"github.com/you/wedding-booking/services/booking-service/internal/payment"
	"github.com/you/wedding-booking/services/booking-service/internal/repository"
	"github.com/you/wedding-booking/services/booking-service/internal/testutil"
)

const validSig = "sig-ok"

// fakeGateway accepts payloads that are JSON-encoded payment.Event values
// signed with validSig. When refetch is set, the envelope carries its result
// instead of the posted bytes, as a provider that re-reads events would.
type fakeGateway struct {
	create  func(req payment.CheckoutRequest) (payment.CheckoutSession, error)
	refetch func(id string) ([]byte, error)
}

func (f *fakeGateway) Provider() string        { return "fake" }
func (f *fakeGateway) SignatureHeader() string { return "X-Fake-Signature" }

func (f *fakeGateway) CreateCheckoutSession(_ context.Context, req payment.CheckoutRequest) (payment.CheckoutSession, error) {
	if f.create == nil {
		return payment.CheckoutSession{ID: "sess_" + req.BookingID, URL: "https://pay.example.com/" + req.BookingID}, nil
	}
	return f.create(req)
}

func (f *fakeGateway) VerifyEvent(_ context.Context, payload []byte, sig string) (payment.Envelope, error) {
	if sig != validSig {
		return payment.Envelope{}, fmt.Errorf("%w: bad signature", domain.ErrSignatureInvalid)
	}
	var head struct{ ID, Type string }
	if err := json.Unmarshal(payload, &head); err != nil || head.ID == "" {
		return payment.Envelope{}, fmt.Errorf("%w: no event id", domain.ErrSignatureInvalid)
	}
	raw := payload
	if f.refetch != nil {
		var err error
		if raw, err = f.refetch(head.ID); err != nil {
			return payment.Envelope{}, err
		}
	}
	return payment.Envelope{ID: head.ID, Type: head.Type, Raw: raw}, nil
}

func (f *fakeGateway) DecodeEvent(_ context.Context, raw []byte) (payment.Event, error) {
	var ev payment.Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return payment.Event{}, fmt.Errorf("%w: %v", payment.ErrUndecodable, err)
	}
	return ev, nil
}

type harness struct {
	store *repository.Store
	db    *gorm.DB
	gw    *fakeGateway
	coord *Coordinator
	rec   *Reconciler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return harnessOn(testutil.OpenStore(t))
}

// newLockingHarness runs on postgres when testutil.PostgresDSNEnv is set.
func newLockingHarness(t *testing.T) *harness {
	t.Helper()
	return harnessOn(testutil.OpenLockingStore(t))
}

func harnessOn(store *repository.Store, gdb *gorm.DB) *harness {
	gw := &fakeGateway{}
	return &harness{
		store: store,
		db:    gdb,
		gw:    gw,
		coord: NewCoordinator(store),
		rec:   NewReconciler(store, gw),
	}
}

func (h *harness) reserve(t *testing.T, tenant, date string, total int64) *domain.Booking {
	t.Helper()
	b, err := h.coord.ReserveDate(context.Background(), Reservation{
		TenantID:      tenant,
		EventDate:     date,
		CustomerEmail: "couple@example.com",
		CustomerName:  "Ana & Ben",
		PackageID:     "pkg-gold",
		AddOnIDs:      []string{"addon-flowers"},
		TotalCents:    total,
		Currency:      "usd",
	})
	if err != nil {
		t.Fatalf("reserve %s/%s: %v", tenant, date, err)
	}
	return b
}

func (h *harness) booking(t *testing.T, id string) *domain.Booking {
	t.Helper()
	b, err := h.store.Bookings.ByID(context.Background(), id)
	if err != nil {
		t.Fatalf("load booking %s: %v", id, err)
	}
	return b
}

func (h *harness) outboxKeys(t *testing.T) []string {
	t.Helper()
	msgs, err := h.store.Outbox.Pending(context.Background())
	if err != nil {
		t.Fatalf("outbox: %v", err)
	}
	keys := make([]string, 0, len(msgs))
	for _, m := range msgs {
		keys = append(keys, m.RoutingKey)
	}
	return keys
}

// failWrites makes every create or update on table fail until the test ends
// or the returned func is called.
func (h *harness) failWrites(t *testing.T, table string) func() {
	t.Helper()
	name := "test:fail_" + table
	fail := func(tx *gorm.DB) {
		if tx.Statement.Table == table {
			tx.AddError(errors.New("simulated storage failure"))
		}
	}
	if err := h.db.Callback().Create().After("gorm:create").Register(name, fail); err != nil {
		t.Fatal(err)
	}
	if err := h.db.Callback().Update().After("gorm:update").Register(name, fail); err != nil {
		t.Fatal(err)
	}
	removed := false
	restore := func() {
		if removed {
			return
		}
		removed = true
		_ = h.db.Callback().Create().Remove(name)
		_ = h.db.Callback().Update().Remove(name)
	}
	t.Cleanup(restore)
	return restore
}

func event(t *testing.T, id, typ string, kind payment.Kind, md map[string]string) []byte {
	t.Helper()
	body, err := json.Marshal(payment.Event{ID: id, Type: typ, Kind: kind, Metadata: md})
	if err != nil {
		t.Fatal(err)
	}
	return body
}

func paidEvent(t *testing.T, id string, b *domain.Booking) []byte {
	return event(t, id, "checkout.session.completed", payment.KindSucceeded, domain.CorrelationFor(b).Metadata())
}

func failedEvent(t *testing.T, id string, b *domain.Booking) []byte {
	return event(t, id, "checkout.session.async_payment_failed", payment.KindFailed, domain.CorrelationFor(b).Metadata())
}

// sessionEvent has no metadata, only the checkout session ID.
func sessionEvent(t *testing.T, id string, kind payment.Kind, sessionID string) []byte {
	t.Helper()
	body, err := json.Marshal(payment.Event{ID: id, Type: "charge.complete", Kind: kind, SessionID: sessionID})
	if err != nil {
		t.Fatal(err)
	}
	return body
}

func countRows(t *testing.T, db *gorm.DB, model any, where string, args ...any) int64 {
	t.Helper()
	var n int64
	if err := db.Model(model).Where(where, args...).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}
