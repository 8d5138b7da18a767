package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/you/wedding-booking/services/booking-service/internal/domain"
	"github.com/you/wedding-booking/services/booking-service/internal/payment"
	"github.com/you/wedding-booking/services/booking-service/internal/testutil"
)

func newCheckout(h *harness) *CheckoutService {
	return NewCheckoutService(h.store, h.coord, h.gw, "USD", 30*time.Minute)
}

func checkoutInput(date string) CheckoutInput {
	return CheckoutInput{
		TenantID:      "tenant-A",
		EventDate:     date,
		CustomerEmail: "couple@example.com",
		CustomerName:  "Ana & Ben",
		PackageID:     "pkg-gold",
		AddOnIDs:      []string{"addon-dj", "addon-flowers"},
		TotalCents:    150000,
	}
}

func TestCheckoutConnectedAccount(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tenant := testutil.SeedTenant(t, h.store, "tenant-A", "12", 0)
	tenant.ConnectedAccountID = "acct_123"
	if err := h.store.Tenants.Upsert(ctx, tenant); err != nil {
		t.Fatal(err)
	}

	var sent payment.CheckoutRequest
	h.gw.create = func(req payment.CheckoutRequest) (payment.CheckoutSession, error) {
		sent = req
		return payment.CheckoutSession{ID: "cs_1", URL: "https://pay.example.com/cs_1"}, nil
	}

	res, err := newCheckout(h).Checkout(ctx, checkoutInput("2030-06-15T18:30:00+07:00"))
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if res.SessionID != "cs_1" || res.CheckoutURL == "" || res.Booking.Status != domain.StatusPending {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Booking.EventDate != "2030-06-15" || res.Booking.Currency != "usd" {
		t.Fatalf("unexpected booking %+v", res.Booking)
	}
	if sent.ConnectedAccountID != "acct_123" || sent.ApplicationFeeCents != 18000 || sent.AmountCents != 150000 {
		t.Fatalf("unexpected provider request %+v", sent)
	}

	corr, err := domain.ParseCorrelation(sent.Metadata)
	if err != nil {
		t.Fatalf("correlation: %v", err)
	}
	if corr.BookingID != res.Booking.ID || corr.TenantID != "tenant-A" || corr.EventDate != "2030-06-15" ||
		len(corr.AddOnIDs) != 2 || corr.CustomerEmail != "couple@example.com" {
		t.Fatalf("correlation does not round trip: %+v", corr)
	}

	stored := h.booking(t, res.Booking.ID)
	if stored.CheckoutSessionID != "cs_1" || stored.Provider != "fake" || stored.ApplicationFeeCents != 18000 {
		t.Fatalf("session not recorded: %+v", stored)
	}
}

func TestCheckoutDirectChargeHasNoFee(t *testing.T) {
	h := newHarness(t)
	testutil.SeedTenant(t, h.store, "tenant-A", "12", 0)
	var sent payment.CheckoutRequest
	h.gw.create = func(req payment.CheckoutRequest) (payment.CheckoutSession, error) {
		sent = req
		return payment.CheckoutSession{ID: "cs_2", URL: "u"}, nil
	}
	if _, err := newCheckout(h).Checkout(context.Background(), checkoutInput("2030-06-16")); err != nil {
		t.Fatal(err)
	}
	if sent.ConnectedAccountID != "" || sent.ApplicationFeeCents != 0 {
		t.Fatalf("direct charge carried connect fields: %+v", sent)
	}
}

func TestCheckoutProviderFailureReleasesDate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	testutil.SeedTenant(t, h.store, "tenant-A", "12", 0)
	h.gw.create = func(payment.CheckoutRequest) (payment.CheckoutSession, error) {
		return payment.CheckoutSession{}, fmt.Errorf("%w: timeout", payment.ErrProvider)
	}
	svc := newCheckout(h)

	_, err := svc.Checkout(ctx, checkoutInput("2030-06-17"))
	if !errors.Is(err, payment.ErrProvider) {
		t.Fatalf("expected ErrProvider, got %v", err)
	}
	if n, _ := h.store.Bookings.CountActive(ctx, "tenant-A", "2030-06-17"); n != 0 {
		t.Fatalf("reservation kept after provider failure: %d active", n)
	}
	var failed domain.Booking
	if err := h.db.Where("tenant_id = ? AND event_date = ?", "tenant-A", "2030-06-17").Take(&failed).Error; err != nil {
		t.Fatal(err)
	}
	if failed.Status != domain.StatusFailed || failed.FailureReason != ReasonCheckoutSessionFailed {
		t.Fatalf("unexpected released booking %s/%s", failed.Status, failed.FailureReason)
	}

	h.gw.create = nil
	if _, err := svc.Checkout(ctx, checkoutInput("2030-06-17")); err != nil {
		t.Fatalf("retry after provider failure: %v", err)
	}
}

func TestCheckoutPreconditions(t *testing.T) {
	h := newHarness(t)
	testutil.SeedTenant(t, h.store, "tenant-A", "12", 30)
	svc := newCheckout(h)
	now := time.Date(2030, 1, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	cases := []struct {
		name string
		mod  func(*CheckoutInput)
		want error
	}{
		{"unknown tenant", func(in *CheckoutInput) { in.TenantID = "nobody" }, domain.ErrTenantNotFound},
		{"bad date", func(in *CheckoutInput) { in.EventDate = "next june" }, domain.ErrInvalidEventDate},
		{"past date", func(in *CheckoutInput) { in.EventDate = "2029-12-31" }, domain.ErrInvalidEventDate},
		{"inside lead time", func(in *CheckoutInput) { in.EventDate = "2030-01-20" }, domain.ErrLeadTime},
		{"no email", func(in *CheckoutInput) { in.CustomerEmail = "" }, ErrInvalidCheckout},
		{"zero total", func(in *CheckoutInput) { in.TotalCents = 0 }, ErrInvalidCheckout},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := checkoutInput("2030-03-01")
			tc.mod(&in)
			if _, err := svc.Checkout(context.Background(), in); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
	if n := countRows(t, h.db, &domain.Booking{}, "1 = 1"); n != 0 {
		t.Fatalf("preconditions must not reserve, got %d bookings", n)
	}

	if _, err := svc.Checkout(context.Background(), checkoutInput("2030-03-01")); err != nil {
		t.Fatalf("valid checkout: %v", err)
	}
	if _, err := svc.Checkout(context.Background(), checkoutInput("2030-03-01")); !errors.Is(err, domain.ErrDateUnavailable) {
		t.Fatalf("expected ErrDateUnavailable, got %v", err)
	}
}

func TestCheckoutThenWebhookEndToEnd(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	testutil.SeedTenant(t, h.store, "tenant-A", "12", 0)

	res, err := newCheckout(h).Checkout(ctx, checkoutInput("2030-06-15"))
	if err != nil {
		t.Fatal(err)
	}
	payload := paidEvent(t, "evt_e2e", res.Booking)
	for i := 0; i < 2; i++ {
		if _, err := h.rec.HandleEvent(ctx, payload, validSig); err != nil {
			t.Fatalf("delivery %d: %v", i, err)
		}
	}
	got := h.booking(t, res.Booking.ID)
	if got.Status != domain.StatusConfirmed || got.PlatformFeeCents != 18000 {
		t.Fatalf("expected confirmed with fee 18000, got %s/%d", got.Status, got.PlatformFeeCents)
	}
}

func TestCheckoutFailsWhenSessionCannotBeAttached(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	testutil.SeedTenant(t, h.store, "tenant-A", "12", 0)

	var restore func()
	h.gw.create = func(req payment.CheckoutRequest) (payment.CheckoutSession, error) {
		restore = h.failWrites(t, "bookings")
		return payment.CheckoutSession{ID: "cs_lost", URL: "https://pay.example.com/cs_lost"}, nil
	}
	res, err := newCheckout(h).Checkout(ctx, checkoutInput("2030-06-15"))
	restore()
	if !errors.Is(err, domain.ErrTransientStorage) || res != nil {
		t.Fatalf("expected a storage error and no checkout URL, got %+v %v", res, err)
	}
	if _, err := h.store.Bookings.BySession(ctx, "fake", "cs_lost"); !errors.Is(err, domain.ErrBookingNotFound) {
		t.Fatalf("session must not be attached, got %v", err)
	}
}
