package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/you/wedding-booking/pkg/commission"
	"github.com/you/wedding-booking/services/booking-service/internal/domain"
	"github.com/you/wedding-booking/services/booking-service/internal/payment"
	"github.com/you/wedding-booking/services/booking-service/internal/repository"
)

var ErrInvalidCheckout = errors.New("invalid_checkout_request")

// CheckoutInput is priced upstream by the package catalogue.
type CheckoutInput struct {
	TenantID      string
	EventDate     string // YYYY-MM-DD or RFC3339
	CustomerEmail string
	CustomerName  string
	PackageID     string
	AddOnIDs      []string
	TotalCents    int64
}

type CheckoutResult struct {
	Booking     *domain.Booking
	SessionID   string
	CheckoutURL string
}

type CheckoutService struct {
	store    *repository.Store
	coord    *Coordinator
	gw       payment.Gateway
	currency string
	ttl      time.Duration
	now      func() time.Time
}

func NewCheckoutService(store *repository.Store, coord *Coordinator, gw payment.Gateway, currency string, ttl time.Duration) *CheckoutService {
	return &CheckoutService{
		store:    store,
		coord:    coord,
		gw:       gw,
		currency: strings.ToLower(currency),
		ttl:      ttl,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Checkout reserves the date, then opens a provider session carrying the
// reservation's correlation. If the provider refuses, the reservation is
// released before returning.
func (s *CheckoutService) Checkout(ctx context.Context, in CheckoutInput) (*CheckoutResult, error) {
	if in.TenantID == "" || in.PackageID == "" || !strings.Contains(in.CustomerEmail, "@") || in.TotalCents <= 0 {
		return nil, fmt.Errorf("%w: tenant, package, customer email and a positive total are required", ErrInvalidCheckout)
	}
	day, err := domain.ParseEventDate(in.EventDate)
	if err != nil {
		return nil, err
	}
	tenant, err := s.store.Tenants.ByID(ctx, in.TenantID)
	if err != nil {
		return nil, storageErr(err)
	}
	now := s.now()
	if err := domain.CheckLeadTime(day, tenant.MinLeadDays, now); err != nil {
		return nil, err
	}

	b, err := s.coord.ReserveDate(ctx, Reservation{
		TenantID:      tenant.ID,
		EventDate:     day,
		CustomerEmail: in.CustomerEmail,
		CustomerName:  in.CustomerName,
		PackageID:     in.PackageID,
		AddOnIDs:      in.AddOnIDs,
		TotalCents:    in.TotalCents,
		Currency:      s.currency,
	})
	if err != nil {
		return nil, err
	}

	req := payment.CheckoutRequest{
		BookingID:     b.ID,
		AmountCents:   b.TotalCents,
		Currency:      b.Currency,
		CustomerEmail: b.CustomerEmail,
		Description:   fmt.Sprintf("%s wedding booking %s (%s)", tenant.Name, b.EventDate, b.PackageID),
		Metadata:      domain.CorrelationFor(b).Metadata(),
		ExpiresAt:     now.Add(s.ttl),
	}
	if tenant.ConnectedAccountID != "" {
		// provisional; the recorded fee is recomputed at confirmation
		split, err := commission.Calculate(b.TotalCents, tenant.CommissionPercent)
		if err != nil {
			s.release(ctx, b.ID)
			return nil, fmt.Errorf("commission for tenant %s: %w", tenant.ID, err)
		}
		req.ConnectedAccountID = tenant.ConnectedAccountID
		req.ApplicationFeeCents = split.PlatformFeeCents
	}

	sess, err := s.gw.CreateCheckoutSession(ctx, req)
	if err != nil {
		log.Printf("[checkout] create session booking=%s: %v", b.ID, err)
		s.release(ctx, b.ID)
		return nil, err
	}
	// providers without metadata are matched to the booking by session ID, so
	// a session that could not be attached is never handed to the customer
	if err := s.store.Bookings.AttachCheckoutSession(ctx, b.ID, s.gw.Provider(), sess.ID, req.ApplicationFeeCents); err != nil {
		log.Printf("[checkout] attach session booking=%s session=%s: %v", b.ID, sess.ID, err)
		s.release(ctx, b.ID)
		return nil, storageErr(err)
	}
	b.Provider = s.gw.Provider()
	b.CheckoutSessionID = sess.ID
	b.ApplicationFeeCents = req.ApplicationFeeCents
	log.Printf("[checkout] booking=%s tenant=%s date=%s session=%s", b.ID, b.TenantID, b.EventDate, sess.ID)
	return &CheckoutResult{Booking: b, SessionID: sess.ID, CheckoutURL: sess.URL}, nil
}

func (s *CheckoutService) release(ctx context.Context, bookingID string) {
	// the caller's context may already be cancelled
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if _, err := s.coord.Release(ctx, bookingID, ReasonCheckoutSessionFailed); err != nil {
		log.Printf("[checkout] release booking=%s: %v; the sweeper will expire it", bookingID, err)
	}
}

// Booking returns a booking by ID.
func (s *CheckoutService) Booking(ctx context.Context, id string) (*domain.Booking, error) {
	b, err := s.store.Bookings.ByID(ctx, id)
	if err != nil {
		return nil, storageErr(err)
	}
	return b, nil
}
