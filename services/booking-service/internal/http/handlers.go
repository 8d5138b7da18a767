package httpx

import (
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/you/wedding-booking/services/booking-service/internal/domain"
	"github.com/you/wedding-booking/services/booking-service/internal/payment"
	"github.com/you/wedding-booking/services/booking-service/internal/repository"
	"github.com/you/wedding-booking/services/booking-service/internal/service"
)

const maxWebhookBody = 1 << 20

type bookingView struct {
	ID                string     `json:"id"`
	TenantID          string     `json:"tenant_id"`
	EventDate         string     `json:"event_date"`
	CustomerEmail     string     `json:"customer_email"`
	CustomerName      string     `json:"customer_name,omitempty"`
	PackageID         string     `json:"package_id"`
	AddOnIDs          []string   `json:"add_on_ids"`
	TotalCents        int64      `json:"total_cents"`
	Currency          string     `json:"currency"`
	Status            string     `json:"status"`
	CheckoutSessionID string     `json:"checkout_session_id,omitempty"`
	CommissionPercent string     `json:"commission_percent,omitempty"`
	PlatformFeeCents  int64      `json:"platform_fee_cents"`
	TenantPayoutCents int64      `json:"tenant_payout_cents"`
	FailureReason     string     `json:"failure_reason,omitempty"`
	ConfirmedAt       *time.Time `json:"confirmed_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

func toBookingView(b *domain.Booking) bookingView {
	v := bookingView{
		ID:                b.ID,
		TenantID:          b.TenantID,
		EventDate:         b.EventDate,
		CustomerEmail:     b.CustomerEmail,
		CustomerName:      b.CustomerName,
		PackageID:         b.PackageID,
		AddOnIDs:          b.AddOnIDs,
		TotalCents:        b.TotalCents,
		Currency:          b.Currency,
		Status:            string(b.Status),
		CheckoutSessionID: b.CheckoutSessionID,
		PlatformFeeCents:  b.PlatformFeeCents,
		TenantPayoutCents: b.TenantPayoutCents,
		FailureReason:     b.FailureReason,
		ConfirmedAt:       b.ConfirmedAt,
		CreatedAt:         b.CreatedAt,
	}
	if b.CommissionPercent.Valid {
		v.CommissionPercent = b.CommissionPercent.Decimal.String()
	}
	return v
}

type bookingHandler struct {
	checkout CheckoutAPI
}

// POST /v1/tenants/:tenantID/checkout
func (h *bookingHandler) Checkout(c *gin.Context) {
	var in struct {
		EventDate     string   `json:"event_date" binding:"required"`
		CustomerEmail string   `json:"customer_email" binding:"required,email"`
		CustomerName  string   `json:"customer_name"`
		PackageID     string   `json:"package_id" binding:"required"`
		AddOnIDs      []string `json:"add_on_ids"`
		TotalCents    int64    `json:"total_cents" binding:"required,gt=0"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.checkout.Checkout(c.Request.Context(), service.CheckoutInput{
		TenantID:      c.Param("tenantID"),
		EventDate:     in.EventDate,
		CustomerEmail: in.CustomerEmail,
		CustomerName:  in.CustomerName,
		PackageID:     in.PackageID,
		AddOnIDs:      in.AddOnIDs,
		TotalCents:    in.TotalCents,
	})
	if err != nil {
		c.JSON(checkoutStatus(err), gin.H{"error": publicError(err)})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"booking_id":   res.Booking.ID,
		"session_id":   res.SessionID,
		"checkout_url": res.CheckoutURL,
		"status":       res.Booking.Status,
	})
}

func checkoutStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrDateUnavailable):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidEventDate), errors.Is(err, domain.ErrLeadTime), errors.Is(err, service.ErrInvalidCheckout):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrTenantNotFound):
		return http.StatusNotFound
	case errors.Is(err, payment.ErrProvider):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// publicError hides storage detail from callers.
func publicError(err error) string {
	if errors.Is(err, domain.ErrTransientStorage) {
		return domain.ErrTransientStorage.Error()
	}
	return err.Error()
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// GET /v1/bookings/:id
func (h *bookingHandler) Get(c *gin.Context) {
	b, err := h.checkout.Booking(c.Request.Context(), c.Param("id"))
	if errors.Is(err, domain.ErrBookingNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": publicError(err)})
		return
	}
	c.JSON(http.StatusOK, toBookingView(b))
}

type webhookHandler struct {
	api       WebhookAPI
	sigHeader string
}

// POST /webhooks/payments
//
// 400 is returned only for unverifiable payloads. 500 asks the provider to
// redeliver. Everything else, dead letters included, is acknowledged.
func (h *webhookHandler) Receive(c *gin.Context) {
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "payload too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}
	var sig string
	if h.sigHeader != "" {
		sig = c.GetHeader(h.sigHeader)
	}
	out, err := h.api.HandleEvent(c.Request.Context(), payload, sig)
	switch {
	case errors.Is(err, domain.ErrSignatureInvalid):
		c.JSON(http.StatusBadRequest, gin.H{"error": domain.ErrSignatureInvalid.Error()})
	case out == service.OutcomeDeadLettered:
		c.JSON(http.StatusOK, gin.H{"outcome": out, "error": errText(err)})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": publicError(err)})
	default:
		c.JSON(http.StatusOK, gin.H{"outcome": out})
	}
}

type adminHandler struct {
	ledger     LedgerAPI
	webhooks   WebhookAPI
	bookings   BookingAdminAPI
	staleAfter time.Duration
}

type ledgerView struct {
	ID              string     `json:"id"`
	Provider        string     `json:"provider"`
	ProviderEventID string     `json:"provider_event_id"`
	EventType       string     `json:"event_type"`
	Status          string     `json:"status"`
	Attempts        int        `json:"attempts"`
	LastError       string     `json:"last_error,omitempty"`
	ProcessedAt     *time.Time `json:"processed_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// GET /v1/admin/webhook-events?status=failed&limit=50
func (h *adminHandler) ListEvents(c *gin.Context) {
	status := domain.LedgerStatus(c.DefaultQuery("status", string(domain.LedgerFailed)))
	switch status {
	case domain.LedgerReceived, domain.LedgerProcessed, domain.LedgerFailed, "all":
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "status must be received, processed, failed or all"})
		return
	}
	if status == "all" {
		status = ""
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	events, err := h.ledger.List(c.Request.Context(), status, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	out := make([]ledgerView, 0, len(events))
	for _, e := range events {
		out = append(out, ledgerView{
			ID:              e.ID,
			Provider:        e.Provider,
			ProviderEventID: e.ProviderEventID,
			EventType:       e.EventType,
			Status:          string(e.Status),
			Attempts:        e.Attempts,
			LastError:       e.LastError,
			ProcessedAt:     e.ProcessedAt,
			CreatedAt:       e.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"events": out})
}

// POST /v1/admin/webhook-events/:id/replay
func (h *adminHandler) Replay(c *gin.Context) {
	id := c.Param("id")
	out, err := h.webhooks.Reprocess(c.Request.Context(), id)
	log.Printf("[admin] replay ledger=%s by=%s outcome=%s err=%v", id, c.GetString("sub"), out, err)
	switch {
	case errors.Is(err, repository.ErrLedgerNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrProviderMismatch):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case out == service.OutcomeDeadLettered:
		c.JSON(http.StatusOK, gin.H{"outcome": out, "error": errText(err)})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": publicError(err)})
	default:
		c.JSON(http.StatusOK, gin.H{"outcome": out})
	}
}

// POST /v1/admin/bookings/:id/cancel
func (h *adminHandler) Cancel(c *gin.Context) {
	var in struct {
		Reason string `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id := c.Param("id")
	changed, err := h.bookings.Cancel(c.Request.Context(), id, in.Reason)
	switch {
	case errors.Is(err, domain.ErrBookingNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": "only confirmed bookings can be cancelled"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": publicError(err)})
	default:
		log.Printf("[admin] cancel booking=%s by=%s changed=%v", id, c.GetString("sub"), changed)
		c.JSON(http.StatusOK, gin.H{"booking_id": id, "changed": changed})
	}
}

// POST /v1/admin/reservations/sweep
func (h *adminHandler) Sweep(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	n, err := h.bookings.ExpireStale(c.Request.Context(), time.Now().UTC().Add(-h.staleAfter), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"released": n, "error": publicError(err)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"released": n})
}
