// Package httpx exposes the booking core over HTTP.
package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/you/wedding-booking/pkg/auth"
	"github.com/you/wedding-booking/services/booking-service/internal/domain"
	"github.com/you/wedding-booking/services/booking-service/internal/service"
)

type CheckoutAPI interface {
	Checkout(ctx context.Context, in service.CheckoutInput) (*service.CheckoutResult, error)
	Booking(ctx context.Context, id string) (*domain.Booking, error)
}

type WebhookAPI interface {
	HandleEvent(ctx context.Context, payload []byte, signature string) (service.Outcome, error)
	Reprocess(ctx context.Context, ledgerID string) (service.Outcome, error)
}

type LedgerAPI interface {
	List(ctx context.Context, status domain.LedgerStatus, limit int) ([]domain.WebhookEvent, error)
}

type BookingAdminAPI interface {
	Cancel(ctx context.Context, bookingID, reason string) (bool, error)
	ExpireStale(ctx context.Context, cutoff time.Time, limit int) (int, error)
}

type Deps struct {
	Checkout        CheckoutAPI
	Webhooks        WebhookAPI
	Ledger          LedgerAPI
	Admin           BookingAdminAPI
	SignatureHeader string
	JWTSecret       []byte
	// StaleAfter is the age at which a manual sweep expires PENDING bookings.
	StaleAfter time.Duration
}

func NewRouter(d Deps) *gin.Engine {
	r := gin.Default()
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	bh := &bookingHandler{checkout: d.Checkout}
	wh := &webhookHandler{api: d.Webhooks, sigHeader: d.SignatureHeader}
	ah := &adminHandler{ledger: d.Ledger, webhooks: d.Webhooks, bookings: d.Admin, staleAfter: d.StaleAfter}

	r.POST("/webhooks/payments", wh.Receive)

	v1 := r.Group("/v1")
	{
		v1.POST("/tenants/:tenantID/checkout", bh.Checkout)
		v1.GET("/bookings/:id", bh.Get)

		admin := v1.Group("/admin")
		admin.Use(JWTAuth(d.JWTSecret), RequireRole(auth.RoleAdmin))
		admin.GET("/webhook-events", ah.ListEvents)
		admin.POST("/webhook-events/:id/replay", ah.Replay)
		admin.POST("/bookings/:id/cancel", ah.Cancel)
		admin.POST("/reservations/sweep", ah.Sweep)
	}
	return r
}
