package payment

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	stripe "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/you/wedding-booking/services/booking-service/internal/domain"
)

const ProviderStripe = "stripe"

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	SuccessURL    string
	CancelURL     string
	// Backends overrides the API endpoint; nil uses api.stripe.com.
	Backends *stripe.Backends
}

type StripeGateway struct {
	sc  *client.API
	cfg StripeConfig
}

func NewStripe(cfg StripeConfig) *StripeGateway {
	return &StripeGateway{sc: client.New(cfg.SecretKey, cfg.Backends), cfg: cfg}
}

func (g *StripeGateway) Provider() string        { return ProviderStripe }
func (g *StripeGateway) SignatureHeader() string { return "Stripe-Signature" }

func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(g.cfg.SuccessURL),
		CancelURL:         stripe.String(g.cfg.CancelURL),
		CustomerEmail:     stripe.String(req.CustomerEmail),
		ClientReferenceID: stripe.String(req.BookingID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(req.Currency),
				UnitAmount: stripe.Int64(req.AmountCents),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(req.Description),
				},
			},
			Quantity: stripe.Int64(1),
		}},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: req.Metadata,
		},
	}
	params.Context = ctx
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	if req.ConnectedAccountID != "" {
		params.PaymentIntentData.ApplicationFeeAmount = stripe.Int64(req.ApplicationFeeCents)
		params.PaymentIntentData.TransferData = &stripe.CheckoutSessionPaymentIntentDataTransferDataParams{
			Destination: stripe.String(req.ConnectedAccountID),
		}
	}
	if !req.ExpiresAt.IsZero() {
		params.ExpiresAt = stripe.Int64(req.ExpiresAt.Unix())
	}

	s, err := g.sc.CheckoutSessions.New(params)
	if err != nil {
		return CheckoutSession{}, fmt.Errorf("%w: stripe checkout session: %v", ErrProvider, err)
	}
	return CheckoutSession{ID: s.ID, URL: s.URL}, nil
}

// VerifyEvent checks the signature only. The signed bytes are the canonical
// body; anything wrong inside them is left for DecodeEvent.
func (g *StripeGateway) VerifyEvent(_ context.Context, payload []byte, signature string) (Envelope, error) {
	if err := webhook.ValidatePayload(payload, signature, g.cfg.WebhookSecret); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", domain.ErrSignatureInvalid, err)
	}
	var head struct {
		ID   string `json:"id"`
		Type string `json:"type"`
	}
	if err := json.Unmarshal(payload, &head); err != nil || head.ID == "" {
		sum := sha256.Sum256(payload)
		head.ID = "unparsed_" + hex.EncodeToString(sum[:12])
	}
	return Envelope{ID: head.ID, Type: head.Type, Raw: payload}, nil
}

func (g *StripeGateway) DecodeEvent(_ context.Context, raw []byte) (Event, error) {
	var ev stripe.Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return Event{}, fmt.Errorf("%w: stripe event: %v", ErrUndecodable, err)
	}
	if ev.ID == "" {
		return Event{}, fmt.Errorf("%w: stripe event without id", ErrUndecodable)
	}
	return stripeEvent(ev)
}

func stripeEvent(ev stripe.Event) (Event, error) {
	out := Event{ID: ev.ID, Type: string(ev.Type), Kind: KindUnknown}
	if ev.Data == nil {
		return out, nil
	}
	switch ev.Type {
	case stripe.EventTypeCheckoutSessionCompleted,
		stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded,
		stripe.EventTypeCheckoutSessionAsyncPaymentFailed,
		stripe.EventTypeCheckoutSessionExpired:
	default:
		return out, nil
	}

	var s stripe.CheckoutSession
	if err := json.Unmarshal(ev.Data.Raw, &s); err != nil {
		return Event{}, fmt.Errorf("%w: checkout session in %s: %v", ErrUndecodable, ev.ID, err)
	}
	out.SessionID = s.ID
	out.Metadata = s.Metadata
	out.AmountCents = s.AmountTotal
	out.Currency = string(s.Currency)

	switch ev.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		// delayed methods complete as unpaid and settle with an async event
		if s.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid {
			out.Kind = KindSucceeded
		}
	case stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		out.Kind = KindSucceeded
	case stripe.EventTypeCheckoutSessionAsyncPaymentFailed:
		out.Kind = KindFailed
		out.FailureReason = "async_payment_failed"
	case stripe.EventTypeCheckoutSessionExpired:
		out.Kind = KindFailed
		out.FailureReason = "checkout_session_expired"
	}
	return out, nil
}
