// Package payment adapts hosted-checkout payment providers to the booking core.
package payment

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrProvider wraps failures talking to the provider API.
	ErrProvider = errors.New("payment_provider_error")
	// ErrUndecodable marks an authenticated body that DecodeEvent cannot read.
	// Redelivering the same bytes cannot fix it.
	ErrUndecodable = errors.New("undecodable_event")
)

// Kind is the provider-neutral meaning of a webhook event.
type Kind string

const (
	KindSucceeded Kind = "succeeded"
	KindFailed    Kind = "failed"
	KindUnknown   Kind = "unknown"
)

// Envelope is an authenticated notification before decoding. Raw is the
// canonical body: the ledger stores it and replays decode it.
type Envelope struct {
	ID   string
	Type string
	Raw  []byte
}

// Event is a decoded provider notification. Metadata is the correlation
// attached at checkout; providers that cannot carry metadata leave it empty
// and the booking is found by SessionID.
type Event struct {
	ID            string
	Type          string
	Kind          Kind
	SessionID     string
	Metadata      map[string]string
	AmountCents   int64
	Currency      string
	FailureReason string
}

type CheckoutRequest struct {
	BookingID     string
	AmountCents   int64
	Currency      string
	CustomerEmail string
	Description   string
	Metadata      map[string]string
	// ConnectedAccountID routes funds to the tenant with ApplicationFeeCents
	// kept by the platform. Empty means a direct charge.
	ConnectedAccountID  string
	ApplicationFeeCents int64
	ExpiresAt           time.Time
}

type CheckoutSession struct {
	ID  string
	URL string
}

type Gateway interface {
	Provider() string
	// SignatureHeader names the HTTP header VerifyEvent expects. Empty means
	// the provider does not sign deliveries.
	SignatureHeader() string
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (CheckoutSession, error)
	// VerifyEvent authenticates payload without interpreting its data. Any
	// authenticity failure is domain.ErrSignatureInvalid; ErrProvider means
	// the provider could not be asked and the delivery should be retried.
	VerifyEvent(ctx context.Context, payload []byte, signature string) (Envelope, error)
	// DecodeEvent decodes an Envelope.Raw. Failures wrap ErrUndecodable.
	DecodeEvent(ctx context.Context, raw []byte) (Event, error)
}
