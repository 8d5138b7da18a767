package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/omise/omise-go"
	"github.com/omise/omise-go/operations"

	"github.com/you/wedding-booking/services/booking-service/internal/domain"
)

const ProviderOmise = "omise"

type OmiseConfig struct {
	PublicKey  string
	SecretKey  string
	SourceType string // e.g. internet_banking_scb, promptpay
	ReturnURI  string
}

// OmiseGateway charges through an offsite source; the charge's authorize URI
// is the checkout page. Omise does not sign webhooks, so an event is trusted
// only after it has been fetched back from the Omise API by ID.
type OmiseGateway struct {
	cfg OmiseConfig

	retrieveEvent func(id string) (*omise.Event, error)
	createSource  func(op *operations.CreateSource) (*omise.Source, error)
	createCharge  func(op *operations.CreateCharge) (*omise.Charge, error)
}

func NewOmise(cfg OmiseConfig) (*OmiseGateway, error) {
	c, err := omise.NewClient(cfg.PublicKey, cfg.SecretKey)
	if err != nil {
		return nil, err
	}
	return &OmiseGateway{
		cfg: cfg,
		retrieveEvent: func(id string) (*omise.Event, error) {
			ev := &omise.Event{}
			return ev, c.Do(ev, &operations.RetrieveEvent{EventID: id})
		},
		createSource: func(op *operations.CreateSource) (*omise.Source, error) {
			src := &omise.Source{}
			return src, c.Do(src, op)
		},
		createCharge: func(op *operations.CreateCharge) (*omise.Charge, error) {
			ch := &omise.Charge{}
			return ch, c.Do(ch, op)
		},
	}, nil
}

func (g *OmiseGateway) Provider() string { return ProviderOmise }

// SignatureHeader is empty: Omise does not sign deliveries. See VerifyEvent.
func (g *OmiseGateway) SignatureHeader() string { return "" }

func (g *OmiseGateway) CreateCheckoutSession(_ context.Context, req CheckoutRequest) (CheckoutSession, error) {
	if req.ConnectedAccountID != "" {
		// Omise has no destination charges; the split is settled off-platform.
		return CheckoutSession{}, fmt.Errorf("%w: omise does not support connected accounts", ErrProvider)
	}
	src, err := g.createSource(&operations.CreateSource{
		Type:     g.cfg.SourceType,
		Amount:   req.AmountCents,
		Currency: req.Currency,
	})
	if err != nil {
		return CheckoutSession{}, fmt.Errorf("%w: omise create source: %v", ErrProvider, err)
	}

	// charges carry no metadata here; the webhook is matched to the booking
	// by charge ID, which checkout stores before returning the URL
	ch, err := g.createCharge(&operations.CreateCharge{
		Amount:      req.AmountCents,
		Currency:    req.Currency,
		Source:      src.ID,
		ReturnURI:   g.cfg.ReturnURI,
		Description: omiseDescription(req),
	})
	if err != nil {
		return CheckoutSession{}, fmt.Errorf("%w: omise create charge: %v", ErrProvider, err)
	}
	if ch.AuthorizeURI == "" {
		return CheckoutSession{}, fmt.Errorf("%w: omise charge %s has no authorize uri", ErrProvider, ch.ID)
	}
	return CheckoutSession{ID: ch.ID, URL: ch.AuthorizeURI}, nil
}

type omiseIncoming struct {
	ID   string          `json:"id"`
	Key  string          `json:"key"`
	Data json.RawMessage `json:"data"`
}

func omiseDescription(req CheckoutRequest) string {
	if req.BookingID == "" {
		return req.Description
	}
	return strings.TrimSpace(req.Description + " [booking " + req.BookingID + "]")
}

// VerifyEvent reads only the event ID from the posted body and re-reads the
// event from Omise. The envelope carries the API copy; the posted data is
// never stored or decoded.
func (g *OmiseGateway) VerifyEvent(_ context.Context, payload []byte, _ string) (Envelope, error) {
	var inc omiseIncoming
	if err := json.Unmarshal(payload, &inc); err != nil || inc.ID == "" {
		return Envelope{}, fmt.Errorf("%w: unreadable omise event", domain.ErrSignatureInvalid)
	}
	ev, err := g.retrieveEvent(inc.ID)
	if err != nil {
		var oe *omise.Error
		if errors.As(err, &oe) && oe.StatusCode == 404 {
			return Envelope{}, fmt.Errorf("%w: omise event %s not found", domain.ErrSignatureInvalid, inc.ID)
		}
		return Envelope{}, fmt.Errorf("%w: omise retrieve event: %v", ErrProvider, err)
	}
	if ev.ID != "" && ev.ID != inc.ID {
		return Envelope{}, fmt.Errorf("%w: omise returned event %s for %s", domain.ErrSignatureInvalid, ev.ID, inc.ID)
	}
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: encode omise event %s: %v", ErrProvider, inc.ID, err)
	}
	raw, err := json.Marshal(omiseIncoming{ID: inc.ID, Key: ev.Key, Data: data})
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: encode omise event %s: %v", ErrProvider, inc.ID, err)
	}
	return Envelope{ID: inc.ID, Type: ev.Key, Raw: raw}, nil
}

func (g *OmiseGateway) DecodeEvent(_ context.Context, raw []byte) (Event, error) {
	var inc omiseIncoming
	if err := json.Unmarshal(raw, &inc); err != nil {
		return Event{}, fmt.Errorf("%w: omise event: %v", ErrUndecodable, err)
	}
	if inc.ID == "" {
		return Event{}, fmt.Errorf("%w: omise event without id", ErrUndecodable)
	}
	return omiseEvent(inc.ID, inc.Key, inc.Data)
}

func omiseEvent(id, key string, data json.RawMessage) (Event, error) {
	out := Event{ID: id, Type: key, Kind: KindUnknown}
	if key != "charge.complete" {
		return out, nil
	}
	var ch omise.Charge
	if err := json.Unmarshal(data, &ch); err != nil {
		return Event{}, fmt.Errorf("%w: omise charge in %s: %v", ErrUndecodable, id, err)
	}
	if ch.ID == "" {
		return Event{}, fmt.Errorf("%w: omise charge in %s has no id", ErrUndecodable, id)
	}
	out.SessionID = ch.ID
	out.AmountCents = ch.Amount
	out.Currency = strings.ToLower(ch.Currency)

	switch string(ch.Status) {
	case "successful":
		out.Kind = KindSucceeded
	case "failed", "expired", "reversed":
		out.Kind = KindFailed
		if ch.FailureCode != nil {
			out.FailureReason = *ch.FailureCode
		} else {
			out.FailureReason = "charge_" + string(ch.Status)
		}
	}
	return out, nil
}
