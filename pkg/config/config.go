package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	ProviderStripe = "stripe"
	ProviderOmise  = "omise"
)

type App struct {
	// DB
	DatabaseDSN string `envconfig:"DATABASE_DSN" required:"true"`
	// Network
	HTTPAddr        string `envconfig:"BOOKING_HTTP_ADDR" default:":8080"`
	BookingGRPCAddr string `envconfig:"BOOKING_GRPC_ADDR" default:":50053"`
	// RabbitMQ; empty disables the outbox relay (rows stay queued)
	RabbitURL       string `envconfig:"RABBIT_URL"`
	BookingExchange string `envconfig:"BOOKING_EXCHANGE" default:"booking.exchange"`
	// JWT for /v1/admin
	JWTSecret string `envconfig:"JWT_SECRET" required:"true"`

	// Payment provider
	PaymentProvider     string `envconfig:"PAYMENT_PROVIDER" default:"stripe"`
	Currency            string `envconfig:"PAYMENT_CURRENCY" default:"usd"`
	StripeSecretKey     string `envconfig:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `envconfig:"STRIPE_WEBHOOK_SECRET"`
	CheckoutSuccessURL  string `envconfig:"CHECKOUT_SUCCESS_URL" default:"http://localhost:3000/booking/success?session_id={CHECKOUT_SESSION_ID}"`
	CheckoutCancelURL   string `envconfig:"CHECKOUT_CANCEL_URL" default:"http://localhost:3000/booking/cancelled"`
	OmisePublicKey      string `envconfig:"OMISE_PUBLIC_KEY"`
	OmiseSecretKey      string `envconfig:"OMISE_SECRET_KEY"`
	OmiseSourceType     string `envconfig:"OMISE_SOURCE_TYPE" default:"internet_banking_scb"`
	OmiseReturnURI      string `envconfig:"OMISE_RETURN_URI" default:"http://localhost:3000/booking/return"`

	// Reservation hold / background loops
	ReservationTTL time.Duration `envconfig:"RESERVATION_TTL" default:"30m"`
	SweepGrace     time.Duration `envconfig:"SWEEP_GRACE" default:"15m"`
	SweepInterval  time.Duration `envconfig:"SWEEP_INTERVAL" default:"0"`
	OutboxInterval time.Duration `envconfig:"OUTBOX_INTERVAL" default:"2s"`
	OutboxBatch    int           `envconfig:"OUTBOX_BATCH" default:"50"`

	// Tracing; empty endpoint disables the exporter
	OTELEndpoint string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	Env          string `envconfig:"ENV" default:"dev"`
}

// Load reads an optional .env file, then the process environment.
func Load() (App, error) {
	if os.Getenv("ENV") != "prod" {
		if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
			log.Printf("[config] .env not loaded: %v", err)
		}
	}
	var c App
	if err := envconfig.Process("", &c); err != nil {
		return c, err
	}
	return c, c.Validate()
}

func (c App) Validate() error {
	switch c.PaymentProvider {
	case ProviderStripe:
		if c.StripeSecretKey == "" || c.StripeWebhookSecret == "" {
			return fmt.Errorf("config: STRIPE_SECRET_KEY and STRIPE_WEBHOOK_SECRET are required for provider %q", c.PaymentProvider)
		}
	case ProviderOmise:
		if c.OmisePublicKey == "" || c.OmiseSecretKey == "" {
			return fmt.Errorf("config: OMISE_PUBLIC_KEY and OMISE_SECRET_KEY are required for provider %q", c.PaymentProvider)
		}
	default:
		return fmt.Errorf("config: unknown PAYMENT_PROVIDER %q", c.PaymentProvider)
	}
	// Stripe rejects checkout expiry under 30 minutes.
	if c.PaymentProvider == ProviderStripe && c.ReservationTTL < 30*time.Minute {
		return fmt.Errorf("config: RESERVATION_TTL must be at least 30m for stripe, got %s", c.ReservationTTL)
	}
	return nil
}

// StaleAfter is how old a PENDING reservation must be before the sweeper frees it.
func (c App) StaleAfter() time.Duration {
	return c.ReservationTTL + c.SweepGrace
}
