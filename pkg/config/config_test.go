package config

import (
	"testing"
	"time"
)

func TestValidate(t *testing.T) {
	stripe := App{PaymentProvider: ProviderStripe, StripeSecretKey: "sk", StripeWebhookSecret: "wh", ReservationTTL: 30 * time.Minute}
	cases := []struct {
		name    string
		mutate  func(*App)
		wantErr bool
	}{
		{"stripe ok", func(*App) {}, false},
		{"stripe missing webhook secret", func(a *App) { a.StripeWebhookSecret = "" }, true},
		{"stripe short ttl", func(a *App) { a.ReservationTTL = 10 * time.Minute }, true},
		{"omise ok with short ttl", func(a *App) {
			*a = App{PaymentProvider: ProviderOmise, OmisePublicKey: "pk", OmiseSecretKey: "sk", ReservationTTL: 10 * time.Minute}
		}, false},
		{"omise missing keys", func(a *App) { *a = App{PaymentProvider: ProviderOmise} }, true},
		{"unknown provider", func(a *App) { a.PaymentProvider = "paypal" }, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := stripe
			tc.mutate(&c)
			if err := c.Validate(); (err != nil) != tc.wantErr {
				t.Fatalf("Validate() = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("ENV", "prod")
	t.Setenv("DATABASE_DSN", "file:test.db")
	t.Setenv("JWT_SECRET", "s")
	t.Setenv("PAYMENT_PROVIDER", ProviderOmise)
	t.Setenv("OMISE_PUBLIC_KEY", "pk")
	t.Setenv("OMISE_SECRET_KEY", "sk")
	t.Setenv("RESERVATION_TTL", "45m")

	c, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if c.HTTPAddr != ":8080" || c.Currency != "usd" || c.OutboxBatch != 50 {
		t.Fatalf("defaults not applied: %+v", c)
	}
	if got := c.StaleAfter(); got != 60*time.Minute {
		t.Fatalf("StaleAfter = %v", got)
	}
}
