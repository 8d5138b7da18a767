package payment

import (
	"fmt"

	"github.com/you/wedding-booking/pkg/config"
)

// FromConfig builds the gateway named by PAYMENT_PROVIDER.
func FromConfig(c config.App) (Gateway, error) {
	switch c.PaymentProvider {
	case ProviderStripe:
		return NewStripe(StripeConfig{
			SecretKey:     c.StripeSecretKey,
			WebhookSecret: c.StripeWebhookSecret,
			SuccessURL:    c.CheckoutSuccessURL,
			CancelURL:     c.CheckoutCancelURL,
		}), nil
	case ProviderOmise:
		return NewOmise(OmiseConfig{
			PublicKey:  c.OmisePublicKey,
			SecretKey:  c.OmiseSecretKey,
			SourceType: c.OmiseSourceType,
			ReturnURI:  c.OmiseReturnURI,
		})
	default:
		return nil, fmt.Errorf("payment: unknown provider %q", c.PaymentProvider)
	}
}
