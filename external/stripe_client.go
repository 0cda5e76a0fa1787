package external

import (
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/client"
)

// NewStripeClient returns a Stripe API client bound to the given secret key
func NewStripeClient(key string) (*client.API, error) {
	if !strings.HasPrefix(key, "sk_") && !strings.HasPrefix(key, "rk_") {
		return nil, fmt.Errorf("stripe key must be a secret or restricted key")
	}
	stripe.SetAppInfo(&stripe.AppInfo{
		Name: "gembooth",
	})
	sc := &client.API{}
	sc.Init(key, nil)
	return sc, nil
}
