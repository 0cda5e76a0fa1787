package subscription

import (
	"fmt"
	"time"

	"github.com/zllovesuki/gembooth/tier"

	"github.com/stripe/stripe-go/v72"
)

//				Subscription struct helpers

// fromStripeResponse populates the Subscription from Stripe's
// representation. The tier is resolved through the catalog by the Price of
// the subscription's item.
func (s *Subscription) fromStripeResponse(sub *stripe.Subscription, catalog *tier.Catalog) error {
	if sub.Customer == nil {
		return fmt.Errorf("Inconsistent data: subscription has no Customer")
	}
	t, ok := lookupTier(sub, catalog)
	if !ok {
		return fmt.Errorf("Inconsistent data: no corresponding Tier for subscription %s", sub.ID)
	}

	*s = Subscription{
		ID:                 sub.ID,
		UserID:             sub.Customer.ID,
		TierID:             t.ID,
		Status:             statusFromStripe(sub.Status),
		CurrentPeriodStart: time.Unix(sub.CurrentPeriodStart, 0),
		CurrentPeriodEnd:   time.Unix(sub.CurrentPeriodEnd, 0),
		CancelAtPeriodEnd:  sub.CancelAtPeriodEnd,
		Managed:            true,
	}

	return nil
}

// lookupTier finds the catalog tier matching any Price on the Stripe
// subscription's items.
func lookupTier(sub *stripe.Subscription, catalog *tier.Catalog) (tier.Tier, bool) {
	if sub.Items == nil {
		return tier.Tier{}, false
	}
	for _, item := range sub.Items.Data {
		if item.Price == nil {
			continue
		}
		if t, ok := catalog.FindByPriceID(item.Price.ID); ok {
			return t, true
		}
	}
	return tier.Tier{}, false
}
