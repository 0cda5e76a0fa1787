package subscription

import (
	"testing"
	"time"

	"github.com/zllovesuki/gembooth/tier"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v72"
)

func testCatalog(t *testing.T) *tier.Catalog {
	catalog, err := tier.NewCatalog([]tier.Tier{
		{
			ID:   "free",
			Name: "GemBooth Free",
		},
		{
			ID:           "pro",
			Name:         "GemBooth Pro",
			PriceID:      "price_pro",
			PriceInCents: 999,
		},
	})
	require.NoError(t, err)
	return catalog
}

func stripeSubscriptionFixture(priceID string) *stripe.Subscription {
	return &stripe.Subscription{
		ID:                 "sub_1",
		Status:             stripe.SubscriptionStatusActive,
		CancelAtPeriodEnd:  false,
		CurrentPeriodStart: time.Date(2021, time.March, 1, 0, 0, 0, 0, time.UTC).Unix(),
		CurrentPeriodEnd:   time.Date(2021, time.April, 1, 0, 0, 0, 0, time.UTC).Unix(),
		Customer: &stripe.Customer{
			ID: "cus_1",
		},
		Items: &stripe.SubscriptionItemList{
			Data: []*stripe.SubscriptionItem{
				{
					Price: &stripe.Price{
						ID: priceID,
					},
				},
			},
		},
	}
}

func TestFromStripeResponse(t *testing.T) {
	var sub Subscription
	require.NoError(t, sub.fromStripeResponse(stripeSubscriptionFixture("price_pro"), testCatalog(t)))

	assert.Equal(t, "sub_1", sub.ID)
	assert.Equal(t, "cus_1", sub.UserID)
	assert.Equal(t, "pro", sub.TierID)
	assert.Equal(t, StatusActive, sub.Status)
	assert.True(t, sub.CurrentPeriodStart.Before(sub.CurrentPeriodEnd))
	assert.True(t, sub.Managed)
}

func TestFromStripeResponseUnknownPrice(t *testing.T) {
	var sub Subscription
	assert.Error(t, sub.fromStripeResponse(stripeSubscriptionFixture("price_unknown"), testCatalog(t)))
}

func TestFromStripeResponseMissingCustomer(t *testing.T) {
	fixture := stripeSubscriptionFixture("price_pro")
	fixture.Customer = nil
	var sub Subscription
	assert.Error(t, sub.fromStripeResponse(fixture, testCatalog(t)))
}

func TestStatusFromStripe(t *testing.T) {
	cases := []struct {
		stripeStatus stripe.SubscriptionStatus
		expected     Status
	}{
		{stripe.SubscriptionStatusActive, StatusActive},
		{stripe.SubscriptionStatusTrialing, StatusActive},
		{stripe.SubscriptionStatusPastDue, StatusPastDue},
		{stripe.SubscriptionStatusCanceled, StatusCanceled},
		{stripe.SubscriptionStatusIncomplete, StatusCanceled},
		{stripe.SubscriptionStatusUnpaid, StatusCanceled},
	}
	for _, c := range cases {
		assert.Equal(t, c.expected, statusFromStripe(c.stripeStatus), "status=%s", c.stripeStatus)
	}
}
