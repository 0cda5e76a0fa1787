package tier

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	extErrors "github.com/pkg/errors"
	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/client"
)

var lookupKeyRegex = regexp.MustCompile("[^a-zA-Z0-9]+")

// lookupKey generates a unique LookupKey on Stripe to identify the
// recurring Price of a paid tier.
func (t Tier) lookupKey() string {
	name := lookupKeyRegex.ReplaceAllString(t.Name, "-")
	amount := fmt.Sprintf("%f", t.PriceInCents)
	return strings.ToLower(fmt.Sprintf("%s_%s_%s_%s", name, t.Interval, t.Currency, amount))
}

// SynchronizeStripe ensures that every purchasable tier exists as a Product
// with a recurring Price on Stripe, and populates the ProductID/PriceID
// fields in the catalog. Note, if you change Tier.Name, Tier.Interval,
// Tier.Currency, or Tier.PriceInCents, a new Product and Price will be
// created on Stripe and existing subscriptions keep billing on the old one.
// Make a new Tier and mark the old one as Retired instead.
func (c *Catalog) SynchronizeStripe(ctx context.Context, s *client.API) error {
	for index, t := range c.tierArray {
		if t.PriceInCents == 0 {
			// free tier has no Stripe counterpart
			continue
		}
		if err := t.ensureExistence(ctx, s); err != nil {
			return extErrors.Wrapf(err, "Cannot ensure Tier %s existence on Stripe", t.ID)
		}
		c.tierArray[index] = t
	}
	return nil
}

// ensureExistence looks the tier's Price up on Stripe by lookup key,
// creating the Product and Price if they are missing.
func (t *Tier) ensureExistence(ctx context.Context, s *client.API) error {
	lookupParams := &stripe.PriceListParams{
		ListParams: stripe.ListParams{
			Context: ctx,
		},
		Active: stripe.Bool(true),
		LookupKeys: []*string{
			stripe.String(t.lookupKey()),
		},
	}
	pricesIter := s.Prices.List(lookupParams)
	for pricesIter.Next() {
		price := pricesIter.Price()
		t.PriceID = price.ID
		t.ProductID = price.Product.ID
	}
	if pricesIter.Err() != nil {
		return extErrors.Wrap(pricesIter.Err(), "Cannot list Prices on Stripe")
	}

	if len(t.PriceID) > 0 {
		// synchronize retired/archived status on Stripe
		if _, err := s.Products.Update(t.ProductID, &stripe.ProductParams{
			Params: stripe.Params{
				Context: ctx,
			},
			Active: stripe.Bool(!t.Retired),
		}); err != nil {
			return extErrors.Wrap(err, "Cannot synchronize Tier Retired/Product Archived status on Stripe")
		}
		return nil
	}

	return t.createOnStripe(ctx, s)
}

// createOnStripe creates the missing Product and recurring Price.
func (t *Tier) createOnStripe(ctx context.Context, s *client.API) error {
	prodParams := &stripe.ProductParams{
		Params: stripe.Params{
			Context: ctx,
			Metadata: map[string]string{
				"TierID": t.ID,
			},
		},
		Active:      stripe.Bool(true),
		Name:        stripe.String(t.Name),
		Description: stripe.String(t.Description),
	}
	stripeProduct, err := s.Products.New(prodParams)
	if err != nil {
		return extErrors.Wrap(err, "Cannot create Tier as Product on Stripe")
	}
	t.ProductID = stripeProduct.ID

	priceParams := &stripe.PriceParams{
		Params: stripe.Params{
			Context: ctx,
			Metadata: map[string]string{
				"TierID": t.ID,
			},
		},
		Active:            stripe.Bool(true),
		Nickname:          stripe.String(t.Name),
		BillingScheme:     stripe.String("per_unit"),
		Currency:          stripe.String(t.Currency),
		UnitAmountDecimal: stripe.Float64(t.PriceInCents),
		Product:           stripe.String(t.ProductID),
		LookupKey:         stripe.String(t.lookupKey()),
		Recurring: &stripe.PriceRecurringParams{
			Interval:      stripe.String(t.Interval),
			IntervalCount: stripe.Int64(1),
			UsageType:     stripe.String("licensed"),
		},
	}
	stripePrice, err := s.Prices.New(priceParams)
	if err != nil {
		return extErrors.Wrap(err, "Cannot create Tier Price on Stripe")
	}
	t.PriceID = stripePrice.ID

	return nil
}
