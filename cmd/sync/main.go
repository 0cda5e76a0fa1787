package main

import (
	"context"
	"log"
	"os"

	"github.com/zllovesuki/gembooth/external"
	"github.com/zllovesuki/gembooth/tier"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// sync ensures the tier catalog exists as Products/Prices on Stripe. Run it
// once per deploy, before starting the api.
func main() {
	var logger *zap.Logger
	var dotFile string
	var err error

	env := os.Getenv("API_ENV")
	if "production" == env {
		dotFile = ".env.production"
		logger, err = zap.NewProduction()
	} else {
		dotFile = ".env.development"
		logger, err = zap.NewDevelopment()
	}

	if err != nil {
		log.Fatalf("Cannot initialize logger: %v\n", err)
	}
	defer logger.Sync()

	if err := godotenv.Load(dotFile); err != nil {
		logger.Fatal("Cannot load configurations from .env",
			zap.Error(err),
		)
	}

	stripeClient, err := external.NewStripeClient(os.Getenv("STRIPE_KEY"))
	if err != nil {
		logger.Fatal("Cannot initialize Stripe client",
			zap.Error(err),
		)
	}

	catalog, err := tier.LoadCatalog(os.Getenv("TIERS_JSON_PATH"))
	if err != nil {
		logger.Fatal("Cannot load tier catalog",
			zap.Error(err),
		)
	}

	if err := catalog.SynchronizeStripe(context.Background(), stripeClient); err != nil {
		logger.Fatal("Cannot synchronize tier catalog with Stripe",
			zap.Error(err),
		)
	}

	for _, t := range catalog.List() {
		logger.Info("Tier synchronized",
			zap.String("TierID", t.ID),
			zap.String("ProductID", t.ProductID),
			zap.String("PriceID", t.PriceID),
		)
	}
}
