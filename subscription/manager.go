package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zllovesuki/gembooth/tier"
	"github.com/zllovesuki/gembooth/usage"

	"github.com/lithammer/shortuuid/v3"
	extErrors "github.com/pkg/errors"
	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/client"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ManagerOptions contains the configuration for the subscription Manager
type ManagerOptions struct {
	StripeClient *client.API
	DB           *gorm.DB
	Logger       *zap.Logger
	Catalog      *tier.Catalog
}

// Manager handles the subscription rows and their synchronization with
// Stripe. Feature code only ever reads through GetByUserID.
type Manager struct {
	ManagerOptions
}

// NewManager returns a new Manager for subscriptions
func NewManager(option ManagerOptions) (*Manager, error) {
	if option.StripeClient == nil {
		return nil, fmt.Errorf("nil StripeClient is invalid")
	}
	if option.DB == nil {
		return nil, fmt.Errorf("nil DB is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	if option.Catalog == nil {
		return nil, fmt.Errorf("nil Catalog is invalid")
	}
	if err := option.DB.AutoMigrate(&Subscription{}); err != nil {
		return nil, extErrors.Wrap(err, "Cannot initilize subscription.Manager")
	}
	return &Manager{
		ManagerOptions: option,
	}, nil
}

// GetByUserID returns the user's subscription row, or nil if the user has
// none (treated as free tier by the entitlement gate).
func (m *Manager) GetByUserID(ctx context.Context, userID string) (*Subscription, error) {
	if len(userID) == 0 {
		return nil, fmt.Errorf("UserID is required")
	}
	var sub Subscription
	result := m.DB.WithContext(ctx).Where("user_id = ?", userID).First(&sub)

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}

	if result.Error != nil {
		m.Logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot get subscription by user id")
	}

	return &sub, nil
}

// EnsureDefault creates the free/active row for a user who has none yet.
// Called on first checkout attempt.
func (m *Manager) EnsureDefault(ctx context.Context, userID string) (*Subscription, error) {
	sub, err := m.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sub != nil {
		return sub, nil
	}
	periodStart, periodEnd := usage.DefaultPeriod(time.Now())
	sub = &Subscription{
		ID:                 shortuuid.New(),
		UserID:             userID,
		TierID:             tier.FreeTierID,
		Status:             StatusActive,
		CurrentPeriodStart: periodStart,
		CurrentPeriodEnd:   periodEnd,
	}
	result := m.DB.WithContext(ctx).Create(sub)
	if result.Error != nil {
		// a concurrent checkout may have won the insert; the unique index
		// on user_id rejects ours, so re-read before giving up
		existing, readErr := m.GetByUserID(ctx, userID)
		if readErr == nil && existing != nil {
			return existing, nil
		}
		m.Logger.Error("Unable to create default subscription in database",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot create default subscription")
	}
	return sub, nil
}

// upsert replaces whatever row the user currently has (e.g. the bootstrap
// free row) with the given one. The primary key changes when a free row is
// upgraded to a Stripe-managed one, hence delete-then-create.
func (m *Manager) upsert(ctx context.Context, sub *Subscription) error {
	result := m.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ? AND id <> ?", sub.UserID, sub.ID).
			Delete(&Subscription{}).Error; err != nil {
			return err
		}
		return tx.Save(sub).Error
	})
	if result != nil {
		m.Logger.Error("Unable to upsert subscription in database",
			zap.Error(result),
		)
		return extErrors.Wrap(result, "Cannot upsert subscription")
	}
	return nil
}

// SyncFromStripe fetches the subscription from Stripe and mirrors it into
// the database. This is the single write path the webhook handlers use.
func (m *Manager) SyncFromStripe(ctx context.Context, stripeSubscriptionID string) error {
	subscriptionParams := &stripe.SubscriptionParams{
		Params: stripe.Params{
			Context: ctx,
		},
	}
	stripeSub, err := m.StripeClient.Subscriptions.Get(stripeSubscriptionID, subscriptionParams)
	if err != nil {
		return extErrors.Wrap(err, "Unable to fetch from Stripe to synchronize status")
	}
	return m.ApplyStripeSubscription(ctx, stripeSub)
}

// ApplyStripeSubscription mirrors an already fetched/decoded Stripe
// subscription into the database.
func (m *Manager) ApplyStripeSubscription(ctx context.Context, stripeSub *stripe.Subscription) error {
	var sub Subscription
	if err := sub.fromStripeResponse(stripeSub, m.Catalog); err != nil {
		return err
	}
	return m.upsert(ctx, &sub)
}

// MarkPastDue flags a Stripe-managed subscription after a failed invoice.
// The tier keeps applying until Stripe gives up and cancels.
func (m *Manager) MarkPastDue(ctx context.Context, stripeSubscriptionID string) error {
	result := m.DB.WithContext(ctx).Model(&Subscription{}).
		Where("id = ?", stripeSubscriptionID).
		Update("status", StatusPastDue)
	if result.Error != nil {
		return extErrors.Wrap(result.Error, "Unable to mark subscription as past due in database")
	}
	return nil
}

// ResetToFree force-resets a user to the free tier. Called by the lifecycle
// sync when Stripe reports the subscription as deleted.
func (m *Manager) ResetToFree(ctx context.Context, userID string) error {
	sub, err := m.GetByUserID(ctx, userID)
	if err != nil {
		return err
	}
	if sub == nil {
		return nil
	}
	periodStart, periodEnd := usage.DefaultPeriod(time.Now())
	replacement := &Subscription{
		ID:                 shortuuid.New(),
		UserID:             userID,
		TierID:             tier.FreeTierID,
		Status:             StatusCanceled,
		CurrentPeriodStart: periodStart,
		CurrentPeriodEnd:   periodEnd,
	}
	return m.upsert(ctx, replacement)
}

// CheckoutOption specifies which tier the user wants to purchase
type CheckoutOption struct {
	UserID     string
	Tier       tier.Tier
	SuccessURL string
	CancelURL  string
}

// Checkout creates a Stripe Checkout Session for the given tier. The
// free/active bootstrap row is ensured first, so every user who ever
// attempted checkout has a subscription row.
func (m *Manager) Checkout(ctx context.Context, opt CheckoutOption) (*stripe.CheckoutSession, error) {
	if len(opt.UserID) == 0 {
		return nil, fmt.Errorf("CheckoutOption.UserID is required")
	}
	if !opt.Tier.Purchasable() {
		return nil, fmt.Errorf("Tier %s is not purchasable", opt.Tier.ID)
	}
	if _, err := m.EnsureDefault(ctx, opt.UserID); err != nil {
		return nil, err
	}

	sessionParams := &stripe.CheckoutSessionParams{
		Params: stripe.Params{
			Context: ctx,
		},
		Customer:           stripe.String(opt.UserID),
		Mode:               stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(opt.Tier.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(opt.SuccessURL),
		CancelURL:  stripe.String(opt.CancelURL),
	}
	session, err := m.StripeClient.CheckoutSessions.New(sessionParams)
	if err != nil {
		return nil, extErrors.Wrap(err, "Unable to create checkout session on Stripe")
	}
	return session, nil
}

// CancelAtPeriodEnd schedules the user's paid subscription for downgrade to
// free at the end of the current billing period.
func (m *Manager) CancelAtPeriodEnd(ctx context.Context, userID string) error {
	sub, err := m.GetByUserID(ctx, userID)
	if err != nil {
		return err
	}
	if sub == nil || !sub.Managed {
		return fmt.Errorf("No paid subscription to cancel")
	}
	updateParams := &stripe.SubscriptionParams{
		Params: stripe.Params{
			Context: ctx,
		},
		CancelAtPeriodEnd: stripe.Bool(true),
	}
	stripeSub, err := m.StripeClient.Subscriptions.Update(sub.ID, updateParams)
	if err != nil {
		return extErrors.Wrap(err, "Unable to cancel subscription on Stripe")
	}
	if stripeSub.CancelAtPeriodEnd != true {
		return fmt.Errorf("Stripe did not mark subscription as cancel at end of period")
	}
	result := m.DB.WithContext(ctx).Model(&Subscription{}).
		Where("id = ?", sub.ID).
		Update("cancel_at_period_end", true)
	if result.Error != nil {
		return extErrors.Wrap(result.Error, "Unable to mark subscription as cancelled in database")
	}
	return nil
}
