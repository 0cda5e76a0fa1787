package subscription

import (
	"time"

	"github.com/stripe/stripe-go/v72"
)

// Status is the custom type to define the billing status of a subscription
type Status string

// Defining different Statuses for a Subscription. Stripe has more; anything
// we don't track is mapped to StatusCanceled (non-active). Billing status
// affects payment, not current-period access: the entitlement gate keeps
// applying the tier on the row until the lifecycle sync resets it.
const (
	StatusActive   Status = "Active"
	StatusPastDue  Status = "PastDue"
	StatusCanceled Status = "Canceled"
)

// Subscription binds a user to a tier over time. There is at most one row
// per user. Feature code never mutates these rows; only the Stripe webhook
// sync (and the free-row bootstrap on first checkout) writes them.
type Subscription struct {
	ID                 string    `json:"id" gorm:"primaryKey"`      // Corresponds to Stripe's Subscription ID (generated locally for the free row)
	UserID             string    `json:"userId" gorm:"uniqueIndex"` // Corresponds to Stripe's Customer ID and User.ID
	TierID             string    `json:"tierId" gorm:"not null"`    // Foreign key into the tier catalog
	Status             Status    `json:"status" gorm:"not null"`    // See Status constants above
	CurrentPeriodStart time.Time `json:"currentPeriodStart"`        // Billing period window start
	CurrentPeriodEnd   time.Time `json:"currentPeriodEnd"`          // Billing period window end, invariant start < end
	CancelAtPeriodEnd  bool      `json:"cancelAtPeriodEnd"`         // Scheduled downgrade to free at CurrentPeriodEnd
	Managed            bool      `json:"managed"`                   // True if this row mirrors a Stripe subscription
}

// statusFromStripe maps Stripe's subscription status onto ours.
func statusFromStripe(s stripe.SubscriptionStatus) Status {
	switch s {
	case stripe.SubscriptionStatusActive, stripe.SubscriptionStatusTrialing:
		return StatusActive
	case stripe.SubscriptionStatusPastDue:
		return StatusPastDue
	default:
		return StatusCanceled
	}
}
