package entitlement

import (
	"context"
	"fmt"
	"time"

	"github.com/zllovesuki/gembooth/subscription"
	"github.com/zllovesuki/gembooth/tier"
	"github.com/zllovesuki/gembooth/usage"

	"go.uber.org/zap"
)

// SubscriptionSource provides the current tier/period state written by the
// Stripe lifecycle sync. The gate only ever reads it.
type SubscriptionSource interface {
	GetByUserID(ctx context.Context, userID string) (*subscription.Subscription, error)
}

// UsageSource provides the per-period counters and the post-action
// increment.
type UsageSource interface {
	GetCurrent(ctx context.Context, userID string, ref time.Time) (*usage.Record, error)
	Increment(ctx context.Context, opt usage.IncrementOption) error
}

// Result is the outcome of a gate check. Limit of -1 means unlimited.
// Message is only set on denial and is user-facing copy, never a technical
// error.
type Result struct {
	Allowed bool   `json:"allowed"`
	Limit   int64  `json:"limit"`
	Used    int64  `json:"used"`
	Message string `json:"message,omitempty"`
}

// GateOptions contains the configuration for the entitlement Gate
type GateOptions struct {
	Catalog       *tier.Catalog
	Subscriptions SubscriptionSource
	Usage         UsageSource
	Logger        *zap.Logger

	// StrictMode flips the error policy from fail-open (grant access when a
	// lookup fails, favoring availability) to fail-closed. Fail-open is the
	// product default.
	StrictMode bool
}

// Gate decides allow/deny for a feature action by comparing the user's
// current-period usage against the allowance of their tier. It is
// stateless and side-effect free except through Consume.
type Gate struct {
	GateOptions
}

// NewGate will create an entitlement Gate
func NewGate(option GateOptions) (*Gate, error) {
	if option.Catalog == nil {
		return nil, fmt.Errorf("nil Catalog is invalid")
	}
	if option.Subscriptions == nil {
		return nil, fmt.Errorf("nil Subscriptions is invalid")
	}
	if option.Usage == nil {
		return nil, fmt.Errorf("nil Usage is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	return &Gate{
		GateOptions: option,
	}, nil
}

// Check reports if the user may perform the action right now. Call it
// before the action; call Consume after the action succeeded. The two are
// deliberately not transactional: concurrent requests can race past the
// last slot and overshoot the cap by the number of racers. Limits here are
// soft.
func (g *Gate) Check(ctx context.Context, userID string, action usage.Action) Result {
	logger := g.Logger.With(
		zap.String("UserID", userID),
		zap.String("Action", string(action)),
	)

	if !usage.Known(action) {
		// caller bug: deny with zero allowance, never crash and never
		// grant unlimited
		logger.Error("Entitlement check for unrecognized action")
		return Result{
			Allowed: false,
			Limit:   0,
			Used:    0,
			Message: "This feature isn't available right now.",
		}
	}

	now := time.Now()

	sub, err := g.Subscriptions.GetByUserID(ctx, userID)
	if err != nil {
		logger.Error("Unable to resolve subscription for entitlement check",
			zap.Error(err),
		)
		return g.lookupFailure(action)
	}

	// No row means free tier. A non-active status does not deny by itself:
	// the tier on the row applies until the lifecycle sync resets it.
	tierID := tier.FreeTierID
	if sub != nil {
		tierID = sub.TierID
	}

	t, ok := g.Catalog.Get(tierID)
	if !ok {
		// tier id set but not in the catalog: lookup failure policy, so a
		// stale catalog never false-denies a paying user
		logger.Error("Unable to resolve tier for entitlement check",
			zap.String("TierID", tierID),
		)
		return g.lookupFailure(action)
	}

	limit := t.Allowance(string(action))

	record, err := g.Usage.GetCurrent(ctx, userID, now)
	if err != nil {
		logger.Error("Unable to resolve usage record for entitlement check",
			zap.Error(err),
		)
		return g.lookupFailure(action)
	}
	used := record.Used(action)

	if limit == tier.UnlimitedAllowance {
		return Result{
			Allowed: true,
			Limit:   limit,
			Used:    used,
		}
	}

	if used < limit {
		return Result{
			Allowed: true,
			Limit:   limit,
			Used:    used,
		}
	}

	return Result{
		Allowed: false,
		Limit:   limit,
		Used:    used,
		Message: denialMessage(action, t, limit),
	}
}

// Consume records one successful gated action against the user's
// current-period counters. Call it exactly once, only after the action
// succeeded. A failed increment is logged and undercounts usage; the action
// itself is already done and is never rolled back.
func (g *Gate) Consume(ctx context.Context, userID string, action usage.Action) error {
	now := time.Now()
	periodStart, periodEnd := usage.DefaultPeriod(now)

	sub, err := g.Subscriptions.GetByUserID(ctx, userID)
	if err != nil {
		g.Logger.Error("Unable to resolve subscription for usage increment, using calendar period",
			zap.String("UserID", userID),
			zap.Error(err),
		)
	} else if sub != nil && sub.CurrentPeriodStart.Before(sub.CurrentPeriodEnd) && !now.Before(sub.CurrentPeriodStart) && now.Before(sub.CurrentPeriodEnd) {
		periodStart = sub.CurrentPeriodStart
		periodEnd = sub.CurrentPeriodEnd
	}

	if err := g.Usage.Increment(ctx, usage.IncrementOption{
		UserID:        userID,
		Action:        action,
		ReferenceTime: now,
		PeriodStart:   periodStart,
		PeriodEnd:     periodEnd,
	}); err != nil {
		g.Logger.Error("Unable to increment usage after successful action",
			zap.String("UserID", userID),
			zap.String("Action", string(action)),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// lookupFailure is the documented error policy: fail-open (unlimited) by
// default, deny with a retry message in strict mode.
func (g *Gate) lookupFailure(action usage.Action) Result {
	if g.StrictMode {
		return Result{
			Allowed: false,
			Limit:   0,
			Used:    0,
			Message: "We couldn't verify your plan. Please try again in a moment.",
		}
	}
	return Result{
		Allowed: true,
		Limit:   tier.UnlimitedAllowance,
		Used:    0,
	}
}

func denialMessage(action usage.Action, t tier.Tier, limit int64) string {
	return fmt.Sprintf(
		"You've used all %d %s included in %s this month. Upgrade your plan to keep going.",
		limit, usage.DisplayName(action), t.Name,
	)
}
