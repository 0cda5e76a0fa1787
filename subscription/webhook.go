package subscription

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/stripe/stripe-go/v72"
	stripewebhook "github.com/stripe/stripe-go/v72/webhook"
	"go.uber.org/zap"
)

const maxWebhookBodyBytes = 65536

// WebhookOptions contains the configuration for the Stripe webhook handler
type WebhookOptions struct {
	SubscriptionManager *Manager
	Logger              *zap.Logger
	SigningSecret       string
}

// Webhook translates Stripe lifecycle events into Subscription row
// mutations. It is the only writer of tier/status/period state; the
// entitlement gate consumes that state and never mutates it.
type Webhook struct {
	WebhookOptions
}

// NewWebhook will create the Stripe webhook handler
func NewWebhook(option WebhookOptions) (*Webhook, error) {
	if option.SubscriptionManager == nil {
		return nil, fmt.Errorf("nil SubscriptionManager is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	if len(option.SigningSecret) == 0 {
		return nil, fmt.Errorf("empty SigningSecret is invalid")
	}
	return &Webhook{
		WebhookOptions: option,
	}, nil
}

func (h *Webhook) handleStripeEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	payload, err := ioutil.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes))
	if err != nil {
		http.Error(w, "cannot read body", http.StatusBadRequest)
		return
	}

	event, err := stripewebhook.ConstructEvent(payload, r.Header.Get("Stripe-Signature"), h.SigningSecret)
	if err != nil {
		h.Logger.Error("Cannot verify webhook signature",
			zap.Error(err),
		)
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	logger := h.Logger.With(zap.String("EventType", string(event.Type)))

	switch event.Type {
	case "checkout.session.completed":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			logger.Error("Cannot decode checkout session", zap.Error(err))
			http.Error(w, "bad event payload", http.StatusBadRequest)
			return
		}
		if session.Subscription == nil {
			break
		}
		if err := h.SubscriptionManager.SyncFromStripe(ctx, session.Subscription.ID); err != nil {
			logger.Error("Cannot synchronize subscription after checkout",
				zap.Error(err),
			)
			http.Error(w, "sync failed", http.StatusInternalServerError)
			return
		}

	case "customer.subscription.created", "customer.subscription.updated":
		var stripeSub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &stripeSub); err != nil {
			logger.Error("Cannot decode subscription", zap.Error(err))
			http.Error(w, "bad event payload", http.StatusBadRequest)
			return
		}
		if err := h.SubscriptionManager.ApplyStripeSubscription(ctx, &stripeSub); err != nil {
			logger.Error("Cannot apply subscription update",
				zap.Error(err),
			)
			http.Error(w, "sync failed", http.StatusInternalServerError)
			return
		}

	case "customer.subscription.deleted":
		var stripeSub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &stripeSub); err != nil {
			logger.Error("Cannot decode subscription", zap.Error(err))
			http.Error(w, "bad event payload", http.StatusBadRequest)
			return
		}
		if stripeSub.Customer == nil {
			break
		}
		if err := h.SubscriptionManager.ResetToFree(ctx, stripeSub.Customer.ID); err != nil {
			logger.Error("Cannot reset user to free tier",
				zap.Error(err),
			)
			http.Error(w, "sync failed", http.StatusInternalServerError)
			return
		}

	case "invoice.payment_failed":
		var invoice stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
			logger.Error("Cannot decode invoice", zap.Error(err))
			http.Error(w, "bad event payload", http.StatusBadRequest)
			return
		}
		if invoice.Subscription == nil {
			break
		}
		if err := h.SubscriptionManager.MarkPastDue(ctx, invoice.Subscription.ID); err != nil {
			logger.Error("Cannot mark subscription past due",
				zap.Error(err),
			)
			http.Error(w, "sync failed", http.StatusInternalServerError)
			return
		}

	default:
		// Stripe sends many more; we only track lifecycle
	}

	w.WriteHeader(http.StatusOK)
}

// Router will return the routes under the webhook endpoint. Mounted without
// auth middleware; authenticity comes from the signature.
func (h *Webhook) Router() http.Handler {
	r := chi.NewRouter()

	r.Post("/stripe", h.handleStripeEvent)

	return r
}
