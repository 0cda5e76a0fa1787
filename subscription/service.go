package subscription

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/zllovesuki/gembooth/auth"
	resp "github.com/zllovesuki/gembooth/response"
	"github.com/zllovesuki/gembooth/tier"

	"github.com/go-chi/chi"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

var validate *validator.Validate = validator.New()

// ServiceOptions contains the configuration for Service router
type ServiceOptions struct {
	SubscriptionManager *Manager
	Catalog             *tier.Catalog
	Logger              *zap.Logger
}

// Service is the subscription API router
type Service struct {
	ServiceOptions
}

// NewService will create an instance of the subscription API router
func NewService(option ServiceOptions) (*Service, error) {
	if option.SubscriptionManager == nil {
		return nil, fmt.Errorf("nil SubscriptionManager is invalid")
	}
	if option.Catalog == nil {
		return nil, fmt.Errorf("nil Catalog is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	return &Service{
		ServiceOptions: option,
	}, nil
}

func (s *Service) listTiers(w http.ResponseWriter, r *http.Request) {
	resp.WriteResponse(w, r, s.Catalog.List())
}

func (s *Service) getSubscription(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := ctx.Value(auth.Context).(*auth.Claims)

	logger := s.Logger.With(zap.String("UserID", claims.ID))

	sub, err := s.SubscriptionManager.GetByUserID(ctx, claims.ID)
	if err != nil {
		logger.Error("Unable to query subscription",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Cannot get your subscription"))
		return
	}
	if sub == nil {
		// no row yet: the user is on the free tier
		resp.WriteResponse(w, r, Subscription{
			UserID: claims.ID,
			TierID: tier.FreeTierID,
			Status: StatusActive,
		})
		return
	}

	resp.WriteResponse(w, r, sub)
}

// CheckoutRequest is the model of user request for a checkout session
type CheckoutRequest struct {
	TierID     string `json:"tierId" validate:"required"`
	SuccessURL string `json:"successUrl" validate:"required,url"`
	CancelURL  string `json:"cancelUrl" validate:"required,url"`
}

func (s *Service) checkout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := ctx.Value(auth.Context).(*auth.Claims)

	logger := s.Logger.With(zap.String("UserID", claims.ID))

	var req CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}
	if err := validate.Struct(&req); err != nil {
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages(err.Error()))
		return
	}

	t, ok := s.Catalog.Get(req.TierID)
	if !ok || !t.Purchasable() {
		resp.WriteError(w, r, resp.ErrNotFound().AddMessages("No purchasable tier with the given id"))
		return
	}

	session, err := s.SubscriptionManager.Checkout(ctx, CheckoutOption{
		UserID:     claims.ID,
		Tier:       t,
		SuccessURL: req.SuccessURL,
		CancelURL:  req.CancelURL,
	})
	if err != nil {
		logger.Error("Unable to create checkout session",
			zap.String("TierID", t.ID),
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Unable to start checkout"))
		return
	}

	resp.WriteResponse(w, r, struct {
		SessionID string `json:"sessionId"`
	}{
		SessionID: session.ID,
	})
}

func (s *Service) cancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := ctx.Value(auth.Context).(*auth.Claims)

	logger := s.Logger.With(zap.String("UserID", claims.ID))

	if err := s.SubscriptionManager.CancelAtPeriodEnd(ctx, claims.ID); err != nil {
		logger.Error("Unable to cancel subscription",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Unable to cancel your subscription"))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Router will return the routes under subscription API
func (s *Service) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/tiers", s.listTiers)
	r.Get("/", s.getSubscription)
	r.Post("/checkout", s.checkout)
	r.Post("/cancel", s.cancel)

	return r
}
