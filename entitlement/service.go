package entitlement

import (
	"fmt"
	"net/http"

	"github.com/zllovesuki/gembooth/auth"
	resp "github.com/zllovesuki/gembooth/response"
	"github.com/zllovesuki/gembooth/usage"

	"github.com/go-chi/chi"
	"go.uber.org/zap"
)

// ServiceOptions contains the configuration for Service router
type ServiceOptions struct {
	Gate   *Gate
	Logger *zap.Logger
}

// Service is the entitlement API router. The frontend uses it to decide
// whether to show the paywall before even attempting an action.
type Service struct {
	ServiceOptions
}

// NewService will create an instance of the entitlement API router
func NewService(option ServiceOptions) (*Service, error) {
	if option.Gate == nil {
		return nil, fmt.Errorf("nil Gate is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	return &Service{
		ServiceOptions: option,
	}, nil
}

func (s *Service) checkAction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := ctx.Value(auth.Context).(*auth.Claims)
	action := usage.Action(chi.URLParam(r, "action"))

	if !usage.Known(action) {
		resp.WriteError(w, r, resp.ErrNotFound().AddMessages("Unknown action type"))
		return
	}

	result := s.Gate.Check(ctx, claims.ID, action)
	resp.WriteResponse(w, r, result)
}

func (s *Service) listActions(w http.ResponseWriter, r *http.Request) {
	resp.WriteResponse(w, r, usage.Actions())
}

// Router will return the routes under entitlement API
func (s *Service) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/", s.listActions)
	r.Get("/{action}", s.checkAction)

	return r
}
