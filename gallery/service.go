package gallery

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/zllovesuki/gembooth/auth"
	"github.com/zllovesuki/gembooth/entitlement"
	resp "github.com/zllovesuki/gembooth/response"
	"github.com/zllovesuki/gembooth/usage"

	"github.com/go-chi/chi"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var validate *validator.Validate = validator.New()

// EntitlementGate is the quota gate consulted before every mutation.
// Check runs before the action, Consume after it succeeded.
type EntitlementGate interface {
	Check(ctx context.Context, userID string, action usage.Action) entitlement.Result
	Consume(ctx context.Context, userID string, action usage.Action) error
}

// Store is the persistence surface of the gallery router, satisfied by
// Manager
type Store interface {
	CreatePhoto(ctx context.Context, photo *Photo) error
	CreateGIF(ctx context.Context, gif *GIF) error
	GetPhoto(ctx context.Context, id string) (*Photo, error)
	ListPhotos(ctx context.Context, opt ListOption) ([]Photo, error)
	ListGIFs(ctx context.Context, opt ListOption) ([]GIF, error)
	DeletePhoto(ctx context.Context, userID, id string) (bool, error)
	DeleteGIF(ctx context.Context, userID, id string) (bool, error)
}

// ServiceOptions contains the configuration for Service router
type ServiceOptions struct {
	GalleryManager Store
	Gate           EntitlementGate
	Logger         *zap.Logger
}

// Service is the gallery API router
type Service struct {
	ServiceOptions
}

// NewService will create an instance of the gallery API router
func NewService(option ServiceOptions) (*Service, error) {
	if option.GalleryManager == nil {
		return nil, fmt.Errorf("nil GalleryManager is invalid")
	}
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

// CreatePhotoRequest is the model of user request for saving a booth photo
type CreatePhotoRequest struct {
	Mode      string `json:"mode" validate:"required"`
	ObjectKey string `json:"objectKey" validate:"required"`
	Caption   string `json:"caption"`
}

func (s *Service) createPhoto(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := ctx.Value(auth.Context).(*auth.Claims)

	logger := s.Logger.With(zap.String("UserID", claims.ID))

	var req CreatePhotoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}
	if err := validate.Struct(&req); err != nil {
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages(err.Error()))
		return
	}

	action := usage.Action(req.Mode)
	if !usage.Known(action) || action == usage.ActionGIF {
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages("Unknown transformation mode"))
		return
	}

	gate := s.Gate.Check(ctx, claims.ID, action)
	if !gate.Allowed {
		resp.WriteError(w, r, resp.ErrQuotaExceeded().AddMessages(gate.Message).WithResult(gate))
		return
	}

	photo := &Photo{
		ID:        uuid.New().String(),
		UserID:    claims.ID,
		Mode:      action,
		Caption:   req.Caption,
		ObjectKey: req.ObjectKey,
	}
	if err := s.GalleryManager.CreatePhoto(ctx, photo); err != nil {
		logger.Error("Unable to save photo",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Cannot save the photo"))
		return
	}

	// the action succeeded; an increment failure only undercounts, it is
	// never surfaced to the user
	s.Gate.Consume(ctx, claims.ID, action)

	resp.WriteResponse(w, r, photo)
}

// CreateGIFRequest is the model of user request for saving an assembled GIF
type CreateGIFRequest struct {
	ObjectKey  string `json:"objectKey" validate:"required"`
	FrameCount int    `json:"frameCount" validate:"gte=0"`
}

func (s *Service) createGIF(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := ctx.Value(auth.Context).(*auth.Claims)

	logger := s.Logger.With(zap.String("UserID", claims.ID))

	var req CreateGIFRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}
	if err := validate.Struct(&req); err != nil {
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages(err.Error()))
		return
	}

	gate := s.Gate.Check(ctx, claims.ID, usage.ActionGIF)
	if !gate.Allowed {
		resp.WriteError(w, r, resp.ErrQuotaExceeded().AddMessages(gate.Message).WithResult(gate))
		return
	}

	gif := &GIF{
		ID:         uuid.New().String(),
		UserID:     claims.ID,
		ObjectKey:  req.ObjectKey,
		FrameCount: req.FrameCount,
	}
	if err := s.GalleryManager.CreateGIF(ctx, gif); err != nil {
		logger.Error("Unable to save GIF",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Cannot save the GIF"))
		return
	}

	s.Gate.Consume(ctx, claims.ID, usage.ActionGIF)

	resp.WriteResponse(w, r, gif)
}

func (s *Service) getPhoto(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := ctx.Value(auth.Context).(*auth.Claims)
	photoID := chi.URLParam(r, "id")

	photo, err := s.GalleryManager.GetPhoto(ctx, photoID)
	if err != nil {
		s.Logger.Error("Unable to get photo",
			zap.String("UserID", claims.ID),
			zap.String("PhotoID", photoID),
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Cannot get the photo"))
		return
	}
	// someone else's photo looks the same as a missing one
	if photo == nil || photo.UserID != claims.ID {
		resp.WriteError(w, r, resp.ErrNotFound().AddMessages("Cannot find photo with specific ID"))
		return
	}

	resp.WriteResponse(w, r, photo)
}

func (s *Service) listPhotos(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := ctx.Value(auth.Context).(*auth.Claims)

	opt, ok := listOptionFromQuery(w, r, claims.ID)
	if !ok {
		return
	}

	results, err := s.GalleryManager.ListPhotos(ctx, opt)
	if err != nil {
		s.Logger.Error("Unable to list photos",
			zap.String("UserID", claims.ID),
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Cannot get your photos"))
		return
	}

	resp.WriteResponse(w, r, results)
}

func (s *Service) listGIFs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := ctx.Value(auth.Context).(*auth.Claims)

	opt, ok := listOptionFromQuery(w, r, claims.ID)
	if !ok {
		return
	}

	results, err := s.GalleryManager.ListGIFs(ctx, opt)
	if err != nil {
		s.Logger.Error("Unable to list GIFs",
			zap.String("UserID", claims.ID),
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Cannot get your GIFs"))
		return
	}

	resp.WriteResponse(w, r, results)
}

func (s *Service) deletePhoto(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := ctx.Value(auth.Context).(*auth.Claims)
	photoID := chi.URLParam(r, "id")

	deleted, err := s.GalleryManager.DeletePhoto(ctx, claims.ID, photoID)
	if err != nil {
		s.Logger.Error("Unable to delete photo",
			zap.String("UserID", claims.ID),
			zap.String("PhotoID", photoID),
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Cannot delete the photo"))
		return
	}
	if !deleted {
		resp.WriteError(w, r, resp.ErrNotFound().AddMessages("Cannot find photo with specific ID"))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) deleteGIF(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := ctx.Value(auth.Context).(*auth.Claims)
	gifID := chi.URLParam(r, "id")

	deleted, err := s.GalleryManager.DeleteGIF(ctx, claims.ID, gifID)
	if err != nil {
		s.Logger.Error("Unable to delete GIF",
			zap.String("UserID", claims.ID),
			zap.String("GIFID", gifID),
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Cannot delete the GIF"))
		return
	}
	if !deleted {
		resp.WriteError(w, r, resp.ErrNotFound().AddMessages("Cannot find GIF with specific ID"))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func listOptionFromQuery(w http.ResponseWriter, r *http.Request, userID string) (ListOption, bool) {
	before := r.URL.Query().Get("before")

	var parsedTime time.Time
	if before != "" {
		var err error
		parsedTime, err = time.Parse(time.RFC3339Nano, before)
		if err != nil {
			resp.WriteError(w, r, resp.ErrBadRequest().AddMessages("Invalid before param"))
			return ListOption{}, false
		}
	}

	return ListOption{
		UserID: userID,
		Before: parsedTime,
		Limit:  20,
	}, true
}

// Router will return the routes under gallery API
func (s *Service) Router() http.Handler {
	r := chi.NewRouter()

	r.Post("/photos", s.createPhoto)
	r.Get("/photos", s.listPhotos)
	r.Get("/photos/{id}", s.getPhoto)
	r.Delete("/photos/{id}", s.deletePhoto)
	r.Post("/gifs", s.createGIF)
	r.Get("/gifs", s.listGIFs)
	r.Delete("/gifs/{id}", s.deleteGIF)

	return r
}
