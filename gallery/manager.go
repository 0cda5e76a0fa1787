package gallery

import (
	"context"
	"errors"
	"fmt"
	"time"

	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Manager handles the database operations relating to the gallery
type Manager struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewManager returns a new Manager for gallery items
func NewManager(logger *zap.Logger, db *gorm.DB) (*Manager, error) {
	if err := db.AutoMigrate(&Photo{}, &GIF{}); err != nil {
		return nil, extErrors.Wrap(err, "Cannot initilize gallery.Manager")
	}
	return &Manager{
		db:     db,
		logger: logger,
	}, nil
}

// CreatePhoto persists a new photo row
func (m *Manager) CreatePhoto(ctx context.Context, photo *Photo) error {
	result := m.db.WithContext(ctx).Create(photo)
	if result.Error != nil {
		m.logger.Error("Unable to create new photo in database",
			zap.Error(result.Error),
		)
		return extErrors.Wrap(result.Error, "Cannot create photo")
	}
	return nil
}

// CreateGIF persists a new GIF row
func (m *Manager) CreateGIF(ctx context.Context, gif *GIF) error {
	result := m.db.WithContext(ctx).Create(gif)
	if result.Error != nil {
		m.logger.Error("Unable to create new GIF in database",
			zap.Error(result.Error),
		)
		return extErrors.Wrap(result.Error, "Cannot create GIF")
	}
	return nil
}

// GetPhoto will try to return a photo by id
func (m *Manager) GetPhoto(ctx context.Context, id string) (*Photo, error) {
	var photo Photo

	result := m.db.WithContext(ctx).Where("id = ?", id).First(&photo)

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}

	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot get photo by id")
	}

	return &photo, nil
}

// ListOption specifies the owner and the pagination window for a listing
type ListOption struct {
	UserID string
	Before time.Time
	Limit  int
}

// ListPhotos returns the user's photos, newest first
func (m *Manager) ListPhotos(ctx context.Context, opt ListOption) ([]Photo, error) {
	if len(opt.UserID) == 0 {
		return nil, fmt.Errorf("ListOption.UserID is required")
	}
	baseQuery := m.db.WithContext(ctx).
		Order("created_at desc").
		Where("user_id = ?", opt.UserID)
	if opt.Limit > 0 {
		baseQuery = baseQuery.Limit(opt.Limit)
	}
	if !opt.Before.IsZero() {
		baseQuery = baseQuery.Where("created_at < ?", opt.Before)
	}

	results := make([]Photo, 0, 1)
	result := baseQuery.Find(&results)

	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, result.Error
	}
	return results, nil
}

// ListGIFs returns the user's GIFs, newest first
func (m *Manager) ListGIFs(ctx context.Context, opt ListOption) ([]GIF, error) {
	if len(opt.UserID) == 0 {
		return nil, fmt.Errorf("ListOption.UserID is required")
	}
	baseQuery := m.db.WithContext(ctx).
		Order("created_at desc").
		Where("user_id = ?", opt.UserID)
	if opt.Limit > 0 {
		baseQuery = baseQuery.Limit(opt.Limit)
	}
	if !opt.Before.IsZero() {
		baseQuery = baseQuery.Where("created_at < ?", opt.Before)
	}

	results := make([]GIF, 0, 1)
	result := baseQuery.Find(&results)

	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, result.Error
	}
	return results, nil
}

// DeletePhoto removes the user's photo. Deleting content does not refund
// quota; the period counters only ever go up.
func (m *Manager) DeletePhoto(ctx context.Context, userID, id string) (bool, error) {
	result := m.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Where("id = ?", id).
		Delete(&Photo{})
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return false, extErrors.Wrap(result.Error, "Cannot delete photo")
	}
	return result.RowsAffected > 0, nil
}

// DeleteGIF removes the user's GIF. Same quota semantics as DeletePhoto.
func (m *Manager) DeleteGIF(ctx context.Context, userID, id string) (bool, error) {
	result := m.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Where("id = ?", id).
		Delete(&GIF{})
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return false, extErrors.Wrap(result.Error, "Cannot delete GIF")
	}
	return result.RowsAffected > 0, nil
}
