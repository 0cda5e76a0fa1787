package usage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lithammer/shortuuid/v3"
	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Manager handles the database operations relating to usage Records
type Manager struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewManager returns a new Manager for usage records
func NewManager(logger *zap.Logger, db *gorm.DB) (*Manager, error) {
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, extErrors.Wrap(err, "Cannot initilize usage.Manager")
	}
	return &Manager{
		db:     db,
		logger: logger,
	}, nil
}

// GetCurrent returns the Record whose period window contains ref, or nil if
// the user has no usage yet in the current period.
func (m *Manager) GetCurrent(ctx context.Context, userID string, ref time.Time) (*Record, error) {
	if len(userID) == 0 {
		return nil, fmt.Errorf("UserID is required")
	}
	var record Record
	result := m.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Where("period_start <= ? AND ? < period_end", ref, ref).
		First(&record)

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}

	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot get current usage record")
	}

	return &record, nil
}

// IncrementOption specifies which counter to increment and the billing
// period window a fresh Record should be created with.
type IncrementOption struct {
	UserID        string
	Action        Action
	ReferenceTime time.Time
	PeriodStart   time.Time
	PeriodEnd     time.Time
}

// Increment adds one to the counter of the given action on the user's
// current-period Record, creating the Record when the period has no row
// yet. The update is a single conditional UPDATE so concurrent increments
// never lose writes.
func (m *Manager) Increment(ctx context.Context, opt IncrementOption) error {
	if len(opt.UserID) == 0 {
		return fmt.Errorf("IncrementOption.UserID is required")
	}
	c, ok := counters[opt.Action]
	if !ok {
		return fmt.Errorf("unrecognized action %q", opt.Action)
	}
	if !opt.PeriodStart.Before(opt.PeriodEnd) {
		return fmt.Errorf("IncrementOption period window is invalid")
	}
	ref := opt.ReferenceTime
	if ref.IsZero() {
		ref = time.Now()
	}

	result := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Record{}).
			Where("user_id = ?", opt.UserID).
			Where("period_start <= ? AND ? < period_end", ref, ref).
			UpdateColumn(c.column, gorm.Expr(c.column+" + ?", 1))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 1 {
			m.logger.Error("Usage increment affected more than 1 row",
				zap.String("UserID", opt.UserID),
				zap.String("Action", string(opt.Action)),
			)
			// fail through
		}
		if res.RowsAffected > 0 {
			return nil
		}
		// first gated action of the period
		record := &Record{
			ID:          shortuuid.New(),
			UserID:      opt.UserID,
			PeriodStart: opt.PeriodStart,
			PeriodEnd:   opt.PeriodEnd,
		}
		c.set(record, 1)
		return tx.Create(record).Error
	}, &sql.TxOptions{
		Isolation: sql.LevelSerializable,
	})
	if result != nil {
		return extErrors.Wrap(result, "Cannot increment usage")
	}
	return nil
}
