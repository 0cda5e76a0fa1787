package usage

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func mockManager(t *testing.T) (*Manager, sqlmock.Sqlmock) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	gdb, err := gorm.Open(postgres.New(postgres.Config{
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	}), &gorm.Config{})
	require.NoError(t, err)

	return &Manager{
		db:     gdb,
		logger: zap.NewNop(),
	}, mock
}

func recordColumns() []string {
	return []string{
		"id", "user_id", "period_start", "period_end",
		"photos_used", "gifs_used", "fitcheck_used", "codrawing_used",
		"pastforward_used", "generated_images_used", "pixshop_used",
	}
}

func TestGetCurrentReturnsRecord(t *testing.T) {
	m, mock := mockManager(t)
	now := time.Now()
	start, end := DefaultPeriod(now)

	mock.ExpectQuery(`SELECT (.+) FROM "records"`).
		WithArgs("cus_1", now, now).
		WillReturnRows(sqlmock.NewRows(recordColumns()).
			AddRow("rec_1", "cus_1", start, end, 49, 0, 0, 0, 0, 0, 0))

	record, err := m.GetCurrent(context.Background(), "cus_1", now)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, int64(49), record.PhotosUsed)
	assert.Equal(t, int64(0), record.GifsUsed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetCurrentReturnsNilWhenNoRow(t *testing.T) {
	m, mock := mockManager(t)
	now := time.Now()

	mock.ExpectQuery(`SELECT (.+) FROM "records"`).
		WillReturnRows(sqlmock.NewRows(recordColumns()))

	record, err := m.GetCurrent(context.Background(), "cus_1", now)
	require.NoError(t, err)
	assert.Nil(t, record)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIncrementUpdatesExistingRow(t *testing.T) {
	m, mock := mockManager(t)
	now := time.Now()
	start, end := DefaultPeriod(now)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "records" SET "photos_used"=photos_used`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := m.Increment(context.Background(), IncrementOption{
		UserID:        "cus_1",
		Action:        ActionPhoto,
		ReferenceTime: now,
		PeriodStart:   start,
		PeriodEnd:     end,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIncrementRejectsUnknownAction(t *testing.T) {
	m, _ := mockManager(t)
	start, end := DefaultPeriod(time.Now())

	err := m.Increment(context.Background(), IncrementOption{
		UserID:      "cus_1",
		Action:      Action("teleport"),
		PeriodStart: start,
		PeriodEnd:   end,
	})
	assert.Error(t, err)
}

func TestIncrementRejectsInvalidPeriod(t *testing.T) {
	m, _ := mockManager(t)
	now := time.Now()

	err := m.Increment(context.Background(), IncrementOption{
		UserID:      "cus_1",
		Action:      ActionPhoto,
		PeriodStart: now,
		PeriodEnd:   now,
	})
	assert.Error(t, err)
}
