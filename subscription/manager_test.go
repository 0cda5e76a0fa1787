package subscription

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/zllovesuki/gembooth/tier"

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
		ManagerOptions: ManagerOptions{
			DB:     gdb,
			Logger: zap.NewNop(),
		},
	}, mock
}

func subscriptionColumns() []string {
	return []string{
		"id", "user_id", "tier_id", "status",
		"current_period_start", "current_period_end",
		"cancel_at_period_end", "managed",
	}
}

func TestEnsureDefaultReturnsExistingRow(t *testing.T) {
	m, mock := mockManager(t)
	start := time.Date(2021, time.March, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2021, time.April, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT (.+) FROM "subscriptions"`).
		WithArgs("cus_1").
		WillReturnRows(sqlmock.NewRows(subscriptionColumns()).
			AddRow("sub_1", "cus_1", "pro", StatusActive, start, end, false, true))

	sub, err := m.EnsureDefault(context.Background(), "cus_1")
	require.NoError(t, err)
	require.NotNil(t, sub)
	assert.Equal(t, "sub_1", sub.ID)
	assert.Equal(t, "pro", sub.TierID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureDefaultCreatesFreeRow(t *testing.T) {
	m, mock := mockManager(t)

	mock.ExpectQuery(`SELECT (.+) FROM "subscriptions"`).
		WithArgs("cus_1").
		WillReturnRows(sqlmock.NewRows(subscriptionColumns()))
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "subscriptions"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	sub, err := m.EnsureDefault(context.Background(), "cus_1")
	require.NoError(t, err)
	require.NotNil(t, sub)
	assert.Equal(t, "cus_1", sub.UserID)
	assert.Equal(t, tier.FreeTierID, sub.TierID)
	assert.Equal(t, StatusActive, sub.Status)
	assert.False(t, sub.Managed)
	assert.True(t, sub.CurrentPeriodStart.Before(sub.CurrentPeriodEnd))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureDefaultRecoversFromConcurrentCreate(t *testing.T) {
	m, mock := mockManager(t)
	start := time.Date(2021, time.March, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2021, time.April, 1, 0, 0, 0, 0, time.UTC)

	// two checkouts race: both see no row, the other insert wins, ours
	// loses on the user_id unique index and must re-read the winner's row
	mock.ExpectQuery(`SELECT (.+) FROM "subscriptions"`).
		WithArgs("cus_1").
		WillReturnRows(sqlmock.NewRows(subscriptionColumns()))
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "subscriptions"`).
		WillReturnError(errors.New(`ERROR: duplicate key value violates unique constraint "idx_subscriptions_user_id" (SQLSTATE 23505)`))
	mock.ExpectRollback()
	mock.ExpectQuery(`SELECT (.+) FROM "subscriptions"`).
		WithArgs("cus_1").
		WillReturnRows(sqlmock.NewRows(subscriptionColumns()).
			AddRow("winner", "cus_1", tier.FreeTierID, StatusActive, start, end, false, false))

	sub, err := m.EnsureDefault(context.Background(), "cus_1")
	require.NoError(t, err)
	require.NotNil(t, sub)
	assert.Equal(t, "winner", sub.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
