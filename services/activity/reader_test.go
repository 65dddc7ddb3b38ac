package activity

import (
	"context"
	"testing"
	"time"

	"rechargehub/services/account"
	"rechargehub/services/catalog"
	"rechargehub/services/testutil"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newFixture(t *testing.T) (Reader, *gorm.DB) {
	t.Helper()
	db := testutil.NewTestDB(t,
		&account.User{},
		&catalog.Operator{},
		&catalog.Product{},
		&TopupRequest{},
		&WalletTransaction{},
	)
	return NewReader(db), db
}

func seedTopup(t *testing.T, db *gorm.DB, id, userID, productID string, amount float64, status TopupStatus, createdAt time.Time) {
	t.Helper()
	require.NoError(t, db.Create(&TopupRequest{
		TopupID:     id,
		UserID:      userID,
		ProductID:   productID,
		TargetPhone: "+628110001",
		Amount:      amount,
		Status:      status,
		CreatedAt:   createdAt,
	}).Error)
}

func seedTransaction(t *testing.T, db *gorm.DB, id, userID string, amount float64, createdAt time.Time) {
	t.Helper()
	require.NoError(t, db.Create(&WalletTransaction{
		TransactionID: id,
		UserID:        userID,
		Type:          TransactionDebit,
		Amount:        amount,
		CreatedAt:     createdAt,
	}).Error)
}

func TestCountCompletedTopups(t *testing.T) {
	reader, db := newFixture(t)
	now := time.Now()

	seedTopup(t, db, "t1", "u1", "p1", 10, TopupCompleted, now.Add(-time.Hour))
	seedTopup(t, db, "t2", "u1", "p1", 10, TopupCompleted, now.Add(-40*24*time.Hour))
	seedTopup(t, db, "t3", "u1", "p1", 10, TopupPending, now)
	seedTopup(t, db, "t4", "u2", "p1", 10, TopupCompleted, now)

	// All-time, completed only, scoped to the user.
	count, err := reader.CountCompletedTopups(context.Background(), "u1", nil)
	require.NoError(t, err)
	require.Equal(t, int64(2), count)

	// Windowed excludes the 40 day old row.
	since := now.Add(-30 * 24 * time.Hour)
	count, err = reader.CountCompletedTopups(context.Background(), "u1", &since)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
}

func TestCountOperatorTopups(t *testing.T) {
	reader, db := newFixture(t)
	now := time.Now()

	require.NoError(t, db.Create(&catalog.Product{ProductID: "p1", OperatorID: "op1", Name: "5GB", Type: "data"}).Error)
	require.NoError(t, db.Create(&catalog.Product{ProductID: "p2", OperatorID: "op2", Name: "10GB", Type: "data"}).Error)

	seedTopup(t, db, "t1", "u1", "p1", 10, TopupCompleted, now)
	seedTopup(t, db, "t2", "u1", "p2", 10, TopupCompleted, now)

	count, err := reader.CountOperatorTopups(context.Background(), "u1", "op1", nil)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
}

func TestSumTransactionAmounts(t *testing.T) {
	reader, db := newFixture(t)
	now := time.Now()

	seedTransaction(t, db, "x1", "u1", 25, now.Add(-time.Hour))
	seedTransaction(t, db, "x2", "u1", 75, now.Add(-40*24*time.Hour))
	seedTransaction(t, db, "x3", "u2", 500, now)

	total, err := reader.SumTransactionAmounts(context.Background(), "u1", nil)
	require.NoError(t, err)
	require.Equal(t, float64(100), total)

	since := now.Add(-30 * 24 * time.Hour)
	total, err = reader.SumTransactionAmounts(context.Background(), "u1", &since)
	require.NoError(t, err)
	require.Equal(t, float64(25), total)

	// No rows sums to zero, not an error.
	total, err = reader.SumTransactionAmounts(context.Background(), "nobody", nil)
	require.NoError(t, err)
	require.Zero(t, total)
}

func TestSumOperatorSpent(t *testing.T) {
	reader, db := newFixture(t)
	now := time.Now()

	require.NoError(t, db.Create(&catalog.Product{ProductID: "p1", OperatorID: "op1", Name: "5GB", Type: "data"}).Error)

	seedTopup(t, db, "t1", "u1", "p1", 40, TopupCompleted, now)
	seedTopup(t, db, "t2", "u1", "p1", 60, TopupCompleted, now)
	seedTopup(t, db, "t3", "u1", "p1", 999, TopupFailed, now)

	total, err := reader.SumOperatorSpent(context.Background(), "u1", "op1", nil)
	require.NoError(t, err)
	require.Equal(t, float64(100), total)
}

func TestLastActivityAt(t *testing.T) {
	reader, db := newFixture(t)
	now := time.Now().Truncate(time.Second)

	// Explicit last_active_at wins.
	lastActive := now.Add(-2 * time.Hour)
	require.NoError(t, db.Create(&account.User{UserID: "u1", Phone: "+628111", LastActiveAt: &lastActive}).Error)

	got, err := reader.LastActivityAt(context.Background(), "u1")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.WithinDuration(t, lastActive, *got, time.Second)

	// Falls back to the latest wallet movement.
	require.NoError(t, db.Create(&account.User{UserID: "u2", Phone: "+628222"}).Error)
	seedTransaction(t, db, "x1", "u2", 10, now.Add(-48*time.Hour))
	seedTransaction(t, db, "x2", "u2", 10, now.Add(-24*time.Hour))

	got, err = reader.LastActivityAt(context.Background(), "u2")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.WithinDuration(t, now.Add(-24*time.Hour), *got, time.Second)

	// No signal at all is nil, not an error.
	got, err = reader.LastActivityAt(context.Background(), "ghost")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestCountActiveDays(t *testing.T) {
	reader, db := newFixture(t)
	now := time.Now()

	day := 24 * time.Hour
	// Two movements on the same day count once.
	seedTransaction(t, db, "x1", "u1", 10, now.Add(-2*day))
	seedTransaction(t, db, "x2", "u1", 10, now.Add(-2*day+time.Hour))
	seedTransaction(t, db, "x3", "u1", 10, now.Add(-5*day))
	seedTransaction(t, db, "x4", "u1", 10, now.Add(-40*day))

	count, err := reader.CountActiveDays(context.Background(), "u1", now.Add(-30*day))
	require.NoError(t, err)
	require.Equal(t, int64(2), count)
}
