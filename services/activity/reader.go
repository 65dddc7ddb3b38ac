package activity

import (
	"context"
	"errors"
	"time"

	"rechargehub/services/account"

	"gorm.io/gorm"
)

// Reader exposes the per-user activity aggregates the eligibility
// rules are written against. A nil since means all-time history.
type Reader interface {
	UserCreatedAt(ctx context.Context, userID string) (time.Time, error)
	CountCompletedTopups(ctx context.Context, userID string, since *time.Time) (int64, error)
	CountOperatorTopups(ctx context.Context, userID, operatorID string, since *time.Time) (int64, error)
	CountTransactions(ctx context.Context, userID string) (int64, error)
	SumTransactionAmounts(ctx context.Context, userID string, since *time.Time) (float64, error)
	SumOperatorSpent(ctx context.Context, userID, operatorID string, since *time.Time) (float64, error)
	LastActivityAt(ctx context.Context, userID string) (*time.Time, error)
	CountActiveDays(ctx context.Context, userID string, since time.Time) (int64, error)
}

type gormReader struct {
	db *gorm.DB
}

// NewReader returns a gorm backed Reader implementation.
func NewReader(db *gorm.DB) Reader {
	return &gormReader{db: db}
}

func (r *gormReader) UserCreatedAt(ctx context.Context, userID string) (time.Time, error) {
	if r == nil || r.db == nil {
		return time.Time{}, gorm.ErrInvalidDB
	}

	var user account.User
	err := r.db.WithContext(ctx).
		Select("created_at").
		Where("user_id = ?", userID).
		First(&user).Error
	if err != nil {
		return time.Time{}, err
	}
	return user.CreatedAt, nil
}

func (r *gormReader) CountCompletedTopups(ctx context.Context, userID string, since *time.Time) (int64, error) {
	query := r.db.WithContext(ctx).Model(&TopupRequest{}).
		Where("user_id = ? AND status = ?", userID, TopupCompleted)
	if since != nil {
		query = query.Where("created_at >= ?", *since)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *gormReader) CountOperatorTopups(ctx context.Context, userID, operatorID string, since *time.Time) (int64, error) {
	query := r.db.WithContext(ctx).Model(&TopupRequest{}).
		Joins("JOIN products ON products.product_id = topup_requests.product_id").
		Where("topup_requests.user_id = ? AND topup_requests.status = ?", userID, TopupCompleted).
		Where("products.operator_id = ?", operatorID)
	if since != nil {
		query = query.Where("topup_requests.created_at >= ?", *since)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *gormReader) CountTransactions(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&WalletTransaction{}).
		Where("user_id = ?", userID).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *gormReader) SumTransactionAmounts(ctx context.Context, userID string, since *time.Time) (float64, error) {
	query := r.db.WithContext(ctx).Model(&WalletTransaction{}).
		Where("user_id = ?", userID)
	if since != nil {
		query = query.Where("created_at >= ?", *since)
	}

	var total float64
	err := query.Select("COALESCE(SUM(amount), 0)").Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (r *gormReader) SumOperatorSpent(ctx context.Context, userID, operatorID string, since *time.Time) (float64, error) {
	query := r.db.WithContext(ctx).Model(&TopupRequest{}).
		Joins("JOIN products ON products.product_id = topup_requests.product_id").
		Where("topup_requests.user_id = ? AND topup_requests.status = ?", userID, TopupCompleted).
		Where("products.operator_id = ?", operatorID)
	if since != nil {
		query = query.Where("topup_requests.created_at >= ?", *since)
	}

	var total float64
	err := query.Select("COALESCE(SUM(topup_requests.amount), 0)").Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (r *gormReader) LastActivityAt(ctx context.Context, userID string) (*time.Time, error) {
	var user account.User
	err := r.db.WithContext(ctx).
		Select("last_active_at").
		Where("user_id = ?", userID).
		First(&user).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if user.LastActiveAt != nil {
		return user.LastActiveAt, nil
	}

	// Fall back to the most recent wallet movement.
	var tx WalletTransaction
	err = r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		First(&tx).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tx.CreatedAt, nil
}

func (r *gormReader) CountActiveDays(ctx context.Context, userID string, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&WalletTransaction{}).
		Where("user_id = ? AND created_at >= ?", userID, since).
		Select("COUNT(DISTINCT date(created_at))").
		Scan(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}
