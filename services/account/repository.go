package account

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// Repository exposes the user reads the offer engine depends on:
// chunked ID scans over a stable key and a most-recent sample.
type Repository interface {
	GetByID(ctx context.Context, userID string) (*User, error)
	// ListIDsAfter returns up to limit user IDs strictly greater than
	// afterID, ordered by user_id ascending. An empty afterID starts
	// from the beginning; an empty result means the scan is done.
	ListIDsAfter(ctx context.Context, afterID string, limit int) ([]string, error)
	// ListRecentIDs returns up to limit user IDs ordered by most
	// recent signup first.
	ListRecentIDs(ctx context.Context, limit int) ([]string, error)
	CreatedAt(ctx context.Context, userID string) (time.Time, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository returns a gorm backed Repository implementation.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) GetByID(ctx context.Context, userID string) (*User, error) {
	if r == nil || r.db == nil {
		return nil, gorm.ErrInvalidDB
	}

	var user User
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *gormRepository) ListIDsAfter(ctx context.Context, afterID string, limit int) ([]string, error) {
	if r == nil || r.db == nil {
		return nil, gorm.ErrInvalidDB
	}

	query := r.db.WithContext(ctx).Model(&User{}).
		Order("user_id ASC").
		Limit(limit)
	if afterID != "" {
		query = query.Where("user_id > ?", afterID)
	}

	var ids []string
	if err := query.Pluck("user_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *gormRepository) ListRecentIDs(ctx context.Context, limit int) ([]string, error) {
	if r == nil || r.db == nil {
		return nil, gorm.ErrInvalidDB
	}

	var ids []string
	err := r.db.WithContext(ctx).Model(&User{}).
		Order("created_at DESC").Order("user_id DESC").
		Limit(limit).
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *gormRepository) CreatedAt(ctx context.Context, userID string) (time.Time, error) {
	if r == nil || r.db == nil {
		return time.Time{}, gorm.ErrInvalidDB
	}

	var user User
	err := r.db.WithContext(ctx).
		Select("created_at").
		Where("user_id = ?", userID).
		First(&user).Error
	if err != nil {
		return time.Time{}, err
	}
	return user.CreatedAt, nil
}
