package offer

import (
	"context"
	"fmt"
	"time"

	"rechargehub/pkg/config"
	"rechargehub/pkg/db/pagination"
	"rechargehub/services/account"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

// SegmentComputer rebuilds the precomputed eligible-user cache for an
// offer in bounded chunks. Memory stays constant in the total user
// count; only the per-chunk delete+insert is atomic.
type SegmentComputer struct {
	db           *gorm.DB
	eligibility  *Eligibility
	users        account.Repository
	chunkSize    int
	previewLimit int
	group        singleflight.Group
}

func NewSegmentComputer(db *gorm.DB, eligibility *Eligibility, users account.Repository, cfg *config.Config) *SegmentComputer {
	chunkSize := 1000
	if cfg != nil && cfg.Offer.SegmentChunkSize > 0 {
		chunkSize = cfg.Offer.SegmentChunkSize
	}
	previewLimit := 50
	if cfg != nil && cfg.Offer.PreviewLimit > 0 {
		previewLimit = cfg.Offer.PreviewLimit
	}
	return &SegmentComputer{
		db:           db,
		eligibility:  eligibility,
		users:        users,
		chunkSize:    chunkSize,
		previewLimit: previewLimit,
	}
}

type SegmentResult struct {
	OfferID     string    `json:"offer_id"`
	MemberCount int64     `json:"member_count"`
	Evaluated   int64     `json:"evaluated"`
	ComputedAt  time.Time `json:"computed_at"`
}

// ComputeSegment wipes and rebuilds the segment for the offer.
// Concurrent calls for the same offer are collapsed into one run.
// A configuration error in any rule halts the whole run.
func (s *SegmentComputer) ComputeSegment(ctx context.Context, offerID string) (*SegmentResult, error) {
	result, err, _ := s.group.Do(offerID, func() (any, error) {
		return s.computeSegment(ctx, offerID)
	})
	if err != nil {
		return nil, err
	}
	return result.(*SegmentResult), nil
}

func (s *SegmentComputer) computeSegment(ctx context.Context, offerID string) (*SegmentResult, error) {
	var exists int64
	if err := s.db.WithContext(ctx).Model(&Offer{}).
		Where("offer_id = ?", offerID).
		Count(&exists).Error; err != nil {
		return nil, err
	}
	if exists == 0 {
		return nil, ErrOfferNotFound
	}

	started := time.Now()
	zapLog := zap.L().With(zap.String("offer_id", offerID))
	zapLog.Info("segment compute started", zap.Int("chunk_size", s.chunkSize))

	if err := s.db.WithContext(ctx).
		Where("offer_id = ?", offerID).
		Delete(&SegmentMember{}).Error; err != nil {
		return nil, fmt.Errorf("failed to wipe segment: %w", err)
	}

	var (
		cursor    string
		members   int64
		evaluated int64
	)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		ids, err := s.users.ListIDsAfter(ctx, cursor, s.chunkSize)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch user chunk: %w", err)
		}
		if len(ids) == 0 {
			break
		}
		cursor = ids[len(ids)-1]

		eligible := make([]*SegmentMember, 0, len(ids))
		for _, userID := range ids {
			evaluated++
			ok, err := s.eligibility.IsEligible(ctx, offerID, userID)
			if err != nil {
				// Misconfigured rules must halt the batch, not
				// silently drop users.
				return nil, err
			}
			if ok {
				eligible = append(eligible, &SegmentMember{
					OfferID: offerID,
					UserID:  userID,
				})
			}
		}

		if len(eligible) > 0 {
			if err := s.db.WithContext(ctx).Create(&eligible).Error; err != nil {
				return nil, fmt.Errorf("failed to insert segment chunk: %w", err)
			}
			members += int64(len(eligible))
			segmentMembersWritten.Add(float64(len(eligible)))
		}
	}

	zapLog.Info("segment compute finished",
		zap.Int64("members", members),
		zap.Int64("evaluated", evaluated),
		zap.Duration("took", time.Since(started)),
	)

	return &SegmentResult{
		OfferID:     offerID,
		MemberCount: members,
		Evaluated:   evaluated,
		ComputedAt:  time.Now(),
	}, nil
}

type PreviewEntry struct {
	UserID   string `json:"user_id"`
	Eligible bool   `json:"eligible"`
}

// PreviewEligibility evaluates a bounded, most-recent sample of users
// without touching the cache.
func (s *SegmentComputer) PreviewEligibility(ctx context.Context, offerID string, limit int) ([]PreviewEntry, error) {
	if limit <= 0 {
		limit = s.previewLimit
	}

	ids, err := s.users.ListRecentIDs(ctx, limit)
	if err != nil {
		return nil, err
	}

	entries := make([]PreviewEntry, 0, len(ids))
	for _, userID := range ids {
		ok, err := s.eligibility.IsEligible(ctx, offerID, userID)
		if err != nil {
			return nil, err
		}
		entries = append(entries, PreviewEntry{UserID: userID, Eligible: ok})
	}
	return entries, nil
}

// GetSegmentMembers is the paginated cache read for browsing.
func (s *SegmentComputer) GetSegmentMembers(ctx context.Context, offerID string, page pagination.Pagination) ([]*SegmentMember, *pagination.PageInfo, error) {
	var total int64
	if err := s.db.WithContext(ctx).Model(&SegmentMember{}).
		Where("offer_id = ?", offerID).
		Count(&total).Error; err != nil {
		return nil, nil, err
	}

	var members []*SegmentMember
	err := s.db.WithContext(ctx).
		Where("offer_id = ?", offerID).
		Order("user_id ASC").
		Scopes(page.Scope).
		Find(&members).Error
	if err != nil {
		return nil, nil, err
	}

	return members, pagination.BuildPageInfo(page, total), nil
}

// AllSegmentMemberIDs streams the whole cache in chunks, feeding the
// bulk redemption job.
func (s *SegmentComputer) AllSegmentMemberIDs(ctx context.Context, offerID string) ([]string, error) {
	var (
		cursor string
		all    []string
	)

	for {
		query := s.db.WithContext(ctx).Model(&SegmentMember{}).
			Where("offer_id = ?", offerID).
			Order("user_id ASC").
			Limit(s.chunkSize)
		if cursor != "" {
			query = query.Where("user_id > ?", cursor)
		}

		var ids []string
		if err := query.Pluck("user_id", &ids).Error; err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			return all, nil
		}
		cursor = ids[len(ids)-1]
		all = append(all, ids...)
	}
}
