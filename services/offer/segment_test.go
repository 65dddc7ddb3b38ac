package offer

import (
	"context"
	"testing"
	"time"

	"rechargehub/pkg/config"
	"rechargehub/pkg/db/pagination"
	"rechargehub/services/account"
	"rechargehub/services/testutil"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newSegmentFixture(t *testing.T, reader *stubReader) (*SegmentComputer, *gorm.DB) {
	t.Helper()
	db := testutil.NewTestDB(t,
		&account.User{},
		&Offer{},
		&EligibilityRule{},
		&OfferAllowedUser{},
		&OfferAllowedRole{},
		&SegmentMember{},
	)

	users := account.NewRepository(db)
	eligibility := NewEligibility(db, NewEvaluator(reader), users)

	cfg := &config.Config{}
	// Chunk size below the seeded user count so the cursor loop runs
	// more than once.
	cfg.Offer.SegmentChunkSize = 2
	return NewSegmentComputer(db, eligibility, users, cfg), db
}

func seedUsers(t *testing.T, db *gorm.DB, ids ...string) {
	t.Helper()
	for i, id := range ids {
		require.NoError(t, db.Create(&account.User{
			UserID:    id,
			Phone:     "+62811" + id,
			Role:      "customer",
			CreatedAt: time.Now().Add(time.Duration(i) * time.Second),
		}).Error)
	}
}

func TestComputeSegmentFiltersAndChunks(t *testing.T) {
	computer, db := newSegmentFixture(t, &stubReader{})

	seedOffer(t, db, &Offer{OfferID: "o1", Code: "c1", Title: "t"})
	seedUsers(t, db, "u1", "u2", "u3", "u4", "u5")
	require.NoError(t, db.Create(&OfferAllowedUser{OfferID: "o1", UserID: "u2"}).Error)
	require.NoError(t, db.Create(&OfferAllowedUser{OfferID: "o1", UserID: "u4"}).Error)

	result, err := computer.ComputeSegment(context.Background(), "o1")
	require.NoError(t, err)
	require.Equal(t, int64(5), result.Evaluated)
	require.Equal(t, int64(2), result.MemberCount)

	ids, err := computer.AllSegmentMemberIDs(context.Background(), "o1")
	require.NoError(t, err)
	require.Equal(t, []string{"u2", "u4"}, ids)
}

func TestComputeSegmentWipesStaleMembers(t *testing.T) {
	computer, db := newSegmentFixture(t, &stubReader{})

	seedOffer(t, db, &Offer{OfferID: "o1", Code: "c1", Title: "t"})
	seedUsers(t, db, "u1")
	require.NoError(t, db.Create(&OfferAllowedUser{OfferID: "o1", UserID: "u1"}).Error)
	// Leftover from a previous run for a user that no longer exists.
	require.NoError(t, db.Create(&SegmentMember{OfferID: "o1", UserID: "ghost"}).Error)

	_, err := computer.ComputeSegment(context.Background(), "o1")
	require.NoError(t, err)

	ids, err := computer.AllSegmentMemberIDs(context.Background(), "o1")
	require.NoError(t, err)
	require.Equal(t, []string{"u1"}, ids)
}

func TestComputeSegmentIsIdempotent(t *testing.T) {
	computer, db := newSegmentFixture(t, &stubReader{})

	seedOffer(t, db, &Offer{OfferID: "o1", Code: "c1", Title: "t"})
	seedUsers(t, db, "u1", "u2", "u3")

	first, err := computer.ComputeSegment(context.Background(), "o1")
	require.NoError(t, err)
	second, err := computer.ComputeSegment(context.Background(), "o1")
	require.NoError(t, err)
	require.Equal(t, first.MemberCount, second.MemberCount)

	var total int64
	require.NoError(t, db.Model(&SegmentMember{}).Where("offer_id = ?", "o1").Count(&total).Error)
	require.Equal(t, first.MemberCount, total)
}

func TestComputeSegmentUnknownOffer(t *testing.T) {
	computer, _ := newSegmentFixture(t, &stubReader{})

	_, err := computer.ComputeSegment(context.Background(), "missing")
	require.ErrorIs(t, err, ErrOfferNotFound)
}

func TestComputeSegmentHaltsOnConfigurationError(t *testing.T) {
	computer, db := newSegmentFixture(t, &stubReader{})

	seedOffer(t, db, &Offer{OfferID: "o1", Code: "c1", Title: "t"})
	seedUsers(t, db, "u1", "u2")
	seedRule(t, db, "o1", "r1", RuleMinTopups, map[string]any{}, time.Now())

	_, err := computer.ComputeSegment(context.Background(), "o1")
	require.ErrorIs(t, err, ErrMissingParameter)
}

func TestPreviewEligibilityDoesNotTouchCache(t *testing.T) {
	computer, db := newSegmentFixture(t, &stubReader{})

	seedOffer(t, db, &Offer{OfferID: "o1", Code: "c1", Title: "t"})
	seedUsers(t, db, "u1", "u2", "u3")
	require.NoError(t, db.Create(&OfferAllowedUser{OfferID: "o1", UserID: "u1"}).Error)

	entries, err := computer.PreviewEligibility(context.Background(), "o1", 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	var cached int64
	require.NoError(t, db.Model(&SegmentMember{}).Count(&cached).Error)
	require.Zero(t, cached)
}

func TestGetSegmentMembersPagination(t *testing.T) {
	computer, db := newSegmentFixture(t, &stubReader{})

	seedOffer(t, db, &Offer{OfferID: "o1", Code: "c1", Title: "t"})
	seedUsers(t, db, "u1", "u2", "u3")

	_, err := computer.ComputeSegment(context.Background(), "o1")
	require.NoError(t, err)

	members, pageInfo, err := computer.GetSegmentMembers(context.Background(), "o1", pagination.Pagination{Page: 1, Limit: 2})
	require.NoError(t, err)
	require.Len(t, members, 2)
	require.Equal(t, int64(3), pageInfo.Total)

	members, _, err = computer.GetSegmentMembers(context.Background(), "o1", pagination.Pagination{Page: 2, Limit: 2})
	require.NoError(t, err)
	require.Len(t, members, 1)
}
