package offer

import (
	"context"
	"testing"
	"time"

	"rechargehub/services/account"
	"rechargehub/services/testutil"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newRedemptionFixture(t *testing.T, reader *stubReader) (*RedemptionEngine, *gorm.DB) {
	t.Helper()
	db := testutil.NewTestDB(t,
		&account.User{},
		&Offer{},
		&EligibilityRule{},
		&OfferAllowedUser{},
		&OfferAllowedRole{},
		&OfferProduct{},
		&SegmentMember{},
		&Redemption{},
	)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	eligibility := NewEligibility(db, NewEvaluator(reader), account.NewRepository(db))
	return NewRedemptionEngine(db, node, eligibility), db
}

func strPtr(s string) *string   { return &s }
func i64Ptr(v int64) *int64     { return &v }
func f64Ptr(v float64) *float64 { return &v }

func productRef(productID string) ProductRef {
	return ProductRef{ProductID: strPtr(productID)}
}

func TestRedeemSuccess(t *testing.T) {
	engine, db := newRedemptionFixture(t, &stubReader{})

	seedOffer(t, db, &Offer{
		OfferID:       "o1",
		Code:          "c1",
		Title:         "t",
		DiscountType:  DiscountPercentage,
		DiscountValue: 10,
	})

	redemption, err := engine.Redeem(context.Background(), RedeemParams{
		OfferID:    "o1",
		UserID:     "u1",
		ProductRef: productRef("p1"),
		BasePrice:  100,
	})
	require.NoError(t, err)
	require.Equal(t, float64(90), redemption.PricePaid)
	require.Equal(t, float64(10), redemption.DiscountAmount)

	var offer Offer
	require.NoError(t, db.Where("offer_id = ?", "o1").First(&offer).Error)
	require.Equal(t, int64(1), offer.UsageCount)

	var count int64
	require.NoError(t, db.Model(&Redemption{}).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestRedeemUnknownOffer(t *testing.T) {
	engine, _ := newRedemptionFixture(t, &stubReader{})

	_, err := engine.Redeem(context.Background(), RedeemParams{
		OfferID:    "missing",
		UserID:     "u1",
		ProductRef: productRef("p1"),
		BasePrice:  100,
	})
	require.ErrorIs(t, err, ErrOfferNotFound)
}

func TestRedeemGlobalLimitLastSlot(t *testing.T) {
	engine, db := newRedemptionFixture(t, &stubReader{})

	seedOffer(t, db, &Offer{
		OfferID:         "o1",
		Code:            "c1",
		Title:           "t",
		DiscountType:    DiscountFixed,
		DiscountValue:   5,
		TotalUsageLimit: i64Ptr(1),
	})

	_, err := engine.Redeem(context.Background(), RedeemParams{
		OfferID: "o1", UserID: "u1", ProductRef: productRef("p1"), BasePrice: 50,
	})
	require.NoError(t, err)

	_, err = engine.Redeem(context.Background(), RedeemParams{
		OfferID: "o1", UserID: "u2", ProductRef: productRef("p1"), BasePrice: 50,
	})
	require.ErrorIs(t, err, ErrGlobalLimitExceeded)

	// Exactly one winner, counter never overshoots.
	var offer Offer
	require.NoError(t, db.Where("offer_id = ?", "o1").First(&offer).Error)
	require.Equal(t, int64(1), offer.UsageCount)

	var count int64
	require.NoError(t, db.Model(&Redemption{}).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestRedeemPerUserLimit(t *testing.T) {
	engine, db := newRedemptionFixture(t, &stubReader{})

	seedOffer(t, db, &Offer{
		OfferID:       "o1",
		Code:          "c1",
		Title:         "t",
		DiscountType:  DiscountFixed,
		DiscountValue: 5,
		PerUserLimit:  i64Ptr(1),
	})

	_, err := engine.Redeem(context.Background(), RedeemParams{
		OfferID: "o1", UserID: "u1", ProductRef: productRef("p1"), BasePrice: 50,
	})
	require.NoError(t, err)

	_, err = engine.Redeem(context.Background(), RedeemParams{
		OfferID: "o1", UserID: "u1", ProductRef: productRef("p1"), BasePrice: 50,
	})
	require.ErrorIs(t, err, ErrPerUserLimitExceeded)

	// A different user is unaffected.
	_, err = engine.Redeem(context.Background(), RedeemParams{
		OfferID: "o1", UserID: "u2", ProductRef: productRef("p1"), BasePrice: 50,
	})
	require.NoError(t, err)
}

func TestRedeemOfferNotActive(t *testing.T) {
	engine, db := newRedemptionFixture(t, &stubReader{})

	seedOffer(t, db, &Offer{
		OfferID: "o1", Code: "c1", Title: "t",
		Status:       StatusPaused,
		DiscountType: DiscountFixed,
	})

	past := time.Now().Add(-time.Hour)
	seedOffer(t, db, &Offer{
		OfferID: "o2", Code: "c2", Title: "t",
		Status:       StatusActive,
		DiscountType: DiscountFixed,
		EndsAt:       &past,
	})

	_, err := engine.Redeem(context.Background(), RedeemParams{
		OfferID: "o1", UserID: "u1", ProductRef: productRef("p1"), BasePrice: 50,
	})
	require.ErrorIs(t, err, ErrOfferNotActive)

	_, err = engine.Redeem(context.Background(), RedeemParams{
		OfferID: "o2", UserID: "u1", ProductRef: productRef("p1"), BasePrice: 50,
	})
	require.ErrorIs(t, err, ErrOfferNotActive)
}

func TestRedeemLiveRecheckBeatsStaleSegment(t *testing.T) {
	engine, db := newRedemptionFixture(t, &stubReader{topups: 0})

	seedOffer(t, db, &Offer{
		OfferID: "o1", Code: "c1", Title: "t",
		DiscountType: DiscountFixed,
	})
	seedRule(t, db, "o1", "r1", RuleMinTopups, map[string]any{"count": float64(3)}, time.Now())
	// Cached from before the user's topups were refunded.
	require.NoError(t, db.Create(&SegmentMember{OfferID: "o1", UserID: "u1"}).Error)

	_, err := engine.Redeem(context.Background(), RedeemParams{
		OfferID: "o1", UserID: "u1", ProductRef: productRef("p1"), BasePrice: 50,
	})
	require.ErrorIs(t, err, ErrNotEligible)
}

func TestRedeemEndToEndRuleThreshold(t *testing.T) {
	reader := &stubReader{topups: 2}
	engine, db := newRedemptionFixture(t, reader)

	seedOffer(t, db, &Offer{
		OfferID: "o1", Code: "c1", Title: "t",
		DiscountType:  DiscountPercentage,
		DiscountValue: 20,
	})
	seedRule(t, db, "o1", "r1", RuleMinTopups, map[string]any{"count": float64(3)}, time.Now())

	_, err := engine.Redeem(context.Background(), RedeemParams{
		OfferID: "o1", UserID: "u1", ProductRef: productRef("p1"), BasePrice: 100,
	})
	require.ErrorIs(t, err, ErrNotEligible)

	// The third topup flips the decision.
	reader.topups = 3
	redemption, err := engine.Redeem(context.Background(), RedeemParams{
		OfferID: "o1", UserID: "u1", ProductRef: productRef("p1"), BasePrice: 100,
	})
	require.NoError(t, err)
	require.Equal(t, float64(80), redemption.PricePaid)
}

func TestRedeemProductRefExactlyOne(t *testing.T) {
	engine, db := newRedemptionFixture(t, &stubReader{})

	seedOffer(t, db, &Offer{OfferID: "o1", Code: "c1", Title: "t", DiscountType: DiscountFixed})

	_, err := engine.Redeem(context.Background(), RedeemParams{
		OfferID: "o1", UserID: "u1",
		ProductRef: ProductRef{ProductID: strPtr("p1"), SupplierProductID: strPtr("sp1")},
		BasePrice:  50,
	})
	require.ErrorIs(t, err, ErrIntegrityViolation)

	_, err = engine.Redeem(context.Background(), RedeemParams{
		OfferID: "o1", UserID: "u1",
		ProductRef: ProductRef{},
		BasePrice:  50,
	})
	require.ErrorIs(t, err, ErrIntegrityViolation)

	var count int64
	require.NoError(t, db.Model(&Redemption{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestRedeemOverridePrice(t *testing.T) {
	engine, db := newRedemptionFixture(t, &stubReader{})

	seedOffer(t, db, &Offer{
		OfferID: "o1", Code: "c1", Title: "t",
		DiscountType:  DiscountPercentage,
		DiscountValue: 50,
	})
	require.NoError(t, db.Create(&OfferProduct{
		OfferProductID: "op1",
		OfferID:        "o1",
		ProductRef:     productRef("p1"),
		OverridePrice:  f64Ptr(80),
	}).Error)

	redemption, err := engine.Redeem(context.Background(), RedeemParams{
		OfferID: "o1", UserID: "u1", ProductRef: productRef("p1"), BasePrice: 100,
	})
	require.NoError(t, err)
	require.Equal(t, float64(40), redemption.PricePaid)
	require.Equal(t, float64(40), redemption.DiscountAmount)
}

func TestRedeemExplicitOverrides(t *testing.T) {
	engine, db := newRedemptionFixture(t, &stubReader{})

	seedOffer(t, db, &Offer{
		OfferID: "o1", Code: "c1", Title: "t",
		DiscountType:  DiscountPercentage,
		DiscountValue: 10,
	})

	redemption, err := engine.Redeem(context.Background(), RedeemParams{
		OfferID: "o1", UserID: "u1", ProductRef: productRef("p1"),
		BasePrice:        100,
		PriceOverride:    f64Ptr(60),
		DiscountOverride: f64Ptr(40),
	})
	require.NoError(t, err)
	require.Equal(t, float64(60), redemption.PricePaid)
	require.Equal(t, float64(40), redemption.DiscountAmount)
}

func TestComputeDiscount(t *testing.T) {
	tests := []struct {
		name         string
		discountType DiscountType
		value        float64
		base         float64
		wantPrice    float64
		wantDiscount float64
	}{
		{"percentage", DiscountPercentage, 25, 100, 75, 25},
		{"percentage clamps at base", DiscountPercentage, 150, 100, 0, 100},
		{"fixed amount", DiscountFixed, 30, 100, 70, 30},
		{"fixed amount clamps at base", DiscountFixed, 130, 100, 0, 100},
		{"fixed price below base", DiscountFixedPrice, 40, 100, 40, 60},
		{"fixed price above base keeps base", DiscountFixedPrice, 120, 100, 100, 0},
		{"buy x get y keeps unit price", DiscountBuyXGetY, 1, 100, 100, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			price, discount := ComputeDiscount(tt.discountType, tt.value, tt.base)
			require.Equal(t, tt.wantPrice, price)
			require.Equal(t, tt.wantDiscount, discount)
		})
	}
}
