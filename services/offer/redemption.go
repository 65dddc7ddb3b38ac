package offer

import (
	"context"
	"errors"
	"time"

	"rechargehub/pkg/db/option"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RedemptionEngine applies an offer for one user. The whole decision
// (live eligibility recheck, window, both limits) and the write (new
// redemption row + counter increment) happen inside one transaction
// with the offer row locked, so two redeemers can never both win the
// last slot.
type RedemptionEngine struct {
	db          *gorm.DB
	node        *snowflake.Node
	eligibility *Eligibility
}

func NewRedemptionEngine(db *gorm.DB, node *snowflake.Node, eligibility *Eligibility) *RedemptionEngine {
	return &RedemptionEngine{db: db, node: node, eligibility: eligibility}
}

type RedeemParams struct {
	OfferID    string
	UserID     string
	ProductRef ProductRef
	// BasePrice is the undiscounted price the purchase would cost.
	// The engine derives the final price/discount from the offer
	// unless explicit overrides are given (bulk admin path).
	BasePrice        float64
	PriceOverride    *float64
	DiscountOverride *float64
}

func (e *RedemptionEngine) Redeem(ctx context.Context, p RedeemParams) (*Redemption, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	zapLog := zap.L().With(
		zap.String("offer_id", p.OfferID),
		zap.String("user_id", p.UserID),
		zap.String("trace_id", span.SpanContext().TraceID().String()),
	)

	if err := p.ProductRef.Validate(); err != nil {
		redemptionsTotal.WithLabelValues("integrity_violation").Inc()
		return nil, err
	}

	var redemption *Redemption
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		redemption, err = e.redeem(ctx, tx, p)
		return err
	})
	if err != nil {
		zapLog.Warn("redemption rejected", zap.Error(err))
		redemptionsTotal.WithLabelValues(outcomeLabel(err)).Inc()
		return nil, err
	}

	zapLog.Info("offer redeemed",
		zap.String("redemption_id", redemption.RedemptionID),
		zap.Float64("price_paid", redemption.PricePaid),
		zap.Float64("discount_amount", redemption.DiscountAmount),
	)
	redemptionsTotal.WithLabelValues("success").Inc()
	return redemption, nil
}

func (e *RedemptionEngine) redeem(ctx context.Context, tx *gorm.DB, p RedeemParams) (*Redemption, error) {
	// Row lock on the offer serializes the whole check-and-increment.
	var offer Offer
	err := tx.Scopes(option.LockingUpdate).
		Where("offer_id = ?", p.OfferID).
		First(&offer).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOfferNotFound
		}
		return nil, err
	}

	// The segment cache may be stale relative to the user's latest
	// activity; only the live recheck decides.
	eligible, err := e.eligibility.withDB(tx).IsEligible(ctx, p.OfferID, p.UserID)
	if err != nil {
		return nil, err
	}
	if !eligible {
		return nil, ErrNotEligible
	}

	now := time.Now()
	if !offer.Redeemable(now) {
		return nil, ErrOfferNotActive
	}

	if offer.PerUserLimit != nil {
		var used int64
		if err := tx.Model(&Redemption{}).
			Where("offer_id = ? AND user_id = ?", p.OfferID, p.UserID).
			Count(&used).Error; err != nil {
			return nil, err
		}
		if used >= *offer.PerUserLimit {
			return nil, ErrPerUserLimitExceeded
		}
	}

	if offer.TotalUsageLimit != nil && offer.UsageCount >= *offer.TotalUsageLimit {
		return nil, ErrGlobalLimitExceeded
	}

	pricePaid, discount, err := e.resolvePricing(tx, &offer, p)
	if err != nil {
		return nil, err
	}

	redemption := &Redemption{
		RedemptionID:   e.node.Generate().String(),
		OfferID:        p.OfferID,
		UserID:         p.UserID,
		ProductRef:     p.ProductRef,
		PricePaid:      pricePaid,
		DiscountAmount: discount,
		CreatedAt:      now,
	}

	if err := tx.Create(redemption).Error; err != nil {
		return nil, err
	}

	// Same transaction as the limit check above; never observable as
	// two separate steps.
	if err := tx.Model(&Offer{}).
		Where("offer_id = ?", p.OfferID).
		Update("usage_count", gorm.Expr("usage_count + ?", 1)).Error; err != nil {
		return nil, err
	}

	return redemption, nil
}

func (e *RedemptionEngine) resolvePricing(tx *gorm.DB, offer *Offer, p RedeemParams) (float64, float64, error) {
	if p.PriceOverride != nil && p.DiscountOverride != nil {
		return *p.PriceOverride, *p.DiscountOverride, nil
	}

	base := p.BasePrice
	var op OfferProduct
	err := tx.Where("offer_id = ?", offer.OfferID).
		Where(&OfferProduct{ProductRef: p.ProductRef}).
		First(&op).Error
	if err == nil && op.OverridePrice != nil {
		base = *op.OverridePrice
	} else if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, 0, err
	}

	price, discount := ComputeDiscount(offer.DiscountType, offer.DiscountValue, base)
	return price, discount, nil
}

// ComputeDiscount derives the final price and discount from the
// offer's discount configuration against an undiscounted base price.
func ComputeDiscount(discountType DiscountType, value, base float64) (pricePaid, discount float64) {
	switch discountType {
	case DiscountPercentage:
		discount = base * value / 100
		if discount > base {
			discount = base
		}
	case DiscountFixed:
		discount = value
		if discount > base {
			discount = base
		}
	case DiscountFixedPrice:
		if value < base {
			discount = base - value
		}
	case DiscountBuyXGetY:
		// Quantity-level promotion; the unit price is unchanged and
		// the free units are granted by the purchase flow.
		discount = 0
	}
	return base - discount, discount
}

func outcomeLabel(err error) string {
	switch {
	case errors.Is(err, ErrNotEligible):
		return "not_eligible"
	case errors.Is(err, ErrOfferNotActive):
		return "offer_not_active"
	case errors.Is(err, ErrPerUserLimitExceeded):
		return "per_user_limit"
	case errors.Is(err, ErrGlobalLimitExceeded):
		return "global_limit"
	case errors.Is(err, ErrIntegrityViolation):
		return "integrity_violation"
	case IsConfigurationError(err):
		return "misconfigured"
	default:
		return "error"
	}
}
