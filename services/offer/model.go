package offer

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type OfferStatus string

// 'draft', 'scheduled', 'active', 'paused', 'expired', 'cancelled'
var (
	StatusDraft     OfferStatus = "draft"
	StatusScheduled OfferStatus = "scheduled"
	StatusActive    OfferStatus = "active"
	StatusPaused    OfferStatus = "paused"
	StatusExpired   OfferStatus = "expired"
	StatusCancelled OfferStatus = "cancelled"
)

func (s OfferStatus) String() string {
	switch s {
	case StatusDraft, StatusScheduled, StatusActive, StatusPaused, StatusExpired, StatusCancelled:
		return string(s)
	default:
		return ""
	}
}

type DiscountType string

var (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed_amount"
	DiscountFixedPrice DiscountType = "fixed_price"
	DiscountBuyXGetY   DiscountType = "buy_x_get_y"
)

type EligibilityLogic string

var (
	LogicAll EligibilityLogic = "all"
	LogicAny EligibilityLogic = "any"
)

// Offer is a promotional discount campaign with a validity window and
// usage limits. UsageCount is the authoritative global counter; it is
// only ever incremented inside the redemption transaction.
type Offer struct {
	OfferID          string           `gorm:"column:offer_id;primaryKey"` // Snowflake string ID
	Code             string           `gorm:"column:code;uniqueIndex;not null"`
	Title            string           `gorm:"column:title;not null"`
	Description      string           `gorm:"column:description"`
	Status           OfferStatus      `gorm:"column:status;index;not null;default:'draft'"`
	DiscountType     DiscountType     `gorm:"column:discount_type;not null"`
	DiscountValue    float64          `gorm:"column:discount_value;not null;default:0"`
	PerUserLimit     *int64           `gorm:"column:per_user_limit"`    // nil = unlimited
	TotalUsageLimit  *int64           `gorm:"column:total_usage_limit"` // nil = unlimited
	UsageCount       int64            `gorm:"column:usage_count;not null;default:0"`
	ApplyTo          string           `gorm:"column:apply_to;default:'all_products'"`
	EligibilityLogic EligibilityLogic `gorm:"column:eligibility_logic;default:'all'"`
	StartsAt         *time.Time       `gorm:"column:starts_at"`
	EndsAt           *time.Time       `gorm:"column:ends_at"`
	CreatedAt        time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time        `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt        gorm.DeletedAt   `gorm:"column:deleted_at;index"`

	// Relations
	Rules    []EligibilityRule `gorm:"foreignKey:OfferID;constraint:OnDelete:CASCADE"`
	Products []OfferProduct    `gorm:"foreignKey:OfferID;constraint:OnDelete:CASCADE"`
}

func (Offer) TableName() string { return "offers" }

// Redeemable reports whether the offer is in the only state the
// engine may redeem from: active and inside its validity window.
func (o *Offer) Redeemable(now time.Time) bool {
	if o.Status != StatusActive {
		return false
	}
	if o.StartsAt != nil && now.Before(*o.StartsAt) {
		return false
	}
	if o.EndsAt != nil && now.After(*o.EndsAt) {
		return false
	}
	return true
}

// ProductRef points at exactly one of an operator product or a
// supplier product mapping. Both-or-neither is a malformed reference.
type ProductRef struct {
	ProductID         *string `gorm:"column:product_id;index"`
	SupplierProductID *string `gorm:"column:supplier_product_id;index"`
}

func (r ProductRef) Validate() error {
	hasProduct := r.ProductID != nil && *r.ProductID != ""
	hasSupplier := r.SupplierProductID != nil && *r.SupplierProductID != ""
	if hasProduct == hasSupplier {
		return ErrIntegrityViolation
	}
	return nil
}

// OfferProduct binds an offer to one product reference, optionally
// overriding price and capping quantity per purchase.
type OfferProduct struct {
	OfferProductID string     `gorm:"column:offer_product_id;primaryKey"`
	OfferID        string     `gorm:"column:offer_id;index;not null"`
	ProductRef     ProductRef `gorm:"embedded"`
	OverridePrice  *float64   `gorm:"column:override_price"`
	MaxQuantity    *int64     `gorm:"column:max_quantity"`
	CreatedAt      time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (OfferProduct) TableName() string { return "offer_products" }

type RuleType string

const (
	RuleNewUser          RuleType = "new_user"
	RuleMinTopups        RuleType = "min_topups"
	RuleMinTransactions  RuleType = "min_transactions"
	RuleMinSpent         RuleType = "min_spent"
	RuleOperatorTopups   RuleType = "operator_topup_count"
	RuleOperatorSpent    RuleType = "operator_spent"
	RuleLastActiveWithin RuleType = "last_active_within"
	RuleActiveDays       RuleType = "active_days"
)

// EligibilityRule is one condition attached to an offer. Params
// semantics depend on RuleType; see the evaluator.
type EligibilityRule struct {
	RuleID      string            `gorm:"column:rule_id;primaryKey"`
	OfferID     string            `gorm:"column:offer_id;index;not null"`
	RuleType    RuleType          `gorm:"column:rule_type;not null"`
	Params      datatypes.JSONMap `gorm:"column:params"`
	Description string            `gorm:"column:description"`
	CreatedAt   time.Time         `gorm:"column:created_at;autoCreateTime"`
}

func (EligibilityRule) TableName() string { return "eligibility_rules" }

// OfferAllowedUser is an optional allow-list entry; when any exist for
// an offer, eligibility additionally requires membership.
type OfferAllowedUser struct {
	OfferID   string    `gorm:"column:offer_id;primaryKey"`
	UserID    string    `gorm:"column:user_id;primaryKey"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (OfferAllowedUser) TableName() string { return "offer_allowed_users" }

type OfferAllowedRole struct {
	OfferID   string    `gorm:"column:offer_id;primaryKey"`
	Role      string    `gorm:"column:role;primaryKey"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (OfferAllowedRole) TableName() string { return "offer_allowed_roles" }

// SegmentMember is a precomputed (offer, user) eligibility pair. It is
// a browsing cache, wiped and rebuilt wholesale; the redemption path
// never trusts it.
type SegmentMember struct {
	OfferID    string    `gorm:"column:offer_id;primaryKey"`
	UserID     string    `gorm:"column:user_id;primaryKey"`
	ComputedAt time.Time `gorm:"column:computed_at;autoCreateTime"`
}

func (SegmentMember) TableName() string { return "segment_members" }

// Redemption is an append-only record of one successful application of
// an offer. Corrections happen via new records, never updates.
type Redemption struct {
	RedemptionID   string     `gorm:"column:redemption_id;primaryKey"`
	OfferID        string     `gorm:"column:offer_id;index;not null"`
	UserID         string     `gorm:"column:user_id;index;not null"`
	ProductRef     ProductRef `gorm:"embedded"`
	PricePaid      float64    `gorm:"column:price_paid;not null;default:0"`
	DiscountAmount float64    `gorm:"column:discount_amount;not null;default:0"`
	CreatedAt      time.Time  `gorm:"column:created_at;autoCreateTime;index"`
}

func (Redemption) TableName() string { return "redemptions" }
