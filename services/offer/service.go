package offer

import (
	"context"
	"fmt"
	"time"

	"rechargehub/pkg/db/option"
	"rechargehub/pkg/db/pagination"
	"rechargehub/pkg/errutil"
	"rechargehub/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Service is the admin surface: offer lifecycle, rule and product
// bindings, allow-lists. Redemption itself lives in RedemptionEngine.
type Service struct {
	db   *gorm.DB
	node *snowflake.Node

	offers       repository.Repository[Offer]
	rules        repository.Repository[EligibilityRule]
	products     repository.Repository[OfferProduct]
	allowedUsers repository.Repository[OfferAllowedUser]
	allowedRoles repository.Repository[OfferAllowedRole]
	redemptions  repository.Repository[Redemption]
}

type ServiceParams struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:   p.DB,
		node: p.Node,

		offers:       repository.ProvideStore[Offer](p.DB),
		rules:        repository.ProvideStore[EligibilityRule](p.DB),
		products:     repository.ProvideStore[OfferProduct](p.DB),
		allowedUsers: repository.ProvideStore[OfferAllowedUser](p.DB),
		allowedRoles: repository.ProvideStore[OfferAllowedRole](p.DB),
		redemptions:  repository.ProvideStore[Redemption](p.DB),
	}
}

// =========================================================
// Offer lifecycle
// =========================================================

type CreateOfferParams struct {
	Code             string           `json:"code"`
	Title            string           `json:"title"`
	Description      string           `json:"description"`
	DiscountType     DiscountType     `json:"discount_type"`
	DiscountValue    float64          `json:"discount_value"`
	PerUserLimit     *int64           `json:"per_user_limit"`
	TotalUsageLimit  *int64           `json:"total_usage_limit"`
	EligibilityLogic EligibilityLogic `json:"eligibility_logic"`
	StartsAt         *time.Time       `json:"starts_at"`
	EndsAt           *time.Time       `json:"ends_at"`
}

func (s *Service) CreateOffer(ctx context.Context, p CreateOfferParams) (*Offer, error) {
	if p.Title == "" {
		return nil, errutil.BadRequest("title is required", nil)
	}
	switch p.DiscountType {
	case DiscountPercentage, DiscountFixed, DiscountFixedPrice, DiscountBuyXGetY:
	default:
		return nil, errutil.BadRequest("unknown discount_type", nil)
	}
	if p.DiscountType == DiscountPercentage && (p.DiscountValue < 0 || p.DiscountValue > 100) {
		return nil, errutil.BadRequest("percentage discount_value must be within 0..100", nil)
	}
	if p.StartsAt != nil && p.EndsAt != nil && p.EndsAt.Before(*p.StartsAt) {
		return nil, errutil.BadRequest("ends_at must not precede starts_at", nil)
	}

	id := s.node.Generate().String()
	code := p.Code
	if code == "" {
		// Human-readable and unique without coordination.
		code = fmt.Sprintf("%s-%s", slug.Make(p.Title), id[len(id)-6:])
	}

	logic := p.EligibilityLogic
	if logic != LogicAny {
		logic = LogicAll
	}

	offer := &Offer{
		OfferID:          id,
		Code:             code,
		Title:            p.Title,
		Description:      p.Description,
		Status:           StatusDraft,
		DiscountType:     p.DiscountType,
		DiscountValue:    p.DiscountValue,
		PerUserLimit:     p.PerUserLimit,
		TotalUsageLimit:  p.TotalUsageLimit,
		EligibilityLogic: logic,
	}
	offer.StartsAt = p.StartsAt
	offer.EndsAt = p.EndsAt

	if err := s.offers.Create(ctx, offer); err != nil {
		return nil, err
	}

	zap.L().Info("offer created",
		zap.String("offer_id", offer.OfferID),
		zap.String("code", offer.Code),
	)
	return offer, nil
}

type UpdateOfferParams struct {
	Title            *string           `json:"title"`
	Description      *string           `json:"description"`
	Status           *OfferStatus      `json:"status"`
	DiscountType     *DiscountType     `json:"discount_type"`
	DiscountValue    *float64          `json:"discount_value"`
	PerUserLimit     *int64            `json:"per_user_limit"`
	TotalUsageLimit  *int64            `json:"total_usage_limit"`
	EligibilityLogic *EligibilityLogic `json:"eligibility_logic"`
	StartsAt         *time.Time        `json:"starts_at"`
	EndsAt           *time.Time        `json:"ends_at"`
}

func (s *Service) UpdateOffer(ctx context.Context, offerID string, p UpdateOfferParams) (*Offer, error) {
	existing, err := s.GetOffer(ctx, offerID)
	if err != nil {
		return nil, err
	}

	// Validate the state the patch would leave behind, not the patch
	// alone, so a partial update cannot sidestep the create checks.
	merged := *existing
	if p.DiscountType != nil {
		merged.DiscountType = *p.DiscountType
	}
	if p.DiscountValue != nil {
		merged.DiscountValue = *p.DiscountValue
	}
	if p.StartsAt != nil {
		merged.StartsAt = p.StartsAt
	}
	if p.EndsAt != nil {
		merged.EndsAt = p.EndsAt
	}
	switch merged.DiscountType {
	case DiscountPercentage, DiscountFixed, DiscountFixedPrice, DiscountBuyXGetY:
	default:
		return nil, errutil.BadRequest("unknown discount_type", nil)
	}
	if merged.DiscountType == DiscountPercentage && (merged.DiscountValue < 0 || merged.DiscountValue > 100) {
		return nil, errutil.BadRequest("percentage discount_value must be within 0..100", nil)
	}
	if merged.StartsAt != nil && merged.EndsAt != nil && merged.EndsAt.Before(*merged.StartsAt) {
		return nil, errutil.BadRequest("ends_at must not precede starts_at", nil)
	}

	updates := map[string]any{}
	if p.Title != nil {
		if *p.Title == "" {
			return nil, errutil.BadRequest("title is required", nil)
		}
		updates["title"] = *p.Title
	}
	if p.Description != nil {
		updates["description"] = *p.Description
	}
	if p.Status != nil {
		if p.Status.String() == "" {
			return nil, errutil.BadRequest("unknown status", nil)
		}
		updates["status"] = *p.Status
	}
	if p.DiscountType != nil {
		updates["discount_type"] = *p.DiscountType
	}
	if p.DiscountValue != nil {
		updates["discount_value"] = *p.DiscountValue
	}
	if p.PerUserLimit != nil {
		updates["per_user_limit"] = *p.PerUserLimit
	}
	if p.TotalUsageLimit != nil {
		updates["total_usage_limit"] = *p.TotalUsageLimit
	}
	if p.EligibilityLogic != nil {
		updates["eligibility_logic"] = *p.EligibilityLogic
	}
	if p.StartsAt != nil {
		updates["starts_at"] = *p.StartsAt
	}
	if p.EndsAt != nil {
		updates["ends_at"] = *p.EndsAt
	}
	if len(updates) == 0 {
		return existing, nil
	}

	if err := s.offers.Update(ctx, offerID, updates); err != nil {
		return nil, err
	}
	return s.GetOffer(ctx, offerID)
}

func (s *Service) GetOffer(ctx context.Context, offerID string) (*Offer, error) {
	offer, err := s.offers.FindOne(ctx, &Offer{OfferID: offerID})
	if err != nil {
		return nil, err
	}
	if offer == nil {
		return nil, ErrOfferNotFound
	}
	return offer, nil
}

type ListOffersParams struct {
	Status OfferStatus
	pagination.Pagination
}

func (s *Service) ListOffers(ctx context.Context, p ListOffersParams) ([]*Offer, *pagination.PageInfo, error) {
	p.Pagination = p.Pagination.Normalize()

	query := &Offer{Status: p.Status}
	total, err := s.offers.Count(ctx, query)
	if err != nil {
		return nil, nil, err
	}

	offers, err := s.offers.Find(ctx, query,
		option.WithSortBy(option.QuerySortBy{
			SortBy:  "created_at",
			OrderBy: "desc",
			Allow:   map[string]bool{"created_at": true},
		}),
		option.WithLimit(p.Limit),
		option.WithOffset(p.Offset()),
	)
	if err != nil {
		return nil, nil, err
	}

	return offers, pagination.BuildPageInfo(p.Pagination, total), nil
}

func (s *Service) DeleteOffer(ctx context.Context, offerID string) error {
	affected, err := s.offers.Delete(ctx, &Offer{OfferID: offerID})
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrOfferNotFound
	}
	return nil
}

// =========================================================
// Eligibility rules
// =========================================================

type AddRuleParams struct {
	RuleType    RuleType       `json:"rule_type"`
	Params      map[string]any `json:"params"`
	Description string         `json:"description"`
}

func (s *Service) AddRule(ctx context.Context, offerID string, p AddRuleParams) (*EligibilityRule, error) {
	if _, err := s.GetOffer(ctx, offerID); err != nil {
		return nil, err
	}
	switch p.RuleType {
	case RuleNewUser, RuleMinTopups, RuleMinTransactions, RuleMinSpent,
		RuleOperatorTopups, RuleOperatorSpent, RuleLastActiveWithin, RuleActiveDays:
	default:
		return nil, errutil.BadRequest("unknown rule_type", ErrUnknownRuleType)
	}

	rule := &EligibilityRule{
		RuleID:      s.node.Generate().String(),
		OfferID:     offerID,
		RuleType:    p.RuleType,
		Params:      datatypes.JSONMap(p.Params),
		Description: p.Description,
	}
	if err := s.rules.Create(ctx, rule); err != nil {
		return nil, err
	}
	return rule, nil
}

func (s *Service) RemoveRule(ctx context.Context, offerID, ruleID string) error {
	affected, err := s.rules.Delete(ctx, &EligibilityRule{RuleID: ruleID, OfferID: offerID})
	if err != nil {
		return err
	}
	if affected == 0 {
		return errutil.NotFound("rule not found", nil)
	}
	return nil
}

func (s *Service) ListRules(ctx context.Context, offerID string) ([]*EligibilityRule, error) {
	if _, err := s.GetOffer(ctx, offerID); err != nil {
		return nil, err
	}
	return s.rules.Find(ctx, &EligibilityRule{OfferID: offerID},
		option.WithSortBy(option.QuerySortBy{
			SortBy:  "created_at",
			OrderBy: "asc",
			Allow:   map[string]bool{"created_at": true},
		}),
	)
}

// =========================================================
// Product bindings
// =========================================================

type AddProductParams struct {
	ProductRef
	OverridePrice *float64 `json:"override_price"`
	MaxQuantity   *int64   `json:"max_quantity"`
}

func (s *Service) AddProduct(ctx context.Context, offerID string, p AddProductParams) (*OfferProduct, error) {
	if _, err := s.GetOffer(ctx, offerID); err != nil {
		return nil, err
	}
	if err := p.ProductRef.Validate(); err != nil {
		return nil, err
	}

	product := &OfferProduct{
		OfferProductID: s.node.Generate().String(),
		OfferID:        offerID,
		ProductRef:     p.ProductRef,
		OverridePrice:  p.OverridePrice,
		MaxQuantity:    p.MaxQuantity,
	}
	if err := s.products.Create(ctx, product); err != nil {
		return nil, err
	}
	return product, nil
}

func (s *Service) RemoveProduct(ctx context.Context, offerID, offerProductID string) error {
	affected, err := s.products.Delete(ctx, &OfferProduct{OfferProductID: offerProductID, OfferID: offerID})
	if err != nil {
		return err
	}
	if affected == 0 {
		return errutil.NotFound("offer product not found", nil)
	}
	return nil
}

func (s *Service) ListProducts(ctx context.Context, offerID string) ([]*OfferProduct, error) {
	return s.products.Find(ctx, &OfferProduct{OfferID: offerID})
}

// =========================================================
// Allow-lists
// =========================================================

func (s *Service) AddAllowedUsers(ctx context.Context, offerID string, userIDs []string) error {
	if _, err := s.GetOffer(ctx, offerID); err != nil {
		return err
	}
	rows := make([]*OfferAllowedUser, 0, len(userIDs))
	for _, userID := range userIDs {
		rows = append(rows, &OfferAllowedUser{OfferID: offerID, UserID: userID})
	}
	return s.allowedUsers.BatchCreate(ctx, rows)
}

func (s *Service) RemoveAllowedUser(ctx context.Context, offerID, userID string) error {
	_, err := s.allowedUsers.Delete(ctx, &OfferAllowedUser{OfferID: offerID, UserID: userID})
	return err
}

func (s *Service) AddAllowedRoles(ctx context.Context, offerID string, roles []string) error {
	if _, err := s.GetOffer(ctx, offerID); err != nil {
		return err
	}
	rows := make([]*OfferAllowedRole, 0, len(roles))
	for _, role := range roles {
		rows = append(rows, &OfferAllowedRole{OfferID: offerID, Role: role})
	}
	return s.allowedRoles.BatchCreate(ctx, rows)
}

func (s *Service) RemoveAllowedRole(ctx context.Context, offerID, role string) error {
	_, err := s.allowedRoles.Delete(ctx, &OfferAllowedRole{OfferID: offerID, Role: role})
	return err
}

// =========================================================
// Redemption history
// =========================================================

type ListRedemptionsParams struct {
	UserID string
	Since  *time.Time
	pagination.Pagination
}

func (s *Service) ListRedemptions(ctx context.Context, offerID string, p ListRedemptionsParams) ([]*Redemption, *pagination.PageInfo, error) {
	p.Pagination = p.Pagination.Normalize()

	query := &Redemption{OfferID: offerID, UserID: p.UserID}

	opts := []option.QueryOption{}
	if p.Since != nil {
		opts = append(opts, option.ApplyOperator(option.Condition{
			Field:    "created_at",
			Operator: option.GTE,
			Value:    *p.Since,
		}))
	}

	var total int64
	countQuery := option.Apply(s.db.WithContext(ctx).Model(&Redemption{}).Where(query), opts...)
	if err := countQuery.Count(&total).Error; err != nil {
		return nil, nil, err
	}

	opts = append(opts,
		option.WithSortBy(option.QuerySortBy{
			SortBy:  "created_at",
			OrderBy: "desc",
			Allow:   map[string]bool{"created_at": true},
		}),
		option.WithLimit(p.Limit),
		option.WithOffset(p.Offset()),
	)

	redemptions, err := s.redemptions.Find(ctx, query, opts...)
	if err != nil {
		return nil, nil, err
	}

	return redemptions, pagination.BuildPageInfo(p.Pagination, total), nil
}
