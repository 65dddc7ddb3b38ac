package offer

import (
	"context"
	"errors"
	"time"

	"rechargehub/services/account"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Eligibility is the single aggregate decision both the segment
// computer and the redemption engine call. They must never diverge on
// eligibility logic.
type Eligibility struct {
	db        *gorm.DB
	evaluator *Evaluator
	users     account.Repository
}

func NewEligibility(db *gorm.DB, evaluator *Evaluator, users account.Repository) *Eligibility {
	return &Eligibility{db: db, evaluator: evaluator, users: users}
}

// withDB returns a copy bound to tx, so the redemption engine can run
// the recheck inside its own transaction.
func (e *Eligibility) withDB(tx *gorm.DB) *Eligibility {
	return &Eligibility{db: tx, evaluator: e.evaluator, users: e.users}
}

// IsEligible combines the offer's allow-lists and eligibility rules
// into one pass/fail decision. An offer with no rules is open to
// everyone passing the allow-lists.
func (e *Eligibility) IsEligible(ctx context.Context, offerID, userID string) (bool, error) {
	// Resolving the combinator up front also verifies the offer exists.
	// A missing offer is a caller error, never an open offer.
	logic, err := e.offerLogic(ctx, offerID)
	if err != nil {
		return false, err
	}

	ok, err := e.passesAllowLists(ctx, offerID, userID)
	if err != nil {
		return false, err
	}
	if !ok {
		evaluationsTotal.WithLabelValues("ineligible").Inc()
		return false, nil
	}

	rules, err := e.orderedRules(ctx, offerID)
	if err != nil {
		return false, err
	}

	eligible, err := e.evaluateRules(ctx, rules, logic, offerID, userID)
	if err != nil {
		evaluationsTotal.WithLabelValues("error").Inc()
		return false, err
	}

	if eligible {
		evaluationsTotal.WithLabelValues("eligible").Inc()
	} else {
		evaluationsTotal.WithLabelValues("ineligible").Inc()
	}
	return eligible, nil
}

func (e *Eligibility) evaluateRules(ctx context.Context, rules []*EligibilityRule, logic EligibilityLogic, offerID, userID string) (bool, error) {
	if len(rules) == 0 {
		return true, nil
	}

	now := time.Now()
	for _, rule := range rules {
		passed, err := e.evaluator.Evaluate(ctx, rule, userID, now)
		if err != nil {
			zap.L().Error("rule evaluation failed",
				zap.String("offer_id", offerID),
				zap.String("rule_id", rule.RuleID),
				zap.String("rule_type", string(rule.RuleType)),
				zap.Error(err),
			)
			return false, err
		}

		if logic == LogicAny && passed {
			return true, nil
		}
		if logic == LogicAll && !passed {
			return false, nil
		}
	}

	// Reaching the end means every rule passed under all, or none
	// passed under any.
	return logic == LogicAll, nil
}

// orderedRules reads the offer's rules in insertion order. Snowflake
// rule IDs are time-ordered, so the ID tie-break is deterministic.
func (e *Eligibility) orderedRules(ctx context.Context, offerID string) ([]*EligibilityRule, error) {
	var rules []*EligibilityRule
	err := e.db.WithContext(ctx).
		Where("offer_id = ?", offerID).
		Order("created_at ASC").Order("rule_id ASC").
		Find(&rules).Error
	if err != nil {
		return nil, err
	}
	return rules, nil
}

func (e *Eligibility) offerLogic(ctx context.Context, offerID string) (EligibilityLogic, error) {
	var o Offer
	err := e.db.WithContext(ctx).
		Select("eligibility_logic").
		Where("offer_id = ?", offerID).
		First(&o).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrOfferNotFound
		}
		return "", err
	}
	if o.EligibilityLogic == LogicAny {
		return LogicAny, nil
	}
	return LogicAll, nil
}

// passesAllowLists applies the optional user and role allow-lists.
// An empty list means no restriction.
func (e *Eligibility) passesAllowLists(ctx context.Context, offerID, userID string) (bool, error) {
	var userListSize int64
	if err := e.db.WithContext(ctx).Model(&OfferAllowedUser{}).
		Where("offer_id = ?", offerID).
		Count(&userListSize).Error; err != nil {
		return false, err
	}

	if userListSize > 0 {
		var member int64
		if err := e.db.WithContext(ctx).Model(&OfferAllowedUser{}).
			Where("offer_id = ? AND user_id = ?", offerID, userID).
			Count(&member).Error; err != nil {
			return false, err
		}
		if member == 0 {
			return false, nil
		}
	}

	var roleListSize int64
	if err := e.db.WithContext(ctx).Model(&OfferAllowedRole{}).
		Where("offer_id = ?", offerID).
		Count(&roleListSize).Error; err != nil {
		return false, err
	}

	if roleListSize > 0 {
		user, err := e.users.GetByID(ctx, userID)
		if err != nil {
			return false, err
		}
		var member int64
		if err := e.db.WithContext(ctx).Model(&OfferAllowedRole{}).
			Where("offer_id = ? AND role = ?", offerID, user.Role).
			Count(&member).Error; err != nil {
			return false, err
		}
		if member == 0 {
			return false, nil
		}
	}

	return true, nil
}
