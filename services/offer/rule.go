package offer

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"rechargehub/services/activity"
)

// Evaluator decides a single eligibility rule for one user against
// their historical activity. It has no side effects.
type Evaluator struct {
	activity activity.Reader
}

// NewEvaluator creates a new Evaluator instance.
func NewEvaluator(reader activity.Reader) *Evaluator {
	return &Evaluator{activity: reader}
}

// Evaluate returns whether the user passes the rule. A missing
// required parameter or an unrecognized rule type is a configuration
// error, fatal for the whole evaluation pass.
func (e *Evaluator) Evaluate(ctx context.Context, rule *EligibilityRule, userID string, now time.Time) (bool, error) {
	switch rule.RuleType {
	case RuleNewUser:
		return e.evaluateNewUser(ctx, rule, userID, now)
	case RuleMinTopups:
		return e.evaluateMinTopups(ctx, rule, userID, now)
	case RuleMinTransactions:
		return e.evaluateMinTransactions(ctx, rule, userID)
	case RuleMinSpent:
		return e.evaluateMinSpent(ctx, rule, userID, now)
	case RuleOperatorTopups:
		return e.evaluateOperatorTopups(ctx, rule, userID, now)
	case RuleOperatorSpent:
		return e.evaluateOperatorSpent(ctx, rule, userID, now)
	case RuleLastActiveWithin:
		return e.evaluateLastActiveWithin(ctx, rule, userID, now)
	case RuleActiveDays:
		return e.evaluateActiveDays(ctx, rule, userID, now)
	default:
		return false, fmt.Errorf("%w: %q", ErrUnknownRuleType, rule.RuleType)
	}
}

func (e *Evaluator) evaluateNewUser(ctx context.Context, rule *EligibilityRule, userID string, now time.Time) (bool, error) {
	maxAgeDays, err := intParam(rule, "account_age_days")
	if err != nil {
		return false, err
	}

	createdAt, err := e.activity.UserCreatedAt(ctx, userID)
	if err != nil {
		return false, err
	}

	return now.Sub(createdAt) <= time.Duration(maxAgeDays)*24*time.Hour, nil
}

func (e *Evaluator) evaluateMinTopups(ctx context.Context, rule *EligibilityRule, userID string, now time.Time) (bool, error) {
	minCount, err := intParam(rule, "count")
	if err != nil {
		return false, err
	}
	since, err := windowStart(rule, "window_days", now)
	if err != nil {
		return false, err
	}

	count, err := e.activity.CountCompletedTopups(ctx, userID, since)
	if err != nil {
		return false, err
	}
	return count >= minCount, nil
}

func (e *Evaluator) evaluateMinTransactions(ctx context.Context, rule *EligibilityRule, userID string) (bool, error) {
	minCount, err := intParam(rule, "count")
	if err != nil {
		return false, err
	}

	count, err := e.activity.CountTransactions(ctx, userID)
	if err != nil {
		return false, err
	}
	return count >= minCount, nil
}

func (e *Evaluator) evaluateMinSpent(ctx context.Context, rule *EligibilityRule, userID string, now time.Time) (bool, error) {
	minAmount, err := floatParam(rule, "amount")
	if err != nil {
		return false, err
	}
	since, err := windowStart(rule, "window_days", now)
	if err != nil {
		return false, err
	}

	total, err := e.activity.SumTransactionAmounts(ctx, userID, since)
	if err != nil {
		return false, err
	}
	return total >= minAmount, nil
}

func (e *Evaluator) evaluateOperatorTopups(ctx context.Context, rule *EligibilityRule, userID string, now time.Time) (bool, error) {
	operatorID, err := stringParam(rule, "operator_id")
	if err != nil {
		return false, err
	}
	minCount, err := intParam(rule, "count")
	if err != nil {
		return false, err
	}
	since, err := windowStart(rule, "window_days", now)
	if err != nil {
		return false, err
	}

	count, err := e.activity.CountOperatorTopups(ctx, userID, operatorID, since)
	if err != nil {
		return false, err
	}
	return count >= minCount, nil
}

func (e *Evaluator) evaluateOperatorSpent(ctx context.Context, rule *EligibilityRule, userID string, now time.Time) (bool, error) {
	operatorID, err := stringParam(rule, "operator_id")
	if err != nil {
		return false, err
	}
	minAmount, err := floatParam(rule, "amount")
	if err != nil {
		return false, err
	}
	since, err := windowStart(rule, "window_days", now)
	if err != nil {
		return false, err
	}

	total, err := e.activity.SumOperatorSpent(ctx, userID, operatorID, since)
	if err != nil {
		return false, err
	}
	return total >= minAmount, nil
}

func (e *Evaluator) evaluateLastActiveWithin(ctx context.Context, rule *EligibilityRule, userID string, now time.Time) (bool, error) {
	days, err := intParam(rule, "days")
	if err != nil {
		return false, err
	}

	lastActive, err := e.activity.LastActivityAt(ctx, userID)
	if err != nil {
		return false, err
	}
	if lastActive == nil {
		return false, nil
	}
	return now.Sub(*lastActive) <= time.Duration(days)*24*time.Hour, nil
}

func (e *Evaluator) evaluateActiveDays(ctx context.Context, rule *EligibilityRule, userID string, now time.Time) (bool, error) {
	days, err := intParam(rule, "days")
	if err != nil {
		return false, err
	}
	minActiveDays, err := intParam(rule, "min_active_days")
	if err != nil {
		return false, err
	}

	since := now.Add(-time.Duration(days) * 24 * time.Hour)
	activeDays, err := e.activity.CountActiveDays(ctx, userID, since)
	if err != nil {
		return false, err
	}
	return activeDays >= minActiveDays, nil
}

// windowStart resolves an optional window parameter. Absence means
// all-time history (nil), never a zero window.
func windowStart(rule *EligibilityRule, key string, now time.Time) (*time.Time, error) {
	raw, ok := rule.Params[key]
	if !ok || raw == nil {
		return nil, nil
	}
	days, err := coerceInt(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: parameter %q of rule %s is not an integer", ErrMissingParameter, key, rule.RuleType)
	}
	since := now.Add(-time.Duration(days) * 24 * time.Hour)
	return &since, nil
}

func intParam(rule *EligibilityRule, key string) (int64, error) {
	raw, ok := rule.Params[key]
	if !ok || raw == nil {
		return 0, fmt.Errorf("%w: parameter %q required for rule %s", ErrMissingParameter, key, rule.RuleType)
	}
	value, err := coerceInt(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: parameter %q of rule %s is not an integer", ErrMissingParameter, key, rule.RuleType)
	}
	return value, nil
}

func floatParam(rule *EligibilityRule, key string) (float64, error) {
	raw, ok := rule.Params[key]
	if !ok || raw == nil {
		return 0, fmt.Errorf("%w: parameter %q required for rule %s", ErrMissingParameter, key, rule.RuleType)
	}
	value, err := coerceFloat(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: parameter %q of rule %s is not numeric", ErrMissingParameter, key, rule.RuleType)
	}
	return value, nil
}

func stringParam(rule *EligibilityRule, key string) (string, error) {
	raw, ok := rule.Params[key]
	if !ok || raw == nil {
		return "", fmt.Errorf("%w: parameter %q required for rule %s", ErrMissingParameter, key, rule.RuleType)
	}
	if s, ok := raw.(string); ok && s != "" {
		return s, nil
	}
	return "", fmt.Errorf("%w: parameter %q required for rule %s", ErrMissingParameter, key, rule.RuleType)
}

// Params arrive from a JSON column, so numbers may be float64, int or
// string depending on how the admin client encoded them.
func coerceInt(raw any) (int64, error) {
	switch v := raw.(type) {
	case float64:
		return int64(v), nil
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case string:
		return strconv.ParseInt(v, 10, 64)
	default:
		return 0, fmt.Errorf("cannot coerce %T to int", raw)
	}
}

func coerceFloat(raw any) (float64, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		return strconv.ParseFloat(v, 64)
	default:
		return 0, fmt.Errorf("cannot coerce %T to float", raw)
	}
}
