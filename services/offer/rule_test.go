package offer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

// stubReader returns canned aggregates and records which windows the
// evaluator asked for.
type stubReader struct {
	createdAt      time.Time
	topups         int64
	operatorTopups int64
	transactions   int64
	spent          float64
	operatorSpent  float64
	lastActive     *time.Time
	activeDays     int64

	calls      int
	lastSince  *time.Time
	lastOpID   string
	failTopups error
}

func (s *stubReader) UserCreatedAt(ctx context.Context, userID string) (time.Time, error) {
	s.calls++
	return s.createdAt, nil
}

func (s *stubReader) CountCompletedTopups(ctx context.Context, userID string, since *time.Time) (int64, error) {
	s.calls++
	s.lastSince = since
	if s.failTopups != nil {
		return 0, s.failTopups
	}
	return s.topups, nil
}

func (s *stubReader) CountOperatorTopups(ctx context.Context, userID, operatorID string, since *time.Time) (int64, error) {
	s.calls++
	s.lastOpID = operatorID
	s.lastSince = since
	return s.operatorTopups, nil
}

func (s *stubReader) CountTransactions(ctx context.Context, userID string) (int64, error) {
	s.calls++
	return s.transactions, nil
}

func (s *stubReader) SumTransactionAmounts(ctx context.Context, userID string, since *time.Time) (float64, error) {
	s.calls++
	s.lastSince = since
	return s.spent, nil
}

func (s *stubReader) SumOperatorSpent(ctx context.Context, userID, operatorID string, since *time.Time) (float64, error) {
	s.calls++
	s.lastOpID = operatorID
	s.lastSince = since
	return s.operatorSpent, nil
}

func (s *stubReader) LastActivityAt(ctx context.Context, userID string) (*time.Time, error) {
	s.calls++
	return s.lastActive, nil
}

func (s *stubReader) CountActiveDays(ctx context.Context, userID string, since time.Time) (int64, error) {
	s.calls++
	s.lastSince = &since
	return s.activeDays, nil
}

func rule(ruleType RuleType, params map[string]any) *EligibilityRule {
	return &EligibilityRule{
		RuleID:   "rule-1",
		OfferID:  "offer-1",
		RuleType: ruleType,
		Params:   datatypes.JSONMap(params),
	}
}

func TestEvaluateNewUser(t *testing.T) {
	now := time.Now()
	reader := &stubReader{createdAt: now.Add(-5 * 24 * time.Hour)}
	e := NewEvaluator(reader)

	passed, err := e.Evaluate(context.Background(), rule(RuleNewUser, map[string]any{"account_age_days": float64(7)}), "u1", now)
	require.NoError(t, err)
	require.True(t, passed)

	passed, err = e.Evaluate(context.Background(), rule(RuleNewUser, map[string]any{"account_age_days": float64(3)}), "u1", now)
	require.NoError(t, err)
	require.False(t, passed)
}

func TestEvaluateMinTopupsThreshold(t *testing.T) {
	now := time.Now()
	reader := &stubReader{topups: 3}
	e := NewEvaluator(reader)

	passed, err := e.Evaluate(context.Background(), rule(RuleMinTopups, map[string]any{"count": float64(3)}), "u1", now)
	require.NoError(t, err)
	require.True(t, passed)

	reader.topups = 2
	passed, err = e.Evaluate(context.Background(), rule(RuleMinTopups, map[string]any{"count": float64(3)}), "u1", now)
	require.NoError(t, err)
	require.False(t, passed)
}

func TestEvaluateMinTopupsWindow(t *testing.T) {
	now := time.Now()
	reader := &stubReader{topups: 1}
	e := NewEvaluator(reader)

	// Explicit window passes a concrete lower bound through.
	_, err := e.Evaluate(context.Background(), rule(RuleMinTopups, map[string]any{"count": float64(1), "window_days": float64(30)}), "u1", now)
	require.NoError(t, err)
	require.NotNil(t, reader.lastSince)
	require.WithinDuration(t, now.Add(-30*24*time.Hour), *reader.lastSince, time.Second)

	// Absent window means all-time, not a zero-length window.
	reader.lastSince = &now
	_, err = e.Evaluate(context.Background(), rule(RuleMinTopups, map[string]any{"count": float64(1)}), "u1", now)
	require.NoError(t, err)
	require.Nil(t, reader.lastSince)
}

func TestEvaluateMissingParameter(t *testing.T) {
	now := time.Now()
	e := NewEvaluator(&stubReader{})

	_, err := e.Evaluate(context.Background(), rule(RuleMinTopups, map[string]any{}), "u1", now)
	require.ErrorIs(t, err, ErrMissingParameter)
	require.True(t, IsConfigurationError(err))
}

func TestEvaluateUnknownRuleType(t *testing.T) {
	e := NewEvaluator(&stubReader{})

	_, err := e.Evaluate(context.Background(), rule(RuleType("vip_only"), nil), "u1", time.Now())
	require.ErrorIs(t, err, ErrUnknownRuleType)
	require.True(t, IsConfigurationError(err))
}

func TestEvaluateOperatorRules(t *testing.T) {
	now := time.Now()
	reader := &stubReader{operatorTopups: 4, operatorSpent: 120}
	e := NewEvaluator(reader)

	passed, err := e.Evaluate(context.Background(), rule(RuleOperatorTopups, map[string]any{
		"operator_id": "op-telkom",
		"count":       float64(4),
	}), "u1", now)
	require.NoError(t, err)
	require.True(t, passed)
	require.Equal(t, "op-telkom", reader.lastOpID)

	passed, err = e.Evaluate(context.Background(), rule(RuleOperatorSpent, map[string]any{
		"operator_id": "op-telkom",
		"amount":      float64(150),
	}), "u1", now)
	require.NoError(t, err)
	require.False(t, passed)
}

func TestEvaluateLastActiveWithin(t *testing.T) {
	now := time.Now()
	twoDaysAgo := now.Add(-2 * 24 * time.Hour)
	reader := &stubReader{lastActive: &twoDaysAgo}
	e := NewEvaluator(reader)

	passed, err := e.Evaluate(context.Background(), rule(RuleLastActiveWithin, map[string]any{"days": float64(7)}), "u1", now)
	require.NoError(t, err)
	require.True(t, passed)

	// A user with no recorded activity is never "recently active".
	reader.lastActive = nil
	passed, err = e.Evaluate(context.Background(), rule(RuleLastActiveWithin, map[string]any{"days": float64(7)}), "u1", now)
	require.NoError(t, err)
	require.False(t, passed)
}

func TestEvaluateActiveDays(t *testing.T) {
	now := time.Now()
	reader := &stubReader{activeDays: 10}
	e := NewEvaluator(reader)

	passed, err := e.Evaluate(context.Background(), rule(RuleActiveDays, map[string]any{
		"days":            float64(30),
		"min_active_days": float64(10),
	}), "u1", now)
	require.NoError(t, err)
	require.True(t, passed)
}

func TestParamCoercion(t *testing.T) {
	now := time.Now()
	reader := &stubReader{topups: 3}
	e := NewEvaluator(reader)

	// JSON decoding and admin clients disagree on number encodings.
	for _, raw := range []any{float64(3), int(3), int64(3), "3"} {
		passed, err := e.Evaluate(context.Background(), rule(RuleMinTopups, map[string]any{"count": raw}), "u1", now)
		require.NoError(t, err)
		require.True(t, passed)
	}
}
