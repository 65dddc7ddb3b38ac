package offer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"rechargehub/pkg/errutil"
	"rechargehub/services/job"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var TaskModule = fx.Module("task.offer",
	fx.Provide(NewTask),
)

// maxSummaryEntries caps the per-user breakdown stored on the job row;
// totals always cover the full batch.
const maxSummaryEntries = 50

type Task struct {
	jobs     job.Service
	engine   *RedemptionEngine
	segments *SegmentComputer
}

type TaskParams struct {
	fx.In

	Jobs     job.Service
	Engine   *RedemptionEngine
	Segments *SegmentComputer
}

func NewTask(p TaskParams) *Task {
	return &Task{
		jobs:     p.Jobs,
		engine:   p.Engine,
		segments: p.Segments,
	}
}

// EnqueueBulkRedemption records a job row and hands its ID to the
// queue. The job is inspectable from the moment this returns.
func (s *Task) EnqueueBulkRedemption(ctx context.Context, payload BulkRedemptionPayload) (*job.Job, error) {
	if payload.OfferID == "" {
		return nil, errutil.BadRequest("offer_id is required", nil)
	}
	if len(payload.UserIDs) == 0 && !payload.FromSegment {
		return nil, errutil.BadRequest("either user_ids or from_segment is required", nil)
	}
	if err := payload.ProductRef.Validate(); err != nil {
		return nil, StatusError(err)
	}

	return s.jobs.Enqueue(ctx, OfferBulkRedemption, payload, asynq.Queue("critical"))
}

func (s *Task) HandleBulkRedemptionTask(ctx context.Context, t *asynq.Task) error {
	var taskPayload job.TaskPayload
	if err := json.Unmarshal(t.Payload(), &taskPayload); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}

	zapLog := zap.L().With(
		zap.String("task_type", t.Type()),
		zap.String("job_id", taskPayload.JobID),
	)

	j, err := s.jobs.Claim(ctx, taskPayload.JobID)
	if err != nil {
		if errors.Is(err, job.ErrAlreadyClaimed) {
			// Redelivery of a job another attempt already owns.
			zapLog.Warn("skipping already claimed job")
			return nil
		}
		zapLog.Error("failed to claim job", zap.Error(err))
		return err
	}

	if j.Type != OfferBulkRedemption {
		reason := fmt.Sprintf("unexpected job type %q", j.Type)
		zapLog.Error("rejecting job", zap.String("reason", reason))
		return s.jobs.MarkFailed(ctx, j.JobID, reason)
	}

	var payload BulkRedemptionPayload
	if err := json.Unmarshal(j.Payload, &payload); err != nil {
		zapLog.Error("malformed job payload", zap.Error(err))
		return s.jobs.MarkFailed(ctx, j.JobID, fmt.Sprintf("malformed payload: %v", err))
	}

	zapLog = zapLog.With(zap.String("offer_id", payload.OfferID))
	zapLog.Info("start bulk redemption")

	targets, err := s.resolveTargets(ctx, payload)
	if err != nil {
		zapLog.Error("failed to resolve targets", zap.Error(err))
		return s.jobs.MarkFailed(ctx, j.JobID, err.Error())
	}

	summary := BulkRedemptionSummary{
		OfferID: payload.OfferID,
		Total:   len(targets),
	}

	for _, userID := range targets {
		if err := ctx.Err(); err != nil {
			return err
		}

		redemption, err := s.engine.Redeem(ctx, RedeemParams{
			OfferID:          payload.OfferID,
			UserID:           userID,
			ProductRef:       payload.ProductRef,
			BasePrice:        payload.BasePrice,
			PriceOverride:    payload.PriceOverride,
			DiscountOverride: payload.DiscountOverride,
		})

		entry := BulkRedemptionEntry{UserID: userID}
		switch {
		case err == nil:
			summary.Succeeded++
			entry.RedemptionID = redemption.RedemptionID
		case IsConfigurationError(err):
			// No later target can succeed under a broken rule set.
			zapLog.Error("aborting bulk redemption", zap.Error(err))
			return s.jobs.MarkFailed(ctx, j.JobID, err.Error())
		default:
			summary.Failed++
			entry.Reason = err.Error()
		}

		if len(summary.Entries) < maxSummaryEntries {
			summary.Entries = append(summary.Entries, entry)
		}
	}

	zapLog.Info("bulk redemption finished",
		zap.Int("total", summary.Total),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
	)
	return s.jobs.MarkCompleted(ctx, j.JobID, summary)
}

func (s *Task) resolveTargets(ctx context.Context, payload BulkRedemptionPayload) ([]string, error) {
	if len(payload.UserIDs) > 0 {
		return payload.UserIDs, nil
	}
	return s.segments.AllSegmentMemberIDs(ctx, payload.OfferID)
}
