package job

import (
	"context"
	"encoding/json"
	"errors"

	"rechargehub/pkg/errutil"
	"rechargehub/pkg/repository"
	"rechargehub/pkg/task"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrAlreadyClaimed = errors.New("job already claimed")

// TaskPayload is the only thing handed to the queue. Workers load the
// rest from the jobs table.
type TaskPayload struct {
	JobID string `json:"job_id"`
}

type Service interface {
	Enqueue(ctx context.Context, jobType string, payload any, opts ...asynq.Option) (*Job, error)
	// Claim transitions pending -> running. Exactly one caller wins;
	// the rest get ErrAlreadyClaimed.
	Claim(ctx context.Context, jobID string) (*Job, error)
	MarkCompleted(ctx context.Context, jobID string, result any) error
	MarkFailed(ctx context.Context, jobID string, reason string) error
	GetByID(ctx context.Context, jobID string) (*Job, error)
}

type ServiceParams struct {
	fx.In

	DB            *gorm.DB
	Node          *snowflake.Node
	Enqueuer      task.Enqueuer
	JobRepository repository.Repository[Job]
}

type service struct {
	ServiceParams
}

func NewService(params ServiceParams) Service {
	return &service{params}
}

func (s *service) Enqueue(ctx context.Context, jobType string, payload any, opts ...asynq.Option) (*Job, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, errutil.BadRequest("invalid job payload", err)
	}

	j := &Job{
		JobID:   s.Node.Generate().String(),
		Type:    jobType,
		Status:  StatusPending,
		Payload: raw,
	}
	if err := s.JobRepository.Create(ctx, j); err != nil {
		return nil, err
	}

	taskPayload, err := json.Marshal(TaskPayload{JobID: j.JobID})
	if err != nil {
		return nil, err
	}

	// The row exists before the task does. A worker that never sees
	// the task leaves a pending row an operator can requeue; the
	// reverse would be a task pointing at nothing.
	if _, err := s.Enqueuer.Enqueue(asynq.NewTask(jobType, taskPayload), opts...); err != nil {
		zap.L().Error("failed to enqueue job task",
			zap.String("job_id", j.JobID),
			zap.String("type", jobType),
			zap.Error(err),
		)
		return nil, err
	}

	return j, nil
}

func (s *service) Claim(ctx context.Context, jobID string) (*Job, error) {
	res := s.DB.WithContext(ctx).Model(&Job{}).
		Where("job_id = ? AND status = ?", jobID, StatusPending).
		Updates(map[string]any{
			"status":   StatusRunning,
			"attempts": gorm.Expr("attempts + ?", 1),
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		existing, err := s.GetByID(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, errutil.NotFound("job not found", nil)
		}
		return nil, ErrAlreadyClaimed
	}

	return s.GetByID(ctx, jobID)
}

func (s *service) MarkCompleted(ctx context.Context, jobID string, result any) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return s.JobRepository.Update(ctx, jobID, map[string]any{
		"status": StatusCompleted,
		"result": raw,
	})
}

func (s *service) MarkFailed(ctx context.Context, jobID string, reason string) error {
	return s.JobRepository.Update(ctx, jobID, map[string]any{
		"status": StatusFailed,
		"error":  reason,
	})
}

func (s *service) GetByID(ctx context.Context, jobID string) (*Job, error) {
	return s.JobRepository.FindOne(ctx, &Job{JobID: jobID})
}
