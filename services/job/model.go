package job

import (
	"time"

	"gorm.io/datatypes"
)

type Status string

// 'pending', 'running', 'completed', 'failed'
var (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Job is the durable record behind every queued task. The queue only
// carries the job ID; payload and outcome live here so a job survives
// broker restarts and stays inspectable after completion.
type Job struct {
	JobID     string         `gorm:"column:job_id;primaryKey"` // Snowflake string ID
	Type      string         `gorm:"column:type;index;not null"`
	Status    Status         `gorm:"column:status;index;not null;default:'pending'"`
	Payload   datatypes.JSON `gorm:"column:payload"`
	Result    datatypes.JSON `gorm:"column:result"`
	Error     string         `gorm:"column:error"`
	Attempts  int64          `gorm:"column:attempts;not null;default:0"`
	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

func (Job) TableName() string { return "jobs" }
