package account

import (
	"time"

	"gorm.io/gorm"
)

type UserStatus string

var (
	StatusActive    UserStatus = "active"
	StatusSuspended UserStatus = "suspended"
)

// User is a platform customer. Activity history lives in the activity
// service; this row only carries identity and the timestamps the offer
// engine's rules read.
type User struct {
	UserID       string         `gorm:"column:user_id;primaryKey"` // Snowflake string ID
	Phone        string         `gorm:"column:phone;uniqueIndex;not null"`
	Email        string         `gorm:"column:email;index"`
	Role         string         `gorm:"column:role;index;default:'customer'"`
	Status       UserStatus     `gorm:"column:status;not null;default:'active'"`
	LastActiveAt *time.Time     `gorm:"column:last_active_at;index"`
	CreatedAt    time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time      `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt    gorm.DeletedAt `gorm:"column:deleted_at;index"`
}

func (User) TableName() string { return "users" }
