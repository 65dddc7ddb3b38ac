package activity

import (
	"time"

	"rechargehub/services/catalog"
)

type TopupStatus string

// 'pending', 'completed', 'failed'
var (
	TopupPending   TopupStatus = "pending"
	TopupCompleted TopupStatus = "completed"
	TopupFailed    TopupStatus = "failed"
)

func (s TopupStatus) String() string {
	switch s {
	case TopupPending, TopupCompleted, TopupFailed:
		return string(s)
	default:
		return ""
	}
}

// TopupRequest is one purchase of an operator product through a
// supplier. Only completed rows count toward eligibility rules.
type TopupRequest struct {
	TopupID     string      `gorm:"column:topup_id;primaryKey"`
	UserID      string      `gorm:"column:user_id;index;not null"`
	ProductID   string      `gorm:"column:product_id;index;not null"`
	SupplierID  string      `gorm:"column:supplier_id;index"`
	TargetPhone string      `gorm:"column:target_phone;not null"`
	Amount      float64     `gorm:"column:amount;not null;default:0"`
	Status      TopupStatus `gorm:"column:status;index;not null;default:'pending'"`
	CreatedAt   time.Time   `gorm:"column:created_at;autoCreateTime;index"`
	UpdatedAt   time.Time   `gorm:"column:updated_at;autoUpdateTime"`

	// Relations
	Product *catalog.Product `gorm:"foreignKey:ProductID;references:ProductID"`
}

func (TopupRequest) TableName() string { return "topup_requests" }

type TransactionType string

var (
	TransactionCredit TransactionType = "credit"
	TransactionDebit  TransactionType = "debit"
)

// WalletTransaction is one movement on a user's wallet. The offer
// engine only reads these; the ledger mechanics live elsewhere.
type WalletTransaction struct {
	TransactionID string          `gorm:"column:transaction_id;primaryKey"`
	UserID        string          `gorm:"column:user_id;index;not null"`
	Type          TransactionType `gorm:"column:type;not null"`
	Amount        float64         `gorm:"column:amount;not null;default:0"`
	ReferenceID   string          `gorm:"column:reference_id;index"`
	Description   string          `gorm:"column:description"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime;index"`
}

func (WalletTransaction) TableName() string { return "wallet_transactions" }
