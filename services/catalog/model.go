package catalog

import (
	"time"

	"gorm.io/gorm"
)

// Operator is a mobile network operator whose products the platform
// resells.
type Operator struct {
	OperatorID string         `gorm:"column:operator_id;primaryKey"`
	Name       string         `gorm:"column:name;not null"`
	Code       string         `gorm:"column:code;uniqueIndex;not null"`
	IsActive   bool           `gorm:"column:is_active;default:true"`
	CreatedAt  time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time      `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt  gorm.DeletedAt `gorm:"column:deleted_at;index"`
}

func (Operator) TableName() string { return "operators" }

// Product is an operator product (data bundle or airtime denomination).
type Product struct {
	ProductID  string         `gorm:"column:product_id;primaryKey"`
	OperatorID string         `gorm:"column:operator_id;index;not null"`
	Name       string         `gorm:"column:name;not null"`
	Type       string         `gorm:"column:type;not null"` // data, airtime, bundle
	Price      float64        `gorm:"column:price;not null;default:0"`
	IsActive   bool           `gorm:"column:is_active;default:true"`
	CreatedAt  time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time      `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt  gorm.DeletedAt `gorm:"column:deleted_at;index"`

	// Relations
	Operator *Operator `gorm:"foreignKey:OperatorID;references:OperatorID"`
}

func (Product) TableName() string { return "products" }

// SupplierProduct maps an operator product to one supplier's SKU with
// the supplier's cost price.
type SupplierProduct struct {
	SupplierProductID string         `gorm:"column:supplier_product_id;primaryKey"`
	SupplierID        string         `gorm:"column:supplier_id;index;not null"`
	ProductID         string         `gorm:"column:product_id;index;not null"`
	SupplierSKU       string         `gorm:"column:supplier_sku;not null"`
	CostPrice         float64        `gorm:"column:cost_price;not null;default:0"`
	IsActive          bool           `gorm:"column:is_active;default:true"`
	CreatedAt         time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time      `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt         gorm.DeletedAt `gorm:"column:deleted_at;index"`

	// Relations
	Product *Product `gorm:"foreignKey:ProductID;references:ProductID"`
}

func (SupplierProduct) TableName() string { return "supplier_products" }
