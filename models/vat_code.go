package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// VAT code categories.
const (
	VatCategoryStandard      = "STANDARD"
	VatCategoryReduced       = "REDUCED"
	VatCategoryZero          = "ZERO"
	VatCategoryExempt        = "EXEMPT"
	VatCategoryReverseCharge = "REVERSE_CHARGE"
	VatCategoryICP           = "ICP"
)

// VatCode is a tax code from the tenant's catalog. Rate is an exact percentage:
// 21.00 means 21%.
type VatCode struct {
	ID                uint            `json:"id" gorm:"primaryKey"`
	TenantID          uint            `json:"tenant_id" gorm:"not null;index;uniqueIndex:idx_tenant_vat_code"`
	Code              string          `json:"code" gorm:"size:20;not null;uniqueIndex:idx_tenant_vat_code"`
	Description       string          `json:"description" gorm:"size:255"`
	Rate              decimal.Decimal `json:"rate" gorm:"type:decimal(7,4);not null"`
	Category          string          `json:"category" gorm:"size:20;not null"`
	IsReverseCharge   bool            `json:"is_reverse_charge" gorm:"default:false"`
	IsICP             bool            `json:"is_icp" gorm:"default:false"`
	SalesAccountID    *uint           `json:"sales_account_id,omitempty"`
	PurchaseAccountID *uint           `json:"purchase_account_id,omitempty"`
	IsActive          bool            `json:"is_active" gorm:"default:true"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
	DeletedAt         gorm.DeletedAt  `json:"-" gorm:"index"`
}
