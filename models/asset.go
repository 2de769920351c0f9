package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Fixed asset statuses.
const (
	AssetStatusActive           = "ACTIVE"
	AssetStatusDisposed         = "DISPOSED"
	AssetStatusFullyDepreciated = "FULLY_DEPRECIATED"
)

// Depreciation methods. Straight line is the only supported method.
const (
	DepreciationMethodStraightLine = "STRAIGHT_LINE"
)

// FixedAsset is a depreciable asset. book_value = acquisition_cost - accumulated_depreciation.
type FixedAsset struct {
	ID                      uint            `json:"id" gorm:"primaryKey"`
	TenantID                uint            `json:"tenant_id" gorm:"not null;index;uniqueIndex:idx_tenant_asset_code"`
	Code                    string          `json:"code" gorm:"size:30;not null;uniqueIndex:idx_tenant_asset_code"`
	Name                    string          `json:"name" gorm:"size:255;not null"`
	AcquisitionDate         time.Time       `json:"acquisition_date" gorm:"not null"`
	AcquisitionCost         decimal.Decimal `json:"acquisition_cost" gorm:"type:decimal(18,2);not null"`
	ResidualValue           decimal.Decimal `json:"residual_value" gorm:"type:decimal(18,2);not null"`
	UsefulLifeMonths        int             `json:"useful_life_months" gorm:"not null"`
	Method                  string          `json:"method" gorm:"size:20;not null;default:'STRAIGHT_LINE'"`
	AssetAccountID          uint            `json:"asset_account_id" gorm:"not null"`
	DepreciationAccountID   uint            `json:"depreciation_account_id" gorm:"not null"`
	ExpenseAccountID        uint            `json:"expense_account_id" gorm:"not null"`
	AccumulatedDepreciation decimal.Decimal `json:"accumulated_depreciation" gorm:"type:decimal(18,2);not null"`
	BookValue               decimal.Decimal `json:"book_value" gorm:"type:decimal(18,2);not null"`
	Status                  string          `json:"status" gorm:"size:20;not null;default:'ACTIVE';index"`
	DisposedAt              *time.Time      `json:"disposed_at,omitempty"`
	CreatedAt               time.Time       `json:"created_at"`
	UpdatedAt               time.Time       `json:"updated_at"`
	DeletedAt               gorm.DeletedAt  `json:"-" gorm:"index"`

	Schedules []DepreciationSchedule `json:"schedules" gorm:"foreignKey:AssetID"`
}

// DepreciationSchedule is one month of planned depreciation for an asset. Rows form a
// monotonic sequence over PeriodDate; the final row absorbs rounding residue so the
// posted total lands exactly on cost minus residual.
type DepreciationSchedule struct {
	ID                      uint            `json:"id" gorm:"primaryKey"`
	AssetID                 uint            `json:"asset_id" gorm:"not null;index"`
	TenantID                uint            `json:"tenant_id" gorm:"not null;index"`
	PeriodDate              time.Time       `json:"period_date" gorm:"not null;index"`
	DepreciationAmount      decimal.Decimal `json:"depreciation_amount" gorm:"type:decimal(18,2);not null"`
	AccumulatedDepreciation decimal.Decimal `json:"accumulated_depreciation" gorm:"type:decimal(18,2);not null"`
	BookValueEnd            decimal.Decimal `json:"book_value_end" gorm:"type:decimal(18,2);not null"`
	EntryID                 *uint           `json:"entry_id,omitempty"`
	IsPosted                bool            `json:"is_posted" gorm:"not null;default:false;index"`
	PostedAt                *time.Time      `json:"posted_at,omitempty"`
	CreatedAt               time.Time       `json:"created_at"`
	UpdatedAt               time.Time       `json:"updated_at"`
}
