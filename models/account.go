package models

import (
	"time"

	"gorm.io/gorm"
)

// Account types follow the standard five-way classification.
const (
	AccountTypeAsset     = "ASSET"
	AccountTypeLiability = "LIABILITY"
	AccountTypeEquity    = "EQUITY"
	AccountTypeRevenue   = "REVENUE"
	AccountTypeExpense   = "EXPENSE"
)

// Control account types. A control account's detail lives in a subledger.
const (
	ControlTypeAR   = "AR"
	ControlTypeAP   = "AP"
	ControlTypeBank = "BANK"
	ControlTypeVAT  = "VAT"
)

// Account is one row of the chart of accounts, scoped to a tenant (administration).
type Account struct {
	ID          uint           `json:"id" gorm:"primaryKey"`
	TenantID    uint           `json:"tenant_id" gorm:"not null;index;uniqueIndex:idx_tenant_account_code"`
	Code        string         `json:"code" gorm:"size:20;not null;uniqueIndex:idx_tenant_account_code"`
	Name        string         `json:"name" gorm:"size:255;not null"`
	Type        string         `json:"type" gorm:"size:20;not null"`
	IsControl   bool           `json:"is_control" gorm:"default:false"`
	ControlType *string        `json:"control_type,omitempty" gorm:"size:10"`
	IsActive    bool           `json:"is_active" gorm:"default:true"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"-" gorm:"index"`
}

// IsDebitNormal reports whether the account increases on the debit side.
func (a *Account) IsDebitNormal() bool {
	return a.Type == AccountTypeAsset || a.Type == AccountTypeExpense
}

// IsSubledgerControl reports whether posted lines on this account must carry a party
// and emit open items.
func (a *Account) IsSubledgerControl() bool {
	if !a.IsControl || a.ControlType == nil {
		return false
	}
	return *a.ControlType == ControlTypeAR || *a.ControlType == ControlTypeAP
}
