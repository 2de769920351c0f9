package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Open item types.
const (
	ItemTypeReceivable = "RECEIVABLE"
	ItemTypePayable    = "PAYABLE"
)

// Open item statuses.
const (
	OpenItemStatusOpen       = "OPEN"
	OpenItemStatusPartial    = "PARTIAL"
	OpenItemStatusPaid       = "PAID"
	OpenItemStatusWrittenOff = "WRITTEN_OFF"
)

// OpenItem is an uncleared receivable or payable emitted by posting a journal line
// on an AR/AP control account. open_amount = original_amount - paid_amount at all times.
type OpenItem struct {
	ID             uint            `json:"id" gorm:"primaryKey"`
	TenantID       uint            `json:"tenant_id" gorm:"not null;index"`
	PartyID        uint            `json:"party_id" gorm:"not null;index"`
	EntryID        uint            `json:"entry_id" gorm:"not null;index"`
	LineID         uint            `json:"line_id" gorm:"not null"`
	AccountID      uint            `json:"account_id" gorm:"not null;index"`
	ItemType       string          `json:"item_type" gorm:"size:20;not null;index"`
	DocumentNumber string          `json:"document_number,omitempty" gorm:"size:50;index"`
	DocumentDate   time.Time       `json:"document_date" gorm:"not null"`
	DueDate        time.Time       `json:"due_date" gorm:"not null;index"`
	OriginalAmount decimal.Decimal `json:"original_amount" gorm:"type:decimal(18,2);not null"`
	PaidAmount     decimal.Decimal `json:"paid_amount" gorm:"type:decimal(18,2);not null"`
	OpenAmount     decimal.Decimal `json:"open_amount" gorm:"type:decimal(18,2);not null"`
	Currency       string          `json:"currency" gorm:"size:3;not null;default:'EUR'"`
	Status         string          `json:"status" gorm:"size:20;not null;default:'OPEN';index"`
	WriteOffReason string          `json:"write_off_reason,omitempty" gorm:"size:255"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`

	Allocations []OpenItemAllocation `json:"allocations" gorm:"foreignKey:OpenItemID"`
}

// RecalculateStatus derives the status from the paid and original amounts.
// WRITTEN_OFF is sticky: it is only set and cleared explicitly.
func (o *OpenItem) RecalculateStatus() {
	if o.Status == OpenItemStatusWrittenOff {
		return
	}
	switch {
	case o.OpenAmount.IsZero():
		o.Status = OpenItemStatusPaid
	case o.PaidAmount.IsPositive() && o.PaidAmount.LessThan(o.OriginalAmount):
		o.Status = OpenItemStatusPartial
	default:
		o.Status = OpenItemStatusOpen
	}
}

// OpenItemAllocation links a payment journal entry to the open item it settles.
type OpenItemAllocation struct {
	ID              uint            `json:"id" gorm:"primaryKey"`
	OpenItemID      uint            `json:"open_item_id" gorm:"not null;index"`
	PaymentEntryID  uint            `json:"payment_entry_id" gorm:"not null;index"`
	AllocatedAmount decimal.Decimal `json:"allocated_amount" gorm:"type:decimal(18,2);not null"`
	AllocationDate  time.Time       `json:"allocation_date" gorm:"not null"`
	CreatedAt       time.Time       `json:"created_at"`
}
