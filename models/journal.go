package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Journal entry statuses.
const (
	EntryStatusDraft    = "DRAFT"
	EntryStatusPosted   = "POSTED"
	EntryStatusReversed = "REVERSED"
)

// Journal entry source types.
const (
	SourceTypeManual       = "MANUAL"
	SourceTypeSale         = "SALE"
	SourceTypePurchase     = "PURCHASE"
	SourceTypeCreditNote   = "CREDIT_NOTE"
	SourceTypeBank         = "BANK"
	SourceTypeDepreciation = "DEPRECIATION"
	SourceTypeReversal     = "REVERSAL"
)

// Party reference types carried on journal lines and open items.
const (
	PartyTypeCustomer = "CUSTOMER"
	PartyTypeSupplier = "SUPPLIER"
)

// JournalEntry is the header of a double-entry booking. When status is POSTED the
// debit and credit totals are equal by invariant.
type JournalEntry struct {
	ID           uint            `json:"id" gorm:"primaryKey"`
	TenantID     uint            `json:"tenant_id" gorm:"not null;index;uniqueIndex:idx_tenant_entry_number"`
	EntryNumber  string          `json:"entry_number" gorm:"size:30;not null;uniqueIndex:idx_tenant_entry_number"`
	EntryDate    time.Time       `json:"entry_date" gorm:"not null;index"`
	Description  string          `json:"description" gorm:"size:500;not null"`
	Reference    string          `json:"reference" gorm:"size:100"`
	Status       string          `json:"status" gorm:"size:20;not null;default:'DRAFT';index"`
	SourceType   string          `json:"source_type" gorm:"size:30;not null;default:'MANUAL'"`
	SourceID     *uint           `json:"source_id,omitempty"`
	DocumentID   *uint           `json:"document_id,omitempty"`
	PeriodID     *uint           `json:"period_id,omitempty" gorm:"index"`
	ReversesID   *uint           `json:"reverses_id,omitempty"`
	ReversedByID *uint           `json:"reversed_by_id,omitempty"`
	TotalDebit   decimal.Decimal `json:"total_debit" gorm:"type:decimal(18,2);not null"`
	TotalCredit  decimal.Decimal `json:"total_credit" gorm:"type:decimal(18,2);not null"`
	IsBalanced   bool            `json:"is_balanced" gorm:"not null;default:false;index"`
	PostedAt     *time.Time      `json:"posted_at,omitempty"`
	PostedBy     *uint           `json:"posted_by,omitempty"`
	CreatedBy    uint            `json:"created_by"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	DeletedAt    gorm.DeletedAt  `json:"-" gorm:"index"`

	Lines []JournalLine `json:"lines" gorm:"foreignKey:EntryID"`
}

// JournalLine is one leg of a journal entry. Exactly one of DebitAmount and
// CreditAmount is non-zero.
type JournalLine struct {
	ID           uint            `json:"id" gorm:"primaryKey"`
	EntryID      uint            `json:"entry_id" gorm:"not null;index"`
	AccountID    uint            `json:"account_id" gorm:"not null;index"`
	LineNumber   int             `json:"line_number" gorm:"not null"`
	Description  string          `json:"description" gorm:"size:500"`
	DebitAmount  decimal.Decimal `json:"debit_amount" gorm:"type:decimal(18,2);not null"`
	CreditAmount decimal.Decimal `json:"credit_amount" gorm:"type:decimal(18,2);not null"`

	VatCodeID       *uint            `json:"vat_code_id,omitempty"`
	VatAmount       *decimal.Decimal `json:"vat_amount,omitempty" gorm:"type:decimal(18,2)"`
	VatBase         *decimal.Decimal `json:"vat_base,omitempty" gorm:"type:decimal(18,2)"`
	VatCountry      string           `json:"vat_country,omitempty" gorm:"size:2"`
	IsReverseCharge bool             `json:"is_reverse_charge" gorm:"default:false"`
	PartyVatNumber  string           `json:"party_vat_number,omitempty" gorm:"size:30"`

	PartyType *string `json:"party_type,omitempty" gorm:"size:20"`
	PartyID   *uint   `json:"party_id,omitempty" gorm:"index"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SignedAmount returns debit minus credit.
func (l *JournalLine) SignedAmount() decimal.Decimal {
	return l.DebitAmount.Sub(l.CreditAmount)
}
