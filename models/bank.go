package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Bank transaction statuses.
const (
	BankTxStatusNew         = "NEW"
	BankTxStatusMatched     = "MATCHED"
	BankTxStatusIgnored     = "IGNORED"
	BankTxStatusNeedsReview = "NEEDS_REVIEW"
)

// Match proposal statuses.
const (
	ProposalStatusSuggested = "SUGGESTED"
	ProposalStatusAccepted  = "ACCEPTED"
	ProposalStatusRejected  = "REJECTED"
	ProposalStatusExpired   = "EXPIRED"
)

// Match rule types, ordered by confidence.
const (
	RuleInvoiceNumber   = "INVOICE_NUMBER"
	RuleAmountExact     = "AMOUNT_EXACT"
	RuleIBANRecurring   = "IBAN_RECURRING"
	RuleAmountTolerance = "AMOUNT_TOLERANCE"
)

// Matched entity types.
const (
	MatchEntityOpenItem = "OPEN_ITEM"
	MatchEntityEntry    = "JOURNAL_ENTRY"
)

// Reconciliation actions written to the audit trail.
const (
	ReconActionAccept        = "ACCEPT_MATCH"
	ReconActionIgnore        = "IGNORE"
	ReconActionUnmatch       = "UNMATCH"
	ReconActionCreateExpense = "CREATE_EXPENSE"
	ReconActionImport        = "IMPORT"
)

// BankAccount is a bank account of the administration, linked to a GL account of
// control type BANK.
type BankAccount struct {
	ID          uint           `json:"id" gorm:"primaryKey"`
	TenantID    uint           `json:"tenant_id" gorm:"not null;index"`
	Name        string         `json:"name" gorm:"size:255;not null"`
	IBAN        string         `json:"iban" gorm:"size:34"`
	Currency    string         `json:"currency" gorm:"size:3;not null;default:'EUR'"`
	GLAccountID uint           `json:"gl_account_id" gorm:"not null"`
	IsActive    bool           `json:"is_active" gorm:"default:true"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"-" gorm:"index"`
}

// BankTransaction is one imported bank mutation. ImportHash deduplicates imports per
// tenant; importing the same file twice grows the table by zero rows.
type BankTransaction struct {
	ID                uint            `json:"id" gorm:"primaryKey"`
	TenantID          uint            `json:"tenant_id" gorm:"not null;index;uniqueIndex:idx_tenant_import_hash"`
	BankAccountID     uint            `json:"bank_account_id" gorm:"not null;index"`
	BookingDate       time.Time       `json:"booking_date" gorm:"not null;index"`
	Amount            decimal.Decimal `json:"amount" gorm:"type:decimal(18,2);not null"`
	Currency          string          `json:"currency" gorm:"size:3;not null;default:'EUR'"`
	CounterpartyName  string          `json:"counterparty_name,omitempty" gorm:"size:255"`
	CounterpartyIBAN  string          `json:"counterparty_iban,omitempty" gorm:"size:34;index"`
	Description       string          `json:"description" gorm:"size:500"`
	Reference         string          `json:"reference,omitempty" gorm:"size:100"`
	ImportHash        string          `json:"import_hash" gorm:"size:64;not null;uniqueIndex:idx_tenant_import_hash"`
	ImportBatchUID    string          `json:"import_batch_uid" gorm:"size:36;index"`
	Status            string          `json:"status" gorm:"size:20;not null;default:'NEW';index"`
	MatchedEntityType *string         `json:"matched_entity_type,omitempty" gorm:"size:30"`
	MatchedEntityID   *uint           `json:"matched_entity_id,omitempty"`
	PaymentEntryID    *uint           `json:"payment_entry_id,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// IsInbound reports whether money came in (credit on the bank statement).
func (t *BankTransaction) IsInbound() bool {
	return t.Amount.IsPositive()
}

// MatchProposal is an explainable, rule-based match suggestion for a bank transaction.
type MatchProposal struct {
	ID            uint             `json:"id" gorm:"primaryKey"`
	TenantID      uint             `json:"tenant_id" gorm:"not null;index"`
	BankTxID      uint             `json:"bank_tx_id" gorm:"not null;index"`
	EntityType    string           `json:"entity_type" gorm:"size:30;not null"`
	EntityID      uint             `json:"entity_id" gorm:"not null"`
	Confidence    int              `json:"confidence" gorm:"not null"`
	Reason        string           `json:"reason" gorm:"size:500"`
	MatchedAmount *decimal.Decimal `json:"matched_amount,omitempty" gorm:"type:decimal(18,2)"`
	MatchedDate   *time.Time       `json:"matched_date,omitempty"`
	RuleType      string           `json:"rule_type" gorm:"size:30;not null"`
	Status        string           `json:"status" gorm:"size:20;not null;default:'SUGGESTED';index"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// ReconciliationAction is the audit trail of accept/ignore/create/unmatch decisions.
type ReconciliationAction struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	TenantID  uint      `json:"tenant_id" gorm:"not null;index"`
	UserID    uint      `json:"user_id"`
	BankTxID  uint      `json:"bank_tx_id" gorm:"not null;index"`
	Action    string    `json:"action" gorm:"size:30;not null"`
	Payload   string    `json:"payload,omitempty" gorm:"type:text"`
	CreatedAt time.Time `json:"created_at"`
}
