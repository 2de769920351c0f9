package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Issue severities. RED blocks finalization, YELLOW requires acknowledgment.
const (
	SeverityRed    = "RED"
	SeverityYellow = "YELLOW"
)

// Issue codes emitted by the consistency engine.
const (
	IssueJournalUnbalanced     = "JOURNAL_UNBALANCED"
	IssueOrphanLine            = "ORPHAN_LINE"
	IssueMissingAccount        = "MISSING_ACCOUNT"
	IssueARReconMismatch       = "AR_RECON_MISMATCH"
	IssueAPReconMismatch       = "AP_RECON_MISMATCH"
	IssueOverdueReceivable     = "OVERDUE_RECEIVABLE"
	IssueOverduePayable        = "OVERDUE_PAYABLE"
	IssueDepreciationNotPosted = "DEPRECIATION_NOT_POSTED"
	IssueDepreciationMismatch  = "DEPRECIATION_MISMATCH"
	IssueVatRateMismatch       = "VAT_RATE_MISMATCH"
	IssueVatNegative           = "VAT_NEGATIVE"
)

// Validation run statuses.
const (
	RunStatusRunning   = "RUNNING"
	RunStatusCompleted = "COMPLETED"
	RunStatusFailed    = "FAILED"
)

// Issue is a finding attached to an entity. Unresolved issues are reconciled against
// the fresh findings on every consistency run; resolved ones stay as history.
type Issue struct {
	ID                uint             `json:"id" gorm:"primaryKey"`
	TenantID          uint             `json:"tenant_id" gorm:"not null;index"`
	Code              string           `json:"code" gorm:"size:40;not null;index"`
	Severity          string           `json:"severity" gorm:"size:10;not null;index"`
	Title             string           `json:"title" gorm:"size:255;not null"`
	Description       string           `json:"description" gorm:"size:1000"`
	Why               string           `json:"why" gorm:"size:1000"`
	SuggestedAction   string           `json:"suggested_action" gorm:"size:500"`
	EntryID           *uint            `json:"entry_id,omitempty" gorm:"index"`
	AccountID         *uint            `json:"account_id,omitempty"`
	AssetID           *uint            `json:"asset_id,omitempty"`
	PartyID           *uint            `json:"party_id,omitempty"`
	OpenItemID        *uint            `json:"open_item_id,omitempty"`
	DocumentID        *uint            `json:"document_id,omitempty"`
	AmountDiscrepancy *decimal.Decimal `json:"amount_discrepancy,omitempty" gorm:"type:decimal(18,2)"`
	IsResolved        bool             `json:"is_resolved" gorm:"not null;default:false;index"`
	ResolvedAt        *time.Time       `json:"resolved_at,omitempty"`
	ResolvedBy        *uint            `json:"resolved_by,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// ValidationRun tracks one execution of the consistency engine for a tenant.
type ValidationRun struct {
	ID           uint       `json:"id" gorm:"primaryKey"`
	RunUID       string     `json:"run_uid" gorm:"size:36;not null;uniqueIndex"`
	TenantID     uint       `json:"tenant_id" gorm:"not null;index"`
	Status       string     `json:"status" gorm:"size:20;not null;default:'RUNNING';index"`
	StartedAt    time.Time  `json:"started_at" gorm:"not null"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	IssuesFound  int        `json:"issues_found"`
	ErrorMessage string     `json:"error_message,omitempty" gorm:"size:1000"`
	TriggeredBy  uint       `json:"triggered_by"`
	CreatedAt    time.Time  `json:"created_at"`
}
