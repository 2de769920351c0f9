package models

import (
	"time"

	"gorm.io/gorm"
)

// Period types.
const (
	PeriodTypeMonth   = "MONTH"
	PeriodTypeQuarter = "QUARTER"
	PeriodTypeYear    = "YEAR"
)

// Period statuses. LOCKED is terminal.
const (
	PeriodStatusOpen      = "OPEN"
	PeriodStatusReview    = "REVIEW"
	PeriodStatusFinalized = "FINALIZED"
	PeriodStatusLocked    = "LOCKED"
)

// Period audit actions.
const (
	PeriodActionReview          = "REVIEW"
	PeriodActionReopen          = "REOPEN"
	PeriodActionFinalize        = "FINALIZE"
	PeriodActionLock            = "LOCK"
	PeriodActionPostingRejected = "POSTING_REJECTED"
)

// Period is a calendar-bounded reporting window. Periods of one tenant never overlap.
type Period struct {
	ID              uint           `json:"id" gorm:"primaryKey"`
	TenantID        uint           `json:"tenant_id" gorm:"not null;index"`
	Name            string         `json:"name" gorm:"size:50;not null"`
	PeriodType      string         `json:"period_type" gorm:"size:20;not null"`
	StartDate       time.Time      `json:"start_date" gorm:"not null;index"`
	EndDate         time.Time      `json:"end_date" gorm:"not null;index"`
	Status          string         `json:"status" gorm:"size:20;not null;default:'OPEN';index"`
	ReviewStartedAt *time.Time     `json:"review_started_at,omitempty"`
	ReviewStartedBy *uint          `json:"review_started_by,omitempty"`
	FinalizedAt     *time.Time     `json:"finalized_at,omitempty"`
	FinalizedBy     *uint          `json:"finalized_by,omitempty"`
	LockedAt        *time.Time     `json:"locked_at,omitempty"`
	LockedBy        *uint          `json:"locked_by,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	DeletedAt       gorm.DeletedAt `json:"-" gorm:"index"`
}

// Contains reports whether the civil date falls inside the period, inclusive.
func (p *Period) Contains(date time.Time) bool {
	return !date.Before(p.StartDate) && !date.After(p.EndDate)
}

// IsClosed reports whether postings into the period are rejected by the gate.
func (p *Period) IsClosed() bool {
	return p.Status == PeriodStatusFinalized || p.Status == PeriodStatusLocked
}

// PeriodSnapshot is the immutable copy of all reports captured at finalization.
// Report payloads are canonical JSON.
type PeriodSnapshot struct {
	ID                 uint      `json:"id" gorm:"primaryKey"`
	SnapshotUID        string    `json:"snapshot_uid" gorm:"size:36;not null;uniqueIndex"`
	TenantID           uint      `json:"tenant_id" gorm:"not null;index"`
	PeriodID           uint      `json:"period_id" gorm:"not null;index"`
	BalanceSheetJSON   string    `json:"balance_sheet_json" gorm:"type:text;not null"`
	ProfitLossJSON     string    `json:"profit_loss_json" gorm:"type:text;not null"`
	TrialBalanceJSON   string    `json:"trial_balance_json" gorm:"type:text;not null"`
	ARAgingJSON        string    `json:"ar_aging_json" gorm:"type:text;not null"`
	APAgingJSON        string    `json:"ap_aging_json" gorm:"type:text;not null"`
	VatSummaryJSON     string    `json:"vat_summary_json" gorm:"type:text;not null"`
	AcknowledgedIssues string    `json:"acknowledged_issues" gorm:"type:text"`
	RedIssueCount      int       `json:"red_issue_count"`
	YellowIssueCount   int       `json:"yellow_issue_count"`
	CreatedAt          time.Time `json:"created_at"`
}

// PeriodAuditLog records every lifecycle action on a period, including rejected
// postings against closed periods.
type PeriodAuditLog struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	TenantID   uint      `json:"tenant_id" gorm:"not null;index"`
	PeriodID   *uint     `json:"period_id,omitempty" gorm:"index"`
	Action     string    `json:"action" gorm:"size:30;not null"`
	FromStatus string    `json:"from_status" gorm:"size:20"`
	ToStatus   string    `json:"to_status" gorm:"size:20"`
	UserID     uint      `json:"user_id"`
	IPAddress  string    `json:"ip_address,omitempty" gorm:"size:45"`
	UserAgent  string    `json:"user_agent,omitempty" gorm:"size:255"`
	Notes      string    `json:"notes,omitempty" gorm:"size:500"`
	SnapshotID *uint     `json:"snapshot_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
