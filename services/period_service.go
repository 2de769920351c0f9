package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"app-boekhouding/models"
	"app-boekhouding/utils"
)

// PeriodService owns the period state machine, the posting gate and finalization.
//
// The state machine:
//
//	OPEN -> REVIEW -> FINALIZED -> LOCKED (terminal)
//	OPEN -> FINALIZED
//	REVIEW -> OPEN
type PeriodService struct {
	db          *gorm.DB
	consistency *ConsistencyService
	reports     *ReportService
	vat         *VatService
}

// NewPeriodService creates a new period service.
func NewPeriodService(db *gorm.DB) *PeriodService {
	return &PeriodService{
		db:          db,
		consistency: NewConsistencyService(db),
		reports:     NewReportService(db),
		vat:         NewVatService(db),
	}
}

// CreatePeriod registers a new reporting period. Periods of one tenant must not overlap.
func (s *PeriodService) CreatePeriod(cc CoreContext, name, periodType string, startDate, endDate time.Time) (*models.Period, error) {
	if err := cc.Authorize(); err != nil {
		return nil, err
	}
	startDate, endDate = utils.CivilDate(startDate), utils.CivilDate(endDate)
	if endDate.Before(startDate) {
		return nil, NewError(ErrValidationFailed, "period end date precedes start date")
	}

	period := &models.Period{
		TenantID:   cc.TenantID,
		Name:       name,
		PeriodType: periodType,
		StartDate:  startDate,
		EndDate:    endDate,
		Status:     models.PeriodStatusOpen,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var overlapping int64
		if err := tx.Model(&models.Period{}).
			Where("tenant_id = ? AND start_date <= ? AND end_date >= ?", cc.TenantID, endDate, startDate).
			Count(&overlapping).Error; err != nil {
			return fmt.Errorf("failed to check period overlap: %w", err)
		}
		if overlapping > 0 {
			return NewError(ErrPeriodState, "period %s overlaps an existing period", name)
		}
		return tx.Create(period).Error
	})
	if err != nil {
		return nil, err
	}
	return period, nil
}

// GetPeriod loads a tenant's period by id.
func (s *PeriodService) GetPeriod(cc CoreContext, periodID uint) (*models.Period, error) {
	if err := cc.Authorize(); err != nil {
		return nil, err
	}
	var period models.Period
	if err := s.db.Where("tenant_id = ?", cc.TenantID).First(&period, periodID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewError(ErrNotFound, "period %d not found", periodID)
		}
		return nil, err
	}
	return &period, nil
}

// ResolvePeriodTx finds the tenant's period containing the date, or nil when none exists.
func (s *PeriodService) ResolvePeriodTx(tx *gorm.DB, tenantID uint, date time.Time) (*models.Period, error) {
	var period models.Period
	err := tx.Where("tenant_id = ? AND start_date <= ? AND end_date >= ?",
		tenantID, utils.CivilDate(date), utils.CivilDate(date)).
		First(&period).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve period: %w", err)
	}
	return &period, nil
}

// CheckPostingAllowedTx is the posting gate called by the ledger for every create and
// post. Dates without a period are allowed. A rejection writes a WARNING audit row
// outside the caller's transaction, since the transaction is about to roll back.
func (s *PeriodService) CheckPostingAllowedTx(tx *gorm.DB, cc CoreContext, entryDate time.Time) (*uint, error) {
	period, err := s.ResolvePeriodTx(tx, cc.TenantID, entryDate)
	if err != nil {
		return nil, err
	}
	if period == nil {
		return nil, nil
	}

	switch period.Status {
	case models.PeriodStatusOpen, models.PeriodStatusReview:
		id := period.ID
		return &id, nil
	case models.PeriodStatusFinalized:
		s.auditRejectedPosting(cc, period, entryDate)
		return nil, NewError(ErrPeriodFinalized, "period %s is finalized", period.Name)
	case models.PeriodStatusLocked:
		s.auditRejectedPosting(cc, period, entryDate)
		return nil, NewError(ErrPeriodLocked, "period %s is locked", period.Name)
	default:
		return nil, NewError(ErrPeriodState, "period %s has unknown status %s", period.Name, period.Status)
	}
}

// NextOpenPeriodTx finds the nearest OPEN or REVIEW period starting after the given
// date. Reversals of entries in finalized periods are routed here.
func (s *PeriodService) NextOpenPeriodTx(tx *gorm.DB, tenantID uint, after time.Time) (*models.Period, error) {
	var period models.Period
	err := tx.Where("tenant_id = ? AND start_date > ? AND status IN ?",
		tenantID, utils.CivilDate(after), []string{models.PeriodStatusOpen, models.PeriodStatusReview}).
		Order("start_date ASC").
		First(&period).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, NewError(ErrPeriodState, "no open period exists after %s", after.Format("2006-01-02"))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find next open period: %w", err)
	}
	return &period, nil
}

// StartReview transitions OPEN -> REVIEW.
func (s *PeriodService) StartReview(cc CoreContext, periodID uint) (*models.Period, error) {
	return s.transition(cc, periodID, models.PeriodStatusReview, models.PeriodActionReview,
		[]string{models.PeriodStatusOpen},
		func(p *models.Period, now time.Time) {
			p.ReviewStartedAt = &now
			p.ReviewStartedBy = &cc.UserID
		})
}

// Reopen transitions REVIEW -> OPEN.
func (s *PeriodService) Reopen(cc CoreContext, periodID uint) (*models.Period, error) {
	return s.transition(cc, periodID, models.PeriodStatusOpen, models.PeriodActionReopen,
		[]string{models.PeriodStatusReview},
		func(p *models.Period, now time.Time) {
			p.ReviewStartedAt = nil
			p.ReviewStartedBy = nil
		})
}

// FinalizeResult carries the snapshot written by a successful finalization.
type FinalizeResult struct {
	Period   *models.Period
	Snapshot *models.PeriodSnapshot
}

// Finalize runs the finalization prerequisites and, when they hold, captures an
// immutable snapshot of all reports as of the period end date and transitions the
// period to FINALIZED. RED issues block; YELLOW issues must be acknowledged by id.
func (s *PeriodService) Finalize(ctx context.Context, cc CoreContext, periodID uint, acknowledgedYellowIDs []uint) (*FinalizeResult, error) {
	if err := cc.Authorize(); err != nil {
		return nil, err
	}

	// Refresh the issue set before judging prerequisites.
	if _, err := s.consistency.runFull(ctx, cc); err != nil {
		return nil, fmt.Errorf("consistency run before finalization failed: %w", err)
	}

	acked := make(map[uint]bool, len(acknowledgedYellowIDs))
	for _, id := range acknowledgedYellowIDs {
		acked[id] = true
	}

	var result FinalizeResult
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var period models.Period
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("tenant_id = ?", cc.TenantID).
			First(&period, periodID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return NewError(ErrNotFound, "period %d not found", periodID)
			}
			return err
		}
		if period.Status != models.PeriodStatusOpen && period.Status != models.PeriodStatusReview {
			return NewError(ErrPeriodState, "cannot finalize period in status %s", period.Status)
		}

		issues, err := s.issuesForPeriodTx(tx, cc.TenantID, &period)
		if err != nil {
			return err
		}

		var redIDs, unackedYellowIDs []uint
		for _, issue := range issues {
			switch issue.Severity {
			case models.SeverityRed:
				redIDs = append(redIDs, issue.ID)
			case models.SeverityYellow:
				if !acked[issue.ID] {
					unackedYellowIDs = append(unackedYellowIDs, issue.ID)
				}
			}
		}
		if len(redIDs) > 0 || len(unackedYellowIDs) > 0 {
			return NewErrorWithDetails(ErrFinalizationPrerequisite, map[string]interface{}{
				"red_issue_ids":             redIDs,
				"unacknowledged_yellow_ids": unackedYellowIDs,
			}, "period %s has %d blocking and %d unacknowledged issues", period.Name, len(redIDs), len(unackedYellowIDs))
		}

		snapshot, err := s.buildSnapshotTx(tx, cc, &period, acknowledgedYellowIDs, issues)
		if err != nil {
			return err
		}
		if err := tx.Create(snapshot).Error; err != nil {
			return fmt.Errorf("failed to persist period snapshot: %w", err)
		}

		now := cc.Now()
		fromStatus := period.Status
		period.Status = models.PeriodStatusFinalized
		period.FinalizedAt = &now
		period.FinalizedBy = &cc.UserID
		if err := tx.Save(&period).Error; err != nil {
			return fmt.Errorf("failed to finalize period: %w", err)
		}

		audit := models.PeriodAuditLog{
			TenantID:   cc.TenantID,
			PeriodID:   &period.ID,
			Action:     models.PeriodActionFinalize,
			FromStatus: fromStatus,
			ToStatus:   models.PeriodStatusFinalized,
			UserID:     cc.UserID,
			IPAddress:  cc.IPAddress,
			UserAgent:  cc.UserAgent,
			SnapshotID: &snapshot.ID,
		}
		if err := tx.Create(&audit).Error; err != nil {
			return fmt.Errorf("failed to write finalization audit log: %w", err)
		}

		result.Period = &period
		result.Snapshot = snapshot
		return nil
	})
	if err != nil {
		return nil, err
	}

	utils.BusinessEvent(cc.TenantID, "period", result.Period.ID, "period_finalized").
		WithField("snapshot", result.Snapshot.SnapshotUID).Info("period finalized")
	return &result, nil
}

// Lock transitions FINALIZED -> LOCKED. Irreversible; the caller must confirm.
func (s *PeriodService) Lock(cc CoreContext, periodID uint, confirmIrreversible bool) (*models.Period, error) {
	if !confirmIrreversible {
		return nil, NewError(ErrValidationFailed, "locking a period is irreversible and must be confirmed")
	}
	return s.transition(cc, periodID, models.PeriodStatusLocked, models.PeriodActionLock,
		[]string{models.PeriodStatusFinalized},
		func(p *models.Period, now time.Time) {
			p.LockedAt = &now
			p.LockedBy = &cc.UserID
		})
}

// GetSnapshot returns the finalization snapshot for a period.
func (s *PeriodService) GetSnapshot(cc CoreContext, periodID uint) (*models.PeriodSnapshot, error) {
	if err := cc.Authorize(); err != nil {
		return nil, err
	}
	var snapshot models.PeriodSnapshot
	err := s.db.Where("tenant_id = ? AND period_id = ?", cc.TenantID, periodID).
		Order("created_at DESC").
		First(&snapshot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, NewError(ErrNotFound, "no snapshot exists for period %d", periodID)
	}
	if err != nil {
		return nil, err
	}
	return &snapshot, nil
}

func (s *PeriodService) transition(cc CoreContext, periodID uint, toStatus, action string, allowedFrom []string, mutate func(*models.Period, time.Time)) (*models.Period, error) {
	if err := cc.Authorize(); err != nil {
		return nil, err
	}

	var period models.Period
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("tenant_id = ?", cc.TenantID).
			First(&period, periodID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return NewError(ErrNotFound, "period %d not found", periodID)
			}
			return err
		}

		allowed := false
		for _, from := range allowedFrom {
			if period.Status == from {
				allowed = true
				break
			}
		}
		if !allowed {
			return NewError(ErrPeriodState, "transition %s -> %s is not permitted", period.Status, toStatus)
		}

		fromStatus := period.Status
		now := cc.Now()
		period.Status = toStatus
		mutate(&period, now)
		if err := tx.Save(&period).Error; err != nil {
			return fmt.Errorf("failed to update period status: %w", err)
		}

		audit := models.PeriodAuditLog{
			TenantID:   cc.TenantID,
			PeriodID:   &period.ID,
			Action:     action,
			FromStatus: fromStatus,
			ToStatus:   toStatus,
			UserID:     cc.UserID,
			IPAddress:  cc.IPAddress,
			UserAgent:  cc.UserAgent,
		}
		return tx.Create(&audit).Error
	})
	if err != nil {
		return nil, err
	}
	return &period, nil
}

// issuesForPeriodTx collects unresolved issues attached to entries of this period,
// plus generic issues with no entry reference.
func (s *PeriodService) issuesForPeriodTx(tx *gorm.DB, tenantID uint, period *models.Period) ([]models.Issue, error) {
	var entryIDs []uint
	if err := tx.Model(&models.JournalEntry{}).
		Where("tenant_id = ? AND entry_date >= ? AND entry_date <= ?", tenantID, period.StartDate, period.EndDate).
		Pluck("id", &entryIDs).Error; err != nil {
		return nil, fmt.Errorf("failed to list period entries: %w", err)
	}

	query := tx.Where("tenant_id = ? AND is_resolved = ?", tenantID, false)
	if len(entryIDs) > 0 {
		query = query.Where("entry_id IS NULL OR entry_id IN ?", entryIDs)
	} else {
		query = query.Where("entry_id IS NULL")
	}

	var issues []models.Issue
	if err := query.Find(&issues).Error; err != nil {
		return nil, fmt.Errorf("failed to collect period issues: %w", err)
	}
	return issues, nil
}

func (s *PeriodService) buildSnapshotTx(tx *gorm.DB, cc CoreContext, period *models.Period, ackedIDs []uint, issues []models.Issue) (*models.PeriodSnapshot, error) {
	trialBalance, err := s.reports.trialBalanceTx(tx, cc.TenantID, period.EndDate)
	if err != nil {
		return nil, err
	}
	balanceSheet, err := s.reports.balanceSheetTx(tx, cc.TenantID, period.EndDate)
	if err != nil {
		return nil, err
	}
	profitLoss, err := s.reports.profitLossTx(tx, cc.TenantID, period.StartDate, period.EndDate)
	if err != nil {
		return nil, err
	}
	arAging, err := s.reports.agingTx(tx, cc.TenantID, models.ItemTypeReceivable, period.EndDate)
	if err != nil {
		return nil, err
	}
	apAging, err := s.reports.agingTx(tx, cc.TenantID, models.ItemTypePayable, period.EndDate)
	if err != nil {
		return nil, err
	}
	vatSummary, err := s.vat.SummaryForRangeTx(tx, cc.TenantID, period.StartDate, period.EndDate)
	if err != nil {
		return nil, err
	}

	red, yellow := 0, 0
	for _, issue := range issues {
		switch issue.Severity {
		case models.SeverityRed:
			red++
		case models.SeverityYellow:
			yellow++
		}
	}

	snapshot := &models.PeriodSnapshot{
		SnapshotUID:      uuid.NewString(),
		TenantID:         cc.TenantID,
		PeriodID:         period.ID,
		RedIssueCount:    red,
		YellowIssueCount: yellow,
	}
	for _, field := range []struct {
		target *string
		value  interface{}
	}{
		{&snapshot.TrialBalanceJSON, trialBalance},
		{&snapshot.BalanceSheetJSON, balanceSheet},
		{&snapshot.ProfitLossJSON, profitLoss},
		{&snapshot.ARAgingJSON, arAging},
		{&snapshot.APAgingJSON, apAging},
		{&snapshot.VatSummaryJSON, vatSummary},
		{&snapshot.AcknowledgedIssues, ackedIDs},
	} {
		raw, err := json.Marshal(field.value)
		if err != nil {
			return nil, fmt.Errorf("failed to serialize snapshot section: %w", err)
		}
		*field.target = string(raw)
	}
	return snapshot, nil
}

func (s *PeriodService) auditRejectedPosting(cc CoreContext, period *models.Period, entryDate time.Time) {
	audit := models.PeriodAuditLog{
		TenantID: cc.TenantID,
		PeriodID: &period.ID,
		Action:   models.PeriodActionPostingRejected,
		UserID:   cc.UserID,
		Notes:    fmt.Sprintf("posting with entry date %s rejected, period is %s", entryDate.Format("2006-01-02"), period.Status),
	}
	// Written on the root connection: the caller's transaction rolls back.
	if err := s.db.Create(&audit).Error; err != nil {
		utils.Logger().WithError(err).Warn("failed to record rejected posting")
	}
	utils.BusinessEvent(cc.TenantID, "period", period.ID, "posting_rejected").
		WithField("entry_date", entryDate.Format("2006-01-02")).
		Warn("posting rejected by period gate")
}
