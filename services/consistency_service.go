package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"app-boekhouding/models"
	"app-boekhouding/utils"
)

// ReconciliationTolerance is the maximum accepted drift between a control account
// and its subledger, and between posted depreciation and asset totals.
var ReconciliationTolerance = decimal.NewFromFloat(0.01)

// minValidationInterval throttles full runs per tenant; callers inside the window
// get the last completed run back instead of a fresh one.
const minValidationInterval = time.Minute

// ConsistencyService runs the full validation for a tenant. Runs are idempotent:
// findings are merged into the stored unresolved issues by identity, so two runs
// without intervening mutations produce the same rows with the same ids.
type ConsistencyService struct {
	db  *gorm.DB
	vat *VatService
}

// NewConsistencyService creates a new consistency service.
func NewConsistencyService(db *gorm.DB) *ConsistencyService {
	return &ConsistencyService{db: db, vat: NewVatService(db)}
}

// RunValidation executes all validators for the tenant inside one transaction.
// Partial issues roll back on failure; the run record survives as FAILED.
func (s *ConsistencyService) RunValidation(ctx context.Context, cc CoreContext) (*models.ValidationRun, error) {
	if err := cc.Authorize(); err != nil {
		return nil, err
	}

	if last, ok := s.recentCompletedRun(cc); ok {
		return last, nil
	}
	return s.runFull(ctx, cc)
}

// runFull executes the validators unconditionally. Finalization calls this directly
// so the prerequisite check never judges stale issues.
func (s *ConsistencyService) runFull(ctx context.Context, cc CoreContext) (*models.ValidationRun, error) {
	run := &models.ValidationRun{
		RunUID:      uuid.NewString(),
		TenantID:    cc.TenantID,
		Status:      models.RunStatusRunning,
		StartedAt:   cc.Now(),
		TriggeredBy: cc.UserID,
	}
	if err := s.db.Create(run).Error; err != nil {
		return nil, fmt.Errorf("failed to create validation run: %w", err)
	}

	issueCount := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		var issues []models.Issue
		for _, validator := range []func(*gorm.DB, CoreContext) ([]models.Issue, error){
			s.validateLedgerIntegrity,
			s.validateSubledgerReconciliation,
			s.validateAssets,
			s.validateVat,
		} {
			if err := ctx.Err(); err != nil {
				return err
			}
			found, err := validator(tx, cc)
			if err != nil {
				return err
			}
			issues = append(issues, found...)
		}
		for i := range issues {
			issues[i].TenantID = cc.TenantID
		}

		if err := s.reconcileIssuesTx(tx, cc, issues); err != nil {
			return err
		}
		issueCount = len(issues)
		return nil
	})

	now := cc.Now()
	if err != nil {
		message := err.Error()
		if ctx.Err() != nil {
			message = "cancelled"
		}
		s.db.Model(run).Updates(map[string]interface{}{
			"status":        models.RunStatusFailed,
			"completed_at":  now,
			"error_message": message,
		})
		run.Status = models.RunStatusFailed
		run.CompletedAt = &now
		run.ErrorMessage = message
		return run, err
	}

	if err := s.db.Model(run).Updates(map[string]interface{}{
		"status":       models.RunStatusCompleted,
		"completed_at": now,
		"issues_found": issueCount,
	}).Error; err != nil {
		return nil, fmt.Errorf("failed to complete validation run: %w", err)
	}
	run.Status = models.RunStatusCompleted
	run.CompletedAt = &now
	run.IssuesFound = issueCount

	utils.BusinessEvent(cc.TenantID, "validation_run", run.ID, "validation_completed").
		WithField("issues_found", issueCount).Info("consistency run completed")
	return run, nil
}

// reconcileIssuesTx merges a fresh finding set into the stored unresolved issues.
// Findings that persist keep their row and id, so acknowledgments made between two
// runs stay valid; findings that disappeared are deleted, new ones inserted.
func (s *ConsistencyService) reconcileIssuesTx(tx *gorm.DB, cc CoreContext, found []models.Issue) error {
	var existing []models.Issue
	if err := tx.Where("tenant_id = ? AND is_resolved = ?", cc.TenantID, false).
		Find(&existing).Error; err != nil {
		return fmt.Errorf("failed to load unresolved issues: %w", err)
	}
	byKey := make(map[string]*models.Issue, len(existing))
	for i := range existing {
		byKey[issueIdentity(&existing[i])] = &existing[i]
	}

	kept := make(map[uint]bool, len(found))
	for i := range found {
		if old, ok := byKey[issueIdentity(&found[i])]; ok {
			kept[old.ID] = true
			found[i].ID = old.ID
			if err := tx.Model(&models.Issue{}).Where("id = ?", old.ID).Updates(map[string]interface{}{
				"severity":           found[i].Severity,
				"title":              found[i].Title,
				"description":        found[i].Description,
				"amount_discrepancy": found[i].AmountDiscrepancy,
			}).Error; err != nil {
				return fmt.Errorf("failed to refresh issue %d: %w", old.ID, err)
			}
			continue
		}
		if err := tx.Create(&found[i]).Error; err != nil {
			return fmt.Errorf("failed to persist issue: %w", err)
		}
	}

	for i := range existing {
		if !kept[existing[i].ID] {
			if err := tx.Delete(&models.Issue{}, existing[i].ID).Error; err != nil {
				return fmt.Errorf("failed to discard stale issue %d: %w", existing[i].ID, err)
			}
		}
	}
	return nil
}

// issueIdentity keys an issue by its code and entity references.
func issueIdentity(issue *models.Issue) string {
	refs := [6]*uint{issue.EntryID, issue.AccountID, issue.AssetID, issue.PartyID, issue.OpenItemID, issue.DocumentID}
	key := string(issue.Code)
	for _, ref := range refs {
		if ref == nil {
			key += "|-"
		} else {
			key += fmt.Sprintf("|%d", *ref)
		}
	}
	return key
}

// ListIssues returns the tenant's unresolved issues.
func (s *ConsistencyService) ListIssues(cc CoreContext) ([]models.Issue, error) {
	if err := cc.Authorize(); err != nil {
		return nil, err
	}
	var issues []models.Issue
	err := s.db.Where("tenant_id = ? AND is_resolved = ?", cc.TenantID, false).
		Order("severity ASC, code ASC, id ASC").
		Find(&issues).Error
	return issues, err
}

// ResolveIssue marks an issue resolved; resolved issues survive later runs as history.
func (s *ConsistencyService) ResolveIssue(cc CoreContext, issueID uint) error {
	if err := cc.Authorize(); err != nil {
		return err
	}
	now := cc.Now()
	result := s.db.Model(&models.Issue{}).
		Where("tenant_id = ? AND id = ?", cc.TenantID, issueID).
		Updates(map[string]interface{}{
			"is_resolved": true,
			"resolved_at": now,
			"resolved_by": cc.UserID,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return NewError(ErrNotFound, "issue %d not found", issueID)
	}
	return nil
}

func (s *ConsistencyService) recentCompletedRun(cc CoreContext) (*models.ValidationRun, bool) {
	var last models.ValidationRun
	err := s.db.Where("tenant_id = ? AND status = ?", cc.TenantID, models.RunStatusCompleted).
		Order("started_at DESC").
		First(&last).Error
	if err != nil {
		return nil, false
	}
	if cc.Now().Sub(last.StartedAt) < minValidationInterval {
		return &last, true
	}
	return nil, false
}

// validateLedgerIntegrity flags unbalanced posted entries, orphaned lines and lines
// referencing missing accounts. All RED.
func (s *ConsistencyService) validateLedgerIntegrity(tx *gorm.DB, cc CoreContext) ([]models.Issue, error) {
	var issues []models.Issue

	var unbalanced []models.JournalEntry
	if err := tx.Where("tenant_id = ? AND status IN ? AND is_balanced = ?",
		cc.TenantID, ledgerEffectStatuses, false).
		Find(&unbalanced).Error; err != nil {
		return nil, fmt.Errorf("failed to scan for unbalanced entries: %w", err)
	}
	for _, entry := range unbalanced {
		entryID := entry.ID
		diff := entry.TotalDebit.Sub(entry.TotalCredit)
		issues = append(issues, models.Issue{
			Code:              models.IssueJournalUnbalanced,
			Severity:          models.SeverityRed,
			Title:             fmt.Sprintf("Entry %s is not balanced", entry.EntryNumber),
			Description:       fmt.Sprintf("Posted entry %s has debits %s and credits %s.", entry.EntryNumber, entry.TotalDebit.StringFixed(2), entry.TotalCredit.StringFixed(2)),
			Why:               "A posted entry whose debits and credits differ breaks double-entry bookkeeping; every report derived from the ledger is unreliable until it is fixed.",
			SuggestedAction:   "Reverse the entry and book it again with balanced lines.",
			EntryID:           &entryID,
			AmountDiscrepancy: &diff,
		})
	}

	type orphanRow struct {
		ID      uint
		EntryID uint
	}
	var orphans []orphanRow
	if err := tx.Model(&models.JournalLine{}).
		Select("journal_lines.id AS id, journal_lines.entry_id AS entry_id").
		Joins("LEFT JOIN journal_entries ON journal_entries.id = journal_lines.entry_id").
		Where("journal_entries.id IS NULL").
		Scan(&orphans).Error; err != nil {
		return nil, fmt.Errorf("failed to scan for orphan lines: %w", err)
	}
	for _, orphan := range orphans {
		entryID := orphan.EntryID
		issues = append(issues, models.Issue{
			Code:            models.IssueOrphanLine,
			Severity:        models.SeverityRed,
			Title:           fmt.Sprintf("Journal line %d has no parent entry", orphan.ID),
			Description:     fmt.Sprintf("Line %d references entry %d which does not exist.", orphan.ID, orphan.EntryID),
			Why:             "Lines without a parent entry should be impossible under the schema; their amounts are invisible to entry-level checks.",
			SuggestedAction: "Investigate how the line was created and remove it with a data correction.",
			EntryID:         &entryID,
		})
	}

	type missingRow struct {
		LineID    uint
		EntryID   uint
		AccountID uint
	}
	var missing []missingRow
	if err := tx.Model(&models.JournalLine{}).
		Select("journal_lines.id AS line_id, journal_lines.entry_id AS entry_id, journal_lines.account_id AS account_id").
		Joins("JOIN journal_entries ON journal_entries.id = journal_lines.entry_id").
		Joins("LEFT JOIN accounts ON accounts.id = journal_lines.account_id").
		Where("journal_entries.tenant_id = ? AND accounts.id IS NULL", cc.TenantID).
		Scan(&missing).Error; err != nil {
		return nil, fmt.Errorf("failed to scan for missing accounts: %w", err)
	}
	for _, row := range missing {
		entryID, accountID := row.EntryID, row.AccountID
		issues = append(issues, models.Issue{
			Code:            models.IssueMissingAccount,
			Severity:        models.SeverityRed,
			Title:           fmt.Sprintf("Journal line %d references missing account %d", row.LineID, row.AccountID),
			Description:     fmt.Sprintf("Line %d of entry %d points at account %d which does not exist.", row.LineID, row.EntryID, row.AccountID),
			Why:             "Amounts on a nonexistent account are excluded from every report, so totals silently drift.",
			SuggestedAction: "Restore the account or repost the entry on an existing account.",
			EntryID:         &entryID,
			AccountID:       &accountID,
		})
	}

	return issues, nil
}

// validateSubledgerReconciliation compares each AR/AP control account's GL balance
// against its open-item total and flags overdue items.
func (s *ConsistencyService) validateSubledgerReconciliation(tx *gorm.DB, cc CoreContext) ([]models.Issue, error) {
	var issues []models.Issue

	var controls []models.Account
	if err := tx.Where("tenant_id = ? AND is_control = ? AND control_type IN ?",
		cc.TenantID, true, []string{models.ControlTypeAR, models.ControlTypeAP}).
		Find(&controls).Error; err != nil {
		return nil, fmt.Errorf("failed to load control accounts: %w", err)
	}

	for _, account := range controls {
		type sums struct {
			Debit  decimal.Decimal
			Credit decimal.Decimal
		}
		var gl sums
		if err := tx.Model(&models.JournalLine{}).
			Select("COALESCE(SUM(journal_lines.debit_amount), 0) AS debit, COALESCE(SUM(journal_lines.credit_amount), 0) AS credit").
			Joins("JOIN journal_entries ON journal_entries.id = journal_lines.entry_id").
			Where("journal_entries.tenant_id = ? AND journal_entries.status IN ? AND journal_lines.account_id = ?",
				cc.TenantID, ledgerEffectStatuses, account.ID).
			Scan(&gl).Error; err != nil {
			return nil, fmt.Errorf("failed to aggregate control account %s: %w", account.Code, err)
		}

		glBalance := gl.Debit.Sub(gl.Credit)
		if *account.ControlType == models.ControlTypeAP {
			glBalance = gl.Credit.Sub(gl.Debit)
		}

		var subledgerTotal decimal.Decimal
		if err := tx.Model(&models.OpenItem{}).
			Where("tenant_id = ? AND account_id = ? AND status IN ?",
				cc.TenantID, account.ID, []string{models.OpenItemStatusOpen, models.OpenItemStatusPartial}).
			Select("COALESCE(SUM(open_amount), 0)").
			Scan(&subledgerTotal).Error; err != nil {
			return nil, fmt.Errorf("failed to sum open items for %s: %w", account.Code, err)
		}

		diff := glBalance.Sub(subledgerTotal)
		if diff.Abs().GreaterThan(ReconciliationTolerance) {
			code := models.IssueARReconMismatch
			if *account.ControlType == models.ControlTypeAP {
				code = models.IssueAPReconMismatch
			}
			accountID := account.ID
			issues = append(issues, models.Issue{
				Code:              code,
				Severity:          models.SeverityRed,
				Title:             fmt.Sprintf("Control account %s does not match its subledger", account.Code),
				Description:       fmt.Sprintf("GL balance is %s but open items total %s.", glBalance.StringFixed(2), subledgerTotal.StringFixed(2)),
				Why:               "The control account promises that its detail lives in the subledger; a difference means invoices or payments were booked past the open items.",
				SuggestedAction:   "Find the posting that bypassed the subledger and correct it or register the missing open item.",
				AccountID:         &accountID,
				AmountDiscrepancy: &diff,
			})
		}
	}

	today := utils.CivilDate(cc.Now())
	var overdue []models.OpenItem
	if err := tx.Where("tenant_id = ? AND status IN ? AND due_date < ?",
		cc.TenantID, []string{models.OpenItemStatusOpen, models.OpenItemStatusPartial}, today).
		Find(&overdue).Error; err != nil {
		return nil, fmt.Errorf("failed to scan for overdue items: %w", err)
	}
	for _, item := range overdue {
		days := utils.DaysBetween(item.DueDate, today)
		if days <= 0 {
			continue
		}
		severity := models.SeverityYellow
		if days > 30 {
			severity = models.SeverityRed
		}
		code := models.IssueOverdueReceivable
		noun := "receivable"
		if item.ItemType == models.ItemTypePayable {
			code = models.IssueOverduePayable
			noun = "payable"
		}
		itemID, partyID := item.ID, item.PartyID
		issues = append(issues, models.Issue{
			Code:            code,
			Severity:        severity,
			Title:           fmt.Sprintf("Open %s %d is %d days overdue", noun, item.ID, days),
			Description:     fmt.Sprintf("%s of %s was due on %s.", item.DocumentNumber, item.OpenAmount.StringFixed(2), item.DueDate.Format("2006-01-02")),
			Why:             fmt.Sprintf("An overdue %s ties up working capital and gets harder to collect or settle the longer it stands.", noun),
			SuggestedAction: "Send a reminder, agree a payment plan, or write the item off.",
			OpenItemID:      &itemID,
			PartyID:         &partyID,
		})
	}

	return issues, nil
}

// validateAssets flags due-but-unposted depreciation and mismatches between posted
// schedule totals and the asset's accumulated depreciation.
func (s *ConsistencyService) validateAssets(tx *gorm.DB, cc CoreContext) ([]models.Issue, error) {
	var issues []models.Issue
	today := utils.CivilDate(cc.Now())

	var assets []models.FixedAsset
	if err := tx.Where("tenant_id = ?", cc.TenantID).Find(&assets).Error; err != nil {
		return nil, fmt.Errorf("failed to load assets: %w", err)
	}

	for _, asset := range assets {
		assetID := asset.ID

		if asset.Status == models.AssetStatusActive {
			var unposted int64
			if err := tx.Model(&models.DepreciationSchedule{}).
				Where("asset_id = ? AND is_posted = ? AND period_date <= ?", asset.ID, false, today).
				Count(&unposted).Error; err != nil {
				return nil, fmt.Errorf("failed to count unposted schedules: %w", err)
			}
			if unposted > 0 {
				issues = append(issues, models.Issue{
					Code:            models.IssueDepreciationNotPosted,
					Severity:        models.SeverityYellow,
					Title:           fmt.Sprintf("Asset %s has %d unposted depreciation months", asset.Code, unposted),
					Description:     fmt.Sprintf("%d schedule rows with a period date up to %s are not posted.", unposted, today.Format("2006-01-02")),
					Why:             "Until depreciation is posted, expenses are understated and the book value overstated.",
					SuggestedAction: "Post the due depreciation schedules.",
					AssetID:         &assetID,
				})
			}
		}

		var postedTotal decimal.Decimal
		if err := tx.Model(&models.DepreciationSchedule{}).
			Where("asset_id = ? AND is_posted = ?", asset.ID, true).
			Select("COALESCE(SUM(depreciation_amount), 0)").
			Scan(&postedTotal).Error; err != nil {
			return nil, fmt.Errorf("failed to sum posted schedules: %w", err)
		}
		diff := postedTotal.Sub(asset.AccumulatedDepreciation)
		if diff.Abs().GreaterThan(ReconciliationTolerance) {
			issues = append(issues, models.Issue{
				Code:              models.IssueDepreciationMismatch,
				Severity:          models.SeverityRed,
				Title:             fmt.Sprintf("Asset %s depreciation totals disagree", asset.Code),
				Description:       fmt.Sprintf("Posted schedules total %s but the asset records %s accumulated depreciation.", postedTotal.StringFixed(2), asset.AccumulatedDepreciation.StringFixed(2)),
				Why:               "The asset's book value is derived from accumulated depreciation; a drift from the posted schedules means the balance sheet is wrong.",
				SuggestedAction:   "Recompute the asset totals from the posted schedules.",
				AssetID:           &assetID,
				AmountDiscrepancy: &diff,
			})
		}
	}

	return issues, nil
}

// validateVat checks rate reconciliation on posted lines carrying both base and
// amount, and flags negative VAT outside credit notes and reversals. All YELLOW.
func (s *ConsistencyService) validateVat(tx *gorm.DB, cc CoreContext) ([]models.Issue, error) {
	var issues []models.Issue

	type vatLine struct {
		LineID     uint
		EntryID    uint
		SourceType string
		VatBase    decimal.Decimal
		VatAmount  decimal.Decimal
		Rate       decimal.Decimal
		Code       string
	}
	var lines []vatLine
	err := tx.Model(&models.JournalLine{}).
		Select("journal_lines.id AS line_id, journal_lines.entry_id AS entry_id, journal_entries.source_type AS source_type, "+
			"journal_lines.vat_base AS vat_base, journal_lines.vat_amount AS vat_amount, vat_codes.rate AS rate, vat_codes.code AS code").
		Joins("JOIN journal_entries ON journal_entries.id = journal_lines.entry_id").
		Joins("JOIN vat_codes ON vat_codes.id = journal_lines.vat_code_id").
		Where("journal_entries.tenant_id = ? AND journal_entries.status IN ?", cc.TenantID, ledgerEffectStatuses).
		Where("journal_lines.vat_base IS NOT NULL AND journal_lines.vat_amount IS NOT NULL").
		Scan(&lines).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load VAT lines: %w", err)
	}

	for _, line := range lines {
		entryID := line.EntryID
		if !s.vat.ValidateVatReconciliation(line.VatBase, line.VatAmount, line.Rate) {
			diff := line.VatAmount.Sub(utils.VatFromBase(line.VatBase, line.Rate))
			issues = append(issues, models.Issue{
				Code:              models.IssueVatRateMismatch,
				Severity:          models.SeverityYellow,
				Title:             fmt.Sprintf("VAT on line %d does not match rate %s%%", line.LineID, line.Rate.String()),
				Description:       fmt.Sprintf("Base %s at %s%% should give about %s, line carries %s.", line.VatBase.StringFixed(2), line.Rate.String(), utils.VatFromBase(line.VatBase, line.Rate).StringFixed(2), line.VatAmount.StringFixed(2)),
				Why:               "A VAT amount that disagrees with its base and rate will surface as a difference in the VAT return.",
				SuggestedAction:   "Check the invoice and correct the booking or the VAT code.",
				EntryID:           &entryID,
				AmountDiscrepancy: &diff,
			})
		}
		if line.VatAmount.IsNegative() &&
			line.SourceType != models.SourceTypeCreditNote &&
			line.SourceType != models.SourceTypeReversal {
			issues = append(issues, models.Issue{
				Code:            models.IssueVatNegative,
				Severity:        models.SeverityYellow,
				Title:           fmt.Sprintf("Negative VAT on line %d outside a credit note", line.LineID),
				Description:     fmt.Sprintf("Line %d carries VAT %s on a %s entry.", line.LineID, line.VatAmount.StringFixed(2), line.SourceType),
				Why:             "Negative VAT normally only appears on credit notes and reversals; elsewhere it usually signals a sign mistake.",
				SuggestedAction: "Verify the booking; use a credit note when reducing previously reported VAT.",
				EntryID:         &entryID,
			})
		}
	}

	return issues, nil
}
