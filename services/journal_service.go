package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"app-boekhouding/models"
	"app-boekhouding/utils"
)

// JournalService is the ledger core: entry creation, posting, reversal and balance
// queries. Every mutation runs inside one transaction and is gated by the period
// state of the entry date.
type JournalService struct {
	db        *gorm.DB
	sequences *SequenceService
	periods   *PeriodService
	subledger *SubledgerService
	validate  *validator.Validate
}

// NewJournalService creates a new journal service.
func NewJournalService(db *gorm.DB) *JournalService {
	return &JournalService{
		db:        db,
		sequences: NewSequenceService(db),
		periods:   NewPeriodService(db),
		subledger: NewSubledgerService(db),
		validate:  validator.New(),
	}
}

// JournalLineInput is one requested line of a new entry.
type JournalLineInput struct {
	AccountID       uint             `json:"account_id" validate:"required"`
	Description     string           `json:"description"`
	DebitAmount     decimal.Decimal  `json:"debit_amount"`
	CreditAmount    decimal.Decimal  `json:"credit_amount"`
	VatCodeID       *uint            `json:"vat_code_id,omitempty"`
	VatAmount       *decimal.Decimal `json:"vat_amount,omitempty"`
	VatBase         *decimal.Decimal `json:"vat_base,omitempty"`
	VatCountry      string           `json:"vat_country,omitempty"`
	IsReverseCharge bool             `json:"is_reverse_charge"`
	PartyVatNumber  string           `json:"party_vat_number,omitempty"`
	PartyType       *string          `json:"party_type,omitempty"`
	PartyID         *uint            `json:"party_id,omitempty"`
}

// CreateEntryRequest is the input for creating a journal entry.
type CreateEntryRequest struct {
	EntryDate   time.Time          `json:"entry_date" validate:"required"`
	Description string             `json:"description" validate:"required"`
	Reference   string             `json:"reference"`
	SourceType  string             `json:"source_type"`
	SourceID    *uint              `json:"source_id,omitempty"`
	DocumentID  *uint              `json:"document_id,omitempty"`
	Lines       []JournalLineInput `json:"lines" validate:"dive"`
	AutoPost    bool               `json:"auto_post"`

	// entryNumber overrides the JE sequence; the bank service uses its own prefix.
	entryNumber string
}

// CreateEntry creates a journal entry, optionally posting it in the same transaction.
func (s *JournalService) CreateEntry(cc CoreContext, req *CreateEntryRequest) (*models.JournalEntry, error) {
	if err := cc.Authorize(); err != nil {
		return nil, err
	}

	var entry *models.JournalEntry
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		entry, err = s.CreateEntryTx(tx, cc, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// CreateEntryTx creates a journal entry inside the caller's transaction. Services
// that book through the ledger (assets, bank reconciliation) participate here.
func (s *JournalService) CreateEntryTx(tx *gorm.DB, cc CoreContext, req *CreateEntryRequest) (*models.JournalEntry, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, NewError(ErrValidationFailed, "invalid entry request: %v", err)
	}
	if len(req.Lines) == 0 {
		return nil, NewError(ErrEmptyEntry, "journal entry has no lines")
	}
	if req.SourceType == "" {
		req.SourceType = models.SourceTypeManual
	}

	totalDebit, totalCredit := decimal.Zero, decimal.Zero
	for i, line := range req.Lines {
		debitZero, creditZero := line.DebitAmount.IsZero(), line.CreditAmount.IsZero()
		if debitZero == creditZero {
			return nil, NewError(ErrValidationFailed, "line %d: exactly one of debit and credit must be non-zero", i+1)
		}
		if line.DebitAmount.IsNegative() || line.CreditAmount.IsNegative() {
			return nil, NewError(ErrValidationFailed, "line %d: amounts cannot be negative", i+1)
		}
		totalDebit = totalDebit.Add(line.DebitAmount)
		totalCredit = totalCredit.Add(line.CreditAmount)
	}
	if !totalDebit.Equal(totalCredit) {
		return nil, NewError(ErrUnbalanced, "debits %s do not equal credits %s", totalDebit.String(), totalCredit.String())
	}

	accounts, err := s.loadLineAccountsTx(tx, cc.TenantID, req.Lines)
	if err != nil {
		return nil, err
	}
	isReversal := req.SourceType == models.SourceTypeReversal
	for i, line := range req.Lines {
		account := accounts[line.AccountID]
		if !account.IsActive && !isReversal {
			return nil, NewError(ErrInactiveAccount, "line %d: account %s is inactive", i+1, account.Code)
		}
		if account.IsSubledgerControl() && line.PartyID == nil {
			return nil, NewError(ErrMissingParty, "line %d: control account %s requires a party", i+1, account.Code)
		}
	}

	entryDate := utils.CivilDate(req.EntryDate)
	periodID, err := s.periods.CheckPostingAllowedTx(tx, cc, entryDate)
	if err != nil {
		return nil, err
	}

	entryNumber := req.entryNumber
	if entryNumber == "" {
		entryNumber, err = s.sequences.NextJournalNumberTx(tx, cc.TenantID)
		if err != nil {
			return nil, err
		}
	}

	entry := &models.JournalEntry{
		TenantID:    cc.TenantID,
		EntryNumber: entryNumber,
		EntryDate:   entryDate,
		Description: req.Description,
		Reference:   req.Reference,
		Status:      models.EntryStatusDraft,
		SourceType:  req.SourceType,
		SourceID:    req.SourceID,
		DocumentID:  req.DocumentID,
		PeriodID:    periodID,
		TotalDebit:  totalDebit,
		TotalCredit: totalCredit,
		IsBalanced:  true,
		CreatedBy:   cc.UserID,
	}
	if err := tx.Create(entry).Error; err != nil {
		return nil, fmt.Errorf("failed to create journal entry: %w", err)
	}

	lines := make([]models.JournalLine, 0, len(req.Lines))
	for i, in := range req.Lines {
		lines = append(lines, models.JournalLine{
			EntryID:         entry.ID,
			AccountID:       in.AccountID,
			LineNumber:      i + 1,
			Description:     in.Description,
			DebitAmount:     in.DebitAmount,
			CreditAmount:    in.CreditAmount,
			VatCodeID:       in.VatCodeID,
			VatAmount:       in.VatAmount,
			VatBase:         in.VatBase,
			VatCountry:      in.VatCountry,
			IsReverseCharge: in.IsReverseCharge,
			PartyVatNumber:  in.PartyVatNumber,
			PartyType:       in.PartyType,
			PartyID:         in.PartyID,
		})
	}
	if err := tx.Create(&lines).Error; err != nil {
		return nil, fmt.Errorf("failed to create journal lines: %w", err)
	}
	entry.Lines = lines

	if req.AutoPost {
		if err := s.postEntryTx(tx, cc, entry); err != nil {
			return nil, err
		}
	}

	utils.BusinessEvent(cc.TenantID, "journal_entry", entry.ID, "entry_created").
		WithField("entry_number", entry.EntryNumber).Info("journal entry created")
	return entry, nil
}

// PostEntry transitions a draft entry to POSTED. Posting an already POSTED entry is
// an idempotent no-op that returns the entry unchanged.
func (s *JournalService) PostEntry(cc CoreContext, entryID uint) (*models.JournalEntry, error) {
	if err := cc.Authorize(); err != nil {
		return nil, err
	}

	var entry *models.JournalEntry
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		entry, err = s.PostEntryTx(tx, cc, entryID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// PostEntryTx posts an entry inside the caller's transaction.
func (s *JournalService) PostEntryTx(tx *gorm.DB, cc CoreContext, entryID uint) (*models.JournalEntry, error) {
	var entry models.JournalEntry
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Preload("Lines").
		Where("tenant_id = ?", cc.TenantID).
		First(&entry, entryID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewError(ErrNotFound, "journal entry %d not found", entryID)
		}
		return nil, err
	}

	if entry.Status == models.EntryStatusPosted {
		return &entry, nil
	}
	if err := s.postEntryTx(tx, cc, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *JournalService) postEntryTx(tx *gorm.DB, cc CoreContext, entry *models.JournalEntry) error {
	if entry.Status == models.EntryStatusReversed {
		return NewError(ErrEntryState, "entry %s is reversed and cannot be posted", entry.EntryNumber)
	}
	if !entry.IsBalanced || !entry.TotalDebit.Equal(entry.TotalCredit) {
		return NewError(ErrUnbalanced, "entry %s is not balanced", entry.EntryNumber)
	}

	if _, err := s.periods.CheckPostingAllowedTx(tx, cc, entry.EntryDate); err != nil {
		return err
	}

	now := cc.Now()
	entry.Status = models.EntryStatusPosted
	entry.PostedAt = &now
	entry.PostedBy = &cc.UserID
	if err := tx.Model(&models.JournalEntry{}).
		Where("id = ?", entry.ID).
		Updates(map[string]interface{}{
			"status":    models.EntryStatusPosted,
			"posted_at": now,
			"posted_by": cc.UserID,
		}).Error; err != nil {
		return fmt.Errorf("failed to post entry: %w", err)
	}

	// Reversals never open new items; they retire the ones of the reversed entry.
	if entry.SourceType != models.SourceTypeReversal {
		if err := s.subledger.CreateOpenItemsForEntryTx(tx, cc, entry); err != nil {
			return err
		}
	}

	utils.BusinessEvent(cc.TenantID, "journal_entry", entry.ID, "entry_posted").
		WithField("entry_number", entry.EntryNumber).Info("journal entry posted")
	return nil
}

// ReverseEntry books the mirror image of a posted entry and marks the original
// REVERSED. When the original's period is finalized, the reversal is routed into
// the nearest following OPEN or REVIEW period. Locked periods refuse reversal.
func (s *JournalService) ReverseEntry(cc CoreContext, entryID uint, reversalDate time.Time, description string) (*models.JournalEntry, error) {
	if err := cc.Authorize(); err != nil {
		return nil, err
	}

	var reversal *models.JournalEntry
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		reversal, err = s.ReverseEntryTx(tx, cc, entryID, reversalDate, description)
		return err
	})
	if err != nil {
		return nil, err
	}
	return reversal, nil
}

// ReverseEntryTx reverses an entry inside the caller's transaction. Bank unmatching
// participates here so the reversal and the reconciliation reset commit together.
func (s *JournalService) ReverseEntryTx(tx *gorm.DB, cc CoreContext, entryID uint, reversalDate time.Time, description string) (*models.JournalEntry, error) {
	var original models.JournalEntry
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Preload("Lines").
		Where("tenant_id = ?", cc.TenantID).
		First(&original, entryID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewError(ErrNotFound, "journal entry %d not found", entryID)
		}
		return nil, err
	}

	if original.Status != models.EntryStatusPosted {
		return nil, NewError(ErrEntryState, "only posted entries can be reversed, entry %s is %s", original.EntryNumber, original.Status)
	}
	if original.ReversedByID != nil {
		return nil, NewError(ErrEntryState, "entry %s is already reversed", original.EntryNumber)
	}

	originalPeriod, err := s.periods.ResolvePeriodTx(tx, cc.TenantID, original.EntryDate)
	if err != nil {
		return nil, err
	}
	if originalPeriod != nil && originalPeriod.Status == models.PeriodStatusLocked {
		return nil, NewError(ErrPeriodLocked, "entry %s sits in locked period %s", original.EntryNumber, originalPeriod.Name)
	}

	targetDate, err := s.resolveReversalDateTx(tx, cc.TenantID, reversalDate)
	if err != nil {
		return nil, err
	}

	if description == "" {
		description = fmt.Sprintf("Reversal of %s", original.EntryNumber)
	}

	lines := make([]JournalLineInput, 0, len(original.Lines))
	for _, line := range original.Lines {
		in := JournalLineInput{
			AccountID:       line.AccountID,
			Description:     fmt.Sprintf("Reversal: %s", line.Description),
			DebitAmount:     line.CreditAmount,
			CreditAmount:    line.DebitAmount,
			VatCodeID:       line.VatCodeID,
			VatCountry:      line.VatCountry,
			IsReverseCharge: line.IsReverseCharge,
			PartyVatNumber:  line.PartyVatNumber,
			PartyType:       line.PartyType,
			PartyID:         line.PartyID,
		}
		if line.VatAmount != nil {
			negated := line.VatAmount.Neg()
			in.VatAmount = &negated
		}
		if line.VatBase != nil {
			negated := line.VatBase.Neg()
			in.VatBase = &negated
		}
		lines = append(lines, in)
	}

	reversal, err := s.CreateEntryTx(tx, cc, &CreateEntryRequest{
		EntryDate:   targetDate,
		Description: description,
		Reference:   fmt.Sprintf("REV-%s", original.EntryNumber),
		SourceType:  models.SourceTypeReversal,
		SourceID:    &original.ID,
		Lines:       lines,
		AutoPost:    true,
	})
	if err != nil {
		return nil, err
	}

	if err := tx.Model(&models.JournalEntry{}).Where("id = ?", reversal.ID).
		Update("reverses_id", original.ID).Error; err != nil {
		return nil, fmt.Errorf("failed to link reversal: %w", err)
	}
	reversal.ReversesID = &original.ID

	if err := tx.Model(&models.JournalEntry{}).Where("id = ?", original.ID).
		Updates(map[string]interface{}{
			"status":         models.EntryStatusReversed,
			"reversed_by_id": reversal.ID,
		}).Error; err != nil {
		return nil, fmt.Errorf("failed to mark entry reversed: %w", err)
	}

	if err := s.subledger.RetireOpenItemsForEntryTx(tx, cc, original.ID, reversal.EntryNumber); err != nil {
		return nil, err
	}

	utils.BusinessEvent(cc.TenantID, "journal_entry", entryID, "entry_reversed").
		WithField("reversal", reversal.EntryNumber).Info("journal entry reversed")
	return reversal, nil
}

// resolveReversalDateTx keeps the requested date when its period accepts postings
// and otherwise routes to the start of the nearest following open period.
func (s *JournalService) resolveReversalDateTx(tx *gorm.DB, tenantID uint, requested time.Time) (time.Time, error) {
	date := utils.CivilDate(requested)
	period, err := s.periods.ResolvePeriodTx(tx, tenantID, date)
	if err != nil {
		return time.Time{}, err
	}
	if period == nil || !period.IsClosed() {
		return date, nil
	}
	next, err := s.periods.NextOpenPeriodTx(tx, tenantID, date)
	if err != nil {
		return time.Time{}, err
	}
	return next.StartDate, nil
}

// ledgerEffectStatuses are the entry statuses whose lines count toward balances.
// A REVERSED original keeps its ledger effect; the posted mirror entry cancels it,
// so the pair nets to zero instead of leaving minus the original behind.
var ledgerEffectStatuses = []string{models.EntryStatusPosted, models.EntryStatusReversed}

// AccountBalance is the posted debit/credit aggregate of one account.
type AccountBalance struct {
	AccountID uint            `json:"account_id"`
	Debit     decimal.Decimal `json:"debit"`
	Credit    decimal.Decimal `json:"credit"`
	Net       decimal.Decimal `json:"net"`
}

// Balance aggregates the lines of an account that carry ledger effect. Assets and
// expenses are debit-normal, the rest credit-normal.
func (s *JournalService) Balance(cc CoreContext, accountID uint, asOf *time.Time) (*AccountBalance, error) {
	if err := cc.Authorize(); err != nil {
		return nil, err
	}
	return s.BalanceTx(s.db, cc, accountID, asOf)
}

// BalanceTx computes the balance inside the caller's transaction.
func (s *JournalService) BalanceTx(tx *gorm.DB, cc CoreContext, accountID uint, asOf *time.Time) (*AccountBalance, error) {
	var account models.Account
	if err := tx.Where("tenant_id = ?", cc.TenantID).First(&account, accountID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewError(ErrNotFound, "account %d not found", accountID)
		}
		return nil, err
	}

	type sums struct {
		Debit  decimal.Decimal
		Credit decimal.Decimal
	}
	var result sums
	query := tx.Model(&models.JournalLine{}).
		Select("COALESCE(SUM(journal_lines.debit_amount), 0) AS debit, COALESCE(SUM(journal_lines.credit_amount), 0) AS credit").
		Joins("JOIN journal_entries ON journal_entries.id = journal_lines.entry_id").
		Where("journal_entries.tenant_id = ? AND journal_entries.status IN ? AND journal_lines.account_id = ?",
			cc.TenantID, ledgerEffectStatuses, accountID)
	if asOf != nil {
		query = query.Where("journal_entries.entry_date <= ?", utils.CivilDate(*asOf))
	}
	if err := query.Scan(&result).Error; err != nil {
		return nil, fmt.Errorf("failed to aggregate balance: %w", err)
	}

	net := result.Debit.Sub(result.Credit)
	if !account.IsDebitNormal() {
		net = result.Credit.Sub(result.Debit)
	}
	return &AccountBalance{AccountID: accountID, Debit: result.Debit, Credit: result.Credit, Net: net}, nil
}

// GetEntry loads an entry with its lines.
func (s *JournalService) GetEntry(cc CoreContext, entryID uint) (*models.JournalEntry, error) {
	if err := cc.Authorize(); err != nil {
		return nil, err
	}
	var entry models.JournalEntry
	if err := s.db.Preload("Lines").Where("tenant_id = ?", cc.TenantID).First(&entry, entryID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewError(ErrNotFound, "journal entry %d not found", entryID)
		}
		return nil, err
	}
	return &entry, nil
}

func (s *JournalService) loadLineAccountsTx(tx *gorm.DB, tenantID uint, lines []JournalLineInput) (map[uint]*models.Account, error) {
	ids := make([]uint, 0, len(lines))
	seen := make(map[uint]bool, len(lines))
	for _, line := range lines {
		if !seen[line.AccountID] {
			seen[line.AccountID] = true
			ids = append(ids, line.AccountID)
		}
	}

	var accounts []models.Account
	if err := tx.Where("tenant_id = ? AND id IN ?", tenantID, ids).Find(&accounts).Error; err != nil {
		return nil, fmt.Errorf("failed to load accounts: %w", err)
	}
	byID := make(map[uint]*models.Account, len(accounts))
	for i := range accounts {
		byID[accounts[i].ID] = &accounts[i]
	}
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			return nil, NewError(ErrNotFound, "account %d not found", id)
		}
	}
	return byID, nil
}
