package services

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"app-boekhouding/models"
	"app-boekhouding/utils"
)

// invoiceRefPattern extracts an invoice token from statement text, e.g.
// "factuur 2026-0042" or "INV#1001".
var invoiceRefPattern = regexp.MustCompile(`(?i)(factuur|invoice|inv)[:\s#-]*([A-Za-z0-9-]+)`)

// amountTolerance is the relative band of the AMOUNT_TOLERANCE rule.
var amountTolerance = decimal.NewFromFloat(0.01)

// BankService imports bank statements and reconciles them against the subledger:
// rule-based match proposals, accepting a match books the payment entry and
// allocates it, unmatching reverses all of that.
type BankService struct {
	db        *gorm.DB
	journal   *JournalService
	subledger *SubledgerService
	vat       *VatService
	sequences *SequenceService
	validate  *validator.Validate
}

// NewBankService creates a new bank service.
func NewBankService(db *gorm.DB) *BankService {
	return &BankService{
		db:        db,
		journal:   NewJournalService(db),
		subledger: NewSubledgerService(db),
		vat:       NewVatService(db),
		sequences: NewSequenceService(db),
		validate:  validator.New(),
	}
}

// CreateBankAccountRequest is the input for registering a bank account.
type CreateBankAccountRequest struct {
	Name        string `json:"name" validate:"required"`
	IBAN        string `json:"iban"`
	Currency    string `json:"currency"`
	GLAccountID uint   `json:"gl_account_id" validate:"required"`
}

// CreateBankAccount registers a bank account linked to a BANK control GL account.
func (s *BankService) CreateBankAccount(cc CoreContext, req *CreateBankAccountRequest) (*models.BankAccount, error) {
	if err := cc.Authorize(); err != nil {
		return nil, err
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, NewError(ErrValidationFailed, "invalid bank account request: %v", err)
	}

	var gl models.Account
	if err := s.db.Where("tenant_id = ?", cc.TenantID).First(&gl, req.GLAccountID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewError(ErrNotFound, "account %d not found", req.GLAccountID)
		}
		return nil, err
	}
	if !gl.IsControl || gl.ControlType == nil || *gl.ControlType != models.ControlTypeBank {
		return nil, NewError(ErrValidationFailed, "account %s is not a BANK control account", gl.Code)
	}

	currency := req.Currency
	if currency == "" {
		currency = "EUR"
	}
	account := &models.BankAccount{
		TenantID:    cc.TenantID,
		Name:        req.Name,
		IBAN:        req.IBAN,
		Currency:    currency,
		GLAccountID: req.GLAccountID,
		IsActive:    true,
	}
	if err := s.db.Create(account).Error; err != nil {
		return nil, fmt.Errorf("failed to create bank account: %w", err)
	}
	return account, nil
}

// TransactionImport is one statement row of an import batch.
type TransactionImport struct {
	BookingDate      time.Time       `json:"booking_date" validate:"required"`
	Amount           decimal.Decimal `json:"amount"`
	CounterpartyName string          `json:"counterparty_name"`
	CounterpartyIBAN string          `json:"counterparty_iban"`
	Description      string          `json:"description"`
	Reference        string          `json:"reference"`
}

// ImportResult summarizes an import batch.
type ImportResult struct {
	BatchUID string `json:"batch_uid"`
	Imported int    `json:"imported"`
	Skipped  int    `json:"skipped"`
}

// ImportTransactions stores statement rows, deduplicated by a content hash per
// tenant. Re-importing the same file grows the table by zero rows.
func (s *BankService) ImportTransactions(cc CoreContext, bankAccountID uint, rows []TransactionImport) (*ImportResult, error) {
	if err := cc.Authorize(); err != nil {
		return nil, err
	}

	var account models.BankAccount
	if err := s.db.Where("tenant_id = ?", cc.TenantID).First(&account, bankAccountID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewError(ErrNotFound, "bank account %d not found", bankAccountID)
		}
		return nil, err
	}

	result := &ImportResult{BatchUID: uuid.New().String()}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		for _, row := range rows {
			if row.Amount.IsZero() {
				return NewError(ErrValidationFailed, "statement rows cannot have a zero amount")
			}
			hash := importHash(cc.TenantID, row)

			var count int64
			if err := tx.Model(&models.BankTransaction{}).
				Where("tenant_id = ? AND import_hash = ?", cc.TenantID, hash).
				Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				result.Skipped++
				continue
			}

			bankTx := models.BankTransaction{
				TenantID:         cc.TenantID,
				BankAccountID:    account.ID,
				BookingDate:      utils.CivilDate(row.BookingDate),
				Amount:           utils.RoundMoney(row.Amount),
				Currency:         account.Currency,
				CounterpartyName: strings.TrimSpace(row.CounterpartyName),
				CounterpartyIBAN: strings.TrimSpace(row.CounterpartyIBAN),
				Description:      strings.TrimSpace(row.Description),
				Reference:        strings.TrimSpace(row.Reference),
				ImportHash:       hash,
				ImportBatchUID:   result.BatchUID,
				Status:           models.BankTxStatusNew,
			}
			if err := tx.Create(&bankTx).Error; err != nil {
				return fmt.Errorf("failed to store bank transaction: %w", err)
			}
			if err := s.auditTx(tx, cc, bankTx.ID, models.ReconActionImport, fmt.Sprintf("batch %s", result.BatchUID)); err != nil {
				return err
			}
			result.Imported++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	utils.BusinessEvent(cc.TenantID, "bank_account", bankAccountID, "transactions_imported").
		WithField("imported", result.Imported).
		WithField("skipped", result.Skipped).
		Info("bank import completed")
	return result, nil
}

// importHash fingerprints a statement row within a tenant.
func importHash(tenantID uint, row TransactionImport) string {
	parts := []string{
		fmt.Sprintf("%d", tenantID),
		utils.CivilDate(row.BookingDate).Format("2006-01-02"),
		row.Amount.StringFixed(2),
		strings.TrimSpace(row.Description),
		strings.TrimSpace(row.Reference),
		strings.TrimSpace(row.CounterpartyIBAN),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// GenerateProposals runs the match rules for one transaction and replaces its
// SUGGESTED proposals. Inbound money is matched against receivables, outbound
// against payables. Every proposal carries a human-readable reason.
func (s *BankService) GenerateProposals(cc CoreContext, bankTxID uint) ([]models.MatchProposal, error) {
	if err := cc.Authorize(); err != nil {
		return nil, err
	}

	var proposals []models.MatchProposal
	err := s.db.Transaction(func(tx *gorm.DB) error {
		bankTx, err := s.loadBankTxTx(tx, cc, bankTxID, false)
		if err != nil {
			return err
		}
		if bankTx.Status != models.BankTxStatusNew && bankTx.Status != models.BankTxStatusNeedsReview {
			return NewError(ErrEntryState, "bank transaction %d is %s and cannot be matched", bankTxID, bankTx.Status)
		}

		itemType := models.ItemTypeReceivable
		if !bankTx.IsInbound() {
			itemType = models.ItemTypePayable
		}
		var candidates []models.OpenItem
		if err := tx.Where("tenant_id = ? AND item_type = ? AND status IN ?",
			cc.TenantID, itemType, []string{models.OpenItemStatusOpen, models.OpenItemStatusPartial}).
			Order("due_date ASC").
			Find(&candidates).Error; err != nil {
			return fmt.Errorf("failed to load open items: %w", err)
		}

		proposals = s.buildProposals(tx, cc, bankTx, candidates)

		if err := tx.Where("tenant_id = ? AND bank_tx_id = ? AND status = ?",
			cc.TenantID, bankTxID, models.ProposalStatusSuggested).
			Delete(&models.MatchProposal{}).Error; err != nil {
			return fmt.Errorf("failed to clear stale proposals: %w", err)
		}
		if len(proposals) == 0 {
			return nil
		}
		return tx.Create(&proposals).Error
	})
	if err != nil {
		return nil, err
	}
	return proposals, nil
}

func (s *BankService) buildProposals(tx *gorm.DB, cc CoreContext, bankTx *models.BankTransaction, candidates []models.OpenItem) []models.MatchProposal {
	absAmount := bankTx.Amount.Abs()
	text := bankTx.Description + " " + bankTx.Reference
	var invoiceToken string
	if m := invoiceRefPattern.FindStringSubmatch(text); m != nil {
		invoiceToken = strings.ToUpper(m[2])
	}

	recurringParties := s.recurringPartiesTx(tx, cc, bankTx.CounterpartyIBAN)

	type key struct {
		entityID uint
		rule     string
	}
	seen := make(map[key]bool)
	var proposals []models.MatchProposal

	add := func(item models.OpenItem, rule string, confidence int, reason string) {
		k := key{entityID: item.ID, rule: rule}
		if seen[k] {
			return
		}
		seen[k] = true
		amount := decimal.Min(absAmount, item.OpenAmount)
		date := bankTx.BookingDate
		proposals = append(proposals, models.MatchProposal{
			TenantID:      cc.TenantID,
			BankTxID:      bankTx.ID,
			EntityType:    models.MatchEntityOpenItem,
			EntityID:      item.ID,
			Confidence:    confidence,
			Reason:        reason,
			MatchedAmount: &amount,
			MatchedDate:   &date,
			RuleType:      rule,
			Status:        models.ProposalStatusSuggested,
		})
	}

	for _, item := range candidates {
		if invoiceToken != "" && strings.EqualFold(item.DocumentNumber, invoiceToken) {
			add(item, models.RuleInvoiceNumber, 90,
				fmt.Sprintf("statement text references invoice %s", item.DocumentNumber))
		}
		if item.OpenAmount.Equal(absAmount) {
			add(item, models.RuleAmountExact, 80,
				fmt.Sprintf("amount %s equals the open amount of %s", absAmount.StringFixed(2), item.DocumentNumber))
		}
		if recurringParties[item.PartyID] {
			add(item, models.RuleIBANRecurring, 70,
				fmt.Sprintf("counterparty IBAN %s was previously matched to this party", bankTx.CounterpartyIBAN))
		}
		diff := item.OpenAmount.Sub(absAmount).Abs()
		if !item.OpenAmount.Equal(absAmount) && diff.LessThanOrEqual(absAmount.Mul(amountTolerance)) {
			add(item, models.RuleAmountTolerance, 60,
				fmt.Sprintf("amount %s is within 1%% of the open amount %s of %s",
					absAmount.StringFixed(2), item.OpenAmount.StringFixed(2), item.DocumentNumber))
		}
	}
	return proposals
}

// recurringPartiesTx collects the parties whose open items were previously matched
// from the same counterparty IBAN.
func (s *BankService) recurringPartiesTx(tx *gorm.DB, cc CoreContext, iban string) map[uint]bool {
	parties := make(map[uint]bool)
	if iban == "" {
		return parties
	}

	var partyIDs []uint
	err := tx.Model(&models.BankTransaction{}).
		Select("DISTINCT open_items.party_id").
		Joins("JOIN open_items ON open_items.id = bank_transactions.matched_entity_id").
		Where("bank_transactions.tenant_id = ? AND bank_transactions.counterparty_iban = ?", cc.TenantID, iban).
		Where("bank_transactions.status = ? AND bank_transactions.matched_entity_type = ?",
			models.BankTxStatusMatched, models.MatchEntityOpenItem).
		Scan(&partyIDs).Error
	if err != nil {
		utils.Logger().WithError(err).Warn("recurring IBAN lookup failed")
		return parties
	}
	for _, id := range partyIDs {
		parties[id] = true
	}
	return parties
}

// ApplyMatch accepts a proposal: books the payment entry through the ledger,
// allocates it against the open item and marks the transaction MATCHED. Sibling
// suggestions expire.
func (s *BankService) ApplyMatch(cc CoreContext, proposalID uint) (*models.BankTransaction, error) {
	if err := cc.Authorize(); err != nil {
		return nil, err
	}

	var bankTx *models.BankTransaction
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var proposal models.MatchProposal
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("tenant_id = ?", cc.TenantID).
			First(&proposal, proposalID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return NewError(ErrNotFound, "match proposal %d not found", proposalID)
			}
			return err
		}
		if proposal.Status != models.ProposalStatusSuggested {
			return NewError(ErrEntryState, "proposal %d is %s and cannot be accepted", proposalID, proposal.Status)
		}

		var err error
		bankTx, err = s.loadBankTxTx(tx, cc, proposal.BankTxID, true)
		if err != nil {
			return err
		}
		if bankTx.Status != models.BankTxStatusNew && bankTx.Status != models.BankTxStatusNeedsReview {
			return NewError(ErrEntryState, "bank transaction %d is %s and cannot be matched", bankTx.ID, bankTx.Status)
		}

		var paymentEntryID *uint
		if proposal.EntityType == models.MatchEntityOpenItem {
			entry, err := s.bookPaymentTx(tx, cc, bankTx, proposal.EntityID)
			if err != nil {
				return err
			}
			paymentEntryID = &entry.ID
		}

		now := cc.Now()
		proposal.Status = models.ProposalStatusAccepted
		proposal.UpdatedAt = now
		if err := tx.Save(&proposal).Error; err != nil {
			return fmt.Errorf("failed to accept proposal: %w", err)
		}
		if err := tx.Model(&models.MatchProposal{}).
			Where("tenant_id = ? AND bank_tx_id = ? AND id <> ? AND status = ?",
				cc.TenantID, bankTx.ID, proposal.ID, models.ProposalStatusSuggested).
			Update("status", models.ProposalStatusExpired).Error; err != nil {
			return fmt.Errorf("failed to expire sibling proposals: %w", err)
		}

		bankTx.Status = models.BankTxStatusMatched
		bankTx.MatchedEntityType = &proposal.EntityType
		bankTx.MatchedEntityID = &proposal.EntityID
		bankTx.PaymentEntryID = paymentEntryID
		if err := tx.Save(bankTx).Error; err != nil {
			return fmt.Errorf("failed to mark transaction matched: %w", err)
		}

		return s.auditTx(tx, cc, bankTx.ID, models.ReconActionAccept,
			fmt.Sprintf("proposal %d (%s, confidence %d)", proposal.ID, proposal.RuleType, proposal.Confidence))
	})
	if err != nil {
		return nil, err
	}

	utils.BusinessEvent(cc.TenantID, "bank_transaction", bankTx.ID, "match_accepted").
		Info("bank transaction matched")
	return bankTx, nil
}

// bookPaymentTx creates and posts the payment entry for an open-item match and
// allocates it. Inbound receivable money books Dr bank / Cr AR; payable outflow
// mirrors that.
func (s *BankService) bookPaymentTx(tx *gorm.DB, cc CoreContext, bankTx *models.BankTransaction, openItemID uint) (*models.JournalEntry, error) {
	var item models.OpenItem
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("tenant_id = ?", cc.TenantID).
		First(&item, openItemID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewError(ErrNotFound, "open item %d not found", openItemID)
		}
		return nil, err
	}

	var account models.BankAccount
	if err := tx.Where("tenant_id = ?", cc.TenantID).First(&account, bankTx.BankAccountID).Error; err != nil {
		return nil, fmt.Errorf("failed to load bank account: %w", err)
	}

	if item.ItemType == models.ItemTypeReceivable && !bankTx.IsInbound() {
		return nil, NewError(ErrValidationFailed, "outbound money cannot settle a receivable")
	}
	if item.ItemType == models.ItemTypePayable && bankTx.IsInbound() {
		return nil, NewError(ErrValidationFailed, "inbound money cannot settle a payable")
	}

	absAmount := bankTx.Amount.Abs()
	entryNumber, err := s.sequences.NextBankEntryNumberTx(tx, cc.TenantID, bankTx.BookingDate.Year())
	if err != nil {
		return nil, err
	}

	partyType := models.PartyTypeCustomer
	bankLine := JournalLineInput{
		AccountID:   account.GLAccountID,
		Description: bankTx.Description,
		DebitAmount: absAmount,
	}
	controlLine := JournalLineInput{
		AccountID:    item.AccountID,
		Description:  fmt.Sprintf("Payment %s", item.DocumentNumber),
		CreditAmount: absAmount,
		PartyType:    &partyType,
		PartyID:      &item.PartyID,
	}
	if item.ItemType == models.ItemTypePayable {
		partyType = models.PartyTypeSupplier
		bankLine.DebitAmount = decimal.Zero
		bankLine.CreditAmount = absAmount
		controlLine.CreditAmount = decimal.Zero
		controlLine.DebitAmount = absAmount
	}

	entry, err := s.journal.CreateEntryTx(tx, cc, &CreateEntryRequest{
		EntryDate:   bankTx.BookingDate,
		Description: fmt.Sprintf("Bank payment %s", bankTx.Description),
		Reference:   item.DocumentNumber,
		SourceType:  models.SourceTypeBank,
		SourceID:    &bankTx.ID,
		AutoPost:    true,
		Lines:       []JournalLineInput{bankLine, controlLine},
		entryNumber: entryNumber,
	})
	if err != nil {
		return nil, err
	}

	if _, err := s.subledger.AllocateTx(tx, cc, entry.ID, item.ID, absAmount, bankTx.BookingDate); err != nil {
		return nil, err
	}
	return entry, nil
}

// CreateExpenseRequest books an unmatched outbound transaction directly as an
// expense paid from the bank account.
type CreateExpenseRequest struct {
	ExpenseAccountID uint   `json:"expense_account_id" validate:"required"`
	VatCodeID        uint   `json:"vat_code_id" validate:"required"`
	PartyID          uint   `json:"party_id"`
	Description      string `json:"description" validate:"required"`
}

// CreateExpense books the transaction as Dr expense / Dr VAT receivable / Cr bank
// from the gross amount. Calling it again on the matched transaction returns the
// existing entry.
func (s *BankService) CreateExpense(cc CoreContext, bankTxID uint, req *CreateExpenseRequest) (*models.JournalEntry, error) {
	if err := cc.Authorize(); err != nil {
		return nil, err
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, NewError(ErrValidationFailed, "invalid expense request: %v", err)
	}

	var entry *models.JournalEntry
	err := s.db.Transaction(func(tx *gorm.DB) error {
		bankTx, err := s.loadBankTxTx(tx, cc, bankTxID, true)
		if err != nil {
			return err
		}
		if bankTx.Status == models.BankTxStatusMatched {
			if bankTx.PaymentEntryID == nil {
				return NewError(ErrRaceCondition, "bank transaction %d is matched without an entry", bankTxID)
			}
			var existing models.JournalEntry
			if err := tx.Preload("Lines").First(&existing, *bankTx.PaymentEntryID).Error; err != nil {
				return err
			}
			entry = &existing
			return nil
		}
		if bankTx.Status != models.BankTxStatusNew && bankTx.Status != models.BankTxStatusNeedsReview {
			return NewError(ErrEntryState, "bank transaction %d is %s", bankTxID, bankTx.Status)
		}
		if bankTx.IsInbound() {
			return NewError(ErrValidationFailed, "inbound money cannot be booked as an expense")
		}

		var account models.BankAccount
		if err := tx.Where("tenant_id = ?", cc.TenantID).First(&account, bankTx.BankAccountID).Error; err != nil {
			return fmt.Errorf("failed to load bank account: %w", err)
		}

		lines, err := s.vat.BuildPurchaseLines(tx, cc, PurchaseInput{
			PartyID:        req.PartyID,
			PayableAccount: account.GLAccountID,
			ExpenseAccount: req.ExpenseAccountID,
			VatCodeID:      req.VatCodeID,
			GrossAmount:    bankTx.Amount.Abs(),
			Description:    req.Description,
			Country:        "NL",
		})
		if err != nil {
			return err
		}

		entryNumber, err := s.sequences.NextBankEntryNumberTx(tx, cc.TenantID, bankTx.BookingDate.Year())
		if err != nil {
			return err
		}
		entry, err = s.journal.CreateEntryTx(tx, cc, &CreateEntryRequest{
			EntryDate:   bankTx.BookingDate,
			Description: req.Description,
			Reference:   bankTx.Reference,
			SourceType:  models.SourceTypeBank,
			SourceID:    &bankTx.ID,
			AutoPost:    true,
			Lines:       lines,
			entryNumber: entryNumber,
		})
		if err != nil {
			return err
		}

		entityType := models.MatchEntityEntry
		bankTx.Status = models.BankTxStatusMatched
		bankTx.MatchedEntityType = &entityType
		bankTx.MatchedEntityID = &entry.ID
		bankTx.PaymentEntryID = &entry.ID
		if err := tx.Save(bankTx).Error; err != nil {
			return fmt.Errorf("failed to mark transaction matched: %w", err)
		}

		return s.auditTx(tx, cc, bankTx.ID, models.ReconActionCreateExpense,
			fmt.Sprintf("entry %s", entry.EntryNumber))
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Ignore parks a transaction that needs no booking (internal transfers, private
// spend). Only unmatched transactions can be ignored.
func (s *BankService) Ignore(cc CoreContext, bankTxID uint, reason string) error {
	if err := cc.Authorize(); err != nil {
		return err
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		bankTx, err := s.loadBankTxTx(tx, cc, bankTxID, true)
		if err != nil {
			return err
		}
		if bankTx.Status == models.BankTxStatusIgnored {
			return nil
		}
		if bankTx.Status != models.BankTxStatusNew && bankTx.Status != models.BankTxStatusNeedsReview {
			return NewError(ErrEntryState, "bank transaction %d is %s and cannot be ignored", bankTxID, bankTx.Status)
		}
		bankTx.Status = models.BankTxStatusIgnored
		if err := tx.Save(bankTx).Error; err != nil {
			return fmt.Errorf("failed to ignore transaction: %w", err)
		}
		return s.auditTx(tx, cc, bankTx.ID, models.ReconActionIgnore, reason)
	})
}

// Unmatch undoes an accepted match: the payment entry is reversed, its allocations
// removed so the open items re-open, and the transaction returns to NEW.
func (s *BankService) Unmatch(cc CoreContext, bankTxID uint) (*models.BankTransaction, error) {
	if err := cc.Authorize(); err != nil {
		return nil, err
	}

	// One transaction covers the reversal, the allocation removal and the status
	// reset, so a failure anywhere leaves both the ledger and the match untouched.
	var bankTx models.BankTransaction
	err := s.db.Transaction(func(tx *gorm.DB) error {
		locked, err := s.loadBankTxTx(tx, cc, bankTxID, true)
		if err != nil {
			return err
		}
		if locked.Status != models.BankTxStatusMatched {
			return NewError(ErrEntryState, "bank transaction %d is %s, only matched transactions can be unmatched", bankTxID, locked.Status)
		}

		if locked.PaymentEntryID != nil {
			if _, err := s.journal.ReverseEntryTx(tx, cc, *locked.PaymentEntryID, locked.BookingDate,
				fmt.Sprintf("Unmatch bank transaction %d", locked.ID)); err != nil {
				return err
			}
			if err := s.subledger.RemoveAllocationsForPaymentTx(tx, cc, *locked.PaymentEntryID); err != nil {
				return err
			}
		}

		if err := tx.Model(&models.MatchProposal{}).
			Where("tenant_id = ? AND bank_tx_id = ? AND status = ?",
				cc.TenantID, bankTxID, models.ProposalStatusAccepted).
			Update("status", models.ProposalStatusRejected).Error; err != nil {
			return fmt.Errorf("failed to reject accepted proposal: %w", err)
		}

		locked.Status = models.BankTxStatusNew
		locked.MatchedEntityType = nil
		locked.MatchedEntityID = nil
		locked.PaymentEntryID = nil
		if err := tx.Model(&models.BankTransaction{}).
			Where("id = ?", locked.ID).
			Updates(map[string]interface{}{
				"status":              models.BankTxStatusNew,
				"matched_entity_type": nil,
				"matched_entity_id":   nil,
				"payment_entry_id":    nil,
			}).Error; err != nil {
			return fmt.Errorf("failed to reset transaction: %w", err)
		}
		bankTx = *locked

		return s.auditTx(tx, cc, bankTxID, models.ReconActionUnmatch, "")
	})
	if err != nil {
		return nil, err
	}

	utils.BusinessEvent(cc.TenantID, "bank_transaction", bankTxID, "match_undone").
		Info("bank transaction unmatched")
	return &bankTx, nil
}

// ListTransactions returns the transactions of a bank account in one status.
func (s *BankService) ListTransactions(cc CoreContext, bankAccountID uint, status string) ([]models.BankTransaction, error) {
	if err := cc.Authorize(); err != nil {
		return nil, err
	}
	query := s.db.Where("tenant_id = ? AND bank_account_id = ?", cc.TenantID, bankAccountID)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var txs []models.BankTransaction
	if err := query.Order("booking_date DESC, id DESC").Find(&txs).Error; err != nil {
		return nil, err
	}
	return txs, nil
}

func (s *BankService) loadBankTxTx(tx *gorm.DB, cc CoreContext, bankTxID uint, forUpdate bool) (*models.BankTransaction, error) {
	query := tx.Where("tenant_id = ?", cc.TenantID)
	if forUpdate {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var bankTx models.BankTransaction
	if err := query.First(&bankTx, bankTxID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewError(ErrNotFound, "bank transaction %d not found", bankTxID)
		}
		return nil, err
	}
	return &bankTx, nil
}

func (s *BankService) auditTx(tx *gorm.DB, cc CoreContext, bankTxID uint, action, payload string) error {
	record := models.ReconciliationAction{
		TenantID: cc.TenantID,
		UserID:   cc.UserID,
		BankTxID: bankTxID,
		Action:   action,
		Payload:  payload,
	}
	if err := tx.Create(&record).Error; err != nil {
		return fmt.Errorf("failed to write reconciliation action: %w", err)
	}
	return nil
}
