package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"app-boekhouding/models"
	"app-boekhouding/utils"
)

// SubledgerService maintains open items and payment allocations for AR/AP control
// accounts. Open items come into existence when the ledger posts a control-account
// line; they are only ever settled, written off or retired, never deleted.
type SubledgerService struct {
	db *gorm.DB
}

// NewSubledgerService creates a new subledger service.
func NewSubledgerService(db *gorm.DB) *SubledgerService {
	return &SubledgerService{db: db}
}

// CreateOpenItemsForEntryTx emits an open item for every AR/AP control-account line
// of a freshly posted entry. AR is debit-normal, AP credit-normal; lines that reduce
// the subledger (credit notes) are skipped here and handled by allocation.
func (s *SubledgerService) CreateOpenItemsForEntryTx(tx *gorm.DB, cc CoreContext, entry *models.JournalEntry) error {
	for _, line := range entry.Lines {
		var account models.Account
		if err := tx.Where("tenant_id = ?", cc.TenantID).First(&account, line.AccountID).Error; err != nil {
			return fmt.Errorf("failed to load account %d: %w", line.AccountID, err)
		}
		if !account.IsSubledgerControl() || line.PartyID == nil {
			continue
		}

		signed := line.SignedAmount()
		itemType := models.ItemTypeReceivable
		if *account.ControlType == models.ControlTypeAP {
			signed = signed.Neg()
			itemType = models.ItemTypePayable
		}
		if !signed.IsPositive() {
			continue
		}

		var party models.Party
		if err := tx.Where("tenant_id = ?", cc.TenantID).First(&party, *line.PartyID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return NewError(ErrMissingParty, "party %d not found for control account line", *line.PartyID)
			}
			return err
		}

		item := models.OpenItem{
			TenantID:       cc.TenantID,
			PartyID:        party.ID,
			EntryID:        entry.ID,
			LineID:         line.ID,
			AccountID:      account.ID,
			ItemType:       itemType,
			DocumentNumber: entry.Reference,
			DocumentDate:   entry.EntryDate,
			DueDate:        entry.EntryDate.AddDate(0, 0, party.PaymentTermsDays),
			OriginalAmount: signed,
			PaidAmount:     decimal.Zero,
			OpenAmount:     signed,
			Currency:       "EUR",
			Status:         models.OpenItemStatusOpen,
		}
		if err := tx.Create(&item).Error; err != nil {
			return fmt.Errorf("failed to create open item: %w", err)
		}

		utils.BusinessEvent(cc.TenantID, "open_item", item.ID, "open_item_created").
			WithField("entry", entry.EntryNumber).Info("open item emitted")
	}
	return nil
}

// Allocate applies a payment entry against an open item. The applied amount is
// capped at the remaining open amount; status is recomputed from the totals.
func (s *SubledgerService) Allocate(cc CoreContext, paymentEntryID, openItemID uint, amount decimal.Decimal, date time.Time) (*models.OpenItem, error) {
	if err := cc.Authorize(); err != nil {
		return nil, err
	}
	var item *models.OpenItem
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		item, err = s.AllocateTx(tx, cc, paymentEntryID, openItemID, amount, date)
		return err
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// AllocateTx allocates inside the caller's transaction.
func (s *SubledgerService) AllocateTx(tx *gorm.DB, cc CoreContext, paymentEntryID, openItemID uint, amount decimal.Decimal, date time.Time) (*models.OpenItem, error) {
	if !amount.IsPositive() {
		return nil, NewError(ErrValidationFailed, "allocation amount must be positive")
	}

	var item models.OpenItem
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("tenant_id = ?", cc.TenantID).
		First(&item, openItemID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewError(ErrNotFound, "open item %d not found", openItemID)
		}
		return nil, err
	}
	if item.Status == models.OpenItemStatusWrittenOff {
		return nil, NewError(ErrEntryState, "open item %d is written off", openItemID)
	}

	applied := decimal.Min(amount, item.OpenAmount)
	if !applied.IsPositive() {
		return nil, NewError(ErrIdempotentNoop, "open item %d has nothing left to allocate", openItemID)
	}

	allocation := models.OpenItemAllocation{
		OpenItemID:      item.ID,
		PaymentEntryID:  paymentEntryID,
		AllocatedAmount: applied,
		AllocationDate:  utils.CivilDate(date),
	}
	if err := tx.Create(&allocation).Error; err != nil {
		return nil, fmt.Errorf("failed to create allocation: %w", err)
	}

	item.PaidAmount = item.PaidAmount.Add(applied)
	item.OpenAmount = item.OriginalAmount.Sub(item.PaidAmount)
	item.RecalculateStatus()
	if err := tx.Save(&item).Error; err != nil {
		return nil, fmt.Errorf("failed to update open item: %w", err)
	}

	utils.BusinessEvent(cc.TenantID, "open_item", item.ID, "allocation_created").
		WithField("amount", applied.StringFixed(2)).Info("payment allocated")
	return &item, nil
}

// RemoveAllocationsForPaymentTx deletes the allocations a payment entry created and
// recomputes the affected open items, re-opening fully paid ones. The unmatch path
// uses this after reversing the payment entry.
func (s *SubledgerService) RemoveAllocationsForPaymentTx(tx *gorm.DB, cc CoreContext, paymentEntryID uint) error {
	var allocations []models.OpenItemAllocation
	if err := tx.Where("payment_entry_id = ?", paymentEntryID).Find(&allocations).Error; err != nil {
		return fmt.Errorf("failed to load allocations: %w", err)
	}

	for _, allocation := range allocations {
		var item models.OpenItem
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("tenant_id = ?", cc.TenantID).
			First(&item, allocation.OpenItemID).Error; err != nil {
			return fmt.Errorf("failed to lock open item %d: %w", allocation.OpenItemID, err)
		}

		item.PaidAmount = item.PaidAmount.Sub(allocation.AllocatedAmount)
		item.OpenAmount = item.OriginalAmount.Sub(item.PaidAmount)
		item.RecalculateStatus()
		if err := tx.Save(&item).Error; err != nil {
			return fmt.Errorf("failed to update open item %d: %w", item.ID, err)
		}
		if err := tx.Delete(&models.OpenItemAllocation{}, allocation.ID).Error; err != nil {
			return fmt.Errorf("failed to delete allocation %d: %w", allocation.ID, err)
		}
	}
	return nil
}

// WriteOff marks an open item WRITTEN_OFF. The open amount stays as is so the
// ledger can later book a compensating entry.
func (s *SubledgerService) WriteOff(cc CoreContext, openItemID uint, reason string) (*models.OpenItem, error) {
	if err := cc.Authorize(); err != nil {
		return nil, err
	}

	var item models.OpenItem
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("tenant_id = ?", cc.TenantID).
			First(&item, openItemID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return NewError(ErrNotFound, "open item %d not found", openItemID)
			}
			return err
		}
		if item.Status == models.OpenItemStatusWrittenOff {
			return nil
		}
		item.Status = models.OpenItemStatusWrittenOff
		item.WriteOffReason = reason
		return tx.Save(&item).Error
	})
	if err != nil {
		return nil, err
	}

	utils.BusinessEvent(cc.TenantID, "open_item", item.ID, "open_item_written_off").
		WithField("reason", reason).Info("open item written off")
	return &item, nil
}

// RetireOpenItemsForEntryTx writes off the open items of a reversed entry so the
// subledger total keeps matching the control account, which the reversal zeroed.
func (s *SubledgerService) RetireOpenItemsForEntryTx(tx *gorm.DB, cc CoreContext, entryID uint, reversalNumber string) error {
	var items []models.OpenItem
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("tenant_id = ? AND entry_id = ? AND status IN ?",
			cc.TenantID, entryID, []string{models.OpenItemStatusOpen, models.OpenItemStatusPartial}).
		Find(&items).Error; err != nil {
		return fmt.Errorf("failed to load open items of reversed entry: %w", err)
	}
	for i := range items {
		items[i].Status = models.OpenItemStatusWrittenOff
		items[i].WriteOffReason = fmt.Sprintf("reversed by %s", reversalNumber)
		if err := tx.Save(&items[i]).Error; err != nil {
			return fmt.Errorf("failed to retire open item %d: %w", items[i].ID, err)
		}
	}
	return nil
}

// GetOpenItem loads one open item with its allocations.
func (s *SubledgerService) GetOpenItem(cc CoreContext, openItemID uint) (*models.OpenItem, error) {
	if err := cc.Authorize(); err != nil {
		return nil, err
	}
	var item models.OpenItem
	if err := s.db.Preload("Allocations").
		Where("tenant_id = ?", cc.TenantID).
		First(&item, openItemID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewError(ErrNotFound, "open item %d not found", openItemID)
		}
		return nil, err
	}
	return &item, nil
}

// ListOpenItems returns the unsettled items of one type, oldest due date first.
func (s *SubledgerService) ListOpenItems(cc CoreContext, itemType string) ([]models.OpenItem, error) {
	if err := cc.Authorize(); err != nil {
		return nil, err
	}
	var items []models.OpenItem
	err := s.db.Where("tenant_id = ? AND item_type = ? AND status IN ?",
		cc.TenantID, itemType, []string{models.OpenItemStatusOpen, models.OpenItemStatusPartial}).
		Order("due_date ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
