package services

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"app-boekhouding/config"
	"app-boekhouding/models"
)

// SequenceService hands out strictly monotonic per-tenant numbers. The counter row
// is locked FOR UPDATE and incremented inside the caller's transaction, so a rollback
// releases the number (a gap) and concurrent creators serialize on the row.
type SequenceService struct {
	db *gorm.DB
}

// NewSequenceService creates a new sequence service.
func NewSequenceService(db *gorm.DB) *SequenceService {
	return &SequenceService{db: db}
}

// NextTx increments and returns the named counter for the tenant within tx.
func (s *SequenceService) NextTx(tx *gorm.DB, tenantID uint, name string) (uint64, error) {
	var seq models.TenantSequence
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("tenant_id = ? AND name = ?", tenantID, name).
		First(&seq).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		seq = models.TenantSequence{TenantID: tenantID, Name: name, Value: 0}
		if err := tx.Create(&seq).Error; err != nil {
			return 0, fmt.Errorf("failed to create sequence %s: %w", name, err)
		}
	} else if err != nil {
		return 0, fmt.Errorf("failed to lock sequence %s: %w", name, err)
	}

	seq.Value++
	if err := tx.Model(&models.TenantSequence{}).
		Where("id = ?", seq.ID).
		Update("value", seq.Value).Error; err != nil {
		return 0, fmt.Errorf("failed to advance sequence %s: %w", name, err)
	}
	return seq.Value, nil
}

// NextJournalNumberTx returns the next JE-NNNNNN entry number for the tenant.
func (s *SequenceService) NextJournalNumberTx(tx *gorm.DB, tenantID uint) (string, error) {
	n, err := s.NextTx(tx, tenantID, models.SequenceJournal)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(config.JournalEntryNumberFormat, n), nil
}

// NextBankEntryNumberTx returns the next BNK-YYYY-NNNNN number for bank-originated
// payment entries.
func (s *SequenceService) NextBankEntryNumberTx(tx *gorm.DB, tenantID uint, year int) (string, error) {
	n, err := s.NextTx(tx, tenantID, models.SequenceBank)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(config.BankEntryNumberFormat, year, n), nil
}
