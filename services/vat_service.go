package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"app-boekhouding/models"
	"app-boekhouding/utils"
)

// VatReconciliationTolerance is the maximum accepted drift between a VAT amount and
// base times rate, in currency units.
var VatReconciliationTolerance = decimal.NewFromFloat(0.05)

// VatService builds balanced journal line sets for the standard VAT flows and
// aggregates VAT figures for reporting. It never persists entries itself; the
// ledger core does.
type VatService struct {
	db *gorm.DB
}

// NewVatService creates a new VAT service.
func NewVatService(db *gorm.DB) *VatService {
	return &VatService{db: db}
}

// SalesInput describes a standard sale booked from the gross amount.
type SalesInput struct {
	PartyID           uint
	ReceivableAccount uint
	RevenueAccount    uint
	VatCodeID         uint
	GrossAmount       decimal.Decimal
	Description       string
	Country           string
}

// PurchaseInput describes a standard purchase booked from the gross amount.
type PurchaseInput struct {
	PartyID        uint
	PayableAccount uint // zero when paying directly from bank
	ExpenseAccount uint
	VatCodeID      uint
	GrossAmount    decimal.Decimal
	Description    string
	Country        string
}

// ReverseChargeInput describes an EU purchase where the buyer accounts for the VAT.
type ReverseChargeInput struct {
	PartyID              uint
	PayableAccount       uint
	ExpenseAccount       uint
	VatReceivableAccount uint
	VatCodeID            uint
	NetAmount            decimal.Decimal
	Description          string
	SupplierCountry      string
}

// ICPInput describes an intra-community supply at 0% with mandatory party VAT data.
type ICPInput struct {
	PartyID           uint
	PartyVatNumber    string
	Country           string
	ReceivableAccount uint
	RevenueAccount    uint
	VatCodeID         uint
	NetAmount         decimal.Decimal
	Description       string
}

func (s *VatService) loadVatCodeTx(tx *gorm.DB, tenantID, vatCodeID uint) (*models.VatCode, error) {
	var code models.VatCode
	if err := tx.Where("tenant_id = ?", tenantID).First(&code, vatCodeID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewError(ErrVatCodeUnknown, "vat code %d not found", vatCodeID)
		}
		return nil, err
	}
	return &code, nil
}

// BuildSalesLines splits the gross into base and VAT and returns the line set
// Dr receivable / Cr revenue / Cr VAT payable. The set always sums to zero.
func (s *VatService) BuildSalesLines(tx *gorm.DB, cc CoreContext, in SalesInput) ([]JournalLineInput, error) {
	code, err := s.loadVatCodeTx(tx, cc.TenantID, in.VatCodeID)
	if err != nil {
		return nil, err
	}
	if code.IsReverseCharge || code.IsICP {
		return nil, NewError(ErrValidationFailed, "vat code %s cannot be used for standard sales posting", code.Code)
	}

	base, vat := utils.SplitGross(in.GrossAmount, code.Rate)
	partyType := models.PartyTypeCustomer

	lines := []JournalLineInput{
		{
			AccountID:    in.ReceivableAccount,
			Description:  in.Description,
			DebitAmount:  in.GrossAmount,
			CreditAmount: decimal.Zero,
			PartyType:    &partyType,
			PartyID:      &in.PartyID,
		},
		{
			AccountID:    in.RevenueAccount,
			Description:  in.Description,
			DebitAmount:  decimal.Zero,
			CreditAmount: base,
			VatCodeID:    &in.VatCodeID,
			VatAmount:    &vat,
			VatBase:      &base,
			VatCountry:   in.Country,
		},
	}
	if vat.IsPositive() {
		if code.SalesAccountID == nil {
			return nil, NewError(ErrValidationFailed, "vat code %s has no sales VAT account", code.Code)
		}
		lines = append(lines, JournalLineInput{
			AccountID:    *code.SalesAccountID,
			Description:  fmt.Sprintf("VAT %s%% on %s", code.Rate.String(), in.Description),
			DebitAmount:  decimal.Zero,
			CreditAmount: vat,
		})
	}
	return lines, nil
}

// BuildPurchaseLines is the purchase mirror of BuildSalesLines: Dr expense at base,
// Dr VAT receivable, Cr payable (or the bank account for direct payments).
func (s *VatService) BuildPurchaseLines(tx *gorm.DB, cc CoreContext, in PurchaseInput) ([]JournalLineInput, error) {
	code, err := s.loadVatCodeTx(tx, cc.TenantID, in.VatCodeID)
	if err != nil {
		return nil, err
	}
	if code.IsReverseCharge || code.IsICP {
		return nil, NewError(ErrValidationFailed, "vat code %s cannot be used for standard purchase posting", code.Code)
	}

	base, vat := utils.SplitGross(in.GrossAmount, code.Rate)
	partyType := models.PartyTypeSupplier

	lines := []JournalLineInput{
		{
			AccountID:    in.ExpenseAccount,
			Description:  in.Description,
			DebitAmount:  base,
			CreditAmount: decimal.Zero,
			VatCodeID:    &in.VatCodeID,
			VatAmount:    &vat,
			VatBase:      &base,
			VatCountry:   in.Country,
		},
	}
	if vat.IsPositive() {
		if code.PurchaseAccountID == nil {
			return nil, NewError(ErrValidationFailed, "vat code %s has no purchase VAT account", code.Code)
		}
		lines = append(lines, JournalLineInput{
			AccountID:    *code.PurchaseAccountID,
			Description:  fmt.Sprintf("VAT %s%% on %s", code.Rate.String(), in.Description),
			DebitAmount:  vat,
			CreditAmount: decimal.Zero,
		})
	}
	var partyID *uint
	if in.PartyID != 0 {
		partyID = &in.PartyID
	}
	lines = append(lines, JournalLineInput{
		AccountID:    in.PayableAccount,
		Description:  in.Description,
		DebitAmount:  decimal.Zero,
		CreditAmount: in.GrossAmount,
		PartyType:    &partyType,
		PartyID:      partyID,
	})
	return lines, nil
}

// BuildReverseChargeLines books an EU purchase with no VAT invoiced. The VAT is
// computed at the code's rate and both reported and offset, so it nets to zero.
func (s *VatService) BuildReverseChargeLines(tx *gorm.DB, cc CoreContext, in ReverseChargeInput) ([]JournalLineInput, error) {
	code, err := s.loadVatCodeTx(tx, cc.TenantID, in.VatCodeID)
	if err != nil {
		return nil, err
	}
	if !code.IsReverseCharge {
		return nil, NewError(ErrValidationFailed, "vat code %s is not flagged reverse charge", code.Code)
	}
	if code.SalesAccountID == nil {
		return nil, NewError(ErrValidationFailed, "vat code %s has no VAT payable account", code.Code)
	}

	base := utils.RoundMoney(in.NetAmount)
	vat := utils.VatFromBase(base, code.Rate)
	partyType := models.PartyTypeSupplier

	return []JournalLineInput{
		{
			AccountID:       in.ExpenseAccount,
			Description:     in.Description,
			DebitAmount:     base,
			CreditAmount:    decimal.Zero,
			VatCodeID:       &in.VatCodeID,
			VatAmount:       &vat,
			VatBase:         &base,
			VatCountry:      in.SupplierCountry,
			IsReverseCharge: true,
		},
		{
			AccountID:       in.PayableAccount,
			Description:     in.Description,
			DebitAmount:     decimal.Zero,
			CreditAmount:    base,
			VatCountry:      in.SupplierCountry,
			IsReverseCharge: true,
			PartyType:       &partyType,
			PartyID:         &in.PartyID,
		},
		{
			AccountID:       in.VatReceivableAccount,
			Description:     fmt.Sprintf("Reverse charge VAT on %s", in.Description),
			DebitAmount:     vat,
			CreditAmount:    decimal.Zero,
			VatCountry:      in.SupplierCountry,
			IsReverseCharge: true,
		},
		{
			AccountID:       *code.SalesAccountID,
			Description:     fmt.Sprintf("Reverse charge VAT on %s", in.Description),
			DebitAmount:     decimal.Zero,
			CreditAmount:    vat,
			VatCountry:      in.SupplierCountry,
			IsReverseCharge: true,
		},
	}, nil
}

// BuildICPLines books an intra-community supply at net with the party's VAT number
// tagged so ICP reporting can aggregate it.
func (s *VatService) BuildICPLines(tx *gorm.DB, cc CoreContext, in ICPInput) ([]JournalLineInput, error) {
	code, err := s.loadVatCodeTx(tx, cc.TenantID, in.VatCodeID)
	if err != nil {
		return nil, err
	}
	if !code.IsICP {
		return nil, NewError(ErrValidationFailed, "vat code %s is not flagged ICP", code.Code)
	}
	if in.PartyVatNumber == "" || in.Country == "" {
		return nil, NewError(ErrValidationFailed, "ICP supply requires the party's VAT number and country")
	}

	net := utils.RoundMoney(in.NetAmount)
	zero := decimal.Zero
	partyType := models.PartyTypeCustomer

	return []JournalLineInput{
		{
			AccountID:      in.ReceivableAccount,
			Description:    in.Description,
			DebitAmount:    net,
			CreditAmount:   decimal.Zero,
			PartyType:      &partyType,
			PartyID:        &in.PartyID,
			PartyVatNumber: in.PartyVatNumber,
			VatCountry:     in.Country,
		},
		{
			AccountID:      in.RevenueAccount,
			Description:    in.Description,
			DebitAmount:    decimal.Zero,
			CreditAmount:   net,
			VatCodeID:      &in.VatCodeID,
			VatAmount:      &zero,
			VatBase:        &net,
			VatCountry:     in.Country,
			PartyVatNumber: in.PartyVatNumber,
		},
	}, nil
}

// ValidateVatReconciliation reports whether vat is within tolerance of base at the
// rate. The consistency engine uses this on posted data.
func (s *VatService) ValidateVatReconciliation(base, vat, rate decimal.Decimal) bool {
	return utils.ReconcilesWithinTolerance(base, vat, rate, VatReconciliationTolerance)
}

// VatCodeActivity is the per-code aggregation of a reporting range.
type VatCodeActivity struct {
	VatCodeID uint            `json:"vat_code_id"`
	Code      string          `json:"code"`
	Rate      decimal.Decimal `json:"rate"`
	BaseTotal decimal.Decimal `json:"base_total"`
	VatTotal  decimal.Decimal `json:"vat_total"`
}

// VatSummary feeds the finalization snapshot and the BTW submission package.
type VatSummary struct {
	StartDate     string            `json:"start_date"`
	EndDate       string            `json:"end_date"`
	VatPayable    decimal.Decimal   `json:"vat_payable"`
	VatReceivable decimal.Decimal   `json:"vat_receivable"`
	NetVat        decimal.Decimal   `json:"net_vat"`
	ByCode        []VatCodeActivity `json:"by_code"`
}

// SummaryForRangeTx aggregates VAT for a date range: payable and receivable from the
// VAT control accounts' posted lines, per-code activity from tagged lines.
func (s *VatService) SummaryForRangeTx(tx *gorm.DB, tenantID uint, start, end time.Time) (*VatSummary, error) {
	summary := &VatSummary{
		StartDate:     start.Format("2006-01-02"),
		EndDate:       end.Format("2006-01-02"),
		VatPayable:    decimal.Zero,
		VatReceivable: decimal.Zero,
	}

	type vatAccountRow struct {
		Type   string
		Debit  decimal.Decimal
		Credit decimal.Decimal
	}
	var rows []vatAccountRow
	err := tx.Model(&models.JournalLine{}).
		Select("accounts.type AS type, COALESCE(SUM(journal_lines.debit_amount), 0) AS debit, COALESCE(SUM(journal_lines.credit_amount), 0) AS credit").
		Joins("JOIN journal_entries ON journal_entries.id = journal_lines.entry_id").
		Joins("JOIN accounts ON accounts.id = journal_lines.account_id").
		Where("journal_entries.tenant_id = ? AND journal_entries.status IN ?", tenantID, ledgerEffectStatuses).
		Where("journal_entries.entry_date >= ? AND journal_entries.entry_date <= ?", start, end).
		Where("accounts.is_control = ? AND accounts.control_type = ?", true, models.ControlTypeVAT).
		Group("accounts.type").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate VAT control accounts: %w", err)
	}
	for _, row := range rows {
		switch row.Type {
		case models.AccountTypeLiability:
			summary.VatPayable = summary.VatPayable.Add(row.Credit.Sub(row.Debit))
		case models.AccountTypeAsset:
			summary.VatReceivable = summary.VatReceivable.Add(row.Debit.Sub(row.Credit))
		}
	}
	summary.NetVat = summary.VatPayable.Sub(summary.VatReceivable)

	type codeRow struct {
		VatCodeID uint
		Code      string
		Rate      decimal.Decimal
		BaseTotal decimal.Decimal
		VatTotal  decimal.Decimal
	}
	var codeRows []codeRow
	err = tx.Model(&models.JournalLine{}).
		Select("vat_codes.id AS vat_code_id, vat_codes.code AS code, vat_codes.rate AS rate, "+
			"COALESCE(SUM(journal_lines.vat_base), 0) AS base_total, COALESCE(SUM(journal_lines.vat_amount), 0) AS vat_total").
		Joins("JOIN journal_entries ON journal_entries.id = journal_lines.entry_id").
		Joins("JOIN vat_codes ON vat_codes.id = journal_lines.vat_code_id").
		Where("journal_entries.tenant_id = ? AND journal_entries.status IN ?", tenantID, ledgerEffectStatuses).
		Where("journal_entries.entry_date >= ? AND journal_entries.entry_date <= ?", start, end).
		Where("journal_lines.vat_code_id IS NOT NULL").
		Group("vat_codes.id, vat_codes.code, vat_codes.rate").
		Order("vat_codes.code").
		Scan(&codeRows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate VAT codes: %w", err)
	}
	for _, row := range codeRows {
		summary.ByCode = append(summary.ByCode, VatCodeActivity{
			VatCodeID: row.VatCodeID,
			Code:      row.Code,
			Rate:      row.Rate,
			BaseTotal: row.BaseTotal,
			VatTotal:  row.VatTotal,
		})
	}
	return summary, nil
}

// ICPEntry is one customer row of the ICP declaration.
type ICPEntry struct {
	PartyVatNumber string          `json:"customer_vat_number"`
	CountryCode    string          `json:"country_code"`
	TaxableBase    decimal.Decimal `json:"taxable_base"`
}

// ICPEntriesForRangeTx aggregates ICP-tagged posted lines per customer VAT number.
func (s *VatService) ICPEntriesForRangeTx(tx *gorm.DB, tenantID uint, start, end time.Time) ([]ICPEntry, error) {
	type row struct {
		PartyVatNumber string
		CountryCode    string
		TaxableBase    decimal.Decimal
	}
	var rows []row
	err := tx.Model(&models.JournalLine{}).
		Select("journal_lines.party_vat_number AS party_vat_number, journal_lines.vat_country AS country_code, "+
			"COALESCE(SUM(journal_lines.vat_base), 0) AS taxable_base").
		Joins("JOIN journal_entries ON journal_entries.id = journal_lines.entry_id").
		Joins("JOIN vat_codes ON vat_codes.id = journal_lines.vat_code_id").
		Where("journal_entries.tenant_id = ? AND journal_entries.status IN ?", tenantID, ledgerEffectStatuses).
		Where("journal_entries.entry_date >= ? AND journal_entries.entry_date <= ?", start, end).
		Where("vat_codes.is_icp = ? AND journal_lines.party_vat_number <> ''", true).
		Group("journal_lines.party_vat_number, journal_lines.vat_country").
		Order("journal_lines.party_vat_number").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate ICP entries: %w", err)
	}

	entries := make([]ICPEntry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, ICPEntry{
			PartyVatNumber: r.PartyVatNumber,
			CountryCode:    r.CountryCode,
			TaxableBase:    r.TaxableBase,
		})
	}
	return entries, nil
}
