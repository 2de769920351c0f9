package services

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"app-boekhouding/config"
	"app-boekhouding/models"
	"app-boekhouding/utils"
)

// ReportService derives the financial reports from posted ledger data and open
// items. Reports are pure reads; the finalization snapshot reuses the same
// builders so a snapshot always equals a recomputation at the period end date.
type ReportService struct {
	db     *gorm.DB
	layout config.ReportLayout
}

// NewReportService creates a report service with the default Dutch layout.
func NewReportService(db *gorm.DB) *ReportService {
	return &ReportService{db: db, layout: config.DefaultReportLayout()}
}

// TrialBalanceRow is one account's posted totals.
type TrialBalanceRow struct {
	AccountID   uint            `json:"account_id"`
	AccountCode string          `json:"account_code"`
	AccountName string          `json:"account_name"`
	AccountType string          `json:"account_type"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	Net         decimal.Decimal `json:"net"`
}

// TrialBalance is the per-account debit/credit aggregate as of a date.
type TrialBalance struct {
	AsOf        string            `json:"as_of"`
	Rows        []TrialBalanceRow `json:"rows"`
	TotalDebit  decimal.Decimal   `json:"total_debit"`
	TotalCredit decimal.Decimal   `json:"total_credit"`
}

// TrialBalance builds the trial balance over entries with ledger effect up to asOf.
func (s *ReportService) TrialBalance(cc CoreContext, asOf time.Time) (*TrialBalance, error) {
	if err := cc.Authorize(); err != nil {
		return nil, err
	}
	return s.trialBalanceTx(s.db, cc.TenantID, asOf)
}

func (s *ReportService) trialBalanceTx(tx *gorm.DB, tenantID uint, asOf time.Time) (*TrialBalance, error) {
	type row struct {
		AccountID   uint
		AccountCode string
		AccountName string
		AccountType string
		Debit       decimal.Decimal
		Credit      decimal.Decimal
	}
	var rows []row
	err := tx.Model(&models.JournalLine{}).
		Select("accounts.id AS account_id, accounts.code AS account_code, accounts.name AS account_name, accounts.type AS account_type, "+
			"COALESCE(SUM(journal_lines.debit_amount), 0) AS debit, COALESCE(SUM(journal_lines.credit_amount), 0) AS credit").
		Joins("JOIN journal_entries ON journal_entries.id = journal_lines.entry_id").
		Joins("JOIN accounts ON accounts.id = journal_lines.account_id").
		Where("journal_entries.tenant_id = ? AND journal_entries.status IN ? AND journal_entries.entry_date <= ?",
			tenantID, ledgerEffectStatuses, utils.CivilDate(asOf)).
		Group("accounts.id, accounts.code, accounts.name, accounts.type").
		Order("accounts.code").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to build trial balance: %w", err)
	}

	report := &TrialBalance{
		AsOf:        utils.CivilDate(asOf).Format("2006-01-02"),
		TotalDebit:  decimal.Zero,
		TotalCredit: decimal.Zero,
	}
	for _, r := range rows {
		net := r.Debit.Sub(r.Credit)
		if r.AccountType == models.AccountTypeLiability ||
			r.AccountType == models.AccountTypeEquity ||
			r.AccountType == models.AccountTypeRevenue {
			net = r.Credit.Sub(r.Debit)
		}
		report.Rows = append(report.Rows, TrialBalanceRow{
			AccountID:   r.AccountID,
			AccountCode: r.AccountCode,
			AccountName: r.AccountName,
			AccountType: r.AccountType,
			Debit:       r.Debit,
			Credit:      r.Credit,
			Net:         net,
		})
		report.TotalDebit = report.TotalDebit.Add(r.Debit)
		report.TotalCredit = report.TotalCredit.Add(r.Credit)
	}
	return report, nil
}

// BalanceSheetSection is a named group of account balances.
type BalanceSheetSection struct {
	Name     string            `json:"name"`
	Accounts []TrialBalanceRow `json:"accounts"`
	Total    decimal.Decimal   `json:"total"`
}

// BalanceSheet groups the trial balance into the balance sheet layout. Current
// versus fixed assets and current versus long-term liabilities follow the account
// code prefix conventions of the seeded chart.
type BalanceSheet struct {
	AsOf                string              `json:"as_of"`
	CurrentAssets       BalanceSheetSection `json:"current_assets"`
	FixedAssets         BalanceSheetSection `json:"fixed_assets"`
	CurrentLiabilities  BalanceSheetSection `json:"current_liabilities"`
	LongTermLiabilities BalanceSheetSection `json:"long_term_liabilities"`
	Equity              BalanceSheetSection `json:"equity"`
	RetainedEarnings    decimal.Decimal     `json:"retained_earnings"`
	TotalAssets         decimal.Decimal     `json:"total_assets"`
	TotalLiabilities    decimal.Decimal     `json:"total_liabilities"`
	TotalEquity         decimal.Decimal     `json:"total_equity"`
	IsBalanced          bool                `json:"is_balanced"`
}

// BalanceSheet builds the balance sheet as of a date. Period results to date are
// folded into equity as retained earnings so the statement balances.
func (s *ReportService) BalanceSheet(cc CoreContext, asOf time.Time) (*BalanceSheet, error) {
	if err := cc.Authorize(); err != nil {
		return nil, err
	}
	return s.balanceSheetTx(s.db, cc.TenantID, asOf)
}

func (s *ReportService) balanceSheetTx(tx *gorm.DB, tenantID uint, asOf time.Time) (*BalanceSheet, error) {
	trialBalance, err := s.trialBalanceTx(tx, tenantID, asOf)
	if err != nil {
		return nil, err
	}

	sheet := &BalanceSheet{
		AsOf:                trialBalance.AsOf,
		CurrentAssets:       BalanceSheetSection{Name: "Current assets", Total: decimal.Zero},
		FixedAssets:         BalanceSheetSection{Name: "Fixed assets", Total: decimal.Zero},
		CurrentLiabilities:  BalanceSheetSection{Name: "Current liabilities", Total: decimal.Zero},
		LongTermLiabilities: BalanceSheetSection{Name: "Long-term liabilities", Total: decimal.Zero},
		Equity:              BalanceSheetSection{Name: "Equity", Total: decimal.Zero},
		RetainedEarnings:    decimal.Zero,
		TotalAssets:         decimal.Zero,
		TotalLiabilities:    decimal.Zero,
		TotalEquity:         decimal.Zero,
	}

	for _, row := range trialBalance.Rows {
		switch row.AccountType {
		case models.AccountTypeAsset:
			if config.HasPrefix(row.AccountCode, s.layout.CurrentAssetPrefixes) {
				appendRow(&sheet.CurrentAssets, row)
			} else {
				appendRow(&sheet.FixedAssets, row)
			}
			sheet.TotalAssets = sheet.TotalAssets.Add(row.Net)
		case models.AccountTypeLiability:
			if config.HasPrefix(row.AccountCode, s.layout.LongTermLiabilityPrefixes) {
				appendRow(&sheet.LongTermLiabilities, row)
			} else {
				appendRow(&sheet.CurrentLiabilities, row)
			}
			sheet.TotalLiabilities = sheet.TotalLiabilities.Add(row.Net)
		case models.AccountTypeEquity:
			appendRow(&sheet.Equity, row)
			sheet.TotalEquity = sheet.TotalEquity.Add(row.Net)
		case models.AccountTypeRevenue:
			sheet.RetainedEarnings = sheet.RetainedEarnings.Add(row.Net)
		case models.AccountTypeExpense:
			sheet.RetainedEarnings = sheet.RetainedEarnings.Sub(row.Net)
		}
	}

	sheet.TotalEquity = sheet.TotalEquity.Add(sheet.RetainedEarnings)
	diff := sheet.TotalAssets.Sub(sheet.TotalLiabilities.Add(sheet.TotalEquity))
	sheet.IsBalanced = diff.Abs().LessThanOrEqual(ReconciliationTolerance)
	return sheet, nil
}

func appendRow(section *BalanceSheetSection, row TrialBalanceRow) {
	section.Accounts = append(section.Accounts, row)
	section.Total = section.Total.Add(row.Net)
}

// ProfitLoss is the income statement over a date range. Derivation order is fixed:
// revenue minus COGS gives gross profit, minus operating expenses gives operating
// income, plus other income minus other expenses gives net income.
type ProfitLoss struct {
	StartDate       string            `json:"start_date"`
	EndDate         string            `json:"end_date"`
	Revenue         []TrialBalanceRow `json:"revenue"`
	COGS            []TrialBalanceRow `json:"cogs"`
	OperatingExp    []TrialBalanceRow `json:"operating_expenses"`
	OtherIncome     []TrialBalanceRow `json:"other_income"`
	OtherExpenses   []TrialBalanceRow `json:"other_expenses"`
	TotalRevenue    decimal.Decimal   `json:"total_revenue"`
	TotalCOGS       decimal.Decimal   `json:"total_cogs"`
	GrossProfit     decimal.Decimal   `json:"gross_profit"`
	TotalOperating  decimal.Decimal   `json:"total_operating_expenses"`
	OperatingIncome decimal.Decimal   `json:"operating_income"`
	TotalOtherInc   decimal.Decimal   `json:"total_other_income"`
	TotalOtherExp   decimal.Decimal   `json:"total_other_expenses"`
	NetIncome       decimal.Decimal   `json:"net_income"`
}

// ProfitLoss builds the income statement from period activity.
func (s *ReportService) ProfitLoss(cc CoreContext, start, end time.Time) (*ProfitLoss, error) {
	if err := cc.Authorize(); err != nil {
		return nil, err
	}
	return s.profitLossTx(s.db, cc.TenantID, start, end)
}

func (s *ReportService) profitLossTx(tx *gorm.DB, tenantID uint, start, end time.Time) (*ProfitLoss, error) {
	type row struct {
		AccountID   uint
		AccountCode string
		AccountName string
		AccountType string
		Debit       decimal.Decimal
		Credit      decimal.Decimal
	}
	var rows []row
	err := tx.Model(&models.JournalLine{}).
		Select("accounts.id AS account_id, accounts.code AS account_code, accounts.name AS account_name, accounts.type AS account_type, "+
			"COALESCE(SUM(journal_lines.debit_amount), 0) AS debit, COALESCE(SUM(journal_lines.credit_amount), 0) AS credit").
		Joins("JOIN journal_entries ON journal_entries.id = journal_lines.entry_id").
		Joins("JOIN accounts ON accounts.id = journal_lines.account_id").
		Where("journal_entries.tenant_id = ? AND journal_entries.status IN ?", tenantID, ledgerEffectStatuses).
		Where("journal_entries.entry_date >= ? AND journal_entries.entry_date <= ?",
			utils.CivilDate(start), utils.CivilDate(end)).
		Where("accounts.type IN ?", []string{models.AccountTypeRevenue, models.AccountTypeExpense}).
		Group("accounts.id, accounts.code, accounts.name, accounts.type").
		Order("accounts.code").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to build profit and loss: %w", err)
	}

	report := &ProfitLoss{
		StartDate:      utils.CivilDate(start).Format("2006-01-02"),
		EndDate:        utils.CivilDate(end).Format("2006-01-02"),
		TotalRevenue:   decimal.Zero,
		TotalCOGS:      decimal.Zero,
		TotalOperating: decimal.Zero,
		TotalOtherInc:  decimal.Zero,
		TotalOtherExp:  decimal.Zero,
	}

	for _, r := range rows {
		if r.AccountType == models.AccountTypeRevenue {
			net := r.Credit.Sub(r.Debit)
			tbRow := TrialBalanceRow{AccountID: r.AccountID, AccountCode: r.AccountCode, AccountName: r.AccountName, AccountType: r.AccountType, Debit: r.Debit, Credit: r.Credit, Net: net}
			if config.HasPrefix(r.AccountCode, s.layout.OtherIncomePrefixes) {
				report.OtherIncome = append(report.OtherIncome, tbRow)
				report.TotalOtherInc = report.TotalOtherInc.Add(net)
			} else {
				report.Revenue = append(report.Revenue, tbRow)
				report.TotalRevenue = report.TotalRevenue.Add(net)
			}
			continue
		}

		net := r.Debit.Sub(r.Credit)
		tbRow := TrialBalanceRow{AccountID: r.AccountID, AccountCode: r.AccountCode, AccountName: r.AccountName, AccountType: r.AccountType, Debit: r.Debit, Credit: r.Credit, Net: net}
		switch {
		case config.HasPrefix(r.AccountCode, s.layout.COGSPrefixes):
			report.COGS = append(report.COGS, tbRow)
			report.TotalCOGS = report.TotalCOGS.Add(net)
		case config.HasPrefix(r.AccountCode, s.layout.OtherExpensePrefixes):
			report.OtherExpenses = append(report.OtherExpenses, tbRow)
			report.TotalOtherExp = report.TotalOtherExp.Add(net)
		default:
			report.OperatingExp = append(report.OperatingExp, tbRow)
			report.TotalOperating = report.TotalOperating.Add(net)
		}
	}

	report.GrossProfit = report.TotalRevenue.Sub(report.TotalCOGS)
	report.OperatingIncome = report.GrossProfit.Sub(report.TotalOperating)
	report.NetIncome = report.OperatingIncome.Add(report.TotalOtherInc).Sub(report.TotalOtherExp)
	return report, nil
}

// AgingBucketNames in reporting order.
var AgingBucketNames = []string{"current", "1-30", "31-60", "61-90", "90+"}

// AgingRow is one open item with its age.
type AgingRow struct {
	OpenItemID     uint            `json:"open_item_id"`
	PartyID        uint            `json:"party_id"`
	PartyName      string          `json:"party_name"`
	DocumentNumber string          `json:"document_number"`
	DueDate        string          `json:"due_date"`
	DaysOverdue    int             `json:"days_overdue"`
	Bucket         string          `json:"bucket"`
	OpenAmount     decimal.Decimal `json:"open_amount"`
}

// AgingReport is the AR or AP aging as of a date.
type AgingReport struct {
	ItemType      string                     `json:"item_type"`
	AsOf          string                     `json:"as_of"`
	Rows          []AgingRow                 `json:"rows"`
	BucketTotals  map[string]decimal.Decimal `json:"bucket_totals"`
	TotalOpen     decimal.Decimal            `json:"total_open"`
	OverdueAmount decimal.Decimal            `json:"overdue_amount"`
}

// Aging builds the AR or AP aging report.
func (s *ReportService) Aging(cc CoreContext, itemType string, asOf time.Time) (*AgingReport, error) {
	if err := cc.Authorize(); err != nil {
		return nil, err
	}
	return s.agingTx(s.db, cc.TenantID, itemType, asOf)
}

func (s *ReportService) agingTx(tx *gorm.DB, tenantID uint, itemType string, asOf time.Time) (*AgingReport, error) {
	asOfDate := utils.CivilDate(asOf)

	type row struct {
		ID             uint
		PartyID        uint
		PartyName      string
		DocumentNumber string
		DueDate        time.Time
		OpenAmount     decimal.Decimal
	}
	var rows []row
	err := tx.Model(&models.OpenItem{}).
		Select("open_items.id AS id, open_items.party_id AS party_id, parties.name AS party_name, "+
			"open_items.document_number AS document_number, open_items.due_date AS due_date, open_items.open_amount AS open_amount").
		Joins("JOIN parties ON parties.id = open_items.party_id").
		Where("open_items.tenant_id = ? AND open_items.item_type = ? AND open_items.status IN ?",
			tenantID, itemType, []string{models.OpenItemStatusOpen, models.OpenItemStatusPartial}).
		Order("open_items.due_date ASC, open_items.id ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to build aging: %w", err)
	}

	report := &AgingReport{
		ItemType:      itemType,
		AsOf:          asOfDate.Format("2006-01-02"),
		BucketTotals:  make(map[string]decimal.Decimal, len(AgingBucketNames)),
		TotalOpen:     decimal.Zero,
		OverdueAmount: decimal.Zero,
	}
	for _, name := range AgingBucketNames {
		report.BucketTotals[name] = decimal.Zero
	}

	for _, r := range rows {
		days := utils.DaysBetween(r.DueDate, asOfDate)
		if days < 0 {
			days = 0
		}
		bucket := agingBucket(days)
		report.Rows = append(report.Rows, AgingRow{
			OpenItemID:     r.ID,
			PartyID:        r.PartyID,
			PartyName:      r.PartyName,
			DocumentNumber: r.DocumentNumber,
			DueDate:        r.DueDate.Format("2006-01-02"),
			DaysOverdue:    days,
			Bucket:         bucket,
			OpenAmount:     r.OpenAmount,
		})
		report.BucketTotals[bucket] = report.BucketTotals[bucket].Add(r.OpenAmount)
		report.TotalOpen = report.TotalOpen.Add(r.OpenAmount)
		if days > 0 {
			report.OverdueAmount = report.OverdueAmount.Add(r.OpenAmount)
		}
	}
	return report, nil
}

func agingBucket(daysOverdue int) string {
	switch {
	case daysOverdue <= 0:
		return "current"
	case daysOverdue <= 30:
		return "1-30"
	case daysOverdue <= 60:
		return "31-60"
	case daysOverdue <= 90:
		return "61-90"
	default:
		return "90+"
	}
}
