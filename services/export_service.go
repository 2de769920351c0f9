package services

import (
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"

	"app-boekhouding/models"
)

// ExportService renders reports as Excel workbooks for accountants who want the
// figures outside the application.
type ExportService struct {
	db      *gorm.DB
	reports *ReportService
}

// NewExportService creates a new export service.
func NewExportService(db *gorm.DB) *ExportService {
	return &ExportService{db: db, reports: NewReportService(db)}
}

// ExportPeriodWorkbook builds a workbook with the trial balance and both aging
// reports as of the given date.
func (s *ExportService) ExportPeriodWorkbook(cc CoreContext, asOf time.Time) (*excelize.File, error) {
	if err := cc.Authorize(); err != nil {
		return nil, err
	}

	trialBalance, err := s.reports.TrialBalance(cc, asOf)
	if err != nil {
		return nil, err
	}
	arAging, err := s.reports.Aging(cc, models.ItemTypeReceivable, asOf)
	if err != nil {
		return nil, err
	}
	apAging, err := s.reports.Aging(cc, models.ItemTypePayable, asOf)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	if err := s.writeTrialBalanceSheet(f, trialBalance); err != nil {
		return nil, err
	}
	if err := s.writeAgingSheet(f, "AR Aging", arAging); err != nil {
		return nil, err
	}
	if err := s.writeAgingSheet(f, "AP Aging", apAging); err != nil {
		return nil, err
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("failed to drop default sheet: %w", err)
	}
	return f, nil
}

func (s *ExportService) writeTrialBalanceSheet(f *excelize.File, report *TrialBalance) error {
	sheet := "Trial Balance"
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}

	headers := []interface{}{"Code", "Name", "Type", "Debit", "Credit", "Net"}
	if err := f.SetSheetRow(sheet, "A1", &headers); err != nil {
		return err
	}
	for i, row := range report.Rows {
		cell := fmt.Sprintf("A%d", i+2)
		values := []interface{}{
			row.AccountCode,
			row.AccountName,
			row.AccountType,
			row.Debit.StringFixed(2),
			row.Credit.StringFixed(2),
			row.Net.StringFixed(2),
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return err
		}
	}

	totalRow := len(report.Rows) + 2
	totals := []interface{}{
		"Total", "", "",
		report.TotalDebit.StringFixed(2),
		report.TotalCredit.StringFixed(2),
		"",
	}
	return f.SetSheetRow(sheet, fmt.Sprintf("A%d", totalRow), &totals)
}

func (s *ExportService) writeAgingSheet(f *excelize.File, sheet string, report *AgingReport) error {
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}

	headers := []interface{}{"Party", "Document", "Due date", "Days overdue", "Bucket", "Open amount"}
	if err := f.SetSheetRow(sheet, "A1", &headers); err != nil {
		return err
	}
	for i, row := range report.Rows {
		cell := fmt.Sprintf("A%d", i+2)
		values := []interface{}{
			row.PartyName,
			row.DocumentNumber,
			row.DueDate,
			row.DaysOverdue,
			row.Bucket,
			row.OpenAmount.StringFixed(2),
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return err
		}
	}

	bucketRow := len(report.Rows) + 3
	bucketHeader := []interface{}{"Bucket totals"}
	if err := f.SetSheetRow(sheet, fmt.Sprintf("A%d", bucketRow), &bucketHeader); err != nil {
		return err
	}
	for i, name := range AgingBucketNames {
		values := []interface{}{name, report.BucketTotals[name].StringFixed(2)}
		if err := f.SetSheetRow(sheet, fmt.Sprintf("A%d", bucketRow+1+i), &values); err != nil {
			return err
		}
	}
	totals := []interface{}{"Total open", report.TotalOpen.StringFixed(2)}
	return f.SetSheetRow(sheet, fmt.Sprintf("A%d", bucketRow+1+len(AgingBucketNames)), &totals)
}
