package database

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"app-boekhouding/models"
	"app-boekhouding/utils"
)

// seedAccount is one row of the default chart of accounts.
type seedAccount struct {
	Code        string
	Name        string
	Type        string
	ControlType string
}

// defaultChart is the standard Dutch ZZP chart. Codes follow the common decimal
// scheme: 0 fixed assets and equity, 1 current assets, 4 operating costs, 7 cost
// of goods, 8 revenue.
var defaultChart = []seedAccount{
	{Code: "0200", Name: "Machines en inventaris", Type: models.AccountTypeAsset},
	{Code: "0210", Name: "Afschrijving machines en inventaris", Type: models.AccountTypeAsset},
	{Code: "0500", Name: "Eigen vermogen", Type: models.AccountTypeEquity},
	{Code: "0600", Name: "Langlopende leningen", Type: models.AccountTypeLiability},
	{Code: "1100", Name: "Bank", Type: models.AccountTypeAsset, ControlType: models.ControlTypeBank},
	{Code: "1300", Name: "Debiteuren", Type: models.AccountTypeAsset, ControlType: models.ControlTypeAR},
	{Code: "1500", Name: "Af te dragen BTW", Type: models.AccountTypeLiability, ControlType: models.ControlTypeVAT},
	{Code: "1510", Name: "Te vorderen BTW", Type: models.AccountTypeAsset, ControlType: models.ControlTypeVAT},
	{Code: "1600", Name: "Crediteuren", Type: models.AccountTypeLiability, ControlType: models.ControlTypeAP},
	{Code: "4000", Name: "Algemene kosten", Type: models.AccountTypeExpense},
	{Code: "4400", Name: "Huisvestingskosten", Type: models.AccountTypeExpense},
	{Code: "4500", Name: "Afschrijvingskosten", Type: models.AccountTypeExpense},
	{Code: "7000", Name: "Inkoopwaarde omzet", Type: models.AccountTypeExpense},
	{Code: "8000", Name: "Omzet hoog tarief", Type: models.AccountTypeRevenue},
	{Code: "8100", Name: "Omzet laag tarief", Type: models.AccountTypeRevenue},
	{Code: "8200", Name: "Omzet EU leveringen", Type: models.AccountTypeRevenue},
}

// SeedTenant installs the default chart of accounts and VAT code catalog for a
// tenant. Seeding an already seeded tenant is a no-op per row.
func SeedTenant(db *gorm.DB, tenantID uint) error {
	return db.Transaction(func(tx *gorm.DB) error {
		accounts := make(map[string]*models.Account, len(defaultChart))
		for _, row := range defaultChart {
			account := models.Account{
				TenantID: tenantID,
				Code:     row.Code,
				Name:     row.Name,
				Type:     row.Type,
				IsActive: true,
			}
			if row.ControlType != "" {
				controlType := row.ControlType
				account.IsControl = true
				account.ControlType = &controlType
			}

			var existing models.Account
			err := tx.Where("tenant_id = ? AND code = ?", tenantID, row.Code).First(&existing).Error
			if err == nil {
				accounts[row.Code] = &existing
				continue
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			if err := tx.Create(&account).Error; err != nil {
				return fmt.Errorf("failed to seed account %s: %w", row.Code, err)
			}
			accounts[row.Code] = &account
		}

		vatPayable := accounts["1500"].ID
		vatReceivable := accounts["1510"].ID
		codes := []models.VatCode{
			{
				TenantID:          tenantID,
				Code:              "NL_H",
				Description:       "BTW hoog tarief",
				Rate:              decimal.NewFromInt(21),
				Category:          models.VatCategoryStandard,
				SalesAccountID:    &vatPayable,
				PurchaseAccountID: &vatReceivable,
				IsActive:          true,
			},
			{
				TenantID:          tenantID,
				Code:              "NL_L",
				Description:       "BTW laag tarief",
				Rate:              decimal.NewFromInt(9),
				Category:          models.VatCategoryReduced,
				SalesAccountID:    &vatPayable,
				PurchaseAccountID: &vatReceivable,
				IsActive:          true,
			},
			{
				TenantID:        tenantID,
				Code:            "EU_RC",
				Description:     "BTW verlegd EU",
				Rate:            decimal.NewFromInt(21),
				Category:        models.VatCategoryReverseCharge,
				IsReverseCharge: true,
				SalesAccountID:  &vatPayable,
				IsActive:        true,
			},
			{
				TenantID:    tenantID,
				Code:        "ICP",
				Description: "Intracommunautaire levering",
				Rate:        decimal.Zero,
				Category:    models.VatCategoryICP,
				IsICP:       true,
				IsActive:    true,
			},
		}
		for _, code := range codes {
			var count int64
			if err := tx.Model(&models.VatCode{}).
				Where("tenant_id = ? AND code = ?", tenantID, code.Code).
				Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				continue
			}
			if err := tx.Create(&code).Error; err != nil {
				return fmt.Errorf("failed to seed vat code %s: %w", code.Code, err)
			}
		}

		utils.Logger().WithField("tenant", tenantID).Info("tenant seeded")
		return nil
	})
}
