package services

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"app-boekhouding/models"
	"app-boekhouding/utils"
)

const (
	testTenant uint = 1
	testUser   uint = 7
)

// fixture is a seeded in-memory database with a fixed, advanceable clock.
type fixture struct {
	t        *testing.T
	db       *gorm.DB
	cc       CoreContext
	now      time.Time
	accounts map[string]*models.Account
	vatCodes map[string]*models.VatCode
	customer *models.Party
	supplier *models.Party
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.Account{},
		&models.VatCode{},
		&models.Party{},
		&models.JournalEntry{},
		&models.JournalLine{},
		&models.OpenItem{},
		&models.OpenItemAllocation{},
		&models.FixedAsset{},
		&models.DepreciationSchedule{},
		&models.Period{},
		&models.PeriodSnapshot{},
		&models.PeriodAuditLog{},
		&models.Issue{},
		&models.ValidationRun{},
		&models.BankAccount{},
		&models.BankTransaction{},
		&models.MatchProposal{},
		&models.ReconciliationAction{},
		&models.TenantSequence{},
	))

	f := &fixture{
		t:        t,
		db:       db,
		now:      time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC),
		accounts: make(map[string]*models.Account),
		vatCodes: make(map[string]*models.VatCode),
	}
	f.cc = CoreContext{
		TenantID: testTenant,
		UserID:   testUser,
		Role:     RoleZZP,
		Clock:    func() time.Time { return f.now },
	}

	f.seedAccounts()
	f.seedVatCodes()
	f.seedParties()
	return f
}

// advance moves the fixture clock forward.
func (f *fixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func (f *fixture) seedAccounts() {
	f.t.Helper()
	type row struct {
		code, name, typ, control string
		inactive                 bool
	}
	rows := []row{
		{code: "0200", name: "Machines", typ: models.AccountTypeAsset},
		{code: "0210", name: "Accumulated depreciation", typ: models.AccountTypeAsset},
		{code: "1100", name: "Bank", typ: models.AccountTypeAsset, control: models.ControlTypeBank},
		{code: "1300", name: "Accounts receivable", typ: models.AccountTypeAsset, control: models.ControlTypeAR},
		{code: "1500", name: "VAT payable", typ: models.AccountTypeLiability, control: models.ControlTypeVAT},
		{code: "1510", name: "VAT receivable", typ: models.AccountTypeAsset, control: models.ControlTypeVAT},
		{code: "1600", name: "Accounts payable", typ: models.AccountTypeLiability, control: models.ControlTypeAP},
		{code: "4000", name: "General expenses", typ: models.AccountTypeExpense},
		{code: "4500", name: "Depreciation expense", typ: models.AccountTypeExpense},
		{code: "7000", name: "Cost of goods sold", typ: models.AccountTypeExpense},
		{code: "8000", name: "Revenue", typ: models.AccountTypeRevenue},
		{code: "9999", name: "Retired expenses", typ: models.AccountTypeExpense, inactive: true},
	}
	for _, r := range rows {
		account := &models.Account{
			TenantID: testTenant,
			Code:     r.code,
			Name:     r.name,
			Type:     r.typ,
			IsActive: !r.inactive,
		}
		if r.control != "" {
			control := r.control
			account.IsControl = true
			account.ControlType = &control
		}
		require.NoError(f.t, f.db.Create(account).Error)
		if r.inactive {
			// Create drops a false IsActive because the column carries default:true;
			// flip it explicitly so the row really is inactive.
			require.NoError(f.t, f.db.Model(account).Update("is_active", false).Error)
			account.IsActive = false
		}
		f.accounts[r.code] = account
	}
}

func (f *fixture) seedVatCodes() {
	f.t.Helper()
	payable := f.accounts["1500"].ID
	receivable := f.accounts["1510"].ID

	codes := []*models.VatCode{
		{
			TenantID: testTenant, Code: "NL_H", Description: "Standard rate",
			Rate: decimal.NewFromInt(21), Category: models.VatCategoryStandard,
			SalesAccountID: &payable, PurchaseAccountID: &receivable, IsActive: true,
		},
		{
			TenantID: testTenant, Code: "NL_L", Description: "Reduced rate",
			Rate: decimal.NewFromInt(9), Category: models.VatCategoryReduced,
			SalesAccountID: &payable, PurchaseAccountID: &receivable, IsActive: true,
		},
		{
			TenantID: testTenant, Code: "EU_RC", Description: "EU reverse charge",
			Rate: decimal.NewFromInt(21), Category: models.VatCategoryReverseCharge,
			IsReverseCharge: true, SalesAccountID: &payable, IsActive: true,
		},
		{
			TenantID: testTenant, Code: "ICP", Description: "Intra-community supply",
			Rate: decimal.Zero, Category: models.VatCategoryICP, IsICP: true, IsActive: true,
		},
	}
	for _, code := range codes {
		require.NoError(f.t, f.db.Create(code).Error)
		f.vatCodes[code.Code] = code
	}
}

func (f *fixture) seedParties() {
	f.t.Helper()
	f.customer = &models.Party{
		TenantID: testTenant, PartyType: models.PartyTypeCustomer,
		Name: "Jansen Webdesign", CountryCode: "NL",
		IBAN: "NL91ABNA0417164300", PaymentTermsDays: 30, IsActive: true,
	}
	f.supplier = &models.Party{
		TenantID: testTenant, PartyType: models.PartyTypeSupplier,
		Name: "Kantoor Supplies BV", CountryCode: "NL",
		IBAN: "NL20INGB0001234567", PaymentTermsDays: 14, IsActive: true,
	}
	require.NoError(f.t, f.db.Create(f.customer).Error)
	require.NoError(f.t, f.db.Create(f.supplier).Error)
}

// postSale books a standard 21% sale from the gross amount and posts it.
func (f *fixture) postSale(gross decimal.Decimal, reference string, entryDate time.Time) *models.JournalEntry {
	f.t.Helper()
	journal := NewJournalService(f.db)
	vat := NewVatService(f.db)

	lines, err := vat.BuildSalesLines(f.db, f.cc, SalesInput{
		PartyID:           f.customer.ID,
		ReceivableAccount: f.accounts["1300"].ID,
		RevenueAccount:    f.accounts["8000"].ID,
		VatCodeID:         f.vatCodes["NL_H"].ID,
		GrossAmount:       gross,
		Description:       "Consulting services",
		Country:           "NL",
	})
	require.NoError(f.t, err)

	entry, err := journal.CreateEntry(f.cc, &CreateEntryRequest{
		EntryDate:   entryDate,
		Description: "Sales invoice " + reference,
		Reference:   reference,
		SourceType:  models.SourceTypeSale,
		AutoPost:    true,
		Lines:       lines,
	})
	require.NoError(f.t, err)
	return entry
}

// postPayment books and posts a bank receipt against the AR control account.
func (f *fixture) postPayment(amount decimal.Decimal, entryDate time.Time) *models.JournalEntry {
	f.t.Helper()
	journal := NewJournalService(f.db)
	partyType := models.PartyTypeCustomer

	entry, err := journal.CreateEntry(f.cc, &CreateEntryRequest{
		EntryDate:   entryDate,
		Description: "Customer payment",
		SourceType:  models.SourceTypeBank,
		AutoPost:    true,
		Lines: []JournalLineInput{
			{AccountID: f.accounts["1100"].ID, Description: "Receipt", DebitAmount: amount},
			{
				AccountID: f.accounts["1300"].ID, Description: "Settlement",
				CreditAmount: amount, PartyType: &partyType, PartyID: &f.customer.ID,
			},
		},
	})
	require.NoError(f.t, err)
	return entry
}

// openItemForEntry returns the single open item a posted entry emitted.
func (f *fixture) openItemForEntry(entryID uint) *models.OpenItem {
	f.t.Helper()
	var item models.OpenItem
	require.NoError(f.t, f.db.Where("tenant_id = ? AND entry_id = ?", testTenant, entryID).First(&item).Error)
	return &item
}

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func civil(year int, month time.Month, day int) time.Time {
	return utils.Date(year, month, day)
}
