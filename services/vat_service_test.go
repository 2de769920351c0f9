package services

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"app-boekhouding/models"
	"app-boekhouding/utils"
)

func TestSplitGrossReconciles(t *testing.T) {
	cases := []struct {
		gross string
		rate  int64
	}{
		{"1210.00", 21},
		{"850.50", 21},
		{"100.01", 21},
		{"999.99", 9},
		{"0.01", 21},
		{"123.45", 9},
		{"50.00", 0},
	}
	cent := money("0.01")

	for _, tc := range cases {
		gross := money(tc.gross)
		rate := decimal.NewFromInt(tc.rate)
		base, vat := utils.SplitGross(gross, rate)

		assert.True(t, base.Add(vat).Equal(gross),
			"base %s + vat %s != gross %s", base, vat, gross)
		drift := vat.Sub(utils.VatFromBase(base, rate)).Abs()
		assert.True(t, drift.LessThanOrEqual(cent),
			"vat %s drifts %s from base %s at %d%%", vat, drift, base, tc.rate)
	}
}

func TestBuildSalesLinesSplitsGross(t *testing.T) {
	f := newFixture(t)
	vat := NewVatService(f.db)

	lines, err := vat.BuildSalesLines(f.db, f.cc, SalesInput{
		PartyID:           f.customer.ID,
		ReceivableAccount: f.accounts["1300"].ID,
		RevenueAccount:    f.accounts["8000"].ID,
		VatCodeID:         f.vatCodes["NL_H"].ID,
		GrossAmount:       money("1210.00"),
		Description:       "Consulting",
		Country:           "NL",
	})
	require.NoError(t, err)
	require.Len(t, lines, 3)

	assert.True(t, lines[0].DebitAmount.Equal(money("1210.00")))
	assert.True(t, lines[1].CreditAmount.Equal(money("1000.00")))
	assert.True(t, lines[2].CreditAmount.Equal(money("210.00")))
	require.NotNil(t, lines[1].VatBase)
	assert.True(t, lines[1].VatBase.Equal(money("1000.00")))
}

func TestBuildSalesLinesRejectsSpecialCodes(t *testing.T) {
	f := newFixture(t)
	vat := NewVatService(f.db)

	for _, code := range []string{"EU_RC", "ICP"} {
		_, err := vat.BuildSalesLines(f.db, f.cc, SalesInput{
			PartyID:           f.customer.ID,
			ReceivableAccount: f.accounts["1300"].ID,
			RevenueAccount:    f.accounts["8000"].ID,
			VatCodeID:         f.vatCodes[code].ID,
			GrossAmount:       money("100.00"),
			Description:       "Misused code",
		})
		assert.True(t, IsKind(err, ErrValidationFailed), "code %s must be rejected", code)
	}

	_, err := vat.BuildSalesLines(f.db, f.cc, SalesInput{
		PartyID:           f.customer.ID,
		ReceivableAccount: f.accounts["1300"].ID,
		RevenueAccount:    f.accounts["8000"].ID,
		VatCodeID:         424242,
		GrossAmount:       money("100.00"),
	})
	assert.True(t, IsKind(err, ErrVatCodeUnknown))
}

func TestReverseChargeNetsToZero(t *testing.T) {
	f := newFixture(t)
	vat := NewVatService(f.db)
	journal := NewJournalService(f.db)

	lines, err := vat.BuildReverseChargeLines(f.db, f.cc, ReverseChargeInput{
		PartyID:              f.supplier.ID,
		PayableAccount:       f.accounts["1600"].ID,
		ExpenseAccount:       f.accounts["4000"].ID,
		VatReceivableAccount: f.accounts["1510"].ID,
		VatCodeID:            f.vatCodes["EU_RC"].ID,
		NetAmount:            money("1000.00"),
		Description:          "German software license",
		SupplierCountry:      "DE",
	})
	require.NoError(t, err)
	require.Len(t, lines, 4)
	for _, line := range lines {
		assert.True(t, line.IsReverseCharge)
		assert.Equal(t, "DE", line.VatCountry)
	}

	_, err = journal.CreateEntry(f.cc, &CreateEntryRequest{
		EntryDate:   civil(2026, 3, 5),
		Description: "Reverse charge purchase",
		Reference:   "RC-0001",
		SourceType:  models.SourceTypePurchase,
		AutoPost:    true,
		Lines:       lines,
	})
	require.NoError(t, err)

	summary, err := vat.SummaryForRangeTx(f.db, testTenant, civil(2026, 3, 1), civil(2026, 3, 31))
	require.NoError(t, err)
	assert.True(t, summary.VatPayable.Equal(money("210.00")), "payable %s", summary.VatPayable)
	assert.True(t, summary.VatReceivable.Equal(money("210.00")), "receivable %s", summary.VatReceivable)
	assert.True(t, summary.NetVat.IsZero(), "net %s", summary.NetVat)
}

func TestVatSummaryAfterReversal(t *testing.T) {
	f := newFixture(t)
	vat := NewVatService(f.db)
	journal := NewJournalService(f.db)

	original := f.postSale(money("1210.00"), "2026-0001", civil(2026, 3, 1))
	_, err := journal.ReverseEntry(f.cc, original.ID, civil(2026, 3, 10), "")
	require.NoError(t, err)

	summary, err := vat.SummaryForRangeTx(f.db, testTenant, civil(2026, 3, 1), civil(2026, 3, 31))
	require.NoError(t, err)
	assert.True(t, summary.VatPayable.IsZero(), "payable after reversal %s", summary.VatPayable)
	assert.True(t, summary.NetVat.IsZero(), "net after reversal %s", summary.NetVat)
}

func TestICPLines(t *testing.T) {
	f := newFixture(t)
	vat := NewVatService(f.db)
	journal := NewJournalService(f.db)

	_, err := vat.BuildICPLines(f.db, f.cc, ICPInput{
		PartyID:           f.customer.ID,
		ReceivableAccount: f.accounts["1300"].ID,
		RevenueAccount:    f.accounts["8000"].ID,
		VatCodeID:         f.vatCodes["ICP"].ID,
		NetAmount:         money("2500.00"),
	})
	assert.True(t, IsKind(err, ErrValidationFailed), "ICP without VAT number must fail")

	lines, err := vat.BuildICPLines(f.db, f.cc, ICPInput{
		PartyID:           f.customer.ID,
		PartyVatNumber:    "DE812526315",
		Country:           "DE",
		ReceivableAccount: f.accounts["1300"].ID,
		RevenueAccount:    f.accounts["8000"].ID,
		VatCodeID:         f.vatCodes["ICP"].ID,
		NetAmount:         money("2500.00"),
		Description:       "EU delivery",
	})
	require.NoError(t, err)
	require.Len(t, lines, 2)
	require.NotNil(t, lines[1].VatAmount)
	assert.True(t, lines[1].VatAmount.IsZero())

	_, err = journal.CreateEntry(f.cc, &CreateEntryRequest{
		EntryDate:   civil(2026, 3, 8),
		Description: "ICP invoice",
		Reference:   "2026-0099",
		SourceType:  models.SourceTypeSale,
		AutoPost:    true,
		Lines:       lines,
	})
	require.NoError(t, err)

	entries, err := vat.ICPEntriesForRangeTx(f.db, testTenant, civil(2026, 3, 1), civil(2026, 3, 31))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "DE812526315", entries[0].PartyVatNumber)
	assert.Equal(t, "DE", entries[0].CountryCode)
	assert.True(t, entries[0].TaxableBase.Equal(money("2500.00")))
}

func TestValidateVatReconciliation(t *testing.T) {
	f := newFixture(t)
	vat := NewVatService(f.db)

	rate := decimal.NewFromInt(21)
	assert.True(t, vat.ValidateVatReconciliation(money("1000.00"), money("210.00"), rate))
	assert.True(t, vat.ValidateVatReconciliation(money("1000.00"), money("210.04"), rate))
	assert.False(t, vat.ValidateVatReconciliation(money("1000.00"), money("211.00"), rate))
}
