package services

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"app-boekhouding/models"
)

func (f *fixture) createBankAccount() *models.BankAccount {
	f.t.Helper()
	bank := NewBankService(f.db)
	account, err := bank.CreateBankAccount(f.cc, &CreateBankAccountRequest{
		Name:        "Zakelijke rekening",
		IBAN:        "NL69RABO0123456789",
		GLAccountID: f.accounts["1100"].ID,
	})
	require.NoError(f.t, err)
	return account
}

func TestCreateBankAccountRequiresBankControl(t *testing.T) {
	f := newFixture(t)
	bank := NewBankService(f.db)

	_, err := bank.CreateBankAccount(f.cc, &CreateBankAccountRequest{
		Name:        "Verkeerde koppeling",
		GLAccountID: f.accounts["1300"].ID,
	})
	assert.True(t, IsKind(err, ErrValidationFailed), "AR control is not a bank account")

	account := f.createBankAccount()
	assert.Equal(t, "EUR", account.Currency)
}

func TestImportDeduplicates(t *testing.T) {
	f := newFixture(t)
	bank := NewBankService(f.db)
	account := f.createBankAccount()

	rows := []TransactionImport{
		{
			BookingDate:      civil(2026, 3, 10),
			Amount:           money("850.50"),
			CounterpartyName: "Jansen Webdesign",
			CounterpartyIBAN: "NL91ABNA0417164300",
			Description:      "Betaling factuur 2026-0042",
		},
		{
			BookingDate:      civil(2026, 3, 11),
			Amount:           money("-121.00"),
			CounterpartyName: "Kantoor Supplies BV",
			CounterpartyIBAN: "NL20INGB0001234567",
			Description:      "Kantoorartikelen maart",
		},
	}

	result, err := bank.ImportTransactions(f.cc, account.ID, rows)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Imported)
	assert.Equal(t, 0, result.Skipped)
	assert.NotEmpty(t, result.BatchUID)

	again, err := bank.ImportTransactions(f.cc, account.ID, rows)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Imported)
	assert.Equal(t, 2, again.Skipped)

	var count int64
	require.NoError(t, f.db.Model(&models.BankTransaction{}).
		Where("tenant_id = ?", testTenant).Count(&count).Error)
	assert.EqualValues(t, 2, count, "re-importing the same file grows the table by zero rows")

	_, err = bank.ImportTransactions(f.cc, account.ID, []TransactionImport{
		{BookingDate: civil(2026, 3, 12), Amount: decimal.Zero, Description: "lege regel"},
	})
	assert.True(t, IsKind(err, ErrValidationFailed))
}

func importOne(t *testing.T, f *fixture, bank *BankService, accountID uint, row TransactionImport) *models.BankTransaction {
	t.Helper()
	result, err := bank.ImportTransactions(f.cc, accountID, []TransactionImport{row})
	require.NoError(t, err)
	require.Equal(t, 1, result.Imported)

	var bankTx models.BankTransaction
	require.NoError(t, f.db.Where("tenant_id = ? AND import_batch_uid = ?", testTenant, result.BatchUID).
		First(&bankTx).Error)
	return &bankTx
}

func TestMatchFlow(t *testing.T) {
	f := newFixture(t)
	bank := NewBankService(f.db)
	journal := NewJournalService(f.db)
	subledger := NewSubledgerService(f.db)
	account := f.createBankAccount()

	sale := f.postSale(money("850.50"), "2026-0042", civil(2026, 3, 1))
	item := f.openItemForEntry(sale.ID)

	bankTx := importOne(t, f, bank, account.ID, TransactionImport{
		BookingDate:      civil(2026, 3, 10),
		Amount:           money("850.50"),
		CounterpartyName: "Jansen Webdesign",
		CounterpartyIBAN: "NL91ABNA0417164300",
		Description:      "Betaling factuur 2026-0042",
	})

	proposals, err := bank.GenerateProposals(f.cc, bankTx.ID)
	require.NoError(t, err)
	require.Len(t, proposals, 2)

	byRule := make(map[string]models.MatchProposal, len(proposals))
	for _, p := range proposals {
		byRule[p.RuleType] = p
		assert.Equal(t, item.ID, p.EntityID)
		assert.Equal(t, models.MatchEntityOpenItem, p.EntityType)
		assert.NotEmpty(t, p.Reason)
	}
	require.Contains(t, byRule, models.RuleInvoiceNumber)
	require.Contains(t, byRule, models.RuleAmountExact)
	assert.Equal(t, 90, byRule[models.RuleInvoiceNumber].Confidence)
	assert.Equal(t, 80, byRule[models.RuleAmountExact].Confidence)

	matched, err := bank.ApplyMatch(f.cc, byRule[models.RuleInvoiceNumber].ID)
	require.NoError(t, err)
	assert.Equal(t, models.BankTxStatusMatched, matched.Status)
	require.NotNil(t, matched.PaymentEntryID)
	require.NotNil(t, matched.MatchedEntityID)
	assert.Equal(t, item.ID, *matched.MatchedEntityID)

	payment, err := journal.GetEntry(f.cc, *matched.PaymentEntryID)
	require.NoError(t, err)
	assert.Equal(t, models.EntryStatusPosted, payment.Status)
	assert.Equal(t, models.SourceTypeBank, payment.SourceType)
	assert.Contains(t, payment.EntryNumber, "BNK-2026-")
	assert.Equal(t, "2026-0042", payment.Reference)

	settled, err := subledger.GetOpenItem(f.cc, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OpenItemStatusPaid, settled.Status)
	assert.True(t, settled.OpenAmount.IsZero())

	var sibling models.MatchProposal
	require.NoError(t, f.db.First(&sibling, byRule[models.RuleAmountExact].ID).Error)
	assert.Equal(t, models.ProposalStatusExpired, sibling.Status)

	var audits int64
	require.NoError(t, f.db.Model(&models.ReconciliationAction{}).
		Where("tenant_id = ? AND bank_tx_id = ? AND action = ?",
			testTenant, bankTx.ID, models.ReconActionAccept).
		Count(&audits).Error)
	assert.EqualValues(t, 1, audits)

	_, err = bank.ApplyMatch(f.cc, byRule[models.RuleAmountExact].ID)
	assert.True(t, IsKind(err, ErrEntryState), "expired proposals cannot be accepted")
}

func TestUnmatchRestoresEverything(t *testing.T) {
	f := newFixture(t)
	bank := NewBankService(f.db)
	journal := NewJournalService(f.db)
	subledger := NewSubledgerService(f.db)
	account := f.createBankAccount()

	sale := f.postSale(money("850.50"), "2026-0042", civil(2026, 3, 1))
	item := f.openItemForEntry(sale.ID)

	bankTx := importOne(t, f, bank, account.ID, TransactionImport{
		BookingDate: civil(2026, 3, 10),
		Amount:      money("850.50"),
		Description: "Betaling factuur 2026-0042",
	})

	proposals, err := bank.GenerateProposals(f.cc, bankTx.ID)
	require.NoError(t, err)
	require.NotEmpty(t, proposals)
	matched, err := bank.ApplyMatch(f.cc, proposals[0].ID)
	require.NoError(t, err)
	paymentEntryID := *matched.PaymentEntryID

	unmatched, err := bank.Unmatch(f.cc, bankTx.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BankTxStatusNew, unmatched.Status)
	assert.Nil(t, unmatched.MatchedEntityID)
	assert.Nil(t, unmatched.PaymentEntryID)

	reopened, err := subledger.GetOpenItem(f.cc, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OpenItemStatusOpen, reopened.Status)
	assert.True(t, reopened.PaidAmount.IsZero())
	assert.True(t, reopened.OpenAmount.Equal(money("850.50")))

	payment, err := journal.GetEntry(f.cc, paymentEntryID)
	require.NoError(t, err)
	assert.Equal(t, models.EntryStatusReversed, payment.Status)

	_, err = bank.Unmatch(f.cc, bankTx.ID)
	assert.True(t, IsKind(err, ErrEntryState), "only matched transactions can be unmatched")
}

func TestCreateExpenseFromOutboundTransaction(t *testing.T) {
	f := newFixture(t)
	bank := NewBankService(f.db)
	journal := NewJournalService(f.db)
	account := f.createBankAccount()

	bankTx := importOne(t, f, bank, account.ID, TransactionImport{
		BookingDate:      civil(2026, 3, 11),
		Amount:           money("-121.00"),
		CounterpartyName: "Kantoor Supplies BV",
		Description:      "Kantoorartikelen maart",
	})

	entry, err := bank.CreateExpense(f.cc, bankTx.ID, &CreateExpenseRequest{
		ExpenseAccountID: f.accounts["4000"].ID,
		VatCodeID:        f.vatCodes["NL_H"].ID,
		Description:      "Kantoorartikelen maart",
	})
	require.NoError(t, err)
	assert.Equal(t, models.EntryStatusPosted, entry.Status)
	assert.Contains(t, entry.EntryNumber, "BNK-2026-")

	sums := map[uint]decimal.Decimal{}
	for _, line := range entry.Lines {
		sums[line.AccountID] = sums[line.AccountID].Add(line.DebitAmount).Sub(line.CreditAmount)
	}
	assert.True(t, sums[f.accounts["4000"].ID].Equal(money("100.00")), "expense net %s", sums[f.accounts["4000"].ID])
	assert.True(t, sums[f.accounts["1510"].ID].Equal(money("21.00")), "VAT receivable %s", sums[f.accounts["1510"].ID])
	assert.True(t, sums[f.accounts["1100"].ID].Equal(money("-121.00")), "bank credit %s", sums[f.accounts["1100"].ID])

	again, err := bank.CreateExpense(f.cc, bankTx.ID, &CreateExpenseRequest{
		ExpenseAccountID: f.accounts["4000"].ID,
		VatCodeID:        f.vatCodes["NL_H"].ID,
		Description:      "Kantoorartikelen maart",
	})
	require.NoError(t, err)
	assert.Equal(t, entry.ID, again.ID, "booking twice returns the existing entry")

	balance, err := journal.Balance(f.cc, f.accounts["4000"].ID, nil)
	require.NoError(t, err)
	assert.True(t, balance.Net.Equal(money("100.00")), "double booking must not duplicate the expense")
}

func TestExpenseAndMatchGuards(t *testing.T) {
	f := newFixture(t)
	bank := NewBankService(f.db)
	account := f.createBankAccount()

	inbound := importOne(t, f, bank, account.ID, TransactionImport{
		BookingDate: civil(2026, 3, 10),
		Amount:      money("50.00"),
		Description: "Ontvangst zonder factuur",
	})

	_, err := bank.CreateExpense(f.cc, inbound.ID, &CreateExpenseRequest{
		ExpenseAccountID: f.accounts["4000"].ID,
		VatCodeID:        f.vatCodes["NL_H"].ID,
		Description:      "verkeerde richting",
	})
	assert.True(t, IsKind(err, ErrValidationFailed), "inbound money is not an expense")

	require.NoError(t, bank.Ignore(f.cc, inbound.ID, "private deposit"))
	require.NoError(t, bank.Ignore(f.cc, inbound.ID, "again"), "ignoring twice is a no-op")

	_, err = bank.GenerateProposals(f.cc, inbound.ID)
	assert.True(t, IsKind(err, ErrEntryState), "ignored transactions are out of the match flow")

	// Outbound money never sees receivables: the only candidate pool is payables.
	f.postSale(money("75.00"), "2026-0099", civil(2026, 3, 1))
	outbound := importOne(t, f, bank, account.ID, TransactionImport{
		BookingDate: civil(2026, 3, 12),
		Amount:      money("-75.00"),
		Description: "Betaling factuur 2026-0099",
	})
	proposals, err := bank.GenerateProposals(f.cc, outbound.ID)
	require.NoError(t, err)
	assert.Empty(t, proposals)
}

func TestInvoiceRefPattern(t *testing.T) {
	cases := map[string]string{
		"Betaling factuur 2026-0042":   "2026-0042",
		"INVOICE #F-1001 maart":        "F-1001",
		"inv:88321":                    "88321",
		"FACTUUR-2026-0007 met dank":   "2026-0007",
		"spoedoverboeking huur maart":  "",
		"storting eigen rekening 1234": "",
	}
	for text, want := range cases {
		m := invoiceRefPattern.FindStringSubmatch(text)
		if want == "" {
			assert.Nil(t, m, "no invoice token expected in %q", text)
			continue
		}
		require.NotNil(t, m, "expected invoice token in %q", text)
		assert.Equal(t, want, m[2], "token from %q", text)
	}
}
