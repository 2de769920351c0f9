package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"app-boekhouding/models"
)

func TestAllocationLifecycle(t *testing.T) {
	f := newFixture(t)
	subledger := NewSubledgerService(f.db)

	sale := f.postSale(money("1210.00"), "2026-0001", civil(2026, 3, 1))
	item := f.openItemForEntry(sale.ID)

	firstPayment := f.postPayment(money("500.00"), civil(2026, 3, 5))
	updated, err := subledger.Allocate(f.cc, firstPayment.ID, item.ID, money("500.00"), civil(2026, 3, 5))
	require.NoError(t, err)
	assert.Equal(t, models.OpenItemStatusPartial, updated.Status)
	assert.True(t, updated.PaidAmount.Equal(money("500.00")))
	assert.True(t, updated.OpenAmount.Equal(money("710.00")))

	secondPayment := f.postPayment(money("710.00"), civil(2026, 3, 9))
	updated, err = subledger.Allocate(f.cc, secondPayment.ID, item.ID, money("710.00"), civil(2026, 3, 9))
	require.NoError(t, err)
	assert.Equal(t, models.OpenItemStatusPaid, updated.Status)
	assert.True(t, updated.OpenAmount.IsZero())

	reloaded, err := subledger.GetOpenItem(f.cc, item.ID)
	require.NoError(t, err)
	require.Len(t, reloaded.Allocations, 2)
	total := reloaded.Allocations[0].AllocatedAmount.Add(reloaded.Allocations[1].AllocatedAmount)
	assert.True(t, total.Equal(reloaded.PaidAmount), "allocations %s != paid %s", total, reloaded.PaidAmount)
}

func TestAllocationCapsAtOpenAmount(t *testing.T) {
	f := newFixture(t)
	subledger := NewSubledgerService(f.db)

	sale := f.postSale(money("121.00"), "2026-0002", civil(2026, 3, 1))
	item := f.openItemForEntry(sale.ID)

	payment := f.postPayment(money("200.00"), civil(2026, 3, 5))
	updated, err := subledger.Allocate(f.cc, payment.ID, item.ID, money("200.00"), civil(2026, 3, 5))
	require.NoError(t, err)
	assert.Equal(t, models.OpenItemStatusPaid, updated.Status)
	assert.True(t, updated.PaidAmount.Equal(money("121.00")), "overpayment must be capped")

	_, err = subledger.Allocate(f.cc, payment.ID, item.ID, money("10.00"), civil(2026, 3, 6))
	assert.True(t, IsKind(err, ErrIdempotentNoop))

	_, err = subledger.Allocate(f.cc, payment.ID, item.ID, money("-5.00"), civil(2026, 3, 6))
	assert.True(t, IsKind(err, ErrValidationFailed))
}

func TestWriteOff(t *testing.T) {
	f := newFixture(t)
	subledger := NewSubledgerService(f.db)

	sale := f.postSale(money("121.00"), "2026-0003", civil(2026, 3, 1))
	item := f.openItemForEntry(sale.ID)

	written, err := subledger.WriteOff(f.cc, item.ID, "customer bankrupt")
	require.NoError(t, err)
	assert.Equal(t, models.OpenItemStatusWrittenOff, written.Status)
	assert.Equal(t, "customer bankrupt", written.WriteOffReason)

	payment := f.postPayment(money("121.00"), civil(2026, 3, 5))
	_, err = subledger.Allocate(f.cc, payment.ID, item.ID, money("121.00"), civil(2026, 3, 5))
	assert.True(t, IsKind(err, ErrEntryState), "written-off items refuse allocations")

	again, err := subledger.WriteOff(f.cc, item.ID, "second attempt")
	require.NoError(t, err)
	assert.Equal(t, "customer bankrupt", again.WriteOffReason, "write-off is idempotent")
}

func TestRemoveAllocationsReopensItem(t *testing.T) {
	f := newFixture(t)
	subledger := NewSubledgerService(f.db)

	sale := f.postSale(money("121.00"), "2026-0004", civil(2026, 3, 1))
	item := f.openItemForEntry(sale.ID)

	payment := f.postPayment(money("121.00"), civil(2026, 3, 5))
	updated, err := subledger.Allocate(f.cc, payment.ID, item.ID, money("121.00"), civil(2026, 3, 5))
	require.NoError(t, err)
	require.Equal(t, models.OpenItemStatusPaid, updated.Status)

	err = f.db.Transaction(func(tx *gorm.DB) error {
		return subledger.RemoveAllocationsForPaymentTx(tx, f.cc, payment.ID)
	})
	require.NoError(t, err)

	reloaded, err := subledger.GetOpenItem(f.cc, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OpenItemStatusOpen, reloaded.Status)
	assert.True(t, reloaded.PaidAmount.IsZero())
	assert.True(t, reloaded.OpenAmount.Equal(money("121.00")))
	assert.Empty(t, reloaded.Allocations)
}

func TestListOpenItemsOrdersByDueDate(t *testing.T) {
	f := newFixture(t)
	subledger := NewSubledgerService(f.db)

	f.postSale(money("121.00"), "2026-0005", civil(2026, 3, 10))
	f.postSale(money("242.00"), "2026-0006", civil(2026, 3, 1))

	items, err := subledger.ListOpenItems(f.cc, models.ItemTypeReceivable)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "2026-0006", items[0].DocumentNumber)
	assert.Equal(t, "2026-0005", items[1].DocumentNumber)
}
