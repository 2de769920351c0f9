package services

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"app-boekhouding/models"
)

func (f *fixture) createAsset(cost, residual string, months int) *models.FixedAsset {
	f.t.Helper()
	assets := NewAssetService(f.db)
	asset, err := assets.CreateAsset(f.cc, &CreateAssetRequest{
		Code:                  "MACH-001",
		Name:                  "Workstation",
		AcquisitionDate:       civil(2026, 1, 15),
		AcquisitionCost:       money(cost),
		ResidualValue:         money(residual),
		UsefulLifeMonths:      months,
		AssetAccountID:        f.accounts["0200"].ID,
		DepreciationAccountID: f.accounts["0210"].ID,
		ExpenseAccountID:      f.accounts["4500"].ID,
	})
	require.NoError(f.t, err)
	return asset
}

func TestStraightLineSchedule(t *testing.T) {
	f := newFixture(t)

	asset := f.createAsset("10000.00", "1000.00", 36)
	require.Len(t, asset.Schedules, 36)

	total := decimal.Zero
	for _, row := range asset.Schedules {
		assert.True(t, row.DepreciationAmount.Equal(money("250.00")),
			"row %s amount %s", row.PeriodDate.Format("2006-01"), row.DepreciationAmount)
		total = total.Add(row.DepreciationAmount)
	}
	assert.True(t, total.Equal(money("9000.00")), "schedule total %s", total)

	last := asset.Schedules[35]
	assert.True(t, last.BookValueEnd.Equal(money("1000.00")), "final book value %s", last.BookValueEnd)
	assert.Equal(t, civil(2026, 1, 1), asset.Schedules[0].PeriodDate)
	assert.Equal(t, civil(2028, 12, 1), last.PeriodDate)
}

func TestScheduleLastRowAbsorbsResidue(t *testing.T) {
	f := newFixture(t)

	asset := f.createAsset("1000.00", "0.00", 7)
	require.Len(t, asset.Schedules, 7)

	total := decimal.Zero
	for i, row := range asset.Schedules {
		if i < 6 {
			assert.True(t, row.DepreciationAmount.Equal(money("142.86")))
		}
		total = total.Add(row.DepreciationAmount)
	}
	assert.True(t, asset.Schedules[6].DepreciationAmount.Equal(money("142.84")),
		"last row %s", asset.Schedules[6].DepreciationAmount)
	assert.True(t, total.Equal(money("1000.00")), "schedule total %s", total)
}

func TestCreateAssetValidation(t *testing.T) {
	f := newFixture(t)
	assets := NewAssetService(f.db)

	base := CreateAssetRequest{
		Code:                  "MACH-002",
		Name:                  "Laptop",
		AcquisitionDate:       civil(2026, 2, 1),
		AcquisitionCost:       money("1500.00"),
		ResidualValue:         money("0.00"),
		UsefulLifeMonths:      36,
		AssetAccountID:        f.accounts["0200"].ID,
		DepreciationAccountID: f.accounts["0210"].ID,
		ExpenseAccountID:      f.accounts["4500"].ID,
	}

	negative := base
	negative.AcquisitionCost = money("-10.00")
	_, err := assets.CreateAsset(f.cc, &negative)
	assert.True(t, IsKind(err, ErrValidationFailed))

	residual := base
	residual.ResidualValue = money("2000.00")
	_, err = assets.CreateAsset(f.cc, &residual)
	assert.True(t, IsKind(err, ErrValidationFailed))

	noLife := base
	noLife.UsefulLifeMonths = 0
	_, err = assets.CreateAsset(f.cc, &noLife)
	assert.True(t, IsKind(err, ErrValidationFailed))
}

func TestPostScheduleIsIdempotent(t *testing.T) {
	f := newFixture(t)
	assets := NewAssetService(f.db)
	journal := NewJournalService(f.db)

	asset := f.createAsset("10000.00", "1000.00", 36)
	first := asset.Schedules[0]

	entry, err := assets.PostSchedule(f.cc, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EntryStatusPosted, entry.Status)
	assert.Equal(t, models.SourceTypeDepreciation, entry.SourceType)

	expense, err := journal.Balance(f.cc, f.accounts["4500"].ID, nil)
	require.NoError(t, err)
	assert.True(t, expense.Net.Equal(money("250.00")))

	again, err := assets.PostSchedule(f.cc, first.ID)
	require.NoError(t, err)
	assert.Equal(t, entry.ID, again.ID, "reposting returns the linked entry")

	reloaded, err := assets.GetAsset(f.cc, asset.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.AccumulatedDepreciation.Equal(money("250.00")),
		"accumulated %s after double post", reloaded.AccumulatedDepreciation)
	assert.True(t, reloaded.BookValue.Equal(money("9750.00")))
}

func TestPostDueSchedules(t *testing.T) {
	f := newFixture(t)
	assets := NewAssetService(f.db)

	asset := f.createAsset("10000.00", "1000.00", 36)

	// Clock is mid-March 2026; rows for January, February and March are due.
	posted, err := assets.PostDueSchedules(f.cc, f.now)
	require.NoError(t, err)
	assert.Equal(t, 3, posted)

	reloaded, err := assets.GetAsset(f.cc, asset.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.AccumulatedDepreciation.Equal(money("750.00")))

	again, err := assets.PostDueSchedules(f.cc, f.now)
	require.NoError(t, err)
	assert.Zero(t, again, "nothing left to post until next month")
}

func TestDisposeStopsDepreciation(t *testing.T) {
	f := newFixture(t)
	assets := NewAssetService(f.db)

	asset := f.createAsset("10000.00", "1000.00", 36)

	disposed, err := assets.Dispose(f.cc, asset.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AssetStatusDisposed, disposed.Status)
	require.NotNil(t, disposed.DisposedAt)

	posted, err := assets.PostDueSchedules(f.cc, f.now)
	require.NoError(t, err)
	assert.Zero(t, posted, "disposed assets are skipped")

	_, err = assets.PostSchedule(f.cc, asset.Schedules[0].ID)
	assert.True(t, IsKind(err, ErrEntryState))

	again, err := assets.Dispose(f.cc, asset.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AssetStatusDisposed, again.Status)
}
