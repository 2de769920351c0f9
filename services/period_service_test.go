package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"app-boekhouding/models"
)

func (f *fixture) createPeriod(name string, start, end time.Time) *models.Period {
	f.t.Helper()
	periods := NewPeriodService(f.db)
	period, err := periods.CreatePeriod(f.cc, name, models.PeriodTypeMonth, start, end)
	require.NoError(f.t, err)
	return period
}

func TestPeriodTransitions(t *testing.T) {
	f := newFixture(t)
	periods := NewPeriodService(f.db)

	period := f.createPeriod("2026-03", civil(2026, 3, 1), civil(2026, 3, 31))
	assert.Equal(t, models.PeriodStatusOpen, period.Status)

	reviewed, err := periods.StartReview(f.cc, period.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PeriodStatusReview, reviewed.Status)
	require.NotNil(t, reviewed.ReviewStartedAt)

	_, err = periods.StartReview(f.cc, period.ID)
	assert.True(t, IsKind(err, ErrPeriodState), "REVIEW -> REVIEW is not a transition")

	reopened, err := periods.Reopen(f.cc, period.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PeriodStatusOpen, reopened.Status)
	assert.Nil(t, reopened.ReviewStartedAt)

	_, err = periods.Lock(f.cc, period.ID, true)
	assert.True(t, IsKind(err, ErrPeriodState), "OPEN periods cannot be locked")

	_, err = periods.CreatePeriod(f.cc, "overlap", models.PeriodTypeMonth,
		civil(2026, 3, 15), civil(2026, 4, 14))
	assert.True(t, IsKind(err, ErrPeriodState), "overlapping periods are rejected")
}

func TestFinalizeBlocksUntilIssueFixed(t *testing.T) {
	f := newFixture(t)
	periods := NewPeriodService(f.db)
	subledger := NewSubledgerService(f.db)

	period := f.createPeriod("2026-01", civil(2026, 1, 1), civil(2026, 1, 31))

	// Due 2026-02-09; the clock stands at 2026-03-15, 34 days overdue: RED.
	sale := f.postSale(money("1210.00"), "2026-0001", civil(2026, 1, 10))

	_, err := periods.Finalize(context.Background(), f.cc, period.ID, nil)
	require.Error(t, err)
	assert.True(t, IsKind(err, ErrFinalizationPrerequisite))
	var typed *Error
	require.True(t, errors.As(err, &typed))
	assert.NotEmpty(t, typed.Details["red_issue_ids"])

	item := f.openItemForEntry(sale.ID)
	payment := f.postPayment(money("1210.00"), civil(2026, 3, 10))
	_, err = subledger.Allocate(f.cc, payment.ID, item.ID, money("1210.00"), civil(2026, 3, 10))
	require.NoError(t, err)

	result, err := periods.Finalize(context.Background(), f.cc, period.ID, nil)
	require.NoError(t, err, "finalization must pass once the overdue item is settled")
	assert.Equal(t, models.PeriodStatusFinalized, result.Period.Status)
	require.NotNil(t, result.Snapshot)
	assert.NotEmpty(t, result.Snapshot.SnapshotUID)
	assert.NotEmpty(t, result.Snapshot.TrialBalanceJSON)
	assert.NotEmpty(t, result.Snapshot.VatSummaryJSON)

	snapshot, err := periods.GetSnapshot(f.cc, period.ID)
	require.NoError(t, err)
	assert.Equal(t, result.Snapshot.SnapshotUID, snapshot.SnapshotUID)
}

func TestFinalizedPeriodRejectsPostings(t *testing.T) {
	f := newFixture(t)
	periods := NewPeriodService(f.db)
	journal := NewJournalService(f.db)

	period := f.createPeriod("2026-01", civil(2026, 1, 1), civil(2026, 1, 31))
	_, err := periods.Finalize(context.Background(), f.cc, period.ID, nil)
	require.NoError(t, err)

	_, err = journal.CreateEntry(f.cc, &CreateEntryRequest{
		EntryDate:   civil(2026, 1, 20),
		Description: "late booking",
		Lines: []JournalLineInput{
			{AccountID: f.accounts["4000"].ID, DebitAmount: money("10.00")},
			{AccountID: f.accounts["1100"].ID, CreditAmount: money("10.00")},
		},
	})
	assert.True(t, IsKind(err, ErrPeriodFinalized))

	var rejected int64
	require.NoError(t, f.db.Model(&models.PeriodAuditLog{}).
		Where("tenant_id = ? AND action = ?", testTenant, models.PeriodActionPostingRejected).
		Count(&rejected).Error)
	assert.EqualValues(t, 1, rejected, "rejected postings leave an audit row")
}

func TestFinalizeRequiresYellowAcknowledgment(t *testing.T) {
	f := newFixture(t)
	periods := NewPeriodService(f.db)
	consistency := NewConsistencyService(f.db)

	period := f.createPeriod("2026-02", civil(2026, 2, 1), civil(2026, 2, 28))

	// Due 2026-03-03; 12 days overdue at the fixture clock: YELLOW.
	f.postSale(money("121.00"), "2026-0002", civil(2026, 2, 1))

	_, err := periods.StartReview(f.cc, period.ID)
	require.NoError(t, err)

	_, err = periods.Finalize(context.Background(), f.cc, period.ID, nil)
	require.Error(t, err)
	assert.True(t, IsKind(err, ErrFinalizationPrerequisite))

	issues, err := consistency.ListIssues(f.cc)
	require.NoError(t, err)
	var yellowIDs []uint
	for _, issue := range issues {
		require.Equal(t, models.SeverityYellow, issue.Severity)
		yellowIDs = append(yellowIDs, issue.ID)
	}
	require.NotEmpty(t, yellowIDs)

	result, err := periods.Finalize(context.Background(), f.cc, period.ID, yellowIDs)
	require.NoError(t, err, "acknowledged YELLOW issues do not block")
	assert.Equal(t, 1, result.Snapshot.YellowIssueCount)
	assert.Zero(t, result.Snapshot.RedIssueCount, "RED issues block, so a snapshot records none")
}

func TestReversalRoutedToNextOpenPeriod(t *testing.T) {
	f := newFixture(t)
	periods := NewPeriodService(f.db)
	journal := NewJournalService(f.db)

	january := f.createPeriod("2026-01", civil(2026, 1, 1), civil(2026, 1, 31))
	february := f.createPeriod("2026-02", civil(2026, 2, 1), civil(2026, 2, 28))

	entry, err := journal.CreateEntry(f.cc, &CreateEntryRequest{
		EntryDate:   civil(2026, 1, 10),
		Description: "hosting",
		AutoPost:    true,
		Lines: []JournalLineInput{
			{AccountID: f.accounts["4000"].ID, DebitAmount: money("99.00")},
			{AccountID: f.accounts["1100"].ID, CreditAmount: money("99.00")},
		},
	})
	require.NoError(t, err)

	_, err = periods.Finalize(context.Background(), f.cc, january.ID, nil)
	require.NoError(t, err)

	reversal, err := journal.ReverseEntry(f.cc, entry.ID, civil(2026, 1, 15), "")
	require.NoError(t, err)
	assert.Equal(t, february.StartDate, reversal.EntryDate,
		"reversal of an entry in a finalized period lands in the next open period")
}

func TestLockIsTerminal(t *testing.T) {
	f := newFixture(t)
	periods := NewPeriodService(f.db)
	journal := NewJournalService(f.db)

	period := f.createPeriod("2026-01", civil(2026, 1, 1), civil(2026, 1, 31))

	entry, err := journal.CreateEntry(f.cc, &CreateEntryRequest{
		EntryDate:   civil(2026, 1, 5),
		Description: "insurance",
		AutoPost:    true,
		Lines: []JournalLineInput{
			{AccountID: f.accounts["4000"].ID, DebitAmount: money("55.00")},
			{AccountID: f.accounts["1100"].ID, CreditAmount: money("55.00")},
		},
	})
	require.NoError(t, err)

	_, err = periods.Finalize(context.Background(), f.cc, period.ID, nil)
	require.NoError(t, err)

	_, err = periods.Lock(f.cc, period.ID, false)
	assert.True(t, IsKind(err, ErrValidationFailed), "locking requires explicit confirmation")

	locked, err := periods.Lock(f.cc, period.ID, true)
	require.NoError(t, err)
	assert.Equal(t, models.PeriodStatusLocked, locked.Status)

	_, err = journal.CreateEntry(f.cc, &CreateEntryRequest{
		EntryDate:   civil(2026, 1, 20),
		Description: "too late",
		Lines: []JournalLineInput{
			{AccountID: f.accounts["4000"].ID, DebitAmount: money("10.00")},
			{AccountID: f.accounts["1100"].ID, CreditAmount: money("10.00")},
		},
	})
	assert.True(t, IsKind(err, ErrPeriodLocked))

	_, err = journal.ReverseEntry(f.cc, entry.ID, civil(2026, 1, 25), "")
	assert.True(t, IsKind(err, ErrPeriodLocked), "entries in locked periods cannot be reversed")
}
