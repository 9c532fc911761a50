package settlement

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kaviyasree25/FinClear-Engine/internal/database"
	"github.com/Kaviyasree25/FinClear-Engine/internal/types"
)

func newTestTracker(t *testing.T, funding FundingSource, retryLimit int) *Tracker {
	t.Helper()
	db, err := database.NewTestDatabase()
	require.NoError(t, err)
	return NewTracker(NewDatabase(db), funding, retryLimit, 100*time.Millisecond)
}

func obligation(id string, settles time.Time) types.NetObligation {
	return types.NetObligation{
		ObligationID:       id,
		BatchID:            "BAT_test",
		SettlementDay:      settles.UTC().Format("2006-01-02"),
		Currency:           "USD",
		Payer:              "JPMorgan",
		Payee:              "Citi",
		Amount:             decimal.NewFromInt(1000),
		ContributingTrades: []string{"T1", "T2"},
	}
}

func alwaysFunded() FundingSource {
	return FundingFunc(func(_ context.Context, _ string) (bool, error) {
		return true, nil
	})
}

func neverFunded() FundingSource {
	return FundingFunc(func(_ context.Context, _ string) (bool, error) {
		return false, nil
	})
}

func TestCreateRoutesToPendingFunding(t *testing.T) {
	tracker := newTestTracker(t, alwaysFunded(), 2)

	record, err := tracker.Create(obligation("OBL_1", time.Now().Add(24*time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, types.StatePendingFunding, record.State)

	history, err := tracker.History(record.RecordID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, types.StateCreated, history[0].FromState)
	assert.Equal(t, types.StatePendingFunding, history[0].ToState)
	assert.Equal(t, ReasonAccepted, history[0].Reason)
}

func TestExpiredObligationFailsImmediately(t *testing.T) {
	tracker := newTestTracker(t, alwaysFunded(), 2)

	record, err := tracker.Create(obligation("OBL_1", time.Now().Add(-48*time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, types.StateFailedFinal, record.State)

	history, err := tracker.History(record.RecordID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, types.StateCreated, history[0].FromState)
	assert.Equal(t, types.StateFailedFinal, history[0].ToState)
	assert.Equal(t, ReasonExpired, history[0].Reason)
}

func TestFundingConfirmationSettles(t *testing.T) {
	tracker := newTestTracker(t, alwaysFunded(), 2)

	record, err := tracker.Create(obligation("OBL_1", time.Now().Add(24*time.Hour)))
	require.NoError(t, err)

	record, err = tracker.ProcessFunding(context.Background(), record.RecordID)
	require.NoError(t, err)
	assert.Equal(t, types.StateSettled, record.State)

	history, err := tracker.History(record.RecordID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, ReasonFunded, history[1].Reason)
}

func TestRetryLimitExhaustion(t *testing.T) {
	tracker := newTestTracker(t, neverFunded(), 2)

	record, err := tracker.Create(obligation("OBL_1", time.Now().Add(24*time.Hour)))
	require.NoError(t, err)

	// First two shortfalls re-enter PENDING_FUNDING via RETRIED.
	for i := 1; i <= 2; i++ {
		record, err = tracker.ProcessFunding(context.Background(), record.RecordID)
		require.NoError(t, err)
		assert.Equal(t, types.StatePendingFunding, record.State, "attempt %d", i)
		assert.Equal(t, i, record.RetryCount, "attempt %d", i)
	}

	// Third shortfall exhausts the limit.
	record, err = tracker.ProcessFunding(context.Background(), record.RecordID)
	require.NoError(t, err)
	assert.Equal(t, types.StateFailedFinal, record.State)
	assert.Equal(t, 2, record.RetryCount)

	history, err := tracker.History(record.RecordID)
	require.NoError(t, err)

	var sequence []types.SettlementState
	var failures int
	for _, entry := range history {
		sequence = append(sequence, entry.ToState)
		if entry.Reason == ReasonShortfall {
			failures++
		}
	}
	assert.Equal(t, 3, failures, "one shortfall per funding attempt")
	assert.Equal(t, []types.SettlementState{
		types.StatePendingFunding,
		types.StateFailed, types.StateRetried, types.StatePendingFunding,
		types.StateFailed, types.StateRetried, types.StatePendingFunding,
		types.StateFailed, types.StateFailedFinal,
	}, sequence)

	assert.Equal(t, ReasonRetriesSpent, history[len(history)-1].Reason)
}

func TestZeroRetryLimitFailsOnFirstShortfall(t *testing.T) {
	tracker := newTestTracker(t, neverFunded(), 0)

	record, err := tracker.Create(obligation("OBL_1", time.Now().Add(24*time.Hour)))
	require.NoError(t, err)

	record, err = tracker.ProcessFunding(context.Background(), record.RecordID)
	require.NoError(t, err)
	assert.Equal(t, types.StateFailedFinal, record.State)
	assert.Zero(t, record.RetryCount)
}

func TestFundingTimeoutFails(t *testing.T) {
	hung := FundingFunc(func(ctx context.Context, _ string) (bool, error) {
		<-ctx.Done()
		return false, ctx.Err()
	})
	tracker := newTestTracker(t, hung, 0)

	record, err := tracker.Create(obligation("OBL_1", time.Now().Add(24*time.Hour)))
	require.NoError(t, err)

	record, err = tracker.ProcessFunding(context.Background(), record.RecordID)
	require.NoError(t, err)
	assert.Equal(t, types.StateFailedFinal, record.State)

	history, err := tracker.History(record.RecordID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, ReasonTimeout, history[1].Reason)
}

func TestDeadlinePassingWhilePendingFails(t *testing.T) {
	tracker := newTestTracker(t, alwaysFunded(), 2)

	record, err := tracker.Create(obligation("OBL_1", time.Now().Add(24*time.Hour)))
	require.NoError(t, err)
	require.Equal(t, types.StatePendingFunding, record.State)

	// The settlement day passes before any funding confirmation arrives.
	tracker.now = func() time.Time { return time.Now().Add(72 * time.Hour) }

	record, err = tracker.ProcessFunding(context.Background(), record.RecordID)
	require.NoError(t, err)
	assert.Equal(t, types.StateFailedFinal, record.State,
		"a late funding confirmation must not settle an expired record")

	history, err := tracker.History(record.RecordID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, ReasonDeadline, history[1].Reason)
	assert.Equal(t, ReasonExpired, history[2].Reason)
}

func TestResolveFundingAfterDeadlineFails(t *testing.T) {
	tracker := newTestTracker(t, alwaysFunded(), 2)

	record, err := tracker.Create(obligation("OBL_1", time.Now().Add(24*time.Hour)))
	require.NoError(t, err)

	tracker.now = func() time.Time { return time.Now().Add(72 * time.Hour) }

	record, err = tracker.ResolveFunding(record.RecordID, true)
	require.NoError(t, err)
	assert.Equal(t, types.StateFailedFinal, record.State)

	history, err := tracker.History(record.RecordID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, ReasonDeadline, history[1].Reason)
}

func TestTerminalRecordsAreImmutable(t *testing.T) {
	tracker := newTestTracker(t, alwaysFunded(), 2)

	record, err := tracker.Create(obligation("OBL_1", time.Now().Add(24*time.Hour)))
	require.NoError(t, err)
	record, err = tracker.ProcessFunding(context.Background(), record.RecordID)
	require.NoError(t, err)
	require.Equal(t, types.StateSettled, record.State)

	// Further funding processing is a no-op.
	again, err := tracker.ProcessFunding(context.Background(), record.RecordID)
	require.NoError(t, err)
	assert.Equal(t, types.StateSettled, again.State)

	// Externally delivered results are refused.
	_, err = tracker.ResolveFunding(record.RecordID, false)
	assert.Error(t, err)

	history, err := tracker.History(record.RecordID)
	require.NoError(t, err)
	assert.Len(t, history, 2, "history must not grow after a terminal state")
}

func TestResolveFundingShortfallUsesRetryPath(t *testing.T) {
	tracker := newTestTracker(t, neverFunded(), 1)

	record, err := tracker.Create(obligation("OBL_1", time.Now().Add(24*time.Hour)))
	require.NoError(t, err)

	record, err = tracker.ResolveFunding(record.RecordID, false)
	require.NoError(t, err)
	assert.Equal(t, types.StatePendingFunding, record.State)
	assert.Equal(t, 1, record.RetryCount)

	record, err = tracker.ResolveFunding(record.RecordID, true)
	require.NoError(t, err)
	assert.Equal(t, types.StateSettled, record.State)
}

func TestBatchCancellationLeavesRecordPending(t *testing.T) {
	funding := FundingFunc(func(ctx context.Context, _ string) (bool, error) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return true, nil
	})
	tracker := newTestTracker(t, funding, 2)

	record, err := tracker.Create(obligation("OBL_1", time.Now().Add(24*time.Hour)))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	record, err = tracker.ProcessFunding(ctx, record.RecordID)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, types.StatePendingFunding, record.State)

	// The committed history is untouched and the record can still settle.
	record, err = tracker.ProcessFunding(context.Background(), record.RecordID)
	require.NoError(t, err)
	assert.Equal(t, types.StateSettled, record.State)
}

func TestConcurrentTransitionsAreSerialized(t *testing.T) {
	tracker := newTestTracker(t, neverFunded(), 50)

	record, err := tracker.Create(obligation("OBL_1", time.Now().Add(24*time.Hour)))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = tracker.ProcessFunding(context.Background(), record.RecordID)
		}()
	}
	wg.Wait()

	final, err := tracker.Get(record.RecordID)
	require.NoError(t, err)
	assert.Equal(t, 20, final.RetryCount)
	assert.Equal(t, types.StatePendingFunding, final.State)

	history, err := tracker.History(record.RecordID)
	require.NoError(t, err)
	// Initial acceptance plus three entries per shortfall cycle.
	assert.Len(t, history, 1+20*3)
}
