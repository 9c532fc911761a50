package settlement

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Kaviyasree25/FinClear-Engine/internal/types"
)

// Transition reasons recorded in the audit history.
const (
	ReasonAccepted       = "accepted into T+1 settlement window"
	ReasonExpired        = "expired"
	ReasonDeadline       = "settlement deadline passed"
	ReasonFunded         = "funding confirmed"
	ReasonShortfall      = "funding shortfall"
	ReasonTimeout        = "funding timeout"
	ReasonRetryScheduled = "retry scheduled"
	ReasonReprocessing   = "reprocessing after retry"
	ReasonRetriesSpent   = "retry limit exhausted"
)

// FundingSource is the external funding-confirmation signal. It reports
// whether both legs of an obligation are sufficiently funded.
type FundingSource interface {
	Confirm(ctx context.Context, obligationID string) (bool, error)
}

// FundingFunc adapts a plain function to the FundingSource interface.
type FundingFunc func(ctx context.Context, obligationID string) (bool, error)

func (f FundingFunc) Confirm(ctx context.Context, obligationID string) (bool, error) {
	return f(ctx, obligationID)
}

// Tracker owns every SettlementRecord lifecycle. Transitions for one record
// are serialized behind a per-record lock; different records are independent.
// History entries are append-only and persisted atomically with the state
// change, so committed transitions survive batch cancellation.
type Tracker struct {
	db         *Database
	funding    FundingSource
	retryLimit int
	timeout    time.Duration
	now        func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewTracker creates a settlement tracker. retryLimit bounds how many times
// a failed record may re-enter PENDING_FUNDING; timeout bounds each call to
// the funding source.
func NewTracker(db *Database, funding FundingSource, retryLimit int, timeout time.Duration) *Tracker {
	return &Tracker{
		db:         db,
		funding:    funding,
		retryLimit: retryLimit,
		timeout:    timeout,
		now:        time.Now,
		locks:      make(map[string]*sync.Mutex),
	}
}

func (t *Tracker) lockFor(recordID string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.locks[recordID]
	if !ok {
		l = &sync.Mutex{}
		t.locks[recordID] = l
	}
	return l
}

// Create opens a settlement record for one obligation and immediately routes
// it into the T+1 window: PENDING_FUNDING when the settlement date is still
// reachable, FAILED_FINAL with reason "expired" when it is already past.
func (t *Tracker) Create(obligation types.NetObligation) (*types.SettlementRecord, error) {
	record := &types.SettlementRecord{
		RecordID:      "SET_" + uuid.New().String(),
		ObligationID:  obligation.ObligationID,
		BatchID:       obligation.BatchID,
		SettlementDay: obligation.SettlementDay,
		Currency:      obligation.Currency,
		Payer:         obligation.Payer,
		Payee:         obligation.Payee,
		Amount:        obligation.Amount,
		State:         types.StateCreated,
		CreatedAt:     t.now(),
		UpdatedAt:     t.now(),
	}
	if err := t.db.CreateRecord(record); err != nil {
		return nil, err
	}

	lock := t.lockFor(record.RecordID)
	lock.Lock()
	defer lock.Unlock()

	logger := log.With().
		Str("record_id", record.RecordID).
		Str("obligation_id", record.ObligationID).
		Str("service", "settlement").
		Logger()

	if t.expired(record.SettlementDay) {
		if err := t.transition(record, types.StateFailedFinal, ReasonExpired); err != nil {
			return nil, err
		}
		logger.Warn().Str("settlement_day", record.SettlementDay).Msg("obligation expired before settlement")
		return record, nil
	}

	if err := t.transition(record, types.StatePendingFunding, ReasonAccepted); err != nil {
		return nil, err
	}
	logger.Info().Str("settlement_day", record.SettlementDay).Msg("settlement record pending funding")
	return record, nil
}

// expired reports whether the settlement day is already behind the
// processing time.
func (t *Tracker) expired(settlementDay string) bool {
	day, err := time.ParseInLocation("2006-01-02", settlementDay, time.UTC)
	if err != nil {
		return true
	}
	today := t.now().UTC().Truncate(24 * time.Hour)
	return day.Before(today)
}

// ProcessFunding performs one funding check against the external source and
// applies the outcome: SETTLED on confirmation, the retry path on shortfall
// or timeout. Returns the updated record.
func (t *Tracker) ProcessFunding(ctx context.Context, recordID string) (*types.SettlementRecord, error) {
	lock := t.lockFor(recordID)
	lock.Lock()
	defer lock.Unlock()

	record, err := t.db.GetRecord(recordID)
	if err != nil {
		return nil, err
	}
	if record.State != types.StatePendingFunding {
		return record, nil
	}
	if t.expired(record.SettlementDay) {
		return record, t.failDeadline(record)
	}

	funded, err := t.confirm(ctx, record.ObligationID)
	switch {
	case err != nil && ctx.Err() != nil && !errors.Is(ctx.Err(), context.DeadlineExceeded):
		// The batch itself was cancelled: leave the record pending, its
		// committed history stays valid.
		return record, ctx.Err()
	case err != nil:
		return record, t.applyFailure(record, ReasonTimeout)
	case funded:
		if terr := t.transition(record, types.StateSettled, ReasonFunded); terr != nil {
			return nil, terr
		}
		log.Info().
			Str("record_id", record.RecordID).
			Str("service", "settlement").
			Msg("settlement completed")
		return record, nil
	default:
		return record, t.applyFailure(record, ReasonShortfall)
	}
}

// ResolveFunding applies an externally delivered funding result, bypassing
// the funding source. Used when the collaborator pushes results instead of
// being polled.
func (t *Tracker) ResolveFunding(recordID string, funded bool) (*types.SettlementRecord, error) {
	lock := t.lockFor(recordID)
	lock.Lock()
	defer lock.Unlock()

	record, err := t.db.GetRecord(recordID)
	if err != nil {
		return nil, err
	}
	if record.State != types.StatePendingFunding {
		return record, errors.New("record is not awaiting funding")
	}
	if t.expired(record.SettlementDay) {
		return record, t.failDeadline(record)
	}

	if funded {
		return record, t.transition(record, types.StateSettled, ReasonFunded)
	}
	return record, t.applyFailure(record, ReasonShortfall)
}

// confirm bounds the funding-source call with the configured timeout so a
// hung collaborator can never leave a record pending indefinitely.
func (t *Tracker) confirm(ctx context.Context, obligationID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	type result struct {
		funded bool
		err    error
	}
	ch := make(chan result, 1)
	go func() {
		funded, err := t.funding.Confirm(ctx, obligationID)
		ch <- result{funded: funded, err: err}
	}()

	select {
	case r := <-ch:
		return r.funded, r.err
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// failDeadline fails a pending record whose settlement day has passed.
// Retrying cannot help, so the record goes straight to FAILED_FINAL.
func (t *Tracker) failDeadline(record *types.SettlementRecord) error {
	if err := t.transition(record, types.StateFailed, ReasonDeadline); err != nil {
		return err
	}
	if err := t.transition(record, types.StateFailedFinal, ReasonExpired); err != nil {
		return err
	}
	log.Warn().
		Str("record_id", record.RecordID).
		Str("settlement_day", record.SettlementDay).
		Str("service", "settlement").
		Msg("settlement deadline passed while pending funding")
	return nil
}

// applyFailure routes a funding failure through the retry state machine:
// FAILED, then either RETRIED -> PENDING_FUNDING while retries remain, or
// FAILED_FINAL once the limit is spent.
func (t *Tracker) applyFailure(record *types.SettlementRecord, reason string) error {
	if err := t.transition(record, types.StateFailed, reason); err != nil {
		return err
	}

	logger := log.With().
		Str("record_id", record.RecordID).
		Str("service", "settlement").
		Logger()

	if record.RetryCount < t.retryLimit {
		if err := t.transition(record, types.StateRetried, ReasonRetryScheduled); err != nil {
			return err
		}
		if err := t.transition(record, types.StatePendingFunding, ReasonReprocessing); err != nil {
			return err
		}
		logger.Warn().
			Str("reason", reason).
			Int("retry", record.RetryCount).
			Int("retry_limit", t.retryLimit).
			Msg("settlement failed, retrying")
		return nil
	}

	if err := t.transition(record, types.StateFailedFinal, ReasonRetriesSpent); err != nil {
		return err
	}
	logger.Error().
		Str("reason", reason).
		Int("retry_limit", t.retryLimit).
		Msg("settlement failed permanently")
	return nil
}

// transition applies one lifecycle edge, appending the audit entry and
// persisting both atomically. Retried transitions consume one retry.
func (t *Tracker) transition(record *types.SettlementRecord, to types.SettlementState, reason string) error {
	if err := validateTransition(record.State, to); err != nil {
		return err
	}
	entry := &types.StateTransition{
		RecordID:   record.RecordID,
		FromState:  record.State,
		ToState:    to,
		Reason:     reason,
		OccurredAt: t.now(),
	}
	if to == types.StateRetried {
		record.RetryCount++
	}
	record.State = to
	record.UpdatedAt = entry.OccurredAt
	return t.db.SaveTransition(record, entry)
}

// Get returns the current record.
func (t *Tracker) Get(recordID string) (*types.SettlementRecord, error) {
	return t.db.GetRecord(recordID)
}

// History returns the record's full transition history, oldest first.
func (t *Tracker) History(recordID string) ([]types.StateTransition, error) {
	return t.db.GetHistory(recordID)
}

// CounterpartyRecords lists settlement records involving the counterparty.
func (t *Tracker) CounterpartyRecords(counterparty string) ([]types.SettlementRecord, error) {
	return t.db.GetCounterpartyRecords(counterparty)
}

// BatchRecords lists every settlement record opened for one batch.
func (t *Tracker) BatchRecords(batchID string) ([]types.SettlementRecord, error) {
	return t.db.GetBatchRecords(batchID)
}
