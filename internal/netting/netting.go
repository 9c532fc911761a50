package netting

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/Kaviyasree25/FinClear-Engine/internal/types"
)

// Mode selects how far the engine reduces each bucket.
type Mode string

const (
	// ModeBilateral nets opposing amounts per counterparty pair only.
	ModeBilateral Mode = "bilateral"
	// ModeMultilateral additionally cancels directed obligation cycles,
	// the dominant liquidity-saving step.
	ModeMultilateral Mode = "multilateral"
)

// InvariantViolationError reports that the conservation law failed after a
// reduction step. This is fatal for the batch and indicates an engine bug;
// it is never silently corrected.
type InvariantViolationError struct {
	Key    types.ObligationKey
	Step   string
	Detail string
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("netting invariant violated in bucket %s after %s: %s", e.Key, e.Step, e.Detail)
}

// Result is the netting engine's output for one batch.
type Result struct {
	Obligations []types.NetObligation
	// CancelledPairs lists counterparty pairs whose trades netted to zero,
	// with their contributing trade IDs, for the audit trail.
	CancelledPairs []types.CancelledPair
}

// Engine converts accepted trades into the minimal set of net obligations.
type Engine struct {
	mode    Mode
	workers int
}

// NewEngine creates a netting engine. Buckets are processed concurrently
// across up to workers goroutines; within a bucket reduction is sequential.
func NewEngine(mode Mode, workers int) *Engine {
	if workers < 1 {
		workers = 1
	}
	return &Engine{mode: mode, workers: workers}
}

// Net partitions trades into (settlement day, currency) buckets, reduces
// each bucket, and emits the surviving obligations in deterministic order:
// buckets by key, obligations by payer then payee. Netting the same input
// twice yields byte-identical output.
func (e *Engine) Net(ctx context.Context, batchID string, trades []types.TradeRecord) (*Result, error) {
	buckets := make(map[types.ObligationKey][]types.TradeRecord)
	var keys []types.ObligationKey
	for _, t := range trades {
		key := types.ObligationKey{SettlementDay: t.SettlementDay(), Currency: t.Currency}
		if _, ok := buckets[key]; !ok {
			keys = append(keys, key)
		}
		buckets[key] = append(buckets[key], t)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })

	results := make([]*Result, len(keys))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, key := range keys {
		i, key := i, key
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r, err := e.netBucket(batchID, key, buckets[key])
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := &Result{}
	for _, r := range results {
		merged.Obligations = append(merged.Obligations, r.Obligations...)
		merged.CancelledPairs = append(merged.CancelledPairs, r.CancelledPairs...)
	}

	log.Info().
		Str("service", "netting").
		Str("batch_id", batchID).
		Str("mode", string(e.mode)).
		Int("buckets", len(keys)).
		Int("trades", len(trades)).
		Int("obligations", len(merged.Obligations)).
		Msg("netting completed")

	return merged, nil
}

// netBucket reduces a single bucket, verifying the conservation law after
// every reduction step.
func (e *Engine) netBucket(batchID string, key types.ObligationKey, trades []types.TradeRecord) (*Result, error) {
	graph := newBucketGraph(key, trades)
	before := graph.netPositions()

	graph.reduceBilateral()
	if err := graph.checkConservation(key, "bilateral reduction", before); err != nil {
		return nil, err
	}

	if e.mode == ModeMultilateral {
		graph.cancelCycles()
		if err := graph.checkConservation(key, "cycle cancellation", before); err != nil {
			return nil, err
		}
	}

	obligations, cancelled := graph.emit(batchID)
	return &Result{Obligations: obligations, CancelledPairs: cancelled}, nil
}

// checkConservation verifies each party's net position is exactly the value
// implied by the contributing trades. Amounts never pass through floats, so
// the comparison is exact.
func (g *bucketGraph) checkConservation(key types.ObligationKey, step string, want []decimal.Decimal) error {
	got := g.netPositions()
	for i := range g.parties {
		if !got[i].Equal(want[i]) {
			return &InvariantViolationError{
				Key:  key,
				Step: step,
				Detail: fmt.Sprintf("party %s: net position %s, expected %s",
					g.parties[i], got[i], want[i]),
			}
		}
	}
	return nil
}
