package screening

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/Kaviyasree25/FinClear-Engine/internal/types"
)

// ErrScoringUnavailable marks a scorer failure or timeout. The affected
// trade is flagged rather than passed through clean.
var ErrScoringUnavailable = errors.New("scoring unavailable")

// FeatureVector is the fixed feature set extracted from a trade before
// scoring. The screener guarantees identical vectors for identical batches,
// so verdicts are reproducible for a deterministic scorer.
type FeatureVector struct {
	// Amount is the trade notional as a float feature.
	Amount float64
	// PairFrequencyRank ranks the counterparty pair by trade count within
	// the batch, 0 being the most active pair.
	PairFrequencyRank int
	// AvgDeviation is the relative deviation of the notional from the
	// rolling average of the buyer's prior trades in the batch.
	AvgDeviation float64
	// TimeOfDayBucket is the trade hour of day, 0..23, in UTC.
	TimeOfDayBucket int
}

// Scorer is the external anomaly-scoring function. Implementations must be
// callable with bounded latency; the screener enforces a timeout on top.
type Scorer interface {
	Score(ctx context.Context, features FeatureVector) (float64, error)
}

// ScorerFunc adapts a plain function to the Scorer interface.
type ScorerFunc func(ctx context.Context, features FeatureVector) (float64, error)

func (f ScorerFunc) Score(ctx context.Context, features FeatureVector) (float64, error) {
	return f(ctx, features)
}

// Screener applies the injected scoring function to validated trades and
// turns scores into binary verdicts against a configured threshold. The
// screener itself introduces no randomness.
type Screener struct {
	scorer    Scorer
	threshold float64
	timeout   time.Duration
	workers   int
}

// NewScreener builds a screener around the injected scorer. A trade is
// flagged when its score is at or above threshold, or whenever the scorer
// errors or exceeds timeout (fail-safe-to-flag).
func NewScreener(scorer Scorer, threshold float64, timeout time.Duration, workers int) *Screener {
	if workers < 1 {
		workers = 1
	}
	return &Screener{scorer: scorer, threshold: threshold, timeout: timeout, workers: workers}
}

// ScreenBatch scores every trade and returns one verdict per trade, in input
// order. Scoring runs concurrently across trades; feature extraction is done
// up front over the whole batch so verdicts do not depend on scheduling.
func (s *Screener) ScreenBatch(ctx context.Context, trades []types.TradeRecord) ([]types.AnomalyVerdict, error) {
	features := ExtractFeatures(trades)
	verdicts := make([]types.AnomalyVerdict, len(trades))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i := range trades {
		i := i
		g.Go(func() error {
			verdicts[i] = s.screenOne(gctx, trades[i], features[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return verdicts, nil
}

func (s *Screener) screenOne(ctx context.Context, trade types.TradeRecord, features FeatureVector) types.AnomalyVerdict {
	logger := log.With().
		Str("trade_id", trade.TradeID).
		Str("service", "screening").
		Logger()

	score, err := s.callScorer(ctx, features)
	if err != nil {
		logger.Warn().Err(err).Msg("scorer unavailable, flagging trade fail-safe")
		return types.AnomalyVerdict{TradeID: trade.TradeID, Flagged: true, Unscored: true}
	}

	flagged := score >= s.threshold
	if flagged {
		logger.Info().
			Float64("score", score).
			Float64("threshold", s.threshold).
			Msg("trade flagged as anomalous")
	}
	return types.AnomalyVerdict{TradeID: trade.TradeID, Score: score, Flagged: flagged}
}

// callScorer invokes the external scorer with the configured time bound.
// A timed-out call is abandoned, never waited on indefinitely.
func (s *Screener) callScorer(ctx context.Context, features FeatureVector) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	type result struct {
		score float64
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		score, err := s.scorer.Score(ctx, features)
		ch <- result{score: score, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return 0, errors.Join(ErrScoringUnavailable, r.err)
		}
		return r.score, nil
	case <-ctx.Done():
		return 0, errors.Join(ErrScoringUnavailable, ctx.Err())
	}
}

// ExtractFeatures computes the feature vector for every trade in the batch.
// Pair frequency ranks and rolling averages are derived from the batch
// itself, in input order, so the extraction is deterministic.
func ExtractFeatures(trades []types.TradeRecord) []FeatureVector {
	pairCounts := make(map[string]int)
	for _, t := range trades {
		pairCounts[pairKey(t.Buyer, t.Seller)]++
	}

	// Rank pairs by descending count, lexical key as tie-break.
	pairs := make([]string, 0, len(pairCounts))
	for p := range pairCounts {
		pairs = append(pairs, p)
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairCounts[pairs[i]] != pairCounts[pairs[j]] {
			return pairCounts[pairs[i]] > pairCounts[pairs[j]]
		}
		return pairs[i] < pairs[j]
	})
	rank := make(map[string]int, len(pairs))
	for i, p := range pairs {
		rank[p] = i
	}

	// Rolling per-buyer average over prior trades in input order.
	sums := make(map[string]float64)
	counts := make(map[string]int)

	features := make([]FeatureVector, len(trades))
	for i, t := range trades {
		amount, _ := t.Notional.Float64()

		deviation := 0.0
		if counts[t.Buyer] > 0 {
			mean := sums[t.Buyer] / float64(counts[t.Buyer])
			if mean != 0 {
				deviation = (amount - mean) / mean
				if deviation < 0 {
					deviation = -deviation
				}
			}
		}
		sums[t.Buyer] += amount
		counts[t.Buyer]++

		features[i] = FeatureVector{
			Amount:            amount,
			PairFrequencyRank: rank[pairKey(t.Buyer, t.Seller)],
			AvgDeviation:      deviation,
			TimeOfDayBucket:   t.ExecutedAt.UTC().Hour(),
		}
	}
	return features
}

func pairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "|" + b
}
