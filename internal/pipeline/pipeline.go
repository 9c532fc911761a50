package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/Kaviyasree25/FinClear-Engine/internal/config"
	"github.com/Kaviyasree25/FinClear-Engine/internal/metrics"
	"github.com/Kaviyasree25/FinClear-Engine/internal/netting"
	"github.com/Kaviyasree25/FinClear-Engine/internal/screening"
	"github.com/Kaviyasree25/FinClear-Engine/internal/settlement"
	"github.com/Kaviyasree25/FinClear-Engine/internal/types"
	"github.com/Kaviyasree25/FinClear-Engine/internal/validation"
)

// Service sequences the four pipeline stages over one batch: validation,
// anomaly screening, netting, and settlement tracking. It is stateless
// across batches apart from the run configuration.
type Service struct {
	cfg       config.PipelineConfig
	validator *validation.Validator
	screener  *screening.Screener
	engine    *netting.Engine
	tracker   *settlement.Tracker
	db        *Database
	metrics   *metrics.Metrics
}

// NewService wires the pipeline stages. The scorer and funding source are
// the two external collaborators; everything else is owned by the pipeline.
func NewService(
	cfg config.PipelineConfig,
	scorer screening.Scorer,
	funding settlement.FundingSource,
	gormDB *gorm.DB,
	m *metrics.Metrics,
) *Service {
	return &Service{
		cfg:       cfg,
		validator: validation.NewValidator(cfg.Currencies),
		screener:  screening.NewScreener(scorer, cfg.AnomalyThreshold, cfg.ScoringTimeout, cfg.Workers),
		engine:    netting.NewEngine(netting.Mode(cfg.NettingMode), cfg.Workers),
		tracker:   settlement.NewTracker(settlement.NewDatabase(gormDB), funding, cfg.RetryLimit, cfg.FundingTimeout),
		db:        NewDatabase(gormDB),
		metrics:   m,
	}
}

// Tracker exposes the settlement tracker for externally driven transitions.
func (s *Service) Tracker() *settlement.Tracker {
	return s.tracker
}

// Run processes one batch of raw trades end to end and returns the immutable
// batch report. Validation and screening errors are recovered into the
// report; a netting invariant violation aborts the batch.
func (s *Service) Run(ctx context.Context, raws []types.RawTrade) (*types.BatchReport, error) {
	batchID := "BAT_" + uuid.New().String()
	logger := log.With().
		Str("batch_id", batchID).
		Str("service", "pipeline").
		Logger()

	report := &types.BatchReport{
		BatchID:     batchID,
		SubmittedAt: time.Now(),
		StateCounts: make(map[types.SettlementState]int),
		ErrorCounts: make(map[string]int),
		GrossVolume: decimal.Zero,
		NetVolume:   decimal.Zero,
	}

	logger.Info().Int("trades", len(raws)).Msg("starting batch run")

	// Stage 1: validation, fan-out over independent trades, input order
	// restored before screening.
	accepted, rejected, err := s.validateAll(ctx, raws)
	if err != nil {
		return nil, err
	}
	report.AcceptedCount = len(accepted)
	report.RejectedCount = len(rejected)
	report.Rejected = rejected
	report.ErrorCounts[types.ErrorKindValidation] = len(rejected)

	// Stage 2: anomaly screening over validated trades only.
	verdicts, err := s.screener.ScreenBatch(ctx, accepted)
	if err != nil {
		return nil, err
	}
	clean := make([]types.TradeRecord, 0, len(accepted))
	for i, v := range verdicts {
		if v.Flagged {
			report.FlaggedCount++
			report.FlaggedTradeIDs = append(report.FlaggedTradeIDs, v.TradeID)
			if v.Unscored {
				report.UnscoredTradeIDs = append(report.UnscoredTradeIDs, v.TradeID)
			}
			continue
		}
		clean = append(clean, accepted[i])
	}
	report.ErrorCounts[types.ErrorKindScoring] = len(report.UnscoredTradeIDs)

	for _, t := range clean {
		report.GrossVolume = report.GrossVolume.Add(t.Notional)
	}

	// Stage 3: netting. An invariant violation is fatal: the violating
	// bucket is surfaced and nothing is settled.
	result, err := s.engine.Net(ctx, batchID, clean)
	if err != nil {
		var violation *netting.InvariantViolationError
		if errors.As(err, &violation) {
			logger.Error().
				Str("bucket", violation.Key.String()).
				Str("detail", violation.Detail).
				Msg("netting invariant violated, aborting batch")
		}
		return nil, fmt.Errorf("netting failed: %w", err)
	}
	report.Obligations = result.Obligations
	report.CancelledPairs = result.CancelledPairs
	for _, o := range result.Obligations {
		report.NetVolume = report.NetVolume.Add(o.Amount)
	}
	if report.GrossVolume.IsPositive() {
		report.LiquiditySavingsPct = report.GrossVolume.Sub(report.NetVolume).
			Div(report.GrossVolume).
			Mul(decimal.NewFromInt(100))
	}

	if err := s.db.SaveNettingResult(result); err != nil {
		return nil, fmt.Errorf("failed to save netting result: %w", err)
	}

	// Stage 4: settlement tracking, one record per obligation, driven to a
	// stable state. Records are independent and processed concurrently.
	if err := s.settleAll(ctx, report, result.Obligations); err != nil {
		return nil, err
	}

	report.CompletedAt = time.Now()
	if err := s.db.SaveReport(report); err != nil {
		return nil, fmt.Errorf("failed to save batch report: %w", err)
	}
	if s.metrics != nil {
		s.metrics.ObserveBatch(report)
	}

	logger.Info().
		Int("accepted", report.AcceptedCount).
		Int("rejected", report.RejectedCount).
		Int("flagged", report.FlaggedCount).
		Int("obligations", len(report.Obligations)).
		Str("gross_volume", report.GrossVolume.String()).
		Str("net_volume", report.NetVolume.String()).
		Str("liquidity_savings_pct", report.LiquiditySavingsPct.StringFixed(2)).
		Msg("batch run completed")

	return report, nil
}

// validateAll validates trades concurrently and partitions them with input
// order preserved on both sides.
func (s *Service) validateAll(ctx context.Context, raws []types.RawTrade) ([]types.TradeRecord, []types.RejectedTrade, error) {
	type outcome struct {
		record types.TradeRecord
		err    error
	}
	outcomes := make([]outcome, len(raws))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for i := range raws {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			record, err := s.validator.Validate(raws[i])
			outcomes[i] = outcome{record: record, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var accepted []types.TradeRecord
	var rejected []types.RejectedTrade
	for i, o := range outcomes {
		if o.err != nil {
			reason := o.err.Error()
			var verr *validation.ValidationError
			if errors.As(o.err, &verr) {
				reason = verr.Reason
			}
			rejected = append(rejected, types.RejectedTrade{Trade: raws[i], Reason: reason})
			continue
		}
		accepted = append(accepted, o.record)
	}
	return accepted, rejected, nil
}

// settleAll opens a settlement record per obligation and drives each through
// funding checks until it settles, fails permanently, or the batch context
// is cancelled. Committed transitions are never rolled back.
func (s *Service) settleAll(ctx context.Context, report *types.BatchReport, obligations []types.NetObligation) error {
	records := make([]*types.SettlementRecord, len(obligations))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for i := range obligations {
		i := i
		g.Go(func() error {
			record, err := s.tracker.Create(obligations[i])
			if err != nil {
				return err
			}
			for record.State == types.StatePendingFunding {
				record, err = s.tracker.ProcessFunding(gctx, record.RecordID)
				if err != nil {
					return err
				}
			}
			records[i] = record
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, record := range records {
		report.StateCounts[record.State]++
		if record.State == types.StateFailedFinal {
			report.FailedObligationIDs = append(report.FailedObligationIDs, record.ObligationID)
		}
		history, err := s.tracker.History(record.RecordID)
		if err != nil {
			return err
		}
		for _, entry := range history {
			switch entry.Reason {
			case settlement.ReasonShortfall:
				report.ErrorCounts[types.ErrorKindFundingShortage]++
			case settlement.ReasonTimeout:
				report.ErrorCounts[types.ErrorKindFundingTimeout]++
			}
		}
	}
	return nil
}

// GetReport returns a previously completed batch report with its
// obligations reloaded.
func (s *Service) GetReport(batchID string) (*types.BatchReport, error) {
	return s.db.GetReport(batchID)
}
