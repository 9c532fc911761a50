package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/Kaviyasree25/FinClear-Engine/internal/config"
	"github.com/Kaviyasree25/FinClear-Engine/internal/database"
	"github.com/Kaviyasree25/FinClear-Engine/internal/metrics"
	"github.com/Kaviyasree25/FinClear-Engine/internal/pipeline"
	"github.com/Kaviyasree25/FinClear-Engine/internal/screening"
	"github.com/Kaviyasree25/FinClear-Engine/internal/settlement"
	"github.com/Kaviyasree25/FinClear-Engine/internal/types"
)

var (
	counterparties = []string{"JPMorgan", "Goldman Sachs", "Morgan Stanley", "Citi", "BlackRock"}
	currencies     = []string{"USD", "EUR", "GBP"}
)

const (
	// fatFingerMultiplier inflates a handful of trades so the screener has
	// genuine outliers to find.
	fatFingerMultiplier = 50
	fatFingerCount      = 3
)

// init configures the logger for the simulation with pretty printing and timestamp
func init() {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// generateTrades produces n random trades among the major counterparties,
// settling T+1, with fat-finger errors injected at the front of the batch.
func generateTrades(rng *rand.Rand, n int, now time.Time) []types.RawTrade {
	trades := make([]types.RawTrade, 0, n)
	settlementDate := now.Add(24 * time.Hour)

	for i := 0; i < n; i++ {
		buyer := counterparties[rng.Intn(len(counterparties))]
		seller := counterparties[rng.Intn(len(counterparties))]
		for seller == buyer {
			seller = counterparties[rng.Intn(len(counterparties))]
		}

		quantity := rng.Intn(990) + 10
		price := decimal.NewFromFloat(100 + rng.Float64()*1400).Round(2)
		notional := price.Mul(decimal.NewFromInt(int64(quantity)))
		if i < fatFingerCount {
			notional = notional.Mul(decimal.NewFromInt(fatFingerMultiplier))
		}

		trades = append(trades, types.RawTrade{
			TradeID:        fmt.Sprintf("TRX-%05d", i+1),
			Buyer:          buyer,
			Seller:         seller,
			Currency:       currencies[rng.Intn(len(currencies))],
			Notional:       notional.String(),
			ExecutedAt:     now.Add(time.Duration(i) * time.Millisecond),
			SettlementDate: settlementDate,
		})
	}
	return trades
}

// shortfallFunding confirms funding for most obligations, with a fixed
// shortfall rate to exercise the retry machinery.
func shortfallFunding(rng *rand.Rand, shortfallPct int) settlement.FundingSource {
	return settlement.FundingFunc(func(_ context.Context, _ string) (bool, error) {
		return rng.Intn(100) >= shortfallPct, nil
	})
}

func main() {
	var (
		numTrades  = flag.Int("trades", 1000, "trades per batch")
		numBatches = flag.Int("batches", 3, "batches to run")
		seed       = flag.Int64("seed", time.Now().UnixNano(), "random seed")
		shortfall  = flag.Int("shortfall-pct", 5, "funding shortfall percentage")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	db, err := database.NewTestDatabase()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}

	rng := rand.New(rand.NewSource(*seed))
	service := pipeline.NewService(
		cfg.Pipeline,
		screening.DeviationScorer{},
		shortfallFunding(rng, *shortfall),
		db,
		metrics.New(),
	)

	log.Info().
		Int("trades_per_batch", *numTrades).
		Int("batches", *numBatches).
		Int64("seed", *seed).
		Str("netting_mode", cfg.Pipeline.NettingMode).
		Msg("starting market simulation")

	totalGross := decimal.Zero
	totalNet := decimal.Zero

	for batch := 1; batch <= *numBatches; batch++ {
		trades := generateTrades(rng, *numTrades, time.Now().UTC())

		start := time.Now()
		report, err := service.Run(context.Background(), trades)
		if err != nil {
			log.Fatal().Err(err).Int("batch", batch).Msg("batch run failed")
		}

		totalGross = totalGross.Add(report.GrossVolume)
		totalNet = totalNet.Add(report.NetVolume)

		log.Info().
			Int("batch", batch).
			Dur("elapsed", time.Since(start)).
			Int("accepted", report.AcceptedCount).
			Int("rejected", report.RejectedCount).
			Int("flagged", report.FlaggedCount).
			Int("obligations", len(report.Obligations)).
			Str("gross_volume", report.GrossVolume.StringFixed(2)).
			Str("net_volume", report.NetVolume.StringFixed(2)).
			Str("liquidity_savings_pct", report.LiquiditySavingsPct.StringFixed(2)).
			Interface("settlement_states", report.StateCounts).
			Msg("batch completed")
	}

	savings := decimal.Zero
	if totalGross.IsPositive() {
		savings = totalGross.Sub(totalNet).Div(totalGross).Mul(decimal.NewFromInt(100))
	}
	log.Info().
		Str("total_gross", totalGross.StringFixed(2)).
		Str("total_net", totalNet.StringFixed(2)).
		Str("liquidity_savings_pct", savings.StringFixed(2)).
		Msg("simulation complete")
}
