package types

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// BatchReport is the immutable result of one pipeline run.
type BatchReport struct {
	gorm.Model  `json:"-"`
	BatchID     string    `gorm:"uniqueIndex" json:"batch_id"`
	SubmittedAt time.Time `json:"submitted_at"`
	CompletedAt time.Time `json:"completed_at"`

	AcceptedCount int             `json:"accepted_count"`
	RejectedCount int             `json:"rejected_count"`
	Rejected      []RejectedTrade `gorm:"serializer:json" json:"rejected"`

	FlaggedCount    int      `json:"flagged_count"`
	FlaggedTradeIDs []string `gorm:"serializer:json" json:"flagged_trade_ids"`
	// UnscoredTradeIDs lists trades flagged because the external scorer
	// failed or timed out, a subset of FlaggedTradeIDs.
	UnscoredTradeIDs []string `gorm:"serializer:json" json:"unscored_trade_ids"`

	// FailedObligationIDs lists obligations that ended the run FAILED_FINAL,
	// so the report enumerates every affected ID without a history lookup.
	FailedObligationIDs []string `gorm:"serializer:json" json:"failed_obligation_ids"`

	Obligations    []NetObligation `gorm:"-" json:"obligations"`
	CancelledPairs []CancelledPair `gorm:"-" json:"cancelled_pairs,omitempty"`

	// GrossVolume is the sum of absolute accepted trade amounts before
	// netting; NetVolume the sum of emitted obligation amounts.
	GrossVolume decimal.Decimal `gorm:"type:text" json:"gross_volume"`
	NetVolume   decimal.Decimal `gorm:"type:text" json:"net_volume"`
	// LiquiditySavingsPct = (gross - net) / gross * 100, zero when gross is zero.
	LiquiditySavingsPct decimal.Decimal `gorm:"type:text" json:"liquidity_savings_pct"`

	// StateCounts is the settlement-state distribution at the end of the run.
	StateCounts map[SettlementState]int `gorm:"serializer:json" json:"state_counts"`

	// ErrorCounts tallies recovered errors by kind; the affected IDs are
	// enumerated in Rejected, UnscoredTradeIDs and the settlement histories.
	ErrorCounts map[string]int `gorm:"serializer:json" json:"error_counts"`
}

// Error kinds tallied in BatchReport.ErrorCounts.
const (
	ErrorKindValidation      = "validation_error"
	ErrorKindScoring         = "scoring_unavailable"
	ErrorKindFundingTimeout  = "funding_timeout"
	ErrorKindFundingShortage = "funding_shortfall"
)
