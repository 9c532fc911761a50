package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// RawTrade is a trade entry as delivered by the ingestion collaborator,
// before any validation. Notional is carried as a decimal string so no
// binary-float rounding happens on the wire.
type RawTrade struct {
	TradeID        string    `json:"trade_id"`
	Buyer          string    `json:"buyer"`
	Seller         string    `json:"seller"`
	Currency       string    `json:"currency"`
	Notional       string    `json:"notional"`
	ExecutedAt     time.Time `json:"executed_at"`
	SettlementDate time.Time `json:"settlement_date"`
}

// TradeRecord is a validated trade. Immutable once produced by the validator.
// The buyer pays the seller the notional amount in the trade currency.
type TradeRecord struct {
	TradeID        string          `json:"trade_id"`
	Buyer          string          `json:"buyer"`
	Seller         string          `json:"seller"`
	Currency       string          `json:"currency"`
	Notional       decimal.Decimal `json:"notional"`
	ExecutedAt     time.Time       `json:"executed_at"`
	SettlementDate time.Time       `json:"settlement_date"`
}

// SettlementDay returns the settlement date truncated to a calendar day key.
func (t TradeRecord) SettlementDay() string {
	return t.SettlementDate.UTC().Format("2006-01-02")
}

// RejectedTrade pairs a raw entry with the reason it failed validation.
// No entry is silently dropped: every rejected trade appears in the batch report.
type RejectedTrade struct {
	Trade  RawTrade `json:"trade"`
	Reason string   `json:"reason"`
}

// AnomalyVerdict is the screener's decision for one validated trade.
// Produced exactly once per trade and never revised.
type AnomalyVerdict struct {
	TradeID string  `json:"trade_id"`
	Score   float64 `json:"score"`
	Flagged bool    `json:"flagged"`
	// Unscored is set when the external scorer failed or timed out; the
	// trade is then flagged regardless of threshold (fail-safe policy).
	Unscored bool `json:"unscored"`
}
