package types

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ObligationKey buckets trades before netting. All trades sharing a
// settlement day and currency are netted against each other.
type ObligationKey struct {
	SettlementDay string `json:"settlement_day"`
	Currency      string `json:"currency"`
}

func (k ObligationKey) String() string {
	return k.SettlementDay + "/" + k.Currency
}

// NetObligation is a single surviving payment after netting: Payer pays
// Payee the net Amount on the settlement day. ContributingTrades lists, in
// input order, every bucket trade between the two counterparties.
type NetObligation struct {
	gorm.Model         `json:"-"`
	// ObligationID is deterministic from the bucket and direction, so it is
	// only unique within a batch.
	ObligationID       string          `gorm:"uniqueIndex:idx_batch_obligation" json:"obligation_id"`
	BatchID            string          `gorm:"index;uniqueIndex:idx_batch_obligation" json:"batch_id"`
	SettlementDay      string          `json:"settlement_day"`
	Currency           string          `json:"currency"`
	Payer              string          `json:"payer"`
	Payee              string          `json:"payee"`
	Amount             decimal.Decimal `gorm:"type:text" json:"amount"`
	ContributingTrades []string        `gorm:"serializer:json" json:"contributing_trades"`
	CreatedAt          time.Time       `json:"created_at"`
}

// Key returns the bucket this obligation was netted in.
func (o NetObligation) Key() ObligationKey {
	return ObligationKey{SettlementDay: o.SettlementDay, Currency: o.Currency}
}

// CancelledPair records a counterparty pair whose opposing amounts cancelled
// exactly, so no obligation was emitted. Kept for the audit trail only.
type CancelledPair struct {
	gorm.Model         `json:"-"`
	BatchID            string   `gorm:"index" json:"batch_id"`
	SettlementDay      string   `json:"settlement_day"`
	Currency           string   `json:"currency"`
	PartyA             string   `json:"party_a"`
	PartyB             string   `json:"party_b"`
	ContributingTrades []string `gorm:"serializer:json" json:"contributing_trades"`
}
