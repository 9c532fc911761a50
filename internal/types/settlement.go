package types

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SettlementState is the lifecycle state of a settlement record.
type SettlementState string

const (
	StateCreated        SettlementState = "CREATED"
	StatePendingFunding SettlementState = "PENDING_FUNDING"
	StateSettled        SettlementState = "SETTLED"
	StateFailed         SettlementState = "FAILED"
	StateRetried        SettlementState = "RETRIED"
	StateFailedFinal    SettlementState = "FAILED_FINAL"
)

// Terminal reports whether no further transition is allowed from s.
func (s SettlementState) Terminal() bool {
	return s == StateSettled || s == StateFailedFinal
}

// SettlementRecord wraps one NetObligation with its lifecycle state.
// Exactly one record owns each obligation. Mutated only by the settlement
// tracker; once a terminal state is reached the record is immutable.
type SettlementRecord struct {
	gorm.Model    `json:"-"`
	RecordID      string          `gorm:"uniqueIndex" json:"record_id"`
	ObligationID  string          `gorm:"uniqueIndex:idx_batch_record_obligation" json:"obligation_id"`
	BatchID       string          `gorm:"index;uniqueIndex:idx_batch_record_obligation" json:"batch_id"`
	SettlementDay string          `json:"settlement_day"`
	Currency      string          `json:"currency"`
	Payer         string          `gorm:"index" json:"payer"`
	Payee         string          `gorm:"index" json:"payee"`
	Amount        decimal.Decimal `gorm:"type:text" json:"amount"`
	State         SettlementState `json:"state"`
	RetryCount    int             `json:"retry_count"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// StateTransition is one append-only audit entry in a settlement record's
// history. History rows are never rewritten.
type StateTransition struct {
	gorm.Model `json:"-"`
	RecordID   string          `gorm:"index" json:"record_id"`
	FromState  SettlementState `json:"from_state"`
	ToState    SettlementState `json:"to_state"`
	Reason     string          `json:"reason"`
	OccurredAt time.Time       `json:"occurred_at"`
}
