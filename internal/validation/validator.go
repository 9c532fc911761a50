package validation

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Kaviyasree25/FinClear-Engine/internal/types"
)

// ValidationError describes why a raw trade entry was rejected. It never
// aborts a batch: rejected entries are routed to the rejected partition.
type ValidationError struct {
	TradeID string
	Reason  string
}

func (e *ValidationError) Error() string {
	if e.TradeID == "" {
		return "trade validation failed: " + e.Reason
	}
	return fmt.Sprintf("trade %s validation failed: %s", e.TradeID, e.Reason)
}

// Validator normalizes and structurally validates raw trade entries.
// It is stateless and side-effect-free; inputs are never mutated.
type Validator struct {
	currencies map[string]struct{}
}

// NewValidator creates a validator recognizing the given currency codes.
func NewValidator(currencies []string) *Validator {
	set := make(map[string]struct{}, len(currencies))
	for _, c := range currencies {
		set[strings.ToUpper(strings.TrimSpace(c))] = struct{}{}
	}
	return &Validator{currencies: set}
}

// Validate checks a single raw entry and returns the normalized TradeRecord,
// or a *ValidationError describing the first violation found.
func (v *Validator) Validate(raw types.RawTrade) (types.TradeRecord, error) {
	fail := func(reason string) (types.TradeRecord, error) {
		return types.TradeRecord{}, &ValidationError{TradeID: raw.TradeID, Reason: reason}
	}

	if strings.TrimSpace(raw.TradeID) == "" {
		return fail("missing trade ID")
	}
	buyer := strings.TrimSpace(raw.Buyer)
	seller := strings.TrimSpace(raw.Seller)
	if buyer == "" {
		return fail("missing buyer counterparty")
	}
	if seller == "" {
		return fail("missing seller counterparty")
	}
	if buyer == seller {
		return fail("buyer and seller must be distinct")
	}

	currency := strings.ToUpper(strings.TrimSpace(raw.Currency))
	if currency == "" {
		return fail("missing currency code")
	}
	if _, ok := v.currencies[currency]; !ok {
		return fail(fmt.Sprintf("unrecognized currency code %q", currency))
	}

	if strings.TrimSpace(raw.Notional) == "" {
		return fail("missing notional amount")
	}
	notional, err := decimal.NewFromString(strings.TrimSpace(raw.Notional))
	if err != nil {
		return fail(fmt.Sprintf("notional %q is not a valid decimal", raw.Notional))
	}
	if !notional.IsPositive() {
		return fail("notional must be strictly positive")
	}

	if raw.ExecutedAt.IsZero() {
		return fail("missing trade timestamp")
	}
	if raw.SettlementDate.IsZero() {
		return fail("missing settlement date")
	}
	tradeDay := raw.ExecutedAt.UTC().Truncate(24 * time.Hour)
	settleDay := raw.SettlementDate.UTC().Truncate(24 * time.Hour)
	if settleDay.Before(tradeDay) {
		return fail("settlement date before trade date")
	}

	return types.TradeRecord{
		TradeID:        strings.TrimSpace(raw.TradeID),
		Buyer:          buyer,
		Seller:         seller,
		Currency:       currency,
		Notional:       notional,
		ExecutedAt:     raw.ExecutedAt,
		SettlementDate: raw.SettlementDate,
	}, nil
}

// ValidateBatch processes an ordered sequence of raw entries and partitions
// it into accepted records (input order preserved) and rejected entries with
// reasons. No entry is dropped.
func (v *Validator) ValidateBatch(raws []types.RawTrade) ([]types.TradeRecord, []types.RejectedTrade) {
	accepted := make([]types.TradeRecord, 0, len(raws))
	var rejected []types.RejectedTrade
	for _, raw := range raws {
		record, err := v.Validate(raw)
		if err != nil {
			var verr *ValidationError
			reason := err.Error()
			if errors.As(err, &verr) {
				reason = verr.Reason
			}
			rejected = append(rejected, types.RejectedTrade{Trade: raw, Reason: reason})
			continue
		}
		accepted = append(accepted, record)
	}
	return accepted, rejected
}
