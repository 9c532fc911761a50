package validation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kaviyasree25/FinClear-Engine/internal/types"
)

func validRaw() types.RawTrade {
	executed := time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)
	return types.RawTrade{
		TradeID:        "TRX-10001",
		Buyer:          "JPMorgan",
		Seller:         "Citi",
		Currency:       "USD",
		Notional:       "125000.50",
		ExecutedAt:     executed,
		SettlementDate: executed.Add(24 * time.Hour),
	}
}

func TestValidateAccepts(t *testing.T) {
	v := NewValidator([]string{"USD", "EUR"})

	record, err := v.Validate(validRaw())
	require.NoError(t, err)

	assert.Equal(t, "TRX-10001", record.TradeID)
	assert.Equal(t, "USD", record.Currency)
	assert.Equal(t, "125000.5", record.Notional.String())
	assert.Equal(t, "2026-03-03", record.SettlementDay())
}

func TestValidateNormalizesCurrencyCase(t *testing.T) {
	v := NewValidator([]string{"usd"})

	raw := validRaw()
	raw.Currency = " usd "
	record, err := v.Validate(raw)
	require.NoError(t, err)
	assert.Equal(t, "USD", record.Currency)
}

func TestValidateRejects(t *testing.T) {
	v := NewValidator([]string{"USD"})

	tests := []struct {
		name   string
		mutate func(*types.RawTrade)
		reason string
	}{
		{
			name:   "missing trade ID",
			mutate: func(r *types.RawTrade) { r.TradeID = " " },
			reason: "missing trade ID",
		},
		{
			name:   "missing buyer",
			mutate: func(r *types.RawTrade) { r.Buyer = "" },
			reason: "missing buyer counterparty",
		},
		{
			name:   "missing seller",
			mutate: func(r *types.RawTrade) { r.Seller = "" },
			reason: "missing seller counterparty",
		},
		{
			name:   "self trade",
			mutate: func(r *types.RawTrade) { r.Seller = r.Buyer },
			reason: "buyer and seller must be distinct",
		},
		{
			name:   "unknown currency",
			mutate: func(r *types.RawTrade) { r.Currency = "XAU" },
			reason: `unrecognized currency code "XAU"`,
		},
		{
			name:   "unparseable notional",
			mutate: func(r *types.RawTrade) { r.Notional = "12,5" },
			reason: `notional "12,5" is not a valid decimal`,
		},
		{
			name:   "zero notional",
			mutate: func(r *types.RawTrade) { r.Notional = "0" },
			reason: "notional must be strictly positive",
		},
		{
			name:   "negative notional",
			mutate: func(r *types.RawTrade) { r.Notional = "-10" },
			reason: "notional must be strictly positive",
		},
		{
			name:   "missing timestamp",
			mutate: func(r *types.RawTrade) { r.ExecutedAt = time.Time{} },
			reason: "missing trade timestamp",
		},
		{
			name: "settlement before trade date",
			mutate: func(r *types.RawTrade) {
				r.SettlementDate = r.ExecutedAt.Add(-48 * time.Hour)
			},
			reason: "settlement date before trade date",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := validRaw()
			tt.mutate(&raw)

			_, err := v.Validate(raw)
			require.Error(t, err)

			verr, ok := err.(*ValidationError)
			require.True(t, ok, "expected *ValidationError, got %T", err)
			assert.Equal(t, tt.reason, verr.Reason)
		})
	}
}

func TestValidateSameDaySettlementAllowed(t *testing.T) {
	v := NewValidator([]string{"USD"})

	raw := validRaw()
	raw.SettlementDate = raw.ExecutedAt
	_, err := v.Validate(raw)
	assert.NoError(t, err)
}

func TestValidateBatchPartitions(t *testing.T) {
	v := NewValidator([]string{"USD"})

	good1 := validRaw()
	bad := validRaw()
	bad.TradeID = "TRX-BAD"
	bad.Notional = "0"
	good2 := validRaw()
	good2.TradeID = "TRX-10002"

	accepted, rejected := v.ValidateBatch([]types.RawTrade{good1, bad, good2})

	require.Len(t, accepted, 2)
	assert.Equal(t, "TRX-10001", accepted[0].TradeID)
	assert.Equal(t, "TRX-10002", accepted[1].TradeID)

	require.Len(t, rejected, 1)
	assert.Equal(t, "TRX-BAD", rejected[0].Trade.TradeID)
	assert.Equal(t, "notional must be strictly positive", rejected[0].Reason)
}

func TestValidateDoesNotMutateInput(t *testing.T) {
	v := NewValidator([]string{"USD"})

	raw := validRaw()
	raw.Currency = "usd"
	before := raw
	_, err := v.Validate(raw)
	require.NoError(t, err)
	assert.Equal(t, before, raw)
}
