package settlement

import (
	"fmt"

	"github.com/Kaviyasree25/FinClear-Engine/internal/types"
)

// transition is one directed edge in the settlement lifecycle.
type transition struct {
	From types.SettlementState
	To   types.SettlementState
}

// legalTransitions is the complete set of allowed lifecycle edges.
// SETTLED and FAILED_FINAL are terminal and have no outgoing edges.
var legalTransitions = map[transition]bool{
	{types.StateCreated, types.StatePendingFunding}: true,
	{types.StateCreated, types.StateFailedFinal}:    true, // settlement date already past

	{types.StatePendingFunding, types.StateSettled}: true,
	{types.StatePendingFunding, types.StateFailed}:  true,

	{types.StateFailed, types.StateRetried}:     true,
	{types.StateFailed, types.StateFailedFinal}: true, // retry limit exhausted

	{types.StateRetried, types.StatePendingFunding}: true,
}

// validateTransition reports whether from -> to is a legal lifecycle edge.
func validateTransition(from, to types.SettlementState) error {
	if from.Terminal() {
		return fmt.Errorf("record is terminal in state %s", from)
	}
	if !legalTransitions[transition{From: from, To: to}] {
		return fmt.Errorf("illegal settlement transition: %s -> %s", from, to)
	}
	return nil
}
