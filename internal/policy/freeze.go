package policy

import "github.com/shopspring/decimal"

// Direction is the sign of a balance-affecting event.
type Direction int

// Balance directions.
const (
	DirectionNone Direction = iota
	DirectionDecrease
	DirectionIncrease
)

// DirectionOf classifies a signed amount.
func DirectionOf(amount decimal.Decimal) Direction {
	switch amount.Sign() {
	case -1:
		return DirectionDecrease
	case 1:
		return DirectionIncrease
	default:
		return DirectionNone
	}
}

// Transition is a change of the account freeze state.
type Transition string

// Freeze transitions.
const (
	TransitionNone     Transition = ""
	TransitionFrozen   Transition = "frozen"
	TransitionUnfrozen Transition = "unfrozen"
)

// EvaluateFreeze applies the freeze state machine. A decrease below the
// minimum freezes; an increase to at least the minimum unfreezes. Nothing
// else moves the state (admin override is handled by the caller).
func EvaluateFreeze(frozen bool, balance, minBalance decimal.Decimal, dir Direction) (bool, Transition) {
	switch dir {
	case DirectionDecrease:
		if !frozen && balance.LessThan(minBalance) {
			return true, TransitionFrozen
		}
	case DirectionIncrease:
		if frozen && balance.GreaterThanOrEqual(minBalance) {
			return false, TransitionUnfrozen
		}
	}
	return frozen, TransitionNone
}
