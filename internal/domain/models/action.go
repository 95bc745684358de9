package models

// Action is the trading stance an analyst or the panel can take.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
	ActionAdd  Action = "ADD"
	ActionTrim Action = "TRIM"
)

// Actions lists every known action in default priority order
// (used for deterministic tie-breaking).
func Actions() []Action {
	return []Action{ActionSell, ActionBuy, ActionHold, ActionAdd, ActionTrim}
}

// IsValidAction returns true if a is a supported action.
func IsValidAction(a Action) bool {
	switch a {
	case ActionBuy, ActionSell, ActionHold, ActionAdd, ActionTrim:
		return true
	default:
		return false
	}
}

// NormalizeAction converts raw string to a valid action (or HOLD).
func NormalizeAction(s string) Action {
	a := Action(s)
	if IsValidAction(a) {
		return a
	}
	return ActionHold
}

// Actionable reports whether the action implies a position change the
// committee can size. HOLD is never sized.
func (a Action) Actionable() bool {
	switch a {
	case ActionBuy, ActionSell, ActionAdd, ActionTrim:
		return true
	default:
		return false
	}
}

// Accumulative reports whether the action increases exposure. Stop losses
// sit below the target price for accumulative actions and above it for
// reducing ones.
func (a Action) Accumulative() bool {
	return a == ActionBuy || a == ActionAdd
}
