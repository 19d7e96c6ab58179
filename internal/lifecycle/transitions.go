package lifecycle

import "fmt"

// GuardResult represents the outcome of a guard evaluation.
type GuardResult struct {
	Allowed bool
	Reason  string
}

var allowedTransitions = map[SupportStatus]map[SupportStatus]struct{}{
	SupportSuggested: {
		SupportEngaging:   {},
		SupportWaiting:    {},
		SupportClosed:     {},
		SupportUnsuitable: {},
	},
	SupportEngaging: {
		SupportWaiting:    {},
		SupportClosed:     {},
		SupportUnsuitable: {},
	},
	SupportWaiting: {
		SupportEngaging:   {},
		SupportClosed:     {},
		SupportUnsuitable: {},
	},
}

// TransitionContext provides context for support status guards.
type TransitionContext struct {
	SupportID    string
	From         SupportStatus
	To           SupportStatus
	IsMostRecent bool
}

// CanTransition evaluates whether a support may move between statuses.
// Rules:
// - The edge must be one of the ten lifecycle edges
// - Superseded rows (not most recent) are read-only history
func CanTransition(ctx TransitionContext) GuardResult {
	if !ctx.IsMostRecent {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("support %s has been superseded by a newer record", ctx.SupportID),
		}
	}
	if !IsAllowedTransition(ctx.From, ctx.To) {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("cannot move support %s from %s to %s", ctx.SupportID, ctx.From, ctx.To),
		}
	}
	return GuardResult{Allowed: true}
}

// IsAllowedTransition reports edge legality without row context.
func IsAllowedTransition(from, to SupportStatus) bool {
	_, ok := allowedTransitions[from][to]
	return ok
}
