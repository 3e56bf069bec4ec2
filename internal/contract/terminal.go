// Package contract decides when a trigger evaluation has finished.
//
// A stream of trigger updates is finished at the first update that names a final
// outcome. Errors and journey notices always end it; decisions and entitlements
// end it only when their nested kind is a final one. Anything this package does
// not recognize is treated as still in progress, so a consumer keeps waiting
// instead of closing on data it cannot interpret.
package contract

import "github.com/PratikDhanave/trigger-contract-service/internal/models"

// IsTerminal reports whether no further updates are expected after u.
// It is pure and safe to call from any goroutine.
func IsTerminal(u models.TriggerUpdate) bool {
	return Classify(u.Kind(), u.DecisionKind(), u.EntitlementKind())
}

// Classify applies the terminality table to raw discriminators.
// Discriminators that do not belong to kind are ignored.
func Classify(kind models.UpdateKind, decision models.DecisionKind, entitlement models.EntitlementKind) bool {
	switch kind {
	case models.KindError, models.KindJourney:
		return true
	case models.KindDecision:
		return terminalDecision(decision)
	case models.KindEntitlement:
		return terminalEntitlement(entitlement)
	}
	return false
}

func terminalDecision(d models.DecisionKind) bool {
	switch d {
	case models.DecisionAllowedImmediate,
		models.DecisionDeniedImmediate,
		models.DecisionNoMatch,
		models.DecisionSuppressed:
		return true
	case models.DecisionJourneyStarted,
		models.DecisionJourneyResumed,
		models.DecisionFlowShown:
		return false
	}
	return false
}

func terminalEntitlement(e models.EntitlementKind) bool {
	switch e {
	case models.EntitlementAllowed, models.EntitlementDenied:
		return true
	case models.EntitlementPending:
		return false
	}
	return false
}
