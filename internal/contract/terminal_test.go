package contract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PratikDhanave/trigger-contract-service/internal/models"
)

// Every declared enum value must have an explicit expectation here; a new value
// without one fails TestClassify_CoversEveryKnownValue.
var (
	decisionExpectations = map[models.DecisionKind]bool{
		models.DecisionAllowedImmediate: true,
		models.DecisionDeniedImmediate:  true,
		models.DecisionNoMatch:          true,
		models.DecisionSuppressed:       true,
		models.DecisionJourneyStarted:   false,
		models.DecisionJourneyResumed:   false,
		models.DecisionFlowShown:        false,
	}
	entitlementExpectations = map[models.EntitlementKind]bool{
		models.EntitlementAllowed: true,
		models.EntitlementDenied:  true,
		models.EntitlementPending: false,
	}
)

func TestClassify_CoversEveryKnownValue(t *testing.T) {
	for _, d := range models.DecisionKinds() {
		want, ok := decisionExpectations[d]
		require.Truef(t, ok, "decision kind %q has no terminal expectation", d)
		assert.Equalf(t, want, Classify(models.KindDecision, d, ""), "decision %q", d)
	}
	for _, e := range models.EntitlementKinds() {
		want, ok := entitlementExpectations[e]
		require.Truef(t, ok, "entitlement kind %q has no terminal expectation", e)
		assert.Equalf(t, want, Classify(models.KindEntitlement, "", e), "entitlement %q", e)
	}
	for _, k := range models.UpdateKinds() {
		assert.Truef(t, k.Known(), "kind %q", k)
	}
}

func TestClassify_ErrorAndJourneyIgnoreDiscriminators(t *testing.T) {
	decisions := append(models.DecisionKinds(), "", "pending")
	entitlements := append(models.EntitlementKinds(), "", "grace_period")

	for _, kind := range []models.UpdateKind{models.KindError, models.KindJourney} {
		for _, d := range decisions {
			for _, e := range entitlements {
				assert.Truef(t, Classify(kind, d, e), "%s with %q/%q", kind, d, e)
			}
		}
	}
}

func TestClassify_DiscriminatorOfTheOtherKindIsIgnored(t *testing.T) {
	for _, e := range models.EntitlementKinds() {
		assert.False(t, Classify(models.KindDecision, "", e))
	}
	for _, d := range models.DecisionKinds() {
		assert.False(t, Classify(models.KindEntitlement, d, ""))
	}
}

func TestClassify_UnrecognizedValuesAreNotTerminal(t *testing.T) {
	assert.False(t, Classify(models.KindDecision, "pending", ""))
	assert.False(t, Classify(models.KindEntitlement, "", "grace_period"))
	assert.False(t, Classify("paywall_closed", models.DecisionNoMatch, models.EntitlementAllowed))
	assert.False(t, Classify("", "", ""))
}

func TestIsTerminal_Scenarios(t *testing.T) {
	tests := []struct {
		name   string
		update models.TriggerUpdate
		want   bool
	}{
		{"decision allowed_immediate", models.MustUpdate(models.KindDecision, models.DecisionAllowedImmediate, "", models.Payload{}), true},
		{"decision pending", models.MustUpdate(models.KindDecision, "pending", "", models.Payload{}), false},
		{"entitlement denied", models.MustUpdate(models.KindEntitlement, "", models.EntitlementDenied, models.Payload{}), true},
		{"journey", models.NewJourney(models.Payload{}), true},
		{"error", models.NewError(models.Payload{Error: models.UpdateError{Code: "network"}}), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsTerminal(tt.update)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, IsTerminal(tt.update), "classification must be stable")
		})
	}
}

func TestIsTerminal_IgnoresProducerHint(t *testing.T) {
	yes, no := true, false

	pending := models.MustUpdate(models.KindEntitlement, "", models.EntitlementPending, models.Payload{ProducerTerminal: &yes})
	assert.False(t, IsTerminal(pending))

	denied := models.MustUpdate(models.KindEntitlement, "", models.EntitlementDenied, models.Payload{ProducerTerminal: &no})
	assert.True(t, IsTerminal(denied))
}

func TestIsTerminal_ConcurrentCallers(t *testing.T) {
	u := models.MustUpdate(models.KindDecision, models.DecisionSuppressed, "", models.Payload{})
	done := make(chan bool, 32)
	for i := 0; i < cap(done); i++ {
		go func() { done <- IsTerminal(u) }()
	}
	for i := 0; i < cap(done); i++ {
		assert.True(t, <-done)
	}
}
