package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedUpdate is returned when an update's kind and discriminators do not pair up.
var ErrMalformedUpdate = errors.New("malformed trigger update")

// UpdateKind discriminates which nested payload a TriggerUpdate carries.
type UpdateKind string

const (
	KindError       UpdateKind = "error"
	KindJourney     UpdateKind = "journey"
	KindDecision    UpdateKind = "decision"
	KindEntitlement UpdateKind = "entitlement"
)

// UpdateKinds lists every kind this package knows about.
func UpdateKinds() []UpdateKind {
	return []UpdateKind{KindError, KindJourney, KindDecision, KindEntitlement}
}

// Known reports whether k is one of the declared kinds.
func (k UpdateKind) Known() bool {
	switch k {
	case KindError, KindJourney, KindDecision, KindEntitlement:
		return true
	}
	return false
}

// DecisionKind is the gating outcome reported by a decision update.
type DecisionKind string

const (
	DecisionNoMatch          DecisionKind = "no_match"
	DecisionSuppressed       DecisionKind = "suppressed"
	DecisionJourneyStarted   DecisionKind = "journey_started"
	DecisionJourneyResumed   DecisionKind = "journey_resumed"
	DecisionFlowShown        DecisionKind = "flow_shown"
	DecisionAllowedImmediate DecisionKind = "allowed_immediate"
	DecisionDeniedImmediate  DecisionKind = "denied_immediate"
)

// DecisionKinds lists every declared decision kind.
func DecisionKinds() []DecisionKind {
	return []DecisionKind{
		DecisionNoMatch,
		DecisionSuppressed,
		DecisionJourneyStarted,
		DecisionJourneyResumed,
		DecisionFlowShown,
		DecisionAllowedImmediate,
		DecisionDeniedImmediate,
	}
}

// Known reports whether d is one of the declared decision kinds.
func (d DecisionKind) Known() bool {
	for _, v := range DecisionKinds() {
		if v == d {
			return true
		}
	}
	return false
}

// EntitlementKind is the resolved access state reported by an entitlement update.
type EntitlementKind string

const (
	EntitlementPending EntitlementKind = "pending"
	EntitlementAllowed EntitlementKind = "allowed"
	EntitlementDenied  EntitlementKind = "denied"
)

// EntitlementKinds lists every declared entitlement kind.
func EntitlementKinds() []EntitlementKind {
	return []EntitlementKind{EntitlementPending, EntitlementAllowed, EntitlementDenied}
}

// Known reports whether e is one of the declared entitlement kinds.
func (e EntitlementKind) Known() bool {
	for _, v := range EntitlementKinds() {
		if v == e {
			return true
		}
	}
	return false
}

// SuppressReason says why a suppressed decision did not show anything.
// Values outside this set arrive verbatim in RawSuppressReason.
type SuppressReason string

const (
	SuppressAlreadyActive  SuppressReason = "already_active"
	SuppressReentryLimited SuppressReason = "reentry_limited"
	SuppressHoldout        SuppressReason = "holdout"
	SuppressNoFlow         SuppressReason = "no_flow"
	SuppressUnknown        SuppressReason = "unknown"
)

// GateSource is where an entitlement was resolved from.
type GateSource string

const (
	GateCache    GateSource = "cache"
	GatePurchase GateSource = "purchase"
	GateRestore  GateSource = "restore"
)

// JourneyExitReason says how a journey ended.
type JourneyExitReason string

const (
	ExitCompleted        JourneyExitReason = "completed"
	ExitGoalMet          JourneyExitReason = "goal_met"
	ExitTriggerUnmatched JourneyExitReason = "trigger_unmatched"
	ExitExpired          JourneyExitReason = "expired"
	ExitError            JourneyExitReason = "error"
	ExitCancelled        JourneyExitReason = "cancelled"
)

// JourneyRef points at the journey a decision started, resumed or showed.
type JourneyRef struct {
	JourneyID  string `json:"journey_id,omitempty" mapstructure:"journey_id"`
	CampaignID string `json:"campaign_id,omitempty" mapstructure:"campaign_id"`
	FlowID     string `json:"flow_id,omitempty" mapstructure:"flow_id"`
}

// Journey describes how a journey ended.
type Journey struct {
	JourneyID       string            `json:"journey_id,omitempty" mapstructure:"journey_id"`
	CampaignID      string            `json:"campaign_id,omitempty" mapstructure:"campaign_id"`
	FlowID          string            `json:"flow_id,omitempty" mapstructure:"flow_id"`
	ExitReason      JourneyExitReason `json:"exit_reason,omitempty" mapstructure:"exit_reason"`
	GoalMet         bool              `json:"goal_met,omitempty" mapstructure:"goal_met"`
	GoalMetAtMs     int64             `json:"goal_met_at,omitempty" mapstructure:"goal_met_at"`
	HasDuration     bool              `json:"has_duration,omitempty" mapstructure:"has_duration"`
	DurationSeconds float64           `json:"duration_seconds,omitempty" mapstructure:"duration_seconds"`
	FlowExitReason  string            `json:"flow_exit_reason,omitempty" mapstructure:"flow_exit_reason"`
}

// UpdateError carries the producer's failure details for error updates.
type UpdateError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// Payload is everything on an update besides its discriminators.
// The classifier never looks at it.
type Payload struct {
	SuppressReason    SuppressReason `json:"suppress_reason,omitempty"`
	RawSuppressReason string         `json:"raw_suppress_reason,omitempty"`
	GateSource        GateSource     `json:"gate_source,omitempty"`
	JourneyRef        JourneyRef     `json:"journey_ref,omitzero"`
	Journey           Journey        `json:"journey,omitzero"`
	Error             UpdateError    `json:"error,omitzero"`
	TimestampMs       int64          `json:"timestamp_ms,omitempty"`

	// ProducerTerminal is the producer's own terminal flag, when it sent one.
	ProducerTerminal *bool `json:"is_terminal,omitempty"`
}

func (p Payload) clone() Payload {
	if p.ProducerTerminal != nil {
		v := *p.ProducerTerminal
		p.ProducerTerminal = &v
	}
	return p
}

// TriggerUpdate is one immutable message in a trigger evaluation stream.
// Build it with NewUpdate or one of the typed constructors.
type TriggerUpdate struct {
	kind            UpdateKind
	decisionKind    DecisionKind
	entitlementKind EntitlementKind
	payload         Payload
}

// NewUpdate validates the kind/discriminator pairing and builds an update.
// Decision updates need a decision kind, entitlement updates need an entitlement
// kind, error and journey updates carry neither. Unrecognized kinds are accepted
// as-is so newer producers do not break older consumers.
func NewUpdate(kind UpdateKind, decision DecisionKind, entitlement EntitlementKind, p Payload) (TriggerUpdate, error) {
	switch kind {
	case "":
		return TriggerUpdate{}, fmt.Errorf("%w: kind required", ErrMalformedUpdate)
	case KindDecision:
		if decision == "" {
			return TriggerUpdate{}, fmt.Errorf("%w: decision update requires decision_kind", ErrMalformedUpdate)
		}
		if entitlement != "" {
			return TriggerUpdate{}, fmt.Errorf("%w: decision update cannot carry entitlement_kind %q", ErrMalformedUpdate, entitlement)
		}
	case KindEntitlement:
		if entitlement == "" {
			return TriggerUpdate{}, fmt.Errorf("%w: entitlement update requires entitlement_kind", ErrMalformedUpdate)
		}
		if decision != "" {
			return TriggerUpdate{}, fmt.Errorf("%w: entitlement update cannot carry decision_kind %q", ErrMalformedUpdate, decision)
		}
	case KindError, KindJourney:
		if decision != "" || entitlement != "" {
			return TriggerUpdate{}, fmt.Errorf("%w: %s update carries no discriminator", ErrMalformedUpdate, kind)
		}
	}

	return TriggerUpdate{
		kind:            kind,
		decisionKind:    decision,
		entitlementKind: entitlement,
		payload:         p.clone(),
	}, nil
}

// MustUpdate is NewUpdate for statically known updates; it panics on a bad pairing.
func MustUpdate(kind UpdateKind, decision DecisionKind, entitlement EntitlementKind, p Payload) TriggerUpdate {
	u, err := NewUpdate(kind, decision, entitlement, p)
	if err != nil {
		panic(err)
	}
	return u
}

// NewDecision builds a decision update.
func NewDecision(decision DecisionKind, p Payload) (TriggerUpdate, error) {
	return NewUpdate(KindDecision, decision, "", p)
}

// NewEntitlement builds an entitlement update.
func NewEntitlement(entitlement EntitlementKind, p Payload) (TriggerUpdate, error) {
	return NewUpdate(KindEntitlement, "", entitlement, p)
}

// NewJourney builds a journey update. It cannot fail.
func NewJourney(p Payload) TriggerUpdate {
	return TriggerUpdate{kind: KindJourney, payload: p.clone()}
}

// NewError builds an error update. It cannot fail.
func NewError(p Payload) TriggerUpdate {
	return TriggerUpdate{kind: KindError, payload: p.clone()}
}

// Kind, DecisionKind and EntitlementKind return the update's discriminators.
// The kind that does not apply is empty.
func (u TriggerUpdate) Kind() UpdateKind                 { return u.kind }
func (u TriggerUpdate) DecisionKind() DecisionKind       { return u.decisionKind }
func (u TriggerUpdate) EntitlementKind() EntitlementKind { return u.entitlementKind }

// Payload returns a copy of the update's opaque payload.
func (u TriggerUpdate) Payload() Payload { return u.payload.clone() }

// IsZero reports whether u was never constructed.
func (u TriggerUpdate) IsZero() bool { return u.kind == "" }

// String renders the kind and its discriminator, e.g. "decision/no_match".
func (u TriggerUpdate) String() string {
	switch {
	case u.decisionKind != "":
		return string(u.kind) + "/" + string(u.decisionKind)
	case u.entitlementKind != "":
		return string(u.kind) + "/" + string(u.entitlementKind)
	}
	return string(u.kind)
}

type updateWire struct {
	Kind            UpdateKind      `json:"kind"`
	DecisionKind    DecisionKind    `json:"decision_kind,omitempty"`
	EntitlementKind EntitlementKind `json:"entitlement_kind,omitempty"`
	Payload
}

func (u TriggerUpdate) MarshalJSON() ([]byte, error) {
	return json.Marshal(updateWire{
		Kind:            u.kind,
		DecisionKind:    u.decisionKind,
		EntitlementKind: u.entitlementKind,
		Payload:         u.payload,
	})
}

// UnmarshalJSON decodes an update and applies the same pairing rules as NewUpdate.
func (u *TriggerUpdate) UnmarshalJSON(data []byte) error {
	var w updateWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	built, err := NewUpdate(w.Kind, w.DecisionKind, w.EntitlementKind, w.Payload)
	if err != nil {
		return err
	}
	*u = built
	return nil
}
