// Package bridge converts trigger updates to and from the flat key/value
// payload the native SDK bridges exchange. Values are URL-encoded; the
// journey_ref and journey fields hold a nested URL-encoded map.
package bridge

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/mitchellh/mapstructure"

	"github.com/PratikDhanave/trigger-contract-service/internal/contract"
	"github.com/PratikDhanave/trigger-contract-service/internal/models"
)

const (
	keyKind              = "kind"
	keyDecisionKind      = "decision_kind"
	keyEntitlementKind   = "entitlement_kind"
	keySuppressReason    = "suppress_reason"
	keyRawSuppressReason = "raw_suppress_reason"
	keyGateSource        = "gate_source"
	keyErrorCode         = "error_code"
	keyErrorMessage      = "error_message"
	keyTimestampMs       = "timestamp_ms"
	keyJourneyRef        = "journey_ref"
	keyJourney           = "journey"
	keyIsTerminal        = "is_terminal"
)

type fields struct {
	Kind              string            `mapstructure:"kind"`
	DecisionKind      string            `mapstructure:"decision_kind"`
	EntitlementKind   string            `mapstructure:"entitlement_kind"`
	SuppressReason    string            `mapstructure:"suppress_reason"`
	RawSuppressReason string            `mapstructure:"raw_suppress_reason"`
	GateSource        string            `mapstructure:"gate_source"`
	ErrorCode         string            `mapstructure:"error_code"`
	ErrorMessage      string            `mapstructure:"error_message"`
	TimestampMs       int64             `mapstructure:"timestamp_ms"`
	JourneyRef        models.JourneyRef `mapstructure:"journey_ref"`
	Journey           models.Journey    `mapstructure:"journey"`
	IsTerminal        *bool             `mapstructure:"is_terminal"`
}

// Decode parses a bridge payload. Numeric and boolean fields are decoded
// leniently ("1", "true", "") the way the bridges write them; the kind and
// its discriminator must still pair up.
func Decode(payload string) (models.TriggerUpdate, error) {
	raw, err := parseMap(payload)
	if err != nil {
		return models.TriggerUpdate{}, fmt.Errorf("%w: %v", models.ErrMalformedUpdate, err)
	}
	for _, nested := range []string{keyJourneyRef, keyJourney} {
		s, ok := raw[nested].(string)
		if !ok {
			continue
		}
		m, err := parseMap(s)
		if err != nil {
			return models.TriggerUpdate{}, fmt.Errorf("%w: %s: %v", models.ErrMalformedUpdate, nested, err)
		}
		raw[nested] = m
	}
	// An empty flag means the producer did not say.
	if s, ok := raw[keyIsTerminal].(string); ok && s == "" {
		delete(raw, keyIsTerminal)
	}

	var f fields
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &f,
	})
	if err != nil {
		return models.TriggerUpdate{}, err
	}
	if err := dec.Decode(raw); err != nil {
		return models.TriggerUpdate{}, fmt.Errorf("%w: %v", models.ErrMalformedUpdate, err)
	}

	return models.NewUpdate(
		models.UpdateKind(f.Kind),
		models.DecisionKind(f.DecisionKind),
		models.EntitlementKind(f.EntitlementKind),
		models.Payload{
			SuppressReason:    models.SuppressReason(f.SuppressReason),
			RawSuppressReason: f.RawSuppressReason,
			GateSource:        models.GateSource(f.GateSource),
			JourneyRef:        f.JourneyRef,
			Journey:           f.Journey,
			Error:             models.UpdateError{Code: f.ErrorCode, Message: f.ErrorMessage},
			TimestampMs:       f.TimestampMs,
			ProducerTerminal:  f.IsTerminal,
		},
	)
}

// Encode renders u as a bridge payload. is_terminal always carries this
// service's classification, whatever the producer claimed.
func Encode(u models.TriggerUpdate) string {
	p := u.Payload()
	v := url.Values{}
	set(v, keyKind, string(u.Kind()))
	set(v, keyDecisionKind, string(u.DecisionKind()))
	set(v, keyEntitlementKind, string(u.EntitlementKind()))
	set(v, keySuppressReason, string(p.SuppressReason))
	set(v, keyRawSuppressReason, p.RawSuppressReason)
	set(v, keyGateSource, string(p.GateSource))
	set(v, keyErrorCode, p.Error.Code)
	set(v, keyErrorMessage, p.Error.Message)
	if p.TimestampMs != 0 {
		v.Set(keyTimestampMs, strconv.FormatInt(p.TimestampMs, 10))
	}
	set(v, keyJourneyRef, encodeJourneyRef(p.JourneyRef))
	set(v, keyJourney, encodeJourney(p.Journey))
	v.Set(keyIsTerminal, boolValue(contract.IsTerminal(u)))
	return v.Encode()
}

func encodeJourneyRef(r models.JourneyRef) string {
	v := url.Values{}
	set(v, "journey_id", r.JourneyID)
	set(v, "campaign_id", r.CampaignID)
	set(v, "flow_id", r.FlowID)
	return v.Encode()
}

func encodeJourney(j models.Journey) string {
	if j == (models.Journey{}) {
		return ""
	}
	v := url.Values{}
	set(v, "journey_id", j.JourneyID)
	set(v, "campaign_id", j.CampaignID)
	set(v, "flow_id", j.FlowID)
	set(v, "exit_reason", string(j.ExitReason))
	v.Set("goal_met", boolValue(j.GoalMet))
	if j.GoalMetAtMs != 0 {
		v.Set("goal_met_at", strconv.FormatInt(j.GoalMetAtMs, 10))
	}
	v.Set("has_duration", boolValue(j.HasDuration))
	if j.HasDuration {
		v.Set("duration_seconds", strconv.FormatFloat(j.DurationSeconds, 'f', -1, 64))
	}
	set(v, "flow_exit_reason", j.FlowExitReason)
	return v.Encode()
}

// parseMap keeps the first value of repeated keys.
func parseMap(s string) (map[string]any, error) {
	values, err := url.ParseQuery(s)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(values))
	for k, vs := range values {
		if len(vs) > 0 {
			out[k] = vs[0]
		}
	}
	return out, nil
}

func set(v url.Values, key, value string) {
	if value != "" {
		v.Set(key, value)
	}
}

func boolValue(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
