package models

import "time"

// TriggerStartRequest is the POST /triggers payload.
// timeout_ms overrides the configured maximum wait; 0 keeps the default, -1 disables it.
type TriggerStartRequest struct {
	EventName string          `json:"event_name"`
	TimeoutMs int64           `json:"timeout_ms,omitempty"`
	Options   *TriggerOptions `json:"options,omitempty"`
}

// TriggerOptions are the caller's event and user properties for one trigger.
// The service does not interpret them; they travel with the session and are
// stored on its outcome row.
type TriggerOptions struct {
	Properties            map[string]interface{} `json:"properties,omitempty"`
	UserProperties        map[string]interface{} `json:"user_properties,omitempty"`
	UserPropertiesSetOnce map[string]interface{} `json:"user_properties_set_once,omitempty"`
}

// IsZero reports whether no property was set.
func (o TriggerOptions) IsZero() bool {
	return len(o.Properties) == 0 && len(o.UserProperties) == 0 && len(o.UserPropertiesSetOnce) == 0
}

// TriggerStartResponse is returned by POST /triggers.
type TriggerStartResponse struct {
	RequestID string `json:"request_id"`
	State     string `json:"state"`
}

// UpdateIngestResponse is returned by POST /triggers/:id/updates.
// Accepted=false means the update arrived after the session stopped listening
// and was dropped; Anomaly names why.
type UpdateIngestResponse struct {
	RequestID string `json:"request_id"`
	Accepted  bool   `json:"accepted"`
	Terminal  bool   `json:"terminal"`
	State     string `json:"state"`
	Anomaly   string `json:"anomaly,omitempty"`
}

// TriggerSnapshot is returned by GET /triggers/:id.
type TriggerSnapshot struct {
	RequestID      string          `json:"request_id"`
	EventName      string          `json:"event_name"`
	State          string          `json:"state"`
	Updates        int             `json:"updates"`
	StartedAt      time.Time       `json:"started_at"`
	Options        *TriggerOptions `json:"options,omitempty"`
	TerminalUpdate *TriggerUpdate  `json:"terminal_update,omitempty"`
	Origin         string          `json:"origin,omitempty"`
	CloseReason    string          `json:"close_reason,omitempty"`
}
