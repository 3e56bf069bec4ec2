package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/PratikDhanave/trigger-contract-service/internal/models"
)

// ErrSessionNotFound is returned for request ids the manager does not know.
var ErrSessionNotFound = errors.New("trigger session not found")

// ErrSessionClosed is returned when subscribing to a session that already closed.
var ErrSessionClosed = errors.New("trigger session closed")

// State is where a session is in its lifecycle.
type State int

const (
	Listening State = iota
	Terminal
	Closed
)

func (s State) String() string {
	switch s {
	case Listening:
		return "listening"
	case Terminal:
		return "terminal"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// Origin says who produced a session's terminal update.
type Origin string

const (
	OriginProducer Origin = "producer"
	OriginTimeout  Origin = "timeout"
)

// CloseReason says why a session closed.
type CloseReason string

const (
	CloseCompleted   CloseReason = "completed"
	CloseTimedOut    CloseReason = "timed_out"
	CloseCancelled   CloseReason = "cancelled"
	CloseContextDone CloseReason = "context_done"
	CloseShutdown    CloseReason = "shutdown"
)

// AnomalyReason names a protocol violation that caused an update to be dropped.
type AnomalyReason string

const (
	AnomalyAfterTerminal  AnomalyReason = "after_terminal"
	AnomalyAfterClose     AnomalyReason = "after_close"
	AnomalyUnknownSession AnomalyReason = "unknown_session"
)

// TimeoutSuppressReason marks the decision synthesized when a session times out.
const TimeoutSuppressReason = "pipeline_timeout"

// Notification is sent to observers once per accepted update.
type Notification struct {
	RequestID string
	Seq       int
	Update    models.TriggerUpdate
	Terminal  bool
	Origin    Origin
}

// Closure is sent to observers once, when the session reaches Closed.
// Update is zero when the session closed without a terminal update.
type Closure struct {
	RequestID string
	Reason    CloseReason
	Update    models.TriggerUpdate
	Origin    Origin
	Updates   int
}

// Observer receives a session's outbound notifications in delivery order.
// Calls happen on the session's dispatch goroutine, never the producer's.
type Observer interface {
	OnUpdate(Notification)
	OnClosed(Closure)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	Update func(Notification)
	Closed func(Closure)
}

func (f ObserverFuncs) OnUpdate(n Notification) {
	if f.Update != nil {
		f.Update(n)
	}
}

func (f ObserverFuncs) OnClosed(c Closure) {
	if f.Closed != nil {
		f.Closed(c)
	}
}

// Result tells the producer side what happened to a delivered update.
type Result struct {
	Accepted bool
	Terminal bool
	State    State
	Anomaly  AnomalyReason
}

// Snapshot is a point-in-time view of a session.
type Snapshot struct {
	RequestID   string
	Tenant      string
	EventName   string
	Trigger     models.TriggerOptions
	State       State
	Updates     int
	StartedAt   time.Time
	ClosedAt    time.Time
	Terminal    models.TriggerUpdate
	Origin      Origin
	CloseReason CloseReason
}

// Outcome is the telemetry record written when a session closes.
type Outcome struct {
	Tenant    string
	RequestID string
	EventName string
	Trigger   models.TriggerOptions
	Update    models.TriggerUpdate
	Origin    Origin
	Reason    CloseReason
	Updates   int
	StartedAt time.Time
	ClosedAt  time.Time
}

// Anomaly is the telemetry record written for every dropped update.
type Anomaly struct {
	Tenant    string
	RequestID string
	Update    models.TriggerUpdate
	Reason    AnomalyReason
	At        time.Time
}

// Recorder persists session telemetry. Failures are logged and never reach producers.
type Recorder interface {
	RecordOutcome(ctx context.Context, o Outcome) error
	RecordAnomaly(ctx context.Context, a Anomaly) error
}

// Tombstones remembers closed sessions outside this process. A Deliver for a
// session this manager does not hold is checked against it, so updates that
// land on another replica, or arrive after a restart or a Prune, are still
// reported as late rather than unknown.
type Tombstones interface {
	MarkClosed(ctx context.Context, key string, reason CloseReason) error
	IsClosed(ctx context.Context, key string) (bool, error)
}

type nopRecorder struct{}

func (nopRecorder) RecordOutcome(context.Context, Outcome) error { return nil }
func (nopRecorder) RecordAnomaly(context.Context, Anomaly) error { return nil }

type nopTombstones struct{}

func (nopTombstones) MarkClosed(context.Context, string, CloseReason) error { return nil }
func (nopTombstones) IsClosed(context.Context, string) (bool, error)        { return false, nil }
