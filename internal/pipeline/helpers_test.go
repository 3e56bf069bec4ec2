package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/PratikDhanave/trigger-contract-service/internal/models"
)

const waitFor = 2 * time.Second

type recordingObserver struct {
	updates chan Notification
	closed  chan Closure
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{
		updates: make(chan Notification, 64),
		closed:  make(chan Closure, 1),
	}
}

func (r *recordingObserver) OnUpdate(n Notification) { r.updates <- n }
func (r *recordingObserver) OnClosed(c Closure)      { r.closed <- c }

func (r *recordingObserver) nextUpdate(t *testing.T) Notification {
	t.Helper()
	select {
	case n := <-r.updates:
		return n
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for update notification")
	}
	return Notification{}
}

func (r *recordingObserver) closure(t *testing.T) Closure {
	t.Helper()
	select {
	case c := <-r.closed:
		return c
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for closed notification")
	}
	return Closure{}
}

// drained reports every update notification still buffered.
func (r *recordingObserver) drained() []Notification {
	var out []Notification
	for {
		select {
		case n := <-r.updates:
			out = append(out, n)
		default:
			return out
		}
	}
}

type memoryRecorder struct {
	mu        sync.Mutex
	outcomes  []Outcome
	anomalies []Anomaly
}

func (m *memoryRecorder) RecordOutcome(_ context.Context, o Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, o)
	return nil
}

func (m *memoryRecorder) RecordAnomaly(_ context.Context, a Anomaly) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.anomalies = append(m.anomalies, a)
	return nil
}

func (m *memoryRecorder) Outcomes() []Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Outcome(nil), m.outcomes...)
}

func (m *memoryRecorder) Anomalies() []Anomaly {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Anomaly(nil), m.anomalies...)
}

// slowRecorder holds every outcome for delay before storing it.
type slowRecorder struct {
	memoryRecorder
	delay time.Duration
}

func (s *slowRecorder) RecordOutcome(ctx context.Context, o Outcome) error {
	time.Sleep(s.delay)
	return s.memoryRecorder.RecordOutcome(ctx, o)
}

type memoryTombstones struct {
	mu     sync.Mutex
	closed map[string]CloseReason
	err    error
}

func newMemoryTombstones() *memoryTombstones {
	return &memoryTombstones{closed: map[string]CloseReason{}}
}

func (m *memoryTombstones) MarkClosed(_ context.Context, key string, reason CloseReason) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if _, ok := m.closed[key]; !ok {
		m.closed[key] = reason
	}
	return nil
}

func (m *memoryTombstones) IsClosed(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	_, ok := m.closed[key]
	return ok, nil
}

func (m *memoryTombstones) reason(key string) (CloseReason, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.closed[key]
	return r, ok
}

func decision(kind models.DecisionKind) models.TriggerUpdate {
	return models.MustUpdate(models.KindDecision, kind, "", models.Payload{})
}

func entitlement(kind models.EntitlementKind) models.TriggerUpdate {
	return models.MustUpdate(models.KindEntitlement, "", kind, models.Payload{})
}

func waitDone(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(waitFor):
		t.Fatalf("session %s did not close", s.ID())
	}
}

func startSession(t *testing.T, m *Manager, opts StartOptions) *Session {
	t.Helper()
	s, err := m.Start(context.Background(), "tenant1", opts)
	require.NoError(t, err)
	return s
}
