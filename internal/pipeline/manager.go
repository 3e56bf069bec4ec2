package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/PratikDhanave/trigger-contract-service/internal/logging"
	"github.com/PratikDhanave/trigger-contract-service/internal/models"
)

const (
	defaultRetention       = 5 * time.Minute
	defaultRecordTimeout   = 2 * time.Second
	defaultShutdownTimeout = 10 * time.Second
)

// StartOptions configures one session.
type StartOptions struct {
	EventName string
	// Timeout bounds how long the session may listen. Zero uses the manager
	// default; a negative value disables the timeout.
	Timeout  time.Duration
	Observer Observer
	// Trigger is carried unchanged onto the session's outcome.
	Trigger models.TriggerOptions
}

// Manager owns every in-flight session and routes updates to them by request id.
// Closed sessions are kept for a retention window so late updates can be
// recognized as such.
type Manager struct {
	deps            deps
	timeout         time.Duration
	retention       time.Duration
	shutdownTimeout time.Duration
	newID           func() string

	mu       sync.Mutex
	sessions map[string]*Session
}

// Option configures the Manager.
type Option func(*Manager)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.deps.logger = logger }
}

func WithMetrics(metrics *Metrics) Option {
	return func(m *Manager) { m.deps.metrics = metrics }
}

func WithRecorder(r Recorder) Option {
	return func(m *Manager) { m.deps.recorder = r }
}

// WithTombstones shares closed sessions with other replicas.
func WithTombstones(t Tombstones) Option {
	return func(m *Manager) { m.deps.tombstones = t }
}

// WithDefaultTimeout sets the maximum wait for sessions that do not set one.
func WithDefaultTimeout(d time.Duration) Option {
	return func(m *Manager) { m.timeout = d }
}

// WithRetention sets how long closed sessions are remembered.
func WithRetention(d time.Duration) Option {
	return func(m *Manager) { m.retention = d }
}

// WithShutdownTimeout bounds how long Run waits for sessions to finish
// recording once its context is done.
func WithShutdownTimeout(d time.Duration) Option {
	return func(m *Manager) { m.shutdownTimeout = d }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.deps.now = now }
}

func WithIDGenerator(fn func() string) Option {
	return func(m *Manager) { m.newID = fn }
}

func NewManager(opts ...Option) *Manager {
	m := &Manager{
		deps: deps{
			logger:        logging.NewNop(),
			recorder:      nopRecorder{},
			tombstones:    nopTombstones{},
			now:           time.Now,
			recordTimeout: defaultRecordTimeout,
		},
		retention:       defaultRetention,
		shutdownTimeout: defaultShutdownTimeout,
		newID:           func() string { return uuid.New().String() },
		sessions:        make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.deps.metrics == nil {
		m.deps.metrics = NewMetrics(nil)
	}
	return m
}

func sessionKey(tenant, id string) string {
	return tenant + "/" + id
}

// Start opens a listening session. Cancelling ctx cancels the session, so
// callers that outlive a request should pass a detached context.
func (m *Manager) Start(ctx context.Context, tenant string, opts StartOptions) (*Session, error) {
	if tenant == "" {
		return nil, errors.New("tenant required")
	}

	id := m.newID()
	s := &Session{
		id:        id,
		tenant:    tenant,
		key:       sessionKey(tenant, id),
		eventName: opts.EventName,
		trigger:   opts.Trigger,
		startedAt: m.deps.now(),
		deps:      &m.deps,
		state:     Listening,
		box:       newMailbox(),
		done:      make(chan struct{}),
	}
	if opts.Observer != nil {
		s.Subscribe(opts.Observer)
	}

	m.mu.Lock()
	if _, exists := m.sessions[s.key]; exists {
		m.mu.Unlock()
		s.box.close()
		return nil, fmt.Errorf("duplicate request id %q", id)
	}
	m.sessions[s.key] = s
	m.mu.Unlock()
	m.deps.metrics.Active.Inc()

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = m.timeout
	}

	s.mu.Lock()
	if s.state == Listening {
		if timeout > 0 {
			s.timer = time.AfterFunc(timeout, s.expire)
		}
		s.stopCtx = context.AfterFunc(ctx, func() { s.Cancel(CloseContextDone) })
	}
	s.mu.Unlock()

	m.deps.logger.Debug("trigger session started",
		"request_id", id,
		"tenant", tenant,
		"event_name", opts.EventName,
		"timeout", timeout,
	)
	return s, nil
}

func (m *Manager) lookup(tenant, id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionKey(tenant, id)]
	return s, ok
}

// Deliver routes an update to its session. Updates for unknown or forgotten
// sessions are reported and dropped like any other late update; a session
// found in the tombstones counts as closed.
func (m *Manager) Deliver(ctx context.Context, tenant, id string, u models.TriggerUpdate) Result {
	s, ok := m.lookup(tenant, id)
	if ok {
		return s.Deliver(ctx, u)
	}

	reason := AnomalyUnknownSession
	closed, err := m.deps.tombstones.IsClosed(ctx, sessionKey(tenant, id))
	if err != nil {
		m.deps.logger.Warn("tombstone lookup failed", "request_id", id, "tenant", tenant, "error", err)
	}
	if closed {
		reason = AnomalyAfterClose
	}
	m.deps.reportAnomaly(ctx, tenant, id, u, reason)
	return Result{State: Closed, Anomaly: reason}
}

// Cancel cancels a listening session. Cancelling a session that already left
// Listening is not an error.
func (m *Manager) Cancel(tenant, id string) (State, error) {
	s, ok := m.lookup(tenant, id)
	if !ok {
		return Closed, ErrSessionNotFound
	}
	return s.Cancel(CloseCancelled), nil
}

func (m *Manager) Snapshot(tenant, id string) (Snapshot, error) {
	s, ok := m.lookup(tenant, id)
	if !ok {
		return Snapshot{}, ErrSessionNotFound
	}
	return s.Snapshot(), nil
}

// Subscribe attaches an observer to a session that has not closed yet.
func (m *Manager) Subscribe(tenant, id string, obs Observer) (func(), error) {
	s, ok := m.lookup(tenant, id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	unsubscribe, ok := s.Subscribe(obs)
	if !ok {
		return nil, ErrSessionClosed
	}
	return unsubscribe, nil
}

// Prune forgets sessions that closed more than the retention window before now.
// It returns how many were removed.
func (m *Manager) Prune(now time.Time) int {
	cutoff := now.Add(-m.retention)

	m.mu.Lock()
	candidates := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		candidates = append(candidates, s)
	}
	m.mu.Unlock()

	removed := 0
	for _, s := range candidates {
		snap := s.Snapshot()
		if snap.State != Closed || snap.ClosedAt.After(cutoff) {
			continue
		}
		m.mu.Lock()
		delete(m.sessions, s.key)
		m.mu.Unlock()
		removed++
	}
	return removed
}

// Len returns how many sessions are tracked, closed ones included.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Run prunes closed sessions until ctx is done, then shuts the manager down
// and waits, up to the shutdown timeout, for every session to be recorded.
func (m *Manager) Run(ctx context.Context) {
	interval := m.retention / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			sctx, cancel := context.WithTimeout(context.Background(), m.shutdownTimeout)
			defer cancel()
			if err := m.Shutdown(sctx); err != nil {
				m.deps.logger.Error("trigger sessions still closing at shutdown", "error", err)
			}
			return
		case <-ticker.C:
			if n := m.Prune(m.deps.now()); n > 0 {
				m.deps.logger.Debug("pruned closed trigger sessions", "count", n)
			}
		}
	}
}

// Shutdown cancels every listening session and waits until all sessions have
// closed, observers included, or ctx is done.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		s.Cancel(CloseShutdown)
	}

	pending := 0
	for _, s := range sessions {
		select {
		case <-s.Done():
		case <-ctx.Done():
			pending++
		}
	}
	if pending > 0 {
		return fmt.Errorf("%d of %d sessions not closed: %w", pending, len(sessions), ctx.Err())
	}
	return nil
}
