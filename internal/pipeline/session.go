package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/PratikDhanave/trigger-contract-service/internal/contract"
	"github.com/PratikDhanave/trigger-contract-service/internal/models"
)

// deps is what every session of a Manager shares. None of it is session state.
type deps struct {
	logger        *slog.Logger
	metrics       *Metrics
	recorder      Recorder
	tombstones    Tombstones
	now           func() time.Time
	recordTimeout time.Duration
}

type observerEntry struct {
	id  int
	obs Observer
}

// Session is the context of one trigger evaluation. Updates are processed in
// arrival order under mu, and the move out of Listening happens exactly once.
type Session struct {
	id        string
	tenant    string
	key       string
	eventName string
	trigger   models.TriggerOptions
	startedAt time.Time
	deps      *deps

	mu        sync.Mutex
	state     State
	updates   int
	terminal  models.TriggerUpdate
	origin    Origin
	reason    CloseReason
	closedAt  time.Time
	observers []observerEntry
	nextObs   int
	timer     *time.Timer
	stopCtx   func() bool

	box  *mailbox
	done chan struct{}
}

// ID is the request id the session was started under.
func (s *Session) ID() string { return s.id }

// Done is closed after observers have been told the session closed.
func (s *Session) Done() <-chan struct{} { return s.done }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshot returns a copy of the session's observable fields.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		RequestID:   s.id,
		Tenant:      s.tenant,
		EventName:   s.eventName,
		Trigger:     s.trigger,
		State:       s.state,
		Updates:     s.updates,
		StartedAt:   s.startedAt,
		ClosedAt:    s.closedAt,
		Terminal:    s.terminal,
		Origin:      s.origin,
		CloseReason: s.reason,
	}
}

// Subscribe attaches an observer. It returns false once the session is closed.
func (s *Session) Subscribe(obs Observer) (unsubscribe func(), ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Closed {
		return nil, false
	}
	s.nextObs++
	id := s.nextObs
	s.observers = append(s.observers, observerEntry{id: id, obs: obs})

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, e := range s.observers {
			if e.id == id {
				s.observers = append(s.observers[:i], s.observers[i+1:]...)
				return
			}
		}
	}, true
}

// Deliver feeds one update into the session.
//
// While Listening, every update is surfaced to observers; the first terminal
// one moves the session to Terminal and then Closed. Anything delivered after
// that is reported as an anomaly and dropped without being classified.
func (s *Session) Deliver(ctx context.Context, u models.TriggerUpdate) Result {
	s.mu.Lock()

	if s.state != Listening {
		state := s.state
		s.mu.Unlock()
		reason := AnomalyAfterTerminal
		if state == Closed {
			reason = AnomalyAfterClose
		}
		s.deps.reportAnomaly(ctx, s.tenant, s.id, u, reason)
		return Result{State: state, Anomaly: reason}
	}

	terminal := contract.IsTerminal(u)
	s.inspect(u, terminal)

	if !terminal {
		s.updates++
		n := Notification{RequestID: s.id, Seq: s.updates, Update: u, Origin: OriginProducer}
		s.box.post(func() { s.notify(n) })
		s.mu.Unlock()
		s.deps.metrics.update(u.Kind(), false)
		return Result{Accepted: true, State: Listening}
	}

	s.updates++
	s.enterTerminal(u, OriginProducer, CloseCompleted)
	s.mu.Unlock()
	s.deps.metrics.update(u.Kind(), true)
	return Result{Accepted: true, Terminal: true, State: Terminal}
}

// Cancel closes a listening session without a terminal update.
// It is a no-op once the session has left Listening.
func (s *Session) Cancel(reason CloseReason) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Listening {
		return s.state
	}
	s.closeLocked(reason)
	return Closed
}

// expire synthesizes the timeout outcome if the session is still listening.
func (s *Session) expire() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Listening {
		return
	}

	u := models.MustUpdate(models.KindDecision, models.DecisionSuppressed, "", models.Payload{
		SuppressReason:    models.SuppressUnknown,
		RawSuppressReason: TimeoutSuppressReason,
		TimestampMs:       s.deps.now().UnixMilli(),
	})
	s.deps.logger.Info("trigger session timed out",
		"request_id", s.id,
		"tenant", s.tenant,
		"updates", s.updates,
	)
	s.updates++
	s.enterTerminal(u, OriginTimeout, CloseTimedOut)
}

// enterTerminal must be called with mu held and state Listening.
func (s *Session) enterTerminal(u models.TriggerUpdate, origin Origin, reason CloseReason) {
	s.state = Terminal
	s.terminal = u
	s.origin = origin
	s.stopTriggers()
	s.deps.metrics.Terminals.WithLabelValues(kindLabel(u.Kind()), string(origin)).Inc()

	n := Notification{RequestID: s.id, Seq: s.updates, Update: u, Terminal: true, Origin: origin}
	s.box.post(func() { s.notify(n) })
	s.box.post(func() { s.finish(reason) })
}

// closeLocked must be called with mu held and state Listening.
func (s *Session) closeLocked(reason CloseReason) {
	s.state = Closed
	s.reason = reason
	s.closedAt = s.deps.now()
	s.stopTriggers()
	s.box.post(func() { s.finish(reason) })
}

func (s *Session) stopTriggers() {
	if s.timer != nil {
		s.timer.Stop()
	}
	if s.stopCtx != nil {
		s.stopCtx()
	}
}

// inspect logs what the classifier cannot act on. mu is held.
func (s *Session) inspect(u models.TriggerUpdate, terminal bool) {
	if !u.Kind().Known() {
		s.deps.logger.Debug("unrecognized update kind, treating as in progress",
			"request_id", s.id,
			"kind", u.Kind(),
		)
	}
	if hint := u.Payload().ProducerTerminal; hint != nil && *hint != terminal {
		s.deps.logger.Warn("producer terminal flag disagrees with classifier",
			"request_id", s.id,
			"update", u.String(),
			"producer_terminal", *hint,
			"terminal", terminal,
		)
	}
}

func (s *Session) currentObservers() []Observer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Observer, len(s.observers))
	for i, e := range s.observers {
		out[i] = e.obs
	}
	return out
}

// notify runs on the mailbox goroutine.
func (s *Session) notify(n Notification) {
	for _, obs := range s.currentObservers() {
		obs.OnUpdate(n)
	}
}

// finish runs on the mailbox goroutine and is always the last thing it runs.
func (s *Session) finish(reason CloseReason) {
	s.mu.Lock()
	if s.state != Closed {
		s.state = Closed
		s.reason = reason
		s.closedAt = s.deps.now()
	}
	c := Closure{RequestID: s.id, Reason: s.reason, Update: s.terminal, Origin: s.origin, Updates: s.updates}
	o := Outcome{
		Tenant:    s.tenant,
		RequestID: s.id,
		EventName: s.eventName,
		Trigger:   s.trigger,
		Update:    s.terminal,
		Origin:    s.origin,
		Reason:    s.reason,
		Updates:   s.updates,
		StartedAt: s.startedAt,
		ClosedAt:  s.closedAt,
	}
	observers := make([]Observer, len(s.observers))
	for i, e := range s.observers {
		observers[i] = e.obs
	}
	s.observers = nil
	s.mu.Unlock()

	s.deps.metrics.Closed.WithLabelValues(string(c.Reason)).Inc()
	s.deps.metrics.Active.Dec()
	s.deps.logger.Debug("trigger session closed",
		"request_id", s.id,
		"reason", c.Reason,
		"updates", c.Updates,
	)

	ctx, cancel := context.WithTimeout(context.Background(), s.deps.recordTimeout)
	if err := s.deps.recorder.RecordOutcome(ctx, o); err != nil {
		s.deps.logger.Error("record trigger outcome", "request_id", s.id, "error", err)
	}
	if err := s.deps.tombstones.MarkClosed(ctx, s.key, c.Reason); err != nil {
		s.deps.logger.Warn("write trigger tombstone", "request_id", s.id, "error", err)
	}
	cancel()

	for _, obs := range observers {
		obs.OnClosed(c)
	}
	close(s.done)
	s.box.close()
}

func (d *deps) reportAnomaly(ctx context.Context, tenant, requestID string, u models.TriggerUpdate, reason AnomalyReason) {
	d.metrics.Anomalies.WithLabelValues(string(reason)).Inc()
	d.logger.Warn("dropping trigger update",
		"request_id", requestID,
		"tenant", tenant,
		"update", u.String(),
		"reason", reason,
	)

	a := Anomaly{Tenant: tenant, RequestID: requestID, Update: u, Reason: reason, At: d.now()}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.recordTimeout)
	defer cancel()
	if err := d.recorder.RecordAnomaly(ctx, a); err != nil {
		d.logger.Error("record trigger anomaly", "request_id", requestID, "error", err)
	}
}
