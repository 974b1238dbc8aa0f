// Package timeout tracks session-timeout countdowns against wall-clock time.
//
// A per-second timer does not run reliably while the host app is
// backgrounded, so the tracker records the wall-clock time at backgrounding
// and subtracts the real elapsed time on resume. The clock is injected so the
// correction can be tested deterministically.
package timeout

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"time"

	authflow "github.com/chimerakang/authflow-go"
	"github.com/chimerakang/authflow-go/audit"
	"github.com/chimerakang/authflow-go/metrics"
)

// ErrCannotExtend is returned when Extend is called on a countdown the
// server did not offer to extend.
var ErrCannotExtend = errors.New("authflow/timeout: session is not extendable")

// Tracker is the session timeout state machine: Idle, AdvisoryCountdown, or
// MandatoryExpired. Mutated only by bridge timeout events, ticks, lifecycle
// transitions, and the explicit extend/dismiss actions.
type Tracker struct {
	logger    *slog.Logger
	clock     authflow.Clock
	transport authflow.Transport
	metrics   *metrics.Metrics
	audit     *audit.Logger
	onChange  func(authflow.TimeoutSnapshot)

	mu             sync.Mutex
	kind           authflow.TimeoutKind
	seconds        int
	canExtend      bool
	backgroundedAt time.Time
	visible        bool
	ticker         *time.Ticker
	stopTick       chan struct{}
}

// compile-time check
var _ authflow.Tracker = (*Tracker)(nil)

// Option configures the Tracker.
type Option func(*Tracker)

// WithLogger sets a structured logger for the tracker.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) { t.logger = l }
}

// WithClock sets the wall-clock source. Default: the system clock.
func WithClock(c authflow.Clock) Option {
	return func(t *Tracker) { t.clock = c }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Metrics) Option {
	return func(t *Tracker) { t.metrics = m }
}

// WithAudit sets the flow audit trail.
func WithAudit(a *audit.Logger) Option {
	return func(t *Tracker) { t.audit = a }
}

// WithOnChange sets the callback invoked after every countdown state change.
// The UI layer renders from the snapshot it receives.
func WithOnChange(fn func(authflow.TimeoutSnapshot)) Option {
	return func(t *Tracker) { t.onChange = fn }
}

// New creates an idle tracker over the given bridge transport.
func New(transport authflow.Transport, opts ...Option) *Tracker {
	t := &Tracker{
		transport: transport,
		clock:     authflow.SystemClock{},
	}
	for _, o := range opts {
		o(t)
	}
	if t.logger == nil {
		t.logger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(math.MaxInt)}))
	}
	return t
}

// HandleTimeout consumes a bridge timeout notification.
func (t *Tracker) HandleTimeout(event string, p authflow.Payload) {
	switch p := p.(type) {
	case *authflow.IdleTimeoutPayload:
		t.beginAdvisory(p.TimeLeftInSeconds, p.CanExtend)
	case *authflow.SessionExpiredPayload:
		t.beginMandatory()
	default:
		t.logger.Warn("unexpected timeout payload", "event", event, "type", fmt.Sprintf("%T", p))
	}
}

func (t *Tracker) beginAdvisory(seconds int, canExtend bool) {
	t.mu.Lock()
	t.kind = authflow.TimeoutAdvisory
	t.seconds = seconds
	t.canExtend = canExtend
	t.backgroundedAt = time.Time{}
	if t.seconds <= 0 {
		t.expireLocked()
	}
	snap := t.snapshotLocked()
	t.mu.Unlock()

	if t.metrics != nil {
		t.metrics.RecordTimeout("advisory")
	}
	if t.audit != nil {
		t.audit.Log(audit.Event{Action: audit.ActionTimeout, Details: "advisory", Result: audit.ResultSuccess})
	}
	t.logger.Info("advisory countdown started", "seconds", seconds, "can_extend", canExtend)
	t.notify(snap)
}

func (t *Tracker) beginMandatory() {
	t.mu.Lock()
	t.expireLocked()
	snap := t.snapshotLocked()
	t.mu.Unlock()

	if t.metrics != nil {
		t.metrics.RecordTimeout("mandatory")
	}
	if t.audit != nil {
		t.audit.Log(audit.Event{Action: audit.ActionTimeout, Details: "mandatory", Result: audit.ResultSuccess})
	}
	t.logger.Info("session expired")
	t.notify(snap)
}

// expireLocked moves the tracker to the terminal expired state.
func (t *Tracker) expireLocked() {
	t.kind = authflow.TimeoutMandatory
	t.seconds = 0
	t.canExtend = false
	t.backgroundedAt = time.Time{}
}

// Tick decrements the advisory countdown by one second, floored at zero. The
// per-second timer drives it while the tracker is visible; it is a no-op
// while backgrounded because the wall-clock correction on resume already
// accounts for that interval.
func (t *Tracker) Tick() {
	t.mu.Lock()
	if t.kind != authflow.TimeoutAdvisory || !t.backgroundedAt.IsZero() {
		t.mu.Unlock()
		return
	}
	if t.seconds > 0 {
		t.seconds--
	}
	if t.seconds == 0 {
		t.expireLocked()
	}
	snap := t.snapshotLocked()
	t.mu.Unlock()

	t.notify(snap)
}

// OnLifecycleChange feeds the host app lifecycle signal to the countdown.
// Backgrounding stamps the wall clock; resuming subtracts the real elapsed
// time, clamped at zero. The correction never adds time back.
func (t *Tracker) OnLifecycleChange(state authflow.LifecycleState) {
	t.mu.Lock()
	if t.kind != authflow.TimeoutAdvisory {
		t.mu.Unlock()
		return
	}

	switch state {
	case authflow.LifecycleBackground, authflow.LifecycleInactive:
		if t.backgroundedAt.IsZero() {
			t.backgroundedAt = t.clock.Now()
		}
		t.mu.Unlock()
		return
	case authflow.LifecycleActive:
		if t.backgroundedAt.IsZero() {
			t.mu.Unlock()
			return
		}
		elapsed := int(t.clock.Now().Sub(t.backgroundedAt) / time.Second)
		t.backgroundedAt = time.Time{}
		if elapsed > 0 {
			t.seconds -= elapsed
			if t.seconds < 0 {
				t.seconds = 0
			}
		}
		if t.seconds == 0 {
			t.expireLocked()
		}
	}
	snap := t.snapshotLocked()
	t.mu.Unlock()

	t.notify(snap)
}

// SetVisible starts the one-second timer when the countdown UI becomes
// visible and tears it down when it unmounts, so a remount never accumulates
// drift or duplicate timers.
func (t *Tracker) SetVisible(visible bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if visible == t.visible {
		return
	}
	t.visible = visible

	if visible {
		t.ticker = time.NewTicker(time.Second)
		t.stopTick = make(chan struct{})
		go t.run(t.ticker, t.stopTick)
		return
	}
	if t.ticker != nil {
		t.ticker.Stop()
		close(t.stopTick)
		t.ticker = nil
		t.stopTick = nil
	}
}

func (t *Tracker) run(ticker *time.Ticker, stop chan struct{}) {
	for {
		select {
		case <-ticker.C:
			t.Tick()
		case <-stop:
			return
		}
	}
}

// Extend asks the bridge to extend the session. The tracker returns to idle
// only when the submission is accepted; like every command, acceptance means
// "wait for the real outcome via an event", not "session extended".
func (t *Tracker) Extend(ctx context.Context) error {
	t.mu.Lock()
	if t.kind != authflow.TimeoutAdvisory || !t.canExtend {
		t.mu.Unlock()
		return ErrCannotExtend
	}
	t.mu.Unlock()

	ack, err := t.transport.Call(ctx, authflow.CommandExtendSession)
	if err == nil && !ack.Error.OK() {
		err = &authflow.TransportError{Err: ack.Error}
	}
	t.auditCommand(ctx, err)
	if err != nil {
		return fmt.Errorf("authflow/timeout: extend: %w", err)
	}

	t.mu.Lock()
	t.reset()
	snap := t.snapshotLocked()
	t.mu.Unlock()

	if t.audit != nil {
		t.audit.Log(audit.Event{Action: audit.ActionTimeout, Details: "extend", Result: audit.ResultSuccess})
	}
	t.notify(snap)
	return nil
}

// auditCommand records the extend-session submission on the flow audit trail,
// carrying the flow and user correlation IDs from the context.
func (t *Tracker) auditCommand(ctx context.Context, err error) {
	if t.metrics != nil {
		result := audit.ResultSuccess
		if err != nil {
			result = audit.ResultFailure
		}
		t.metrics.RecordCommand(authflow.CommandExtendSession, result)
	}
	if t.audit == nil {
		return
	}
	e := audit.Event{
		Action:  audit.ActionCommand,
		Command: authflow.CommandExtendSession,
		FlowID:  authflow.FlowIDFromContext(ctx),
		UserID:  authflow.UserIDFromContext(ctx),
		Result:  audit.ResultSuccess,
	}
	if err != nil {
		e.Result = audit.ResultFailure
		e.Error = err.Error()
	}
	t.audit.Log(e)
}

// Dismiss acknowledges the timeout without extending and returns to idle.
func (t *Tracker) Dismiss() {
	t.mu.Lock()
	t.reset()
	snap := t.snapshotLocked()
	t.mu.Unlock()

	t.notify(snap)
}

func (t *Tracker) reset() {
	t.kind = authflow.TimeoutNone
	t.seconds = 0
	t.canExtend = false
	t.backgroundedAt = time.Time{}
}

// HandleBack reports whether a physical/gesture back action was swallowed.
// While the countdown or expiry modal is up, back is always swallowed so the
// user has to make an explicit decision.
func (t *Tracker) HandleBack() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.kind != authflow.TimeoutNone
}

// Snapshot returns the countdown state for rendering.
func (t *Tracker) Snapshot() authflow.TimeoutSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Tracker) snapshotLocked() authflow.TimeoutSnapshot {
	return authflow.TimeoutSnapshot{
		Kind:             t.kind,
		SecondsRemaining: t.seconds,
		CanExtend:        t.canExtend,
	}
}

func (t *Tracker) notify(snap authflow.TimeoutSnapshot) {
	if t.metrics != nil {
		t.metrics.SetCountdown(float64(snap.SecondsRemaining))
	}
	if t.onChange != nil {
		t.onChange(snap)
	}
}

// Close tears down the ticking timer.
func (t *Tracker) Close() error {
	t.SetVisible(false)
	return nil
}
