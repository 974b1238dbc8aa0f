package timeout

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	authflow "github.com/chimerakang/authflow-go"
	"github.com/chimerakang/authflow-go/audit"
)

// manualClock implements authflow.Clock.
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// scriptedTransport implements authflow.Transport.
type scriptedTransport struct {
	calls []string
	ack   *authflow.Ack
	err   error
}

func (t *scriptedTransport) Call(_ context.Context, command string, _ ...any) (*authflow.Ack, error) {
	t.calls = append(t.calls, command)
	if t.err != nil {
		return nil, t.err
	}
	if t.ack != nil {
		return t.ack, nil
	}
	return &authflow.Ack{}, nil
}

func newTestTracker() (*Tracker, *manualClock, *scriptedTransport) {
	clock := newManualClock()
	tr := &scriptedTransport{}
	return New(tr, WithClock(clock)), clock, tr
}

func advisory(t *testing.T, tk *Tracker, seconds int, canExtend bool) {
	t.Helper()
	tk.HandleTimeout(authflow.EventIdleTimeoutWarning, &authflow.IdleTimeoutPayload{
		TimeLeftInSeconds: seconds,
		CanExtend:         canExtend,
	})
}

func TestAdvisory_StartsCountdown(t *testing.T) {
	tk, _, _ := newTestTracker()
	advisory(t, tk, 60, true)

	snap := tk.Snapshot()
	if snap.Kind != authflow.TimeoutAdvisory || snap.SecondsRemaining != 60 || !snap.CanExtend {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestMandatory_NoCountdown(t *testing.T) {
	tk, _, _ := newTestTracker()
	tk.HandleTimeout(authflow.EventSessionExpired, &authflow.SessionExpiredPayload{})

	snap := tk.Snapshot()
	if snap.Kind != authflow.TimeoutMandatory || snap.SecondsRemaining != 0 || snap.CanExtend {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestTick_DecrementsByOne(t *testing.T) {
	tk, _, _ := newTestTracker()
	advisory(t, tk, 3, false)

	tk.Tick()
	if got := tk.Snapshot().SecondsRemaining; got != 2 {
		t.Errorf("seconds = %d, want 2", got)
	}
}

func TestTick_ZeroIsTerminal(t *testing.T) {
	tk, _, _ := newTestTracker()
	advisory(t, tk, 1, true)

	tk.Tick()
	snap := tk.Snapshot()
	if snap.Kind != authflow.TimeoutMandatory || snap.SecondsRemaining != 0 {
		t.Errorf("snapshot = %+v, want expired at zero", snap)
	}

	// Further ticks stay at zero.
	tk.Tick()
	if got := tk.Snapshot().SecondsRemaining; got != 0 {
		t.Errorf("seconds = %d, want 0", got)
	}
}

func TestForegroundResume_SubtractsWallClockElapsed(t *testing.T) {
	tk, clock, _ := newTestTracker()
	advisory(t, tk, 60, true)

	tk.OnLifecycleChange(authflow.LifecycleBackground)
	clock.advance(45 * time.Second)
	tk.OnLifecycleChange(authflow.LifecycleActive)

	if got := tk.Snapshot().SecondsRemaining; got != 15 {
		t.Errorf("seconds = %d, want 15 (wall-clock delta, not one tick)", got)
	}
}

func TestForegroundResume_ClampsAtZero(t *testing.T) {
	tk, clock, _ := newTestTracker()
	advisory(t, tk, 30, true)

	tk.OnLifecycleChange(authflow.LifecycleBackground)
	clock.advance(5 * time.Minute)
	tk.OnLifecycleChange(authflow.LifecycleActive)

	snap := tk.Snapshot()
	if snap.SecondsRemaining != 0 || snap.Kind != authflow.TimeoutMandatory {
		t.Errorf("snapshot = %+v, want expired", snap)
	}
}

func TestTicksIgnoredWhileBackgrounded(t *testing.T) {
	tk, clock, _ := newTestTracker()
	advisory(t, tk, 60, true)

	tk.OnLifecycleChange(authflow.LifecycleBackground)
	// A stray timer firing in the background must not double-count time the
	// resume correction will already subtract.
	tk.Tick()
	tk.Tick()
	clock.advance(10 * time.Second)
	tk.OnLifecycleChange(authflow.LifecycleActive)

	if got := tk.Snapshot().SecondsRemaining; got != 50 {
		t.Errorf("seconds = %d, want 50", got)
	}
}

func TestSecondsNeverIncrease(t *testing.T) {
	tk, clock, _ := newTestTracker()
	advisory(t, tk, 60, true)

	last := 60
	step := func(name string) {
		t.Helper()
		got := tk.Snapshot().SecondsRemaining
		if got > last {
			t.Errorf("%s: seconds went from %d to %d", name, last, got)
		}
		last = got
	}

	tk.Tick()
	step("tick")
	tk.OnLifecycleChange(authflow.LifecycleBackground)
	tk.OnLifecycleChange(authflow.LifecycleActive) // zero elapsed
	step("instant resume")
	tk.OnLifecycleChange(authflow.LifecycleBackground)
	clock.advance(7 * time.Second)
	tk.OnLifecycleChange(authflow.LifecycleActive)
	step("resume")
	tk.Tick()
	step("tick")
}

func TestExtend_ReturnsToIdle(t *testing.T) {
	tk, _, tr := newTestTracker()
	advisory(t, tk, 60, true)

	if err := tk.Extend(context.Background()); err != nil {
		t.Fatalf("Extend error: %v", err)
	}
	if len(tr.calls) != 1 || tr.calls[0] != authflow.CommandExtendSession {
		t.Errorf("transport calls = %v", tr.calls)
	}
	if got := tk.Snapshot().Kind; got != authflow.TimeoutNone {
		t.Errorf("kind = %v, want idle", got)
	}
}

func TestExtend_NotOffered(t *testing.T) {
	tk, _, tr := newTestTracker()
	advisory(t, tk, 60, false)

	if err := tk.Extend(context.Background()); !errors.Is(err, ErrCannotExtend) {
		t.Fatalf("err = %v, want ErrCannotExtend", err)
	}
	if len(tr.calls) != 0 {
		t.Error("must not submit extend when not offered")
	}
}

func TestExtend_RejectedSubmissionKeepsCountdown(t *testing.T) {
	tk, _, tr := newTestTracker()
	tr.ack = &authflow.Ack{Error: authflow.APIError{LongErrorCode: 9, ErrorString: "busy"}}
	advisory(t, tk, 60, true)

	err := tk.Extend(context.Background())
	var te *authflow.TransportError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want TransportError", err)
	}
	if got := tk.Snapshot().Kind; got != authflow.TimeoutAdvisory {
		t.Errorf("kind = %v, countdown must survive a rejected submission", got)
	}
}

func TestDismiss_ReturnsToIdle(t *testing.T) {
	tk, _, _ := newTestTracker()
	tk.HandleTimeout(authflow.EventSessionExpired, &authflow.SessionExpiredPayload{})

	tk.Dismiss()
	if got := tk.Snapshot().Kind; got != authflow.TimeoutNone {
		t.Errorf("kind = %v, want idle", got)
	}
}

func TestHandleBack_SwallowedWhileModalUp(t *testing.T) {
	tk, _, _ := newTestTracker()

	if tk.HandleBack() {
		t.Error("back must propagate while idle")
	}
	advisory(t, tk, 10, true)
	if !tk.HandleBack() {
		t.Error("back must be swallowed during the countdown")
	}
	tk.Dismiss()
	if tk.HandleBack() {
		t.Error("back must propagate again after dismissal")
	}
}

func TestOnChange_ObservesTransitions(t *testing.T) {
	var mu sync.Mutex
	var seen []authflow.TimeoutSnapshot

	clock := newManualClock()
	tr := &scriptedTransport{}
	tk := New(tr,
		WithClock(clock),
		WithOnChange(func(s authflow.TimeoutSnapshot) {
			mu.Lock()
			seen = append(seen, s)
			mu.Unlock()
		}),
	)

	advisory(t, tk, 2, true)
	tk.Tick()
	tk.Tick()

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 3 {
		t.Fatalf("observed %d snapshots, want 3", len(seen))
	}
	if seen[0].SecondsRemaining != 2 || seen[1].SecondsRemaining != 1 {
		t.Errorf("snapshots = %+v", seen)
	}
	if seen[2].Kind != authflow.TimeoutMandatory {
		t.Errorf("final snapshot = %+v, want expired", seen[2])
	}
}

func TestSetVisible_SingleTickerDrivesCountdown(t *testing.T) {
	tk, _, _ := newTestTracker()
	defer tk.Close()
	advisory(t, tk, 600, true)

	tk.SetVisible(true)
	tk.SetVisible(true) // repeated mount must not add a second timer
	time.Sleep(2200 * time.Millisecond)

	drop := 600 - tk.Snapshot().SecondsRemaining
	if drop < 1 || drop > 3 {
		t.Fatalf("countdown dropped %d seconds over ~2s, want one timer's worth", drop)
	}

	tk.SetVisible(false)
	frozen := tk.Snapshot().SecondsRemaining
	time.Sleep(1500 * time.Millisecond)
	if got := tk.Snapshot().SecondsRemaining; got != frozen {
		t.Errorf("seconds = %d, want %d once the timer is torn down", got, frozen)
	}

	// Remounting the countdown UI restarts the timer cleanly.
	tk.SetVisible(true)
	time.Sleep(1200 * time.Millisecond)
	if got := tk.Snapshot().SecondsRemaining; got >= frozen {
		t.Errorf("seconds = %d, remount did not restart the timer", got)
	}
}

func TestClose_StopsTicker(t *testing.T) {
	tk, _, _ := newTestTracker()
	advisory(t, tk, 600, true)

	tk.SetVisible(true)
	if err := tk.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	frozen := tk.Snapshot().SecondsRemaining
	time.Sleep(1500 * time.Millisecond)
	if got := tk.Snapshot().SecondsRemaining; got != frozen {
		t.Errorf("seconds = %d, want %d after Close", got, frozen)
	}
}

func TestExtend_AuditCarriesFlowAndUser(t *testing.T) {
	var mu sync.Mutex
	var events []audit.Event

	trail := audit.New(10, audit.WithHandler(func(e audit.Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e)
	}))
	defer trail.Close()

	clock := newManualClock()
	tr := &scriptedTransport{}
	tk := New(tr, WithClock(clock), WithAudit(trail))
	advisory(t, tk, 60, true)

	ctx := authflow.WithFlowID(authflow.WithUserID(context.Background(), "alice"), "flow-1")
	if err := tk.Extend(ctx); err != nil {
		t.Fatalf("Extend error: %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	var cmd *audit.Event
	for i := range events {
		if events[i].Action == audit.ActionCommand {
			cmd = &events[i]
			break
		}
	}
	if cmd == nil {
		t.Fatal("no command audit event recorded")
	}
	if cmd.Command != authflow.CommandExtendSession || cmd.FlowID != "flow-1" ||
		cmd.UserID != "alice" || cmd.Result != audit.ResultSuccess {
		t.Errorf("audit event = %+v", cmd)
	}
}

func TestLifecycleIgnoredWhileIdle(t *testing.T) {
	tk, clock, _ := newTestTracker()

	tk.OnLifecycleChange(authflow.LifecycleBackground)
	clock.advance(time.Hour)
	tk.OnLifecycleChange(authflow.LifecycleActive)

	if got := tk.Snapshot().Kind; got != authflow.TimeoutNone {
		t.Errorf("kind = %v, want idle", got)
	}
}
