package authflow_test

import (
	"context"
	"testing"

	authflow "github.com/chimerakang/authflow-go"
)

// recordingDispatcher implements authflow.Dispatcher.
type recordingDispatcher struct {
	subscribed []string
	delivered  []authflow.Envelope
	closed     bool
}

func (d *recordingDispatcher) Subscribe(event string, _ authflow.Handler) {
	d.subscribed = append(d.subscribed, event)
}

func (d *recordingDispatcher) Unsubscribe(string) {}

func (d *recordingDispatcher) Acquire(string, authflow.Handler) authflow.Subscription {
	return nil
}

func (d *recordingDispatcher) Deliver(env authflow.Envelope) {
	d.delivered = append(d.delivered, env)
}

func (d *recordingDispatcher) Close() error {
	d.closed = true
	return nil
}

// recordingTracker implements authflow.Tracker.
type recordingTracker struct {
	lifecycle []authflow.LifecycleState
}

func (t *recordingTracker) HandleTimeout(string, authflow.Payload) {}
func (t *recordingTracker) OnLifecycleChange(s authflow.LifecycleState) {
	t.lifecycle = append(t.lifecycle, s)
}
func (t *recordingTracker) Extend(context.Context) error { return nil }

func (t *recordingTracker) Dismiss() {}

func (t *recordingTracker) HandleBack() bool { return false }

func (t *recordingTracker) Snapshot() authflow.TimeoutSnapshot {
	return authflow.TimeoutSnapshot{}
}

func TestNewClient_RequiresAppID(t *testing.T) {
	_, err := authflow.NewClient(authflow.Config{})
	if err == nil {
		t.Fatal("NewClient() expected error when AppID is empty")
	}
}

func TestNewClient_AcceptsAppID(t *testing.T) {
	c, err := authflow.NewClient(authflow.Config{AppID: "demo-bank"})
	if err != nil {
		t.Fatalf("NewClient() error: %v", err)
	}
	if c.Config().AppID != "demo-bank" {
		t.Errorf("AppID = %q, want %q", c.Config().AppID, "demo-bank")
	}
}

func TestNewClient_NilComponentsBeforeInjection(t *testing.T) {
	c, _ := authflow.NewClient(authflow.Config{AppID: "demo-bank"})

	if c.Transport() != nil {
		t.Error("Transport() should be nil before injection")
	}
	if c.Dispatcher() != nil {
		t.Error("Dispatcher() should be nil before injection")
	}
	if c.Router() != nil {
		t.Error("Router() should be nil before injection")
	}
	if c.Tracker() != nil {
		t.Error("Tracker() should be nil before injection")
	}
}

func TestStart_RequiresDispatcher(t *testing.T) {
	c, _ := authflow.NewClient(authflow.Config{AppID: "demo-bank"})
	if err := c.Start(); err == nil {
		t.Fatal("Start() expected error without a dispatcher")
	}
}

func TestStart_SubscribesTimeoutEvents(t *testing.T) {
	d := &recordingDispatcher{}
	c, _ := authflow.NewClient(authflow.Config{AppID: "demo-bank"},
		authflow.WithDispatcher(d),
		authflow.WithTracker(&recordingTracker{}),
	)

	if err := c.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	got := map[string]bool{}
	for _, ev := range d.subscribed {
		got[ev] = true
	}
	for _, ev := range authflow.TimeoutEvents {
		if !got[ev] {
			t.Errorf("Start() did not subscribe %q", ev)
		}
	}
	// No router injected, so routed events stay unclaimed.
	for _, ev := range authflow.RoutedEvents {
		if got[ev] {
			t.Errorf("Start() subscribed %q without a router", ev)
		}
	}
}

func TestDeliver_ForwardsToDispatcher(t *testing.T) {
	d := &recordingDispatcher{}
	c, _ := authflow.NewClient(authflow.Config{AppID: "demo-bank"}, authflow.WithDispatcher(d))

	env := authflow.Envelope{EventName: authflow.EventUserLoggedOff, RawPayload: `{}`}
	c.Deliver(env)

	if len(d.delivered) != 1 || d.delivered[0].EventName != authflow.EventUserLoggedOff {
		t.Errorf("delivered = %+v, want the forwarded envelope", d.delivered)
	}
}

func TestDeliver_NoDispatcherIsSafe(t *testing.T) {
	c, _ := authflow.NewClient(authflow.Config{AppID: "demo-bank"})
	c.Deliver(authflow.Envelope{EventName: authflow.EventUserLoggedOff})
}

func TestOnLifecycleChange_ForwardsToTracker(t *testing.T) {
	tr := &recordingTracker{}
	c, _ := authflow.NewClient(authflow.Config{AppID: "demo-bank"}, authflow.WithTracker(tr))

	c.OnLifecycleChange(authflow.LifecycleBackground)
	c.OnLifecycleChange(authflow.LifecycleActive)

	if len(tr.lifecycle) != 2 || tr.lifecycle[0] != authflow.LifecycleBackground {
		t.Errorf("lifecycle = %v", tr.lifecycle)
	}
}

func TestClose_ClosesClosers(t *testing.T) {
	d := &recordingDispatcher{}
	c, _ := authflow.NewClient(authflow.Config{AppID: "demo-bank"}, authflow.WithDispatcher(d))

	if err := c.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
	if !d.closed {
		t.Error("Close() should close the dispatcher")
	}
}

func TestClose_NoErrorWithoutClosers(t *testing.T) {
	c, _ := authflow.NewClient(authflow.Config{AppID: "demo-bank"})
	if err := c.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
}
