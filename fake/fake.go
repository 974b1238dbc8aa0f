// Package fake provides in-memory implementations of all authflow
// collaborators for testing.
//
// Use fake.NewEnv() in unit tests to get a fully wired client over a
// scripted bridge, a recording navigator, and a manual clock — no native
// bridge, no real timers.
package fake

import (
	"context"
	"fmt"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	authflow "github.com/chimerakang/authflow-go"
	"github.com/chimerakang/authflow-go/dispatch"
	"github.com/chimerakang/authflow-go/router"
	"github.com/chimerakang/authflow-go/timeout"
)

// --- Transport ---

// Call records one command submission to the fake bridge.
type Call struct {
	RequestID string
	Command   string
	Args      []any
}

// Sink receives the envelopes the fake bridge emits.
type Sink interface {
	Deliver(env authflow.Envelope)
}

// Transport is a scripted bridge: commands are acknowledged from a canned
// script (default: accepted), and tests emit events through it as the real
// bridge would.
type Transport struct {
	mu    sync.Mutex
	sink  Sink
	calls []Call
	acks  map[string]*authflow.Ack
	errs  map[string]error
}

// compile-time check
var _ authflow.Transport = (*Transport)(nil)

// NewTransport creates a fake bridge with every command accepted by default.
func NewTransport() *Transport {
	return &Transport{
		acks: make(map[string]*authflow.Ack),
		errs: make(map[string]error),
	}
}

// Bind connects the bridge's event emission to a sink, typically the
// dispatch registry.
func (t *Transport) Bind(sink Sink) { t.sink = sink }

// ScriptAck sets the acknowledgement returned for command.
func (t *Transport) ScriptAck(command string, ack *authflow.Ack) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.acks[command] = ack
}

// ScriptError makes Call itself fail for command.
func (t *Transport) ScriptError(command string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.errs[command] = err
}

// ScriptPendingUpdates sets the read-style acknowledgement data for the
// pending-credential-updates query.
func (t *Transport) ScriptPendingUpdates(updates []authflow.CredentialUpdate) {
	data, _ := json.Marshal(updates)
	t.ScriptAck(authflow.CommandPendingCredentialUpdates, &authflow.Ack{Data: data})
}

// Call acknowledges the submission per the script.
func (t *Transport) Call(_ context.Context, command string, args ...any) (*authflow.Ack, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.calls = append(t.calls, Call{
		RequestID: uuid.NewString(),
		Command:   command,
		Args:      args,
	})

	if err := t.errs[command]; err != nil {
		return nil, err
	}
	if ack := t.acks[command]; ack != nil {
		return ack, nil
	}
	return &authflow.Ack{}, nil
}

// Calls returns every command submitted so far.
func (t *Transport) Calls() []Call {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Call, len(t.calls))
	copy(out, t.calls)
	return out
}

// CallsFor returns the submissions of one command.
func (t *Transport) CallsFor(command string) []Call {
	var out []Call
	for _, c := range t.Calls() {
		if c.Command == command {
			out = append(out, c)
		}
	}
	return out
}

// Emit marshals payload and delivers it to the bound sink under event, the
// way the real bridge pushes callback events.
func (t *Transport) Emit(event string, payload any) error {
	if t.sink == nil {
		return fmt.Errorf("fake: transport not bound to a sink")
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("fake: marshal %s payload: %w", event, err)
	}
	t.sink.Deliver(authflow.Envelope{EventName: event, RawPayload: string(raw)})
	return nil
}

// EmitRaw delivers a raw, possibly malformed payload string.
func (t *Transport) EmitRaw(event, rawPayload string) error {
	if t.sink == nil {
		return fmt.Errorf("fake: transport not bound to a sink")
	}
	t.sink.Deliver(authflow.Envelope{EventName: event, RawPayload: rawPayload})
	return nil
}

// --- Navigator ---

type navEntry struct {
	screen authflow.Screen
	params authflow.Params
}

// Navigator records navigation instructions in a real stack so tests can
// assert on depth, order, and parameters.
type Navigator struct {
	mu       sync.Mutex
	stack    []navEntry
	overlays []navEntry
	updates  int
}

// compile-time check
var _ authflow.Navigator = (*Navigator)(nil)

// NewNavigator creates an empty navigation stack.
func NewNavigator() *Navigator { return &Navigator{} }

// Current returns the screen on top of the stack, or ScreenNone.
func (n *Navigator) Current() authflow.Screen {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.stack) == 0 {
		return authflow.ScreenNone
	}
	return n.stack[len(n.stack)-1].screen
}

// Push appends a new stack entry.
func (n *Navigator) Push(screen authflow.Screen, params authflow.Params) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stack = append(n.stack, navEntry{screen: screen, params: params})
}

// Update replaces the parameters of the top entry.
func (n *Navigator) Update(screen authflow.Screen, params authflow.Params) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.updates++
	if len(n.stack) > 0 {
		n.stack[len(n.stack)-1] = navEntry{screen: screen, params: params}
	}
}

// Present records an overlay without touching the stack.
func (n *Navigator) Present(overlay authflow.Screen, params authflow.Params) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.overlays = append(n.overlays, navEntry{screen: overlay, params: params})
}

// Depth returns the navigation stack depth.
func (n *Navigator) Depth() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.stack)
}

// Updates returns how many in-place parameter updates were issued.
func (n *Navigator) Updates() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.updates
}

// TopParams returns the parameters of the top stack entry.
func (n *Navigator) TopParams() authflow.Params {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.stack) == 0 {
		return nil
	}
	return n.stack[len(n.stack)-1].params
}

// Overlays returns the overlays presented so far.
func (n *Navigator) Overlays() []authflow.Screen {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]authflow.Screen, len(n.overlays))
	for i, e := range n.overlays {
		out[i] = e.screen
	}
	return out
}

// OverlayParams returns the parameters of the most recent overlay.
func (n *Navigator) OverlayParams() authflow.Params {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.overlays) == 0 {
		return nil
	}
	return n.overlays[len(n.overlays)-1].params
}

// --- Clock ---

// Clock is a manual wall clock advanced explicitly by tests.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// compile-time check
var _ authflow.Clock = (*Clock)(nil)

// NewClock creates a clock frozen at start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// --- Wired environment ---

// Env is a fully wired client over fake collaborators.
type Env struct {
	Client    *authflow.Client
	Transport *Transport
	Navigator *Navigator
	Clock     *Clock
	Registry  *dispatch.Registry
	Router    *router.Router
	Tracker   *timeout.Tracker
}

// Option configures the fake environment.
type Option func(*config)

type config struct {
	localAuthName string
	onChange      func(authflow.TimeoutSnapshot)
}

// WithLocalAuthName sets the mechanism name used in default consent prompts.
func WithLocalAuthName(name string) Option {
	return func(c *config) { c.localAuthName = name }
}

// WithTimeoutOnChange observes tracker snapshots.
func WithTimeoutOnChange(fn func(authflow.TimeoutSnapshot)) Option {
	return func(c *config) { c.onChange = fn }
}

// NewEnv creates an *authflow.Client with all collaborators wired to fakes
// and the router/tracker subscriptions already started.
func NewEnv(opts ...Option) *Env {
	cfg := &config{localAuthName: "fingerprint"}
	for _, o := range opts {
		o(cfg)
	}

	transport := NewTransport()
	nav := NewNavigator()
	clock := NewClock(time.Unix(1_700_000_000, 0))
	registry := dispatch.New()

	rt := router.New(nav, transport, router.WithLocalAuthName(cfg.localAuthName))

	trOpts := []timeout.Option{timeout.WithClock(clock)}
	if cfg.onChange != nil {
		trOpts = append(trOpts, timeout.WithOnChange(cfg.onChange))
	}
	tr := timeout.New(transport, trOpts...)

	client, _ := authflow.NewClient(
		authflow.Config{AppID: "fake"},
		authflow.WithTransport(transport),
		authflow.WithDispatcher(registry),
		authflow.WithRouter(rt),
		authflow.WithTracker(tr),
	)
	_ = client.Start()
	transport.Bind(registry)

	return &Env{
		Client:    client,
		Transport: transport,
		Navigator: nav,
		Clock:     clock,
		Registry:  registry,
		Router:    rt,
		Tracker:   tr,
	}
}
