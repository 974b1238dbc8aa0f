// Package dispatch provides the event dispatch registry: the single decode
// boundary between the native bridge transport and feature code.
//
// Raw envelopes are decoded into the typed payload for their event name and
// validated before any handler sees them. Malformed payloads are logged and
// dropped; the bridge typically re-emits state via a subsequent, better-formed
// event, so a dropped delivery is never surfaced to the UI.
package dispatch

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"

	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"

	authflow "github.com/chimerakang/authflow-go"
	"github.com/chimerakang/authflow-go/audit"
	"github.com/chimerakang/authflow-go/metrics"
)

// Drop reasons recorded in logs and metrics.
const (
	DropUnhandled = "unhandled"
	DropUnknown   = "unknown_event"
	DropDecode    = "decode"
	DropInvalid   = "invalid"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Registry routes decoded events to at most one live handler per event name.
//
// Handlers form a stack per event: Subscribe replaces the whole stack,
// Acquire pushes, and releasing a Subscription restores whichever handler was
// live underneath. Only the top of the stack receives deliveries.
type Registry struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
	audit   *audit.Logger

	mu       sync.Mutex
	handlers map[string][]*entry
}

type entry struct {
	reg     *Registry
	event   string
	handler authflow.Handler
}

// compile-time check
var _ authflow.Dispatcher = (*Registry)(nil)

// Option configures the Registry.
type Option func(*Registry)

// WithLogger sets a structured logger for the registry.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// WithAudit sets the flow audit trail.
func WithAudit(a *audit.Logger) Option {
	return func(r *Registry) { r.audit = a }
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		handlers: make(map[string][]*entry),
	}
	for _, o := range opts {
		o(r)
	}
	if r.logger == nil {
		r.logger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(math.MaxInt)}))
	}
	return r
}

// Subscribe installs handler as the sole receiver for event, replacing any
// existing handler (and any acquired stack) for that name.
func (r *Registry) Subscribe(event string, handler authflow.Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[event] = []*entry{{reg: r, event: event, handler: handler}}
}

// Unsubscribe clears all handlers for event. This is distinct from releasing
// a scoped subscription, which restores the previous handler instead.
func (r *Registry) Unsubscribe(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlers, event)
}

// Acquire pushes handler on top of the event's handler stack and returns a
// Subscription whose Release restores the previously live handler. Screens
// acquire on mount and release on unmount.
func (r *Registry) Acquire(event string, handler authflow.Handler) authflow.Subscription {
	e := &entry{reg: r, event: event, handler: handler}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[event] = append(r.handlers[event], e)
	return e
}

// Release removes the subscription from its event's stack. If it was the live
// handler, the one beneath it becomes live again. Releasing twice is a no-op.
func (e *entry) Release() {
	r := e.reg
	r.mu.Lock()
	defer r.mu.Unlock()

	stack := r.handlers[e.event]
	for i, cand := range stack {
		if cand == e {
			r.handlers[e.event] = append(stack[:i], stack[i+1:]...)
			return
		}
	}
}

// Deliver is the transport entry point, invoked for every emitted event.
//
// The live handler runs synchronously on the calling goroutine; if a second
// event of the same name arrives before the handler returns, the handler is
// re-entered. Handlers must therefore be re-entry safe.
func (r *Registry) Deliver(env authflow.Envelope) {
	r.mu.Lock()
	var h authflow.Handler
	if stack := r.handlers[env.EventName]; len(stack) > 0 {
		h = stack[len(stack)-1].handler
	}
	r.mu.Unlock()

	if h == nil {
		r.drop(env.EventName, DropUnhandled, nil)
		return
	}

	p, reason, err := decode(env.EventName, env.RawPayload)
	if err != nil {
		r.drop(env.EventName, reason, err)
		return
	}

	if r.metrics != nil {
		r.metrics.RecordDelivered(env.EventName)
	}
	if r.audit != nil {
		r.audit.Log(audit.Event{Action: audit.ActionEventReceived, EventName: env.EventName, Result: audit.ResultSuccess})
	}

	// Handler runs without the registry lock so it may subscribe, acquire, or
	// release from within the callback.
	h(env.EventName, p)
}

func (r *Registry) drop(event, reason string, err error) {
	r.logger.Debug("event dropped", "event", event, "reason", reason, "error", err)
	if r.metrics != nil {
		r.metrics.RecordDropped(event, reason)
	}
	if r.audit != nil {
		r.audit.Log(audit.Event{Action: audit.ActionEventDropped, EventName: event, Result: reason})
	}
}

// decode parses raw into the typed payload for event and validates it. The
// zoo of event payload shapes is closed: the event name is the discriminant.
func decode(event, raw string) (authflow.Payload, string, error) {
	var p authflow.Payload
	switch event {
	case authflow.EventUserIdentificationRequested,
		authflow.EventActivationCodeRequested,
		authflow.EventLocalAuthConsentRequested,
		authflow.EventPasswordRequested:
		p = &authflow.ChallengePayload{}
	case authflow.EventUserAuthenticated:
		p = &authflow.AuthenticatedPayload{}
	case authflow.EventUserLoggedOff:
		p = &authflow.LoggedOffPayload{}
	case authflow.EventDeviceActivationOptions:
		p = &authflow.DeviceActivationPayload{}
	case authflow.EventSessionExpired:
		p = &authflow.SessionExpiredPayload{}
	case authflow.EventIdleTimeoutWarning:
		p = &authflow.IdleTimeoutPayload{}
	default:
		return nil, DropUnknown, fmt.Errorf("dispatch: no payload type for event %q", event)
	}

	if err := json.Unmarshal([]byte(raw), p); err != nil {
		return nil, DropDecode, fmt.Errorf("dispatch: decode %s: %w", event, err)
	}
	if err := validate.Struct(p); err != nil {
		return nil, DropInvalid, fmt.Errorf("dispatch: validate %s: %w", event, err)
	}
	return p, "", nil
}
