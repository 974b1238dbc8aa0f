package authflow

import (
	"context"
	"time"
)

// Transport is the native SDK bridge: an opaque asynchronous service that
// accepts commands and emits named events. Implementations: the platform
// bridge binding in the host app, fake/ (testing).
type Transport interface {
	// Call submits a command to the bridge. The returned Ack acknowledges the
	// submission only; the operation's outcome arrives later as an event.
	// A non-zero Ack error code means the submission itself was rejected.
	Call(ctx context.Context, command string, args ...any) (*Ack, error)
}

// Navigator is the external navigation stack. "Push" presents a new screen,
// "Update" replaces the parameters of the screen already on top, "Present"
// raises an overlay without touching the stack.
type Navigator interface {
	// Current returns the screen currently on top, or ScreenNone.
	Current() Screen

	// Push presents screen as a new stack entry.
	Push(screen Screen, params Params)

	// Update refreshes the parameters of the currently presented screen.
	Update(screen Screen, params Params)

	// Present raises an overlay above the current screen.
	Present(overlay Screen, params Params)
}

// Clock abstracts wall-clock time so elapsed-time computations can be tested
// deterministically. Implementations: SystemClock, fake/ (manual clock).
type Clock interface {
	Now() time.Time
}

// SystemClock is the Clock used outside of tests.
type SystemClock struct{}

// Now returns the current wall-clock time.
func (SystemClock) Now() time.Time { return time.Now() }

// Handler receives a decoded, validated payload for one event delivery.
// Handlers run synchronously on the delivering goroutine and may be re-entered
// if the bridge emits the same event again before the handler returns.
type Handler func(event string, p Payload)

// Subscription is a scoped claim on an event name. Releasing it restores
// whichever handler was live when the subscription was acquired.
type Subscription interface {
	Release()
}

// Dispatcher decodes raw bridge envelopes and routes them to at most one live
// handler per event name. Implementation: dispatch/.
type Dispatcher interface {
	// Subscribe installs handler as the sole receiver for event, replacing any
	// existing handler.
	Subscribe(event string, handler Handler)

	// Unsubscribe clears the handler for event.
	Unsubscribe(event string)

	// Acquire installs handler and returns a Subscription whose Release
	// restores the previously live handler.
	Acquire(event string, handler Handler) Subscription

	// Deliver is the transport entry point. Malformed payloads and events
	// without a live handler are logged and dropped.
	Deliver(env Envelope)
}

// Router maps decoded challenge payloads to navigation instructions.
// Implementation: router/.
type Router interface {
	// Route issues at most one navigation instruction for the event.
	Route(ctx context.Context, event string, p Payload) error

	// PendingUpdates returns the credential updates reported by the bridge
	// after the most recent authentication.
	PendingUpdates() []CredentialUpdate
}

// Tracker reconciles session-timeout countdowns against wall-clock time.
// Implementation: timeout/.
type Tracker interface {
	// HandleTimeout consumes a session-expired or idle-timeout payload.
	HandleTimeout(event string, p Payload)

	// OnLifecycleChange feeds the host app lifecycle signal to the countdown.
	OnLifecycleChange(state LifecycleState)

	// Extend asks the bridge to extend the session and returns the tracker to
	// idle on an accepted submission.
	Extend(ctx context.Context) error

	// Dismiss acknowledges the timeout without extending.
	Dismiss()

	// HandleBack reports whether a back gesture was swallowed by the modal.
	HandleBack() bool

	// Snapshot returns the countdown state for rendering.
	Snapshot() TimeoutSnapshot
}
