// Package authflow provides a framework-agnostic orchestration core for an
// asynchronous authentication SDK bridge.
//
// The bridge delivers JSON-encoded callback events out of band, not as direct
// responses to the commands that triggered them. This package decodes those
// events at a single validated boundary (dispatch/), maps challenge payloads
// to navigation instructions through a data-driven transition table (router/),
// reconciles session-timeout countdowns against wall-clock time (timeout/),
// and renders password-policy documents into user-facing requirement text
// (policy/). Concrete collaborators are injected via Option functions, keeping
// the core independent of any specific bridge binding or UI framework.
//
// Example usage:
//
//	client, err := authflow.NewClient(
//	    authflow.Config{AppID: "demo-bank"},
//	    authflow.WithTransport(bridge),
//	    authflow.WithDispatcher(registry),
//	    authflow.WithRouter(router),
//	    authflow.WithTracker(tracker),
//	)
package authflow

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"

	"github.com/google/uuid"
)

// RoutedEvents is the set of event names the router consumes. Start
// subscribes the router to each of these.
var RoutedEvents = []string{
	EventUserIdentificationRequested,
	EventActivationCodeRequested,
	EventLocalAuthConsentRequested,
	EventPasswordRequested,
	EventUserAuthenticated,
	EventUserLoggedOff,
	EventDeviceActivationOptions,
}

// TimeoutEvents is the set of event names the tracker consumes.
var TimeoutEvents = []string{
	EventSessionExpired,
	EventIdleTimeoutWarning,
}

// Client is the main entry point: it wires the dispatcher, router, and
// timeout tracker over an injected bridge transport.
type Client struct {
	config     Config
	logger     *slog.Logger
	transport  Transport
	dispatcher Dispatcher
	router     Router
	tracker    Tracker
}

// Config holds client behavior configuration.
type Config struct {
	// AppID identifies the integrating application to the bridge. Required.
	AppID string
}

// Option configures the Client.
type Option func(*Client)

// WithLogger sets a structured logger for the client.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithTransport sets the bridge transport implementation.
func WithTransport(t Transport) Option {
	return func(c *Client) { c.transport = t }
}

// WithDispatcher sets the event dispatch registry implementation.
func WithDispatcher(d Dispatcher) Option {
	return func(c *Client) { c.dispatcher = d }
}

// WithRouter sets the challenge router implementation.
func WithRouter(r Router) Option {
	return func(c *Client) { c.router = r }
}

// WithTracker sets the session timeout tracker implementation.
func WithTracker(t Tracker) Option {
	return func(c *Client) { c.tracker = t }
}

// NewClient creates a new client with the given configuration and options.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if cfg.AppID == "" {
		return nil, fmt.Errorf("authflow: Config.AppID is required")
	}

	c := &Client{config: cfg}
	for _, o := range opts {
		o(c)
	}
	if c.logger == nil {
		c.logger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(math.MaxInt)}))
	}
	return c, nil
}

// Config returns the client configuration.
func (c *Client) Config() Config { return c.config }

// Transport returns the bridge transport, or nil if not configured.
func (c *Client) Transport() Transport { return c.transport }

// Dispatcher returns the event dispatch registry, or nil if not configured.
func (c *Client) Dispatcher() Dispatcher { return c.dispatcher }

// Router returns the challenge router, or nil if not configured.
func (c *Client) Router() Router { return c.router }

// Tracker returns the session timeout tracker, or nil if not configured.
func (c *Client) Tracker() Tracker { return c.tracker }

// Start subscribes the router and tracker to their event sets. It must be
// called before the transport begins delivering events.
func (c *Client) Start() error {
	if c.dispatcher == nil {
		return fmt.Errorf("authflow: no dispatcher configured")
	}

	if c.router != nil {
		for _, ev := range RoutedEvents {
			c.dispatcher.Subscribe(ev, func(event string, p Payload) {
				// One flow ID per delivery ties the commands this event triggers
				// back to it in the audit trail.
				ctx := WithFlowID(context.Background(), uuid.NewString())
				if err := c.router.Route(ctx, event, p); err != nil {
					c.logger.Warn("route failed", "event", event, "error", err)
				}
			})
		}
	}

	if c.tracker != nil {
		for _, ev := range TimeoutEvents {
			c.dispatcher.Subscribe(ev, func(event string, p Payload) {
				c.tracker.HandleTimeout(event, p)
			})
		}
	}

	c.logger.Info("authflow client started", "app_id", c.config.AppID)
	return nil
}

// Deliver forwards a raw bridge envelope to the dispatch registry. Bridge
// bindings call this for every emitted event.
func (c *Client) Deliver(env Envelope) {
	if c.dispatcher == nil {
		return
	}
	c.dispatcher.Deliver(env)
}

// OnLifecycleChange forwards the host application lifecycle signal to the
// timeout tracker.
func (c *Client) OnLifecycleChange(state LifecycleState) {
	if c.tracker != nil {
		c.tracker.OnLifecycleChange(state)
	}
}

// Close releases all resources held by the client. Any injected collaborator
// that implements io.Closer will be closed.
func (c *Client) Close() error {
	closers := []interface{}{
		c.dispatcher, c.router, c.tracker, c.transport,
	}
	var firstErr error
	for _, svc := range closers {
		if cl, ok := svc.(io.Closer); ok && cl != nil {
			if err := cl.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
