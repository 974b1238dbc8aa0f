// Package router maps decoded challenge payloads to navigation instructions.
//
// It is the single place that decides which screen an authentication event
// leads to. The decision is a data-driven transition table (table.go) keyed
// on event name and challenge mode; the router itself only builds screen
// parameters and keeps re-emitted events from stacking duplicate screens.
package router

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"

	json "github.com/goccy/go-json"
	"golang.org/x/sync/singleflight"

	authflow "github.com/chimerakang/authflow-go"
	"github.com/chimerakang/authflow-go/audit"
	"github.com/chimerakang/authflow-go/metrics"
	"github.com/chimerakang/authflow-go/policy"
	"github.com/chimerakang/authflow-go/token"
)

// Parameter keys the router places on destination screens.
const (
	ParamUserID         = "userID"
	ParamAttemptsLeft   = "attemptsLeft"
	ParamSubtitle       = "subtitle"
	ParamMessage        = "message"
	ParamPolicyMessage  = "policyMessage"
	ParamClearFields    = "clearFields"
	ParamSessionID      = "sessionID"
	ParamSessionType    = "sessionType"
	ParamAuthToken      = "authToken"
	ParamSessionSubject = "sessionSubject"
	ParamSessionExpiry  = "sessionExpiry"
	ParamOptions        = "options"
	ParamChallengeMode  = "challengeMode"
)

// Router issues navigation instructions for decoded bridge events.
type Router struct {
	logger        *slog.Logger
	nav           authflow.Navigator
	transport     authflow.Transport
	metrics       *metrics.Metrics
	audit         *audit.Logger
	localAuthName string

	group singleflight.Group

	mu      sync.Mutex
	pending []authflow.CredentialUpdate
}

// compile-time check
var _ authflow.Router = (*Router)(nil)

// Option configures the Router.
type Option func(*Router)

// WithLogger sets a structured logger for the router.
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) { r.logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Router) { r.metrics = m }
}

// WithAudit sets the flow audit trail.
func WithAudit(a *audit.Logger) Option {
	return func(r *Router) { r.audit = a }
}

// WithLocalAuthName sets the user-facing name of the device's local
// authentication mechanism, used in the default consent prompt.
// Default: "device authentication".
func WithLocalAuthName(name string) Option {
	return func(r *Router) { r.localAuthName = name }
}

// New creates a router over the given navigator and bridge transport.
func New(nav authflow.Navigator, transport authflow.Transport, opts ...Option) *Router {
	r := &Router{
		nav:           nav,
		transport:     transport,
		localAuthName: "device authentication",
	}
	for _, o := range opts {
		o(r)
	}
	if r.logger == nil {
		r.logger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(math.MaxInt)}))
	}
	return r
}

// Route issues at most one navigation instruction for the event. Events that
// carry a transport or business error never navigate; the error is returned
// for the presenting screen to surface inline.
func (r *Router) Route(ctx context.Context, event string, p authflow.Payload) error {
	switch p := p.(type) {
	case *authflow.ChallengePayload:
		return r.routeChallenge(ctx, event, p)
	case *authflow.AuthenticatedPayload:
		return r.routeAuthenticated(ctx, event, p)
	case *authflow.DeviceActivationPayload:
		r.navigate(authflow.WithUserID(ctx, p.UserID), authflow.ScreenSecondaryDevice, authflow.Params{
			ParamUserID:  p.UserID,
			ParamOptions: p.Options,
		})
		return nil
	case *authflow.LoggedOffPayload:
		// No navigation: the bridge always follows with a fresh
		// user-identification event, and that one drives the transition.
		r.logger.Debug("user logged off", "user_id", p.UserID)
		return nil
	default:
		return fmt.Errorf("authflow/router: unroutable payload %T for event %s", p, event)
	}
}

func (r *Router) routeChallenge(ctx context.Context, event string, p *authflow.ChallengePayload) error {
	dest, ok := Lookup(event, p.ChallengeMode)
	if !ok {
		return fmt.Errorf("authflow/router: no destination for event %s mode %d", event, p.ChallengeMode)
	}
	if p.UserID != "" {
		ctx = authflow.WithUserID(ctx, p.UserID)
	}

	params := authflow.Params{
		ParamUserID:        p.UserID,
		ParamAttemptsLeft:  p.AttemptsLeft,
		ParamChallengeMode: p.ChallengeMode,
		ParamClearFields:   p.Status.Destructive(),
	}

	switch dest {
	case authflow.ScreenConsent:
		params[ParamMessage] = r.consentMessage(p)
	case authflow.ScreenUpdateExpiredPassword:
		// The server's own wording explains why the change is forced.
		params[ParamSubtitle] = p.Status.StatusMessage
		r.attachPolicy(p, params)
	case authflow.ScreenSetPassword, authflow.ScreenUpdatePassword:
		r.attachPolicy(p, params)
	}

	if dest == authflow.OverlayStepUp {
		// Step-up re-authentication rides on top of whatever is presented.
		r.nav.Present(dest, params)
		r.record(ctx, dest, "present")
		return nil
	}

	r.navigate(ctx, dest, params)
	return nil
}

func (r *Router) routeAuthenticated(ctx context.Context, event string, p *authflow.AuthenticatedPayload) error {
	// Canonical contract: transport error first, business status second. Both
	// must pass before the session material is trusted.
	if err := p.Check(); err != nil {
		return err
	}

	info := p.AdditionalInfo
	ctx = authflow.WithUserID(ctx, p.UserID)
	ctx = authflow.WithSessionID(ctx, info.SessionID)

	params := authflow.Params{
		ParamUserID:      p.UserID,
		ParamSessionID:   info.SessionID,
		ParamSessionType: info.SessionType,
		ParamAuthToken:   info.AuthToken,
	}
	if info.AuthToken != "" {
		// The token was verified bridge-side; the claims only feed display
		// (who is signed in, when the session ends).
		if claims, err := token.Extract(info.AuthToken); err == nil {
			params[ParamSessionSubject] = claims.Subject
			params[ParamSessionExpiry] = claims.ExpiresAt
		} else {
			r.logger.Debug("auth token is not a parseable JWT", "error", err)
		}
	}
	r.navigate(ctx, authflow.ScreenDashboard, params)

	r.refreshPendingUpdates(ctx, p.UserID)
	return nil
}

// refreshPendingUpdates issues the one post-authentication follow-up query.
// Its result feeds the side list only; it never navigates, and its failure is
// not the caller's problem. singleflight collapses the duplicate queries a
// re-emitted authenticated event would otherwise produce.
func (r *Router) refreshPendingUpdates(ctx context.Context, userID string) {
	_, err, _ := r.group.Do("pending-updates", func() (any, error) {
		ack, err := r.transport.Call(ctx, authflow.CommandPendingCredentialUpdates, userID)
		if err != nil {
			return nil, err
		}
		if !ack.Error.OK() {
			return nil, &authflow.TransportError{Err: ack.Error}
		}

		var updates []authflow.CredentialUpdate
		if len(ack.Data) > 0 {
			if err := json.Unmarshal(ack.Data, &updates); err != nil {
				return nil, fmt.Errorf("authflow/router: decode pending updates: %w", err)
			}
		}

		r.mu.Lock()
		r.pending = updates
		r.mu.Unlock()
		return nil, nil
	})

	result := audit.ResultSuccess
	if err != nil {
		result = audit.ResultFailure
		r.logger.Warn("pending credential updates query failed", "error", err)
	} else {
		r.logger.Debug("pending credential updates refreshed",
			"session_id", authflow.SessionIDFromContext(ctx))
	}
	if r.metrics != nil {
		r.metrics.RecordCommand(authflow.CommandPendingCredentialUpdates, result)
	}
	r.auditCommand(ctx, authflow.CommandPendingCredentialUpdates, result, err)
}

// PendingUpdates returns the credential updates reported by the bridge after
// the most recent authentication.
func (r *Router) PendingUpdates() []authflow.CredentialUpdate {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]authflow.CredentialUpdate, len(r.pending))
	copy(out, r.pending)
	return out
}

// Reset aborts the current challenge sequence. Like every command this is
// fire-and-wait-for-event: the bridge answers with a fresh identification
// event, which routes the actual transition.
func (r *Router) Reset(ctx context.Context) error {
	ack, err := r.transport.Call(ctx, authflow.CommandResetAuthState)
	if err == nil && !ack.Error.OK() {
		err = &authflow.TransportError{Err: ack.Error}
	}

	result := audit.ResultSuccess
	if err != nil {
		result = audit.ResultFailure
	}
	if r.metrics != nil {
		r.metrics.RecordCommand(authflow.CommandResetAuthState, result)
	}
	r.auditCommand(ctx, authflow.CommandResetAuthState, result, err)

	if err != nil {
		return fmt.Errorf("authflow/router: reset: %w", err)
	}
	return nil
}

// auditCommand records one bridge command submission on the flow audit trail,
// carrying the flow and user correlation IDs from the context.
func (r *Router) auditCommand(ctx context.Context, command, result string, err error) {
	if r.audit == nil {
		return
	}
	e := audit.Event{
		Action:  audit.ActionCommand,
		Command: command,
		FlowID:  authflow.FlowIDFromContext(ctx),
		UserID:  authflow.UserIDFromContext(ctx),
		Result:  result,
	}
	if err != nil {
		e.Error = err.Error()
	}
	r.audit.Log(e)
}

// navigate applies the idempotent re-navigation rule: a destination equal to
// the screen already presented updates its parameters in place instead of
// pushing a duplicate stack entry.
func (r *Router) navigate(ctx context.Context, dest authflow.Screen, params authflow.Params) {
	if r.nav.Current() == dest {
		r.nav.Update(dest, params)
		r.record(ctx, dest, "update")
		return
	}
	r.nav.Push(dest, params)
	r.record(ctx, dest, "push")
}

func (r *Router) record(ctx context.Context, dest authflow.Screen, kind string) {
	r.logger.Debug("navigation instruction", "screen", dest, "kind", kind)
	if r.metrics != nil {
		r.metrics.RecordRoute(string(dest), kind)
	}
	if r.audit != nil {
		r.audit.Log(audit.Event{
			Action:  audit.ActionRoute,
			Screen:  string(dest),
			Details: kind,
			FlowID:  authflow.FlowIDFromContext(ctx),
			UserID:  authflow.UserIDFromContext(ctx),
			Result:  audit.ResultSuccess,
		})
	}
}

// consentMessage derives the local-auth consent prompt. The bridge may embed
// its own wording as a JSON blob in challengeInfo; otherwise a templated
// default names the concrete mechanism.
func (r *Router) consentMessage(p *authflow.ChallengePayload) string {
	if blob, ok := p.Info(authflow.InfoKeyConsentPrompt); ok {
		var prompt struct {
			Prompt string `json:"prompt"`
		}
		if err := json.Unmarshal([]byte(blob), &prompt); err == nil && prompt.Prompt != "" {
			return prompt.Prompt
		}
		r.logger.Debug("unusable consent prompt blob, using default")
	}

	name := r.localAuthName
	if v, ok := p.Info(authflow.InfoKeyLocalAuthType); ok && v != "" {
		name = v
	}
	return fmt.Sprintf("Allow %s to be used for signing in?", name)
}

// attachPolicy renders the embedded password policy, if any, for screens that
// collect a new password.
func (r *Router) attachPolicy(p *authflow.ChallengePayload, params authflow.Params) {
	if raw, ok := p.Info(authflow.InfoKeyPasswordPolicy); ok {
		params[ParamPolicyMessage] = policy.MessageFromJSON(raw)
	}
}
