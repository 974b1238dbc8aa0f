package authflow

import "context"

type ctxKey string

const (
	ctxKeyUserID    ctxKey = "authflow_user_id"
	ctxKeySessionID ctxKey = "authflow_session_id"
	ctxKeyFlowID    ctxKey = "authflow_flow_id"
)

// WithUserID stores the identified user ID in the context.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKeyUserID, userID)
}

// UserIDFromContext extracts the identified user ID from the context.
func UserIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeyUserID).(string)
	return v
}

// WithSessionID stores the authenticated session ID in the context.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, ctxKeySessionID, sessionID)
}

// SessionIDFromContext extracts the authenticated session ID from the context.
func SessionIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeySessionID).(string)
	return v
}

// WithFlowID stores a correlation ID for one authentication flow in the
// context. Bridge bindings use it to tie command submissions to the events
// they eventually produce in logs.
func WithFlowID(ctx context.Context, flowID string) context.Context {
	return context.WithValue(ctx, ctxKeyFlowID, flowID)
}

// FlowIDFromContext extracts the flow correlation ID from the context.
func FlowIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeyFlowID).(string)
	return v
}
