package middleware

import (
	"context"

	"github.com/gosuda/audittrail/internal/capture"
)

type contextKey string

const (
	ContextKeyActorID   contextKey = "actor_id"
	ContextKeyUserRole  contextKey = "role"
	ContextKeyExecution contextKey = "execution"
)

func ActorIDFromContext(ctx context.Context) (int64, bool) {
	v, ok := ctx.Value(ContextKeyActorID).(int64)
	return v, ok
}

func RoleFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ContextKeyUserRole).(string)
	return v, ok
}

// ExecutionFromContext returns the capture execution context built by the
// Execution middleware.
func ExecutionFromContext(ctx context.Context) (*capture.RequestContext, bool) {
	v, ok := ctx.Value(ContextKeyExecution).(*capture.RequestContext)
	return v, ok
}
