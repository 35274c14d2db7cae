package api

import (
	"context"
	"time"

	"github.com/medirush/medirush-api/models"
)

// QueryTimeout is the default timeout for database queries
const QueryTimeout = 10 * time.Second

// WithQueryTimeout creates a context with query timeout
func WithQueryTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(parent, QueryTimeout)
}

type contextKey string

const callerContextKey contextKey = "caller"

// WithCaller stores the authenticated caller identity on the request context
func WithCaller(ctx context.Context, caller models.CallerIdentity) context.Context {
	return context.WithValue(ctx, callerContextKey, caller)
}

// CallerFromContext returns the authenticated caller set by the auth
// middleware. The second return is false on unauthenticated requests.
func CallerFromContext(ctx context.Context) (models.CallerIdentity, bool) {
	caller, ok := ctx.Value(callerContextKey).(models.CallerIdentity)
	return caller, ok
}
