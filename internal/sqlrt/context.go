package sqlrt

import (
	"context"

	"github.com/hanpama/usergraph/internal/reqid"
	"github.com/hanpama/usergraph/internal/store"
)

// Pool is the part of *store.Pool resolvers see.
type Pool interface {
	WithConn(ctx context.Context, fn func(*store.Conn) error) error
}

// RequestContext is handed to a resolver for the duration of one call. It
// must not be retained after the resolver returns.
type RequestContext struct {
	ctx        context.Context
	pool       Pool
	ObjectType string
	Field      string
}

// Context carries the request's cancellation and deadline.
func (rc *RequestContext) Context() context.Context { return rc.ctx }

// RequestID reports the id the transport assigned to the request.
func (rc *RequestContext) RequestID() string {
	id, _ := reqid.FromContext(rc.ctx)
	return id
}

// WithConn borrows one pooled connection for the duration of fn.
func (rc *RequestContext) WithConn(fn func(*store.Conn) error) error {
	return rc.pool.WithConn(rc.ctx, fn)
}
