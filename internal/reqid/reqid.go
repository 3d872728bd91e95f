// Package reqid attaches a per-request identifier to a context.
package reqid

import (
	"context"

	"github.com/google/uuid"
)

// Header is the HTTP header a caller may use to supply its own request id.
const Header = "X-Request-Id"

type key struct{}

// NewContext returns a copy of parent carrying a freshly generated id.
func NewContext(parent context.Context) (context.Context, string) {
	id := uuid.NewString()
	return WithID(parent, id), id
}

// WithID returns a copy of parent carrying id. An empty id is replaced by a
// generated one.
func WithID(parent context.Context, id string) context.Context {
	if id == "" {
		id = uuid.NewString()
	}
	return context.WithValue(parent, key{}, id)
}

// FromContext reports the request id stored in ctx.
func FromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(key{}).(string)
	return id, ok
}
