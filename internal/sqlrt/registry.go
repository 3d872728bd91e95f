package sqlrt

import (
	"fmt"
	"sort"
)

// Resolver computes the value of a resolver-backed field. source is the
// parent value (the root value for root fields) and args are already coerced.
type Resolver func(rc *RequestContext, source any, args map[string]any) (any, error)

// Registry maps (object type, field) pairs to resolvers. It is filled during
// startup and becomes read-only once handed to NewRuntime.
type Registry struct {
	resolvers map[string]Resolver
	frozen    bool
}

func NewRegistry() *Registry {
	return &Registry{resolvers: make(map[string]Resolver)}
}

func key(objectType, field string) string { return objectType + "." + field }

// Bind registers fn for objectType.field. Binding the same field twice, or
// binding after the registry was frozen, is a programming error and panics.
func (r *Registry) Bind(objectType, field string, fn Resolver) {
	k := key(objectType, field)
	if r.frozen {
		panic(fmt.Sprintf("sqlrt: Bind(%s) after the registry was frozen", k))
	}
	if fn == nil {
		panic(fmt.Sprintf("sqlrt: nil resolver for %s", k))
	}
	if _, dup := r.resolvers[k]; dup {
		panic(fmt.Sprintf("sqlrt: resolver for %s bound twice", k))
	}
	r.resolvers[k] = fn
}

// Lookup returns the resolver bound to objectType.field, or nil.
func (r *Registry) Lookup(objectType, field string) Resolver {
	return r.resolvers[key(objectType, field)]
}

// Keys lists the bound fields in sorted order.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.resolvers))
	for k := range r.resolvers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
