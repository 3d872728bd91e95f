package executor

import (
	"context"
	"sync"
	"testing"

	language "github.com/hanpama/usergraph/internal/language"
	schema "github.com/hanpama/usergraph/internal/schema"
)

// MockResolver resolves one field for MockRuntime.
type MockResolver func(ctx context.Context, source any, args map[string]any) (any, error)

const (
	CallKindSync  = "sync"
	CallKindAsync = "async"
)

func valueResolver(val any) MockResolver {
	return func(context.Context, any, map[string]any) (any, error) { return val, nil }
}

func errorResolver(err error) MockResolver {
	return func(context.Context, any, map[string]any) (any, error) { return nil, err }
}

// sourceField projects key out of a map source.
func sourceField(key string) MockResolver {
	return func(_ context.Context, src any, _ map[string]any) (any, error) {
		m, _ := src.(map[string]any)
		return m[key], nil
	}
}

// Call records one resolution. Async calls made in the same flush share a
// BatchID; sync calls have BatchID 0.
type Call struct {
	Kind       string
	ObjectType string
	Field      string
	Args       map[string]any
	BatchID    int
}

// MockRuntime resolves fields from a "Type.field" keyed table and records
// every call. Fields without a resolver resolve to null.
type MockRuntime struct {
	mu        sync.Mutex
	resolvers map[string]MockResolver
	calls     []Call
	batches   int
}

func NewMockRuntime(resolvers map[string]MockResolver) *MockRuntime {
	m := &MockRuntime{resolvers: make(map[string]MockResolver, len(resolvers))}
	for k, v := range resolvers {
		m.resolvers[k] = v
	}
	return m
}

func (m *MockRuntime) resolve(ctx context.Context, kind string, batch int, objectType, field string, source any, args map[string]any) (any, error) {
	m.mu.Lock()
	r := m.resolvers[objectType+"."+field]
	m.calls = append(m.calls, Call{Kind: kind, ObjectType: objectType, Field: field, Args: args, BatchID: batch})
	m.mu.Unlock()
	if r == nil {
		return nil, nil
	}
	return r(ctx, source, args)
}

func (m *MockRuntime) ResolveSync(ctx context.Context, objectType string, field string, source any, args map[string]any) (any, error) {
	return m.resolve(ctx, CallKindSync, 0, objectType, field, source, args)
}

func (m *MockRuntime) BatchResolveAsync(ctx context.Context, tasks []AsyncResolveTask) []AsyncResolveResult {
	m.mu.Lock()
	m.batches++
	batch := m.batches
	m.mu.Unlock()

	out := make([]AsyncResolveResult, len(tasks))
	for i, t := range tasks {
		v, err := m.resolve(ctx, CallKindAsync, batch, t.ObjectType, t.Field, t.Source, t.Args)
		out[i] = AsyncResolveResult{Value: v, Error: err}
	}
	return out
}

func (m *MockRuntime) SerializeLeafValue(_ context.Context, _ string, value any) (any, error) {
	return value, nil
}

// Calls returns a copy of the recorded calls in order.
func (m *MockRuntime) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

func mustParseQuery(t *testing.T, q string) *language.QueryDocument {
	t.Helper()
	d, err := language.ParseQuery(q)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	return d
}

func mustBuildSchema(t *testing.T, sdl string, async ...string) *schema.Schema {
	t.Helper()
	sch, err := schema.BuildFromSDL(sdl)
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	for _, key := range async {
		typ, field := splitKey(key)
		sch.Types[typ].Field(field).Async = true
	}
	return sch
}

func splitKey(key string) (string, string) {
	for i := 0; i < len(key); i++ {
		if key[i] == '.' {
			return key[:i], key[i+1:]
		}
	}
	return key, ""
}
