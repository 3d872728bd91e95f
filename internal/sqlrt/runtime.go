// Package sqlrt implements executor.Runtime on top of the pooled store.
// Root fields are served by resolvers bound in a Registry; every other field
// is a projection of the value its parent resolved to.
package sqlrt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/hanpama/usergraph/internal/executor"
	"github.com/hanpama/usergraph/internal/schema"
)

// Entity is implemented by values resolvers return for object types.
// Field reports the value of a schema field by its GraphQL name.
type Entity interface {
	Field(name string) (any, bool)
}

// ErrInternal is reported to clients in place of a resolver panic.
var ErrInternal = errors.New("internal error")

// Runtime implements executor.Runtime.
//   - Registry trust: NewRuntime refuses a registry that leaves an async field
//     unbound or binds a field the schema does not declare, so lookups at
//     request time never miss.
//   - Batches are resolved sequentially in task order. Each resolver borrows
//     at most one connection at a time through its RequestContext.
type Runtime struct {
	schema *schema.Schema
	pool   Pool
	reg    *Registry
}

var _ executor.Runtime = (*Runtime)(nil)

// NewRuntime checks reg against s and freezes it.
func NewRuntime(s *schema.Schema, pool Pool, reg *Registry) (*Runtime, error) {
	var problems []string
	for _, t := range s.Types {
		if t.Kind != schema.TypeKindObject {
			continue
		}
		for _, f := range t.Fields {
			if f.Async && reg.Lookup(t.Name, f.Name) == nil {
				problems = append(problems, fmt.Sprintf("no resolver bound for %s.%s", t.Name, f.Name))
			}
		}
	}
	for _, k := range reg.Keys() {
		typeName, fieldName, _ := strings.Cut(k, ".")
		t := s.Types[typeName]
		var f *schema.Field
		if t != nil {
			f = t.Field(fieldName)
		}
		if f == nil {
			problems = append(problems, fmt.Sprintf("resolver bound to unknown field %s", k))
		} else if !f.Async {
			problems = append(problems, fmt.Sprintf("resolver bound to projection field %s", k))
		}
	}
	if len(problems) > 0 {
		sort.Strings(problems)
		return nil, fmt.Errorf("sqlrt: %s", strings.Join(problems, "; "))
	}
	reg.frozen = true
	return &Runtime{schema: s, pool: pool, reg: reg}, nil
}

// ResolveSync projects field out of source. It never touches the store.
func (r *Runtime) ResolveSync(ctx context.Context, objectType string, field string, source any, args map[string]any) (any, error) {
	switch src := source.(type) {
	case Entity:
		v, ok := src.Field(field)
		if !ok {
			return nil, fmt.Errorf("%s has no value for field %q", objectType, field)
		}
		return v, nil
	case map[string]any:
		return src[field], nil
	case nil:
		return nil, nil
	}
	return nil, fmt.Errorf("cannot project %s.%s from %T", objectType, field, source)
}

// BatchResolveAsync runs the bound resolvers one after another in task order.
func (r *Runtime) BatchResolveAsync(ctx context.Context, tasks []executor.AsyncResolveTask) []executor.AsyncResolveResult {
	results := make([]executor.AsyncResolveResult, len(tasks))
	for i, t := range tasks {
		if err := ctx.Err(); err != nil {
			results[i] = executor.AsyncResolveResult{Error: err}
			continue
		}
		results[i] = r.resolve(ctx, t)
	}
	return results
}

func (r *Runtime) resolve(ctx context.Context, t executor.AsyncResolveTask) (res executor.AsyncResolveResult) {
	fn := r.reg.Lookup(t.ObjectType, t.Field)
	if fn == nil {
		panic(fmt.Sprintf("sqlrt: no resolver bound for %s.%s", t.ObjectType, t.Field))
	}
	defer func() {
		if p := recover(); p != nil {
			slog.ErrorContext(ctx, "resolver panicked", "field", key(t.ObjectType, t.Field), "panic", p)
			res = executor.AsyncResolveResult{Error: ErrInternal}
		}
	}()
	rc := &RequestContext{ctx: ctx, pool: r.pool, ObjectType: t.ObjectType, Field: t.Field}
	v, err := fn(rc, t.Source, t.Args)
	return executor.AsyncResolveResult{Value: v, Error: err}
}

// SerializeLeafValue converts scalar and enum values to their JSON form.
func (r *Runtime) SerializeLeafValue(ctx context.Context, scalarOrEnumTypeName string, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	switch scalarOrEnumTypeName {
	case "Int":
		n, ok := toInt64(value)
		if !ok || n < math.MinInt32 || n > math.MaxInt32 {
			return nil, fmt.Errorf("Int cannot represent value %v", value)
		}
		return int32(n), nil
	case "Float":
		switch v := value.(type) {
		case float64:
			return v, nil
		case float32:
			return float64(v), nil
		}
		if n, ok := toInt64(value); ok {
			return float64(n), nil
		}
	case "String":
		if s, ok := value.(string); ok {
			return s, nil
		}
	case "Boolean":
		if b, ok := value.(bool); ok {
			return b, nil
		}
	case "ID":
		if s, ok := value.(string); ok {
			return s, nil
		}
		if n, ok := toInt64(value); ok {
			return fmt.Sprint(n), nil
		}
	default:
		t := r.schema.Types[scalarOrEnumTypeName]
		if t != nil && t.Kind == schema.TypeKindEnum {
			s := fmt.Sprint(value)
			for _, ev := range t.EnumValues {
				if ev.Name == s {
					return s, nil
				}
			}
			return nil, fmt.Errorf("%q is not a value of enum %s", s, t.Name)
		}
		return value, nil
	}
	return nil, fmt.Errorf("%s cannot represent value of type %T", scalarOrEnumTypeName, value)
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	}
	return 0, false
}
