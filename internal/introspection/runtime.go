// Package introspection answers __schema and __type queries by wrapping
// another executor.Runtime.
package introspection

import (
	"context"
	"fmt"
	"sort"

	executor "github.com/hanpama/usergraph/internal/executor"
	schema "github.com/hanpama/usergraph/internal/schema"
)

// Wrap returns a Runtime that resolves introspection fields and delegates
// everything else to base, along with the schema the executor must use.
// sch itself is left untouched and is what introspection reports.
func Wrap(base executor.Runtime, sch *schema.Schema) (executor.Runtime, *schema.Schema) {
	extended := extend(sch)
	return &runtime{base: base, schema: sch, extended: extended}, extended
}

type runtime struct {
	base     executor.Runtime
	schema   *schema.Schema // reported to clients
	extended *schema.Schema // executed against
}

// rootMarker is the source of the __schema field's selection.
type rootMarker struct{}

func (r *runtime) ResolveSync(ctx context.Context, objectType, field string, source any, args map[string]any) (any, error) {
	switch src := source.(type) {
	case rootMarker:
		return r.schemaField(field), nil
	case *schema.Type:
		return r.typeField(src, field, args), nil
	case *schema.TypeRef:
		return r.typeRefField(src, field, args), nil
	case *schema.Field:
		return fieldField(src, field, args), nil
	case *schema.InputValue:
		return inputValueField(src, field), nil
	case *schema.EnumValue:
		return enumValueField(src, field), nil
	case *schema.Directive:
		return directiveField(src, field, args), nil
	}

	if objectType == r.extended.QueryType {
		switch field {
		case "__schema":
			return rootMarker{}, nil
		case "__type":
			name, _ := args["name"].(string)
			if t := r.schema.Types[name]; t != nil {
				return t, nil
			}
			return nil, nil
		}
	}
	return r.base.ResolveSync(ctx, objectType, field, source, args)
}

func (r *runtime) BatchResolveAsync(ctx context.Context, tasks []executor.AsyncResolveTask) []executor.AsyncResolveResult {
	return r.base.BatchResolveAsync(ctx, tasks)
}

func (r *runtime) SerializeLeafValue(ctx context.Context, typ string, value any) (any, error) {
	switch typ {
	case "__TypeKind", "__DirectiveLocation":
		s := fmt.Sprint(value)
		for _, ev := range r.extended.Types[typ].EnumValues {
			if ev.Name == s {
				return s, nil
			}
		}
		return nil, fmt.Errorf("%q is not a value of enum %s", s, typ)
	}
	return r.base.SerializeLeafValue(ctx, typ, value)
}

func (r *runtime) schemaField(field string) any {
	switch field {
	case "description":
		return optional(r.schema.Description)
	case "types":
		out := make([]*schema.Type, 0, len(r.schema.Types))
		for _, t := range r.schema.Types {
			out = append(out, t)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
		return out
	case "queryType":
		return r.schema.GetQueryType()
	case "mutationType":
		return r.schema.GetMutationType()
	case "directives":
		out := make([]*schema.Directive, 0, len(r.schema.Directives))
		for _, d := range r.schema.Directives {
			out = append(out, d)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
		return out
	}
	return nil
}

func (r *runtime) typeField(t *schema.Type, field string, args map[string]any) any {
	switch field {
	case "kind":
		return string(t.Kind)
	case "name":
		return t.Name
	case "description":
		return optional(t.Description)
	case "fields":
		if t.Kind != schema.TypeKindObject {
			return nil
		}
		out := []*schema.Field{}
		for _, f := range t.Fields {
			if includeDeprecated(args) || !f.IsDeprecated {
				out = append(out, f)
			}
		}
		return out
	case "interfaces":
		if t.Kind != schema.TypeKindObject {
			return nil
		}
		return []*schema.Type{}
	case "enumValues":
		if t.Kind != schema.TypeKindEnum {
			return nil
		}
		out := []*schema.EnumValue{}
		for _, ev := range t.EnumValues {
			if includeDeprecated(args) || !ev.IsDeprecated {
				out = append(out, ev)
			}
		}
		return out
	case "inputFields":
		if t.Kind != schema.TypeKindInputObject {
			return nil
		}
		return filterInputValues(t.InputFields, args)
	case "isOneOf":
		if t.Kind != schema.TypeKindInputObject {
			return nil
		}
		return false
	}
	// possibleTypes, ofType and specifiedByURL are always null here.
	return nil
}

// typeRefField resolves __Type fields for a possibly wrapped reference.
// Named references answer as the type they name.
func (r *runtime) typeRefField(tr *schema.TypeRef, field string, args map[string]any) any {
	if tr.Kind == schema.TypeRefKindNamed {
		t := r.schema.Types[tr.Named]
		if t == nil {
			return nil
		}
		return r.typeField(t, field, args)
	}
	switch field {
	case "kind":
		return string(tr.Kind)
	case "ofType":
		return tr.OfType
	}
	return nil
}

func fieldField(f *schema.Field, field string, args map[string]any) any {
	switch field {
	case "name":
		return f.Name
	case "description":
		return optional(f.Description)
	case "args":
		return filterInputValues(f.Arguments, args)
	case "type":
		return f.Type
	case "isDeprecated":
		return f.IsDeprecated
	case "deprecationReason":
		return deprecation(f.IsDeprecated, f.DeprecationReason)
	}
	return nil
}

func inputValueField(v *schema.InputValue, field string) any {
	switch field {
	case "name":
		return v.Name
	case "description":
		return optional(v.Description)
	case "type":
		return v.Type
	case "defaultValue":
		if lit, ok := v.DefaultLiteral(); ok {
			return lit
		}
		return nil
	case "isDeprecated":
		return v.IsDeprecated
	case "deprecationReason":
		return deprecation(v.IsDeprecated, v.DeprecationReason)
	}
	return nil
}

func enumValueField(ev *schema.EnumValue, field string) any {
	switch field {
	case "name":
		return ev.Name
	case "description":
		return optional(ev.Description)
	case "isDeprecated":
		return ev.IsDeprecated
	case "deprecationReason":
		return deprecation(ev.IsDeprecated, ev.DeprecationReason)
	}
	return nil
}

func directiveField(d *schema.Directive, field string, args map[string]any) any {
	switch field {
	case "name":
		return d.Name
	case "description":
		return optional(d.Description)
	case "isRepeatable":
		return d.IsRepeatable
	case "locations":
		return d.Locations
	case "args":
		return filterInputValues(d.Arguments, args)
	}
	return nil
}

func filterInputValues(in []*schema.InputValue, args map[string]any) []*schema.InputValue {
	out := []*schema.InputValue{}
	for _, v := range in {
		if includeDeprecated(args) || !v.IsDeprecated {
			out = append(out, v)
		}
	}
	return out
}

func includeDeprecated(args map[string]any) bool {
	b, _ := args["includeDeprecated"].(bool)
	return b
}

// optional maps "" to null.
func optional(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func deprecation(deprecated bool, reason string) any {
	if !deprecated {
		return nil
	}
	if reason == "" {
		return "No longer supported"
	}
	return reason
}
