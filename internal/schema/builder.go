package schema

import (
	"fmt"
	"strconv"

	"github.com/hanpama/usergraph/internal/language"
)

func NewSchema(description string) *Schema {
	return &Schema{
		Types:       make(map[string]*Type),
		Directives:  make(map[string]*Directive),
		Description: description,
	}
}

func (s *Schema) SetQueryType(name string) *Schema    { s.QueryType = name; return s }
func (s *Schema) SetMutationType(name string) *Schema { s.MutationType = name; return s }
func (s *Schema) AddType(t *Type) *Schema             { s.Types[t.Name] = t; return s }
func (s *Schema) AddDirective(d *Directive) *Schema   { s.Directives[d.Name] = d; return s }

func NewType(name string, kind TypeKind, description string) *Type {
	return &Type{Name: name, Kind: kind, Description: description}
}

func (t *Type) AddField(f *Field) *Type           { t.Fields = append(t.Fields, f); return t }
func (t *Type) AddInputField(v *InputValue) *Type { t.InputFields = append(t.InputFields, v); return t }
func (t *Type) AddEnumValue(v *EnumValue) *Type   { t.EnumValues = append(t.EnumValues, v); return t }

func NewField(name, description string, typ *TypeRef) *Field {
	return &Field{Name: name, Description: description, Type: typ}
}

func (f *Field) SetAsync(async bool) *Field       { f.Async = async; return f }
func (f *Field) AddArgument(a *InputValue) *Field { f.Arguments = append(f.Arguments, a); return f }
func (f *Field) Deprecate(reason string) *Field   { f.IsDeprecated, f.DeprecationReason = true, reason; return f }

func NewEnumValue(name, description string) *EnumValue { return &EnumValue{Name: name, Description: description} }

func NewInputValue(name, description string, typ *TypeRef) *InputValue {
	return &InputValue{Name: name, Description: description, Type: typ}
}

func (v *InputValue) SetDefault(val any) *InputValue { v.DefaultValue = val; return v }

const sourceName = "schema.graphql"

// BuildFromSDL parses and validates SDL and returns the executable schema.
//
// Root operation types come from the schema definition when present and
// default to "Query" and "Mutation" otherwise. Fields of root types are marked
// async (resolver-backed); fields of every other object type are projections
// of their parent value. Type extensions are merged into their base types.
func BuildFromSDL(sdl string) (*Schema, error) {
	doc, err := language.ParseSchema(sourceName, sdl)
	if err != nil {
		return nil, err
	}
	for _, ext := range doc.Extensions {
		if doc.Definitions.ForName(ext.Name) == nil {
			return nil, fmt.Errorf("cannot extend undefined type %s", ext.Name)
		}
	}
	validated, err := language.LoadSchema(sourceName, sdl)
	if err != nil {
		return nil, err
	}
	if validated.Subscription != nil {
		return nil, fmt.Errorf("subscription operations are not supported")
	}

	s := NewSchema(validated.Description)
	for _, t := range builtinScalars {
		s.AddType(t)
	}
	for _, d := range builtinDirectives {
		s.AddDirective(d)
	}
	for _, def := range validated.Types {
		if def.BuiltIn {
			continue
		}
		t, err := buildDefinition(def)
		if err != nil {
			return nil, err
		}
		s.AddType(t)
	}
	for _, dir := range validated.Directives {
		if dir.Position != nil && dir.Position.Src != nil && dir.Position.Src.BuiltIn {
			continue
		}
		s.AddDirective(buildDirective(dir))
	}

	s.QueryType, s.MutationType = "Query", ""
	if validated.Query != nil {
		s.QueryType = validated.Query.Name
		validated.Query.Fields = withoutMetaFields(validated.Query.Fields)
	}
	if validated.Mutation != nil {
		s.MutationType = validated.Mutation.Name
	}
	s.Validated = validated

	if err := s.check(); err != nil {
		return nil, err
	}
	for _, root := range []*Type{s.GetQueryType(), s.GetMutationType()} {
		if root == nil {
			continue
		}
		for _, f := range root.Fields {
			f.SetAsync(true)
		}
	}
	return s, nil
}

// withoutMetaFields drops the __schema and __type fields gqlparser declares
// on the query root. Introspection adds them back when it is enabled.
func withoutMetaFields(fields language.FieldList) language.FieldList {
	out := fields[:0:0]
	for _, f := range fields {
		if !isMetaName(f.Name) {
			out = append(out, f)
		}
	}
	return out
}

func isMetaName(name string) bool { return len(name) > 1 && name[:2] == "__" }

// check verifies that root types are objects and every reference resolves.
func (s *Schema) check() error {
	if q := s.GetQueryType(); q == nil || q.Kind != TypeKindObject {
		return fmt.Errorf("query root type %q must be a defined object type", s.QueryType)
	}
	if s.MutationType != "" {
		if m := s.GetMutationType(); m == nil || m.Kind != TypeKindObject {
			return fmt.Errorf("mutation root type %q must be a defined object type", s.MutationType)
		}
	}
	for _, t := range s.Types {
		for _, f := range t.Fields {
			if err := s.checkRef(f.Type, false, t.Name+"."+f.Name); err != nil {
				return err
			}
			for _, a := range f.Arguments {
				if err := s.checkRef(a.Type, true, t.Name+"."+f.Name+"("+a.Name+")"); err != nil {
					return err
				}
			}
		}
		for _, v := range t.InputFields {
			if err := s.checkRef(v.Type, true, t.Name+"."+v.Name); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Schema) checkRef(ref *TypeRef, input bool, where string) error {
	name := ref.GetNamedType()
	t, ok := s.Types[name]
	if !ok {
		return fmt.Errorf("%s refers to undefined type %s", where, name)
	}
	if input && t.Kind == TypeKindObject {
		return fmt.Errorf("%s: object type %s cannot be used as input", where, name)
	}
	if !input && t.Kind == TypeKindInputObject {
		return fmt.Errorf("%s: input type %s cannot be used as output", where, name)
	}
	return nil
}

func buildDefinition(def *language.Definition) (*Type, error) {
	switch def.Kind {
	case language.Object:
		t := NewType(def.Name, TypeKindObject, def.Description)
		for _, fd := range def.Fields {
			if isMetaName(fd.Name) {
				continue
			}
			f := NewField(fd.Name, fd.Description, buildTypeRef(fd.Type))
			if reason, ok := deprecation(fd.Directives); ok {
				f.Deprecate(reason)
			}
			for _, ad := range fd.Arguments {
				f.AddArgument(NewInputValue(ad.Name, ad.Description, buildTypeRef(ad.Type)).
					SetDefault(valueToGo(ad.DefaultValue)))
			}
			t.AddField(f)
		}
		return t, nil
	case language.InputObject:
		t := NewType(def.Name, TypeKindInputObject, def.Description)
		for _, fd := range def.Fields {
			t.AddInputField(NewInputValue(fd.Name, fd.Description, buildTypeRef(fd.Type)).
				SetDefault(valueToGo(fd.DefaultValue)))
		}
		return t, nil
	case language.Enum:
		t := NewType(def.Name, TypeKindEnum, def.Description)
		for _, ev := range def.EnumValues {
			v := NewEnumValue(ev.Name, ev.Description)
			if reason, ok := deprecation(ev.Directives); ok {
				v.IsDeprecated, v.DeprecationReason = true, reason
			}
			t.AddEnumValue(v)
		}
		return t, nil
	case language.Scalar:
		return NewType(def.Name, TypeKindScalar, def.Description), nil
	default:
		return nil, fmt.Errorf("%s: %s types are not supported", def.Name, def.Kind)
	}
}

func buildDirective(dir *language.DirectiveDefinition) *Directive {
	d := &Directive{Name: dir.Name, Description: dir.Description, IsRepeatable: dir.IsRepeatable}
	for _, loc := range dir.Locations {
		d.Locations = append(d.Locations, string(loc))
	}
	for _, ad := range dir.Arguments {
		d.Arguments = append(d.Arguments,
			NewInputValue(ad.Name, ad.Description, buildTypeRef(ad.Type)).SetDefault(valueToGo(ad.DefaultValue)))
	}
	return d
}

func buildTypeRef(t *language.Type) *TypeRef {
	if t == nil {
		return nil
	}
	var ref *TypeRef
	if t.Elem != nil {
		ref = ListType(buildTypeRef(t.Elem))
	} else {
		ref = NamedType(t.NamedType)
	}
	if t.NonNull {
		return NonNullType(ref)
	}
	return ref
}

func deprecation(dirs language.DirectiveList) (string, bool) {
	d := dirs.ForName("deprecated")
	if d == nil {
		return "", false
	}
	if arg := d.Arguments.ForName("reason"); arg != nil && arg.Value != nil {
		return arg.Value.Raw, true
	}
	return "", true
}

// valueToGo converts a constant SDL value (default values) to a Go value.
func valueToGo(v *language.Value) any {
	if v == nil {
		return nil
	}
	switch v.Kind {
	case language.IntValue:
		n, _ := strconv.Atoi(v.Raw)
		return n
	case language.FloatValue:
		f, _ := strconv.ParseFloat(v.Raw, 64)
		return f
	case language.BooleanValue:
		return v.Raw == "true"
	case language.NullValue:
		return nil
	case language.ListValue:
		out := make([]any, len(v.Children))
		for i, c := range v.Children {
			out[i] = valueToGo(c.Value)
		}
		return out
	case language.ObjectValue:
		out := make(map[string]any, len(v.Children))
		for _, c := range v.Children {
			out[c.Name] = valueToGo(c.Value)
		}
		return out
	default:
		return v.Raw
	}
}
