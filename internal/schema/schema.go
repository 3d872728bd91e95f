package schema

import "github.com/hanpama/usergraph/internal/language"

// Schema is the executable type system. It is built once at startup and is
// never mutated afterwards, so it may be shared by concurrent requests.
type Schema struct {
	QueryType    string
	MutationType string
	Types        map[string]*Type // All named types keyed by name
	Directives   map[string]*Directive
	Description  string
	// Validated is the gqlparser form request documents are checked against.
	// Its query root carries no introspection fields.
	Validated *language.Schema
}

// GetQueryType returns the root query type (may be nil if absent)
func (s *Schema) GetQueryType() *Type { return s.Types[s.QueryType] }

// GetMutationType returns the root mutation type (may be nil if absent)
func (s *Schema) GetMutationType() *Type { return s.Types[s.MutationType] }

// IsRootType reports whether name is the query or mutation root.
func (s *Schema) IsRootType(name string) bool {
	return name != "" && (name == s.QueryType || name == s.MutationType)
}

// Type is a named GraphQL type (object, scalar, enum, input)
type Type struct {
	Name        string
	Kind        TypeKind
	Description string
	Fields      []*Field      // For OBJECT
	EnumValues  []*EnumValue  // For ENUM
	InputFields []*InputValue // For INPUT_OBJECT
}

// Field returns the field definition with the given name, or nil.
func (t *Type) Field(name string) *Field {
	for _, f := range t.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// InputField returns the input field definition with the given name, or nil.
func (t *Type) InputField(name string) *InputValue {
	for _, f := range t.InputFields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// IsLeaf reports whether values of this type are serialized directly.
func (t *Type) IsLeaf() bool {
	return t.Kind == TypeKindScalar || t.Kind == TypeKindEnum
}

// Field represents a field on an object type.
type Field struct {
	Name        string
	Description string
	Type        *TypeRef
	Arguments   []*InputValue
	// Async marks resolver-backed fields. Sync fields are projections of the
	// parent value and never touch the store.
	Async             bool
	IsDeprecated      bool
	DeprecationReason string
}

// Argument returns the argument definition with the given name, or nil.
func (f *Field) Argument(name string) *InputValue {
	for _, a := range f.Arguments {
		if a.Name == name {
			return a
		}
	}
	return nil
}

// TypeKind represents the kind of GraphQL type
type TypeKind string

const (
	TypeKindScalar      TypeKind = "SCALAR"
	TypeKindObject      TypeKind = "OBJECT"
	TypeKindEnum        TypeKind = "ENUM"
	TypeKindInputObject TypeKind = "INPUT_OBJECT"
)

// TypeRef represents a reference to a type (can be wrapped)
type TypeRef struct {
	Kind   TypeRefKind
	OfType *TypeRef // For List and NonNull
	Named  string   // For named types
}

type TypeRefKind string

const (
	TypeRefKindNamed   TypeRefKind = "NAMED"
	TypeRefKindList    TypeRefKind = "LIST"
	TypeRefKindNonNull TypeRefKind = "NON_NULL"
)

func (t *TypeRef) IsNonNull() bool {
	return t != nil && t.Kind == TypeRefKindNonNull
}

func (t *TypeRef) IsList() bool {
	if t.Kind == TypeRefKindList {
		return true
	}
	if t.Kind == TypeRefKindNonNull && t.OfType != nil {
		return t.OfType.Kind == TypeRefKindList
	}
	return false
}

func (t *TypeRef) Unwrap() *TypeRef {
	if t.Kind == TypeRefKindNonNull || t.Kind == TypeRefKindList {
		return t.OfType
	}
	return t
}

func (t *TypeRef) GetNamedType() string {
	current := t
	for current != nil {
		if current.Named != "" {
			return current.Named
		}
		current = current.OfType
	}
	return ""
}

// String renders the reference in SDL notation, e.g. "[User!]!".
func (t *TypeRef) String() string {
	if t == nil {
		return ""
	}
	switch t.Kind {
	case TypeRefKindList:
		return "[" + t.OfType.String() + "]"
	case TypeRefKindNonNull:
		return t.OfType.String() + "!"
	default:
		return t.Named
	}
}

type EnumValue struct {
	Name              string
	Description       string
	IsDeprecated      bool
	DeprecationReason string
}

type InputValue struct {
	Name              string
	Description       string
	Type              *TypeRef
	DefaultValue      any
	IsDeprecated      bool
	DeprecationReason string
}

type Directive struct {
	Name         string
	Description  string
	Locations    []string
	Arguments    []*InputValue
	IsRepeatable bool
}

func NonNullType(t *TypeRef) *TypeRef { return &TypeRef{Kind: TypeRefKindNonNull, OfType: t} }
func ListType(t *TypeRef) *TypeRef    { return &TypeRef{Kind: TypeRefKindList, OfType: t} }
func NamedType(name string) *TypeRef  { return &TypeRef{Kind: TypeRefKindNamed, Named: name} }

// IsNonNull reports whether the type is wrapped with Non-Null.
func IsNonNull(t *TypeRef) bool { return t != nil && t.IsNonNull() }

// IsList reports whether the type is (or is wrapped by) a list type.
func IsList(t *TypeRef) bool { return t != nil && t.IsList() }

// Unwrap removes one layer of Non-Null or List wrapping and returns the inner type.
func Unwrap(t *TypeRef) *TypeRef { return t.Unwrap() }

// GetNamedType returns the innermost named type for the given reference.
func GetNamedType(t *TypeRef) string { return t.GetNamedType() }
