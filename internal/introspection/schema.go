package introspection

import (
	language "github.com/hanpama/usergraph/internal/language"
	schema "github.com/hanpama/usergraph/internal/schema"
)

// extend returns a copy of original with the introspection types added and
// __schema and __type declared on the query root. original is not modified.
func extend(original *schema.Schema) *schema.Schema {
	extended := &schema.Schema{
		QueryType:    original.QueryType,
		MutationType: original.MutationType,
		Types:        make(map[string]*schema.Type, len(original.Types)+8),
		Directives:   original.Directives,
		Description:  original.Description,
		Validated:    withMetaFields(original.Validated),
	}
	for name, t := range original.Types {
		extended.Types[name] = t
	}
	for _, t := range metaTypes() {
		extended.Types[t.Name] = t
	}

	if q := original.GetQueryType(); q != nil {
		root := *q
		root.Fields = append(append([]*schema.Field(nil), q.Fields...),
			schema.NewField("__schema", "Access the current type schema of this server.",
				schema.NonNullType(schema.NamedType("__Schema"))),
			schema.NewField("__type", "Request the type information of a single type.",
				schema.NamedType("__Type")).
				AddArgument(schema.NewInputValue("name", "", schema.NonNullType(schema.NamedType("String")))),
		)
		extended.Types[root.Name] = &root
	}
	return extended
}

// withMetaFields returns a copy of v whose query root declares __schema and
// __type. The prelude already carries their types.
func withMetaFields(v *language.Schema) *language.Schema {
	if v == nil || v.Query == nil {
		return v
	}
	out := *v
	out.Types = make(map[string]*language.Definition, len(v.Types))
	for name, def := range v.Types {
		out.Types[name] = def
	}
	root := *v.Query
	root.Fields = append(append(language.FieldList(nil), v.Query.Fields...),
		&language.FieldDefinition{Name: "__schema", Type: language.NonNullNamedType("__Schema", nil)},
		&language.FieldDefinition{
			Name: "__type",
			Type: language.NamedType("__Type", nil),
			Arguments: language.ArgumentDefinitionList{
				{Name: "name", Type: language.NonNullNamedType("String", nil)},
			},
		},
	)
	out.Types[root.Name] = &root
	out.Query = &root
	if v.Mutation == v.Query {
		out.Mutation = &root
	}
	return &out
}

func named(name string) *schema.TypeRef { return schema.NamedType(name) }

func nonNull(name string) *schema.TypeRef { return schema.NonNullType(schema.NamedType(name)) }

// listOf returns [name!] or [name!]! when required.
func listOf(name string, required bool) *schema.TypeRef {
	l := schema.ListType(nonNull(name))
	if required {
		return schema.NonNullType(l)
	}
	return l
}

func includeDeprecated() *schema.InputValue {
	return schema.NewInputValue("includeDeprecated", "", named("Boolean")).SetDefault(false)
}

func object(name, description string, fields ...*schema.Field) *schema.Type {
	t := schema.NewType(name, schema.TypeKindObject, description)
	for _, f := range fields {
		t.AddField(f)
	}
	return t
}

func enum(name string, values ...string) *schema.Type {
	t := schema.NewType(name, schema.TypeKindEnum, "")
	for _, v := range values {
		t.AddEnumValue(schema.NewEnumValue(v, ""))
	}
	return t
}

func field(name string, typ *schema.TypeRef) *schema.Field { return schema.NewField(name, "", typ) }

func metaTypes() []*schema.Type {
	return []*schema.Type{
		object("__Schema", "A GraphQL Schema defines the capabilities of a GraphQL server.",
			field("description", named("String")),
			field("types", listOf("__Type", true)),
			field("queryType", nonNull("__Type")),
			field("mutationType", named("__Type")),
			field("subscriptionType", named("__Type")),
			field("directives", listOf("__Directive", true)),
		),
		object("__Type", "The fundamental unit of any GraphQL Schema is the type.",
			field("kind", nonNull("__TypeKind")),
			field("name", named("String")),
			field("description", named("String")),
			field("specifiedByURL", named("String")),
			field("fields", listOf("__Field", false)).AddArgument(includeDeprecated()),
			field("interfaces", listOf("__Type", false)),
			field("possibleTypes", listOf("__Type", false)),
			field("enumValues", listOf("__EnumValue", false)).AddArgument(includeDeprecated()),
			field("inputFields", listOf("__InputValue", false)).AddArgument(includeDeprecated()),
			field("ofType", named("__Type")),
			field("isOneOf", named("Boolean")),
		),
		object("__Field", "",
			field("name", nonNull("String")),
			field("description", named("String")),
			field("args", listOf("__InputValue", true)).AddArgument(includeDeprecated()),
			field("type", nonNull("__Type")),
			field("isDeprecated", nonNull("Boolean")),
			field("deprecationReason", named("String")),
		),
		object("__InputValue", "",
			field("name", nonNull("String")),
			field("description", named("String")),
			field("type", nonNull("__Type")),
			field("defaultValue", named("String")),
			field("isDeprecated", nonNull("Boolean")),
			field("deprecationReason", named("String")),
		),
		object("__EnumValue", "",
			field("name", nonNull("String")),
			field("description", named("String")),
			field("isDeprecated", nonNull("Boolean")),
			field("deprecationReason", named("String")),
		),
		object("__Directive", "",
			field("name", nonNull("String")),
			field("description", named("String")),
			field("isRepeatable", nonNull("Boolean")),
			field("locations", listOf("__DirectiveLocation", true)),
			field("args", listOf("__InputValue", true)).AddArgument(includeDeprecated()),
		),
		enum("__TypeKind", "SCALAR", "OBJECT", "INTERFACE", "UNION", "ENUM", "INPUT_OBJECT", "LIST", "NON_NULL"),
		enum("__DirectiveLocation",
			"QUERY", "MUTATION", "SUBSCRIPTION", "FIELD", "FRAGMENT_DEFINITION", "FRAGMENT_SPREAD",
			"INLINE_FRAGMENT", "VARIABLE_DEFINITION", "SCHEMA", "SCALAR", "OBJECT", "FIELD_DEFINITION",
			"ARGUMENT_DEFINITION", "INTERFACE", "UNION", "ENUM", "ENUM_VALUE", "INPUT_OBJECT",
			"INPUT_FIELD_DEFINITION"),
	}
}
