package schema

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Render produces SDL from the Schema.
// Deterministic ordering: type/directive names sorted lexicographically,
// fields in declaration order.
func Render(s *Schema) string {
	if s == nil {
		return ""
	}
	var b strings.Builder

	if s.QueryType != "Query" || (s.MutationType != "" && s.MutationType != "Mutation") {
		b.WriteString("schema {\n  query: ")
		b.WriteString(s.QueryType)
		b.WriteString("\n")
		if s.MutationType != "" {
			b.WriteString("  mutation: ")
			b.WriteString(s.MutationType)
			b.WriteString("\n")
		}
		b.WriteString("}\n\n")
	}

	typeNames := make([]string, 0, len(s.Types))
	for name, typ := range s.Types {
		if !isBuiltinType(typ) {
			typeNames = append(typeNames, name)
		}
	}
	sort.Strings(typeNames)

	for _, name := range typeNames {
		typ := s.Types[name]
		renderDescription(&b, typ.Description, "")
		switch typ.Kind {
		case TypeKindScalar:
			fmt.Fprintf(&b, "scalar %s\n\n", typ.Name)
		case TypeKindEnum:
			fmt.Fprintf(&b, "enum %s {\n", typ.Name)
			for _, val := range typ.EnumValues {
				renderDescription(&b, val.Description, "  ")
				b.WriteString("  " + val.Name)
				renderDeprecation(&b, val.IsDeprecated, val.DeprecationReason)
				b.WriteString("\n")
			}
			b.WriteString("}\n\n")
		case TypeKindInputObject:
			fmt.Fprintf(&b, "input %s {\n", typ.Name)
			for _, field := range typ.InputFields {
				renderDescription(&b, field.Description, "  ")
				b.WriteString("  ")
				renderInputValue(&b, field)
				b.WriteString("\n")
			}
			b.WriteString("}\n\n")
		case TypeKindObject:
			fmt.Fprintf(&b, "type %s {\n", typ.Name)
			for _, field := range typ.Fields {
				renderField(&b, field)
			}
			b.WriteString("}\n\n")
		}
	}

	directiveNames := make([]string, 0, len(s.Directives))
	for name, directive := range s.Directives {
		if !isBuiltinDirective(directive) {
			directiveNames = append(directiveNames, name)
		}
	}
	sort.Strings(directiveNames)
	for _, name := range directiveNames {
		renderDirective(&b, s.Directives[name])
	}

	return strings.TrimRight(b.String(), "\n") + "\n"
}

func renderDescription(b *strings.Builder, desc, indent string) {
	if desc == "" {
		return
	}
	b.WriteString(indent + "\"\"\"\n")
	for _, line := range strings.Split(strings.ReplaceAll(desc, `"""`, `\"""`), "\n") {
		b.WriteString(indent + line + "\n")
	}
	b.WriteString(indent + "\"\"\"\n")
}

func renderDeprecation(b *strings.Builder, deprecated bool, reason string) {
	if !deprecated {
		return
	}
	b.WriteString(" @deprecated")
	if reason != "" {
		b.WriteString("(reason: " + strconv.Quote(reason) + ")")
	}
}

func renderInputValue(b *strings.Builder, v *InputValue) {
	b.WriteString(v.Name + ": " + v.Type.String())
	if v.DefaultValue != nil {
		b.WriteString(" = " + renderValue(v.DefaultValue))
	}
}

func renderField(b *strings.Builder, field *Field) {
	renderDescription(b, field.Description, "  ")
	b.WriteString("  " + field.Name)
	if len(field.Arguments) > 0 {
		b.WriteString("(")
		for i, arg := range field.Arguments {
			if i > 0 {
				b.WriteString(", ")
			}
			renderInputValue(b, arg)
		}
		b.WriteString(")")
	}
	b.WriteString(": " + field.Type.String())
	renderDeprecation(b, field.IsDeprecated, field.DeprecationReason)
	b.WriteString("\n")
}

func renderDirective(b *strings.Builder, directive *Directive) {
	renderDescription(b, directive.Description, "")
	b.WriteString("directive @" + directive.Name)
	if len(directive.Arguments) > 0 {
		b.WriteString("(")
		for i, arg := range directive.Arguments {
			if i > 0 {
				b.WriteString(", ")
			}
			renderInputValue(b, arg)
		}
		b.WriteString(")")
	}
	if directive.IsRepeatable {
		b.WriteString(" repeatable")
	}
	b.WriteString(" on " + strings.Join(directive.Locations, " | ") + "\n\n")
}

// renderValue renders a constant value (default values).
func renderValue(value any) string {
	switch v := value.(type) {
	case nil:
		return "null"
	case string:
		return strconv.Quote(v)
	case int:
		return strconv.Itoa(v)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case []any:
		parts := make([]string, len(v))
		for i, item := range v {
			parts[i] = renderValue(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + ": " + renderValue(v[k])
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return fmt.Sprint(v)
	}
}

// DefaultLiteral renders the default value as a GraphQL literal. ok is false
// when the input value has no default.
func (v *InputValue) DefaultLiteral() (literal string, ok bool) {
	if v.DefaultValue == nil {
		return "", false
	}
	return renderValue(v.DefaultValue), true
}
