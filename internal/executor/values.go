package executor

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	language "github.com/hanpama/usergraph/internal/language"
	schema "github.com/hanpama/usergraph/internal/schema"
)

// inputError is a coercion failure. It carries the code reported to clients.
type inputError struct {
	code    string
	message string
}

func (e *inputError) Error() string     { return e.message }
func (e *inputError) ErrorCode() string { return e.code }

func mismatch(format string, args ...any) error {
	return &inputError{code: CodeArgumentTypeMismatch, message: fmt.Sprintf(format, args...)}
}

func missing(format string, args ...any) error {
	return &inputError{code: CodeMissingArgument, message: fmt.Sprintf(format, args...)}
}

// coerceVariableValues converts variables already checked by
// language.VariableValues into the Go values resolvers receive. Int stays
// strict here: numeric strings and fractions are rejected, and values must
// fit in 32 bits.
func coerceVariableValues(
	s *schema.Schema,
	operation *language.OperationDefinition,
	variableValues map[string]any,
) (map[string]any, error) {
	coerced := make(map[string]any, len(variableValues))
	for _, varDef := range operation.VariableDefinitions {
		val, ok := variableValues[varDef.Variable]
		if !ok {
			continue
		}
		cv, err := coerceValue(s, val, typeRefFromAST(varDef.Type), "$"+varDef.Variable)
		if err != nil {
			return nil, err
		}
		coerced[varDef.Variable] = cv
	}
	return coerced, nil
}

// coerceArgumentValues coerces argument values for a field. Unknown
// arguments are rejected by validation before execution starts.
func coerceArgumentValues(
	s *schema.Schema,
	fieldDef *schema.Field,
	arguments language.ArgumentList,
	variableValues map[string]any,
) (map[string]any, error) {
	coerced := make(map[string]any, len(fieldDef.Arguments))
	for _, argDef := range fieldDef.Arguments {
		name := argDef.Name
		arg := arguments.ForName(name)
		if arg == nil || (arg.Value.Kind == language.Variable && !hasVariable(variableValues, arg.Value.Raw)) {
			if argDef.DefaultValue != nil {
				coerced[name] = argDef.DefaultValue
			} else if argDef.Type.IsNonNull() {
				return nil, missing("Field \"%s\" argument \"%s\" of type \"%s\" is required, but it was not provided.", fieldDef.Name, name, argDef.Type)
			}
			continue
		}
		val := valueFromAST(arg.Value, variableValues)
		if val == nil && argDef.Type.IsNonNull() {
			return nil, missing("Argument \"%s\" of non-null type \"%s\" must not be null.", name, argDef.Type)
		}
		cv, err := coerceValue(s, val, argDef.Type, name)
		if err != nil {
			return nil, err
		}
		coerced[name] = cv
	}
	return coerced, nil
}

func hasVariable(variableValues map[string]any, name string) bool {
	_, ok := variableValues[name]
	return ok
}

// valueFromAST converts an AST value to a Go value, substituting variables at
// any depth.
func valueFromAST(value *language.Value, variableValues map[string]any) any {
	if value == nil {
		return nil
	}
	switch value.Kind {
	case language.Variable:
		return variableValues[value.Raw]
	case language.ListValue:
		out := make([]any, len(value.Children))
		for i, c := range value.Children {
			out[i] = valueFromAST(c.Value, variableValues)
		}
		return out
	case language.ObjectValue:
		m := make(map[string]any, len(value.Children))
		for _, f := range value.Children {
			if f.Value.Kind == language.Variable && !hasVariable(variableValues, f.Value.Raw) {
				continue
			}
			m[f.Name] = valueFromAST(f.Value, variableValues)
		}
		return m
	default:
		return astValueToGo(value)
	}
}

// astValueToGo converts a constant AST value to a Go value
func astValueToGo(value *language.Value) any {
	if value == nil {
		return nil
	}
	switch value.Kind {
	case language.IntValue:
		if iv, err := strconv.ParseInt(value.Raw, 10, 64); err == nil {
			return iv
		}
		fv, _ := strconv.ParseFloat(value.Raw, 64)
		return fv
	case language.FloatValue:
		fv, _ := strconv.ParseFloat(value.Raw, 64)
		return fv
	case language.StringValue, language.BlockValue, language.EnumValue:
		return value.Raw
	case language.BooleanValue:
		return value.Raw == "true"
	case language.ListValue, language.ObjectValue:
		return valueFromAST(value, nil)
	default:
		return nil
	}
}

// coerceValue coerces a value to the specified GraphQL type. at names the
// value in error messages, e.g. "input.name".
func coerceValue(s *schema.Schema, value any, targetType *schema.TypeRef, at string) (any, error) {
	if targetType.IsNonNull() {
		if value == nil {
			return nil, missing("Expected non-null value of type \"%s\" at \"%s\", found null.", targetType, at)
		}
		return coerceValue(s, value, targetType.Unwrap(), at)
	}
	if value == nil {
		return nil, nil
	}
	if targetType.Kind == schema.TypeRefKindList {
		return coerceListValue(s, value, targetType, at)
	}

	name := targetType.Named
	switch name {
	case "Int":
		return coerceToInt(value, at)
	case "Float":
		return coerceToFloat(value, at)
	case "String":
		return coerceToString(value, at)
	case "Boolean":
		return coerceToBoolean(value, at)
	case "ID":
		return coerceToID(value, at)
	}

	t := s.Types[name]
	if t == nil {
		return nil, mismatch("Unknown type \"%s\" at \"%s\".", name, at)
	}
	switch t.Kind {
	case schema.TypeKindInputObject:
		return coerceInputObject(s, value, t, at)
	case schema.TypeKindEnum:
		str, ok := value.(string)
		if ok {
			for _, ev := range t.EnumValues {
				if ev.Name == str {
					return str, nil
				}
			}
		}
		return nil, mismatch("Value %s at \"%s\" is not a valid %s.", describe(value), at, name)
	case schema.TypeKindScalar:
		// Custom scalars pass through untouched.
		return value, nil
	}
	return nil, mismatch("Type \"%s\" at \"%s\" is not an input type.", name, at)
}

func coerceInputObject(s *schema.Schema, value any, t *schema.Type, at string) (any, error) {
	obj, ok := value.(map[string]any)
	if !ok {
		return nil, mismatch("Expected value of type \"%s\" at \"%s\", found %s.", t.Name, at, describe(value))
	}
	unknown := make([]string, 0)
	for k := range obj {
		if t.InputField(k) == nil {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, &inputError{
			code:    CodeUnknownArgument,
			message: fmt.Sprintf("Field \"%s\" is not defined by type \"%s\".", unknown[0], t.Name),
		}
	}
	out := make(map[string]any, len(t.InputFields))
	for _, f := range t.InputFields {
		path := at + "." + f.Name
		v, present := obj[f.Name]
		if !present {
			if f.DefaultValue != nil {
				out[f.Name] = f.DefaultValue
			} else if f.Type.IsNonNull() {
				return nil, missing("Field \"%s\" of required type \"%s\" was not provided.", path, f.Type)
			}
			continue
		}
		cv, err := coerceValue(s, v, f.Type, path)
		if err != nil {
			return nil, err
		}
		out[f.Name] = cv
	}
	return out, nil
}

func coerceListValue(s *schema.Schema, value any, listType *schema.TypeRef, at string) (any, error) {
	inner := listType.Unwrap()
	if slice, ok := value.([]any); ok {
		out := make([]any, len(slice))
		for i, item := range slice {
			cv, err := coerceValue(s, item, inner, fmt.Sprintf("%s[%d]", at, i))
			if err != nil {
				return nil, err
			}
			out[i] = cv
		}
		return out, nil
	}
	// A single value becomes a list of one.
	cv, err := coerceValue(s, value, inner, at)
	if err != nil {
		return nil, err
	}
	return []any{cv}, nil
}

func coerceToInt(value any, at string) (any, error) {
	var n int64
	switch v := value.(type) {
	case int:
		n = int64(v)
	case int32:
		n = int64(v)
	case int64:
		n = v
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) {
			return nil, mismatch("Int cannot represent non-integer value %s at \"%s\".", describe(value), at)
		}
		if v < math.MinInt32 || v > math.MaxInt32 {
			return nil, mismatch("Int cannot represent non 32-bit signed integer value %s at \"%s\".", describe(value), at)
		}
		n = int64(v)
	default:
		return nil, mismatch("Int cannot represent non-integer value %s at \"%s\".", describe(value), at)
	}
	if n < math.MinInt32 || n > math.MaxInt32 {
		return nil, mismatch("Int cannot represent non 32-bit signed integer value %s at \"%s\".", describe(value), at)
	}
	return int(n), nil
}

func coerceToFloat(value any, at string) (any, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	}
	return nil, mismatch("Float cannot represent non numeric value %s at \"%s\".", describe(value), at)
}

func coerceToString(value any, at string) (any, error) {
	if v, ok := value.(string); ok {
		return v, nil
	}
	return nil, mismatch("String cannot represent a non string value %s at \"%s\".", describe(value), at)
}

func coerceToBoolean(value any, at string) (any, error) {
	if v, ok := value.(bool); ok {
		return v, nil
	}
	return nil, mismatch("Boolean cannot represent a non boolean value %s at \"%s\".", describe(value), at)
}

func coerceToID(value any, at string) (any, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case int:
		return strconv.Itoa(v), nil
	case int32:
		return strconv.FormatInt(int64(v), 10), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		if v == math.Trunc(v) && !math.IsInf(v, 0) {
			return strconv.FormatFloat(v, 'f', 0, 64), nil
		}
	}
	return nil, mismatch("ID cannot represent value %s at \"%s\".", describe(value), at)
}

func describe(v any) string {
	switch x := v.(type) {
	case string:
		return strconv.Quote(x)
	case map[string]any:
		return "an object"
	case []any:
		return "a list"
	default:
		return fmt.Sprintf("%v", x)
	}
}
