package executor

import (
	"errors"
	"fmt"
	"strings"

	language "github.com/hanpama/usergraph/internal/language"
)

// ruleCodes maps gqlparser validation rules to extensions.code. Rules not
// listed report INVALID_SELECTION.
var ruleCodes = map[string]string{
	"FieldsOnCorrectType":        CodeUnknownOperation,
	"KnownRootType":              CodeUnknownOperation,
	"LoneAnonymousOperation":     CodeUnknownOperation,
	"UniqueOperationNames":       CodeUnknownOperation,
	"SingleFieldSubscriptions":   CodeUnknownOperation,
	"KnownArgumentNames":         CodeUnknownArgument,
	"UniqueArgumentNames":        CodeUnknownArgument,
	"UniqueInputFieldNames":      CodeUnknownArgument,
	"NoUndefinedVariables":       CodeUnknownArgument,
	"NoUnusedVariables":          CodeUnknownArgument,
	"UniqueVariableNames":        CodeUnknownArgument,
	"ProvidedRequiredArguments":  CodeMissingArgument,
	"VariablesInAllowedPosition": CodeArgumentTypeMismatch,
	"VariablesAreInputTypes":     CodeArgumentTypeMismatch,
	"KnownTypeNames":             CodeArgumentTypeMismatch,
	language.RuleIntRange:        CodeArgumentTypeMismatch,
}

// validateDocument runs the standard validation rules and returns the first
// failure.
func validateDocument(s *language.Schema, doc *language.QueryDocument) *GraphQLError {
	errs := language.Validate(s, doc)
	if len(errs) == 0 {
		return nil
	}
	ge := locatedError(ruleCode(errs[0]), errs[0])
	return &ge
}

func ruleCode(err *language.Error) string {
	if err.Rule == "ValuesOfCorrectType" {
		switch msg := err.Message; {
		case strings.HasSuffix(msg, "found null."), strings.HasSuffix(msg, "was not provided."):
			return CodeMissingArgument
		case strings.Contains(msg, "is not defined by type"):
			return CodeUnknownArgument
		default:
			return CodeArgumentTypeMismatch
		}
	}
	if code, ok := ruleCodes[err.Rule]; ok {
		return code
	}
	return CodeInvalidSelection
}

func locatedError(code string, err *language.Error) GraphQLError {
	ge := GraphQLError{Message: err.Message, Extensions: map[string]any{"code": code}}
	for _, l := range err.Locations {
		ge.Locations = append(ge.Locations, Location{Line: l.Line, Column: l.Column})
	}
	return ge
}

// variableError converts a VariableValues failure. The gqlparser path
// ("variable", "in", "name") is reported as "$in.name".
func variableError(err error) GraphQLError {
	var ve *language.Error
	if !errors.As(err, &ve) {
		return GraphQLError{Message: err.Error(), Extensions: map[string]any{"code": CodeArgumentTypeMismatch}}
	}
	var at strings.Builder
	at.WriteByte('$')
	for i, el := range ve.Path {
		if i == 0 {
			continue
		}
		switch el := el.(type) {
		case language.PathIndex:
			fmt.Fprintf(&at, "[%d]", int(el))
		case language.PathName:
			if i > 1 {
				at.WriteByte('.')
			}
			at.WriteString(string(el))
		}
	}
	code := CodeArgumentTypeMismatch
	switch ve.Message {
	case "must be defined", "cannot be null":
		code = CodeMissingArgument
	case "unknown field":
		code = CodeUnknownArgument
	}
	return GraphQLError{
		Message:    fmt.Sprintf("Variable \"%s\" %s.", at.String(), ve.Message),
		Extensions: map[string]any{"code": code},
	}
}
