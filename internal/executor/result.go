package executor

import (
	"errors"

	language "github.com/hanpama/usergraph/internal/language"
)

// Error codes reported in extensions.code for document-level failures.
const (
	CodeParseError           = "PARSE_ERROR"
	CodeUnknownOperation     = "UNKNOWN_OPERATION"
	CodeUnknownArgument      = "UNKNOWN_ARGUMENT"
	CodeMissingArgument      = "MISSING_ARGUMENT"
	CodeArgumentTypeMismatch = "ARGUMENT_TYPE_MISMATCH"
	CodeInvalidSelection     = "INVALID_SELECTION"
)

// Location is a line/column position in the request document.
type Location struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// GraphQLError represents an error that occurred during execution
type GraphQLError struct {
	Message    string         `json:"message"`
	Locations  []Location     `json:"locations,omitempty"`
	Path       Path           `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

func (e GraphQLError) Error() string {
	return e.Message
}

// Code returns extensions.code, or "" when absent.
func (e GraphQLError) Code() string {
	code, _ := e.Extensions["code"].(string)
	return code
}

// ExecutionResult represents the result of executing a GraphQL query
type ExecutionResult struct {
	Data   any            `json:"data"`
	Errors []GraphQLError `json:"errors,omitempty"`
}

// coder is implemented by errors that carry a machine-readable code, such as
// *store.Error.
type coder interface {
	ErrorCode() string
}

// newGraphQLError converts a resolver or coercion error into a located error.
func newGraphQLError(err error, path Path, fields []*language.Field) GraphQLError {
	var ge GraphQLError
	if errors.As(err, &ge) {
		if ge.Path == nil {
			ge.Path = path
		}
		if ge.Locations == nil {
			ge.Locations = fieldLocations(fields)
		}
		return ge
	}
	ge = GraphQLError{Message: err.Error(), Path: path, Locations: fieldLocations(fields)}
	var c coder
	if errors.As(err, &c) && c.ErrorCode() != "" {
		ge.Extensions = map[string]any{"code": c.ErrorCode()}
	}
	return ge
}

func documentError(code, message string, pos *language.Position) GraphQLError {
	ge := GraphQLError{Message: message, Extensions: map[string]any{"code": code}}
	if pos != nil && pos.Line > 0 {
		ge.Locations = []Location{{Line: pos.Line, Column: pos.Column}}
	}
	return ge
}

func fieldLocations(fields []*language.Field) []Location {
	if len(fields) == 0 || fields[0] == nil || fields[0].Position == nil {
		return nil
	}
	p := fields[0].Position
	return []Location{{Line: p.Line, Column: p.Column}}
}
