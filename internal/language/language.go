// Package language re-exports the gqlparser AST so the rest of the module does
// not import the parser directly.
package language

import (
	"errors"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
)

// ParseQuery parses an executable document. Syntax errors are returned as
// *Error carrying line/column locations.
func ParseQuery(source string) (*QueryDocument, error) {
	doc, err := parser.ParseQuery(&ast.Source{Input: source})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// ParseSchema parses an SDL document. name is used in error locations.
func ParseSchema(name, source string) (*SchemaDocument, error) {
	doc, err := parser.ParseSchema(&ast.Source{Name: name, Input: source})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// AsError extracts a parser error from err.
func AsError(err error) (*Error, bool) {
	var ge *Error
	if errors.As(err, &ge) {
		return ge, true
	}
	return nil, false
}
