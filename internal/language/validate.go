package language

import (
	"strconv"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"github.com/vektah/gqlparser/v2/validator"
	"github.com/vektah/gqlparser/v2/validator/core"
	"github.com/vektah/gqlparser/v2/validator/rules"
)

type (
	// Schema is the validated form of an SDL document, prelude included.
	Schema    = ast.Schema
	FieldList = ast.FieldList
	ErrorList = gqlerror.List
)

// RuleIntRange names the rule rejecting Int literals outside 32 bits.
const RuleIntRange = "IntLiteralRange"

// LoadSchema parses source together with the built-in prelude and validates
// the result as a type system.
func LoadSchema(name, source string) (*Schema, error) {
	return gqlparser.LoadSchema(&ast.Source{Name: name, Input: source})
}

// Validate checks doc against s. Every error names the rule that raised it.
func Validate(s *Schema, doc *QueryDocument) ErrorList {
	set := rules.NewDefaultRules()
	set.AddRule(intRangeRule.Name, intRangeRule.RuleFunc)
	return validator.ValidateWithRules(s, doc, set)
}

// VariableValues checks request variables against the definitions of op and
// fills in declared defaults. Failures are *Error values whose path starts
// with "variable".
func VariableValues(s *Schema, op *OperationDefinition, vars map[string]any) (map[string]any, error) {
	return validator.VariableValues(s, op, vars)
}

var intRangeRule = core.Rule{
	Name: RuleIntRange,
	RuleFunc: func(observers *core.Events, addError core.AddErrFunc) {
		observers.OnValue(func(_ *core.Walker, value *ast.Value) {
			if value.Kind != ast.IntValue || value.Definition == nil || value.Definition.Name != "Int" {
				return
			}
			if _, err := strconv.ParseInt(value.Raw, 10, 32); err != nil {
				addError(
					core.Message(`Int cannot represent non 32-bit signed integer value: %s`, value.Raw),
					core.At(value.Position),
				)
			}
		})
	},
}
