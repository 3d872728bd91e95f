package executor

import (
	language "github.com/hanpama/usergraph/internal/language"
	schema "github.com/hanpama/usergraph/internal/schema"
)

// fieldGroup is every selection answering to one response name, in document
// order. Fields[0] decides the field definition.
type fieldGroup struct {
	ResponseName string
	Fields       []*language.Field
}

// groupedFields keeps response names in the order they first appear.
type groupedFields struct {
	groups []fieldGroup
	index  map[string]int
}

func (g *groupedFields) add(responseName string, field *language.Field) {
	if i, ok := g.index[responseName]; ok {
		g.groups[i].Fields = append(g.groups[i].Fields, field)
		return
	}
	g.index[responseName] = len(g.groups)
	g.groups = append(g.groups, fieldGroup{ResponseName: responseName, Fields: []*language.Field{field}})
}

func (g *groupedFields) ordered() []fieldGroup { return g.groups }

// fieldCollector flattens fragments and applies @skip and @include for one
// object at path.
type fieldCollector struct {
	state   *executionState
	object  *schema.Type
	path    Path
	visited map[string]bool
	out     *groupedFields
}

// collectFields groups the selections that apply to objectType. A directive
// whose condition cannot be evaluated drops its selection and records a
// coded error at path.
func collectFields(state *executionState, objectType *schema.Type, selectionSet language.SelectionSet, path Path) *groupedFields {
	c := &fieldCollector{
		state:   state,
		object:  objectType,
		path:    path,
		visited: make(map[string]bool),
		out:     &groupedFields{index: make(map[string]int)},
	}
	c.collect(selectionSet)
	return c.out
}

func (c *fieldCollector) collect(selectionSet language.SelectionSet) {
	for _, selection := range selectionSet {
		switch sel := selection.(type) {
		case *language.Field:
			responseName := sel.Alias
			if responseName == "" {
				responseName = sel.Name
			}
			if !c.include(sel.Directives, appendPath(c.path, responseName)) {
				continue
			}
			c.out.add(responseName, sel)

		case *language.InlineFragment:
			if !c.include(sel.Directives, c.path) || !c.applies(sel.TypeCondition) {
				continue
			}
			c.collect(sel.SelectionSet)

		case *language.FragmentSpread:
			if !c.include(sel.Directives, c.path) || c.visited[sel.Name] {
				continue
			}
			c.visited[sel.Name] = true
			def := c.state.document.Fragments.ForName(sel.Name)
			if def == nil || !c.applies(def.TypeCondition) {
				continue
			}
			c.collect(def.SelectionSet)
		}
	}
}

// applies reports whether a fragment with typeCondition spreads into the
// object. The schema has no abstract types, so names must match.
func (c *fieldCollector) applies(typeCondition string) bool {
	return typeCondition == "" || typeCondition == c.object.Name
}

// include evaluates @skip then @include.
func (c *fieldCollector) include(directives language.DirectiveList, path Path) bool {
	for _, name := range [...]string{"skip", "include"} {
		d := directives.ForName(name)
		if d == nil {
			continue
		}
		cond, err := c.condition(d)
		if err != nil {
			ge := newGraphQLError(err, path, nil)
			if d.Position != nil {
				ge.Locations = []Location{{Line: d.Position.Line, Column: d.Position.Column}}
			}
			c.state.errors = append(c.state.errors, ge)
			return false
		}
		if cond == (name == "skip") {
			return false
		}
	}
	return true
}

// condition coerces the "if" argument of d against its definition.
func (c *fieldCollector) condition(d *language.Directive) (bool, error) {
	def := c.state.schema.Directives[d.Name]
	if def == nil || len(def.Arguments) == 0 {
		return false, mismatch("Unknown directive \"@%s\".", d.Name)
	}
	argDef := def.Arguments[0]
	arg := d.Arguments.ForName(argDef.Name)
	if arg == nil || (arg.Value.Kind == language.Variable && !hasVariable(c.state.variableValues, arg.Value.Raw)) {
		return false, missing("Directive \"@%s\" argument \"%s\" of type \"%s\" is required, but it was not provided.", d.Name, argDef.Name, argDef.Type)
	}
	cv, err := coerceValue(c.state.schema, valueFromAST(arg.Value, c.state.variableValues), argDef.Type, "@"+d.Name+"("+argDef.Name+":)")
	if err != nil {
		return false, err
	}
	b, ok := cv.(bool)
	if !ok {
		return false, mismatch("Directive \"@%s\" argument \"%s\" has type %T.", d.Name, argDef.Name, cv)
	}
	return b, nil
}
