package executor

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

const testSDL = `
type User {
  id: Int!
  name: String!
  friends: [User!]!
  best: User
}

input UserInput {
  name: String!
  tags: [String!]
}

enum Role { ADMIN MEMBER }

type Query {
  users: [User!]!
  user(id: Int!): User!
  me: User
  hello(name: String = "world"): String
  role(r: Role): Role
}

type Mutation {
  createUser(input: UserInput!): User!
}
`

type codedError struct{ code, msg string }

func (e codedError) Error() string     { return e.msg }
func (e codedError) ErrorCode() string { return e.code }

func userResolvers(extra map[string]MockResolver) map[string]MockResolver {
	m := map[string]MockResolver{
		"User.id":   sourceField("id"),
		"User.name": sourceField("name"),
		"Query.users": valueResolver([]any{
			map[string]any{"id": 1, "name": "Ada"},
			map[string]any{"id": 2, "name": "Grace"},
		}),
	}
	for k, v := range extra {
		m[k] = v
	}
	return m
}

func TestExecute_ParseError(t *testing.T) {
	rt := NewMockRuntime(nil)
	exec := NewExecutor(rt, mustBuildSchema(t, testSDL))

	res := exec.Execute(context.Background(), Params{Query: "{ users { id }"})

	require.Nil(t, res.Data)
	require.Len(t, res.Errors, 1)
	require.Equal(t, CodeParseError, res.Errors[0].Code())
	require.NotEmpty(t, res.Errors[0].Locations)
	require.Equal(t, 1, res.Errors[0].Locations[0].Line)
	require.Empty(t, rt.Calls())
}

func TestExecute_DocumentErrors(t *testing.T) {
	cases := []struct {
		name     string
		query    string
		opName   string
		vars     map[string]any
		code     string
		contains string
	}{
		{name: "unknown root field", query: `{ nope }`, code: CodeUnknownOperation, contains: `"nope"`},
		{name: "unknown nested field", query: `{ users { email } }`, code: CodeUnknownOperation, contains: `"User"`},
		{name: "unknown operation name", query: `query Q { users { id } }`, opName: "Other", code: CodeUnknownOperation},
		{name: "ambiguous operation", query: `query A { users { id } } query B { users { id } }`, code: CodeUnknownOperation},
		{name: "subscription", query: `subscription { users { id } }`, code: CodeUnknownOperation},
		{name: "unknown argument", query: `{ user(id: 1, x: 2) { id } }`, code: CodeUnknownArgument, contains: `"x"`},
		{name: "undefined variable", query: `{ user(id: $id) { id } }`, code: CodeUnknownArgument},
		{name: "unknown input field", query: `mutation { createUser(input: {name: "a", age: 3}) { id } }`, code: CodeUnknownArgument, contains: `"age"`},
		{name: "missing argument", query: `{ user { id } }`, code: CodeMissingArgument, contains: `"id"`},
		{name: "null argument", query: `{ user(id: null) { id } }`, code: CodeMissingArgument},
		{name: "missing input field", query: `mutation { createUser(input: {}) { id } }`, code: CodeMissingArgument, contains: `"UserInput.name"`},
		{name: "string for int", query: `{ user(id: "1") { id } }`, code: CodeArgumentTypeMismatch},
		{name: "float for int", query: `{ user(id: 1.5) { id } }`, code: CodeArgumentTypeMismatch},
		{name: "int out of range", query: `{ user(id: 9999999999) { id } }`, code: CodeArgumentTypeMismatch, contains: "32-bit"},
		{name: "anonymous among several", query: `mutation { createUser(input: {name: "a"}) { id } } query { user(id: 1) { id } }`, code: CodeUnknownOperation},
		{name: "string for input object", query: `mutation { createUser(input: "x") { id } }`, code: CodeArgumentTypeMismatch},
		{name: "bad enum", query: `{ role(r: OWNER) }`, code: CodeArgumentTypeMismatch},
		{name: "variable type", query: `query ($id: String!) { user(id: $id) { id } }`, code: CodeArgumentTypeMismatch},
		{name: "nullable variable", query: `query ($id: Int) { user(id: $id) { id } }`, code: CodeArgumentTypeMismatch},
		{name: "missing selection", query: `{ user(id: 1) }`, code: CodeInvalidSelection},
		{name: "selection on leaf", query: `{ users { id { x } } }`, code: CodeInvalidSelection},
		{name: "unknown fragment", query: `{ users { ...Missing } }`, code: CodeInvalidSelection},
		{name: "wrong fragment type", query: `{ ... on User { id } }`, code: CodeInvalidSelection},
		{name: "unused variable", query: `query ($id: Int!) { users { id } }`, code: CodeUnknownArgument, contains: "$id"},
		{name: "unknown variable type", query: `query ($id: Nope) { user(id: $id) { id } }`, code: CodeArgumentTypeMismatch},
		{name: "conflicting aliases", query: `{ x: user(id: 1) { id } x: user(id: 2) { id } }`, code: CodeInvalidSelection},
		{name: "unknown directive", query: `{ users @cached { id } }`, code: CodeInvalidSelection},
		{name: "variable not provided", query: `query ($id: Int!) { user(id: $id) { id } }`, vars: map[string]any{}, code: CodeMissingArgument, contains: "$id"},
		{name: "variable wrong type", query: `query ($id: Int!) { user(id: $id) { id } }`, vars: map[string]any{"id": "7"}, code: CodeArgumentTypeMismatch},
		{name: "variable fraction", query: `query ($id: Int!) { user(id: $id) { id } }`, vars: map[string]any{"id": 1.5}, code: CodeArgumentTypeMismatch},
		{name: "variable input missing field", query: `mutation ($in: UserInput!) { createUser(input: $in) { id } }`, vars: map[string]any{"in": map[string]any{}}, code: CodeMissingArgument, contains: "$in.name"},
		{name: "variable input unknown field", query: `mutation ($in: UserInput!) { createUser(input: $in) { id } }`, vars: map[string]any{"in": map[string]any{"name": "a", "age": 3}}, code: CodeUnknownArgument, contains: "$in.age"},
		{name: "variable null", query: `query ($id: Int!) { user(id: $id) { id } }`, vars: map[string]any{"id": nil}, code: CodeMissingArgument},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rt := NewMockRuntime(userResolvers(nil))
			exec := NewExecutor(rt, mustBuildSchema(t, testSDL))

			res := exec.Execute(context.Background(), Params{Query: tc.query, OperationName: tc.opName, Variables: tc.vars})

			require.Nil(t, res.Data)
			require.Len(t, res.Errors, 1, "%+v", res.Errors)
			require.Equal(t, tc.code, res.Errors[0].Code(), res.Errors[0].Message)
			require.Contains(t, res.Errors[0].Message, tc.contains)
			require.Empty(t, rt.Calls(), "no resolver may run for a rejected document")
		})
	}
}

func TestExecute_ResolvesAndProjects(t *testing.T) {
	rt := NewMockRuntime(userResolvers(nil))
	exec := NewExecutor(rt, mustBuildSchema(t, testSDL))

	res := exec.Execute(context.Background(), Params{Query: `{ users { id n: name __typename } }`})

	want := &ExecutionResult{
		Data: map[string]any{
			"users": []any{
				map[string]any{"id": 1, "n": "Ada", "__typename": "User"},
				map[string]any{"id": 2, "n": "Grace", "__typename": "User"},
			},
		},
		Errors: []GraphQLError{},
	}
	if diff := cmp.Diff(want, res); diff != "" {
		t.Fatalf("ExecutionResult mismatch (-want +got):\n%s", diff)
	}

	wantCalls := []Call{
		{Kind: CallKindAsync, ObjectType: "Query", Field: "users", Args: map[string]any{}, BatchID: 1},
		{Kind: CallKindSync, ObjectType: "User", Field: "id", Args: map[string]any{}},
		{Kind: CallKindSync, ObjectType: "User", Field: "name", Args: map[string]any{}},
		{Kind: CallKindSync, ObjectType: "User", Field: "id", Args: map[string]any{}},
		{Kind: CallKindSync, ObjectType: "User", Field: "name", Args: map[string]any{}},
	}
	if diff := cmp.Diff(wantCalls, rt.Calls()); diff != "" {
		t.Fatalf("Runtime calls mismatch (-want +got):\n%s", diff)
	}
}

func TestExecute_RootErrorKeepsSiblings(t *testing.T) {
	rt := NewMockRuntime(userResolvers(map[string]MockResolver{
		"Query.user": errorResolver(codedError{code: "NOT_FOUND", msg: "user 9 not found"}),
	}))
	exec := NewExecutor(rt, mustBuildSchema(t, testSDL))

	res := exec.Execute(context.Background(), Params{Query: `{ user(id: 9) { id } users { id } }`})

	want := &ExecutionResult{
		Data: map[string]any{
			"user":  nil,
			"users": []any{map[string]any{"id": 1}, map[string]any{"id": 2}},
		},
		Errors: []GraphQLError{{
			Message:    "user 9 not found",
			Locations:  []Location{{Line: 1, Column: 3}},
			Path:       Path{"user"},
			Extensions: map[string]any{"code": "NOT_FOUND"},
		}},
	}
	if diff := cmp.Diff(want, res); diff != "" {
		t.Fatalf("ExecutionResult mismatch (-want +got):\n%s", diff)
	}
}

func TestExecute_UncodedErrorHasNoExtensions(t *testing.T) {
	rt := NewMockRuntime(map[string]MockResolver{"Query.hello": errorResolver(errors.New("boom"))})
	exec := NewExecutor(rt, mustBuildSchema(t, testSDL))

	res := exec.Execute(context.Background(), Params{Query: `{ hello }`})

	require.Equal(t, map[string]any{"hello": nil}, res.Data)
	require.Len(t, res.Errors, 1)
	require.Equal(t, "boom", res.Errors[0].Message)
	require.Nil(t, res.Errors[0].Extensions)
	require.Equal(t, Path{"hello"}, res.Errors[0].Path)
}

func TestExecute_Arguments(t *testing.T) {
	rt := NewMockRuntime(userResolvers(map[string]MockResolver{
		"Query.user": valueResolver(map[string]any{"id": 4, "name": "Ada"}),
	}))
	exec := NewExecutor(rt, mustBuildSchema(t, testSDL))
	ctx := context.Background()

	res := exec.Execute(ctx, Params{
		Query:     `query ($id: Int!) { user(id: $id) { id } }`,
		Variables: map[string]any{"id": float64(4)},
	})
	require.Empty(t, res.Errors)
	res = exec.Execute(ctx, Params{Query: `{ hello }`})
	require.Empty(t, res.Errors)
	res = exec.Execute(ctx, Params{Query: `{ hello(name: "you") role(r: ADMIN) }`})
	require.Empty(t, res.Errors)

	var got []map[string]any
	for _, c := range rt.Calls() {
		if c.Kind == CallKindAsync {
			got = append(got, c.Args)
		}
	}
	want := []map[string]any{
		{"id": 4},
		{"name": "world"},
		{"name": "you"},
		{"r": "ADMIN"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("args mismatch (-want +got):\n%s", diff)
	}
}

func TestExecute_InputObjectWithNestedVariable(t *testing.T) {
	var gotArgs map[string]any
	rt := NewMockRuntime(userResolvers(map[string]MockResolver{
		"Mutation.createUser": func(_ context.Context, _ any, args map[string]any) (any, error) {
			gotArgs = args
			in := args["input"].(map[string]any)
			return map[string]any{"id": 3, "name": in["name"]}, nil
		},
	}))
	exec := NewExecutor(rt, mustBuildSchema(t, testSDL))

	res := exec.Execute(context.Background(), Params{
		Query:     `mutation ($n: String!) { createUser(input: {name: $n, tags: ["x"]}) { id name } }`,
		Variables: map[string]any{"n": "Ada"},
	})

	require.Empty(t, res.Errors)
	require.Equal(t, map[string]any{"createUser": map[string]any{"id": 3, "name": "Ada"}}, res.Data)
	require.Equal(t, map[string]any{"input": map[string]any{"name": "Ada", "tags": []any{"x"}}}, gotArgs)
}

func TestExecute_SkipIncludeAndFragments(t *testing.T) {
	rt := NewMockRuntime(userResolvers(nil))
	exec := NewExecutor(rt, mustBuildSchema(t, testSDL))

	res := exec.Execute(context.Background(), Params{
		Query: `
			query ($skip: Boolean!) {
			  users {
			    ...Ids
			    name @skip(if: $skip)
			    ... on User { alias: name @include(if: false) }
			  }
			}
			fragment Ids on User { id }`,
		Variables: map[string]any{"skip": true},
	})

	require.Empty(t, res.Errors)
	want := map[string]any{"users": []any{map[string]any{"id": 1}, map[string]any{"id": 2}}}
	if diff := cmp.Diff(want, res.Data); diff != "" {
		t.Fatalf("data mismatch (-want +got):\n%s", diff)
	}
}

func TestExecute_DirectiveConditionErrors(t *testing.T) {
	rt := NewMockRuntime(userResolvers(nil))
	exec := NewExecutor(rt, mustBuildSchema(t, testSDL))

	res := exec.Execute(context.Background(), Params{
		Query:     `query ($c: Boolean = true) { users { id } me @skip(if: $c) { id } }`,
		Variables: map[string]any{"c": nil},
	})

	require.Len(t, res.Errors, 1)
	ge := res.Errors[0]
	require.Equal(t, CodeMissingArgument, ge.Code())
	require.Contains(t, ge.Message, `"@skip(if:)"`)
	require.Equal(t, Path{"me"}, ge.Path)
	require.Equal(t, []Location{{Line: 1, Column: 47}}, ge.Locations)
	want := map[string]any{"users": []any{map[string]any{"id": 1}, map[string]any{"id": 2}}}
	if diff := cmp.Diff(want, res.Data); diff != "" {
		t.Fatalf("data mismatch (-want +got):\n%s", diff)
	}

	res = exec.Execute(context.Background(), Params{
		Query: `query ($c: Boolean = true) { users { id name @include(if: $c) } }`,
	})
	require.Empty(t, res.Errors)
	require.Equal(t, "Ada", res.Data.(map[string]any)["users"].([]any)[0].(map[string]any)["name"])
}

func TestExecute_MutationsRunInDocumentOrder(t *testing.T) {
	var mu sync.Mutex
	var order []string
	rt := NewMockRuntime(userResolvers(map[string]MockResolver{
		"Mutation.createUser": func(_ context.Context, _ any, args map[string]any) (any, error) {
			name := args["input"].(map[string]any)["name"].(string)
			mu.Lock()
			order = append(order, name)
			id := len(order)
			mu.Unlock()
			return map[string]any{"id": id, "name": name}, nil
		},
	}))
	exec := NewExecutor(rt, mustBuildSchema(t, testSDL))

	res := exec.Execute(context.Background(), Params{
		Query: `mutation { b: createUser(input: {name: "b"}) { id } a: createUser(input: {name: "a"}) { id } }`,
	})

	require.Empty(t, res.Errors)
	require.Equal(t, []string{"b", "a"}, order)
	require.Equal(t, map[string]any{
		"b": map[string]any{"id": 1},
		"a": map[string]any{"id": 2},
	}, res.Data)
}

func TestExecute_BatchPerAsyncDepth(t *testing.T) {
	rt := NewMockRuntime(userResolvers(map[string]MockResolver{
		"User.friends": func(_ context.Context, src any, _ map[string]any) (any, error) {
			id := src.(map[string]any)["id"].(int)
			return []any{map[string]any{"id": id * 10, "name": "f"}}, nil
		},
	}))
	exec := NewExecutor(rt, mustBuildSchema(t, testSDL, "User.friends"))

	res := exec.Execute(context.Background(), Params{Query: `{ users { id friends { id } } }`})

	require.Empty(t, res.Errors)
	want := map[string]any{"users": []any{
		map[string]any{"id": 1, "friends": []any{map[string]any{"id": 10}}},
		map[string]any{"id": 2, "friends": []any{map[string]any{"id": 20}}},
	}}
	if diff := cmp.Diff(want, res.Data); diff != "" {
		t.Fatalf("data mismatch (-want +got):\n%s", diff)
	}

	var batches []int
	for _, c := range rt.Calls() {
		if c.Kind == CallKindAsync {
			batches = append(batches, c.BatchID)
		}
	}
	require.Equal(t, []int{1, 2, 2}, batches)
}

func TestExecute_NonNullPropagation(t *testing.T) {
	rt := NewMockRuntime(userResolvers(map[string]MockResolver{
		"Query.users": valueResolver([]any{
			map[string]any{"id": 1, "name": "Ada"},
			map[string]any{"id": 2},
		}),
		"Query.me": valueResolver(map[string]any{"id": 5}),
	}))
	exec := NewExecutor(rt, mustBuildSchema(t, testSDL))

	res := exec.Execute(context.Background(), Params{Query: `{ users { id name } me { name } hello }`})

	require.Equal(t, map[string]any{"users": nil, "me": nil, "hello": nil}, res.Data)
	paths := make([]Path, len(res.Errors))
	for i, e := range res.Errors {
		paths[i] = e.Path
	}
	require.ElementsMatch(t, []Path{{"users", 1, "name"}, {"me", "name"}}, paths)
}

func TestPathToString(t *testing.T) {
	require.Equal(t, "users[1].name", pathToString(Path{"users", 1, "name"}))
	require.Equal(t, "user", pathToString(Path{"user"}))
}
