package executor

import (
	"context"
)

// Runtime is what the executor calls out to when it needs a value.
//
// Execution is breadth-first. At each depth every sync field is resolved
// through ResolveSync as it is reached, and all async fields found at that
// depth are handed to BatchResolveAsync in a single call. The next depth
// starts only after that call returns.
//
//   - ResolveSync is never called for a field whose schema.Field.Async is set.
//   - BatchResolveAsync is only called with a non-empty task list. Tasks under
//     a path already nulled by a Non-Null violation are dropped beforehand.
//   - Any returned error becomes a located GraphQL error. Errors implementing
//     ErrorCode() string also report that code in extensions.code.
//
// Implementations are shared by concurrent requests and must not mutate
// source or args.
type Runtime interface {
	// ResolveSync returns the raw value of a projection field of source.
	// Returning (nil, nil) yields null.
	ResolveSync(ctx context.Context, objectType string, field string, source any, args map[string]any) (any, error)

	// BatchResolveAsync resolves one depth of resolver-backed fields.
	// len(result) must equal len(tasks) and result[i] belongs to tasks[i].
	// A failing task does not fail its siblings. Tasks are listed in
	// document order, so a runtime that resolves them one after another
	// gives mutations their serial semantics.
	BatchResolveAsync(ctx context.Context, tasks []AsyncResolveTask) []AsyncResolveResult

	// SerializeLeafValue converts a scalar or enum value into a JSON-safe
	// Go value.
	SerializeLeafValue(ctx context.Context, scalarOrEnumTypeName string, value any) (any, error)
}

// AsyncResolveTask is one resolver-backed field awaiting resolution.
type AsyncResolveTask struct {
	ObjectType string
	Field      string
	// Source is the parent value, or the root value for root fields.
	Source any
	// Args are already coerced against the field's argument types.
	Args map[string]any
}

// AsyncResolveResult is the outcome of one AsyncResolveTask.
type AsyncResolveResult struct {
	Value any
	Error error
}
