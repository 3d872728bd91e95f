// Package executor runs GraphQL operations against a schema.Schema, calling
// out to a Runtime for field values.
//
// # Request pipeline
//
// Execute moves a request through these stages:
//
//	Received -> Parsed -> Validated -> Resolving -> Assembled -> Done
//
// A syntax error stops at Parsed with PARSE_ERROR and the offending line and
// column. Validation runs gqlparser's rule set against schema.Schema.Validated,
// selects the operation and checks the variables. Each rule maps to one of
// UNKNOWN_OPERATION, UNKNOWN_ARGUMENT, MISSING_ARGUMENT,
// ARGUMENT_TYPE_MISMATCH or INVALID_SELECTION. In both cases the result has
// null data and a single error, and no resolver has run.
//
// # Execution model
//
// Execution proceeds one depth at a time:
//
//	A. Sync expansion. Fields whose schema.Field.Async is false are resolved
//	   through Runtime.ResolveSync as soon as they are reached, and object
//	   results are expanded in place without adding depth.
//
//	B. Batch. Async fields found while expanding are queued. Once expansion
//	   stops, Runtime.BatchResolveAsync is called once with the whole queue.
//	   Object results then expand, and any async children they contain are
//	   queued for the next batch.
//
//	C. Pruning. A Non-Null violation nulls the nearest nullable ancestor and
//	   tombstones that path; queued tasks below a tombstone are dropped.
//
// For an operation with async depth d, BatchResolveAsync is called exactly d
// times.
//
// # Errors
//
// A resolver error becomes a located error carrying the response path and
// the field's position in the document. When the error exposes an
// ErrorCode() string, the code is reported in extensions.code. A failing
// field becomes null and its siblings are unaffected. Non-Null propagation
// stops at the root field, so a failing non-null root field leaves
// data.<field> null while other root fields keep their values.
//
// # Mutations
//
// Root fields are queued in document order. A runtime that resolves a batch
// sequentially therefore runs mutation fields serially.
package executor
