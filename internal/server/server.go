package server

import (
	"context"
	_ "embed"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	eventbus "github.com/hanpama/usergraph/internal/eventbus"
	events "github.com/hanpama/usergraph/internal/events"
	executor "github.com/hanpama/usergraph/internal/executor"
	language "github.com/hanpama/usergraph/internal/language"
	reqid "github.com/hanpama/usergraph/internal/reqid"
	schema "github.com/hanpama/usergraph/internal/schema"
)

// Handler is an http.Handler that serves a GraphQL endpoint.
// It parses requests, runs the executor, and formats GraphQL-over-HTTP responses.
// Failures past request decoding are always reported in the envelope with 200.
type Handler struct {
	exec *executor.Executor
	opt  Options
}

type Options struct {
	// Timeout sets a default timeout if the incoming request context has none.
	// 0 means no default timeout.
	Timeout time.Duration

	// Pretty enables indented JSON responses (useful for dev).
	Pretty bool

	// MaxBodyBytes limits the size of the request body. 0 means unlimited.
	MaxBodyBytes int64

	// CORS configuration. If AllowedOrigins is empty, CORS is disabled.
	CORS CORSOptions

	// GraphiQL enables the in-browser IDE when true.
	GraphiQL bool
}

type Option func(*Options)

func WithTimeout(d time.Duration) Option { return func(o *Options) { o.Timeout = d } }
func WithPretty() Option                 { return func(o *Options) { o.Pretty = true } }
func WithMaxBodyBytes(n int64) Option    { return func(o *Options) { o.MaxBodyBytes = n } }
func WithCORS(origins ...string) Option {
	return func(o *Options) { o.CORS.AllowedOrigins = origins }
}

// CORSOptions holds simple CORS settings.
type CORSOptions struct {
	AllowedOrigins []string
}

func WithGraphiQL(enable bool) Option { return func(o *Options) { o.GraphiQL = enable } }

// graphiqlPage posts to /graphql.
//
//go:embed graphiql.html
var graphiqlPage []byte

// New creates a new GraphQL HTTP handler using the given runtime and schema.
func New(runtime executor.Runtime, schema *schema.Schema, opts ...Option) (*Handler, error) {
	exec := executor.NewExecutor(runtime, schema)
	op := Options{Timeout: 10 * time.Second, GraphiQL: true}
	for _, f := range opts {
		f(&op)
	}
	return &Handler{exec: exec, opt: op}, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := ctx.Deadline(); !ok && h.opt.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opt.Timeout)
		defer cancel()
	}

	ctx = reqid.WithID(ctx, r.Header.Get(reqid.Header))
	rid, _ := reqid.FromContext(ctx)
	w.Header().Set(reqid.Header, rid)

	status, ops := http.StatusOK, 0
	start := time.Now()
	eventbus.Publish(ctx, events.HTTPStart{Request: r})
	defer func() {
		eventbus.Publish(ctx, events.HTTPFinish{Request: r, Status: status, Operations: ops, Duration: time.Since(start)})
	}()

	if r.Method == http.MethodOptions {
		if len(h.opt.CORS.AllowedOrigins) > 0 {
			setCORSHeaders(w, r, h.opt.CORS)
		}
		status = http.StatusNoContent
		w.WriteHeader(status)
		return
	}

	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		status = http.StatusMethodNotAllowed
		writeJSON(w, status, errorResponse(&requestError{status: status, message: "method not allowed"}), h.opt.Pretty)
		return
	}

	// Serve GraphiQL IDE when enabled and the client expects HTML.
	if r.Method == http.MethodGet && h.opt.GraphiQL && acceptsHTML(r.Header.Get("Accept")) && r.URL.Query().Get("query") == "" {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(graphiqlPage)
		return
	}

	req, batch, berr := parseRequest(r, h.opt.MaxBodyBytes)
	if berr == nil && r.Method == http.MethodGet && selectsMutation(req) {
		w.Header().Set("Allow", http.MethodPost)
		berr = &requestError{status: http.StatusMethodNotAllowed, message: "mutations are not allowed over GET"}
	}
	if berr != nil {
		status = berr.status
		writeJSON(w, status, errorResponse(berr), h.opt.Pretty)
		return
	}

	if len(h.opt.CORS.AllowedOrigins) > 0 {
		setCORSHeaders(w, r, h.opt.CORS)
	}

	if batch != nil {
		// Batched requests
		ops = len(batch)
		op := make([]any, len(batch))
		for i := range batch {
			op[i] = h.executeOne(ctx, batch[i])
		}
		writeJSON(w, status, op, h.opt.Pretty)
		return
	}

	ops = 1
	res := h.executeOne(ctx, req)
	writeJSON(w, status, res, h.opt.Pretty)
}

func (h *Handler) executeOne(ctx context.Context, req GraphQLRequest) wireResult {
	result := h.exec.Execute(ctx, executor.Params{
		Query:         req.Query,
		OperationName: req.OperationName,
		Variables:     req.Variables,
	})
	return toWireResult(result)
}

// Pinger reports whether the store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Health serves GET /healthz. It answers 200 when p answers a ping within
// timeout and 503 otherwise.
func Health(p Pinger, timeout time.Duration) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()}, false)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"}, false)
	})
}

// ------------------ Request parsing ------------------

type GraphQLRequest struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
	Extensions    map[string]any `json:"extensions,omitempty"`
}

// requestError is a malformed HTTP request. It never reaches the executor.
type requestError struct {
	status  int
	message string
}

func badRequest(msg string) *requestError {
	return &requestError{status: http.StatusBadRequest, message: msg}
}

func parseRequest(r *http.Request, maxBody int64) (GraphQLRequest, []GraphQLRequest, *requestError) {
	if r.Method == http.MethodGet {
		q := r.URL.Query().Get("query")
		if q == "" {
			return GraphQLRequest{}, nil, badRequest("missing 'query'")
		}
		vars := map[string]any{}
		if v := r.URL.Query().Get("variables"); v != "" {
			if err := json.Unmarshal([]byte(v), &vars); err != nil {
				return GraphQLRequest{}, nil, badRequest("invalid 'variables' JSON")
			}
		}
		op := r.URL.Query().Get("operationName")
		return GraphQLRequest{Query: q, Variables: vars, OperationName: op}, nil, nil
	}

	// POST
	ct := r.Header.Get("Content-Type")
	if ct == "" || ct == "application/json" || strings.HasPrefix(ct, "application/json;") {
		reader := io.Reader(r.Body)
		if maxBody > 0 {
			reader = io.LimitReader(r.Body, maxBody+1)
		}
		body, err := io.ReadAll(reader)
		if err != nil {
			return GraphQLRequest{}, nil, badRequest("failed to read body")
		}
		defer r.Body.Close()
		if maxBody > 0 && int64(len(body)) > maxBody {
			return GraphQLRequest{}, nil, &requestError{status: http.StatusRequestEntityTooLarge, message: "body too large"}
		}

		// Try array (batch)
		if len(body) > 0 && body[0] == '[' {
			var arr []GraphQLRequest
			if err := json.Unmarshal(body, &arr); err != nil {
				return GraphQLRequest{}, nil, badRequest("invalid JSON")
			}
			if len(arr) == 0 {
				return GraphQLRequest{}, nil, badRequest("empty batch")
			}
			return GraphQLRequest{}, arr, nil
		}
		// Single
		var req GraphQLRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return GraphQLRequest{}, nil, badRequest("invalid JSON")
		}
		if req.Query == "" {
			return GraphQLRequest{}, nil, badRequest("missing 'query'")
		}
		if req.Variables == nil {
			req.Variables = map[string]any{}
		}
		return req, nil, nil
	}

	return GraphQLRequest{}, nil, &requestError{status: http.StatusUnsupportedMediaType, message: "unsupported Content-Type"}
}

// selectsMutation reports whether req would run a mutation. Documents that do
// not parse or name no single operation are left to the executor.
func selectsMutation(req GraphQLRequest) bool {
	doc, err := language.ParseQuery(req.Query)
	if err != nil {
		return false
	}
	if req.OperationName == "" {
		return len(doc.Operations) == 1 && doc.Operations[0].Operation == language.Mutation
	}
	op := doc.Operations.ForName(req.OperationName)
	return op != nil && op.Operation == language.Mutation
}

// ------------------ Response formatting ------------------

type wireLocation struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

type wireError struct {
	Message    string         `json:"message"`
	Locations  []wireLocation `json:"locations,omitempty"`
	Path       []any          `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

type wireResult struct {
	Data   any         `json:"data"`
	Errors []wireError `json:"errors,omitempty"`
}

func errorResponse(err *requestError) wireResult {
	return wireResult{Errors: []wireError{{Message: err.message}}}
}

func toWireResult(res *executor.ExecutionResult) wireResult {
	out := wireResult{Data: res.Data}
	if len(res.Errors) == 0 {
		return out
	}
	out.Errors = make([]wireError, len(res.Errors))
	for i, e := range res.Errors {
		se := wireError{Message: e.Message, Extensions: e.Extensions}
		for _, l := range e.Locations {
			se.Locations = append(se.Locations, wireLocation{Line: l.Line, Column: l.Column})
		}
		if len(e.Path) > 0 {
			se.Path = make([]any, len(e.Path))
			for j, pe := range e.Path {
				switch v := pe.(type) {
				case string, int:
					se.Path[j] = v
				default:
					se.Path[j] = toString(v)
				}
			}
		}
		out.Errors[i] = se
	}
	// Partial data is preserved alongside the errors.
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any, pretty bool) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	_ = enc.Encode(v)
}

func toString(v any) string { b, _ := json.Marshal(v); return string(b) }

func setCORSHeaders(w http.ResponseWriter, r *http.Request, opts CORSOptions) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}
	allowed := false
	for _, o := range opts.AllowedOrigins {
		if o == "*" || o == origin {
			allowed = true
			break
		}
	}
	if !allowed {
		return
	}
	if contains(opts.AllowedOrigins, "*") {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	} else {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Add("Vary", "Origin")
	}
	if r.Method == http.MethodOptions {
		if hdr := r.Header.Get("Access-Control-Request-Headers"); hdr != "" {
			w.Header().Set("Access-Control-Allow-Headers", hdr)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func acceptsHTML(accept string) bool {
	for _, p := range strings.Split(accept, ",") {
		p = strings.TrimSpace(p)
		if strings.HasPrefix(p, "text/html") || p == "*/*" {
			return true
		}
	}
	return false
}
