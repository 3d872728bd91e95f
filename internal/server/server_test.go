package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	eventbus "github.com/hanpama/usergraph/internal/eventbus"
	events "github.com/hanpama/usergraph/internal/events"
	reqid "github.com/hanpama/usergraph/internal/reqid"
	schema "github.com/hanpama/usergraph/internal/schema"
	sqlrt "github.com/hanpama/usergraph/internal/sqlrt"
	store "github.com/hanpama/usergraph/internal/store"
)

func newTestHandler(t *testing.T, reg *sqlrt.Registry, opts ...Option) *Handler {
	t.Helper()
	sch, err := schema.BuildFromSDL(`type Query { hello: String missing: String! }`)
	require.NoError(t, err)
	if reg.Lookup("Query", "hello") == nil {
		reg.Bind("Query", "hello", func(*sqlrt.RequestContext, any, map[string]any) (any, error) { return "world", nil })
	}
	reg.Bind("Query", "missing", func(*sqlrt.RequestContext, any, map[string]any) (any, error) {
		return nil, store.NotFound("nothing here")
	})
	rt, err := sqlrt.NewRuntime(sch, nil, reg)
	require.NoError(t, err)
	h, err := New(rt, sch, opts...)
	require.NoError(t, err)
	return h
}

func post(h http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", "/graphql", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestPostAndGet(t *testing.T) {
	h := newTestHandler(t, sqlrt.NewRegistry())

	w := post(h, `{"query":"{ hello }"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, map[string]any{"data": map[string]any{"hello": "world"}}, decode(t, w))

	req := httptest.NewRequest("GET", "/graphql?query="+url.QueryEscape("{ greeting: hello }"), nil)
	gw := httptest.NewRecorder()
	h.ServeHTTP(gw, req)
	require.Equal(t, http.StatusOK, gw.Code)
	require.Equal(t, map[string]any{"data": map[string]any{"greeting": "world"}}, decode(t, gw))
}

func TestEnvelopeErrors(t *testing.T) {
	h := newTestHandler(t, sqlrt.NewRegistry())

	w := post(h, `{"query":"{ hello missing }"}`)
	require.Equal(t, http.StatusOK, w.Code)
	want := map[string]any{
		"data": map[string]any{"hello": "world", "missing": nil},
		"errors": []any{map[string]any{
			"message":    "nothing here",
			"path":       []any{"missing"},
			"locations":  []any{map[string]any{"line": float64(1), "column": float64(9)}},
			"extensions": map[string]any{"code": "NOT_FOUND"},
		}},
	}
	if diff := cmp.Diff(want, decode(t, w)); diff != "" {
		t.Fatalf("response mismatch (-want +got):\n%s", diff)
	}

	w = post(h, `{"query":"{ hello "}`)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	require.Nil(t, body["data"])
	errs := body["errors"].([]any)
	require.Len(t, errs, 1)
	require.Equal(t, map[string]any{"code": "PARSE_ERROR"}, errs[0].(map[string]any)["extensions"])
	require.NotEmpty(t, errs[0].(map[string]any)["locations"])
}

func TestBatch(t *testing.T) {
	h := newTestHandler(t, sqlrt.NewRegistry())

	w := post(h, `[{"query":"{ hello }"},{"query":"{ nope }"}]`)
	require.Equal(t, http.StatusOK, w.Code)
	var out []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Len(t, out, 2)
	require.Equal(t, map[string]any{"hello": "world"}, out[0]["data"])
	require.Nil(t, out[1]["data"])
	require.NotEmpty(t, out[1]["errors"])
}

func TestMalformedRequests(t *testing.T) {
	h := newTestHandler(t, sqlrt.NewRegistry())

	for _, tc := range []struct {
		body string
		code int
	}{
		{`{"query":`, http.StatusBadRequest},
		{`{}`, http.StatusBadRequest},
		{`[]`, http.StatusBadRequest},
	} {
		w := post(h, tc.body)
		require.Equal(t, tc.code, w.Code, tc.body)
		require.NotEmpty(t, decode(t, w)["errors"])
	}

	req := httptest.NewRequest("PUT", "/graphql", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusMethodNotAllowed, w.Code)

	req = httptest.NewRequest("POST", "/graphql", bytes.NewBufferString("query"))
	req.Header.Set("Content-Type", "text/plain")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnsupportedMediaType, w.Code)
}

func TestCORSAndPreflight(t *testing.T) {
	h := newTestHandler(t, sqlrt.NewRegistry(), WithCORS("*"))

	// simple request
	req := httptest.NewRequest("POST", "/", bytes.NewBufferString(`{"query":"{ hello }"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", "http://example.com")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	// preflight
	pre := httptest.NewRequest("OPTIONS", "/", nil)
	pre.Header.Set("Origin", "http://example.com")
	pre.Header.Set("Access-Control-Request-Headers", "X-Test")
	pw := httptest.NewRecorder()
	h.ServeHTTP(pw, pre)
	require.Equal(t, http.StatusNoContent, pw.Code)
	require.Equal(t, "*", pw.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "X-Test", pw.Header().Get("Access-Control-Allow-Headers"))
}

func TestMaxBodyBytes(t *testing.T) {
	h := newTestHandler(t, sqlrt.NewRegistry(), WithMaxBodyBytes(10))

	w := post(h, `{"query":"1234567890"}`)
	require.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestRequestID(t *testing.T) {
	var captured string
	reg := sqlrt.NewRegistry()
	reg.Bind("Query", "hello", func(rc *sqlrt.RequestContext, _ any, _ map[string]any) (any, error) {
		captured = rc.RequestID()
		return "world", nil
	})
	h := newTestHandler(t, reg)

	w := post(h, `{"query":"{ hello }"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotEmpty(t, captured)
	require.Equal(t, captured, w.Header().Get(reqid.Header))

	req := httptest.NewRequest("POST", "/", bytes.NewBufferString(`{"query":"{ hello }"}`))
	req.Header.Set(reqid.Header, "upstream-7")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, "upstream-7", captured)
	require.Equal(t, "upstream-7", w.Header().Get(reqid.Header))
}

func TestTimeoutReachesResolvers(t *testing.T) {
	reg := sqlrt.NewRegistry()
	reg.Bind("Query", "hello", func(rc *sqlrt.RequestContext, _ any, _ map[string]any) (any, error) {
		<-rc.Context().Done()
		return nil, rc.Context().Err()
	})
	h := newTestHandler(t, reg, WithTimeout(10*time.Millisecond))

	w := post(h, `{"query":"{ hello }"}`)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	require.Equal(t, map[string]any{"hello": nil}, body["data"])
	require.Equal(t, context.DeadlineExceeded.Error(), body["errors"].([]any)[0].(map[string]any)["message"])
}

func TestPublishesEvents(t *testing.T) {
	bus := eventbus.New()
	eventbus.Use(bus)
	t.Cleanup(func() { eventbus.Use(nil) })

	var mu sync.Mutex
	var seen []string
	record := func(s string) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, s)
	}
	defer eventbus.Subscribe(func(context.Context, events.HTTPStart) { record("http.start") })()
	defer eventbus.Subscribe(func(context.Context, events.GraphQLStart) { record("graphql.start") })()
	defer eventbus.Subscribe(func(_ context.Context, e events.GraphQLFinish) { record("graphql.finish") })()
	defer eventbus.Subscribe(func(_ context.Context, e events.HTTPFinish) {
		record("http.finish")
		require.Equal(t, http.StatusOK, e.Status)
		require.Equal(t, 1, e.Operations)
	})()

	h := newTestHandler(t, sqlrt.NewRegistry())
	post(h, `{"query":"{ hello }"}`)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"http.start", "graphql.start", "graphql.finish", "http.finish"}, seen)
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestHealth(t *testing.T) {
	w := httptest.NewRecorder()
	Health(pinger{}, time.Second).ServeHTTP(w, httptest.NewRequest("GET", "/healthz", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = httptest.NewRecorder()
	Health(pinger{err: errors.New("down")}, time.Second).ServeHTTP(w, httptest.NewRequest("GET", "/healthz", nil))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.JSONEq(t, `{"status":"unavailable","error":"down"}`, w.Body.String())
}

func TestGraphiQL(t *testing.T) {
	get := func(h http.Handler, target, accept string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("GET", target, nil)
		if accept != "" {
			req.Header.Set("Accept", accept)
		}
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w
	}

	h := newTestHandler(t, sqlrt.NewRegistry())
	w := get(h, "/graphql", "text/html,application/xhtml+xml")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))
	require.Contains(t, w.Body.String(), "url: '/graphql'")

	w = get(h, "/graphql?query="+url.QueryEscape("{ hello }"), "text/html")
	require.Equal(t, map[string]any{"data": map[string]any{"hello": "world"}}, decode(t, w))

	w = get(h, "/graphql", "application/json")
	require.Equal(t, http.StatusBadRequest, w.Code)

	off := newTestHandler(t, sqlrt.NewRegistry(), WithGraphiQL(false))
	w = get(off, "/graphql", "text/html")
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.NotEmpty(t, decode(t, w)["errors"])
}

func TestMutationOverGetIsRejected(t *testing.T) {
	sch, err := schema.BuildFromSDL(`type Query { hello: String } type Mutation { bump: Int }`)
	require.NoError(t, err)
	var bumps int
	reg := sqlrt.NewRegistry()
	reg.Bind("Query", "hello", func(*sqlrt.RequestContext, any, map[string]any) (any, error) { return "world", nil })
	reg.Bind("Mutation", "bump", func(*sqlrt.RequestContext, any, map[string]any) (any, error) {
		bumps++
		return bumps, nil
	})
	rt, err := sqlrt.NewRuntime(sch, nil, reg)
	require.NoError(t, err)
	h, err := New(rt, sch)
	require.NoError(t, err)

	for _, target := range []string{
		"/graphql?query=" + url.QueryEscape("mutation { bump }"),
		"/graphql?operationName=B&query=" + url.QueryEscape("query A { hello } mutation B { bump }"),
	} {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest("GET", target, nil))
		require.Equal(t, http.StatusMethodNotAllowed, w.Code, target)
		require.Equal(t, "POST", w.Header().Get("Allow"))
		require.Equal(t, "mutations are not allowed over GET", decode(t, w)["errors"].([]any)[0].(map[string]any)["message"])
	}
	require.Zero(t, bumps)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/graphql?operationName=A&query="+url.QueryEscape("query A { hello } mutation B { bump }"), nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, map[string]any{"data": map[string]any{"hello": "world"}}, decode(t, w))

	w = post(h, `{"query":"mutation { bump }"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, map[string]any{"data": map[string]any{"bump": float64(1)}}, decode(t, w))
}
