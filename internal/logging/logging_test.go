package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hanpama/usergraph/internal/eventbus"
	"github.com/hanpama/usergraph/internal/events"
	"github.com/hanpama/usergraph/internal/reqid"
)

func TestNew(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(&buf, "warn", "json")
	require.NoError(t, err)
	l.Info("hidden")
	l.Warn("shown", "k", 1)
	require.NotContains(t, buf.String(), "hidden")
	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	require.Equal(t, "shown", rec["msg"])

	_, err = New(&buf, "loud", "text")
	require.Error(t, err)
	_, err = New(&buf, "info", "xml")
	require.Error(t, err)
}

func records(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var rec map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &rec))
		out = append(out, rec)
	}
	return out
}

func TestSubscribeLevels(t *testing.T) {
	eventbus.Use(eventbus.New())
	t.Cleanup(func() { eventbus.Use(nil) })

	var buf bytes.Buffer
	l, err := New(&buf, "debug", "json")
	require.NoError(t, err)
	unsubscribe := Subscribe(l, Options{SlowQuery: time.Second})

	ctx := reqid.WithID(context.Background(), "r1")
	eventbus.Publish(ctx, events.HTTPFinish{Request: httptest.NewRequest("POST", "/graphql", nil), Status: 200})
	eventbus.Publish(ctx, events.GraphQLFinish{OperationName: "Q"})
	eventbus.Publish(ctx, events.GraphQLFinish{OperationName: "Q", Errors: []error{errors.New("bad")}})
	eventbus.Publish(ctx, events.SQLQueryFinish{Query: "SELECT\n  1", Duration: time.Millisecond})
	eventbus.Publish(ctx, events.SQLQueryFinish{Query: "SELECT 2", Duration: 2 * time.Second})
	eventbus.Publish(ctx, events.SQLQueryFinish{Query: "SELECT 3", Err: errors.New("boom")})
	eventbus.Publish(ctx, events.ConnAcquire{Driver: "sqlite3"})
	eventbus.Publish(ctx, events.ConnAcquire{Driver: "sqlite3", Err: errors.New("exhausted")})

	recs := records(t, &buf)
	require.Len(t, recs, 7)
	levels := make([]string, len(recs))
	for i, r := range recs {
		levels[i] = r["level"].(string)
		require.Equal(t, "r1", r["request_id"])
	}
	require.Equal(t, []string{"INFO", "INFO", "WARN", "DEBUG", "WARN", "ERROR", "WARN"}, levels)
	require.Equal(t, "SELECT 1", recs[3]["query"])

	unsubscribe()
	buf.Reset()
	eventbus.Publish(ctx, events.GraphQLFinish{})
	require.Empty(t, buf.String())
}
