// Package logging builds the process logger and turns bus events into log
// records.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/hanpama/usergraph/internal/eventbus"
	"github.com/hanpama/usergraph/internal/events"
	"github.com/hanpama/usergraph/internal/reqid"
)

// New returns a logger writing to w. format is "text" or "json"; level is
// one of debug, info, warn, error.
func New(w io.Writer, level, format string) (*slog.Logger, error) {
	var lv slog.Level
	if err := lv.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}
	opts := &slog.HandlerOptions{Level: lv}
	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return nil, fmt.Errorf("logging: unknown format %q", format)
}

// Options tunes the event subscribers.
type Options struct {
	// SlowQuery logs statements slower than this at Warn. Zero disables it.
	SlowQuery time.Duration
}

// Subscribe attaches logger to the global bus. The returned func detaches it.
func Subscribe(logger *slog.Logger, opt Options) (unsubscribe func()) {
	l := &subscriber{logger: logger, opt: opt}
	unsubs := []func(){
		eventbus.Subscribe(l.httpFinish),
		eventbus.Subscribe(l.graphqlFinish),
		eventbus.Subscribe(l.sqlFinish),
		eventbus.Subscribe(l.connAcquire),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

type subscriber struct {
	logger *slog.Logger
	opt    Options
}

func requestAttr(ctx context.Context) slog.Attr {
	id, _ := reqid.FromContext(ctx)
	return slog.String("request_id", id)
}

func (l *subscriber) httpFinish(ctx context.Context, e events.HTTPFinish) {
	l.logger.LogAttrs(ctx, slog.LevelInfo, "http request",
		requestAttr(ctx),
		slog.String("method", e.Request.Method),
		slog.String("path", e.Request.URL.Path),
		slog.Int("status", e.Status),
		slog.Int("operations", e.Operations),
		slog.Duration("duration", e.Duration),
	)
}

func (l *subscriber) graphqlFinish(ctx context.Context, e events.GraphQLFinish) {
	attrs := []slog.Attr{
		requestAttr(ctx),
		slog.String("operation", e.OperationName),
		slog.String("type", e.OperationType),
		slog.Duration("duration", e.Duration),
	}
	if len(e.Errors) == 0 {
		l.logger.LogAttrs(ctx, slog.LevelInfo, "graphql operation", attrs...)
		return
	}
	msgs := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		msgs[i] = err.Error()
	}
	attrs = append(attrs, slog.Any("errors", msgs))
	l.logger.LogAttrs(ctx, slog.LevelWarn, "graphql operation failed", attrs...)
}

func (l *subscriber) sqlFinish(ctx context.Context, e events.SQLQueryFinish) {
	attrs := []slog.Attr{
		requestAttr(ctx),
		slog.String("driver", e.Driver),
		slog.String("query", trimQuery(e.Query)),
		slog.Duration("duration", e.Duration),
	}
	switch {
	case e.Err != nil:
		l.logger.LogAttrs(ctx, slog.LevelError, "sql query failed", append(attrs, slog.Any("error", e.Err))...)
	case l.opt.SlowQuery > 0 && e.Duration > l.opt.SlowQuery:
		l.logger.LogAttrs(ctx, slog.LevelWarn, "slow sql query", attrs...)
	default:
		l.logger.LogAttrs(ctx, slog.LevelDebug, "sql query", attrs...)
	}
}

func (l *subscriber) connAcquire(ctx context.Context, e events.ConnAcquire) {
	if e.Err == nil {
		return
	}
	l.logger.LogAttrs(ctx, slog.LevelWarn, "connection acquire failed",
		requestAttr(ctx),
		slog.String("driver", e.Driver),
		slog.Duration("wait", e.Wait),
		slog.Any("error", e.Err),
	)
}

func trimQuery(q string) string {
	q = strings.Join(strings.Fields(q), " ")
	if len(q) > 500 {
		return q[:500] + "..."
	}
	return q
}
