// Package otel exports traces and metrics derived from bus events.
package otel

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	eventbus "github.com/hanpama/usergraph/internal/eventbus"
	events "github.com/hanpama/usergraph/internal/events"
	reqid "github.com/hanpama/usergraph/internal/reqid"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const instrumentationName = "github.com/hanpama/usergraph"

// StatsSource reports connection pool statistics. *store.Pool implements it.
type StatsSource interface {
	Stats() sql.DBStats
}

type Options struct {
	// Endpoint is the OTLP gRPC collector address. Empty disables telemetry.
	Endpoint string
	Service  string
	// Pool, when set, is observed for the db.pool.* gauges.
	Pool StatsSource
	// MetricInterval is the export period. Defaults to one minute.
	MetricInterval time.Duration
}

// Setup configures OpenTelemetry and attaches eventbus subscribers.
// If Endpoint is empty, no telemetry is configured.
func Setup(ctx context.Context, opt Options) (shutdown func(context.Context) error, err error) {
	if opt.Endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}
	if opt.MetricInterval <= 0 {
		opt.MetricInterval = time.Minute
	}
	res := resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName(opt.Service))
	dial := grpc.WithTransportCredentials(insecure.NewCredentials())

	texp, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(opt.Endpoint),
		otlptracegrpc.WithDialOption(dial))
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(texp), sdktrace.WithResource(res))

	mexp, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(opt.Endpoint),
		otlpmetricgrpc.WithDialOption(dial))
	if err != nil {
		return nil, errors.Join(err, tp.Shutdown(ctx))
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(mexp, sdkmetric.WithInterval(opt.MetricInterval))),
		sdkmetric.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)

	detach, err := Instrument(tp, mp, opt.Pool)
	if err != nil {
		return nil, errors.Join(err, tp.Shutdown(ctx), mp.Shutdown(ctx))
	}
	return func(ctx context.Context) error {
		detach()
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}, nil
}

// Instrument subscribes span and metric recording to the global bus. The
// returned func detaches the subscribers and the pool gauge callback.
func Instrument(tp trace.TracerProvider, mp metric.MeterProvider, pool StatsSource) (detach func(), err error) {
	meter := mp.Meter(instrumentationName)
	s := &subscriber{tracer: tp.Tracer(instrumentationName)}
	s.queryDuration, err = meter.Float64Histogram("sql.query.duration",
		metric.WithUnit("ms"),
		metric.WithDescription("Duration of statements sent to the store."))
	if err != nil {
		return nil, err
	}

	var reg metric.Registration
	if pool != nil {
		if reg, err = registerPoolGauges(meter, pool); err != nil {
			return nil, err
		}
	}

	unsubs := s.register()
	return func() {
		for _, u := range unsubs {
			u()
		}
		if reg != nil {
			_ = reg.Unregister()
		}
	}, nil
}

func registerPoolGauges(meter metric.Meter, pool StatsSource) (metric.Registration, error) {
	open, err := meter.Int64ObservableGauge("db.pool.open", metric.WithDescription("Open connections."))
	if err != nil {
		return nil, err
	}
	inUse, err := meter.Int64ObservableGauge("db.pool.in_use", metric.WithDescription("Connections checked out."))
	if err != nil {
		return nil, err
	}
	idle, err := meter.Int64ObservableGauge("db.pool.idle", metric.WithDescription("Idle connections."))
	if err != nil {
		return nil, err
	}
	waits, err := meter.Int64ObservableCounter("db.pool.wait_count", metric.WithDescription("Checkouts that had to wait."))
	if err != nil {
		return nil, err
	}
	return meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		st := pool.Stats()
		o.ObserveInt64(open, int64(st.OpenConnections))
		o.ObserveInt64(inUse, int64(st.InUse))
		o.ObserveInt64(idle, int64(st.Idle))
		o.ObserveInt64(waits, st.WaitCount)
		return nil
	}, open, inUse, idle, waits)
}

type subscriber struct {
	tracer        trace.Tracer
	queryDuration metric.Float64Histogram
	httpSpans     sync.Map // rid -> trace.Span
	gqlSpans      sync.Map // rid -> trace.Span
	sqlSpans      sync.Map // rid -> trace.Span
}

// parent returns ctx carrying the innermost open span of the request.
func (s *subscriber) parent(ctx context.Context, rid string) context.Context {
	if v, ok := s.gqlSpans.Load(rid); ok {
		return trace.ContextWithSpan(ctx, v.(trace.Span))
	}
	if v, ok := s.httpSpans.Load(rid); ok {
		return trace.ContextWithSpan(ctx, v.(trace.Span))
	}
	return ctx
}

func endSpan(m *sync.Map, rid string, fn func(trace.Span)) {
	v, ok := m.LoadAndDelete(rid)
	if !ok {
		return
	}
	span := v.(trace.Span)
	fn(span)
	span.End()
}

func (s *subscriber) register() []func() {
	return []func(){
		eventbus.Subscribe(func(ctx context.Context, e events.HTTPStart) {
			rid, _ := reqid.FromContext(ctx)
			_, span := s.tracer.Start(ctx, "http.request")
			span.SetAttributes(
				semconv.HTTPMethodKey.String(e.Request.Method),
				attribute.String("http.target", e.Request.URL.Path),
				attribute.String("request.id", rid),
			)
			s.httpSpans.Store(rid, span)
		}),

		eventbus.Subscribe(func(ctx context.Context, e events.HTTPFinish) {
			rid, _ := reqid.FromContext(ctx)
			endSpan(&s.httpSpans, rid, func(span trace.Span) {
				span.SetAttributes(
					semconv.HTTPStatusCodeKey.Int(e.Status),
					attribute.Int("graphql.operations", e.Operations),
				)
			})
		}),

		eventbus.Subscribe(func(ctx context.Context, e events.GraphQLStart) {
			rid, _ := reqid.FromContext(ctx)
			parent := ctx
			if v, ok := s.httpSpans.Load(rid); ok {
				parent = trace.ContextWithSpan(ctx, v.(trace.Span))
			}
			_, span := s.tracer.Start(parent, "graphql.operation")
			span.SetAttributes(
				attribute.String("graphql.operation.name", e.OperationName),
				attribute.String("graphql.operation.type", e.OperationType),
			)
			s.gqlSpans.Store(rid, span)
		}),

		eventbus.Subscribe(func(ctx context.Context, e events.GraphQLFinish) {
			rid, _ := reqid.FromContext(ctx)
			endSpan(&s.gqlSpans, rid, func(span trace.Span) {
				span.SetAttributes(attribute.Int("graphql.error_count", len(e.Errors)))
				if len(e.Errors) > 0 {
					span.SetStatus(codes.Error, e.Errors[0].Error())
				}
			})
		}),

		eventbus.Subscribe(func(ctx context.Context, e events.ConnAcquire) {
			rid, _ := reqid.FromContext(ctx)
			span := trace.SpanFromContext(s.parent(ctx, rid))
			attrs := []attribute.KeyValue{
				attribute.String("db.system", e.Driver),
				attribute.Int64("pool.wait_ms", e.Wait.Milliseconds()),
			}
			if e.Err != nil {
				attrs = append(attrs, attribute.String("error", e.Err.Error()))
			}
			span.AddEvent("pool.acquire", trace.WithAttributes(attrs...))
		}),

		eventbus.Subscribe(func(ctx context.Context, e events.SQLQueryStart) {
			rid, _ := reqid.FromContext(ctx)
			_, span := s.tracer.Start(s.parent(ctx, rid), "sql.query", trace.WithSpanKind(trace.SpanKindClient))
			span.SetAttributes(
				attribute.String("db.system", e.Driver),
				attribute.String("db.statement", e.Query),
			)
			s.sqlSpans.Store(rid, span)
		}),

		eventbus.Subscribe(func(ctx context.Context, e events.SQLQueryFinish) {
			rid, _ := reqid.FromContext(ctx)
			endSpan(&s.sqlSpans, rid, func(span trace.Span) {
				if e.Err != nil {
					span.RecordError(e.Err)
					span.SetStatus(codes.Error, e.Err.Error())
				}
			})
			s.queryDuration.Record(ctx, float64(e.Duration)/float64(time.Millisecond),
				metric.WithAttributes(
					attribute.String("db.system", e.Driver),
					attribute.Bool("error", e.Err != nil),
				))
		}),
	}
}
