package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/hanpama/usergraph/internal/eventbus"
	"github.com/hanpama/usergraph/internal/executor"
	"github.com/hanpama/usergraph/internal/introspection"
	"github.com/hanpama/usergraph/internal/logging"
	"github.com/hanpama/usergraph/internal/migrations"
	"github.com/hanpama/usergraph/internal/otel"
	"github.com/hanpama/usergraph/internal/schema"
	"github.com/hanpama/usergraph/internal/server"
	"github.com/hanpama/usergraph/internal/sqlrt"
	"github.com/hanpama/usergraph/internal/store"
	"github.com/hanpama/usergraph/internal/users"
)

// CLI is the usergraph command line.
type CLI struct {
	LogLevel  string `help:"Log level: debug, info, warn, error." default:"info" env:"LOG_LEVEL"`
	LogFormat string `help:"Log format: text or json." default:"text" enum:"text,json" env:"LOG_FORMAT"`

	Serve   ServeCmd   `cmd:"" help:"Serve the GraphQL endpoint over HTTP."`
	Migrate MigrateCmd `cmd:"" help:"Manage the store schema."`
	SDL     SDLCmd     `cmd:"" name:"sdl" help:"Print the GraphQL schema."`
}

// App is bound into every command's Run.
type App struct {
	Ctx    context.Context
	Logger *slog.Logger
	Stdout io.Writer
}

type dbFlags struct {
	DatabaseURL string `name:"database-url" help:"Store URL (postgres://, mysql://, sqlite3://)." env:"DATABASE_URL" required:""`
}

type ServeCmd struct {
	DB dbFlags `embed:""`

	Addr               string        `help:"HTTP listen address." default:":8080" env:"ADDR"`
	PoolMaxConns       int           `help:"Maximum open store connections." default:"10" env:"POOL_MAX_CONNS"`
	PoolMinConns       int           `help:"Connections opened at startup." default:"1" env:"POOL_MIN_CONNS"`
	PoolAcquireTimeout time.Duration `help:"Longest wait for a free connection." default:"5s" env:"POOL_ACQUIRE_TIMEOUT"`
	QueryTimeout       time.Duration `help:"Per-statement timeout, 0 for none." default:"0s" env:"QUERY_TIMEOUT"`
	RequestTimeout     time.Duration `help:"Per-request timeout." default:"10s" env:"REQUEST_TIMEOUT"`
	Pretty             bool          `help:"Pretty-print JSON responses."`
	CORSOrigin         []string      `name:"cors-origin" help:"Allowed CORS origin. Repeatable." sep:"none"`
	MaxBodyBytes       int64         `help:"Request body limit in bytes, 0 for none." default:"1048576"`
	Migrate            bool          `help:"Apply pending migrations before serving."`
	Introspection      bool          `help:"Answer __schema and __type queries." default:"true" negatable:""`
	GraphiQL           bool          `name:"graphiql" help:"Serve the GraphiQL IDE to browsers on GET /graphql." default:"true" negatable:""`
	SlowQuery          time.Duration `help:"Log statements slower than this at warn." default:"200ms"`
	OtelEndpoint       string        `name:"otel-endpoint" help:"OTLP gRPC collector endpoint." env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OtelService        string        `name:"otel-service" help:"OpenTelemetry service name." default:"usergraph"`
}

func (c *ServeCmd) storeConfig() store.Config {
	return store.Config{
		URL:            c.DB.DatabaseURL,
		MaxConns:       c.PoolMaxConns,
		MinConns:       c.PoolMinConns,
		AcquireTimeout: c.PoolAcquireTimeout,
		QueryTimeout:   c.QueryTimeout,
	}
}

func (c *ServeCmd) serverOptions() []server.Option {
	opts := []server.Option{
		server.WithTimeout(c.RequestTimeout),
		server.WithMaxBodyBytes(c.MaxBodyBytes),
		server.WithGraphiQL(c.GraphiQL),
	}
	if c.Pretty {
		opts = append(opts, server.WithPretty())
	}
	if len(c.CORSOrigin) > 0 {
		opts = append(opts, server.WithCORS(c.CORSOrigin...))
	}
	return opts
}

func (c *ServeCmd) Run(app *App) error {
	ctx := app.Ctx
	log := app.Logger
	defer logging.Subscribe(log, logging.Options{SlowQuery: c.SlowQuery})()

	if c.Migrate {
		if err := migrations.Up(ctx, c.DB.DatabaseURL, log); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	pool, err := store.Open(ctx, c.storeConfig())
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer pool.Close()

	shutdown, err := otel.Setup(ctx, otel.Options{Endpoint: c.OtelEndpoint, Service: c.OtelService, Pool: pool})
	if err != nil {
		return fmt.Errorf("otel setup: %w", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	mux, err := newMux(pool, c.Introspection, c.serverOptions()...)
	if err != nil {
		return err
	}

	srv := &http.Server{Addr: c.Addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	log.Info("GraphQL server listening", "addr", c.Addr, "store", pool.Dialect().String())

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// newMux wires the users schema to pool and mounts /graphql and /healthz.
func newMux(pool *store.Pool, introspect bool, opts ...server.Option) (*http.ServeMux, error) {
	sch, err := users.Schema()
	if err != nil {
		return nil, fmt.Errorf("build schema: %w", err)
	}
	reg := sqlrt.NewRegistry()
	users.Register(reg, users.NewRepository(pool))
	rt, err := sqlrt.NewRuntime(sch, pool, reg)
	if err != nil {
		return nil, fmt.Errorf("bind resolvers: %w", err)
	}
	var runtime executor.Runtime = rt
	if introspect {
		runtime, sch = introspection.Wrap(rt, sch)
	}
	h, err := server.New(runtime, sch, opts...)
	if err != nil {
		return nil, fmt.Errorf("server init: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/graphql", h)
	mux.Handle("GET /healthz", server.Health(pool, 2*time.Second))
	return mux, nil
}

type MigrateCmd struct {
	Up      MigrateUpCmd      `cmd:"" help:"Apply every pending migration."`
	Down    MigrateDownCmd    `cmd:"" help:"Roll back migrations."`
	Version MigrateVersionCmd `cmd:"" help:"Print the applied schema version."`
}

type MigrateUpCmd struct {
	DB dbFlags `embed:""`
}

func (c *MigrateUpCmd) Run(app *App) error {
	return migrations.Up(app.Ctx, c.DB.DatabaseURL, app.Logger)
}

type MigrateDownCmd struct {
	DB    dbFlags `embed:""`
	Steps int     `arg:"" optional:"" default:"1" help:"Number of migrations to roll back."`
}

func (c *MigrateDownCmd) Run(app *App) error {
	return migrations.Down(app.Ctx, c.DB.DatabaseURL, c.Steps, app.Logger)
}

type MigrateVersionCmd struct {
	DB dbFlags `embed:""`
}

func (c *MigrateVersionCmd) Run(app *App) error {
	v, dirty, err := migrations.Version(app.Ctx, c.DB.DatabaseURL, app.Logger)
	if err != nil {
		return err
	}
	if dirty {
		_, err = fmt.Fprintf(app.Stdout, "%d (dirty)\n", v)
		return err
	}
	_, err = fmt.Fprintf(app.Stdout, "%d\n", v)
	return err
}

type SDLCmd struct{}

func (c *SDLCmd) Run(app *App) error {
	sch, err := users.Schema()
	if err != nil {
		return err
	}
	_, err = io.WriteString(app.Stdout, schema.Render(sch))
	return err
}

func newParser(cli *CLI, stdout, stderr io.Writer, exit func(int)) (*kong.Kong, error) {
	return kong.New(cli,
		kong.Name("usergraph"),
		kong.Description("GraphQL gateway over a relational user store"),
		kong.UsageOnError(),
		kong.Writers(stdout, stderr),
		kong.Exit(exit),
	)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cli := new(CLI)
	parser, err := newParser(cli, stdout, stderr, os.Exit)
	if err != nil {
		return err
	}
	kctx, err := parser.Parse(args)
	if err != nil {
		return err
	}
	logger, err := logging.New(stderr, cli.LogLevel, cli.LogFormat)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	eventbus.Use(eventbus.New())
	return kctx.Run(&App{Ctx: ctx, Logger: logger, Stdout: stdout})
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	kong.Must(new(CLI), kong.Name("usergraph")).FatalIfErrorf(err)
}
