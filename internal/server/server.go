package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/mohammad-safakhou/pharmaverse/config"
	"github.com/mohammad-safakhou/pharmaverse/internal/agent/core"
	"github.com/mohammad-safakhou/pharmaverse/internal/budget"
	"github.com/mohammad-safakhou/pharmaverse/internal/capability"
	"github.com/mohammad-safakhou/pharmaverse/internal/queue/streams"
	"github.com/mohammad-safakhou/pharmaverse/internal/report"
	"github.com/mohammad-safakhou/pharmaverse/internal/runtime"
	"github.com/mohammad-safakhou/pharmaverse/internal/store"
	"github.com/mohammad-safakhou/pharmaverse/session"
	"github.com/mohammad-safakhou/pharmaverse/session/inmemory"
	"github.com/mohammad-safakhou/pharmaverse/session/redisstore"
	"github.com/redis/go-redis/v9"
)

// App is the fully wired service.
type App struct {
	Echo      *echo.Echo
	Orch      *core.Orchestrator
	Sessions  session.Store
	Hub       *streams.Broadcaster
	Reports   *report.Compiler
	Events    *streams.Publisher
	Telemetry *runtime.Telemetry
	closers   []func() error
}

// HTTPError is the body of every error response.
type HTTPError struct {
	Error string `json:"error"`
}

// NewEcho returns an echo instance with the unified JSON error handler.
func NewEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, HTTPError{Error: msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type"},
	}))
	return e
}

// Build wires stores, workers, the orchestrator and the HTTP routes from cfg.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	app := &App{}
	tel, err := runtime.SetupTelemetry(ctx, cfg.Telemetry, runtime.TelemetryOptions{ServiceVersion: Version})
	if err != nil {
		return nil, err
	}
	app.Telemetry = tel

	var rdb *redis.Client
	if cfg.Sessions.Backend == "redis" || cfg.Streams.MirrorEnabled {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr(), Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis connection failed (%s): %w", cfg.Redis.Addr(), err)
		}
		app.closers = append(app.closers, rdb.Close)
	}

	switch cfg.Sessions.Backend {
	case "redis":
		app.Sessions = redisstore.New(rdb, cfg.Sessions.Prefix, cfg.Sessions.TTL)
	default:
		app.Sessions = inmemory.NewInMemorySessionStore()
	}

	hubOpts := []streams.Option{streams.WithLogger(log.New(log.Writer(), "[BROADCAST] ", log.LstdFlags))}
	if cfg.Streams.MirrorEnabled {
		app.Events = streams.NewPublisher(rdb, cfg.Streams.StreamPrefix, cfg.Streams.MaxLen)
		hubOpts = append(hubOpts, streams.WithMirror(app.Events))
	}
	app.Hub = streams.NewBroadcaster(app.Sessions.Get, hubOpts...)

	var registry report.Registry
	switch cfg.Reports.Backend {
	case "postgres":
		dsn, err := cfg.Postgres.DSN()
		if err != nil {
			return nil, err
		}
		st, err := store.NewWithDSN(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("postgres connection failed: %w", err)
		}
		app.closers = append(app.closers, st.Close)
		registry = st
	default:
		registry = report.NewMemoryRegistry()
	}
	renderer, err := report.NewRenderer(cfg.Reports.Renderer, cfg.Reports.RenderTimeout, cfg.Reports.ChromePath)
	if err != nil {
		return nil, err
	}
	index, err := report.NewIndex()
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, index.Close)
	if n, err := index.Reindex(ctx, registry); err != nil {
		log.Printf("report index rebuild failed: %v", err)
	} else if n > 0 {
		log.Printf("indexed %d stored reports", n)
	}
	app.Reports = report.NewCompiler(registry, renderer,
		report.WithIndex(index),
		report.WithDownloadPrefix(cfg.Reports.DownloadPrefix),
	)

	llm := core.NewOpenAIProvider(cfg.LLM)
	provider := capability.NewHTTPProvider(cfg.Capability.BaseURL,
		capability.NewHTTPClient(cfg.Capability.Timeout, cfg.Capability.Retries, cfg.Capability.Backoff))
	descs := core.DefaultDescriptors()
	workers, err := core.NewWorkers(descs, llm, provider, nil)
	if err != nil {
		return nil, err
	}
	app.Orch, err = core.NewOrchestrator(core.Deps{
		Store:       app.Sessions,
		Broadcaster: app.Hub,
		Planner:     core.NewPlanner(llm, descs, nil),
		Workers:     workers,
		Deriver:     core.NewDeriver(llm, nil),
		Compiler:    app.Reports,
		Narrator:    core.NewNarrator(llm, nil),
		RunTimeout:  cfg.General.PipelineTimeout,
		Budget:      budget.Limits{MaxCalls: cfg.LLM.MaxRunCalls, MaxTokens: cfg.LLM.MaxRunTokens},
	})
	if err != nil {
		return nil, err
	}

	app.Echo = NewEcho()
	app.routes(cfg)
	return app, nil
}

func (a *App) routes(cfg *config.Config) {
	e := a.Echo
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(a.Telemetry.MetricsHandler()))

	api := e.Group("/api")
	sh := &SessionsHandler{Orch: a.Orch, Store: a.Sessions, Hub: a.Hub}
	if a.Events != nil {
		sh.Events = a.Events
	}
	sh.Register(api)
	rh := &ReportsHandler{Reports: a.Reports, Sessions: a.Sessions}
	rh.Register(api, e.Group(strings.TrimSuffix(cfg.Reports.DownloadPrefix, "/")))
	wh := &WSHandler{Hub: a.Hub}
	wh.Register(e.Group("/ws"))
	if cfg.Capability.Mock {
		(&capability.MockHandler{}).Register(api)
	}
}

// Close waits for running pipelines and releases connections.
func (a *App) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		a.Orch.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.Telemetry.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Version is reported in telemetry resources.
var Version = "dev"

// Run builds the service and serves until the listener fails.
func Run(cfg *config.Config) error {
	ctx := context.Background()
	if err := MigrateConfigured(cfg, "file://migrations"); err != nil {
		log.Printf("migrations not applied: %v", err)
	}
	app, err := Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := app.Close(shutdownCtx); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}()
	log.Printf("listening on %s", cfg.General.Listen)
	return app.Echo.Start(cfg.General.Listen)
}
