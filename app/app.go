// Package app serves a routing tree over HTTP.
//
// New solves the dependency graph of every operation up front, so binder
// and graph configuration errors surface before the first request:
//
//	a, err := app.New(router, app.WithLogger(logger))
//	if err != nil {
//		return err
//	}
//	if err := a.Start(ctx); err != nil {
//		return err
//	}
//	defer a.Close()
//
//	http.ListenAndServe(":8080", a)
//
// Each request enters a connection scope and an endpoint scope below the
// app scope, resolves the operation graph and renders the handler result.
package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/vitalvas/xpresso/binder"
	"github.com/vitalvas/xpresso/di"
	"github.com/vitalvas/xpresso/docs"
	"github.com/vitalvas/xpresso/openapi"
	"github.com/vitalvas/xpresso/routing"
)

// ErrNotStarted is returned by Close when Start was never called.
var ErrNotStarted = errors.New("app not started")

// Lifespan runs once when the app scope is entered. Values bound or
// deferred on st live until Close.
type Lifespan func(ctx context.Context, st *di.State) error

// Option configures an App.
type Option func(*App)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *App) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithConfig replaces the default configuration.
func WithConfig(cfg Config) Option {
	return func(a *App) {
		a.cfg = cfg
	}
}

// WithDependencies adds dependencies resolved for every operation before
// router and operation dependencies.
func WithDependencies(deps ...di.Dependency) Option {
	return func(a *App) {
		a.deps = append(a.deps, deps...)
	}
}

// WithExecutor sets the executor used by operations that do not choose
// one. Defaults to di.Sequential.
func WithExecutor(ex di.Executor) Option {
	return func(a *App) {
		if ex != nil {
			a.executor = ex
		}
	}
}

// WithMiddleware wraps the app handler. The first middleware is the
// outermost.
func WithMiddleware(mw ...Middleware) Option {
	return func(a *App) {
		a.middleware = append(a.middleware, mw...)
	}
}

// WithOverrides replaces dependencies in every operation graph.
func WithOverrides(o *di.Overrides) Option {
	return func(a *App) {
		a.overrides = o
	}
}

// WithServers lists servers in the OpenAPI document.
func WithServers(servers ...openapi.Server) Option {
	return func(a *App) {
		a.servers = append(a.servers, servers...)
	}
}

// WithTags describes tags in the OpenAPI document.
func WithTags(tags ...openapi.Tag) Option {
	return func(a *App) {
		a.tags = append(a.tags, tags...)
	}
}

// WithLifespan registers a hook run by Start.
func WithLifespan(fn Lifespan) Option {
	return func(a *App) {
		a.lifespan = append(a.lifespan, fn)
	}
}

type endpoint struct {
	graph    *di.Graph
	executor di.Executor
}

// App is an http.Handler serving a router.
type App struct {
	cfg        Config
	logger     *zap.Logger
	router     *routing.Router
	deps       []di.Dependency
	overrides  *di.Overrides
	executor   di.Executor
	middleware []Middleware
	lifespan   []Lifespan
	servers    []openapi.Server
	tags       []openapi.Tag
	opts       []Option

	table     *routing.Table
	endpoints map[*routing.Route]endpoint
	handler   http.Handler

	mu    sync.Mutex
	state *di.State

	docOnce sync.Once
	doc     *openapi.Document
	docErr  error
}

// New returns an App serving r. Invalid routes, binders or graphs are
// reported as configuration errors.
func New(r *routing.Router, opts ...Option) (*App, error) {
	if r == nil {
		return nil, binder.ConfigError("nil router")
	}

	a := &App{
		cfg:      DefaultConfig(),
		logger:   zap.NewNop(),
		router:   r,
		executor: di.Sequential{},
		opts:     opts,
	}

	for _, opt := range opts {
		opt(a)
	}

	a.logger = a.logger.Named("xpresso")

	routes, err := r.Routes()
	if err != nil {
		return nil, err
	}

	a.endpoints = make(map[*routing.Route]endpoint, len(routes))

	for _, rt := range routes {
		roots := make([]di.Dependency, 0, len(a.deps)+len(rt.Dependencies))
		roots = append(roots, a.deps...)
		roots = append(roots, rt.Dependencies...)

		g, err := di.Solve(roots, a.overrides)
		if err != nil {
			return nil, errors.Wrapf(err, "%s %s", rt.Method, rt.Template)
		}

		ex := rt.Operation.GetExecutor()
		if ex == nil {
			ex = a.executor
		}

		a.endpoints[rt] = endpoint{graph: g, executor: ex}
	}

	a.table = routing.NewTable(routes)

	if err := a.mountDocs(); err != nil {
		return nil, err
	}

	a.handler = a.buildHandler()

	a.logger.Debug("app assembled", zap.Int("routes", len(routes)))

	return a, nil
}

// Override returns a new App serving the same router with o applied on top
// of the current overrides. The new App has its own app scope and must be
// started separately.
func (a *App) Override(o *di.Overrides) (*App, error) {
	opts := append(append([]Option(nil), a.opts...), WithOverrides(a.overrides.Merge(o)))

	return New(a.router, opts...)
}

// Config returns the app configuration.
func (a *App) Config() Config { return a.cfg }

// Routes returns the flattened routes in match order.
func (a *App) Routes() []*routing.Route { return a.table.Routes() }

// Start enters the app scope and runs the lifespan hooks in order. It can
// be called once.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != nil {
		return errors.New("app already started")
	}

	st, err := di.Enter(di.ScopeApp, nil)
	if err != nil {
		return err
	}

	for i, fn := range a.lifespan {
		if err := fn(ctx, st); err != nil {
			return errors.CombineErrors(errors.Wrapf(err, "lifespan hook %d", i), st.Close())
		}
	}

	a.state = st

	a.logger.Info("app started", zap.String("title", a.cfg.Title))

	return nil
}

// Close exits the app scope, closing app-scoped values in reverse order.
func (a *App) Close() error {
	a.mu.Lock()
	st := a.state
	a.mu.Unlock()

	if st == nil {
		return ErrNotStarted
	}

	err := st.Close()

	a.logger.Info("app stopped")

	return err
}

func (a *App) appState() (*di.State, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state == nil {
		return nil, ErrNotStarted
	}

	return a.state, nil
}

// OpenAPI returns the document of the router. It is built once.
func (a *App) OpenAPI() (*openapi.Document, error) {
	a.docOnce.Do(func() {
		b := docs.Builder{
			Info: openapi.Info{
				Title:       a.cfg.Title,
				Version:     a.cfg.Version,
				Description: a.cfg.Description,
			},
			Servers:      a.servers,
			Tags:         a.tags,
			Dependencies: a.deps,
			Overrides:    a.overrides,
		}

		a.doc, a.docErr = b.BuildRoutes(a.table.Routes())
	})

	return a.doc, a.docErr
}

func (a *App) mountDocs() error {
	ui, err := a.cfg.docsUI()
	if err != nil {
		return err
	}

	seen := map[string]bool{}
	for _, u := range []string{a.cfg.OpenAPIURL, a.cfg.OpenAPIYAMLURL, a.cfg.DocsURL} {
		if u == "" {
			continue
		}

		if u[0] != '/' || strings.ContainsAny(u, "{}") {
			return binder.ConfigError("invalid docs URL %q", u)
		}

		if seen[u] {
			return binder.ConfigError("docs URL %q used twice", u)
		}

		seen[u] = true
	}

	mux := http.NewServeMux()
	mux.Handle("/", http.HandlerFunc(a.serveRoute))

	src := openapi.Source(a.OpenAPI)

	if a.cfg.OpenAPIURL != "" {
		mux.Handle("GET "+a.cfg.OpenAPIURL, openapi.JSONHandler(src))
	}

	if a.cfg.OpenAPIYAMLURL != "" {
		mux.Handle("GET "+a.cfg.OpenAPIYAMLURL, openapi.YAMLHandler(src))
	}

	if a.cfg.DocsURL != "" && a.cfg.OpenAPIURL != "" {
		mux.Handle("GET "+a.cfg.DocsURL, openapi.DocsHandler(openapi.DocsConfig{
			UI:      ui,
			Title:   a.cfg.Title,
			SpecURL: a.cfg.OpenAPIURL,
		}))
	}

	a.handler = mux

	return nil
}

func (a *App) buildHandler() http.Handler {
	h := a.logRequests(a.handler)

	for i := len(a.middleware) - 1; i >= 0; i-- {
		h = a.middleware[i](h)
	}

	h = Recovery(a.logger)(h)

	return RequestID(RequestIDConfig{
		HeaderName:    a.cfg.RequestIDHeader,
		TrustIncoming: a.cfg.TrustRequestID,
	})(h)
}

func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.handler.ServeHTTP(w, r)
}

func (a *App) serveRoute(w http.ResponseWriter, r *http.Request) {
	rt, vars, err := a.table.Match(r.Method, r.URL.Path)
	if err != nil {
		var notAllowed *routing.MethodNotAllowedError
		if errors.As(err, &notAllowed) {
			for _, m := range notAllowed.Allow {
				w.Header().Add("Allow", m)
			}

			writeJSON(w, http.StatusMethodNotAllowed, detail{Detail: "Method Not Allowed"})

			return
		}

		writeJSON(w, http.StatusNotFound, detail{Detail: "Not Found"})

		return
	}

	if r.Method == http.MethodHead {
		w = bodiless{w}
	}

	if err := a.call(w, r, rt, vars); err != nil {
		a.writeError(w, r, err)
	}
}

// call runs one operation inside fresh connection and endpoint scopes.
func (a *App) call(w http.ResponseWriter, r *http.Request, rt *routing.Route, vars map[string]string) error {
	ctx := r.Context()
	ep := a.endpoints[rt]

	appState, err := a.appState()
	if err != nil {
		return err
	}

	connState, err := di.Enter(di.ScopeConnection, appState)
	if err != nil {
		return err
	}
	defer a.closeScope(connState)

	conn := binder.NewConnection(r, vars, binder.WithMaxMemory(a.cfg.MaxMultipartMemory))
	connState.Defer(conn.Close)

	if err := connState.Bind(binder.ConnectionDep, conn); err != nil {
		return err
	}

	endpointState, err := di.Enter(di.ScopeEndpoint, connState)
	if err != nil {
		return err
	}
	defer a.closeScope(endpointState)

	meta := routing.NewResponseMeta()
	if err := endpointState.Bind(routing.ResponseDep, meta); err != nil {
		return err
	}

	vals, err := ep.graph.Execute(ctx, endpointState, ep.executor)
	if err != nil {
		return err
	}

	result, err := rt.Operation.Handler()(ctx, vals)
	if err != nil {
		return err
	}

	return a.render(w, r, rt.Operation, meta, result)
}

func (a *App) closeScope(st *di.State) {
	if err := st.Close(); err != nil {
		a.logger.Warn("scope cleanup failed", zap.Stringer("scope", st.Scope()), zap.Error(err))
	}
}

func (a *App) render(w http.ResponseWriter, r *http.Request, op *routing.Operation, meta *routing.ResponseMeta, result any) error {
	meta.Apply(w.Header())

	status := meta.Status()
	if status == 0 {
		status = op.SuccessStatus()
	}

	switch v := result.(type) {
	case routing.Responder:
		return v.WriteResponse(w, r)
	case routing.NoContent, *routing.NoContent:
		w.WriteHeader(status)
		return nil
	}

	writeJSON(w, status, result)

	return nil
}

type detail struct {
	Detail any `json:"detail"`
}

func (a *App) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		valErr  *binder.ValidationError
		httpErr *binder.HTTPError
	)

	switch {
	case errors.As(err, &valErr):
		writeJSON(w, http.StatusUnprocessableEntity, detail{Detail: valErr.Errors})
	case errors.As(err, &httpErr):
		for k, vs := range httpErr.Headers {
			for _, v := range vs {
				w.Header().Add(k, v)
			}
		}

		writeJSON(w, httpErr.Status, detail{Detail: httpErr.Detail})
	case errors.Is(err, context.Canceled) && r.Context().Err() != nil:
		a.logger.Debug("request canceled", zap.String("path", r.URL.Path))
	default:
		a.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", RequestIDFromContext(r.Context())),
			zap.Error(err),
		)

		writeJSON(w, http.StatusInternalServerError, detail{Detail: http.StatusText(http.StatusInternalServerError)})
	}
}

// writeJSON encodes v and writes it with code. Encoding failures become a
// plain 500.
func writeJSON(w http.ResponseWriter, code int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(buf.Bytes())
}

// bodiless drops the body of HEAD responses.
type bodiless struct {
	http.ResponseWriter
}

func (b bodiless) Write(p []byte) (int, error) { return len(p), nil }

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}

	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(p []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}

	return s.ResponseWriter.Write(p)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter { return s.ResponseWriter }

func (a *App) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.logger.Core().Enabled(zap.DebugLevel) {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}

		next.ServeHTTP(rec, r)

		a.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", RequestIDFromContext(r.Context())),
		)
	})
}
