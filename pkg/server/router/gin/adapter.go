// Package gin provides a gin-gonic based implementation of the router.Router interface.
package gin

import (
	"encoding/json"
	"net/http"
	"sync"

	ginpkg "github.com/gin-gonic/gin"

	"github.com/nimburion/storefront/pkg/server/router"
)

// GinRouter implements router.Router using gin-gonic/gin.
type GinRouter struct {
	engine     *ginpkg.Engine
	group      *ginpkg.RouterGroup
	cfg        router.Config
	middleware []router.MiddlewareFunc
	mu         *sync.RWMutex
	options    map[string]struct{}
}

// NewRouter creates a new GinRouter.
//
// Cosa fa: crea un engine gin in release mode senza middleware propri; gli
// errori restituiti dagli handler passano all'ErrorHandler configurato.
// Cosa NON fa: non registra logging o recovery, che arrivano dal pacchetto middleware.
// Esempio minimo: r := gin.NewRouter(router.WithErrorHandler(api.WriteError))
func NewRouter(opts ...router.Option) *GinRouter {
	ginpkg.SetMode(ginpkg.ReleaseMode)
	engine := ginpkg.New()
	engine.ContextWithFallback = true
	return &GinRouter{
		engine:  engine,
		cfg:     router.NewConfig(opts...),
		mu:      &sync.RWMutex{},
		options: make(map[string]struct{}),
	}
}

// GET registers a handler for HTTP GET requests at the specified path.
func (r *GinRouter) GET(path string, handler router.HandlerFunc, middleware ...router.MiddlewareFunc) {
	r.handle(http.MethodGet, path, handler, middleware)
}

// POST registers a handler for HTTP POST requests at the specified path.
func (r *GinRouter) POST(path string, handler router.HandlerFunc, middleware ...router.MiddlewareFunc) {
	r.handle(http.MethodPost, path, handler, middleware)
}

// PUT registers a handler for HTTP PUT requests at the specified path.
func (r *GinRouter) PUT(path string, handler router.HandlerFunc, middleware ...router.MiddlewareFunc) {
	r.handle(http.MethodPut, path, handler, middleware)
}

// DELETE registers a handler for HTTP DELETE requests at the specified path.
func (r *GinRouter) DELETE(path string, handler router.HandlerFunc, middleware ...router.MiddlewareFunc) {
	r.handle(http.MethodDelete, path, handler, middleware)
}

// PATCH registers a handler for HTTP PATCH requests at the specified path.
func (r *GinRouter) PATCH(path string, handler router.HandlerFunc, middleware ...router.MiddlewareFunc) {
	r.handle(http.MethodPatch, path, handler, middleware)
}

// Group creates a route group with common prefix and middleware.
func (r *GinRouter) Group(prefix string, middleware ...router.MiddlewareFunc) router.Router {
	r.mu.RLock()
	combined := append([]router.MiddlewareFunc{}, r.middleware...)
	r.mu.RUnlock()
	combined = append(combined, middleware...)

	var group *ginpkg.RouterGroup
	if r.group == nil {
		group = r.engine.Group(prefix)
	} else {
		group = r.group.Group(prefix)
	}

	return &GinRouter{
		engine:     r.engine,
		group:      group,
		cfg:        r.cfg,
		middleware: combined,
		mu:         r.mu,
		options:    r.options,
	}
}

// Use applies middleware to all routes registered afterwards.
func (r *GinRouter) Use(middleware ...router.MiddlewareFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middleware = append(r.middleware, middleware...)
}

// ServeHTTP implements http.Handler.
func (r *GinRouter) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.engine.ServeHTTP(w, req)
}

func (r *GinRouter) routes() ginpkg.IRoutes {
	if r.group != nil {
		return r.group
	}
	return r.engine
}

func (r *GinRouter) fullPath(path string) string {
	if r.group == nil {
		return path
	}
	return r.group.BasePath() + path
}

func (r *GinRouter) handle(method, path string, h router.HandlerFunc, routeMiddleware []router.MiddlewareFunc) {
	r.mu.RLock()
	global := append([]router.MiddlewareFunc{}, r.middleware...)
	r.mu.RUnlock()

	chain := router.Chain(h, global, routeMiddleware)
	route := r.fullPath(path)
	r.routes().Handle(method, path, func(gc *ginpkg.Context) {
		ctx := newContext(gc, r.cfg.MaxBodyBytes)
		ctx.Set(router.RouteKey, route)
		if err := chain(ctx); err != nil && !ctx.Response().Written() {
			r.cfg.ErrorHandler(ctx, err)
		}
	})
	r.ensureOptionsRoute(path, global)
}

// ensureOptionsRoute answers preflight requests with 204 after running the
// global middleware, so CORS headers set there are returned.
func (r *GinRouter) ensureOptionsRoute(path string, global []router.MiddlewareFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := r.fullPath(path)
	if _, exists := r.options[key]; exists {
		return
	}
	r.options[key] = struct{}{}

	chain := router.Chain(func(c router.Context) error {
		if !c.Response().Written() {
			c.Response().WriteHeader(http.StatusNoContent)
		}
		return nil
	}, global, nil)
	r.routes().Handle(http.MethodOptions, path, func(gc *ginpkg.Context) {
		_ = chain(newContext(gc, r.cfg.MaxBodyBytes))
	})
}

// ginContext adapts gin.Context to router.Context.
type ginContext struct {
	ctx      *ginpkg.Context
	response router.ResponseWriter
	maxBody  int64
}

func newContext(c *ginpkg.Context, maxBody int64) *ginContext {
	return &ginContext{ctx: c, response: &ginResponseWriter{ResponseWriter: c.Writer}, maxBody: maxBody}
}

func (c *ginContext) Request() *http.Request {
	return c.ctx.Request
}

func (c *ginContext) SetRequest(r *http.Request) {
	c.ctx.Request = r
}

func (c *ginContext) Response() router.ResponseWriter {
	return c.response
}

func (c *ginContext) SetResponse(w router.ResponseWriter) {
	c.response = w
}

func (c *ginContext) Param(name string) string {
	return c.ctx.Param(name)
}

func (c *ginContext) Query(name string) string {
	return c.ctx.Query(name)
}

func (c *ginContext) Bind(v interface{}) error {
	return router.DecodeJSON(c.ctx.Request, v, c.maxBody)
}

func (c *ginContext) JSON(code int, v interface{}) error {
	c.response.Header().Set("Content-Type", "application/json")
	c.response.WriteHeader(code)
	if code == http.StatusNoContent || v == nil {
		return nil
	}
	return json.NewEncoder(c.response).Encode(v)
}

func (c *ginContext) String(code int, s string) error {
	c.response.Header().Set("Content-Type", "text/plain")
	c.response.WriteHeader(code)
	_, err := c.response.Write([]byte(s))
	return err
}

func (c *ginContext) Get(key string) interface{} {
	v, ok := c.ctx.Get(key)
	if !ok {
		return nil
	}
	return v
}

func (c *ginContext) Set(key string, value interface{}) {
	c.ctx.Set(key, value)
}

// ginResponseWriter wraps gin.ResponseWriter to satisfy router.ResponseWriter.
type ginResponseWriter struct {
	ginpkg.ResponseWriter
	mu      sync.RWMutex
	status  int
	written bool
}

// Status returns the written status, 200 before anything is written.
func (w *ginResponseWriter) Status() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

func (w *ginResponseWriter) Written() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.written
}

func (w *ginResponseWriter) WriteHeader(code int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.written {
		return
	}
	w.status = code
	w.written = true
	w.ResponseWriter.WriteHeader(code)
	w.ResponseWriter.WriteHeaderNow()
}

func (w *ginResponseWriter) Write(b []byte) (int, error) {
	if !w.Written() {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *ginResponseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func (w *ginResponseWriter) Flush() {
	w.ResponseWriter.Flush()
}
