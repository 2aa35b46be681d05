// Package router provides an abstraction layer for HTTP routing.
// It defines interfaces that allow pluggable router implementations (gin-gonic, gorilla/mux).
package router

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Router defines the interface for HTTP routing.
// Implementations can use different underlying routers (gin-gonic, gorilla/mux).
type Router interface {
	// HTTP method handlers
	GET(path string, handler HandlerFunc, middleware ...MiddlewareFunc)
	POST(path string, handler HandlerFunc, middleware ...MiddlewareFunc)
	PUT(path string, handler HandlerFunc, middleware ...MiddlewareFunc)
	DELETE(path string, handler HandlerFunc, middleware ...MiddlewareFunc)
	PATCH(path string, handler HandlerFunc, middleware ...MiddlewareFunc)

	// Group creates a route group with common prefix and middleware
	Group(prefix string, middleware ...MiddlewareFunc) Router

	// Use applies middleware to all routes
	Use(middleware ...MiddlewareFunc)

	// ServeHTTP implements http.Handler
	ServeHTTP(w http.ResponseWriter, r *http.Request)
}

// HandlerFunc is the function signature for route handlers.
// It receives a Context and returns an error.
type HandlerFunc func(Context) error

// MiddlewareFunc is the function signature for middleware.
// It wraps a HandlerFunc and returns a new HandlerFunc.
type MiddlewareFunc func(HandlerFunc) HandlerFunc

// ErrorHandler writes the response for an error returned by the handler
// chain. It is only called when nothing has been written yet.
type ErrorHandler func(c Context, err error)

// Context provides access to request and response in a router-agnostic way.
type Context interface {
	// Request returns the underlying HTTP request
	Request() *http.Request

	// SetRequest sets the HTTP request (useful for middleware that modifies the request)
	SetRequest(r *http.Request)

	// Response returns the response writer
	Response() ResponseWriter

	// SetResponse sets the HTTP response writer (useful for middleware that wraps responses)
	SetResponse(w ResponseWriter)

	// Param returns a URL parameter by name (e.g., /users/:id)
	Param(name string) string

	// Query returns a query parameter by name (e.g., /users?name=john)
	Query(name string) string

	// Bind parses the JSON request body into v. Failures are *BindError.
	Bind(v interface{}) error

	// JSON sends a JSON response with the given status code
	JSON(code int, v interface{}) error

	// String sends a plain text response with the given status code
	String(code int, s string) error

	// Get retrieves a value from the context by key
	Get(key string) interface{}

	// Set stores a value in the context by key
	Set(key string, value interface{})
}

// ResponseWriter wraps http.ResponseWriter to track response status.
type ResponseWriter interface {
	http.ResponseWriter

	// Status returns the HTTP status code of the response
	Status() int

	// Written returns whether the response has been written
	Written() bool
}

// RouteKey is the context key under which adapters store the pattern of the
// matched route, such as /v1/products/:id.
const RouteKey = "router.route"

// Route returns the matched route pattern, or the request path when the
// adapter did not record one.
func Route(c Context) string {
	if route, ok := c.Get(RouteKey).(string); ok && route != "" {
		return route
	}
	return c.Request().URL.Path
}

// Status returns the status the client will see for a chain that returned
// err: the written status, or 500 when an error left the response unwritten.
func Status(c Context, err error) int {
	if err != nil && !c.Response().Written() {
		return http.StatusInternalServerError
	}
	return c.Response().Status()
}

// Config holds the behaviour shared by every adapter.
type Config struct {
	ErrorHandler ErrorHandler
	// MaxBodyBytes caps request bodies read by Bind. Zero means no cap.
	MaxBodyBytes int64
}

// Option configures an adapter.
type Option func(*Config)

// WithErrorHandler replaces the default 500 response for handler errors.
func WithErrorHandler(h ErrorHandler) Option {
	return func(c *Config) {
		if h != nil {
			c.ErrorHandler = h
		}
	}
}

// WithMaxBodyBytes caps the body size Bind accepts.
func WithMaxBodyBytes(n int64) Option {
	return func(c *Config) { c.MaxBodyBytes = n }
}

// NewConfig applies opts over the defaults.
func NewConfig(opts ...Option) Config {
	cfg := Config{ErrorHandler: DefaultErrorHandler}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// DefaultErrorHandler answers 500 with the status text.
func DefaultErrorHandler(c Context, _ error) {
	_ = c.String(http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
}

// Chain wraps h with route middleware, then with global middleware, so that
// global middleware runs first.
func Chain(h HandlerFunc, global, route []MiddlewareFunc) HandlerFunc {
	for i := len(route) - 1; i >= 0; i-- {
		h = route[i](h)
	}
	for i := len(global) - 1; i >= 0; i-- {
		h = global[i](h)
	}
	return h
}

// ErrBodyTooLarge is wrapped by the BindError of a body over the size cap.
var ErrBodyTooLarge = errors.New("request body too large")

// BindError reports a request body that could not be decoded.
type BindError struct {
	Reason string
	Err    error
}

func (e *BindError) Error() string {
	if e.Err == nil {
		return "bind: " + e.Reason
	}
	return fmt.Sprintf("bind: %s: %v", e.Reason, e.Err)
}

func (e *BindError) Unwrap() error {
	return e.Err
}

// DecodeJSON decodes the JSON body of r into v. Adapters implement Bind with it.
func DecodeJSON(r *http.Request, v interface{}, maxBytes int64) error {
	if r.Body == nil || r.Body == http.NoBody {
		return &BindError{Reason: "request body is empty"}
	}
	defer r.Body.Close()

	contentType := r.Header.Get("Content-Type")
	if !strings.Contains(contentType, "application/json") {
		return &BindError{Reason: fmt.Sprintf("unsupported content type %q", contentType)}
	}

	var body io.Reader = r.Body
	if maxBytes > 0 {
		body = io.LimitReader(r.Body, maxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return &BindError{Reason: "read body", Err: err}
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return &BindError{Reason: fmt.Sprintf("body exceeds %d bytes", maxBytes), Err: ErrBodyTooLarge}
	}
	if len(data) == 0 {
		return &BindError{Reason: "request body is empty"}
	}
	if err := json.Unmarshal(data, v); err != nil {
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) {
			return &BindError{Reason: "malformed json", Err: err}
		}
		return &BindError{Reason: "invalid json", Err: err}
	}
	return nil
}
