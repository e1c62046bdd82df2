package server

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/desertthunder/pulsemix/internal/shared"
)

// BasicRouter is a simple HTTP router implementing the [Router] interface.
//
// Uses [http.ServeMux] internally for routing, so paths may carry wildcards such as
// "/sync/{provider}". Several methods can share one path.
type BasicRouter struct {
	mux         *http.ServeMux
	middlewares []Middleware

	mu      sync.RWMutex
	methods map[string]map[string]http.Handler
}

// NewBasicRouter creates a new [BasicRouter] instance.
func NewBasicRouter() *BasicRouter {
	return &BasicRouter{
		mux:         http.NewServeMux(),
		middlewares: []Middleware{},
		methods:     map[string]map[string]http.Handler{},
	}
}

// Use adds [Middleware] to the [Router] instance's middleware stack, applied in the order it's added.
//
// Middleware only wraps handlers registered after the call.
func (r *BasicRouter) Use(middleware ...Middleware) {
	r.middlewares = append(r.middlewares, middleware...)
}

// Handle registers a [Handler] for the specified HTTP method and path.
//
// The handler is wrapped with all registered middleware. Requests with a method that has no
// handler for the path get a 405 with an Allow header.
func (r *BasicRouter) Handle(method, path string, handler http.Handler) {
	wrapped := r.Apply(handler)
	method = strings.ToUpper(method)

	r.mu.Lock()
	defer r.mu.Unlock()

	byMethod, exists := r.methods[path]
	if !exists {
		byMethod = map[string]http.Handler{}
		r.methods[path] = byMethod
	}
	byMethod[method] = wrapped

	if !exists {
		r.mux.Handle(path, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			r.dispatch(path, w, req)
		}))
	}
}

// HandleFunc is [BasicRouter.Handle] for plain functions.
func (r *BasicRouter) HandleFunc(method, path string, fn http.HandlerFunc) {
	r.Handle(method, path, fn)
}

// Handler registers a custom Handler implementation.
//
// All routes returned by [Handler.Routes] are registered with this handler.
func (r *BasicRouter) Handler(handler Handler) {
	wrapped := r.Apply(handler)

	for _, route := range handler.Routes() {
		r.mux.Handle(route, wrapped)
	}
}

// ServeHTTP implements [http.Handler] for the entire router.
func (r *BasicRouter) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Apply wraps a handler with all registered middleware.
//
// Middleware is applied in reverse order (last added wraps first).
func (r *BasicRouter) Apply(handler http.Handler) http.Handler {
	wrapped := handler

	for i := len(r.middlewares) - 1; i >= 0; i-- {
		wrapped = r.middlewares[i](wrapped)
	}

	return wrapped
}

func (r *BasicRouter) dispatch(path string, w http.ResponseWriter, req *http.Request) {
	r.mu.RLock()
	byMethod := r.methods[path]
	handler, ok := byMethod[strings.ToUpper(req.Method)]
	if !ok && req.Method == http.MethodHead {
		handler, ok = byMethod[http.MethodGet]
	}
	var allowed []string
	if !ok {
		for method := range byMethod {
			allowed = append(allowed, method)
		}
	}
	r.mu.RUnlock()

	if !ok {
		sort.Strings(allowed)
		w.Header().Set("Allow", strings.Join(allowed, ", "))
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	handler.ServeHTTP(w, req)
}

// CheckRoutes reports an [shared.ErrInvalidConfig] error when a route of one handler would
// shadow or duplicate a path in taken or a route of another handler. "{name}" segments
// match any segment.
func CheckRoutes(taken []string, handlers ...Handler) error {
	seen := append([]string{}, taken...)
	for _, h := range handlers {
		for _, route := range h.Routes() {
			for _, other := range seen {
				if routesOverlap(route, other) {
					return fmt.Errorf("%w: route %q collides with %q", shared.ErrInvalidConfig, route, other)
				}
			}
			seen = append(seen, route)
		}
	}
	return nil
}

func routesOverlap(a, b string) bool {
	as := strings.Split(strings.Trim(a, "/"), "/")
	bs := strings.Split(strings.Trim(b, "/"), "/")
	if len(as) != len(bs) {
		return false
	}
	for i := range as {
		if wildcard(as[i]) || wildcard(bs[i]) {
			continue
		}
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

func wildcard(segment string) bool {
	return strings.HasPrefix(segment, "{") && strings.HasSuffix(segment, "}")
}
