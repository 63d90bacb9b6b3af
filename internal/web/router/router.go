// Package router exposes the registered resources as a JSON:API HTTP
// surface. Every endpoint maps to one hook pipeline and drives the executor
// around the corresponding store operation.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/weft-api/weft/internal/hooks"
	"github.com/weft-api/weft/internal/resource"
	"github.com/weft-api/weft/internal/store"
	"github.com/weft-api/weft/internal/web/cache"
	"github.com/weft-api/weft/internal/web/middleware"
	"github.com/weft-api/weft/internal/web/response"
	"github.com/weft-api/weft/internal/web/stream"
)

// Options holds the collaborators a Router is assembled from. Cache and Hub
// are optional; without them responses are uncached and no events stream.
type Options struct {
	Registry    *resource.Registry
	Store       *store.Store
	Executor    *hooks.Executor
	Cache       *cache.Cache
	Hub         *stream.Hub
	Logger      *zap.Logger
	Middlewares []middleware.Middleware
}

// Router serves the resource endpoints
type Router struct {
	registry   *resource.Registry
	store      *store.Store
	executor   *hooks.Executor
	serializer *response.Serializer
	cache      *cache.Cache
	hub        *stream.Hub
	logger     *zap.Logger
	handler    http.Handler
}

// New assembles the router and its routes
func New(opts Options) *Router {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	rt := &Router{
		registry:   opts.Registry,
		store:      opts.Store,
		executor:   opts.Executor,
		serializer: response.NewSerializer(opts.Registry),
		cache:      opts.Cache,
		hub:        opts.Hub,
		logger:     logger,
	}

	mux := chi.NewRouter()
	mux.Get("/healthz", rt.health)
	if rt.hub != nil {
		mux.Get("/stream", rt.hub.Handler())
	}
	mux.Route("/{type}", func(r chi.Router) {
		r.Get("/", rt.list)
		r.Post("/", rt.create)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", rt.show)
			r.Patch("/", rt.update)
			r.Delete("/", rt.delete)
			r.Get("/relationships/{relationship}", rt.relationship)
		})
	})

	rt.handler = middleware.Chain(opts.Middlewares...)(mux)
	return rt
}

// ServeHTTP implements http.Handler
func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rt.handler.ServeHTTP(w, r)
}

func (rt *Router) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// resolveType maps the wire type from the URL to the registered resource
// type. Wire names are table names; the schema name is accepted as well.
func (rt *Router) resolveType(wire string) (string, bool) {
	if _, ok := rt.registry.Get(wire); ok {
		return wire, true
	}
	for name, schema := range rt.registry.All() {
		if schema.TableName == wire {
			return name, true
		}
	}
	return "", false
}
