package stacat

import (
	"github.com/go-logr/logr"
)

// defaultReadConcurrency bounds concurrent member reads during
// materialization.
const defaultReadConcurrency = 4

// env is the shared environment of one catalog tree.
type env struct {
	router      *Router
	resolver    *MediaTypeResolver
	backends    map[Strategy]Backend
	logger      logr.Logger
	validate    bool
	concurrency int
}

// options collects Option values.
type options struct {
	env
	name     string
	metadata Metadata
}

// Option configures Open, NewNode and NewAssetEntry.
type Option func(*options)

func newOptions(opts []Option) *options {
	o := &options{
		env: env{
			resolver:    DefaultResolver(),
			backends:    DefaultBackends(),
			logger:      logr.Discard(),
			concurrency: defaultReadConcurrency,
		},
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.router == nil {
		o.router = NewRouter()
	}
	return o
}

// WithRouter sets the router used to fetch documents and assets.
func WithRouter(r *Router) Option {
	return func(o *options) { o.router = r }
}

// WithStore routes hrefs with the given scheme to s.
//
// Example:
//
//	node, err := stacat.Open(ctx, "mem://catalog.json", stacat.WithStore("mem", store))
func WithStore(scheme string, s Store) Option {
	return func(o *options) {
		if o.router == nil {
			o.router = NewRouter()
		}
		o.router.Route(scheme, s)
	}
}

// WithResolver replaces the media type resolver.
func WithResolver(r *MediaTypeResolver) Option {
	return func(o *options) { o.resolver = r }
}

// WithBackend registers b for strategy s, replacing any built-in backend.
func WithBackend(s Strategy, b Backend) Option {
	return func(o *options) {
		o.backends = cloneBackends(o.backends)
		o.backends[s] = b
	}
}

// WithoutBackend removes the backend registered for strategy s.
func WithoutBackend(s Strategy) Option {
	return func(o *options) {
		o.backends = cloneBackends(o.backends)
		delete(o.backends, s)
	}
}

func cloneBackends(m map[Strategy]Backend) map[Strategy]Backend {
	out := make(map[Strategy]Backend, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}

// WithLogger sets the logger. Diagnostics are logged at V(1).
// The default discards all output.
func WithLogger(l logr.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithValidation validates every decoded document against its structural
// schema.
func WithValidation() Option {
	return func(o *options) { o.validate = true }
}

// WithReadConcurrency bounds the number of member files read concurrently
// when materializing a combined entry. Values below one mean one.
func WithReadConcurrency(n int) Option {
	return func(o *options) {
		if n < 1 {
			n = 1
		}
		o.concurrency = n
	}
}

// WithName overrides the name of the root node or entry.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithMetadata merges m into the root node's metadata. Keys in m win over
// metadata derived from the STAC object.
func WithMetadata(m Metadata) Option {
	return func(o *options) { o.metadata = m }
}
