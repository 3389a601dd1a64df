package cli

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"slices"

	"github.com/go-logr/logr"
	jsoniter "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"

	"github.com/pithecene-io/stacat/internal/config"
	"github.com/pithecene-io/stacat/stacat"
	s3store "github.com/pithecene-io/stacat/stacat/s3"
)

// app carries state shared by the subcommands of one invocation.
type app struct {
	opts   *config.Options
	log    logr.Logger
	router *stacat.Router
}

// routes returns the router for this invocation, building it on first use.
func (a *app) routes(ctx context.Context) (*stacat.Router, error) {
	if a.router != nil {
		return a.router, nil
	}
	r := stacat.NewRouter()
	web := stacat.NewHTTP(&http.Client{Timeout: a.opts.HTTPTimeout})
	r.Route("http", web).Route("https", web)

	client, err := s3store.NewClient(ctx, s3store.ClientConfig{
		Region:       a.opts.S3Region,
		Endpoint:     a.opts.S3Endpoint,
		UsePathStyle: a.opts.S3PathStyle,
		Anonymous:    a.opts.S3Anonymous,
	})
	if err != nil {
		return nil, fmt.Errorf("s3 client: %w", err)
	}
	store, err := s3store.New(client, s3store.Config{})
	if err != nil {
		return nil, err
	}
	r.Route("s3", store)
	a.router = r
	return r, nil
}

func (a *app) nodeOptions(ctx context.Context) ([]stacat.Option, error) {
	r, err := a.routes(ctx)
	if err != nil {
		return nil, err
	}
	opts := []stacat.Option{
		stacat.WithRouter(r),
		stacat.WithResolver(a.opts.Resolver()),
		stacat.WithLogger(a.log),
		stacat.WithReadConcurrency(a.opts.ReadConcurrency),
	}
	if a.opts.ValidateSTAC {
		opts = append(opts, stacat.WithValidation())
	}
	return opts, nil
}

// walk opens href and follows names from its root.
func (a *app) walk(ctx context.Context, href string, names []string) (stacat.Child, error) {
	opts, err := a.nodeOptions(ctx)
	if err != nil {
		return stacat.Child{}, err
	}
	root, err := stacat.Open(ctx, href, opts...)
	if err != nil {
		return stacat.Child{}, err
	}
	a.log.V(1).Info("opened", "href", href, "kind", root.Kind().String(), "id", root.ID())
	return root.Walk(ctx, names...)
}

func (a *app) node(ctx context.Context, href string, names []string) (*stacat.Node, error) {
	c, err := a.walk(ctx, href, names)
	if err != nil {
		return nil, err
	}
	if c.Node == nil {
		return nil, fmt.Errorf("%s is an entry, not a node: %w", c.Name, stacat.ErrTypeMismatch)
	}
	return c.Node, nil
}

func (a *app) entry(ctx context.Context, href string, names []string) (*stacat.Entry, error) {
	c, err := a.walk(ctx, href, names)
	if err != nil {
		return nil, err
	}
	if c.Entry == nil {
		return nil, fmt.Errorf("%s is a node, not an entry: %w", c.Name, stacat.ErrTypeMismatch)
	}
	return c.Entry, nil
}

var jsonOut = jsoniter.ConfigCompatibleWithStandardLibrary

// print writes v in the configured output format.
func (a *app) print(w io.Writer, v any) error {
	if a.opts.Output == "json" {
		b, err := jsonOut.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "%s\n", b)
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

func describeNode(ctx context.Context, n *stacat.Node) (map[string]any, error) {
	keys, err := n.Keys(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"name":     n.Name(),
		"kind":     n.Kind().String(),
		"href":     n.Href(),
		"metadata": map[string]any(n.Metadata()),
		"children": keys,
	}, nil
}

func describeSchema(s *stacat.Schema) map[string]any {
	out := map[string]any{
		"container":  string(s.Container),
		"partitions": s.NPartitions,
	}
	if len(s.Dims) > 0 {
		out["dims"] = slices.Clone(s.Dims)
		out["shape"] = slices.Clone(s.Shape)
		out["dtype"] = s.DType
	}
	if len(s.Columns) > 0 {
		out["columns"] = slices.Clone(s.Columns)
	}
	if s.Container != stacat.ContainerArray {
		out["rows"] = s.NumRows
	}
	if len(s.Extra) > 0 {
		out["extra"] = s.Extra
	}
	return out
}
