package stacat

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/pithecene-io/stacat/stacat/stac"
)

// Asset extension fields merged into load arguments.
const (
	fieldStorageOptions = "xarray:storage_options"
	fieldOpenOptions    = "xarray:open_kwargs"
)

// Chunks is a chunking hint keyed by dimension. An empty, non-nil Chunks
// asks the backend for a single chunk per file.
type Chunks map[string]int

// LoadArgs are the arguments an Entry hands to its backend.
type LoadArgs struct {
	// URLPath is the href of a single-asset entry.
	URLPath string

	// URLPaths are the member hrefs of a combined entry, in member order.
	URLPaths []string

	// Chunks is nil for strategies that take no chunking hint.
	Chunks Chunks

	// ConcatDim is the dimension members are concatenated along.
	ConcatDim string

	// PathPattern extracts the ConcatDim coordinate from each member href.
	PathPattern string

	// OverrideCoords label ConcatDim. They take precedence over PathPattern.
	OverrideCoords []string

	// ItemDim is the dimension items are stacked along in a cross-item
	// entry; empty for single-item entries.
	ItemDim string

	// Regrid resamples members to a common shape instead of rejecting
	// mismatched shapes.
	Regrid bool

	StorageOptions map[string]any
	OpenOptions    map[string]any
}

// Hrefs returns every href the entry reads.
func (a LoadArgs) Hrefs() []string {
	if len(a.URLPaths) > 0 {
		return slices.Clone(a.URLPaths)
	}
	if a.URLPath != "" {
		return []string{a.URLPath}
	}
	return nil
}

// ToMap returns the arguments as a generic map for description and
// serialization.
func (a LoadArgs) ToMap() map[string]any {
	m := make(map[string]any)
	if len(a.URLPaths) > 0 {
		paths := make([]any, len(a.URLPaths))
		for i, p := range a.URLPaths {
			paths[i] = p
		}
		m["urlpath"] = paths
	} else {
		m["urlpath"] = a.URLPath
	}
	if a.Chunks != nil {
		chunks := make(map[string]any, len(a.Chunks))
		for k, v := range a.Chunks {
			chunks[k] = v
		}
		m["chunks"] = chunks
	}
	if a.ConcatDim != "" {
		m["concat_dim"] = a.ConcatDim
	}
	if a.PathPattern != "" {
		m["path_as_pattern"] = a.PathPattern
	}
	if len(a.OverrideCoords) > 0 {
		coords := make([]any, len(a.OverrideCoords))
		for i, c := range a.OverrideCoords {
			coords[i] = c
		}
		m["override_coords"] = map[string]any{a.ConcatDim: coords}
	}
	if a.ItemDim != "" {
		m["item_dim"] = a.ItemDim
	}
	if a.Regrid {
		m["regrid"] = true
	}
	if len(a.StorageOptions) > 0 {
		m["storage_options"] = a.StorageOptions
	}
	if len(a.OpenOptions) > 0 {
		m["open_kwargs"] = a.OpenOptions
	}
	return m
}

func (a LoadArgs) clone() LoadArgs {
	out := a
	out.URLPaths = slices.Clone(a.URLPaths)
	out.OverrideCoords = slices.Clone(a.OverrideCoords)
	if a.Chunks != nil {
		out.Chunks = make(Chunks, len(a.Chunks))
		for k, v := range a.Chunks {
			out.Chunks[k] = v
		}
	}
	out.StorageOptions = cloneAttrs(a.StorageOptions)
	out.OpenOptions = cloneAttrs(a.OpenOptions)
	return out
}

// Member is one file of a combined entry.
type Member struct {
	Href string

	// Key is the asset key the member was resolved to.
	Key string

	// Label is the member's coordinate along the concat dimension.
	Label string

	// Item and Datetime identify the source item of a cross-item member.
	Item     string
	Datetime time.Time

	// ItemIndex and BandIndex place the member in the result independently
	// of member order.
	ItemIndex int
	BandIndex int
}

// Entry is a loadable data source: one asset, or several assets combined
// by stacking. An Entry performs no I/O until it is opened and read.
type Entry struct {
	name        string
	description string
	mediaType   string
	strategy    Strategy
	args        LoadArgs
	metadata    Metadata
	diagnostics []Diagnostic
	members     []Member
	env         *env
}

// NewAssetEntry builds an Entry for a single asset. Relative hrefs are kept
// as written; entries built while expanding a catalog resolve them against
// the owning document.
func NewAssetEntry(key string, asset *stac.Asset, opts ...Option) *Entry {
	o := newOptions(opts)
	if o.name != "" {
		key = o.name
	}
	e := newAssetEntry(&o.env, key, asset, "")
	for k, v := range o.metadata {
		e.metadata[k] = v
	}
	return e
}

func newAssetEntry(env *env, key string, asset *stac.Asset, base string) *Entry {
	href := ResolveHref(base, asset.Href)
	res := env.resolver.Resolve(asset.Type, href)
	for _, d := range res.Diagnostics {
		env.logger.V(1).Info("asset media type", "asset", key, "kind", string(d.Kind), "detail", d.Message)
	}

	args := LoadArgs{URLPath: href}
	if chunkable[res.Strategy] {
		args.Chunks = Chunks{}
	}
	if m, ok := asset.Extra[fieldStorageOptions].(map[string]any); ok {
		args.StorageOptions = cloneAttrs(m)
	}
	if m, ok := asset.Extra[fieldOpenOptions].(map[string]any); ok {
		args.OpenOptions = cloneAttrs(m)
	}

	metadata := Metadata(asset.ToMap())
	metadata["type"] = res.MediaType
	if plots := plotHints(res.MediaType); plots != nil {
		metadata["plots"] = plots
	}

	return &Entry{
		name:        key,
		description: asset.Title,
		mediaType:   res.MediaType,
		strategy:    res.Strategy,
		args:        args,
		metadata:    metadata,
		diagnostics: res.Diagnostics,
		env:         env,
	}
}

// plotHints returns default visualization hints for a media type.
func plotHints(mediaType string) map[string]any {
	switch {
	case mediaType == "image/png" || mediaType == "image/jpeg" || mediaType == "image/jpg":
		return map[string]any{
			"thumbnail": map[string]any{
				"kind":        "rgb",
				"x":           "x",
				"y":           "y",
				"bands":       "channel",
				"data_aspect": 1,
				"flip_yaxis":  true,
				"xaxis":       false,
				"yaxis":       false,
			},
		}
	case strings.Contains(mediaType, "tiff"):
		return map[string]any{
			"geotiff": map[string]any{
				"kind":        "image",
				"x":           "x",
				"y":           "y",
				"frame_width": 500,
				"data_aspect": 1,
				"rasterize":   true,
				"dynamic":     true,
				"cmap":        "viridis",
			},
		}
	}
	return nil
}

// Name returns the entry name (the asset key for single-asset entries).
func (e *Entry) Name() string { return e.name }

// Description returns the entry's human-readable title.
func (e *Entry) Description() string { return e.description }

// MediaType returns the declared or inferred media type.
func (e *Entry) MediaType() string { return e.mediaType }

// Strategy returns the loading strategy.
func (e *Entry) Strategy() Strategy { return e.strategy }

// Args returns a copy of the load arguments.
func (e *Entry) Args() LoadArgs { return e.args.clone() }

// Metadata returns a copy of the entry metadata.
func (e *Entry) Metadata() Metadata { return e.metadata.clone() }

// Diagnostics returns the non-fatal findings made while building the entry.
func (e *Entry) Diagnostics() []Diagnostic { return slices.Clone(e.diagnostics) }

// Members returns the member files of a combined entry.
func (e *Entry) Members() []Member { return slices.Clone(e.members) }

// Combined reports whether the entry stacks several assets.
func (e *Entry) Combined() bool { return len(e.members) > 0 }

// Describe returns a generic description of the entry: name, description,
// driver, args and metadata.
func (e *Entry) Describe() map[string]any {
	return map[string]any{
		"name":        e.name,
		"description": e.description,
		"driver":      string(e.strategy),
		"args":        e.args.ToMap(),
		"metadata":    map[string]any(e.metadata.clone()),
	}
}

// Open binds the entry to its backend. No asset bytes are read until the
// returned Source is read. Open fails with ErrBackendUnavailable when no
// backend is registered for the entry's strategy.
func (e *Entry) Open(_ context.Context) (*Source, error) {
	b, err := e.env.backend(e.strategy)
	if err != nil {
		return nil, err
	}
	return newSource(e, b), nil
}
