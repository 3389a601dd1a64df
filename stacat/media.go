package stacat

import (
	"fmt"
	"path"
	"strings"
)

// DefaultMediaType is assumed for assets that declare no media type and
// whose href suffix does not identify one.
const DefaultMediaType = "application/rasterio"

// NetCDFMediaType is inferred for untyped assets with a gridded-array
// suffix (.nc, .h5, .hdf).
const NetCDFMediaType = "application/netcdf"

// DefaultStrategy is used for unrecognized and missing media types.
const DefaultStrategy = StrategyRaster

var defaultMediaTypes = map[string]Strategy{
	"application/netcdf":   StrategyNetCDF,
	"application/x-netcdf": StrategyNetCDF,
	"application/x-hdf":    StrategyNetCDF,
	"application/x-hdf5":   StrategyNetCDF,

	"application/parquet":   StrategyParquet,
	"application/x-parquet": StrategyParquet,

	"application/rasterio":                                    StrategyRaster,
	"image/vnd.stac.geotiff":                                  StrategyRaster,
	"image/vnd.stac.geotiff; cloud-optimized=true":            StrategyRaster,
	"image/x.geotiff":                                         StrategyRaster,
	"image/tiff; application=geotiff":                         StrategyRaster,
	"image/tiff; application=geotiff; profile=cloud-optimized": StrategyRaster,
	"image/tiff": StrategyRaster,
	"image/jp2":  StrategyRaster,

	"image/png":  StrategyImage,
	"image/jpg":  StrategyImage,
	"image/jpeg": StrategyImage,

	"text/xml":         StrategyText,
	"text/plain":       StrategyText,
	"text/html":        StrategyText,
	"application/json": StrategyText,
	"application/xml":  StrategyText,

	"application/geo+json":            StrategyGeo,
	"application/geopackage+sqlite3": StrategyGeo,

	"application/vnd+zarr": StrategyZarr,
}

var netcdfSuffixes = []string{".nc", ".h5", ".hdf"}

// chunkable lists strategies whose loaders accept a chunking hint.
var chunkable = map[Strategy]bool{
	StrategyNetCDF: true,
	StrategyRaster: true,
	StrategyImage:  true,
}

// DiagnosticKind classifies a non-fatal resolution finding.
type DiagnosticKind string

// Diagnostic kinds.
const (
	// UnrecognizedMediaType marks a declared media type absent from the table.
	UnrecognizedMediaType DiagnosticKind = "unrecognized-media-type"

	// MissingMediaType marks an asset that declared no media type.
	MissingMediaType DiagnosticKind = "missing-media-type"
)

// Diagnostic is a non-fatal finding returned alongside a result.
type Diagnostic struct {
	Kind      DiagnosticKind
	MediaType string
	Href      string
	Message   string
}

// Resolution is the outcome of classifying one asset.
type Resolution struct {
	// MediaType is the declared type, or the inferred one when none was
	// declared.
	MediaType string

	// Strategy is the selected loader.
	Strategy Strategy

	// Inferred reports whether MediaType was inferred rather than declared.
	Inferred bool

	// Diagnostics holds warnings about unrecognized or missing types.
	Diagnostics []Diagnostic
}

// MediaTypeResolver maps asset media types to loading strategies.
//
// The table is fixed at construction; a resolver is safe for concurrent use.
type MediaTypeResolver struct {
	table map[string]Strategy
}

// DefaultResolver returns a resolver using the built-in media type table.
func DefaultResolver() *MediaTypeResolver {
	return NewMediaTypeResolver(nil)
}

// NewMediaTypeResolver returns a resolver whose table is the built-in table
// extended (or overridden) by extra.
func NewMediaTypeResolver(extra map[string]Strategy) *MediaTypeResolver {
	table := make(map[string]Strategy, len(defaultMediaTypes)+len(extra))
	for k, v := range defaultMediaTypes {
		table[k] = v
	}
	for k, v := range extra {
		table[k] = v
	}
	return &MediaTypeResolver{table: table}
}

// Lookup returns the strategy for a media type, if the table knows it.
func (r *MediaTypeResolver) Lookup(mediaType string) (Strategy, bool) {
	s, ok := r.table[mediaType]
	return s, ok
}

// Resolve classifies an asset by its declared media type and href.
//
// Resolve never fails: unrecognized types fall back to DefaultStrategy and
// missing types are inferred from the href suffix. Both cases add a
// Diagnostic to the result.
func (r *MediaTypeResolver) Resolve(mediaType, href string) Resolution {
	if mediaType == "null" {
		mediaType = ""
	}
	if mediaType != "" {
		if s, ok := r.table[mediaType]; ok {
			return Resolution{MediaType: mediaType, Strategy: s}
		}
		return Resolution{
			MediaType: mediaType,
			Strategy:  DefaultStrategy,
			Diagnostics: []Diagnostic{{
				Kind:      UnrecognizedMediaType,
				MediaType: mediaType,
				Href:      href,
				Message:   fmt.Sprintf("media type %q of %s is not recognized; using %s", mediaType, href, DefaultStrategy),
			}},
		}
	}

	ext := hrefSuffix(href)
	for _, suffix := range netcdfSuffixes {
		if ext == suffix {
			return Resolution{
				MediaType: NetCDFMediaType,
				Strategy:  r.strategyOr(NetCDFMediaType, StrategyNetCDF),
				Inferred:  true,
				Diagnostics: []Diagnostic{{
					Kind:      MissingMediaType,
					MediaType: NetCDFMediaType,
					Href:      href,
					Message:   fmt.Sprintf("no media type for %s; inferred %s from suffix %s", href, NetCDFMediaType, ext),
				}},
			}
		}
	}
	return Resolution{
		MediaType: DefaultMediaType,
		Strategy:  r.strategyOr(DefaultMediaType, DefaultStrategy),
		Inferred:  true,
		Diagnostics: []Diagnostic{{
			Kind:      MissingMediaType,
			MediaType: DefaultMediaType,
			Href:      href,
			Message:   fmt.Sprintf("no media type for %s; assuming %s", href, DefaultMediaType),
		}},
	}
}

func (r *MediaTypeResolver) strategyOr(mediaType string, fallback Strategy) Strategy {
	if s, ok := r.table[mediaType]; ok {
		return s
	}
	return fallback
}

// hrefSuffix returns the lower-cased extension of href, ignoring query
// strings, fragments and a trailing compression extension.
func hrefSuffix(href string) string {
	if i := strings.IndexAny(href, "?#"); i >= 0 {
		href = href[:i]
	}
	href = strings.ToLower(href)
	for _, c := range []string{".gz", ".zst"} {
		href = strings.TrimSuffix(href, c)
	}
	return path.Ext(href)
}
