// Package stacat maps SpatioTemporal Asset Catalogs into trees of lazily
// loadable data sources.
//
// A catalog is opened with Open and browsed like a directory tree: catalogs
// and collections list their children, items list one Entry per asset, and
// item collections list their items. Entries describe how an asset would be
// loaded (strategy, arguments, metadata); no asset bytes are read until an
// Entry is opened and read. Items can also stack several band assets, or the
// same assets across items, into a single combined Entry.
//
// stacat focuses on resolution and description. Array and table decoding is
// delegated to pluggable Backends, one per loading strategy.
package stacat

import (
	"context"
	"errors"
	"io"
)

// -----------------------------------------------------------------------------
// Core types
// -----------------------------------------------------------------------------

// Strategy names the loader used to open an asset.
type Strategy string

// Loading strategies.
const (
	StrategyRaster  Strategy = "rasterio"
	StrategyNetCDF  Strategy = "netcdf"
	StrategyParquet Strategy = "parquet"
	StrategyImage   Strategy = "xarray_image"
	StrategyText    Strategy = "textfiles"
	StrategyGeo     Strategy = "geopandas"
	StrategyZarr    Strategy = "zarr"
)

// Metadata holds descriptive key-value pairs attached to nodes and entries.
type Metadata map[string]any

func (m Metadata) clone() Metadata {
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// -----------------------------------------------------------------------------
// Store interface
// -----------------------------------------------------------------------------

// Store reads STAC documents and asset bytes by key. A Router maps hrefs to
// a Store and a key; exports are the only writers.
type Store interface {
	// Put stores r under key. It fails with ErrPathExists rather than
	// replacing an existing object.
	Put(ctx context.Context, key string, r io.Reader) error

	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

// -----------------------------------------------------------------------------
// Export and transfer
// -----------------------------------------------------------------------------

// Codec turns table records into a line or row oriented byte stream. Parquet
// and GeoPackage exports write tables directly; a Codec serves the record
// formats such as JSON Lines.
type Codec interface {
	Name() string
	Encode(w io.Writer, records []any) error
	Decode(r io.Reader) ([]any, error)
}

// Compressor wraps documents and assets whose href carries a compression
// suffix. The router picks one per href with CompressorFor.
type Compressor interface {
	Name() string

	// Extension is the href suffix, including the dot. It is empty for
	// uncompressed data.
	Extension() string

	Compress(w io.Writer) (io.WriteCloser, error)
	Decompress(r io.Reader) (io.ReadCloser, error)
}

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

// Error sentinel values for common conditions.
var (
	// ErrNotFound indicates a requested path, child or asset does not exist.
	ErrNotFound = errNotFound{}

	// ErrPathExists indicates an attempt to write to an existing path.
	ErrPathExists = errPathExists{}

	// ErrTypeMismatch indicates a STAC object of the wrong type for the node
	// kind it was opened as.
	ErrTypeMismatch = errTypeMismatch{}

	// ErrResolution indicates a band or asset specification that matches no
	// asset key and no band common name.
	ErrResolution = errResolution{}

	// ErrIncompatibleStack indicates stack members that cannot be combined:
	// mixed media types, inconsistent path patterns, or mismatched
	// resolutions without regridding.
	ErrIncompatibleStack = errIncompatibleStack{}

	// ErrMissingCapability indicates a STAC object lacking a member the
	// operation needs, such as an item collection without features.
	ErrMissingCapability = errMissingCapability{}

	// ErrBackendUnavailable indicates no backend is registered for a
	// strategy an entry needs.
	ErrBackendUnavailable = errBackendUnavailable{}

	// ErrReadOnly indicates a write to a store that only supports reads.
	ErrReadOnly = errReadOnly{}
)

// ErrSchemaViolation indicates a table cell a parquet column cannot hold.
var ErrSchemaViolation = errors.New("schema violation")

// ErrInvalidFormat indicates bytes that a codec or backend cannot decode.
var ErrInvalidFormat = errors.New("invalid format")

type errNotFound struct{}

func (errNotFound) Error() string { return "not found" }

type errPathExists struct{}

func (errPathExists) Error() string { return "path exists" }

type errTypeMismatch struct{}

func (errTypeMismatch) Error() string { return "type mismatch" }

type errResolution struct{}

func (errResolution) Error() string { return "unresolvable band" }

type errIncompatibleStack struct{}

func (errIncompatibleStack) Error() string { return "incompatible stack" }

type errMissingCapability struct{}

func (errMissingCapability) Error() string { return "missing capability" }

type errBackendUnavailable struct{}

func (errBackendUnavailable) Error() string { return "backend unavailable" }

type errReadOnly struct{}

func (errReadOnly) Error() string { return "read-only store" }
