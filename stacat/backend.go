package stacat

import (
	"context"
	"fmt"
)

// Container names the kind of value a backend produces.
type Container string

// Containers.
const (
	ContainerArray Container = "array"
	ContainerTable Container = "table"
	ContainerText  Container = "text"
)

// Blob is one asset file handed to a backend.
type Blob struct {
	Href string
	Body []byte
}

// Data is a materialized asset. Exactly one field is set, matching the
// backend's Container.
type Data struct {
	Array *Array
	Table *Table
	Text  []string
}

// Backend decodes asset files for one loading strategy.
type Backend interface {
	// Container reports the kind of value Load returns.
	Container() Container

	// Load decodes one file.
	Load(ctx context.Context, blob Blob, args LoadArgs) (*Data, error)
}

// remediations explain how to obtain a backend for strategies that have no
// built-in one.
var remediations = map[Strategy]string{
	StrategyNetCDF: "NetCDF/HDF5 decoding is not built in; register a decoder with stacat.WithBackend(stacat.StrategyNetCDF, b)",
	StrategyZarr:   "Zarr stores are not supported by the built-in backends; register one with stacat.WithBackend(stacat.StrategyZarr, b)",
}

// DefaultBackends returns the built-in backends keyed by strategy.
func DefaultBackends() map[Strategy]Backend {
	return map[Strategy]Backend{
		StrategyRaster:  NewRasterBackend(),
		StrategyImage:   NewImageBackend(),
		StrategyParquet: NewParquetBackend(),
		StrategyGeo:     NewGeoBackend(),
		StrategyText:    NewTextBackend(),
	}
}

func (e *env) backend(s Strategy) (Backend, error) {
	if b, ok := e.backends[s]; ok && b != nil {
		return b, nil
	}
	msg, ok := remediations[s]
	if !ok {
		msg = fmt.Sprintf("register one with stacat.WithBackend(%q, b)", s)
	}
	return nil, &BackendError{Strategy: s, Remediation: msg}
}
