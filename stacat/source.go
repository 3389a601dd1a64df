package stacat

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/pithecene-io/stacat/internal/pattern"
)

// Schema summarizes a source without exposing its values.
type Schema struct {
	Container   Container
	Dims        []string
	Shape       []int
	DType       string
	Columns     []string
	NumRows     int
	NPartitions int

	// Extra holds the entry metadata and array attributes that survive
	// binary serialization.
	Extra map[string]any
}

// Source reads the files of an Entry through its backend.
//
// Reads are cached: the first successful Read is returned by later reads
// until Close. A Source is safe for concurrent use.
type Source struct {
	entry   *Entry
	backend Backend

	mu     sync.Mutex
	cache  *Data
	closed bool
}

func newSource(e *Entry, b Backend) *Source {
	return &Source{entry: e, backend: b}
}

// ErrClosed indicates a read from a closed Source.
var ErrClosed = errors.New("stacat: source closed")

// Container reports the kind of value the source produces.
func (s *Source) Container() Container { return s.backend.Container() }

// NumPartitions returns the number of independently readable files.
func (s *Source) NumPartitions() int { return len(s.entry.args.Hrefs()) }

// Read materializes the whole entry. Combined entries read their members
// concurrently and assemble them along the concat dimension (and the item
// dimension for cross-item entries).
func (s *Source) Read(ctx context.Context) (*Data, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if s.cache != nil {
		return s.cache, nil
	}

	env := s.entry.env
	job := uuid.NewString()
	start := time.Now()
	log := env.logger.WithValues("job", job, "entry", s.entry.name, "strategy", string(s.entry.strategy))
	log.V(1).Info("materializing", "files", s.NumPartitions())

	parts, err := s.readAll(ctx)
	if err != nil {
		log.Error(err, "materialization failed")
		return nil, err
	}
	data, err := s.assemble(parts)
	if err != nil {
		log.Error(err, "materialization failed")
		return nil, err
	}
	log.V(1).Info("materialized", "elapsed", time.Since(start).String())
	s.cache = data
	return data, nil
}

// ReadPartition reads the i-th file only.
func (s *Source) ReadPartition(ctx context.Context, i int) (*Data, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	hrefs := s.entry.args.Hrefs()
	if i < 0 || i >= len(hrefs) {
		return nil, fmt.Errorf("stacat: partition %d out of range [0, %d)", i, len(hrefs))
	}
	return s.load(ctx, hrefs[i])
}

// ReadChunked returns a lazy view with one block per file. No file is read
// until a block is requested.
func (s *Source) ReadChunked(_ context.Context) (*Chunked, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	return &Chunked{src: s, n: s.NumPartitions()}, nil
}

// Schema materializes the source and describes it.
func (s *Source) Schema(ctx context.Context) (*Schema, error) {
	data, err := s.Read(ctx)
	if err != nil {
		return nil, err
	}
	sch := &Schema{
		Container:   s.Container(),
		NPartitions: s.NumPartitions(),
		Extra:       serializable(s.entry.metadata),
	}
	switch {
	case data.Array != nil:
		sch.Dims = slices.Clone(data.Array.Dims)
		sch.Shape = slices.Clone(data.Array.Shape)
		sch.DType = "float64"
		for k, v := range serializable(data.Array.Attrs) {
			sch.Extra[k] = v
		}
	case data.Table != nil:
		sch.Columns = slices.Clone(data.Table.Columns)
		sch.NumRows = data.Table.Len()
	default:
		sch.NumRows = len(data.Text)
	}
	return sch, nil
}

// Close releases cached data. Later reads fail with ErrClosed.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = nil
	s.closed = true
	return nil
}

func (s *Source) load(ctx context.Context, href string) (*Data, error) {
	body, err := s.entry.env.router.Read(ctx, href)
	if err != nil {
		return nil, err
	}
	data, err := s.backend.Load(ctx, Blob{Href: href, Body: body}, s.entry.args)
	if err != nil {
		return nil, fmt.Errorf("stacat: load %s: %w", href, err)
	}
	return data, nil
}

func (s *Source) readAll(ctx context.Context) ([]*Data, error) {
	hrefs := s.entry.args.Hrefs()
	if len(hrefs) == 0 {
		return nil, fmt.Errorf("stacat: entry %s has no href: %w", s.entry.name, ErrNotFound)
	}
	parts := make([]*Data, len(hrefs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.entry.env.concurrency)
	for i, href := range hrefs {
		g.Go(func() error {
			d, err := s.load(gctx, href)
			if err != nil {
				return err
			}
			parts[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return parts, nil
}

func (s *Source) assemble(parts []*Data) (*Data, error) {
	if !s.entry.Combined() {
		return parts[0], nil
	}
	switch s.backend.Container() {
	case ContainerArray:
		arr, err := s.assembleArrays(parts)
		if err != nil {
			return nil, err
		}
		return &Data{Array: arr}, nil
	case ContainerTable:
		return &Data{Table: s.assembleTables(parts)}, nil
	default:
		var lines []string
		for _, p := range parts {
			lines = append(lines, p.Text...)
		}
		return &Data{Text: lines}, nil
	}
}

// labels returns the concat-dimension coordinate of each member. Override
// coordinates win over the path pattern, which wins over the member keys.
func (s *Source) labels() ([]any, error) {
	args := s.entry.args
	members := s.entry.members
	out := make([]any, len(members))
	switch {
	case args.ItemDim == "" && len(args.OverrideCoords) == len(members):
		for i, c := range args.OverrideCoords {
			out[i] = c
		}
		return out, nil
	case args.ItemDim != "" && len(args.OverrideCoords) > 0:
		// cross-item members already carry their override as label
		for i, m := range members {
			out[i] = m.Label
		}
		return out, nil
	case args.PathPattern != "":
		p, err := pattern.Compile(args.PathPattern)
		if err != nil {
			return nil, err
		}
		for i, m := range members {
			fields, ok := p.Match(m.Href)
			if !ok {
				return nil, &StackError{Reason: "href does not match path pattern " + args.PathPattern, Values: []string{m.Href}}
			}
			v, ok := fields[args.ConcatDim]
			if !ok {
				return nil, &StackError{Reason: fmt.Sprintf("path pattern has no {%s} field", args.ConcatDim)}
			}
			out[i] = v
		}
		return out, nil
	}
	for i, m := range members {
		out[i] = m.Label
	}
	return out, nil
}

func (s *Source) assembleArrays(parts []*Data) (*Array, error) {
	args := s.entry.args
	members := s.entry.members
	labels, err := s.labels()
	if err != nil {
		return nil, err
	}
	arrays := make([]*Array, len(parts))
	for i, p := range parts {
		if p.Array == nil {
			return nil, fmt.Errorf("stacat: member %s produced no array", members[i].Href)
		}
		arrays[i] = p.Array
	}
	if arrays, err = s.conform(arrays); err != nil {
		return nil, err
	}

	if args.ItemDim == "" {
		return Concat(arrays, args.ConcatDim, labels)
	}

	// Place members by (item, band) index so assembly does not depend on
	// member order.
	nItems, nBands := 0, 0
	for _, m := range members {
		nItems = max(nItems, m.ItemIndex+1)
		nBands = max(nBands, m.BandIndex+1)
	}
	grid := make([][]int, nItems)
	for i := range grid {
		grid[i] = make([]int, nBands)
		for j := range grid[i] {
			grid[i][j] = -1
		}
	}
	times := make([]any, nItems)
	ids := make([]any, nItems)
	for k, m := range members {
		grid[m.ItemIndex][m.BandIndex] = k
		times[m.ItemIndex] = m.Datetime
		ids[m.ItemIndex] = m.Item
	}

	perItem := make([]*Array, nItems)
	for i, row := range grid {
		bands := make([]*Array, nBands)
		bandLabels := make([]any, nBands)
		for j, k := range row {
			if k < 0 {
				return nil, &StackError{Reason: "missing member", Values: []string{fmt.Sprintf("item %d band %d", i, j)}}
			}
			bands[j] = arrays[k]
			bandLabels[j] = labels[k]
		}
		arr, err := Concat(bands, args.ConcatDim, bandLabels)
		if err != nil {
			return nil, err
		}
		perItem[i] = arr
	}
	out, err := Concat(perItem, args.ItemDim, times)
	if err != nil {
		return nil, err
	}
	out.Coords["item"] = Coord{Dim: args.ItemDim, Values: ids}
	return out, nil
}

// conform resamples arrays to the largest extent of every dimension when
// regridding is enabled. Without it, shapes are left for Concat to check.
func (s *Source) conform(arrays []*Array) ([]*Array, error) {
	if !s.entry.args.Regrid || len(arrays) == 0 {
		return arrays, nil
	}
	target := slices.Clone(arrays[0].Shape)
	for _, a := range arrays[1:] {
		if len(a.Shape) != len(target) {
			return nil, &StackError{Reason: "member dimensions differ", Values: []string{shapeString(arrays[0]), shapeString(a)}}
		}
		for i, n := range a.Shape {
			target[i] = max(target[i], n)
		}
	}
	concatAxis := arrays[0].Axis(s.entry.args.ConcatDim)
	out := make([]*Array, len(arrays))
	for i, a := range arrays {
		want := slices.Clone(target)
		if concatAxis >= 0 {
			want[concatAxis] = a.Shape[concatAxis]
		}
		r, err := a.Resample(want)
		if err != nil {
			return nil, err
		}
		out[i] = r
	}
	return out, nil
}

func (s *Source) assembleTables(parts []*Data) *Table {
	labels, err := s.labels()
	if err != nil {
		labels = nil
	}
	dim := s.entry.args.ConcatDim
	out := &Table{}
	for i, p := range parts {
		if p.Table == nil {
			continue
		}
		t := p.Table
		if dim != "" && labels != nil {
			t = &Table{Columns: slices.Clone(t.Columns), Geometry: t.Geometry, CRS: t.CRS}
			t.addColumn(dim)
			for _, r := range p.Table.Rows {
				row := cloneAttrs(r)
				row[dim] = labels[i]
				t.Rows = append(t.Rows, row)
			}
		}
		appendTable(out, t)
	}
	return out
}

// serializable keeps the entries of m that encode to CBOR.
func serializable(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if _, err := cbor.Marshal(v); err == nil {
			out[k] = v
		}
	}
	return out
}

// Chunked is a lazy, block-wise view of a Source with one block per file.
type Chunked struct {
	src *Source
	n   int
}

// NumBlocks returns the number of blocks.
func (c *Chunked) NumBlocks() int { return c.n }

// Block reads block i.
func (c *Chunked) Block(ctx context.Context, i int) (*Data, error) {
	return c.src.ReadPartition(ctx, i)
}

// Compute materializes all blocks and assembles them.
func (c *Chunked) Compute(ctx context.Context) (*Data, error) {
	return c.src.Read(ctx)
}
