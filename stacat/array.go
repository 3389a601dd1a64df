package stacat

import (
	"fmt"
	"slices"
	"strings"
)

// Coord labels positions along one dimension. A Coord with an empty Dim is
// scalar and carries a single value.
type Coord struct {
	Dim    string
	Values []any
}

// Array is a dense, labelled n-dimensional array of float64 values stored
// in row-major order.
type Array struct {
	Dims   []string
	Shape  []int
	Values []float64
	Coords map[string]Coord
	Attrs  map[string]any
}

// NewArray allocates a zero-filled array. Every dimension gets a default
// integer index coordinate.
func NewArray(dims []string, shape []int) *Array {
	n := 1
	for _, s := range shape {
		n *= s
	}
	a := &Array{
		Dims:   slices.Clone(dims),
		Shape:  slices.Clone(shape),
		Values: make([]float64, n),
		Coords: make(map[string]Coord, len(dims)),
		Attrs:  make(map[string]any),
	}
	for i, d := range dims {
		a.Coords[d] = Coord{Dim: d, Values: indexLabels(shape[i])}
	}
	return a
}

func indexLabels(n int) []any {
	out := make([]any, n)
	for i := range out {
		out[i] = i
	}
	return out
}

// Size returns the total number of elements.
func (a *Array) Size() int { return len(a.Values) }

// Axis returns the position of dim, or -1.
func (a *Array) Axis(dim string) int { return slices.Index(a.Dims, dim) }

// DimSize returns the length of dim.
func (a *Array) DimSize(dim string) (int, bool) {
	i := a.Axis(dim)
	if i < 0 {
		return 0, false
	}
	return a.Shape[i], true
}

// CoordValues returns the labels of the named coordinate.
func (a *Array) CoordValues(name string) []any {
	return a.Coords[name].Values
}

func (a *Array) offset(idx []int) int {
	off := 0
	for i, n := range a.Shape {
		off = off*n + idx[i]
	}
	return off
}

// At returns the element at idx, one index per dimension.
func (a *Array) At(idx ...int) float64 { return a.Values[a.offset(idx)] }

// Set stores v at idx.
func (a *Array) Set(v float64, idx ...int) { a.Values[a.offset(idx)] = v }

// Select returns the slice at position i along dim, with dim removed.
func (a *Array) Select(dim string, i int) (*Array, error) {
	axis := a.Axis(dim)
	if axis < 0 {
		return nil, fmt.Errorf("stacat: array has no dimension %q", dim)
	}
	if i < 0 || i >= a.Shape[axis] {
		return nil, fmt.Errorf("stacat: index %d out of range for dimension %q of size %d", i, dim, a.Shape[axis])
	}
	dims := slices.Delete(slices.Clone(a.Dims), axis, axis+1)
	shape := slices.Delete(slices.Clone(a.Shape), axis, axis+1)
	out := NewArray(dims, shape)
	out.copyCoords(a, dim)
	out.Attrs = cloneAttrs(a.Attrs)

	inner := 1
	for _, n := range a.Shape[axis+1:] {
		inner *= n
	}
	outer := len(a.Values) / (a.Shape[axis] * inner)
	for o := 0; o < outer; o++ {
		src := (o*a.Shape[axis] + i) * inner
		copy(out.Values[o*inner:(o+1)*inner], a.Values[src:src+inner])
	}
	return out, nil
}

// copyCoords copies coordinates from src, skipping those on dim.
func (a *Array) copyCoords(src *Array, skipDim string) {
	for name, c := range src.Coords {
		if c.Dim == skipDim && skipDim != "" {
			continue
		}
		a.Coords[name] = Coord{Dim: c.Dim, Values: slices.Clone(c.Values)}
	}
}

// Resample returns a copy of a resampled to shape by nearest-neighbour
// lookup. The dimensions are unchanged; resampled dimensions get integer
// index coordinates.
func (a *Array) Resample(shape []int) (*Array, error) {
	if len(shape) != len(a.Shape) {
		return nil, fmt.Errorf("stacat: resample to %d dimensions, array has %d", len(shape), len(a.Shape))
	}
	if slices.Equal(shape, a.Shape) {
		return a, nil
	}
	out := NewArray(a.Dims, shape)
	out.Attrs = cloneAttrs(a.Attrs)
	for name, c := range a.Coords {
		axis := a.Axis(c.Dim)
		if axis >= 0 && shape[axis] != a.Shape[axis] {
			continue
		}
		out.Coords[name] = Coord{Dim: c.Dim, Values: slices.Clone(c.Values)}
	}

	dst := make([]int, len(shape))
	srcIdx := make([]int, len(shape))
	for flat := range out.Values {
		rem := flat
		for i := len(shape) - 1; i >= 0; i-- {
			dst[i] = rem % shape[i]
			rem /= shape[i]
		}
		for i := range dst {
			srcIdx[i] = dst[i] * a.Shape[i] / shape[i]
		}
		out.Values[flat] = a.At(srcIdx...)
	}
	return out, nil
}

// Concat joins parts along dim. When dim already exists in the parts they
// are concatenated along it; otherwise dim becomes a new leading
// dimension. labels, when its length matches the result's extent along
// dim, replaces the coordinate of dim; otherwise each part's labels are
// repeated across its slices.
//
// All parts must share dimensions and the shape of every other dimension.
func Concat(parts []*Array, dim string, labels []any) (*Array, error) {
	if len(parts) == 0 {
		return nil, fmt.Errorf("stacat: concat of zero arrays")
	}
	first := parts[0]
	for i, p := range parts[1:] {
		if !slices.Equal(p.Dims, first.Dims) {
			return nil, &StackError{
				Reason: "member dimensions differ",
				Values: []string{strings.Join(first.Dims, ","), fmt.Sprintf("%s (member %d)", strings.Join(p.Dims, ","), i+1)},
			}
		}
	}

	axis := first.Axis(dim)
	if axis < 0 {
		expanded := make([]*Array, len(parts))
		for i, p := range parts {
			expanded[i] = p.expand(dim)
		}
		parts, axis = expanded, 0
		first = parts[0]
	}

	total := 0
	for i, p := range parts {
		for d := range p.Shape {
			if d != axis && p.Shape[d] != first.Shape[d] {
				return nil, &StackError{
					Reason: "member shapes differ",
					Values: []string{shapeString(first), fmt.Sprintf("%s (member %d)", shapeString(p), i)},
				}
			}
		}
		total += p.Shape[axis]
	}

	shape := slices.Clone(first.Shape)
	shape[axis] = total
	out := NewArray(first.Dims, shape)
	out.copyCoords(first, dim)
	out.Attrs = cloneAttrs(first.Attrs)

	inner := 1
	for _, n := range shape[axis+1:] {
		inner *= n
	}
	outer := len(out.Values) / (total * inner)
	pos := 0
	var partLabels []any
	for _, p := range parts {
		n := p.Shape[axis]
		for o := 0; o < outer; o++ {
			src := p.Values[o*n*inner : (o+1)*n*inner]
			dst := (o*total + pos) * inner
			copy(out.Values[dst:dst+n*inner], src)
		}
		partLabels = append(partLabels, p.Coords[dim].Values...)
		pos += n
	}

	switch {
	case len(labels) == total:
		out.Coords[dim] = Coord{Dim: dim, Values: slices.Clone(labels)}
	case len(labels) == len(parts):
		rep := make([]any, 0, total)
		for i, p := range parts {
			for j := 0; j < p.Shape[axis]; j++ {
				rep = append(rep, labels[i])
			}
		}
		out.Coords[dim] = Coord{Dim: dim, Values: rep}
	default:
		out.Coords[dim] = Coord{Dim: dim, Values: partLabels}
	}
	return out, nil
}

// expand returns a view of a with a new leading dimension of length one.
func (a *Array) expand(dim string) *Array {
	out := &Array{
		Dims:   append([]string{dim}, a.Dims...),
		Shape:  append([]int{1}, a.Shape...),
		Values: a.Values,
		Coords: make(map[string]Coord, len(a.Coords)+1),
		Attrs:  a.Attrs,
	}
	for k, v := range a.Coords {
		out.Coords[k] = v
	}
	out.Coords[dim] = Coord{Dim: dim, Values: []any{0}}
	return out
}

func shapeString(a *Array) string {
	parts := make([]string, len(a.Dims))
	for i, d := range a.Dims {
		parts[i] = fmt.Sprintf("%s=%d", d, a.Shape[i])
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

func cloneAttrs(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
