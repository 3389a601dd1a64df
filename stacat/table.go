package stacat

import (
	"slices"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"
)

// DefaultCRS is the coordinate reference system assumed for GeoJSON
// geometries.
const DefaultCRS = "epsg:4326"

// Table is a row-oriented table with an optional geometry column holding
// geom.T values.
type Table struct {
	Columns  []string
	Rows     []map[string]any
	Geometry string
	CRS      string
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.Rows) }

// Column returns the values of the named column, one per row.
func (t *Table) Column(name string) []any {
	out := make([]any, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = r[name]
	}
	return out
}

// addColumn registers name if it is not yet a column.
func (t *Table) addColumn(name string) {
	if !slices.Contains(t.Columns, name) {
		t.Columns = append(t.Columns, name)
	}
}

// Records returns the rows as codec records. Geometries are encoded as
// little-endian WKB so the records can be written by any Codec.
func (t *Table) Records() ([]any, error) {
	records := make([]any, len(t.Rows))
	for i, row := range t.Rows {
		rec := make(map[string]any, len(row))
		for k, v := range row {
			if g, ok := v.(geom.T); ok {
				b, err := wkb.Marshal(g, wkb.NDR)
				if err != nil {
					return nil, err
				}
				rec[k] = b
				continue
			}
			rec[k] = v
		}
		records[i] = rec
	}
	return records, nil
}

// appendTable appends the rows of src to dst, registering new columns.
func appendTable(dst, src *Table) {
	for _, c := range src.Columns {
		dst.addColumn(c)
	}
	dst.Rows = append(dst.Rows, src.Rows...)
	if dst.Geometry == "" {
		dst.Geometry = src.Geometry
	}
	if dst.CRS == "" {
		dst.CRS = src.CRS
	}
}
