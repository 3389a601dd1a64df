package stacat

import (
	"context"
	"slices"
)

// parquetBackend reads flat parquet files into tables.
type parquetBackend struct{}

// NewParquetBackend returns the built-in backend for StrategyParquet.
// The open option "columns" selects a subset of columns.
func NewParquetBackend() Backend { return parquetBackend{} }

func (parquetBackend) Container() Container { return ContainerTable }

func (parquetBackend) Load(_ context.Context, blob Blob, args LoadArgs) (*Data, error) {
	tbl, err := decodeParquet(blob.Body)
	if err != nil {
		return nil, err
	}
	if cols := stringsOption(args.OpenOptions, "columns"); len(cols) > 0 {
		tbl = project(tbl, cols)
	}
	return &Data{Table: tbl}, nil
}

// project keeps the named columns of t, in t's column order.
func project(t *Table, cols []string) *Table {
	out := &Table{Geometry: t.Geometry, CRS: t.CRS}
	for _, c := range t.Columns {
		if slices.Contains(cols, c) {
			out.Columns = append(out.Columns, c)
		}
	}
	out.Rows = make([]map[string]any, len(t.Rows))
	for i, r := range t.Rows {
		row := make(map[string]any, len(out.Columns))
		for _, c := range out.Columns {
			row[c] = r[c]
		}
		out.Rows[i] = row
	}
	return out
}

// stringsOption reads a list of strings from an options map.
func stringsOption(opts map[string]any, key string) []string {
	switch v := opts[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, s := range v {
			if str, ok := s.(string); ok {
				out = append(out, str)
			}
		}
		return out
	case string:
		return []string{v}
	}
	return nil
}
