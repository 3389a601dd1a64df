package stacat

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/twpayne/go-geom"
)

// ExportTable writes t to href in the format named by its suffix: .parquet,
// .jsonl (or .ndjson), or .gpkg. A trailing .gz or .zst compresses the
// output. Existing paths are not overwritten.
func ExportTable(ctx context.Context, r *Router, href string, t *Table) error {
	name := strings.TrimSuffix(path.Base(href), CompressorFor(href).Extension())
	var (
		data []byte
		err  error
	)
	switch ext := path.Ext(name); ext {
	case ".parquet":
		data, err = encodeParquet(t)
	case ".jsonl", ".ndjson":
		data, err = encodeTable(t, NewJSONLCodec())
	case ".gpkg":
		data, err = encodeGeoPackage(ctx, t, strings.TrimSuffix(name, ext))
	default:
		return fmt.Errorf("stacat: no table format for %q", href)
	}
	if err != nil {
		return err
	}
	return r.Write(ctx, href, data)
}

func encodeTable(t *Table, c Codec) ([]byte, error) {
	records, err := t.Records()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := c.Encode(&buf, records); err != nil {
		return nil, fmt.Errorf("stacat: encode %s: %w", c.Name(), err)
	}
	return buf.Bytes(), nil
}

const gpkgSchema = `
CREATE TABLE gpkg_spatial_ref_sys (
	srs_name TEXT NOT NULL, srs_id INTEGER PRIMARY KEY, organization TEXT NOT NULL,
	organization_coordsys_id INTEGER NOT NULL, definition TEXT NOT NULL, description TEXT);
CREATE TABLE gpkg_contents (
	table_name TEXT PRIMARY KEY, data_type TEXT NOT NULL, identifier TEXT UNIQUE, description TEXT DEFAULT '',
	last_change DATETIME NOT NULL, min_x DOUBLE, min_y DOUBLE, max_x DOUBLE, max_y DOUBLE, srs_id INTEGER);
CREATE TABLE gpkg_geometry_columns (
	table_name TEXT NOT NULL, column_name TEXT NOT NULL, geometry_type_name TEXT NOT NULL,
	srs_id INTEGER NOT NULL, z TINYINT NOT NULL, m TINYINT NOT NULL,
	CONSTRAINT pk_geom_cols PRIMARY KEY (table_name, column_name));
`

// encodeGeoPackage writes t as a single-layer GeoPackage.
func encodeGeoPackage(ctx context.Context, t *Table, layer string) ([]byte, error) {
	if t.Geometry == "" {
		return nil, fmt.Errorf("stacat: table has no geometry column")
	}
	org, code := "EPSG", int64(4326)
	if o, c, ok := strings.Cut(t.CRS, ":"); ok {
		if n, err := strconv.ParseInt(c, 10, 64); err == nil {
			org, code = strings.ToUpper(o), n
		}
	}

	dir, err := os.MkdirTemp("", "stacat-gpkg-*")
	if err != nil {
		return nil, err
	}
	defer func() { _ = os.RemoveAll(dir) }()
	file := dir + "/out.gpkg"

	db, err := sql.Open("sqlite", "file:"+file)
	if err != nil {
		return nil, err
	}
	if err := writeGeoPackage(ctx, db, t, layer, org, code); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := db.Close(); err != nil {
		return nil, err
	}
	return os.ReadFile(file)
}

func writeGeoPackage(ctx context.Context, db *sql.DB, t *Table, layer, org string, code int64) error {
	if _, err := db.ExecContext(ctx, `PRAGMA application_id = 1196444487`); err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, gpkgSchema); err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx,
		`INSERT INTO gpkg_spatial_ref_sys VALUES (?, ?, ?, ?, 'undefined', '')`,
		strings.ToLower(org)+":"+strconv.FormatInt(code, 10), code, org, code); err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx,
		`INSERT INTO gpkg_contents (table_name, data_type, identifier, last_change, srs_id) VALUES (?, 'features', ?, ?, ?)`,
		layer, layer, time.Now().UTC().Format(time.RFC3339), code); err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx,
		`INSERT INTO gpkg_geometry_columns VALUES (?, ?, 'GEOMETRY', ?, 0, 0)`, layer, t.Geometry, code); err != nil {
		return err
	}

	cols := make([]string, len(t.Columns))
	marks := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = quoteIdent(c) + " " + sqliteType(t, c)
		marks[i] = "?"
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf(`CREATE TABLE %s (fid INTEGER PRIMARY KEY AUTOINCREMENT, %s)`,
		quoteIdent(layer), strings.Join(cols, ", "))); err != nil {
		return err
	}
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = quoteIdent(c)
	}
	insert := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`, quoteIdent(layer), strings.Join(names, ", "), strings.Join(marks, ", "))
	for _, row := range t.Rows {
		vals := make([]any, len(t.Columns))
		for i, c := range t.Columns {
			v, err := sqliteValue(row[c], int32(code))
			if err != nil {
				return err
			}
			vals[i] = v
		}
		if _, err := db.ExecContext(ctx, insert, vals...); err != nil {
			return err
		}
	}
	return nil
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func sqliteType(t *Table, col string) string {
	if col == t.Geometry {
		return "GEOMETRY"
	}
	for _, row := range t.Rows {
		switch row[col].(type) {
		case nil:
			continue
		case bool, int, int32, int64:
			return "INTEGER"
		case float32, float64:
			return "REAL"
		case []byte:
			return "BLOB"
		default:
			return "TEXT"
		}
	}
	return "TEXT"
}

func sqliteValue(v any, srsID int32) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case geom.T:
		return encodeGPBlob(x, srsID)
	case bool, int, int32, int64, float32, float64, string, []byte:
		return x, nil
	case time.Time:
		return x.Format(time.RFC3339Nano), nil
	default:
		b, err := jsonCodec.Marshal(x)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	}
}
