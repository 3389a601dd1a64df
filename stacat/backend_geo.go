package stacat

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"github.com/twpayne/go-geom/encoding/wkb"
	_ "modernc.org/sqlite" // GeoPackage driver
)

// geoBackend reads vector data into tables with a "geometry" column:
// GeoJSON feature collections and GeoPackage feature tables.
type geoBackend struct{}

// NewGeoBackend returns the built-in backend for StrategyGeo. For
// GeoPackage files the open option "layer" selects the feature table; the
// first one is read otherwise.
func NewGeoBackend() Backend { return geoBackend{} }

func (geoBackend) Container() Container { return ContainerTable }

var sqliteMagic = []byte("SQLite format 3\x00")

func (geoBackend) Load(ctx context.Context, blob Blob, args LoadArgs) (*Data, error) {
	var (
		tbl *Table
		err error
	)
	if bytes.HasPrefix(blob.Body, sqliteMagic) {
		layer, _ := args.OpenOptions["layer"].(string)
		tbl, err = readGeoPackage(ctx, blob.Body, layer)
	} else {
		tbl, err = readGeoJSON(blob.Body)
	}
	if err != nil {
		return nil, fmt.Errorf("stacat: %s: %w", blob.Href, err)
	}
	return &Data{Table: tbl}, nil
}

const geometryColumn = "geometry"

// readGeoJSON accepts a FeatureCollection or a single Feature.
func readGeoJSON(data []byte) (*Table, error) {
	var fc geojson.FeatureCollection
	if err := fc.UnmarshalJSON(data); err != nil || fc.Features == nil {
		var f geojson.Feature
		if ferr := f.UnmarshalJSON(data); ferr != nil {
			return nil, fmt.Errorf("%w: not a GeoJSON feature collection: %w", ErrInvalidFormat, errors.Join(err, ferr))
		}
		fc.Features = []*geojson.Feature{&f}
	}

	tbl := &Table{Geometry: geometryColumn, CRS: DefaultCRS}
	keys := make(map[string]struct{})
	hasID := false
	for _, f := range fc.Features {
		for k := range f.Properties {
			keys[k] = struct{}{}
		}
		hasID = hasID || f.ID != ""
	}
	if hasID {
		tbl.Columns = append(tbl.Columns, "id")
	}
	tbl.Columns = append(tbl.Columns, sortedKeys(keys)...)
	tbl.Columns = append(tbl.Columns, geometryColumn)

	for _, f := range fc.Features {
		row := make(map[string]any, len(tbl.Columns))
		for k, v := range f.Properties {
			row[k] = v
		}
		if hasID {
			row["id"] = f.ID
		}
		row[geometryColumn] = f.Geometry
		tbl.Rows = append(tbl.Rows, row)
	}
	return tbl, nil
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// readGeoPackage reads one feature table of a GeoPackage. SQLite needs a
// file, so the blob is spooled to a temporary one.
func readGeoPackage(ctx context.Context, body []byte, layer string) (*Table, error) {
	f, err := os.CreateTemp("", "stacat-*.gpkg")
	if err != nil {
		return nil, err
	}
	path := f.Name()
	defer func() { _ = os.Remove(path) }()
	if _, err := f.Write(body); err != nil {
		_ = f.Close()
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, err
	}
	defer closer(db)()

	if layer == "" {
		err = db.QueryRowContext(ctx,
			`SELECT table_name FROM gpkg_contents WHERE data_type = 'features' ORDER BY table_name LIMIT 1`).Scan(&layer)
		if err != nil {
			return nil, fmt.Errorf("%w: no feature table: %w", ErrInvalidFormat, err)
		}
	}
	var geomCol string
	var srsID int64
	err = db.QueryRowContext(ctx,
		`SELECT column_name, srs_id FROM gpkg_geometry_columns WHERE table_name = ?`, layer).Scan(&geomCol, &srsID)
	if err != nil {
		return nil, fmt.Errorf("%w: layer %q has no geometry column: %w", ErrInvalidFormat, layer, err)
	}
	tbl := &Table{Geometry: geometryColumn, CRS: srsName(ctx, db, srsID)}

	rows, err := db.QueryContext(ctx, `SELECT * FROM "`+strings.ReplaceAll(layer, `"`, `""`)+`"`)
	if err != nil {
		return nil, err
	}
	defer closer(rows)()
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	for _, c := range cols {
		if c == geomCol {
			tbl.addColumn(geometryColumn)
			continue
		}
		tbl.addColumn(c)
	}

	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			if c != geomCol {
				row[c] = vals[i]
				continue
			}
			blob, _ := vals[i].([]byte)
			g, err := decodeGPBlob(blob)
			if err != nil {
				return nil, err
			}
			row[geometryColumn] = g
		}
		tbl.Rows = append(tbl.Rows, row)
	}
	return tbl, rows.Err()
}

func srsName(ctx context.Context, db *sql.DB, srsID int64) string {
	var org string
	var code int64
	err := db.QueryRowContext(ctx,
		`SELECT organization, organization_coordsys_id FROM gpkg_spatial_ref_sys WHERE srs_id = ?`, srsID).Scan(&org, &code)
	if err != nil || org == "" {
		return fmt.Sprintf("srs:%d", srsID)
	}
	return fmt.Sprintf("%s:%d", strings.ToLower(org), code)
}

// envelopeSizes maps the GeoPackage envelope indicator to its byte length.
var envelopeSizes = [...]int{0, 32, 48, 48, 64}

// decodeGPBlob decodes a GeoPackage geometry blob: a "GP" header, an
// optional envelope, then standard WKB. Empty geometries decode to nil.
func decodeGPBlob(b []byte) (geom.T, error) {
	if b == nil {
		return nil, nil
	}
	if len(b) < 8 || b[0] != 'G' || b[1] != 'P' {
		return nil, fmt.Errorf("%w: bad GeoPackage geometry header", ErrInvalidFormat)
	}
	flags := b[3]
	env := int(flags>>1) & 0x7
	if env >= len(envelopeSizes) {
		return nil, fmt.Errorf("%w: bad GeoPackage envelope indicator %d", ErrInvalidFormat, env)
	}
	if flags&0x10 != 0 {
		return nil, nil
	}
	start := 8 + envelopeSizes[env]
	if len(b) < start {
		return nil, fmt.Errorf("%w: truncated GeoPackage geometry", ErrInvalidFormat)
	}
	return wkb.Unmarshal(b[start:])
}

// encodeGPBlob wraps g as a GeoPackage geometry blob without envelope.
func encodeGPBlob(g geom.T, srsID int32) ([]byte, error) {
	body, err := wkb.Marshal(g, wkb.NDR)
	if err != nil {
		return nil, err
	}
	hdr := make([]byte, 8, 8+len(body))
	hdr[0], hdr[1], hdr[2], hdr[3] = 'G', 'P', 0, 0x01
	binary.LittleEndian.PutUint32(hdr[4:], uint32(srsID))
	return append(hdr, body...), nil
}
