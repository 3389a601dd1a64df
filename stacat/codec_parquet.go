package stacat

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"
)

// Key-value metadata written next to the row groups. "geo" follows the
// GeoParquet layout so other tools pick up the geometry column.
const (
	geoParquetKey     = "geo"
	columnOrderKey    = "stacat:columns"
	geoParquetVersion = "1.0.0"
)

// columnKind is the physical shape a table column is written with.
type columnKind uint8

const (
	kindString columnKind = iota
	kindBool
	kindInt
	kindFloat
	kindBytes
	kindTime
	kindGeometry
)

// kindOf classifies a cell value. Anything without a parquet counterpart
// is written as a JSON string.
func kindOf(v any) columnKind {
	switch v.(type) {
	case bool:
		return kindBool
	case int, int8, int16, int32, int64, uint8, uint16, uint32:
		return kindInt
	case float32, float64:
		return kindFloat
	case []byte:
		return kindBytes
	case time.Time:
		return kindTime
	case geom.T:
		return kindGeometry
	}
	return kindString
}

func (k columnKind) node() parquet.Node {
	var n parquet.Node
	switch k {
	case kindBool:
		n = parquet.Leaf(parquet.BooleanType)
	case kindInt:
		n = parquet.Int(64)
	case kindFloat:
		n = parquet.Leaf(parquet.DoubleType)
	case kindBytes, kindGeometry:
		n = parquet.Leaf(parquet.ByteArrayType)
	case kindTime:
		n = parquet.Timestamp(parquet.Nanosecond)
	default:
		n = parquet.String()
	}
	return parquet.Optional(n)
}

// tableColumn is one column of a table being written.
type tableColumn struct {
	name string
	kind columnKind
}

// tableColumns types every column of t from its first non-nil cell. The
// result is sorted by name, the leaf order of a parquet group.
func tableColumns(t *Table) []tableColumn {
	cols := make([]tableColumn, 0, len(t.Columns))
	for _, name := range t.Columns {
		c := tableColumn{name: name}
		for _, row := range t.Rows {
			if v := row[name]; v != nil {
				c.kind = kindOf(v)
				break
			}
		}
		if name == t.Geometry && c.kind == kindString {
			c.kind = kindGeometry
		}
		cols = append(cols, c)
	}
	slices.SortFunc(cols, func(a, b tableColumn) int { return strings.Compare(a.name, b.name) })
	return cols
}

// encodeParquet writes t as a single row group parquet file with snappy
// pages. A geometry column is stored as WKB and described by GeoParquet
// metadata.
func encodeParquet(t *Table) ([]byte, error) {
	cols := tableColumns(t)
	group := make(parquet.Group, len(cols))
	for _, c := range cols {
		group[c.name] = c.kind.node()
	}
	schema := parquet.NewSchema("table", group)

	order, err := jsonCodec.Marshal(t.Columns)
	if err != nil {
		return nil, err
	}
	opts := []parquet.WriterOption{
		schema,
		parquet.Compression(&parquet.Snappy),
		parquet.KeyValueMetadata(columnOrderKey, string(order)),
	}
	if meta, ok := geoMetadataFor(t, cols); ok {
		opts = append(opts, parquet.KeyValueMetadata(geoParquetKey, meta))
	}

	rows := make([]parquet.Row, len(t.Rows))
	for i, rec := range t.Rows {
		row := make(parquet.Row, len(cols))
		for j, c := range cols {
			v, err := parquetCell(c.kind, rec[c.name])
			if err != nil {
				return nil, fmt.Errorf("%w: row %d column %q: %w", ErrSchemaViolation, i, c.name, err)
			}
			row[j] = v.Level(0, definition(v), j)
		}
		rows[i] = row
	}

	var buf bytes.Buffer
	w := parquet.NewWriter(&buf, opts...)
	if _, err := w.WriteRows(rows); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("parquet: write rows: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("parquet: close writer: %w", err)
	}
	return buf.Bytes(), nil
}

func definition(v parquet.Value) int {
	if v.IsNull() {
		return 0
	}
	return 1
}

// parquetCell converts one cell for a column of kind k.
func parquetCell(k columnKind, v any) (parquet.Value, error) {
	if v == nil {
		return parquet.NullValue(), nil
	}
	switch k {
	case kindBool:
		if b, ok := v.(bool); ok {
			return parquet.BooleanValue(b), nil
		}
	case kindInt:
		n, err := wholeNumber(v)
		if err != nil {
			return parquet.Value{}, err
		}
		return parquet.Int64Value(n), nil
	case kindFloat:
		if f, ok := realNumber(v); ok {
			return parquet.DoubleValue(f), nil
		}
	case kindBytes:
		switch b := v.(type) {
		case []byte:
			return parquet.ByteArrayValue(b), nil
		case string:
			return parquet.ByteArrayValue([]byte(b)), nil
		}
	case kindTime:
		switch ts := v.(type) {
		case time.Time:
			return parquet.Int64Value(ts.UnixNano()), nil
		case string:
			parsed, err := time.Parse(time.RFC3339Nano, ts)
			if err != nil {
				return parquet.Value{}, err
			}
			return parquet.Int64Value(parsed.UnixNano()), nil
		}
	case kindGeometry:
		switch g := v.(type) {
		case geom.T:
			b, err := wkb.Marshal(g, wkb.NDR)
			if err != nil {
				return parquet.Value{}, err
			}
			return parquet.ByteArrayValue(b), nil
		case []byte:
			return parquet.ByteArrayValue(g), nil
		}
	default:
		if s, ok := v.(string); ok {
			return parquet.ByteArrayValue([]byte(s)), nil
		}
		b, err := jsonCodec.Marshal(v)
		if err != nil {
			return parquet.Value{}, err
		}
		return parquet.ByteArrayValue(b), nil
	}
	return parquet.Value{}, fmt.Errorf("unexpected %T", v)
}

// wholeNumber accepts Go integers and integral float64s decoded from JSON.
func wholeNumber(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint8:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case float64:
		if n != math.Trunc(n) || math.Abs(n) > 1<<53 {
			return 0, fmt.Errorf("%v is not an exact integer", n)
		}
		return int64(n), nil
	}
	return 0, fmt.Errorf("unexpected %T", v)
}

func realNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	if i, err := wholeNumber(v); err == nil {
		return float64(i), true
	}
	return 0, false
}

// -----------------------------------------------------------------------------
// GeoParquet metadata
// -----------------------------------------------------------------------------

type geoParquetMeta struct {
	Version       string                      `json:"version"`
	PrimaryColumn string                      `json:"primary_column"`
	Columns       map[string]geoParquetColumn `json:"columns"`
}

type geoParquetColumn struct {
	Encoding      string      `json:"encoding"`
	GeometryTypes []string    `json:"geometry_types"`
	CRS           *projjsonID `json:"crs,omitempty"`
}

// projjsonID is the identifier part of a PROJJSON CRS, enough to carry an
// "authority:code" reference.
type projjsonID struct {
	ID struct {
		Authority string `json:"authority"`
		Code      any    `json:"code"`
	} `json:"id"`
}

func geoMetadataFor(t *Table, cols []tableColumn) (string, bool) {
	i := slices.IndexFunc(cols, func(c tableColumn) bool { return c.name == t.Geometry })
	if t.Geometry == "" || i < 0 || cols[i].kind != kindGeometry {
		return "", false
	}
	col := geoParquetColumn{Encoding: "WKB", GeometryTypes: geometryTypes(t)}
	if auth, code, ok := strings.Cut(t.CRS, ":"); ok {
		col.CRS = &projjsonID{}
		col.CRS.ID.Authority = strings.ToUpper(auth)
		col.CRS.ID.Code = code
	}
	b, err := jsonCodec.Marshal(geoParquetMeta{
		Version:       geoParquetVersion,
		PrimaryColumn: t.Geometry,
		Columns:       map[string]geoParquetColumn{t.Geometry: col},
	})
	if err != nil {
		return "", false
	}
	return string(b), true
}

// geometryTypes lists the distinct geometry type names of the geometry
// column, in first-seen order.
func geometryTypes(t *Table) []string {
	out := []string{}
	for _, row := range t.Rows {
		g, ok := row[t.Geometry].(geom.T)
		if !ok {
			continue
		}
		name := geometryTypeName(g)
		if name != "" && !slices.Contains(out, name) {
			out = append(out, name)
		}
	}
	return out
}

func geometryTypeName(g geom.T) string {
	switch g.(type) {
	case *geom.Point:
		return "Point"
	case *geom.LineString:
		return "LineString"
	case *geom.Polygon:
		return "Polygon"
	case *geom.MultiPoint:
		return "MultiPoint"
	case *geom.MultiLineString:
		return "MultiLineString"
	case *geom.MultiPolygon:
		return "MultiPolygon"
	case *geom.GeometryCollection:
		return "GeometryCollection"
	}
	return ""
}

// crsName renders a PROJJSON identifier as "authority:code".
func (p *projjsonID) crsName() string {
	if p == nil || p.ID.Authority == "" {
		return DefaultCRS
	}
	return strings.ToLower(p.ID.Authority) + ":" + fmt.Sprint(p.ID.Code)
}

// -----------------------------------------------------------------------------
// Decoding
// -----------------------------------------------------------------------------

// leafDecoder turns a non-null value of one file column into a cell.
type leafDecoder func(parquet.Value) (any, error)

func decoderFor(f parquet.Field) (leafDecoder, error) {
	if !f.Leaf() || f.Repeated() {
		return nil, fmt.Errorf("%w: column %q is not a flat leaf", ErrInvalidFormat, f.Name())
	}
	typ := f.Type()
	lt := typ.LogicalType()
	switch typ.Kind() {
	case parquet.Boolean:
		return func(v parquet.Value) (any, error) { return v.Boolean(), nil }, nil
	case parquet.Int32:
		return func(v parquet.Value) (any, error) { return v.Int32(), nil }, nil
	case parquet.Int64:
		if lt != nil && lt.Timestamp != nil {
			unit := time.Nanosecond
			switch {
			case lt.Timestamp.Unit.Millis != nil:
				unit = time.Millisecond
			case lt.Timestamp.Unit.Micros != nil:
				unit = time.Microsecond
			}
			return func(v parquet.Value) (any, error) {
				return time.Unix(0, v.Int64()*int64(unit)).UTC(), nil
			}, nil
		}
		return func(v parquet.Value) (any, error) { return v.Int64(), nil }, nil
	case parquet.Float:
		return func(v parquet.Value) (any, error) { return v.Float(), nil }, nil
	case parquet.Double:
		return func(v parquet.Value) (any, error) { return v.Double(), nil }, nil
	case parquet.ByteArray, parquet.FixedLenByteArray:
		if lt != nil && (lt.UTF8 != nil || lt.Json != nil) {
			return func(v parquet.Value) (any, error) { return string(v.ByteArray()), nil }, nil
		}
		return func(v parquet.Value) (any, error) { return bytes.Clone(v.ByteArray()), nil }, nil
	}
	return nil, fmt.Errorf("%w: column %q has unsupported type %s", ErrInvalidFormat, f.Name(), typ)
}

func wkbDecoder(v parquet.Value) (any, error) {
	g, err := wkb.Unmarshal(v.ByteArray())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFormat, err)
	}
	return g, nil
}

// decodeParquet reads a flat parquet file into a table. With GeoParquet
// metadata the primary WKB column becomes the table geometry.
func decodeParquet(data []byte) (*Table, error) {
	if len(data) == 0 {
		return nil, ErrInvalidFormat
	}
	file, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFormat, err)
	}

	fields := file.Schema().Fields()
	names := make([]string, len(fields))
	decoders := make([]leafDecoder, len(fields))
	for i, f := range fields {
		if decoders[i], err = decoderFor(f); err != nil {
			return nil, err
		}
		names[i] = f.Name()
	}

	tbl := &Table{Columns: slices.Clone(names)}
	if raw, ok := file.Lookup(geoParquetKey); ok {
		var meta geoParquetMeta
		if err := jsonCodec.Unmarshal([]byte(raw), &meta); err != nil {
			return nil, fmt.Errorf("%w: geo metadata: %w", ErrInvalidFormat, err)
		}
		col, known := meta.Columns[meta.PrimaryColumn]
		if i := slices.Index(names, meta.PrimaryColumn); i >= 0 && known && strings.EqualFold(col.Encoding, "WKB") {
			decoders[i] = wkbDecoder
			tbl.Geometry = meta.PrimaryColumn
			tbl.CRS = col.CRS.crsName()
		}
	}
	if raw, ok := file.Lookup(columnOrderKey); ok {
		var order []string
		if jsonCodec.Unmarshal([]byte(raw), &order) == nil && len(order) == len(names) {
			tbl.Columns = order
		}
	}

	for _, rg := range file.RowGroups() {
		if err := readRowGroup(rg, names, decoders, tbl); err != nil {
			return nil, err
		}
	}
	return tbl, nil
}

func readRowGroup(rg parquet.RowGroup, names []string, decoders []leafDecoder, tbl *Table) error {
	rows := rg.Rows()
	defer func() { _ = rows.Close() }()
	buf := make([]parquet.Row, 64)
	for {
		n, err := rows.ReadRows(buf)
		for _, row := range buf[:n] {
			rec := make(map[string]any, len(names))
			for _, v := range row {
				col := v.Column()
				if col < 0 || col >= len(names) {
					continue
				}
				if v.IsNull() {
					rec[names[col]] = nil
					continue
				}
				cell, derr := decoders[col](v)
				if derr != nil {
					return fmt.Errorf("column %q: %w", names[col], derr)
				}
				rec[names[col]] = cell
			}
			tbl.Rows = append(tbl.Rows, rec)
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: read rows: %w", ErrInvalidFormat, err)
		}
	}
}
