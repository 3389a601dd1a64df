package stacat

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/pithecene-io/stacat/internal/testutil"
	"github.com/pithecene-io/stacat/stacat/stac"
)

func footprintTable(t *testing.T) *Table {
	t.Helper()
	data, err := NewGeoBackend().Load(context.Background(), Blob{Body: []byte(testutil.Footprint)}, LoadArgs{})
	require.NoError(t, err)
	return data.Table
}

func TestExportTable_ParquetCollectionAsset(t *testing.T) {
	ctx := context.Background()
	store := fixtureStore(t, testutil.LandsatCatalog())
	scenes := &Table{
		Columns: []string{"scene", "cloud_cover"},
		Rows: []map[string]any{
			{"scene": testutil.LandsatItemA, "cloud_cover": 12.5},
			{"scene": testutil.LandsatItemB, "cloud_cover": 3.25},
		},
	}
	router := NewRouter().Route("mem", store)
	require.NoError(t, ExportTable(ctx, router, "mem://landsat-8-l1/landsat-metadata.parquet", scenes))

	root, err := Open(ctx, "mem://catalog.json", WithRouter(router))
	require.NoError(t, err)
	coll, err := root.Node(ctx, "landsat-8-l1")
	require.NoError(t, err)
	e, err := coll.CollectionAsset("metadata", WithOpenOptions(map[string]any{"columns": []string{"scene"}}))
	require.NoError(t, err)
	assert.Equal(t, StrategyParquet, e.Strategy())

	src, err := e.Open(ctx)
	require.NoError(t, err)
	data, err := src.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"scene"}, data.Table.Columns)
	assert.Equal(t, []any{testutil.LandsatItemA, testutil.LandsatItemB}, data.Table.Column("scene"))
}

func TestExportTable_GeoPackageRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	router := NewRouter().Route("mem", store)
	require.NoError(t, ExportTable(ctx, router, "mem://out/footprint.gpkg", footprintTable(t)))

	raw, err := router.Read(ctx, "mem://out/footprint.gpkg")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(raw, sqliteMagic))

	asset := &stac.Asset{Href: "mem://out/footprint.gpkg", Type: "application/geopackage+sqlite3"}
	e := NewAssetEntry("footprint", asset, WithRouter(router))
	src, err := e.Open(ctx)
	require.NoError(t, err)
	data, err := src.Read(ctx)
	require.NoError(t, err)

	tbl := data.Table
	assert.Equal(t, "epsg:4326", tbl.CRS)
	assert.Equal(t, "geometry", tbl.Geometry)
	assert.Equal(t, []string{"fid", "id", "cloud", "name", "geometry"}, tbl.Columns)
	assert.Equal(t, []any{"alpha", "beta"}, tbl.Column("name"))
	assert.Equal(t, []any{12.5, 3.0}, tbl.Column("cloud"))
	pt, ok := tbl.Rows[0]["geometry"].(*geom.Point)
	require.True(t, ok)
	assert.Equal(t, []float64{72.5, 30.0}, pt.FlatCoords())

	src, err = NewAssetEntry("footprint", asset, WithRouter(router)).Open(ctx)
	require.NoError(t, err)
	data, err = src.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, data.Table.Len())
}

func TestExportTable_GeoParquetRoundTrip(t *testing.T) {
	ctx := context.Background()
	router := NewRouter().Route("mem", NewMemory())
	require.NoError(t, ExportTable(ctx, router, "mem://out/footprint.parquet.zst", footprintTable(t)))

	asset := &stac.Asset{Href: "mem://out/footprint.parquet.zst", Type: "application/x-parquet"}
	src, err := NewAssetEntry("footprint", asset, WithRouter(router)).Open(ctx)
	require.NoError(t, err)
	data, err := src.Read(ctx)
	require.NoError(t, err)

	tbl := data.Table
	assert.Equal(t, []string{"id", "cloud", "name", "geometry"}, tbl.Columns)
	assert.Equal(t, "geometry", tbl.Geometry)
	assert.Equal(t, "epsg:4326", tbl.CRS)
	assert.Equal(t, []any{12.5, 3.0}, tbl.Column("cloud"))
	pt, ok := tbl.Rows[0]["geometry"].(*geom.Point)
	require.True(t, ok)
	assert.Equal(t, []float64{72.5, 30.0}, pt.FlatCoords())
}

func TestExportTable_GeoPackageLayerOption(t *testing.T) {
	ctx := context.Background()
	router := NewRouter().Route("mem", NewMemory())
	require.NoError(t, ExportTable(ctx, router, "mem://fp.gpkg", footprintTable(t)))

	raw, err := router.Read(ctx, "mem://fp.gpkg")
	require.NoError(t, err)
	_, err = NewGeoBackend().Load(ctx, Blob{Href: "fp.gpkg", Body: raw},
		LoadArgs{OpenOptions: map[string]any{"layer": "missing"}})
	assert.True(t, errors.Is(err, ErrInvalidFormat))

	data, err := NewGeoBackend().Load(ctx, Blob{Href: "fp.gpkg", Body: raw},
		LoadArgs{OpenOptions: map[string]any{"layer": "fp"}})
	require.NoError(t, err)
	assert.Equal(t, 2, data.Table.Len())
}

func TestExportTable_CompressedJSONL(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	router := NewRouter().Route("mem", store)
	require.NoError(t, ExportTable(ctx, router, "mem://out/footprint.jsonl.gz", footprintTable(t)))

	raw, err := router.Read(ctx, "mem://out/footprint.jsonl.gz")
	require.NoError(t, err)
	records, err := NewJSONLCodec().Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	require.Len(t, records, 2)
	rec, ok := records[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "alpha", rec["name"])
	assert.IsType(t, "", rec["geometry"], "WKB geometries encode as base64 strings")
}

func TestExportTable_Errors(t *testing.T) {
	ctx := context.Background()
	router := NewRouter().Route("mem", NewMemory())
	tbl := footprintTable(t)

	err := ExportTable(ctx, router, "mem://out/table.csv", tbl)
	assert.Error(t, err)

	require.NoError(t, ExportTable(ctx, router, "mem://out/table.parquet", tbl))
	err = ExportTable(ctx, router, "mem://out/table.parquet", tbl)
	assert.True(t, errors.Is(err, ErrPathExists))

	noGeom := &Table{Columns: []string{"a"}, Rows: []map[string]any{{"a": 1}}}
	err = ExportTable(ctx, router, "mem://out/plain.gpkg", noGeom)
	assert.Error(t, err)
}
