package stacat

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pithecene-io/stacat/internal/testutil"
	"github.com/pithecene-io/stacat/stacat/stac"
)

// -----------------------------------------------------------------------------
// Construction
// -----------------------------------------------------------------------------

func TestNewAssetEntry_Raster(t *testing.T) {
	asset := &stac.Asset{Href: "s3://b/scene_B4.TIF", Type: testutil.COGType, Title: "Band 4 (red)"}
	e := NewAssetEntry("B4", asset)

	assert.Equal(t, "B4", e.Name())
	assert.Equal(t, "Band 4 (red)", e.Description())
	assert.Equal(t, StrategyRaster, e.Strategy())
	args := e.Args()
	assert.Equal(t, "s3://b/scene_B4.TIF", args.URLPath)
	require.NotNil(t, args.Chunks, "raster entries take a single-chunk hint")
	assert.Empty(t, args.Chunks)
	assert.Contains(t, e.Metadata(), "plots")
	assert.Contains(t, e.Metadata()["plots"], "geotiff")
	assert.Empty(t, e.Diagnostics())
	assert.False(t, e.Combined())
}

func TestNewAssetEntry_ImageHints(t *testing.T) {
	for _, typ := range []string{"image/png", "image/jpeg", "image/jpg"} {
		e := NewAssetEntry("thumbnail", &stac.Asset{Href: "t.png", Type: typ})
		assert.Equal(t, StrategyImage, e.Strategy())
		plots, ok := e.Metadata()["plots"].(map[string]any)
		require.True(t, ok, typ)
		thumb, ok := plots["thumbnail"].(map[string]any)
		require.True(t, ok, typ)
		assert.Equal(t, "rgb", thumb["kind"])
		assert.Equal(t, "channel", thumb["bands"])
	}
}

func TestNewAssetEntry_NoChunksForTables(t *testing.T) {
	e := NewAssetEntry("meta", &stac.Asset{Href: "m.parquet", Type: "application/parquet"})
	assert.Nil(t, e.Args().Chunks)
	assert.NotContains(t, e.Args().ToMap(), "chunks")
	assert.NotContains(t, e.Metadata(), "plots")
}

func TestNewAssetEntry_MissingTypeRecordsDiagnostic(t *testing.T) {
	asset := &stac.Asset{Href: "./x_ANG.txt"}
	e := NewAssetEntry("ANG", asset)

	assert.Equal(t, DefaultMediaType, e.MediaType())
	assert.Equal(t, DefaultMediaType, e.Metadata()["type"])
	assert.Empty(t, asset.Type, "the asset itself is not modified")
	require.Len(t, e.Diagnostics(), 1)
	assert.Equal(t, MissingMediaType, e.Diagnostics()[0].Kind)
}

func TestNewAssetEntry_AssetOptions(t *testing.T) {
	asset := &stac.Asset{
		Href: "s3://b/x.nc",
		Extra: map[string]any{
			"xarray:storage_options": map[string]any{"anon": true},
			"xarray:open_kwargs":     map[string]any{"engine": "h5netcdf"},
		},
	}
	e := NewAssetEntry("data", asset, WithName("renamed"), WithMetadata(Metadata{"source": "test"}))
	assert.Equal(t, "renamed", e.Name())
	assert.Equal(t, StrategyNetCDF, e.Strategy())
	assert.Equal(t, map[string]any{"anon": true}, e.Args().StorageOptions)
	assert.Equal(t, map[string]any{"engine": "h5netcdf"}, e.Args().OpenOptions)
	assert.Equal(t, "test", e.Metadata()["source"])
}

func TestEntry_AccessorsReturnCopies(t *testing.T) {
	e := NewAssetEntry("B4", &stac.Asset{Href: "a.tif", Type: "image/tiff"})
	m := e.Metadata()
	m["type"] = "changed"
	args := e.Args()
	args.URLPath = "changed"
	assert.Equal(t, "image/tiff", e.Metadata()["type"])
	assert.Equal(t, "a.tif", e.Args().URLPath)
}

func TestEntry_Describe(t *testing.T) {
	e := NewAssetEntry("B4", &stac.Asset{Href: "a.tif", Type: "image/tiff", Title: "red"})
	d := e.Describe()
	assert.Equal(t, "B4", d["name"])
	assert.Equal(t, "red", d["description"])
	assert.Equal(t, "rasterio", d["driver"])
	assert.Equal(t, "a.tif", d["args"].(map[string]any)["urlpath"])
}

// -----------------------------------------------------------------------------
// Open and read
// -----------------------------------------------------------------------------

func TestEntry_Open_BackendUnavailable(t *testing.T) {
	e := NewAssetEntry("data", &stac.Asset{Href: "x.nc"})
	_, err := e.Open(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBackendUnavailable))
	var be *BackendError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, StrategyNetCDF, be.Strategy)
	assert.Contains(t, be.Remediation, "WithBackend")
}

func TestEntry_Read_ItemAssets(t *testing.T) {
	ctx := context.Background()
	item := fixtureItem(t, testutil.LandsatItemA)

	thumb, err := item.Entry(ctx, "thumbnail")
	require.NoError(t, err)
	src, err := thumb.Open(ctx)
	require.NoError(t, err)
	data, err := src.Read(ctx)
	require.NoError(t, err)
	require.NotNil(t, data.Array)
	assert.Equal(t, []string{"y", "x", "channel"}, data.Array.Dims)
	assert.Equal(t, []int{2, 3, 3}, data.Array.Shape)
	assert.Equal(t, 10.0, data.Array.At(0, 0, 0))
	assert.Equal(t, 30.0, data.Array.At(1, 2, 2))

	mtl, err := item.Entry(ctx, "MTL")
	require.NoError(t, err)
	assert.Equal(t, StrategyText, mtl.Strategy())
	src, err = mtl.Open(ctx)
	require.NoError(t, err)
	data, err = src.Read(ctx)
	require.NoError(t, err)
	require.Len(t, data.Text, 3)
	assert.Equal(t, "GROUP = L1_METADATA_FILE", data.Text[0])

	b4, err := item.Entry(ctx, "B4")
	require.NoError(t, err)
	assert.Equal(t, itemHref(testutil.LandsatItemA, "B4"), b4.Args().URLPath)
	src, err = b4.Open(ctx)
	require.NoError(t, err)
	data, err = src.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"band", "y", "x"}, data.Array.Dims)
	assert.Equal(t, []int{1, 2, 2}, data.Array.Shape)
	assert.Equal(t, 400.0, data.Array.At(0, 0, 0))
	assert.Equal(t, 403.0, data.Array.At(0, 1, 1))
}
