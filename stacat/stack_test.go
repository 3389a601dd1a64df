package stacat

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pithecene-io/stacat/internal/testutil"
)

func readArray(t *testing.T, e *Entry) *Array {
	t.Helper()
	src, err := e.Open(context.Background())
	require.NoError(t, err)
	data, err := src.Read(context.Background())
	require.NoError(t, err)
	require.NotNil(t, data.Array)
	return data.Array
}

// -----------------------------------------------------------------------------
// StackBands
// -----------------------------------------------------------------------------

func TestStackBands_AssetKeys(t *testing.T) {
	item := fixtureItem(t, testutil.LandsatItemA)
	e, err := item.StackBands(context.Background(), []string{"B1", "B2"})
	require.NoError(t, err)

	assert.Equal(t, "B1_B2", e.Name())
	assert.Equal(t, "B1, B2", e.Description())
	assert.Equal(t, testutil.COGType, e.MediaType())
	assert.Equal(t, StrategyRaster, e.Strategy())
	assert.True(t, e.Combined())

	args := e.Args()
	assert.Equal(t, []string{itemHref(testutil.LandsatItemA, "B1"), itemHref(testutil.LandsatItemA, "B2")}, args.URLPaths)
	assert.Equal(t, DefaultConcatDim, args.ConcatDim)
	assert.Equal(t, "mem://landsat-8-l1/"+testutil.LandsatItemA+"/"+testutil.LandsatItemA+"_{band}.TIF", args.PathPattern)
	assert.Empty(t, args.OverrideCoords)
	assert.NotNil(t, args.Chunks)

	md := e.Metadata()
	assert.Equal(t, testutil.COGType, md["type"])
	assert.Contains(t, md, "B1")
	assert.Contains(t, md, "B2")

	arr := readArray(t, e)
	assert.Equal(t, []string{"band", "y", "x"}, arr.Dims)
	assert.Equal(t, []int{2, 2, 2}, arr.Shape)
	assert.Equal(t, 100.0, arr.At(0, 0, 0))
	assert.Equal(t, 103.0, arr.At(0, 1, 1))
	assert.Equal(t, 200.0, arr.At(1, 0, 0))
	assert.Equal(t, []any{"B1", "B2"}, arr.CoordValues("band"))
}

func TestStackBands_OrderFollowsRequest(t *testing.T) {
	item := fixtureItem(t, testutil.LandsatItemA)
	e, err := item.StackBands(context.Background(), []string{"B3", "B1"})
	require.NoError(t, err)

	arr := readArray(t, e)
	assert.Equal(t, 300.0, arr.At(0, 0, 0))
	assert.Equal(t, 100.0, arr.At(1, 0, 0))
	assert.Equal(t, []any{"B3", "B1"}, arr.CoordValues("band"))
}

func TestStackBands_CommonNames(t *testing.T) {
	item := fixtureItem(t, testutil.LandsatItemA)
	e, err := item.StackBands(context.Background(), []string{"red", "nir"})
	require.NoError(t, err)

	assert.Equal(t, "red_nir", e.Name())
	assert.Equal(t, "B4, B5", e.Description())
	members := e.Members()
	require.Len(t, members, 2)
	assert.Equal(t, "B4", members[0].Key)
	assert.Equal(t, "B5", members[1].Key)

	arr := readArray(t, e)
	assert.Equal(t, 400.0, arr.At(0, 0, 0))
	assert.Equal(t, 500.0, arr.At(1, 0, 0))
}

func TestStackBands_OverrideCoords(t *testing.T) {
	item := fixtureItem(t, testutil.LandsatItemA)
	e, err := item.StackBands(context.Background(), []string{"B1", "B2"},
		WithPathPattern("mem://landsat-8-l1/{dir}/{scene}_{band}.TIF"),
		WithOverrideCoords("coastal", "blue"), WithConcatDim("wavelength"))
	require.NoError(t, err)
	args := e.Args()
	assert.Equal(t, "wavelength", args.ConcatDim)
	assert.Equal(t, []string{"coastal", "blue"}, args.OverrideCoords)

	arr := readArray(t, e)
	assert.Equal(t, []string{"wavelength", "y", "x"}, arr.Dims)
	assert.Equal(t, []any{"coastal", "blue"}, arr.CoordValues("wavelength"))

	_, err = item.StackBands(context.Background(), []string{"B1", "B2"}, WithOverrideCoords("only-one"))
	assert.True(t, errors.Is(err, ErrIncompatibleStack))
}

func TestStackBands_OverrideCoordsBeatSynthesizedPattern(t *testing.T) {
	item := fixtureItem(t, testutil.LandsatItemA)
	e, err := item.StackBands(context.Background(), []string{"B1", "B2"}, WithOverrideCoords("coastal", "blue"))
	require.NoError(t, err)
	assert.NotEmpty(t, e.Args().PathPattern)

	arr := readArray(t, e)
	assert.Equal(t, []any{"coastal", "blue"}, arr.CoordValues("band"))
}

func TestStackBands_InconsistentHrefs(t *testing.T) {
	f := testutil.WithRasters(testutil.LandsatCatalog())
	key := "landsat-8-l1/" + testutil.LandsatItemA + "/" + testutil.LandsatItemA + ".json"
	b2 := testutil.LandsatItemA + "_B2.TIF"
	f[key] = bytes.Replace(f[key], []byte(`"./`+b2+`"`), []byte(`"./B2/`+b2+`"`), 1)
	require.Contains(t, string(f[key]), "./B2/"+b2)

	ctx := context.Background()
	root, err := Open(ctx, "mem://catalog.json", WithStore("mem", fixtureStore(t, f)))
	require.NoError(t, err)
	c, err := root.Walk(ctx, "landsat-8-l1", testutil.LandsatItemA)
	require.NoError(t, err)

	_, err = c.Node.StackBands(ctx, []string{"B1", "B2"})
	assert.True(t, errors.Is(err, ErrIncompatibleStack))

	e, err := c.Node.StackBands(ctx, []string{"B1", "B2"}, WithOverrideCoords("coastal", "blue"),
		WithPathPattern("mem://landsat-8-l1/{rest}.TIF"))
	require.NoError(t, err)
	assert.Equal(t, []string{"coastal", "blue"}, e.Args().OverrideCoords)
}

func TestStackBands_BadPattern(t *testing.T) {
	item := fixtureItem(t, testutil.LandsatItemA)
	_, err := item.StackBands(context.Background(), []string{"B1"}, WithPathPattern("mem://{unclosed"))
	require.Error(t, err)
}

func TestStackBands_UnknownBand(t *testing.T) {
	item := fixtureItem(t, testutil.LandsatItemA)
	_, err := item.StackBands(context.Background(), []string{"B1", "ultraviolet"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrResolution))

	var re *ResolutionError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "ultraviolet", re.Spec)
	assert.Equal(t, testutil.LandsatItemA, re.Item)
	assert.Contains(t, re.Valid, "B1")
	assert.Contains(t, re.Valid, "red")
	assert.NotContains(t, re.Valid, "MTL")
	assert.IsIncreasing(t, re.Valid)
}

func TestStackBands_AssetWithoutBandMetadata(t *testing.T) {
	item := fixtureItem(t, testutil.LandsatItemA)
	_, err := item.StackBands(context.Background(), []string{"thumbnail"})
	assert.True(t, errors.Is(err, ErrResolution))
}

func TestStackBands_MixedResolution(t *testing.T) {
	ctx := context.Background()
	item := fixtureItem(t, testutil.LandsatItemA)

	_, err := item.StackBands(ctx, []string{"B4", "B8"})
	require.Error(t, err)
	var se *StackError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, []string{"15", "30"}, se.Values)
	assert.Contains(t, se.Error(), "WithRegrid")

	e, err := item.StackBands(ctx, []string{"B4", "B8"}, WithRegrid())
	require.NoError(t, err)
	assert.True(t, e.Args().Regrid)
	arr := readArray(t, e)
	assert.Equal(t, []int{2, 4, 4}, arr.Shape)
	assert.Equal(t, 403.0, arr.At(0, 3, 3))
	assert.Equal(t, 815.0, arr.At(1, 3, 3))
}

func TestStackBands_MixedMediaTypes(t *testing.T) {
	item := fixtureItem(t, testutil.LandsatItemA)
	_, err := item.StackBands(context.Background(), []string{"thumbnail", "B1"}, WithRegrid())
	require.Error(t, err)
	var se *StackError
	require.True(t, errors.As(err, &se))
	assert.ElementsMatch(t, []string{"image/png", testutil.COGType}, se.Values)
}

func TestStackBands_RequiresItem(t *testing.T) {
	root := openFixture(t, "mem://catalog.json")
	_, err := root.StackBands(context.Background(), []string{"B1"})
	assert.True(t, errors.Is(err, ErrTypeMismatch))

	item := fixtureItem(t, testutil.LandsatItemA)
	_, err = item.StackBands(context.Background(), nil)
	assert.True(t, errors.Is(err, ErrIncompatibleStack))
}

func TestStackBands_CollectionLinkFallback(t *testing.T) {
	ctx := context.Background()
	store := fixtureStore(t, testutil.WithRasters(testutil.LandsatCatalog()))
	item, err := Open(ctx, "mem://landsat-8-l1/"+testutil.LandsatItemA+"/"+testutil.LandsatItemA+".json", WithStore("mem", store))
	require.NoError(t, err)
	assert.Nil(t, item.Parent())

	e, err := item.StackBands(ctx, []string{"swir16"})
	require.NoError(t, err)
	assert.Equal(t, "B6", e.Members()[0].Key)
	assert.NotNil(t, item.linked)
}

// -----------------------------------------------------------------------------
// StackItems
// -----------------------------------------------------------------------------

func TestStackItems_Collection(t *testing.T) {
	ctx := context.Background()
	root := openFixture(t, "mem://catalog.json")
	coll, err := root.Node(ctx, "landsat-8-l1")
	require.NoError(t, err)

	ids := []string{testutil.LandsatItemA, testutil.LandsatItemB}
	e, err := coll.StackItems(ctx, ids, []string{"B1", "B2"})
	require.NoError(t, err)
	assert.Equal(t, ItemStackName, e.Name())
	assert.Equal(t, "B1, B2 of "+testutil.LandsatItemA+", "+testutil.LandsatItemB, e.Description())
	assert.Equal(t, DefaultItemDim, e.Args().ItemDim)
	assert.Len(t, e.Members(), 4)
	assert.Contains(t, e.Metadata(), testutil.LandsatItemA)

	arr := readArray(t, e)
	assert.Equal(t, []string{"time", "band", "y", "x"}, arr.Dims)
	assert.Equal(t, []int{2, 2, 2, 2}, arr.Shape)
	assert.Equal(t, 100.0, arr.At(0, 0, 0, 0))
	assert.Equal(t, 150.0, arr.At(1, 0, 0, 0))
	assert.Equal(t, 250.0, arr.At(1, 1, 0, 0))

	dtA, _ := time.Parse(time.RFC3339, testutil.LandsatDatetimeA)
	dtB, _ := time.Parse(time.RFC3339, testutil.LandsatDatetimeB)
	assert.Equal(t, []any{dtA.UTC(), dtB.UTC()}, arr.CoordValues("time"))
	assert.Equal(t, []any{testutil.LandsatItemA, testutil.LandsatItemB}, arr.CoordValues("item"))
	assert.Equal(t, []any{"B1", "B2"}, arr.CoordValues("band"))
}

func TestStackItems_OrderFollowsRequest(t *testing.T) {
	ctx := context.Background()
	root := openFixture(t, "mem://catalog.json")
	coll, err := root.Node(ctx, "landsat-8-l1")
	require.NoError(t, err)

	e, err := coll.StackItems(ctx, []string{testutil.LandsatItemB, testutil.LandsatItemA}, []string{"B1"})
	require.NoError(t, err)
	arr := readArray(t, e)
	assert.Equal(t, 150.0, arr.At(0, 0, 0, 0))
	assert.Equal(t, 100.0, arr.At(1, 0, 0, 0))
	assert.Equal(t, []any{testutil.LandsatItemB, testutil.LandsatItemA}, arr.CoordValues("item"))
}

func TestStackItems_ItemCollection(t *testing.T) {
	ctx := context.Background()
	ic := openFixture(t, "mem://items.json")

	e, err := ic.StackItems(ctx, []string{testutil.LandsatItemA, testutil.LandsatItemB}, []string{"red"},
		WithItemDim("scene"), WithOverrideCoords("r"))
	require.NoError(t, err)
	arr := readArray(t, e)
	assert.Equal(t, []string{"scene", "band", "y", "x"}, arr.Dims)
	assert.Equal(t, 450.0, arr.At(1, 0, 0, 0))
	assert.Equal(t, []any{"r"}, arr.CoordValues("band"))
}

func TestStackItems_OverrideCoordsWithPattern(t *testing.T) {
	ctx := context.Background()
	ic := openFixture(t, "mem://items.json")

	e, err := ic.StackItems(ctx, []string{testutil.LandsatItemA, testutil.LandsatItemB}, []string{"B1", "B2"},
		WithPathPattern("mem://landsat-8-l1/{dir}/{scene}_{band}.TIF"), WithOverrideCoords("coastal", "blue"))
	require.NoError(t, err)
	arr := readArray(t, e)
	assert.Equal(t, []int{2, 2, 2, 2}, arr.Shape)
	assert.Equal(t, []any{"coastal", "blue"}, arr.CoordValues("band"))
}

func TestStackItems_BadPattern(t *testing.T) {
	ic := openFixture(t, "mem://items.json")
	_, err := ic.StackItems(context.Background(), []string{testutil.LandsatItemA}, []string{"B1"},
		WithPathPattern("mem://{unclosed"))
	require.Error(t, err)
}

func TestStackItems_Errors(t *testing.T) {
	ctx := context.Background()
	root := openFixture(t, "mem://catalog.json")
	coll, err := root.Node(ctx, "landsat-8-l1")
	require.NoError(t, err)

	_, err = coll.StackItems(ctx, []string{testutil.LandsatItemA, "missing"}, []string{"B1"})
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = coll.StackItems(ctx, []string{testutil.LandsatItemA}, []string{"nope"})
	assert.True(t, errors.Is(err, ErrResolution))

	_, err = root.StackItems(ctx, []string{"landsat-8-l1"}, []string{"B1"})
	assert.True(t, errors.Is(err, ErrTypeMismatch))

	_, err = coll.StackItems(ctx, nil, []string{"B1"})
	assert.True(t, errors.Is(err, ErrIncompatibleStack))

	item, err := coll.Node(ctx, testutil.LandsatItemA)
	require.NoError(t, err)
	_, err = item.StackItems(ctx, []string{"x"}, []string{"B1"})
	assert.True(t, errors.Is(err, ErrTypeMismatch))
}
