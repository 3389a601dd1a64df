package stac

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pithecene-io/stacat/internal/testutil"
)

// -----------------------------------------------------------------------------
// Decode
// -----------------------------------------------------------------------------

func TestDecode_Catalog(t *testing.T) {
	obj, err := Decode(testutil.LandsatCatalog()["catalog.json"])
	require.NoError(t, err)

	cat, ok := obj.(*Catalog)
	require.True(t, ok, "got %T", obj)
	assert.Equal(t, "test-catalog", cat.ID)
	assert.Equal(t, "Test catalog", cat.Title)
	assert.Len(t, LinksByRel(cat.Links, RelChild), 2)
	assert.Equal(t, "./catalog.json", cat.SelfHref())

	m := cat.ToMap()
	assert.Equal(t, "Catalog", m["type"])
	assert.Equal(t, "1.0.0", m["stac_version"])
}

func TestDecode_CollectionIsNotCatalog(t *testing.T) {
	obj, err := Decode(testutil.LandsatCatalog()["landsat-8-l1/collection.json"])
	require.NoError(t, err)

	_, isCatalog := obj.(*Catalog)
	assert.False(t, isCatalog)

	col, ok := obj.(*Collection)
	require.True(t, ok)
	assert.Equal(t, TypeCollection, col.ObjectType())
	assert.Equal(t, "PDDL-1.0", col.License)
	assert.Equal(t, []string{"metadata", "footprint"}, col.Assets.Keys())
	assert.Len(t, col.SummaryBands(), len(testutil.LandsatBands))

	m := col.ToMap()
	assert.Contains(t, m, "extent")
	assert.Contains(t, m, "providers")
}

func TestDecode_ItemKeepsAssetOrder(t *testing.T) {
	obj, err := Decode([]byte(testutil.LandsatItem("x", testutil.LandsatDatetimeA)))
	require.NoError(t, err)

	item := obj.(*Item)
	want := []string{"thumbnail"}
	for _, b := range testutil.LandsatBands {
		want = append(want, b.Key)
	}
	want = append(want, "ANG", "MTL")
	assert.Equal(t, want, item.Assets.Keys())

	b1, ok := item.Assets.Get("B1")
	require.True(t, ok)
	assert.Equal(t, testutil.COGType, b1.Type)
	assert.Equal(t, "Band 1 (coastal)", b1.Title)
	assert.Equal(t, 30.0, b1.Extra["gsd"])
	assert.Empty(t, b1.Bands(), "index references are not band objects")

	ang, _ := item.Assets.Get("ANG")
	assert.Empty(t, ang.Type)

	dt, ok := item.Datetime()
	require.True(t, ok)
	assert.Equal(t, 2020, dt.Year())
	assert.Equal(t, []float64{71.6, 28.9, 74.0, 31.0}, item.BBox)
}

func TestDecode_ItemCollection(t *testing.T) {
	f := testutil.LandsatCatalog()

	obj, err := Decode(f["items.json"])
	require.NoError(t, err)
	ic := obj.(*ItemCollection)
	require.True(t, ic.HasFeatures())
	require.Len(t, ic.Features, 2)
	assert.Equal(t, testutil.LandsatItemA, ic.Features[0].ID)
	assert.Equal(t, "thumbnail", ic.Features[1].Assets.Keys()[0])

	obj, err = Decode(f["nofeatures.json"])
	require.NoError(t, err)
	assert.False(t, obj.(*ItemCollection).HasFeatures())
}

func TestDecode_LegacyCollectionWithoutType(t *testing.T) {
	obj, err := Decode([]byte(`{"id": "c", "description": "d", "license": "MIT", "extent": {}, "links": []}`))
	require.NoError(t, err)
	assert.Equal(t, TypeCollection, obj.ObjectType())
}

func TestDecode_Invalid(t *testing.T) {
	for _, doc := range []string{`not json`, `null`, `{"type": "Mystery"}`} {
		_, err := Decode([]byte(doc))
		assert.True(t, errors.Is(err, ErrInvalidDocument), "doc %q: %v", doc, err)
	}
}

// -----------------------------------------------------------------------------
// Bands
// -----------------------------------------------------------------------------

func TestBandTable(t *testing.T) {
	table := NewBandTable(
		[]Band{{Name: "B1", CommonName: "coastal"}, {Name: "B2", CommonName: "blue"}},
		[]Band{{Name: "B2", CommonName: "ignored"}, {Name: "B3", CommonName: "blue"}},
	)

	b, ok := table.ByName("B2")
	require.True(t, ok)
	assert.Equal(t, "blue", b.CommonName)

	b, ok = table.ByCommonName("blue")
	require.True(t, ok)
	assert.Equal(t, "B2", b.Name)

	assert.Equal(t, []string{"blue", "coastal"}, table.CommonNames())
	assert.True(t, (*BandTable)(nil).Empty())
}

func TestBandFromMap_LegacyID(t *testing.T) {
	bands := bandsFrom([]any{map[string]any{"id": "B4", "common_name": "red", "gsd": 10.0, "extra": 1.0}})
	require.Len(t, bands, 1)
	assert.Equal(t, "B4", bands[0].Name)
	assert.Equal(t, 10.0, bands[0].GSD)
	assert.Equal(t, 1.0, bands[0].Extra["extra"])
}

// -----------------------------------------------------------------------------
// Validate
// -----------------------------------------------------------------------------

func TestValidate(t *testing.T) {
	f := testutil.LandsatCatalog()
	for _, path := range []string{"catalog.json", "landsat-8-l1/collection.json", "items.json"} {
		obj, err := Decode(f[path])
		require.NoError(t, err)
		assert.NoError(t, Validate(obj), path)
	}

	err := Validate(&Catalog{Description: "no id"})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.True(t, errors.Is(err, ErrInvalidDocument))
	assert.NotEmpty(t, verr.Errors)

	obj, err := Decode(f["nofeatures.json"])
	require.NoError(t, err)
	assert.Error(t, Validate(obj))
}

// -----------------------------------------------------------------------------
// In-memory construction
// -----------------------------------------------------------------------------

func TestCatalog_InMemoryChildren(t *testing.T) {
	root := &Catalog{ID: "root", Description: "r"}
	root.AddChild(&Collection{Catalog: Catalog{ID: "c"}})
	root.AddItem(&Item{ID: "i", Assets: NewAssets()})

	require.Len(t, root.Children(), 1)
	assert.Equal(t, TypeCollection, root.Children()[0].ObjectType())
	require.Len(t, root.Items(), 1)

	m := root.Items()[0].ToMap()
	assert.Nil(t, m["geometry"])
	assert.Equal(t, map[string]any{}, m["assets"])
}
