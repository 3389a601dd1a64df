package stacat

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/pithecene-io/stacat/internal/testutil"
)

func TestSerialize_Catalog(t *testing.T) {
	ctx := context.Background()
	root := openFixture(t, "mem://catalog.json")

	out, err := root.Serialize(ctx)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, yaml.Unmarshal(out, &doc))

	md, ok := doc["metadata"].(map[string]any)
	require.True(t, ok)
	want := root.Metadata()
	assert.Len(t, md, len(want))
	for k := range want {
		assert.Contains(t, md, k)
	}
	assert.NotContains(t, md, "links")

	sources, ok := doc["sources"].(map[string]any)
	require.True(t, ok)
	assert.Len(t, sources, 2)
	coll, ok := sources["landsat-8-l1"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "stac_collection", coll["driver"])
	assert.Equal(t, map[string]any{"urlpath": "mem://landsat-8-l1/collection.json"}, coll["args"])
	assert.Contains(t, coll["description"], "Landsat 8")
}

func TestSerialize_Item(t *testing.T) {
	item := fixtureItem(t, testutil.LandsatItemA)

	out, err := item.Serialize(context.Background())
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, yaml.Unmarshal(out, &doc))

	md := doc["metadata"].(map[string]any)
	assert.Equal(t, "2020-06-11T05:23:46Z", md["datetime"])
	assert.Equal(t, "2020-06-11", md["date"])

	sources := doc["sources"].(map[string]any)
	assert.Len(t, sources, 14)
	b4, ok := sources["B4"].(map[string]any)
	require.True(t, ok)
	assert.NotContains(t, b4, "name")
	assert.Equal(t, string(StrategyRaster), b4["driver"])
	args := b4["args"].(map[string]any)
	assert.Equal(t, itemHref(testutil.LandsatItemA, "B4"), args["urlpath"])
	assert.Equal(t, map[string]any{}, args["chunks"])
}

func TestSerialize_ItemCollectionWithoutFeatures(t *testing.T) {
	ic := openFixture(t, "mem://nofeatures.json")
	_, err := ic.Serialize(context.Background())
	assert.ErrorIs(t, err, ErrMissingCapability)
}
