package stacat

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pithecene-io/stacat/internal/testutil"
)

// fixtureStore loads f into a memory store.
func fixtureStore(t *testing.T, f testutil.Fixture) Store {
	t.Helper()
	store := NewMemory()
	require.NoError(t, f.Load(context.Background(), store, ""))
	return store
}

// openFixture opens href from the Landsat fixture with rasters, served
// under the mem scheme.
func openFixture(t *testing.T, href string, opts ...Option) *Node {
	t.Helper()
	store := fixtureStore(t, testutil.WithRasters(testutil.LandsatCatalog()))
	n, err := Open(context.Background(), href, append([]Option{WithStore("mem", store)}, opts...)...)
	require.NoError(t, err)
	return n
}

// fixtureItem walks from the root catalog to a Landsat item.
func fixtureItem(t *testing.T, id string, opts ...Option) *Node {
	t.Helper()
	root := openFixture(t, "mem://catalog.json", opts...)
	c, err := root.Walk(context.Background(), "landsat-8-l1", id)
	require.NoError(t, err)
	require.NotNil(t, c.Node)
	return c.Node
}

func itemHref(id, key string) string {
	return "mem://landsat-8-l1/" + id + "/" + id + "_" + key + ".TIF"
}

func bytesReader(b []byte) *bytes.Reader { return bytes.NewReader(b) }
