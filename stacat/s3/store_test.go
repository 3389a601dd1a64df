package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pithecene-io/stacat/internal/testutil"
	"github.com/pithecene-io/stacat/stacat"
)

// -----------------------------------------------------------------------------
// Construction
// -----------------------------------------------------------------------------

func TestNew_RequiresClient(t *testing.T) {
	_, err := New(nil, Config{Bucket: "test"})
	assert.Error(t, err)
}

func TestNew_PrefixNormalization(t *testing.T) {
	tests := []struct {
		prefix   string
		expected string
	}{
		{"", ""},
		{"foo", "foo/"},
		{"foo/", "foo/"},
		{"foo/bar", "foo/bar/"},
	}
	for _, tt := range tests {
		store, err := New(newMockClient(), Config{Bucket: "test", Prefix: tt.prefix})
		require.NoError(t, err)
		assert.Equal(t, tt.expected, store.prefix, "prefix %q", tt.prefix)
	}
}

// -----------------------------------------------------------------------------
// Put and Get
// -----------------------------------------------------------------------------

func TestStore_PutGet(t *testing.T) {
	ctx := context.Background()
	client := newMockClient()
	store, err := New(client, Config{Bucket: "stac", Prefix: "v1"})
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, "catalog.json", bytes.NewReader([]byte("{}"))))
	assert.Contains(t, client.objects, "stac/v1/catalog.json")

	rc, err := store.Get(ctx, "catalog.json")
	require.NoError(t, err)
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))
}

func TestStore_PutExisting(t *testing.T) {
	ctx := context.Background()
	client := newMockClient()
	store, err := New(client, Config{Bucket: "stac"})
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, "a.json", bytes.NewReader([]byte("1"))))
	err = store.Put(ctx, "a.json", bytes.NewReader([]byte("2")))
	assert.True(t, errors.Is(err, stacat.ErrPathExists))
	assert.Equal(t, 2, client.putCalls)
}

func TestStore_GetMissing(t *testing.T) {
	store, err := New(newMockClient(), Config{Bucket: "stac"})
	require.NoError(t, err)
	_, err = store.Get(context.Background(), "missing.json")
	assert.True(t, errors.Is(err, stacat.ErrNotFound))
}

func TestStore_GetAPIErrors(t *testing.T) {
	tests := []struct {
		code     string
		notFound bool
	}{
		{"NoSuchBucket", true},
		{"NotFound", true},
		{"AccessDenied", false},
	}
	for _, tt := range tests {
		client := newMockClient()
		client.getErr = &smithy.GenericAPIError{Code: tt.code}
		store, err := New(client, Config{Bucket: "stac"})
		require.NoError(t, err)

		_, err = store.Get(context.Background(), "x.json")
		require.Error(t, err)
		assert.Equal(t, tt.notFound, errors.Is(err, stacat.ErrNotFound), tt.code)
	}
}

func TestStore_Exists(t *testing.T) {
	ctx := context.Background()
	store, err := New(newMockClient(), Config{Bucket: "stac"})
	require.NoError(t, err)

	ok, err := store.Exists(ctx, "a.json")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Put(ctx, "a.json", bytes.NewReader(nil)))
	ok, err = store.Exists(ctx, "a.json")
	require.NoError(t, err)
	assert.True(t, ok)
}

// -----------------------------------------------------------------------------
// Key mapping
// -----------------------------------------------------------------------------

func TestStore_BucketFromPath(t *testing.T) {
	ctx := context.Background()
	client := newMockClient()
	store, err := New(client, Config{})
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, "landsat/scenes/a.json", bytes.NewReader([]byte("a"))))
	assert.Contains(t, client.objects, "landsat/scenes/a.json")

	_, err = store.Get(ctx, "landsat")
	assert.True(t, errors.Is(err, stacat.ErrInvalidPath))
}

func TestStore_InvalidKeys(t *testing.T) {
	store, err := New(newMockClient(), Config{Bucket: "stac"})
	require.NoError(t, err)
	for _, key := range []string{"", ".", "..", "../escape.json"} {
		_, err := store.Get(context.Background(), key)
		assert.True(t, errors.Is(err, stacat.ErrInvalidPath), "key %q", key)
	}
}

// -----------------------------------------------------------------------------
// Catalog traversal over S3
// -----------------------------------------------------------------------------

func TestStore_OpenCatalog(t *testing.T) {
	ctx := context.Background()
	store, err := New(newMockClient(), Config{})
	require.NoError(t, err)
	require.NoError(t, testutil.WithRasters(testutil.LandsatCatalog()).Load(ctx, store, "open-data/"))

	root, err := stacat.Open(ctx, "s3://open-data/catalog.json", stacat.WithStore("s3", store))
	require.NoError(t, err)
	c, err := root.Walk(ctx, "landsat-8-l1", testutil.LandsatItemA)
	require.NoError(t, err)

	e, err := c.Node.StackBands(ctx, []string{"red", "green"})
	require.NoError(t, err)
	assert.Equal(t, "s3://open-data/landsat-8-l1/"+testutil.LandsatItemA+"/"+testutil.LandsatItemA+"_B4.TIF",
		e.Members()[0].Href)

	src, err := e.Open(ctx)
	require.NoError(t, err)
	data, err := src.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2, 2}, data.Array.Shape)
	assert.Equal(t, 300.0, data.Array.At(1, 0, 0))
}
