package testutil

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
)

// Fixture maps store paths to file contents.
type Fixture map[string][]byte

// Putter is the write half of a store.
type Putter interface {
	Put(ctx context.Context, path string, r io.Reader) error
}

// Load writes every file of f to s, under prefix.
func (f Fixture) Load(ctx context.Context, s Putter, prefix string) error {
	paths := make([]string, 0, len(f))
	for p := range f {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		if err := s.Put(ctx, prefix+p, bytes.NewReader(f[p])); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// LandsatBand describes one band of the fixture items.
type LandsatBand struct {
	Key        string
	CommonName string
	GSD        float64
}

// LandsatBands lists the eleven bands of the fixture items in asset order.
var LandsatBands = []LandsatBand{
	{"B1", "coastal", 30},
	{"B2", "blue", 30},
	{"B3", "green", 30},
	{"B4", "red", 30},
	{"B5", "nir", 30},
	{"B6", "swir16", 30},
	{"B7", "swir22", 30},
	{"B8", "pan", 15},
	{"B9", "cirrus", 30},
	{"B10", "lwir11", 30},
	{"B11", "lwir12", 30},
}

// Fixture item ids and their acquisition times.
const (
	LandsatItemA     = "LC08_L1TP_152038_20200611"
	LandsatItemB     = "LC08_L1TP_152038_20200627"
	LandsatDatetimeA = "2020-06-11T05:23:46Z"
	LandsatDatetimeB = "2020-06-27T05:23:52Z"
)

// COGType is the media type of the fixture band assets.
const COGType = "image/tiff; application=geotiff; profile=cloud-optimized"

// LandsatCatalog returns a small catalog tree rooted at "catalog.json":
// a root catalog with one Landsat collection and one empty sub-catalog, two
// items, an item collection of both items, and a feature collection that
// lacks its features member.
func LandsatCatalog() Fixture {
	f := Fixture{}
	f["catalog.json"] = []byte(`{
  "type": "Catalog",
  "stac_version": "1.0.0",
  "id": "test-catalog",
  "title": "Test catalog",
  "description": "Root catalog for tests",
  "links": [
    {"rel": "self", "href": "./catalog.json"},
    {"rel": "child", "href": "./landsat-8-l1/collection.json", "type": "application/json"},
    {"rel": "child", "href": "./sub/catalog.json", "type": "application/json"}
  ]
}`)
	f["sub/catalog.json"] = []byte(`{
  "type": "Catalog",
  "stac_version": "1.0.0",
  "id": "sub-catalog",
  "description": "Empty sub catalog",
  "links": [
    {"rel": "root", "href": "../catalog.json"},
    {"rel": "parent", "href": "../catalog.json"}
  ]
}`)
	f["landsat-8-l1/collection.json"] = []byte(landsatCollection())
	f["landsat-8-l1/"+LandsatItemA+"/"+LandsatItemA+".json"] = []byte(LandsatItem(LandsatItemA, LandsatDatetimeA))
	f["landsat-8-l1/"+LandsatItemB+"/"+LandsatItemB+".json"] = []byte(LandsatItem(LandsatItemB, LandsatDatetimeB))
	f["landsat-8-l1/footprint.geojson"] = []byte(Footprint)
	f["items.json"] = []byte(`{
  "type": "FeatureCollection",
  "features": [` + relocate(LandsatItem(LandsatItemA, LandsatDatetimeA), "landsat-8-l1/"+LandsatItemA+"/") + `,
` + relocate(LandsatItem(LandsatItemB, LandsatDatetimeB), "landsat-8-l1/"+LandsatItemB+"/") + `]
}`)
	f["nofeatures.json"] = []byte(`{"type": "FeatureCollection", "links": []}`)
	return f
}

// relocate rewrites "./" relative asset hrefs so they resolve from the
// store root instead of the item's own directory. Self links are kept.
func relocate(doc, dir string) string {
	doc = strings.ReplaceAll(doc, `"href": "./LC08`, `"href": "./`+dir+`LC08`)
	return strings.ReplaceAll(doc, `"rel": "self", "href": "./`+dir, `"rel": "self", "href": "./`)
}

func landsatCollection() string {
	var bands []string
	for _, b := range LandsatBands {
		bands = append(bands, fmt.Sprintf(`{"name": %q, "common_name": %q, "gsd": %v}`, b.Key, b.CommonName, b.GSD))
	}
	return `{
  "type": "Collection",
  "stac_version": "1.0.0",
  "stac_extensions": ["https://stac-extensions.github.io/eo/v1.0.0/schema.json"],
  "id": "landsat-8-l1",
  "title": "Landsat 8 L1",
  "description": "Landsat 8 imagery radiometrically calibrated and orthorectified",
  "license": "PDDL-1.0",
  "keywords": ["landsat", "earth observation"],
  "providers": [{"name": "USGS", "roles": ["producer"], "url": "https://landsat.usgs.gov/"}],
  "extent": {
    "spatial": {"bbox": [[-180, -90, 180, 90]]},
    "temporal": {"interval": [["2013-06-01T00:00:00Z", null]]}
  },
  "summaries": {
    "platform": ["landsat-8"],
    "eo:bands": [` + strings.Join(bands, ",\n      ") + `]
  },
  "assets": {
    "metadata": {"href": "./landsat-metadata.parquet", "type": "application/parquet", "title": "Scene metadata table"},
    "footprint": {"href": "./footprint.geojson", "type": "application/geo+json", "title": "Scene footprints",
      "xarray:storage_options": {"anon": true}}
  },
  "links": [
    {"rel": "self", "href": "./collection.json"},
    {"rel": "root", "href": "../catalog.json"},
    {"rel": "item", "href": "./` + LandsatItemA + `/` + LandsatItemA + `.json"},
    {"rel": "item", "href": "./` + LandsatItemB + `/` + LandsatItemB + `.json"}
  ]
}`
}

// LandsatItem returns an item document with a thumbnail, the eleven band
// assets, an untyped angle file and a text metadata file, in that order.
func LandsatItem(id, datetime string) string {
	var assets, bands []string
	assets = append(assets, fmt.Sprintf(`"thumbnail": {"href": "./%s_thumb_large.png", "type": "image/png", "title": "Thumbnail image"}`, id))
	for i, b := range LandsatBands {
		assets = append(assets, fmt.Sprintf(
			`%q: {"href": "./%s_%s.TIF", "type": %q, "title": "Band %d (%s)", "gsd": %v, "eo:bands": [%d]}`,
			b.Key, id, b.Key, COGType, i+1, b.CommonName, b.GSD, i))
		bands = append(bands, fmt.Sprintf(`{"name": %q, "common_name": %q, "gsd": %v}`, b.Key, b.CommonName, b.GSD))
	}
	assets = append(assets,
		fmt.Sprintf(`"ANG": {"href": "./%s_ANG.txt", "title": "ANG Metadata"}`, id),
		fmt.Sprintf(`"MTL": {"href": "./%s_MTL.txt", "type": "text/plain", "title": "MTL Metadata", "roles": ["metadata"]}`, id),
	)
	return `{
  "type": "Feature",
  "stac_version": "1.0.0",
  "stac_extensions": ["https://stac-extensions.github.io/eo/v1.0.0/schema.json"],
  "id": "` + id + `",
  "collection": "landsat-8-l1",
  "bbox": [71.6, 28.9, 74.0, 31.0],
  "geometry": {"type": "Polygon", "coordinates": [[[71.6, 28.9], [74.0, 28.9], [74.0, 31.0], [71.6, 31.0], [71.6, 28.9]]]},
  "properties": {
    "datetime": "` + datetime + `",
    "platform": "landsat-8",
    "eo:cloud_cover": 12.5,
    "eo:bands": [` + strings.Join(bands, ", ") + `]
  },
  "assets": {
    ` + strings.Join(assets, ",\n    ") + `
  },
  "links": [
    {"rel": "self", "href": "./` + id + `.json"},
    {"rel": "collection", "href": "../collection.json"},
    {"rel": "parent", "href": "../collection.json"}
  ]
}`
}

// Footprint is a GeoJSON feature collection with two footprints.
const Footprint = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "id": "a", "geometry": {"type": "Point", "coordinates": [72.5, 30.0]}, "properties": {"name": "alpha", "cloud": 12.5}},
    {"type": "Feature", "id": "b", "geometry": {"type": "Polygon", "coordinates": [[[71.6, 28.9], [74.0, 28.9], [74.0, 31.0], [71.6, 28.9]]]}, "properties": {"name": "beta", "cloud": 3}}
  ]
}`
