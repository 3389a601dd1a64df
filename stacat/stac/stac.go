// Package stac models the subset of the SpatioTemporal Asset Catalog
// specification that stacat navigates: catalogs, collections, items and
// item collections, together with their links, assets and electro-optical
// band metadata.
//
// Documents are decoded with Decode (or one of the typed variants) and can
// also be built programmatically. Unknown members are preserved in Extra so
// that ToMap reproduces the document's metadata.
package stac

import (
	"errors"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Type is the value of a STAC document's "type" member.
type Type string

// STAC document types.
const (
	TypeCatalog        Type = "Catalog"
	TypeCollection     Type = "Collection"
	TypeItem           Type = "Feature"
	TypeItemCollection Type = "FeatureCollection"
)

// Link relation types followed during catalog traversal.
const (
	RelSelf       = "self"
	RelRoot       = "root"
	RelParent     = "parent"
	RelChild      = "child"
	RelItem       = "item"
	RelCollection = "collection"
)

// ErrInvalidDocument indicates bytes that are not a decodable STAC document.
var ErrInvalidDocument = errors.New("stac: invalid document")

// Object is implemented by every decoded STAC document.
type Object interface {
	// ObjectType reports the document type.
	ObjectType() Type

	// ObjectID returns the document id. Item collections have none.
	ObjectID() string

	// SelfHref returns the location the document was loaded from, or the
	// href of its self link when it was built in memory.
	SelfHref() string

	// SetSelfHref records the location the document was loaded from.
	SetSelfHref(href string)

	// ToMap returns the document as a generic JSON-style map.
	ToMap() map[string]any
}

// -----------------------------------------------------------------------------
// Links
// -----------------------------------------------------------------------------

// Link is a STAC link object.
type Link struct {
	Rel   string
	Href  string
	Type  string
	Title string
	Extra map[string]any
}

// ToMap returns the link as a generic map.
func (l Link) ToMap() map[string]any {
	m := copyMap(l.Extra)
	m["rel"] = l.Rel
	m["href"] = l.Href
	if l.Type != "" {
		m["type"] = l.Type
	}
	if l.Title != "" {
		m["title"] = l.Title
	}
	return m
}

func linksToList(links []Link) []any {
	out := make([]any, 0, len(links))
	for _, l := range links {
		out = append(out, l.ToMap())
	}
	return out
}

func selfLink(links []Link) string {
	for _, l := range links {
		if l.Rel == RelSelf {
			return l.Href
		}
	}
	return ""
}

// LinksByRel returns the links with the given relation, in document order.
func LinksByRel(links []Link, rel string) []Link {
	var out []Link
	for _, l := range links {
		if l.Rel == rel {
			out = append(out, l)
		}
	}
	return out
}

// -----------------------------------------------------------------------------
// Catalog
// -----------------------------------------------------------------------------

// Catalog is a STAC Catalog.
type Catalog struct {
	ID             string
	Title          string
	Description    string
	StacVersion    string
	StacExtensions []string
	Links          []Link
	Extra          map[string]any

	href     string
	children []Object
	items    []*Item
}

// ObjectType implements Object.
func (c *Catalog) ObjectType() Type { return TypeCatalog }

// ObjectID implements Object.
func (c *Catalog) ObjectID() string { return c.ID }

// SelfHref implements Object.
func (c *Catalog) SelfHref() string {
	if c.href != "" {
		return c.href
	}
	return selfLink(c.Links)
}

// SetSelfHref implements Object.
func (c *Catalog) SetSelfHref(href string) { c.href = href }

// AddChild attaches an in-memory child catalog or collection. In-memory
// children are listed before children reached through links.
func (c *Catalog) AddChild(child Object) { c.children = append(c.children, child) }

// AddItem attaches an in-memory item.
func (c *Catalog) AddItem(item *Item) { c.items = append(c.items, item) }

// Children returns the in-memory children in insertion order.
func (c *Catalog) Children() []Object { return append([]Object(nil), c.children...) }

// Items returns the in-memory items in insertion order.
func (c *Catalog) Items() []*Item { return append([]*Item(nil), c.items...) }

// ToMap implements Object.
func (c *Catalog) ToMap() map[string]any {
	m := c.baseMap()
	m["type"] = string(TypeCatalog)
	return m
}

func (c *Catalog) baseMap() map[string]any {
	m := copyMap(c.Extra)
	m["id"] = c.ID
	m["description"] = c.Description
	if c.Title != "" {
		m["title"] = c.Title
	}
	if c.StacVersion != "" {
		m["stac_version"] = c.StacVersion
	}
	if c.StacExtensions != nil {
		m["stac_extensions"] = stringsToList(c.StacExtensions)
	}
	m["links"] = linksToList(c.Links)
	return m
}

// -----------------------------------------------------------------------------
// Collection
// -----------------------------------------------------------------------------

// Collection is a STAC Collection: a Catalog with extent, license and
// optional collection-level assets and summaries.
type Collection struct {
	Catalog

	License   string
	Keywords  []string
	Providers []any
	Extent    map[string]any
	Summaries map[string]any
	Assets    *Assets
}

// ObjectType implements Object.
func (c *Collection) ObjectType() Type { return TypeCollection }

// ToMap implements Object.
func (c *Collection) ToMap() map[string]any {
	m := c.baseMap()
	m["type"] = string(TypeCollection)
	m["license"] = c.License
	if c.Keywords != nil {
		m["keywords"] = stringsToList(c.Keywords)
	}
	if c.Providers != nil {
		m["providers"] = c.Providers
	}
	if c.Extent != nil {
		m["extent"] = c.Extent
	}
	if c.Summaries != nil {
		m["summaries"] = c.Summaries
	}
	if c.Assets.Len() > 0 {
		m["assets"] = c.Assets.toMap()
	}
	return m
}

// -----------------------------------------------------------------------------
// Item
// -----------------------------------------------------------------------------

// Item is a STAC Item (a GeoJSON Feature).
type Item struct {
	ID             string
	Collection     string
	StacVersion    string
	StacExtensions []string
	BBox           []float64
	Geometry       map[string]any
	Properties     map[string]any
	Assets         *Assets
	Links          []Link
	Extra          map[string]any

	href string
}

// ObjectType implements Object.
func (i *Item) ObjectType() Type { return TypeItem }

// ObjectID implements Object.
func (i *Item) ObjectID() string { return i.ID }

// SelfHref implements Object.
func (i *Item) SelfHref() string {
	if i.href != "" {
		return i.href
	}
	return selfLink(i.Links)
}

// SetSelfHref implements Object.
func (i *Item) SetSelfHref(href string) { i.href = href }

// Datetime returns the item's acquisition time from the "datetime"
// property, falling back to "start_datetime".
func (i *Item) Datetime() (time.Time, bool) {
	for _, key := range []string{"datetime", "start_datetime"} {
		s, ok := i.Properties[key].(string)
		if !ok || s == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// ToMap implements Object.
func (i *Item) ToMap() map[string]any {
	m := copyMap(i.Extra)
	m["type"] = string(TypeItem)
	m["id"] = i.ID
	if i.StacVersion != "" {
		m["stac_version"] = i.StacVersion
	}
	if i.StacExtensions != nil {
		m["stac_extensions"] = stringsToList(i.StacExtensions)
	}
	if i.Collection != "" {
		m["collection"] = i.Collection
	}
	if i.BBox != nil {
		m["bbox"] = floatsToList(i.BBox)
	}
	if i.Geometry != nil {
		m["geometry"] = i.Geometry
	} else {
		m["geometry"] = nil
	}
	m["properties"] = copyMap(i.Properties)
	m["assets"] = i.Assets.toMap()
	m["links"] = linksToList(i.Links)
	return m
}

// -----------------------------------------------------------------------------
// ItemCollection
// -----------------------------------------------------------------------------

// ItemCollection is a GeoJSON FeatureCollection of STAC items.
//
// Features is nil when the document carried no "features" member; an empty
// but present member decodes to an empty, non-nil slice.
type ItemCollection struct {
	Features []*Item
	Links    []Link
	Extra    map[string]any

	href string
}

// ObjectType implements Object.
func (c *ItemCollection) ObjectType() Type { return TypeItemCollection }

// ObjectID implements Object.
func (c *ItemCollection) ObjectID() string { return "" }

// SelfHref implements Object.
func (c *ItemCollection) SelfHref() string {
	if c.href != "" {
		return c.href
	}
	return selfLink(c.Links)
}

// SetSelfHref implements Object.
func (c *ItemCollection) SetSelfHref(href string) { c.href = href }

// HasFeatures reports whether the collection carries a features member.
func (c *ItemCollection) HasFeatures() bool { return c.Features != nil }

// ToMap implements Object.
func (c *ItemCollection) ToMap() map[string]any {
	m := copyMap(c.Extra)
	m["type"] = string(TypeItemCollection)
	if c.Features != nil {
		features := make([]any, 0, len(c.Features))
		for _, f := range c.Features {
			features = append(features, f.ToMap())
		}
		m["features"] = features
	}
	if c.Links != nil {
		m["links"] = linksToList(c.Links)
	}
	return m
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m)+8)
	for k, v := range m {
		out[k] = v
	}
	return out
}

func stringsToList(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func floatsToList(fs []float64) []any {
	out := make([]any, len(fs))
	for i, f := range fs {
		out[i] = f
	}
	return out
}

var (
	_ Object = (*Catalog)(nil)
	_ Object = (*Collection)(nil)
	_ Object = (*Item)(nil)
	_ Object = (*ItemCollection)(nil)
)
