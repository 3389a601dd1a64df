package stac

import (
	"errors"
	"fmt"
	"io"
	"slices"

	jsoniter "github.com/json-iterator/go"
)

// Decode parses a STAC document and returns the matching Object.
//
// The document type comes from the "type" member. Pre-1.0 catalogs and
// collections without one are recognized by their members. Asset keys keep
// their document order.
func Decode(data []byte) (Object, error) {
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: document is not a JSON object", ErrInvalidDocument)
	}

	switch t := detectType(doc); t {
	case TypeCatalog:
		return catalogFromDoc(doc), nil
	case TypeCollection:
		order, err := objectKeys(data, "assets")
		if err != nil {
			return nil, err
		}
		return collectionFromDoc(doc, order), nil
	case TypeItem:
		order, err := objectKeys(data, "assets")
		if err != nil {
			return nil, err
		}
		return itemFromDoc(doc, order), nil
	case TypeItemCollection:
		return itemCollectionFromBytes(data, doc)
	default:
		return nil, fmt.Errorf("%w: unrecognized type %q", ErrInvalidDocument, t)
	}
}

func detectType(doc map[string]any) Type {
	if t, ok := doc["type"].(string); ok && t != "" {
		return Type(t)
	}
	if _, ok := doc["features"]; ok {
		return TypeItemCollection
	}
	if _, ok := doc["extent"]; ok {
		return TypeCollection
	}
	if _, ok := doc["license"]; ok {
		return TypeCollection
	}
	if _, ok := doc["assets"]; ok {
		return TypeItem
	}
	return TypeCatalog
}

// objectKeys returns the member names of the top-level object field, in
// document order.
func objectKeys(data []byte, field string) ([]string, error) {
	iter := jsoniter.ParseBytes(json, data)
	var keys []string
	iter.ReadMapCB(func(it *jsoniter.Iterator, key string) bool {
		if key != field || it.WhatIsNext() != jsoniter.ObjectValue {
			it.Skip()
			return true
		}
		it.ReadMapCB(func(inner *jsoniter.Iterator, k string) bool {
			keys = append(keys, k)
			inner.Skip()
			return true
		})
		return true
	})
	if iter.Error != nil && !errors.Is(iter.Error, io.EOF) {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, iter.Error)
	}
	return keys, nil
}

// rawFeatures returns the raw bytes of every element of the top-level
// "features" array.
func rawFeatures(data []byte) ([][]byte, error) {
	iter := jsoniter.ParseBytes(json, data)
	var out [][]byte
	iter.ReadMapCB(func(it *jsoniter.Iterator, key string) bool {
		if key != "features" || it.WhatIsNext() != jsoniter.ArrayValue {
			it.Skip()
			return true
		}
		it.ReadArrayCB(func(inner *jsoniter.Iterator) bool {
			raw := inner.SkipAndReturnBytes()
			out = append(out, append([]byte(nil), raw...))
			return true
		})
		return true
	})
	if iter.Error != nil && !errors.Is(iter.Error, io.EOF) {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, iter.Error)
	}
	return out, nil
}

var catalogKeys = []string{"type", "id", "title", "description", "stac_version", "stac_extensions", "links"}

func catalogFromDoc(doc map[string]any) *Catalog {
	c := &Catalog{}
	fillCatalog(c, doc)
	c.Extra = extra(doc, catalogKeys)
	return c
}

func fillCatalog(c *Catalog, doc map[string]any) {
	c.ID, _ = doc["id"].(string)
	c.Title, _ = doc["title"].(string)
	c.Description, _ = doc["description"].(string)
	c.StacVersion, _ = doc["stac_version"].(string)
	c.StacExtensions = stringList(doc["stac_extensions"])
	c.Links = linksFrom(doc["links"])
}

func collectionFromDoc(doc map[string]any, assetOrder []string) *Collection {
	c := &Collection{}
	fillCatalog(&c.Catalog, doc)
	c.License, _ = doc["license"].(string)
	c.Keywords = stringList(doc["keywords"])
	c.Providers, _ = doc["providers"].([]any)
	c.Extent, _ = doc["extent"].(map[string]any)
	c.Summaries, _ = doc["summaries"].(map[string]any)
	if raw, ok := doc["assets"].(map[string]any); ok {
		c.Assets = assetsFrom(raw, assetOrder)
	}
	c.Extra = extra(doc, slices.Concat(catalogKeys, []string{"license", "keywords", "providers", "extent", "summaries", "assets"}))
	return c
}

func itemFromDoc(doc map[string]any, assetOrder []string) *Item {
	item := &Item{}
	item.ID, _ = doc["id"].(string)
	item.Collection, _ = doc["collection"].(string)
	item.StacVersion, _ = doc["stac_version"].(string)
	item.StacExtensions = stringList(doc["stac_extensions"])
	item.Geometry, _ = doc["geometry"].(map[string]any)
	item.Properties, _ = doc["properties"].(map[string]any)
	if item.Properties == nil {
		item.Properties = make(map[string]any)
	}
	if list, ok := doc["bbox"].([]any); ok {
		for _, v := range list {
			if f, ok := toFloat(v); ok {
				item.BBox = append(item.BBox, f)
			}
		}
	}
	raw, _ := doc["assets"].(map[string]any)
	item.Assets = assetsFrom(raw, assetOrder)
	item.Links = linksFrom(doc["links"])
	item.Extra = extra(doc, []string{
		"type", "id", "collection", "stac_version", "stac_extensions",
		"geometry", "properties", "bbox", "assets", "links",
	})
	return item
}

func itemCollectionFromBytes(data []byte, doc map[string]any) (*ItemCollection, error) {
	c := &ItemCollection{
		Links: linksFrom(doc["links"]),
		Extra: extra(doc, []string{"type", "features", "links"}),
	}
	if _, ok := doc["features"]; !ok {
		return c, nil
	}
	raws, err := rawFeatures(data)
	if err != nil {
		return nil, err
	}
	c.Features = make([]*Item, 0, len(raws))
	for i, raw := range raws {
		var fdoc map[string]any
		if err := json.Unmarshal(raw, &fdoc); err != nil {
			return nil, fmt.Errorf("%w: feature %d: %w", ErrInvalidDocument, i, err)
		}
		order, err := objectKeys(raw, "assets")
		if err != nil {
			return nil, err
		}
		c.Features = append(c.Features, itemFromDoc(fdoc, order))
	}
	return c, nil
}

func assetsFrom(raw map[string]any, order []string) *Assets {
	assets := NewAssets()
	for _, key := range order {
		if m, ok := raw[key].(map[string]any); ok {
			assets.Set(key, assetFromMap(m))
		}
	}
	// Keys the ordered scan missed (not expected for well-formed input).
	for key, v := range raw {
		if _, ok := assets.Get(key); ok {
			continue
		}
		if m, ok := v.(map[string]any); ok {
			assets.Set(key, assetFromMap(m))
		}
	}
	return assets
}

func assetFromMap(m map[string]any) *Asset {
	a := &Asset{}
	a.Href, _ = m["href"].(string)
	a.Type, _ = m["type"].(string)
	a.Title, _ = m["title"].(string)
	a.Description, _ = m["description"].(string)
	a.Roles = stringList(m["roles"])
	a.Extra = extra(m, []string{"href", "type", "title", "description", "roles"})
	return a
}

func linksFrom(v any) []Link {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	links := make([]Link, 0, len(list))
	for _, entry := range list {
		m, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		l := Link{}
		l.Rel, _ = m["rel"].(string)
		l.Href, _ = m["href"].(string)
		l.Type, _ = m["type"].(string)
		l.Title, _ = m["title"].(string)
		l.Extra = extra(m, []string{"rel", "href", "type", "title"})
		links = append(links, l)
	}
	return links
}

func stringList(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, e := range list {
		if s, ok := e.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func extra(doc map[string]any, known []string) map[string]any {
	out := make(map[string]any)
	for k, v := range doc {
		out[k] = v
	}
	for _, k := range known {
		delete(out, k)
	}
	return out
}
