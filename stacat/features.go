package stacat

import (
	"context"
	"fmt"
)

// Features returns the items of an item-collection node as a table with
// one row per item: its id, properties and geometry. crs labels the
// geometries; empty means DefaultCRS.
//
// Features needs the StrategyGeo backend and fails with
// ErrBackendUnavailable when it has been removed.
func (n *Node) Features(ctx context.Context, crs string) (*Table, error) {
	if n.kind != KindItemCollection {
		return nil, fmt.Errorf("stacat: Features on %s node %s: %w", n.kind, n.name, ErrTypeMismatch)
	}
	ic := n.src.items
	if !ic.HasFeatures() {
		return nil, fmt.Errorf("stacat: item collection %s has no features member: %w", n.name, ErrMissingCapability)
	}
	b, err := n.env().backend(StrategyGeo)
	if err != nil {
		return nil, err
	}
	if b.Container() != ContainerTable {
		return nil, fmt.Errorf("stacat: %s backend produces %s, not a table: %w", StrategyGeo, b.Container(), ErrBackendUnavailable)
	}

	doc := map[string]any{"type": "FeatureCollection"}
	features := make([]any, len(ic.Features))
	for i, item := range ic.Features {
		f := map[string]any{
			"type":       "Feature",
			"id":         item.ID,
			"geometry":   item.Geometry,
			"properties": item.Properties,
		}
		if item.Properties == nil {
			f["properties"] = map[string]any{}
		}
		features[i] = f
	}
	doc["features"] = features
	body, err := jsonCodec.Marshal(doc)
	if err != nil {
		return nil, err
	}

	data, err := b.Load(ctx, Blob{Href: n.href, Body: body}, LoadArgs{URLPath: n.href})
	if err != nil {
		return nil, err
	}
	if crs == "" {
		crs = DefaultCRS
	}
	data.Table.CRS = crs
	return data.Table, nil
}
