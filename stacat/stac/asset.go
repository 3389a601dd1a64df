package stac

// Asset is a STAC asset: a single file referenced by an item or collection.
type Asset struct {
	Href        string
	Type        string
	Title       string
	Description string
	Roles       []string
	Extra       map[string]any
}

// ToMap returns the asset as a generic map, including extension fields.
func (a *Asset) ToMap() map[string]any {
	m := copyMap(a.Extra)
	m["href"] = a.Href
	if a.Type != "" {
		m["type"] = a.Type
	}
	if a.Title != "" {
		m["title"] = a.Title
	}
	if a.Description != "" {
		m["description"] = a.Description
	}
	if a.Roles != nil {
		m["roles"] = stringsToList(a.Roles)
	}
	return m
}

// Field returns an extension field by name.
func (a *Asset) Field(name string) (any, bool) {
	v, ok := a.Extra[name]
	return v, ok
}

// Bands returns the asset-level eo:bands entries that are band objects.
// Index references into item-level bands (STAC 0.9 style) are skipped.
func (a *Asset) Bands() []Band {
	return bandsFrom(a.Extra["eo:bands"])
}

// Assets is an ordered mapping of asset key to Asset. Iteration follows
// document order. The zero value is empty and ready to use; a nil *Assets
// behaves as an empty mapping for reads.
type Assets struct {
	keys  []string
	byKey map[string]*Asset
}

// NewAssets returns an empty mapping.
func NewAssets() *Assets {
	return &Assets{byKey: make(map[string]*Asset)}
}

// Set adds or replaces an asset. Replacing keeps the original position.
func (a *Assets) Set(key string, asset *Asset) {
	if a.byKey == nil {
		a.byKey = make(map[string]*Asset)
	}
	if _, ok := a.byKey[key]; !ok {
		a.keys = append(a.keys, key)
	}
	a.byKey[key] = asset
}

// Get returns the asset stored under key.
func (a *Assets) Get(key string) (*Asset, bool) {
	if a == nil {
		return nil, false
	}
	asset, ok := a.byKey[key]
	return asset, ok
}

// Keys returns the asset keys in document order.
func (a *Assets) Keys() []string {
	if a == nil {
		return nil
	}
	return append([]string(nil), a.keys...)
}

// Len returns the number of assets.
func (a *Assets) Len() int {
	if a == nil {
		return 0
	}
	return len(a.keys)
}

func (a *Assets) toMap() map[string]any {
	m := make(map[string]any, a.Len())
	if a == nil {
		return m
	}
	for _, k := range a.keys {
		m[k] = a.byKey[k].ToMap()
	}
	return m
}
