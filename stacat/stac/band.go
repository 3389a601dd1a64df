package stac

import "sort"

// Band describes one spectral band from the electro-optical extension.
type Band struct {
	// Name is the band identifier. Older documents spell it "id".
	Name             string
	CommonName       string
	Description      string
	CenterWavelength float64
	GSD              float64
	Extra            map[string]any
}

// ToMap returns the band as a generic map.
func (b Band) ToMap() map[string]any {
	m := copyMap(b.Extra)
	if b.Name != "" {
		m["name"] = b.Name
	}
	if b.CommonName != "" {
		m["common_name"] = b.CommonName
	}
	if b.Description != "" {
		m["description"] = b.Description
	}
	if b.CenterWavelength != 0 {
		m["center_wavelength"] = b.CenterWavelength
	}
	if b.GSD != 0 {
		m["gsd"] = b.GSD
	}
	return m
}

func bandFromMap(m map[string]any) Band {
	b := Band{Extra: make(map[string]any)}
	for k, v := range m {
		switch k {
		case "name":
			b.Name, _ = v.(string)
		case "id":
			if b.Name == "" {
				b.Name, _ = v.(string)
			}
		case "common_name":
			b.CommonName, _ = v.(string)
		case "description":
			b.Description, _ = v.(string)
		case "center_wavelength":
			b.CenterWavelength, _ = toFloat(v)
		case "gsd":
			b.GSD, _ = toFloat(v)
		default:
			b.Extra[k] = v
		}
	}
	return b
}

func bandsFrom(v any) []Band {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	var bands []Band
	for _, entry := range list {
		if m, ok := entry.(map[string]any); ok {
			bands = append(bands, bandFromMap(m))
		}
	}
	return bands
}

// Bands returns the item-level eo:bands from the item properties.
func (i *Item) Bands() []Band {
	return bandsFrom(i.Properties["eo:bands"])
}

// SummaryBands returns the eo:bands listed in the collection summaries.
func (c *Collection) SummaryBands() []Band {
	return bandsFrom(c.Summaries["eo:bands"])
}

// BandTable indexes band metadata by band name and common name.
type BandTable struct {
	bands []Band
}

// NewBandTable builds a table from band lists, earlier lists taking
// precedence for duplicate names.
func NewBandTable(lists ...[]Band) *BandTable {
	t := &BandTable{}
	seen := make(map[string]bool)
	for _, list := range lists {
		for _, b := range list {
			if b.Name != "" && seen[b.Name] {
				continue
			}
			seen[b.Name] = true
			t.bands = append(t.bands, b)
		}
	}
	return t
}

// Empty reports whether the table holds no bands.
func (t *BandTable) Empty() bool { return t == nil || len(t.bands) == 0 }

// ByName returns the band whose name equals name.
func (t *BandTable) ByName(name string) (Band, bool) {
	if t == nil {
		return Band{}, false
	}
	for _, b := range t.bands {
		if b.Name == name {
			return b, true
		}
	}
	return Band{}, false
}

// ByCommonName returns the first band whose common name equals name.
func (t *BandTable) ByCommonName(name string) (Band, bool) {
	if t == nil {
		return Band{}, false
	}
	for _, b := range t.bands {
		if b.CommonName == name {
			return b, true
		}
	}
	return Band{}, false
}

// CommonNames returns the sorted, deduplicated common names.
func (t *BandTable) CommonNames() []string {
	if t == nil {
		return nil
	}
	set := make(map[string]struct{})
	for _, b := range t.bands {
		if b.CommonName != "" {
			set[b.CommonName] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
