package stacat

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/pithecene-io/stacat/internal/pattern"
	"github.com/pithecene-io/stacat/stacat/stac"
)

// Stack defaults.
const (
	DefaultConcatDim = "band"
	DefaultItemDim   = "time"
	ItemStackName    = "item_stack"
)

// StackOption configures StackBands and StackItems.
type StackOption func(*stackOptions)

type stackOptions struct {
	pattern   string
	concatDim string
	itemDim   string
	regrid    bool
	coords    []string
}

func newStackOptions(opts []StackOption) *stackOptions {
	o := &stackOptions{concatDim: DefaultConcatDim, itemDim: DefaultItemDim}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithPathPattern sets the pattern used to extract concat-dimension
// coordinates from member hrefs, such as "s3://b/scene_{band}.TIF".
// Without it a pattern is derived from the hrefs when possible.
func WithPathPattern(p string) StackOption {
	return func(o *stackOptions) { o.pattern = p }
}

// WithConcatDim names the dimension bands are concatenated along.
func WithConcatDim(dim string) StackOption {
	return func(o *stackOptions) {
		if dim != "" {
			o.concatDim = dim
		}
	}
}

// WithItemDim names the dimension items are stacked along by StackItems.
func WithItemDim(dim string) StackOption {
	return func(o *stackOptions) {
		if dim != "" {
			o.itemDim = dim
		}
	}
}

// WithRegrid accepts members of differing resolution. Arrays are resampled
// to the largest member shape when read. Asset keys without band metadata
// are also accepted.
func WithRegrid() StackOption {
	return func(o *stackOptions) { o.regrid = true }
}

// WithOverrideCoords labels the concat dimension explicitly, one label per
// requested band. The labels replace those a path pattern would extract.
func WithOverrideCoords(coords ...string) StackOption {
	return func(o *stackOptions) { o.coords = coords }
}

// resolvedBand is one band spec resolved against an item.
type resolvedBand struct {
	spec  string
	key   string
	asset *stac.Asset
	href  string
	res   Resolution
	band  stac.Band
	known bool
}

// StackBands combines the given bands of an item node into one Entry whose
// array gains a concat dimension ("band" by default), in the requested
// order. Each band is an asset key or an eo:bands common name.
//
// StackBands performs no asset I/O. It may fetch the item's collection
// document to find band metadata.
func (n *Node) StackBands(ctx context.Context, bands []string, opts ...StackOption) (*Entry, error) {
	if n.kind != KindItem {
		return nil, fmt.Errorf("stacat: StackBands on %s node %s: %w", n.kind, n.name, ErrTypeMismatch)
	}
	if len(bands) == 0 {
		return nil, &StackError{Reason: "no bands requested"}
	}
	o := newStackOptions(opts)
	if len(o.coords) > 0 && len(o.coords) != len(bands) {
		return nil, &StackError{Reason: fmt.Sprintf("%d override coords for %d bands", len(o.coords), len(bands))}
	}

	resolved, err := n.resolveBands(ctx, bands, o.regrid)
	if err != nil {
		return nil, err
	}
	if err := checkCompatible(resolved, o.regrid); err != nil {
		return nil, err
	}

	hrefs := make([]string, len(resolved))
	keys := make([]string, len(resolved))
	for i, r := range resolved {
		hrefs[i] = r.href
		keys[i] = r.key
	}
	pat := o.pattern
	if pat == "" {
		pat, err = pattern.Synthesize(hrefs, keys, o.concatDim)
		if err != nil {
			return nil, stackPatternError(err)
		}
	} else if _, err := pattern.Compile(pat); err != nil {
		return nil, err
	}

	args := LoadArgs{
		URLPaths:    hrefs,
		Chunks:      Chunks{},
		ConcatDim:   o.concatDim,
		PathPattern: pat,
		Regrid:      o.regrid,
	}
	switch {
	case len(o.coords) > 0:
		args.OverrideCoords = slices.Clone(o.coords)
	case pat == "":
		args.OverrideCoords = slices.Clone(bands)
	}

	e := n.combinedEntry(strings.Join(bands, "_"), strings.Join(keys, ", "), resolved[0].res, args)
	for i, r := range resolved {
		e.members = append(e.members, Member{Href: r.href, Key: r.key, Label: r.key, BandIndex: i})
		e.metadata[r.key] = r.asset.ToMap()
		e.diagnostics = append(e.diagnostics, r.res.Diagnostics...)
	}
	return e, nil
}

// StackItems stacks the given assets of several items into one Entry with
// an item dimension ("time" by default) ahead of the band dimension. Items
// are named by id and stacked in the given order. Any item failing to
// resolve aborts the whole stack.
func (n *Node) StackItems(ctx context.Context, itemIDs, assets []string, opts ...StackOption) (*Entry, error) {
	switch n.kind {
	case KindCatalog, KindCollection, KindItemCollection:
	default:
		return nil, fmt.Errorf("stacat: StackItems on %s node %s: %w", n.kind, n.name, ErrTypeMismatch)
	}
	if len(itemIDs) == 0 || len(assets) == 0 {
		return nil, &StackError{Reason: "no items or assets requested"}
	}
	o := newStackOptions(opts)
	if len(o.coords) > 0 && len(o.coords) != len(assets) {
		return nil, &StackError{Reason: fmt.Sprintf("%d override coords for %d assets", len(o.coords), len(assets))}
	}
	if o.pattern != "" {
		if _, err := pattern.Compile(o.pattern); err != nil {
			return nil, err
		}
	}

	var all []resolvedBand
	var members []Member
	metadata := Metadata{}
	for i, id := range itemIDs {
		item, err := n.Node(ctx, id)
		if err != nil {
			return nil, err
		}
		if item.kind != KindItem {
			return nil, fmt.Errorf("stacat: %s: %w", id, &TypeMismatchError{Want: KindItem, Got: item.kind.String()})
		}
		resolved, err := item.resolveBands(ctx, assets, o.regrid)
		if err != nil {
			return nil, err
		}
		if o.pattern == "" {
			hrefs := make([]string, len(resolved))
			keys := make([]string, len(resolved))
			for j, r := range resolved {
				hrefs[j], keys[j] = r.href, r.key
			}
			if _, err := pattern.Synthesize(hrefs, keys, o.concatDim); err != nil {
				return nil, stackPatternError(err)
			}
		}
		dt, _ := item.src.item.Datetime()
		perItem := make(map[string]any, len(resolved))
		for j, r := range resolved {
			label := r.key
			if len(o.coords) > 0 {
				label = o.coords[j]
			}
			members = append(members, Member{
				Href:      r.href,
				Key:       r.key,
				Label:     label,
				Item:      item.ID(),
				Datetime:  dt,
				ItemIndex: i,
				BandIndex: j,
			})
			perItem[r.key] = r.asset.ToMap()
		}
		metadata[item.ID()] = perItem
		all = append(all, resolved...)
	}
	if err := checkCompatible(all, o.regrid); err != nil {
		return nil, err
	}

	hrefs := make([]string, len(members))
	for i, m := range members {
		hrefs[i] = m.Href
	}
	args := LoadArgs{
		URLPaths:       hrefs,
		Chunks:         Chunks{},
		ConcatDim:      o.concatDim,
		PathPattern:    o.pattern,
		ItemDim:        o.itemDim,
		Regrid:         o.regrid,
		OverrideCoords: slices.Clone(o.coords),
	}
	desc := fmt.Sprintf("%s of %s", strings.Join(assets, ", "), strings.Join(itemIDs, ", "))
	e := n.combinedEntry(ItemStackName, desc, all[0].res, args)
	e.members = members
	for k, v := range metadata {
		e.metadata[k] = v
	}
	for _, r := range all {
		e.diagnostics = append(e.diagnostics, r.res.Diagnostics...)
	}
	return e, nil
}

func (n *Node) combinedEntry(name, desc string, res Resolution, args LoadArgs) *Entry {
	metadata := Metadata{"type": res.MediaType}
	if plots := plotHints(res.MediaType); plots != nil {
		metadata["plots"] = plots
	}
	return &Entry{
		name:        name,
		description: desc,
		mediaType:   res.MediaType,
		strategy:    res.Strategy,
		args:        args,
		metadata:    metadata,
		env:         n.env(),
	}
}

func stackPatternError(err error) error {
	if errors.Is(err, pattern.ErrInconsistent) {
		return &StackError{Reason: "band hrefs do not share a path pattern", Values: []string{err.Error()}}
	}
	return err
}

// resolveBands resolves each spec to an asset of item node n.
func (n *Node) resolveBands(ctx context.Context, specs []string, regrid bool) ([]resolvedBand, error) {
	item := n.src.item
	table := stac.NewBandTable(n.itemBands(ctx)...)
	owner := bandOwners(item)

	out := make([]resolvedBand, 0, len(specs))
	for _, spec := range specs {
		r := resolvedBand{spec: spec}
		if asset, ok := item.Assets.Get(spec); ok {
			r.key, r.asset = spec, asset
			r.band, r.known = table.ByName(spec)
			if !r.known {
				for name, key := range owner {
					if key == spec {
						r.band, r.known = table.ByName(name)
						break
					}
				}
			}
		} else if b, ok := table.ByCommonName(spec); ok {
			key := b.Name
			if k, ok := owner[b.Name]; ok {
				key = k
			}
			if asset, ok := item.Assets.Get(key); ok {
				r.key, r.asset, r.band, r.known = key, asset, b, true
			}
		}
		if r.asset == nil || (!r.known && !regrid) {
			return nil, &ResolutionError{Spec: spec, Item: item.ID, Valid: validSpecs(table, item, regrid)}
		}
		r.href = ResolveHref(n.href, r.asset.Href)
		r.res = n.env().resolver.Resolve(r.asset.Type, r.href)
		out = append(out, r)
	}
	return out, nil
}

// itemBands returns the band lists consulted for item node n, highest
// precedence first: item properties, asset-level bands, then the
// collection summaries.
func (n *Node) itemBands(ctx context.Context) [][]stac.Band {
	item := n.src.item
	lists := [][]stac.Band{item.Bands()}
	for _, key := range item.Assets.Keys() {
		asset, _ := item.Assets.Get(key)
		lists = append(lists, asset.Bands())
	}
	if c := n.collection(ctx); c != nil {
		lists = append(lists, c.SummaryBands())
	}
	return lists
}

// bandOwners maps band names declared on assets to the asset key that
// declares them.
func bandOwners(item *stac.Item) map[string]string {
	out := make(map[string]string)
	for _, key := range item.Assets.Keys() {
		asset, _ := item.Assets.Get(key)
		for _, b := range asset.Bands() {
			if _, ok := out[b.Name]; !ok && b.Name != "" {
				out[b.Name] = key
			}
		}
	}
	return out
}

func validSpecs(table *stac.BandTable, item *stac.Item, regrid bool) []string {
	set := make(map[string]struct{})
	for _, key := range item.Assets.Keys() {
		if _, ok := table.ByName(key); ok || regrid {
			set[key] = struct{}{}
		}
	}
	owner := bandOwners(item)
	for name := range owner {
		if _, ok := table.ByName(name); ok {
			set[name] = struct{}{}
		}
	}
	for _, c := range table.CommonNames() {
		set[c] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// collection returns the collection an item node belongs to: the nearest
// collection ancestor, or the target of the item's collection link.
// Unreachable collections yield nil.
func (n *Node) collection(ctx context.Context) *stac.Collection {
	for p := n.Parent(); p != nil; p = p.Parent() {
		if p.kind == KindCollection {
			return p.src.collection
		}
	}
	if n.linked != nil {
		return n.linked
	}
	links := stac.LinksByRel(n.src.item.Links, stac.RelCollection)
	if len(links) == 0 || n.href == "" {
		return nil
	}
	href := ResolveHref(n.href, links[0].Href)
	obj, err := n.env().fetch(ctx, href)
	if err != nil {
		n.env().logger.V(1).Info("collection unavailable", "item", n.name, "href", href, "err", err.Error())
		return nil
	}
	c, ok := obj.(*stac.Collection)
	if !ok {
		return nil
	}
	n.linked = c
	return c
}

// checkCompatible rejects members with mixed media types, and members of
// differing resolution unless regrid is set.
func checkCompatible(bands []resolvedBand, regrid bool) error {
	types := distinct(bands, func(r resolvedBand) (string, bool) { return r.res.MediaType, true })
	if len(types) > 1 {
		return &StackError{Reason: "bands must share one media type, found", Values: types}
	}
	if regrid {
		return nil
	}
	gsds := distinct(bands, func(r resolvedBand) (string, bool) {
		if r.band.GSD != 0 {
			return strconv.FormatFloat(r.band.GSD, 'g', -1, 64), true
		}
		if v, ok := r.asset.Extra["gsd"]; ok {
			return fmt.Sprint(v), true
		}
		return "", false
	})
	if len(gsds) > 1 {
		return &StackError{Reason: "bands differ in gsd (use WithRegrid to resample)", Values: gsds}
	}
	shapes := distinct(bands, func(r resolvedBand) (string, bool) {
		v, ok := r.asset.Extra["proj:shape"]
		if !ok {
			return "", false
		}
		return fmt.Sprint(v), true
	})
	if len(shapes) > 1 {
		return &StackError{Reason: "bands differ in proj:shape (use WithRegrid to resample)", Values: shapes}
	}
	return nil
}

func distinct(bands []resolvedBand, value func(resolvedBand) (string, bool)) []string {
	var out []string
	for _, b := range bands {
		if v, ok := value(b); ok && !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}
