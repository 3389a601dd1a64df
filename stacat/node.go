package stacat

import (
	"context"
	"fmt"
	"path"
	"slices"
	"time"

	"github.com/pithecene-io/stacat/stacat/stac"
)

// Kind identifies the STAC object type a Node wraps.
type Kind int

// Node kinds.
const (
	KindCatalog Kind = iota
	KindCollection
	KindItem
	KindItemCollection
)

func (k Kind) String() string {
	switch k {
	case KindCatalog:
		return "catalog"
	case KindCollection:
		return "collection"
	case KindItem:
		return "item"
	case KindItemCollection:
		return "item-collection"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// KindOf returns the node kind matching obj's concrete type.
func KindOf(obj stac.Object) (Kind, bool) {
	switch obj.(type) {
	case *stac.Catalog:
		return KindCatalog, true
	case *stac.Collection:
		return KindCollection, true
	case *stac.Item:
		return KindItem, true
	case *stac.ItemCollection:
		return KindItemCollection, true
	}
	return 0, false
}

// NodeID addresses a node within its tree.
type NodeID int

const noParent NodeID = -1

// tree owns every node reachable from one root.
type tree struct {
	env   *env
	nodes []*Node
}

func (t *tree) add(n *Node) *Node {
	n.tree = t
	n.id = NodeID(len(t.nodes))
	t.nodes = append(t.nodes, n)
	return n
}

func (t *tree) node(id NodeID) *Node {
	if id < 0 || int(id) >= len(t.nodes) {
		return nil
	}
	return t.nodes[id]
}

// source holds the wrapped STAC object; exactly one field is set,
// matching the node's Kind.
type source struct {
	catalog    *stac.Catalog
	collection *stac.Collection
	item       *stac.Item
	items      *stac.ItemCollection
}

func sourceOf(obj stac.Object) source {
	switch o := obj.(type) {
	case *stac.Catalog:
		return source{catalog: o}
	case *stac.Collection:
		return source{collection: o}
	case *stac.Item:
		return source{item: o}
	case *stac.ItemCollection:
		return source{items: o}
	}
	return source{}
}

func (s source) object() stac.Object {
	switch {
	case s.catalog != nil:
		return s.catalog
	case s.collection != nil:
		return s.collection
	case s.item != nil:
		return s.item
	default:
		return s.items
	}
}

type nodeState int

const (
	stateUnloaded nodeState = iota
	stateLoaded
)

type child struct {
	name  string
	node  NodeID
	entry *Entry
}

// Child is one named child of a Node: a nested Node or a loadable Entry.
type Child struct {
	Name  string
	Node  *Node
	Entry *Entry
}

// IsNode reports whether the child is a nested node.
func (c Child) IsNode() bool { return c.Node != nil }

// Node is one STAC object in a browsable catalog tree.
//
// Children are discovered on first access (Children, Keys, Len, Contains,
// Get) and memoized; a node whose expansion fails stays unexpanded and is
// retried on the next access. Nodes of one tree must not be expanded
// concurrently.
type Node struct {
	tree     *tree
	id       NodeID
	parent   NodeID
	name     string
	kind     Kind
	href     string
	src      source
	metadata Metadata

	state    nodeState
	children []child
	index    map[string]int

	linked *stac.Collection
}

// Open fetches the STAC document at href and wraps it in a root Node of the
// matching kind.
func Open(ctx context.Context, href string, opts ...Option) (*Node, error) {
	o := newOptions(opts)
	obj, err := o.env.fetch(ctx, href)
	if err != nil {
		return nil, err
	}
	kind, _ := KindOf(obj)
	return newRoot(o, obj, kind, href), nil
}

// OpenAs is Open with an expected kind. A document of any other type fails
// with ErrTypeMismatch.
func OpenAs(ctx context.Context, href string, kind Kind, opts ...Option) (*Node, error) {
	o := newOptions(opts)
	obj, err := o.env.fetch(ctx, href)
	if err != nil {
		return nil, err
	}
	if err := checkKind(obj, kind); err != nil {
		return nil, err
	}
	return newRoot(o, obj, kind, href), nil
}

// NewNode wraps an in-memory STAC object. kind must match the object's
// concrete type; a Collection is not accepted as a Catalog.
func NewNode(obj stac.Object, kind Kind, opts ...Option) (*Node, error) {
	if obj == nil {
		return nil, &TypeMismatchError{Want: kind, Got: "nil"}
	}
	if err := checkKind(obj, kind); err != nil {
		return nil, err
	}
	o := newOptions(opts)
	if o.validate {
		if err := stac.Validate(obj); err != nil {
			return nil, err
		}
	}
	return newRoot(o, obj, kind, obj.SelfHref()), nil
}

func checkKind(obj stac.Object, want Kind) error {
	got, ok := KindOf(obj)
	if !ok || got != want {
		return &TypeMismatchError{Want: want, Got: fmt.Sprintf("%s (%T)", obj.ObjectType(), obj)}
	}
	return nil
}

func newRoot(o *options, obj stac.Object, kind Kind, href string) *Node {
	t := &tree{env: &o.env}
	name := obj.ObjectID()
	if o.name != "" {
		name = o.name
	}
	n := newNode(obj, kind, name, href, noParent)
	for k, v := range o.metadata {
		n.metadata[k] = v
	}
	return t.add(n)
}

func newNode(obj stac.Object, kind Kind, name, href string, parent NodeID) *Node {
	return &Node{
		parent:   parent,
		name:     name,
		kind:     kind,
		href:     href,
		src:      sourceOf(obj),
		metadata: metadataOf(obj),
	}
}

// metadataOf derives node metadata from the wrapped object.
func metadataOf(obj stac.Object) Metadata {
	switch o := obj.(type) {
	case *stac.Item:
		m := Metadata{}
		for k, v := range o.Properties {
			m[k] = v
		}
		if o.BBox != nil {
			m["bbox"] = slices.Clone(o.BBox)
		} else {
			m["bbox"] = nil
		}
		if o.Geometry != nil {
			m["geometry"] = o.Geometry
		} else {
			m["geometry"] = nil
		}
		m["datetime"], m["date"] = nil, nil
		if dt, ok := o.Datetime(); ok {
			m["datetime"] = dt
			m["date"] = dt.Format(time.DateOnly)
		}
		return m
	case *stac.ItemCollection:
		m := Metadata(o.ToMap())
		delete(m, "features")
		delete(m, "links")
		return m
	default:
		m := Metadata(obj.ToMap())
		delete(m, "links")
		return m
	}
}

// fetch reads and decodes the document at href, recording href as its
// location.
func (e *env) fetch(ctx context.Context, href string) (stac.Object, error) {
	data, err := e.router.Read(ctx, href)
	if err != nil {
		return nil, err
	}
	obj, err := stac.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("stacat: decode %s: %w", href, err)
	}
	obj.SetSelfHref(href)
	if e.validate {
		if err := stac.Validate(obj); err != nil {
			return nil, fmt.Errorf("stacat: %s: %w", href, err)
		}
	}
	return obj, nil
}

// -----------------------------------------------------------------------------
// Accessors
// -----------------------------------------------------------------------------

// ID returns the wrapped object's STAC id.
func (n *Node) ID() string { return n.src.object().ObjectID() }

// Name returns the node's name within its parent.
func (n *Node) Name() string { return n.name }

// Kind returns the node kind.
func (n *Node) Kind() Kind { return n.kind }

// Href returns the document location relative hrefs resolve against.
func (n *Node) Href() string { return n.href }

// Object returns the wrapped STAC object.
func (n *Node) Object() stac.Object { return n.src.object() }

// Metadata returns a copy of the node metadata.
func (n *Node) Metadata() Metadata { return n.metadata.clone() }

// Loaded reports whether the node's children have been discovered.
func (n *Node) Loaded() bool { return n.state == stateLoaded }

// Parent returns the parent node, or nil for the root.
func (n *Node) Parent() *Node { return n.tree.node(n.parent) }

// Path returns the names from the root to n.
func (n *Node) Path() []string {
	var names []string
	for cur := n; cur != nil; cur = cur.Parent() {
		names = append(names, cur.name)
	}
	slices.Reverse(names)
	return names
}

func (n *Node) env() *env { return n.tree.env }

// -----------------------------------------------------------------------------
// Children
// -----------------------------------------------------------------------------

// Children returns the node's children in discovery order.
func (n *Node) Children(ctx context.Context) ([]Child, error) {
	if err := n.load(ctx); err != nil {
		return nil, err
	}
	out := make([]Child, len(n.children))
	for i, c := range n.children {
		out[i] = n.publicChild(c)
	}
	return out, nil
}

// Keys returns the child names in discovery order.
func (n *Node) Keys(ctx context.Context) ([]string, error) {
	if err := n.load(ctx); err != nil {
		return nil, err
	}
	keys := make([]string, len(n.children))
	for i, c := range n.children {
		keys[i] = c.name
	}
	return keys, nil
}

// Len returns the number of children.
func (n *Node) Len(ctx context.Context) (int, error) {
	if err := n.load(ctx); err != nil {
		return 0, err
	}
	return len(n.children), nil
}

// Contains reports whether a child with the given name exists.
func (n *Node) Contains(ctx context.Context, name string) (bool, error) {
	if err := n.load(ctx); err != nil {
		return false, err
	}
	_, ok := n.index[name]
	return ok, nil
}

// Get returns the named child. Unknown names fail with a *LookupError.
func (n *Node) Get(ctx context.Context, name string) (Child, error) {
	if err := n.load(ctx); err != nil {
		return Child{}, err
	}
	i, ok := n.index[name]
	if !ok {
		keys, _ := n.Keys(ctx)
		return Child{}, &LookupError{Name: name, Valid: keys}
	}
	return n.publicChild(n.children[i]), nil
}

// Node returns the named child node.
func (n *Node) Node(ctx context.Context, name string) (*Node, error) {
	c, err := n.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	if c.Node == nil {
		return nil, fmt.Errorf("stacat: %q is an entry, not a node: %w", name, ErrTypeMismatch)
	}
	return c.Node, nil
}

// Entry returns the named child entry.
func (n *Node) Entry(ctx context.Context, name string) (*Entry, error) {
	c, err := n.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	if c.Entry == nil {
		return nil, fmt.Errorf("stacat: %q is a node, not an entry: %w", name, ErrTypeMismatch)
	}
	return c.Entry, nil
}

// Walk follows a path of child names from n.
func (n *Node) Walk(ctx context.Context, names ...string) (Child, error) {
	cur := Child{Name: n.name, Node: n}
	for i, name := range names {
		if cur.Node == nil {
			return Child{}, fmt.Errorf("stacat: %s is an entry: %w", path.Join(names[:i]...), ErrTypeMismatch)
		}
		next, err := cur.Node.Get(ctx, name)
		if err != nil {
			return Child{}, err
		}
		cur = next
	}
	return cur, nil
}

func (n *Node) publicChild(c child) Child {
	if c.entry != nil {
		return Child{Name: c.name, Entry: c.entry}
	}
	return Child{Name: c.name, Node: n.tree.node(c.node)}
}

// load expands the node once.
func (n *Node) load(ctx context.Context) error {
	if n.state == stateLoaded {
		return nil
	}
	pending, err := n.expand(ctx)
	if err != nil {
		return err
	}
	n.children = n.children[:0]
	n.index = make(map[string]int, len(pending))
	for _, p := range pending {
		c := child{name: p.name, node: noParent, entry: p.entry}
		if p.obj != nil {
			kind, _ := KindOf(p.obj)
			c.node = n.tree.add(newNode(p.obj, kind, p.name, p.href, n.id)).id
		}
		if i, dup := n.index[p.name]; dup {
			n.env().logger.V(1).Info("duplicate child replaced", "node", n.name, "child", p.name)
			n.children[i] = c
			continue
		}
		n.index[p.name] = len(n.children)
		n.children = append(n.children, c)
	}
	n.state = stateLoaded
	return nil
}

type pendingChild struct {
	name  string
	obj   stac.Object
	href  string
	entry *Entry
}

func (n *Node) expand(ctx context.Context) ([]pendingChild, error) {
	switch n.kind {
	case KindCatalog:
		return n.expandCatalog(ctx, n.src.catalog)
	case KindCollection:
		return n.expandCatalog(ctx, &n.src.collection.Catalog)
	case KindItem:
		return n.expandItem(), nil
	case KindItemCollection:
		return n.expandItemCollection()
	}
	return nil, fmt.Errorf("stacat: unknown node kind %v", n.kind)
}

func (n *Node) expandCatalog(ctx context.Context, cat *stac.Catalog) ([]pendingChild, error) {
	var out []pendingChild
	add := func(obj stac.Object, href, fallback string) {
		name := obj.ObjectID()
		if name == "" {
			name = fallback
		}
		out = append(out, pendingChild{name: name, obj: obj, href: href})
	}

	for _, c := range cat.Children() {
		add(c, ResolveHref(n.href, c.SelfHref()), "")
	}
	for _, l := range stac.LinksByRel(cat.Links, stac.RelChild) {
		href := ResolveHref(n.href, l.Href)
		obj, err := n.env().fetch(ctx, href)
		if err != nil {
			return nil, fmt.Errorf("stacat: child of %s: %w", n.name, err)
		}
		add(obj, href, linkName(l))
	}
	for _, item := range cat.Items() {
		add(item, ResolveHref(n.href, item.SelfHref()), "")
	}
	for _, l := range stac.LinksByRel(cat.Links, stac.RelItem) {
		href := ResolveHref(n.href, l.Href)
		obj, err := n.env().fetch(ctx, href)
		if err != nil {
			return nil, fmt.Errorf("stacat: item of %s: %w", n.name, err)
		}
		if err := checkKind(obj, KindItem); err != nil {
			return nil, fmt.Errorf("stacat: item link %s: %w", href, err)
		}
		add(obj, href, linkName(l))
	}
	return out, nil
}

func linkName(l stac.Link) string {
	if l.Title != "" {
		return l.Title
	}
	return path.Base(l.Href)
}

func (n *Node) expandItem() []pendingChild {
	item := n.src.item
	keys := item.Assets.Keys()
	out := make([]pendingChild, 0, len(keys))
	for _, key := range keys {
		asset, _ := item.Assets.Get(key)
		out = append(out, pendingChild{name: key, entry: newAssetEntry(n.env(), key, asset, n.href)})
	}
	return out
}

func (n *Node) expandItemCollection() ([]pendingChild, error) {
	ic := n.src.items
	if !ic.HasFeatures() {
		return nil, fmt.Errorf("stacat: item collection %s has no features member: %w", n.name, ErrMissingCapability)
	}
	out := make([]pendingChild, 0, len(ic.Features))
	for _, item := range ic.Features {
		out = append(out, pendingChild{name: item.ID, obj: item, href: ResolveHref(n.href, item.SelfHref())})
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// Asset lookup
// -----------------------------------------------------------------------------

// AssetOption configures Asset and CollectionAsset.
type AssetOption func(*assetOptions)

type assetOptions struct {
	storage     map[string]any
	open        map[string]any
	skipStorage bool
	skipOpen    bool
}

// WithStorageOptions sets storage options for the entry. Storage options
// declared on the asset are merged over them.
func WithStorageOptions(m map[string]any) AssetOption {
	return func(o *assetOptions) { o.storage = m }
}

// WithOpenOptions sets backend open options for the entry. Open options
// declared on the asset are merged over them.
func WithOpenOptions(m map[string]any) AssetOption {
	return func(o *assetOptions) { o.open = m }
}

// WithoutAssetStorageOptions ignores the asset's declared storage options.
func WithoutAssetStorageOptions() AssetOption {
	return func(o *assetOptions) { o.skipStorage = true }
}

// WithoutAssetOpenOptions ignores the asset's declared open options.
func WithoutAssetOpenOptions() AssetOption {
	return func(o *assetOptions) { o.skipOpen = true }
}

// Asset returns an entry for the item asset key, with option merging.
func (n *Node) Asset(key string, opts ...AssetOption) (*Entry, error) {
	if n.kind != KindItem {
		return nil, fmt.Errorf("stacat: Asset on %s node %s: %w", n.kind, n.name, ErrTypeMismatch)
	}
	return n.assetEntry(n.src.item.Assets, key, opts)
}

// CollectionAsset returns an entry for a collection-level asset.
func (n *Node) CollectionAsset(key string, opts ...AssetOption) (*Entry, error) {
	if n.kind != KindCollection {
		return nil, fmt.Errorf("stacat: CollectionAsset on %s node %s: %w", n.kind, n.name, ErrTypeMismatch)
	}
	return n.assetEntry(n.src.collection.Assets, key, opts)
}

func (n *Node) assetEntry(assets *stac.Assets, key string, opts []AssetOption) (*Entry, error) {
	asset, ok := assets.Get(key)
	if !ok {
		return nil, &LookupError{Name: key, Valid: assets.Keys()}
	}
	var o assetOptions
	for _, opt := range opts {
		opt(&o)
	}
	e := newAssetEntry(n.env(), key, asset, n.href)
	e.args.StorageOptions = mergeOptions(o.storage, asset.Extra[fieldStorageOptions], o.skipStorage)
	e.args.OpenOptions = mergeOptions(o.open, asset.Extra[fieldOpenOptions], o.skipOpen)
	return e, nil
}

func mergeOptions(base map[string]any, declared any, skip bool) map[string]any {
	out := cloneAttrs(base)
	if m, ok := declared.(map[string]any); ok && !skip {
		for k, v := range m {
			out[k] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
