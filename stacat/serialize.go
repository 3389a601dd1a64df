package stacat

import (
	"context"
	"time"

	"gopkg.in/yaml.v3"
)

// Serialize renders the node as YAML: its metadata and, under "sources",
// a description of every child. Child nodes are described, not recursed
// into.
func (n *Node) Serialize(ctx context.Context) ([]byte, error) {
	children, err := n.Children(ctx)
	if err != nil {
		return nil, err
	}
	sources := make(map[string]any, len(children))
	for _, c := range children {
		if c.Entry != nil {
			d := c.Entry.Describe()
			delete(d, "name")
			sources[c.Name] = yamlSafe(d)
			continue
		}
		sources[c.Name] = map[string]any{
			"driver":      "stac_" + c.Node.kind.String(),
			"description": c.Node.description(),
			"args":        map[string]any{"urlpath": c.Node.href},
			"metadata":    yamlSafe(map[string]any(c.Node.metadata)),
		}
	}
	doc := map[string]any{
		"metadata": yamlSafe(map[string]any(n.metadata)),
		"sources":  sources,
	}
	return yaml.Marshal(doc)
}

func (n *Node) description() string {
	switch n.kind {
	case KindCatalog:
		return n.src.catalog.Description
	case KindCollection:
		return n.src.collection.Description
	case KindItem:
		if t, ok := n.src.item.Properties["title"].(string); ok {
			return t
		}
	}
	return ""
}

// yamlSafe converts values YAML would render awkwardly: times become
// RFC 3339 strings.
func yamlSafe(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = yamlSafe(e)
		}
		return out
	case Metadata:
		return yamlSafe(map[string]any(x))
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = yamlSafe(e)
		}
		return out
	case time.Time:
		return x.Format(time.RFC3339Nano)
	}
	return v
}
