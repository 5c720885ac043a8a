package blocks

import (
	"fmt"
	"strings"
)

// Kind classifies how a tag treats its children.
type Kind int

const (
	// Container tags keep their children as child blocks.
	Container Kind = iota
	// Textual tags fold text children into config.text.
	Textual
	// Leaf tags accept no children.
	Leaf
)

// TagError reports a node the catalog cannot transform.
type TagError struct {
	Tag    string
	Reason string
}

func (e *TagError) Error() string {
	return fmt.Sprintf("tag %q: %s", e.Tag, e.Reason)
}

// Catalog is the default Transformer. Tags map to block types of the same
// name.
type Catalog struct {
	tags map[string]Kind
}

// NewCatalog returns the built-in catalog.
func NewCatalog() *Catalog {
	return &Catalog{tags: map[string]Kind{
		"root":   Container,
		"vstack": Container,
		"hstack": Container,
		"zstack": Container,
		"text":   Textual,
		"button": Textual,
		"image":  Leaf,
		"spacer": Leaf,
		"icon":   Leaf,
	}}
}

// Register adds or replaces a tag.
func (c *Catalog) Register(tag string, kind Kind) {
	c.tags[tag] = kind
}

// CreateElement implements Transformer.
func (c *Catalog) CreateElement(n Node) (*Block, error) {
	if n.Tag == TextTag {
		return &Block{Type: "text", Config: map[string]any{"text": n.Text}}, nil
	}

	kind, ok := c.tags[n.Tag]
	if !ok {
		return nil, &TagError{Tag: n.Tag, Reason: "unknown tag"}
	}

	b := &Block{
		Type:    n.Tag,
		Config:  configOf(n.Props),
		Actions: actionsOf(n),
	}

	switch kind {
	case Container:
		b.Children = n.Children
	case Textual:
		text, err := foldText(n)
		if err != nil {
			return nil, err
		}
		if text != "" {
			if b.Config == nil {
				b.Config = map[string]any{}
			}
			b.Config["text"] = text
		}
	case Leaf:
		if len(n.Children) > 0 {
			return nil, &TagError{Tag: n.Tag, Reason: "does not accept children"}
		}
	}
	return b, nil
}

// EnsureRoot implements Transformer. A nil tree becomes an empty root.
func (c *Catalog) EnsureRoot(b *Block) (*Block, error) {
	switch {
	case b == nil:
		return &Block{Type: "root"}, nil
	case b.Type == "root":
		return b, nil
	default:
		return &Block{Type: "root", Children: []*Block{b}}, nil
	}
}

func foldText(n Node) (string, error) {
	var sb strings.Builder
	for _, child := range n.Children {
		if child.Type != "text" || len(child.Children) > 0 {
			return "", &TagError{Tag: n.Tag, Reason: "accepts only text children"}
		}
		s, _ := child.Config["text"].(string)
		sb.WriteString(s)
	}
	return sb.String(), nil
}

// configOf copies props, dropping the identity key.
func configOf(props map[string]any) map[string]any {
	if len(props) == 0 {
		return nil
	}
	out := make(map[string]any, len(props))
	for k, v := range props {
		if k == "key" {
			continue
		}
		out[k] = v
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
