package blocks

import "sort"

// TextTag is the tag of a reified text element.
const TextTag = "#text"

// Node is one reified intrinsic element.
type Node struct {
	Tag string
	// Props holds the JSON-serialisable props. Function-valued props are
	// never present here; see Actions.
	Props map[string]any
	// Actions maps a prop name to the id of the action hook that
	// replaced it.
	Actions map[string]string
	// Children are the already transformed child blocks.
	Children []*Block
	// Text is set only for TextTag nodes.
	Text string
}

// Block is a node of the rendered platform tree.
type Block struct {
	Type     string         `json:"type"`
	Config   map[string]any `json:"config,omitempty"`
	Children []*Block       `json:"children,omitempty"`
	Actions  []Action       `json:"actions,omitempty"`
}

// Action binds a block interaction to an action hook.
type Action struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// Transformer builds platform blocks from reified nodes.
type Transformer interface {
	CreateElement(n Node) (*Block, error)
	EnsureRoot(b *Block) (*Block, error)
}

// actionsOf returns the actions of n ordered by prop name.
func actionsOf(n Node) []Action {
	if len(n.Actions) == 0 {
		return nil
	}
	names := make([]string, 0, len(n.Actions))
	for name := range n.Actions {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]Action, len(names))
	for i, name := range names {
		out[i] = Action{Type: name, ID: n.Actions[name]}
	}
	return out
}

// Texts returns the text of every block in depth-first order.
func (b *Block) Texts() []string {
	var out []string
	b.walk(func(n *Block) bool {
		if s, ok := n.Config["text"].(string); ok {
			out = append(out, s)
		}
		return true
	})
	return out
}

// ActionFor returns the hook id bound to action on the first block whose
// text is label.
func (b *Block) ActionFor(label, action string) (string, bool) {
	var id string
	b.walk(func(n *Block) bool {
		if s, _ := n.Config["text"].(string); s != label {
			return true
		}
		for _, a := range n.Actions {
			if a.Type == action {
				id = a.ID
				return false
			}
		}
		return true
	})
	return id, id != ""
}

// walk visits b and its descendants until fn returns false.
func (b *Block) walk(fn func(*Block) bool) bool {
	if b == nil {
		return true
	}
	if !fn(b) {
		return false
	}
	for _, c := range b.Children {
		if !c.walk(fn) {
			return false
		}
	}
	return true
}
