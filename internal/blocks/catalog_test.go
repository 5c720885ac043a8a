package blocks

import (
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func text(t *testing.T, c *Catalog, s string) *Block {
	t.Helper()
	b, err := c.CreateElement(Node{Tag: TextTag, Text: s})
	require.NoError(t, err)
	return b
}

func TestCreateElementText(t *testing.T) {
	c := NewCatalog()
	b := text(t, c, "hello")
	assert.Equal(t, &Block{Type: "text", Config: map[string]any{"text": "hello"}}, b)
}

func TestCreateElementFoldsText(t *testing.T) {
	c := NewCatalog()
	b, err := c.CreateElement(Node{
		Tag:      "button",
		Props:    map[string]any{"appearance": "primary", "key": "k"},
		Actions:  map[string]string{"onPress": "Root#0/action:onPress"},
		Children: []*Block{text(t, c, "Count: "), text(t, c, "3")},
	})
	require.NoError(t, err)
	assert.Equal(t, "button", b.Type)
	assert.Equal(t, map[string]any{"appearance": "primary", "text": "Count: 3"}, b.Config)
	assert.Empty(t, b.Children)
	assert.Equal(t, []Action{{Type: "onPress", ID: "Root#0/action:onPress"}}, b.Actions)
}

func TestCreateElementActionsSorted(t *testing.T) {
	c := NewCatalog()
	b, err := c.CreateElement(Node{
		Tag: "vstack",
		Actions: map[string]string{
			"onPress":     "a/action:onPress",
			"onLongPress": "a/action:onLongPress",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []Action{
		{Type: "onLongPress", ID: "a/action:onLongPress"},
		{Type: "onPress", ID: "a/action:onPress"},
	}, b.Actions)
}

func TestCreateElementErrors(t *testing.T) {
	c := NewCatalog()
	tests := []struct {
		name string
		node Node
	}{
		{"unknown tag", Node{Tag: "marquee"}},
		{"leaf with children", Node{Tag: "image", Children: []*Block{{Type: "text"}}}},
		{"textual with block child", Node{Tag: "text", Children: []*Block{{Type: "vstack"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.CreateElement(tt.node)
			var te *TagError
			require.ErrorAs(t, err, &te)
			assert.Equal(t, tt.node.Tag, te.Tag)
		})
	}
}

func TestRegister(t *testing.T) {
	c := NewCatalog()
	c.Register("avatar", Leaf)
	b, err := c.CreateElement(Node{Tag: "avatar", Props: map[string]any{"size": 2}})
	require.NoError(t, err)
	assert.Equal(t, "avatar", b.Type)
}

func TestEnsureRoot(t *testing.T) {
	c := NewCatalog()

	b, err := c.EnsureRoot(nil)
	require.NoError(t, err)
	assert.Equal(t, &Block{Type: "root"}, b)

	root := &Block{Type: "root"}
	b, err = c.EnsureRoot(root)
	require.NoError(t, err)
	assert.Same(t, root, b)

	inner := &Block{Type: "vstack"}
	b, err = c.EnsureRoot(inner)
	require.NoError(t, err)
	assert.Equal(t, "root", b.Type)
	require.Len(t, b.Children, 1)
	assert.Same(t, inner, b.Children[0])
}

func jsonEqual(actual, expected []byte) bool {
	var a, e any
	if json.Unmarshal(actual, &a) != nil || json.Unmarshal(expected, &e) != nil {
		return false
	}
	ab, _ := json.Marshal(a)
	eb, _ := json.Marshal(e)
	return string(ab) == string(eb)
}

func TestCatalogGolden(t *testing.T) {
	c := NewCatalog()

	title, err := c.CreateElement(Node{
		Tag:      "text",
		Props:    map[string]any{"size": "large"},
		Children: []*Block{text(t, c, "Counter")},
	})
	require.NoError(t, err)

	inc, err := c.CreateElement(Node{
		Tag:      "button",
		Actions:  map[string]string{"onPress": "Counter#0.button#0/action:onPress"},
		Children: []*Block{text(t, c, "+1")},
	})
	require.NoError(t, err)

	spacer, err := c.CreateElement(Node{Tag: "spacer"})
	require.NoError(t, err)

	stack, err := c.CreateElement(Node{
		Tag:      "vstack",
		Props:    map[string]any{"gap": "small", "key": "main"},
		Children: []*Block{title, spacer, inc},
	})
	require.NoError(t, err)

	root, err := c.EnsureRoot(stack)
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
		goldie.WithEqualFn(jsonEqual),
	)
	g.AssertJson(t, "counter_tree", root)
}
