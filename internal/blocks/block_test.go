package blocks

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBlockTextsAndActions(t *testing.T) {
	tree := &Block{Type: "root", Children: []*Block{
		{Type: "vstack", Children: []*Block{
			{Type: "text", Config: map[string]any{"text": "Count: 1"}},
			{Type: "button", Config: map[string]any{"text": "+1"}, Actions: []Action{
				{Type: "onLongPress", ID: "A#0/action:onLongPress"},
				{Type: "onPress", ID: "A#0/action:onPress"},
			}},
			{Type: "button", Config: map[string]any{"text": "+1"}, Actions: []Action{
				{Type: "onPress", ID: "B#0/action:onPress"},
			}},
		}},
	}}

	assert.Equal(t, []string{"Count: 1", "+1", "+1"}, tree.Texts())

	id, ok := tree.ActionFor("+1", "onPress")
	assert.True(t, ok)
	assert.Equal(t, "A#0/action:onPress", id, "first match wins")

	_, ok = tree.ActionFor("Count: 1", "onPress")
	assert.False(t, ok)

	var nilTree *Block
	assert.Empty(t, nilTree.Texts())
}
