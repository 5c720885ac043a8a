package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/blockrt/internal/blocks"
	"github.com/roach88/blockrt/internal/protocol"
	"github.com/roach88/blockrt/internal/value"
)

var item = Define("Item", func(c *Ctx, props Props) Element {
	n, set := UseState(c, 0)
	return El("button", Props{"onPress": ActionFunc(func(ctx context.Context, _ json.RawMessage) error {
		return set.Set(n + 1)
	})}, Text(fmt.Sprintf("%v=%d", props["key"], n)))
})

// list renders one keyed Item per entry of props.items, in prop order.
var list = Define("List", func(c *Ctx, props Props) Element {
	raw, _ := props["items"].([]any)
	kids := make([]Element, 0, len(raw))
	for _, k := range raw {
		kids = append(kids, item.New(Props{"key": k}))
	}
	return El("vstack", nil, kids...)
})

func labels(b *blocks.Block) []string {
	var out []string
	for _, child := range b.Children[0].Children {
		out = append(out, child.Config["text"].(string))
	}
	return out
}

func TestHandle_KeyedChildrenSurviveReorder(t *testing.T) {
	e := newTestEngine(list)

	resp := handle(t, e, &protocol.Request{
		Props:  raw(`{"items":["a","b"]}`),
		Events: []protocol.Event{press("List#0.vstack#0.Item:b.button#0/action:onPress", "")},
	})
	assert.JSONEq(t, `1`, string(resp.State["List#0.vstack#0.Item:b/state#0"]))
	state := ApplyDelta(nil, resp.State)

	resp = handle(t, e, &protocol.Request{
		Props: raw(`{"items":["b","a"]}`),
		State: state,
	})
	require.NotNil(t, resp.Blocks)
	assert.Equal(t, []string{"b=1", "a=0"}, labels(resp.Blocks))
	assert.Empty(t, resp.State, "reordering keyed children changes no hook ids")
}

func TestHandle_KeysWithDelimitersSurviveReorder(t *testing.T) {
	e := newTestEngine(list)
	target := "List#0.vstack#0.Item:https%3A%2F%2Fx%2Ey%2Fz"

	resp := handle(t, e, &protocol.Request{
		Props:  raw(`{"items":["alice@example.com","https://x.y/z",1.5]}`),
		Events: []protocol.Event{press(target+".button#0/action:onPress", "")},
	})
	assert.Equal(t, value.State{
		"List#0.vstack#0.Item:alice@example%2Ecom/state#0": raw(`0`),
		target + "/state#0":                  raw(`1`),
		"List#0.vstack#0.Item:1%2E5/state#0": raw(`0`),
	}, resp.State)
	state := ApplyDelta(nil, resp.State)

	resp = handle(t, e, &protocol.Request{
		Props: raw(`{"items":[1.5,"https://x.y/z","alice@example.com"]}`),
		State: state,
	})
	require.NotNil(t, resp.Blocks)
	assert.Equal(t, []string{"1.5=0", "https://x.y/z=1", "alice@example.com=0"}, labels(resp.Blocks))
	assert.Empty(t, resp.State)
}

func TestHandle_UnkeyedSiblingsAreIndexedPerName(t *testing.T) {
	pair := Define("Pair", func(c *Ctx, props Props) Element {
		return El("vstack", nil, item.New(nil), El("spacer", nil), item.New(nil))
	})

	resp := handle(t, newTestEngine(pair), &protocol.Request{})
	assert.Equal(t, value.State{
		"Pair#0.vstack#0.Item#0/state#0": raw(`0`),
		"Pair#0.vstack#0.Item#1/state#0": raw(`0`),
	}, resp.State)
}

func TestHandle_DuplicateKeysStayDistinct(t *testing.T) {
	resp := handle(t, newTestEngine(list), &protocol.Request{Props: raw(`{"items":["a","a"]}`)})
	assert.Contains(t, resp.State, "List#0.vstack#0.Item:a/state#0")
	assert.Contains(t, resp.State, "List#0.vstack#0.Item:a~1/state#0")
}

func TestHandle_MapKeysFragments(t *testing.T) {
	view := Define("View", func(c *Ctx, props Props) Element {
		names := []string{"x", "y"}
		return El("vstack", nil, Map(names, func(s string) string { return s }, func(s string) Element {
			return item.New(nil)
		}))
	})

	resp := handle(t, newTestEngine(view), &protocol.Request{})
	assert.Contains(t, resp.State, "View#0.vstack#0.#0.:x.Item#0/state#0")
	assert.Contains(t, resp.State, "View#0.vstack#0.#0.:y.Item#0/state#0")
}
