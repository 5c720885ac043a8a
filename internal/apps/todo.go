package apps

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"

	"github.com/roach88/blockrt/internal/engine"
)

type todoItem struct {
	ID   int    `json:"id"`
	Text string `json:"text"`
}

type todoList struct {
	Next  int        `json:"next"`
	Items []todoItem `json:"items"`
}

// todoRow keeps its own done flag, so removing a row tombstones it.
var todoRow = engine.Define("TodoRow", func(c *engine.Ctx, props engine.Props) engine.Element {
	done, setDone := engine.UseState(c, false)
	text, _ := props["text"].(string)
	remove, _ := props["onRemove"].(engine.ActionFunc)

	mark := " "
	if done {
		mark = "x"
	}
	return engine.El("hstack", nil,
		engine.El("button", engine.Props{"onPress": engine.ActionFunc(func(ctx context.Context, _ json.RawMessage) error {
			return setDone.Set(!done)
		})}, engine.Text(fmt.Sprintf("[%s] %s", mark, text))),
		engine.El("button", engine.Props{"onPress": remove}, engine.Text("Remove")),
	)
})

// Todo is a keyed list. The add action takes {"text": "..."}.
var Todo = engine.Define("Todo", func(c *engine.Ctx, props engine.Props) engine.Element {
	list, set := engine.UseState(c, todoList{Items: []todoItem{}})

	add := engine.ActionFunc(func(ctx context.Context, data json.RawMessage) error {
		var in struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(data, &in); err != nil {
			return fmt.Errorf("add todo: %w", err)
		}
		if in.Text == "" {
			return fmt.Errorf("add todo: text is required")
		}
		return set.Update(func(prev todoList) todoList {
			prev.Items = append(slices.Clone(prev.Items), todoItem{ID: prev.Next, Text: in.Text})
			prev.Next++
			return prev
		})
	})

	rows := engine.Map(list.Items, func(it todoItem) string { return strconv.Itoa(it.ID) }, func(it todoItem) engine.Element {
		id := it.ID
		return todoRow.New(engine.Props{
			"text": it.Text,
			"onRemove": engine.ActionFunc(func(ctx context.Context, _ json.RawMessage) error {
				return set.Update(func(prev todoList) todoList {
					prev.Items = slices.DeleteFunc(slices.Clone(prev.Items), func(x todoItem) bool { return x.ID == id })
					return prev
				})
			}),
		})
	})

	return engine.El("vstack", nil,
		engine.El("text", nil, engine.Text(fmt.Sprintf("%d items", len(list.Items)))),
		rows,
		engine.El("button", engine.Props{"onPress": add}, engine.Text("Add")),
	)
})
