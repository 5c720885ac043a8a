package engine

import (
	"context"
	"encoding/json"
	"strconv"
)

// Props are the properties of an element.
type Props map[string]any

// Element is a node of the abstract tree returned by components. It is a
// closed union: Intrinsic, ComponentElement, Fragment, Text and Pending.
// A nil Element renders nothing.
type Element interface {
	isElement()
}

// Intrinsic is a platform node identified by tag.
type Intrinsic struct {
	Tag      string
	Props    Props
	Children []Element
}

// ComponentElement is an invocation of a component with props.
type ComponentElement struct {
	Component *Component
	Props     Props
	Children  []Element
}

// Fragment groups children without adding a node of its own. It still
// contributes a path segment with an empty name.
type Fragment struct {
	Key      string
	Children []Element
}

// Text is a literal text node.
type Text string

// Pending is what an asynchronous component would return. Components must
// render synchronously, so rendering a Pending fails.
type Pending <-chan Element

func (Intrinsic) isElement()        {}
func (ComponentElement) isElement() {}
func (Fragment) isElement()         {}
func (Text) isElement()             {}
func (Pending) isElement()          {}

// El builds an intrinsic element.
func El(tag string, props Props, children ...Element) Intrinsic {
	return Intrinsic{Tag: tag, Props: props, Children: children}
}

// Frag builds an unkeyed fragment.
func Frag(children ...Element) Fragment {
	return Fragment{Children: children}
}

// KeyedFrag builds a fragment with an explicit key.
func KeyedFrag(key string, children ...Element) Fragment {
	return Fragment{Key: key, Children: children}
}

// Map renders one element per item. Items keep their identity across
// reorders when key returns a stable value.
func Map[T any](items []T, key func(T) string, fn func(T) Element) Fragment {
	out := make([]Element, 0, len(items))
	for _, item := range items {
		if key == nil {
			out = append(out, fn(item))
			continue
		}
		out = append(out, KeyedFrag(key(item), fn(item)))
	}
	return Fragment{Children: out}
}

// RenderFunc renders a component. It must be synchronous and must call
// hooks in the same order on every render.
type RenderFunc func(c *Ctx, props Props) Element

// Component is a named render function.
type Component struct {
	name   string
	render RenderFunc
}

// Define declares a component. The name becomes part of every hook id below
// it and must not contain any of the reserved delimiters.
func Define(name string, fn RenderFunc) *Component {
	return &Component{name: name, render: fn}
}

// Name returns the component name.
func (c *Component) Name() string {
	return c.name
}

// New creates an element rendering c.
func (c *Component) New(props Props, children ...Element) ComponentElement {
	return ComponentElement{Component: c, Props: props, Children: children}
}

// ActionFunc handles a user action delivered to an action hook. Function
// valued props on intrinsic elements are registered as action hooks.
type ActionFunc func(ctx context.Context, data json.RawMessage) error

// explicitKey returns the key or id prop of an element, if any.
func explicitKey(props Props) (string, bool, error) {
	for _, name := range []string{"key", "id"} {
		v, ok := props[name]
		if !ok || v == nil {
			continue
		}
		switch k := v.(type) {
		case string:
			return k, true, nil
		case int:
			return strconv.Itoa(k), true, nil
		case int64:
			return strconv.FormatInt(k, 10), true, nil
		case float64:
			return strconv.FormatFloat(k, 'f', -1, 64), true, nil
		case json.Number:
			return k.String(), true, nil
		default:
			return "", false, &ValidationError{
				Code:    ErrCodeInvalidElement,
				Message: "key must be a string or a number, got " + typeName(v),
			}
		}
	}
	return "", false, nil
}
