package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/roach88/blockrt/internal/blocks"
	"github.com/roach88/blockrt/internal/protocol"
)

// handler applies one event to the hook it targets.
type handler func(ctx context.Context, e protocol.Event) error

// pass is one depth-first render of the root element.
type pass struct {
	inv  *invocation
	ids  *identity
	sink *sink
	ctx  context.Context

	handlers     map[string]handler
	instantiated []string
	active       map[string]bool
	suspensions  []*Suspension
	channels     map[string]string
	subs         []*channelHandle

	// current is the component being rendered, for panic attribution.
	current     string
	writesStart int
	err         error
	tree        *blocks.Block
}

func (inv *invocation) newPass() *pass {
	p := &pass{
		inv:         inv,
		ids:         newIdentity(inv.logger),
		sink:        &sink{},
		handlers:    make(map[string]handler),
		active:      make(map[string]bool),
		channels:    make(map[string]string),
		writesStart: inv.writeCount(),
	}
	p.ctx = withSink(inv.ctx, p.sink)
	return p
}

// render runs a full pass over the root element. Panics raised by
// components are converted to a HandlerError for the component that was
// rendering.
func (inv *invocation) render() (p *pass, err error) {
	p = inv.newPass()
	defer func() {
		if r := recover(); r != nil {
			err = &HandlerError{Hook: p.current, Err: panicError(r)}
		}
	}()

	out, err := p.renderElement("", inv.root)
	if err == nil {
		err = p.err
	}
	if err != nil {
		return p, err
	}
	if len(out) != 1 {
		return p, &ValidationError{
			Code:    ErrCodeRootCount,
			Message: fmt.Sprintf("root rendered %d elements, want exactly 1; wrap multiple roots in a container element", len(out)),
		}
	}
	p.tree, err = inv.transformer.EnsureRoot(out[0])
	if err != nil {
		return p, &HandlerError{Hook: "root", Err: err}
	}
	p.reconcileChannels()
	return p, nil
}

// clean reports whether the pass neither suspended nor wrote state after
// reading it, so its tree reflects the state it leaves behind.
func (p *pass) clean() bool {
	return len(p.suspensions) == 0 && p.inv.writeCount() == p.writesStart
}

func (p *pass) fail(err error) {
	if p.err == nil {
		p.err = err
	}
}

func (p *pass) instantiate(id string, h handler) {
	if !p.active[id] {
		p.active[id] = true
		p.instantiated = append(p.instantiated, id)
	}
	if h != nil {
		p.handlers[id] = h
	}
}

func (p *pass) renderElement(parent string, el Element) ([]*blocks.Block, error) {
	switch n := el.(type) {
	case nil:
		return nil, nil
	case Text:
		b, err := p.inv.transformer.CreateElement(blocks.Node{Tag: blocks.TextTag, Text: string(n)})
		if err != nil {
			return nil, &HandlerError{Hook: parent, Err: err}
		}
		return []*blocks.Block{b}, nil
	case Intrinsic:
		return p.renderIntrinsic(parent, n)
	case ComponentElement:
		return p.renderComponent(parent, n)
	case Fragment:
		path, err := p.ids.segment(parent, "", n.Key, n.Key != "")
		if err != nil {
			return nil, err
		}
		return p.renderChildren(path, n.Children)
	case Pending:
		return nil, &ValidationError{
			Code:    ErrCodeAsyncComponent,
			Path:    parent,
			Message: "components must render synchronously; load data with UseAsync instead",
		}
	default:
		return nil, &ValidationError{
			Code:    ErrCodeInvalidElement,
			Path:    parent,
			Message: "unsupported element type " + typeName(el),
		}
	}
}

func (p *pass) renderChildren(path string, children []Element) ([]*blocks.Block, error) {
	var out []*blocks.Block
	for _, child := range children {
		bs, err := p.renderElement(path, child)
		if err != nil {
			return nil, err
		}
		out = append(out, bs...)
	}
	return out, nil
}

func (p *pass) renderIntrinsic(parent string, n Intrinsic) ([]*blocks.Block, error) {
	if n.Tag == "" {
		return nil, &ValidationError{Code: ErrCodeInvalidElement, Path: parent, Message: "intrinsic element without a tag"}
	}
	key, keyed, err := explicitKey(n.Props)
	if err != nil {
		return nil, withPath(err, parent)
	}
	path, err := p.ids.segment(parent, n.Tag, key, keyed)
	if err != nil {
		return nil, err
	}

	node := blocks.Node{Tag: n.Tag}
	names := make([]string, 0, len(n.Props))
	for name := range n.Props {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		fn, isAction := asAction(n.Props[name])
		if isAction && fn == nil {
			continue
		}
		if !isAction {
			if node.Props == nil {
				node.Props = make(map[string]any, len(n.Props))
			}
			node.Props[name] = n.Props[name]
			continue
		}
		id, err := p.ids.hookID(path, nsAction, name)
		if err != nil {
			return nil, err
		}
		p.instantiate(id, actionHandler(fn))
		if node.Actions == nil {
			node.Actions = make(map[string]string)
		}
		node.Actions[name] = id
	}

	node.Children, err = p.renderChildren(path, n.Children)
	if err != nil {
		return nil, err
	}
	b, err := p.inv.transformer.CreateElement(node)
	if err != nil {
		return nil, &HandlerError{Hook: path, Err: err}
	}
	return []*blocks.Block{b}, nil
}

func (p *pass) renderComponent(parent string, n ComponentElement) ([]*blocks.Block, error) {
	comp := n.Component
	if comp == nil || comp.render == nil {
		return nil, &ValidationError{Code: ErrCodeInvalidElement, Path: parent, Message: "component element without a render function"}
	}
	if comp.name == "" {
		return nil, &ValidationError{Code: ErrCodeInvalidName, Path: parent, Message: "component name must not be empty"}
	}
	key, keyed, err := explicitKey(n.Props)
	if err != nil {
		return nil, withPath(err, parent)
	}
	path, err := p.ids.segment(parent, comp.name, key, keyed)
	if err != nil {
		return nil, err
	}

	props := n.Props
	if props == nil {
		props = Props{}
	}
	c := &Ctx{pass: p, path: path, children: n.Children}
	outer := p.current
	p.current = path
	out := comp.render(c, props)
	c.done = true
	p.current = outer
	if p.err != nil {
		return nil, p.err
	}

	if err := p.inv.checkHookCounts(path, p.ids.hookCounts(path)); err != nil {
		return nil, err
	}
	return p.renderElement(path, out)
}

// dispatch delivers e to the hook it targets. Events for hooks that are not
// part of this pass are dangling and ignored.
func (p *pass) dispatch(e protocol.Event, s *sink) (err error) {
	h, ok := p.handlers[e.Hook]
	if !ok {
		p.inv.logger.Debug("dangling event ignored",
			"invocation_id", p.inv.id,
			"hook", e.Hook,
			"kind", e.Kind().String(),
		)
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = &HandlerError{Hook: e.Hook, Event: e.Kind(), Err: panicError(r)}
		}
	}()
	if err := h(withSink(p.inv.ctx, s), e); err != nil {
		if IsValidationError(err) {
			return err
		}
		return &HandlerError{Hook: e.Hook, Event: e.Kind(), Err: err}
	}
	return nil
}

func asAction(v any) (ActionFunc, bool) {
	switch fn := v.(type) {
	case ActionFunc:
		return fn, true
	case func(context.Context, json.RawMessage) error:
		return fn, true
	default:
		return nil, false
	}
}

func withPath(err error, path string) error {
	if ve, ok := err.(*ValidationError); ok && ve.Path == "" {
		ve.Path = path
	}
	return err
}
