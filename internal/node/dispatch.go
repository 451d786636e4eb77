package node

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/danmuck/tokend/internal/rpc"
	"github.com/danmuck/tokend/internal/wire"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	ActionGet  = "get"
	ActionList = "list"
)

// Dispatcher binds one tree to the command pipeline. It retains the most
// recently resolved path as the active branch: a new target reuses the
// longest common prefix and closes the abandoned suffix deepest-first, so
// consecutive commands on one path keep their connection open while a path
// switch releases it. Not safe for concurrent use; the pipeline executes
// one command at a time.
type Dispatcher struct {
	root  Node
	path  []string
	nodes []Node
	log   zerolog.Logger
}

func NewDispatcher(root Node) *Dispatcher {
	return &Dispatcher{
		root: root,
		log:  log.With().Str("component", "node").Logger(),
	}
}

// Handler adapts the dispatcher to the pipeline's handler contract.
func (d *Dispatcher) Handler() rpc.Handler {
	return func(ctx context.Context, cmd wire.Command, flag *rpc.Flag, emit rpc.SignalFunc) (wire.Fields, error) {
		return d.Dispatch(ctx, cmd, flag, emit)
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, cmd wire.Command, flag *rpc.Flag, emit rpc.SignalFunc) (wire.Fields, error) {
	target, err := d.walk(ctx, cmd.Target)
	if err != nil {
		return nil, err
	}
	return d.invoke(ctx, target, cmd, flag, emit)
}

// Close tears down the active branch and the root.
func (d *Dispatcher) Close() error {
	d.closeBranch(0)
	return d.root.Close()
}

func (d *Dispatcher) walk(ctx context.Context, target []string) (Node, error) {
	keep := prefixLen(d.path, target)
	d.closeBranch(keep)

	cur := d.root
	if keep > 0 {
		cur = d.nodes[keep-1]
	}
	for _, segment := range target[keep:] {
		child, err := d.step(ctx, cur, segment)
		if err != nil {
			return nil, err
		}
		d.path = append(d.path, segment)
		d.nodes = append(d.nodes, child)
		cur = child
	}
	return cur, nil
}

func (d *Dispatcher) step(ctx context.Context, n Node, name string) (Node, error) {
	if fn, ok := n.Fixed()[name]; ok {
		return fn(ctx)
	}
	return n.Resolve(ctx, name)
}

func (d *Dispatcher) closeBranch(keep int) {
	for i := len(d.nodes) - 1; i >= keep; i-- {
		if err := d.nodes[i].Close(); err != nil {
			d.log.Warn().Err(err).Strs("path", d.path[:i+1]).Msg("node_close_failed")
		}
	}
	d.path = d.path[:keep]
	d.nodes = d.nodes[:keep]
}

func (d *Dispatcher) invoke(ctx context.Context, n Node, cmd wire.Command, flag *rpc.Flag, emit rpc.SignalFunc) (wire.Fields, error) {
	switch cmd.Action {
	case ActionGet:
		out := wire.Fields{}
		data, err := n.Data(ctx)
		switch {
		case err == nil:
			out["data"] = data
		case !errors.Is(err, ErrNoData):
			return nil, err
		}
		children, err := d.listChildren(ctx, n)
		if err != nil {
			return nil, err
		}
		out["children"] = children
		out["actions"] = actionNames(n)
		return out, nil

	case ActionList:
		children, err := d.listChildren(ctx, n)
		if err != nil {
			return nil, err
		}
		return wire.Fields{"children": children}, nil

	default:
		if fn, ok := n.Actions()[cmd.Action]; ok {
			return fn(ctx, Invocation{Params: cmd.Params, Flag: flag, Emit: emit})
		}
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAction, cmd.Action)
	}
}

// listChildren merges fixed names over the dynamic listing; fixed children
// carry empty descriptors.
func (d *Dispatcher) listChildren(ctx context.Context, n Node) (map[string]wire.Fields, error) {
	dynamic, err := n.Children(ctx)
	if err != nil {
		return nil, err
	}
	fixed := n.Fixed()
	out := make(map[string]wire.Fields, len(dynamic)+len(fixed))
	maps.Copy(out, dynamic)
	for name := range fixed {
		out[name] = wire.Fields{}
	}
	return out, nil
}

func actionNames(n Node) []string {
	names := []string{ActionGet, ActionList}
	for name := range n.Actions() {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func prefixLen(a, b []string) int {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	return n
}
