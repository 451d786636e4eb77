// Package node owns the device tree.
//
// Ownership boundary:
// - the node contract (children, resolution, data, actions, lifecycle)
//
// - path dispatch and the active branch
//
// - the concrete tree: root -> devices/readers -> device -> connection
//
// node does not own transports or command scheduling.
package node

import (
	"context"
	"errors"
	"fmt"

	"github.com/danmuck/tokend/internal/rpc"
	"github.com/danmuck/tokend/internal/wire"
)

var (
	ErrNoSuchNode            = errors.New("node: no such node")
	ErrUnsupportedAction     = errors.New("node: unsupported action")
	ErrNoData                = errors.New("node: no data")
	ErrUnsupportedConnection = errors.New("node: unsupported connection type")
	ErrNoSupportedConnection = errors.New("node: no supported connections")
)

func unknownChild(id string) error {
	return fmt.Errorf("%w: %s", ErrNoSuchNode, id)
}

// ChildFunc materializes one fixed named child.
type ChildFunc func(ctx context.Context) (Node, error)

// Invocation carries the per-command context an action executes under.
type Invocation struct {
	Params wire.Fields
	Flag   *rpc.Flag
	Emit   rpc.SignalFunc
}

// ActionFunc executes one node-specific action.
type ActionFunc func(ctx context.Context, inv Invocation) (wire.Fields, error)

// Node is one addressable element of the device tree. Fixed children are
// consulted before dynamic resolution; both tiers share the path namespace
// and fixed names shadow dynamic identifiers.
type Node interface {
	// Children lists dynamic children as identifier -> descriptor.
	Children(ctx context.Context) (map[string]wire.Fields, error)
	// Resolve materializes the dynamic child behind an identifier.
	Resolve(ctx context.Context, id string) (Node, error)
	// Fixed returns the fixed named children, nil when there are none.
	Fixed() map[string]ChildFunc
	// Data returns the node's snapshot, or ErrNoData.
	Data(ctx context.Context) (wire.Fields, error)
	// Actions returns node-specific actions beyond the built-ins.
	Actions() map[string]ActionFunc
	// Close releases backing resources. It must tolerate repeat calls;
	// the dispatcher never touches a node after closing it.
	Close() error
}

// Base supplies default behavior for leaf-ish nodes; concrete nodes embed
// it and override what they support.
type Base struct{}

func (Base) Children(ctx context.Context) (map[string]wire.Fields, error) {
	return map[string]wire.Fields{}, nil
}

func (Base) Resolve(ctx context.Context, id string) (Node, error) {
	return nil, unknownChild(id)
}

func (Base) Fixed() map[string]ChildFunc {
	return nil
}

func (Base) Data(ctx context.Context) (wire.Fields, error) {
	return nil, ErrNoData
}

func (Base) Actions() map[string]ActionFunc {
	return nil
}

func (Base) Close() error {
	return nil
}
