package node

import (
	"context"
	"sync"

	"github.com/danmuck/tokend/internal/device"
	"github.com/danmuck/tokend/internal/wire"
)

// connectionNode holds one open transport. Its children are the session
// apps the source offers; closing the node closes the transport exactly
// once no matter how many times the branch is torn down.
type connectionNode struct {
	Base
	conn device.Connection
	cfg  Config

	closeOnce sync.Once
	closeErr  error
}

func newConnectionNode(conn device.Connection, cfg Config) *connectionNode {
	return &connectionNode{conn: conn, cfg: cfg}
}

func (n *connectionNode) Children(context.Context) (map[string]wire.Fields, error) {
	if n.cfg.Apps == nil {
		return map[string]wire.Fields{}, nil
	}
	names := n.cfg.Apps.Names()
	out := make(map[string]wire.Fields, len(names))
	for _, name := range names {
		out[name] = wire.Fields{}
	}
	return out, nil
}

func (n *connectionNode) Resolve(ctx context.Context, id string) (Node, error) {
	if n.cfg.Apps == nil {
		return nil, unknownChild(id)
	}
	known := false
	for _, name := range n.cfg.Apps.Names() {
		if name == id {
			known = true
			break
		}
	}
	if !known {
		return nil, unknownChild(id)
	}
	return n.cfg.Apps.Build(ctx, id, n.conn)
}

func (n *connectionNode) Data(ctx context.Context) (wire.Fields, error) {
	if n.cfg.Identity == nil {
		return nil, ErrNoData
	}
	info, err := n.cfg.Identity.ReadInfo(ctx, n.conn)
	if err != nil {
		return nil, err
	}
	return wire.Fields(info.Fields()), nil
}

func (n *connectionNode) Close() error {
	n.closeOnce.Do(func() {
		n.closeErr = n.conn.Close()
	})
	return n.closeErr
}
