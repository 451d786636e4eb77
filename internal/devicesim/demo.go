package devicesim

import (
	"context"
	"time"

	"github.com/danmuck/tokend/internal/apps"
	"github.com/danmuck/tokend/internal/device"
	"github.com/danmuck/tokend/internal/node"
	"github.com/danmuck/tokend/internal/wire"
)

// RegisterApps adds the simulator's session apps to a registry.
func RegisterApps(reg *apps.Registry) error {
	return reg.Register(apps.App{
		Name:        "demo",
		Description: "scriptable app for exercising the command surface",
		Build: func(_ context.Context, conn device.Connection) (node.Node, error) {
			return &demoNode{conn: conn}, nil
		},
	})
}

// demoNode exercises the full command surface: data, a unary action, and
// a long-running cancellable action that streams signals.
type demoNode struct {
	node.Base
	conn device.Connection
}

func (n *demoNode) Data(context.Context) (wire.Fields, error) {
	return wire.Fields{"status": "ok", "transport": string(n.conn.Kind())}, nil
}

func (n *demoNode) Actions() map[string]node.ActionFunc {
	return map[string]node.ActionFunc{
		"echo":  n.echo,
		"watch": n.watch,
	}
}

func (n *demoNode) echo(_ context.Context, inv node.Invocation) (wire.Fields, error) {
	return wire.Fields{"echo": inv.Params}, nil
}

// watch emits one tick signal per interval until count is reached or the
// command is cancelled between ticks.
func (n *demoNode) watch(ctx context.Context, inv node.Invocation) (wire.Fields, error) {
	count := intParam(inv.Params, "count", 5)
	interval := time.Duration(intParam(inv.Params, "interval_ms", 20)) * time.Millisecond

	for ticks := 0; ticks < count; ticks++ {
		if inv.Flag != nil && inv.Flag.IsSet() {
			return wire.Fields{"ticks": ticks, "cancelled": true}, nil
		}
		if inv.Emit != nil {
			if err := inv.Emit("tick", wire.Fields{"n": ticks}); err != nil {
				return nil, err
			}
		}
		if ticks+1 < count {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(interval):
			}
		}
	}
	return wire.Fields{"ticks": count, "cancelled": false}, nil
}

// intParam reads an integer parameter; decoded JSON numbers arrive as
// float64.
func intParam(params wire.Fields, key string, def int) int {
	switch x := params[key].(type) {
	case float64:
		return int(x)
	case int:
		return x
	default:
		return def
	}
}
