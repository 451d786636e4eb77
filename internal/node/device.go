package node

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/tokend/internal/device"
	"github.com/danmuck/tokend/internal/wire"
)

// deviceNode is one enumerated token. Its fixed children open transports;
// its data is an identity probe over whatever transport works first.
type deviceNode struct {
	Base
	dev  device.Device
	info *device.Info
	cfg  Config
}

func newDeviceNode(e device.Enumerated, cfg Config) *deviceNode {
	return &deviceNode{dev: e.Device, info: e.Info, cfg: cfg}
}

func (n *deviceNode) Fixed() map[string]ChildFunc {
	fixed := make(map[string]ChildFunc, len(device.AllKinds()))
	for _, kind := range device.AllKinds() {
		kind := kind
		fixed[string(kind)] = func(ctx context.Context) (Node, error) {
			return n.connect(ctx, kind)
		}
	}
	return fixed
}

// connect opens the requested transport. A device that cannot serve it
// directly is re-opened by serial when one is known, which trades the
// current handle for one that can.
func (n *deviceNode) connect(ctx context.Context, kind device.Kind) (Node, error) {
	conn, err := n.open(ctx, kind)
	if err != nil {
		return nil, err
	}
	return newConnectionNode(conn, n.cfg), nil
}

func (n *deviceNode) open(ctx context.Context, kind device.Kind) (device.Connection, error) {
	if n.dev.Supports(kind) {
		return n.dev.Open(ctx, kind)
	}
	if n.info != nil && n.info.Serial != 0 && n.cfg.Reconnect != nil {
		return n.cfg.Reconnect.ReconnectBySerial(ctx, n.info.Serial, []device.Kind{kind})
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedConnection, kind)
}

// Data probes the supported transports in order until an identity read
// succeeds. The probe connection is closed before returning; a transport
// that fails to open or read is skipped, not fatal.
func (n *deviceNode) Data(ctx context.Context) (wire.Fields, error) {
	if n.cfg.Identity == nil {
		return nil, ErrNoData
	}
	for _, kind := range device.AllKinds() {
		if !n.dev.Supports(kind) {
			continue
		}
		conn, err := n.dev.Open(ctx, kind)
		if err != nil {
			log.Warn().Str("component", "node").Str("kind", string(kind)).Err(err).
				Msg("identity_probe_open_failed")
			continue
		}
		info, err := n.cfg.Identity.ReadInfo(ctx, conn)
		_ = conn.Close()
		if err != nil {
			log.Warn().Str("component", "node").Str("kind", string(kind)).Err(err).
				Msg("identity_probe_read_failed")
			continue
		}
		n.info = &info
		return wire.Fields(info.Fields()), nil
	}
	return nil, ErrNoSupportedConnection
}
