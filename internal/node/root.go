package node

import (
	"context"
	"runtime"

	"github.com/danmuck/tokend/internal/device"
	"github.com/danmuck/tokend/internal/wire"
)

// AppSource supplies the session nodes available under an open
// connection. Implementations decide which apps a given transport gets.
type AppSource interface {
	Names() []string
	Build(ctx context.Context, name string, conn device.Connection) (Node, error)
}

// Config carries the backends the tree is built over. Every session gets
// its own Root; the providers behind it are shared.
type Config struct {
	Devices   device.Provider
	Readers   device.Provider
	Reconnect device.Reconnector
	Identity  device.InfoReader
	Apps      AppSource
	Version   string
}

// Root is the tree entry point. It pins the two enumerating children so
// their catalogs survive branch switches: closing an abandoned branch
// must not forget which ids map to which hardware.
type Root struct {
	Base
	cfg     Config
	devices *enumNode
	readers *enumNode
}

func NewRoot(cfg Config) *Root {
	return &Root{
		cfg:     cfg,
		devices: newEnumNode(device.NewCatalog(cfg.Devices), cfg),
		readers: newEnumNode(device.NewCatalog(cfg.Readers), cfg),
	}
}

func (r *Root) Fixed() map[string]ChildFunc {
	return map[string]ChildFunc{
		"devices": func(context.Context) (Node, error) { return r.devices, nil },
		"readers": func(context.Context) (Node, error) { return r.readers, nil },
	}
}

func (r *Root) Data(context.Context) (wire.Fields, error) {
	return wire.Fields{
		"version": r.cfg.Version,
		"go":      runtime.Version(),
	}, nil
}

// enumNode lists one class of hardware and resolves catalog ids to device
// nodes. Close is inherited and does nothing: the catalog outlives any
// one visit.
type enumNode struct {
	Base
	catalog *device.Catalog
	cfg     Config
}

func newEnumNode(catalog *device.Catalog, cfg Config) *enumNode {
	return &enumNode{catalog: catalog, cfg: cfg}
}

func (n *enumNode) Children(ctx context.Context) (map[string]wire.Fields, error) {
	summaries, err := n.catalog.Summaries(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]wire.Fields, len(summaries))
	for id, summary := range summaries {
		out[id] = wire.Fields(summary)
	}
	return out, nil
}

func (n *enumNode) Resolve(ctx context.Context, id string) (Node, error) {
	e, ok, err := n.catalog.Lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, unknownChild(id)
	}
	return newDeviceNode(e, n.cfg), nil
}
