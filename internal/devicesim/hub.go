// Package devicesim is an in-process stand-in for attached hardware. It
// feeds the same provider contracts the daemon wires real backends into,
// so the full tree and pipeline run without a physical token.
package devicesim

import (
	"context"
	"encoding/hex"
	"fmt"
	"slices"
	"strings"

	"github.com/puzpuzpuz/xsync/v4"
	"golang.org/x/crypto/blake2b"

	"github.com/danmuck/tokend/internal/device"
)

// Hub owns the simulated world: attached keys and card readers. Mutations
// are safe while sessions run; providers observe them on their next scan.
type Hub struct {
	keys    *xsync.Map[string, *Key]
	readers *xsync.Map[string, *Reader]
}

var (
	_ device.Reconnector = (*Hub)(nil)
	_ device.InfoReader  = (*Hub)(nil)
)

func NewHub() *Hub {
	return &Hub{
		keys:    xsync.NewMap[string, *Key](),
		readers: xsync.NewMap[string, *Reader](),
	}
}

// AttachKey adds a token. Labels are unique.
func (h *Hub) AttachKey(cfg KeyConfig) (*Key, error) {
	key, err := newKey(cfg)
	if err != nil {
		return nil, err
	}
	if _, loaded := h.keys.LoadOrStore(key.label, key); loaded {
		return nil, fmt.Errorf("devicesim: key %s already attached", key.label)
	}
	return key, nil
}

// DetachKey removes a token; open connections keep their handle but any
// new open goes through the next enumeration.
func (h *Hub) DetachKey(label string) bool {
	_, loaded := h.keys.LoadAndDelete(label)
	return loaded
}

// AddReader adds an empty card slot. Names are unique.
func (h *Hub) AddReader(name string) (*Reader, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("devicesim: reader name is required")
	}
	r := &Reader{name: name}
	if _, loaded := h.readers.LoadOrStore(name, r); loaded {
		return nil, fmt.Errorf("devicesim: reader %s already present", name)
	}
	return r, nil
}

// RemoveReader removes a card slot.
func (h *Hub) RemoveReader(name string) bool {
	_, loaded := h.readers.LoadAndDelete(name)
	return loaded
}

// Key returns an attached key by label.
func (h *Hub) Key(label string) (*Key, bool) {
	return h.keys.Load(label)
}

// Reader returns a card slot by name.
func (h *Hub) Reader(name string) (*Reader, bool) {
	return h.readers.Load(name)
}

// Counts reports attached keys and readers, for status surfaces.
func (h *Hub) Counts() (keys, readers int) {
	return h.keys.Size(), h.readers.Size()
}

// Devices returns the provider view over attached keys.
func (h *Hub) Devices() device.Provider { return keyProvider{h} }

// Readers returns the provider view over card slots.
func (h *Hub) Readers() device.Provider { return readerProvider{h} }

// ReconnectBySerial opens a fresh transport on whichever attached key
// carries the serial.
func (h *Hub) ReconnectBySerial(ctx context.Context, serial uint32, kinds []device.Kind) (device.Connection, error) {
	if serial == 0 {
		return nil, fmt.Errorf("%w: serial 0", device.ErrDeviceNotFound)
	}
	var match *Key
	h.keys.Range(func(_ string, k *Key) bool {
		if k.serial == serial {
			match = k
			return false
		}
		return true
	})
	if match == nil {
		return nil, fmt.Errorf("%w: serial %d", device.ErrDeviceNotFound, serial)
	}
	var lastErr error
	for _, kind := range kinds {
		if !match.Supports(kind) {
			continue
		}
		conn, err := match.Open(ctx, kind)
		if err == nil {
			return conn, nil
		}
		lastErr = err
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, fmt.Errorf("devicesim: %s has none of the requested transports", match.label)
}

// ReadInfo reports the identity behind one of the hub's own connections.
func (h *Hub) ReadInfo(_ context.Context, conn device.Connection) (device.Info, error) {
	c, ok := conn.(*Conn)
	if !ok {
		return device.Info{}, ErrForeignConn
	}
	if c.isClosed() {
		return device.Info{}, ErrConnectionClosed
	}
	return c.key.info(), nil
}

func (h *Hub) keyFingerprint() device.Fingerprint {
	var lines []string
	h.keys.Range(func(_ string, k *Key) bool {
		lines = append(lines, k.identityLine())
		return true
	})
	return fingerprint(lines)
}

func (h *Hub) readerFingerprint() device.Fingerprint {
	var lines []string
	h.readers.Range(func(name string, _ *Reader) bool {
		lines = append(lines, name)
		return true
	})
	return fingerprint(lines)
}

func fingerprint(lines []string) device.Fingerprint {
	slices.Sort(lines)
	sum := blake2b.Sum256([]byte(strings.Join(lines, "\n")))
	return device.Fingerprint(hex.EncodeToString(sum[:]))
}

type keyProvider struct{ hub *Hub }

func (p keyProvider) ScanState(context.Context) (device.Fingerprint, error) {
	return p.hub.keyFingerprint(), nil
}

func (p keyProvider) Enumerate(context.Context) ([]device.Enumerated, error) {
	var keys []*Key
	p.hub.keys.Range(func(_ string, k *Key) bool {
		keys = append(keys, k)
		return true
	})
	slices.SortFunc(keys, func(a, b *Key) int { return strings.Compare(a.label, b.label) })
	out := make([]device.Enumerated, 0, len(keys))
	for _, k := range keys {
		info := k.info()
		out = append(out, device.Enumerated{
			Device:  k,
			Info:    &info,
			Summary: k.summary(),
		})
	}
	return out, nil
}

type readerProvider struct{ hub *Hub }

func (p readerProvider) ScanState(context.Context) (device.Fingerprint, error) {
	return p.hub.readerFingerprint(), nil
}

func (p readerProvider) Enumerate(context.Context) ([]device.Enumerated, error) {
	var readers []*Reader
	p.hub.readers.Range(func(_ string, r *Reader) bool {
		readers = append(readers, r)
		return true
	})
	slices.SortFunc(readers, func(a, b *Reader) int { return strings.Compare(a.name, b.name) })
	out := make([]device.Enumerated, 0, len(readers))
	for _, r := range readers {
		out = append(out, device.Enumerated{
			Device:  r,
			Summary: r.summary(),
		})
	}
	return out, nil
}
