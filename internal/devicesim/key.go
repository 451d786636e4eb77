package devicesim

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/danmuck/tokend/internal/device"
)

var (
	ErrNoCard           = errors.New("devicesim: no card present")
	ErrConnectionClosed = errors.New("devicesim: connection closed")
	ErrForeignConn      = errors.New("devicesim: foreign connection")
)

// Key is one simulated token. Transports are fixed at attach time; open
// failures can be injected per transport to exercise probe fallback.
type Key struct {
	label      string
	serial     uint32
	version    string
	formFactor string
	kinds      map[device.Kind]bool

	mu      sync.Mutex
	openErr map[device.Kind]error
	open    int
}

var _ device.Device = (*Key)(nil)

func (k *Key) Label() string  { return k.label }
func (k *Key) Serial() uint32 { return k.serial }

// PID reports the USB product id, which follows the transport bitmask
// convention: otp=1, fido=2, ccid=4 on a 0x0400 base.
func (k *Key) PID() int {
	pid := 0x0400
	if k.kinds[device.KindOTP] {
		pid |= 1
	}
	if k.kinds[device.KindFIDO] {
		pid |= 2
	}
	if k.kinds[device.KindCCID] {
		pid |= 4
	}
	return pid
}

func (k *Key) Supports(kind device.Kind) bool { return k.kinds[kind] }

func (k *Key) Open(_ context.Context, kind device.Kind) (device.Connection, error) {
	if !k.kinds[kind] {
		return nil, fmt.Errorf("devicesim: %s does not support %s", k.label, kind)
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if err := k.openErr[kind]; err != nil {
		return nil, err
	}
	k.open++
	return &Conn{key: k, kind: kind}, nil
}

// FailOpen makes subsequent opens of one transport fail; a nil error
// clears the injection.
func (k *Key) FailOpen(kind device.Kind, err error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if err == nil {
		delete(k.openErr, kind)
		return
	}
	if k.openErr == nil {
		k.openErr = make(map[device.Kind]error)
	}
	k.openErr[kind] = err
}

// OpenConnections reports how many connections are currently open.
func (k *Key) OpenConnections() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.open
}

func (k *Key) info() device.Info {
	return device.Info{Version: k.version, Serial: k.serial, FormFactor: k.formFactor}
}

// identityLine feeds the scan fingerprint; every attribute that shows up
// in a summary is part of it.
func (k *Key) identityLine() string {
	return fmt.Sprintf("%s|%d|%s|%s|%s", k.label, k.serial, k.version, k.formFactor, strings.Join(k.transports(), ","))
}

func (k *Key) transports() []string {
	kinds := make([]string, 0, len(k.kinds))
	for kind := range k.kinds {
		kinds = append(kinds, string(kind))
	}
	slices.Sort(kinds)
	return kinds
}

func (k *Key) summary() map[string]any {
	return map[string]any{
		"name":        k.label,
		"pid":         k.PID(),
		"serial":      k.serial,
		"version":     k.version,
		"form_factor": k.formFactor,
		"transports":  k.transports(),
	}
}

// Conn is one open simulated transport.
type Conn struct {
	key  *Key
	kind device.Kind

	mu     sync.Mutex
	closed bool
}

var _ device.Connection = (*Conn)(nil)

func (c *Conn) Kind() device.Kind { return c.kind }

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.key.mu.Lock()
	c.key.open--
	c.key.mu.Unlock()
	return nil
}

func (c *Conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Reader is one simulated card slot. The reader itself is always a ccid
// transport; opening it fails while the slot is empty.
type Reader struct {
	name string

	mu   sync.Mutex
	card *Key
}

var _ device.Device = (*Reader)(nil)

func (r *Reader) Name() string { return r.name }

func (r *Reader) Supports(kind device.Kind) bool { return kind == device.KindCCID }

func (r *Reader) Open(ctx context.Context, kind device.Kind) (device.Connection, error) {
	if kind != device.KindCCID {
		return nil, fmt.Errorf("devicesim: reader %s only carries %s", r.name, device.KindCCID)
	}
	r.mu.Lock()
	card := r.card
	r.mu.Unlock()
	if card == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoCard, r.name)
	}
	return card.Open(ctx, device.KindCCID)
}

// Insert places a card in the slot, replacing any present one.
func (r *Reader) Insert(card *Key) {
	r.mu.Lock()
	r.card = card
	r.mu.Unlock()
}

// Remove empties the slot.
func (r *Reader) Remove() {
	r.mu.Lock()
	r.card = nil
	r.mu.Unlock()
}

func (r *Reader) summary() map[string]any {
	return map[string]any{"name": r.name}
}
