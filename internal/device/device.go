// Package device defines the hardware-facing contracts the tree is built
// over. Backends implement them; the tree never talks to hardware
// directly.
package device

import (
	"context"
	"errors"
)

var ErrDeviceNotFound = errors.New("device: device not found")

// Kind is one connection transport.
type Kind string

const (
	KindCCID Kind = "ccid"
	KindOTP  Kind = "otp"
	KindFIDO Kind = "fido"
)

// AllKinds in identity probe order: smart card first.
func AllKinds() []Kind {
	return []Kind{KindCCID, KindOTP, KindFIDO}
}

// Fingerprint is an opaque comparable scan state. Equal fingerprints mean
// the attached set is unchanged; any attach or detach must change it.
type Fingerprint string

// Info is the identity summary read from a device.
type Info struct {
	Version    string `json:"version"`
	Serial     uint32 `json:"serial"`
	FormFactor string `json:"form_factor,omitempty"`
}

func (i Info) Fields() map[string]any {
	out := map[string]any{
		"version": i.Version,
		"serial":  i.Serial,
	}
	if i.FormFactor != "" {
		out["form_factor"] = i.FormFactor
	}
	return out
}

// Device is one attached token.
type Device interface {
	Supports(kind Kind) bool
	Open(ctx context.Context, kind Kind) (Connection, error)
}

// Connection is one open transport to a device.
type Connection interface {
	Kind() Kind
	Close() error
}

// Enumerated is one enumeration result: the backing device, its identity
// when the backend captured one (readers do not), and the descriptor shown
// in listings.
type Enumerated struct {
	Device  Device
	Info    *Info
	Summary map[string]any
}

// Provider enumerates one class of attached hardware. ScanState must be
// cheap; Enumerate may be expensive and is only called after the
// fingerprint changes.
type Provider interface {
	ScanState(ctx context.Context) (Fingerprint, error)
	Enumerate(ctx context.Context) ([]Enumerated, error)
}

// Reconnector re-opens a device by serial when its current handle cannot
// serve the requested transport.
type Reconnector interface {
	ReconnectBySerial(ctx context.Context, serial uint32, kinds []Kind) (Connection, error)
}

// InfoReader reads the identity summary over an open connection.
type InfoReader interface {
	ReadInfo(ctx context.Context, conn Connection) (Info, error)
}
