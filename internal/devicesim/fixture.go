package devicesim

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/danmuck/tokend/internal/device"
)

// Fixture describes a simulated world. Cards inside readers are not
// usb-attached keys; they only exist behind their slot.
type Fixture struct {
	Keys    []KeyConfig    `yaml:"keys"`
	Readers []ReaderConfig `yaml:"readers"`
}

type KeyConfig struct {
	Label      string   `yaml:"label"`
	Serial     uint32   `yaml:"serial"`
	Version    string   `yaml:"version"`
	FormFactor string   `yaml:"form_factor"`
	Transports []string `yaml:"transports"`
}

type ReaderConfig struct {
	Name string     `yaml:"name"`
	Card *KeyConfig `yaml:"card,omitempty"`
}

// LoadFixture reads a fixture from a YAML file.
func LoadFixture(path string) (Fixture, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Fixture{}, fmt.Errorf("devicesim: read fixture: %w", err)
	}
	var f Fixture
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return Fixture{}, fmt.Errorf("devicesim: parse fixture %s: %w", path, err)
	}
	return f, nil
}

func newKey(cfg KeyConfig) (*Key, error) {
	label := strings.TrimSpace(cfg.Label)
	if label == "" {
		return nil, fmt.Errorf("devicesim: key label is required")
	}
	version := cfg.Version
	if version == "" {
		version = "5.7.1"
	}
	formFactor := strings.TrimSpace(cfg.FormFactor)
	if formFactor == "" {
		formFactor = "usb-a-keychain"
	}
	kinds := make(map[device.Kind]bool, len(cfg.Transports))
	if len(cfg.Transports) == 0 {
		kinds[device.KindCCID] = true
	}
	for _, t := range cfg.Transports {
		kind := device.Kind(strings.ToLower(strings.TrimSpace(t)))
		switch kind {
		case device.KindCCID, device.KindOTP, device.KindFIDO:
			kinds[kind] = true
		default:
			return nil, fmt.Errorf("devicesim: key %s: unknown transport %q", label, t)
		}
	}
	return &Key{label: label, serial: cfg.Serial, version: version, formFactor: formFactor, kinds: kinds}, nil
}

// Apply attaches everything the fixture describes.
func (h *Hub) Apply(f Fixture) error {
	for _, kc := range f.Keys {
		if _, err := h.AttachKey(kc); err != nil {
			return err
		}
	}
	for _, rc := range f.Readers {
		r, err := h.AddReader(rc.Name)
		if err != nil {
			return err
		}
		if rc.Card != nil {
			card, err := newKey(*rc.Card)
			if err != nil {
				return err
			}
			r.Insert(card)
		}
	}
	return nil
}

// DefaultHub is the world used when no fixture is given: two keys with
// different transport mixes and one empty reader.
func DefaultHub() *Hub {
	h := NewHub()
	_ = h.Apply(Fixture{
		Keys: []KeyConfig{
			{Label: "key-a", Serial: 10345678, Version: "5.7.1", Transports: []string{"ccid", "otp", "fido"}},
			{Label: "key-b", Serial: 20456789, Version: "5.4.3", FormFactor: "usb-c-nano", Transports: []string{"ccid"}},
		},
		Readers: []ReaderConfig{{Name: "sim-reader-0"}},
	})
	return h
}
