package device

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

var ErrNoProvider = errors.New("device: no provider configured")

// Catalog caches one provider's enumeration keyed by scan fingerprint.
// Ids are random and stable for as long as the fingerprint holds; a
// changed fingerprint invalidates every id from the previous generation.
type Catalog struct {
	provider Provider

	mu      sync.Mutex
	fp      Fingerprint
	valid   bool
	order   []string
	entries map[string]Enumerated
}

func NewCatalog(provider Provider) *Catalog {
	return &Catalog{provider: provider}
}

// Summaries re-scans if needed and returns id to descriptor for every
// entry, in enumeration order.
func (c *Catalog) Summaries(ctx context.Context) (map[string]map[string]any, error) {
	if c == nil || c.provider == nil {
		return nil, ErrNoProvider
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.refreshLocked(ctx); err != nil {
		return nil, err
	}
	out := make(map[string]map[string]any, len(c.order))
	for _, id := range c.order {
		out[id] = c.entries[id].Summary
	}
	return out, nil
}

// Lookup re-scans if needed and resolves one id from the current
// generation. A miss is not an error: the id may simply be stale.
func (c *Catalog) Lookup(ctx context.Context, id string) (Enumerated, bool, error) {
	if c == nil || c.provider == nil {
		return Enumerated{}, false, ErrNoProvider
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.refreshLocked(ctx); err != nil {
		return Enumerated{}, false, err
	}
	e, ok := c.entries[id]
	return e, ok, nil
}

func (c *Catalog) refreshLocked(ctx context.Context) error {
	fp, err := c.provider.ScanState(ctx)
	if err != nil {
		return err
	}
	if c.valid && fp == c.fp {
		return nil
	}
	// The set may change between ScanState and Enumerate; the next
	// refresh catches it.
	list, err := c.provider.Enumerate(ctx)
	if err != nil {
		c.valid = false
		return err
	}
	c.fp = fp
	c.valid = true
	c.order = make([]string, 0, len(list))
	c.entries = make(map[string]Enumerated, len(list))
	for _, e := range list {
		id := uuid.NewString()
		c.order = append(c.order, id)
		c.entries[id] = e
	}
	return nil
}
