// Package apps registers the session applications exposed under an open
// connection. The daemon builds the tree over a Registry; backends add
// their apps at startup.
package apps

import (
	"context"
	"errors"
	"fmt"

	"github.com/danmuck/tokend/internal/device"
	"github.com/danmuck/tokend/internal/node"
)

var (
	ErrInvalidApp = errors.New("apps: invalid app")
	ErrAppExists  = errors.New("apps: app already registered")
	ErrUnknownApp = errors.New("apps: unknown app")
)

// App is one session application. Build materializes its node over the
// session's live connection; the node is torn down with the branch, the
// connection is not its to close.
type App struct {
	Name        string
	Description string
	Build       func(ctx context.Context, conn device.Connection) (node.Node, error)
}

func validate(app App) error {
	if app.Build == nil {
		return fmt.Errorf("%w: build is required", ErrInvalidApp)
	}
	if !isValidName(app.Name) {
		return fmt.Errorf("%w: bad name %q", ErrInvalidApp, app.Name)
	}
	return nil
}

// isValidName accepts lowercase alphanumerics and single interior
// hyphens, at most 32 bytes. App names share the path namespace with
// fixed child names, so the charset stays tight.
func isValidName(name string) bool {
	if len(name) == 0 || len(name) > 32 {
		return false
	}
	lastSep := false
	for i := 0; i < len(name); i++ {
		c := name[i]
		isLower := c >= 'a' && c <= 'z'
		isDigit := c >= '0' && c <= '9'
		isSep := c == '-'
		if !(isLower || isDigit || isSep) {
			return false
		}
		if isSep && (i == 0 || i == len(name)-1 || lastSep) {
			return false
		}
		lastSep = isSep
	}
	return true
}
