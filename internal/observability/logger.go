package observability

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger configures the process-global logger. Output always goes to
// stderr: in stdio mode the RPC stream owns stdout.
func InitLogger(app string, console bool, noColor bool) zerolog.Logger {
	var out io.Writer = os.Stderr
	if console {
		out = zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
			NoColor:    noColor,
		}
	}
	logger := zerolog.New(out).With().Timestamp().Str("app", app).Logger()
	log.Logger = logger
	return logger
}

// GetLogger returns a logger scoped to one component.
func GetLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}
