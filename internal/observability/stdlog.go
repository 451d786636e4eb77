package observability

import (
	stdlog "log"
	"log/slog"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	slogzerolog "github.com/samber/slog-zerolog/v2"
)

// NewSlogHandler bridges slog records into the component's zerolog logger.
func NewSlogHandler(component string, lvl slog.Level) slog.Handler {
	opt := slogzerolog.Option{Level: lvl}

	zlog := log.With().Str("component", component).Logger()
	opt.Logger = &zlog

	return opt.NewZerologHandler()
}

// NewLogLogger adapts the component logger for stdlib consumers such as
// http.Server.ErrorLog.
func NewLogLogger(component string) *stdlog.Logger {
	zlvl := zerolog.GlobalLevel()
	var slvl slog.Level
	switch zlvl {
	case zerolog.DebugLevel:
		slvl = slog.LevelDebug
	case zerolog.InfoLevel:
		slvl = slog.LevelInfo
	case zerolog.WarnLevel:
		slvl = slog.LevelWarn
	case zerolog.ErrorLevel:
		slvl = slog.LevelError
	default:
		slvl = slog.LevelInfo
	}
	handler := NewSlogHandler(component, slvl)

	return slog.NewLogLogger(handler, slog.LevelError)
}
