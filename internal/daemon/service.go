// Package daemon runs the rpc service: session endpoints, the tree built
// behind each session, and the admin surface.
//
// Ownership boundary:
// - session lifecycle (accept, serve, teardown) and its one-at-a-time rule
//
// - wiring providers, apps, and limits into each session's tree
//
// - the admin http endpoint
//
// daemon does not own message framing or command scheduling.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/tokend/internal/device"
	"github.com/danmuck/tokend/internal/node"
	"github.com/danmuck/tokend/internal/observability"
	"github.com/danmuck/tokend/internal/rpc"
	"github.com/danmuck/tokend/internal/wire"
)

// Version reported by the root node and the admin surface.
const Version = "0.3.0"

var ErrNoBackends = errors.New("daemon: tree backends are incomplete")

// ServiceConfig configures the session and admin endpoints. An empty
// AdminAddr disables the admin surface.
type ServiceConfig struct {
	ListenAddr    string
	AdminAddr     string
	AdminToken    string
	CORSOrigins   []string
	Wire          wire.Limits
	ShutdownGrace time.Duration
	Version       string
}

func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		ListenAddr:    "127.0.0.1:7440",
		AdminAddr:     "127.0.0.1:7441",
		Wire:          wire.DefaultLimits(),
		ShutdownGrace: 5 * time.Second,
		Version:       Version,
	}
}

// TreeDeps carries the backends every session's tree is built over.
type TreeDeps struct {
	Devices   device.Provider
	Readers   device.Provider
	Reconnect device.Reconnector
	Identity  device.InfoReader
	Apps      node.AppSource
}

// Validate checks the required backends. Reconnect is optional; without
// it serial-based transport recovery is simply unavailable.
func (d TreeDeps) Validate() error {
	var missing []string
	if d.Devices == nil {
		missing = append(missing, "devices")
	}
	if d.Readers == nil {
		missing = append(missing, "readers")
	}
	if d.Identity == nil {
		missing = append(missing, "identity")
	}
	if d.Apps == nil {
		missing = append(missing, "apps")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrNoBackends, strings.Join(missing, ", "))
	}
	return nil
}

// Service owns the runtime: sequential rpc sessions plus the admin
// endpoint. Sessions are strictly one at a time; a connected client owns
// the daemon until it disconnects.
type Service struct {
	cfg     ServiceConfig
	deps    TreeDeps
	log     zerolog.Logger
	started time.Time

	connsMu sync.Mutex
	conns   map[net.Conn]struct{}

	sessionSeq     atomic.Uint64
	activeSessions atomic.Int64

	recent *recentRing
}

func NewService(cfg ServiceConfig, deps TreeDeps) (*Service, error) {
	if err := deps.Validate(); err != nil {
		return nil, err
	}
	cfg.Wire = cfg.Wire.WithDefaults()
	if strings.TrimSpace(cfg.Version) == "" {
		cfg.Version = Version
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = DefaultServiceConfig().ShutdownGrace
	}
	return &Service{
		cfg:     cfg,
		deps:    deps,
		log:     log.With().Str("component", "daemon").Logger(),
		started: time.Now(),
		conns:   make(map[net.Conn]struct{}),
		recent:  newRecentRing(),
	}, nil
}

// Run serves rpc sessions on the configured TCP address until a signal
// or listener failure, with the admin endpoint alongside.
func (s *Service) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := strings.TrimSpace(s.cfg.ListenAddr)
	if addr == "" {
		return fmt.Errorf("daemon: listen address is required")
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.log.Info().Str("addr", ln.Addr().String()).Msg("rpc_listening")

	adminErr := s.startAdmin(ctx)
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.Serve(ctx, ln)
	}()

	select {
	case err := <-serveErr:
		return err
	case err := <-adminErr:
		if err != nil {
			return err
		}
		return <-serveErr
	}
}

// RunStdio serves exactly one session over stdin/stdout, with the admin
// endpoint alongside. Stdout belongs to the rpc stream; logs go to
// stderr.
func (s *Service) RunStdio(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	adminErr := s.startAdmin(ctx)
	sessErr := make(chan error, 1)
	go func() {
		sessErr <- s.ServeSession(ctx, stdio{os.Stdin, os.Stdout})
	}()

	select {
	case err := <-sessErr:
		return err
	case err := <-adminErr:
		if err != nil {
			return err
		}
		return <-sessErr
	}
}

type stdio struct {
	io.Reader
	io.Writer
}

// startAdmin launches the admin endpoint when configured. The returned
// channel never fires otherwise.
func (s *Service) startAdmin(ctx context.Context) <-chan error {
	adminErr := make(chan error, 1)
	if addr := strings.TrimSpace(s.cfg.AdminAddr); addr != "" {
		go func() {
			adminErr <- s.serveAdmin(ctx, addr)
		}()
	}
	return adminErr
}

// Serve accepts sessions one at a time: the next client is not accepted
// until the current session ends.
func (s *Service) Serve(ctx context.Context, ln net.Listener) error {
	defer ln.Close()
	go func() {
		<-ctx.Done()
		s.closeAllConns()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		s.trackConn(conn)
		remote := conn.RemoteAddr().String()
		s.log.Info().Str("remote", remote).Msg("client_connected")

		err = s.ServeSession(ctx, conn)
		s.untrackConn(conn)
		_ = conn.Close()
		s.log.Info().Str("remote", remote).Err(err).Msg("client_disconnected")

		if ctx.Err() != nil {
			return nil
		}
	}
}

// ServeSession runs one full session over rw: a fresh tree, a dispatcher
// bound to it, and the command pipeline until the stream ends. The
// active branch is torn down on the way out no matter how the session
// ended.
func (s *Service) ServeSession(ctx context.Context, rw io.ReadWriter) error {
	id := s.sessionSeq.Add(1)
	slog := s.log.With().Uint64("session", id).Logger()

	observability.SessionStarted()
	s.activeSessions.Add(1)
	defer func() {
		s.activeSessions.Add(-1)
		observability.SessionEnded()
	}()

	dispatcher := node.NewDispatcher(node.NewRoot(node.Config{
		Devices:   s.deps.Devices,
		Readers:   s.deps.Readers,
		Reconnect: s.deps.Reconnect,
		Identity:  s.deps.Identity,
		Apps:      s.deps.Apps,
		Version:   s.cfg.Version,
	}))
	defer func() {
		if err := dispatcher.Close(); err != nil {
			slog.Warn().Err(err).Msg("branch_teardown_failed")
		}
	}()

	pipeline := rpc.New(wire.NewConn(rw, s.cfg.Wire), s.instrument(id, dispatcher.Handler()))
	slog.Info().Msg("session_started")
	err := pipeline.Run(ctx)
	slog.Info().Err(err).Msg("session_ended")
	return err
}

// instrument wraps a session handler with metrics and the recent-command
// ring.
func (s *Service) instrument(session uint64, next rpc.Handler) rpc.Handler {
	return func(ctx context.Context, cmd wire.Command, flag *rpc.Flag, emit rpc.SignalFunc) (wire.Fields, error) {
		counted := func(name string, fields wire.Fields) error {
			observability.RecordSignal(name)
			return emit(name, fields)
		}

		start := time.Now()
		out, err := next(ctx, cmd, flag, counted)
		elapsed := time.Since(start)

		rec := CommandRecord{
			Session:  session,
			Action:   cmd.Action,
			Target:   cmd.Target,
			Result:   wire.ResultSuccess,
			Duration: elapsed.String(),
			At:       start,
		}
		if err != nil {
			rec.Result = wire.ResultError
			rec.Error = err.Error()
		}
		observability.RecordCommand(cmd.Action, rec.Result, elapsed)
		s.recent.add(rec)
		return out, err
	}
}

func (s *Service) trackConn(conn net.Conn) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	s.conns[conn] = struct{}{}
}

func (s *Service) untrackConn(conn net.Conn) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	delete(s.conns, conn)
}

func (s *Service) closeAllConns() {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	for conn := range s.conns {
		_ = conn.Close()
		delete(s.conns, conn)
	}
}
