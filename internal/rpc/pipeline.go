// Package rpc owns command stream execution.
//
// Ownership boundary:
// - signal vs command demultiplexing
//
// - one-command-at-a-time hand-off
//
// - cooperative cancellation
//
// rpc does not own command semantics; the embedder registers a Handler.
package rpc

import (
	"context"
	"errors"
	"io"

	"github.com/danmuck/tokend/internal/wire"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SignalFunc emits one out-of-band signal while a command is executing.
type SignalFunc func(name string, fields wire.Fields) error

// Handler executes one command against the embedder's state. The returned
// fields become the success response; an error becomes the error response.
type Handler func(ctx context.Context, cmd wire.Command, flag *Flag, emit SignalFunc) (wire.Fields, error)

type work struct {
	cmd  wire.Command
	done chan struct{}
}

// Pipeline runs one command stream: a background receiver classifying
// inbound messages and a dispatch loop executing at most one command at any
// instant. Responses are emitted in command order, exactly one per command.
type Pipeline struct {
	conn    *wire.Conn
	handler Handler
	flag    *Flag
	queue   chan *work
	log     zerolog.Logger
}

func New(conn *wire.Conn, handler Handler) *Pipeline {
	return &Pipeline{
		conn:    conn,
		handler: handler,
		flag:    NewFlag(),
		queue:   make(chan *work, 1),
		log:     log.With().Str("component", "rpc").Logger(),
	}
}

// Run serves the stream until end of input or context cancellation. The
// receiver blocks in transport reads; on cancellation the transport owner
// must close the connection to unblock it.
func (p *Pipeline) Run(ctx context.Context) error {
	recvDone := make(chan struct{})
	go func() {
		defer close(recvDone)
		p.receive(ctx)
	}()

	p.dispatch(ctx)
	<-recvDone

	if err := ctx.Err(); err != nil {
		return err
	}
	return nil
}

func (p *Pipeline) receive(ctx context.Context) {
	var prev *work
	defer func() {
		p.flag.Set()
		close(p.queue)
	}()

	for {
		in, err := p.conn.ReadMessage()
		if err != nil {
			if errors.Is(err, wire.ErrOversized) || errors.Is(err, wire.ErrMalformed) || errors.Is(err, wire.ErrUnsupportedType) {
				p.writeError(err.Error())
				continue
			}
			if !errors.Is(err, io.EOF) {
				p.log.Debug().Err(err).Msg("receiver_closed")
			}
			return
		}

		switch {
		case in.Signal != nil:
			if in.Signal.Name == wire.SignalCancel {
				p.flag.Set()
				continue
			}
			p.log.Error().Str("signal", in.Signal.Name).Msg("unhandled_signal")

		case in.Command != nil:
			// Hand-off is capacity one: wait out the previous command
			// before admitting the next, then start it with a clean flag.
			if prev != nil {
				select {
				case <-prev.done:
				case <-ctx.Done():
					return
				}
			}
			p.flag.Clear()
			w := &work{cmd: *in.Command, done: make(chan struct{})}
			select {
			case p.queue <- w:
				prev = w
			case <-ctx.Done():
				return
			}
		}
	}
}

func (p *Pipeline) dispatch(ctx context.Context) {
	emit := func(name string, fields wire.Fields) error {
		return p.conn.WriteSignal(name, fields)
	}

	for {
		select {
		case w, ok := <-p.queue:
			if !ok {
				return
			}
			p.runOne(ctx, w, emit)
		case <-ctx.Done():
			return
		}
	}
}

func (p *Pipeline) runOne(ctx context.Context, w *work, emit SignalFunc) {
	defer close(w.done)

	data, err := p.handler(ctx, w.cmd, p.flag, emit)
	if err != nil {
		p.log.Warn().Str("action", w.cmd.Action).Err(err).Msg("command_failed")
		p.writeError(err.Error())
		return
	}
	if err := p.conn.WriteSuccess(data); err != nil {
		p.log.Error().Str("action", w.cmd.Action).Err(err).Msg("write_response_failed")
	}
}

func (p *Pipeline) writeError(message string) {
	if err := p.conn.WriteError(message); err != nil {
		p.log.Error().Err(err).Msg("write_error_failed")
	}
}
