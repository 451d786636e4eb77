package wire

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"maps"
	"sync"
)

// Limits constrains per-message memory use on the inbound stream.
type Limits struct {
	MaxMessageBytes int
}

func DefaultLimits() Limits {
	return Limits{
		MaxMessageBytes: 1024 * 1024,
	}
}

func (l Limits) WithDefaults() Limits {
	if l.MaxMessageBytes <= 0 {
		l.MaxMessageBytes = DefaultLimits().MaxMessageBytes
	}
	return l
}

// Conn frames newline-delimited JSON messages over one transport stream.
// All writes are serialized through one mutex: responses, mid-command
// signals and protocol errors share the writer.
type Conn struct {
	r      *bufio.Reader
	w      io.Writer
	limits Limits

	wmu sync.Mutex
}

func NewConn(rw io.ReadWriter, limits Limits) *Conn {
	return &Conn{
		r:      bufio.NewReader(rw),
		w:      rw,
		limits: limits.WithDefaults(),
	}
}

// ReadMessage returns the next classified inbound message. Blank lines are
// skipped. An oversized line is consumed through its newline and reported
// as ErrOversized; the stream remains usable afterwards. io.EOF is the only
// terminal condition.
func (c *Conn) ReadMessage() (Inbound, error) {
	for {
		line, err := c.readLine()
		if err != nil {
			return Inbound{}, err
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		return Decode(line)
	}
}

// ReadReply returns the next daemon-to-client message. Used by clients.
func (c *Conn) ReadReply() (Reply, error) {
	for {
		line, err := c.readLine()
		if err != nil {
			return Reply{}, err
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		return DecodeReply(line)
	}
}

func (c *Conn) readLine() ([]byte, error) {
	var line []byte
	for {
		chunk, err := c.r.ReadSlice('\n')
		line = append(line, chunk...)
		if err == nil {
			break
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			if len(line) > c.limits.MaxMessageBytes {
				if derr := c.discardLine(); derr != nil {
					return nil, derr
				}
				return nil, ErrOversized
			}
			continue
		}
		if errors.Is(err, io.EOF) && len(bytes.TrimSpace(line)) > 0 {
			// Final message without a trailing newline.
			return line, nil
		}
		return nil, err
	}
	if len(line) > c.limits.MaxMessageBytes {
		return nil, ErrOversized
	}
	return line, nil
}

func (c *Conn) discardLine() error {
	for {
		_, err := c.r.ReadSlice('\n')
		if err == nil {
			return nil
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return err
	}
}

// WriteSuccess emits a success response with the result data flattened
// beside the envelope key. The envelope key wins on collision.
func (c *Conn) WriteSuccess(data Fields) error {
	msg := make(map[string]any, len(data)+1)
	maps.Copy(msg, data)
	msg[keyResult] = ResultSuccess
	return c.writeJSON(msg)
}

func (c *Conn) WriteError(message string) error {
	return c.writeJSON(map[string]any{
		keyResult:  ResultError,
		keyMessage: message,
	})
}

func (c *Conn) WriteSignal(name string, fields Fields) error {
	msg := make(map[string]any, len(fields)+1)
	maps.Copy(msg, fields)
	msg[keySignal] = name
	return c.writeJSON(msg)
}

// WriteCommand emits an action request. Used by clients.
func (c *Conn) WriteCommand(cmd Command) error {
	msg := map[string]any{keyAction: cmd.Action}
	if len(cmd.Target) > 0 {
		msg[keyTarget] = cmd.Target
	}
	if len(cmd.Params) > 0 {
		msg[keyParams] = cmd.Params
	}
	return c.writeJSON(msg)
}

func (c *Conn) writeJSON(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	payload = append(payload, '\n')

	c.wmu.Lock()
	defer c.wmu.Unlock()
	_, err = c.w.Write(payload)
	return err
}
