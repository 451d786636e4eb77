// Package wire owns the line-oriented JSON message contract.
//
// Ownership boundary:
// - inbound classification (signal vs command)
//
// - outbound envelopes (response, signal)
//
// - stream framing and size limits
//
// Wire does not interpret command semantics.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
)

const (
	keyAction  = "action"
	keyTarget  = "target"
	keyParams  = "params"
	keySignal  = "signal"
	keyResult  = "result"
	keyMessage = "message"
)

const (
	ResultSuccess = "success"
	ResultError   = "error"

	SignalCancel = "cancel"
)

var (
	ErrMalformed       = errors.New("wire: malformed message")
	ErrUnsupportedType = errors.New("wire: unsupported message type")
	ErrOversized       = errors.New("wire: message exceeds size limit")
)

// Fields is the open key/value payload carried by commands, results and
// signals.
type Fields map[string]any

// Signal is one inbound control signal.
type Signal struct {
	Name string
}

// Command is one inbound action request addressed at a node path.
type Command struct {
	Action string
	Target []string
	Params Fields
}

// Inbound is one classified client message. Exactly one field is non-nil.
type Inbound struct {
	Signal  *Signal
	Command *Command
}

// Decode classifies one inbound line by key presence: "signal" first, then
// "action". A mapping with neither key is an unsupported message type.
func Decode(line []byte) (Inbound, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(line, &raw); err != nil {
		return Inbound{}, fmt.Errorf("%w: %s", ErrMalformed, err)
	}

	if rawName, ok := raw[keySignal]; ok {
		var name string
		if err := json.Unmarshal(rawName, &name); err != nil {
			return Inbound{}, fmt.Errorf("%w: signal must be a string", ErrMalformed)
		}
		return Inbound{Signal: &Signal{Name: name}}, nil
	}

	if rawAction, ok := raw[keyAction]; ok {
		cmd := Command{Params: Fields{}}
		if err := json.Unmarshal(rawAction, &cmd.Action); err != nil {
			return Inbound{}, fmt.Errorf("%w: action must be a string", ErrMalformed)
		}
		if rawTarget, ok := raw[keyTarget]; ok {
			if err := json.Unmarshal(rawTarget, &cmd.Target); err != nil {
				return Inbound{}, fmt.Errorf("%w: target must be a list of strings", ErrMalformed)
			}
		}
		if rawParams, ok := raw[keyParams]; ok {
			if err := json.Unmarshal(rawParams, &cmd.Params); err != nil {
				return Inbound{}, fmt.Errorf("%w: params must be a mapping", ErrMalformed)
			}
			if cmd.Params == nil {
				cmd.Params = Fields{}
			}
		}
		return Inbound{Command: &cmd}, nil
	}

	return Inbound{}, ErrUnsupportedType
}

// Reply is one daemon-to-client message as seen by a client.
type Reply struct {
	Signal  string
	Result  string
	Message string
	Data    Fields
}

// DecodeReply classifies one outbound line from the client's perspective.
func DecodeReply(line []byte) (Reply, error) {
	var raw map[string]any
	if err := json.Unmarshal(line, &raw); err != nil {
		return Reply{}, fmt.Errorf("%w: %s", ErrMalformed, err)
	}

	if name, ok := raw[keySignal].(string); ok {
		delete(raw, keySignal)
		return Reply{Signal: name, Data: raw}, nil
	}

	if result, ok := raw[keyResult].(string); ok {
		reply := Reply{Result: result}
		delete(raw, keyResult)
		if msg, ok := raw[keyMessage].(string); ok && result == ResultError {
			reply.Message = msg
			delete(raw, keyMessage)
		}
		reply.Data = raw
		return reply, nil
	}

	return Reply{}, ErrUnsupportedType
}
