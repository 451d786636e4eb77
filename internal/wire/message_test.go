package wire

import (
	"errors"
	"testing"
)

func TestDecodeSignalWinsClassification(t *testing.T) {
	in, err := Decode([]byte(`{"signal":"cancel","action":"get"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if in.Signal == nil || in.Command != nil {
		t.Fatalf("expected signal classification, got %+v", in)
	}
	if in.Signal.Name != SignalCancel {
		t.Fatalf("signal name mismatch: %q", in.Signal.Name)
	}
}

func TestDecodeCommandDefaults(t *testing.T) {
	in, err := Decode([]byte(`{"action":"get"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if in.Command == nil {
		t.Fatalf("expected command classification, got %+v", in)
	}
	if in.Command.Action != "get" {
		t.Fatalf("action mismatch: %q", in.Command.Action)
	}
	if len(in.Command.Target) != 0 {
		t.Fatalf("expected empty target, got %v", in.Command.Target)
	}
	if in.Command.Params == nil || len(in.Command.Params) != 0 {
		t.Fatalf("expected empty params, got %v", in.Command.Params)
	}
}

func TestDecodeCommandFullEnvelope(t *testing.T) {
	in, err := Decode([]byte(`{"action":"echo","target":["devices","abc"],"params":{"n":1},"extra":true}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	cmd := in.Command
	if cmd == nil {
		t.Fatalf("expected command, got %+v", in)
	}
	if cmd.Action != "echo" {
		t.Fatalf("action mismatch: %q", cmd.Action)
	}
	if len(cmd.Target) != 2 || cmd.Target[0] != "devices" || cmd.Target[1] != "abc" {
		t.Fatalf("target mismatch: %v", cmd.Target)
	}
	if cmd.Params["n"] != float64(1) {
		t.Fatalf("params mismatch: %v", cmd.Params)
	}
}

func TestDecodeKeylessMappingUnsupported(t *testing.T) {
	for _, line := range []string{`{}`, `{"foo":1}`} {
		_, err := Decode([]byte(line))
		if !errors.Is(err, ErrUnsupportedType) {
			t.Fatalf("line %s: expected ErrUnsupportedType, got %v", line, err)
		}
	}
}

func TestDecodeMalformedShapes(t *testing.T) {
	cases := []string{
		`not json`,
		`[1,2]`,
		`{"signal":5}`,
		`{"action":7}`,
		`{"action":"get","target":"devices"}`,
		`{"action":"get","params":[1]}`,
	}
	for _, line := range cases {
		_, err := Decode([]byte(line))
		if !errors.Is(err, ErrMalformed) {
			t.Fatalf("line %s: expected ErrMalformed, got %v", line, err)
		}
	}
}

func TestDecodeReplyShapes(t *testing.T) {
	success, err := DecodeReply([]byte(`{"result":"success","serial":123}`))
	if err != nil {
		t.Fatalf("decode success: %v", err)
	}
	if success.Result != ResultSuccess || success.Data["serial"] != float64(123) {
		t.Fatalf("success mismatch: %+v", success)
	}

	failure, err := DecodeReply([]byte(`{"result":"error","message":"boom"}`))
	if err != nil {
		t.Fatalf("decode error reply: %v", err)
	}
	if failure.Result != ResultError || failure.Message != "boom" {
		t.Fatalf("error reply mismatch: %+v", failure)
	}

	sig, err := DecodeReply([]byte(`{"signal":"tick","n":2}`))
	if err != nil {
		t.Fatalf("decode signal: %v", err)
	}
	if sig.Signal != "tick" || sig.Data["n"] != float64(2) {
		t.Fatalf("signal mismatch: %+v", sig)
	}

	if _, err := DecodeReply([]byte(`{"foo":1}`)); !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("expected ErrUnsupportedType, got %v", err)
	}
}
