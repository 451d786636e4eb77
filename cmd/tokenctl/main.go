package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/danmuck/tokend/internal/config"
	"github.com/danmuck/tokend/internal/logging"
	"github.com/danmuck/tokend/internal/wire"
)

const (
	exitSuccess   = 0
	exitCommand   = 1
	exitTransport = 2
)

func main() { os.Exit(run()) }

func run() int {
	configPath := flag.String("config", "", "client config toml path")
	addr := flag.String("addr", "", "daemon rpc address (overrides config)")
	cancelAfter := flag.Duration("cancel-after", 0, "send a cancel signal this long after the command is sent")
	status := flag.Bool("status", false, "query the daemon admin status endpoint and exit")
	recent := flag.Int("recent", 0, "list the last N commands from the admin endpoint and exit")
	params := paramFlags{}
	flag.Var(params, "p", "command parameter as key=value (repeatable; values parse as JSON when possible)")
	flag.Parse()

	logging.ConfigureRuntime()

	cfg := config.DefaultClientConfig()
	if *configPath != "" {
		loaded, err := config.LoadClientConfig(*configPath)
		if err != nil {
			return failf("%v", err)
		}
		cfg = loaded
	}
	if *addr != "" {
		cfg.Addr = *addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *status {
		return adminQuery(ctx, cfg, "/status", os.Stdout)
	}
	if *recent > 0 {
		return adminQuery(ctx, cfg, fmt.Sprintf("/commands?limit=%d", *recent), os.Stdout)
	}

	cmd, err := buildCommand(flag.Args(), wire.Fields(params))
	if err != nil {
		return failf("%v", err)
	}

	cl, err := dialDaemon(ctx, cfg)
	if err != nil {
		return failf("%v", err)
	}
	defer cl.Close()

	code, err := cl.execute(ctx, cmd, *cancelAfter, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tokenctl: %v\n", err)
	}
	return code
}

// buildCommand assembles one command from positional arguments. Target
// segments may be given separately or slash-joined.
func buildCommand(args []string, params wire.Fields) (wire.Command, error) {
	if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
		return wire.Command{}, errors.New("usage: tokenctl [flags] <action> [target...]")
	}
	cmd := wire.Command{Action: args[0], Params: params}
	for _, arg := range args[1:] {
		for _, segment := range strings.Split(arg, "/") {
			if segment == "" {
				continue
			}
			cmd.Target = append(cmd.Target, segment)
		}
	}
	return cmd, nil
}

// paramFlags collects repeated -p key=value arguments. Values that parse as
// JSON keep their parsed type; everything else stays a string.
type paramFlags wire.Fields

func (p paramFlags) String() string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return strings.Join(keys, ",")
}

func (p paramFlags) Set(raw string) error {
	key, value, ok := strings.Cut(raw, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return fmt.Errorf("expected key=value, got %q", raw)
	}
	var parsed any
	if err := json.Unmarshal([]byte(value), &parsed); err == nil {
		p[key] = parsed
		return nil
	}
	p[key] = value
	return nil
}

// client speaks the daemon's line protocol over one connection.
type client struct {
	conn net.Conn
	wire *wire.Conn
}

func newClient(conn net.Conn) *client {
	return &client{conn: conn, wire: wire.NewConn(conn, wire.Limits{})}
}

func (c *client) Close() error { return c.conn.Close() }

func dialDaemon(ctx context.Context, cfg config.ClientConfig) (*client, error) {
	timeout := time.Duration(cfg.DialTimeoutMS) * time.Millisecond
	backoff := time.Duration(cfg.DialBackoffMS) * time.Millisecond
	var lastErr error
	for attempt := 0; attempt <= cfg.DialRetries; attempt++ {
		if attempt > 0 {
			if err := waitBackoff(ctx, time.Duration(attempt)*backoff); err != nil {
				return nil, err
			}
		}
		conn, err := net.DialTimeout("tcp", cfg.Addr, timeout)
		if err == nil {
			return newClient(conn), nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("dial %s: %w", cfg.Addr, lastErr)
}

func waitBackoff(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// execute sends one command and relays replies until the final response.
// Signals stream to out as they arrive.
func (c *client) execute(ctx context.Context, cmd wire.Command, cancelAfter time.Duration, out io.Writer) (int, error) {
	if err := c.wire.WriteCommand(cmd); err != nil {
		return exitTransport, fmt.Errorf("send command: %w", err)
	}
	if cancelAfter > 0 {
		timer := time.AfterFunc(cancelAfter, func() {
			_ = c.wire.WriteSignal(wire.SignalCancel, nil)
		})
		defer timer.Stop()
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = c.conn.Close()
		case <-done:
		}
	}()

	for {
		reply, err := c.wire.ReadReply()
		if err != nil {
			if ctx.Err() != nil {
				return exitTransport, ctx.Err()
			}
			return exitTransport, fmt.Errorf("read reply: %w", err)
		}
		switch {
		case reply.Signal != "":
			emit(out, map[string]any{"signal": reply.Signal, "data": reply.Data})
		case reply.Result == wire.ResultError:
			emit(out, map[string]any{"result": reply.Result, "message": reply.Message, "data": reply.Data})
			return exitCommand, nil
		default:
			emit(out, map[string]any{"result": reply.Result, "data": reply.Data})
			return exitSuccess, nil
		}
	}
}

// adminQuery fetches one admin endpoint and relays the JSON body.
func adminQuery(ctx context.Context, cfg config.ClientConfig, path string, out io.Writer) int {
	if strings.TrimSpace(cfg.AdminAddr) == "" {
		return failf("admin address is not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+cfg.AdminAddr+path, nil)
	if err != nil {
		return failf("%v", err)
	}
	if cfg.AdminToken != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.AdminToken)
	}
	httpClient := &http.Client{Timeout: time.Duration(cfg.DialTimeoutMS) * time.Millisecond}
	resp, err := httpClient.Do(req)
	if err != nil {
		return failf("%v", err)
	}
	defer resp.Body.Close()
	if _, err := io.Copy(out, resp.Body); err != nil {
		return failf("%v", err)
	}
	fmt.Fprintln(out)
	if resp.StatusCode != http.StatusOK {
		return exitCommand
	}
	return exitSuccess
}

func emit(out io.Writer, v any) {
	if err := json.NewEncoder(out).Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "tokenctl: encode reply: %v\n", err)
	}
}

func failf(format string, args ...any) int {
	fmt.Fprintf(os.Stderr, "tokenctl: "+format+"\n", args...)
	return exitTransport
}
