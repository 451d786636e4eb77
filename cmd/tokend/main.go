package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/danmuck/tokend/internal/apps"
	"github.com/danmuck/tokend/internal/daemon"
	"github.com/danmuck/tokend/internal/devicesim"
	"github.com/danmuck/tokend/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "daemon config toml path")
	listen := flag.String("listen", "", "rpc listen address (overrides config)")
	admin := flag.String("admin", "", "admin listen address (overrides config)")
	fixture := flag.String("fixture", "", "device fixture yaml (overrides config)")
	useStdio := flag.Bool("stdio", false, "serve one session over stdin/stdout and exit")
	flag.Parse()

	logging.ConfigureRuntime()

	cfg := daemon.DefaultServiceConfig()
	fixturePath := ""
	if *configPath != "" {
		loaded, path, err := loadServiceConfig(*configPath)
		if err != nil {
			fatalf("%v", err)
		}
		cfg = loaded
		fixturePath = path
	}
	if *listen != "" {
		cfg.ListenAddr = *listen
	}
	if *admin != "" {
		cfg.AdminAddr = *admin
	}
	if *fixture != "" {
		fixturePath = *fixture
	}

	hub, err := buildHub(fixturePath)
	if err != nil {
		fatalf("%v", err)
	}

	registry := apps.NewRegistry()
	if err := devicesim.RegisterApps(registry); err != nil {
		fatalf("%v", err)
	}

	svc, err := daemon.NewService(cfg, daemon.TreeDeps{
		Devices:   hub.Devices(),
		Readers:   hub.Readers(),
		Reconnect: hub,
		Identity:  hub,
		Apps:      registry,
	})
	if err != nil {
		fatalf("%v", err)
	}

	run := svc.Run
	if *useStdio {
		run = svc.RunStdio
	}
	if err := run(context.Background()); err != nil {
		fatalf("%v", err)
	}
}

func buildHub(path string) (*devicesim.Hub, error) {
	if path == "" {
		return devicesim.DefaultHub(), nil
	}
	fixture, err := devicesim.LoadFixture(path)
	if err != nil {
		return nil, err
	}
	hub := devicesim.NewHub()
	if err := hub.Apply(fixture); err != nil {
		return nil, err
	}
	return hub, nil
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "tokend: "+format+"\n", args...)
	os.Exit(1)
}
