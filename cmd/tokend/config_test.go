package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danmuck/tokend/internal/config"
	"github.com/danmuck/tokend/internal/daemon"
	"github.com/danmuck/tokend/internal/testutil/testlog"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tokend.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadServiceConfigOverlaysDefaults(t *testing.T) {
	testlog.Start(t)

	body := `listen_addr = "127.0.0.1:9990"
admin_token = "hunter2"
shutdown_grace_ms = 250
fixture_path = "bench.yaml"
`
	cfg, fixturePath, err := loadServiceConfig(writeConfig(t, body))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	defaults := daemon.DefaultServiceConfig()
	if cfg.ListenAddr != "127.0.0.1:9990" {
		t.Fatalf("listen addr not applied: %q", cfg.ListenAddr)
	}
	if cfg.AdminAddr != defaults.AdminAddr {
		t.Fatalf("unset admin addr should keep default: %q", cfg.AdminAddr)
	}
	if cfg.AdminToken != "hunter2" {
		t.Fatalf("admin token not applied: %q", cfg.AdminToken)
	}
	if cfg.ShutdownGrace != 250*time.Millisecond {
		t.Fatalf("shutdown grace not applied: %v", cfg.ShutdownGrace)
	}
	if cfg.Wire.MaxMessageBytes != defaults.Wire.MaxMessageBytes {
		t.Fatalf("unset wire limit should keep default: %d", cfg.Wire.MaxMessageBytes)
	}
	if fixturePath != "bench.yaml" {
		t.Fatalf("fixture path not applied: %q", fixturePath)
	}
}

func TestLoadServiceConfigAcceptsTemplate(t *testing.T) {
	testlog.Start(t)

	body, err := config.Template("daemon")
	if err != nil {
		t.Fatalf("template: %v", err)
	}
	cfg, fixturePath, err := loadServiceConfig(writeConfig(t, body))
	if err != nil {
		t.Fatalf("template did not load: %v", err)
	}
	defaults := daemon.DefaultServiceConfig()
	if cfg.ListenAddr != defaults.ListenAddr || cfg.AdminAddr != defaults.AdminAddr {
		t.Fatalf("template drifted from defaults: %+v", cfg)
	}
	if fixturePath != "" {
		t.Fatalf("template should not pin a fixture: %q", fixturePath)
	}
}

func TestLoadServiceConfigRejectsBadValues(t *testing.T) {
	testlog.Start(t)

	if _, _, err := loadServiceConfig(writeConfig(t, "shutdown_grace_ms = -1\n")); err == nil {
		t.Fatal("negative grace should fail")
	}
	if _, _, err := loadServiceConfig(writeConfig(t, "max_message_bytes = 0\n")); err == nil {
		t.Fatal("zero wire limit should fail")
	}
	if _, _, err := loadServiceConfig(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatal("missing file should fail")
	}
}

func TestBuildHub(t *testing.T) {
	testlog.Start(t)

	hub, err := buildHub("")
	if err != nil {
		t.Fatalf("default hub: %v", err)
	}
	keys, readers := hub.Counts()
	if keys != 2 || readers != 1 {
		t.Fatalf("unexpected default hub shape: %d keys %d readers", keys, readers)
	}

	path := filepath.Join(t.TempDir(), "fixture.yaml")
	if err := config.WriteTemplate(path, "fixture", false); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	hub, err = buildHub(path)
	if err != nil {
		t.Fatalf("fixture hub: %v", err)
	}
	keys, readers = hub.Counts()
	if keys != 2 || readers != 2 {
		t.Fatalf("unexpected fixture hub shape: %d keys %d readers", keys, readers)
	}

	if _, err := buildHub(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("missing fixture should fail")
	}
}
