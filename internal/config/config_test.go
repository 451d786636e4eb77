package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/danmuck/tokend/internal/devicesim"
	"github.com/danmuck/tokend/internal/testutil/testlog"
	"github.com/pelletier/go-toml/v2"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadClientConfigDefaults(t *testing.T) {
	testlog.Start(t)

	path := writeFile(t, "client.toml", "admin_token = \"hunter2\"\n")
	cfg, err := LoadClientConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != "127.0.0.1:7440" {
		t.Fatalf("addr default not applied: %q", cfg.Addr)
	}
	if cfg.AdminAddr != "127.0.0.1:7441" {
		t.Fatalf("admin addr default not applied: %q", cfg.AdminAddr)
	}
	if cfg.AdminToken != "hunter2" {
		t.Fatalf("admin token lost: %q", cfg.AdminToken)
	}
	if cfg.DialTimeoutMS != 3000 || cfg.DialRetries != 3 || cfg.DialBackoffMS != 200 {
		t.Fatalf("dial defaults not applied: %+v", cfg)
	}
}

func TestLoadClientConfigOverrides(t *testing.T) {
	testlog.Start(t)

	body := `addr = "10.0.0.5:9900"
dial_retries = 0
dial_backoff_ms = 50
`
	cfg, err := LoadClientConfig(writeFile(t, "client.toml", body))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != "10.0.0.5:9900" {
		t.Fatalf("addr override lost: %q", cfg.Addr)
	}
	if cfg.DialRetries != 0 {
		t.Fatalf("explicit zero retries overridden: %d", cfg.DialRetries)
	}
	if cfg.DialBackoffMS != 50 {
		t.Fatalf("backoff override lost: %d", cfg.DialBackoffMS)
	}
}

func TestLoadClientConfigErrors(t *testing.T) {
	testlog.Start(t)

	if _, err := LoadClientConfig(filepath.Join(t.TempDir(), "absent.toml")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("missing file should surface os.ErrNotExist, got %v", err)
	}
	if _, err := LoadClientConfig(writeFile(t, "bad.toml", "addr = [\n")); err == nil {
		t.Fatal("malformed toml should fail")
	}
	if _, err := LoadClientConfig(writeFile(t, "neg.toml", "dial_retries = -1\n")); err == nil {
		t.Fatal("negative retries should fail validation")
	}
	if _, err := LoadClientConfig(writeFile(t, "zero.toml", "dial_timeout_ms = 0\n")); err == nil {
		t.Fatal("zero dial timeout should fail validation")
	}
}

func TestClientTemplateRoundTrips(t *testing.T) {
	testlog.Start(t)

	path := filepath.Join(t.TempDir(), "client.toml")
	if err := WriteTemplate(path, "client", false); err != nil {
		t.Fatalf("write template: %v", err)
	}
	cfg, err := LoadClientConfig(path)
	if err != nil {
		t.Fatalf("template did not load: %v", err)
	}
	if cfg != DefaultClientConfig() {
		t.Fatalf("template drifted from defaults: %+v", cfg)
	}
}

func TestDaemonTemplateParses(t *testing.T) {
	testlog.Start(t)

	body, err := Template("daemon")
	if err != nil {
		t.Fatalf("template: %v", err)
	}
	var raw map[string]any
	if err := toml.Unmarshal([]byte(body), &raw); err != nil {
		t.Fatalf("daemon template is not valid toml: %v", err)
	}
	for _, key := range []string{"listen_addr", "admin_addr", "shutdown_grace_ms"} {
		if _, ok := raw[key]; !ok {
			t.Fatalf("daemon template missing %s", key)
		}
	}

	file, err := LoadDaemonFile(writeFile(t, "daemon.toml", body))
	if err != nil {
		t.Fatalf("daemon template did not load: %v", err)
	}
	if file.ListenAddr != "127.0.0.1:7440" || file.ShutdownGraceMS != 5000 {
		t.Fatalf("daemon template drifted: %+v", file)
	}
	if _, err := LoadDaemonFile(writeFile(t, "neg.toml", "shutdown_grace_ms = -5\n")); err == nil {
		t.Fatal("negative grace should fail validation")
	}
}

func TestFixtureTemplateLoads(t *testing.T) {
	testlog.Start(t)

	path := filepath.Join(t.TempDir(), "fixture.yaml")
	if err := WriteTemplate(path, "fixture", false); err != nil {
		t.Fatalf("write template: %v", err)
	}
	fixture, err := devicesim.LoadFixture(path)
	if err != nil {
		t.Fatalf("fixture template did not load: %v", err)
	}
	if len(fixture.Keys) != 2 || len(fixture.Readers) != 2 {
		t.Fatalf("unexpected fixture shape: %d keys %d readers", len(fixture.Keys), len(fixture.Readers))
	}
	hub := devicesim.NewHub()
	if err := hub.Apply(fixture); err != nil {
		t.Fatalf("fixture template did not apply: %v", err)
	}
}

func TestWriteTemplateGuardsExistingFiles(t *testing.T) {
	testlog.Start(t)

	path := filepath.Join(t.TempDir(), "daemon.toml")
	if err := WriteTemplate(path, "daemon", false); err != nil {
		t.Fatalf("first write: %v", err)
	}
	err := WriteTemplate(path, "daemon", false)
	if err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("second write should refuse, got %v", err)
	}
	if err := WriteTemplate(path, "daemon", true); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if _, err := Template("mainframe"); err == nil {
		t.Fatal("unknown kind should fail")
	}
}
