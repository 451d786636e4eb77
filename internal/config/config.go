package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// ClientConfig holds the settings tokenctl needs to reach a daemon.
type ClientConfig struct {
	Addr          string `toml:"addr"`
	AdminAddr     string `toml:"admin_addr"`
	AdminToken    string `toml:"admin_token"`
	DialTimeoutMS int    `toml:"dial_timeout_ms"`
	DialRetries   int    `toml:"dial_retries"`
	DialBackoffMS int    `toml:"dial_backoff_ms"`
}

func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Addr:          "127.0.0.1:7440",
		AdminAddr:     "127.0.0.1:7441",
		DialTimeoutMS: 3000,
		DialRetries:   3,
		DialBackoffMS: 200,
	}
}

func LoadClientConfig(path string) (ClientConfig, error) {
	cfg := DefaultClientConfig()
	if err := loadToml(path, &cfg); err != nil {
		return ClientConfig{}, err
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = "127.0.0.1:7440"
	}
	if err := ValidateClientConfig(cfg); err != nil {
		return ClientConfig{}, err
	}
	return cfg, nil
}

// DaemonFile mirrors the keys cmd/tokend reads from its config file. Zero
// values mean the key was absent; the daemon overlay applies its own
// defaults.
type DaemonFile struct {
	ListenAddr      string   `toml:"listen_addr"`
	AdminAddr       string   `toml:"admin_addr"`
	AdminToken      string   `toml:"admin_token"`
	CORSOrigins     []string `toml:"cors_origins"`
	ShutdownGraceMS int      `toml:"shutdown_grace_ms"`
	MaxMessageBytes int      `toml:"max_message_bytes"`
	FixturePath     string   `toml:"fixture_path"`
}

func LoadDaemonFile(path string) (DaemonFile, error) {
	var f DaemonFile
	if err := loadToml(path, &f); err != nil {
		return DaemonFile{}, err
	}
	if err := ValidateDaemonFile(f); err != nil {
		return DaemonFile{}, err
	}
	return f, nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidateClientConfig(cfg ClientConfig) error {
	if strings.TrimSpace(cfg.Addr) == "" {
		return fmt.Errorf("client config missing addr")
	}
	if cfg.DialTimeoutMS <= 0 {
		return fmt.Errorf("client config dial_timeout_ms must be positive")
	}
	if cfg.DialRetries < 0 {
		return fmt.Errorf("client config dial_retries must not be negative")
	}
	if cfg.DialBackoffMS < 0 {
		return fmt.Errorf("client config dial_backoff_ms must not be negative")
	}
	return nil
}

func ValidateDaemonFile(f DaemonFile) error {
	if f.ShutdownGraceMS < 0 {
		return fmt.Errorf("daemon config shutdown_grace_ms must not be negative")
	}
	if f.MaxMessageBytes < 0 {
		return fmt.Errorf("daemon config max_message_bytes must not be negative")
	}
	return nil
}
