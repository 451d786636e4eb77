package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/tokend/internal/config"
	"github.com/danmuck/tokend/internal/daemon"
)

// tokend loader for TOML config with default overlay. Only keys present in
// the file override DefaultServiceConfig.
func loadServiceConfig(path string) (daemon.ServiceConfig, string, error) {
	cfg := daemon.DefaultServiceConfig()

	var raw config.DaemonFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return daemon.ServiceConfig{}, "", fmt.Errorf("load tokend config: %w", err)
	}

	if meta.IsDefined("listen_addr") {
		cfg.ListenAddr = strings.TrimSpace(raw.ListenAddr)
	}
	if meta.IsDefined("admin_addr") {
		cfg.AdminAddr = strings.TrimSpace(raw.AdminAddr)
	}
	if meta.IsDefined("admin_token") {
		cfg.AdminToken = strings.TrimSpace(raw.AdminToken)
	}
	if meta.IsDefined("cors_origins") {
		cfg.CORSOrigins = raw.CORSOrigins
	}
	if meta.IsDefined("shutdown_grace_ms") {
		if raw.ShutdownGraceMS < 0 {
			return daemon.ServiceConfig{}, "", fmt.Errorf("load tokend config: shutdown_grace_ms must not be negative")
		}
		cfg.ShutdownGrace = time.Duration(raw.ShutdownGraceMS) * time.Millisecond
	}
	if meta.IsDefined("max_message_bytes") {
		if raw.MaxMessageBytes <= 0 {
			return daemon.ServiceConfig{}, "", fmt.Errorf("load tokend config: max_message_bytes must be positive")
		}
		cfg.Wire.MaxMessageBytes = raw.MaxMessageBytes
	}

	return cfg, strings.TrimSpace(raw.FixturePath), nil
}
