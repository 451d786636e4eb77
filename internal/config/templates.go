package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "daemon":
		return daemonTemplate, nil
	case "client":
		return clientTemplate, nil
	case "fixture":
		return fixtureTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const daemonTemplate = `listen_addr = "127.0.0.1:7440"
admin_addr = "127.0.0.1:7441"
admin_token = ""
cors_origins = ["http://localhost:3000"]
shutdown_grace_ms = 5000
max_message_bytes = 1048576
fixture_path = ""
`

const clientTemplate = `addr = "127.0.0.1:7440"
admin_addr = "127.0.0.1:7441"
admin_token = ""
dial_timeout_ms = 3000
dial_retries = 3
dial_backoff_ms = 200
`

const fixtureTemplate = `keys:
  - label: key-a
    serial: 10345678
    version: "5.7.1"
    transports: [ccid, otp, fido]
  - label: key-b
    serial: 20456789
    version: "5.4.3"
    transports: [ccid]

readers:
  - name: sim-reader-0
  - name: sim-reader-1
    card:
      label: nfc-key
      serial: 31337
      version: "5.2.7"
      transports: [ccid]
`
