package main

import (
	"flag"
	"log"

	"github.com/danmuck/tokend/internal/config"
	"github.com/danmuck/tokend/internal/devicesim"
)

func main() {
	kind := flag.String("kind", "daemon", "config kind: daemon|client|fixture")
	output := flag.String("output", "", "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing config file")
	input := flag.String("input", "", "config path for validation (defaults to per-kind cmd path)")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	if *validate {
		path := *input
		if path == "" {
			path = defaultPath(*kind)
		}
		switch *kind {
		case "daemon":
			if _, err := config.LoadDaemonFile(path); err != nil {
				log.Fatal(err)
			}
		case "client":
			if _, err := config.LoadClientConfig(path); err != nil {
				log.Fatal(err)
			}
		case "fixture":
			fixture, err := devicesim.LoadFixture(path)
			if err != nil {
				log.Fatal(err)
			}
			if err := devicesim.NewHub().Apply(fixture); err != nil {
				log.Fatal(err)
			}
		default:
			log.Fatalf("unknown kind: %s", *kind)
		}
		log.Printf("Validated %s config at %s", *kind, path)
		return
	}

	target := *output
	if target == "" {
		target = defaultPath(*kind)
	}
	if err := config.WriteTemplate(target, *kind, *force); err != nil {
		log.Fatal(err)
	}
	log.Printf("Wrote %s config template to %s", *kind, target)
}

func defaultPath(kind string) string {
	switch kind {
	case "daemon":
		return "cmd/tokend/config.toml"
	case "client":
		return "cmd/tokenctl/config.toml"
	case "fixture":
		return "cmd/tokend/fixture.yaml"
	default:
		log.Fatalf("unknown kind: %s", kind)
		return ""
	}
}
