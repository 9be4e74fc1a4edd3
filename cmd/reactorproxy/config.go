package main

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config is the command-line scaffold's own configuration document.
// The reactor core itself has no configuration file; Workers are
// always constructed programmatically, here from the values this
// struct carries.
type Config struct {
	// Workers is how many reactor.Worker instances to start. Zero
	// means "one per GOMAXPROCS", set after automaxprocs has run.
	Workers int `yaml:"workers"`
	// Listeners are the addresses to accept connections on, each
	// bound with SO_REUSEPORT so every worker that owns one of them
	// can accept independently.
	Listeners []string `yaml:"listeners"`
	// OffloadCapacity bounds the offload.Pool's goroutine count.
	OffloadCapacity int `yaml:"offload_capacity"`
}

func defaultConfig() Config {
	return Config{
		Workers:         0,
		Listeners:       []string{"127.0.0.1:3306"},
		OffloadCapacity: 64,
	}
}

func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "reactorproxy: read config %s", path)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, errors.Wrapf(err, "reactorproxy: parse config %s", path)
	}
	return cfg, nil
}
