// Copyright 2024 BrokerRouter Authors. Licensed under Apache-2.0.

// Package config loads the router's runtime configuration from a TOML file,
// overridden by environment variables, matching the layered
// file-then-env approach of the teacher's server/config package.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
)

// Config controls the coordinator connection, rebuild coalescing, and
// logging for one router process.
type Config struct {
	// EtcdEndpoints are the coordinator cluster's client endpoints.
	EtcdEndpoints []string `toml:"etcd-endpoints"`
	// RootPath namespaces every key this module reads in the
	// coordinator, mirroring the teacher's rootPath convention.
	RootPath string `toml:"root-path"`
	// RequestTimeout bounds every individual coordinator call.
	RequestTimeout time.Duration `toml:"request-timeout"`
	// NotificationMinInterval is the minimum spacing the change mediator
	// enforces between two coalesced passes over a change type.
	NotificationMinInterval time.Duration `toml:"notification-min-interval"`
	// TimeBoundaryGranularity is subtracted from the latest observed
	// offline segment end-time to get a hybrid table's query boundary.
	TimeBoundaryGranularity time.Duration `toml:"time-boundary-granularity"`
	// ReconcileInterval is how often the change mediator's coalesced,
	// re-fetch-from-scratch passes run as a backstop for missed watch
	// events, independent of real-time watch push.
	ReconcileInterval time.Duration `toml:"reconcile-interval"`
	// HTTPAddr is the debug HTTP server's listen address, serving
	// /snapshot for operator inspection.
	HTTPAddr string `toml:"http-addr"`
	// Dev switches on human-readable (vs. production JSON) logging.
	Dev bool `toml:"dev"`
}

// DefaultConfig mirrors reasonable defaults used by the teacher's
// etcdutil.DefaultRequestTimeout.
func DefaultConfig() Config {
	return Config{
		EtcdEndpoints:           []string{"127.0.0.1:2379"},
		RootPath:                "/broker-router",
		RequestTimeout:          10 * time.Second,
		NotificationMinInterval: 200 * time.Millisecond,
		TimeBoundaryGranularity: time.Minute,
		ReconcileInterval:       30 * time.Second,
		HTTPAddr:                "127.0.0.1:8080",
		Dev:                     false,
	}
}

var (
	ErrReadConfigFile  = errors.New("failed to read config file")
	ErrParseConfigFile = errors.New("failed to parse config file")
)

// Parse loads a Config from a TOML file and then applies any matching
// environment variable overrides, the same two-stage precedence the
// teacher's main.go applies (ParseConfigFromToml then ParseConfigFromEnv).
func Parse(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, errors.WithMessage(ErrReadConfigFile, err.Error())
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return cfg, errors.WithMessage(ErrParseConfigFile, err.Error())
		}
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BROKER_ROUTER_ETCD_ENDPOINTS"); v != "" {
		cfg.EtcdEndpoints = []string{v}
	}
	if v := os.Getenv("BROKER_ROUTER_ROOT_PATH"); v != "" {
		cfg.RootPath = v
	}
	if v := os.Getenv("BROKER_ROUTER_DEV"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Dev = b
		}
	}
}
