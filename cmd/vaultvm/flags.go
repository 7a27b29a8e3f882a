// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"time"

	"github.com/spf13/pflag"
)

const (
	ListenKey         = "listen"
	DataDirKey        = "data-dir"
	GenesisKey        = "genesis"
	ConfigKey         = "config"
	LogLevelKey       = "log-level"
	AllowedOriginsKey = "allowed-origins"
	AllowedHostsKey   = "allowed-hosts"
	MetricsKey        = "metrics"
	ProfileDirKey     = "profile-dir"
)

func AddFlags(flags *pflag.FlagSet) {
	flags.String(ListenKey, "127.0.0.1:9750", "Address the HTTP API listens on")
	flags.String(DataDirKey, "", "Directory for the database; empty runs in memory")
	flags.String(GenesisKey, "", "Path to the genesis document (required on a fresh database)")
	flags.String(ConfigKey, "", "Path to a VM configuration overlay")
	flags.String(LogLevelKey, "info", "Log verbosity: debug, info, or off")
	flags.StringSlice(AllowedOriginsKey, []string{"*"}, "CORS origins served by the API")
	flags.StringSlice(AllowedHostsKey, nil, "Host header values served; empty allows all")
	flags.Bool(MetricsKey, true, "Expose Prometheus metrics at /metrics")
	flags.String(ProfileDirKey, "", "Directory for CPU and memory profiles; empty disables profiling")
}

type Config struct {
	Listen         string
	DataDir        string
	GenesisPath    string
	ConfigPath     string
	LogLevel       string
	AllowedOrigins []string
	AllowedHosts   []string
	Metrics        bool
	ProfileDir     string

	ShutdownTimeout time.Duration
}

func ParseFlags(flags *pflag.FlagSet, args []string) (*Config, error) {
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	listen, err := flags.GetString(ListenKey)
	if err != nil {
		return nil, err
	}
	dataDir, err := flags.GetString(DataDirKey)
	if err != nil {
		return nil, err
	}
	genesisPath, err := flags.GetString(GenesisKey)
	if err != nil {
		return nil, err
	}
	configPath, err := flags.GetString(ConfigKey)
	if err != nil {
		return nil, err
	}
	logLevel, err := flags.GetString(LogLevelKey)
	if err != nil {
		return nil, err
	}
	allowedOrigins, err := flags.GetStringSlice(AllowedOriginsKey)
	if err != nil {
		return nil, err
	}
	allowedHosts, err := flags.GetStringSlice(AllowedHostsKey)
	if err != nil {
		return nil, err
	}
	metrics, err := flags.GetBool(MetricsKey)
	if err != nil {
		return nil, err
	}
	profileDir, err := flags.GetString(ProfileDirKey)
	if err != nil {
		return nil, err
	}

	return &Config{
		Listen:          listen,
		DataDir:         dataDir,
		GenesisPath:     genesisPath,
		ConfigPath:      configPath,
		LogLevel:        logLevel,
		AllowedOrigins:  allowedOrigins,
		AllowedHosts:    allowedHosts,
		Metrics:         metrics,
		ProfileDir:      profileDir,
		ShutdownTimeout: 10 * time.Second,
	}, nil
}
