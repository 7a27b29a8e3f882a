// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// vaultvm runs the vault VM standalone for development: the JSON-RPC API
// drives operations directly instead of a consensus engine.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	consensuscore "github.com/luxfi/consensus/core"
	"github.com/luxfi/database"
	"github.com/luxfi/database/badgerdb"
	"github.com/luxfi/database/memdb"
	"github.com/luxfi/log"
	"github.com/luxfi/log/level"
	"github.com/luxfi/utils/ulimit"

	"github.com/luxfi/vault"
	"github.com/luxfi/vault/server"
	"github.com/luxfi/vault/utils/profiler"
)

const apiBase = "/ext/bc/vault"

func main() {
	cmd := &cobra.Command{
		Use:   "vaultvm",
		Short: "Runs a vault VM standalone",
		RunE:  runFunc,
	}
	AddFlags(cmd.Flags())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runFunc(c *cobra.Command, args []string) error {
	config, err := ParseFlags(c.Flags(), args)
	if err != nil {
		return err
	}
	logger, err := newLogger(config.LogLevel)
	if err != nil {
		return err
	}

	if err := ulimit.Set(ulimit.DefaultFDLimit, logger); err != nil {
		return fmt.Errorf("failed to set fd limit: %w", err)
	}

	var db database.Database
	if config.DataDir == "" {
		db = memdb.New()
	} else {
		db, err = badgerdb.New(config.DataDir, nil, "", nil)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
	}

	var genesisBytes []byte
	if config.GenesisPath != "" {
		genesisBytes, err = os.ReadFile(config.GenesisPath)
		if err != nil {
			return fmt.Errorf("failed to read genesis: %w", err)
		}
	}
	var configBytes []byte
	if config.ConfigPath != "" {
		configBytes, err = os.ReadFile(config.ConfigPath)
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	ctx := c.Context()
	vmIntf, err := vault.NewDefaultFactory().New(logger)
	if err != nil {
		return err
	}
	vm := vmIntf.(*vault.VM)
	if err := vm.Initialize(ctx, nil, db, genesisBytes, nil, configBytes, nil, nil, nil); err != nil {
		return fmt.Errorf("failed to initialize VM: %w", err)
	}
	// Standalone deployments have no engine to drive bootstrap; the RPC
	// surface is live immediately.
	if err := vm.SetState(ctx, uint32(consensuscore.Ready)); err != nil {
		return err
	}

	handlers, err := vm.CreateHandlers(ctx)
	if err != nil {
		return err
	}
	listener, err := net.Listen("tcp", config.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", config.Listen, err)
	}

	var gatherer = vm.MetricsGatherer()
	if !config.Metrics {
		gatherer = nil
	}
	srv := server.New(logger, listener, apiBase, handlers, gatherer, server.Config{
		AllowedOrigins:    config.AllowedOrigins,
		AllowedHosts:      config.AllowedHosts,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
		ShutdownTimeout:   config.ShutdownTimeout,
	})

	var prof profiler.Profiler
	if config.ProfileDir != "" {
		prof = profiler.New(config.ProfileDir)
		if err := prof.StartCPUProfiler(); err != nil {
			return fmt.Errorf("failed to start profiler: %w", err)
		}
	}

	logger.Info("vaultvm started",
		"version", vault.Version,
		"listen", listener.Addr(),
		"dataDir", config.DataDir,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := srv.Dispatch()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		serveErr := srv.Shutdown()
		vmErr := vm.Shutdown(context.Background())

		var profErr error
		if prof != nil {
			profErr = errors.Join(prof.StopCPUProfiler(), prof.MemoryProfile())
		}
		return errors.Join(serveErr, vmErr, profErr)
	})
	return g.Wait()
}

func newLogger(logLevel string) (log.Logger, error) {
	switch logLevel {
	case "off":
		return log.NewNoOpLogger(), nil
	case "debug":
		return log.NewTestLogger(level.Debug), nil
	case "", "info":
		return log.NewLogger("vaultvm"), nil
	default:
		return nil, fmt.Errorf("unknown log level %q", logLevel)
	}
}
