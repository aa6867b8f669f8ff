// Command cloud runs the roster authority: the process a gateway consults
// to discover nodes and a node announces itself to.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/onionmesh/dytp/cloud"
	"github.com/onionmesh/dytp/config"
	"github.com/onionmesh/dytp/logging"
	"github.com/onionmesh/dytp/roster"
)

func main() {
	address := flag.String("address", "", "binded address (host:port)")
	version := flag.String("version", "1.0.0", "cloud version advertised in responses")
	readTimeout := flag.Int("read-timeout", 10, "read timeout, in seconds")
	healthcheckInterval := flag.Int("healthcheck-interval", 10, "healthcheck sweep interval, in seconds")
	nodeDeletionTimeout := flag.Int("node-deletion-timeout", 20, "pending-delete grace period, in seconds")
	databaseURL := flag.String("database-url", "mem", `roster store DSN: "mem" or a postgres:// URL`)
	logPath := flag.String("log-file", "cloud-debug.log", "debug log file path")
	flag.Parse()

	logger, logFile, err := logging.Setup(*logPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = logFile.Close() }()

	if err := config.ValidateAddr(*address); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	rt := time.Duration(*readTimeout) * time.Second
	hc := time.Duration(*healthcheckInterval) * time.Second
	ndt := time.Duration(*nodeDeletionTimeout) * time.Second
	for name, d := range map[string]time.Duration{"read-timeout": rt, "healthcheck-interval": hc, "node-deletion-timeout": ndt} {
		if err := config.ValidateDuration(name, d); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}

	v, err := semver.NewVersion(*version)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid version %q: %v\n", *version, err)
		os.Exit(1)
	}

	backend, dsn, err := config.ParseDSN(*databaseURL)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var store roster.Store
	switch backend {
	case config.BackendPostgres:
		pg, err := roster.OpenPGStore(dsn)
		if err != nil {
			fmt.Fprintf(os.Stderr, "open postgres roster store: %v\n", err)
			os.Exit(1)
		}
		store = pg
	default:
		store = roster.NewMemStore()
	}

	c := cloud.New(cloud.Config{
		ListenAddr:          *address,
		Version:             v,
		ReadTimeout:         rt,
		HealthcheckInterval: hc,
		NodeDeletionTimeout: ndt,
	}, store, logger)

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("cloud: shutting down")
		cancel()
	}()

	if err := c.Run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
