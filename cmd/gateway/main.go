// Command gateway runs the client-facing onion proxy: it accepts plain
// HTTP and CONNECT requests, builds a circuit through a sampled set of
// relay nodes, and shuttles the tunneled connection through it.
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
	"github.com/onionmesh/dytp/config"
	"github.com/onionmesh/dytp/gateway"
	"github.com/onionmesh/dytp/logging"
)

func main() {
	address := flag.String("address", "", "binded address (host:port)")
	cloudAddr := flag.String("cloud", "127.0.0.1:2777", "cloud address (host:port)")
	hops := flag.Int("hops", 3, "circuit length (must be between 3 and 9)")
	version := flag.String("version", "1.0.0", "gateway version (kept in its config; not sent to the cloud)")
	readTimeout := flag.Int("read-timeout", 10, "read timeout, in seconds")
	syncEvery := flag.Int("sync-interval", 10, "roster re-sync interval, in seconds")
	logPath := flag.String("log-file", "gateway-debug.log", "debug log file path")
	cacheDir := flag.String("cache-dir", gateway.DefaultCacheDir(), "roster disk cache directory (empty disables it)")
	flag.Parse()

	logger, logFile, err := logging.Setup(*logPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = logFile.Close() }()

	for _, addr := range []string{*address, *cloudAddr} {
		if err := config.ValidateAddr(addr); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}
	if err := config.ValidateHops(*hops); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	rt := time.Duration(*readTimeout) * time.Second
	se := time.Duration(*syncEvery) * time.Second
	for name, d := range map[string]time.Duration{"read-timeout": rt, "sync-interval": se} {
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

	cfg := gateway.Config{
		ListenAddr:  *address,
		CloudAddr:   *cloudAddr,
		Version:     v,
		Hops:        *hops,
		ReadTimeout: rt,
		SyncEvery:   se,
		CacheDir:    *cacheDir,
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	g := gateway.New(cfg, logger)

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("gateway: shutting down")
		cancel()
	}()

	if err := g.Run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
