// Command node runs a relay node: it joins a cloud's roster, serves its
// public key to gateways, and extends onion circuits one hop at a time.
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
	"github.com/onionmesh/dytp/logging"
	"github.com/onionmesh/dytp/node"
)

func main() {
	address := flag.String("address", "", "binded address (host:port)")
	globalAddress := flag.String("global-address", "", "address advertised to the cloud and gateways (host:port)")
	cloudAddr := flag.String("cloud", "127.0.0.1:2777", "cloud address (host:port)")
	version := flag.String("version", "1.0.0", "node version announced on join")
	readTimeout := flag.Int("read-timeout", 10, "read timeout, in seconds")
	rejoinEvery := flag.Int("rejoin-interval", 30, "rejoin/re-announce interval, in seconds")
	logPath := flag.String("log-file", "node-debug.log", "debug log file path")
	flag.Parse()

	logger, logFile, err := logging.Setup(*logPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = logFile.Close() }()

	for _, addr := range []string{*address, *globalAddress, *cloudAddr} {
		if err := config.ValidateAddr(addr); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}
	rt := time.Duration(*readTimeout) * time.Second
	rj := time.Duration(*rejoinEvery) * time.Second
	for name, d := range map[string]time.Duration{"read-timeout": rt, "rejoin-interval": rj} {
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

	n, err := node.New(node.Config{
		ListenAddr:  *address,
		GlobalAddr:  *globalAddress,
		CloudAddr:   *cloudAddr,
		Version:     v,
		ReadTimeout: rt,
		RejoinEvery: rj,
	}, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("node: shutting down")
		cancel()
	}()

	if err := n.Run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
