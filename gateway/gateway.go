// Package gateway implements the client-facing HTTP proxy: it selects a
// random path of nodes from its local roster cache, drives the layered
// RSA/AES handshake to build a circuit, and relays client traffic through
// it — plain HTTP requests or, via CONNECT, an opaque TLS tunnel.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/Masterminds/semver/v3"
)

const maxConns = 256

// Config holds a gateway's startup parameters.
type Config struct {
	ListenAddr  string
	CloudAddr   string
	Version     *semver.Version
	Hops        int
	ReadTimeout time.Duration
	SyncEvery   time.Duration

	// CacheDir, if non-empty, is where the roster cache is snapshotted to
	// disk after every successful sync so a restart can serve traffic from
	// a possibly-stale cache while the sync loop catches up. Empty disables
	// the disk cache.
	CacheDir string
}

// DefaultCacheDir returns the default roster cache directory
// (~/.dytp/gateway-cache/).
func DefaultCacheDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".dytp", "gateway-cache")
}

// Validate enforces the configuration invariants that must hold before the
// gateway is allowed to start — an invalid hops count is a configuration
// error, fatal at startup only.
func (c Config) Validate() error {
	if c.Hops < 3 || c.Hops > 9 {
		return fmt.Errorf("gateway: hops must be in [3, 9], got %d", c.Hops)
	}
	return nil
}

// Gateway is a running client-facing proxy.
type Gateway struct {
	cfg    Config
	cache  *rosterCache
	logger *slog.Logger
	sem    chan struct{}
}

// New returns a Gateway backed by a fresh, empty roster cache. cfg must
// already have passed Validate.
func New(cfg Config, logger *slog.Logger) *Gateway {
	return &Gateway{
		cfg:    cfg,
		cache:  newRosterCache(),
		logger: logger,
		sem:    make(chan struct{}, maxConns),
	}
}

// Run starts the TCP listener and the roster sync loop. It blocks until ctx
// is cancelled or the listener fails.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("gateway: listen on %s: %w", g.cfg.ListenAddr, err)
	}
	defer ln.Close()

	go g.syncLoop(ctx)

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	g.logger.Info("gateway listening", "addr", g.cfg.ListenAddr, "hops", g.cfg.Hops)

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("gateway: accept: %w", err)
			}
		}
		g.sem <- struct{}{}
		go func() {
			defer func() { <-g.sem }()
			g.handleConn(conn)
		}()
	}
}
