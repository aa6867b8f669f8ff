// Package cloud implements the roster authority: it answers gateway and
// node queries (HT, FC, SY, JN, CHECK), admits new nodes through a
// join-challenge, and runs the health-check loop that ages unresponsive
// nodes out of the active roster.
package cloud

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/onionmesh/dytp/roster"
)

// Config holds a cloud's startup parameters.
type Config struct {
	ListenAddr          string
	Version             *semver.Version
	ReadTimeout         time.Duration
	HealthcheckInterval time.Duration
	NodeDeletionTimeout time.Duration
}

// Cloud is a running roster authority.
type Cloud struct {
	cfg    Config
	store  roster.Store
	logger *slog.Logger
}

// New returns a Cloud backed by store.
func New(cfg Config, store roster.Store, logger *slog.Logger) *Cloud {
	return &Cloud{cfg: cfg, store: store, logger: logger}
}

// Run starts the TCP listener and the health-check loop. It blocks until
// ctx is cancelled or the listener fails.
func (c *Cloud) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", c.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("cloud: listen on %s: %w", c.cfg.ListenAddr, err)
	}
	defer ln.Close()

	go c.healthcheckLoop(ctx)

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	c.logger.Info("cloud listening", "addr", c.cfg.ListenAddr)

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("cloud: accept: %w", err)
			}
		}
		go c.serveConn(conn)
	}
}
