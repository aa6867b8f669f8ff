// Package node implements the relay node: it answers the cloud's health
// probes, serves its public key to gateways, extends onion circuits one
// hop at a time, and periodically (re)announces itself to the cloud.
package node

import (
	"context"
	"crypto/rsa"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/onionmesh/dytp/cryptoutil"
)

// Config holds a node's startup parameters.
type Config struct {
	ListenAddr  string        // local bind address
	GlobalAddr  string        // address advertised to the cloud and gateways
	CloudAddr   string        // cloud's control endpoint
	Version     *semver.Version
	ReadTimeout time.Duration
	RejoinEvery time.Duration
}

// Node is a running relay node.
type Node struct {
	cfg    Config
	priv   *rsa.PrivateKey
	logger *slog.Logger
}

// New generates a fresh RSA keypair and returns a Node ready to Run.
func New(cfg Config, logger *slog.Logger) (*Node, error) {
	priv, err := cryptoutil.GenerateKeypair()
	if err != nil {
		return nil, fmt.Errorf("node: generate keypair: %w", err)
	}
	return &Node{cfg: cfg, priv: priv, logger: logger}, nil
}

// Run starts the TCP listener and the join/rejoin loop. It blocks until ctx
// is cancelled or the listener fails.
func (n *Node) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", n.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("node: listen on %s: %w", n.cfg.ListenAddr, err)
	}
	defer ln.Close()

	go n.rejoinLoop(ctx)

	n.logger.Info("node listening", "addr", n.cfg.ListenAddr, "global_addr", n.cfg.GlobalAddr)

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("node: accept: %w", err)
			}
		}
		go n.serveConn(conn)
	}
}
