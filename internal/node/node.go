// Package node provides a reusable attestnet node that can be embedded in
// any binary (daemon, test harness).
package node

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/attestnet/attestnet/config"
	"github.com/attestnet/attestnet/internal/consensus"
	"github.com/attestnet/attestnet/internal/difficulty"
	"github.com/attestnet/attestnet/internal/events"
	klog "github.com/attestnet/attestnet/internal/log"
	"github.com/attestnet/attestnet/internal/registry"
	"github.com/attestnet/attestnet/internal/rpc"
	"github.com/attestnet/attestnet/internal/staking"
	"github.com/attestnet/attestnet/internal/storage"
)

// Worker liveness policy. Workers silent for longer than the stale
// threshold drop out of the eligible pool.
const (
	workerStaleThreshold = 2 * time.Minute
	workerMaxConcurrent  = 5
)

// Node is a fully-initialized attestnet node.
type Node struct {
	cfg    *config.Config
	logger zerolog.Logger

	// Core
	db       storage.DB
	ledger   *staking.Ledger
	assessor *difficulty.Assessor
	workers  *registry.Registry
	engine   *consensus.Engine

	// Events
	gossip *events.Gossip

	// RPC
	rpcServer *rpc.Server

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates and initializes a Node. It performs all setup steps (logger,
// storage, ledger, engine, registry, events, RPC) but does NOT start
// background goroutines. Call Start() for that.
func New(cfg *config.Config) (*Node, error) {
	// ── 1. Init logger ──────────────────────────────────────────────
	logFile := cfg.Log.File
	if logFile == "" {
		logsDir := cfg.LogsDir()
		if err := os.MkdirAll(logsDir, 0755); err != nil {
			return nil, fmt.Errorf("creating logs dir: %w", err)
		}
		logFile = filepath.Join(logsDir, "attestnet.log")
	}
	if err := klog.Init(cfg.Log.Level, cfg.Log.JSON, logFile); err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	logger := klog.WithComponent("node")

	logger.Info().
		Str("network", string(cfg.Network)).
		Str("version", config.Version).
		Msg("Starting AttestNet Node")

	// ── 2. Open storage ─────────────────────────────────────────────
	db, err := storage.NewBadger(cfg.LedgerDir())
	if err != nil {
		return nil, fmt.Errorf("open database at %s: %w", cfg.LedgerDir(), err)
	}
	logger.Info().Str("path", cfg.LedgerDir()).Msg("Database opened")

	// ── 3. Staking ledger ───────────────────────────────────────────
	ledger, err := staking.NewLedger(db, staking.DefaultParams(), klog.WithComponent("staking"))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create staking ledger: %w", err)
	}

	// ── 4. Difficulty assessor and worker registry ──────────────────
	assessor := difficulty.New(difficulty.DefaultParams())
	workers := registry.New(workerStaleThreshold, workerMaxConcurrent)

	// ── 5. Consensus engine ─────────────────────────────────────────
	engine := consensus.New(assessor, workers, consensus.DefaultParams(), klog.WithComponent("consensus"))
	engine.SetStakeLedger(ledger)
	ledger.SetAgreementRates(engine)

	// ── 6. Event emitter ────────────────────────────────────────────
	var gossip *events.Gossip
	if cfg.Events.Enabled {
		gossip, err = events.NewGossip(cfg.Events.ListenAddr, cfg.Events.Peers, klog.WithComponent("events"))
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("start event emitter: %w", err)
		}
		engine.SetEmitter(gossip)
	}

	// ── 7. RPC server ───────────────────────────────────────────────
	var rpcServer *rpc.Server
	if cfg.RPC.Enabled {
		addr := fmt.Sprintf("%s:%d", cfg.RPC.Addr, cfg.RPC.Port)
		rpcServer = rpc.New(addr, ledger, engine, workers, assessor, cfg.RPC)
		rpcServer.SetNodeInfo(string(cfg.Network), config.Version)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Node{
		cfg:       cfg,
		logger:    logger,
		db:        db,
		ledger:    ledger,
		assessor:  assessor,
		workers:   workers,
		engine:    engine,
		gossip:    gossip,
		rpcServer: rpcServer,
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Start launches the background loops (expiry sweep, epoch rotation) and
// the RPC server.
func (n *Node) Start() error {
	// The first epoch opens on first boot; restarts resume the persisted one.
	if n.ledger.GetCurrentEpoch() == nil {
		if _, err := n.ledger.StartNewEpoch(); err != nil {
			return fmt.Errorf("start first epoch: %w", err)
		}
	}

	n.wg.Add(1)
	go n.sweepLoop()

	n.wg.Add(1)
	go n.epochLoop()

	if n.rpcServer != nil {
		if err := n.rpcServer.Start(); err != nil {
			return fmt.Errorf("start rpc: %w", err)
		}
		n.logger.Info().Str("addr", n.rpcServer.Addr()).Msg("RPC server listening")
	}

	return nil
}

// sweepLoop expires overdue challenges and garbage-collects old ones.
func (n *Node) sweepLoop() {
	defer n.wg.Done()

	ticker := time.NewTicker(consensus.DefaultParams().SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-n.ctx.Done():
			return
		case <-ticker.C:
			expired, removed := n.engine.ExpireDue()
			if expired > 0 || removed > 0 {
				n.logger.Debug().
					Int("expired", expired).
					Int("removed", removed).
					Msg("challenge sweep")
			}
		}
	}
}

// epochLoop rotates the governance epoch when the current one ends.
func (n *Node) epochLoop() {
	defer n.wg.Done()

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-n.ctx.Done():
			return
		case <-ticker.C:
			ep := n.ledger.GetCurrentEpoch()
			if ep == nil || time.Now().UnixMilli() < ep.EndTime {
				continue
			}
			next, err := n.ledger.StartNewEpoch()
			if err != nil {
				n.logger.Error().Err(err).Msg("epoch rotation failed")
				continue
			}
			n.logger.Info().
				Uint64("epoch", next.ID).
				Int("validators", len(next.Validators)).
				Msg("epoch rotated")
		}
	}
}

// Stop shuts the node down: background loops first, then the RPC server,
// the event emitter, and finally storage.
func (n *Node) Stop() {
	n.cancel()
	n.wg.Wait()

	if n.rpcServer != nil {
		if err := n.rpcServer.Stop(); err != nil {
			n.logger.Warn().Err(err).Msg("rpc shutdown")
		}
	}
	if n.gossip != nil {
		if err := n.gossip.Close(); err != nil {
			n.logger.Warn().Err(err).Msg("event emitter shutdown")
		}
	}
	if err := n.db.Close(); err != nil {
		n.logger.Warn().Err(err).Msg("database close")
	}

	n.logger.Info().Msg("Node stopped")
}

// Ledger exposes the staking ledger.
func (n *Node) Ledger() *staking.Ledger { return n.ledger }

// Engine exposes the consensus engine.
func (n *Node) Engine() *consensus.Engine { return n.engine }

// Workers exposes the worker registry.
func (n *Node) Workers() *registry.Registry { return n.workers }

// RPCAddr returns the bound RPC address, or "" when RPC is disabled.
func (n *Node) RPCAddr() string {
	if n.rpcServer == nil {
		return ""
	}
	return n.rpcServer.Addr()
}
