package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/multiformats/go-multiaddr"
	"github.com/rs/zerolog"
)

// GossipSub topics for challenge lifecycle events.
const (
	TopicChallengeCreated   = "/attestnet/challenge/created/1.0.0"
	TopicChallengeCompleted = "/attestnet/challenge/completed/1.0.0"
)

// Gossip publishes challenge events to libp2p GossipSub topics. Downstream
// consumers (webhook relays, telemetry collectors) subscribe to the topics;
// this node never reads them back.
type Gossip struct {
	host      host.Host
	created   *pubsub.Topic
	completed *pubsub.Topic

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger zerolog.Logger
}

// NewGossip starts a libp2p host on listenAddr, dials the static peers, and
// joins the event topics.
func NewGossip(listenAddr string, peers []string, logger zerolog.Logger) (*Gossip, error) {
	ctx, cancel := context.WithCancel(context.Background())

	h, err := libp2p.New(libp2p.ListenAddrStrings(listenAddr))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("start event host: %w", err)
	}

	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		h.Close()
		cancel()
		return nil, fmt.Errorf("start gossipsub: %w", err)
	}

	created, err := ps.Join(TopicChallengeCreated)
	if err != nil {
		h.Close()
		cancel()
		return nil, fmt.Errorf("join topic %s: %w", TopicChallengeCreated, err)
	}
	completed, err := ps.Join(TopicChallengeCompleted)
	if err != nil {
		h.Close()
		cancel()
		return nil, fmt.Errorf("join topic %s: %w", TopicChallengeCompleted, err)
	}

	g := &Gossip{
		host:      h,
		created:   created,
		completed: completed,
		ctx:       ctx,
		cancel:    cancel,
		logger:    logger,
	}

	for _, addr := range peers {
		g.wg.Add(1)
		go g.dialPeer(addr)
	}

	logger.Info().
		Str("listen", listenAddr).
		Int("peers", len(peers)).
		Msg("event gossip started")
	return g, nil
}

// dialPeer connects to one static consumer peer. Dial failures are logged,
// not fatal: event delivery is best-effort telemetry.
func (g *Gossip) dialPeer(addr string) {
	defer g.wg.Done()

	ma, err := multiaddr.NewMultiaddr(addr)
	if err != nil {
		g.logger.Warn().Str("peer", addr).Err(err).Msg("invalid event peer multiaddr")
		return
	}
	info, err := peer.AddrInfoFromP2pAddr(ma)
	if err != nil {
		g.logger.Warn().Str("peer", addr).Err(err).Msg("event peer multiaddr missing peer ID")
		return
	}
	if err := g.host.Connect(g.ctx, *info); err != nil {
		g.logger.Warn().Str("peer", addr).Err(err).Msg("dial event peer")
	}
}

// EmitChallengeCreated publishes a created event.
func (g *Gossip) EmitChallengeCreated(ev ChallengeCreated) {
	g.publish(g.created, ev)
}

// EmitChallengeCompleted publishes a completed event.
func (g *Gossip) EmitChallengeCompleted(ev ChallengeCompleted) {
	g.publish(g.completed, ev)
}

// publish marshals and publishes without blocking the caller.
func (g *Gossip) publish(topic *pubsub.Topic, ev any) {
	data, err := json.Marshal(ev)
	if err != nil {
		g.logger.Error().Err(err).Msg("marshal event")
		return
	}
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		if err := topic.Publish(g.ctx, data); err != nil && g.ctx.Err() == nil {
			g.logger.Warn().Err(err).Msg("publish event")
		}
	}()
}

// Close shuts down the event host.
func (g *Gossip) Close() error {
	g.cancel()
	g.wg.Wait()
	g.created.Close()
	g.completed.Close()
	return g.host.Close()
}
