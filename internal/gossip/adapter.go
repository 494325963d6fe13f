// Package gossip speaks the signed, authenticated gossip pub/sub overlay:
// it joins a single named topic, discovers LAN peers via multicast,
// optionally dials a relay bootstrap peer, and bridges the topic to typed
// ingress/egress queues.
package gossip

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strconv"
	"time"

	libp2p "github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	ma "github.com/multiformats/go-multiaddr"
	"golang.org/x/sync/errgroup"

	"github.com/derlaft/synco/internal/protocol"
)

const mdnsServiceTag = "synco-lan-discovery"

// Ingress is a decoded topic message paired with the overlay's own sender
// peer id (base58), as distinct from the human-readable user id inside the
// message envelope.
type Ingress struct {
	PeerID  string
	Message protocol.Message
}

// Adapter owns the libp2p host, the joined topic, and the subscription. It
// is constructed once per process and run until ctx is canceled or a
// transport error occurs.
type Adapter struct {
	SelfID string // the human user id stamped into outgoing envelopes

	host  host.Host
	ps    *pubsub.PubSub
	topic *pubsub.Topic
	sub   *pubsub.Subscription
}

// New builds the libp2p host, starts mDNS discovery, dials an optional
// relay bootstrap peer, and joins topicName on a strict-signature gossipsub
// instance.
func New(ctx context.Context, priv crypto.PrivKey, selfID, topicName string, listenOn []string, relayAddr string) (*Adapter, error) {
	opts := []libp2p.Option{
		libp2p.Identity(priv),
		libp2p.ListenAddrStrings(listenOn...),
	}

	h, err := libp2p.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("gossip: construct host: %w", err)
	}

	md := mdns.NewMdnsService(h, mdnsServiceTag, &discoveryNotifee{host: h})
	if err := md.Start(); err != nil {
		_ = h.Close()
		return nil, fmt.Errorf("gossip: start mdns: %w", err)
	}

	if relayAddr != "" {
		if err := dialRelay(ctx, h, relayAddr); err != nil {
			slog.Warn("gossip: relay dial failed", "addr", relayAddr, "error", err)
		}
	}

	ps, err := pubsub.NewGossipSub(ctx, h,
		pubsub.WithStrictSignatureVerification(true),
		pubsub.WithMessageIdFn(messageID),
	)
	if err != nil {
		_ = h.Close()
		return nil, fmt.Errorf("gossip: new gossipsub: %w", err)
	}

	topic, err := ps.Join(topicName)
	if err != nil {
		_ = h.Close()
		return nil, fmt.Errorf("gossip: join topic %s: %w", topicName, err)
	}

	sub, err := topic.Subscribe()
	if err != nil {
		_ = topic.Close()
		_ = h.Close()
		return nil, fmt.Errorf("gossip: subscribe topic %s: %w", topicName, err)
	}

	return &Adapter{
		SelfID: selfID,
		host:   h,
		ps:     ps,
		topic:  topic,
		sub:    sub,
	}, nil
}

// messageID derives a gossipsub message id as a 64-bit FNV-1a hash of the
// payload, rendered as a decimal string (spec's message-id derivation).
func messageID(m *pubsub.Message) string {
	h := fnv.New64a()
	h.Write(m.Data)
	return strconv.FormatUint(h.Sum64(), 10)
}

func dialRelay(ctx context.Context, h host.Host, addr string) error {
	maddr, err := ma.NewMultiaddr(addr)
	if err != nil {
		return fmt.Errorf("parse relay multiaddr: %w", err)
	}
	info, err := peer.AddrInfoFromP2pAddr(maddr)
	if err != nil {
		return fmt.Errorf("resolve relay peer info: %w", err)
	}
	if err := h.Connect(ctx, *info); err != nil {
		return fmt.Errorf("connect relay: %w", err)
	}
	slog.Info("gossip: connected to relay", "peer", info.ID.String())
	return nil
}

type discoveryNotifee struct {
	host host.Host
}

func (n *discoveryNotifee) HandlePeerFound(pi peer.AddrInfo) {
	if err := n.host.Connect(context.Background(), pi); err != nil {
		slog.Debug("gossip: mdns peer connect failed", "peer", pi.ID.String(), "error", err)
		return
	}
	slog.Debug("gossip: mdns discovered peer", "peer", pi.ID.String())
}

// Run bridges the topic to ingress/egress until ctx is canceled, the
// subscription ends, or a read error occurs; publish errors are logged and
// do not end the run. On return the topic is unsubscribed and the host is
// closed.
func (a *Adapter) Run(ctx context.Context, ingress chan<- Ingress, egress <-chan protocol.Action) error {
	defer a.sub.Cancel()
	defer a.topic.Close()
	defer a.host.Close()

	if err := a.publish(ctx, protocol.Hello()); err != nil {
		slog.Warn("gossip: failed to publish initial Hello", "error", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.readLoop(gctx, ingress) })
	g.Go(func() error { return a.writeLoop(gctx, egress) })
	return g.Wait()
}

func (a *Adapter) readLoop(ctx context.Context, ingress chan<- Ingress) error {
	for {
		m, err := a.sub.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("gossip: read topic: %w", err)
		}

		if m.ReceivedFrom == a.host.ID() {
			continue
		}

		msg, err := protocol.Decode(m.Data)
		if err != nil {
			slog.Warn("gossip: dropping undecodable message", "error", err)
			continue
		}

		select {
		case ingress <- Ingress{PeerID: m.GetFrom().String(), Message: msg}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (a *Adapter) writeLoop(ctx context.Context, egress <-chan protocol.Action) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case act, ok := <-egress:
			if !ok {
				return nil
			}
			if err := a.publish(ctx, act); err != nil {
				slog.Warn("gossip: publish failed", "error", err)
			}
		}
	}
}

func (a *Adapter) publish(ctx context.Context, act protocol.Action) error {
	msg := protocol.Message{UserID: a.SelfID, TS: time.Now().UnixMilli(), Action: act}
	data, err := protocol.Encode(msg)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return a.topic.Publish(ctx, data)
}
