// Package controller owns the queues connecting the Player Adapter, the
// Gossip Adapter, and the state machine, and runs the cooperative
// activities that translate each source into a CoreEvent.
package controller

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/derlaft/synco/internal/core"
	"github.com/derlaft/synco/internal/gossip"
	"github.com/derlaft/synco/internal/player"
	"github.com/derlaft/synco/internal/protocol"
)

// queueCapacity is the bounded FIFO depth for every hop; sends block when
// full, which is the controller's only form of backpressure.
const queueCapacity = 256

// heartbeatInterval is how often KeepAlive is fed to the state machine.
const heartbeatInterval = 500 * time.Millisecond

// Controller wires the Player Adapter and Gossip Adapter endpoints to the
// state machine. Construct with New, hand the PlayerEvents/PlayerRequests
// and NetworkIngress/NetworkEgress channels to the respective adapters, and
// call Run.
type Controller struct {
	PlayerEvents   chan player.Event
	PlayerRequests chan player.Request
	NetworkIngress chan gossip.Ingress
	NetworkEgress  chan protocol.Action

	machine    *core.Machine
	coreEvents chan core.CoreEvent
}

// New allocates the queues and the state machine that drains them.
func New() *Controller {
	playerRequests := make(chan player.Request, queueCapacity)
	networkEgress := make(chan protocol.Action, queueCapacity)

	return &Controller{
		PlayerEvents:   make(chan player.Event, queueCapacity),
		PlayerRequests: playerRequests,
		NetworkIngress: make(chan gossip.Ingress, queueCapacity),
		NetworkEgress:  networkEgress,
		machine:        core.New(playerRequests, networkEgress),
		coreEvents:     make(chan core.CoreEvent, queueCapacity),
	}
}

// Run executes the init sequence, then races the four ongoing activities
// (player-event pump, network-event pump, heartbeat, state-machine feeder)
// until ctx is canceled or one of them returns a fatal error.
func (c *Controller) Run(ctx context.Context) error {
	if err := c.initSequence(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.pumpPlayerEvents(gctx) })
	g.Go(func() error { return c.pumpNetworkEvents(gctx) })
	g.Go(func() error { return c.heartbeat(gctx) })
	g.Go(func() error { return c.feedStateMachine(gctx) })
	return g.Wait()
}

// initSequence emits the fixed one-shot startup requests to the player:
// show a startup overlay, pause, bind the ready key, and observe the three
// properties the state machine depends on.
func (c *Controller) initSequence(ctx context.Context) error {
	requests := []player.Request{
		player.OsdOverlay(`{\fs40}synco{\r}\Npress F1 when ready`),
		player.SetPause(true),
		player.Keybind("F1", "script-message ready_pressed"),
		player.ObserveProperty(string(player.TimePos)),
		player.ObserveProperty(string(player.Speed)),
		player.ObserveProperty(string(player.Seeking)),
	}
	for _, req := range requests {
		select {
		case c.PlayerRequests <- req:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (c *Controller) pumpPlayerEvents(ctx context.Context) error {
	for {
		select {
		case ev := <-c.PlayerEvents:
			select {
			case c.coreEvents <- core.PlayerEvent(ev):
			case <-ctx.Done():
				return ctx.Err()
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Controller) pumpNetworkEvents(ctx context.Context) error {
	for {
		select {
		case ing := <-c.NetworkIngress:
			select {
			case c.coreEvents <- core.NetworkEvent(ing.Message):
			case <-ctx.Done():
				return ctx.Err()
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Controller) heartbeat(ctx context.Context) error {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			select {
			case c.coreEvents <- core.KeepAliveEvent():
			case <-ctx.Done():
				return ctx.Err()
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Controller) feedStateMachine(ctx context.Context) error {
	for {
		select {
		case ev := <-c.coreEvents:
			if err := c.machine.ProcessEvent(ctx, ev); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
