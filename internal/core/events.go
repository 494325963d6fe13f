package core

import (
	"github.com/derlaft/synco/internal/player"
	"github.com/derlaft/synco/internal/protocol"
)

// EventKind identifies which variant of CoreEvent a value carries.
type EventKind int

const (
	EventPlayer EventKind = iota
	EventNetwork
	EventKeepAlive
)

// CoreEvent is the sum type the Machine consumes: something the player
// reported, something a peer sent over the gossip overlay, or a heartbeat
// tick.
type CoreEvent struct {
	Kind EventKind

	Player  player.Event
	Network protocol.Message
}

func PlayerEvent(e player.Event) CoreEvent     { return CoreEvent{Kind: EventPlayer, Player: e} }
func NetworkEvent(m protocol.Message) CoreEvent { return CoreEvent{Kind: EventNetwork, Network: m} }
func KeepAliveEvent() CoreEvent                { return CoreEvent{Kind: EventKeepAlive} }
