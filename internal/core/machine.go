// Package core implements the playback coordination state machine: the
// single place where player events and network messages meet and are
// reconciled into outgoing player requests and outgoing network actions.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/derlaft/synco/internal/player"
	"github.com/derlaft/synco/internal/protocol"
)

const (
	// SeekThreshold is how far (seconds) calc_pos may diverge from the
	// observed position before a Seek is actually necessary.
	SeekThreshold = 0.5
	// SpeedThreshold is how far a peer's reported speed may diverge from
	// ours before we bother adjusting.
	SpeedThreshold = 0.1
	// DesyncThreshold is how far behind/ahead of the least-caught-up peer
	// we may drift before the heartbeat forces a stop.
	DesyncThreshold = 1.5
	// DesyncQuietWindow suppresses the desync check for this long after
	// any seek-related event, so reconciliation has a chance to land
	// before we judge the result.
	DesyncQuietWindow = 2 * time.Second
	// LogRetention is how long an overlay log line stays visible.
	LogRetention = 1 * time.Second
)

// Machine is the playback coordination state machine for one session. It is
// not safe for concurrent use: the controller feeds it one CoreEvent at a
// time from a single goroutine.
type Machine struct {
	playerOut  chan<- player.Request
	networkOut chan<- protocol.Action

	now func() time.Time

	local LocalState
	peers map[string]*PeerView
}

// New returns a Machine ready to receive CoreEvents. playerOut and
// networkOut are the controller's outgoing queues; sends on them block
// until ctx is canceled, at which point ProcessEvent returns ctx.Err().
func New(playerOut chan<- player.Request, networkOut chan<- protocol.Action) *Machine {
	return &Machine{
		playerOut:  playerOut,
		networkOut: networkOut,
		now:        time.Now,
		peers:      make(map[string]*PeerView),
	}
}

// NewWithClock is New with an injectable clock, for deterministic tests.
func NewWithClock(playerOut chan<- player.Request, networkOut chan<- protocol.Action, now func() time.Time) *Machine {
	m := New(playerOut, networkOut)
	m.now = now
	return m
}

// Local returns a copy of the current local state, for inspection in tests.
func (m *Machine) Local() LocalState { return m.local }

// Peer returns a copy of the named peer's view, if known.
func (m *Machine) Peer(id string) (PeerView, bool) {
	p, ok := m.peers[id]
	if !ok {
		return PeerView{}, false
	}
	return *p, true
}

// ProcessEvent advances the state machine by exactly one CoreEvent.
func (m *Machine) ProcessEvent(ctx context.Context, ev CoreEvent) error {
	switch ev.Kind {
	case EventKeepAlive:
		return m.handleKeepAlive(ctx)
	case EventPlayer:
		return m.handlePlayerEvent(ctx, ev.Player)
	case EventNetwork:
		return m.handleNetworkMessage(ctx, ev.Network)
	default:
		return nil
	}
}

func (m *Machine) sendPlayer(ctx context.Context, req player.Request) error {
	select {
	case m.playerOut <- req:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Machine) sendNetwork(ctx context.Context, act protocol.Action) error {
	select {
	case m.networkOut <- act:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Machine) log(text string) {
	m.local.Log = append(m.local.Log, LogEntry{When: m.now(), Text: text})
}

// --- player events -------------------------------------------------------

func (m *Machine) handlePlayerEvent(ctx context.Context, ev player.Event) error {
	switch ev.Kind {
	case player.EventSuccess:
		return nil

	case player.EventError:
		slog.Warn("core: player reported an error", "request_id", ev.ReqID, "reason", ev.Reason)
		return nil

	case player.EventSeek:
		m.local.LastSeekEventAt = m.now()
		return nil

	case player.EventBoolProperty:
		if ev.BoolProp == player.Seeking {
			m.local.Seeking = ev.BoolVal
			m.local.LastSeekEventAt = m.now()
		}
		return nil

	case player.EventFloatProperty:
		switch ev.FloatProp {
		case player.TimePos:
			return m.handleTimePos(ctx, ev.FloatVal)
		case player.Speed:
			m.local.SpeedFactor = ev.FloatVal
			return m.sendNetwork(ctx, protocol.Speed(ev.FloatVal))
		}
		return nil

	case player.EventClientMessage:
		if ev.ID == "ready_pressed" {
			return m.handleReadyPressed(ctx)
		}
		return nil

	case player.EventNamed:
		return m.handleNamedEvent(ctx, ev.Name)

	default:
		return nil
	}
}

func (m *Machine) handleTimePos(ctx context.Context, v float64) error {
	m.local.Position = v
	if m.local.PendingRemoteSeekOnNextPos {
		m.local.PendingRemoteSeekOnNextPos = false
		pos := v
		if pos < 0 {
			pos = 0
		}
		return m.sendNetwork(ctx, protocol.Seek(pos))
	}
	return nil
}

func (m *Machine) handleReadyPressed(ctx context.Context) error {
	if m.local.Ready {
		return m.stopBeingReady(ctx, "local unready")
	}
	if err := m.startToBeReady(ctx); err != nil {
		return err
	}
	if m.local.NetworkReady {
		return m.startPlayback(ctx)
	}
	return nil
}

func (m *Machine) handleNamedEvent(ctx context.Context, name string) error {
	switch name {
	case "pause":
		m.local.Paused = true
		m.local.NetworkSeekTarget = nil
		if m.local.Ready {
			return m.stopBeingReady(ctx, "local pause")
		}
		return nil

	case "unpause":
		m.local.Paused = false
		m.local.NetworkSeekTarget = nil
		if !m.local.Ready {
			return m.suppressUnpause(ctx, "not ready")
		}
		if !m.local.NetworkReady {
			return m.suppressUnpause(ctx, "network is not ready")
		}
		return nil

	case "playback-restart":
		return m.seekingTargetCheck(ctx)

	default:
		slog.Debug("core: unhandled player event", "event", name)
		return nil
	}
}

func (m *Machine) seekingTargetCheck(ctx context.Context) error {
	target := m.local.NetworkSeekTarget
	if target == nil {
		m.local.PendingRemoteSeekOnNextPos = true
		return nil
	}

	now := m.now()
	var calcPos float64
	if m.local.Paused {
		calcPos = target.Pos
	} else {
		calcPos = target.Pos + now.Sub(target.At).Seconds()
	}

	if math.Abs(calcPos-m.local.Position) > SeekThreshold {
		m.local.PendingRemoteSeekOnNextPos = true
	}
	return nil
}

// --- readiness / playback sub-protocols -----------------------------------

func (m *Machine) startToBeReady(ctx context.Context) error {
	m.local.Ready = true
	m.log("you are ready")
	if err := m.sendNetwork(ctx, protocol.Ready()); err != nil {
		return err
	}
	return m.refreshOSD(ctx)
}

func (m *Machine) stopBeingReady(ctx context.Context, reason string) error {
	m.local.Ready = false
	if err := m.sendNetwork(ctx, protocol.Unready()); err != nil {
		return err
	}
	m.log(fmt.Sprintf("you are not ready: %s", reason))
	return m.refreshOSD(ctx)
}

func (m *Machine) startPlayback(ctx context.Context) error {
	if !m.local.Paused {
		return nil
	}
	m.local.NetworkSeekTarget = nil
	m.local.Paused = false
	if err := m.sendPlayer(ctx, player.SetPause(false)); err != nil {
		return err
	}
	m.log("go")
	return m.refreshOSD(ctx)
}

func (m *Machine) stopPlayback(ctx context.Context, reason string) error {
	if !m.local.Paused {
		m.local.Paused = true
		m.local.NetworkSeekTarget = nil
		if err := m.sendPlayer(ctx, player.SetPause(true)); err != nil {
			return err
		}
	}
	if m.local.Ready {
		if err := m.stopBeingReady(ctx, reason); err != nil {
			return err
		}
	}
	m.log(fmt.Sprintf("stopped playback: %s", reason))
	return m.refreshOSD(ctx)
}

func (m *Machine) suppressUnpause(ctx context.Context, reason string) error {
	if err := m.sendPlayer(ctx, player.SetPause(true)); err != nil {
		return err
	}
	return m.stopBeingReady(ctx, reason)
}

// --- network messages ------------------------------------------------------

func (m *Machine) handleNetworkMessage(ctx context.Context, msg protocol.Message) error {
	peer, existed := m.peers[msg.UserID]
	if !existed {
		peer = &PeerView{}
		m.peers[msg.UserID] = peer
		if err := m.onOtherJoin(ctx, msg.UserID); err != nil {
			return err
		}
	}

	switch msg.Action.Kind {
	case protocol.KindHello:
		peer.Ready = false
		m.local.NetworkReady = false
		// An explicit Hello logs the join a second time even when the peer
		// was already known; this mirrors a quirk of the wire protocol and
		// is harmless.
		if err := m.onOtherJoin(ctx, msg.UserID); err != nil {
			return err
		}
		return m.stopPlayback(ctx, fmt.Sprintf("%s joined", msg.UserID))

	case protocol.KindReady:
		peer.Ready = true
		m.recomputeNetworkReady()
		if m.local.Ready && m.local.NetworkReady {
			if err := m.startPlayback(ctx); err != nil {
				return err
			}
		}
		m.log(fmt.Sprintf("%s is ready", msg.UserID))
		return m.refreshOSD(ctx)

	case protocol.KindUnready:
		peer.Ready = false
		m.recomputeNetworkReady()
		if !m.local.Paused {
			if err := m.stopPlayback(ctx, fmt.Sprintf("%s is not ready", msg.UserID)); err != nil {
				return err
			}
		}
		m.log(fmt.Sprintf("%s is not ready", msg.UserID))
		return m.refreshOSD(ctx)

	case protocol.KindSeek:
		return m.applyRemoteSeek(ctx, msg, peer)

	case protocol.KindPosition:
		peer.Position = msg.Action.Pos
		return nil

	case protocol.KindSpeed:
		peer.SpeedFactor = msg.Action.Speed
		if math.Abs(m.local.SpeedFactor-peer.SpeedFactor) > SpeedThreshold {
			if err := m.sendPlayer(ctx, player.SpeedRequest(peer.SpeedFactor)); err != nil {
				return err
			}
			m.log(fmt.Sprintf("speed changed to %.2fx", peer.SpeedFactor))
		}
		return nil

	default:
		return nil
	}
}

func (m *Machine) applyRemoteSeek(ctx context.Context, msg protocol.Message, peer *PeerView) error {
	now := m.now()
	m.local.LastSeekEventAt = now
	peer.Position = msg.Action.Pos

	ts := time.UnixMilli(msg.TS)
	if m.local.NetworkSeekTarget == nil || m.local.NetworkSeekTarget.At.Before(ts) {
		m.local.NetworkSeekTarget = &SeekTarget{At: ts, Pos: msg.Action.Pos}
	}
	target := m.local.NetworkSeekTarget

	var calcPos float64
	if m.local.Paused {
		calcPos = target.Pos
	} else {
		calcPos = target.Pos + now.Sub(target.At).Seconds()
	}

	if math.Abs(calcPos-m.local.Position) <= SeekThreshold {
		return nil
	}

	if err := m.sendPlayer(ctx, player.SeekRequest(calcPos)); err != nil {
		return err
	}
	// Optimistically adopt the position we just told the player to reach:
	// mpv reports playback-restart before the confirming time-pos update,
	// and seeking_target_check needs a position to compare against in the
	// meantime or it mistakes this echo for a fresh local scrub.
	m.local.Position = calcPos
	return nil
}

func (m *Machine) onOtherJoin(ctx context.Context, userID string) error {
	m.log(fmt.Sprintf("oh hi %s", userID))
	return m.refreshOSD(ctx)
}

func (m *Machine) recomputeNetworkReady() {
	ready := len(m.peers) > 0
	for _, p := range m.peers {
		if !p.Ready {
			ready = false
			break
		}
	}
	m.local.NetworkReady = ready
}

// --- heartbeat ---------------------------------------------------------

func (m *Machine) handleKeepAlive(ctx context.Context) error {
	if err := m.sendNetwork(ctx, protocol.Position(m.local.Position)); err != nil {
		return err
	}

	now := m.now()
	recentSeek := now.Sub(m.local.LastSeekEventAt) <= DesyncQuietWindow
	recentTarget := m.local.NetworkSeekTarget != nil && now.Sub(m.local.NetworkSeekTarget.At) <= DesyncQuietWindow

	if !m.local.Paused && !recentSeek && !recentTarget {
		var worst string
		var maxDesync float64
		for id, p := range m.peers {
			d := math.Abs(p.Position - m.local.Position)
			if d > maxDesync {
				maxDesync = d
				worst = id
			}
		}
		if maxDesync > DesyncThreshold {
			if err := m.stopPlayback(ctx, fmt.Sprintf("%s out of sync by %.1f", worst, maxDesync)); err != nil {
				return err
			}
		}
	}

	return m.refreshOSD(ctx)
}
