package core

import "time"

// PeerView is the last known snapshot of one remote peer, keyed by user id
// in Machine.peers. Created on first message from that id; never evicted
// during a session.
type PeerView struct {
	Position    float64
	SpeedFactor float64
	Ready       bool
	Paused      bool
}

// SeekTarget is a timestamped position asserted by a remote peer, used to
// decide whether a later local time jump mirrors that seek or is a fresh
// scrub.
type SeekTarget struct {
	At  time.Time
	Pos float64
}

// LogEntry is one line of the bounded overlay log.
type LogEntry struct {
	When time.Time
	Text string
}

// LocalState is this peer's own playback state plus the coordination
// scalars needed to reconcile it against the network.
type LocalState struct {
	Position    float64
	SpeedFactor float64
	Ready       bool
	Paused      bool
	Seeking     bool

	NetworkReady               bool
	NetworkSeekTarget          *SeekTarget
	LastSeekEventAt            time.Time
	PendingRemoteSeekOnNextPos bool

	Log []LogEntry
}
