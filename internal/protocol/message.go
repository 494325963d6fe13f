// Package protocol implements the wire codec for messages exchanged over
// the gossip topic: a pure, stateless mapping between Message values and a
// canonical JSON byte string.
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
)

// ActionKind identifies which variant of Action a message carries.
type ActionKind string

// Wire tags. These are bit-level compatibility constants: renaming any of
// them breaks interop with any other synco peer.
const (
	KindHello    ActionKind = "h"
	KindReady    ActionKind = "r"
	KindUnready  ActionKind = "!r"
	KindSeek     ActionKind = ">>"
	KindPosition ActionKind = "??"
	KindSpeed    ActionKind = ">>>"
)

// Action is the sum type of intents a peer can announce. At most one of
// Pos/Speed is meaningful, depending on Kind; Hello, Ready and Unready
// carry neither.
type Action struct {
	Kind  ActionKind
	Pos   float64 // seconds; meaningful for KindSeek, KindPosition
	Speed float64 // playback-rate factor; meaningful for KindSpeed
}

// Hello announces presence / requests a session reset.
func Hello() Action { return Action{Kind: KindHello} }

// Ready announces the local peer has toggled its readiness flag on.
func Ready() Action { return Action{Kind: KindReady} }

// Unready announces the local peer has toggled its readiness flag off.
func Unready() Action { return Action{Kind: KindUnready} }

// Seek announces an authoritative jump to pos seconds.
func Seek(pos float64) Action { return Action{Kind: KindSeek, Pos: pos} }

// Position announces a periodic progress report at pos seconds.
func Position(pos float64) Action { return Action{Kind: KindPosition, Pos: pos} }

// Speed announces a playback-rate change to the given factor.
func Speed(speed float64) Action { return Action{Kind: KindSpeed, Speed: speed} }

// Message is one envelope published on (or received from) the topic.
type Message struct {
	UserID string
	TS     int64 // milliseconds since Unix epoch
	Action Action
}

// wireMessage is the on-the-wire JSON shape: short tags, Action flattened
// into the envelope. Field names are part of the compatibility contract.
type wireMessage struct {
	Tag   ActionKind `json:"t"`
	User  string     `json:"u"`
	TS    int64      `json:"ts"`
	Pos   float64    `json:"p,omitempty"`
	Speed float64    `json:"s,omitempty"`
}

// DecodeError is returned for malformed or non-finite wire payloads.
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string { return fmt.Sprintf("protocol: decode: %s", e.Reason) }

// Encode renders msg as its canonical JSON byte string.
func Encode(msg Message) ([]byte, error) {
	w := wireMessage{
		Tag:  msg.Action.Kind,
		User: msg.UserID,
		TS:   msg.TS,
	}
	switch msg.Action.Kind {
	case KindSeek, KindPosition:
		w.Pos = msg.Action.Pos
	case KindSpeed:
		w.Speed = msg.Action.Speed
	case KindHello, KindReady, KindUnready:
		// no payload
	default:
		return nil, &DecodeError{Reason: fmt.Sprintf("unknown tag %q", msg.Action.Kind)}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false) // keep tags such as ">>" literal on the wire
	if err := enc.Encode(w); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// Decode parses a canonical JSON byte string into a Message. Unknown tags
// and non-finite numeric fields are rejected with a *DecodeError; missing
// numeric fields default to 0.0 (handled by the zero value of float64).
func Decode(data []byte) (Message, error) {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return Message{}, &DecodeError{Reason: err.Error()}
	}

	msg := Message{UserID: w.User, TS: w.TS}
	switch w.Tag {
	case KindHello:
		msg.Action = Hello()
	case KindReady:
		msg.Action = Ready()
	case KindUnready:
		msg.Action = Unready()
	case KindSeek:
		if err := checkFinite(w.Pos); err != nil {
			return Message{}, err
		}
		msg.Action = Seek(w.Pos)
	case KindPosition:
		if err := checkFinite(w.Pos); err != nil {
			return Message{}, err
		}
		msg.Action = Position(w.Pos)
	case KindSpeed:
		if err := checkFinite(w.Speed); err != nil {
			return Message{}, err
		}
		msg.Action = Speed(w.Speed)
	default:
		return Message{}, &DecodeError{Reason: fmt.Sprintf("unknown tag %q", w.Tag)}
	}
	return msg, nil
}

func checkFinite(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return &DecodeError{Reason: "non-finite numeric field"}
	}
	return nil
}
