package player

import (
	"encoding/json"
	"fmt"
)

// rawEvent is the generic shape of a single-line mpv IPC message: a command
// response (request_id/error) or an event (event/name/data/args).
type rawEvent struct {
	RequestID *int64          `json:"request_id,omitempty"`
	Error     string          `json:"error,omitempty"`
	Event     string          `json:"event,omitempty"`
	Name      string          `json:"name,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Args      []string        `json:"args,omitempty"`
}

// ParseEvent translates a single mpv IPC line into an Event.
//
// recognized is false when the line does not map to any PlayerEvent
// variant; per the adapter contract such lines are logged and dropped, not
// treated as an error. err is non-nil only for a parse failure on an
// otherwise known-shaped event (e.g. a property-change whose data does not
// match the expected type for its property) — those are fatal.
func ParseEvent(line []byte) (ev Event, recognized bool, err error) {
	var raw rawEvent
	if err := json.Unmarshal(line, &raw); err != nil {
		// Malformed JSON entirely: not a known shape, just drop it.
		return Event{}, false, nil
	}

	if raw.RequestID != nil {
		if raw.Error == "" || raw.Error == "success" {
			return SuccessEvent(*raw.RequestID), true, nil
		}
		return ErrorEvent(*raw.RequestID, raw.Error), true, nil
	}

	switch raw.Event {
	case "client-message":
		id := ""
		if len(raw.Args) > 0 {
			id = raw.Args[0]
		}
		return ClientMessageEvent(id), true, nil

	case "property-change":
		switch raw.Name {
		case string(TimePos), string(Speed):
			var v float64
			if len(raw.Data) == 0 {
				return Event{}, true, fmt.Errorf("player: property-change %s missing data", raw.Name)
			}
			if err := json.Unmarshal(raw.Data, &v); err != nil {
				return Event{}, true, fmt.Errorf("player: parse property-change %s: %w", raw.Name, err)
			}
			return FloatPropertyChange(FloatProperty(raw.Name), v), true, nil
		case string(Seeking):
			var v bool
			if len(raw.Data) == 0 {
				return Event{}, true, fmt.Errorf("player: property-change %s missing data", raw.Name)
			}
			if err := json.Unmarshal(raw.Data, &v); err != nil {
				return Event{}, true, fmt.Errorf("player: parse property-change %s: %w", raw.Name, err)
			}
			return BoolPropertyChange(Seeking, v), true, nil
		default:
			return Event{}, false, nil
		}

	case "seek":
		return SeekEvent(), true, nil

	case "":
		// Neither a command response nor a named event: nothing to report.
		return Event{}, false, nil

	default:
		// pause / unpause / playback-restart / anything else mpv emits.
		return NamedEvent(raw.Event), true, nil
	}
}
