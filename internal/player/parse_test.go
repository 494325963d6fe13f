package player

import "testing"

func TestParseSuccessResponse(t *testing.T) {
	ev, recognized, err := ParseEvent([]byte(`{"request_id":5,"error":"success"}`))
	if err != nil || !recognized {
		t.Fatalf("unexpected: ev=%+v recognized=%v err=%v", ev, recognized, err)
	}
	if ev.Kind != EventSuccess || ev.ReqID != 5 {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestParseErrorResponse(t *testing.T) {
	ev, recognized, err := ParseEvent([]byte(`{"request_id":5,"error":"property not found"}`))
	if err != nil || !recognized {
		t.Fatalf("unexpected: ev=%+v recognized=%v err=%v", ev, recognized, err)
	}
	if ev.Kind != EventError || ev.Reason != "property not found" {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestParseClientMessage(t *testing.T) {
	ev, recognized, err := ParseEvent([]byte(`{"event":"client-message","args":["ready_pressed"]}`))
	if err != nil || !recognized {
		t.Fatalf("unexpected: ev=%+v recognized=%v err=%v", ev, recognized, err)
	}
	if ev.Kind != EventClientMessage || ev.ID != "ready_pressed" {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestParseNamedEvents(t *testing.T) {
	for _, name := range []string{"pause", "unpause", "playback-restart", "idle"} {
		ev, recognized, err := ParseEvent([]byte(`{"event":"` + name + `"}`))
		if err != nil || !recognized {
			t.Fatalf("%s: unexpected: ev=%+v recognized=%v err=%v", name, ev, recognized, err)
		}
		if ev.Kind != EventNamed || ev.Name != name {
			t.Fatalf("%s: unexpected event: %+v", name, ev)
		}
	}
}

func TestParseSeekEvent(t *testing.T) {
	ev, recognized, err := ParseEvent([]byte(`{"event":"seek"}`))
	if err != nil || !recognized || ev.Kind != EventSeek {
		t.Fatalf("unexpected: ev=%+v recognized=%v err=%v", ev, recognized, err)
	}
}

func TestParseFloatPropertyChange(t *testing.T) {
	ev, recognized, err := ParseEvent([]byte(`{"event":"property-change","id":1,"name":"time-pos","data":12.5}`))
	if err != nil || !recognized {
		t.Fatalf("unexpected: ev=%+v recognized=%v err=%v", ev, recognized, err)
	}
	if ev.Kind != EventFloatProperty || ev.FloatProp != TimePos || ev.FloatVal != 12.5 {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestParseBoolPropertyChange(t *testing.T) {
	ev, recognized, err := ParseEvent([]byte(`{"event":"property-change","id":3,"name":"seeking","data":true}`))
	if err != nil || !recognized {
		t.Fatalf("unexpected: ev=%+v recognized=%v err=%v", ev, recognized, err)
	}
	if ev.Kind != EventBoolProperty || ev.BoolProp != Seeking || !ev.BoolVal {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestParseUnrecognisedPropertyDropped(t *testing.T) {
	_, recognized, err := ParseEvent([]byte(`{"event":"property-change","id":9,"name":"volume","data":50}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if recognized {
		t.Fatal("expected unrecognised property to be dropped")
	}
}

func TestParseKnownShapeTypeMismatchIsFatal(t *testing.T) {
	_, recognized, err := ParseEvent([]byte(`{"event":"property-change","id":1,"name":"time-pos","data":"not-a-number"}`))
	if !recognized {
		t.Fatal("expected recognized=true for a known-shaped event")
	}
	if err == nil {
		t.Fatal("expected a fatal parse error for mismatched property data")
	}
}

func TestParseMalformedJSONDropped(t *testing.T) {
	_, recognized, err := ParseEvent([]byte(`not json at all`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if recognized {
		t.Fatal("expected malformed JSON to be dropped, not recognized")
	}
}

func TestRequestMarshal(t *testing.T) {
	cases := []struct {
		name string
		req  Request
		want string
	}{
		{"pause", SetPause(true), `{"command":["set_property","pause",true]}` + "\n"},
		{"seek", SeekRequest(42.5), `{"command":["seek",42.5,"absolute"]}` + "\n"},
		{"speed", SpeedRequest(1.25), `{"command":["set_property","speed",1.25]}` + "\n"},
		{"observe", ObserveProperty("time-pos"), `{"command":["observe_property",1,"time-pos"]}` + "\n"},
		{"keybind", Keybind("F1", "script-message ready_pressed"), `{"command":["keybind","F1","script-message ready_pressed"]}` + "\n"},
		{"osd", OsdOverlay("hello"), `{"command":["osd-overlay",1,"ass-events","hello"]}` + "\n"},
	}
	for _, c := range cases {
		data, err := c.req.Marshal()
		if err != nil {
			t.Fatalf("%s: %v", c.name, err)
		}
		if string(data) != c.want {
			t.Fatalf("%s: got %q want %q", c.name, data, c.want)
		}
	}
}
