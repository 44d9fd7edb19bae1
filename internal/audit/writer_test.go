package audit

import (
	"testing"
)

func TestEventID_StableForIdenticalEvents(t *testing.T) {
	e1 := &Event{Table: "default.inet", Prefix: "10.1.1.0/24", PeerRouterID: 1, Action: "update", NextHop: "10.0.0.2", ASPath: "65001", Origin: "igp"}
	e2 := &Event{Table: "default.inet", Prefix: "10.1.1.0/24", PeerRouterID: 1, Action: "update", NextHop: "10.0.0.2", ASPath: "65001", Origin: "igp"}

	if string(eventID(e1)) != string(eventID(e2)) {
		t.Fatal("identical events produced different event IDs")
	}
}

func TestEventID_DiffersOnAnyField(t *testing.T) {
	base := &Event{Table: "default.inet", Prefix: "10.1.1.0/24", PeerRouterID: 1, Action: "update"}
	variants := []*Event{
		{Table: "other.inet", Prefix: base.Prefix, PeerRouterID: base.PeerRouterID, Action: base.Action},
		{Table: base.Table, Prefix: "10.1.2.0/24", PeerRouterID: base.PeerRouterID, Action: base.Action},
		{Table: base.Table, Prefix: base.Prefix, PeerRouterID: 2, Action: base.Action},
		{Table: base.Table, Prefix: base.Prefix, PeerRouterID: base.PeerRouterID, Action: "withdraw"},
	}

	baseID := string(eventID(base))
	for i, v := range variants {
		if string(eventID(v)) == baseID {
			t.Errorf("variant %d: event ID did not change", i)
		}
	}
}

func TestNilIfEmpty(t *testing.T) {
	if got := nilIfEmpty(""); got != nil {
		t.Errorf("nilIfEmpty(\"\") = %v, want nil", got)
	}
	if got := nilIfEmpty("x"); got != "x" {
		t.Errorf("nilIfEmpty(\"x\") = %v, want \"x\"", got)
	}
}
