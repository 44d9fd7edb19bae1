package telemetry

import (
	"encoding/json"
	"testing"

	"go.uber.org/zap"

	"github.com/route-beacon/bgp-control/internal/attrdb"
	"github.com/route-beacon/bgp-control/internal/bgpfamily"
	"github.com/route-beacon/bgp-control/internal/rib"
)

func TestEventFromNotification_Update(t *testing.T) {
	table := rib.NewTable("default.inet", bgpfamily.FamilyInet, zap.NewNop())
	defer table.Close()

	prefix, err := bgpfamily.InetFromString("10.2.2.0/24")
	if err != nil {
		t.Fatalf("InetFromString: %v", err)
	}

	attrDB := attrdb.NewBgpAttrDB()
	attr := attrDB.Locate(attrdb.BgpAttrSpec{Origin: attrdb.OriginEGP, NextHop: []byte{10, 0, 0, 3}, HasMED: true, MED: 42})
	table.AddChangeSync(prefix, &rib.Path{Source: rib.SourceBGP, PeerRouterID: 7, NeighborAS: 65002, Attr: attr})

	route, _, ok := table.Lookup(prefix)
	if !ok {
		t.Fatal("route not found")
	}

	e := eventFromNotification("default.inet", rib.Notification{Partition: 0, Route: route})
	if e.Action != "update" {
		t.Errorf("Action = %q, want update", e.Action)
	}
	if e.Origin != "egp" {
		t.Errorf("Origin = %q, want egp", e.Origin)
	}
	if e.MED != 42 {
		t.Errorf("MED = %d, want 42", e.MED)
	}
	if e.PeerRouterID != 7 {
		t.Errorf("PeerRouterID = %d, want 7", e.PeerRouterID)
	}

	payload, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded Event
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded != *e {
		t.Errorf("round trip mismatch: got %+v, want %+v", decoded, *e)
	}
}

func TestOriginName(t *testing.T) {
	cases := map[uint8]string{
		attrdb.OriginIGP:        "igp",
		attrdb.OriginEGP:        "egp",
		attrdb.OriginIncomplete: "incomplete",
		99:                      "unknown",
	}
	for origin, want := range cases {
		if got := originName(origin); got != want {
			t.Errorf("originName(%d) = %q, want %q", origin, got, want)
		}
	}
}
