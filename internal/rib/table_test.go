package rib

import (
	"context"
	"testing"

	"github.com/route-beacon/bgp-control/internal/attrdb"
	"github.com/route-beacon/bgp-control/internal/bgpfamily"
	"go.uber.org/zap"
)

func mustInet(t *testing.T, s string) bgpfamily.InetPrefix {
	t.Helper()
	p, err := bgpfamily.InetFromString(s)
	if err != nil {
		t.Fatalf("InetFromString(%q): %v", s, err)
	}
	return p
}

func TestTableInsertAndBestPath(t *testing.T) {
	table := NewTable("inet.0", bgpfamily.FamilyInet, zap.NewNop())
	defer table.Close()

	attrDB := attrdb.NewBgpAttrDB()
	lowPref := attrDB.Locate(attrdb.BgpAttrSpec{Origin: attrdb.OriginIGP, HasLocalPref: true, LocalPref: 100})
	highPref := attrDB.Locate(attrdb.BgpAttrSpec{Origin: attrdb.OriginIGP, HasLocalPref: true, LocalPref: 200})

	prefix := mustInet(t, "10.0.0.0/24")
	table.AddChangeSync(prefix, &Path{PeerRouterID: 1, PathID: 1, Attr: lowPref})
	table.AddChangeSync(prefix, &Path{PeerRouterID: 2, PathID: 1, Attr: highPref})

	route, _, ok := table.Lookup(prefix)
	if !ok {
		t.Fatalf("expected route to exist after insert")
	}
	best := route.BestPath()
	if best == nil || best.PeerRouterID != 2 {
		t.Fatalf("BestPath() = %+v, want the higher local-pref path from router 2", best)
	}
}

func TestTableDeleteLastPathRemovesRoute(t *testing.T) {
	table := NewTable("inet.0", bgpfamily.FamilyInet, zap.NewNop())
	defer table.Close()

	attrDB := attrdb.NewBgpAttrDB()
	a := attrDB.Locate(attrdb.BgpAttrSpec{Origin: attrdb.OriginIGP})
	prefix := mustInet(t, "192.0.2.0/24")
	table.AddChangeSync(prefix, &Path{PeerRouterID: 1, PathID: 1, Attr: a})
	table.DeleteSync(prefix, 1, 1)

	if _, _, ok := table.Lookup(prefix); ok {
		t.Fatalf("expected route to be removed once its last path withdrew")
	}
}

func TestTableListenerNotifiedOnBestPathChange(t *testing.T) {
	table := NewTable("inet.0", bgpfamily.FamilyInet, zap.NewNop())
	defer table.Close()

	notifications := make(chan Notification, 16)
	table.RegisterListener(func(n Notification) { notifications <- n })

	attrDB := attrdb.NewBgpAttrDB()
	a := attrDB.Locate(attrdb.BgpAttrSpec{Origin: attrdb.OriginIGP})
	prefix := mustInet(t, "203.0.113.0/24")
	table.AddChangeSync(prefix, &Path{PeerRouterID: 1, PathID: 1, Attr: a})

	select {
	case n := <-notifications:
		if n.Route.Prefix.String() != prefix.String() {
			t.Fatalf("notified route = %v, want %v", n.Route.Prefix, prefix)
		}
	default:
		t.Fatalf("expected a notification after inserting the first path")
	}
}

func TestTableRouteStatePinsRouteWhileListenerHolds(t *testing.T) {
	table := NewTable("inet.0", bgpfamily.FamilyInet, zap.NewNop())
	defer table.Close()

	id := table.RegisterListener(func(Notification) {})
	attrDB := attrdb.NewBgpAttrDB()
	a := attrDB.Locate(attrdb.BgpAttrSpec{Origin: attrdb.OriginIGP})
	prefix := mustInet(t, "198.51.100.0/24")
	table.AddChangeSync(prefix, &Path{PeerRouterID: 1, PathID: 1, Attr: a})

	route, _, ok := table.Lookup(prefix)
	if !ok {
		t.Fatalf("expected route to exist")
	}
	route.SetState(id, "held")

	table.DeleteSync(prefix, 1, 1)
	if _, _, ok := table.Lookup(prefix); !ok {
		t.Fatalf("expected route to remain in the partition while listener state is attached")
	}

	route.ClearState(id)
	if route.HasListenerState() {
		t.Fatalf("expected no listener state after ClearState")
	}
	table.Drain(context.Background())
}
