package membership

import (
	"context"
	"testing"
	"time"

	"github.com/route-beacon/bgp-control/internal/attrdb"
	"github.com/route-beacon/bgp-control/internal/bgpfamily"
	"github.com/route-beacon/bgp-control/internal/bgpproto"
	"github.com/route-beacon/bgp-control/internal/rib"
	"github.com/route-beacon/bgp-control/internal/sched"
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

func TestRegisterSeedsQBulkFromExistingRoutes(t *testing.T) {
	table := rib.NewTable("inet.0", bgpfamily.FamilyInet, zap.NewNop())
	defer table.Close()

	attrDB := attrdb.NewBgpAttrDB()
	attr := attrDB.Locate(attrdb.BgpAttrSpec{Origin: attrdb.OriginIGP})
	prefix := mustInet(t, "10.0.0.0/24")
	table.AddChangeSync(prefix, &rib.Path{PeerRouterID: 1, Attr: attr})

	m := NewManager(zap.NewNop(), sched.NewRegistry(), sched.NewManager(64), 0)
	ribout := m.Register("peerA", table, sched.ExportPolicy{ASNumber: 1})

	if ribout.QBulk.Len() != 1 {
		t.Fatalf("QBulk.Len() = %d, want 1 after registering against a pre-populated table", ribout.QBulk.Len())
	}
	pending := ribout.QBulk.PeekPending(0)
	if len(pending) != 1 {
		t.Fatalf("expected the first peer's index to see the seeded entry, got %d", len(pending))
	}
	if _, err := bgpproto.Decode(pending[0].Data); err != nil {
		t.Fatalf("seeded QBulk entry does not decode: %v", err)
	}
}

func TestOnChangeFansOutToAllAttachedRibOuts(t *testing.T) {
	table := rib.NewTable("inet.0", bgpfamily.FamilyInet, zap.NewNop())
	defer table.Close()

	m := NewManager(zap.NewNop(), sched.NewRegistry(), sched.NewManager(64), 0)
	roA := m.Register("peerA", table, sched.ExportPolicy{ASNumber: 1})
	roB := m.Register("peerB", table, sched.ExportPolicy{ASNumber: 2})

	attrDB := attrdb.NewBgpAttrDB()
	attr := attrDB.Locate(attrdb.BgpAttrSpec{Origin: attrdb.OriginIGP})
	prefix := mustInet(t, "10.0.1.0/24")
	table.AddChangeSync(prefix, &rib.Path{PeerRouterID: 2, Attr: attr})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	table.Drain(ctx)

	if roA.QUpdate.Len() != 1 {
		t.Fatalf("roA.QUpdate.Len() = %d, want 1", roA.QUpdate.Len())
	}
	if roB.QUpdate.Len() != 1 {
		t.Fatalf("roB.QUpdate.Len() = %d, want 1", roB.QUpdate.Len())
	}
}

func TestUnregisterLeavesGroupAndDropsQueueState(t *testing.T) {
	table := rib.NewTable("inet.0", bgpfamily.FamilyInet, zap.NewNop())
	defer table.Close()

	groups := sched.NewManager(64)
	m := NewManager(zap.NewNop(), sched.NewRegistry(), groups, 0)
	ribout := m.Register("peerA", table, sched.ExportPolicy{ASNumber: 1})

	m.Unregister("peerA", table)

	if pending := ribout.QUpdate.PeekPending(0); pending != nil {
		t.Fatalf("expected no pending state for an unregistered peer, got %v", pending)
	}
	for _, p := range ribout.Peers() {
		if p == 0 {
			t.Fatalf("expected peer index 0 to have left the ribout")
		}
	}
}
