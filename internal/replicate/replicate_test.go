package replicate

import (
	"context"
	"testing"

	"github.com/route-beacon/bgp-control/internal/attrdb"
	"github.com/route-beacon/bgp-control/internal/bgpfamily"
	"github.com/route-beacon/bgp-control/internal/rib"
	"github.com/route-beacon/bgp-control/internal/rtargetmgr"
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

func mustRD(t *testing.T, s string) bgpfamily.RouteDistinguisher {
	t.Helper()
	rd, err := bgpfamily.RDFromString(s)
	if err != nil {
		t.Fatalf("RDFromString(%q): %v", s, err)
	}
	return rd
}

func mustRT(t *testing.T, s string) bgpfamily.RouteTarget {
	t.Helper()
	rt, err := bgpfamily.RouteTargetFromString(s)
	if err != nil {
		t.Fatalf("RouteTargetFromString(%q): %v", s, err)
	}
	return rt
}

func setup(t *testing.T) (*Replicator, *rib.Table, *rib.Table, *attrdb.BgpAttrDB) {
	t.Helper()
	rtmgr := rtargetmgr.NewManager()
	attrDB := attrdb.NewBgpAttrDB()
	extDB := attrdb.NewExtCommunityDB()
	r := NewReplicator(rtmgr, attrDB, attrdb.NewAsPathDB(), attrdb.NewCommunityDB(), extDB, zap.NewNop())

	rtA := mustRT(t, "target:100:1")
	srcTable := rib.NewTable("vrf-a.inet.0", bgpfamily.FamilyInet, zap.NewNop())
	dstTable := rib.NewTable("vrf-b.inet.0", bgpfamily.FamilyInet, zap.NewNop())

	r.Attach("vrf-a.inet.0", TableInfo{Table: srcTable, RD: mustRD(t, "100:1"), ExportTargets: []bgpfamily.RouteTarget{rtA}}, nil)
	r.Attach("vrf-b.inet.0", TableInfo{Table: dstTable, RD: mustRD(t, "100:2")}, []bgpfamily.RouteTarget{rtA})

	return r, srcTable, dstTable, attrDB
}

func TestReplicatorInstallsSecondaryPath(t *testing.T) {
	r, srcTable, dstTable, attrDB := setup(t)
	defer srcTable.Close()
	defer dstTable.Close()
	_ = r

	prefix := mustInet(t, "10.0.0.0/24")
	attr := attrDB.Locate(attrdb.BgpAttrSpec{Origin: attrdb.OriginIGP})
	srcTable.AddChangeSync(prefix, &rib.Path{PeerRouterID: 1, PathID: 1, Attr: attr})
	dstTable.Drain(context.Background())

	route, _, ok := dstTable.Lookup(prefix)
	if !ok {
		t.Fatalf("expected the secondary path to appear in the destination table")
	}
	best := route.BestPath()
	if best == nil || best.Source != rib.SourceReplicated {
		t.Fatalf("BestPath() = %+v, want a replicated path", best)
	}
	if !best.Attr.Spec.HasSourceRD || best.Attr.Spec.SourceRD.String() != "100:1" {
		t.Fatalf("secondary attr source-rd = %+v, want 100:1", best.Attr.Spec)
	}
}

func TestReplicatorWithdrawsOnPrimaryWithdraw(t *testing.T) {
	_, srcTable, dstTable, attrDB := setup(t)
	defer srcTable.Close()
	defer dstTable.Close()

	prefix := mustInet(t, "10.0.1.0/24")
	attr := attrDB.Locate(attrdb.BgpAttrSpec{Origin: attrdb.OriginIGP})
	srcTable.AddChangeSync(prefix, &rib.Path{PeerRouterID: 1, PathID: 1, Attr: attr})
	dstTable.Drain(context.Background())
	if _, _, ok := dstTable.Lookup(prefix); !ok {
		t.Fatalf("expected secondary path to be installed before withdrawal test")
	}

	srcTable.DeleteSync(prefix, 1, 1)
	dstTable.Drain(context.Background())
	if _, _, ok := dstTable.Lookup(prefix); ok {
		t.Fatalf("expected secondary path to be withdrawn once the primary route withdrew")
	}
}

func TestReplicatorIdempotentOnUnchangedNotification(t *testing.T) {
	r, srcTable, dstTable, attrDB := setup(t)
	defer srcTable.Close()
	defer dstTable.Close()

	prefix := mustInet(t, "10.0.2.0/24")
	attr := attrDB.Locate(attrdb.BgpAttrSpec{Origin: attrdb.OriginIGP})
	path := &rib.Path{PeerRouterID: 1, PathID: 1, Attr: attr}
	srcTable.AddChangeSync(prefix, path)
	dstTable.Drain(context.Background())
	route, _, _ := dstTable.Lookup(prefix)
	firstAttr := route.BestPath().Attr

	// Re-notify with the identical best path (simulating a second
	// unrelated path insertion that doesn't change the best path).
	route2, _, _ := srcTable.Lookup(prefix)
	r.onPrimaryChange("vrf-a.inet.0", route2)
	dstTable.Drain(context.Background())

	route3, _, _ := dstTable.Lookup(prefix)
	if route3.BestPath().Attr != firstAttr {
		t.Fatalf("expected the secondary attribute handle to be unchanged across an idempotent re-notification")
	}
}
