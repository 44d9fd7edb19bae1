package audit

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/route-beacon/bgp-control/internal/attrdb"
	"github.com/route-beacon/bgp-control/internal/bgpfamily"
	"github.com/route-beacon/bgp-control/internal/rib"
)

func TestController_InstanceAddedThenRemoved(t *testing.T) {
	fake := &fakeFlusher{}
	c := NewController(fake, 10, 50*time.Millisecond, false, zap.NewNop())

	table := rib.NewTable("vrf-a.inet", bgpfamily.FamilyInet, zap.NewNop())
	defer table.Close()

	tables := map[bgpfamily.Family]*rib.Table{bgpfamily.FamilyInet: table}
	c.InstanceAdded("vrf-a", tables)

	if len(c.subs) != 1 {
		t.Fatalf("len(subs) = %d, want 1", len(c.subs))
	}

	prefix, err := bgpfamily.InetFromString("10.5.5.0/24")
	if err != nil {
		t.Fatalf("InetFromString: %v", err)
	}
	attrDB := attrdb.NewBgpAttrDB()
	attr := attrDB.Locate(attrdb.BgpAttrSpec{Origin: attrdb.OriginIGP, NextHop: []byte{10, 0, 0, 1}})
	table.AddChangeSync(prefix, &rib.Path{Source: rib.SourceBGP, PeerRouterID: 1, NeighborAS: 65001, Attr: attr})

	deadline := time.Now().Add(time.Second)
	for fake.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if fake.count() == 0 {
		t.Fatal("no batch flushed within deadline")
	}

	c.InstanceRemoved("vrf-a", tables)
	if len(c.subs) != 0 {
		t.Fatalf("len(subs) after remove = %d, want 0", len(c.subs))
	}

	c.Close()
}
