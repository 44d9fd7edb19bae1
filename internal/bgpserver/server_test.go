package bgpserver

import (
	"testing"

	"go.uber.org/zap"

	"github.com/route-beacon/bgp-control/internal/bgpfamily"
	"github.com/route-beacon/bgp-control/internal/config"
	"github.com/route-beacon/bgp-control/internal/rib"
)

func testConfig() *config.Config {
	return &config.Config{
		Service:   config.ServiceConfig{LocalASNumber: 65000},
		Scheduler: config.SchedulerConfig{SplitThreshold: 64, MTU: 4096},
	}
}

func TestReady_FalseBeforeFirstDelta(t *testing.T) {
	s := NewServer(testConfig(), zap.NewNop())
	if s.Ready() {
		t.Fatal("Ready() = true before any ApplyConfigDelta call")
	}
}

func TestApplyConfigDelta_AddRoutingInstanceCreatesTables(t *testing.T) {
	s := NewServer(testConfig(), zap.NewNop())
	s.ApplyConfigDelta([]config.ConfigDelta{
		{Kind: config.DeltaAdd, Object: config.ObjectRoutingInstance, RoutingInstance: &config.RoutingInstanceConfig{
			Name:          "vrf-a",
			ImportTargets: []string{"target:65000:1"},
			ExportTargets: []string{"target:65000:1"},
		}},
	})
	if !s.Ready() {
		t.Fatal("Ready() = false after a config delta batch")
	}

	s.mu.Lock()
	inst, ok := s.instances["vrf-a"]
	s.mu.Unlock()
	if !ok {
		t.Fatal("routing instance vrf-a not created")
	}
	for _, fam := range familyOrder {
		if inst.tables[fam] == nil {
			t.Errorf("missing table for family %s", fam)
		}
	}
	if len(inst.importTargets) != 1 || len(inst.exportTargets) != 1 {
		t.Errorf("targets = %+v / %+v, want one of each", inst.importTargets, inst.exportTargets)
	}
}

func TestApplyConfigDelta_BadRouteTargetDropsDelta(t *testing.T) {
	s := NewServer(testConfig(), zap.NewNop())
	s.ApplyConfigDelta([]config.ConfigDelta{
		{Kind: config.DeltaAdd, Object: config.ObjectRoutingInstance, RoutingInstance: &config.RoutingInstanceConfig{
			Name:          "vrf-bad",
			ImportTargets: []string{"not-a-route-target"},
		}},
	})
	s.mu.Lock()
	_, ok := s.instances["vrf-bad"]
	s.mu.Unlock()
	if ok {
		t.Fatal("routing instance with an unparseable import target should have been dropped")
	}
}

func TestApplyConfigDelta_DeleteRoutingInstanceRemovesTables(t *testing.T) {
	s := NewServer(testConfig(), zap.NewNop())
	ri := &config.RoutingInstanceConfig{Name: "vrf-a"}
	s.ApplyConfigDelta([]config.ConfigDelta{{Kind: config.DeltaAdd, Object: config.ObjectRoutingInstance, RoutingInstance: ri}})
	s.ApplyConfigDelta([]config.ConfigDelta{{Kind: config.DeltaDelete, Object: config.ObjectRoutingInstance, RoutingInstance: ri}})

	s.mu.Lock()
	_, ok := s.instances["vrf-a"]
	s.mu.Unlock()
	if ok {
		t.Fatal("routing instance still present after delete delta")
	}
}

func TestApplyConfigDelta_PeerAddThenDelete(t *testing.T) {
	s := NewServer(testConfig(), zap.NewNop())
	p := &config.PeerConfig{Instance: "default", Name: "peer-1", ASNumber: 65000, Families: []string{"inet"}}
	s.ApplyConfigDelta([]config.ConfigDelta{{Kind: config.DeltaAdd, Object: config.ObjectPeer, Peer: p}})

	s.mu.Lock()
	_, ok := s.peers["peer-1"]
	s.mu.Unlock()
	if !ok {
		t.Fatal("peer-1 not registered after Add delta")
	}

	s.ApplyConfigDelta([]config.ConfigDelta{{Kind: config.DeltaDelete, Object: config.ObjectPeer, Peer: p}})
	s.mu.Lock()
	_, ok = s.peers["peer-1"]
	s.mu.Unlock()
	if ok {
		t.Fatal("peer-1 still present after Delete delta")
	}
}

func TestApplyConfigDelta_VirtualNetwork(t *testing.T) {
	s := NewServer(testConfig(), zap.NewNop())
	vn := &config.VirtualNetworkConfig{Name: "vn-1", ID: 42}
	s.ApplyConfigDelta([]config.ConfigDelta{{Kind: config.DeltaAdd, Object: config.ObjectVirtualNetwork, VirtualNetwork: vn}})

	s.mu.Lock()
	got, ok := s.vns["vn-1"]
	s.mu.Unlock()
	if !ok || got.ID != 42 {
		t.Fatalf("vn-1 = %+v (ok=%v), want ID 42", got, ok)
	}
}

func TestRouterIDFor_PrefersIdentifierThenHashesName(t *testing.T) {
	withIdentifier := routerIDFor(config.PeerConfig{Name: "peer-1", Identifier: "10.0.0.1"})
	want := uint32(10)<<24 | uint32(0)<<16 | uint32(0)<<8 | uint32(1)
	if withIdentifier != want {
		t.Errorf("routerIDFor with identifier = %d, want %d", withIdentifier, want)
	}

	a := routerIDFor(config.PeerConfig{Name: "peer-a"})
	b := routerIDFor(config.PeerConfig{Name: "peer-b"})
	if a == b {
		t.Error("distinct peer names hashed to the same router id")
	}
}

func TestParseRouteTargets(t *testing.T) {
	rts, err := parseRouteTargets([]string{"target:65000:1", "target:65000:2"})
	if err != nil {
		t.Fatalf("parseRouteTargets: %v", err)
	}
	if len(rts) != 2 {
		t.Fatalf("len(rts) = %d, want 2", len(rts))
	}
	if _, err := parseRouteTargets([]string{"garbage"}); err == nil {
		t.Fatal("expected an error parsing a malformed route target")
	}
}

type recordingObserver struct {
	added   []string
	removed []string
}

func (r *recordingObserver) InstanceAdded(name string, tables map[bgpfamily.Family]*rib.Table) {
	if len(tables) != len(familyOrder) {
		panic("InstanceAdded: tables map missing families")
	}
	r.added = append(r.added, name)
}

func (r *recordingObserver) InstanceRemoved(name string, tables map[bgpfamily.Family]*rib.Table) {
	r.removed = append(r.removed, name)
}

func TestInstanceObserver_NotifiedOnAddAndRemove(t *testing.T) {
	s := NewServer(testConfig(), zap.NewNop())
	obs := &recordingObserver{}
	s.AddInstanceObserver(obs)

	ri := &config.RoutingInstanceConfig{Name: "vrf-a"}
	s.ApplyConfigDelta([]config.ConfigDelta{{Kind: config.DeltaAdd, Object: config.ObjectRoutingInstance, RoutingInstance: ri}})
	if len(obs.added) != 1 || obs.added[0] != "vrf-a" {
		t.Fatalf("added = %+v, want [vrf-a]", obs.added)
	}

	s.ApplyConfigDelta([]config.ConfigDelta{{Kind: config.DeltaDelete, Object: config.ObjectRoutingInstance, RoutingInstance: ri}})
	if len(obs.removed) != 1 || obs.removed[0] != "vrf-a" {
		t.Fatalf("removed = %+v, want [vrf-a]", obs.removed)
	}
}

func TestFamilyFromName(t *testing.T) {
	if _, ok := familyFromName("bogus"); ok {
		t.Fatal("familyFromName accepted an unknown name")
	}
	if f, ok := familyFromName(bgpfamily.FamilyL3VPN.String()); !ok || f != bgpfamily.FamilyL3VPN {
		t.Fatalf("familyFromName(%q) = %v, %v", bgpfamily.FamilyL3VPN.String(), f, ok)
	}
}
