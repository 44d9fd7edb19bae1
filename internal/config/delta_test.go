package config

import "testing"

func TestDiffNilPrevReportsEverythingAsAdd(t *testing.T) {
	next := &Config{
		RoutingInstances: []RoutingInstanceConfig{{Name: "blue", ExportTargets: []string{"target:1:1"}}},
		Peers:            []PeerConfig{{Name: "peerA", Instance: "blue"}},
		VirtualNetworks:  []VirtualNetworkConfig{{Name: "vn-blue", ID: 1}},
	}
	deltas := Diff(nil, next)
	if len(deltas) != 3 {
		t.Fatalf("Diff(nil, next) produced %d deltas, want 3", len(deltas))
	}
	for _, d := range deltas {
		if d.Kind != DeltaAdd {
			t.Fatalf("expected every delta from a nil prev to be DeltaAdd, got %v", d.Kind)
		}
	}
}

func TestDiffDetectsRemovedInstance(t *testing.T) {
	prev := &Config{RoutingInstances: []RoutingInstanceConfig{{Name: "blue"}, {Name: "pink"}}}
	next := &Config{RoutingInstances: []RoutingInstanceConfig{{Name: "blue"}}}
	deltas := Diff(prev, next)
	if len(deltas) != 1 || deltas[0].Kind != DeltaDelete || deltas[0].RoutingInstance.Name != "pink" {
		t.Fatalf("expected a single delete of pink, got %+v", deltas)
	}
}

func TestDiffDetectsChangedExportTargets(t *testing.T) {
	prev := &Config{RoutingInstances: []RoutingInstanceConfig{{Name: "blue", ExportTargets: []string{"target:1:1"}}}}
	next := &Config{RoutingInstances: []RoutingInstanceConfig{{Name: "blue", ExportTargets: []string{"target:1:2"}}}}
	deltas := Diff(prev, next)
	if len(deltas) != 1 || deltas[0].Kind != DeltaChange {
		t.Fatalf("expected a single change, got %+v", deltas)
	}
}

func TestDiffResolvesConnectionsIntoSymmetricImports(t *testing.T) {
	next := &Config{
		RoutingInstances: []RoutingInstanceConfig{
			{Name: "blue", ExportTargets: []string{"target:1:1"}},
			{Name: "pink", ExportTargets: []string{"target:1:2"}},
		},
		Connections: []ConnectionConfig{{InstanceA: "blue", InstanceB: "pink"}},
	}
	deltas := Diff(nil, next)
	var blue, pink *RoutingInstanceConfig
	for _, d := range deltas {
		if d.RoutingInstance == nil {
			continue
		}
		switch d.RoutingInstance.Name {
		case "blue":
			blue = d.RoutingInstance
		case "pink":
			pink = d.RoutingInstance
		}
	}
	if blue == nil || pink == nil {
		t.Fatalf("expected both instances in the delta set, got %+v", deltas)
	}
	if len(blue.ImportTargets) != 1 || blue.ImportTargets[0] != "target:1:2" {
		t.Fatalf("expected blue to import pink's export-target, got %+v", blue.ImportTargets)
	}
	if len(pink.ImportTargets) != 1 || pink.ImportTargets[0] != "target:1:1" {
		t.Fatalf("expected pink to import blue's export-target, got %+v", pink.ImportTargets)
	}
}

func TestDiffReportsNoDeltaWhenUnchanged(t *testing.T) {
	cfg := &Config{RoutingInstances: []RoutingInstanceConfig{{Name: "blue", ExportTargets: []string{"target:1:1"}}}}
	deltas := Diff(cfg, cfg)
	if len(deltas) != 0 {
		t.Fatalf("expected no deltas comparing a config to itself, got %+v", deltas)
	}
}
