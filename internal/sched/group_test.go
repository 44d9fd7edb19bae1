package sched

import "testing"

func TestJoinMergesGroupsSharingAPeer(t *testing.T) {
	m := NewManager(64)
	reg := NewRegistry()
	ro1 := reg.Locate("inet.0", ExportPolicy{ASNumber: 1})
	ro2 := reg.Locate("inet.0", ExportPolicy{ASNumber: 2})

	g1 := m.Join(ro1, 10)
	g2 := m.Join(ro2, 20)
	if g1 == g2 {
		t.Fatalf("expected distinct groups before any shared peer")
	}

	merged := m.Join(ro2, 10)
	if merged != ro1.group || ro1.group != ro2.group {
		t.Fatalf("expected ro1 and ro2 to share one group once peer 10 joined both")
	}
}

func TestLeaveSplitsDisconnectedGroup(t *testing.T) {
	m := NewManager(64)
	reg := NewRegistry()
	ro1 := reg.Locate("inet.0", ExportPolicy{ASNumber: 1})
	ro2 := reg.Locate("inet.0", ExportPolicy{ASNumber: 2})

	m.Join(ro1, 10)
	m.Join(ro2, 10)
	m.Join(ro2, 20)
	if ro1.group != ro2.group {
		t.Fatalf("expected ro1 and ro2 in the same group before split")
	}

	// Peer 10 leaves ro1 only. ro1 then has no peers left, so nothing links
	// it to ro2 and it becomes an isolated component.
	m.Leave(ro1, 10)
	if ro1.group == ro2.group {
		t.Fatalf("expected ro1 to split into its own group once its only peer left")
	}
}

func TestLeaveSkipsSplitAboveThreshold(t *testing.T) {
	m := NewManager(1)
	reg := NewRegistry()
	ro1 := reg.Locate("inet.0", ExportPolicy{ASNumber: 1})
	ro2 := reg.Locate("inet.0", ExportPolicy{ASNumber: 2})

	m.Join(ro1, 10)
	m.Join(ro2, 10)
	// Group now has 2 RibOuts, at or above the threshold of 1: split
	// should be skipped even though removing peer 10 from ro1 disconnects
	// it.
	m.Leave(ro1, 10)
	if ro1.group != ro2.group {
		t.Fatalf("expected split to be skipped above the configured threshold")
	}
}

func TestMaybeSplitInvalidatesOrphanedWorkPeerItems(t *testing.T) {
	m := NewManager(64)
	reg := NewRegistry()
	ro1 := reg.Locate("inet.0", ExportPolicy{ASNumber: 1})
	ro2 := reg.Locate("inet.0", ExportPolicy{ASNumber: 2})
	m.Join(ro1, 10)
	m.Join(ro2, 10)
	g := ro1.group

	item := newPeerWork(999)
	g.enqueue(item)

	m.Leave(ro1, 10)

	if item.valid {
		t.Fatalf("expected a WorkPeer item for a peer absent from every split component to be invalidated")
	}
}
