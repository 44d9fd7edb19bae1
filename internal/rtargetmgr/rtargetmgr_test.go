package rtargetmgr

import (
	"fmt"
	"testing"

	"github.com/route-beacon/bgp-control/internal/bgpfamily"
)

func mustRT(t *testing.T, s string) bgpfamily.RouteTarget {
	t.Helper()
	rt, err := bgpfamily.RouteTargetFromString(s)
	if err != nil {
		t.Fatalf("RouteTargetFromString(%q): %v", s, err)
	}
	return rt
}

func TestDestinationTablesExcludesSourceAndDedups(t *testing.T) {
	m := NewManager()
	rt1 := mustRT(t, "target:100:1")
	rt2 := mustRT(t, "target:100:2")
	m.ImportTable("vrf-a.inet.0", []bgpfamily.RouteTarget{rt1})
	m.ImportTable("vrf-b.inet.0", []bgpfamily.RouteTarget{rt1, rt2})
	m.ImportTable("vrf-c.inet.0", []bgpfamily.RouteTarget{rt2})

	dst := m.DestinationTables("vrf-a.inet.0", []bgpfamily.RouteTarget{rt1, rt2})
	want := []string{"vrf-b.inet.0", "vrf-c.inet.0"}
	if len(dst) != len(want) {
		t.Fatalf("DestinationTables = %v, want %v", dst, want)
	}
	for i := range want {
		if dst[i] != want[i] {
			t.Fatalf("DestinationTables = %v, want %v", dst, want)
		}
	}
}

func TestImportTableReplacesPreviousMembership(t *testing.T) {
	m := NewManager()
	rt1 := mustRT(t, "target:100:1")
	rt2 := mustRT(t, "target:100:2")
	m.ImportTable("vrf-a.inet.0", []bgpfamily.RouteTarget{rt1})
	m.ImportTable("vrf-a.inet.0", []bgpfamily.RouteTarget{rt2})

	if tables := m.TablesImporting(rt1); len(tables) != 0 {
		t.Fatalf("expected rt1 to have no importers after replacement, got %v", tables)
	}
	if tables := m.TablesImporting(rt2); len(tables) != 1 || tables[0] != "vrf-a.inet.0" {
		t.Fatalf("TablesImporting(rt2) = %v, want [vrf-a.inet.0]", tables)
	}
}

func TestRemoveTablePrunesEmptyGroups(t *testing.T) {
	m := NewManager()
	rt := mustRT(t, "target:100:1")
	m.ImportTable("vrf-a.inet.0", []bgpfamily.RouteTarget{rt})
	m.RemoveTable("vrf-a.inet.0")

	entries, _ := m.Query("", 10)
	if len(entries) != 0 {
		t.Fatalf("expected the index to be empty after removing the only table, got %v", entries)
	}
}

func TestQueryPagination(t *testing.T) {
	m := NewManager()
	for i := 1; i <= 5; i++ {
		rt := mustRT(t, fmt.Sprintf("target:100:%d", i))
		m.ImportTable(fmt.Sprintf("vrf-%d.inet.0", i), []bgpfamily.RouteTarget{rt})
	}

	page1, cursor := m.Query("", 2)
	if len(page1) != 2 || cursor == "" {
		t.Fatalf("expected a 2-entry first page with a continuation cursor, got %d entries cursor=%q", len(page1), cursor)
	}
	page2, cursor2 := m.Query(cursor, 2)
	if len(page2) != 2 || cursor2 == "" {
		t.Fatalf("expected a 2-entry second page with a continuation cursor, got %d entries", len(page2))
	}
	page3, cursor3 := m.Query(cursor2, 2)
	if len(page3) != 1 || cursor3 != "" {
		t.Fatalf("expected a final 1-entry page with no further cursor, got %d entries cursor=%q", len(page3), cursor3)
	}
}
