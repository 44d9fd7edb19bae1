package rib

import (
	"testing"

	"github.com/route-beacon/bgp-control/internal/attrdb"
)

func TestSelectBestPathLocalPrefWins(t *testing.T) {
	attrDB := attrdb.NewBgpAttrDB()
	low := attrDB.Locate(attrdb.BgpAttrSpec{HasLocalPref: true, LocalPref: 100})
	high := attrDB.Locate(attrdb.BgpAttrSpec{HasLocalPref: true, LocalPref: 200})
	a := &Path{PeerRouterID: 1, Attr: low}
	b := &Path{PeerRouterID: 2, Attr: high}
	best := selectBestPath([]*Path{a, b})
	if best != b {
		t.Fatalf("expected higher local-pref path to win")
	}
}

func TestSelectBestPathShorterASPathWins(t *testing.T) {
	asdb := attrdb.NewAsPathDB()
	short := asdb.Locate(attrdb.AsPathSpec{Segments: []attrdb.AsPathSegment{{Type: attrdb.AsPathSegmentSequence, ASNs: []uint32{100}}}})
	long := asdb.Locate(attrdb.AsPathSpec{Segments: []attrdb.AsPathSegment{{Type: attrdb.AsPathSegmentSequence, ASNs: []uint32{100, 200, 300}}}})
	attrDB := attrdb.NewBgpAttrDB()
	a := &Path{PeerRouterID: 1, Attr: attrDB.Locate(attrdb.BgpAttrSpec{ASPath: short})}
	b := &Path{PeerRouterID: 2, Attr: attrDB.Locate(attrdb.BgpAttrSpec{ASPath: long})}
	if selectBestPath([]*Path{b, a}) != a {
		t.Fatalf("expected shorter AS-path to win")
	}
}

func TestSelectBestPathMEDOnlyComparedWithinSameNeighborAS(t *testing.T) {
	attrDB := attrdb.NewBgpAttrDB()
	lowMed := attrDB.Locate(attrdb.BgpAttrSpec{HasMED: true, MED: 10})
	highMed := attrDB.Locate(attrdb.BgpAttrSpec{HasMED: true, MED: 20})
	// Same neighbor AS: lower MED should win.
	a := &Path{PeerRouterID: 1, NeighborAS: 65001, Attr: lowMed}
	b := &Path{PeerRouterID: 2, NeighborAS: 65001, Attr: highMed}
	if selectBestPath([]*Path{b, a}) != a {
		t.Fatalf("expected lower-MED path to win within the same neighbor AS")
	}

	// Different neighbor AS: MED is not compared, falls through to router-id.
	c := &Path{PeerRouterID: 5, NeighborAS: 65002, Attr: highMed}
	d := &Path{PeerRouterID: 1, NeighborAS: 65001, Attr: lowMed}
	if selectBestPath([]*Path{c, d}) != d {
		t.Fatalf("expected router-id tiebreak once MED is not comparable across neighbor ASes")
	}
}

func TestSelectBestPathEBGPOverIBGP(t *testing.T) {
	attrDB := attrdb.NewBgpAttrDB()
	attr := attrDB.Locate(attrdb.BgpAttrSpec{})
	ibgp := &Path{PeerRouterID: 1, IsEBGP: false, Attr: attr}
	ebgp := &Path{PeerRouterID: 2, IsEBGP: true, Attr: attr}
	if selectBestPath([]*Path{ibgp, ebgp}) != ebgp {
		t.Fatalf("expected eBGP path to win over iBGP")
	}
}

func TestSelectBestPathFinalTiebreakIsPathID(t *testing.T) {
	attrDB := attrdb.NewBgpAttrDB()
	attr := attrDB.Locate(attrdb.BgpAttrSpec{})
	a := &Path{PeerRouterID: 1, PathID: 5, Attr: attr}
	b := &Path{PeerRouterID: 1, PathID: 2, Attr: attr}
	if selectBestPath([]*Path{a, b}) != b {
		t.Fatalf("expected lower path-id to win as the final tiebreak")
	}
}
