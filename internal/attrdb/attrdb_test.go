package attrdb

import (
	"net"
	"sync"
	"testing"

	"github.com/route-beacon/bgp-control/internal/bgpfamily"
)

func TestAsPathLocateIgnoresSetOrder(t *testing.T) {
	db := NewAsPathDB()
	a := db.Locate(AsPathSpec{Segments: []AsPathSegment{
		{Type: AsPathSegmentSequence, ASNs: []uint32{100}},
		{Type: AsPathSegmentSet, ASNs: []uint32{300, 200}},
	}})
	b := db.Locate(AsPathSpec{Segments: []AsPathSegment{
		{Type: AsPathSegmentSequence, ASNs: []uint32{100}},
		{Type: AsPathSegmentSet, ASNs: []uint32{200, 300}},
	}})
	if a != b {
		t.Fatalf("expected same interned AsPath for set differing only by member order")
	}
	if db.Size() != 1 {
		t.Fatalf("Size() = %d, want 1", db.Size())
	}
}

func TestAsPathLocateRespectsSequenceOrder(t *testing.T) {
	db := NewAsPathDB()
	a := db.Locate(AsPathSpec{Segments: []AsPathSegment{{Type: AsPathSegmentSequence, ASNs: []uint32{100, 200}}}})
	b := db.Locate(AsPathSpec{Segments: []AsPathSegment{{Type: AsPathSegmentSequence, ASNs: []uint32{200, 100}}}})
	if a == b {
		t.Fatalf("expected distinct AsPaths for different sequence order")
	}
}

func TestAsPathPrependExtendsLeadingSequence(t *testing.T) {
	db := NewAsPathDB()
	base := db.Locate(AsPathSpec{Segments: []AsPathSegment{{Type: AsPathSegmentSequence, ASNs: []uint32{200, 300}}}})
	got := db.Prepend(base, 100)
	want := []uint32{100, 200, 300}
	if len(got.Spec.Segments) != 1 || !equalUint32(got.Spec.Segments[0].ASNs, want) {
		t.Fatalf("Prepend result = %+v, want single sequence %v", got.Spec.Segments, want)
	}
}

func TestAsPathPrependAheadOfLeadingSet(t *testing.T) {
	db := NewAsPathDB()
	base := db.Locate(AsPathSpec{Segments: []AsPathSegment{{Type: AsPathSegmentSet, ASNs: []uint32{200, 300}}}})
	got := db.Prepend(base, 100)
	if len(got.Spec.Segments) != 2 {
		t.Fatalf("expected a new leading segment ahead of the set, got %+v", got.Spec.Segments)
	}
	if got.Spec.Segments[0].Type != AsPathSegmentSequence || !equalUint32(got.Spec.Segments[0].ASNs, []uint32{100}) {
		t.Fatalf("leading segment = %+v, want sequence [100]", got.Spec.Segments[0])
	}
}

func TestAsPathPrependStartsNewSegmentAt255(t *testing.T) {
	db := NewAsPathDB()
	asns := make([]uint32, maxSegmentLen)
	for i := range asns {
		asns[i] = uint32(i + 1)
	}
	base := db.Locate(AsPathSpec{Segments: []AsPathSegment{{Type: AsPathSegmentSequence, ASNs: asns}}})
	got := db.Prepend(base, 999)
	if len(got.Spec.Segments) != 2 {
		t.Fatalf("expected a new segment once the leading one is at the 255 cap, got %d segments", len(got.Spec.Segments))
	}
	if !equalUint32(got.Spec.Segments[0].ASNs, []uint32{999}) {
		t.Fatalf("new leading segment = %v, want [999]", got.Spec.Segments[0].ASNs)
	}
}

func equalUint32(a, b []uint32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestCommunityLocateIgnoresOrderAndDedups(t *testing.T) {
	db := NewCommunityDB()
	a := db.Locate(CommunitySpec{Values: []uint32{100, 200, 100}})
	b := db.Locate(CommunitySpec{Values: []uint32{200, 100}})
	if a != b {
		t.Fatalf("expected same interned Community for reordered/duplicated members")
	}
	if len(a.Values) != 2 {
		t.Fatalf("expected duplicate removed, got %v", a.Values)
	}
}

func TestExtCommunityLocateIgnoresOrderAndDedups(t *testing.T) {
	db := NewExtCommunityDB()
	rt1, err := bgpfamily.RouteTargetFromString("target:100:1")
	if err != nil {
		t.Fatal(err)
	}
	rt2, err := bgpfamily.RouteTargetFromString("target:100:2")
	if err != nil {
		t.Fatal(err)
	}
	a := db.Locate(ExtCommunitySpec{Values: [][8]byte{[8]byte(rt1), [8]byte(rt2), [8]byte(rt1)}})
	b := db.Locate(ExtCommunitySpec{Values: [][8]byte{[8]byte(rt2), [8]byte(rt1)}})
	if a != b {
		t.Fatalf("expected same interned ExtCommunity for reordered/duplicated members")
	}
	rts := ExtCommunitySpec{Values: a.Values}.RouteTargets()
	if len(rts) != 2 {
		t.Fatalf("RouteTargets() = %v, want 2 entries", rts)
	}
}

func TestBgpAttrLocateIffDiffersOnlyByReordering(t *testing.T) {
	asdb := NewAsPathDB()
	commdb := NewCommunityDB()
	attrdb := NewBgpAttrDB()

	ap := asdb.Locate(AsPathSpec{Segments: []AsPathSegment{{Type: AsPathSegmentSequence, ASNs: []uint32{65001}}}})
	c1 := commdb.Locate(CommunitySpec{Values: []uint32{100, 200}})
	c2 := commdb.Locate(CommunitySpec{Values: []uint32{200, 100}})

	specA := BgpAttrSpec{Origin: OriginIGP, ASPath: ap, NextHop: net.ParseIP("10.0.0.1"), Community: c1}
	specB := BgpAttrSpec{Origin: OriginIGP, ASPath: ap, NextHop: net.ParseIP("10.0.0.1"), Community: c2}
	a := attrdb.Locate(specA)
	b := attrdb.Locate(specB)
	if a != b {
		t.Fatalf("expected same interned BgpAttr when only the community order differs")
	}

	specC := BgpAttrSpec{Origin: OriginEGP, ASPath: ap, NextHop: net.ParseIP("10.0.0.1"), Community: c1}
	if c := attrdb.Locate(specC); c == a {
		t.Fatalf("expected a distinct BgpAttr when Origin differs")
	}
}

func TestReplaceSourceRdAndLocate(t *testing.T) {
	attrdb := NewBgpAttrDB()
	base := attrdb.Locate(BgpAttrSpec{Origin: OriginIGP, NextHop: net.ParseIP("10.0.0.1")})
	rd, err := bgpfamily.RDFromString("100:1")
	if err != nil {
		t.Fatal(err)
	}
	replaced := attrdb.ReplaceSourceRdAndLocate(base, rd)
	if !replaced.Spec.HasSourceRD || replaced.Spec.SourceRD != rd {
		t.Fatalf("ReplaceSourceRdAndLocate did not set SourceRD to %v, got %+v", rd, replaced.Spec)
	}
	if replaced == base {
		t.Fatalf("expected a distinct interned handle after changing SourceRD")
	}

	again := attrdb.ReplaceSourceRdAndLocate(base, rd)
	if again != replaced {
		t.Fatalf("expected ReplaceSourceRdAndLocate to be idempotent under Locate's interning")
	}
}

func TestBgpAttrDBConcurrentLocateReleaseConverges(t *testing.T) {
	attrdb := NewBgpAttrDB()
	spec := BgpAttrSpec{Origin: OriginIGP, NextHop: net.ParseIP("172.16.0.1")}
	const n = 1024
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			a := attrdb.Locate(spec)
			attrdb.Release(a)
		}()
	}
	wg.Wait()
	if got := attrdb.Size(); got != 0 {
		t.Fatalf("BgpAttrDB size after quiescence = %d, want 0", got)
	}
}
