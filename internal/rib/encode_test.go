package rib

import (
	"net"
	"testing"

	"github.com/route-beacon/bgp-control/internal/attrdb"
	"github.com/route-beacon/bgp-control/internal/bgpproto"
)

func TestEncodeAttrsOrderAndFields(t *testing.T) {
	attrDB := attrdb.NewBgpAttrDB()
	asdb := attrdb.NewAsPathDB()
	ap := asdb.Locate(attrdb.AsPathSpec{Segments: []attrdb.AsPathSegment{{Type: attrdb.AsPathSegmentSequence, ASNs: []uint32{65001}}}})
	attr := attrDB.Locate(attrdb.BgpAttrSpec{
		Origin:       attrdb.OriginIGP,
		ASPath:       ap,
		NextHop:      net.ParseIP("10.0.0.1"),
		HasLocalPref: true,
		LocalPref:    100,
	})

	attrs := EncodeAttrs(attr.Spec)
	if attrs[0].Code != bgpproto.AttrTypeOrigin || attrs[0].Value[0] != attrdb.OriginIGP {
		t.Fatalf("expected ORIGIN first, got %+v", attrs[0])
	}
	if attrs[1].Code != bgpproto.AttrTypeASPath {
		t.Fatalf("expected AS_PATH second, got %+v", attrs[1])
	}
	if len(attrs[1].Value) != 6 || attrs[1].Value[0] != byte(attrdb.AsPathSegmentSequence) || attrs[1].Value[1] != 1 {
		t.Fatalf("unexpected AS_PATH wire form: %x", attrs[1].Value)
	}

	foundNextHop := false
	for _, a := range attrs {
		if a.Code == bgpproto.AttrTypeNextHop {
			foundNextHop = true
			if len(a.Value) != 4 || a.Value[3] != 1 {
				t.Fatalf("unexpected NEXT_HOP value %x", a.Value)
			}
		}
	}
	if !foundNextHop {
		t.Fatalf("expected a NEXT_HOP attribute")
	}
}

func TestApplyExportPolicyPrependAndCommunity(t *testing.T) {
	attrDB := attrdb.NewBgpAttrDB()
	asdb := attrdb.NewAsPathDB()
	commDB := attrdb.NewCommunityDB()
	ap := asdb.Locate(attrdb.AsPathSpec{Segments: []attrdb.AsPathSegment{{Type: attrdb.AsPathSegmentSequence, ASNs: []uint32{65001}}}})
	comm := commDB.Locate(attrdb.CommunitySpec{Values: []uint32{100}})
	base := attrDB.Locate(attrdb.BgpAttrSpec{ASPath: ap, Community: comm})

	lp := uint32(150)
	result := ApplyExportPolicy(attrDB, asdb, commDB, base, ExportPolicyOptions{
		PrependASNs:       []uint32{65010, 65020},
		AddCommunities:    []uint32{200},
		RemoveCommunities: []uint32{100},
		SetLocalPref:      &lp,
	})

	if got := result.Spec.ASPath.Spec.String(); got != "65010 65020 65001" {
		t.Fatalf("ASPath after prepend = %q, want %q", got, "65010 65020 65001")
	}
	comm := attrdb.CommunitySpec{Values: result.Spec.Community.Values}
	if comm.Contains(100) {
		t.Fatalf("expected community 100 to be removed")
	}
	if !comm.Contains(200) {
		t.Fatalf("expected community 200 to be added")
	}
	if !result.Spec.HasLocalPref || result.Spec.LocalPref != 150 {
		t.Fatalf("expected local-pref override to 150, got %+v", result.Spec)
	}
}

func TestApplyExportPolicyNoOpReturnsSameHandle(t *testing.T) {
	attrDB := attrdb.NewBgpAttrDB()
	base := attrDB.Locate(attrdb.BgpAttrSpec{Origin: attrdb.OriginIGP})
	result := ApplyExportPolicy(attrDB, nil, nil, base, ExportPolicyOptions{})
	if result != base {
		t.Fatalf("expected zero-value policy to return the same handle")
	}
}
