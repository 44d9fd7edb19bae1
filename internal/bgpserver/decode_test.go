package bgpserver

import (
	"net"
	"testing"

	"github.com/route-beacon/bgp-control/internal/attrdb"
	"github.com/route-beacon/bgp-control/internal/bgpproto"
	"github.com/route-beacon/bgp-control/internal/rib"
)

func TestDecodeAttrsRoundTripsThroughEncodeAttrs(t *testing.T) {
	asPathDB := attrdb.NewAsPathDB()
	commDB := attrdb.NewCommunityDB()
	extCommDB := attrdb.NewExtCommunityDB()

	ap := asPathDB.Locate(attrdb.AsPathSpec{Segments: []attrdb.AsPathSegment{
		{Type: attrdb.AsPathSegmentSequence, ASNs: []uint32{65001, 65002}},
	}})
	comm := commDB.Locate(attrdb.CommunitySpec{Values: []uint32{100, 200}})

	spec := attrdb.BgpAttrSpec{
		Origin:       attrdb.OriginIGP,
		ASPath:       ap,
		NextHop:      net.ParseIP("10.0.0.1").To4(),
		HasLocalPref: true,
		LocalPref:    100,
		Community:    comm,
	}

	wire := rib.EncodeAttrs(spec)
	decoded, err := DecodeAttrs(wire, asPathDB, commDB, extCommDB)
	if err != nil {
		t.Fatalf("DecodeAttrs: %v", err)
	}

	if decoded.Origin != attrdb.OriginIGP {
		t.Errorf("Origin = %d, want IGP", decoded.Origin)
	}
	if decoded.ASPath == nil || decoded.ASPath.Spec.Length() != 2 {
		t.Errorf("ASPath = %+v, want length-2 sequence", decoded.ASPath)
	}
	if !decoded.NextHop.Equal(net.ParseIP("10.0.0.1")) {
		t.Errorf("NextHop = %v, want 10.0.0.1", decoded.NextHop)
	}
	if !decoded.HasLocalPref || decoded.LocalPref != 100 {
		t.Errorf("LocalPref = %d (has=%v), want 100", decoded.LocalPref, decoded.HasLocalPref)
	}
	if decoded.Community == nil {
		t.Fatalf("Community = nil, want a handle")
	}
	commSpec := attrdb.CommunitySpec{Values: decoded.Community.Values}
	if !commSpec.Contains(200) {
		t.Errorf("Community = %+v, want to contain 200", decoded.Community)
	}
}

func TestDecodeASPathRejectsTruncatedSegment(t *testing.T) {
	if _, err := decodeASPath([]byte{byte(attrdb.AsPathSegmentSequence), 2, 0, 0, 0}); err == nil {
		t.Fatal("expected an error decoding a truncated AS_PATH segment")
	}
}

func TestDecodeAttrsPreservesUnknownAttribute(t *testing.T) {
	asPathDB := attrdb.NewAsPathDB()
	commDB := attrdb.NewCommunityDB()
	extCommDB := attrdb.NewExtCommunityDB()

	attrs := []bgpproto.Attribute{
		{Flags: 0x40, Code: bgpproto.AttrTypeOrigin, Value: []byte{attrdb.OriginIGP}},
		{Flags: 0xC0, Code: bgpproto.AttrTypePMSITunnel, Value: []byte{1, 2, 3}},
	}
	spec, err := DecodeAttrs(attrs, asPathDB, commDB, extCommDB)
	if err != nil {
		t.Fatalf("DecodeAttrs: %v", err)
	}
	if len(spec.Unknown) != 1 || spec.Unknown[0].Code != bgpproto.AttrTypePMSITunnel {
		t.Fatalf("expected PMSI_TUNNEL preserved as unknown, got %+v", spec.Unknown)
	}
}
