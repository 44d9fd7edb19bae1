package bgpserver

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"

	"github.com/route-beacon/bgp-control/internal/attrdb"
	"github.com/route-beacon/bgp-control/internal/bgpfamily"
	"github.com/route-beacon/bgp-control/internal/bgpproto"
)

// DecodeAttrs interns a decoded UPDATE's path attributes into a
// attrdb.BgpAttrSpec, the mirror image of internal/rib.EncodeAttrs. NEXT_HOP
// (type 3) is parsed when present; callers handling an MP_REACH_NLRI
// announcement overwrite Spec.NextHop with the MP_REACH next-hop field
// themselves, since multiprotocol routes never carry a native NEXT_HOP.
//
// ErrBadNextHop distinguishes a malformed NEXT_HOP from every other
// malformed attribute, letting callers bump a dedicated metric for it.
var ErrBadNextHop = errors.New("bgpserver: malformed NEXT_HOP attribute")

func DecodeAttrs(attrs []bgpproto.Attribute, asPathDB *attrdb.AsPathDB, commDB *attrdb.CommunityDB, extCommDB *attrdb.ExtCommunityDB) (attrdb.BgpAttrSpec, error) {
	var spec attrdb.BgpAttrSpec

	for _, a := range attrs {
		switch a.Code {
		case bgpproto.AttrTypeOrigin:
			if len(a.Value) != 1 {
				return spec, fmt.Errorf("bgpserver: ORIGIN wrong length %d", len(a.Value))
			}
			spec.Origin = a.Value[0]
		case bgpproto.AttrTypeASPath:
			asp, err := decodeASPath(a.Value)
			if err != nil {
				return spec, err
			}
			spec.ASPath = asPathDB.Locate(asp)
		case bgpproto.AttrTypeNextHop:
			if len(a.Value) != 4 {
				return spec, fmt.Errorf("%w: wrong length %d", ErrBadNextHop, len(a.Value))
			}
			spec.NextHop = net.IP(append([]byte(nil), a.Value...))
		case bgpproto.AttrTypeMED:
			if len(a.Value) != 4 {
				return spec, fmt.Errorf("bgpserver: MULTI_EXIT_DISC wrong length %d", len(a.Value))
			}
			spec.MED = binary.BigEndian.Uint32(a.Value)
			spec.HasMED = true
		case bgpproto.AttrTypeLocalPref:
			if len(a.Value) != 4 {
				return spec, fmt.Errorf("bgpserver: LOCAL_PREF wrong length %d", len(a.Value))
			}
			spec.LocalPref = binary.BigEndian.Uint32(a.Value)
			spec.HasLocalPref = true
		case bgpproto.AttrTypeAtomicAggregate:
			spec.AtomicAggregate = true
		case bgpproto.AttrTypeAggregator:
			if len(a.Value) != 8 {
				return spec, fmt.Errorf("bgpserver: AGGREGATOR wrong length %d", len(a.Value))
			}
			spec.AggregatorAS = binary.BigEndian.Uint32(a.Value[0:4])
			spec.AggregatorAddr = net.IP(append([]byte(nil), a.Value[4:8]...))
			spec.HasAggregator = true
		case bgpproto.AttrTypeCommunity:
			spec.Community = commDB.Locate(decodeCommunity(a.Value))
		case bgpproto.AttrTypeExtCommunity:
			spec.ExtCommunity = extCommDB.Locate(decodeExtCommunity(a.Value))
		case bgpproto.AttrTypeClusterList:
			spec.ClusterList = decodeClusterList(a.Value)
		case bgpproto.AttrTypeMPReachNLRI, bgpproto.AttrTypeMPUnreachNLRI:
			// Consumed by the caller directly; not part of the shared
			// attribute set a route carries.
		default:
			spec.Unknown = append(spec.Unknown, attrdb.UnknownAttr{
				Flags: a.Flags,
				Code:  a.Code,
				Value: append([]byte(nil), a.Value...),
			})
		}
	}
	return spec, nil
}

// decodeASPath parses an AS_PATH value built of 4-octet-ASN segments
// (RFC 4893), the wire form internal/rib.encodeASPath produces.
func decodeASPath(value []byte) (attrdb.AsPathSpec, error) {
	var spec attrdb.AsPathSpec
	for len(value) > 0 {
		if len(value) < 2 {
			return spec, fmt.Errorf("bgpserver: AS_PATH truncated segment header")
		}
		segType := attrdb.AsPathSegmentType(value[0])
		count := int(value[1])
		value = value[2:]
		need := count * 4
		if len(value) < need {
			return spec, fmt.Errorf("bgpserver: AS_PATH truncated segment body")
		}
		seg := attrdb.AsPathSegment{Type: segType, ASNs: make([]uint32, count)}
		for i := 0; i < count; i++ {
			seg.ASNs[i] = binary.BigEndian.Uint32(value[i*4 : i*4+4])
		}
		spec.Segments = append(spec.Segments, seg)
		value = value[need:]
	}
	return spec, nil
}

func decodeCommunity(value []byte) attrdb.CommunitySpec {
	var spec attrdb.CommunitySpec
	for i := 0; i+4 <= len(value); i += 4 {
		spec.Values = append(spec.Values, binary.BigEndian.Uint32(value[i:i+4]))
	}
	return spec
}

func decodeExtCommunity(value []byte) attrdb.ExtCommunitySpec {
	var spec attrdb.ExtCommunitySpec
	for i := 0; i+8 <= len(value); i += 8 {
		var v [8]byte
		copy(v[:], value[i:i+8])
		spec.Values = append(spec.Values, v)
	}
	return spec
}

func decodeClusterList(value []byte) []uint32 {
	var out []uint32
	for i := 0; i+4 <= len(value); i += 4 {
		out = append(out, binary.BigEndian.Uint32(value[i:i+4]))
	}
	return out
}

// nextHopFromBytes parses an already-length-validated MP_REACH_NLRI
// next-hop field, the inverse of internal/membership.nextHopBytes. VPN
// families carry an 8-byte route distinguisher (conventionally all-zero)
// ahead of the address, which this strips.
func nextHopFromBytes(family bgpfamily.Family, b []byte) net.IP {
	switch family {
	case bgpfamily.FamilyL3VPN, bgpfamily.FamilyInet6VPN:
		if len(b) < 8 {
			return nil
		}
		b = b[8:]
	}
	if len(b) == 4 || len(b) == 16 {
		return net.IP(append([]byte(nil), b...))
	}
	if len(b) == 32 {
		// Global + link-local IPv6 next hop: the global address leads.
		return net.IP(append([]byte(nil), b[:16]...))
	}
	return nil
}
