package rib

import (
	"encoding/binary"
	"net"
	"sort"

	"github.com/route-beacon/bgp-control/internal/attrdb"
	"github.com/route-beacon/bgp-control/internal/bgpproto"
)

// EncodeAttrs renders an interned attribute set into the wire attribute
// list BuildUpdates packs into an UPDATE message. Attribute order matches
// the wire codec's decode order so golden vectors built from one round-trip
// cleanly through the other.
func EncodeAttrs(spec attrdb.BgpAttrSpec) []bgpproto.Attribute {
	var out []bgpproto.Attribute

	out = append(out, bgpproto.Attribute{Flags: 0x40, Code: bgpproto.AttrTypeOrigin, Value: []byte{spec.Origin}})

	if spec.ASPath != nil {
		out = append(out, bgpproto.Attribute{Flags: 0x40, Code: bgpproto.AttrTypeASPath, Value: encodeASPath(spec.ASPath.Spec)})
	} else {
		out = append(out, bgpproto.Attribute{Flags: 0x40, Code: bgpproto.AttrTypeASPath, Value: nil})
	}

	if spec.NextHop != nil {
		if v4 := spec.NextHop.To4(); v4 != nil {
			out = append(out, bgpproto.Attribute{Flags: 0x40, Code: bgpproto.AttrTypeNextHop, Value: []byte(v4)})
		}
	}

	if spec.HasMED {
		v := make([]byte, 4)
		binary.BigEndian.PutUint32(v, spec.MED)
		out = append(out, bgpproto.Attribute{Flags: 0x80, Code: bgpproto.AttrTypeMED, Value: v})
	}

	if spec.HasLocalPref {
		v := make([]byte, 4)
		binary.BigEndian.PutUint32(v, spec.LocalPref)
		out = append(out, bgpproto.Attribute{Flags: 0x40, Code: bgpproto.AttrTypeLocalPref, Value: v})
	}

	if spec.AtomicAggregate {
		out = append(out, bgpproto.Attribute{Flags: 0x40, Code: bgpproto.AttrTypeAtomicAggregate, Value: nil})
	}

	if spec.HasAggregator {
		v := make([]byte, 8)
		binary.BigEndian.PutUint32(v[0:4], spec.AggregatorAS)
		if v4 := spec.AggregatorAddr.To4(); v4 != nil {
			copy(v[4:8], v4)
		}
		out = append(out, bgpproto.Attribute{Flags: 0xC0, Code: bgpproto.AttrTypeAggregator, Value: v})
	}

	if spec.Community != nil {
		v := make([]byte, 0, 4*len(spec.Community.Values))
		for _, c := range spec.Community.Values {
			b := make([]byte, 4)
			binary.BigEndian.PutUint32(b, c)
			v = append(v, b...)
		}
		out = append(out, bgpproto.Attribute{Flags: 0xC0, Code: bgpproto.AttrTypeCommunity, Value: v})
	}

	if spec.ExtCommunity != nil {
		v := make([]byte, 0, 8*len(spec.ExtCommunity.Values))
		for _, c := range spec.ExtCommunity.Values {
			v = append(v, c[:]...)
		}
		out = append(out, bgpproto.Attribute{Flags: 0xC0, Code: bgpproto.AttrTypeExtCommunity, Value: v})
	}

	if len(spec.ClusterList) > 0 {
		v := make([]byte, 0, 4*len(spec.ClusterList))
		for _, id := range spec.ClusterList {
			b := make([]byte, 4)
			binary.BigEndian.PutUint32(b, id)
			v = append(v, b...)
		}
		out = append(out, bgpproto.Attribute{Flags: 0x80, Code: bgpproto.AttrTypeClusterList, Value: v})
	}

	for _, u := range spec.Unknown {
		out = append(out, bgpproto.Attribute{Flags: u.Flags, Code: u.Code, Value: u.Value})
	}

	return out
}

// encodeASPath renders an AS_PATH spec into RFC4893 four-octet-ASN wire
// form: one segment header (type, ASN count) followed by the ASNs.
func encodeASPath(spec attrdb.AsPathSpec) []byte {
	var out []byte
	for _, seg := range spec.Segments {
		out = append(out, byte(seg.Type), byte(len(seg.ASNs)))
		for _, asn := range seg.ASNs {
			b := make([]byte, 4)
			binary.BigEndian.PutUint32(b, asn)
			out = append(out, b...)
		}
	}
	return out
}

// ExportPolicyOptions is the per-peer export-policy rewrite rule set
// routing_policy_action_test.cc exercises: AS-path prepend, community
// add/remove, and local-pref/MED override. Applied in this order so a
// prepend is visible to any later AS-path-dependent rule (there are none
// today, but the ordering is part of the contract).
type ExportPolicyOptions struct {
	PrependASNs       []uint32
	AddCommunities    []uint32
	RemoveCommunities []uint32
	SetLocalPref      *uint32
	SetMED            *uint32
	SetNextHop        net.IP
}

// IsZero reports whether opts would leave an attribute set unchanged,
// letting callers skip Locate entirely on the common no-policy path.
func (opts ExportPolicyOptions) IsZero() bool {
	return len(opts.PrependASNs) == 0 && len(opts.AddCommunities) == 0 &&
		len(opts.RemoveCommunities) == 0 && opts.SetLocalPref == nil &&
		opts.SetMED == nil && opts.SetNextHop == nil
}

// ApplyExportPolicy returns the interned attribute set that results from
// applying opts to attr, re-locating through the attribute DBs so the
// result participates in the same canonicalization and refcounting every
// other attribute set does.
func ApplyExportPolicy(attrDB *attrdb.BgpAttrDB, asPathDB *attrdb.AsPathDB, commDB *attrdb.CommunityDB, attr *attrdb.BgpAttr, opts ExportPolicyOptions) *attrdb.BgpAttr {
	if opts.IsZero() {
		return attr
	}

	spec := attr.Spec

	if len(opts.PrependASNs) > 0 {
		ap := spec.ASPath
		if ap == nil {
			ap = asPathDB.Locate(attrdb.AsPathSpec{})
		}
		for i := len(opts.PrependASNs) - 1; i >= 0; i-- {
			ap = asPathDB.Prepend(ap, opts.PrependASNs[i])
		}
		spec.ASPath = ap
	}

	if len(opts.AddCommunities) > 0 || len(opts.RemoveCommunities) > 0 {
		values := map[uint32]struct{}{}
		if spec.Community != nil {
			for _, v := range spec.Community.Values {
				values[v] = struct{}{}
			}
		}
		for _, v := range opts.RemoveCommunities {
			delete(values, v)
		}
		for _, v := range opts.AddCommunities {
			values[v] = struct{}{}
		}
		out := make([]uint32, 0, len(values))
		for v := range values {
			out = append(out, v)
		}
		sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
		spec.Community = commDB.Locate(attrdb.CommunitySpec{Values: out})
	}

	if opts.SetLocalPref != nil {
		spec.LocalPref = *opts.SetLocalPref
		spec.HasLocalPref = true
	}
	if opts.SetMED != nil {
		spec.MED = *opts.SetMED
		spec.HasMED = true
	}
	if opts.SetNextHop != nil {
		spec.NextHop = opts.SetNextHop
	}

	return attrDB.Locate(spec)
}
