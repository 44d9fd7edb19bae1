package attrdb

import (
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"

	"github.com/route-beacon/bgp-control/internal/bgpfamily"
)

// Well-known ORIGIN values.
const (
	OriginIGP        uint8 = 0
	OriginEGP        uint8 = 1
	OriginIncomplete uint8 = 2
)

// UnknownAttr preserves an attribute this package does not model natively
// (PMSI_TUNNEL, OriginVnPath, or anything unrecognized-but-optional) so a
// path can be re-advertised without dropping data it does not understand.
type UnknownAttr struct {
	Flags uint8
	Code  uint8
	Value []byte
}

// BgpAttrSpec is the uninterned, caller-constructed set of attributes
// attached to a single best-path candidate. AsPath/Community/ExtCommunity
// are themselves interned handles from their own DBs, so a BgpAttr shares
// their storage rather than copying it.
type BgpAttrSpec struct {
	Origin          uint8
	ASPath          *AsPath
	NextHop         net.IP
	MED             uint32
	HasMED          bool
	LocalPref       uint32
	HasLocalPref    bool
	AtomicAggregate bool
	AggregatorAS    uint32
	AggregatorAddr  net.IP
	HasAggregator   bool
	Community       *Community
	ExtCommunity    *ExtCommunity
	ClusterList     []uint32
	SourceRD        bgpfamily.RouteDistinguisher
	HasSourceRD     bool
	Unknown         []UnknownAttr
}

func (s BgpAttrSpec) canonicalKey() string {
	var b strings.Builder
	fmt.Fprintf(&b, "o=%d;", s.Origin)
	if s.ASPath != nil {
		fmt.Fprintf(&b, "ap=%s;", s.ASPath.key)
	}
	if s.NextHop != nil {
		fmt.Fprintf(&b, "nh=%s;", s.NextHop.String())
	}
	if s.HasMED {
		fmt.Fprintf(&b, "med=%d;", s.MED)
	}
	if s.HasLocalPref {
		fmt.Fprintf(&b, "lp=%d;", s.LocalPref)
	}
	if s.AtomicAggregate {
		b.WriteString("atomic;")
	}
	if s.HasAggregator {
		fmt.Fprintf(&b, "agg=%d,%s;", s.AggregatorAS, s.AggregatorAddr.String())
	}
	if s.Community != nil {
		fmt.Fprintf(&b, "comm=%s;", s.Community.key)
	}
	if s.ExtCommunity != nil {
		fmt.Fprintf(&b, "extcomm=%s;", s.ExtCommunity.key)
	}
	if len(s.ClusterList) > 0 {
		cl := append([]uint32(nil), s.ClusterList...)
		b.WriteString("cl=")
		for _, id := range cl {
			b.WriteString(strconv.FormatUint(uint64(id), 10))
			b.WriteByte(',')
		}
		b.WriteByte(';')
	}
	if s.HasSourceRD {
		fmt.Fprintf(&b, "rd=%s;", s.SourceRD.String())
	}
	for _, u := range sortUnknown(s.Unknown) {
		fmt.Fprintf(&b, "u%d:%x;", u.Code, u.Value)
	}
	return b.String()
}

func sortUnknown(in []UnknownAttr) []UnknownAttr {
	out := append([]UnknownAttr(nil), in...)
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// BgpAttr is an interned, shared attribute set, the object Routes and Paths
// hold a pointer to.
type BgpAttr struct {
	key  string
	Spec BgpAttrSpec
}

// BgpAttrDB interns BgpAttrSpec values. It does not own the sub-DBs its
// callers use to build ASPath/Community/ExtCommunity handles; those are
// interned and released independently.
type BgpAttrDB struct {
	store *store[*BgpAttr]
}

// NewBgpAttrDB constructs an empty BgpAttrDB.
func NewBgpAttrDB() *BgpAttrDB {
	return &BgpAttrDB{store: newStore[*BgpAttr]()}
}

// Locate returns the canonical, refcounted BgpAttr for spec.
func (db *BgpAttrDB) Locate(spec BgpAttrSpec) *BgpAttr {
	key := spec.canonicalKey()
	return db.store.locate(key, func() *BgpAttr {
		return &BgpAttr{key: key, Spec: spec}
	})
}

// Release decrements a's refcount, reporting whether this was the last
// reference.
func (db *BgpAttrDB) Release(a *BgpAttr) bool {
	return db.store.release(a.key)
}

// Size reports the number of distinct attribute sets currently interned.
func (db *BgpAttrDB) Size() int { return db.store.size() }

// ReplaceSourceRdAndLocate returns the interned attribute set identical to
// a except that SourceRD is set to rd, used when replicating a route into
// a secondary table: the replicated path must carry the originating
// table's route distinguisher.
func (db *BgpAttrDB) ReplaceSourceRdAndLocate(a *BgpAttr, rd bgpfamily.RouteDistinguisher) *BgpAttr {
	spec := a.Spec
	spec.SourceRD = rd
	spec.HasSourceRD = true
	return db.Locate(spec)
}

// ReplaceNexthopAndLocate returns the interned attribute set identical to a
// except that NextHop is set to nh.
func (db *BgpAttrDB) ReplaceNexthopAndLocate(a *BgpAttr, nh net.IP) *BgpAttr {
	spec := a.Spec
	spec.NextHop = nh
	return db.Locate(spec)
}

// ReleaseAttr releases a and, once a itself has no remaining references,
// its ASPath/Community/ExtCommunity sub-handles in turn. Every caller that
// drops a *BgpAttr it obtained from Locate must go through this rather than
// attrDB.Release alone, or the sub-DBs never shrink.
func ReleaseAttr(attrDB *BgpAttrDB, asPathDB *AsPathDB, commDB *CommunityDB, extCommDB *ExtCommunityDB, a *BgpAttr) {
	if a == nil {
		return
	}
	if !attrDB.Release(a) {
		return
	}
	if a.Spec.ASPath != nil {
		asPathDB.Release(a.Spec.ASPath)
	}
	if a.Spec.Community != nil {
		commDB.Release(a.Spec.Community)
	}
	if a.Spec.ExtCommunity != nil {
		extCommDB.Release(a.Spec.ExtCommunity)
	}
}
