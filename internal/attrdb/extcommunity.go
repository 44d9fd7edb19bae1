package attrdb

import (
	"bytes"
	"sort"
	"strings"

	"github.com/route-beacon/bgp-control/internal/bgpfamily"
)

// ExtCommunitySpec is an uninterned EXTENDED COMMUNITIES attribute: a set of
// 8-byte extended community values (route-targets, site-of-origin, and
// other typed communities). Member order carries no meaning.
type ExtCommunitySpec struct {
	Values [][8]byte
}

func (s ExtCommunitySpec) sorted() [][8]byte {
	out := append([][8]byte(nil), s.Values...)
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i][:], out[j][:]) < 0 })
	n := 0
	for i, v := range out {
		if i == 0 || v != out[n-1] {
			out[n] = v
			n++
		}
	}
	return out[:n]
}

func (s ExtCommunitySpec) canonicalKey() string {
	var b strings.Builder
	for _, v := range s.sorted() {
		b.Write(v[:])
		b.WriteByte(0)
	}
	return b.String()
}

// routeTargetSubtype is the RFC 4360 extended-community subtype byte
// identifying a route-target, shared by the 2-octet-AS, IPv4 and
// 4-octet-AS type encodings.
const routeTargetSubtype = 0x02

// RouteTargets filters the set down to the route-target sub-type values,
// as bgpfamily.RouteTarget handles, for import/export matching.
func (s ExtCommunitySpec) RouteTargets() []bgpfamily.RouteTarget {
	var out []bgpfamily.RouteTarget
	for _, v := range s.Values {
		if v[1] == routeTargetSubtype {
			out = append(out, bgpfamily.RouteTarget(v))
		}
	}
	return out
}

// ExtCommunity is an interned, shared EXTENDED COMMUNITIES handle.
type ExtCommunity struct {
	key    string
	Values [][8]byte
}

// ExtCommunityDB interns ExtCommunitySpec values.
type ExtCommunityDB struct {
	store *store[*ExtCommunity]
}

// NewExtCommunityDB constructs an empty ExtCommunityDB.
func NewExtCommunityDB() *ExtCommunityDB {
	return &ExtCommunityDB{store: newStore[*ExtCommunity]()}
}

// Locate returns the canonical, refcounted ExtCommunity for spec.
func (db *ExtCommunityDB) Locate(spec ExtCommunitySpec) *ExtCommunity {
	key := spec.canonicalKey()
	return db.store.locate(key, func() *ExtCommunity {
		return &ExtCommunity{key: key, Values: spec.sorted()}
	})
}

// Release decrements ec's refcount, reporting whether this was the last
// reference.
func (db *ExtCommunityDB) Release(ec *ExtCommunity) bool {
	return db.store.release(ec.key)
}

// Size reports the number of distinct extended-community sets interned.
func (db *ExtCommunityDB) Size() int { return db.store.size() }
