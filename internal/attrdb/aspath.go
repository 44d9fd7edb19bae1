package attrdb

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// AsPathSegmentType distinguishes an ordered AS_SEQUENCE from an unordered
// AS_SET.
type AsPathSegmentType uint8

const (
	AsPathSegmentSequence AsPathSegmentType = 2
	AsPathSegmentSet      AsPathSegmentType = 1
)

const maxSegmentLen = 255

// AsPathSegment is one segment of an AS_PATH attribute.
type AsPathSegment struct {
	Type AsPathSegmentType
	ASNs []uint32
}

// AsPathSpec is the uninterned, caller-constructed form of an AS_PATH.
// Sequence order is significant; set order is not.
type AsPathSpec struct {
	Segments []AsPathSegment
}

// canonicalKey sorts each SET segment's members (without mutating the
// caller's slice) so that two specs differing only by set-member order
// produce the same key.
func (s AsPathSpec) canonicalKey() string {
	var b strings.Builder
	for _, seg := range s.Segments {
		b.WriteString(strconv.Itoa(int(seg.Type)))
		b.WriteByte(':')
		asns := seg.ASNs
		if seg.Type == AsPathSegmentSet {
			asns = append([]uint32(nil), seg.ASNs...)
			sort.Slice(asns, func(i, j int) bool { return asns[i] < asns[j] })
		}
		for _, asn := range asns {
			b.WriteString(strconv.FormatUint(uint64(asn), 10))
			b.WriteByte(',')
		}
		b.WriteByte(';')
	}
	return b.String()
}

// canonicalize returns a copy with SET segments sorted, matching the key
// canonicalKey computes: the form the DB actually stores, so two interned
// handles that compare equal are the same object.
func (s AsPathSpec) canonicalize() AsPathSpec {
	out := AsPathSpec{Segments: make([]AsPathSegment, len(s.Segments))}
	for i, seg := range s.Segments {
		asns := append([]uint32(nil), seg.ASNs...)
		if seg.Type == AsPathSegmentSet {
			sort.Slice(asns, func(i, j int) bool { return asns[i] < asns[j] })
		}
		out.Segments[i] = AsPathSegment{Type: seg.Type, ASNs: asns}
	}
	return out
}

// String renders the path the way a show command would: sequence ASNs
// space separated, set members brace-wrapped.
func (s AsPathSpec) String() string {
	var parts []string
	for _, seg := range s.Segments {
		strs := make([]string, len(seg.ASNs))
		for i, asn := range seg.ASNs {
			strs[i] = strconv.FormatUint(uint64(asn), 10)
		}
		if seg.Type == AsPathSegmentSet {
			parts = append(parts, fmt.Sprintf("{%s}", strings.Join(strs, ",")))
		} else {
			parts = append(parts, strs...)
		}
	}
	return strings.Join(parts, " ")
}

// Length returns the number of ASNs an AS_PATH comparison counts (used by
// best-path tiebreak 2: shorter AS-path wins). Sets contribute 1 regardless
// of member count.
func (s AsPathSpec) Length() int {
	n := 0
	for _, seg := range s.Segments {
		if seg.Type == AsPathSegmentSet {
			n++
		} else {
			n += len(seg.ASNs)
		}
	}
	return n
}

// AsPath is an interned, shared AS_PATH handle.
type AsPath struct {
	key  string
	Spec AsPathSpec
}

// AsPathDB interns AsPathSpec values.
type AsPathDB struct {
	store *store[*AsPath]
}

// NewAsPathDB constructs an empty AsPathDB.
func NewAsPathDB() *AsPathDB {
	return &AsPathDB{store: newStore[*AsPath]()}
}

// Locate returns the canonical, refcounted AsPath for spec.
func (db *AsPathDB) Locate(spec AsPathSpec) *AsPath {
	key := spec.canonicalKey()
	return db.store.locate(key, func() *AsPath {
		return &AsPath{key: key, Spec: spec.canonicalize()}
	})
}

// Release decrements ap's refcount, reporting whether this was the last
// reference.
func (db *AsPathDB) Release(ap *AsPath) bool {
	return db.store.release(ap.key)
}

// Size reports the number of distinct AS_PATHs currently interned.
func (db *AsPathDB) Size() int { return db.store.size() }

// Prepend builds the AS_PATH that results from prepending asn to ap:
// extend a leading SEQUENCE under the 255-entry cap, otherwise start a new
// one-entry SEQUENCE segment; a leading SET always gets a new SEQUENCE
// segment ahead of it.
func (db *AsPathDB) Prepend(ap *AsPath, asn uint32) *AsPath {
	var newSpec AsPathSpec
	if len(ap.Spec.Segments) > 0 && ap.Spec.Segments[0].Type == AsPathSegmentSequence && len(ap.Spec.Segments[0].ASNs) < maxSegmentLen {
		first := ap.Spec.Segments[0]
		newFirst := AsPathSegment{Type: AsPathSegmentSequence, ASNs: append([]uint32{asn}, first.ASNs...)}
		newSpec.Segments = append([]AsPathSegment{newFirst}, ap.Spec.Segments[1:]...)
	} else {
		newSpec.Segments = append([]AsPathSegment{{Type: AsPathSegmentSequence, ASNs: []uint32{asn}}}, ap.Spec.Segments...)
	}
	return db.Locate(newSpec)
}
