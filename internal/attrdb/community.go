package attrdb

import (
	"sort"
	"strconv"
	"strings"
)

// CommunitySpec is an uninterned COMMUNITY attribute: a set of 32-bit
// community values. Member order carries no meaning: two specs with the
// same members in any order are the same community set.
type CommunitySpec struct {
	Values []uint32
}

func (s CommunitySpec) sorted() []uint32 {
	out := append([]uint32(nil), s.Values...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	n := 0
	for i, v := range out {
		if i == 0 || v != out[n-1] {
			out[n] = v
			n++
		}
	}
	return out[:n]
}

func (s CommunitySpec) canonicalKey() string {
	var b strings.Builder
	for _, v := range s.sorted() {
		b.WriteString(strconv.FormatUint(uint64(v), 10))
		b.WriteByte(',')
	}
	return b.String()
}

// String renders communities in asn:value form, ascending.
func (s CommunitySpec) String() string {
	vals := s.sorted()
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.FormatUint(uint64(v>>16), 10) + ":" + strconv.FormatUint(uint64(v&0xffff), 10)
	}
	return strings.Join(parts, " ")
}

// Contains reports whether value is a member.
func (s CommunitySpec) Contains(value uint32) bool {
	for _, v := range s.Values {
		if v == value {
			return true
		}
	}
	return false
}

// Community is an interned, shared COMMUNITY handle.
type Community struct {
	key    string
	Values []uint32
}

// CommunityDB interns CommunitySpec values.
type CommunityDB struct {
	store *store[*Community]
}

// NewCommunityDB constructs an empty CommunityDB.
func NewCommunityDB() *CommunityDB {
	return &CommunityDB{store: newStore[*Community]()}
}

// Locate returns the canonical, refcounted Community for spec.
func (db *CommunityDB) Locate(spec CommunitySpec) *Community {
	key := spec.canonicalKey()
	return db.store.locate(key, func() *Community {
		return &Community{key: key, Values: spec.sorted()}
	})
}

// Release decrements c's refcount, reporting whether this was the last
// reference.
func (db *CommunityDB) Release(c *Community) bool {
	return db.store.release(c.key)
}

// Size reports the number of distinct community sets currently interned.
func (db *CommunityDB) Size() int { return db.store.size() }

// Append builds the community set formed by adding value to c.
func (db *CommunityDB) Append(c *Community, value uint32) *Community {
	next := append(append([]uint32(nil), c.Values...), value)
	return db.Locate(CommunitySpec{Values: next})
}
