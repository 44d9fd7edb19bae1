// Package sched implements the RibOut / SchedulingGroup update scheduler:
// per-(table, export-policy) outbound fan-out, connectivity-preserving
// group merge/split, per-peer work queues, and MTU-aware message packing.
package sched

import (
	"fmt"
	"net"
	"sort"
	"strings"
	"sync"
)

// Encoding distinguishes the two outbound transports a RibOut can target.
type Encoding int

const (
	EncodingBGP Encoding = iota
	EncodingXMPP
)

// PeerType records whether a RibOut's peers are eBGP, iBGP, or XMPP agents.
type PeerType int

const (
	PeerTypeIBGP PeerType = iota
	PeerTypeEBGP
	PeerTypeXMPP
)

// ExportPolicy is the tuple identifying a RibOut: two Locate calls with
// identical policies return the same RibOut, differing in any field
// returns distinct RibOuts.
type ExportPolicy struct {
	Encoding          Encoding
	Type              PeerType
	ASNumber          uint32
	ASOverride        bool
	LLGREnabled       bool
	IPv6AddressFamily bool
	ClusterID         uint32
	NexthopOverride   net.IP
	TunnelEncapList   []string
}

// key returns a canonical string uniquely identifying this policy, used as
// the RibOut registry's lookup key.
func (p ExportPolicy) key() string {
	nh := ""
	if p.NexthopOverride != nil {
		nh = p.NexthopOverride.String()
	}
	encaps := append([]string(nil), p.TunnelEncapList...)
	sort.Strings(encaps)
	return fmt.Sprintf("enc=%d;type=%d;as=%d;asov=%t;llgr=%t;v6=%t;cluster=%d;nh=%s;encap=%s",
		p.Encoding, p.Type, p.ASNumber, p.ASOverride, p.LLGREnabled, p.IPv6AddressFamily, p.ClusterID, nh, strings.Join(encaps, ","))
}

// PeerIndex is a dense index assigned by Peer Membership into a RibOut's
// peer bitset.
type PeerIndex int

// RibOut is a per-(table, export-policy) outbound channel holding the
// ordered set of registered peer indices.
type RibOut struct {
	Table  string
	Policy ExportPolicy

	mu    sync.RWMutex
	peers map[PeerIndex]struct{}
	group *SchedulingGroup

	QBulk   *UpdateQueue
	QUpdate *UpdateQueue
}

func newRibOut(table string, policy ExportPolicy) *RibOut {
	return &RibOut{
		Table:   table,
		Policy:  policy,
		peers:   make(map[PeerIndex]struct{}),
		QBulk:   newUpdateQueue(),
		QUpdate: newUpdateQueue(),
	}
}

// Peers returns a snapshot of the RibOut's registered peer indices.
func (ro *RibOut) Peers() []PeerIndex {
	ro.mu.RLock()
	defer ro.mu.RUnlock()
	out := make([]PeerIndex, 0, len(ro.peers))
	for p := range ro.peers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (ro *RibOut) hasPeer(idx PeerIndex) bool {
	ro.mu.RLock()
	defer ro.mu.RUnlock()
	_, ok := ro.peers[idx]
	return ok
}

func (ro *RibOut) addPeer(idx PeerIndex) {
	ro.mu.Lock()
	defer ro.mu.Unlock()
	ro.peers[idx] = struct{}{}
}

func (ro *RibOut) removePeer(idx PeerIndex) {
	ro.mu.Lock()
	defer ro.mu.Unlock()
	delete(ro.peers, idx)
}

// Group returns ro's current SchedulingGroup, or nil if it has not joined
// one yet. Exposed so a composition layer can notice a merge/split moved a
// peer to a new group and retarget its SendTask accordingly.
func (ro *RibOut) Group() *SchedulingGroup { return ro.group }

// Registry locates or creates RibOuts by (table, policy) identity.
type Registry struct {
	mu      sync.Mutex
	ribouts map[string]*RibOut
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{ribouts: make(map[string]*RibOut)}
}

// Locate returns the canonical RibOut for (table, policy), creating it if
// this is the first request for that pair.
func (r *Registry) Locate(table string, policy ExportPolicy) *RibOut {
	key := table + "\x00" + policy.key()
	r.mu.Lock()
	defer r.mu.Unlock()
	if ro, ok := r.ribouts[key]; ok {
		return ro
	}
	ro := newRibOut(table, policy)
	r.ribouts[key] = ro
	return ro
}
