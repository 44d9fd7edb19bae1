package sched

import (
	"sync"
)

// SchedulingGroup owns a set of RibOuts and the peers registered to any of
// them. Its invariant is that every pair of RibOuts in the group is
// connected, transitively, via shared peers.
type SchedulingGroup struct {
	mu      sync.Mutex
	ribouts map[*RibOut]struct{}
	peers   map[PeerIndex]struct{}
	work    chan *WorkItem
}

func newGroup() *SchedulingGroup {
	return &SchedulingGroup{
		ribouts: make(map[*RibOut]struct{}),
		peers:   make(map[PeerIndex]struct{}),
		work:    make(chan *WorkItem, 4096),
	}
}

// enqueue posts a work item without blocking; the item is dropped when the
// group's work queue is full.
func (g *SchedulingGroup) enqueue(item *WorkItem) {
	select {
	case g.work <- item:
	default:
		// Backstop: a full queue means the send task is badly behind, so
		// drop rather than block a membership-change caller indefinitely.
	}
}

// Manager owns the set of live SchedulingGroups and performs the
// connectivity-preserving merge/split on membership changes. SplitThreshold
// is the group-size ceiling at or above which Leave's split check is skipped,
// avoiding repeated expensive splits in large deployments.
type Manager struct {
	mu             sync.Mutex
	groups         map[*SchedulingGroup]struct{}
	SplitThreshold int
}

// NewManager constructs a Manager with the given split threshold (RibOut
// count at or above which Leave skips the connectivity re-check).
func NewManager(splitThreshold int) *Manager {
	if splitThreshold <= 0 {
		splitThreshold = 64
	}
	return &Manager{groups: make(map[*SchedulingGroup]struct{}), SplitThreshold: splitThreshold}
}

// Join attaches peer to ribout, merging ribout's current group (if any)
// with peer's current group (if any and different).
func (m *Manager) Join(ribout *RibOut, peer PeerIndex) *SchedulingGroup {
	m.mu.Lock()
	defer m.mu.Unlock()

	ribout.addPeer(peer)

	g := ribout.group
	if g == nil {
		g = newGroup()
		m.groups[g] = struct{}{}
		ribout.group = g
	}
	g.mu.Lock()
	g.ribouts[ribout] = struct{}{}
	g.peers[peer] = struct{}{}
	g.mu.Unlock()

	// If the peer already belongs to a different group (via some other
	// RibOut), merge the two.
	for other := range m.groups {
		if other == g {
			continue
		}
		other.mu.Lock()
		_, peerThere := other.peers[peer]
		other.mu.Unlock()
		if peerThere {
			g = m.mergeLocked(g, other)
		}
	}
	return g
}

// mergeLocked folds b's RibOuts and peers into a, repoints every RibOut's
// group pointer, drains b's work queue into a's (preserving order is only
// required within one group, not across groups), and discards b. Caller
// must hold m.mu.
func (m *Manager) mergeLocked(a, b *SchedulingGroup) *SchedulingGroup {
	if a == b {
		return a
	}
	b.mu.Lock()
	ribouts := make([]*RibOut, 0, len(b.ribouts))
	for ro := range b.ribouts {
		ribouts = append(ribouts, ro)
	}
	peers := make([]PeerIndex, 0, len(b.peers))
	for p := range b.peers {
		peers = append(peers, p)
	}
	b.mu.Unlock()

	a.mu.Lock()
	for _, ro := range ribouts {
		a.ribouts[ro] = struct{}{}
		ro.group = a
	}
	for _, p := range peers {
		a.peers[p] = struct{}{}
	}
	a.mu.Unlock()

drain:
	for {
		select {
		case item := <-b.work:
			a.enqueue(item)
		default:
			break drain
		}
	}

	delete(m.groups, b)
	return a
}

// Leave detaches peer from ribout. If the group's remaining membership
// graph is no longer connected, it is split into its connected components
// — unless the group's RibOut count is at or above SplitThreshold, in
// which case the split is skipped (split-disabled optimization).
func (m *Manager) Leave(ribout *RibOut, peer PeerIndex) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ribout.removePeer(peer)
	g := ribout.group
	if g == nil {
		return
	}

	g.mu.Lock()
	stillUsed := false
	for other := range g.ribouts {
		if other.hasPeer(peer) {
			stillUsed = true
			break
		}
	}
	if !stillUsed {
		delete(g.peers, peer)
	}
	roCount := len(g.ribouts)
	g.mu.Unlock()

	if roCount >= m.SplitThreshold {
		return
	}
	m.maybeSplit(g)
}

// maybeSplit recomputes connected components of g's RibOut/peer bipartite
// graph; if there is more than one, g is replaced by one new group per
// component. Caller must hold m.mu.
func (m *Manager) maybeSplit(g *SchedulingGroup) {
	g.mu.Lock()
	ribouts := make([]*RibOut, 0, len(g.ribouts))
	for ro := range g.ribouts {
		ribouts = append(ribouts, ro)
	}
	g.mu.Unlock()

	components := connectedComponents(ribouts)
	if len(components) <= 1 {
		return
	}

	var newGroups []*SchedulingGroup
	for _, comp := range components {
		ng := newGroup()
		m.groups[ng] = struct{}{}
		newGroups = append(newGroups, ng)
		for _, ro := range comp {
			ng.ribouts[ro] = struct{}{}
			ro.group = ng
			for _, p := range ro.Peers() {
				ng.peers[p] = struct{}{}
			}
		}
	}

drain:
	for {
		select {
		case item := <-g.work:
			if item.Kind == WorkRibOut {
				if ng := item.RibOut.group; ng != nil {
					ng.enqueue(item)
					continue
				}
			}
			if item.Kind == WorkPeer {
				redistributed := false
				for _, ng := range newGroups {
					if _, ok := ng.peers[item.Peer]; ok {
						ng.enqueue(item)
						redistributed = true
						break
					}
				}
				if redistributed {
					continue
				}
			}
			// A WorkPeer item whose peer is in no new group, or one whose
			// RibOut left the group entirely: mark invalid in place rather
			// than drop — the drainer skips invalid entries.
			item.valid = false
		default:
			break drain
		}
	}
	delete(m.groups, g)
}

// connectedComponents partitions ribouts into groups connected via shared
// peers (transitively).
func connectedComponents(ribouts []*RibOut) [][]*RibOut {
	parent := make(map[*RibOut]*RibOut, len(ribouts))
	for _, ro := range ribouts {
		parent[ro] = ro
	}
	var find func(*RibOut) *RibOut
	find = func(x *RibOut) *RibOut {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}
	union := func(a, b *RibOut) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[ra] = rb
		}
	}

	byPeer := make(map[PeerIndex][]*RibOut)
	for _, ro := range ribouts {
		for _, p := range ro.Peers() {
			byPeer[p] = append(byPeer[p], ro)
		}
	}
	for _, group := range byPeer {
		for i := 1; i < len(group); i++ {
			union(group[0], group[i])
		}
	}

	comps := make(map[*RibOut][]*RibOut)
	for _, ro := range ribouts {
		root := find(ro)
		comps[root] = append(comps[root], ro)
	}
	out := make([][]*RibOut, 0, len(comps))
	for _, c := range comps {
		out = append(out, c)
	}
	return out
}
