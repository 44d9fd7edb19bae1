// Package rib implements partitioned BGP tables: Route/Path lifecycle,
// best-path selection, and per-partition listener notification.
package rib

import (
	"sync"

	"github.com/route-beacon/bgp-control/internal/attrdb"
	"github.com/route-beacon/bgp-control/internal/bgpfamily"
)

// PathSource distinguishes a path learned from a BGP peer from one a
// secondary table received via route-target replication.
type PathSource int

const (
	SourceBGP PathSource = iota
	SourceReplicated
)

// Path is one candidate route for a prefix, as advertised by a single
// peer/source. Two paths for the same prefix from the same (PeerRouterID,
// PathID) are the same path and replace one another.
type Path struct {
	Source         PathSource
	PeerRouterID   uint32
	NeighborAS     uint32
	PathID         uint32
	IsEBGP         bool
	Attr           *attrdb.BgpAttr
	SourceTable    string // set when Source == SourceReplicated
	SourceRoute    string // prefix string of the primary route, when replicated
}

func (p *Path) identity() (uint32, uint32) { return p.PeerRouterID, p.PathID }

// RouteState is opaque per-listener bookkeeping a listener may attach to a
// Route. A route is not removed from its partition while any listener
// still has state recorded on it.
type RouteState interface{}

// Route holds every Path advertised for one prefix and the currently
// selected best path.
type Route struct {
	mu       sync.Mutex
	Prefix   bgpfamily.Prefix
	paths    []*Path
	best     *Path
	deleted  bool
	states   map[ListenerID]RouteState
}

func newRoute(prefix bgpfamily.Prefix) *Route {
	return &Route{Prefix: prefix, states: make(map[ListenerID]RouteState)}
}

// InsertPath adds or replaces a path by (PeerRouterID, PathID) identity and
// recomputes the best path. It reports true when a new path is added or the
// best path changes; replacing an existing path that does not change the
// best path reports false. It also returns the path this insert superseded
// (nil for a brand new path), whose Attr the caller must release.
func (r *Route) InsertPath(p *Path) (bool, *Path) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id1, id2 := p.identity()
	var superseded *Path
	replaced := false
	for i, existing := range r.paths {
		if e1, e2 := existing.identity(); e1 == id1 && e2 == id2 {
			superseded = existing
			r.paths[i] = p
			replaced = true
			break
		}
	}
	if !replaced {
		r.paths = append(r.paths, p)
	}
	r.deleted = false
	prevBest := r.best
	r.best = selectBestPath(r.paths)
	return !replaced || prevBest != r.best, superseded
}

// DeletePath removes the path identified by (peerRouterID, pathID). If it
// was the last path, the route is marked deleted (callers remove it from
// the partition map once listeners have released their state). Reports
// whether anything observable changed, along with the removed path whose
// Attr the caller must release.
func (r *Route) DeletePath(peerRouterID, pathID uint32) (bool, *Path) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := -1
	for i, existing := range r.paths {
		if e1, e2 := existing.identity(); e1 == peerRouterID && e2 == pathID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false, nil
	}
	removed := r.paths[idx]
	r.paths = append(r.paths[:idx], r.paths[idx+1:]...)
	if len(r.paths) == 0 {
		r.deleted = true
		r.best = nil
	} else {
		r.best = selectBestPath(r.paths)
	}
	return true, removed
}

// BestPath returns the currently selected best path, or nil if the route
// has no paths.
func (r *Route) BestPath() *Path {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.best
}

// Paths returns a snapshot of the route's current path list.
func (r *Route) Paths() []*Path {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Path, len(r.paths))
	copy(out, r.paths)
	return out
}

// IsDeleted reports whether the route currently has zero paths.
func (r *Route) IsDeleted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deleted
}

// SetState attaches listener-opaque state to the route.
func (r *Route) SetState(id ListenerID, s RouteState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[id] = s
}

// State returns the listener-opaque state previously attached, if any.
func (r *Route) State(id ListenerID) (RouteState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.states[id]
	return s, ok
}

// ClearState removes a listener's attached state.
func (r *Route) ClearState(id ListenerID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.states, id)
}

// HasListenerState reports whether any listener still has state attached,
// which pins the route in its partition even after it is marked deleted.
func (r *Route) HasListenerState() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.states) > 0
}
