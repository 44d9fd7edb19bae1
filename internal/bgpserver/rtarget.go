package bgpserver

import (
	"sync"

	"github.com/route-beacon/bgp-control/internal/bgpfamily"
	"github.com/route-beacon/bgp-control/internal/rib"
)

// rtPeerIndex tracks, for each peer router-ID, the set of route-targets it
// currently advertises interest in via RT-AD (RFC 4684). RegisterPeerInterest
// replaces a peer's whole interest set in one call, so this keeps the
// accumulated set between individual RT-AD route changes instead of
// recomputing it from scratch on every notification.
type rtPeerIndex struct {
	mu      sync.Mutex
	rtPeers map[bgpfamily.RouteTarget]map[uint32]struct{}
	peerRTs map[uint32]map[bgpfamily.RouteTarget]struct{}
}

func newRTPeerIndex() *rtPeerIndex {
	return &rtPeerIndex{
		rtPeers: make(map[bgpfamily.RouteTarget]map[uint32]struct{}),
		peerRTs: make(map[uint32]map[bgpfamily.RouteTarget]struct{}),
	}
}

// apply records that rt is currently advertised by exactly the peers in now,
// replacing whatever it previously recorded for rt. It returns the
// router-IDs whose own full interest set gained or lost rt as a result.
func (idx *rtPeerIndex) apply(rt bgpfamily.RouteTarget, now map[uint32]struct{}) []uint32 {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	prev := idx.rtPeers[rt]
	var touched []uint32
	for id := range prev {
		if _, still := now[id]; !still {
			delete(idx.peerRTs[id], rt)
			if len(idx.peerRTs[id]) == 0 {
				delete(idx.peerRTs, id)
			}
			touched = append(touched, id)
		}
	}
	for id := range now {
		if _, had := prev[id]; !had {
			set, ok := idx.peerRTs[id]
			if !ok {
				set = make(map[bgpfamily.RouteTarget]struct{})
				idx.peerRTs[id] = set
			}
			set[rt] = struct{}{}
			touched = append(touched, id)
		}
	}
	if len(now) == 0 {
		delete(idx.rtPeers, rt)
	} else {
		idx.rtPeers[rt] = now
	}
	return touched
}

// targetsFor returns a peer's current full route-target interest set.
func (idx *rtPeerIndex) targetsFor(peerRouterID uint32) []bgpfamily.RouteTarget {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	set := idx.peerRTs[peerRouterID]
	out := make([]bgpfamily.RouteTarget, 0, len(set))
	for rt := range set {
		out = append(out, rt)
	}
	return out
}

// attachRTargetListener wires inst's RTarget table to the RT group manager:
// every RT-AD advertisement or withdrawal a peer sends updates that peer's
// recorded interest, which the replicator's DestinationTables lookup and the
// operational Query surface both read from.
func (s *Server) attachRTargetListener(inst *instance) {
	t, ok := inst.tables[bgpfamily.FamilyRTarget]
	if !ok {
		return
	}
	inst.rtargetListener = t.RegisterListener(func(n rib.Notification) {
		s.onRTargetChange(n.Route)
	})
	inst.hasRTargetListener = true
}

// onRTargetChange reconciles rtPeerIndex against one RT-AD route's current
// path set and pushes the resulting interest-set changes into s.rtargets.
func (s *Server) onRTargetChange(route *rib.Route) {
	rtPrefix, ok := route.Prefix.(bgpfamily.RTargetPrefix)
	if !ok {
		return
	}

	now := make(map[uint32]struct{})
	for _, p := range route.Paths() {
		if p.Source == rib.SourceBGP {
			now[p.PeerRouterID] = struct{}{}
		}
	}

	for _, id := range s.rtInterest.apply(rtPrefix.RT, now) {
		name, ok := s.peerNameForRouterID(id)
		if !ok {
			continue
		}
		targets := s.rtInterest.targetsFor(id)
		if len(targets) == 0 {
			s.rtargets.RemovePeer(name)
		} else {
			s.rtargets.RegisterPeerInterest(name, targets)
		}
	}
}

// peerNameForRouterID reverses peerEntry.routerID back to the configured
// peer name RegisterPeerInterest/RemovePeer key on; router-IDs have no
// dedicated reverse index since interest changes are rare next to the RIB
// churn the core is tuned for.
func (s *Server) peerNameForRouterID(id uint32) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, pe := range s.peers {
		if pe.routerID == id {
			return name, true
		}
	}
	return "", false
}
