package bgpserver

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/route-beacon/bgp-control/internal/bgpfamily"
	"github.com/route-beacon/bgp-control/internal/bgpproto"
	"github.com/route-beacon/bgp-control/internal/config"
	"github.com/route-beacon/bgp-control/internal/metrics"
	"github.com/route-beacon/bgp-control/internal/rib"
	"github.com/route-beacon/bgp-control/internal/sched"
)

// unresolvedFamilyLabel is the metric label used when an MP_REACH/
// MP_UNREACH parse failure happens before (or because) its AFI/SAFI
// resolves to no known family.
const unresolvedFamilyLabel = "unknown"

// PeerReceive decodes one framed BGP message received from peer and applies
// it to the owning routing instance's tables. The session layer is
// responsible for splitting the TCP stream on the 2-byte length field
// before calling this.
func (s *Server) PeerReceive(peer string, data []byte) error {
	msg, err := bgpproto.Decode(data)
	if err != nil {
		s.logger.Warn("malformed message dropped", zap.String("peer", peer), zap.Error(err))
		metrics.RxBadXMLTokenTotal.WithLabelValues("wire").Inc()
		return err
	}

	update, ok := msg.(*bgpproto.UpdateMessage)
	if !ok {
		// OPEN/KEEPALIVE/NOTIFICATION are the session layer's concern.
		return nil
	}

	s.mu.Lock()
	pe, ok := s.peers[peer]
	s.mu.Unlock()
	if !ok {
		return nil
	}

	inst, ok := s.lookupInstance(pe.cfg.Instance)
	if !ok {
		return nil
	}

	spec, err := DecodeAttrs(update.Attributes, s.asPathDB, s.commDB, s.extCommDB)
	if err != nil {
		s.logger.Warn("malformed attribute set dropped", zap.String("peer", peer), zap.Error(err))
		if errors.Is(err, ErrBadNextHop) {
			metrics.RxBadNexthopTotal.WithLabelValues(bgpfamily.FamilyInet.String()).Inc()
		} else {
			metrics.RxBadPrefixTotal.WithLabelValues(bgpfamily.FamilyInet.String()).Inc()
		}
		return err
	}

	basePath := rib.Path{
		Source:       rib.SourceBGP,
		PeerRouterID: pe.routerID,
		NeighborAS:   pe.cfg.ASNumber,
		IsEBGP:       pe.cfg.ASNumber != s.localAS,
	}

	if t, ok := inst.tables[bgpfamily.FamilyInet]; ok {
		p := basePath
		p.Attr = s.attrDB.Locate(spec)
		for _, prefix := range update.NLRI {
			pCopy := p
			t.AddChange(prefix, &pCopy)
		}
		for _, prefix := range update.WithdrawnRoutes {
			t.Delete(prefix, pe.routerID, 0)
		}
	}

	for _, a := range update.Attributes {
		switch a.Code {
		case bgpproto.AttrTypeMPReachNLRI:
			mp, err := bgpproto.ParseMPReachNLRI(a.Value)
			if err != nil {
				s.logger.Warn("malformed MP_REACH_NLRI dropped", zap.String("peer", peer), zap.Error(err))
				s.bumpMPParseMetric(mp.AFI, mp.SAFI, err)
				continue
			}
			family, ok := bgpfamily.FamilyFromAfiSafi(bgpfamily.AFI(mp.AFI), bgpfamily.SAFI(mp.SAFI))
			if !ok {
				continue
			}
			t, ok := inst.tables[family]
			if !ok {
				continue
			}
			mpSpec := spec
			mpSpec.NextHop = nextHopFromBytes(family, mp.NextHop)
			p := basePath
			p.Attr = s.attrDB.Locate(mpSpec)
			for _, prefix := range mp.Prefixes {
				pCopy := p
				t.AddChange(prefix, &pCopy)
			}
		case bgpproto.AttrTypeMPUnreachNLRI:
			mp, err := bgpproto.ParseMPUnreachNLRI(a.Value)
			if err != nil {
				s.logger.Warn("malformed MP_UNREACH_NLRI dropped", zap.String("peer", peer), zap.Error(err))
				s.bumpMPParseMetric(mp.AFI, mp.SAFI, err)
				continue
			}
			family, ok := bgpfamily.FamilyFromAfiSafi(bgpfamily.AFI(mp.AFI), bgpfamily.SAFI(mp.SAFI))
			if !ok {
				continue
			}
			t, ok := inst.tables[family]
			if !ok {
				continue
			}
			for _, prefix := range mp.Prefixes {
				t.Delete(prefix, pe.routerID, 0)
			}
		}
	}

	return nil
}

// bumpMPParseMetric classifies a ParseMPReachNLRI/ParseMPUnreachNLRI
// failure into the dedicated per-family counter it belongs to: an
// unresolved AFI/SAFI bumps RxBadAfiSafiTotal, a next-hop-length mismatch
// bumps RxBadNexthopTotal, and anything else (truncated attribute, bad
// prefix encoding) bumps RxBadPrefixTotal.
func (s *Server) bumpMPParseMetric(afi uint16, safi uint8, err error) {
	label := unresolvedFamilyLabel
	if family, ok := bgpfamily.FamilyFromAfiSafi(bgpfamily.AFI(afi), bgpfamily.SAFI(safi)); ok {
		label = family.String()
	}

	if errors.Is(err, bgpproto.ErrUnsupportedAfiSafi) {
		metrics.RxBadAfiSafiTotal.WithLabelValues(label).Inc()
		return
	}
	var decErr *bgpproto.DecodeError
	if errors.As(err, &decErr) && decErr.Subcode == bgpproto.SubcodeOptionalAttribError {
		metrics.RxBadNexthopTotal.WithLabelValues(label).Inc()
		return
	}
	metrics.RxBadPrefixTotal.WithLabelValues(label).Inc()
}

func (s *Server) lookupInstance(name string) (*instance, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.instances[name]
	return inst, ok
}

// PeerStateChange reports a session's FSM transition into or out of
// Established. Established registers the peer against every family it is
// configured for; Idle tears every such registration down.
func (s *Server) PeerStateChange(peer string, state PeerState) {
	s.mu.Lock()
	pe, ok := s.peers[peer]
	s.mu.Unlock()
	if !ok {
		return
	}

	switch state {
	case PeerEstablished:
		s.establishPeer(peer, pe)
	case PeerIdle:
		s.teardownPeer(peer, pe)
	}
}

// SendReady reports that peer's transport became writable again after
// blocking, letting its SchedulingGroups resume delivery.
func (s *Server) SendReady(peer string) {
	idx, ok := s.membership.IndexFor(peer)
	if !ok {
		return
	}
	s.mu.Lock()
	pe, ok := s.peers[peer]
	s.mu.Unlock()
	if !ok {
		return
	}
	groups := make(map[*sched.SchedulingGroup]struct{})
	for _, ro := range pe.ribouts {
		if g := ro.Group(); g != nil {
			groups[g] = struct{}{}
		}
	}
	for g := range groups {
		sched.NotifyReady(g, idx)
	}
}

// AttachPeer records the live transport handle the session layer opened for
// peer, used by that peer's RibOuts' SendTasks to deliver packed messages.
func (s *Server) AttachPeer(peer string, conn sched.Peer) {
	s.mu.Lock()
	pe, ok := s.peers[peer]
	if ok {
		pe.conn = conn
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	idx, ok := s.membership.IndexFor(peer)
	if !ok {
		return
	}
	s.sendTasksMu.Lock()
	defer s.sendTasksMu.Unlock()
	for _, ro := range pe.ribouts {
		if h := s.sendTasks[ro.Group()]; h != nil {
			h.task.SetPeer(idx, conn)
		}
	}
}

func (s *Server) establishPeer(peer string, pe *peerEntry) {
	inst, ok := s.lookupInstance(pe.cfg.Instance)
	if !ok {
		s.logger.Warn("peer established for unknown routing instance",
			zap.String("peer", peer), zap.String("instance", pe.cfg.Instance))
		return
	}

	policy := sched.ExportPolicy{
		Encoding:  encodingFor(pe.cfg),
		Type:      peerTypeFor(pe.cfg, s.localAS),
		ASNumber:  s.localAS,
		ClusterID: pe.cfg.ClusterID,
	}

	for _, famName := range pe.cfg.Families {
		fam, ok := familyFromName(famName)
		if !ok {
			continue
		}
		t, ok := inst.tables[fam]
		if !ok {
			continue
		}
		ro := s.membership.Register(peer, t, policy)

		s.mu.Lock()
		pe.hasIndex = true
		pe.ribouts[fam] = ro
		s.mu.Unlock()

		s.ensureSendTask(ro)

		if idx, ok := s.membership.IndexFor(peer); ok && pe.conn != nil {
			s.sendTasksMu.Lock()
			if h := s.sendTasks[ro.Group()]; h != nil {
				h.task.SetPeer(idx, pe.conn)
			}
			s.sendTasksMu.Unlock()
		}
	}

	s.mu.Lock()
	pe.state = PeerEstablished
	s.mu.Unlock()
}

func (s *Server) teardownPeer(peer string, pe *peerEntry) {
	s.mu.Lock()
	s.teardownPeerUnlocked(peer, pe)
	pe.state = PeerIdle
	s.mu.Unlock()
}

// ensureSendTask starts a SendTask for ro's current SchedulingGroup if one
// is not already running, and leaves an existing task in place if the group
// has not changed since the last call.
func (s *Server) ensureSendTask(ro *sched.RibOut) {
	group := ro.Group()
	if group == nil {
		return
	}
	s.sendTasksMu.Lock()
	defer s.sendTasksMu.Unlock()
	if _, ok := s.sendTasks[group]; ok {
		return
	}
	task := sched.NewSendTask(group)
	ctx, cancel := context.WithCancel(context.Background())
	s.sendTasks[group] = &sendTaskHandle{task: task, cancel: cancel}
	go task.Run(ctx)
}

func encodingFor(cfg config.PeerConfig) sched.Encoding {
	if cfg.IsXMPP {
		return sched.EncodingXMPP
	}
	return sched.EncodingBGP
}

func peerTypeFor(cfg config.PeerConfig, localAS uint32) sched.PeerType {
	if cfg.IsXMPP {
		return sched.PeerTypeXMPP
	}
	if cfg.ASNumber != localAS {
		return sched.PeerTypeEBGP
	}
	return sched.PeerTypeIBGP
}
