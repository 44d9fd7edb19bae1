// Package bgpserver wires the core's subsystems (wire codec, attribute
// interning, RIB tables, route replicator, update scheduler, peer
// membership, RTarget group manager) into the single BgpServer the session
// layer drives: a config-delta stream on one side and the three inbound
// session calls (PeerReceive/PeerStateChange/SendReady) on the other.
package bgpserver

import (
	"fmt"
	"hash/fnv"
	"net"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/route-beacon/bgp-control/internal/attrdb"
	"github.com/route-beacon/bgp-control/internal/bgpfamily"
	"github.com/route-beacon/bgp-control/internal/config"
	"github.com/route-beacon/bgp-control/internal/membership"
	"github.com/route-beacon/bgp-control/internal/metrics"
	"github.com/route-beacon/bgp-control/internal/replicate"
	"github.com/route-beacon/bgp-control/internal/rib"
	"github.com/route-beacon/bgp-control/internal/rtargetmgr"
	"github.com/route-beacon/bgp-control/internal/sched"
)

// PeerState mirrors the two BGP FSM states the session layer reports that
// the core cares about via PeerStateChange.
type PeerState int

const (
	PeerIdle PeerState = iota
	PeerEstablished
)

// familyOrder is the canonical list of address families every routing
// instance gets a table for.
var familyOrder = []bgpfamily.Family{
	bgpfamily.FamilyInet, bgpfamily.FamilyInet6, bgpfamily.FamilyL3VPN,
	bgpfamily.FamilyInet6VPN, bgpfamily.FamilyEvpn, bgpfamily.FamilyErmVPN,
	bgpfamily.FamilyMVPN, bgpfamily.FamilyRTarget,
}

// vpnFamilies are the families route-target import/export actually applies
// to; inet/inet6/rtarget tables never participate in replication.
var vpnFamilies = []bgpfamily.Family{
	bgpfamily.FamilyL3VPN, bgpfamily.FamilyInet6VPN, bgpfamily.FamilyEvpn,
	bgpfamily.FamilyErmVPN, bgpfamily.FamilyMVPN,
}

func familyFromName(s string) (bgpfamily.Family, bool) {
	for _, f := range familyOrder {
		if f.String() == s {
			return f, true
		}
	}
	return 0, false
}

// instance is one routing-instance's table set plus its route-target
// policy.
type instance struct {
	name          string
	rd            bgpfamily.RouteDistinguisher
	tables        map[bgpfamily.Family]*rib.Table
	importTargets []bgpfamily.RouteTarget
	exportTargets []bgpfamily.RouteTarget

	rtargetListener    rib.ListenerID
	hasRTargetListener bool
}

// peerEntry is the core's view of one configured peer: its static config,
// the dense index Peer Membership assigned it, and the RibOuts it is
// currently registered against (one per negotiated family).
type peerEntry struct {
	cfg      config.PeerConfig
	routerID uint32
	state    PeerState
	conn     sched.Peer

	hasIndex bool
	index    sched.PeerIndex
	ribouts  map[bgpfamily.Family]*sched.RibOut
}

// sendTaskHandle pairs a running SendTask with the cancelFunc that stops it,
// keyed by the SchedulingGroup it drains.
type sendTaskHandle struct {
	task   *sched.SendTask
	cancel func()
}

// Server is the process-wide BGP core. One Server exists per process; it
// owns every attribute DB, RIB table, and scheduling structure as a
// process-global singleton.
type Server struct {
	logger *zap.Logger

	attrDB    *attrdb.BgpAttrDB
	asPathDB  *attrdb.AsPathDB
	commDB    *attrdb.CommunityDB
	extCommDB *attrdb.ExtCommunityDB

	registry   *sched.Registry
	groups     *sched.Manager
	membership *membership.Manager
	replicator *replicate.Replicator
	rtargets   *rtargetmgr.Manager
	rtInterest *rtPeerIndex

	localAS uint32
	mtu     int

	mu        sync.Mutex
	instances map[string]*instance
	peers     map[string]*peerEntry
	vns       map[string]config.VirtualNetworkConfig
	rdSeq     uint16

	sendTasksMu sync.Mutex
	sendTasks   map[*sched.SchedulingGroup]*sendTaskHandle

	ready atomic.Bool

	observers []InstanceObserver
}

// InstanceObserver is notified as routing instances are created and torn
// down, letting side channels (internal/audit, internal/telemetry) attach
// and detach table listeners without the core knowing either package
// exists.
type InstanceObserver interface {
	InstanceAdded(name string, tables map[bgpfamily.Family]*rib.Table)
	InstanceRemoved(name string, tables map[bgpfamily.Family]*rib.Table)
}

// AddInstanceObserver registers o to be notified of every routing instance
// add/remove from this point on. Existing instances at registration time
// are not replayed; callers that need a full picture on startup should
// register before the first ApplyConfigDelta call.
func (s *Server) AddInstanceObserver(o InstanceObserver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

// NewServer constructs a Server from static config. ApplyConfigDelta must
// be called at least once (first load's deltas) before peers register.
func NewServer(cfg *config.Config, logger *zap.Logger) *Server {
	s := &Server{
		logger:     logger,
		attrDB:     attrdb.NewBgpAttrDB(),
		asPathDB:   attrdb.NewAsPathDB(),
		commDB:     attrdb.NewCommunityDB(),
		extCommDB:  attrdb.NewExtCommunityDB(),
		registry:   sched.NewRegistry(),
		groups:     sched.NewManager(cfg.Scheduler.SplitThreshold),
		rtargets:   rtargetmgr.NewManager(),
		rtInterest: newRTPeerIndex(),
		localAS:    cfg.Service.LocalASNumber,
		mtu:        cfg.Scheduler.MTU,
		instances:  make(map[string]*instance),
		peers:      make(map[string]*peerEntry),
		vns:        make(map[string]config.VirtualNetworkConfig),
		sendTasks:  make(map[*sched.SchedulingGroup]*sendTaskHandle),
	}
	s.membership = membership.NewManager(logger, s.registry, s.groups, s.mtu)
	s.replicator = replicate.NewReplicator(s.rtargets, s.attrDB, s.asPathDB, s.commDB, s.extCommDB, logger)
	return s
}

// releaseAttr drops a superseded or withdrawn path's interned attribute set,
// cascading into its AS_PATH/community/extended-community sub-handles once
// the attribute itself has no references left. Every rib.Table this Server
// constructs is wired to call this through SetAttrReleaser.
func (s *Server) releaseAttr(a *attrdb.BgpAttr) {
	attrdb.ReleaseAttr(s.attrDB, s.asPathDB, s.commDB, s.extCommDB, a)
}

// Ready reports whether the core has applied at least one config-delta
// batch, satisfying internal/http.CoreStatus.
func (s *Server) Ready() bool { return s.ready.Load() }

// RTargetManager exposes the process-wide RTarget group manager for the
// operational query surface (internal/http's /rtarget-groups).
func (s *Server) RTargetManager() *rtargetmgr.Manager { return s.rtargets }

// ApplyConfigDelta applies a batch of config deltas, whether from first
// load or a SIGHUP-driven resync; internal/config.Diff produces identical
// Add/Change/Delete output for both.
func (s *Server) ApplyConfigDelta(deltas []config.ConfigDelta) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range deltas {
		switch d.Object {
		case config.ObjectRoutingInstance:
			s.applyRoutingInstanceLocked(d)
		case config.ObjectPeer:
			s.applyPeerLocked(d)
		case config.ObjectVirtualNetwork:
			s.applyVirtualNetworkLocked(d)
		}
	}
	s.ready.Store(true)
}

func (s *Server) applyRoutingInstanceLocked(d config.ConfigDelta) {
	ri := d.RoutingInstance
	if d.Kind == config.DeltaDelete {
		s.removeInstanceLocked(ri.Name)
		return
	}

	importRTs, err := parseRouteTargets(ri.ImportTargets)
	if err != nil {
		s.logger.Warn("routing_instance delta dropped: bad import target",
			zap.String("instance", ri.Name), zap.Error(err))
		metrics.RxBadXMLTokenTotal.WithLabelValues("routing_instance").Inc()
		return
	}
	exportRTs, err := parseRouteTargets(ri.ExportTargets)
	if err != nil {
		s.logger.Warn("routing_instance delta dropped: bad export target",
			zap.String("instance", ri.Name), zap.Error(err))
		metrics.RxBadXMLTokenTotal.WithLabelValues("routing_instance").Inc()
		return
	}

	// Change: tear down the previous table set before rebuilding, same as
	// a delete-then-add.
	if _, exists := s.instances[ri.Name]; exists {
		s.removeInstanceLocked(ri.Name)
	}

	s.rdSeq++
	rd, _ := bgpfamily.RDFromString(fmt.Sprintf("%d:%d", s.localAS, s.rdSeq))

	inst := &instance{
		name:          ri.Name,
		rd:            rd,
		tables:        make(map[bgpfamily.Family]*rib.Table),
		importTargets: importRTs,
		exportTargets: exportRTs,
	}
	for _, fam := range familyOrder {
		t := rib.NewTable(ri.Name+"."+fam.String(), fam, s.logger)
		t.SetAttrReleaser(s.releaseAttr)
		inst.tables[fam] = t
	}
	s.instances[ri.Name] = inst
	s.attachRTargetListener(inst)

	for _, fam := range vpnFamilies {
		t := inst.tables[fam]
		s.replicator.Attach(t.Name, replicate.TableInfo{Table: t, RD: rd, ExportTargets: exportRTs}, importRTs)
	}

	for _, o := range s.observers {
		o.InstanceAdded(inst.name, inst.tables)
	}
}

func (s *Server) removeInstanceLocked(name string) {
	inst, ok := s.instances[name]
	if !ok {
		return
	}
	for _, o := range s.observers {
		o.InstanceRemoved(inst.name, inst.tables)
	}
	for _, fam := range vpnFamilies {
		s.replicator.Detach(inst.tables[fam].Name)
	}
	if inst.hasRTargetListener {
		if t, ok := inst.tables[bgpfamily.FamilyRTarget]; ok {
			t.UnregisterListener(inst.rtargetListener)
		}
	}
	for _, t := range inst.tables {
		t.Close()
	}
	delete(s.instances, name)
}

func (s *Server) applyPeerLocked(d config.ConfigDelta) {
	p := d.Peer
	if d.Kind == config.DeltaDelete {
		if pe, ok := s.peers[p.Name]; ok {
			s.teardownPeerUnlocked(p.Name, pe)
			delete(s.peers, p.Name)
		}
		return
	}

	existing, existed := s.peers[p.Name]
	pe := &peerEntry{cfg: *p, routerID: routerIDFor(*p), ribouts: make(map[bgpfamily.Family]*sched.RibOut)}
	if existed {
		pe.hasIndex = existing.hasIndex
		pe.index = existing.index
		pe.conn = existing.conn
		if existing.state == PeerEstablished {
			// A changed export policy (families, cluster-id, AS override,
			// ...) needs fresh RibOut registrations; the session layer is
			// expected to re-announce PeerStateChange(Established) after a
			// config change lands, matching a session reset.
			s.teardownPeerUnlocked(p.Name, existing)
		}
	}
	s.peers[p.Name] = pe
}

// teardownPeerUnlocked unregisters peer from every RibOut it currently
// holds. Callers must already hold s.mu.
func (s *Server) teardownPeerUnlocked(peer string, pe *peerEntry) {
	inst, ok := s.instances[pe.cfg.Instance]
	if !ok {
		return
	}
	for fam := range pe.ribouts {
		t, ok := inst.tables[fam]
		if !ok {
			continue
		}
		s.membership.Unregister(peer, t)
	}
	pe.ribouts = make(map[bgpfamily.Family]*sched.RibOut)
}

func (s *Server) applyVirtualNetworkLocked(d config.ConfigDelta) {
	vn := d.VirtualNetwork
	if d.Kind == config.DeltaDelete {
		delete(s.vns, vn.Name)
		return
	}
	s.vns[vn.Name] = *vn
}

func parseRouteTargets(raw []string) ([]bgpfamily.RouteTarget, error) {
	out := make([]bgpfamily.RouteTarget, 0, len(raw))
	for _, s := range raw {
		rt, err := bgpfamily.RouteTargetFromString(s)
		if err != nil {
			return nil, err
		}
		out = append(out, rt)
	}
	return out, nil
}

// routerIDFor derives a stable 32-bit router id from a peer's configured
// identifier (an IPv4 literal) or, failing that, a hash of its name.
func routerIDFor(p config.PeerConfig) uint32 {
	if ip := net.ParseIP(p.Identifier); ip != nil {
		if v4 := ip.To4(); v4 != nil {
			return uint32(v4[0])<<24 | uint32(v4[1])<<16 | uint32(v4[2])<<8 | uint32(v4[3])
		}
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(p.Name))
	return h.Sum32()
}
