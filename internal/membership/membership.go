// Package membership implements Peer Membership: binding a peer to a table
// under an export policy, assigning it a dense index in the RibOut's peer
// bitset, attaching it to the RibOut's SchedulingGroup, and scheduling its
// initial QBULK sync fill.
package membership

import (
	"net"
	"sync"

	"github.com/route-beacon/bgp-control/internal/bgpfamily"
	"github.com/route-beacon/bgp-control/internal/bgpproto"
	"github.com/route-beacon/bgp-control/internal/rib"
	"github.com/route-beacon/bgp-control/internal/sched"
	"go.uber.org/zap"
)

type registrationKey struct {
	peer  string
	table string
}

// Manager tracks peer registrations to per-table RibOuts and keeps each
// attached table's QBULK snapshot and QUPDATE feed populated from the
// table's best-path stream. A Manager is single-threaded by way of its own
// mutex, matching the single-threaded peer-membership task it models.
type Manager struct {
	logger   *zap.Logger
	registry *sched.Registry
	groups   *sched.Manager
	mtu      int

	mu             sync.Mutex
	peerIndex      map[string]sched.PeerIndex
	nextIndex      sched.PeerIndex
	seeded         map[*sched.RibOut]bool
	ribOutsByTable map[string]map[*sched.RibOut]struct{}
	tableListeners map[string]rib.ListenerID
	registrations  map[registrationKey]*sched.RibOut
}

// NewManager constructs a Manager. mtu bounds the size of each encoded
// UPDATE message it appends to a RibOut's queues; 0 defaults to 4096.
func NewManager(logger *zap.Logger, registry *sched.Registry, groups *sched.Manager, mtu int) *Manager {
	if mtu <= 0 {
		mtu = 4096
	}
	return &Manager{
		logger:         logger,
		registry:       registry,
		groups:         groups,
		mtu:            mtu,
		peerIndex:      make(map[string]sched.PeerIndex),
		seeded:         make(map[*sched.RibOut]bool),
		ribOutsByTable: make(map[string]map[*sched.RibOut]struct{}),
		tableListeners: make(map[string]rib.ListenerID),
		registrations:  make(map[registrationKey]*sched.RibOut),
	}
}

// Register locates or creates the RibOut for (table, policy), assigns peer
// a bitset index the first time it is seen, joins it to the RibOut's
// SchedulingGroup, and arranges for it to replay the table's current
// best-path snapshot (QBULK) followed by future changes (QUPDATE).
func (m *Manager) Register(peer string, table *rib.Table, policy sched.ExportPolicy) *sched.RibOut {
	m.mu.Lock()
	idx := m.indexForLocked(peer)
	ribout := m.registry.Locate(table.Name, policy)
	m.attachTableLocked(table, ribout)
	firstForPolicy := !m.seeded[ribout]
	m.seeded[ribout] = true
	m.registrations[registrationKey{peer, table.Name}] = ribout
	m.mu.Unlock()

	if firstForPolicy {
		m.seedBulk(table, ribout)
	}

	m.groups.Join(ribout, idx)
	ribout.QBulk.JoinAtHead(idx)
	ribout.QUpdate.JoinAt(idx)
	sched.NotifyRibOutReady(ribout, sched.QBulk)

	m.logger.Info("peer registered",
		zap.String("peer", peer), zap.String("table", table.Name), zap.Int("peer_index", int(idx)))
	return ribout
}

// Unregister removes peer from the RibOut it holds for table, tearing down
// its QBULK/QUPDATE state and leaving the SchedulingGroup (which may
// trigger a split).
func (m *Manager) Unregister(peer string, table *rib.Table) {
	m.mu.Lock()
	key := registrationKey{peer, table.Name}
	ribout, ok := m.registrations[key]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.registrations, key)
	idx, hasIdx := m.peerIndex[peer]
	m.mu.Unlock()
	if !hasIdx {
		return
	}

	ribout.QBulk.Leave(idx)
	ribout.QUpdate.Leave(idx)
	m.groups.Leave(ribout, idx)

	m.logger.Info("peer unregistered", zap.String("peer", peer), zap.String("table", table.Name))
}

// IndexFor returns the dense PeerIndex assigned to peer, if it has
// registered at least once. Exposed so a composition layer can address
// NotifyReady/NotifyRibOutReady calls without tracking its own copy of the
// assignment.
func (m *Manager) IndexFor(peer string) (sched.PeerIndex, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx, ok := m.peerIndex[peer]
	return idx, ok
}

func (m *Manager) indexForLocked(peer string) sched.PeerIndex {
	if idx, ok := m.peerIndex[peer]; ok {
		return idx
	}
	idx := m.nextIndex
	m.nextIndex++
	m.peerIndex[peer] = idx
	return idx
}

// attachTableLocked records ribout as interested in table and, the first
// time any RibOut attaches to this table, registers a best-path listener
// that fans every change out to every attached RibOut's QUPDATE. Caller
// must hold m.mu.
func (m *Manager) attachTableLocked(table *rib.Table, ribout *sched.RibOut) {
	set, ok := m.ribOutsByTable[table.Name]
	if !ok {
		set = make(map[*sched.RibOut]struct{})
		m.ribOutsByTable[table.Name] = set
	}
	set[ribout] = struct{}{}

	if _, ok := m.tableListeners[table.Name]; ok {
		return
	}
	lid := table.RegisterListener(func(n rib.Notification) { m.onChange(table, n) })
	m.tableListeners[table.Name] = lid
}

// seedBulk walks table's current contents into ribout's QBULK queue. It
// runs once per RibOut, the first time any peer registers for it.
func (m *Manager) seedBulk(table *rib.Table, ribout *sched.RibOut) {
	table.Walk(func(_ int, route *rib.Route) {
		best := route.BestPath()
		if best == nil {
			return
		}
		entry, ok := m.buildUpdate(table.Family, route.Prefix, best)
		if !ok {
			return
		}
		ribout.QBulk.Append(entry)
	})
}

// onChange is the table-wide best-path listener: one notification fans out
// to every RibOut currently attached to this table.
func (m *Manager) onChange(table *rib.Table, n rib.Notification) {
	m.mu.Lock()
	set := m.ribOutsByTable[table.Name]
	ribouts := make([]*sched.RibOut, 0, len(set))
	for ro := range set {
		ribouts = append(ribouts, ro)
	}
	m.mu.Unlock()
	if len(ribouts) == 0 {
		return
	}

	best := n.Route.BestPath()
	var entry sched.UpdateEntry
	var ok bool
	if best != nil {
		entry, ok = m.buildUpdate(table.Family, n.Route.Prefix, best)
	} else {
		entry, ok = m.buildWithdraw(table.Family, n.Route.Prefix)
	}
	if !ok {
		return
	}
	for _, ro := range ribouts {
		ro.QUpdate.Append(entry)
		sched.NotifyRibOutReady(ro, sched.QUpdate)
	}
}

// buildUpdate encodes one best-path as a single UPDATE message: native
// NLRI for the inet family the wire codec already carries natively, or
// MP_REACH_NLRI for every other family.
func (m *Manager) buildUpdate(family bgpfamily.Family, prefix bgpfamily.Prefix, path *rib.Path) (sched.UpdateEntry, bool) {
	attrs := rib.EncodeAttrs(path.Attr.Spec)
	buf := make([]byte, m.mtu)

	if family == bgpfamily.FamilyInet {
		inet, ok := prefix.(bgpfamily.InetPrefix)
		if !ok {
			return sched.UpdateEntry{}, false
		}
		msg := &bgpproto.UpdateMessage{Attributes: attrs, NLRI: []bgpfamily.InetPrefix{inet}}
		return encodeOrSkip(msg, buf)
	}

	afi, safi := family.AfiSafi()
	mpReach := bgpproto.BuildMPReachNLRI(bgpproto.MPReachNLRI{
		AFI:      uint16(afi),
		SAFI:     uint8(safi),
		NextHop:  nextHopBytes(family, path.Attr.Spec.NextHop),
		Prefixes: []bgpfamily.Prefix{prefix},
	})
	attrs = append(attrs, bgpproto.Attribute{Flags: 0x80, Code: bgpproto.AttrTypeMPReachNLRI, Value: mpReach})
	msg := &bgpproto.UpdateMessage{Attributes: attrs}
	return encodeOrSkip(msg, buf)
}

// buildWithdraw encodes one prefix withdrawal, mirroring buildUpdate's
// native-vs-MP split.
func (m *Manager) buildWithdraw(family bgpfamily.Family, prefix bgpfamily.Prefix) (sched.UpdateEntry, bool) {
	buf := make([]byte, m.mtu)

	if family == bgpfamily.FamilyInet {
		inet, ok := prefix.(bgpfamily.InetPrefix)
		if !ok {
			return sched.UpdateEntry{}, false
		}
		msg := &bgpproto.UpdateMessage{WithdrawnRoutes: []bgpfamily.InetPrefix{inet}}
		return encodeOrSkip(msg, buf)
	}

	afi, safi := family.AfiSafi()
	mpUnreach := bgpproto.BuildMPUnreachNLRI(bgpproto.MPUnreachNLRI{
		AFI:      uint16(afi),
		SAFI:     uint8(safi),
		Prefixes: []bgpfamily.Prefix{prefix},
	})
	msg := &bgpproto.UpdateMessage{Attributes: []bgpproto.Attribute{
		{Flags: 0x80, Code: bgpproto.AttrTypeMPUnreachNLRI, Value: mpUnreach},
	}}
	return encodeOrSkip(msg, buf)
}

func encodeOrSkip(msg *bgpproto.UpdateMessage, buf []byte) (sched.UpdateEntry, bool) {
	n := bgpproto.Encode(msg, buf)
	if n <= 0 {
		return sched.UpdateEntry{}, false
	}
	out := make([]byte, n)
	copy(out, buf[:n])
	return sched.UpdateEntry{Data: out}, true
}

// nextHopBytes renders a next-hop address in the wire form family's
// MP_REACH_NLRI expects: the bare address for most families, an 8-byte
// route distinguisher (conventionally all-zero) ahead of the address for
// the VPN families, per RFC 4364/4659.
func nextHopBytes(family bgpfamily.Family, ip net.IP) []byte {
	var addr []byte
	switch {
	case ip == nil:
		addr = []byte{0, 0, 0, 0}
	default:
		if v4 := ip.To4(); v4 != nil {
			addr = v4
		} else {
			addr = ip
		}
	}
	switch family {
	case bgpfamily.FamilyL3VPN, bgpfamily.FamilyInet6VPN:
		return append(make([]byte, 8), addr...)
	default:
		return addr
	}
}
