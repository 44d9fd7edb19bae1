// Package rtargetmgr implements the in-memory route-target inverted index:
// RouteTarget → {importing tables, interested peers}, backing both the
// route replicator's fan-out lookups and RT constrained-route-distribution
// (RFC 4684) peer interest.
package rtargetmgr

import (
	"fmt"
	"sort"
	"sync"

	"github.com/route-beacon/bgp-control/internal/bgpfamily"
)

// group is the per-route-target bucket of the inverted index.
type group struct {
	tables map[string]struct{}
	peers  map[string]struct{}
}

func newGroup() *group {
	return &group{tables: make(map[string]struct{}), peers: make(map[string]struct{})}
}

// Manager is the process-wide route-target inverted index. All methods are
// safe for concurrent use.
type Manager struct {
	mu     sync.RWMutex
	groups map[bgpfamily.RouteTarget]*group
	// tableTargets/peerTargets let RemoveTable/RemovePeer remove exactly the
	// memberships a prior ImportTable/RegisterPeerInterest call added, without the caller
	// having to remember the target list itself.
	tableTargets map[string]map[bgpfamily.RouteTarget]struct{}
	peerTargets  map[string]map[bgpfamily.RouteTarget]struct{}
}

// NewManager constructs an empty Manager.
func NewManager() *Manager {
	return &Manager{
		groups:       make(map[bgpfamily.RouteTarget]*group),
		tableTargets: make(map[string]map[bgpfamily.RouteTarget]struct{}),
		peerTargets:  make(map[string]map[bgpfamily.RouteTarget]struct{}),
	}
}

func (m *Manager) groupFor(rt bgpfamily.RouteTarget) *group {
	g, ok := m.groups[rt]
	if !ok {
		g = newGroup()
		m.groups[rt] = g
	}
	return g
}

// ImportTable records that table imports each of targets, replacing
// whatever import set it previously had.
func (m *Manager) ImportTable(table string, targets []bgpfamily.RouteTarget) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unlockedRemoveTable(table)
	set := make(map[bgpfamily.RouteTarget]struct{}, len(targets))
	for _, rt := range targets {
		m.groupFor(rt).tables[table] = struct{}{}
		set[rt] = struct{}{}
	}
	m.tableTargets[table] = set
}

// RemoveTable drops all import memberships for table.
func (m *Manager) RemoveTable(table string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unlockedRemoveTable(table)
}

func (m *Manager) unlockedRemoveTable(table string) {
	for rt := range m.tableTargets[table] {
		if g, ok := m.groups[rt]; ok {
			delete(g.tables, table)
			m.pruneLocked(rt, g)
		}
	}
	delete(m.tableTargets, table)
}

// RegisterPeerInterest records that peer is interested in each of targets
// (RT constrained-route-distribution advertisements it sent), replacing
// whatever interest set it previously had.
func (m *Manager) RegisterPeerInterest(peer string, targets []bgpfamily.RouteTarget) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unlockedRemovePeer(peer)
	set := make(map[bgpfamily.RouteTarget]struct{}, len(targets))
	for _, rt := range targets {
		m.groupFor(rt).peers[peer] = struct{}{}
		set[rt] = struct{}{}
	}
	m.peerTargets[peer] = set
}

// RemovePeer drops all interest memberships for peer.
func (m *Manager) RemovePeer(peer string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unlockedRemovePeer(peer)
}

func (m *Manager) unlockedRemovePeer(peer string) {
	for rt := range m.peerTargets[peer] {
		if g, ok := m.groups[rt]; ok {
			delete(g.peers, peer)
			m.pruneLocked(rt, g)
		}
	}
	delete(m.peerTargets, peer)
}

func (m *Manager) pruneLocked(rt bgpfamily.RouteTarget, g *group) {
	if len(g.tables) == 0 && len(g.peers) == 0 {
		delete(m.groups, rt)
	}
}

// TablesImporting returns the tables currently importing rt, for the route
// replicator's fan-out.
func (m *Manager) TablesImporting(rt bgpfamily.RouteTarget) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.groups[rt]
	if !ok {
		return nil
	}
	return sortedKeys(g.tables)
}

// PeersInterested returns the peers currently interested in rt.
func (m *Manager) PeersInterested(rt bgpfamily.RouteTarget) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.groups[rt]
	if !ok {
		return nil
	}
	return sortedKeys(g.peers)
}

// DestinationTables returns the union of tables importing any of targets,
// deduplicated, excluding srcTable itself.
func (m *Manager) DestinationTables(srcTable string, targets []bgpfamily.RouteTarget) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[string]struct{})
	for _, rt := range targets {
		g, ok := m.groups[rt]
		if !ok {
			continue
		}
		for tbl := range g.tables {
			if tbl == srcTable {
				continue
			}
			seen[tbl] = struct{}{}
		}
	}
	return sortedKeys(seen)
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Entry is one row of a paginated Query result.
type Entry struct {
	RouteTarget bgpfamily.RouteTarget
	Tables      []string
	Peers       []string
}

// Query returns up to limit entries ordered by route-target string form,
// starting after cursor (exclusive), plus the cursor to resume from for the
// next page ("" once exhausted). Exposed for operational tooling.
func (m *Manager) Query(cursor string, limit int) ([]Entry, string) {
	if limit <= 0 {
		limit = 100
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	type keyed struct {
		rt  bgpfamily.RouteTarget
		key string
	}
	all := make([]keyed, 0, len(m.groups))
	for rt := range m.groups {
		all = append(all, keyed{rt: rt, key: rt.String()})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].key < all[j].key })

	start := 0
	if cursor != "" {
		start = sort.Search(len(all), func(i int) bool { return all[i].key > cursor })
	}

	var out []Entry
	next := ""
	for i := start; i < len(all) && len(out) < limit; i++ {
		g := m.groups[all[i].rt]
		out = append(out, Entry{
			RouteTarget: all[i].rt,
			Tables:      sortedKeys(g.tables),
			Peers:       sortedKeys(g.peers),
		})
		if len(out) == limit && i+1 < len(all) {
			next = all[i].key
		}
	}
	return out, next
}

// String is a debug helper rendering the index size.
func (m *Manager) String() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fmt.Sprintf("rtargetmgr.Manager{targets=%d tables=%d peers=%d}", len(m.groups), len(m.tableTargets), len(m.peerTargets))
}
