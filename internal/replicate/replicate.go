// Package replicate implements the route replicator: a process-wide
// listener on every VRF table that leaks best paths into other VRFs
// according to route-target import/export policy.
package replicate

import (
	"hash/fnv"
	"sync"

	"github.com/route-beacon/bgp-control/internal/attrdb"
	"github.com/route-beacon/bgp-control/internal/bgpfamily"
	"github.com/route-beacon/bgp-control/internal/rib"
	"github.com/route-beacon/bgp-control/internal/rtargetmgr"
	"go.uber.org/zap"
)

// TableInfo is the per-routing-instance policy the replicator needs: its
// RIB table, its route distinguisher, and its export route-targets.
type TableInfo struct {
	Table         *rib.Table
	RD            bgpfamily.RouteDistinguisher
	ExportTargets []bgpfamily.RouteTarget
}

// secondaryKey identifies one installed secondary path so repeated
// notifications for an unchanged primary route are idempotent.
type secondaryKey struct {
	srcTable string
	prefix   string
	dstTable string
}

// Replicator is the single process-wide route replicator.
type Replicator struct {
	logger    *zap.Logger
	rtmgr     *rtargetmgr.Manager
	attrDB    *attrdb.BgpAttrDB
	asPathDB  *attrdb.AsPathDB
	commDB    *attrdb.CommunityDB
	extCommDB *attrdb.ExtCommunityDB

	mu        sync.Mutex
	tables    map[string]*TableInfo
	listeners map[string]rib.ListenerID
	// installed tracks, per (src table, prefix), the set of destination
	// tables currently holding a secondary path, so a subsequent change can
	// compute a delta (install new destinations, withdraw stale ones).
	installed map[string]map[string]*attrdb.BgpAttr
}

// NewReplicator constructs a Replicator. Tables are attached with Attach.
func NewReplicator(rtmgr *rtargetmgr.Manager, attrDB *attrdb.BgpAttrDB, asPathDB *attrdb.AsPathDB, commDB *attrdb.CommunityDB, extCommDB *attrdb.ExtCommunityDB, logger *zap.Logger) *Replicator {
	return &Replicator{
		logger:    logger,
		rtmgr:     rtmgr,
		attrDB:    attrDB,
		asPathDB:  asPathDB,
		commDB:    commDB,
		extCommDB: extCommDB,
		tables:    make(map[string]*TableInfo),
		listeners: make(map[string]rib.ListenerID),
		installed: make(map[string]map[string]*attrdb.BgpAttr),
	}
}

// Attach registers a table with the replicator: records its import targets
// in the RTargetGroupManager, registers a best-path listener, and makes it
// eligible as a replication destination.
func (r *Replicator) Attach(name string, info TableInfo, importTargets []bgpfamily.RouteTarget) {
	r.mu.Lock()
	r.tables[name] = &info
	r.mu.Unlock()

	r.rtmgr.ImportTable(name, importTargets)

	id := info.Table.RegisterListener(func(n rib.Notification) {
		r.onPrimaryChange(name, n.Route)
	})
	r.mu.Lock()
	r.listeners[name] = id
	r.mu.Unlock()
}

// Detach removes a table from replication, unregistering its listener and
// its import-target membership.
func (r *Replicator) Detach(name string) {
	r.mu.Lock()
	info, ok := r.tables[name]
	id, hasListener := r.listeners[name]
	delete(r.tables, name)
	delete(r.listeners, name)
	r.mu.Unlock()
	if !ok {
		return
	}
	if hasListener {
		info.Table.UnregisterListener(id)
	}
	r.rtmgr.RemoveTable(name)
}

// onPrimaryChange propagates one changed route in a source table to every
// destination table whose import policy accepts it.
func (r *Replicator) onPrimaryChange(srcName string, route *rib.Route) {
	r.mu.Lock()
	src, ok := r.tables[srcName]
	r.mu.Unlock()
	if !ok {
		return
	}

	prefix := route.Prefix.String()
	installKey := srcName + "|" + prefix

	best := route.BestPath()
	if best == nil || best.Source == rib.SourceReplicated {
		// Route withdrawn, or this change originated from replication
		// itself (never re-replicate a secondary path).
		r.withdrawAll(installKey, route.Prefix)
		return
	}

	dstNames := r.rtmgr.DestinationTables(srcName, src.ExportTargets)

	r.mu.Lock()
	prevInstalled := r.installed[installKey]
	r.mu.Unlock()

	nextInstalled := make(map[string]*attrdb.BgpAttr, len(dstNames))
	for _, dstName := range dstNames {
		r.mu.Lock()
		dst, ok := r.tables[dstName]
		r.mu.Unlock()
		if !ok {
			continue
		}

		secondary := r.computeSecondaryAttr(best, src, dst)

		if prev, ok := prevInstalled[dstName]; ok && prev == secondary {
			// Idempotence law: unchanged secondary attribute, no re-install.
			// computeSecondaryAttr's Locate still took a fresh ref on our
			// behalf; release it since we're keeping the one already
			// installed in prevInstalled instead.
			attrdb.ReleaseAttr(r.attrDB, r.asPathDB, r.commDB, r.extCommDB, secondary)
			nextInstalled[dstName] = secondary
			continue
		}

		path := &rib.Path{
			Source:       rib.SourceReplicated,
			PeerRouterID: tableHash(srcName),
			PathID:       0,
			NeighborAS:   best.NeighborAS,
			IsEBGP:       best.IsEBGP,
			Attr:         secondary,
			SourceTable:  srcName,
			SourceRoute:  prefix,
		}
		dst.Table.AddChange(route.Prefix, path)
		nextInstalled[dstName] = secondary
	}

	// Withdraw from any destination that no longer imports the route.
	for dstName := range prevInstalled {
		if _, stillThere := nextInstalled[dstName]; stillThere {
			continue
		}
		r.mu.Lock()
		dst, ok := r.tables[dstName]
		r.mu.Unlock()
		if ok {
			dst.Table.Delete(route.Prefix, tableHash(srcName), 0)
		}
	}

	r.mu.Lock()
	if len(nextInstalled) == 0 {
		delete(r.installed, installKey)
	} else {
		r.installed[installKey] = nextInstalled
	}
	r.mu.Unlock()
}

func (r *Replicator) withdrawAll(installKey string, prefix bgpfamily.Prefix) {
	r.mu.Lock()
	prev := r.installed[installKey]
	delete(r.installed, installKey)
	r.mu.Unlock()

	srcName := installKeySrc(installKey)
	for dstName := range prev {
		r.mu.Lock()
		dst, ok := r.tables[dstName]
		r.mu.Unlock()
		if ok {
			dst.Table.Delete(prefix, tableHash(srcName), 0)
		}
	}
}

func installKeySrc(installKey string) string {
	for i := 0; i < len(installKey); i++ {
		if installKey[i] == '|' {
			return installKey[:i]
		}
	}
	return installKey
}

// computeSecondaryAttr clones the primary best-path attribute, appends the
// destination's and source's export-targets to the ext-community set, and
// sets source-rd to the source table's RD.
func (r *Replicator) computeSecondaryAttr(best *rib.Path, src, dst *TableInfo) *attrdb.BgpAttr {
	spec := best.Attr.Spec

	var values [][8]byte
	if spec.ExtCommunity != nil {
		values = append(values, spec.ExtCommunity.Values...)
	}
	for _, rt := range dst.ExportTargets {
		values = append(values, [8]byte(rt))
	}
	for _, rt := range src.ExportTargets {
		values = append(values, [8]byte(rt))
	}
	spec.ExtCommunity = r.extCommDB.Locate(attrdb.ExtCommunitySpec{Values: values})
	spec.SourceRD = src.RD
	spec.HasSourceRD = true

	return r.attrDB.Locate(spec)
}

func tableHash(name string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	return h.Sum32()
}
