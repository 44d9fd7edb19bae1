package rib

import (
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"

	"github.com/route-beacon/bgp-control/internal/attrdb"
	"github.com/route-beacon/bgp-control/internal/bgpfamily"
	"go.uber.org/zap"
)

// NumPartitions is the compile-time partition count: a prefix hashes to
// exactly one partition, and every listener notification for that prefix
// is serialized within it.
const NumPartitions = 16

// operKind is the typed request-protocol operation: all table mutation
// enters through a per-partition queue rather than being applied directly
// by callers.
type operKind int

const (
	opAddChange operKind = iota
	opDelete
)

type request struct {
	op           operKind
	key          string
	prefix       bgpfamily.Prefix
	path         *Path
	peerRouterID uint32
	pathID       uint32
	barrier      chan struct{}
}

// ListenerID identifies a registered Listener within a Table.
type ListenerID uint64

// Notification describes one changed entry delivered to a listener.
type Notification struct {
	Partition int
	Route     *Route
}

// Listener receives partition-local notifications for entries whose
// contents or best path changed since its last observation.
type Listener struct {
	ID     ListenerID
	Notify func(Notification)
}

// partition owns one shard of a Table's prefix space: its own route map,
// request queue, and drain goroutine. This is the only place a partition's
// routes are mutated, enforcing a single writer per partition.
type partition struct {
	index   int
	table   *Table
	mu      sync.RWMutex
	routes  map[string]*Route
	reqCh   chan request
	closeCh chan struct{}
}

// Table is a partitioned BGP table for one (routing-instance, family) pair.
type Table struct {
	Name        string
	Family      bgpfamily.Family
	logger      *zap.Logger
	partitions  [NumPartitions]*partition
	listenerID  atomic.Uint64
	mu          sync.RWMutex
	listeners   map[ListenerID]*Listener
	releaseAttr func(*attrdb.BgpAttr)
}

// SetAttrReleaser registers the callback a partition's apply step uses to
// release the interned attribute set of a path that InsertPath superseded
// or DeletePath removed. Tables
// built without one (most tests) simply leak the handle's refcount, which
// is only wrong for a long-running process, not for a single test case.
func (t *Table) SetAttrReleaser(fn func(*attrdb.BgpAttr)) {
	t.releaseAttr = fn
}

// NewTable constructs a Table and starts its per-partition drain
// goroutines. Callers must call Close when done.
func NewTable(name string, family bgpfamily.Family, logger *zap.Logger) *Table {
	t := &Table{
		Name:      name,
		Family:    family,
		logger:    logger,
		listeners: make(map[ListenerID]*Listener),
	}
	for i := 0; i < NumPartitions; i++ {
		p := &partition{
			index:   i,
			table:   t,
			routes:  make(map[string]*Route),
			reqCh:   make(chan request, 256),
			closeCh: make(chan struct{}),
		}
		t.partitions[i] = p
		go p.run()
	}
	return t
}

// Close stops every partition's drain goroutine.
func (t *Table) Close() {
	for _, p := range t.partitions {
		close(p.closeCh)
	}
}

func partitionFor(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % NumPartitions)
}

// AddChange enqueues a path insertion/replacement for prefix. It is
// asynchronous; the mutation lands once the partition's drain goroutine
// processes it.
func (t *Table) AddChange(prefix bgpfamily.Prefix, path *Path) {
	key := prefix.String()
	p := t.partitions[partitionFor(key)]
	p.reqCh <- request{op: opAddChange, key: key, prefix: prefix, path: path}
}

// Delete enqueues a path withdrawal for prefix.
func (t *Table) Delete(prefix bgpfamily.Prefix, peerRouterID, pathID uint32) {
	key := prefix.String()
	p := t.partitions[partitionFor(key)]
	p.reqCh <- request{op: opDelete, key: key, prefix: prefix, peerRouterID: peerRouterID, pathID: pathID}
}

// AddChangeSync applies a path insertion and blocks until the owning
// partition has processed it, for callers (tests, the replicator) that need
// to observe the result immediately.
func (t *Table) AddChangeSync(prefix bgpfamily.Prefix, path *Path) {
	key := prefix.String()
	p := t.partitions[partitionFor(key)]
	p.reqCh <- request{op: opAddChange, key: key, prefix: prefix, path: path}
	barrier := make(chan struct{})
	p.reqCh <- request{key: "__sync__", barrier: barrier}
	<-barrier
}

// DeleteSync withdraws a path and blocks until the owning partition has
// processed it.
func (t *Table) DeleteSync(prefix bgpfamily.Prefix, peerRouterID, pathID uint32) {
	key := prefix.String()
	p := t.partitions[partitionFor(key)]
	p.reqCh <- request{op: opDelete, key: key, prefix: prefix, peerRouterID: peerRouterID, pathID: pathID}
	barrier := make(chan struct{})
	p.reqCh <- request{key: "__sync__", barrier: barrier}
	<-barrier
}

func (p *partition) run() {
	for {
		select {
		case <-p.closeCh:
			return
		case req := <-p.reqCh:
			p.apply(req)
		}
	}
}

func (p *partition) apply(req request) {
	if req.key == "__sync__" {
		if req.barrier != nil {
			close(req.barrier)
		}
		return
	}
	p.mu.Lock()
	route, ok := p.routes[req.key]
	if !ok {
		route = newRoute(req.prefix)
		p.routes[req.key] = route
	}
	p.mu.Unlock()

	var changed bool
	var stale *Path
	switch req.op {
	case opAddChange:
		changed, stale = route.InsertPath(req.path)
	case opDelete:
		changed, stale = route.DeletePath(req.peerRouterID, req.pathID)
	}
	if stale != nil && p.table.releaseAttr != nil && stale.Attr != nil {
		p.table.releaseAttr(stale.Attr)
	}

	if route.IsDeleted() && !route.HasListenerState() {
		p.mu.Lock()
		delete(p.routes, req.key)
		p.mu.Unlock()
	}

	if changed {
		p.table.notify(p.index, route)
	}
}

func (t *Table) notify(partitionIdx int, route *Route) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, l := range t.listeners {
		l.Notify(Notification{Partition: partitionIdx, Route: route})
	}
}

// RegisterListener adds a listener and returns its ID for later
// Unregister/RouteState calls.
func (t *Table) RegisterListener(notify func(Notification)) ListenerID {
	id := ListenerID(t.listenerID.Add(1))
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners[id] = &Listener{ID: id, Notify: notify}
	return id
}

// UnregisterListener removes a listener. It does not clear any RouteState
// the listener left behind; callers should do that first if they want
// affected routes to become eligible for removal immediately.
func (t *Table) UnregisterListener(id ListenerID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.listeners, id)
}

// Lookup returns the route for prefix, if present, along with the
// partition index it lives in.
func (t *Table) Lookup(prefix bgpfamily.Prefix) (*Route, int, bool) {
	key := prefix.String()
	idx := partitionFor(key)
	p := t.partitions[idx]
	p.mu.RLock()
	defer p.mu.RUnlock()
	r, ok := p.routes[key]
	return r, idx, ok
}

// Walk calls fn for every route currently present, across all partitions.
// fn must not block.
func (t *Table) Walk(fn func(partitionIdx int, route *Route)) {
	for i, p := range t.partitions {
		p.mu.RLock()
		routes := make([]*Route, 0, len(p.routes))
		for _, r := range p.routes {
			routes = append(routes, r)
		}
		p.mu.RUnlock()
		for _, r := range routes {
			fn(i, r)
		}
	}
}

// Drain blocks until every partition has processed everything enqueued
// before this call, used by tests that issue several async AddChange/Delete
// calls and want to observe the settled state in one wait.
func (t *Table) Drain(ctx context.Context) {
	for _, p := range t.partitions {
		barrier := make(chan struct{})
		select {
		case p.reqCh <- request{key: "__sync__", barrier: barrier}:
		case <-ctx.Done():
			return
		}
		select {
		case <-barrier:
		case <-ctx.Done():
			return
		}
	}
}
