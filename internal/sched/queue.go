package sched

import "sync"

// UpdateEntry is one packed outbound message queued for a RibOut's peers.
type UpdateEntry struct {
	Data []byte
}

// marker records, for a point in an UpdateQueue, which peers are still
// behind it: its members bitset identifies which peers are still behind
// that marker.
type marker struct {
	members map[PeerIndex]struct{}
}

func newMarker(peers []PeerIndex) *marker {
	m := &marker{members: make(map[PeerIndex]struct{}, len(peers))}
	for _, p := range peers {
		m.members[p] = struct{}{}
	}
	return m
}

func (m *marker) advance(peer PeerIndex) {
	delete(m.members, peer)
}

func (m *marker) done() bool {
	return len(m.members) == 0
}

// UpdateQueue is one priority queue of an RibOut — either QBULK (initial
// sync) or QUPDATE (incremental). Entries are appended at the tail; a
// per-peer marker tracks how far each peer has replayed.
type UpdateQueue struct {
	mu      sync.Mutex
	entries []UpdateEntry
	tail    *marker
	// position[peer] is the next unread index in entries for that peer.
	position map[PeerIndex]int
}

func newUpdateQueue() *UpdateQueue {
	return &UpdateQueue{position: make(map[PeerIndex]int)}
}

// Append adds an entry to the tail of the queue.
func (q *UpdateQueue) Append(e UpdateEntry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = append(q.entries, e)
}

// JoinAt registers peer at the queue's current tail, so it only replays
// entries appended from this point forward.
func (q *UpdateQueue) JoinAt(peer PeerIndex) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.position[peer] = len(q.entries)
}

// JoinAtHead registers peer at the queue's head, so a QBULK fill replays
// every entry currently queued (used for Register's initial sync).
func (q *UpdateQueue) JoinAtHead(peer PeerIndex) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.position[peer] = 0
}

// Leave removes peer's position tracking, discarding any queued updates
// still pending for it: subsequent queued updates are discarded once the
// peer is unregistered.
func (q *UpdateQueue) Leave(peer PeerIndex) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.position, peer)
}

// Pending returns the entries peer has not yet replayed, and advances its
// position past them (the caller is expected to actually send them; if
// sending stops partway the caller should re-JoinAt the stopping point).
func (q *UpdateQueue) Pending(peer PeerIndex) []UpdateEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	pos, ok := q.position[peer]
	if !ok || pos >= len(q.entries) {
		return nil
	}
	out := append([]UpdateEntry(nil), q.entries[pos:]...)
	q.position[peer] = len(q.entries)
	return out
}

// PendingUpTo returns entries in [position[peer], upto) without advancing
// past upto if the caller only wants a bounded replay — e.g. replaying a
// peer's pending updates only up to the head marker.
func (q *UpdateQueue) PendingUpTo(peer PeerIndex, upto int) []UpdateEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	pos, ok := q.position[peer]
	if !ok {
		pos = 0
	}
	if upto > len(q.entries) {
		upto = len(q.entries)
	}
	if pos >= upto {
		return nil
	}
	out := append([]UpdateEntry(nil), q.entries[pos:upto]...)
	q.position[peer] = upto
	return out
}

// Len returns the current tail index, usable as an "upto" bound for
// PendingUpTo.
func (q *UpdateQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// PeekPending returns the entries peer has not yet replayed without
// advancing its position; pair with Advance once the caller knows how many
// were actually sent (a peer can block partway through).
func (q *UpdateQueue) PeekPending(peer PeerIndex) []UpdateEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	pos, ok := q.position[peer]
	if !ok || pos >= len(q.entries) {
		return nil
	}
	return append([]UpdateEntry(nil), q.entries[pos:]...)
}

// Advance moves peer's position forward by n entries.
func (q *UpdateQueue) Advance(peer PeerIndex, n int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.position[peer] += n
}

// WorkKind distinguishes the two item shapes a SchedulingGroup's work
// queue carries.
type WorkKind int

const (
	WorkRibOut WorkKind = iota
	WorkPeer
)

// QueueID selects which of a RibOut's two priority queues a WorkRibOut item
// refers to.
type QueueID int

const (
	QBulk QueueID = iota
	QUpdate
)

// WorkItem is one FIFO entry on a SchedulingGroup's work queue.
type WorkItem struct {
	Kind    WorkKind
	RibOut  *RibOut // set when Kind == WorkRibOut
	QueueID QueueID
	Peer    PeerIndex // set when Kind == WorkPeer
	valid   bool
}

// newRibOutWork builds a valid WorkRibOut item.
func newRibOutWork(ro *RibOut, qid QueueID) *WorkItem {
	return &WorkItem{Kind: WorkRibOut, RibOut: ro, QueueID: qid, valid: true}
}

// newPeerWork builds a valid WorkPeer item.
func newPeerWork(peer PeerIndex) *WorkItem {
	return &WorkItem{Kind: WorkPeer, Peer: peer, valid: true}
}
