package sched

import (
	"context"
	"sync"
)

// Peer is the outbound side of a registered session: enough for a SendTask
// to deliver packed updates and learn whether the peer is still accepting
// them. SendUpdate returning false means "blocked until further notice";
// the core does not time it out itself.
type Peer interface {
	SendUpdate(data []byte) bool
}

// SendTask drains one SchedulingGroup's work queue. Only one SendTask runs
// per group at a time; many groups' SendTasks run concurrently.
type SendTask struct {
	group *SchedulingGroup

	mu      sync.Mutex
	peers   map[PeerIndex]Peer
	blocked map[PeerIndex]struct{}
}

// NewSendTask constructs a SendTask for group.
func NewSendTask(group *SchedulingGroup) *SendTask {
	return &SendTask{group: group, peers: make(map[PeerIndex]Peer), blocked: make(map[PeerIndex]struct{})}
}

// SetPeer registers the live Peer handle used to actually deliver bytes for
// a peer index; called by peer membership on Register.
func (t *SendTask) SetPeer(idx PeerIndex, p Peer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.peers[idx] = p
}

// RemovePeer drops a peer's handle and blocked state; called on Unregister.
func (t *SendTask) RemovePeer(idx PeerIndex) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.peers, idx)
	delete(t.blocked, idx)
}

// Run drains the group's work queue until ctx is cancelled.
func (t *SendTask) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case item := <-t.group.work:
			if item == nil || !item.valid {
				continue
			}
			t.handle(item)
		}
	}
}

func (t *SendTask) handle(item *WorkItem) {
	switch item.Kind {
	case WorkRibOut:
		t.drainRibOut(item.RibOut, item.QueueID)
	case WorkPeer:
		t.resumePeer(item.Peer)
	}
}

func (t *SendTask) isBlocked(idx PeerIndex) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.blocked[idx]
	return ok
}

func (t *SendTask) setBlocked(idx PeerIndex) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.blocked[idx] = struct{}{}
}

func (t *SendTask) clearBlocked(idx PeerIndex) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.blocked, idx)
}

func (t *SendTask) peerHandle(idx PeerIndex) (Peer, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.peers[idx]
	return p, ok
}

// drainRibOut sends every ready peer's pending entries from the named
// queue, marking peers blocked on the first SendUpdate(false).
func (t *SendTask) drainRibOut(ro *RibOut, qid QueueID) {
	queue := ro.QBulk
	if qid == QUpdate {
		queue = ro.QUpdate
	}
	for _, peer := range ro.Peers() {
		t.drainOne(queue, peer)
	}
}

func (t *SendTask) drainOne(queue *UpdateQueue, peer PeerIndex) {
	if t.isBlocked(peer) {
		return
	}
	handle, ok := t.peerHandle(peer)
	if !ok {
		return
	}
	entries := queue.PeekPending(peer)
	sent := 0
	for _, e := range entries {
		if !handle.SendUpdate(e.Data) {
			t.setBlocked(peer)
			break
		}
		sent++
	}
	queue.Advance(peer, sent)
}

// resumePeer replays a previously blocked peer's pending entries, bulk
// queue first then update queue.
func (t *SendTask) resumePeer(peer PeerIndex) {
	t.clearBlocked(peer)
	for _, ro := range ribOutsFor(t.group, peer) {
		t.drainOne(ro.QBulk, peer)
		if t.isBlocked(peer) {
			return
		}
		t.drainOne(ro.QUpdate, peer)
		if t.isBlocked(peer) {
			return
		}
	}
}

func ribOutsFor(g *SchedulingGroup, peer PeerIndex) []*RibOut {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []*RibOut
	for ro := range g.ribouts {
		if ro.hasPeer(peer) {
			out = append(out, ro)
		}
	}
	return out
}

// NotifyReady signals that peer became send-ready, enqueuing a WorkPeer
// item on its group.
func NotifyReady(group *SchedulingGroup, peer PeerIndex) {
	group.enqueue(newPeerWork(peer))
}

// NotifyRibOutReady signals that a table has fresh updates for ribout to
// encode, enqueuing a WorkRibOut item on its group.
func NotifyRibOutReady(ribout *RibOut, qid QueueID) {
	if ribout.group == nil {
		return
	}
	ribout.group.enqueue(newRibOutWork(ribout, qid))
}
