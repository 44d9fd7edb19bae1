package sched

import "testing"

func TestUpdateQueueJoinAtHeadReplaysEverything(t *testing.T) {
	q := newUpdateQueue()
	q.Append(UpdateEntry{Data: []byte("a")})
	q.Append(UpdateEntry{Data: []byte("b")})
	q.JoinAtHead(1)

	pending := q.PeekPending(1)
	if len(pending) != 2 {
		t.Fatalf("PeekPending after JoinAtHead = %d entries, want 2", len(pending))
	}
}

func TestUpdateQueueJoinAtTailSkipsExisting(t *testing.T) {
	q := newUpdateQueue()
	q.Append(UpdateEntry{Data: []byte("a")})
	q.JoinAt(1)
	q.Append(UpdateEntry{Data: []byte("b")})

	pending := q.PeekPending(1)
	if len(pending) != 1 || string(pending[0].Data) != "b" {
		t.Fatalf("PeekPending after JoinAt = %v, want just [b]", pending)
	}
}

func TestUpdateQueueAdvancePartial(t *testing.T) {
	q := newUpdateQueue()
	q.Append(UpdateEntry{Data: []byte("a")})
	q.Append(UpdateEntry{Data: []byte("b")})
	q.JoinAtHead(1)

	q.Advance(1, 1)
	pending := q.PeekPending(1)
	if len(pending) != 1 || string(pending[0].Data) != "b" {
		t.Fatalf("PeekPending after partial Advance = %v, want just [b]", pending)
	}
}

func TestUpdateQueueLeaveDiscardsPendingState(t *testing.T) {
	q := newUpdateQueue()
	q.Append(UpdateEntry{Data: []byte("a")})
	q.JoinAtHead(1)
	q.Leave(1)
	if pending := q.PeekPending(1); pending != nil {
		t.Fatalf("expected no pending state after Leave, got %v", pending)
	}
}
