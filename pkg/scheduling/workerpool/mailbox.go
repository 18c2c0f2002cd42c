package workerpool

import (
	"sync/atomic"

	"github.com/vnykmshr/stealflow/pkg/common/cacheline"
)

// idleMarker is the mailbox value meaning "empty, and the owner is waiting".
// It is only ever compared by address and never executed.
var idleMarker = new(Task)

// mailboxes holds one single-task slot per worker. A slot is in one of three
// states:
//
//	idleMarker  the owner is idle and accepts a delivery
//	nil         the owner is busy; deliveries are refused
//	any other   a delivered task the owner has not picked up yet
//
// Only the owner moves a slot out of the delivered or idle state. Any worker
// may move a slot from idle to delivered, and only by compare-and-swap, so at
// most one delivery lands per idle period.
type mailboxes struct {
	slots []cacheline.Padded[atomic.Pointer[Task]]
}

func newMailboxes(n int) *mailboxes {
	m := &mailboxes{slots: make([]cacheline.Padded[atomic.Pointer[Task]], n)}
	for i := range m.slots {
		m.slots[i].Value.Store(idleMarker)
	}
	return m
}

// idle reports whether worker j is currently accepting a delivery.
func (m *mailboxes) idle(j int) bool {
	return m.slots[j].Value.Load() == idleMarker
}

// post delivers t to worker j if and only if j is idle.
func (m *mailboxes) post(j int, t *Task) bool {
	return m.slots[j].Value.CompareAndSwap(idleMarker, t)
}

// markIdle opens worker i's mailbox. Slots start out idle, so a peer may
// have delivered a task before the owner first went idle; that task is
// returned and the slot left busy. Owner only.
func (m *mailboxes) markIdle(i int) *Task {
	if m.slots[i].Value.CompareAndSwap(nil, idleMarker) {
		return nil
	}
	return m.take(i)
}

// take returns a delivered task and marks the slot busy, or returns nil and
// leaves the slot idle. Owner only.
func (m *mailboxes) take(i int) *Task {
	s := &m.slots[i].Value
	v := s.Load()
	if v == nil || v == idleMarker {
		return nil
	}
	s.Store(nil)
	return v
}

// retract closes worker i's mailbox. If a task was delivered before the
// mailbox closed, it is returned and the caller owns it. Owner only.
func (m *mailboxes) retract(i int) *Task {
	v := m.slots[i].Value.Swap(nil)
	if v == idleMarker {
		return nil
	}
	return v
}
