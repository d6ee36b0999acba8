// pkg/pager/slotqueue.go
package pager

import (
	"container/list"
	"sort"
)

// SlotQueue is the swap free-list. Slots leave in the order they were
// returned, so a freed slot is reused only after every slot freed
// before it.
type SlotQueue struct {
	order   *list.List
	members map[SlotID]*list.Element
}

// NewSlotQueue creates an empty queue
func NewSlotQueue() *SlotQueue {
	return &SlotQueue{
		order:   list.New(),
		members: make(map[SlotID]*list.Element),
	}
}

// Len returns the number of free slots
func (q *SlotQueue) Len() int {
	return q.order.Len()
}

// Contains reports whether the slot is currently free
func (q *SlotQueue) Contains(slot SlotID) bool {
	_, ok := q.members[slot]
	return ok
}

// Push appends a slot to the tail. Returns false if the slot is already queued.
func (q *SlotQueue) Push(slot SlotID) bool {
	if _, ok := q.members[slot]; ok {
		return false
	}
	q.members[slot] = q.order.PushBack(slot)
	return true
}

// Pop removes and returns the slot at the head.
// Returns (NoSlot, false) if the queue is empty.
func (q *SlotQueue) Pop() (SlotID, bool) {
	front := q.order.Front()
	if front == nil {
		return NoSlot, false
	}
	slot := q.order.Remove(front).(SlotID)
	delete(q.members, slot)
	return slot, true
}

// SlotRun represents a contiguous run of free slots.
type SlotRun struct {
	Start  SlotID // First slot in the run
	Length int    // Number of contiguous slots
}

// Runs returns the free slots grouped into contiguous runs, lowest first.
// Used to report swap fragmentation.
func (q *SlotQueue) Runs() []SlotRun {
	if q.order.Len() == 0 {
		return nil
	}

	slots := make([]SlotID, 0, q.order.Len())
	for slot := range q.members {
		slots = append(slots, slot)
	}
	sort.Slice(slots, func(i, j int) bool {
		return slots[i] < slots[j]
	})

	runs := make([]SlotRun, 0)
	current := SlotRun{Start: slots[0], Length: 1}
	for i := 1; i < len(slots); i++ {
		if slots[i] == slots[i-1]+1 {
			current.Length++
		} else {
			runs = append(runs, current)
			current = SlotRun{Start: slots[i], Length: 1}
		}
	}
	runs = append(runs, current)

	return runs
}
