package service

import "sync"

// QueueLocks serializes mutating operations per queue id. Issue and Advance
// on the same queue take the same lock; different queues proceed fully in
// parallel. Entries are never evicted; one mutex per live queue is cheap.
// The token and queue services must share one instance.
type QueueLocks struct {
	locks sync.Map
}

// NewQueueLocks creates an empty lock registry.
func NewQueueLocks() *QueueLocks {
	return &QueueLocks{}
}

// Lock acquires the queue's mutex and returns the unlock func.
func (q *QueueLocks) Lock(queueID string) func() {
	val, _ := q.locks.LoadOrStore(queueID, &sync.Mutex{})
	mu := val.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
