package sysdb

import "sync"

// dispatcher fans out LISTEN/NOTIFY wake-ups to in-process waiters keyed by
// "<uuid>::<topic>" or "<uuid>::<key>" (§4.3 "Notification channel"). It is
// grounded on the teacher's generic EventBus[T], adapted so more than one
// waiter can register under the same key — recv and getEvent only need a
// signal to re-poll, never the payload itself, so the channel carries
// struct{}.
type dispatcher struct {
	mu       sync.Mutex
	nextID   int64
	waiters  map[string]map[int64]chan struct{}
}

func newDispatcher() *dispatcher {
	return &dispatcher{waiters: make(map[string]map[int64]chan struct{})}
}

// subscribe registers a waiter under key and returns a receive-only channel
// plus an unsubscribe function. The channel is buffered so a publish that
// races the subscribe is never lost before the first read.
func (d *dispatcher) subscribe(key string) (<-chan struct{}, func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := d.nextID
	d.nextID++
	ch := make(chan struct{}, 1)
	if d.waiters[key] == nil {
		d.waiters[key] = make(map[int64]chan struct{})
	}
	d.waiters[key][id] = ch

	unsubscribe := func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if m, ok := d.waiters[key]; ok {
			delete(m, id)
			if len(m) == 0 {
				delete(d.waiters, key)
			}
		}
	}
	return ch, unsubscribe
}

// publish wakes every waiter registered under key, non-blocking: a waiter
// that is not ready to receive is skipped, matching the teacher's
// "drop for slow subscriber" policy. This is safe here because every waiter
// re-reads from the database before concluding (spurious wakes are expected).
func (d *dispatcher) publish(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, ch := range d.waiters[key] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
