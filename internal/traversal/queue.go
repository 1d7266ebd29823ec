package traversal

import "sync"

// queue is an unbounded FIFO of directories still to list. It reports
// completion once it is empty and no popped item is still being processed.
type queue struct {
	mu       sync.Mutex
	cond     *sync.Cond
	items    []Item
	inFlight int
	closed   bool
}

func newQueue() *queue {
	q := &queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *queue) push(items ...Item) {
	if len(items) == 0 {
		return
	}
	q.mu.Lock()
	q.items = append(q.items, items...)
	q.mu.Unlock()
	q.cond.Broadcast()
}

// pop blocks until an item is available. It returns false when the walk is
// finished or the queue was closed.
func (q *queue) pop() (Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 && q.inFlight > 0 && !q.closed {
		q.cond.Wait()
	}
	if q.closed || len(q.items) == 0 {
		return Item{}, false
	}

	it := q.items[0]
	q.items[0] = Item{}
	q.items = q.items[1:]
	q.inFlight++
	return it, true
}

// done marks a popped item as processed.
func (q *queue) done() {
	q.mu.Lock()
	q.inFlight--
	finished := q.inFlight == 0 && len(q.items) == 0
	q.mu.Unlock()
	if finished {
		q.cond.Broadcast()
	}
}

// close stops dispatch. Items already popped still finish.
func (q *queue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

// pending returns the number of queued, undispatched items.
func (q *queue) pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
