package walker

import (
	"sync"

	"github.com/fyrsmithlabs/repodescribe/internal/chunker"
)

type taskKind int

const (
	taskList taskKind = iota
	taskFile
	taskChunk
)

// task is one unit of external work: a listing, a fetch, or an analysis.
type task struct {
	kind  taskKind
	node  *node
	chunk chunker.Chunk
}

// queue is an unbounded FIFO shared by the workers. It drains once every
// pushed task has been marked done, so tasks may push follow-up work
// without the workers exiting early.
type queue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	items   []task
	pending int
	closed  bool
}

func newQueue() *queue {
	q := &queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *queue) push(t task) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.items = append(q.items, t)
	q.pending++
	q.cond.Signal()
}

// pop blocks until a task is ready. It returns false once the queue is
// closed or all work is done.
func (q *queue) pop() (task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && q.pending > 0 && !q.closed {
		q.cond.Wait()
	}
	if q.closed || len(q.items) == 0 {
		return task{}, false
	}
	t := q.items[0]
	q.items[0] = task{}
	q.items = q.items[1:]
	return t, true
}

// done marks a popped task finished.
func (q *queue) done() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending--
	if q.pending == 0 {
		q.cond.Broadcast()
	}
}

// close wakes every worker and drops queued work.
func (q *queue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.items = nil
	q.cond.Broadcast()
}
