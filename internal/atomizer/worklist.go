package atomizer

import (
	"sync"

	"mathatom/internal/doctree"
)

// workItem is one pending classification: a node and its split-recursion
// depth. Depth increases by exactly 1 per split, which is what bounds the
// algorithm.
type workItem struct {
	node  *doctree.Node
	depth int
}

// worklist is an explicit depth-tagged queue with join semantics: pop
// blocks while items may still arrive (some popped item could push
// children) and returns false once everything pushed has also finished.
type worklist struct {
	mu          sync.Mutex
	cond        *sync.Cond
	items       []workItem
	outstanding int
	closed      bool
}

func newWorklist() *worklist {
	w := &worklist{}
	w.cond = sync.NewCond(&w.mu)
	return w
}

// push enqueues an item. The item counts as outstanding until finish.
func (w *worklist) push(it workItem) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.items = append(w.items, it)
	w.outstanding++
	w.cond.Signal()
}

// pop dequeues the next item, blocking while the queue is empty but work is
// still in flight. Returns false when the worklist is drained or closed.
func (w *worklist) pop() (workItem, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for len(w.items) == 0 && w.outstanding > 0 && !w.closed {
		w.cond.Wait()
	}
	if w.closed || len(w.items) == 0 {
		return workItem{}, false
	}
	it := w.items[0]
	w.items = w.items[1:]
	return it, true
}

// finish marks one popped item complete.
func (w *worklist) finish() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.outstanding--
	if w.outstanding <= 0 {
		w.cond.Broadcast()
	}
}

// close aborts the queue; blocked and future pops return false. Items not
// yet processed keep their nodes in a non-terminal status for resume.
func (w *worklist) close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	w.cond.Broadcast()
}
