package heapcore

import (
	"github.com/hupe1980/heapcore/alloc"
)

// Thread is a mutator thread with its own allocator heap. Objects allocated
// through a Thread live in its heap; releasing them from another thread
// hands their blocks back through the owner's remote queue.
type Thread struct {
	rt   *Runtime
	heap *alloc.Heap
}

// NewThread creates a thread with a private heap.
func (rt *Runtime) NewThread() (*Thread, error) {
	if rt.closed.Load() {
		return nil, ErrClosed
	}
	heap, err := rt.al.NewHeap()
	if err != nil {
		return nil, err
	}
	return &Thread{rt: rt, heap: heap}, nil
}

// ID returns the id of the thread's heap.
func (t *Thread) ID() uint32 { return t.heap.ID() }

// Allocate is Runtime.Allocate served from the thread's heap.
func (t *Thread) Allocate(typ Type) (Object, error) {
	return t.rt.allocate(t.heap, typ)
}

// Release is Runtime.Release performed by this thread.
func (t *Thread) Release(o Object) {
	t.rt.release(t.heap, o.ref)
}

// SafePoint applies frees that other threads queued for this thread's heap.
func (t *Thread) SafePoint() {
	t.heap.Drain()
}

// Detach ends the thread. Its heap is unmapped once empty or adopted by
// another thread's heap.
func (t *Thread) Detach() error {
	return t.heap.Detach()
}
