// Package heapcore is the memory core of a dynamic-object runtime.
//
// It owns the lifetime of every managed object, supplies the memory objects
// live in and reclaims reference cycles that counting alone cannot free:
//
//   - ownership: every object carries a reference count; Release reaching
//     zero finalizes, clears and frees the object synchronously
//   - allocation: payloads come from the size-classed slab allocator in
//     package alloc, with one heap per mutator Thread
//   - weak references: a side table of weak proxies, invalidated when their
//     target is destroyed
//   - cycle collection: a generational tracer that finds unreachable cycles
//     by trial deletion over container objects
//
// # Quick Start
//
//	rt, _ := heapcore.New()
//	defer rt.Close()
//
//	obj, err := rt.Allocate(myType)
//	if errors.Is(err, heapcore.ErrAllocationFailed) {
//	    // memory limit or backing store exhausted
//	}
//	obj.Acquire()
//	obj.Release()
//	obj.Release() // finalize, clear, free
//
// # Types
//
// The host type system supplies a Type per kind of object: its payload size,
// whether it can hold references (IsContainer) and the Traverse, Clear and
// Finalize callbacks. Traverse must report every outgoing strong reference
// exactly once; an inconsistent Traverse is detected and reported as a Fault.
//
// # Collection
//
// Container allocations count against the young generation's threshold.
// Once a threshold is exceeded, a pass is scheduled and runs at the next
// SafePoint or Allocate. RequestCollection runs a pass immediately:
//
//	res, _ := rt.RequestCollection(2)
//	fmt.Println(res.Collected, res.Resurrected)
//
// Within a pass, each unreachable object is cleared before it is finalized
// and finalized before its block is freed. Finalizers may resurrect objects.
//
// # Faults
//
// Double releases, use of freed objects, refcount overflow and broken
// Traverse contracts are consistency faults. They are logged, passed to the
// fault hook and raised as a panic with a *Fault; they are never returned as
// errors.
package heapcore
