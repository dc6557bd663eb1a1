package heapcore

import (
	"context"
	"fmt"
)

// FaultKind classifies consistency faults.
type FaultKind int

const (
	// FaultDoubleRelease is a release of an object whose count is already zero.
	FaultDoubleRelease FaultKind = iota + 1
	// FaultUseAfterFree is an operation on a Ref whose object has been freed.
	FaultUseAfterFree
	// FaultRefCountOverflow is an acquire that would overflow the count.
	FaultRefCountOverflow
	// FaultTraverseContract is a Traverse inconsistent with the object's
	// actual references.
	FaultTraverseContract
	// FaultReentrantFree is a release dropping an object that a collection
	// pass is already destroying.
	FaultReentrantFree
	// FaultBlockDoubleFree is the allocator rejecting an object's block.
	FaultBlockDoubleFree
)

func (k FaultKind) String() string {
	switch k {
	case FaultDoubleRelease:
		return "double release"
	case FaultUseAfterFree:
		return "use after free"
	case FaultRefCountOverflow:
		return "refcount overflow"
	case FaultTraverseContract:
		return "traverse contract violation"
	case FaultReentrantFree:
		return "re-entrant free"
	case FaultBlockDoubleFree:
		return "block double free"
	default:
		return fmt.Sprintf("FaultKind(%d)", int(k))
	}
}

// Fault is a consistency fault. Continuing after one risks corrupting
// unrelated objects, so the runtime panics with it after logging it and
// calling the fault hook. Faults are never returned as errors.
type Fault struct {
	Kind   FaultKind
	Op     string
	Ref    Ref
	Type   string
	Detail string
}

func (f *Fault) Error() string {
	msg := fmt.Sprintf("heapcore: %s in %s of %s", f.Kind, f.Op, f.Ref)
	if f.Type != "" {
		msg += " (" + f.Type + ")"
	}
	if f.Detail != "" {
		msg += ": " + f.Detail
	}
	return msg
}

func (rt *Runtime) fault(kind FaultKind, op string, ref Ref, typ Type, detail string) {
	f := &Fault{Kind: kind, Op: op, Ref: ref, Detail: detail}
	if typ != nil {
		f.Type = typ.Name()
	}

	rt.log.LogFault(context.Background(), f)
	rt.metrics.RecordFault(kind)
	if rt.opts.faultHook != nil {
		rt.opts.faultHook(f)
	}
	panic(f)
}
