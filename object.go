package heapcore

import (
	"fmt"
)

// Ref identifies a managed object: the index of its header slot in the low
// 32 bits and the slot generation in the high 32 bits. A slot's generation
// changes every time the slot is freed, so a Ref to a destroyed object never
// aliases a newer object. The zero Ref is never assigned.
type Ref uint64

func makeRef(index, gen uint32) Ref {
	return Ref(uint64(gen)<<32 | uint64(index))
}

func (r Ref) index() uint32 { return uint32(r) }       //nolint:gosec // low half
func (r Ref) gen() uint32   { return uint32(r >> 32) } //nolint:gosec // high half

// IsZero reports whether r is the zero Ref.
func (r Ref) IsZero() bool { return r == 0 }

func (r Ref) String() string {
	return fmt.Sprintf("%d@%d", r.index(), r.gen())
}

// Visitor is called by Type.Traverse once per outgoing strong reference.
type Visitor func(child Ref)

// Type is the per-type behavior table supplied by the host type system. It is
// resolved once when an object is allocated and stored in its header.
//
// Traverse must call visit exactly once per outgoing strong reference,
// duplicates included. Clear must drop every outgoing strong reference and
// leave the object safe to finalize. Finalize runs at most once per object;
// it may resurrect the object by acquiring it.
type Type interface {
	Name() string
	Size() int
	IsContainer() bool
	Traverse(obj Object, visit Visitor)
	Clear(obj Object)
	Finalize(obj Object)
}

// Object is a handle to a managed object. It is a plain value; holding an
// Object does not keep the object alive. Ownership is expressed only through
// Acquire and Release.
type Object struct {
	rt  *Runtime
	ref Ref
}

// IsZero reports whether o is the zero Object.
func (o Object) IsZero() bool { return o.rt == nil || o.ref == 0 }

// Ref returns the object's identity.
func (o Object) Ref() Ref { return o.ref }

// Runtime returns the runtime owning the object.
func (o Object) Runtime() *Runtime { return o.rt }

// Bytes returns the object's payload. The slice is valid until the object is
// freed.
func (o Object) Bytes() []byte {
	return o.rt.header("bytes", o.ref).block.Bytes()
}

// Type returns the behavior table of the object.
func (o Object) Type() Type {
	return o.rt.header("type", o.ref).typ
}

// RefCount returns the current ownership count.
func (o Object) RefCount() uint64 {
	return o.rt.header("refcount", o.ref).refcnt
}

// IsImmortal reports whether the object is exempt from counting.
func (o Object) IsImmortal() bool {
	return o.rt.header("immortal", o.ref).is(flagImmortal)
}

// Alive reports whether o still names a live object. It never faults.
func (o Object) Alive() bool {
	if o.IsZero() {
		return false
	}
	_, ok := o.rt.tbl.lookup(o.ref)
	return ok
}

// Acquire adds one reference.
func (o Object) Acquire() { o.rt.AcquireN(o, 1) }

// Release drops one reference.
func (o Object) Release() { o.rt.Release(o) }

func (o Object) String() string {
	return fmt.Sprintf("Object(%s)", o.ref)
}
