package testutil

import (
	"encoding/binary"

	"github.com/hupe1980/heapcore"
)

const slotSize = 8

// NodeType is a container type whose payload holds Slots child references,
// each stored as a little-endian uint64.
type NodeType struct {
	TypeName string
	Slots    int
	Recorder *Recorder

	// OnFinalize, if set, runs at the end of Finalize.
	OnFinalize func(heapcore.Object)
	// OnClear, if set, runs at the start of Clear.
	OnClear func(heapcore.Object)
	// ExtraVisits makes Traverse report the first child this many more
	// times than it is held. Used to provoke contract violations.
	ExtraVisits int
	// HideFirst makes Traverse skip slot 0.
	HideFirst bool
}

// NewNodeType creates a node type with the given number of slots.
func NewNodeType(name string, slots int, rec *Recorder) *NodeType {
	return &NodeType{TypeName: name, Slots: slots, Recorder: rec}
}

func (t *NodeType) Name() string      { return t.TypeName }
func (t *NodeType) Size() int         { return t.Slots * slotSize }
func (t *NodeType) IsContainer() bool { return true }

// Traverse reports every non-empty slot.
func (t *NodeType) Traverse(obj heapcore.Object, visit heapcore.Visitor) {
	t.Recorder.Record(EventTraverse, obj.Ref())
	buf := obj.Bytes()
	for i := 0; i < t.Slots; i++ {
		if i == 0 && t.HideFirst {
			continue
		}
		if ref := slot(buf, i); !ref.IsZero() {
			visit(ref)
			if i == 0 {
				for range t.ExtraVisits {
					visit(ref)
				}
			}
		}
	}
}

// Clear empties every slot and releases the children.
func (t *NodeType) Clear(obj heapcore.Object) {
	if t.OnClear != nil {
		t.OnClear(obj)
	}
	t.Recorder.Record(EventClear, obj.Ref())
	rt := obj.Runtime()
	buf := obj.Bytes()
	for i := 0; i < t.Slots; i++ {
		ref := slot(buf, i)
		if ref.IsZero() {
			continue
		}
		setSlot(buf, i, 0)
		rt.Object(ref).Release()
	}
}

// Finalize records the event and runs OnFinalize.
func (t *NodeType) Finalize(obj heapcore.Object) {
	t.Recorder.Record(EventFinalize, obj.Ref())
	if t.OnFinalize != nil {
		t.OnFinalize(obj)
	}
}

// LeafType is a non-container type with an opaque payload.
type LeafType struct {
	TypeName string
	Bytes    int
	Recorder *Recorder

	// OnFinalize, if set, runs at the end of Finalize.
	OnFinalize func(heapcore.Object)
}

// NewLeafType creates a leaf type with a payload of size bytes.
func NewLeafType(name string, size int, rec *Recorder) *LeafType {
	return &LeafType{TypeName: name, Bytes: size, Recorder: rec}
}

func (t *LeafType) Name() string                               { return t.TypeName }
func (t *LeafType) Size() int                                  { return t.Bytes }
func (t *LeafType) IsContainer() bool                          { return false }
func (t *LeafType) Traverse(heapcore.Object, heapcore.Visitor) {}

// Clear records the event.
func (t *LeafType) Clear(obj heapcore.Object) {
	t.Recorder.Record(EventClear, obj.Ref())
}

// Finalize records the event and runs OnFinalize.
func (t *LeafType) Finalize(obj heapcore.Object) {
	t.Recorder.Record(EventFinalize, obj.Ref())
	if t.OnFinalize != nil {
		t.OnFinalize(obj)
	}
}

// SetChild stores a strong reference to child in parent's slot i. The child
// is acquired; a previous occupant of the slot is released. A zero child
// empties the slot.
func SetChild(parent heapcore.Object, i int, child heapcore.Object) {
	buf := parent.Bytes()
	old := slot(buf, i)
	if !child.IsZero() {
		child.Acquire()
		setSlot(buf, i, child.Ref())
	} else {
		setSlot(buf, i, 0)
	}
	if !old.IsZero() {
		parent.Runtime().Object(old).Release()
	}
}

// Child returns the reference in parent's slot i.
func Child(parent heapcore.Object, i int) heapcore.Ref {
	return slot(parent.Bytes(), i)
}

func slot(buf []byte, i int) heapcore.Ref {
	return heapcore.Ref(binary.LittleEndian.Uint64(buf[i*slotSize:]))
}

func setSlot(buf []byte, i int, ref heapcore.Ref) {
	binary.LittleEndian.PutUint64(buf[i*slotSize:], uint64(ref))
}
