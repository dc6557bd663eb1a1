// Package heapdump captures the object graph of a heapcore runtime for
// offline analysis.
//
// A dump lists every live object with its outgoing references and the set of
// roots, the objects held from outside the managed graph. The JSON layout is
// {"objects": [...], "roots": [...]} and can be written plain or compressed:
//
//	d := heapdump.Capture(rt)
//	err := heapdump.Write(f, d, heapdump.CompressionZstd)
package heapdump

import (
	"slices"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/hupe1980/heapcore"
)

// Object is one live object in a dump.
type Object struct {
	ID         uint64   `json:"id"`
	Type       string   `json:"type"`
	Size       uint64   `json:"size"`
	Ptrs       []uint64 `json:"ptrs"`
	RefCount   uint64   `json:"refcount"`
	Generation int      `json:"generation"`
	Immortal   bool     `json:"immortal,omitempty"`
}

// Dump is a snapshot of the object graph.
type Dump struct {
	Objects []Object `json:"objects"`
	Roots   []uint64 `json:"roots"`
}

// Capture walks every live object of rt. Objects whose count exceeds the
// references found inside the graph are held externally and become roots,
// as do immortal objects. Capture must not run concurrently with the mutator.
func Capture(rt *heapcore.Runtime) *Dump {
	var infos []heapcore.ObjectInfo
	rt.Walk(func(info heapcore.ObjectInfo) bool {
		infos = append(infos, info)
		return true
	})

	d := &Dump{
		Objects: make([]Object, 0, len(infos)),
		Roots:   []uint64{},
	}
	incoming := make(map[uint64]uint64, len(infos))
	for _, info := range infos {
		obj := Object{
			ID:         uint64(info.Ref),
			Type:       info.Type,
			Size:       uint64(info.Size), //nolint:gosec // sizes are positive
			Ptrs:       []uint64{},
			RefCount:   info.RefCount,
			Generation: info.Generation,
			Immortal:   info.Immortal,
		}
		for _, child := range rt.Referents(rt.Object(info.Ref)) {
			obj.Ptrs = append(obj.Ptrs, uint64(child))
			incoming[uint64(child)]++
		}
		d.Objects = append(d.Objects, obj)
	}

	for _, obj := range d.Objects {
		if obj.Immortal || obj.RefCount > incoming[obj.ID] {
			d.Roots = append(d.Roots, obj.ID)
		}
	}
	return d
}

// Find returns the object with the given id.
func (d *Dump) Find(id uint64) (Object, bool) {
	i := slices.IndexFunc(d.Objects, func(o Object) bool { return o.ID == id })
	if i < 0 {
		return Object{}, false
	}
	return d.Objects[i], true
}

// Reachable returns the ids reachable from the roots.
func (d *Dump) Reachable() *roaring64.Bitmap {
	ptrs := make(map[uint64][]uint64, len(d.Objects))
	for _, o := range d.Objects {
		ptrs[o.ID] = o.Ptrs
	}

	reach := roaring64.New()
	stack := slices.Clone(d.Roots)
	reach.AddMany(d.Roots)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, child := range ptrs[id] {
			if reach.CheckedAdd(child) {
				stack = append(stack, child)
			}
		}
	}
	return reach
}

// Garbage returns the objects no root reaches: reference cycles a
// collection pass would reclaim.
func (d *Dump) Garbage() []Object {
	reach := d.Reachable()
	var out []Object
	for _, o := range d.Objects {
		if !reach.Contains(o.ID) {
			out = append(out, o)
		}
	}
	return out
}

// ReachableSize returns the summed size of the objects reachable from id,
// itself included.
func (d *Dump) ReachableSize(id uint64) uint64 {
	byID := make(map[uint64]*Object, len(d.Objects))
	for i := range d.Objects {
		byID[d.Objects[i].ID] = &d.Objects[i]
	}
	if byID[id] == nil {
		return 0
	}

	seen := roaring64.BitmapOf(id)
	stack := []uint64{id}
	var total uint64
	for len(stack) > 0 {
		cur := byID[stack[len(stack)-1]]
		stack = stack[:len(stack)-1]
		if cur == nil {
			continue
		}
		total += cur.Size
		for _, child := range cur.Ptrs {
			if seen.CheckedAdd(child) {
				stack = append(stack, child)
			}
		}
	}
	return total
}
