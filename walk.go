package heapcore

// Permanent is the generation number reported for frozen objects.
const Permanent = NumGenerations

// Untracked is the generation number reported for untracked objects.
const Untracked = -1

// Unreachable is the generation number reported, during a collection pass,
// for objects found unreachable and being swept.
const Unreachable = Permanent + 1

// ObjectInfo describes a live object.
type ObjectInfo struct {
	Ref        Ref
	Type       string
	Size       int
	RefCount   uint64
	Generation int
	Immortal   bool
	Tracked    bool
	Finalized  bool
	WeakRefs   int
}

func (rt *Runtime) info(idx uint32, h *header) ObjectInfo {
	ref := makeRef(idx, h.gen)
	info := ObjectInfo{
		Ref:        ref,
		Type:       h.typ.Name(),
		Size:       h.block.Size(),
		RefCount:   h.refcnt,
		Generation: generationOf(h.gcGen),
		Immortal:   h.is(flagImmortal),
		Tracked:    h.is(flagTracked),
		Finalized:  h.is(flagFinalized),
	}
	if chain := rt.weak[ref]; chain != nil {
		info.WeakRefs = len(chain.refs)
	}
	return info
}

func generationOf(gcGen int8) int {
	switch {
	case gcGen == genUntracked:
		return Untracked
	case gcGen == genPermanent:
		return Permanent
	case gcGen == genUnreachable:
		return Unreachable
	default:
		return int(gcGen)
	}
}

// Info returns the description of o.
func (rt *Runtime) Info(o Object) ObjectInfo {
	return rt.info(o.ref.index(), rt.header("info", o.ref))
}

// Generation returns the generation of o, Untracked, Permanent or, while o
// is being swept, Unreachable.
func (rt *Runtime) Generation(o Object) int {
	return generationOf(rt.header("generation", o.ref).gcGen)
}

// Walk calls fn for every live object in slot order until fn returns false.
// fn must not allocate or release objects.
func (rt *Runtime) Walk(fn func(ObjectInfo) bool) {
	rt.tbl.each(func(idx uint32, h *header) bool {
		return fn(rt.info(idx, h))
	})
}

// Objects returns the members of generation gen, Permanent for frozen
// objects, or every tracked object when gen is Untracked.
func (rt *Runtime) Objects(gen int) []Object {
	var lists []*genList
	switch {
	case gen == Untracked:
		for i := range rt.gens {
			lists = append(lists, &rt.gens[i].list)
		}
		lists = append(lists, &rt.permanent)
	case gen >= 0 && gen <= Permanent:
		lists = append(lists, rt.listFor(int8(gen))) //nolint:gosec // bounded above
	default:
		return nil
	}

	var out []Object
	for _, l := range lists {
		for idx := l.head; idx != 0; idx = rt.tbl.at(idx).next {
			out = append(out, Object{rt: rt, ref: rt.tbl.ref(idx)})
		}
	}
	return out
}

// Referents returns the outgoing references of o as reported by its type.
func (rt *Runtime) Referents(o Object) []Ref {
	h := rt.header("referents", o.ref)
	var out []Ref
	h.typ.Traverse(o, func(child Ref) {
		if !child.IsZero() {
			out = append(out, child)
		}
	})
	return out
}

// Referrers returns the tracked objects that refer to o.
func (rt *Runtime) Referrers(o Object) []Object {
	rt.header("referrers", o.ref)
	var out []Object
	for _, cand := range rt.Objects(Untracked) {
		h := rt.tbl.at(cand.ref.index())
		found := false
		h.typ.Traverse(cand, func(child Ref) {
			if child == o.ref {
				found = true
			}
		})
		if found {
			out = append(out, cand)
		}
	}
	return out
}
