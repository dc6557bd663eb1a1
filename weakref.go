package heapcore

import "slices"

// WeakRef refers to an object without keeping it alive. It is invalidated
// exactly once, when its target is destroyed; its callback, if any, runs
// after the target's finalize and clear have completed.
type WeakRef struct {
	rt       *Runtime
	target   Ref
	callback func(*WeakRef)
	dead     bool
	detached bool
}

// weakChain lists the weak references of one target.
type weakChain struct {
	refs   []*WeakRef
	shared *WeakRef // callback-less weak reference handed out to every caller
}

// CreateWeakRef returns a weak reference to o. callback may be nil.
// Callback-less weak references to the same target are shared.
func (rt *Runtime) CreateWeakRef(o Object, callback func(*WeakRef)) *WeakRef {
	rt.header("create weakref", o.ref)

	chain := rt.weak[o.ref]
	if chain == nil {
		chain = &weakChain{}
		rt.weak[o.ref] = chain
	}
	if callback == nil && chain.shared != nil {
		return chain.shared
	}

	w := &WeakRef{rt: rt, target: o.ref, callback: callback}
	chain.refs = append(chain.refs, w)
	if callback == nil {
		chain.shared = w
	}
	rt.stats.weakCreated.Add(1)
	rt.stats.weakLive.Add(1)
	return w
}

// Deref returns the target if it has not been destroyed. It never observes
// an object whose destruction has begun.
func (w *WeakRef) Deref() (Object, bool) {
	if w.dead || w.detached {
		return Object{}, false
	}
	if h, ok := w.rt.tbl.lookup(w.target); !ok || h.is(flagDying) {
		return Object{}, false
	}
	return Object{rt: w.rt, ref: w.target}, true
}

// Target returns the identity the weak reference was created for. It stays
// valid after invalidation, for use in callbacks.
func (w *WeakRef) Target() Ref { return w.target }

// IsDead reports whether the target has been destroyed.
func (w *WeakRef) IsDead() bool { return w.dead }

// Detach unregisters the weak reference. Its callback never fires and Deref
// reports absent from now on.
func (w *WeakRef) Detach() {
	if w.detached {
		return
	}
	w.detached = true
	w.callback = nil
	if w.dead {
		return
	}

	rt := w.rt
	chain := rt.weak[w.target]
	if chain == nil {
		return
	}
	if i := slices.Index(chain.refs, w); i >= 0 {
		chain.refs = slices.Delete(chain.refs, i, i+1)
		rt.stats.weakLive.Add(-1)
	}
	if chain.shared == w {
		chain.shared = nil
	}
	if len(chain.refs) == 0 {
		delete(rt.weak, w.target)
	}
}

// Deref is WeakRef.Deref.
func (rt *Runtime) Deref(w *WeakRef) (Object, bool) {
	return w.Deref()
}

// WeakRefCount returns the number of live weak references to o.
func (rt *Runtime) WeakRefCount(o Object) int {
	rt.header("weakref count", o.ref)
	if chain := rt.weak[o.ref]; chain != nil {
		return len(chain.refs)
	}
	return 0
}

// invalidateWeakRefs kills and unregisters every weak reference to ref and
// returns them for runWeakCallbacks.
func (rt *Runtime) invalidateWeakRefs(ref Ref) []*WeakRef {
	chain := rt.weak[ref]
	if chain == nil {
		return nil
	}
	delete(rt.weak, ref)
	for _, w := range chain.refs {
		w.dead = true
	}
	n := int64(len(chain.refs))
	rt.stats.weakInvalidated.Add(n)
	rt.stats.weakLive.Add(-n)
	return chain.refs
}

func (rt *Runtime) runWeakCallbacks(dead []*WeakRef) {
	for _, w := range dead {
		cb := w.callback
		if cb == nil || w.detached {
			continue
		}
		w.callback = nil
		rt.stats.weakCallbacks.Add(1)
		rt.invoke("weakref callback", w.target, nil, func() { cb(w) })
	}
}
