package heapcore

import "sync/atomic"

// genList is a doubly linked list of header slots threaded through
// header.prev and header.next.
type genList struct {
	head, tail uint32
	n          atomic.Int64
}

func (l *genList) empty() bool { return l.head == 0 }

func (l *genList) len() int { return int(l.n.Load()) }

func (t *table) push(l *genList, idx uint32) {
	h := t.at(idx)
	h.prev, h.next = l.tail, 0
	if l.tail != 0 {
		t.at(l.tail).next = idx
	} else {
		l.head = idx
	}
	l.tail = idx
	l.n.Add(1)
}

func (t *table) remove(l *genList, idx uint32) {
	h := t.at(idx)
	if h.prev != 0 {
		t.at(h.prev).next = h.next
	} else {
		l.head = h.next
	}
	if h.next != 0 {
		t.at(h.next).prev = h.prev
	} else {
		l.tail = h.prev
	}
	h.prev, h.next = 0, 0
	l.n.Add(-1)
}

// splice appends every member of src to dst and empties src.
func (t *table) splice(dst, src *genList) {
	if src.empty() {
		return
	}
	if dst.empty() {
		dst.head = src.head
	} else {
		t.at(dst.tail).next = src.head
		t.at(src.head).prev = dst.tail
	}
	dst.tail = src.tail
	dst.n.Add(src.n.Swap(0))
	src.head, src.tail = 0, 0
}

// retag sets gcGen on every member of l.
func (t *table) retag(l *genList, gen int8) {
	for idx := l.head; idx != 0; idx = t.at(idx).next {
		t.at(idx).gcGen = gen
	}
}
