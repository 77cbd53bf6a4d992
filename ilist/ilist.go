// Package ilist provides the intrusive linked list that wait queues keep
// their entries in
package ilist

// Linker is implemented by objects that can be linked into a List
type Linker interface {
	Next() Linker
	Prev() Linker
	SetNext(Linker)
	SetPrev(Linker)
}

// List is an intrusive list. Entries are added and removed in O(1) time with
// no allocations, and the zero value is an empty list.
//
// To iterate over a list (where l is a List):
//
//	for e := l.Front(); e != nil; e = e.Next() {
//		// do something with e
//	}
type List struct {
	head Linker
	tail Linker
}

// Front returns the first element of list l or nil
func (l *List) Front() Linker {
	return l.head
}

// PushBack inserts the element e at the back of list l
func (l *List) PushBack(e Linker) {
	e.SetNext(nil)
	e.SetPrev(l.tail)

	if l.tail != nil {
		l.tail.SetNext(e)
	} else {
		l.head = e
	}

	l.tail = e
}

// Remove unlinks e from l. e must be in l
func (l *List) Remove(e Linker) {
	prev, next := e.Prev(), e.Next()

	if prev != nil {
		prev.SetNext(next)
	} else {
		l.head = next
	}

	if next != nil {
		next.SetPrev(prev)
	} else {
		l.tail = prev
	}

	e.SetNext(nil)
	e.SetPrev(nil)
}

// Entry is embedded by list elements to implement Linker
type Entry struct {
	next Linker
	prev Linker
}

// Next returns the entry that follows e in the list
func (e *Entry) Next() Linker {
	return e.next
}

// Prev returns the entry that precedes e in the list
func (e *Entry) Prev() Linker {
	return e.prev
}

// SetNext links entry after e
func (e *Entry) SetNext(entry Linker) {
	e.next = entry
}

// SetPrev links entry before e
func (e *Entry) SetPrev(entry Linker) {
	e.prev = entry
}
