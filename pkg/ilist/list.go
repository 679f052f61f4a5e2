// Copyright 2026 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package ilist provides a doubly linked list with comparator-driven ordered
// insertion and selection.
//
// Entries are handed back to the caller on insertion so they can later be
// removed in O(1) time. Ordering is never maintained implicitly: InsertOrdered
// keeps a list sorted only as long as every insertion goes through it with the
// same comparator, and Max scans the whole list.
package ilist

// Less reports whether a orders strictly before b.
type Less[T any] func(a, b T) bool

// Entry is an element of a List.
type Entry[T any] struct {
	next *Entry[T]
	prev *Entry[T]
	list *List[T]

	// Value is the element stored in this entry.
	Value T
}

// Next returns the entry that follows e in its list, or nil.
func (e *Entry[T]) Next() *Entry[T] {
	return e.next
}

// List is a doubly linked list. The zero value for List is an empty list
// ready to use.
//
// To iterate over a list (where l is a List):
//
//	for e := l.Front(); e != nil; e = e.Next() {
//		// do something with e.Value.
//	}
type List[T any] struct {
	head *Entry[T]
	tail *Entry[T]
	len  int
}

// Reset resets list l to the empty state. Entries still referring to l are
// detached.
func (l *List[T]) Reset() {
	for e := l.head; e != nil; {
		next := e.next
		e.next, e.prev, e.list = nil, nil, nil
		e = next
	}
	l.head = nil
	l.tail = nil
	l.len = 0
}

// Front returns the first element of list l or nil.
func (l *List[T]) Front() *Entry[T] {
	return l.head
}

// Len returns the number of elements in the list.
func (l *List[T]) Len() int {
	return l.len
}

// PushBack inserts v at the back of list l.
func (l *List[T]) PushBack(v T) *Entry[T] {
	e := &Entry[T]{Value: v, list: l, prev: l.tail}
	if l.tail != nil {
		l.tail.next = e
	} else {
		l.head = e
	}
	l.tail = e
	l.len++
	return e
}

// InsertBefore inserts v before a, which must be an element of l.
func (l *List[T]) InsertBefore(a *Entry[T], v T) *Entry[T] {
	if a.list != l {
		panic("ilist: InsertBefore with an entry of another list")
	}
	b := a.prev
	e := &Entry[T]{Value: v, list: l, next: a, prev: b}
	a.prev = e
	if b != nil {
		b.next = e
	} else {
		l.head = e
	}
	l.len++
	return e
}

// InsertOrdered inserts v before the first element that v orders strictly
// before, so elements comparing equal keep insertion order. If l is sorted by
// less, it remains sorted.
func (l *List[T]) InsertOrdered(v T, less Less[T]) *Entry[T] {
	for e := l.head; e != nil; e = e.next {
		if less(v, e.Value) {
			return l.InsertBefore(e, v)
		}
	}
	return l.PushBack(v)
}

// Remove removes e from l. Removing an entry that is not linked into l is a
// no-op.
func (l *List[T]) Remove(e *Entry[T]) {
	if e.list != l {
		return
	}
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		l.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		l.tail = e.prev
	}
	e.next, e.prev, e.list = nil, nil, nil
	l.len--
}

// RemoveIf removes every element for which pred returns true and returns the
// number removed.
func (l *List[T]) RemoveIf(pred func(T) bool) int {
	n := 0
	for e := l.head; e != nil; {
		next := e.next
		if pred(e.Value) {
			l.Remove(e)
			n++
		}
		e = next
	}
	return n
}

// Max returns the greatest element under less, or nil if l is empty. Among
// equal elements the one closest to the front wins.
func (l *List[T]) Max(less Less[T]) *Entry[T] {
	max := l.head
	if max == nil {
		return nil
	}
	for e := max.next; e != nil; e = e.next {
		if less(max.Value, e.Value) {
			max = e
		}
	}
	return max
}
