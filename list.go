package kvcache

// entry is an intrusive doubly-linked list node.
type entry[K comparable, V any] struct {
	key  K
	val  V
	prev *entry[K, V]
	next *entry[K, V]
}

// lruList maintains recency order over entries: head is the most recently
// used, tail the least. It is not safe for concurrent use; owners guard it
// with their own lock alongside the index that points into it.
type lruList[K comparable, V any] struct {
	head *entry[K, V] // most recently used
	tail *entry[K, V] // least recently used
}

// pushFront adds an entry at the most-recently-used position.
func (l *lruList[K, V]) pushFront(e *entry[K, V]) {
	e.prev = nil
	e.next = l.head
	if l.head != nil {
		l.head.prev = e
	}
	l.head = e
	if l.tail == nil {
		l.tail = e
	}
}

// moveToFront promotes an entry to the most-recently-used position.
func (l *lruList[K, V]) moveToFront(e *entry[K, V]) {
	if l.head == e {
		return
	}
	l.remove(e)
	l.pushFront(e)
}

// remove unlinks an entry from the list.
func (l *lruList[K, V]) remove(e *entry[K, V]) {
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
	e.prev = nil
	e.next = nil
}

// reset empties the list.
func (l *lruList[K, V]) reset() {
	l.head = nil
	l.tail = nil
}
