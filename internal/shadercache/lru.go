package shadercache

// node is an entry of the recency list. It stores the key so the oldest
// entry can be removed from the map in O(1).
type node struct {
	key   string
	words []uint32
	prev  *node
	next  *node
}

// recency is a doubly-linked list with the most recently used node at the
// head. It is not safe for concurrent use.
type recency struct {
	head *node
	tail *node
	len  int
}

func (l *recency) pushFront(n *node) {
	n.prev = nil
	n.next = l.head
	if l.head != nil {
		l.head.prev = n
	}
	l.head = n
	if l.tail == nil {
		l.tail = n
	}
	l.len++
}

func (l *recency) moveToFront(n *node) {
	if n == l.head {
		return
	}
	l.unlink(n)
	l.pushFront(n)
}

// removeOldest unlinks and returns the least recently used node.
func (l *recency) removeOldest() *node {
	n := l.tail
	if n != nil {
		l.unlink(n)
	}
	return n
}

func (l *recency) unlink(n *node) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		l.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		l.tail = n.prev
	}
	n.prev = nil
	n.next = nil
	l.len--
}
