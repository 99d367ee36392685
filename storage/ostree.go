package storage

import "math/rand/v2"

// memberNode is a treap node keyed by member name. Subtree sizes are
// kept so positions can be resolved without a full traversal.
type memberNode struct {
	name     string
	value    string
	priority int
	size     int
	left     *memberNode
	right    *memberNode
}

func nodeSize(n *memberNode) int {
	if n == nil {
		return 0
	}
	return n.size
}

// pull recalculates the subtree size after a structural change
func pull(n *memberNode) {
	n.size = 1 + nodeSize(n.left) + nodeSize(n.right)
}

func rotateRight(n *memberNode) *memberNode {
	l := n.left
	n.left = l.right
	l.right = n
	pull(n)
	pull(l)
	return l
}

func rotateLeft(n *memberNode) *memberNode {
	r := n.right
	n.right = r.left
	r.left = n
	pull(n)
	pull(r)
	return r
}

// upsert inserts name or overwrites its value. The bool result is true
// when a new node was created.
func upsert(n *memberNode, name, value string, prio int) (*memberNode, bool) {
	if n == nil {
		return &memberNode{name: name, value: value, priority: prio, size: 1}, true
	}

	var created bool
	switch {
	case name == n.name:
		n.value = value
		return n, false
	case name < n.name:
		n.left, created = upsert(n.left, name, value, prio)
		if n.left.priority > n.priority {
			n = rotateRight(n)
		}
	default:
		n.right, created = upsert(n.right, name, value, prio)
		if n.right.priority > n.priority {
			n = rotateLeft(n)
		}
	}

	pull(n)
	return n, created
}

// walk visits nodes whose in-order position lies in [lo, hi].
// offset is the position of the leftmost node of n's subtree.
// Returning false from fn stops the walk.
func walk(n *memberNode, offset, lo, hi int, fn func(pos int, n *memberNode) bool) bool {
	if n == nil {
		return true
	}

	pos := offset + nodeSize(n.left)
	if lo < pos {
		if !walk(n.left, offset, lo, hi, fn) {
			return false
		}
	}
	if pos >= lo && pos <= hi {
		if !fn(pos, n) {
			return false
		}
	}
	if hi > pos {
		return walk(n.right, pos+1, lo, hi, fn)
	}
	return true
}

// memberTree is an order-statistics tree of members, ordered by name
type memberTree struct {
	root *memberNode
}

func newMemberTree() *memberTree {
	return new(memberTree)
}

// Len returns the number of members
func (t *memberTree) Len() int {
	return nodeSize(t.root)
}

// Put adds or updates a member and reports whether it was new
func (t *memberTree) Put(name, value string) bool {
	var created bool
	t.root, created = upsert(t.root, name, value, rand.Int())
	return created
}

// Get returns the value of a member
func (t *memberTree) Get(name string) (string, bool) {
	n := t.root
	for n != nil {
		switch {
		case name == n.name:
			return n.value, true
		case name < n.name:
			n = n.left
		default:
			n = n.right
		}
	}
	return "", false
}

// IndexOfValue returns the position of the first member holding value,
// or -1 when no member does
func (t *memberTree) IndexOfValue(value string) int {
	idx := -1
	walk(t.root, 0, 0, t.Len()-1, func(pos int, n *memberNode) bool {
		if n.value == value {
			idx = pos
			return false
		}
		return true
	})
	return idx
}

// Values returns the values at positions lo..hi inclusive
func (t *memberTree) Values(lo, hi int) []string {
	values := make([]string, 0, hi-lo+1)
	walk(t.root, 0, lo, hi, func(_ int, n *memberNode) bool {
		values = append(values, n.value)
		return true
	})
	return values
}

// Members returns all members in name order
func (t *memberTree) Members() []Member {
	members := make([]Member, 0, t.Len())
	walk(t.root, 0, 0, t.Len()-1, func(_ int, n *memberNode) bool {
		members = append(members, Member{Name: n.name, Value: n.value})
		return true
	})
	return members
}
