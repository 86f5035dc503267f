package doctree

import (
	"fmt"
	"sync"
)

// Tree is an ordered document hierarchy with an id index for O(1) lookup.
// Structural mutations go through the Tree so the index never goes stale:
// AttachChildren registers new nodes under the same lock that links them.
type Tree struct {
	Root *Node

	mu    sync.RWMutex
	index map[string]*Node
}

// New builds a Tree over an existing root, indexing every node.
// Returns an error if any id repeats.
func New(root *Node) (*Tree, error) {
	t := &Tree{Root: root, index: make(map[string]*Node)}
	var walk func(n *Node) error
	walk = func(n *Node) error {
		if _, dup := t.index[n.ID]; dup {
			return fmt.Errorf("duplicate node id %q", n.ID)
		}
		t.index[n.ID] = n
		for _, c := range n.Children {
			if err := walk(c); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(root); err != nil {
		return nil, err
	}
	return t, nil
}

// Lookup returns the node with the given id, or nil.
func (t *Tree) Lookup(id string) *Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.index[id]
}

// Len returns the number of nodes in the tree.
func (t *Tree) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.index)
}

// UniqueID returns base if unused, otherwise base-2, base-3, ... in
// positional order. The caller must register the id promptly (AttachChildren
// does this); concurrent callers racing on the same base are serialized by
// the atomizer's ownership discipline, not by this method.
func (t *Tree) UniqueID(base string) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if _, taken := t.index[base]; !taken {
		return base
	}
	for i := 2; ; i++ {
		id := fmt.Sprintf("%s-%d", base, i)
		if _, taken := t.index[id]; !taken {
			return id
		}
	}
}

// AttachChildren links children under parent and indexes them in one
// exclusive section, so no reader ever observes a stale index. Child levels
// are forced to parent.Level+1. A child id already in use gets a positional
// suffix; the title is left unchanged.
func (t *Tree) AttachChildren(parent *Node, children []*Node) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, c := range children {
		if _, dup := t.index[c.ID]; dup {
			base := c.ID
			for i := 2; ; i++ {
				id := fmt.Sprintf("%s-%d", base, i)
				if _, taken := t.index[id]; !taken {
					c.ID = id
					break
				}
			}
		}
		c.Level = parent.Level + 1
		t.index[c.ID] = c
		parent.Children = append(parent.Children, c)
	}
}

// Walk visits every node in pre-order (children in reading order).
// Returning false from fn skips the node's subtree.
func (t *Tree) Walk(fn func(n *Node) bool) {
	var walk func(n *Node)
	walk = func(n *Node) {
		if !fn(n) {
			return
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(t.Root)
}

// CountByStatus tallies node statuses across the whole tree.
func (t *Tree) CountByStatus() map[Status]int {
	counts := make(map[Status]int)
	t.Walk(func(n *Node) bool {
		counts[n.Status]++
		return true
	})
	return counts
}

// CollectWarnings gathers every node warning in pre-order.
func (t *Tree) CollectWarnings() []Warning {
	var out []Warning
	t.Walk(func(n *Node) bool {
		out = append(out, n.Warnings...)
		return true
	})
	return out
}

// Check re-verifies the tree invariants: connected single root at level 0,
// unique indexed ids, level(child) = level(parent)+1, non-leaves never
// ATOMIC or FILLED, and FILLED implies a complete atom record.
func (t *Tree) Check() error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.Root == nil {
		return fmt.Errorf("tree has no root")
	}
	if t.Root.Level != 0 {
		return fmt.Errorf("root %q has level %d, want 0", t.Root.ID, t.Root.Level)
	}

	seen := make(map[string]bool, len(t.index))
	var walk func(n *Node) error
	walk = func(n *Node) error {
		if seen[n.ID] {
			return fmt.Errorf("node %q reachable twice", n.ID)
		}
		seen[n.ID] = true
		if t.index[n.ID] != n {
			return fmt.Errorf("node %q missing from index or index stale", n.ID)
		}
		if len(n.Children) > 0 && (n.Status == StatusAtomic || n.Status == StatusFilled) {
			return fmt.Errorf("node %q has children but status %s", n.ID, n.Status)
		}
		if n.Status == StatusFilled {
			if n.Atom == nil || n.Atom.Description == "" || n.Atom.Statement == "" {
				return fmt.Errorf("node %q is filled without complete atom content", n.ID)
			}
		}
		for _, c := range n.Children {
			if c.Level != n.Level+1 {
				return fmt.Errorf("node %q level %d under parent %q level %d", c.ID, c.Level, n.ID, n.Level)
			}
			if err := walk(c); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(t.Root); err != nil {
		return err
	}
	if len(seen) != len(t.index) {
		return fmt.Errorf("index has %d nodes, tree has %d reachable", len(t.index), len(seen))
	}
	return nil
}
