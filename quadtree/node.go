package quadtree

import "slices"

// node is a rectangular cell of a tree. It either has no children or exactly
// four, indexed by Quadrant.
type node[E Entity] struct {
	level    int
	bounds   Region
	entities []E
	children [4]*node[E]
}

func (n *node[E]) reset() {
	clear(n.entities)
	n.entities = n.entities[:0]
	n.level = 0
	n.bounds = Region{}
	n.children = [4]*node[E]{}
}

func (n *node[E]) isLeaf() bool {
	return n.children[TopLeft] == nil
}

func (n *node[E]) isEmptyLeaf() bool {
	return n.isLeaf() && len(n.entities) == 0
}

// classify returns the child whose bounds strictly contain r, or QuadrantNone
// when r straddles a center axis or sticks out of n.
func (n *node[E]) classify(r Region) Quadrant {
	if n.isLeaf() {
		return QuadrantNone
	}

	for q, c := range n.children {
		if c.bounds.ContainsRegion(r) {
			return Quadrant(q)
		}
	}
	return QuadrantNone
}

// insert stores e, whose region is r, in the deepest node of the subtree that
// fully contains it. It returns false when r does not overlap n.
func (n *node[E]) insert(t *Tree[E], e E, r Region) (bool, error) {
	if !n.bounds.Overlaps(r) {
		return false, nil
	}

	if q := n.classify(r); q != QuadrantNone {
		return n.children[q].insert(t, e, r)
	}

	n.entities = append(n.entities, e)
	t.location[e] = n

	if len(n.entities) > t.conf.MaxEntitiesPerNode && n.level < t.conf.MaxDepth {
		return true, n.subdivide(t)
	}
	return true, nil
}

// subdivide creates the four children when missing and pushes down every
// directly held entity that fits inside one of them.
func (n *node[E]) subdivide(t *Tree[E]) error {
	if n.isLeaf() {
		var children [4]*node[E]

		for q := range children {
			c, err := t.acquire()
			if err != nil {
				for _, acquired := range children[:q] {
					t.release(acquired)
				}
				return err
			}

			c.level = n.level + 1
			c.bounds = n.bounds.Quadrant(Quadrant(q))
			children[q] = c
		}

		n.children = children
		t.stats.Subdivisions++
	}

	var err error
	kept := n.entities[:0]

	for _, e := range n.entities {
		r := e.Bounds()

		q := n.classify(r)
		if q == QuadrantNone {
			kept = append(kept, e)
			continue
		}

		delete(t.location, e)
		if _, insertErr := n.children[q].insert(t, e, r); insertErr != nil && err == nil {
			err = insertErr
		}
	}

	clear(n.entities[len(kept):])
	n.entities = kept
	return err
}

// remove takes e out of the subtree and merges n when its children end up
// empty. It returns false when e is not held below n.
func (n *node[E]) remove(t *Tree[E], e E) bool {
	holder, ok := t.location[e]
	if !ok {
		return false
	}
	return n.removeFrom(t, e, holder)
}

func (n *node[E]) removeFrom(t *Tree[E], e E, holder *node[E]) bool {
	removed := false

	if holder == n {
		removed = n.removeDirect(t, e)
	} else if !n.isLeaf() {
		for _, c := range n.children {
			if c != holder && !c.bounds.Encloses(holder.bounds) {
				continue
			}
			if c.removeFrom(t, e, holder) {
				removed = true
				break
			}
		}
	}

	if removed {
		n.merge(t)
	}
	return removed
}

func (n *node[E]) removeDirect(t *Tree[E], e E) bool {
	i := slices.Index(n.entities, e)
	if i < 0 {
		return false
	}

	n.entities = slices.Delete(n.entities, i, i+1)
	if holder, ok := t.location[e]; ok && holder == n {
		delete(t.location, e)
	}
	return true
}

// merge releases the children of n when all four are empty leaves.
func (n *node[E]) merge(t *Tree[E]) {
	if n.isLeaf() {
		return
	}

	for _, c := range n.children {
		if !c.isEmptyLeaf() {
			return
		}
	}

	for _, c := range n.children {
		t.release(c)
	}
	n.children = [4]*node[E]{}
	t.stats.Merges++
}

// update relocates e inside the subtree after its region moved from old to
// cur. It returns true when e ends up held by a node of the subtree.
func (n *node[E]) update(t *Tree[E], e E, old, cur Region) (bool, error) {
	wasIn := n.bounds.Overlaps(old)
	isIn := n.bounds.Overlaps(cur)

	switch {
	case !wasIn && !isIn:
		return false, nil

	case wasIn && isIn:
		if t.location[e] == n {
			if n == t.root || n.bounds.ContainsRegion(cur) {
				return true, nil
			}

			n.remove(t, e)
			return false, nil
		}

		if n.isLeaf() {
			return false, nil
		}

		found := false
		for _, c := range n.children {
			ok, err := c.update(t, e, old, cur)
			if err != nil {
				return false, err
			}
			found = found || ok
		}
		if found {
			return true, nil
		}
		return n.adopt(t, e, cur)

	default:
		n.remove(t, e)
		return n.adopt(t, e, cur)
	}
}

// adopt inserts e below n when e is not indexed anymore and n can hold it.
func (n *node[E]) adopt(t *Tree[E], e E, cur Region) (bool, error) {
	if _, ok := t.location[e]; ok {
		return false, nil
	}

	if n != t.root && !n.bounds.ContainsRegion(cur) {
		return false, nil
	}
	return n.insert(t, e, cur)
}

// query yields the entities of the subtree whose region overlaps r. It returns
// false when yield asked to stop.
func (n *node[E]) query(r Region, yield func(E) bool) bool {
	for _, e := range n.entities {
		if e.Bounds().Overlaps(r) && !yield(e) {
			return false
		}
	}

	if n.isLeaf() {
		return true
	}

	for _, c := range n.children {
		if c.bounds.Overlaps(r) && !c.query(r, yield) {
			return false
		}
	}
	return true
}

// deepen moves the subtree one level down. Nodes that reach the maximum depth
// absorb the entities of their descendants.
func (n *node[E]) deepen(t *Tree[E]) {
	n.level++

	if n.isLeaf() {
		return
	}

	if n.level >= t.conf.MaxDepth {
		n.flatten(t)
		return
	}

	for _, c := range n.children {
		c.deepen(t)
	}
}

// flatten pulls the entities of every descendant into n and releases the
// descendants.
func (n *node[E]) flatten(t *Tree[E]) {
	if n.isLeaf() {
		return
	}

	for _, c := range n.children {
		c.drainInto(t, n)
	}
	n.children = [4]*node[E]{}
	t.stats.Flattened++
}

func (n *node[E]) drainInto(t *Tree[E], dst *node[E]) {
	for _, e := range n.entities {
		dst.entities = append(dst.entities, e)
		t.location[e] = dst
	}

	if !n.isLeaf() {
		for _, c := range n.children {
			c.drainInto(t, dst)
		}
	}
	t.release(n)
}

// releaseChildren returns every descendant of n to the allocator.
func (n *node[E]) releaseChildren(t *Tree[E]) {
	if n.isLeaf() {
		return
	}

	for _, c := range n.children {
		c.releaseChildren(t)
		t.release(c)
	}
	n.children = [4]*node[E]{}
}

func (n *node[E]) depth() int {
	if n.isLeaf() {
		return n.level
	}

	d := n.level
	for _, c := range n.children {
		d = max(d, c.depth())
	}
	return d
}
