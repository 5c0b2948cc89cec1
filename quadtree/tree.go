package quadtree

import (
	"iter"
	"maps"
	"math"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
)

// Entity is a bounded object that can be stored in a Tree. Two entities are
// the same entity when they compare equal, so pointer types are the usual
// choice.
type Entity interface {
	comparable

	// Position returns the point that decides in which direction the tree
	// grows when the entity lies outside of it.
	Position() Vector2

	// Bounds returns the current bounding region of the entity.
	Bounds() Region
}

// Config holds the parameters of a tree.
type Config struct {
	// The region covered by the root when the tree is created or cleared.
	Bounds Region

	// The expected number of entities. Used to size the reverse lookup.
	CapacityHint int

	// The number of entities a node holds directly before it subdivides.
	MaxEntitiesPerNode int

	// The level past which nodes never subdivide. The root is at level 0.
	MaxDepth int
}

func (c Config) validate() error {
	switch {
	case !c.Bounds.IsValid():
		return errors.New("tree bounds must be finite with a positive size").
			WithType(ErrTypeInvalidConfig).
			WithTag("bounds", c.Bounds)

	case c.MaxEntitiesPerNode < 1:
		return errors.New("max entities per node must be at least 1").
			WithType(ErrTypeInvalidConfig).
			WithTag("max_entities_per_node", c.MaxEntitiesPerNode)

	case c.MaxDepth < 0:
		return errors.New("max depth must not be negative").
			WithType(ErrTypeInvalidConfig).
			WithTag("max_depth", c.MaxDepth)

	case c.CapacityHint < 0:
		return errors.New("capacity hint must not be negative").
			WithType(ErrTypeInvalidConfig).
			WithTag("capacity_hint", c.CapacityHint)

	default:
		return nil
	}
}

// Option customizes a tree created with New.
type Option[E Entity] func(*Tree[E])

// WithPool makes the tree take its nodes from p instead of allocating them.
// A nil pool keeps the unpooled allocator.
func WithPool[E Entity](p *NodePool[E]) Option[E] {
	return func(t *Tree[E]) {
		if p != nil {
			t.alloc = p
			t.pool = p
		}
	}
}

// Stats is a snapshot of tree diagnostics. Counters are cumulative since the
// tree creation.
type Stats struct {
	Entities int
	Nodes    int
	Depth    int
	Bounds   Region

	Expansions        uint64
	Flattened         uint64
	Subdivisions      uint64
	Merges            uint64
	UpdatesSkipped    uint64
	UpdatesInPlace    uint64
	UpdatesReinserted uint64
}

// Tree is a dynamic quadtree that grows to fit the entities inserted into it.
// It is not safe for concurrent use.
type Tree[E Entity] struct {
	conf     Config
	alloc    allocator[E]
	pool     *NodePool[E]
	root     *node[E]
	location map[E]*node[E]
	nodes    int
	stats    Stats
}

// New creates a tree covering conf.Bounds.
func New[E Entity](conf Config, opts ...Option[E]) (*Tree[E], error) {
	if err := conf.validate(); err != nil {
		return nil, err
	}

	t := &Tree[E]{
		conf:     conf,
		alloc:    heapAllocator[E]{},
		location: make(map[E]*node[E], conf.CapacityHint),
	}
	for _, opt := range opts {
		opt(t)
	}

	root, err := t.acquire()
	if err != nil {
		return nil, err
	}
	root.bounds = conf.Bounds
	t.root = root
	return t, nil
}

// Pooled reports whether the tree takes its nodes from a NodePool.
func (t *Tree[E]) Pooled() bool {
	return t.pool != nil
}

// Insert adds e to the tree, growing the tree until it covers e. Inserting an
// entity that is already in the tree moves it to the place matching its
// current bounds. On error, e is not in the tree.
func (t *Tree[E]) Insert(e E) error {
	if _, ok := t.location[e]; ok {
		t.root.remove(t, e)
	}

	r := e.Bounds()
	if !r.Min.IsFinite() || !r.Max.IsFinite() || r.Max.X < r.Min.X || r.Max.Y < r.Min.Y {
		return errors.New("entity bounds are not a finite region").
			WithType(ErrTypeInvariantViolation).
			WithTag("bounds", r)
	}

	p := e.Position()

	expansions, err := t.expansionsToCover(p, r)
	if err != nil {
		return err
	}

	for range expansions {
		if err := t.expand(p); err != nil {
			return err
		}
	}

	ok, err := t.root.insert(t, e, r)
	if err != nil {
		t.root.remove(t, e)
		return err
	}
	if !ok {
		return errors.New("expanded root does not overlap entity").
			WithType(ErrTypeInvariantViolation).
			WithTag("bounds", r).
			WithTag("root_bounds", t.root.bounds)
	}
	return nil
}

// expansionsToCover returns the number of expansions toward p after which the
// root overlaps r. It fails without modifying the tree when the root bounds
// would overflow float64 first. Every expansion doubles the root size, so the
// loop ends.
func (t *Tree[E]) expansionsToCover(p Vector2, r Region) (int, error) {
	bounds := t.root.bounds

	n := 0
	for !bounds.Overlaps(r) {
		dir := bounds.Direction(p)
		if dir == QuadrantNone {
			return 0, errors.New("no expansion direction").
				WithType(ErrTypeInvariantViolation).
				WithTag("position", p).
				WithTag("bounds", bounds)
		}

		bounds = bounds.Grow(dir)
		n++

		if !bounds.IsValid() {
			return 0, errors.New("tree cannot grow to cover entity").
				WithType(ErrTypeInvariantViolation).
				WithTag("bounds", r).
				WithTag("expansions", n)
		}
	}
	return n, nil
}

// expand doubles the area covered by the tree toward p. The current root
// becomes the child of the new root opposite to p.
func (t *Tree[E]) expand(p Vector2) error {
	old := t.root

	dir := old.bounds.Direction(p)
	if dir == QuadrantNone {
		return errors.New("no expansion direction").
			WithType(ErrTypeInvariantViolation).
			WithTag("position", p).
			WithTag("bounds", old.bounds)
	}

	var acquired [4]*node[E]
	for i := range acquired {
		n, err := t.acquire()
		if err != nil {
			for _, a := range acquired[:i] {
				t.release(a)
			}
			return err
		}
		acquired[i] = n
	}

	root := acquired[0]
	root.bounds = old.bounds.Grow(dir)

	slot := dir.Opposite()
	siblings := acquired[1:]
	for q := range root.children {
		if Quadrant(q) == slot {
			root.children[q] = old
			continue
		}

		c := siblings[0]
		siblings = siblings[1:]
		c.level = 1
		c.bounds = root.bounds.Quadrant(Quadrant(q))
		root.children[q] = c
	}

	old.deepen(t)

	kept := old.entities[:0]
	for _, e := range old.entities {
		if old.bounds.ContainsRegion(e.Bounds()) {
			kept = append(kept, e)
			continue
		}
		root.entities = append(root.entities, e)
		t.location[e] = root
	}
	clear(old.entities[len(kept):])
	old.entities = kept

	if root.level >= t.conf.MaxDepth {
		root.flatten(t)
	}

	t.root = root
	t.stats.Expansions++

	logs.WithTag("direction", dir.String()).
		WithTag("bounds", root.bounds).
		WithTag("nodes", t.nodes).
		Debug("quadtree root expanded")
	return nil
}

// Remove takes e out of the tree. It returns false when e was not in the
// tree.
func (t *Tree[E]) Remove(e E) bool {
	return t.root.remove(t, e)
}

// Update tells the tree that e moved by displacement since it was inserted
// or last updated. An entity that is not in the tree is inserted.
//
// Moves that keep every edge of e inside the same cells of the finest grid
// the tree can subdivide into are ignored, which can leave e in a coarser
// node than a fresh insertion would pick. On error, use Contains to know
// whether e is still in the tree.
func (t *Tree[E]) Update(e E, displacement Vector2) error {
	if displacement.IsZero() {
		return nil
	}

	if _, ok := t.location[e]; !ok {
		return t.Insert(e)
	}

	cur := e.Bounds()
	old := cur.Translate(displacement.Neg())

	if t.sameCells(old, cur) {
		t.stats.UpdatesSkipped++
		return nil
	}

	ok, err := t.root.update(t, e, old, cur)
	if err != nil {
		return err
	}
	if _, indexed := t.location[e]; ok && indexed {
		t.stats.UpdatesInPlace++
		return nil
	}

	t.stats.UpdatesReinserted++
	return t.Insert(e)
}

// sameCells reports whether a and b span the same cells of the grid whose
// cells have the size of the deepest possible node.
func (t *Tree[E]) sameCells(a, b Region) bool {
	origin := t.root.bounds.Min
	cell := t.root.bounds.Size().Mul(math.Ldexp(1, -t.conf.MaxDepth))

	index := func(v, origin, size float64) float64 {
		return math.Floor((v - origin) / size)
	}

	return index(a.Min.X, origin.X, cell.X) == index(b.Min.X, origin.X, cell.X) &&
		index(a.Max.X, origin.X, cell.X) == index(b.Max.X, origin.X, cell.X) &&
		index(a.Min.Y, origin.Y, cell.Y) == index(b.Min.Y, origin.Y, cell.Y) &&
		index(a.Max.Y, origin.Y, cell.Y) == index(b.Max.Y, origin.Y, cell.Y)
}

// Query returns the entities whose bounds overlap r. The sequence reads the
// tree lazily and must not be consumed while the tree is modified.
func (t *Tree[E]) Query(r Region) iter.Seq[E] {
	return func(yield func(E) bool) {
		t.root.query(r, yield)
	}
}

// Search returns the entities whose bounds overlap r.
func (t *Tree[E]) Search(r Region) []E {
	var res []E
	t.root.query(r, func(e E) bool {
		res = append(res, e)
		return true
	})
	return res
}

// All returns every entity in the tree, in no particular order.
func (t *Tree[E]) All() iter.Seq[E] {
	return maps.Keys(t.location)
}

// Contains reports whether e is in the tree.
func (t *Tree[E]) Contains(e E) bool {
	_, ok := t.location[e]
	return ok
}

// Clear removes every entity and shrinks the tree back to its initial
// bounds.
func (t *Tree[E]) Clear() {
	t.root.releaseChildren(t)
	t.root.reset()
	t.root.bounds = t.conf.Bounds
	clear(t.location)
}

// Close clears the tree and returns its root to the allocator. The tree must
// not be used afterwards.
func (t *Tree[E]) Close() {
	if t.root == nil {
		return
	}

	t.root.releaseChildren(t)
	t.release(t.root)
	t.root = nil
	t.location = nil
}

// Bounds returns the region currently covered by the root.
func (t *Tree[E]) Bounds() Region {
	return t.root.bounds
}

// Len returns the number of entities in the tree.
func (t *Tree[E]) Len() int {
	return len(t.location)
}

// NodeCount returns the number of nodes in the tree, root included.
func (t *Tree[E]) NodeCount() int {
	return t.nodes
}

func (t *Tree[E]) Stats() Stats {
	s := t.stats
	s.Entities = len(t.location)
	s.Nodes = t.nodes
	s.Depth = t.root.depth()
	s.Bounds = t.root.bounds
	return s
}

func (t *Tree[E]) acquire() (*node[E], error) {
	n, err := t.alloc.acquire()
	if err != nil {
		return nil, err
	}
	t.nodes++
	return n, nil
}

func (t *Tree[E]) release(n *node[E]) {
	t.nodes--
	t.alloc.release(n)
}
