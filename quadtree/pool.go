package quadtree

import "github.com/aukilabs/go-tooling/pkg/errors"

// allocator hands out and takes back tree nodes. A tree either owns a
// heapAllocator or borrows a *NodePool; the two never mix within one tree.
type allocator[E Entity] interface {
	acquire() (*node[E], error)
	release(*node[E])
}

// heapAllocator allocates a fresh node every time and lets the garbage
// collector reclaim released ones.
type heapAllocator[E Entity] struct{}

func (heapAllocator[E]) acquire() (*node[E], error) {
	return &node[E]{}, nil
}

func (heapAllocator[E]) release(n *node[E]) {
	n.reset()
}

// NodePool recycles tree nodes up to a fixed number of nodes in use at once.
// A pool can back several trees holding the same entity type. It is not safe
// for concurrent use.
type NodePool[E Entity] struct {
	capacity int
	inUse    int
	free     []*node[E]

	acquired  uint64
	recycled  uint64
	exhausted uint64
}

// NewNodePool creates a pool that allows at most capacity nodes to be in use
// at the same time.
func NewNodePool[E Entity](capacity int) (*NodePool[E], error) {
	if capacity < 1 {
		return nil, errors.New("node pool capacity must be at least 1").
			WithType(ErrTypeInvalidConfig).
			WithTag("capacity", capacity)
	}

	return &NodePool[E]{
		capacity: capacity,
		free:     make([]*node[E], 0, min(capacity, 1024)),
	}, nil
}

func (p *NodePool[E]) acquire() (*node[E], error) {
	if p.inUse >= p.capacity {
		p.exhausted++
		return nil, errPoolExhausted(p.capacity)
	}

	p.inUse++
	p.acquired++

	if l := len(p.free); l != 0 {
		n := p.free[l-1]
		p.free[l-1] = nil
		p.free = p.free[:l-1]
		p.recycled++
		return n, nil
	}
	return &node[E]{}, nil
}

func (p *NodePool[E]) release(n *node[E]) {
	n.reset()
	p.inUse--
	p.free = append(p.free, n)
}

// Capacity returns the maximum number of nodes in use at once.
func (p *NodePool[E]) Capacity() int {
	return p.capacity
}

// InUse returns the number of nodes currently handed out.
func (p *NodePool[E]) InUse() int {
	return p.inUse
}

// Idle returns the number of released nodes waiting to be reused.
func (p *NodePool[E]) Idle() int {
	return len(p.free)
}

// PoolStats is a snapshot of pool counters.
type PoolStats struct {
	Capacity  int
	InUse     int
	Idle      int
	Acquired  uint64
	Recycled  uint64
	Exhausted uint64
}

func (p *NodePool[E]) Stats() PoolStats {
	return PoolStats{
		Capacity:  p.capacity,
		InUse:     p.inUse,
		Idle:      len(p.free),
		Acquired:  p.acquired,
		Recycled:  p.recycled,
		Exhausted: p.exhausted,
	}
}
