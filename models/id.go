package models

import (
	"slices"
	"sync"
)

// SequentialIDGenerator hands out the space and entity ids of a server. Ids
// start at 1 and released ids are handed out again, lowest first, before
// new ones.
type SequentialIDGenerator struct {
	mutex    sync.Mutex
	lastID   uint32
	released []uint32
}

// New returns the lowest released id, or the id following the last one
// handed out.
func (g *SequentialIDGenerator) New() uint32 {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if len(g.released) != 0 {
		id := g.released[0]
		g.released = g.released[1:]
		return id
	}

	g.lastID++
	return g.lastID
}

// Reuse releases id so that New can return it again. Ids that were never
// handed out or that are already released are ignored.
func (g *SequentialIDGenerator) Reuse(id uint32) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if id == 0 || id > g.lastID {
		return
	}

	i, found := slices.BinarySearch(g.released, id)
	if found {
		return
	}
	g.released = slices.Insert(g.released, i, id)
}
