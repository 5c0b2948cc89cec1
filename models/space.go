package models

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/quadtree/quadtree"
	"github.com/google/uuid"
)

// SpaceOptions holds the parameters of a space.
type SpaceOptions struct {
	// The name reported in metrics. Spaces created from the same preset share
	// a name.
	Name string

	Bounds             quadtree.Region
	MaxEntitiesPerNode int
	MaxDepth           int

	// The maximum number of index nodes. 0 allocates nodes on demand.
	PoolCapacity int

	// The duration of a frame. Entity velocities are applied once per frame.
	FrameDuration time.Duration

	// Frames still run frame handlers but do not move entities.
	DisableMovement bool
}

// Space is a region of the world where entities move. Every call to its
// spatial index happens under the space mutex.
type Space struct {
	ID   uint32
	UUID string
	Name string

	mutex     sync.RWMutex
	tree      *quadtree.Tree[*Entity]
	pool      *quadtree.NodePool[*Entity]
	lastStats quadtree.Stats
	entityIDs SequentialIDGenerator
	entities  map[uint32]*Entity

	closed bool

	disableMovement bool
	frameDuration   time.Duration
	startFrameOnce  sync.Once
	closeFrameChan  chan struct{}
	frameTicker     *time.Ticker
	frameHandlerIDs SequentialIDGenerator
	frameHandlers   map[uint32]func()
	frameMutex      sync.RWMutex

	closeOnce sync.Once
}

func NewSpace(id uint32, opts SpaceOptions) (*Space, error) {
	if opts.FrameDuration <= 0 {
		return nil, errors.New("frame duration must be positive").
			WithType(ErrTypeBadRequest).
			WithTag("frame_duration", opts.FrameDuration)
	}

	var treeOpts []quadtree.Option[*Entity]
	var pool *quadtree.NodePool[*Entity]

	if opts.PoolCapacity > 0 {
		p, err := quadtree.NewNodePool[*Entity](opts.PoolCapacity)
		if err != nil {
			return nil, errors.New("creating node pool failed").
				WithType(ErrTypeBadRequest).
				Wrap(err)
		}
		pool = p
		treeOpts = append(treeOpts, quadtree.WithPool(p))
	}

	tree, err := quadtree.New(quadtree.Config{
		Bounds:             opts.Bounds,
		MaxEntitiesPerNode: opts.MaxEntitiesPerNode,
		MaxDepth:           opts.MaxDepth,
	}, treeOpts...)
	if err != nil {
		return nil, errors.New("creating spatial index failed").
			WithType(ErrTypeBadRequest).
			Wrap(err)
	}

	s := &Space{
		ID:              id,
		UUID:            uuid.New().String(),
		Name:            opts.Name,
		tree:            tree,
		pool:            pool,
		entities:        make(map[uint32]*Entity),
		disableMovement: opts.DisableMovement,
		frameDuration:   opts.FrameDuration,
		closeFrameChan:  make(chan struct{}, 1),
		frameTicker:     time.NewTicker(opts.FrameDuration),
		frameHandlers:   make(map[uint32]func()),
	}
	s.observe()
	return s, nil
}

func (s *Space) Close() {
	s.closeOnce.Do(func() {
		s.frameTicker.Stop()
		s.closeFrameChan <- struct{}{}

		s.mutex.Lock()
		defer s.mutex.Unlock()

		s.closed = true
		s.tree.Close()
		instrumentTree(s.Name, s.lastStats, quadtree.Stats{})
		s.lastStats = quadtree.Stats{}
	})
}

// AddEntity creates an entity and indexes it.
func (s *Space) AddEntity(position, halfExtents, velocity quadtree.Vector2) (*Entity, error) {
	id := s.entityIDs.New()

	e, err := NewEntity(id, position, halfExtents, velocity)
	if err != nil {
		s.entityIDs.Reuse(id)
		return nil, err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		s.entityIDs.Reuse(id)
		return nil, errSpaceClosed(s.ID)
	}
	defer s.observe()

	if err := s.tree.Insert(e); err != nil {
		s.entityIDs.Reuse(id)
		s.instrumentError(err)
		return nil, errors.New("indexing entity failed").
			WithType(indexErrorType(err)).
			WithTag("space_id", s.ID).
			WithTag("entity_id", id).
			Wrap(err)
	}

	s.entities[id] = e
	return e, nil
}

func (s *Space) RemoveEntity(id uint32) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		return errSpaceClosed(s.ID)
	}
	defer s.observe()

	e, ok := s.entities[id]
	if !ok {
		return errEntityNotFound(s.ID, id)
	}

	s.tree.Remove(e)
	delete(s.entities, id)
	s.entityIDs.Reuse(id)
	return nil
}

// MoveEntity translates an entity by d.
func (s *Space) MoveEntity(id uint32, d quadtree.Vector2) (*Entity, error) {
	if !d.IsFinite() {
		return nil, errors.New("displacement must be finite").
			WithType(ErrTypeBadRequest).
			WithTag("displacement", d)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		return nil, errSpaceClosed(s.ID)
	}
	defer s.observe()

	e, ok := s.entities[id]
	if !ok {
		return nil, errEntityNotFound(s.ID, id)
	}

	if err := s.move(e, d); err != nil {
		return nil, err
	}
	return e, nil
}

// move must be called with the space mutex held. An entity the index could
// not keep is removed from the space.
func (s *Space) move(e *Entity, d quadtree.Vector2) error {
	e.Move(d)

	err := s.tree.Update(e, d)
	if err == nil {
		return nil
	}

	s.instrumentError(err)
	if !s.tree.Contains(e) {
		delete(s.entities, e.ID)
		s.entityIDs.Reuse(e.ID)
	}

	return errors.New("moving entity failed").
		WithType(indexErrorType(err)).
		WithTag("space_id", s.ID).
		WithTag("entity_id", e.ID).
		Wrap(err)
}

func (s *Space) SetVelocity(id uint32, v quadtree.Vector2) (*Entity, error) {
	if !v.IsFinite() {
		return nil, errors.New("velocity must be finite").
			WithType(ErrTypeBadRequest).
			WithTag("velocity", v)
	}

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	e, ok := s.entities[id]
	if !ok {
		return nil, errEntityNotFound(s.ID, id)
	}

	e.SetVelocity(v)
	return e, nil
}

func (s *Space) Entity(id uint32) (*Entity, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	e, ok := s.entities[id]
	return e, ok
}

// Entities returns the entities of the space sorted by id.
func (s *Space) Entities() []*Entity {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	entities := make([]*Entity, 0, len(s.entities))
	for _, e := range s.entities {
		entities = append(entities, e)
	}
	sortEntities(entities)
	return entities
}

func (s *Space) EntityCount() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return len(s.entities)
}

// Query returns the entities overlapping r, sorted by id.
func (s *Space) Query(r quadtree.Region) []*Entity {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if s.closed {
		return nil
	}

	entities := s.tree.Search(r)
	sortEntities(entities)
	return entities
}

// Step moves every entity by its velocity over dt.
func (s *Space) Step(dt time.Duration) {
	start := time.Now()
	defer instrumentFrame(s.Name, start)

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		return
	}
	defer s.observe()

	seconds := dt.Seconds()
	for _, e := range s.entities {
		v := e.Velocity()
		if v.IsZero() {
			continue
		}

		if err := s.move(e, v.Mul(seconds)); err != nil {
			logs.Warn(err)
		}
	}
}

// HandleFrame registers h to be called after each frame.
func (s *Space) HandleFrame(h func()) (cancel func()) {
	s.frameMutex.Lock()
	defer s.frameMutex.Unlock()

	id := s.frameHandlerIDs.New()
	s.frameHandlers[id] = h

	return func() {
		s.frameMutex.Lock()
		defer s.frameMutex.Unlock()

		delete(s.frameHandlers, id)
		s.frameHandlerIDs.Reuse(id)
	}
}

// StartDispatchFrames runs frames until the space is closed. Calls after the
// first one return immediately.
func (s *Space) StartDispatchFrames() {
	s.startFrameOnce.Do(func() {
		for {
			select {
			case <-s.closeFrameChan:
				return

			case <-s.frameTicker.C:
				if !s.disableMovement {
					s.Step(s.frameDuration)
				}

				s.frameMutex.RLock()
				for _, h := range s.frameHandlers {
					h()
				}
				s.frameMutex.RUnlock()
			}
		}
	})
}

// SpaceStats describes a space and its spatial index.
type SpaceStats struct {
	ID                uint32    `json:"id"`
	UUID              string    `json:"uuid"`
	Name              string    `json:"name"`
	Entities          int       `json:"entities"`
	Nodes             int       `json:"nodes"`
	Depth             int       `json:"depth"`
	Bounds            Rect      `json:"bounds"`
	Expansions        uint64    `json:"expansions"`
	Subdivisions      uint64    `json:"subdivisions"`
	Merges            uint64    `json:"merges"`
	Flattened         uint64    `json:"flattened"`
	UpdatesSkipped    uint64    `json:"updates_skipped"`
	UpdatesInPlace    uint64    `json:"updates_in_place"`
	UpdatesReinserted uint64    `json:"updates_reinserted"`
	Pool              *PoolView `json:"pool,omitempty"`
}

// PoolView describes the node pool of a space.
type PoolView struct {
	Capacity  int    `json:"capacity"`
	InUse     int    `json:"in_use"`
	Idle      int    `json:"idle"`
	Acquired  uint64 `json:"acquired"`
	Recycled  uint64 `json:"recycled"`
	Exhausted uint64 `json:"exhausted"`
}

func (s *Space) Stats() SpaceStats {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if s.closed {
		return SpaceStats{ID: s.ID, UUID: s.UUID, Name: s.Name}
	}

	stats := s.tree.Stats()
	res := SpaceStats{
		ID:                s.ID,
		UUID:              s.UUID,
		Name:              s.Name,
		Entities:          stats.Entities,
		Nodes:             stats.Nodes,
		Depth:             stats.Depth,
		Bounds:            NewRect(stats.Bounds),
		Expansions:        stats.Expansions,
		Subdivisions:      stats.Subdivisions,
		Merges:            stats.Merges,
		Flattened:         stats.Flattened,
		UpdatesSkipped:    stats.UpdatesSkipped,
		UpdatesInPlace:    stats.UpdatesInPlace,
		UpdatesReinserted: stats.UpdatesReinserted,
	}

	if s.pool != nil {
		p := s.pool.Stats()
		res.Pool = &PoolView{
			Capacity:  p.Capacity,
			InUse:     p.InUse,
			Idle:      p.Idle,
			Acquired:  p.Acquired,
			Recycled:  p.Recycled,
			Exhausted: p.Exhausted,
		}
	}
	return res
}

// NodeView describes one node of the spatial index.
type NodeView struct {
	Level    int  `json:"level"`
	Bounds   Rect `json:"bounds"`
	Entities int  `json:"entities"`
	Leaf     bool `json:"leaf"`
}

// DebugInfo returns the nodes of the spatial index, parents first.
func (s *Space) DebugInfo() []NodeView {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if s.closed {
		return nil
	}

	info := s.tree.DebugInfo()
	views := make([]NodeView, len(info))
	for i, n := range info {
		views[i] = NodeView{
			Level:    n.Level,
			Bounds:   NewRect(n.Bounds),
			Entities: n.Entities,
			Leaf:     n.Leaf,
		}
	}
	return views
}

// Validate checks that the spatial index and the entity registry agree.
func (s *Space) Validate() error {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if s.closed {
		return errSpaceClosed(s.ID)
	}

	if err := s.tree.Validate(); err != nil {
		return err
	}

	if l := s.tree.Len(); l != len(s.entities) {
		return errors.New("index and registry disagree").
			WithTag("indexed", l).
			WithTag("registered", len(s.entities))
	}

	for _, e := range s.entities {
		if !s.tree.Contains(e) {
			return errors.New("registered entity is not indexed").
				WithTag("entity_id", e.ID)
		}
	}
	return nil
}

// observe must be called with the space mutex held.
func (s *Space) observe() {
	stats := s.tree.Stats()
	instrumentTree(s.Name, s.lastStats, stats)
	s.lastStats = stats
}

func (s *Space) instrumentError(err error) {
	errType := errors.Type(err)
	if errType == "" {
		errType = "unknown"
	}
	instrumentIndexError(s.Name, errType)
}

func sortEntities(entities []*Entity) {
	slices.SortFunc(entities, func(a, b *Entity) int {
		return cmp.Compare(a.ID, b.ID)
	})
}

// SpaceStore holds the spaces of a server.
type SpaceStore struct {
	initOnce sync.Once
	mutex    sync.RWMutex
	spaces   map[uint32]*Space
	ids      SequentialIDGenerator
}

func (s *SpaceStore) init() {
	s.spaces = make(map[uint32]*Space)
}

func (s *SpaceStore) NewID() uint32 {
	return s.ids.New()
}

func (s *SpaceStore) Add(ctx context.Context, space *Space) {
	s.initOnce.Do(s.init)
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.spaces[space.ID] = space

	instrumentIncreaseSpaceGauge(space.Name)
	instrumentCountSpace(space.Name)

	logs.WithTag("space_id", space.ID).
		WithTag("space_uuid", space.UUID).
		WithTag("name", space.Name).
		Info("space added")
}

func (s *SpaceStore) Remove(ctx context.Context, id uint32) error {
	s.initOnce.Do(s.init)
	s.mutex.Lock()
	defer s.mutex.Unlock()

	space, ok := s.spaces[id]
	if !ok {
		return errSpaceNotFound(id)
	}

	delete(s.spaces, id)
	space.Close()
	s.ids.Reuse(id)

	instrumentDecreaseSpaceGauge(space.Name)

	logs.WithTag("space_id", space.ID).
		WithTag("space_uuid", space.UUID).
		Info("space removed")
	return nil
}

func (s *SpaceStore) Get(id uint32) (*Space, error) {
	s.initOnce.Do(s.init)
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	space, ok := s.spaces[id]
	if !ok {
		return nil, errSpaceNotFound(id)
	}
	return space, nil
}

// List returns the spaces sorted by id.
func (s *SpaceStore) List() []*Space {
	s.initOnce.Do(s.init)
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	spaces := make([]*Space, 0, len(s.spaces))
	for _, space := range s.spaces {
		spaces = append(spaces, space)
	}
	slices.SortFunc(spaces, func(a, b *Space) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return spaces
}

// Close removes and closes every space.
func (s *SpaceStore) Close(ctx context.Context) {
	for _, space := range s.List() {
		if err := s.Remove(ctx, space.ID); err != nil {
			logs.Warn(err)
		}
	}
}
