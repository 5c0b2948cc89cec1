package models

import (
	"sync"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/quadtree/quadtree"
)

// Entity is a moving box living in a space.
type Entity struct {
	ID uint32

	mutex       sync.RWMutex
	position    quadtree.Vector2
	halfExtents quadtree.Vector2
	velocity    quadtree.Vector2
}

func NewEntity(id uint32, position, halfExtents, velocity quadtree.Vector2) (*Entity, error) {
	if !position.IsFinite() || !halfExtents.IsFinite() || !velocity.IsFinite() {
		return nil, errors.New("entity coordinates must be finite").
			WithType(ErrTypeBadRequest).
			WithTag("position", position).
			WithTag("half_extents", halfExtents).
			WithTag("velocity", velocity)
	}

	if halfExtents.X < 0 || halfExtents.Y < 0 {
		return nil, errors.New("entity half extents must not be negative").
			WithType(ErrTypeBadRequest).
			WithTag("half_extents", halfExtents)
	}

	return &Entity{
		ID:          id,
		position:    position,
		halfExtents: halfExtents,
		velocity:    velocity,
	}, nil
}

func (e *Entity) Position() quadtree.Vector2 {
	e.mutex.RLock()
	defer e.mutex.RUnlock()

	return e.position
}

func (e *Entity) Bounds() quadtree.Region {
	e.mutex.RLock()
	defer e.mutex.RUnlock()

	return quadtree.NewRegion(e.position, e.halfExtents)
}

func (e *Entity) Velocity() quadtree.Vector2 {
	e.mutex.RLock()
	defer e.mutex.RUnlock()

	return e.velocity
}

func (e *Entity) SetVelocity(v quadtree.Vector2) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	e.velocity = v
}

// Move translates the entity by d. The space holding the entity must be told
// about the move.
func (e *Entity) Move(d quadtree.Vector2) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	e.position = e.position.Add(d)
}

func (e *Entity) View() EntityView {
	e.mutex.RLock()
	defer e.mutex.RUnlock()

	return EntityView{
		ID:          e.ID,
		Position:    NewPoint(e.position),
		HalfExtents: NewPoint(e.halfExtents),
		Velocity:    NewPoint(e.velocity),
	}
}

func EntityViews(entities []*Entity) []EntityView {
	views := make([]EntityView, len(entities))
	for i, e := range entities {
		views[i] = e.View()
	}
	return views
}

// EntityView is the serializable state of an entity.
type EntityView struct {
	ID          uint32 `json:"id"`
	Position    Point  `json:"position"`
	HalfExtents Point  `json:"half_extents"`
	Velocity    Point  `json:"velocity"`
}

type Point struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

func NewPoint(v quadtree.Vector2) Point {
	return Point{X: v.X, Y: v.Y}
}

func (p Point) Vector() quadtree.Vector2 {
	return quadtree.Vector2{X: p.X, Y: p.Y}
}

type Rect struct {
	Min Point `json:"min" yaml:"min"`
	Max Point `json:"max" yaml:"max"`
}

func NewRect(r quadtree.Region) Rect {
	return Rect{Min: NewPoint(r.Min), Max: NewPoint(r.Max)}
}

func (r Rect) Region() quadtree.Region {
	return quadtree.Region{Min: r.Min.Vector(), Max: r.Max.Vector()}
}
