package quadtree

import "math"

// Vector2 is a point or a displacement in the plane.
type Vector2 struct {
	X float64
	Y float64
}

func (v Vector2) Add(o Vector2) Vector2 {
	return Vector2{v.X + o.X, v.Y + o.Y}
}

func (v Vector2) Sub(o Vector2) Vector2 {
	return Vector2{v.X - o.X, v.Y - o.Y}
}

func (v Vector2) Mul(s float64) Vector2 {
	return Vector2{v.X * s, v.Y * s}
}

func (v Vector2) Neg() Vector2 {
	return Vector2{-v.X, -v.Y}
}

func (v Vector2) IsZero() bool {
	return v.X == 0 && v.Y == 0
}

// IsFinite reports whether both coordinates are neither NaN nor infinite.
func (v Vector2) IsFinite() bool {
	return !math.IsNaN(v.X) && !math.IsInf(v.X, 0) &&
		!math.IsNaN(v.Y) && !math.IsInf(v.Y, 0)
}

// Region is an axis-aligned rectangle.
type Region struct {
	Min Vector2
	Max Vector2
}

// NewRegion returns the region centered on center and extending halfExtents
// on each side.
func NewRegion(center, halfExtents Vector2) Region {
	return Region{
		Min: center.Sub(halfExtents),
		Max: center.Add(halfExtents),
	}
}

func (r Region) Center() Vector2 {
	return Vector2{(r.Min.X + r.Max.X) / 2, (r.Min.Y + r.Max.Y) / 2}
}

func (r Region) Size() Vector2 {
	return r.Max.Sub(r.Min)
}

func (r Region) Translate(d Vector2) Region {
	return Region{Min: r.Min.Add(d), Max: r.Max.Add(d)}
}

// Overlaps reports whether the two regions share at least one point. Touching
// edges count as overlapping.
func (r Region) Overlaps(o Region) bool {
	return r.Min.X <= o.Max.X && r.Max.X >= o.Min.X &&
		r.Min.Y <= o.Max.Y && r.Max.Y >= o.Min.Y
}

// ContainsPoint reports whether p lies inside r, edges included.
func (r Region) ContainsPoint(p Vector2) bool {
	return p.X >= r.Min.X && p.X <= r.Max.X &&
		p.Y >= r.Min.Y && p.Y <= r.Max.Y
}

// ContainsRegion reports whether o lies strictly inside r: an o touching one
// of r's edges is not contained.
func (r Region) ContainsRegion(o Region) bool {
	return o.Min.X > r.Min.X && o.Max.X < r.Max.X &&
		o.Min.Y > r.Min.Y && o.Max.Y < r.Max.Y
}

// Encloses reports whether o lies inside r, edges included.
func (r Region) Encloses(o Region) bool {
	return o.Min.X >= r.Min.X && o.Max.X <= r.Max.X &&
		o.Min.Y >= r.Min.Y && o.Max.Y <= r.Max.Y
}

// IsValid reports whether r has finite coordinates and a strictly positive
// size on both axes.
func (r Region) IsValid() bool {
	return r.Min.IsFinite() && r.Max.IsFinite() &&
		r.Max.X > r.Min.X && r.Max.Y > r.Min.Y
}

// Quadrant identifies one of the four equal quarters of a region. Top is
// toward +Y.
type Quadrant int

const (
	QuadrantNone Quadrant = iota - 1
	TopLeft
	TopRight
	BottomLeft
	BottomRight
)

var quadrantNames = [...]string{"top_left", "top_right", "bottom_left", "bottom_right"}

func (q Quadrant) String() string {
	if q < TopLeft || q > BottomRight {
		return "none"
	}
	return quadrantNames[q]
}

// Opposite returns the diagonally opposite quadrant.
func (q Quadrant) Opposite() Quadrant {
	switch q {
	case TopLeft:
		return BottomRight
	case TopRight:
		return BottomLeft
	case BottomLeft:
		return TopRight
	case BottomRight:
		return TopLeft
	default:
		return QuadrantNone
	}
}

func (q Quadrant) isLeft() bool {
	return q == TopLeft || q == BottomLeft
}

func (q Quadrant) isTop() bool {
	return q == TopLeft || q == TopRight
}

// Quadrant returns the quarter q of r.
func (r Region) Quadrant(q Quadrant) Region {
	c := r.Center()
	switch q {
	case TopLeft:
		return Region{Min: Vector2{r.Min.X, c.Y}, Max: Vector2{c.X, r.Max.Y}}
	case TopRight:
		return Region{Min: c, Max: r.Max}
	case BottomLeft:
		return Region{Min: r.Min, Max: c}
	case BottomRight:
		return Region{Min: Vector2{c.X, r.Min.Y}, Max: Vector2{r.Max.X, c.Y}}
	default:
		return Region{}
	}
}

// Direction returns the quadrant of r's center in which p lies. Points on a
// center axis go right or top. Non-finite points have no direction.
func (r Region) Direction(p Vector2) Quadrant {
	if !p.IsFinite() {
		return QuadrantNone
	}

	c := r.Center()
	left := p.X < c.X
	top := p.Y >= c.Y

	switch {
	case top && left:
		return TopLeft
	case top:
		return TopRight
	case left:
		return BottomLeft
	default:
		return BottomRight
	}
}

// Grow returns the region of twice r's size on both axes that extends r
// toward q, so that r becomes the quadrant opposite to q.
func (r Region) Grow(q Quadrant) Region {
	size := r.Size()
	grown := r

	if q.isLeft() {
		grown.Min.X -= size.X
	} else {
		grown.Max.X += size.X
	}

	if q.isTop() {
		grown.Max.Y += size.Y
	} else {
		grown.Min.Y -= size.Y
	}
	return grown
}
