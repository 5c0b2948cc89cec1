package quadtree

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/stretchr/testify/require"
)

type body struct {
	pos  Vector2
	half Vector2
}

func newBody(x, y, half float64) *body {
	return &body{
		pos:  Vector2{x, y},
		half: Vector2{half, half},
	}
}

func (b *body) Position() Vector2 {
	return b.pos
}

func (b *body) Bounds() Region {
	return NewRegion(b.pos, b.half)
}

func (b *body) move(d Vector2) {
	b.pos = b.pos.Add(d)
}

func newTestTree(t *testing.T, maxEntities, maxDepth int) *Tree[*body] {
	tree, err := New[*body](Config{
		Bounds:             rect(0, 0, 100, 100),
		CapacityHint:       16,
		MaxEntitiesPerNode: maxEntities,
		MaxDepth:           maxDepth,
	})
	require.NoError(t, err)
	return tree
}

func TestNew(t *testing.T) {
	tests := []struct {
		name string
		conf Config
		err  bool
	}{
		{
			name: "valid",
			conf: Config{Bounds: rect(0, 0, 1, 1), MaxEntitiesPerNode: 1},
		},
		{
			name: "empty bounds",
			conf: Config{Bounds: rect(0, 0, 0, 1), MaxEntitiesPerNode: 1},
			err:  true,
		},
		{
			name: "no entities per node",
			conf: Config{Bounds: rect(0, 0, 1, 1)},
			err:  true,
		},
		{
			name: "negative depth",
			conf: Config{Bounds: rect(0, 0, 1, 1), MaxEntitiesPerNode: 1, MaxDepth: -1},
			err:  true,
		},
		{
			name: "negative capacity hint",
			conf: Config{Bounds: rect(0, 0, 1, 1), MaxEntitiesPerNode: 1, CapacityHint: -1},
			err:  true,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			tree, err := New[*body](test.conf)
			if test.err {
				require.Error(t, err)
				require.Nil(t, tree)
				return
			}

			require.NoError(t, err)
			require.False(t, tree.Pooled())
			require.Equal(t, test.conf.Bounds, tree.Bounds())
			require.Equal(t, 1, tree.NodeCount())
			require.Zero(t, tree.Len())
		})
	}
}

func TestTreeInsert(t *testing.T) {
	t.Run("clustered entities subdivide", func(t *testing.T) {
		tree := newTestTree(t, 4, 4)

		var bodies []*body
		for i := 0; i < 5; i++ {
			b := newBody(10+float64(i)*0.1, 10, 0.5)
			bodies = append(bodies, b)
			require.NoError(t, tree.Insert(b))
		}

		require.Equal(t, 5, tree.Len())
		require.Greater(t, tree.NodeCount(), 1)
		require.Equal(t, 4, tree.Stats().Depth)
		require.ElementsMatch(t, bodies, tree.Search(rect(0, 0, 20, 20)))
		require.Empty(t, tree.Search(rect(50, 50, 100, 100)))
		require.NoError(t, tree.Validate())
	})

	t.Run("straddlers stay in the parent", func(t *testing.T) {
		tree := newTestTree(t, 1, 4)

		center := newBody(50, 50, 5)
		corner := newBody(10, 10, 1)
		require.NoError(t, tree.Insert(center))
		require.NoError(t, tree.Insert(corner))

		require.Same(t, tree.root, tree.location[center])
		require.NotSame(t, tree.root, tree.location[corner])
		require.ElementsMatch(t, []*body{center}, tree.Search(rect(54, 54, 60, 60)))
		require.NoError(t, tree.Validate())
	})

	t.Run("entity on a center axis stays in the parent", func(t *testing.T) {
		tree := newTestTree(t, 1, 4)

		onAxis := &body{pos: Vector2{50, 20}}
		other := newBody(80, 80, 1)
		require.NoError(t, tree.Insert(onAxis))
		require.NoError(t, tree.Insert(other))

		require.Same(t, tree.root, tree.location[onAxis])
		require.ElementsMatch(t, []*body{onAxis}, tree.Search(rect(50, 20, 50, 20)))
	})

	t.Run("entity far outside expands the tree", func(t *testing.T) {
		tree := newTestTree(t, 4, 4)
		inside := newBody(10, 10, 1)
		require.NoError(t, tree.Insert(inside))

		far := newBody(500, 500, 1)
		require.NoError(t, tree.Insert(far))

		require.True(t, tree.Bounds().ContainsPoint(far.pos))
		require.Equal(t, rect(0, 0, 800, 800), tree.Bounds())
		require.Equal(t, uint64(3), tree.Stats().Expansions)
		require.ElementsMatch(t, []*body{far}, tree.Search(rect(490, 490, 510, 510)))
		require.ElementsMatch(t, []*body{inside}, tree.Search(rect(0, 0, 20, 20)))
		require.NoError(t, tree.Validate())
	})

	t.Run("expansion keeps the old root opposite to the growth", func(t *testing.T) {
		tree := newTestTree(t, 4, 4)
		old := tree.root

		require.NoError(t, tree.Insert(newBody(-50, 150, 1)))
		require.Equal(t, rect(-100, 0, 100, 200), tree.Bounds())
		require.Same(t, old, tree.root.children[BottomRight])
		require.Equal(t, 1, old.level)
	})

	t.Run("expansion toward negative coordinates", func(t *testing.T) {
		tree := newTestTree(t, 2, 6)

		b := newBody(-250, 30, 2)
		require.NoError(t, tree.Insert(b))
		require.True(t, tree.Bounds().Encloses(b.Bounds()))
		require.ElementsMatch(t, []*body{b}, tree.Search(rect(-260, 20, -240, 40)))
		require.NoError(t, tree.Validate())
	})

	t.Run("expansion flattens subtrees past the max depth", func(t *testing.T) {
		tree := newTestTree(t, 1, 2)

		a := newBody(10, 10, 1)
		b := newBody(40, 40, 1)
		require.NoError(t, tree.Insert(a))
		require.NoError(t, tree.Insert(b))
		require.Equal(t, 2, tree.Stats().Depth)

		far := newBody(500, 500, 1)
		require.NoError(t, tree.Insert(far))

		stats := tree.Stats()
		require.LessOrEqual(t, stats.Depth, 2)
		require.NotZero(t, stats.Flattened)
		require.ElementsMatch(t, []*body{a, b}, tree.Search(rect(0, 0, 50, 50)))
		require.ElementsMatch(t, []*body{far}, tree.Search(rect(450, 450, 550, 550)))
		require.NoError(t, tree.Validate())
	})

	t.Run("entity sticking out of the old root moves to the new root", func(t *testing.T) {
		tree := newTestTree(t, 4, 4)

		edge := newBody(95, 50, 10)
		require.NoError(t, tree.Insert(edge))
		require.NoError(t, tree.Insert(newBody(-300, -300, 1)))

		require.Same(t, tree.root, tree.location[edge])
		require.ElementsMatch(t, []*body{edge}, tree.Search(rect(104, 50, 105, 51)))
		require.NoError(t, tree.Validate())
	})

	t.Run("inserting twice keeps one copy", func(t *testing.T) {
		tree := newTestTree(t, 1, 4)

		b := newBody(10, 10, 1)
		require.NoError(t, tree.Insert(b))
		b.move(Vector2{60, 60})
		require.NoError(t, tree.Insert(b))

		require.Equal(t, 1, tree.Len())
		require.Empty(t, tree.Search(rect(0, 0, 20, 20)))
		require.ElementsMatch(t, []*body{b}, tree.Search(rect(60, 60, 80, 80)))
		require.NoError(t, tree.Validate())
	})

	t.Run("non finite entity fails", func(t *testing.T) {
		tree := newTestTree(t, 4, 4)

		b := &body{pos: Vector2{X: 1, Y: 1}, half: Vector2{X: 1, Y: -1}}
		err := tree.Insert(b)
		require.True(t, IsInvariantViolation(err))
		require.False(t, tree.Contains(b))
	})

	t.Run("entity beyond a billion times the bounds", func(t *testing.T) {
		tree := newTestTree(t, 1, 4)
		near := newBody(10, 10, 1)
		require.NoError(t, tree.Insert(near))

		far := newBody(1e25, 1e25, 1)
		require.NoError(t, tree.Insert(far))

		require.True(t, tree.Bounds().ContainsPoint(far.pos))
		require.Greater(t, tree.Stats().Expansions, uint64(64))
		require.ElementsMatch(t, []*body{far}, tree.Search(rect(1e25-2, 1e25-2, 1e25+2, 1e25+2)))
		require.ElementsMatch(t, []*body{near}, tree.Search(rect(0, 0, 20, 20)))
		require.NoError(t, tree.Validate())
	})

	t.Run("entity out of float range fails without growing", func(t *testing.T) {
		tree := newTestTree(t, 1, 4)
		near := newBody(10, 10, 1)
		require.NoError(t, tree.Insert(near))
		nodes := tree.NodeCount()

		far := newBody(1.7e308, 1.7e308, 1)
		err := tree.Insert(far)
		require.True(t, IsInvariantViolation(err))
		require.False(t, tree.Contains(far))

		require.Equal(t, rect(0, 0, 100, 100), tree.Bounds())
		require.Zero(t, tree.Stats().Expansions)
		require.Equal(t, nodes, tree.NodeCount())
		require.ElementsMatch(t, []*body{near}, tree.Search(rect(0, 0, 20, 20)))
		require.NoError(t, tree.Validate())
	})

	t.Run("expansion is logged", func(t *testing.T) {
		var out strings.Builder
		logs.SetInlineEncoder()
		logs.SetLevel(logs.ParseLevel("debug"))
		logs.SetLogger(func(e logs.Entry) {
			fmt.Fprint(&out, e)
		})
		defer logs.SetLevel(logs.ParseLevel("info"))

		tree := newTestTree(t, 4, 4)
		require.NoError(t, tree.Insert(newBody(150, 50, 1)))
		require.Contains(t, out.String(), "quadtree root expanded")
		t.Log(out.String())
	})
}

func TestTreeRemove(t *testing.T) {
	t.Run("absent entity", func(t *testing.T) {
		tree := newTestTree(t, 4, 4)
		require.False(t, tree.Remove(newBody(1, 1, 1)))
	})

	t.Run("round trip restores the tree", func(t *testing.T) {
		tree := newTestTree(t, 1, 4)

		bodies := []*body{
			newBody(10, 10, 1),
			newBody(12, 12, 1),
			newBody(60, 70, 1),
			newBody(50, 50, 3),
		}
		for _, b := range bodies {
			require.NoError(t, tree.Insert(b))
		}
		require.Greater(t, tree.NodeCount(), 1)

		for _, b := range bodies {
			require.True(t, tree.Remove(b))
			require.False(t, tree.Contains(b))
			require.NoError(t, tree.Validate())
		}

		require.Zero(t, tree.Len())
		require.Equal(t, 1, tree.NodeCount())
		require.Empty(t, tree.Search(rect(0, 0, 100, 100)))
		require.False(t, tree.Remove(bodies[0]))
	})

	t.Run("entity moved without update", func(t *testing.T) {
		tree := newTestTree(t, 1, 4)

		a := newBody(10, 10, 1)
		b := newBody(90, 90, 1)
		require.NoError(t, tree.Insert(a))
		require.NoError(t, tree.Insert(b))

		a.move(Vector2{70, 0})
		require.True(t, tree.Remove(a))
		require.Equal(t, 1, tree.Len())
		require.NoError(t, tree.Validate())
	})
}

func TestTreeUpdate(t *testing.T) {
	t.Run("zero displacement", func(t *testing.T) {
		tree := newTestTree(t, 4, 4)
		b := newBody(10, 10, 1)
		require.NoError(t, tree.Insert(b))

		require.NoError(t, tree.Update(b, Vector2{}))
		require.Zero(t, tree.Stats().UpdatesSkipped)
		require.Zero(t, tree.Stats().UpdatesInPlace)
	})

	t.Run("move within a grid cell is skipped", func(t *testing.T) {
		tree := newTestTree(t, 4, 4)
		b := newBody(10, 10, 1)
		require.NoError(t, tree.Insert(b))

		d := Vector2{0.1, 0.1}
		b.move(d)
		require.NoError(t, tree.Update(b, d))
		require.Equal(t, uint64(1), tree.Stats().UpdatesSkipped)
		require.ElementsMatch(t, []*body{b}, tree.Search(rect(11, 11, 11.05, 11.05)))
	})

	t.Run("move across nodes relocates", func(t *testing.T) {
		tree := newTestTree(t, 1, 4)
		a := newBody(10, 10, 1)
		b := newBody(80, 80, 1)
		require.NoError(t, tree.Insert(a))
		require.NoError(t, tree.Insert(b))

		d := Vector2{60, 5}
		a.move(d)
		require.NoError(t, tree.Update(a, d))

		stats := tree.Stats()
		require.Equal(t, uint64(1), stats.UpdatesInPlace+stats.UpdatesReinserted)
		require.Empty(t, tree.Search(rect(0, 0, 20, 20)))
		require.ElementsMatch(t, []*body{a}, tree.Search(rect(65, 10, 75, 20)))
		require.NoError(t, tree.Validate())
	})

	t.Run("move outside expands the tree", func(t *testing.T) {
		tree := newTestTree(t, 2, 4)
		b := newBody(10, 10, 1)
		require.NoError(t, tree.Insert(b))

		d := Vector2{-300, 0}
		b.move(d)
		require.NoError(t, tree.Update(b, d))

		require.True(t, tree.Bounds().Encloses(b.Bounds()))
		require.ElementsMatch(t, []*body{b}, tree.Search(rect(-295, 5, -285, 15)))
		require.Equal(t, uint64(1), tree.Stats().UpdatesReinserted)
		require.NoError(t, tree.Validate())
	})

	t.Run("move onto a node edge", func(t *testing.T) {
		tree := newTestTree(t, 1, 1)
		a := &body{pos: Vector2{25, 25}}
		b := &body{pos: Vector2{75, 75}}
		require.NoError(t, tree.Insert(a))
		require.NoError(t, tree.Insert(b))

		d := Vector2{25, 0}
		a.move(d)
		require.NoError(t, tree.Update(a, d))
		require.NoError(t, tree.Validate())
		require.ElementsMatch(t, []*body{a}, tree.Search(rect(45, 20, 55, 30)))

		d = Vector2{10, 0}
		a.move(d)
		require.NoError(t, tree.Update(a, d))
		require.NoError(t, tree.Validate())
		require.ElementsMatch(t, []*body{a}, tree.Search(rect(55, 20, 65, 30)))
		require.Empty(t, tree.Search(rect(40, 20, 50, 30)))
	})

	t.Run("entity not in the tree is inserted", func(t *testing.T) {
		tree := newTestTree(t, 4, 4)
		b := newBody(10, 10, 1)

		require.NoError(t, tree.Update(b, Vector2{1, 0}))
		require.True(t, tree.Contains(b))
	})
}

func TestTreeQuery(t *testing.T) {
	tree := newTestTree(t, 2, 5)
	for i := 0; i < 20; i++ {
		require.NoError(t, tree.Insert(newBody(float64(i*5)+1, 25, 1)))
	}

	t.Run("lazy sequence stops early", func(t *testing.T) {
		count := 0
		for range tree.Query(rect(0, 0, 100, 100)) {
			count++
			if count == 3 {
				break
			}
		}
		require.Equal(t, 3, count)
	})

	t.Run("sequence is restartable", func(t *testing.T) {
		seq := tree.Query(rect(0, 20, 30, 30))

		var first, second []*body
		for b := range seq {
			first = append(first, b)
		}
		for b := range seq {
			second = append(second, b)
		}
		require.Len(t, first, 7)
		require.ElementsMatch(t, first, second)
	})

	t.Run("empty range", func(t *testing.T) {
		require.Empty(t, tree.Search(rect(0, 60, 100, 100)))
	})

	t.Run("all entities", func(t *testing.T) {
		count := 0
		for range tree.All() {
			count++
		}
		require.Equal(t, 20, count)
	})
}

func TestTreeClear(t *testing.T) {
	tree := newTestTree(t, 1, 4)
	for i := 0; i < 10; i++ {
		require.NoError(t, tree.Insert(newBody(float64(i*10)+3, 3, 1)))
	}
	require.NoError(t, tree.Insert(newBody(400, 400, 1)))

	tree.Clear()
	require.Zero(t, tree.Len())
	require.Equal(t, 1, tree.NodeCount())
	require.Equal(t, rect(0, 0, 100, 100), tree.Bounds())
	require.NoError(t, tree.Validate())

	b := newBody(50, 50, 1)
	require.NoError(t, tree.Insert(b))
	require.ElementsMatch(t, []*body{b}, tree.Search(rect(0, 0, 100, 100)))
}

func TestTreeDebugInfo(t *testing.T) {
	tree := newTestTree(t, 1, 4)
	require.NoError(t, tree.Insert(newBody(10, 10, 1)))
	require.NoError(t, tree.Insert(newBody(90, 90, 1)))

	info := tree.DebugInfo()
	require.Len(t, info, tree.NodeCount())
	require.Equal(t, NodeInfo{Level: 0, Bounds: rect(0, 0, 100, 100)}, info[0])

	entities := 0
	for _, n := range info {
		entities += n.Entities
	}
	require.Equal(t, 2, entities)
}

// TestTreeRandomWorkload runs random insertions, removals, movements and
// queries and compares every query with a brute force scan.
func TestTreeRandomWorkload(t *testing.T) {
	configs := []struct {
		maxEntities int
		maxDepth    int
		pooled      bool
	}{
		{maxEntities: 1, maxDepth: 0},
		{maxEntities: 1, maxDepth: 8, pooled: true},
		{maxEntities: 2, maxDepth: 3},
		{maxEntities: 4, maxDepth: 6, pooled: true},
		{maxEntities: 8, maxDepth: 8},
	}

	for _, c := range configs {
		name := fmt.Sprintf("max_entities=%d max_depth=%d pooled=%v", c.maxEntities, c.maxDepth, c.pooled)

		t.Run(name, func(t *testing.T) {
			rnd := rand.New(rand.NewSource(int64(c.maxEntities*100 + c.maxDepth)))

			var opts []Option[*body]
			var pool *NodePool[*body]
			if c.pooled {
				p, err := NewNodePool[*body](1 << 16)
				require.NoError(t, err)
				pool = p
				opts = append(opts, WithPool(p))
			}

			tree, err := New(Config{
				Bounds:             rect(0, 0, 100, 100),
				MaxEntitiesPerNode: c.maxEntities,
				MaxDepth:           c.maxDepth,
			}, opts...)
			require.NoError(t, err)

			var live []*body
			randomPoint := func(spread float64) Vector2 {
				return Vector2{
					X: rnd.Float64()*spread*2 - spread/2,
					Y: rnd.Float64()*spread*2 - spread/2,
				}
			}

			for i := 0; i < 2000; i++ {
				switch op := rnd.Intn(10); {
				case op < 3 || len(live) == 0:
					p := randomPoint(100)
					b := &body{pos: p, half: Vector2{rnd.Float64() * 8, rnd.Float64() * 8}}
					require.NoError(t, tree.Insert(b))
					live = append(live, b)

				case op < 4:
					j := rnd.Intn(len(live))
					require.True(t, tree.Remove(live[j]))
					live = append(live[:j], live[j+1:]...)

				case op < 8:
					b := live[rnd.Intn(len(live))]

					var d Vector2
					switch rnd.Intn(3) {
					case 0:
						d = Vector2{rnd.NormFloat64() * 0.5, rnd.NormFloat64() * 0.5}
					case 1:
						d = Vector2{rnd.NormFloat64() * 20, rnd.NormFloat64() * 20}
					default:
						d = randomPoint(600).Sub(b.pos)
					}

					b.move(d)
					require.NoError(t, tree.Update(b, d))
					require.True(t, tree.Contains(b))

				default:
					lo := randomPoint(150)
					r := Region{Min: lo, Max: lo.Add(Vector2{rnd.Float64() * 80, rnd.Float64() * 80})}
					require.ElementsMatch(t, bruteForce(live, r), tree.Search(r))
				}

				require.Equal(t, len(live), tree.Len())
				if i%50 == 0 {
					require.NoError(t, tree.Validate())
				}
			}

			require.NoError(t, tree.Validate())
			all := Region{Min: Vector2{-1e9, -1e9}, Max: Vector2{1e9, 1e9}}
			require.ElementsMatch(t, live, tree.Search(all))

			if pool != nil {
				require.Equal(t, tree.NodeCount(), pool.InUse())
				tree.Close()
				require.Zero(t, pool.InUse())
			}
		})
	}
}

// TestTreeGridAlignedWorkload runs random operations whose coordinates are
// multiples of half the finest cell size, so entities keep landing on node
// edges.
func TestTreeGridAlignedWorkload(t *testing.T) {
	configs := []struct {
		maxEntities int
		maxDepth    int
	}{
		{maxEntities: 1, maxDepth: 1},
		{maxEntities: 1, maxDepth: 3},
		{maxEntities: 2, maxDepth: 2},
		{maxEntities: 3, maxDepth: 4},
	}

	for _, c := range configs {
		for seed := int64(1); seed <= 20; seed++ {
			name := fmt.Sprintf("max_entities=%d max_depth=%d seed=%d", c.maxEntities, c.maxDepth, seed)

			t.Run(name, func(t *testing.T) {
				rnd := rand.New(rand.NewSource(seed))
				tree := newTestTree(t, c.maxEntities, c.maxDepth)

				steps := 1 << (c.maxDepth + 1)
				step := 100 / float64(steps)
				snap := func(lo, hi int) float64 {
					return float64(lo+rnd.Intn(hi-lo+1)) * step
				}

				var live []*body
				for i := 0; i < 500; i++ {
					switch op := rnd.Intn(10); {
					case op < 3 || len(live) == 0:
						b := &body{
							pos:  Vector2{snap(-2, steps+2), snap(-2, steps+2)},
							half: Vector2{snap(0, 2), snap(0, 2)},
						}
						require.NoError(t, tree.Insert(b))
						live = append(live, b)

					case op < 4:
						j := rnd.Intn(len(live))
						require.True(t, tree.Remove(live[j]))
						live = append(live[:j], live[j+1:]...)

					case op < 8:
						b := live[rnd.Intn(len(live))]
						d := Vector2{snap(-3, 3), snap(-3, 3)}

						b.move(d)
						require.NoError(t, tree.Update(b, d))

					default:
						lo := Vector2{snap(-4, steps), snap(-4, steps)}
						r := Region{Min: lo, Max: lo.Add(Vector2{snap(0, steps/2), snap(0, steps/2)})}
						require.ElementsMatch(t, bruteForce(live, r), tree.Search(r))
					}

					require.NoError(t, tree.Validate(), "operation %d", i)
				}
			})
		}
	}
}

// TestTreeUpdateMatchesReinsert checks that moving entities with Update
// answers queries like removing and inserting them again.
func TestTreeUpdateMatchesReinsert(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))

	updated := newTestTree(t, 2, 6)
	reinserted := newTestTree(t, 2, 6)

	var a, b []*body
	for i := 0; i < 200; i++ {
		p := Vector2{rnd.Float64() * 100, rnd.Float64() * 100}
		half := Vector2{rnd.Float64() * 3, rnd.Float64() * 3}

		a = append(a, &body{pos: p, half: half})
		b = append(b, &body{pos: p, half: half})
		require.NoError(t, updated.Insert(a[i]))
		require.NoError(t, reinserted.Insert(b[i]))
	}

	for step := 0; step < 50; step++ {
		for i := range a {
			d := Vector2{rnd.NormFloat64() * 4, rnd.NormFloat64() * 4}

			a[i].move(d)
			require.NoError(t, updated.Update(a[i], d))

			require.True(t, reinserted.Remove(b[i]))
			b[i].move(d)
			require.NoError(t, reinserted.Insert(b[i]))
		}

		lo := Vector2{rnd.Float64()*160 - 30, rnd.Float64()*160 - 30}
		r := Region{Min: lo, Max: lo.Add(Vector2{40, 40})}
		require.Equal(t, positions(reinserted.Search(r)), positions(updated.Search(r)))
	}

	require.NoError(t, updated.Validate())
	require.NoError(t, reinserted.Validate())
}

func TestTreeValidate(t *testing.T) {
	t.Run("consistent tree", func(t *testing.T) {
		tree := newTestTree(t, 1, 4)
		require.NoError(t, tree.Insert(newBody(10, 10, 1)))
		require.NoError(t, tree.Insert(newBody(80, 80, 1)))
		require.NoError(t, tree.Validate())
	})

	t.Run("entity moved without update", func(t *testing.T) {
		tree := newTestTree(t, 1, 4)
		a := newBody(10, 10, 1)
		require.NoError(t, tree.Insert(a))
		require.NoError(t, tree.Insert(newBody(80, 80, 1)))
		require.NotSame(t, tree.root, tree.location[a])

		a.move(Vector2{50, 0})
		err := tree.Validate()
		require.Error(t, err)
		require.True(t, IsInvariantViolation(err))
	})

	t.Run("entity sticking out of the root", func(t *testing.T) {
		tree := newTestTree(t, 1, 4)
		a := newBody(10, 10, 1)
		require.NoError(t, tree.Insert(a))

		a.move(Vector2{-20, 0})
		require.NoError(t, tree.Validate())
	})
}

func bruteForce(bodies []*body, r Region) []*body {
	var res []*body
	for _, b := range bodies {
		if b.Bounds().Overlaps(r) {
			res = append(res, b)
		}
	}
	return res
}

func positions(bodies []*body) map[Vector2]int {
	res := make(map[Vector2]int, len(bodies))
	for _, b := range bodies {
		res[b.pos]++
	}
	return res
}
