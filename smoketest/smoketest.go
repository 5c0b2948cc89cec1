package smoketest

import (
	"context"
	"io"
	"math/rand"
	"net/http"
	"slices"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	httpcmn "github.com/aukilabs/hagall-common/http"
	"github.com/aukilabs/quadtree/models"
	"github.com/aukilabs/quadtree/quadtree"
	"github.com/segmentio/encoding/json"
)

const (
	defaultOperations = 1000
	maxOperations     = 100000
	validateInterval  = 100
)

type Options struct {
	// The options of the spaces created for smoke tests. Request fields
	// override them.
	Defaults models.SpaceOptions
}

// Request describes a smoke test run. Zero fields take the defaults.
type Request struct {
	Operations         int   `json:"operations,omitempty"`
	Seed               int64 `json:"seed,omitempty"`
	MaxEntitiesPerNode int   `json:"max_entities_per_node,omitempty"`
	MaxDepth           int   `json:"max_depth,omitempty"`
	PoolCapacity       int   `json:"pool_capacity,omitempty"`
}

// Result reports a smoke test run. A run passes when every query matched a
// brute force scan and the index stayed consistent.
type Result struct {
	Passed     bool              `json:"passed"`
	Seed       int64             `json:"seed"`
	Operations int               `json:"operations"`
	Inserts    int               `json:"inserts"`
	Removes    int               `json:"removes"`
	Moves      int               `json:"moves"`
	Queries    int               `json:"queries"`
	Rejected   int               `json:"rejected"`
	Mismatches int               `json:"mismatches"`
	Stats      models.SpaceStats `json:"stats"`
	Duration   time.Duration     `json:"duration"`
	Error      string            `json:"error,omitempty"`
}

func HandleSmokeTest(ctx context.Context, opts Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, err := io.ReadAll(r.Body)
		if err != nil {
			httpcmn.InternalServerError(w, errors.New("reading body failed").Wrap(err))
			return
		}

		var req Request
		if len(b) != 0 {
			if err := json.Unmarshal(b, &req); err != nil {
				httpcmn.BadRequest(w, httpcmn.ErrBadRequest)
				return
			}
		}

		runCtx, cancel := context.WithCancel(r.Context())
		defer cancel()

		stop := context.AfterFunc(ctx, cancel)
		defer stop()

		res, err := Run(runCtx, opts.Defaults, req)
		if err != nil {
			logs.WithTag("seed", res.Seed).Warn(err)
			res.Error = err.Error()
		}

		entry := logs.WithTag("seed", res.Seed).
			WithTag("operations", res.Operations).
			WithTag("mismatches", res.Mismatches).
			WithTag("duration", res.Duration)
		if res.Passed {
			entry.Info("smoke test passed")
		} else {
			entry.Warn(errors.New("smoke test failed"))
		}

		body, err := json.Marshal(res)
		if err != nil {
			httpcmn.InternalServerError(w, errors.New("encoding smoke test result failed").Wrap(err))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(body)
	}
}

// Run performs random operations on a throwaway space and compares every
// query with a brute force scan of the space entities.
func Run(ctx context.Context, defaults models.SpaceOptions, req Request) (res Result, err error) {
	start := time.Now()

	opts := defaults
	opts.Name = "smoke_test"
	opts.DisableMovement = true
	if req.MaxEntitiesPerNode != 0 {
		opts.MaxEntitiesPerNode = req.MaxEntitiesPerNode
	}
	if req.MaxDepth != 0 {
		opts.MaxDepth = req.MaxDepth
	}
	if req.PoolCapacity != 0 {
		opts.PoolCapacity = req.PoolCapacity
	}

	if req.Operations <= 0 {
		req.Operations = defaultOperations
	}
	if req.Operations > maxOperations {
		req.Operations = maxOperations
	}
	if req.Seed == 0 {
		req.Seed = time.Now().UnixNano()
	}

	res.Seed = req.Seed
	defer func() {
		res.Duration = time.Since(start)
	}()

	space, err := models.NewSpace(0, opts)
	if err != nil {
		return res, errors.New("creating smoke test space failed").Wrap(err)
	}
	defer space.Close()

	w := workload{
		rand:   rand.New(rand.NewSource(req.Seed)),
		space:  space,
		bounds: opts.Bounds,
		res:    &res,
	}

	for i := 0; i < req.Operations; i++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		if err := w.step(); err != nil {
			return res, err
		}
		res.Operations++

		if res.Operations%validateInterval == 0 {
			if err := space.Validate(); err != nil {
				return res, err
			}
		}
	}

	if err := space.Validate(); err != nil {
		return res, err
	}

	res.Stats = space.Stats()
	res.Passed = res.Mismatches == 0
	return res, nil
}

type workload struct {
	rand   *rand.Rand
	space  *models.Space
	bounds quadtree.Region
	res    *Result
}

func (w *workload) step() error {
	switch n := w.rand.Intn(100); {
	case n < 40:
		return w.insert()
	case n < 55:
		return w.remove()
	case n < 85:
		return w.move()
	default:
		w.query()
		return nil
	}
}

func (w *workload) insert() error {
	pos := w.point(1.5)
	if w.rand.Intn(20) == 0 {
		pos = w.point(10)
	}

	halfExtents := quadtree.Vector2{
		X: w.rand.Float64() * 2,
		Y: w.rand.Float64() * 2,
	}

	_, err := w.space.AddEntity(pos, halfExtents, quadtree.Vector2{})
	if errors.IsType(err, models.ErrTypeSpaceFull) {
		w.res.Rejected++
		return nil
	}
	if err != nil {
		return err
	}

	w.res.Inserts++
	return nil
}

func (w *workload) remove() error {
	e, ok := w.pick()
	if !ok {
		return nil
	}

	if err := w.space.RemoveEntity(e.ID); err != nil {
		return err
	}

	w.res.Removes++
	return nil
}

func (w *workload) move() error {
	e, ok := w.pick()
	if !ok {
		return nil
	}

	scale := 1.0
	if w.rand.Intn(5) == 0 {
		scale = 50
	}

	d := quadtree.Vector2{
		X: (w.rand.Float64()*2 - 1) * scale,
		Y: (w.rand.Float64()*2 - 1) * scale,
	}

	_, err := w.space.MoveEntity(e.ID, d)
	if errors.IsType(err, models.ErrTypeSpaceFull) {
		w.res.Rejected++
		return nil
	}
	if err != nil {
		return err
	}

	w.res.Moves++
	return nil
}

func (w *workload) query() {
	center := w.point(1.5)
	size := w.bounds.Size()

	r := quadtree.NewRegion(center, quadtree.Vector2{
		X: w.rand.Float64() * size.X / 4,
		Y: w.rand.Float64() * size.Y / 4,
	})

	var expected []uint32
	for _, e := range w.space.Entities() {
		if e.Bounds().Overlaps(r) {
			expected = append(expected, e.ID)
		}
	}

	var got []uint32
	for _, e := range w.space.Query(r) {
		got = append(got, e.ID)
	}

	w.res.Queries++
	if !slices.Equal(expected, got) {
		w.res.Mismatches++
		logs.WithTag("region", models.NewRect(r)).
			WithTag("expected", expected).
			WithTag("got", got).
			Warn(errors.New("smoke test query mismatch"))
	}
}

// point returns a random point in the space bounds scaled by scale around
// their center.
func (w *workload) point(scale float64) quadtree.Vector2 {
	c := w.bounds.Center()
	s := w.bounds.Size().Mul(scale)

	return quadtree.Vector2{
		X: c.X + (w.rand.Float64()-0.5)*s.X,
		Y: c.Y + (w.rand.Float64()-0.5)*s.Y,
	}
}

func (w *workload) pick() (*models.Entity, bool) {
	entities := w.space.Entities()
	if len(entities) == 0 {
		return nil, false
	}
	return entities[w.rand.Intn(len(entities))], true
}
