package http

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	httpcmn "github.com/aukilabs/hagall-common/http"
	"github.com/aukilabs/quadtree/featureflag"
	"github.com/aukilabs/quadtree/models"
	"github.com/aukilabs/quadtree/quadtree"
	"github.com/segmentio/encoding/json"
)

// API serves the REST interface over the spaces of a server.
type API struct {
	Spaces *models.SpaceStore

	// The options of spaces created without a preset value.
	Defaults models.SpaceOptions

	FeatureFlags featureflag.FeatureFlag
}

// CreateSpace creates a space from a preset, adds it to the store and starts
// its frames.
func (a *API) CreateSpace(ctx context.Context, p models.Preset) (*models.Space, error) {
	opts := p.Options(a.Defaults)

	a.FeatureFlags.IfSet(featureflag.FlagDisableNodePool, func() {
		opts.PoolCapacity = 0
	})
	a.FeatureFlags.IfSet(featureflag.FlagDisableFrameDispatch, func() {
		opts.DisableMovement = true
	})

	space, err := models.NewSpace(a.Spaces.NewID(), opts)
	if err != nil {
		return nil, err
	}

	a.Spaces.Add(ctx, space)
	go space.StartDispatchFrames()
	return space, nil
}

// Register adds the API routes to mux.
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /spaces", a.handleCreateSpace)
	mux.HandleFunc("GET /spaces", a.handleListSpaces)
	mux.HandleFunc("GET /spaces/{id}", a.handleGetSpace)
	mux.HandleFunc("DELETE /spaces/{id}", a.handleDeleteSpace)
	mux.HandleFunc("GET /spaces/{id}/debug", a.handleDebugSpace)
	mux.HandleFunc("GET /spaces/{id}/query", a.handleQuery)
	mux.HandleFunc("GET /spaces/{id}/entities", a.handleListEntities)
	mux.HandleFunc("POST /spaces/{id}/entities", a.handleAddEntity)
	mux.HandleFunc("GET /spaces/{id}/entities/{eid}", a.handleGetEntity)
	mux.HandleFunc("DELETE /spaces/{id}/entities/{eid}", a.handleRemoveEntity)
	mux.HandleFunc("POST /spaces/{id}/entities/{eid}/move", a.handleMoveEntity)
	mux.HandleFunc("PUT /spaces/{id}/entities/{eid}/velocity", a.handleSetVelocity)
}

type createSpaceRequest struct {
	Name               string       `json:"name"`
	Bounds             *models.Rect `json:"bounds,omitempty"`
	MaxEntitiesPerNode int          `json:"max_entities_per_node,omitempty"`
	MaxDepth           int          `json:"max_depth,omitempty"`
	PoolCapacity       int          `json:"pool_capacity,omitempty"`
	FrameDuration      string       `json:"frame_duration,omitempty"`
}

func (a *API) handleCreateSpace(w http.ResponseWriter, r *http.Request) {
	var req createSpaceRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	p := models.Preset{
		Name:               req.Name,
		Bounds:             req.Bounds,
		MaxEntitiesPerNode: req.MaxEntitiesPerNode,
		MaxDepth:           req.MaxDepth,
		PoolCapacity:       req.PoolCapacity,
	}
	if p.Name == "" {
		p.Name = "api"
	}

	if req.FrameDuration != "" {
		d, err := time.ParseDuration(req.FrameDuration)
		if err != nil {
			writeError(w, errors.New("invalid frame duration").
				WithType(models.ErrTypeBadRequest).
				WithTag("frame_duration", req.FrameDuration).
				Wrap(err))
			return
		}
		p.FrameDuration = d
	}

	space, err := a.CreateSpace(r.Context(), p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, space.Stats())
}

func (a *API) handleListSpaces(w http.ResponseWriter, r *http.Request) {
	spaces := a.Spaces.List()

	stats := make([]models.SpaceStats, len(spaces))
	for i, s := range spaces {
		stats[i] = s.Stats()
	}
	writeJSON(w, http.StatusOK, stats)
}

func (a *API) handleGetSpace(w http.ResponseWriter, r *http.Request) {
	space, err := a.space(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, space.Stats())
}

func (a *API) handleDeleteSpace(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	if err := a.Spaces.Remove(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type debugResponse struct {
	Stats models.SpaceStats `json:"stats"`
	Nodes []models.NodeView `json:"nodes"`
	Error string            `json:"error,omitempty"`
}

func (a *API) handleDebugSpace(w http.ResponseWriter, r *http.Request) {
	space, err := a.space(r)
	if err != nil {
		writeError(w, err)
		return
	}

	res := debugResponse{
		Stats: space.Stats(),
		Nodes: space.DebugInfo(),
	}
	if err := space.Validate(); err != nil {
		logs.WithTag("space_id", space.ID).Error(err)
		res.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleQuery(w http.ResponseWriter, r *http.Request) {
	space, err := a.space(r)
	if err != nil {
		writeError(w, err)
		return
	}

	region, err := queryRegion(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.EntityViews(space.Query(region)))
}

func (a *API) handleListEntities(w http.ResponseWriter, r *http.Request) {
	space, err := a.space(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.EntityViews(space.Entities()))
}

type addEntityRequest struct {
	Position    models.Point `json:"position"`
	HalfExtents models.Point `json:"half_extents"`
	Velocity    models.Point `json:"velocity"`
}

func (a *API) handleAddEntity(w http.ResponseWriter, r *http.Request) {
	space, err := a.space(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req addEntityRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	e, err := space.AddEntity(
		req.Position.Vector(),
		req.HalfExtents.Vector(),
		req.Velocity.Vector(),
	)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, e.View())
}

func (a *API) handleGetEntity(w http.ResponseWriter, r *http.Request) {
	space, id, err := a.spaceEntityID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	e, ok := space.Entity(id)
	if !ok {
		writeError(w, errors.New("entity not found").
			WithType(models.ErrTypeEntityNotFound).
			WithTag("space_id", space.ID).
			WithTag("entity_id", id))
		return
	}
	writeJSON(w, http.StatusOK, e.View())
}

func (a *API) handleRemoveEntity(w http.ResponseWriter, r *http.Request) {
	space, id, err := a.spaceEntityID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := space.RemoveEntity(id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type moveEntityRequest struct {
	Displacement models.Point `json:"displacement"`
}

func (a *API) handleMoveEntity(w http.ResponseWriter, r *http.Request) {
	space, id, err := a.spaceEntityID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req moveEntityRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	e, err := space.MoveEntity(id, req.Displacement.Vector())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e.View())
}

type setVelocityRequest struct {
	Velocity models.Point `json:"velocity"`
}

func (a *API) handleSetVelocity(w http.ResponseWriter, r *http.Request) {
	space, id, err := a.spaceEntityID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req setVelocityRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	e, err := space.SetVelocity(id, req.Velocity.Vector())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e.View())
}

func (a *API) space(r *http.Request) (*models.Space, error) {
	id, err := pathID(r, "id")
	if err != nil {
		return nil, err
	}
	return a.Spaces.Get(id)
}

func (a *API) spaceEntityID(r *http.Request) (*models.Space, uint32, error) {
	space, err := a.space(r)
	if err != nil {
		return nil, 0, err
	}

	id, err := pathID(r, "eid")
	if err != nil {
		return nil, 0, err
	}
	return space, id, nil
}

func pathID(r *http.Request, name string) (uint32, error) {
	v := r.PathValue(name)

	id, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return 0, errors.New("invalid id").
			WithType(models.ErrTypeBadRequest).
			WithTag(name, v).
			Wrap(err)
	}
	return uint32(id), nil
}

func queryRegion(r *http.Request) (quadtree.Region, error) {
	query := r.URL.Query()

	var values [4]float64
	for i, k := range [...]string{"min_x", "min_y", "max_x", "max_y"} {
		v, err := strconv.ParseFloat(query.Get(k), 64)
		if err != nil {
			return quadtree.Region{}, errors.New("invalid query parameter").
				WithType(models.ErrTypeBadRequest).
				WithTag("name", k).
				WithTag("value", query.Get(k)).
				Wrap(err)
		}
		values[i] = v
	}

	region := quadtree.Region{
		Min: quadtree.Vector2{X: values[0], Y: values[1]},
		Max: quadtree.Vector2{X: values[2], Y: values[3]},
	}
	if !region.IsValid() {
		return quadtree.Region{}, errors.New("invalid query region").
			WithType(models.ErrTypeBadRequest).
			WithTag("region", models.NewRect(region))
	}
	return region, nil
}

func decodeRequest(w http.ResponseWriter, r *http.Request, v any) bool {
	b, err := io.ReadAll(r.Body)
	if err != nil {
		httpcmn.InternalServerError(w, errors.New("reading body failed").Wrap(err))
		return false
	}

	if err := json.Unmarshal(b, v); err != nil {
		httpcmn.BadRequest(w, httpcmn.ErrBadRequest)
		return false
	}
	return true
}

type errorResponse struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// writeError responds with the HTTP status that matches the type of err.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	switch errors.Type(err) {
	case models.ErrTypeSpaceNotFound, models.ErrTypeEntityNotFound:
		status = http.StatusNotFound

	case models.ErrTypeBadRequest:
		status = http.StatusBadRequest

	case models.ErrTypeSpaceFull:
		status = http.StatusInsufficientStorage

	default:
		logs.Error(err)
	}

	writeJSON(w, status, errorResponse{
		Type:  errors.Type(err),
		Error: err.Error(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		httpcmn.InternalServerError(w, errors.New("encoding response failed").Wrap(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(b)
}
