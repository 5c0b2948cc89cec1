package websocket

import (
	"context"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	httpcmn "github.com/aukilabs/hagall-common/http"
	"github.com/aukilabs/quadtree/models"
	"github.com/aukilabs/quadtree/quadtree"
	"github.com/google/uuid"
	"golang.org/x/net/websocket"
)

// StreamHandler streams a space to one client. Entities added by the client
// are removed from the space when it disconnects unless they were added with
// persist.
type StreamHandler struct {
	// The time a client is idle before being disconnected.
	ClientIdleTimeout time.Duration

	// The streamed space.
	Space *models.Space

	conn     *websocket.Conn
	clientID string

	owned map[uint32]struct{}

	watchRegion       *quadtree.Region
	stopFrameHandling func()
}

func (h *StreamHandler) HandleConnect(conn *websocket.Conn) {
	h.clientID = conn.Request().Header.Get(httpcmn.HeaderPosemeshClientID)
	if h.clientID == "" {
		h.clientID = uuid.NewString()
	}

	h.conn = conn
	h.owned = make(map[uint32]struct{})
}

func (h *StreamHandler) HandleDisconnect(_ error) {
	h.unwatch()

	for id := range h.owned {
		err := h.Space.RemoveEntity(id)
		if err != nil &&
			!errors.IsType(err, models.ErrTypeEntityNotFound) &&
			!errors.IsType(err, models.ErrTypeSpaceNotFound) {
			logs.WithClientID(h.clientID).Warn(err)
		}
		delete(h.owned, id)
	}
}

func (h *StreamHandler) HandlePing(ctx context.Context, respond ResponseSender, msg Msg) error {
	respond.Send(msg.Response())
	return nil
}

func (h *StreamHandler) HandleEntityAdd(ctx context.Context, respond ResponseSender, msg Msg) error {
	if msg.Position == nil {
		respond.Send(msg.ErrorResponse(errMissingField(msg, "position")))
		return nil
	}

	var halfExtents, velocity quadtree.Vector2
	if msg.HalfExtents != nil {
		halfExtents = msg.HalfExtents.Vector()
	}
	if msg.Velocity != nil {
		velocity = msg.Velocity.Vector()
	}

	e, err := h.Space.AddEntity(msg.Position.Vector(), halfExtents, velocity)
	if err != nil {
		respond.Send(msg.ErrorResponse(err))
		return nil
	}

	if !msg.Persist {
		h.owned[e.ID] = struct{}{}
	}

	res := msg.Response()
	res.EntityID = e.ID
	res.Entity = entityView(e)
	respond.Send(res)
	return nil
}

func (h *StreamHandler) HandleEntityMove(ctx context.Context, respond ResponseSender, msg Msg) error {
	if msg.Displacement == nil {
		respond.Send(msg.ErrorResponse(errMissingField(msg, "displacement")))
		return nil
	}

	e, err := h.Space.MoveEntity(msg.EntityID, msg.Displacement.Vector())
	if err != nil {
		respond.Send(msg.ErrorResponse(err))
		return nil
	}

	res := msg.Response()
	res.EntityID = e.ID
	res.Entity = entityView(e)
	respond.Send(res)
	return nil
}

func (h *StreamHandler) HandleEntityRemove(ctx context.Context, respond ResponseSender, msg Msg) error {
	if err := h.Space.RemoveEntity(msg.EntityID); err != nil {
		respond.Send(msg.ErrorResponse(err))
		return nil
	}
	delete(h.owned, msg.EntityID)

	res := msg.Response()
	res.EntityID = msg.EntityID
	respond.Send(res)
	return nil
}

func (h *StreamHandler) HandleEntityVelocity(ctx context.Context, respond ResponseSender, msg Msg) error {
	if msg.Velocity == nil {
		respond.Send(msg.ErrorResponse(errMissingField(msg, "velocity")))
		return nil
	}

	e, err := h.Space.SetVelocity(msg.EntityID, msg.Velocity.Vector())
	if err != nil {
		respond.Send(msg.ErrorResponse(err))
		return nil
	}

	res := msg.Response()
	res.EntityID = e.ID
	res.Entity = entityView(e)
	respond.Send(res)
	return nil
}

func (h *StreamHandler) HandleQuery(ctx context.Context, respond ResponseSender, msg Msg) error {
	region, err := msgRegion(msg)
	if err != nil {
		respond.Send(msg.ErrorResponse(err))
		return nil
	}

	res := msg.Response()
	res.Entities = models.EntityViews(h.Space.Query(region))
	respond.Send(res)
	return nil
}

func (h *StreamHandler) HandleWatch(ctx context.Context, handleFrame func(), respond ResponseSender, msg Msg) error {
	region, err := msgRegion(msg)
	if err != nil {
		respond.Send(msg.ErrorResponse(err))
		return nil
	}

	h.watchRegion = &region
	if h.stopFrameHandling == nil {
		h.stopFrameHandling = h.Space.HandleFrame(handleFrame)
	}

	res := msg.Response()
	res.Entities = models.EntityViews(h.Space.Query(region))
	respond.Send(res)
	return nil
}

func (h *StreamHandler) HandleUnwatch(ctx context.Context, respond ResponseSender, msg Msg) error {
	h.unwatch()
	respond.Send(msg.Response())
	return nil
}

func (h *StreamHandler) HandleFrame(ctx context.Context, respond ResponseSender) error {
	if h.watchRegion == nil {
		return nil
	}

	respond.Send(Msg{
		Type:     MsgTypeFrame,
		Region:   rectPtr(models.NewRect(*h.watchRegion)),
		Entities: models.EntityViews(h.Space.Query(*h.watchRegion)),
	})
	return nil
}

func (h *StreamHandler) Receiver() Receiver {
	return NewReceiver(h.conn)
}

func (h *StreamHandler) Sender() Sender {
	return NewSender(h.conn)
}

func (h *StreamHandler) Close() {
	h.unwatch()
}

func (h *StreamHandler) IdleTimeout() time.Duration {
	return h.ClientIdleTimeout
}

func (h *StreamHandler) CurrentSpace() *models.Space {
	return h.Space
}

func (h *StreamHandler) GetClientID() string {
	return h.clientID
}

func (h *StreamHandler) unwatch() {
	if h.stopFrameHandling != nil {
		h.stopFrameHandling()
		h.stopFrameHandling = nil
	}
	h.watchRegion = nil
}

func msgRegion(msg Msg) (quadtree.Region, error) {
	if msg.Region == nil {
		return quadtree.Region{}, errMissingField(msg, "region")
	}

	region := msg.Region.Region()
	if !region.IsValid() {
		return quadtree.Region{}, errors.New("invalid region").
			WithType(models.ErrTypeBadRequest).
			WithTag("msg_type", msg.Type).
			WithTag("region", msg.Region)
	}
	return region, nil
}

func errMissingField(msg Msg, field string) error {
	return errors.New("missing message field").
		WithType(models.ErrTypeBadRequest).
		WithTag("msg_type", msg.Type).
		WithTag("field", field)
}

func entityView(e *models.Entity) *models.EntityView {
	v := e.View()
	return &v
}

func rectPtr(r models.Rect) *models.Rect {
	return &r
}
