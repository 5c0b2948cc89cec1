package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/quadtree/models"
	"golang.org/x/net/websocket"
)

const (
	sendChanSize    = 512
	receiveChanSize = 64
)

// Handler represents a handler of a connection streaming a space.
type Handler interface {
	// Handles a client connection.
	HandleConnect(conn *websocket.Conn)

	// Handles a client's disconnection.
	HandleDisconnect(error)

	// Handles a ping request.
	HandlePing(ctx context.Context, respond ResponseSender, msg Msg) error

	// Handles a request to add an entity to the space.
	HandleEntityAdd(ctx context.Context, respond ResponseSender, msg Msg) error

	// Handles a request to move an entity.
	HandleEntityMove(ctx context.Context, respond ResponseSender, msg Msg) error

	// Handles a request to remove an entity from the space.
	HandleEntityRemove(ctx context.Context, respond ResponseSender, msg Msg) error

	// Handles a request to change the velocity of an entity.
	HandleEntityVelocity(ctx context.Context, respond ResponseSender, msg Msg) error

	// Handles a range query.
	HandleQuery(ctx context.Context, respond ResponseSender, msg Msg) error

	// Handles a request to receive the entities of a region after each frame.
	HandleWatch(ctx context.Context, handleFrame func(), respond ResponseSender, msg Msg) error

	// Handles a request to stop watching a region.
	HandleUnwatch(ctx context.Context, respond ResponseSender, msg Msg) error

	// Sends the entities of the watched region to the client.
	HandleFrame(ctx context.Context, respond ResponseSender) error

	// Creates a message receiver used to receive incoming messages.
	Receiver() Receiver

	// Creates a message sender passed in service methods in order to send
	// messages.
	Sender() Sender

	// Closes the service and releases its allocated resources.
	Close()

	// The time a client is idle before being disconnected.
	IdleTimeout() time.Duration

	// The streamed space.
	CurrentSpace() *models.Space

	// Get ClientID
	GetClientID() string
}

// Handle handles the given service.
func Handle(ctx context.Context, conn *websocket.Conn, h Handler) {
	handler := handler{
		Conn:    conn,
		Handler: h,
	}

	handler.Handle(ctx)
}

type handler struct {
	// The WebSocket connection.
	Conn *websocket.Conn

	// The stream handler.
	Handler Handler

	sendChan       chan Msg
	receiveChan    chan Msg
	frameChan      chan struct{}
	sender         Sender
	receiver       Receiver
	disconnectChan chan error
}

func (h *handler) Handle(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	h.Handler.HandleConnect(h.Conn)

	h.disconnectChan = make(chan error, 8)
	defer func() {
		for len(h.disconnectChan) != 0 {
			<-h.disconnectChan
		}
	}()

	var wg sync.WaitGroup

	h.sendChan = make(chan Msg, sendChanSize)
	h.sender = h.Handler.Sender()

	wg.Add(1)
	go func() {
		defer wg.Done()
		h.startSending(ctx)
	}()

	h.receiveChan = make(chan Msg, receiveChanSize)
	h.receiver = h.Handler.Receiver()

	wg.Add(1)
	go func() {
		defer wg.Done()
		h.startReceiving(ctx)
	}()

	h.frameChan = make(chan struct{}, 1)

	idleTimeout := h.Handler.IdleTimeout()
	idleTimer := time.NewTimer(idleTimeout)
	defer idleTimer.Stop()

	responder := responseSender{
		send: h.send,
	}

	for ctx.Err() == nil {
		select {
		case <-ctx.Done():
			h.disconnect(ctx.Err())

		case <-idleTimer.C:
			h.disconnect(errors.New("idle connection").WithTag("duration", idleTimeout))

		case <-h.frameChan:
			if err := h.Handler.HandleFrame(ctx, responder); err != nil {
				h.disconnect(errors.New("handling frame failed").Wrap(err))
			}

		case msg := <-h.receiveChan:
			idleTimer.Stop()
			idleTimer.Reset(idleTimeout)

			if err := h.handleMessage(ctx, msg, responder); err != nil {
				h.disconnect(errors.New("handling message failed").Wrap(err))
			}

		case err := <-h.disconnectChan:
			h.handleDisconnect(err)
			if ctx.Err() == nil {
				// cancel context so go routines can cleanly exit
				cancel()
			}
		}
	}

	wg.Wait()
}

func (h *handler) send(msg Msg) {
	h.sendChan <- msg
}

func (h *handler) startSending(ctx context.Context) {
	defer func() {
		for len(h.sendChan) != 0 {
			<-h.sendChan
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case msg := <-h.sendChan:
			if _, err := h.sender(msg); err != nil {
				h.disconnect(errors.New("sending message failed").Wrap(err))
				return
			}
		}
	}
}

func (h *handler) startReceiving(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		default:
			msg, _, err := h.receiver()
			if err != nil {
				h.disconnect(errors.New("receiving message failed").Wrap(err))
				return
			}

			select {
			case <-ctx.Done():
				return
			case h.receiveChan <- msg:
			}
		}
	}
}

// handleFrame is called by the space frame loop. Frames that arrive while the
// previous one is still pending are dropped.
func (h *handler) handleFrame() {
	select {
	case h.frameChan <- struct{}{}:
	default:
	}
}

func (h *handler) handleMessage(ctx context.Context, msg Msg, responder ResponseSender) error {
	switch msg.Type {
	case MsgTypePing:
		return h.Handler.HandlePing(ctx, responder, msg)

	case MsgTypeEntityAdd:
		return h.Handler.HandleEntityAdd(ctx, responder, msg)

	case MsgTypeEntityMove:
		return h.Handler.HandleEntityMove(ctx, responder, msg)

	case MsgTypeEntityRemove:
		return h.Handler.HandleEntityRemove(ctx, responder, msg)

	case MsgTypeEntityVelocity:
		return h.Handler.HandleEntityVelocity(ctx, responder, msg)

	case MsgTypeQuery:
		return h.Handler.HandleQuery(ctx, responder, msg)

	case MsgTypeWatch:
		return h.Handler.HandleWatch(ctx, h.handleFrame, responder, msg)

	case MsgTypeUnwatch:
		return h.Handler.HandleUnwatch(ctx, responder, msg)

	default:
		responder.Send(msg.ErrorResponse(errors.New("unknown message type").
			WithType(models.ErrTypeBadRequest).
			WithTag("msg_type", msg.Type)))
		return nil
	}
}

func (h *handler) disconnect(err error) {
	h.disconnectChan <- err
}

func (h *handler) handleDisconnect(err error) {
	h.Conn.Close()
	h.Handler.HandleDisconnect(err)
}

type responseSender struct {
	send func(Msg)
}

func (r responseSender) Send(msg Msg) {
	r.send(msg)
}
