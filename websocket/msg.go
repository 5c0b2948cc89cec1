package websocket

import (
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/quadtree/models"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

const (
	MsgTypePing           = "ping"
	MsgTypeEntityAdd      = "add"
	MsgTypeEntityMove     = "move"
	MsgTypeEntityRemove   = "remove"
	MsgTypeEntityVelocity = "velocity"
	MsgTypeQuery          = "query"
	MsgTypeWatch          = "watch"
	MsgTypeUnwatch        = "unwatch"

	// Sent after each frame of the space to connections watching a region.
	MsgTypeFrame = "frame"

	MsgTypeError = "error"

	responseSuffix = "_response"

	ErrTypeMsgDecode = "msg_decode"
	ErrTypeMsgEncode = "msg_encode"
)

// Msg is a message exchanged with a client. Requests carry a request id that
// is copied into the response.
type Msg struct {
	Type      string `json:"type"`
	RequestID uint32 `json:"request_id,omitempty"`

	EntityID     uint32        `json:"entity_id,omitempty"`
	Position     *models.Point `json:"position,omitempty"`
	HalfExtents  *models.Point `json:"half_extents,omitempty"`
	Velocity     *models.Point `json:"velocity,omitempty"`
	Displacement *models.Point `json:"displacement,omitempty"`
	Region       *models.Rect  `json:"region,omitempty"`

	// Entities added with persist are kept in the space when the connection
	// that added them closes.
	Persist bool `json:"persist,omitempty"`

	Entity   *models.EntityView  `json:"entity,omitempty"`
	Entities []models.EntityView `json:"entities,omitempty"`

	ErrorType string `json:"error_type,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Response returns a response to the message.
func (m Msg) Response() Msg {
	return Msg{
		Type:      m.Type + responseSuffix,
		RequestID: m.RequestID,
	}
}

// ErrorResponse returns an error message that replies to the message.
func (m Msg) ErrorResponse(err error) Msg {
	errType := errors.Type(err)
	if errType == "" {
		errType = models.ErrTypeIndexFailure
	}

	return Msg{
		Type:      MsgTypeError,
		RequestID: m.RequestID,
		ErrorType: errType,
		Error:     err.Error(),
	}
}

// Receiver reads a message from a connection and returns the number of bytes
// read.
type Receiver func() (Msg, int, error)

// Sender writes a message to a connection and returns the number of bytes
// written.
type Sender func(Msg) (int, error)

// ResponseSender sends messages to the client that made a request.
type ResponseSender interface {
	Send(Msg)
}

// NewReceiver returns a receiver that reads JSON text frames from conn.
func NewReceiver(conn *websocket.Conn) Receiver {
	return func() (Msg, int, error) {
		var b []byte
		if err := websocket.Message.Receive(conn, &b); err != nil {
			return Msg{}, 0, err
		}

		var msg Msg
		if err := json.Unmarshal(b, &msg); err != nil {
			return Msg{}, len(b), errors.New("decoding message failed").
				WithType(ErrTypeMsgDecode).
				Wrap(err)
		}
		return msg, len(b), nil
	}
}

// NewSender returns a sender that writes messages as JSON text frames to
// conn.
func NewSender(conn *websocket.Conn) Sender {
	return func(msg Msg) (int, error) {
		b, err := json.Marshal(msg)
		if err != nil {
			return 0, errors.New("encoding message failed").
				WithType(ErrTypeMsgEncode).
				WithTag("msg_type", msg.Type).
				Wrap(err)
		}

		if err := websocket.Message.Send(conn, string(b)); err != nil {
			return 0, err
		}
		return len(b), nil
	}
}
