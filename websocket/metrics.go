package websocket

import (
	"context"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/net/websocket"
)

const (
	errTypeLabel = "error_type"
	msgTypeLabel = "msg_type"
	spaceLabel   = "space"
)

var (
	wsConnectedClients = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ws_connected_clients",
		Help: "The number of connected clients.",
	}, []string{
		spaceLabel,
	})

	wsReceivedMsgs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_received_msgs",
		Help: "The number of messages received from WebSocket connections.",
	}, []string{
		spaceLabel,
		msgTypeLabel,
	})

	wsReceivedBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_received_bytes",
		Help: "The number of bytes received from WebSocket connections.",
	}, []string{
		spaceLabel,
		msgTypeLabel,
	})

	wsReceiveError = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_receive_errors",
		Help: "The errors that occured while receiving a websocket message.",
	}, []string{
		spaceLabel,
		errTypeLabel,
	})

	wsSentMsgs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_sent_msgs",
		Help: "The number of messages sent to WebSocket connections.",
	}, []string{
		spaceLabel,
		msgTypeLabel,
	})

	wsSentBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_sent_bytes",
		Help: "The number of bytes sent to WebSocket connections.",
	}, []string{
		spaceLabel,
		msgTypeLabel,
	})

	wsSendError = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_send_errors",
		Help: "The errors that occured while sending a websocket message.",
	}, []string{
		spaceLabel,
		errTypeLabel,
		msgTypeLabel,
	})

	wsMsgLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "ws_msg_latency",
		Help: "The time to process a WebSocket msg.",
	}, []string{
		spaceLabel,
		msgTypeLabel,
	})
)

func HandlerWithMetrics(h Handler) Handler {
	return &handlerWithMetrics{
		Handler: h,
	}
}

type handlerWithMetrics struct {
	Handler

	space string
}

func (h *handlerWithMetrics) HandleConnect(conn *websocket.Conn) {
	if space := h.CurrentSpace(); space != nil {
		h.space = space.Name
	}

	wsConnectedClients.
		With(prometheus.Labels{
			spaceLabel: h.space,
		}).
		Inc()

	h.Handler.HandleConnect(conn)
}

func (h *handlerWithMetrics) HandleDisconnect(err error) {
	wsConnectedClients.
		With(prometheus.Labels{
			spaceLabel: h.space,
		}).
		Dec()

	h.Handler.HandleDisconnect(err)
}

func (h *handlerWithMetrics) HandlePing(ctx context.Context, respond ResponseSender, msg Msg) error {
	return h.measureLatency(msg.Type, func() error {
		return h.Handler.HandlePing(ctx, respond, msg)
	})
}

func (h *handlerWithMetrics) HandleEntityAdd(ctx context.Context, respond ResponseSender, msg Msg) error {
	return h.measureLatency(msg.Type, func() error {
		return h.Handler.HandleEntityAdd(ctx, respond, msg)
	})
}

func (h *handlerWithMetrics) HandleEntityMove(ctx context.Context, respond ResponseSender, msg Msg) error {
	return h.measureLatency(msg.Type, func() error {
		return h.Handler.HandleEntityMove(ctx, respond, msg)
	})
}

func (h *handlerWithMetrics) HandleEntityRemove(ctx context.Context, respond ResponseSender, msg Msg) error {
	return h.measureLatency(msg.Type, func() error {
		return h.Handler.HandleEntityRemove(ctx, respond, msg)
	})
}

func (h *handlerWithMetrics) HandleEntityVelocity(ctx context.Context, respond ResponseSender, msg Msg) error {
	return h.measureLatency(msg.Type, func() error {
		return h.Handler.HandleEntityVelocity(ctx, respond, msg)
	})
}

func (h *handlerWithMetrics) HandleQuery(ctx context.Context, respond ResponseSender, msg Msg) error {
	return h.measureLatency(msg.Type, func() error {
		return h.Handler.HandleQuery(ctx, respond, msg)
	})
}

func (h *handlerWithMetrics) HandleWatch(ctx context.Context, handleFrame func(), respond ResponseSender, msg Msg) error {
	return h.measureLatency(msg.Type, func() error {
		return h.Handler.HandleWatch(ctx, handleFrame, respond, msg)
	})
}

func (h *handlerWithMetrics) HandleFrame(ctx context.Context, respond ResponseSender) error {
	return h.measureLatency(MsgTypeFrame, func() error {
		return h.Handler.HandleFrame(ctx, respond)
	})
}

func (h *handlerWithMetrics) Receiver() Receiver {
	receive := h.Handler.Receiver()

	return func() (Msg, int, error) {
		msg, n, err := receive()
		if err != nil {
			wsReceiveError.
				With(prometheus.Labels{
					spaceLabel:   h.space,
					errTypeLabel: errors.Type(err),
				}).
				Inc()
		} else {
			wsReceivedMsgs.
				With(prometheus.Labels{
					spaceLabel:   h.space,
					msgTypeLabel: msgTypeLabelValue(msg.Type),
				}).
				Inc()
		}

		if n != 0 {
			wsReceivedBytes.
				With(prometheus.Labels{
					spaceLabel:   h.space,
					msgTypeLabel: msgTypeLabelValue(msg.Type),
				}).
				Add(float64(n))
		}

		return msg, n, err
	}
}

func (h *handlerWithMetrics) Sender() Sender {
	sender := h.Handler.Sender()

	return func(msg Msg) (int, error) {
		n, err := sender(msg)
		if err != nil {
			wsSendError.
				With(prometheus.Labels{
					spaceLabel:   h.space,
					msgTypeLabel: msg.Type,
					errTypeLabel: errors.Type(err),
				}).
				Inc()
		}

		if n != 0 {
			wsSentMsgs.
				With(prometheus.Labels{
					spaceLabel:   h.space,
					msgTypeLabel: msg.Type,
				}).
				Inc()
			wsSentBytes.
				With(prometheus.Labels{
					spaceLabel:   h.space,
					msgTypeLabel: msg.Type,
				}).
				Add(float64(n))
		}

		return n, err
	}
}

func (h *handlerWithMetrics) measureLatency(msgType string, f func() error) error {
	start := time.Now()
	err := f()

	wsMsgLatency.With(prometheus.Labels{
		spaceLabel:   h.space,
		msgTypeLabel: msgType,
	}).Observe(time.Since(start).Seconds())

	return err
}

// msgTypeLabelValue bounds the values of the message type label to the
// message types the server handles.
func msgTypeLabelValue(msgType string) string {
	switch msgType {
	case MsgTypePing,
		MsgTypeEntityAdd,
		MsgTypeEntityMove,
		MsgTypeEntityRemove,
		MsgTypeEntityVelocity,
		MsgTypeQuery,
		MsgTypeWatch,
		MsgTypeUnwatch:
		return msgType

	default:
		return "unknown"
	}
}
