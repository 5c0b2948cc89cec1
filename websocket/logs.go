package websocket

import (
	"context"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	httpcmn "github.com/aukilabs/hagall-common/http"
	"golang.org/x/net/websocket"
)

func HandlerWithLogs(h Handler, summaryInterval time.Duration) Handler {
	ctx, cancel := context.WithCancel(context.Background())

	handler := &handlerWithLogs{
		Handler:            h,
		summaryInterval:    summaryInterval,
		closeSummaryWorker: cancel,
		counter:            make(map[string]int),
	}

	go handler.startSummaryWorker(ctx)
	return handler
}

type handlerWithLogs struct {
	Handler

	originalRequest *http.Request

	summaryInterval    time.Duration
	closeSummaryWorker func()
	counterMutex       sync.Mutex
	counter            map[string]int

	spaceID   uint32
	spaceUUID string
}

type httpHeaders struct {
	UserAgent               string `json:"user_agent,omitempty"`
	XForwardedFor           string `json:"x_forwarded_for,omitempty"`
	CloudFrontCountryName   string `json:"cloudfront_viewer_country,omitempty"`
	CloudFrontViewerAddress string `json:"cloudfront_viewer_address,omitempty"`
}

func (h *handlerWithLogs) HandleConnect(conn *websocket.Conn) {
	h.Handler.HandleConnect(conn)

	req := conn.Request()
	h.originalRequest = req

	if space := h.CurrentSpace(); space != nil {
		h.spaceID = space.ID
		h.spaceUUID = space.UUID
	}

	logs.WithClientID(h.GetClientID()).
		WithTag("space_id", h.spaceID).
		WithTag("space_uuid", h.spaceUUID).
		WithTag("http_headers", httpHeaders{
			UserAgent:               req.UserAgent(),
			XForwardedFor:           req.Header.Get(httpcmn.XForwardedForHeaderKey),
			CloudFrontCountryName:   req.Header.Get(httpcmn.CloudFrontCountryNameHeaderKey),
			CloudFrontViewerAddress: req.Header.Get(httpcmn.CloudFrontViewerAddressHeaderKey),
		}).
		Info("new client is connected")
}

func (h *handlerWithLogs) HandleWatch(ctx context.Context, handleFrame func(), respond ResponseSender, msg Msg) error {
	if err := h.Handler.HandleWatch(ctx, handleFrame, respond, msg); err != nil {
		return err
	}

	logs.WithClientID(h.GetClientID()).
		WithTag("space_id", h.spaceID).
		WithTag("request_id", msg.RequestID).
		WithTag("region", msg.Region).
		Debug("client is watching a region")
	return nil
}

func (h *handlerWithLogs) HandleDisconnect(err error) {
	h.Handler.HandleDisconnect(err)
	logs.WithClientID(h.GetClientID()).
		WithTag("space_id", h.spaceID).
		WithTag("space_uuid", h.spaceUUID).
		Info("client disconnected")
}

func (h *handlerWithLogs) Receiver() Receiver {
	receive := h.Handler.Receiver()

	return func() (Msg, int, error) {
		msg, n, err := receive()
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
			logs.WithClientID(h.GetClientID()).
				WithTag("space_id", h.spaceID).
				WithTag("space_uuid", h.spaceUUID).
				Error(errors.New("receiving message failed").Wrap(err))
		} else if err == nil {
			logs.WithClientID(h.GetClientID()).
				WithTag("space_id", h.spaceID).
				WithTag("msg_type", msg.Type).
				WithTag("request_id", msg.RequestID).
				Debug("message received")
			h.incCounter(msg.Type)
		}
		return msg, n, err
	}
}

func (h *handlerWithLogs) Sender() Sender {
	sender := h.Handler.Sender()

	return func(msg Msg) (int, error) {
		n, err := sender(msg)
		if err != nil && !errors.Is(err, net.ErrClosed) {
			logs.WithClientID(h.GetClientID()).
				WithTag("space_id", h.spaceID).
				WithTag("space_uuid", h.spaceUUID).
				WithTag("msg_type", msg.Type).
				Error(errors.New("sending message failed").Wrap(err))
		} else if err == nil {
			logs.WithClientID(h.GetClientID()).
				WithTag("space_id", h.spaceID).
				WithTag("msg_type", msg.Type).
				WithTag("request_id", msg.RequestID).
				Debug("message sent")
		}
		return n, err
	}
}

func (h *handlerWithLogs) Close() {
	h.Handler.Close()
	h.closeSummaryWorker()
	h.logSummary()
}

func (h *handlerWithLogs) startSummaryWorker(ctx context.Context) {
	ticker := time.NewTicker(h.summaryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			h.logSummary()
		}
	}
}

func (h *handlerWithLogs) incCounter(msgType string) {
	h.counterMutex.Lock()
	defer h.counterMutex.Unlock()

	h.counter[msgType]++
}

func (h *handlerWithLogs) logSummary() {
	h.counterMutex.Lock()
	defer h.counterMutex.Unlock()

	if len(h.counter) == 0 {
		return
	}

	entry := logs.
		WithClientID(h.GetClientID()).
		WithTag("space_id", h.spaceID).
		WithTag("space_uuid", h.spaceUUID).
		WithTag("time_interval", h.summaryInterval)

	for k, v := range h.counter {
		entry = entry.WithTag(k, v)
		delete(h.counter, k)
	}

	entry.Info("inbound message summary")
}
