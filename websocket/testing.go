package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	httpcmn "github.com/aukilabs/hagall-common/http"
	"github.com/aukilabs/quadtree/models"
	"github.com/google/uuid"
	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"
)

// Creates a testing environement to unit test stream handlers. The returned
// clients are connected to the same space.
func NewTestingEnv(t *testing.T, space *models.Space, newHandler func(*models.Space) Handler) (*websocket.Conn, *websocket.Conn, func()) {
	var mutex sync.Mutex
	logger := t.Log

	logs.Encoder = func(v any) ([]byte, error) {
		return json.MarshalIndent(v, "", "  ")
	}

	logs.SetLogger(func(e logs.Entry) {
		mutex.Lock()
		defer mutex.Unlock()

		if logger != nil {
			logger(e)
		}
	})

	errors.Encoder = json.Marshal

	clientA, clientB, close := newTestingEnv(t, space, newHandler)
	return clientA, clientB, func() {
		mutex.Lock()
		defer mutex.Unlock()
		logger = nil
		close()
	}
}

func newTestingEnv(t *testing.T, space *models.Space, newHandler func(*models.Space) Handler) (*websocket.Conn, *websocket.Conn, func()) {
	server := httptest.NewServer(websocket.Server{
		Handshake: func(c *websocket.Config, r *http.Request) error {
			return nil
		},
		Handler: func(conn *websocket.Conn) {
			defer conn.Close()

			handler := newHandler(space)
			defer handler.Close()

			Handle(context.Background(), conn, handler)
		},
	})

	newConn := func() *websocket.Conn {
		config, err := websocket.NewConfig(
			strings.ReplaceAll(server.URL, "http://", "ws://"),
			"http://localhost",
		)
		if err != nil {
			t.Fatalf("error initializing web socket: %s", err)
		}

		config.Header.Set("User-Agent", "ted")
		config.Header.Set(httpcmn.XForwardedForHeaderKey, "192.0.0.0")
		config.Header.Set(httpcmn.HeaderPosemeshClientID, uuid.NewString())

		conn, err := websocket.DialConfig(config)
		if err != nil {
			t.Fatalf("error dialing web socket: %s", err)
		}

		return conn
	}

	clientA := newConn()
	clientB := newConn()

	return clientA, clientB, func() {
		clientA.Close()
		clientB.Close()
		server.Close()
	}
}

func newTestHandler(idleTimeout time.Duration) func(*models.Space) Handler {
	return func(space *models.Space) Handler {
		var h Handler = &StreamHandler{
			ClientIdleTimeout: idleTimeout,
			Space:             space,
		}

		h = HandlerWithLogs(h, time.Millisecond*100)
		h = HandlerWithMetrics(h)
		return h
	}
}

// sendMsg sends a message as a client.
func sendMsg(t *testing.T, conn *websocket.Conn, msg Msg) {
	b, err := json.Marshal(msg)
	require.NoError(t, err)
	require.NoError(t, websocket.Message.Send(conn, string(b)))
}

// receiveMsg reads messages as a client until one of the given type arrives.
func receiveMsg(t *testing.T, conn *websocket.Conn, msgType string) Msg {
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second*5)))

	for {
		var b []byte
		require.NoError(t, websocket.Message.Receive(conn, &b))

		var msg Msg
		require.NoError(t, json.Unmarshal(b, &msg))
		if msg.Type == msgType {
			return msg
		}
	}
}
