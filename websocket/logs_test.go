package websocket

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/stretchr/testify/require"
)

func TestHandlerWithLogsIncCounter(t *testing.T) {
	h := HandlerWithLogs(&StreamHandler{}, time.Second).(*handlerWithLogs)
	defer h.Close()

	h.incCounter(MsgTypeQuery)
	require.Equal(t, 1, h.counter[MsgTypeQuery])
}

func TestHandlerWithLogsLogSummary(t *testing.T) {
	testClientID := "test-client"
	h := HandlerWithLogs(&StreamHandler{clientID: testClientID}, time.Second).(*handlerWithLogs)
	defer h.Close()

	h.incCounter(MsgTypeEntityMove)
	h.incCounter(MsgTypeEntityMove)
	h.incCounter(MsgTypeQuery)

	var b strings.Builder
	logs.SetInlineEncoder()
	logs.SetLogger(func(e logs.Entry) {
		fmt.Fprint(&b, e)
	})

	h.logSummary()
	require.Empty(t, h.counter)

	logString := b.String()
	require.Contains(t, logString, `"move":2`)
	require.Contains(t, logString, `"query":1`)
	require.Contains(t, logString, testClientID)
}

func TestHandlerWithLogsStartSummaryWorker(t *testing.T) {
	var wg sync.WaitGroup
	var once sync.Once

	var mutex sync.Mutex
	var b strings.Builder
	logs.SetInlineEncoder()
	logs.SetLogger(func(e logs.Entry) {
		mutex.Lock()
		defer mutex.Unlock()

		fmt.Fprint(&b, e)
		once.Do(wg.Done)
	})

	wg.Add(1)
	h := HandlerWithLogs(&StreamHandler{}, time.Millisecond).(*handlerWithLogs)
	defer h.Close()

	// No summary is logged until a counter is incremented.
	h.incCounter(MsgTypePing)

	wg.Wait()

	mutex.Lock()
	defer mutex.Unlock()
	require.Contains(t, b.String(), "inbound message summary")
}
