package events

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"luna/pkg/protocol"
)

func TestBridge_ForwardsFramesToHub(t *testing.T) {
	got := make(chan protocol.Frame, 4)
	up := ws.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			f, err := protocol.Decode(msg)
			if err == nil {
				got <- f
			}
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	sock, err := protocol.NewWebSocket(ctx, url, 50*time.Millisecond, time.Second)
	require.NoError(t, err)
	defer sock.Close()

	b := NewBus(16)
	defer b.Close()

	br := NewBridge("luna", sock, 8)
	go br.Run(ctx, b, TypeWakeWordDetected)
	time.Sleep(20 * time.Millisecond)

	b.Publish(StateChanged{Key: "ignored"})
	b.Publish(WakeWordDetected{Keyword: "luna", Confidence: 0.9})

	select {
	case f := <-got:
		assert.Equal(t, "luna", f.From)
		assert.Equal(t, TypeWakeWordDetected, f.Kind)
		assert.Contains(t, string(f.Content), `"keyword":"luna"`)
	case <-time.After(2 * time.Second):
		t.Fatal("no frame reached the hub")
	}
}
