package wsfeed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/tildenfx/marketstate/internal/actions"
)

func TestGorillaSourceDecodesFrame(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(nil)
	mux := &upgradeHandler{upgrader: upgrader, frame: []byte(`{"type":"heartbeat","ticks":5,"run_id":"r1"}`)}
	srv.Config.Handler = mux
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	src, err := Dial(context.Background(), wsURL, "secret")
	require.NoError(t, err)
	defer func() { _ = src.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	got, err := src.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, actions.KindHeartbeat, got.Kind)
	require.Equal(t, int64(5), got.Heartbeat.Ticks)
	require.Equal(t, "r1", got.Heartbeat.RunID)
}

type upgradeHandler struct {
	upgrader websocket.Upgrader
	frame    []byte
}

func (h *upgradeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()
	_ = conn.WriteMessage(websocket.TextMessage, h.frame)
}
