package observer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridtraffic.ai/internal/observerproto"
	"gridtraffic.ai/internal/sim/gridmap"
	"gridtraffic.ai/internal/sim/world"
)

func startObserver(t *testing.T) (*world.World, *httptest.Server) {
	t.Helper()
	m, err := gridmap.FromRows("obs", []string{"#####", "#...#", "#####"})
	require.NoError(t, err)
	w, err := world.New(world.WorldConfig{ID: "obs", TickRateHz: 50, Map: m})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = w.Run(ctx) }()
	t.Cleanup(cancel)

	s := NewServer(w, zerolog.Nop())
	mux := http.NewServeMux()
	mux.HandleFunc("/bootstrap", s.BootstrapHandler())
	mux.HandleFunc("/ws", s.WSHandler())
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return w, srv
}

func TestBootstrap_ReturnsMap(t *testing.T) {
	_, srv := startObserver(t)
	resp, err := http.Get(srv.URL + "/bootstrap")
	require.NoError(t, err)
	defer resp.Body.Close()

	var b observerproto.BootstrapResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&b))
	assert.Equal(t, "obs", b.WorldID)
	assert.Equal(t, 5, b.WorldParams.Width)
	assert.Equal(t, []string{"#####", "#...#", "#####"}, b.Rows)
}

func TestWS_StreamsTickFrames(t *testing.T) {
	w, srv := startObserver(t)
	resp := make(chan world.JoinResponse, 1)
	w.Join() <- world.JoinRequest{Name: "a", Resp: resp}
	require.Empty(t, (<-resp).Err)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.WriteJSON(observerproto.SubscribeMsg{
		Type:            observerproto.TypeSubscribe,
		ProtocolVersion: observerproto.Version,
		WithTracker:     true,
	}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var tm observerproto.TickMsg
	require.NoError(t, json.Unmarshal(msg, &tm))
	assert.Equal(t, observerproto.TypeTick, tm.Type)
	assert.NotEmpty(t, tm.Digest)
	require.Len(t, tm.Agents, 1)
	assert.Equal(t, "A1", tm.Agents[0].ID)
	assert.False(t, tm.Agents[0].Connected)
}

func TestWS_RejectsMissingSubscribe(t *testing.T) {
	_, srv := startObserver(t)
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "HELLO"}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, _, err = conn.ReadMessage()
	var ce *websocket.CloseError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, websocket.ClosePolicyViolation, ce.Code)
}
