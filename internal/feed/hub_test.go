package feed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockleague/league/internal/model"
)

func startHub(t *testing.T, origin string) (*Hub, string) {
	t.Helper()
	hub := NewHub(origin)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestHub_BroadcastsTrades(t *testing.T) {
	hub, url := startHub(t, "")

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	hub.TradeExecuted(model.Trade{
		ID: "t1", UserID: "u1", Symbol: "AAPL", Side: model.SideBuy,
		Quantity: decimal.NewFromInt(3), Price: decimal.RequireFromString("189.5"), Timestamp: at,
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var ev Event
	require.NoError(t, json.Unmarshal(data, &ev))
	assert.Equal(t, "trade_executed", ev.Type)
	assert.Equal(t, "t1", ev.TradeID)
	assert.Equal(t, "AAPL", ev.Symbol)
	assert.Equal(t, "buy", ev.Side)
	assert.Equal(t, "3", ev.Quantity)
	assert.Equal(t, "189.5", ev.Price)
	assert.True(t, ev.Timestamp.Equal(at))
}

func TestHub_UnregistersOnClose(t *testing.T) {
	hub, url := startHub(t, "")

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_RejectsForeignOrigin(t *testing.T) {
	_, url := startHub(t, "https://league.example.com")

	h := http.Header{}
	h.Set("Origin", "https://evil.example.com")
	_, resp, err := websocket.DefaultDialer.Dial(url, h)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	h.Set("Origin", "https://league.example.com")
	conn, _, err := websocket.DefaultDialer.Dial(url, h)
	require.NoError(t, err)
	conn.Close()
}
