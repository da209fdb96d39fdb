package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"data-exporter/internal/config"
)

var upgrader = websocket.Upgrader{}

func setupTestServer(t *testing.T, handler func(conn *websocket.Conn)) string {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer ws-token", r.Header.Get("Authorization"))
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handler(conn)
	}))
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func newCollector(t *testing.T, opts map[string]any) *Collector {
	t.Helper()
	t.Setenv("TEST_WS_TOKEN", "ws-token")
	opts["auth"] = map[string]any{"type": "bearer_token", "token_env": "TEST_WS_TOKEN"}

	c, err := New(config.DataSource{
		Name:    "stream",
		Type:    Type,
		Timeout: config.Duration(2 * time.Second),
		Options: opts,
	}, zap.NewNop())
	require.NoError(t, err)
	return c
}

func TestCollectSubscribe(t *testing.T) {
	endpoint := setupTestServer(t, func(conn *websocket.Conn) {
		_, msg, err := conn.ReadMessage()
		assert.NoError(t, err)
		assert.Equal(t, `{"op":"subscribe","channel":"queues"}`, string(msg))

		conn.WriteMessage(websocket.TextMessage, []byte(`{"data":[{"queue":"a","depth":3}]}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"data":[{"queue":"b","depth":5}]}`))
		conn.ReadMessage()
	})

	c := newCollector(t, map[string]any{
		"endpoint":          endpoint,
		"subscribe_message": `{"op":"subscribe","channel":"queues"}`,
		"messages":          2,
	})

	records, err := c.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "a", records[0].Label("queue"))
	assert.Equal(t, "b", records[1].Label("queue"))
}

func TestCollectTimeout(t *testing.T) {
	endpoint := setupTestServer(t, func(conn *websocket.Conn) {
		// never sends anything
		conn.ReadMessage()
	})

	c := newCollector(t, map[string]any{"endpoint": endpoint})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Collect(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCollectDialError(t *testing.T) {
	c := newCollector(t, map[string]any{"endpoint": "ws://127.0.0.1:1/stream"})

	_, err := c.Collect(context.Background())
	assert.ErrorContains(t, err, "websocket dial")
}

func TestNewValidation(t *testing.T) {
	for _, opts := range []map[string]any{
		{},
		{"endpoint": "http://example.com"},
		{"endpoint": "ws://example.com", "messages": -1},
		{"endpoint": "ws://example.com", "format": "xml"},
	} {
		_, err := New(config.DataSource{Name: "stream", Type: Type, Options: opts}, zap.NewNop())
		assert.Error(t, err)
	}
}
