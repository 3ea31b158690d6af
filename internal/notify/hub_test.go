package notify

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(nil)
	go hub.Run(ctx)

	r := chi.NewRouter()
	r.Get("/ws/tournaments/{tournamentID}", hub.ServeWs)
	server := httptest.NewServer(r)

	t.Cleanup(func() {
		server.Close()
		cancel()
	})
	return hub, server
}

func dial(t *testing.T, server *httptest.Server, room string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/tournaments/" + room
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHubBroadcastsToRoom(t *testing.T) {
	hub, server := setupHub(t)
	room := uuid.New().String()
	other := uuid.New().String()

	first := dial(t, server, room)
	second := dial(t, server, room)
	outsider := dial(t, server, other)

	require.Eventually(t, func() bool {
		return hub.ClientCount(room) == 2 && hub.ClientCount(other) == 1
	}, time.Second, 10*time.Millisecond)

	hub.Notify(room, "MATCH_UPDATED", map[string]int{"score_1": 2})

	for _, conn := range []*websocket.Conn{first, second} {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)

		var msg struct {
			Type    string         `json:"type"`
			RoomID  string         `json:"room_id"`
			Payload map[string]int `json:"payload"`
		}
		require.NoError(t, json.Unmarshal(data, &msg))
		assert.Equal(t, "MATCH_UPDATED", msg.Type)
		assert.Equal(t, room, msg.RoomID)
		assert.Equal(t, 2, msg.Payload["score_1"])
	}

	require.NoError(t, outsider.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err := outsider.ReadMessage()
	assert.Error(t, err, "clients of another room receive nothing")
}

func TestHubUnregistersOnClose(t *testing.T) {
	hub, server := setupHub(t)
	room := uuid.New().String()

	conn := dial(t, server, room)
	require.Eventually(t, func() bool { return hub.ClientCount(room) == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.ClientCount(room) == 0 }, time.Second, 10*time.Millisecond)

	// nobody listening is not an error
	hub.Notify(room, "MATCH_UPDATED", nil)
}

func TestServeWs_InvalidRoom(t *testing.T) {
	_, server := setupHub(t)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/tournaments/not-a-uuid"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 400, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}
