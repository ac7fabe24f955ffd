package http_test

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwrk-planet/presence-service/internal/broadcast"
	"github.com/cwrk-planet/presence-service/internal/cache"
	"github.com/cwrk-planet/presence-service/internal/domain"
	"github.com/cwrk-planet/presence-service/internal/memory"
	"github.com/cwrk-planet/presence-service/internal/service"
	transporthttp "github.com/cwrk-planet/presence-service/internal/transport/http"
)

type tokens map[string]domain.Identity

func (t tokens) Verify(h string) (domain.Identity, error) {
	if id, ok := t[h]; ok {
		return id, nil
	}
	return domain.Identity{}, errors.New("invalid token")
}

func newServer(t *testing.T, lifetime time.Duration) *httptest.Server {
	t.Helper()
	store := memory.NewRoomStore()
	hub := broadcast.NewHub(nil)
	dir := service.NewDirectory(store, cache.NewMemory(), nil)
	notify := service.NewNotifier(dir, hub, nil)
	presence := service.NewPresence(store, notify, nil)

	h := transporthttp.NewHandler(dir, presence, notify, hub, transporthttp.HandlerConfig{SSELifetime: lifetime})
	srv := httptest.NewServer(transporthttp.NewRouter(transporthttp.RouterDeps{
		Handler:        h,
		Verifier:       tokens{"Bearer host": {UserID: 1, Nickname: "host"}, "Bearer guest": {UserID: 2, Nickname: "guest"}},
		AllowedOrigins: []string{"*"},
	}))
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, srv *httptest.Server, path, token, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func createRoom(t *testing.T, srv *httptest.Server, body string) domain.RoomSnapshot {
	t.Helper()
	resp := post(t, srv, "/api/multi/lobby", "Bearer host", body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var snap domain.RoomSnapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	return snap
}

func enter(t *testing.T, srv *httptest.Server, roomID, password string) bool {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"roomId": roomID, "password": password})
	resp := post(t, srv, "/api/multi/lobby/enter", "Bearer guest", string(body))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var ok bool
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ok))
	return ok
}

func TestCreateRoom(t *testing.T) {
	srv := newServer(t, time.Second)

	resp := post(t, srv, "/api/multi/lobby", "", `{"roomName":"x","roomMax":2}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = post(t, srv, "/api/multi/lobby", "Bearer host", `{"roomName":"","roomMax":2}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = post(t, srv, "/api/multi/lobby", "Bearer host", `{not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	snap := createRoom(t, srv, `{"roomName":"sun","roomMax":3,"hasPassword":true,"password":"pw",
		"pose":[{"poseId":4,"poseName":"tree","userOrderIndex":0}]}`)
	assert.NotEmpty(t, snap.RoomID)
	assert.Equal(t, "sun", snap.RoomName)
	assert.True(t, snap.HasPassword)
	assert.Equal(t, 0, snap.RoomCount)
	assert.Equal(t, "host", snap.UserNickname)
	require.Len(t, snap.Pose, 1)
	assert.Equal(t, "tree", snap.Pose[0].Name)
}

func TestEnterAndList(t *testing.T) {
	srv := newServer(t, time.Second)
	open := createRoom(t, srv, `{"roomName":"open","roomMax":1}`)
	locked := createRoom(t, srv, `{"roomName":"locked","roomMax":2,"hasPassword":true,"password":"pw"}`)

	assert.False(t, enter(t, srv, locked.RoomID, "PW"))
	assert.True(t, enter(t, srv, locked.RoomID, "pw"))
	assert.True(t, enter(t, srv, open.RoomID, ""))
	assert.False(t, enter(t, srv, open.RoomID, ""))
	assert.False(t, enter(t, srv, "missing", ""))

	resp, err := srv.Client().Get(srv.URL + "/api/multi/rooms?roomName=lock")
	require.NoError(t, err)
	defer resp.Body.Close()
	var rooms []domain.RoomSnapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rooms))
	require.Len(t, rooms, 1)
	assert.Equal(t, 1, rooms[0].RoomCount)
	assert.Empty(t, rooms[0].Pose)

	bad := post(t, srv, "/api/multi/lobby/enter", "Bearer guest", `{"password":"x"}`)
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)
}

type sseEvent struct {
	name string
	data string
}

func readEvents(t *testing.T, r *bufio.Reader, n int) []sseEvent {
	t.Helper()
	var (
		out []sseEvent
		cur sseEvent
	)
	for len(out) < n {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			cur.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			cur.data = strings.TrimPrefix(line, "data: ")
		case strings.HasPrefix(line, "retry: "):
			assert.Equal(t, "retry: 1000", line)
		case line == "" && cur.name != "":
			out = append(out, cur)
			cur = sseEvent{}
		}
	}
	return out
}

func TestLobbyStream(t *testing.T) {
	srv := newServer(t, 5*time.Second)
	room := createRoom(t, srv, `{"roomName":"Flow","roomMax":2}`)
	createRoom(t, srv, `{"roomName":"other","roomMax":2}`)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/multi/lobby?roomName=Flow", nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	r := bufio.NewReader(resp.Body)
	initial := readEvents(t, r, 1)[0]
	assert.Equal(t, broadcast.EventInitialRooms, initial.name)
	var rooms []domain.RoomSnapshot
	require.NoError(t, json.Unmarshal([]byte(initial.data), &rooms))
	require.Len(t, rooms, 1)
	assert.Equal(t, room.RoomID, rooms[0].RoomID)

	require.True(t, enter(t, srv, room.RoomID, ""))

	update := readEvents(t, r, 1)[0]
	assert.Equal(t, broadcast.EventRoomUpdate, update.name)
	require.NoError(t, json.Unmarshal([]byte(update.data), &rooms))
	// updates carry the unfiltered list
	assert.Len(t, rooms, 2)
}

func TestLobbyStream_Lifetime(t *testing.T) {
	srv := newServer(t, 50*time.Millisecond)

	resp, err := srv.Client().Get(srv.URL + "/api/multi/lobby")
	require.NoError(t, err)
	defer resp.Body.Close()

	done := make(chan struct{})
	go func() {
		_, _ = bufio.NewReader(resp.Body).ReadString(0)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not end after its lifetime")
	}
}

func TestHealthz(t *testing.T) {
	srv := newServer(t, time.Second)
	resp, err := srv.Client().Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
