package gateway

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/oriys/optionspulse/internal/domain"
)

func TestClientJoinLeaveInRoom(t *testing.T) {
	c := newClient(nil, 10)
	require.False(t, c.InRoom("product:NIFTY"))

	c.Join("product:NIFTY")
	require.True(t, c.InRoom("product:NIFTY"))
	require.Equal(t, []string{"product:NIFTY"}, c.Rooms())

	c.Leave("product:NIFTY")
	require.False(t, c.InRoom("product:NIFTY"))
}

func TestClientSendBufferFull(t *testing.T) {
	c := newClient(nil, 2)
	require.True(t, c.Send([]byte("a")))
	require.True(t, c.Send([]byte("b")))
	require.False(t, c.Send([]byte("c"))) // buffer full, dropped
	require.Equal(t, uint64(1), c.Dropped)
}

// newHubWithDialedClient spins up a real websocket connection over an
// httptest server so Hub.Unregister (which closes the underlying conn) is
// exercised the way it would be in production, rather than faked with a nil
// *websocket.Conn.
func newHubWithDialedClient(t *testing.T) (*Hub, *Client, func()) {
	t.Helper()
	hub := NewHub(4)

	var upgrader websocket.Upgrader
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		hub.Register(conn)
	}))

	wsURL := "ws" + srv.URL[len("http"):]
	clientConn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	var registered *Client
	hub.mu.RLock()
	for _, c := range hub.clients {
		registered = c
	}
	hub.mu.RUnlock()

	cleanup := func() {
		clientConn.Close()
		srv.Close()
	}
	return hub, registered, cleanup
}

func TestHubRegisterJoinsGeneralRoom(t *testing.T) {
	hub, c, cleanup := newHubWithDialedClient(t)
	defer cleanup()

	require.True(t, c.InRoom(domain.GeneralRoom))
	require.Equal(t, 1, hub.ClientCount())
}

func TestHubJoinLeaveRoom(t *testing.T) {
	hub, c, cleanup := newHubWithDialedClient(t)
	defer cleanup()

	hub.JoinRoom(c, "product:NIFTY", "product")
	require.True(t, c.InRoom("product:NIFTY"))

	hub.LeaveRoom(c, "product:NIFTY")
	require.False(t, c.InRoom("product:NIFTY"))
}

func TestHubBroadcastDeliversToRoomMembers(t *testing.T) {
	hub, c, cleanup := newHubWithDialedClient(t)
	defer cleanup()

	hub.JoinRoom(c, "product:NIFTY", "product")
	hub.Broadcast("product:NIFTY", "underlying_update", []byte(`{"product":"NIFTY"}`))

	select {
	case frame := <-c.SendCh():
		require.Contains(t, string(frame), "underlying_update")
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for broadcast frame")
	}
}

func TestHubBroadcastToEmptyRoomIsNoop(t *testing.T) {
	hub, _, cleanup := newHubWithDialedClient(t)
	defer cleanup()

	// Must not panic or block when the room has no members.
	hub.Broadcast("chain:UNKNOWN", "chain_update", []byte("{}"))
}

func TestHubUnregisterRemovesFromAllRooms(t *testing.T) {
	hub, c, cleanup := newHubWithDialedClient(t)
	defer cleanup()

	hub.JoinRoom(c, "product:NIFTY", "product")
	hub.Unregister(c, "test")

	require.Equal(t, 0, hub.ClientCount())
	hub.mu.RLock()
	require.Empty(t, hub.byRoom)
	hub.mu.RUnlock()
	select {
	case <-c.Done():
	default:
		t.Fatal("client should be closed after Unregister")
	}
}

// TestHubBroadcastRoomsDeliversOnceToOverlappingMember pins down §8's
// no-duplicates property: a client that belongs to both target rooms of a
// re-broadcast (e.g. product:NIFTY and the general room) must receive
// exactly one copy of the event, not one per room.
func TestHubBroadcastRoomsDeliversOnceToOverlappingMember(t *testing.T) {
	hub, c, cleanup := newHubWithDialedClient(t)
	defer cleanup()

	hub.JoinRoom(c, "product:NIFTY", "product")
	require.True(t, c.InRoom(domain.GeneralRoom))
	require.True(t, c.InRoom("product:NIFTY"))

	hub.BroadcastRooms([]string{"product:NIFTY", domain.GeneralRoom}, "underlying_update", []byte(`{"product":"NIFTY"}`))

	select {
	case frame := <-c.SendCh():
		require.Contains(t, string(frame), "underlying_update")
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for broadcast frame")
	}

	select {
	case frame := <-c.SendCh():
		t.Fatalf("client received a duplicate frame: %s", frame)
	case <-time.After(50 * time.Millisecond):
	}
}

// TestHubBroadcastRoomsDisjointMembersEachReceiveOne verifies BroadcastRooms
// still reaches clients that belong to only one of several target rooms.
func TestHubBroadcastRoomsDisjointMembersEachReceiveOne(t *testing.T) {
	hub, c, cleanup := newHubWithDialedClient(t)
	defer cleanup()

	hub.LeaveRoom(c, domain.GeneralRoom)
	hub.JoinRoom(c, "product:BANKNIFTY", "product")

	hub.BroadcastRooms([]string{"product:NIFTY", "product:BANKNIFTY"}, "underlying_update", []byte(`{"product":"BANKNIFTY"}`))

	select {
	case frame := <-c.SendCh():
		require.Contains(t, string(frame), "BANKNIFTY")
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for broadcast frame")
	}
}

func TestHubBroadcastOverflowDisconnectsClient(t *testing.T) {
	hub := NewHub(1) // buffer of 1: the second broadcast overflows

	var upgrader websocket.Upgrader
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		hub.Register(conn)
	}))
	defer srv.Close()

	wsURL := "ws" + srv.URL[len("http"):]
	clientConn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer clientConn.Close()

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	hub.Broadcast(domain.GeneralRoom, "underlying_update", []byte("1"))
	hub.Broadcast(domain.GeneralRoom, "underlying_update", []byte("2")) // overflow, disconnects

	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
}
