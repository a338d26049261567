package socket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scoresync/internal/access"
	"scoresync/internal/document/model"
	"scoresync/internal/document/service"
	"scoresync/internal/presence"
	"scoresync/internal/user"
	"scoresync/pkg/clock"
	"scoresync/pkg/logger"
	"scoresync/store"
)

func testClock(start int64) clock.Millis {
	var mu sync.Mutex
	t := start
	return func() int64 {
		mu.Lock()
		defer mu.Unlock()
		t++
		return t
	}
}

// Helper to read one envelope from a WebSocket connection with a timeout.
func readEnvelope(t *testing.T, conn *websocket.Conn) model.Envelope {
	t.Helper()
	var envelope model.Envelope
	// Set a deadline to avoid tests hanging forever.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, p, err := conn.ReadMessage()
	require.NoError(t, err, "Failed to read message from WebSocket")
	err = json.Unmarshal(p, &envelope)
	require.NoError(t, err, "Failed to unmarshal envelope JSON")
	return envelope
}

func decodePresence(t *testing.T, envelope model.Envelope) model.PresenceEvent {
	t.Helper()
	require.Equal(t, model.MsgPresence, envelope.Message)
	var event model.PresenceEvent
	require.NoError(t, json.Unmarshal(envelope.Data, &event))
	return event
}

func decodeDocument(t *testing.T, envelope model.Envelope) model.Document {
	t.Helper()
	require.Equal(t, model.MsgDocument, envelope.Message)
	var doc model.Document
	require.NoError(t, json.Unmarshal(envelope.Data, &doc))
	return doc
}

func TestHubIntegration(t *testing.T) {
	// 1. Setup in-memory stores and services.
	docs := store.NewMemory()
	users := user.NewService(store.NewMemory())
	acc := access.NewService(docs, users, logger.Sugar)
	now := testClock(100)
	pres := presence.NewService(store.NewPresence(), now)
	updates := service.NewUpdateService(docs, acc, now, logger.Sugar)
	subs := service.NewSubscribeService(docs, pres, acc, logger.Sugar)

	docID := "test-doc-1"
	doc := model.NewDocument(docID, "user1", 100)
	doc.DocumentTitle = "Prelude"
	doc.Metadata.ShareList["user2"] = model.AccessWrite
	obj, err := model.ToMap(doc)
	require.NoError(t, err)
	require.NoError(t, docs.Set(context.Background(), docID, obj))

	hub := NewHub(subs, updates, pres)
	go hub.Run()

	// 2. Setup test HTTP server. Identity comes from query params instead of
	// the JWT middleware.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		usr := model.UserIdentity{
			UserID:      r.URL.Query().Get("user_id"),
			DisplayName: r.URL.Query().Get("name"),
		}
		ServeWs(hub, w, r, usr)
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	// --- Test Scenario ---

	// 3. Client 1 joins and receives its own presence record, then the full
	// document snapshot.
	conn1, _, err := websocket.DefaultDialer.Dial(wsURL+"/ws?docId="+docID+"&user_id=user1&name=Clara", nil)
	require.NoError(t, err, "Client 1 failed to connect")
	defer conn1.Close()

	joined := decodePresence(t, readEnvelope(t, conn1))
	assert.Equal(t, model.UpdateAdd, joined.Type)
	assert.Equal(t, "user1", joined.User.UserID)
	assert.Equal(t, "Clara", joined.User.DisplayName)

	snapshot := decodeDocument(t, readEnvelope(t, conn1))
	assert.Equal(t, docID, snapshot.DocumentID)
	assert.Equal(t, "Prelude", snapshot.DocumentTitle)

	// 4. Client 2 joins the same document.
	conn2, _, err := websocket.DefaultDialer.Dial(wsURL+"/ws?docId="+docID+"&user_id=user2&name=Robert", nil)
	require.NoError(t, err, "Client 2 failed to connect")
	defer conn2.Close()

	// Client 2 replays both live presence records (in either order) before
	// its document snapshot.
	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		event := decodePresence(t, readEnvelope(t, conn2))
		assert.Equal(t, model.UpdateAdd, event.Type)
		seen[event.User.UserID] = true
	}
	assert.True(t, seen["user1"])
	assert.True(t, seen["user2"])
	_ = decodeDocument(t, readEnvelope(t, conn2))

	// Client 1 sees client 2 join.
	joined2 := decodePresence(t, readEnvelope(t, conn1))
	assert.Equal(t, model.UpdateAdd, joined2.Type)
	assert.Equal(t, "user2", joined2.User.UserID)

	// 5. Client 2 edits the title; both clients receive the new snapshot.
	fields, _ := json.Marshal(map[string]any{"document_title": "Nocturne"})
	update, _ := json.Marshal(model.Envelope{Message: model.MsgUpdate, Data: fields})
	require.NoError(t, conn2.WriteMessage(websocket.TextMessage, update))

	for _, conn := range []*websocket.Conn{conn1, conn2} {
		broadcast := decodeDocument(t, readEnvelope(t, conn))
		assert.Equal(t, "Nocturne", broadcast.DocumentTitle)
		assert.Greater(t, broadcast.Metadata.LastEditTime, int64(100))
	}

	// 6. Client 2 moves its cursor; client 1 sees the presence change.
	cursor, _ := json.Marshal(map[string]any{"note_id": "n42"})
	move, _ := json.Marshal(model.Envelope{Message: model.MsgCursor, Data: cursor})
	require.NoError(t, conn2.WriteMessage(websocket.TextMessage, move))

	moved := decodePresence(t, readEnvelope(t, conn1))
	assert.Equal(t, model.UpdateChange, moved.Type)
	assert.Equal(t, "user2", moved.User.UserID)
	assert.Equal(t, "n42", moved.User.Cursor["note_id"])

	// 7. Client 2 drops the connection. Disconnect cleanup removes its
	// presence record without an explicit unregister message.
	conn2.Close()

	left := decodePresence(t, readEnvelope(t, conn1))
	assert.Equal(t, model.UpdateDelete, left.Type)
	assert.Equal(t, "user2", left.User.UserID)
}

func TestHubRejectsUnknownDocument(t *testing.T) {
	docs := store.NewMemory()
	users := user.NewService(store.NewMemory())
	acc := access.NewService(docs, users, logger.Sugar)
	now := testClock(100)
	pres := presence.NewService(store.NewPresence(), now)
	hub := NewHub(
		service.NewSubscribeService(docs, pres, acc, logger.Sugar),
		service.NewUpdateService(docs, acc, now, logger.Sugar),
		pres,
	)
	go hub.Run()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, w, r, model.UserIdentity{UserID: "user1"})
	}))
	defer server.Close()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"/ws?docId=missing", nil)
	require.NoError(t, err)
	defer conn.Close()

	envelope := readEnvelope(t, conn)
	assert.Equal(t, model.MsgError, envelope.Message)
}

func newHubFixture() (*Hub, *store.Memory) {
	docs := store.NewMemory()
	users := user.NewService(store.NewMemory())
	acc := access.NewService(docs, users, logger.Sugar)
	now := testClock(100)
	pres := presence.NewService(store.NewPresence(), now)
	hub := NewHub(
		service.NewSubscribeService(docs, pres, acc, logger.Sugar),
		service.NewUpdateService(docs, acc, now, logger.Sugar),
		pres,
	)
	return hub, docs
}

func TestPushAfterRejectedSubscriptionIsDropped(t *testing.T) {
	hub, _ := newHubFixture()

	client := &Client{
		Hub:     hub,
		DocID:   "missing",
		User:    model.UserIdentity{UserID: "user1"},
		Session: "s1",
		Send:    make(chan []byte, 4),
	}

	// Rejected subscription: the error envelope is buffered and the send
	// channel closed.
	hub.register(client)

	envelope := <-client.Send
	var rejected model.Envelope
	require.NoError(t, json.Unmarshal(envelope, &rejected))
	assert.Equal(t, model.MsgError, rejected.Message)

	// readPump still reports rejected inbound frames on this client. The
	// push must be a silent drop, never a send on the closed channel.
	assert.NotPanics(t, func() {
		client.push(model.MsgError, "update rejected")
	})

	// The eventual unregister from the pump teardown is safe too.
	assert.NotPanics(t, func() {
		hub.unregister(client)
	})
}

func TestPushAfterUnregisterIsDropped(t *testing.T) {
	hub, docs := newHubFixture()

	doc := model.NewDocument("d1", "user1", 100)
	obj, err := model.ToMap(doc)
	require.NoError(t, err)
	require.NoError(t, docs.Set(context.Background(), "d1", obj))

	client := &Client{
		Hub:     hub,
		DocID:   "d1",
		User:    model.UserIdentity{UserID: "user1"},
		Session: "s1",
		Send:    make(chan []byte, 16),
	}
	hub.register(client)
	require.NotNil(t, client.sub)

	hub.unregister(client)

	// A delivery callback caught mid-flight while the listeners were being
	// released lands after the channel is closed.
	assert.NotPanics(t, func() {
		client.push(model.MsgDocument, doc)
	})
	assert.NotPanics(t, func() {
		hub.unregister(client)
	})
}

func TestDisconnectDocumentClosesConnections(t *testing.T) {
	docs := store.NewMemory()
	users := user.NewService(store.NewMemory())
	acc := access.NewService(docs, users, logger.Sugar)
	now := testClock(100)
	pres := presence.NewService(store.NewPresence(), now)
	hub := NewHub(
		service.NewSubscribeService(docs, pres, acc, logger.Sugar),
		service.NewUpdateService(docs, acc, now, logger.Sugar),
		pres,
	)
	go hub.Run()

	doc := model.NewDocument("d1", "user1", 100)
	obj, err := model.ToMap(doc)
	require.NoError(t, err)
	require.NoError(t, docs.Set(context.Background(), "d1", obj))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, w, r, model.UserIdentity{UserID: "user1"})
	}))
	defer server.Close()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"/ws?docId=d1", nil)
	require.NoError(t, err)
	defer conn.Close()

	_ = decodePresence(t, readEnvelope(t, conn))
	_ = decodeDocument(t, readEnvelope(t, conn))

	hub.DisconnectDocument("d1")

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}
