package socket

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"

	"scoresync/internal/document/model"
	"scoresync/internal/document/service"
	"scoresync/internal/presence"
	"scoresync/pkg/logger"
)

// Hub tracks connected clients per document and wires each one into the
// subscription manager. Persistence and fan-out of document state belong
// to the document store; the hub only moves envelopes between the services
// and the sockets.
type Hub struct {
	Register   chan *Client
	Unregister chan *Client

	subs     *service.SubscribeService
	updates  *service.UpdateService
	presence *presence.Service

	mu    sync.Mutex
	rooms map[string]map[*Client]bool
}

// Client is one websocket connection bound to a document.
type Client struct {
	Hub     *Hub
	Conn    *websocket.Conn
	DocID   string
	User    model.UserIdentity
	Session string
	Send    chan []byte

	sub *service.Subscription

	sendMu     sync.Mutex
	sendClosed bool
}

func NewHub(subs *service.SubscribeService, updates *service.UpdateService, pres *presence.Service) *Hub {
	return &Hub{
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		subs:       subs,
		updates:    updates,
		presence:   pres,
		rooms:      make(map[string]map[*Client]bool),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.register(client)
		case client := <-h.Unregister:
			h.unregister(client)
		}
	}
}

func (h *Hub) register(client *Client) {
	sub, err := h.subs.Subscribe(
		context.Background(),
		client.DocID,
		client.User,
		client.Session,
		func(doc model.Document) {
			client.push(model.MsgDocument, doc)
		},
		func(kind model.UpdateType, entity model.OnlineEntity) {
			client.push(model.MsgPresence, model.PresenceEvent{Type: kind, User: entity})
		},
	)
	if err != nil {
		logger.Sugar.Warnf("Subscription rejected for user %s on document %s: %v", client.User.UserID, client.DocID, err)
		client.push(model.MsgError, err.Error())
		// writePump drains the buffered error and then sends the close frame.
		// readPump may still push for inbound frames; push drops those.
		client.closeSend()
		return
	}
	client.sub = sub

	h.mu.Lock()
	if h.rooms[client.DocID] == nil {
		h.rooms[client.DocID] = make(map[*Client]bool)
	}
	h.rooms[client.DocID][client] = true
	h.mu.Unlock()

	logger.Sugar.Infof("User %s joined document %s", client.User.UserID, client.DocID)
}

func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	if _, ok := h.rooms[client.DocID][client]; ok {
		delete(h.rooms[client.DocID], client)
		if len(h.rooms[client.DocID]) == 0 {
			delete(h.rooms, client.DocID)
		}
	}
	h.mu.Unlock()

	// Stop the delivery sources before closing the send channel; a document
	// or presence callback may be mid-push on another goroutine.
	if client.sub != nil {
		client.sub.Release()
	}
	// Closing the session removes every presence record armed under it.
	h.presence.Disconnect(client.Session)
	client.closeSend()
	logger.Sugar.Infof("User %s left document %s", client.User.UserID, client.DocID)
}

// DisconnectDocument force-closes every connection on a document. Called
// after a document is deleted via the API.
func (h *Hub) DisconnectDocument(docID string) {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.rooms[docID]))
	for client := range h.rooms[docID] {
		clients = append(clients, client)
	}
	h.mu.Unlock()

	for _, client := range clients {
		// readPump exits and unregisters the client safely.
		client.Conn.Close()
	}
}

// push marshals an envelope into the client's send buffer. A full buffer
// means the client is lagging; the message is dropped and the pumps deal
// with unresponsive connections. Pushes after closeSend are dropped, never
// sent on the closed channel.
func (c *Client) push(message string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		logger.Sugar.Errorf("Error marshalling %s payload: %v", message, err)
		return
	}
	envelope, err := json.Marshal(model.Envelope{Message: message, Data: raw})
	if err != nil {
		logger.Sugar.Errorf("Error marshalling envelope: %v", err)
		return
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.sendClosed {
		return
	}
	select {
	case c.Send <- envelope:
	default:
		logger.Sugar.Warnf("Client %s's send buffer is full, dropping %s", c.User.UserID, message)
	}
}

// closeSend closes the send channel exactly once. Late pushes from pumps or
// delivery callbacks become no-ops.
func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.sendClosed {
		return
	}
	c.sendClosed = true
	close(c.Send)
}
